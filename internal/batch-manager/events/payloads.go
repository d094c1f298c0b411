package events

// BatchCompletedPayload is published to Kafka when a batch run finishes.
type BatchCompletedPayload struct {
	RunID           string  `json:"run_id"`
	Status          string  `json:"status"`
	TotalTasks      int     `json:"total_tasks"`
	SuccessfulCount int     `json:"successful_count"`
	FailedCount     int     `json:"failed_count"`
	LowQualityCount int     `json:"low_quality_count"`
	SuccessRate     float64 `json:"success_rate"`
	AvgQualityScore float64 `json:"avg_quality_score"`
	ResultsPath     string  `json:"results_path,omitempty"`
	ReportPath      string  `json:"report_path,omitempty"`
	Error           string  `json:"error,omitempty"`
}
