package db

import (
	"encoding/json"

	"gorm.io/gorm"

	"tgw-batch-service/internal/batch"
	"tgw-batch-service/internal/template"
)

// Batch run lifecycle states.
const (
	RunStatusPending   = "PENDING"
	RunStatusRunning   = "RUNNING"
	RunStatusCompleted = "COMPLETED"
	RunStatusFailed    = "FAILED"
)

// Result dispositions within a run.
const (
	DispositionAccepted   = "accepted"
	DispositionLowQuality = "low_quality"
	DispositionFailed     = "failed"
)

// PromptTemplate is a stored prompt template. Variables, Tags, OptimalParams
// and RenderVars are JSON columns. A non-empty CronExpression schedules the
// template as a recurring batch of one rendered prompt.
type PromptTemplate struct {
	gorm.Model
	Name           string `json:"name" gorm:"uniqueIndex"`
	Category       string `json:"category" gorm:"index"`
	Body           string `json:"template" gorm:"type:text"`
	Variables      string `json:"variables" gorm:"type:json"`
	Description    string `json:"description"`
	Tags           string `json:"tags,omitempty" gorm:"type:json"`
	OptimalParams  string `json:"optimal_params" gorm:"type:json"`
	CronExpression string `json:"cron_expression,omitempty" gorm:"index"`
	RenderVars     string `json:"render_vars,omitempty" gorm:"type:json"` // variable values for scheduled runs
}

// BatchRun is the persisted record of one batch execution.
type BatchRun struct {
	gorm.Model
	RunID               string  `json:"run_id" gorm:"uniqueIndex"`
	Status              string  `json:"status" gorm:"index"`
	Source              string  `json:"source"` // api, scheduler, cli
	TotalTasks          int     `json:"total_tasks"`
	SuccessfulCount     int     `json:"successful_count"`
	FailedCount         int     `json:"failed_count"`
	LowQualityCount     int     `json:"low_quality_count"`
	SuccessRate         float64 `json:"success_rate"`
	AvgQualityScore     float64 `json:"avg_quality_score"`
	TotalGenerationTime float64 `json:"total_generation_time"`
	ResultsPath         string  `json:"results_path,omitempty"`
	ReportPath          string  `json:"report_path,omitempty"`
	ErrorMessage        string  `json:"error_message,omitempty"`

	Records []GenerationRecord `json:"records,omitempty" gorm:"foreignKey:BatchRunID"`
}

// GenerationRecord is one task result within a batch run.
type GenerationRecord struct {
	gorm.Model
	BatchRunID     uint    `json:"batch_run_id" gorm:"index"`
	TaskID         string  `json:"task_id" gorm:"index"`
	Prompt         string  `json:"prompt" gorm:"type:text"`
	GeneratedText  string  `json:"generated_text" gorm:"type:text"`
	Params         string  `json:"params" gorm:"type:json"`
	QualityScore   float64 `json:"quality_score"`
	GenerationTime float64 `json:"generation_time"`
	TokenCount     int     `json:"token_count"`
	Success        bool    `json:"success"`
	ErrorMessage   string  `json:"error_message,omitempty"`
	Disposition    string  `json:"disposition" gorm:"index"`
}

// ToDomain converts the stored template into the in-memory representation.
func (p PromptTemplate) ToDomain() (template.Template, error) {
	var params batch.GenerationParams
	if p.OptimalParams != "" {
		if err := json.Unmarshal([]byte(p.OptimalParams), &params); err != nil {
			return template.Template{}, err
		}
	} else {
		params = batch.DefaultParams()
	}
	var tags []string
	if p.Tags != "" {
		if err := json.Unmarshal([]byte(p.Tags), &tags); err != nil {
			return template.Template{}, err
		}
	}
	return template.New(p.Name, p.Category, p.Body, p.Description, tags, &params), nil
}

// FromDomain builds the stored form of a template. CronExpression and
// RenderVars are scheduling concerns and are left for the caller to set.
func FromDomain(t template.Template) (PromptTemplate, error) {
	vars, err := json.Marshal(t.Variables)
	if err != nil {
		return PromptTemplate{}, err
	}
	params, err := json.Marshal(t.OptimalParams)
	if err != nil {
		return PromptTemplate{}, err
	}
	tags := ""
	if len(t.Tags) > 0 {
		raw, err := json.Marshal(t.Tags)
		if err != nil {
			return PromptTemplate{}, err
		}
		tags = string(raw)
	}
	return PromptTemplate{
		Name:          t.Name,
		Category:      t.Category,
		Body:          t.Body,
		Variables:     string(vars),
		Description:   t.Description,
		Tags:          tags,
		OptimalParams: string(params),
	}, nil
}

// RecordFromResult builds a GenerationRecord for one result.
func RecordFromResult(runID uint, r batch.Result, disposition string) GenerationRecord {
	params, _ := json.Marshal(r.Parameters)
	return GenerationRecord{
		BatchRunID:     runID,
		TaskID:         r.TaskID,
		Prompt:         r.Prompt,
		GeneratedText:  r.GeneratedText,
		Params:         string(params),
		QualityScore:   r.QualityScore,
		GenerationTime: r.GenerationTime,
		TokenCount:     r.TokenCount,
		Success:        r.Success,
		ErrorMessage:   r.Error,
		Disposition:    disposition,
	}
}
