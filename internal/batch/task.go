// Package batch contains the task/result data model and the bounded-pool
// orchestrator that drives batch text generation with quality control.
package batch

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"math"
	"sync/atomic"
	"time"
)

// GenerationParams are the sampling options forwarded to the completion
// endpoint. The zero value is not useful; start from DefaultParams.
type GenerationParams struct {
	Temperature       float64 `json:"temperature"`
	TopP              float64 `json:"top_p"`
	TopK              int     `json:"top_k,omitempty"`
	MaxNewTokens      int     `json:"max_new_tokens"`
	RepetitionPenalty float64 `json:"repetition_penalty"`
}

// DefaultParams mirrors the balanced preset used by the notebook tooling.
func DefaultParams() GenerationParams {
	return GenerationParams{
		Temperature:       0.7,
		TopP:              0.9,
		MaxNewTokens:      512,
		RepetitionPenalty: 1.1,
	}
}

// Task is one generation request. Tasks are immutable once created: a retry
// never mutates the original task but derives a new one via RetryTask.
type Task struct {
	ID           string            `json:"id"`
	Prompt       string            `json:"prompt"`
	Parameters   GenerationParams  `json:"parameters"`
	TemplateName string            `json:"template_name,omitempty"`
	Priority     int               `json:"priority"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

var taskSeq atomic.Uint64

// NewTask builds a task with a stable 8-hex-char identifier derived from the
// prompt, the current time and a process-wide sequence number. The sequence
// keeps identifiers unique within a batch even when the clock is coarse.
func NewTask(prompt string, params GenerationParams, priority int, metadata map[string]string) Task {
	sum := md5.Sum([]byte(fmt.Sprintf("%s_%d_%d", prompt, time.Now().UnixNano(), taskSeq.Add(1))))
	return Task{
		ID:         hex.EncodeToString(sum[:])[:8],
		Prompt:     prompt,
		Parameters: params,
		Priority:   priority,
		Metadata:   metadata,
	}
}

// RetryTask derives a fresh task for a low-quality result: same prompt and
// metadata, suffixed identifier, and a lowered sampling temperature
// (subtract 0.2, floor 0.3). The original task is left untouched.
func RetryTask(res Result) Task {
	params := res.Parameters
	params.Temperature = math.Max(0.3, params.Temperature-0.2)
	return Task{
		ID:         res.TaskID + "_retry",
		Prompt:     res.Prompt,
		Parameters: params,
		Metadata:   res.Metadata,
	}
}

// Result is the record of exactly one generation attempt. Success is false
// iff Error is non-empty.
type Result struct {
	TaskID         string            `json:"task_id"`
	Prompt         string            `json:"prompt"`
	GeneratedText  string            `json:"generated_text"`
	Parameters     GenerationParams  `json:"parameters"`
	GenerationTime float64           `json:"generation_time"` // seconds
	TokenCount     int               `json:"token_count"`
	QualityScore   float64           `json:"quality_score"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	Timestamp      string            `json:"timestamp"`
	Success        bool              `json:"success"`
	Error          string            `json:"error_message,omitempty"`
}

// FailedResult builds the failure record for a task attempt.
func FailedResult(task Task, elapsed time.Duration, errMsg string) Result {
	return Result{
		TaskID:         task.ID,
		Prompt:         task.Prompt,
		Parameters:     task.Parameters,
		GenerationTime: elapsed.Seconds(),
		Metadata:       task.Metadata,
		Timestamp:      time.Now().Format(time.RFC3339),
		Success:        false,
		Error:          errMsg,
	}
}

// Summary aggregates a finished batch.
type Summary struct {
	TotalTasks          int     `json:"total_tasks"`
	SuccessfulCount     int     `json:"successful_count"`
	FailedCount         int     `json:"failed_count"`
	LowQualityCount     int     `json:"low_quality_count"`
	SuccessRate         float64 `json:"success_rate"`
	AvgQualityScore     float64 `json:"avg_quality_score"`
	TotalGenerationTime float64 `json:"total_generation_time"`
	AvgGenerationTime   float64 `json:"avg_generation_time"`
}

// Outcome partitions every attempt of a batch run. A result appears in
// exactly one of Accepted, LowQuality and Failed, and additionally in All.
// Retry attempts are separate Results, so the partitions never double-count
// an original task in Accepted.
type Outcome struct {
	Accepted   []Result `json:"successful_results"`
	LowQuality []Result `json:"low_quality_results"`
	Failed     []Result `json:"failed_results"`
	All        []Result `json:"all_results"`
	Summary    Summary  `json:"summary"`
}
