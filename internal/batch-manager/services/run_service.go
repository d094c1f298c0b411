package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"tgw-batch-service/internal/batch"
	"tgw-batch-service/internal/batch-manager/db"
	"tgw-batch-service/internal/batch-manager/events"
	"tgw-batch-service/internal/batch-manager/kafka"
	"tgw-batch-service/internal/config"
	"tgw-batch-service/internal/report"
)

// RunService executes batch runs end to end: orchestration, result and
// report files, database persistence and the completion event.
type RunService struct {
	DB         *gorm.DB
	Orch       *batch.Orchestrator
	Producer   *kafka.Producer
	ResultsDir string
	Log        *zap.Logger
}

func NewRunService(gormDB *gorm.DB, gen batch.Generator, cfg *config.Batch, producer *kafka.Producer, log *zap.Logger) *RunService {
	if log == nil {
		log = zap.NewNop()
	}
	orch := batch.NewOrchestrator(gen, batch.Config{
		MaxConcurrent:    cfg.MaxConcurrent,
		QualityThreshold: cfg.QualityThreshold,
		MaxRetries:       cfg.MaxRetries,
	}, log)
	return &RunService{
		DB:         gormDB,
		Orch:       orch,
		Producer:   producer,
		ResultsDir: cfg.ResultsDir,
		Log:        log,
	}
}

// Execute runs the tasks as one batch. The run is recorded before execution
// starts and finalized with the outcome; a results-file write failure marks
// the run FAILED and is returned as the error.
func (s *RunService) Execute(ctx context.Context, tasks []batch.Task, source string) (*db.BatchRun, batch.Outcome, error) {
	run, err := s.createRun(tasks, source)
	if err != nil {
		return nil, batch.Outcome{}, err
	}
	outcome, err := s.finish(ctx, run, tasks)
	return run, outcome, err
}

// ExecuteAsync records the run immediately and finishes it in the background.
func (s *RunService) ExecuteAsync(tasks []batch.Task, source string) (*db.BatchRun, error) {
	run, err := s.createRun(tasks, source)
	if err != nil {
		return nil, err
	}
	go func() {
		if _, err := s.finish(context.Background(), run, tasks); err != nil {
			s.Log.Error("background batch run failed",
				zap.String("run_id", run.RunID), zap.Error(err))
		}
	}()
	return run, nil
}

func (s *RunService) createRun(tasks []batch.Task, source string) (*db.BatchRun, error) {
	run := db.BatchRun{
		RunID:      uuid.NewString(),
		Status:     db.RunStatusRunning,
		Source:     source,
		TotalTasks: len(tasks),
	}
	if err := s.DB.Create(&run).Error; err != nil {
		return nil, fmt.Errorf("create batch run record: %w", err)
	}
	s.Log.Info("batch run started",
		zap.String("run_id", run.RunID), zap.String("source", source), zap.Int("tasks", len(tasks)))
	return &run, nil
}

func (s *RunService) finish(ctx context.Context, run *db.BatchRun, tasks []batch.Task) (batch.Outcome, error) {
	outcome := s.Orch.Run(ctx, tasks)
	now := time.Now()

	resultsPath, err := batch.SaveResults(s.ResultsDir, outcome, now)
	if err != nil {
		s.failRun(run, outcome, err)
		return outcome, err
	}

	reportPath, err := report.Write(s.ResultsDir, outcome, now)
	if err != nil {
		// the report is derived from the results file, losing it is not fatal
		s.Log.Warn("failed to write quality report", zap.String("run_id", run.RunID), zap.Error(err))
	}

	s.persistRecords(run.ID, outcome)

	updates := map[string]interface{}{
		"status":                db.RunStatusCompleted,
		"successful_count":      outcome.Summary.SuccessfulCount,
		"failed_count":          outcome.Summary.FailedCount,
		"low_quality_count":     outcome.Summary.LowQualityCount,
		"success_rate":          outcome.Summary.SuccessRate,
		"avg_quality_score":     outcome.Summary.AvgQualityScore,
		"total_generation_time": outcome.Summary.TotalGenerationTime,
		"results_path":          resultsPath,
		"report_path":           reportPath,
	}
	if err := s.DB.Model(run).Updates(updates).Error; err != nil {
		s.Log.Error("failed to finalize batch run record", zap.String("run_id", run.RunID), zap.Error(err))
	}

	s.publishCompletion(ctx, run.RunID, db.RunStatusCompleted, outcome, resultsPath, reportPath, "")
	s.Log.Info("batch run completed",
		zap.String("run_id", run.RunID),
		zap.Int("successful", outcome.Summary.SuccessfulCount),
		zap.Int("failed", outcome.Summary.FailedCount),
		zap.Float64("avg_quality", outcome.Summary.AvgQualityScore))
	return outcome, nil
}

// ExecuteTemplate renders a stored template and runs it as a single-task
// batch using the template's optimal parameters.
func (s *RunService) ExecuteTemplate(ctx context.Context, stored db.PromptTemplate, vars map[string]string, source string) (*db.BatchRun, batch.Outcome, error) {
	tmpl, err := stored.ToDomain()
	if err != nil {
		return nil, batch.Outcome{}, fmt.Errorf("decode template %q: %w", stored.Name, err)
	}
	prompt, err := tmpl.Render(vars)
	if err != nil {
		return nil, batch.Outcome{}, err
	}
	task := batch.NewTask(prompt, tmpl.OptimalParams, 0, map[string]string{"template": tmpl.Name})
	task.TemplateName = tmpl.Name
	return s.Execute(ctx, []batch.Task{task}, source)
}

// GetRun fetches one run with its generation records.
func (s *RunService) GetRun(runID string) (*db.BatchRun, error) {
	var run db.BatchRun
	if err := s.DB.Preload("Records").Where("run_id = ?", runID).First(&run).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *RunService) ListRuns(limit int) ([]db.BatchRun, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []db.BatchRun
	err := s.DB.Order("created_at DESC").Limit(limit).Find(&runs).Error
	return runs, err
}

func (s *RunService) failRun(run *db.BatchRun, outcome batch.Outcome, cause error) {
	s.Log.Error("batch run failed", zap.String("run_id", run.RunID), zap.Error(cause))
	updates := map[string]interface{}{
		"status":        db.RunStatusFailed,
		"error_message": cause.Error(),
	}
	if err := s.DB.Model(run).Updates(updates).Error; err != nil {
		s.Log.Error("failed to mark batch run as failed", zap.String("run_id", run.RunID), zap.Error(err))
	}
	s.publishCompletion(context.Background(), run.RunID, db.RunStatusFailed, outcome, "", "", cause.Error())
}

func (s *RunService) persistRecords(runID uint, outcome batch.Outcome) {
	store := func(results []batch.Result, disposition string) {
		for _, r := range results {
			rec := db.RecordFromResult(runID, r, disposition)
			if err := s.DB.Create(&rec).Error; err != nil {
				s.Log.Error("failed to persist generation record",
					zap.String("task_id", r.TaskID), zap.Error(err))
			}
		}
	}
	store(outcome.Accepted, db.DispositionAccepted)
	store(outcome.LowQuality, db.DispositionLowQuality)
	store(outcome.Failed, db.DispositionFailed)
}

func (s *RunService) publishCompletion(ctx context.Context, runID, status string, outcome batch.Outcome, resultsPath, reportPath, errMsg string) {
	payload := events.BatchCompletedPayload{
		RunID:           runID,
		Status:          status,
		TotalTasks:      outcome.Summary.TotalTasks,
		SuccessfulCount: outcome.Summary.SuccessfulCount,
		FailedCount:     outcome.Summary.FailedCount,
		LowQualityCount: outcome.Summary.LowQualityCount,
		SuccessRate:     outcome.Summary.SuccessRate,
		AvgQualityScore: outcome.Summary.AvgQualityScore,
		ResultsPath:     resultsPath,
		ReportPath:      reportPath,
		Error:           errMsg,
	}
	if err := s.Producer.PublishBatchCompleted(ctx, payload); err != nil {
		s.Log.Warn("failed to publish completion event", zap.String("run_id", runID), zap.Error(err))
	}
}
