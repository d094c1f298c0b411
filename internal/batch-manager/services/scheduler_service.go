package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"tgw-batch-service/internal/batch-manager/db"
)

const cronTemplateTag = "cron_template_batch"

// SchedulerService turns prompt templates with cron expressions into
// recurring batch runs.
type SchedulerService struct {
	DB         *gorm.DB
	Scheduler  gocron.Scheduler
	Runs       *RunService
	Log        *zap.Logger
	appContext context.Context
}

func NewSchedulerService(ctx context.Context, gormDB *gorm.DB, runs *RunService, log *zap.Logger) (*SchedulerService, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &SchedulerService{DB: gormDB, Scheduler: s, Runs: runs, Log: log, appContext: ctx}, nil
}

func (s *SchedulerService) Start() {
	s.Scheduler.Start()
	s.LoadAndScheduleTemplates()
	s.Log.Info("scheduler started")
}

func (s *SchedulerService) Stop() {
	if err := s.Scheduler.Shutdown(); err != nil {
		s.Log.Error("error shutting down gocron scheduler", zap.Error(err))
	} else {
		s.Log.Info("gocron scheduler shut down")
	}
}

// LoadAndScheduleTemplates replaces all cron jobs with the current set of
// cron-bearing prompt templates.
func (s *SchedulerService) LoadAndScheduleTemplates() {
	var templates []db.PromptTemplate
	if err := s.DB.Where("cron_expression IS NOT NULL AND cron_expression != ''").Find(&templates).Error; err != nil {
		s.Log.Error("error fetching prompt templates for scheduling", zap.Error(err))
		return
	}

	s.Scheduler.RemoveByTags(cronTemplateTag)

	for _, tmpl := range templates {
		template := tmpl
		job, err := s.Scheduler.NewJob(
			gocron.CronJob(template.CronExpression, false),
			gocron.NewTask(func(t db.PromptTemplate) { s.executeScheduledBatch(t) }, template),
			gocron.WithName(fmt.Sprintf("template_%d", template.ID)),
			gocron.WithTags(cronTemplateTag, fmt.Sprintf("template_id:%d", template.ID)),
		)
		if err != nil {
			s.Log.Error("error scheduling template batch",
				zap.Uint("template_id", template.ID), zap.String("name", template.Name),
				zap.String("cron", template.CronExpression), zap.Error(err))
			continue
		}
		if nextRun, err := job.NextRun(); err == nil {
			s.Log.Info("scheduled template batch",
				zap.Uint("template_id", template.ID), zap.String("name", template.Name),
				zap.String("cron", template.CronExpression),
				zap.Time("next_run", nextRun))
		}
	}
	s.Log.Info("cron jobs loaded", zap.Int("count", len(s.Scheduler.Jobs())))
}

// RefreshScheduledJobs reloads the cron jobs after templates change.
func (s *SchedulerService) RefreshScheduledJobs() { s.LoadAndScheduleTemplates() }

func (s *SchedulerService) executeScheduledBatch(template db.PromptTemplate) {
	s.Log.Info("cron job triggered for prompt template",
		zap.Uint("template_id", template.ID), zap.String("name", template.Name))

	vars := map[string]string{}
	if template.RenderVars != "" {
		if err := json.Unmarshal([]byte(template.RenderVars), &vars); err != nil {
			s.Log.Error("invalid render_vars on scheduled template",
				zap.Uint("template_id", template.ID), zap.Error(err))
			return
		}
	}

	runCtx, cancel := context.WithTimeout(s.appContext, 30*time.Minute)
	defer cancel()
	run, _, err := s.Runs.ExecuteTemplate(runCtx, template, vars, "scheduler")
	if err != nil {
		s.Log.Error("scheduled batch run failed",
			zap.Uint("template_id", template.ID), zap.Error(err))
		return
	}
	s.Log.Info("scheduled batch run finished",
		zap.Uint("template_id", template.ID), zap.String("run_id", run.RunID))
}
