package batch

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"tgw-batch-service/internal/quality"
)

// Generator performs one generation attempt. Implementations must never
// panic or leak errors: every failure is reported as a failed Result.
type Generator interface {
	Generate(ctx context.Context, task Task) Result
}

// Config controls a batch run. Zero fields fall back to the documented
// defaults at construction time.
type Config struct {
	MaxConcurrent    int     // worker pool width, default 3
	QualityThreshold float64 // acceptance threshold, default 0.6
	MaxRetries       int     // retry rounds for low-quality results, default 1
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 3
	}
	if c.QualityThreshold <= 0 {
		c.QualityThreshold = 0.6
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	return c
}

// Orchestrator runs tasks through a fixed-size worker pool, scores successful
// generations, retries low-quality ones with adjusted parameters and
// aggregates the outcome.
type Orchestrator struct {
	gen   Generator
	cfg   Config
	score func(text, prompt string) float64
	log   *zap.Logger
}

func NewOrchestrator(gen Generator, cfg Config, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		gen: gen,
		cfg: cfg.withDefaults(),
		score: func(text, prompt string) float64 {
			return quality.Evaluate(text, prompt).Overall
		},
		log: log,
	}
}

// Run executes the batch and returns the partitioned outcome. Per-task
// failures never abort the run; an empty task list yields an all-zero
// summary. Completion order within a round is unspecified; only dispatch
// order follows descending priority.
func (o *Orchestrator) Run(ctx context.Context, tasks []Task) Outcome {
	out := Outcome{
		Accepted:   []Result{},
		LowQuality: []Result{},
		Failed:     []Result{},
		All:        []Result{},
	}
	out.Summary.TotalTasks = len(tasks)
	if len(tasks) == 0 {
		return out
	}

	ordered := make([]Task, len(tasks))
	copy(ordered, tasks)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority > ordered[j].Priority
	})

	o.log.Info("starting batch generation",
		zap.Int("tasks", len(ordered)),
		zap.Int("workers", o.cfg.MaxConcurrent),
		zap.Float64("quality_threshold", o.cfg.QualityThreshold))

	pendingRetry := o.runRound(ctx, ordered, &out)

	for round := 1; round <= o.cfg.MaxRetries && len(pendingRetry) > 0; round++ {
		retryTasks := make([]Task, 0, len(pendingRetry))
		for _, res := range pendingRetry {
			retryTasks = append(retryTasks, RetryTask(res))
		}
		o.log.Info("retrying low-quality results",
			zap.Int("round", round),
			zap.Int("count", len(retryTasks)))
		pendingRetry = o.runRound(ctx, retryTasks, &out)
	}

	o.aggregate(&out)
	o.log.Info("batch generation finished",
		zap.Int("accepted", out.Summary.SuccessfulCount),
		zap.Int("failed", out.Summary.FailedCount),
		zap.Int("low_quality", out.Summary.LowQualityCount),
		zap.Float64("success_rate", out.Summary.SuccessRate))
	return out
}

// runRound pushes tasks through the worker pool, classifies each result into
// the outcome partitions and returns the low-quality results eligible for
// another retry round. Appends to the shared outcome are serialized by mu.
func (o *Orchestrator) runRound(ctx context.Context, tasks []Task, out *Outcome) []Result {
	workers := o.cfg.MaxConcurrent
	if workers > len(tasks) {
		workers = len(tasks)
	}

	taskCh := make(chan Task)
	var (
		mu       sync.Mutex
		retrySet []Result
		wg       sync.WaitGroup
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range taskCh {
				res := o.attempt(ctx, task)

				mu.Lock()
				out.All = append(out.All, res)
				switch {
				case !res.Success:
					out.Failed = append(out.Failed, res)
				case res.QualityScore >= o.cfg.QualityThreshold:
					out.Accepted = append(out.Accepted, res)
				default:
					out.LowQuality = append(out.LowQuality, res)
					retrySet = append(retrySet, res)
				}
				mu.Unlock()
			}
		}()
	}

	for _, t := range tasks {
		taskCh <- t
	}
	close(taskCh)
	wg.Wait()

	return retrySet
}

// attempt runs one generation and scores it. A panicking generator is
// converted into a failed Result so that a single task can never take down
// the batch.
func (o *Orchestrator) attempt(ctx context.Context, task Task) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("generation attempt panicked",
				zap.String("task_id", task.ID),
				zap.Any("panic", r))
			res = FailedResult(task, 0, fmt.Sprintf("generation panicked: %v", r))
		}
	}()

	res = o.gen.Generate(ctx, task)
	if res.Success {
		res.QualityScore = o.score(res.GeneratedText, task.Prompt)
	}
	return res
}

func (o *Orchestrator) aggregate(out *Outcome) {
	s := &out.Summary
	s.SuccessfulCount = len(out.Accepted)
	s.FailedCount = len(out.Failed)
	s.LowQualityCount = len(out.LowQuality)

	if s.TotalTasks > 0 {
		s.SuccessRate = float64(s.SuccessfulCount) / float64(s.TotalTasks) * 100
	}
	if len(out.Accepted) > 0 {
		var sum float64
		for _, r := range out.Accepted {
			sum += r.QualityScore
		}
		s.AvgQualityScore = sum / float64(len(out.Accepted))
	}
	if len(out.All) > 0 {
		var total float64
		for _, r := range out.All {
			total += r.GenerationTime
		}
		s.TotalGenerationTime = total
		s.AvgGenerationTime = total / float64(len(out.All))
	}
}
