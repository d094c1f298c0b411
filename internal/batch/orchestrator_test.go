package batch

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type generatorFunc func(ctx context.Context, task Task) Result

func (f generatorFunc) Generate(ctx context.Context, task Task) Result {
	return f(ctx, task)
}

func successResult(task Task, text string) Result {
	return Result{
		TaskID:         task.ID,
		Prompt:         task.Prompt,
		GeneratedText:  text,
		Parameters:     task.Parameters,
		GenerationTime: 0.5,
		TokenCount:     len(strings.Fields(text)),
		Metadata:       task.Metadata,
		Timestamp:      time.Now().Format(time.RFC3339),
		Success:        true,
	}
}

// scoreByMarker lets tests steer classification: generated text containing
// "good" scores above the default threshold, everything else below it.
func scoreByMarker(text, _ string) float64 {
	if strings.Contains(text, "good") {
		return 0.9
	}
	return 0.2
}

func TestRunEmptyBatch(t *testing.T) {
	o := NewOrchestrator(generatorFunc(func(_ context.Context, task Task) Result {
		t.Fatal("generator must not be called for an empty batch")
		return Result{}
	}), Config{}, nil)

	out := o.Run(context.Background(), nil)

	assert.Equal(t, 0, out.Summary.TotalTasks)
	assert.Equal(t, 0, out.Summary.SuccessfulCount)
	assert.Equal(t, 0, out.Summary.FailedCount)
	assert.Equal(t, 0, out.Summary.LowQualityCount)
	assert.Equal(t, 0.0, out.Summary.SuccessRate)
	assert.Empty(t, out.All)
}

func TestRunAcceptsHighQualityResults(t *testing.T) {
	o := NewOrchestrator(generatorFunc(func(_ context.Context, task Task) Result {
		return successResult(task, "good generated text")
	}), Config{MaxConcurrent: 2}, nil)
	o.score = scoreByMarker

	tasks := []Task{
		NewTask("prompt one", DefaultParams(), 1, nil),
		NewTask("prompt two", DefaultParams(), 1, nil),
	}
	out := o.Run(context.Background(), tasks)

	assert.Len(t, out.Accepted, 2)
	assert.Empty(t, out.Failed)
	assert.Empty(t, out.LowQuality)
	assert.Equal(t, 100.0, out.Summary.SuccessRate)
	assert.InDelta(t, 0.9, out.Summary.AvgQualityScore, 1e-9)
	// an accepted result never shows up in another partition
	for _, acc := range out.Accepted {
		for _, f := range out.Failed {
			assert.NotEqual(t, acc.TaskID, f.TaskID)
		}
		for _, lq := range out.LowQuality {
			assert.NotEqual(t, acc.TaskID, lq.TaskID)
		}
	}
}

func TestRunServerErrorsAreNotRetried(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	o := NewOrchestrator(generatorFunc(func(_ context.Context, task Task) Result {
		mu.Lock()
		calls++
		mu.Unlock()
		return FailedResult(task, 100*time.Millisecond, "completion endpoint returned status 500")
	}), Config{MaxRetries: 2}, nil)

	out := o.Run(context.Background(), []Task{NewTask("p", DefaultParams(), 1, nil)})

	assert.Equal(t, 1, calls, "transport/server failures must not be retried")
	assert.Len(t, out.Failed, 1)
	assert.Contains(t, out.Failed[0].Error, "500")
	assert.False(t, out.Failed[0].Success)
	assert.Equal(t, 0.0, out.Summary.SuccessRate)
}

func TestRunRetryBudgetExhausted(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	o := NewOrchestrator(generatorFunc(func(_ context.Context, task Task) Result {
		mu.Lock()
		calls++
		mu.Unlock()
		return successResult(task, "weak text")
	}), Config{MaxRetries: 2}, nil)
	o.score = scoreByMarker

	out := o.Run(context.Background(), []Task{NewTask("p", DefaultParams(), 1, nil)})

	// one original attempt plus exactly MaxRetries retry rounds
	assert.Equal(t, 3, calls)
	assert.Len(t, out.All, 3)
	assert.Empty(t, out.Accepted)
	// every low-quality attempt stays visible, none silently dropped
	assert.Len(t, out.LowQuality, 3)
	assert.Equal(t, 1, out.Summary.TotalTasks)
	assert.Equal(t, 0.0, out.Summary.SuccessRate)
}

func TestRunRetryRecovers(t *testing.T) {
	var mu sync.Mutex
	attempt := 0
	o := NewOrchestrator(generatorFunc(func(_ context.Context, task Task) Result {
		mu.Lock()
		attempt++
		n := attempt
		mu.Unlock()
		if n == 1 {
			return successResult(task, "weak text")
		}
		return successResult(task, "good text")
	}), Config{MaxRetries: 1}, nil)
	o.score = scoreByMarker

	out := o.Run(context.Background(), []Task{NewTask("p", DefaultParams(), 1, nil)})

	assert.Len(t, out.Accepted, 1)
	assert.True(t, strings.HasSuffix(out.Accepted[0].TaskID, "_retry"))
	assert.Len(t, out.LowQuality, 1, "the original low-quality attempt remains recorded")
	assert.Equal(t, 1, out.Summary.TotalTasks)
	assert.Equal(t, 1, out.Summary.SuccessfulCount, "retries never double-count a task")
	assert.Equal(t, 100.0, out.Summary.SuccessRate)
}

func TestRunRetryLowersTemperature(t *testing.T) {
	var mu sync.Mutex
	var seen []float64
	o := NewOrchestrator(generatorFunc(func(_ context.Context, task Task) Result {
		mu.Lock()
		seen = append(seen, task.Parameters.Temperature)
		mu.Unlock()
		return successResult(task, "weak text")
	}), Config{MaxRetries: 3}, nil)
	o.score = scoreByMarker

	params := DefaultParams() // temperature 0.7
	o.Run(context.Background(), []Task{NewTask("p", params, 1, nil)})

	assert.Equal(t, []float64{0.7, 0.5, 0.3, 0.3}, seen, "temperature drops by 0.2 per round with a 0.3 floor")
	assert.Equal(t, 0.7, params.Temperature, "the original parameters are never mutated")
}

func TestRunDispatchFollowsPriority(t *testing.T) {
	var mu sync.Mutex
	var order []string
	o := NewOrchestrator(generatorFunc(func(_ context.Context, task Task) Result {
		mu.Lock()
		order = append(order, task.Prompt)
		mu.Unlock()
		return successResult(task, "good text")
	}), Config{MaxConcurrent: 1}, nil)
	o.score = scoreByMarker

	tasks := []Task{
		NewTask("low", DefaultParams(), 1, nil),
		NewTask("high", DefaultParams(), 3, nil),
		NewTask("mid", DefaultParams(), 2, nil),
	}
	o.Run(context.Background(), tasks)

	assert.Equal(t, []string{"high", "mid", "low"}, order)
}

func TestRunPanickingGeneratorBecomesFailedResult(t *testing.T) {
	o := NewOrchestrator(generatorFunc(func(_ context.Context, task Task) Result {
		panic("malformed response")
	}), Config{}, nil)

	out := o.Run(context.Background(), []Task{NewTask("p", DefaultParams(), 1, nil)})

	assert.Len(t, out.Failed, 1)
	assert.Contains(t, out.Failed[0].Error, "malformed response")
	assert.Equal(t, 0, out.Summary.SuccessfulCount)
}

func TestRetryTaskDerivation(t *testing.T) {
	task := NewTask("prompt", DefaultParams(), 2, map[string]string{"k": "v"})
	res := successResult(task, "text")

	retry := RetryTask(res)

	assert.Equal(t, task.ID+"_retry", retry.ID)
	assert.Equal(t, task.Prompt, retry.Prompt)
	assert.Equal(t, map[string]string{"k": "v"}, retry.Metadata)
	assert.InDelta(t, 0.5, retry.Parameters.Temperature, 1e-9)
	assert.Equal(t, task.Parameters.TopP, retry.Parameters.TopP)
}

func TestNewTaskIDsAreUniqueWithinBatch(t *testing.T) {
	seen := map[string]struct{}{}
	for i := 0; i < 100; i++ {
		task := NewTask("identical prompt", DefaultParams(), 1, nil)
		_, dup := seen[task.ID]
		assert.False(t, dup, "duplicate task id %s", task.ID)
		seen[task.ID] = struct{}{}
		assert.Len(t, task.ID, 8)
	}
}
