package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"tgw-batch-service/internal/batch"
	"tgw-batch-service/internal/batch-manager/db"
	"tgw-batch-service/internal/config"
)

// goodCompletion reliably clears the default 0.6 quality threshold.
const goodCompletion = "機器學習是一種人工智慧技術，讓電腦能夠從資料中自動學習規律。" +
	"首先，監督式學習使用標註資料訓練模型。其次，非監督式學習從未標註資料中發現結構。" +
	"因此，機器學習被廣泛應用於影像辨識、自然語言處理等領域。" +
	"總之，機器學習是現代人工智慧的核心基礎。"

type stubGenerator struct {
	text string
	fail bool
}

func (g stubGenerator) Generate(_ context.Context, task batch.Task) batch.Result {
	if g.fail {
		return batch.FailedResult(task, 10*time.Millisecond, "completion endpoint returned status 500")
	}
	return batch.Result{
		TaskID:         task.ID,
		Prompt:         task.Prompt,
		GeneratedText:  g.text,
		Parameters:     task.Parameters,
		GenerationTime: 0.01,
		TokenCount:     42,
		Timestamp:      time.Now().Format(time.RFC3339),
		Success:        true,
	}
}

func setupServiceDB(t *testing.T) (*gorm.DB, string) {
	testDBFile := fmt.Sprintf("test_services_%d.db", time.Now().UnixNano())
	_ = os.Remove(testDBFile)

	gormDB, err := gorm.Open(sqlite.Open(testDBFile), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	if err := gormDB.AutoMigrate(&db.PromptTemplate{}, &db.BatchRun{}, &db.GenerationRecord{}); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	return gormDB, testDBFile
}

func teardownServiceDB(gormDB *gorm.DB, file string, t *testing.T) {
	if sqlDB, err := gormDB.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			t.Logf("Warning: could not close test DB: %v", err)
		}
	}
	if err := os.Remove(file); err != nil && !os.IsNotExist(err) {
		t.Logf("Warning: could not remove test DB file: %v", err)
	}
}

func newTestRunService(t *testing.T, gormDB *gorm.DB, gen batch.Generator, resultsDir string) *RunService {
	cfg := &config.Batch{
		ResultsDir:       resultsDir,
		MaxConcurrent:    2,
		QualityThreshold: 0.6,
		MaxRetries:       1,
	}
	return NewRunService(gormDB, gen, cfg, nil, nil)
}

func TestExecutePersistsRunAndRecords(t *testing.T) {
	gormDB, file := setupServiceDB(t)
	defer teardownServiceDB(gormDB, file, t)
	resultsDir := filepath.Join(t.TempDir(), "results")

	svc := newTestRunService(t, gormDB, stubGenerator{text: goodCompletion}, resultsDir)
	tasks := []batch.Task{
		batch.NewTask("解釋什麼是機器學習", batch.DefaultParams(), 1, nil),
		batch.NewTask("什麼是深度學習", batch.DefaultParams(), 0, nil),
	}

	run, outcome, err := svc.Execute(context.Background(), tasks, "api")

	assert.NoError(t, err)
	assert.Equal(t, 2, outcome.Summary.SuccessfulCount)
	assert.Equal(t, 0, outcome.Summary.FailedCount)

	var stored db.BatchRun
	assert.NoError(t, gormDB.Preload("Records").Where("run_id = ?", run.RunID).First(&stored).Error)
	assert.Equal(t, db.RunStatusCompleted, stored.Status)
	assert.Equal(t, "api", stored.Source)
	assert.Equal(t, 2, stored.TotalTasks)
	assert.Equal(t, 2, stored.SuccessfulCount)
	assert.InDelta(t, 100.0, stored.SuccessRate, 1e-9)
	assert.Len(t, stored.Records, 2)
	assert.Equal(t, db.DispositionAccepted, stored.Records[0].Disposition)

	// results and report files exist on disk
	assert.FileExists(t, stored.ResultsPath)
	assert.FileExists(t, stored.ReportPath)
	loaded, err := batch.LoadResults(stored.ResultsPath)
	assert.NoError(t, err)
	assert.Equal(t, outcome.Summary, loaded.Summary)
}

func TestExecuteRecordsFailures(t *testing.T) {
	gormDB, file := setupServiceDB(t)
	defer teardownServiceDB(gormDB, file, t)

	svc := newTestRunService(t, gormDB, stubGenerator{fail: true}, filepath.Join(t.TempDir(), "results"))
	run, outcome, err := svc.Execute(context.Background(), []batch.Task{
		batch.NewTask("p", batch.DefaultParams(), 0, nil),
	}, "api")

	assert.NoError(t, err) // per-task failures never abort the run
	assert.Equal(t, 1, outcome.Summary.FailedCount)
	assert.Equal(t, 0.0, outcome.Summary.SuccessRate)

	stored, err := svc.GetRun(run.RunID)
	assert.NoError(t, err)
	assert.Equal(t, db.RunStatusCompleted, stored.Status)
	assert.Len(t, stored.Records, 1)
	assert.Equal(t, db.DispositionFailed, stored.Records[0].Disposition)
	assert.Contains(t, stored.Records[0].ErrorMessage, "500")
}

func TestExecuteFailsWhenResultsUnwritable(t *testing.T) {
	gormDB, file := setupServiceDB(t)
	defer teardownServiceDB(gormDB, file, t)

	// a regular file where the results directory should be
	blocker := filepath.Join(t.TempDir(), "blocker")
	assert.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	svc := newTestRunService(t, gormDB, stubGenerator{text: goodCompletion}, filepath.Join(blocker, "results"))
	run, _, err := svc.Execute(context.Background(), []batch.Task{
		batch.NewTask("p", batch.DefaultParams(), 0, nil),
	}, "api")

	assert.Error(t, err)
	stored, getErr := svc.GetRun(run.RunID)
	assert.NoError(t, getErr)
	assert.Equal(t, db.RunStatusFailed, stored.Status)
	assert.NotEmpty(t, stored.ErrorMessage)
}

func TestExecuteTemplate(t *testing.T) {
	gormDB, file := setupServiceDB(t)
	defer teardownServiceDB(gormDB, file, t)

	stored := db.PromptTemplate{
		Name:          "explain_topic",
		Category:      "educational",
		Body:          "解釋什麼是{topic}",
		Variables:     `["topic"]`,
		OptimalParams: `{"temperature":0.5,"top_p":0.9,"max_new_tokens":256,"repetition_penalty":1.1}`,
	}
	assert.NoError(t, gormDB.Create(&stored).Error)

	svc := newTestRunService(t, gormDB, stubGenerator{text: goodCompletion}, filepath.Join(t.TempDir(), "results"))
	gotRun, gotOutcome, execErr := svc.ExecuteTemplate(context.Background(), stored, map[string]string{"topic": "機器學習"}, "scheduler")

	assert.NoError(t, execErr)
	assert.Equal(t, "scheduler", gotRun.Source)
	assert.Len(t, gotOutcome.All, 1)
	assert.Equal(t, "解釋什麼是機器學習", gotOutcome.All[0].Prompt)
	assert.InDelta(t, 0.5, gotOutcome.All[0].Parameters.Temperature, 1e-9)
}

func TestExecuteTemplateMissingVariable(t *testing.T) {
	gormDB, file := setupServiceDB(t)
	defer teardownServiceDB(gormDB, file, t)

	stored := db.PromptTemplate{Name: "needs_var", Body: "解釋{topic}"}
	assert.NoError(t, gormDB.Create(&stored).Error)

	svc := newTestRunService(t, gormDB, stubGenerator{text: goodCompletion}, filepath.Join(t.TempDir(), "results"))
	_, _, err := svc.ExecuteTemplate(context.Background(), stored, nil, "scheduler")

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "topic")
}

func TestListRuns(t *testing.T) {
	gormDB, file := setupServiceDB(t)
	defer teardownServiceDB(gormDB, file, t)

	svc := newTestRunService(t, gormDB, stubGenerator{text: goodCompletion}, filepath.Join(t.TempDir(), "results"))
	for i := 0; i < 3; i++ {
		_, _, err := svc.Execute(context.Background(), []batch.Task{
			batch.NewTask(fmt.Sprintf("prompt %d", i), batch.DefaultParams(), 0, nil),
		}, "api")
		assert.NoError(t, err)
	}

	runs, err := svc.ListRuns(2)
	assert.NoError(t, err)
	assert.Len(t, runs, 2)
}
