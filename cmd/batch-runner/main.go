// batch-runner is the one-shot CLI: it reads prompts from a file, runs them
// as a single batch against the completion API and writes the results file
// and quality report without touching the database.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"tgw-batch-service/internal/batch"
	"tgw-batch-service/internal/config"
	"tgw-batch-service/internal/generation"
	"tgw-batch-service/internal/logging"
	"tgw-batch-service/internal/report"
)

func main() {
	promptsPath := flag.String("prompts", "", "path to prompts file, one prompt per line (# starts a comment)")
	paramsJSON := flag.String("params", "", "generation parameters as JSON, defaults applied when empty")
	priority := flag.Int("priority", 0, "task priority, higher runs first")
	outputDir := flag.String("output", "", "results directory, overrides batch.results_dir")
	flag.Parse()

	cfg := config.New()
	logger := logging.Build(cfg.Logger)
	defer logger.Sync()

	if *promptsPath == "" {
		fmt.Fprintln(os.Stderr, "usage: batch-runner -prompts <file> [-params <json>] [-priority <n>] [-output <dir>]")
		os.Exit(2)
	}

	prompts, err := readPrompts(*promptsPath)
	if err != nil {
		logger.Fatal("failed to read prompts file", zap.String("path", *promptsPath), zap.Error(err))
	}
	if len(prompts) == 0 {
		logger.Fatal("prompts file contains no prompts", zap.String("path", *promptsPath))
	}

	params := batch.DefaultParams()
	if *paramsJSON != "" {
		if err := json.Unmarshal([]byte(*paramsJSON), &params); err != nil {
			logger.Fatal("invalid -params JSON", zap.Error(err))
		}
	}

	resultsDir := cfg.Batch.ResultsDir
	if *outputDir != "" {
		resultsDir = *outputDir
	}

	client := generation.NewClient(cfg.API.BaseURL, cfg.API.RequestTimeout, logger)
	ctx := context.Background()
	if !client.HealthCheck(ctx) {
		logger.Fatal("completion API is not reachable", zap.String("base_url", cfg.API.BaseURL))
	}

	orch := batch.NewOrchestrator(client, batch.Config{
		MaxConcurrent:    cfg.Batch.MaxConcurrent,
		QualityThreshold: cfg.Batch.QualityThreshold,
		MaxRetries:       cfg.Batch.MaxRetries,
	}, logger)

	tasks := make([]batch.Task, 0, len(prompts))
	for _, prompt := range prompts {
		tasks = append(tasks, batch.NewTask(prompt, params, *priority, nil))
	}

	outcome := orch.Run(ctx, tasks)
	now := time.Now()

	resultsPath, err := batch.SaveResults(resultsDir, outcome, now)
	if err != nil {
		logger.Fatal("failed to save results", zap.Error(err))
	}
	reportPath, err := report.Write(resultsDir, outcome, now)
	if err != nil {
		logger.Error("failed to write quality report", zap.Error(err))
	}

	s := outcome.Summary
	fmt.Printf("batch finished: %d tasks, %d ok, %d failed, %d low quality\n",
		s.TotalTasks, s.SuccessfulCount, s.FailedCount, s.LowQualityCount)
	fmt.Printf("success rate %.1f%%, avg quality %.3f, total generation time %.1fs\n",
		s.SuccessRate, s.AvgQualityScore, s.TotalGenerationTime)
	fmt.Println("results:", resultsPath)
	if reportPath != "" {
		fmt.Println("report: ", reportPath)
	}

	if s.SuccessfulCount == 0 && s.TotalTasks > 0 {
		os.Exit(1)
	}
}

// readPrompts loads one prompt per non-empty line, skipping # comments.
func readPrompts(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var prompts []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		prompts = append(prompts, line)
	}
	return prompts, scanner.Err()
}
