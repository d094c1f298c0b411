// Package report renders batch outcomes as Markdown quality reports.
package report

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"tgw-batch-service/internal/batch"
)

// bucket is one quality-score band of the distribution table.
type bucket struct {
	label string
	lo    float64
	hi    float64 // exclusive, except the top band
}

var buckets = []bucket{
	{"優秀", 0.9, 1.01},
	{"良好", 0.8, 0.9},
	{"尚可", 0.7, 0.8},
	{"需改善", 0.6, 0.7},
	{"品質不佳", 0.0, 0.6},
}

// Stats summarises the quality scores of the scored results.
type Stats struct {
	Mean   float64
	Median float64
	Min    float64
	Max    float64
	StdDev float64
}

// ScoreStats computes distribution statistics over the successful results.
// All fields are zero when no result carries a score.
func ScoreStats(results []batch.Result) Stats {
	var scores []float64
	for _, r := range results {
		if r.Success {
			scores = append(scores, r.QualityScore)
		}
	}
	if len(scores) == 0 {
		return Stats{}
	}
	sort.Float64s(scores)

	sum := 0.0
	for _, s := range scores {
		sum += s
	}
	mean := sum / float64(len(scores))

	variance := 0.0
	for _, s := range scores {
		variance += (s - mean) * (s - mean)
	}
	variance /= float64(len(scores))

	mid := len(scores) / 2
	median := scores[mid]
	if len(scores)%2 == 0 {
		median = (scores[mid-1] + scores[mid]) / 2
	}

	return Stats{
		Mean:   mean,
		Median: median,
		Min:    scores[0],
		Max:    scores[len(scores)-1],
		StdDev: math.Sqrt(variance),
	}
}

// Markdown renders the full quality report for one batch outcome.
func Markdown(outcome batch.Outcome, generatedAt time.Time) string {
	var b strings.Builder
	s := outcome.Summary
	stats := ScoreStats(outcome.All)

	fmt.Fprintf(&b, "# 批次生成品質報告\n\n")
	fmt.Fprintf(&b, "生成時間：%s\n\n", generatedAt.Format("2006-01-02 15:04:05"))

	fmt.Fprintf(&b, "## 批次摘要\n\n")
	fmt.Fprintf(&b, "| 指標 | 數值 |\n|------|------|\n")
	fmt.Fprintf(&b, "| 總任務數 | %d |\n", s.TotalTasks)
	fmt.Fprintf(&b, "| 成功 | %d |\n", s.SuccessfulCount)
	fmt.Fprintf(&b, "| 失敗 | %d |\n", s.FailedCount)
	fmt.Fprintf(&b, "| 低品質 | %d |\n", s.LowQualityCount)
	fmt.Fprintf(&b, "| 成功率 | %.1f%% |\n", s.SuccessRate)
	fmt.Fprintf(&b, "| 平均品質分數 | %.3f |\n", s.AvgQualityScore)
	fmt.Fprintf(&b, "| 總生成時間 | %.2f 秒 |\n", s.TotalGenerationTime)
	fmt.Fprintf(&b, "| 平均生成時間 | %.2f 秒 |\n\n", s.AvgGenerationTime)

	fmt.Fprintf(&b, "## 品質分數統計\n\n")
	fmt.Fprintf(&b, "| 統計量 | 數值 |\n|--------|------|\n")
	fmt.Fprintf(&b, "| 平均值 | %.3f |\n", stats.Mean)
	fmt.Fprintf(&b, "| 中位數 | %.3f |\n", stats.Median)
	fmt.Fprintf(&b, "| 最小值 | %.3f |\n", stats.Min)
	fmt.Fprintf(&b, "| 最大值 | %.3f |\n", stats.Max)
	fmt.Fprintf(&b, "| 標準差 | %.3f |\n\n", stats.StdDev)

	fmt.Fprintf(&b, "## 品質分佈\n\n")
	fmt.Fprintf(&b, "| 等級 | 分數區間 | 數量 |\n|------|----------|------|\n")
	for _, bk := range buckets {
		count := 0
		for _, r := range outcome.All {
			if r.Success && r.QualityScore >= bk.lo && r.QualityScore < bk.hi {
				count++
			}
		}
		fmt.Fprintf(&b, "| %s | %.1f - %.1f | %d |\n", bk.label, bk.lo, math.Min(bk.hi, 1.0), count)
	}
	b.WriteString("\n")

	top := topResults(outcome.All, 3)
	if len(top) > 0 {
		fmt.Fprintf(&b, "## 最佳生成結果\n\n")
		for i, r := range top {
			fmt.Fprintf(&b, "### %d. %s（分數 %.3f）\n\n", i+1, r.TaskID, r.QualityScore)
			fmt.Fprintf(&b, "**提示詞：** %s\n\n", excerpt(r.Prompt, 100))
			fmt.Fprintf(&b, "**生成內容：** %s\n\n", excerpt(r.GeneratedText, 200))
		}
	}

	if len(outcome.Failed) > 0 {
		fmt.Fprintf(&b, "## 失敗任務\n\n")
		for _, r := range outcome.Failed {
			fmt.Fprintf(&b, "- `%s`：%s\n", r.TaskID, r.Error)
		}
		b.WriteString("\n")
	}

	return b.String()
}

// Write renders the report and writes it to dir as
// quality_report_<unix-ts>.md, creating dir as needed.
func Write(dir string, outcome batch.Outcome, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("quality_report_%d.md", now.Unix()))
	if err := os.WriteFile(path, []byte(Markdown(outcome, now)), 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}

func topResults(results []batch.Result, n int) []batch.Result {
	scored := make([]batch.Result, 0, len(results))
	for _, r := range results {
		if r.Success {
			scored = append(scored, r)
		}
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].QualityScore > scored[j].QualityScore })
	if len(scored) > n {
		scored = scored[:n]
	}
	return scored
}

func excerpt(text string, max int) string {
	runes := []rune(strings.ReplaceAll(text, "\n", " "))
	if len(runes) <= max {
		return string(runes)
	}
	return string(runes[:max]) + "..."
}
