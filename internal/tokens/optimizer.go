package tokens

import (
	"context"
	"math"
	"regexp"
	"strings"
)

// SubScore is one graded dimension of a prompt assessment.
type SubScore struct {
	Score float64 `json:"score"`
	Level string  `json:"level"`
}

// EfficiencyAssessment grades a prompt on token efficiency, clarity and
// specificity, with concrete optimization suggestions.
type EfficiencyAssessment struct {
	Analysis        Analysis     `json:"analysis"`
	Efficiency      SubScore     `json:"efficiency"`
	Clarity         SubScore     `json:"clarity"`
	Specificity     SubScore     `json:"specificity"`
	Overall         SubScore     `json:"overall"`
	Recommendations []string     `json:"recommendations"`
	Suggestions     []Suggestion `json:"suggestions,omitempty"`
}

var (
	clarityIndicators = []string{"：", ":", "1.", "2.", "3.", "•", "-", "要求", "格式", "包含"}

	specificityIndicators = []string{"字數", "格式", "包含", "要求", "範例", "步驟"}
)

// AssessPromptEfficiency grades one prompt. The overall score weighs
// efficiency 0.4, clarity 0.3 and specificity 0.3.
func (a *Analyzer) AssessPromptEfficiency(ctx context.Context, prompt string) EfficiencyAssessment {
	analysis := a.AnalyzeText(ctx, prompt)

	efficiency := gradeEfficiency(analysis.EfficiencyRatio)
	clarity := gradeByIndicators(prompt, clarityIndicators, 5)
	specificity := gradeByIndicators(prompt, specificityIndicators, 4)

	overall := math.Round((efficiency.Score*0.4+clarity.Score*0.3+specificity.Score*0.3)*1000) / 1000
	overallLevel := "needs_improvement"
	switch {
	case overall >= 0.8:
		overallLevel = "excellent"
	case overall >= 0.6:
		overallLevel = "good"
	}

	out := EfficiencyAssessment{
		Analysis:    analysis,
		Efficiency:  efficiency,
		Clarity:     clarity,
		Specificity: specificity,
		Overall:     SubScore{Score: overall, Level: overallLevel},
	}
	out.Recommendations = recommendations(out)
	out.Suggestions = Optimize(prompt)
	return out
}

func gradeEfficiency(ratio float64) SubScore {
	switch {
	case ratio >= 3.0:
		return SubScore{Score: 0.9, Level: "excellent"}
	case ratio >= 2.5:
		return SubScore{Score: 0.7, Level: "good"}
	case ratio >= 2.0:
		return SubScore{Score: 0.5, Level: "acceptable"}
	default:
		return SubScore{Score: 0.3, Level: "poor"}
	}
}

func gradeByIndicators(prompt string, indicators []string, norm float64) SubScore {
	hits := 0
	for _, ind := range indicators {
		if strings.Contains(prompt, ind) {
			hits++
		}
	}
	score := math.Min(float64(hits)/norm, 1.0)
	level := "acceptable"
	switch {
	case score >= 0.8:
		level = "excellent"
	case score >= 0.6:
		level = "good"
	}
	return SubScore{Score: math.Round(score*1000) / 1000, Level: level}
}

func recommendations(a EfficiencyAssessment) []string {
	recs := make([]string, 0, 3)
	if a.Efficiency.Score < 0.6 {
		recs = append(recs, "提高信息密度：用更少的 token 表達更多內容")
	}
	if a.Clarity.Score < 0.6 {
		recs = append(recs, "增加結構化元素：使用編號、條列或明確的格式要求")
	}
	if a.Specificity.Score < 0.6 {
		recs = append(recs, "提高具體性：明確指定字數、格式或預期輸出範例")
	}
	if len(recs) == 0 {
		recs = append(recs, "提示詞品質良好，無需重大調整")
	}
	return recs
}

// Optimizer rewrites or annotates a prompt for one optimization concern.
type Optimizer interface {
	Name() string
	Optimize(prompt string) (Suggestion, bool)
}

// Suggestion is one applicable optimization for a prompt.
type Suggestion struct {
	Type            string `json:"type"`
	Suggestion      string `json:"suggestion"`
	OptimizedPrompt string `json:"optimized_prompt,omitempty"`
}

var optimizerRegistry = map[string]Optimizer{}

// RegisterOptimizer adds an optimizer to the registry. Later registrations
// under the same name win.
func RegisterOptimizer(o Optimizer) {
	optimizerRegistry[o.Name()] = o
}

// GetOptimizer looks an optimizer up by name.
func GetOptimizer(name string) (Optimizer, bool) {
	o, ok := optimizerRegistry[name]
	return o, ok
}

// Optimize runs every registered optimizer and collects the applicable
// suggestions.
func Optimize(prompt string) []Suggestion {
	var out []Suggestion
	for _, name := range []string{"redundancy", "structure", "specificity"} {
		o, ok := optimizerRegistry[name]
		if !ok {
			continue
		}
		if s, applies := o.Optimize(prompt); applies {
			out = append(out, s)
		}
	}
	return out
}

func init() {
	RegisterOptimizer(redundancyOptimizer{})
	RegisterOptimizer(structureOptimizer{})
	RegisterOptimizer(specificityOptimizer{})
}

var (
	politenessRe = regexp.MustCompile(`請|麻煩|能否|可以`)
	multiSpaceRe = regexp.MustCompile(`\s{2,}`)
)

// redundancyOptimizer strips politeness filler that spends tokens without
// changing the completion.
type redundancyOptimizer struct{}

func (redundancyOptimizer) Name() string { return "redundancy" }

func (redundancyOptimizer) Optimize(prompt string) (Suggestion, bool) {
	optimized := politenessRe.ReplaceAllString(prompt, "")
	optimized = strings.TrimSpace(multiSpaceRe.ReplaceAllString(optimized, " "))
	if optimized == strings.TrimSpace(prompt) {
		return Suggestion{}, false
	}
	return Suggestion{
		Type:            "redundancy",
		Suggestion:      "移除客套用語以降低 token 消耗",
		OptimizedPrompt: optimized,
	}, true
}

// structureOptimizer suggests adding an explicit requirements block when the
// prompt carries no structure markers at all.
type structureOptimizer struct{}

func (structureOptimizer) Name() string { return "structure" }

func (structureOptimizer) Optimize(prompt string) (Suggestion, bool) {
	if strings.Contains(prompt, "：") || strings.Contains(prompt, ":") {
		return Suggestion{}, false
	}
	return Suggestion{
		Type:            "structure",
		Suggestion:      "加入結構化要求（例如「要求：1. ... 2. ...」）讓輸出更可控",
		OptimizedPrompt: prompt + "\n\n要求：\n1. 內容準確\n2. 結構清晰",
	}, true
}

// specificityOptimizer suggests pinning the expected length when the prompt
// leaves it open.
type specificityOptimizer struct{}

func (specificityOptimizer) Name() string { return "specificity" }

func (specificityOptimizer) Optimize(prompt string) (Suggestion, bool) {
	if strings.Contains(prompt, "字數") || strings.Contains(prompt, "長度") {
		return Suggestion{}, false
	}
	return Suggestion{
		Type:       "specificity",
		Suggestion: "明確指定期望字數或輸出長度",
	}, true
}
