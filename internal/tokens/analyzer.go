// Package tokens implements token-count analysis for prompts: server-side
// tokenization with an offline estimation fallback, efficiency/cost metrics
// and prompt-quality assessment.
package tokens

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"tgw-batch-service/internal/generation"
)

// DefaultCostPerToken is the assumed per-input-token cost used for estimates.
const DefaultCostPerToken = 0.0001

var (
	chineseRe     = regexp.MustCompile(`[\x{4e00}-\x{9fff}]`)
	englishRe     = regexp.MustCompile(`[a-zA-Z]`)
	englishWordRe = regexp.MustCompile(`[a-zA-Z]+`)
	numberRe      = regexp.MustCompile(`[0-9]+`)
	punctRe       = regexp.MustCompile(`[^\p{L}\p{N}\s_]`)
	spaceRe       = regexp.MustCompile(`\s`)
)

// Tokenizer is the server-side tokenization dependency.
type Tokenizer interface {
	Tokenize(ctx context.Context, text string) (generation.TokenizeResponse, error)
}

// Analysis is the token profile of one text.
type Analysis struct {
	Text            string   `json:"text"`
	TokenCount      int      `json:"token_count"`
	Tokens          []string `json:"tokens,omitempty"`
	TokenIDs        []int    `json:"token_ids,omitempty"`
	CharCount       int      `json:"char_count"`
	EfficiencyRatio float64  `json:"efficiency_ratio"` // chars per token
	EstimatedCost   float64  `json:"estimated_cost"`
	Language        string   `json:"language"`
	ComplexityScore float64  `json:"complexity_score"`
	Estimated       bool     `json:"estimated"` // offline estimate, endpoint unavailable
}

// Analyzer profiles texts against a TGW tokenizer endpoint.
type Analyzer struct {
	tok          Tokenizer
	costPerToken float64
	log          *zap.Logger
}

func NewAnalyzer(tok Tokenizer, log *zap.Logger) *Analyzer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Analyzer{tok: tok, costPerToken: DefaultCostPerToken, log: log}
}

// AnalyzeText profiles one text. When the tokenize endpoint is unreachable
// the token count falls back to the offline estimate and Estimated is set.
func (a *Analyzer) AnalyzeText(ctx context.Context, text string) Analysis {
	analysis := Analysis{
		Text:            text,
		CharCount:       len([]rune(text)),
		Language:        DetectLanguage(text),
		ComplexityScore: Complexity(text),
	}

	if resp, err := a.tok.Tokenize(ctx, text); err == nil {
		analysis.TokenCount = len(resp.Tokens)
		analysis.Tokens = resp.Tokens
		analysis.TokenIDs = resp.TokenIDs
	} else {
		a.log.Warn("tokenize endpoint unavailable, using offline estimate", zap.Error(err))
		analysis.TokenCount = EstimateTokens(text)
		analysis.Estimated = true
	}

	analysis.EfficiencyRatio = float64(analysis.CharCount) / math.Max(float64(analysis.TokenCount), 1)
	analysis.EstimatedCost = float64(analysis.TokenCount) * a.costPerToken
	return analysis
}

// ComparisonRow is one prompt in a side-by-side comparison.
type ComparisonRow struct {
	Name     string   `json:"name"`
	Analysis Analysis `json:"analysis"`
}

// ComparePrompts profiles several prompts. Missing names are filled with
// Prompt_N like the notebook tooling did.
func (a *Analyzer) ComparePrompts(ctx context.Context, prompts []string, names []string) []ComparisonRow {
	rows := make([]ComparisonRow, 0, len(prompts))
	for i, p := range prompts {
		name := fmt.Sprintf("Prompt_%d", i+1)
		if i < len(names) && names[i] != "" {
			name = names[i]
		}
		rows = append(rows, ComparisonRow{Name: name, Analysis: a.AnalyzeText(ctx, p)})
	}
	return rows
}

// EstimateTokens approximates the token count without the tokenizer:
// CJK characters weigh ~1.5 tokens, English words ~1.3, numbers ~0.8,
// punctuation ~0.5.
func EstimateTokens(text string) int {
	chinese := len(chineseRe.FindAllString(text, -1))
	englishWords := len(englishWordRe.FindAllString(text, -1))
	numbers := len(numberRe.FindAllString(text, -1))
	punctuation := len(punctRe.FindAllString(text, -1))

	estimated := float64(chinese)*1.5 + float64(englishWords)*1.3 + float64(numbers)*0.8 + float64(punctuation)*0.5
	if estimated < 1 {
		return 1
	}
	return int(estimated)
}

// DetectLanguage classifies text as chinese (>30% CJK), english (>50% ASCII
// letters), mixed, or unknown for blank input.
func DetectLanguage(text string) string {
	total := len([]rune(spaceRe.ReplaceAllString(text, "")))
	if total == 0 {
		return "unknown"
	}

	chinese := len(chineseRe.FindAllString(text, -1))
	english := len(englishRe.FindAllString(text, -1))

	switch {
	case float64(chinese)/float64(total) > 0.3:
		return "chinese"
	case float64(english)/float64(total) > 0.5:
		return "english"
	default:
		return "mixed"
	}
}

// Complexity scores text complexity in [0,1] from character diversity,
// average word length and punctuation density.
func Complexity(text string) float64 {
	if text == "" {
		return 0
	}

	runes := []rune(text)
	unique := map[rune]struct{}{}
	for _, r := range runes {
		unique[r] = struct{}{}
	}

	words := strings.Fields(text)
	avgWordLength := 0.0
	if len(words) > 0 {
		total := 0
		for _, w := range words {
			total += len([]rune(w))
		}
		avgWordLength = float64(total) / float64(len(words))
	}

	punctuationDensity := float64(len(punctRe.FindAllString(text, -1))) / math.Max(float64(len(runes)), 1)

	complexity := math.Min(1.0,
		float64(len(unique))/math.Max(float64(len(runes)), 1)*2+
			avgWordLength/15*0.5+
			punctuationDensity*2)
	return math.Round(complexity*1000) / 1000
}
