// Package quality implements the heuristic scoring of generated text.
// The scores are regex/word-count heuristics, not a semantic quality measure:
// false positives and negatives are expected and acceptable. All scores are in
// [0,1] and rounded to 3 decimals.
package quality

import (
	"math"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	sentenceSplitRe = regexp.MustCompile(`[.!?。！？]`)
	punctuationRe   = regexp.MustCompile(`[.!?。！？,，;；:]`)
	wordRe          = regexp.MustCompile(`[\p{L}\p{N}_]+`)
)

// connectors are the discourse markers counted for the coherence score.
var connectors = []string{
	"因此", "所以", "但是", "然而", "此外", "另外", "首先", "其次", "最後", "總之",
}

// conclusionMarkers signal that the text has an explicit ending.
var conclusionMarkers = []string{"總結", "結論", "綜上", "最後", "。", "！"}

// stopwords are excluded from the relevance overlap so that filler words do
// not inflate the score.
var stopwords = map[string]struct{}{
	"的": {}, "是": {}, "在": {}, "有": {}, "和": {}, "與": {}, "或": {}, "但": {},
	"這": {}, "那": {}, "一": {}, "個": {},
	"a": {}, "an": {}, "the": {}, "is": {}, "are": {}, "and": {}, "or": {}, "but": {},
}

// Breakdown carries the four sub-scores and their equal-weighted overall score.
type Breakdown struct {
	Readability  float64 `json:"readability"`
	Coherence    float64 `json:"coherence"`
	Completeness float64 `json:"completeness"`
	Relevance    float64 `json:"relevance"`
	Overall      float64 `json:"overall"`
}

// Evaluate scores generated text against its source prompt. Empty or
// whitespace-only text scores exactly zero on every axis. The function is
// pure: the same (text, prompt) pair always yields the same Breakdown.
func Evaluate(text, prompt string) Breakdown {
	if strings.TrimSpace(text) == "" {
		return Breakdown{}
	}
	b := Breakdown{
		Readability:  Readability(text),
		Coherence:    Coherence(text),
		Completeness: Completeness(text, prompt),
		Relevance:    Relevance(text, prompt),
	}
	b.Overall = round3(0.25*b.Readability + 0.25*b.Coherence + 0.25*b.Completeness + 0.25*b.Relevance)
	return b
}

// Readability maps average sentence length (ideal ~15 words) and punctuation
// density into [0,1], weighted 0.7/0.3.
func Readability(text string) float64 {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return 0
	}

	totalWords := 0
	for _, s := range sentences {
		totalWords += len(strings.Fields(s))
	}
	avgSentenceLength := float64(totalWords) / float64(len(sentences))

	wordCount := len(strings.Fields(text))
	punctuationCount := len(punctuationRe.FindAllString(text, -1))
	punctuationDensity := float64(punctuationCount) / math.Max(float64(wordCount), 1)

	lengthScore := clamp01(1 - (avgSentenceLength-15)/30)
	densityScore := math.Min(punctuationDensity*10, 1)

	return round3(lengthScore*0.7 + densityScore*0.3)
}

// Coherence combines connector-word usage relative to sentence count with the
// lexical-diversity ratio, weighted 0.6/0.4. Single-sentence texts default to
// a medium 0.5.
func Coherence(text string) float64 {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	sentences := splitSentences(text)
	if len(sentences) < 2 {
		return 0.5
	}

	connectorUsage := 0
	for _, c := range connectors {
		if strings.Contains(text, c) {
			connectorUsage++
		}
	}
	connectorScore := math.Min(float64(connectorUsage)/math.Max(float64(len(sentences))*0.3, 1), 1)

	words := strings.Fields(text)
	unique := make(map[string]struct{}, len(words))
	for _, w := range words {
		unique[w] = struct{}{}
	}
	repetitionRatio := float64(len(unique)) / math.Max(float64(len(words)), 1)

	return round3(connectorScore*0.6 + repetitionRatio*0.4)
}

// Completeness relates output length to prompt length (target >=2x) and checks
// for an explicit ending, weighted 0.7/0.3. Lengths are rune counts so that
// CJK text is measured in characters, not bytes.
func Completeness(text, prompt string) float64 {
	if strings.TrimSpace(text) == "" {
		return 0
	}

	textLen := float64(utf8.RuneCountInString(text))
	promptLen := float64(utf8.RuneCountInString(prompt))
	lengthScore := math.Min(textLen/math.Max(promptLen*2, 100), 1)

	conclusionScore := 0.5
	for _, marker := range conclusionMarkers {
		if strings.Contains(text, marker) {
			conclusionScore = 1.0
			break
		}
	}

	return round3(lengthScore*0.7 + conclusionScore*0.3)
}

// Relevance is the overlap between the prompt's word set and the output's word
// set, case-insensitive, with stopwords removed.
func Relevance(text, prompt string) float64 {
	if strings.TrimSpace(text) == "" || strings.TrimSpace(prompt) == "" {
		return 0
	}

	promptWords := wordSet(prompt)
	if len(promptWords) == 0 {
		return 0
	}
	textWords := wordSet(text)

	overlap := 0
	for w := range promptWords {
		if _, ok := textWords[w]; ok {
			overlap++
		}
	}
	return round3(float64(overlap) / float64(len(promptWords)))
}

func splitSentences(text string) []string {
	parts := sentenceSplitRe.Split(text, -1)
	sentences := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}

func wordSet(text string) map[string]struct{} {
	words := wordRe.FindAllString(strings.ToLower(text), -1)
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		if _, skip := stopwords[w]; skip {
			continue
		}
		set[w] = struct{}{}
	}
	return set
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
