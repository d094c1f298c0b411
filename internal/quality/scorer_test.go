package quality

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluateEmptyTextScoresZero(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\t "} {
		b := Evaluate(text, "解釋什麼是機器學習")
		assert.Equal(t, 0.0, b.Overall)
		assert.Equal(t, 0.0, b.Readability)
		assert.Equal(t, 0.0, b.Coherence)
		assert.Equal(t, 0.0, b.Completeness)
		assert.Equal(t, 0.0, b.Relevance)
	}
}

func TestEvaluateBounds(t *testing.T) {
	samples := []struct {
		text   string
		prompt string
	}{
		{"機器學習是一種人工智慧技術。因此它可以從資料中學習。總之非常有用。", "解釋什麼是機器學習"},
		{"Machine learning is a subfield of AI. However, it needs data. In short, it learns patterns.", "explain machine learning"},
		{"word", "prompt"},
		{strings.Repeat("aa bb cc dd. ", 50), "short"},
		{"。。。！！！", "???"},
	}
	for _, s := range samples {
		b := Evaluate(s.text, s.prompt)
		for name, v := range map[string]float64{
			"readability":  b.Readability,
			"coherence":    b.Coherence,
			"completeness": b.Completeness,
			"relevance":    b.Relevance,
			"overall":      b.Overall,
		} {
			assert.GreaterOrEqual(t, v, 0.0, "%s for %q", name, s.text)
			assert.LessOrEqual(t, v, 1.0, "%s for %q", name, s.text)
		}
	}
}

func TestEvaluateIsPure(t *testing.T) {
	text := "機器學習是一種讓電腦從資料中學習的技術。因此它被廣泛應用。總之，機器學習很重要。"
	prompt := "解釋什麼是機器學習"
	first := Evaluate(text, prompt)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Evaluate(text, prompt))
	}
}

func TestReadabilityIdealSentenceLength(t *testing.T) {
	// 15 words in one sentence hits the ideal length exactly; the single
	// period gives punctuation density 1/15 -> density score 10/15.
	text := "one two three four five six seven eight nine ten eleven twelve thirteen fourteen fifteen."
	assert.InDelta(t, 0.9, Readability(text), 0.0005)
}

func TestCoherenceSingleSentenceDefaultsToMedium(t *testing.T) {
	assert.Equal(t, 0.5, Coherence("機器學習是一種人工智慧技術。"))
	assert.Equal(t, 0.5, Coherence("a single sentence without terminal punctuation"))
}

func TestCoherenceRewardsConnectors(t *testing.T) {
	plain := "這是第一句。這是第二句。這是第三句。"
	connected := "首先這是第一句。因此這是第二句。總之這是第三句。"
	assert.Greater(t, Coherence(connected), Coherence(plain))
}

func TestCompletenessConclusionMarker(t *testing.T) {
	withEnding := strings.Repeat("內容", 60) + "。"
	withoutEnding := strings.Repeat("內容", 60)
	assert.Greater(t, Completeness(withEnding, "prompt"), Completeness(withoutEnding, "prompt"))
}

func TestCompletenessLongOutputCapsAtFull(t *testing.T) {
	long := strings.Repeat("詳細的說明內容", 100) + "。"
	// length score saturates at 1 and the conclusion marker is present.
	assert.Equal(t, 1.0, Completeness(long, "短提示"))
}

func TestRelevanceFullOverlap(t *testing.T) {
	assert.Equal(t, 1.0, Relevance("machine learning is fun to study", "machine learning"))
}

func TestRelevanceNoOverlap(t *testing.T) {
	assert.Equal(t, 0.0, Relevance("completely unrelated output", "量子力學"))
}

func TestRelevanceIgnoresStopwords(t *testing.T) {
	// "the" and "is" are stopwords; only "weather" counts for the prompt.
	assert.Equal(t, 1.0, Relevance("weather report", "the weather is"))
}

func TestRelevanceEmptyPrompt(t *testing.T) {
	assert.Equal(t, 0.0, Relevance("some text", "   "))
}

func TestEvaluateDeterministicChineseScenario(t *testing.T) {
	// Stub-endpoint scenario from the batch tests: a plausible completion for
	// the default Chinese prompt should clear the 0.6 acceptance threshold.
	prompt := "解釋什麼是機器學習"
	text := "機器學習是一種人工智慧技術，讓電腦能夠從資料中自動學習規律。" +
		"首先，監督式學習使用標註資料訓練模型。其次，非監督式學習從未標註資料中發現結構。" +
		"因此，機器學習被廣泛應用於影像辨識、自然語言處理等領域。" +
		"總之，機器學習是現代人工智慧的核心基礎。"
	b := Evaluate(text, prompt)
	assert.GreaterOrEqual(t, b.Overall, 0.6)
	assert.Equal(t, b, Evaluate(text, prompt))
}
