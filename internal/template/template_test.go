package template

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"tgw-batch-service/internal/batch"
)

const docBody = `請為以下 API 端點生成完整文檔：

端點：{endpoint_url}
方法：{http_method}
功能：{description}

格式：Markdown，包含程式碼區塊`

func TestExtractVariables(t *testing.T) {
	assert.Equal(t, []string{"description", "endpoint_url", "http_method"}, ExtractVariables(docBody))
	assert.Empty(t, ExtractVariables("no placeholders here"))
	// duplicates collapse
	assert.Equal(t, []string{"x"}, ExtractVariables("{x} and {x} again"))
}

func TestNewDefaultsParams(t *testing.T) {
	tmpl := New("api_documentation", "technical", docBody, "API docs template", []string{"api"}, nil)
	assert.Equal(t, batch.DefaultParams(), tmpl.OptimalParams)
	assert.Len(t, tmpl.Variables, 3)

	params := batch.GenerationParams{Temperature: 0.3, TopP: 0.8, MaxNewTokens: 400, RepetitionPenalty: 1.05}
	tmpl = New("conservative", "technical", docBody, "", nil, &params)
	assert.Equal(t, params, tmpl.OptimalParams)
}

func TestRender(t *testing.T) {
	tmpl := New("api_documentation", "technical", docBody, "", nil, nil)
	prompt, err := tmpl.Render(map[string]string{
		"endpoint_url": "/v1/completions",
		"http_method":  "POST",
		"description":  "文本生成",
	})
	assert.NoError(t, err)
	assert.Contains(t, prompt, "端點：/v1/completions")
	assert.Contains(t, prompt, "方法：POST")
	assert.NotContains(t, prompt, "{")
}

func TestRenderMissingVariable(t *testing.T) {
	tmpl := New("api_documentation", "technical", docBody, "", nil, nil)
	_, err := tmpl.Render(map[string]string{"endpoint_url": "/v1/models"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "http_method")
	assert.Contains(t, err.Error(), "description")
}

func TestRenderIgnoresExtraVariables(t *testing.T) {
	tmpl := New("plain", "misc", "hello {name}", "", nil, nil)
	prompt, err := tmpl.Render(map[string]string{"name": "world", "unused": "x"})
	assert.NoError(t, err)
	assert.Equal(t, "hello world", prompt)
}

func TestMatches(t *testing.T) {
	tmpl := New("creative_writing", "creative", "{genre}", "story writing template", []string{"Story", "writing"}, nil)
	assert.True(t, tmpl.Matches("creative"))
	assert.True(t, tmpl.Matches("STORY"))
	assert.True(t, tmpl.Matches("writing temp"))
	assert.False(t, tmpl.Matches("finance"))
}
