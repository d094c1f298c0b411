package api

import (
	"context"
	"net/http"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"

	"tgw-batch-service/internal/quality"
	"tgw-batch-service/internal/tokens"
)

type AnalysisHandler struct {
	Analyzer *tokens.Analyzer
}

func NewAnalysisHandler(analyzer *tokens.Analyzer) *AnalysisHandler {
	return &AnalysisHandler{Analyzer: analyzer}
}

type AnalyzeTextRequest struct {
	Text string `json:"text" validate:"required,gt=0"`
}

func (h *AnalysisHandler) AnalyzeTokens(ctx context.Context, c *app.RequestContext) {
	var req AnalyzeTextRequest
	if err := c.BindAndValidate(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.H{"error": "Invalid request payload: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, h.Analyzer.AnalyzeText(ctx, req.Text))
}

type ComparePromptsRequest struct {
	Prompts []string `json:"prompts" validate:"required,gt=0"`
	Names   []string `json:"names"`
}

func (h *AnalysisHandler) ComparePrompts(ctx context.Context, c *app.RequestContext) {
	var req ComparePromptsRequest
	if err := c.BindAndValidate(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.H{"error": "Invalid request payload: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, h.Analyzer.ComparePrompts(ctx, req.Prompts, req.Names))
}

type AssessPromptRequest struct {
	Prompt string `json:"prompt" validate:"required,gt=0"`
}

func (h *AnalysisHandler) AssessPromptEfficiency(ctx context.Context, c *app.RequestContext) {
	var req AssessPromptRequest
	if err := c.BindAndValidate(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.H{"error": "Invalid request payload: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, h.Analyzer.AssessPromptEfficiency(ctx, req.Prompt))
}

type ScoreTextRequest struct {
	Text   string `json:"text" validate:"required"`
	Prompt string `json:"prompt" validate:"required,gt=0"`
}

// ScoreText evaluates a generated text against its prompt with the same
// heuristics the batch pipeline applies.
func (h *AnalysisHandler) ScoreText(ctx context.Context, c *app.RequestContext) {
	var req ScoreTextRequest
	if err := c.BindAndValidate(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.H{"error": "Invalid request payload: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, quality.Evaluate(req.Text, req.Prompt))
}
