package api

import (
	"context"
	"net/http"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/utils"
)

// RegisterRoutes wires every handler group into the server.
func RegisterRoutes(h *server.Hertz, templates *PromptTemplateHandler, batches *BatchHandler, analysis *AnalysisHandler) {
	h.GET("/ping", func(ctx context.Context, c *app.RequestContext) {
		c.JSON(http.StatusOK, utils.H{"message": "pong"})
	})

	templateGroup := h.Group("/templates")
	{
		templateGroup.POST("", templates.CreatePromptTemplate)
		templateGroup.GET("", templates.GetPromptTemplates)
		templateGroup.GET("/:id", templates.GetPromptTemplateByID)
		templateGroup.POST("/:id/render", templates.RenderPromptTemplate)
		templateGroup.DELETE("/:id", templates.DeletePromptTemplate)
	}

	batchGroup := h.Group("/batches")
	{
		batchGroup.POST("", batches.SubmitBatch)
		batchGroup.GET("", batches.ListBatchRuns)
		batchGroup.GET("/:run_id", batches.GetBatchRun)
	}

	analysisGroup := h.Group("/analysis")
	{
		analysisGroup.POST("/tokens", analysis.AnalyzeTokens)
		analysisGroup.POST("/prompts/compare", analysis.ComparePrompts)
		analysisGroup.POST("/prompts/efficiency", analysis.AssessPromptEfficiency)
		analysisGroup.POST("/quality/score", analysis.ScoreText)
	}
}
