package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"tgw-batch-service/internal/batch"
	batchDB "tgw-batch-service/internal/batch-manager/db"
	"tgw-batch-service/internal/batch-manager/services"
	"tgw-batch-service/pkg/validation"
)

type BatchHandler struct {
	Runs *services.RunService
	Log  *zap.Logger
}

func NewBatchHandler(runs *services.RunService, log *zap.Logger) *BatchHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &BatchHandler{Runs: runs, Log: log}
}

type SubmitBatchRequest struct {
	Prompts  []string        `json:"prompts" validate:"required,gt=0"`
	Params   json.RawMessage `json:"params,omitempty"`
	Priority int             `json:"priority"`
}

// SubmitBatch queues the prompts as one batch run. With ?wait=true the
// request blocks until the run finishes and returns the full summary;
// otherwise the run executes in the background and 202 carries the run ID.
func (h *BatchHandler) SubmitBatch(ctx context.Context, c *app.RequestContext) {
	var req SubmitBatchRequest
	if err := c.BindAndValidate(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.H{"error": "Invalid request payload: " + err.Error()})
		return
	}

	// partial parameter payloads are allowed, omitted keys keep the defaults
	params := batch.DefaultParams()
	if len(req.Params) > 0 {
		if err := validation.ValidateGenerationParams(req.Params); err != nil {
			c.JSON(http.StatusBadRequest, utils.H{
				"error":             "Generation parameters out of range.",
				"validation_errors": err.Error(),
			})
			return
		}
		if err := json.Unmarshal(req.Params, &params); err != nil {
			c.JSON(http.StatusBadRequest, utils.H{"error": "Invalid generation parameters: " + err.Error()})
			return
		}
	}

	tasks := make([]batch.Task, 0, len(req.Prompts))
	for _, prompt := range req.Prompts {
		tasks = append(tasks, batch.NewTask(prompt, params, req.Priority, nil))
	}

	if c.Query("wait") == "true" {
		run, outcome, err := h.Runs.Execute(ctx, tasks, "api")
		if err != nil {
			c.JSON(http.StatusInternalServerError, utils.H{"error": "Batch run failed: " + err.Error()})
			return
		}
		c.JSON(http.StatusOK, utils.H{
			"run_id":  run.RunID,
			"status":  batchDB.RunStatusCompleted,
			"summary": outcome.Summary,
		})
		return
	}

	run, err := h.Runs.ExecuteAsync(tasks, "api")
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.H{"error": "Failed to start batch run: " + err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, utils.H{"run_id": run.RunID, "status": batchDB.RunStatusRunning})
}

func (h *BatchHandler) GetBatchRun(ctx context.Context, c *app.RequestContext) {
	runID := c.Param("run_id")
	run, err := h.Runs.GetRun(runID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, utils.H{"error": "Batch run not found"})
		} else {
			c.JSON(http.StatusInternalServerError, utils.H{"error": "Failed to fetch batch run: " + err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, run)
}

func (h *BatchHandler) ListBatchRuns(ctx context.Context, c *app.RequestContext) {
	limit := 20
	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, utils.H{"error": "Invalid limit"})
			return
		}
		limit = parsed
	}
	runs, err := h.Runs.ListRuns(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.H{"error": "Failed to list batch runs: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, runs)
}
