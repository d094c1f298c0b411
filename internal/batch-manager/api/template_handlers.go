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
	"tgw-batch-service/internal/template"
	"tgw-batch-service/pkg/validation"
)

// SchedulerRefresher is the scheduler hook templates notify after cron
// changes. Nil disables refreshing.
type SchedulerRefresher interface {
	RefreshScheduledJobs()
}

type PromptTemplateHandler struct {
	DB        *gorm.DB
	Scheduler SchedulerRefresher
	Log       *zap.Logger
}

func NewPromptTemplateHandler(db *gorm.DB, scheduler SchedulerRefresher, log *zap.Logger) *PromptTemplateHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &PromptTemplateHandler{DB: db, Scheduler: scheduler, Log: log}
}

type CreatePromptTemplateRequest struct {
	Name           string            `json:"name" validate:"required,gt=0"`
	Category       string            `json:"category"`
	Template       string            `json:"template" validate:"required,gt=0"`
	Description    string            `json:"description"`
	Tags           []string          `json:"tags"`
	OptimalParams  json.RawMessage   `json:"optimal_params,omitempty"`
	CronExpression string            `json:"cron_expression,omitempty"`
	RenderVars     map[string]string `json:"render_vars,omitempty"`
}

func (h *PromptTemplateHandler) CreatePromptTemplate(ctx context.Context, c *app.RequestContext) {
	var req CreatePromptTemplateRequest
	if err := c.BindAndValidate(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.H{"error": "Invalid request payload: " + err.Error()})
		return
	}

	// partial parameter payloads are allowed, omitted keys keep the defaults
	var params *batch.GenerationParams
	if len(req.OptimalParams) > 0 {
		if err := validation.ValidateGenerationParams(req.OptimalParams); err != nil {
			c.JSON(http.StatusBadRequest, utils.H{
				"error":             "Generation parameters out of range.",
				"validation_errors": err.Error(),
			})
			return
		}
		p := batch.DefaultParams()
		if err := json.Unmarshal(req.OptimalParams, &p); err != nil {
			c.JSON(http.StatusBadRequest, utils.H{"error": "Invalid generation parameters: " + err.Error()})
			return
		}
		params = &p
	}

	domain := template.New(req.Name, req.Category, req.Template, req.Description, req.Tags, params)
	stored, err := batchDB.FromDomain(domain)
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.H{"error": "Failed to encode template: " + err.Error()})
		return
	}
	stored.CronExpression = req.CronExpression
	if len(req.RenderVars) > 0 {
		raw, err := json.Marshal(req.RenderVars)
		if err != nil {
			c.JSON(http.StatusInternalServerError, utils.H{"error": "Failed to encode render vars: " + err.Error()})
			return
		}
		stored.RenderVars = string(raw)
	}

	if result := h.DB.Create(&stored); result.Error != nil {
		c.JSON(http.StatusInternalServerError, utils.H{"error": "Failed to create prompt template: " + result.Error.Error()})
		return
	}

	if stored.CronExpression != "" && h.Scheduler != nil {
		h.Scheduler.RefreshScheduledJobs()
	}
	c.JSON(http.StatusCreated, stored)
}

func (h *PromptTemplateHandler) GetPromptTemplates(ctx context.Context, c *app.RequestContext) {
	query := h.DB.Model(&batchDB.PromptTemplate{})
	if category := c.Query("category"); category != "" {
		query = query.Where("category = ?", category)
	}

	var templates []batchDB.PromptTemplate
	if result := query.Find(&templates); result.Error != nil {
		c.JSON(http.StatusInternalServerError, utils.H{"error": "Failed to fetch prompt templates: " + result.Error.Error()})
		return
	}

	if search := c.Query("search"); search != "" {
		filtered := templates[:0]
		for _, stored := range templates {
			domain, err := stored.ToDomain()
			if err != nil {
				h.Log.Warn("skipping undecodable template in search",
					zap.Uint("template_id", stored.ID), zap.Error(err))
				continue
			}
			if domain.Matches(search) {
				filtered = append(filtered, stored)
			}
		}
		templates = filtered
	}
	c.JSON(http.StatusOK, templates)
}

func (h *PromptTemplateHandler) GetPromptTemplateByID(ctx context.Context, c *app.RequestContext) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, utils.H{"error": "Invalid ID format"})
		return
	}
	var stored batchDB.PromptTemplate
	if result := h.DB.First(&stored, uint(id)); result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, utils.H{"error": "Prompt template not found"})
		} else {
			c.JSON(http.StatusInternalServerError, utils.H{"error": "Failed to fetch prompt template: " + result.Error.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, stored)
}

type RenderTemplateRequest struct {
	Variables map[string]string `json:"variables"`
}

// RenderPromptTemplate substitutes variables into a stored template and
// returns the resulting prompt without executing it.
func (h *PromptTemplateHandler) RenderPromptTemplate(ctx context.Context, c *app.RequestContext) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, utils.H{"error": "Invalid ID format"})
		return
	}
	var req RenderTemplateRequest
	if err := c.Bind(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.H{"error": "Invalid request format: " + err.Error()})
		return
	}

	var stored batchDB.PromptTemplate
	if result := h.DB.First(&stored, uint(id)); result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, utils.H{"error": "Prompt template not found"})
		} else {
			c.JSON(http.StatusInternalServerError, utils.H{"error": "Failed to fetch prompt template: " + result.Error.Error()})
		}
		return
	}

	domain, err := stored.ToDomain()
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.H{"error": "Failed to decode template: " + err.Error()})
		return
	}
	prompt, err := domain.Render(req.Variables)
	if err != nil {
		c.JSON(http.StatusBadRequest, utils.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, utils.H{
		"prompt":         prompt,
		"optimal_params": domain.OptimalParams,
	})
}

func (h *PromptTemplateHandler) DeletePromptTemplate(ctx context.Context, c *app.RequestContext) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, utils.H{"error": "Invalid ID format"})
		return
	}
	var stored batchDB.PromptTemplate
	if findResult := h.DB.First(&stored, uint(id)); findResult.Error != nil {
		if findResult.Error == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, utils.H{"error": "Prompt template not found to delete"})
		} else {
			c.JSON(http.StatusInternalServerError, utils.H{"error": "Error finding template to delete: " + findResult.Error.Error()})
		}
		return
	}

	if result := h.DB.Delete(&batchDB.PromptTemplate{}, uint(id)); result.Error != nil {
		c.JSON(http.StatusInternalServerError, utils.H{"error": "Failed to delete prompt template: " + result.Error.Error()})
		return
	}

	if stored.CronExpression != "" && h.Scheduler != nil {
		h.Scheduler.RefreshScheduledJobs()
	}
	c.JSON(http.StatusOK, utils.H{"message": "Prompt template deleted successfully"})
}
