package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"complaint-workflow-service/internal/middleware"
	"complaint-workflow-service/internal/services"
)

// WorkflowHandler handles workflow definition administration
type WorkflowHandler struct {
	registry *services.WorkflowRegistry
	logger   *logrus.Entry
}

// NewWorkflowHandler creates a new WorkflowHandler
func NewWorkflowHandler(registry *services.WorkflowRegistry, logger *logrus.Logger) *WorkflowHandler {
	if logger == nil {
		logger = logrus.New()
	}
	return &WorkflowHandler{registry: registry, logger: logger.WithField("component", "workflow-handler")}
}

// ListWorkflows lists workflow definition versions
// @Summary List workflows
// @Tags Workflows
// @Produce json
// @Param category query string false "Category"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/admin/workflows [get]
func (h *WorkflowHandler) ListWorkflows(c *gin.Context) {
	workflows, err := h.registry.List(c.Request.Context(), c.Query("category"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":  workflows,
		"total": len(workflows),
	})
}

// GetWorkflow retrieves a workflow definition version
// @Summary Get workflow
// @Tags Workflows
// @Produce json
// @Param id path string true "Workflow ID"
// @Success 200 {object} models.WorkflowDefinition
// @Router /api/v1/admin/workflows/{id} [get]
func (h *WorkflowHandler) GetWorkflow(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid workflow id")
		return
	}

	workflow, err := h.registry.GetDefinition(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, workflow)
}

// CreateWorkflow stores a new draft version
// @Summary Create workflow draft
// @Tags Workflows
// @Accept json
// @Produce json
// @Param request body services.WorkflowDraft true "Workflow"
// @Success 201 {object} models.WorkflowDefinition
// @Failure 400 {object} middleware.ErrorResponse
// @Router /api/v1/admin/workflows [post]
func (h *WorkflowHandler) CreateWorkflow(c *gin.Context) {
	var draft services.WorkflowDraft
	if err := c.ShouldBindJSON(&draft); err != nil {
		badRequest(c, err.Error())
		return
	}

	workflow, err := h.registry.CreateDraft(c.Request.Context(), draft, middleware.ActorFrom(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, workflow)
}

// ValidateWorkflow checks a draft without storing it
// @Summary Validate workflow graph
// @Tags Workflows
// @Accept json
// @Produce json
// @Param request body services.WorkflowDraft true "Workflow"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/admin/workflows/validate [post]
func (h *WorkflowHandler) ValidateWorkflow(c *gin.Context) {
	var draft services.WorkflowDraft
	if err := c.ShouldBindJSON(&draft); err != nil {
		badRequest(c, err.Error())
		return
	}

	graphErrs := h.registry.Validate(draft)
	if graphErrs == nil {
		graphErrs = []services.GraphError{}
	}
	c.JSON(http.StatusOK, gin.H{
		"valid":  len(graphErrs) == 0,
		"errors": graphErrs,
	})
}

// PublishWorkflow activates a version for its category
// @Summary Publish workflow
// @Tags Workflows
// @Produce json
// @Param id path string true "Workflow ID"
// @Success 200 {object} models.WorkflowDefinition
// @Router /api/v1/admin/workflows/{id}/publish [post]
func (h *WorkflowHandler) PublishWorkflow(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid workflow id")
		return
	}

	workflow, err := h.registry.Publish(c.Request.Context(), id, middleware.ActorFrom(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, workflow)
}
