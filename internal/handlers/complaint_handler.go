package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"complaint-workflow-service/internal/middleware"
	"complaint-workflow-service/internal/models"
	"complaint-workflow-service/internal/repository"
	"complaint-workflow-service/internal/services"
)

// ComplaintHandler handles HTTP requests for complaints
type ComplaintHandler struct {
	complaints *services.ComplaintService
	engine     *services.TransitionEngine
	allocator  *services.Allocator
	logger     *logrus.Entry
}

// NewComplaintHandler creates a new ComplaintHandler
func NewComplaintHandler(complaints *services.ComplaintService, engine *services.TransitionEngine, allocator *services.Allocator, logger *logrus.Logger) *ComplaintHandler {
	if logger == nil {
		logger = logrus.New()
	}
	return &ComplaintHandler{
		complaints: complaints,
		engine:     engine,
		allocator:  allocator,
		logger:     logger.WithField("component", "complaint-handler"),
	}
}

// ComplaintView is a complaint with the actions it currently accepts
type ComplaintView struct {
	*models.Complaint
	AllowedActions []string `json:"allowedActions"`
}

// TransitionInput is the body of a transition request
type TransitionInput struct {
	Action  string                 `json:"action" binding:"required"`
	Note    string                 `json:"note"`
	Payload map[string]interface{} `json:"payload"`
}

// AssignmentInput is the body of an assignment confirmation
type AssignmentInput struct {
	EmployeeID string `json:"employeeId" binding:"required"`
	Note       string `json:"note"`
}

// ReopenInput is the optional body of a reopen request
type ReopenInput struct {
	Note string `json:"note"`
}

func (h *ComplaintHandler) view(c *gin.Context, complaint *models.Complaint) ComplaintView {
	actions, err := h.engine.AllowedActions(c.Request.Context(), complaint)
	if err != nil {
		h.logger.WithError(err).WithField("complaintId", complaint.ID).Warn("Failed to compute allowed actions")
	}
	if actions == nil {
		actions = []string{}
	}
	return ComplaintView{Complaint: complaint, AllowedActions: actions}
}

// canSee hides other citizens' complaints
func canSee(actor models.Actor, complaint *models.Complaint) bool {
	return actor.Role != models.RoleCitizen || complaint.Citizen.ID == actor.ID
}

// CreateComplaint files a new complaint
// @Summary Create complaint
// @Tags Complaints
// @Accept json
// @Produce json
// @Param request body services.CreateComplaintInput true "Complaint"
// @Success 201 {object} ComplaintView
// @Failure 400 {object} middleware.ErrorResponse
// @Router /api/v1/complaints [post]
func (h *ComplaintHandler) CreateComplaint(c *gin.Context) {
	var input services.CreateComplaintInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err.Error())
		return
	}

	complaint, err := h.complaints.Create(c.Request.Context(), input, middleware.ActorFrom(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, h.view(c, complaint))
}

// ListComplaints lists complaints with filters
// @Summary List complaints
// @Tags Complaints
// @Produce json
// @Param status query string false "Status"
// @Param priority query string false "Priority"
// @Param category query string false "Category"
// @Param assignedTo query string false "Assigned employee ID"
// @Param q query string false "Search in title and address"
// @Param sort query string false "newest, oldest or priority"
// @Param limit query int false "Limit" default(20)
// @Param offset query int false "Offset" default(0)
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/complaints [get]
func (h *ComplaintHandler) ListComplaints(c *gin.Context) {
	filter, ok := parseFilter(c)
	if !ok {
		return
	}

	actor := middleware.ActorFrom(c)
	if actor.Role == models.RoleCitizen {
		filter.CitizenID = actor.ID
	}

	complaints, total, err := h.complaints.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	normalized := repository.NormalizeFilter(filter)
	c.JSON(http.StatusOK, gin.H{
		"data":   complaints,
		"total":  total,
		"limit":  normalized.Limit,
		"offset": normalized.Offset,
	})
}

func parseFilter(c *gin.Context) (repository.ComplaintFilter, bool) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	filter := repository.ComplaintFilter{
		Status:   c.Query("status"),
		Priority: c.Query("priority"),
		Category: c.Query("category"),
		Query:    c.Query("q"),
		Sort:     c.Query("sort"),
		Limit:    limit,
		Offset:   offset,
	}

	if assigned := c.Query("assignedTo"); assigned != "" {
		id, err := uuid.Parse(assigned)
		if err != nil {
			badRequest(c, "invalid assignedTo")
			return filter, false
		}
		filter.AssignedEmployeeID = &id
	}
	return filter, true
}

// GetComplaint retrieves a complaint by ID
// @Summary Get complaint
// @Tags Complaints
// @Produce json
// @Param id path string true "Complaint ID"
// @Success 200 {object} ComplaintView
// @Failure 404 {object} middleware.ErrorResponse
// @Router /api/v1/complaints/{id} [get]
func (h *ComplaintHandler) GetComplaint(c *gin.Context) {
	complaint, ok := h.load(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.view(c, complaint))
}

func (h *ComplaintHandler) load(c *gin.Context) (*models.Complaint, bool) {
	complaint, err := h.complaints.Get(c.Request.Context(), c.Param("id"))
	if err == nil && !canSee(middleware.ActorFrom(c), complaint) {
		err = &services.Error{Kind: services.ErrNotFound, Message: "complaint not found"}
	}
	if err != nil {
		respondError(c, h.logger, err)
		return nil, false
	}
	return complaint, true
}

// GetHistory returns the status timeline of a complaint
// @Summary Get complaint history
// @Tags Complaints
// @Produce json
// @Param id path string true "Complaint ID"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/complaints/{id}/history [get]
func (h *ComplaintHandler) GetHistory(c *gin.Context) {
	complaint, ok := h.load(c)
	if !ok {
		return
	}

	history, err := h.complaints.History(c.Request.Context(), complaint.ID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  history,
		"total": len(history),
	})
}

// ApplyTransition performs a workflow action on a complaint
// @Summary Apply workflow transition
// @Tags Complaints
// @Accept json
// @Produce json
// @Param id path string true "Complaint ID"
// @Param request body TransitionInput true "Transition"
// @Success 200 {object} ComplaintView
// @Failure 409 {object} middleware.ErrorResponse
// @Failure 422 {object} middleware.ErrorResponse
// @Router /api/v1/complaints/{id}/transitions [post]
func (h *ComplaintHandler) ApplyTransition(c *gin.Context) {
	var input TransitionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err.Error())
		return
	}

	complaint, err := h.engine.ApplyTransition(c.Request.Context(), services.TransitionRequest{
		ComplaintID: c.Param("id"),
		Action:      input.Action,
		Actor:       middleware.ActorFrom(c),
		Note:        input.Note,
		Payload:     input.Payload,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, h.view(c, complaint))
}

// GetCandidates ranks the employees that could take a complaint
// @Summary Rank assignment candidates
// @Tags Assignment
// @Produce json
// @Param id path string true "Complaint ID"
// @Success 200 {object} services.AssignmentResult
// @Failure 409 {object} middleware.ErrorResponse
// @Router /api/v1/complaints/{id}/candidates [get]
func (h *ComplaintHandler) GetCandidates(c *gin.Context) {
	result, err := h.allocator.Allocate(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ConfirmAssignment assigns an employee to a complaint
// @Summary Confirm assignment
// @Tags Assignment
// @Accept json
// @Produce json
// @Param id path string true "Complaint ID"
// @Param request body AssignmentInput true "Assignment"
// @Success 200 {object} ComplaintView
// @Failure 409 {object} middleware.ErrorResponse
// @Router /api/v1/complaints/{id}/assignment [post]
func (h *ComplaintHandler) ConfirmAssignment(c *gin.Context) {
	var input AssignmentInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err.Error())
		return
	}
	employeeID, err := uuid.Parse(input.EmployeeID)
	if err != nil {
		badRequest(c, "invalid employeeId")
		return
	}

	complaint, err := h.allocator.ConfirmAssignment(c.Request.Context(), c.Param("id"), employeeID, middleware.ActorFrom(c), input.Note)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, h.view(c, complaint))
}

// ReopenComplaint reopens a resolved, rejected or closed complaint
// @Summary Reopen complaint
// @Tags Complaints
// @Accept json
// @Produce json
// @Param id path string true "Complaint ID"
// @Param request body ReopenInput false "Reopen"
// @Success 200 {object} ComplaintView
// @Failure 403 {object} middleware.ErrorResponse
// @Failure 422 {object} middleware.ErrorResponse
// @Router /api/v1/complaints/{id}/reopen [post]
func (h *ComplaintHandler) ReopenComplaint(c *gin.Context) {
	var input ReopenInput
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&input); err != nil {
			badRequest(c, err.Error())
			return
		}
	}

	complaint, err := h.engine.Reopen(c.Request.Context(), c.Param("id"), middleware.ActorFrom(c), input.Note)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, h.view(c, complaint))
}
