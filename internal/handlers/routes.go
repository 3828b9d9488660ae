package handlers

import (
	"github.com/gin-gonic/gin"

	"complaint-workflow-service/internal/middleware"
	"complaint-workflow-service/internal/models"
)

// Handlers bundles the API handlers
type Handlers struct {
	Complaints *ComplaintHandler
	Workflows  *WorkflowHandler
	Employees  *EmployeeHandler
	Export     *ExportHandler
}

// RegisterRoutes mounts the API on api. createLimit guards complaint
// creation and may be nil.
func RegisterRoutes(api *gin.RouterGroup, h Handlers, createLimit gin.HandlerFunc) {
	staff := middleware.RequireRole(models.RoleEmployee, models.RoleDepartmentHead, models.RoleAdmin)
	supervisors := middleware.RequireRole(models.RoleDepartmentHead, models.RoleAdmin)

	complaints := api.Group("/complaints")
	{
		if createLimit != nil {
			complaints.POST("", createLimit, h.Complaints.CreateComplaint)
		} else {
			complaints.POST("", h.Complaints.CreateComplaint)
		}
		complaints.GET("", h.Complaints.ListComplaints)
		complaints.GET("/export", supervisors, h.Export.ExportComplaints)
		complaints.GET("/:id", h.Complaints.GetComplaint)
		complaints.GET("/:id/history", h.Complaints.GetHistory)
		complaints.POST("/:id/transitions", staff, h.Complaints.ApplyTransition)
		complaints.GET("/:id/candidates", supervisors, h.Complaints.GetCandidates)
		complaints.POST("/:id/assignment", supervisors, h.Complaints.ConfirmAssignment)
		complaints.POST("/:id/reopen", h.Complaints.ReopenComplaint)
	}

	admin := api.Group("/admin")
	workflows := admin.Group("/workflows", middleware.RequireRole(models.RoleAdmin))
	{
		workflows.GET("", h.Workflows.ListWorkflows)
		workflows.POST("", h.Workflows.CreateWorkflow)
		workflows.POST("/validate", h.Workflows.ValidateWorkflow)
		workflows.GET("/:id", h.Workflows.GetWorkflow)
		workflows.POST("/:id/publish", h.Workflows.PublishWorkflow)
	}

	employees := admin.Group("/employees", supervisors)
	{
		employees.GET("", h.Employees.ListEmployees)
		employees.POST("", h.Employees.CreateEmployee)
		employees.GET("/:id", h.Employees.GetEmployee)
		employees.PATCH("/:id/availability", h.Employees.UpdateAvailability)
	}
}
