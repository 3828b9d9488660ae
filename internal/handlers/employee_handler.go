package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"complaint-workflow-service/internal/services"
)

// EmployeeHandler handles the employee roster
type EmployeeHandler struct {
	employees *services.EmployeeService
	logger    *logrus.Entry
}

// NewEmployeeHandler creates a new EmployeeHandler
func NewEmployeeHandler(employees *services.EmployeeService, logger *logrus.Logger) *EmployeeHandler {
	if logger == nil {
		logger = logrus.New()
	}
	return &EmployeeHandler{employees: employees, logger: logger.WithField("component", "employee-handler")}
}

// AvailabilityInput is the body of an availability change
type AvailabilityInput struct {
	Availability string `json:"availability" binding:"required"`
}

// ListEmployees lists employees
// @Summary List employees
// @Tags Employees
// @Produce json
// @Param limit query int false "Limit" default(20)
// @Param offset query int false "Offset" default(0)
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/admin/employees [get]
func (h *EmployeeHandler) ListEmployees(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit < 1 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	employees, total, err := h.employees.List(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":   employees,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// CreateEmployee registers an employee
// @Summary Create employee
// @Tags Employees
// @Accept json
// @Produce json
// @Param request body services.CreateEmployeeInput true "Employee"
// @Success 201 {object} models.Employee
// @Router /api/v1/admin/employees [post]
func (h *EmployeeHandler) CreateEmployee(c *gin.Context) {
	var input services.CreateEmployeeInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err.Error())
		return
	}

	employee, err := h.employees.Create(c.Request.Context(), input)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, employee)
}

// GetEmployee retrieves an employee by ID
// @Summary Get employee
// @Tags Employees
// @Produce json
// @Param id path string true "Employee ID"
// @Success 200 {object} models.Employee
// @Router /api/v1/admin/employees/{id} [get]
func (h *EmployeeHandler) GetEmployee(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid employee id")
		return
	}

	employee, err := h.employees.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, employee)
}

// UpdateAvailability sets an employee available, busy or offline
// @Summary Update employee availability
// @Tags Employees
// @Accept json
// @Produce json
// @Param id path string true "Employee ID"
// @Param request body AvailabilityInput true "Availability"
// @Success 200 {object} models.Employee
// @Router /api/v1/admin/employees/{id}/availability [patch]
func (h *EmployeeHandler) UpdateAvailability(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid employee id")
		return
	}

	var input AvailabilityInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err.Error())
		return
	}

	employee, err := h.employees.SetAvailability(c.Request.Context(), id, input.Availability)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, employee)
}
