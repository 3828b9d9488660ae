package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"complaint-workflow-service/internal/models"
	"complaint-workflow-service/internal/repository"
)

// CreateEmployeeInput registers an employee that complaints can be assigned to
type CreateEmployeeInput struct {
	Name            string   `json:"name"`
	Role            string   `json:"role"`
	Zone            string   `json:"zone"`
	Specializations []string `json:"specializations"`
	MaxCapacity     int      `json:"maxCapacity"`
	Availability    string   `json:"availability"`
	Latitude        *float64 `json:"latitude"`
	Longitude       *float64 `json:"longitude"`
	Rating          float64  `json:"rating"`
}

// EmployeeService manages the employee roster used by the allocator
type EmployeeService struct {
	repo   repository.ComplaintRepositoryInterface
	logger *logrus.Entry
}

// NewEmployeeService creates a new employee service
func NewEmployeeService(repo repository.ComplaintRepositoryInterface, logger *logrus.Logger) *EmployeeService {
	if logger == nil {
		logger = logrus.New()
	}
	return &EmployeeService{repo: repo, logger: logger.WithField("component", "employee-service")}
}

// Create stores a new employee
func (s *EmployeeService) Create(ctx context.Context, input CreateEmployeeInput) (*models.Employee, error) {
	if input.Role == "" {
		input.Role = models.RoleEmployee
	}
	if input.Availability == "" {
		input.Availability = models.AvailabilityAvailable
	}
	if input.MaxCapacity == 0 {
		input.MaxCapacity = 5
	}

	var details []string
	if strings.TrimSpace(input.Name) == "" {
		details = append(details, "name is required")
	}
	if input.Role != models.RoleEmployee && input.Role != models.RoleDepartmentHead {
		details = append(details, fmt.Sprintf("role must be %s or %s", models.RoleEmployee, models.RoleDepartmentHead))
	}
	if !models.IsValidAvailability(input.Availability) {
		details = append(details, fmt.Sprintf("unknown availability %q", input.Availability))
	}
	if input.MaxCapacity < 1 {
		details = append(details, "maxCapacity must be positive")
	}
	if input.Rating < 0 || input.Rating > 5 {
		details = append(details, "rating must be between 0 and 5")
	}
	if (input.Latitude == nil) != (input.Longitude == nil) {
		details = append(details, "location needs both latitude and longitude")
	}
	if len(details) > 0 {
		return nil, validationError(details)
	}

	employee := &models.Employee{
		Name:            strings.TrimSpace(input.Name),
		Role:            input.Role,
		Zone:            strings.TrimSpace(input.Zone),
		Specializations: input.Specializations,
		MaxCapacity:     input.MaxCapacity,
		Availability:    input.Availability,
		Latitude:        input.Latitude,
		Longitude:       input.Longitude,
		Rating:          input.Rating,
		Version:         1,
	}
	if err := s.repo.CreateEmployee(ctx, employee); err != nil {
		return nil, fmt.Errorf("failed to create employee: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"employeeId": employee.ID,
		"zone":       employee.Zone,
	}).Info("Employee created")
	return employee, nil
}

// Get returns an employee by id
func (s *EmployeeService) Get(ctx context.Context, id uuid.UUID) (*models.Employee, error) {
	employee, err := s.repo.GetEmployeeByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err, "employee")
	}
	return employee, nil
}

// List pages through employees
func (s *EmployeeService) List(ctx context.Context, limit, offset int) ([]models.Employee, int64, error) {
	if limit < 1 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	employees, total, err := s.repo.ListEmployees(ctx, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list employees: %w", err)
	}
	return employees, total, nil
}

// SetAvailability changes an employee's availability
func (s *EmployeeService) SetAvailability(ctx context.Context, id uuid.UUID, availability string) (*models.Employee, error) {
	if !models.IsValidAvailability(availability) {
		return nil, validationError([]string{fmt.Sprintf("unknown availability %q", availability)})
	}

	employee, err := s.repo.GetEmployeeByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err, "employee")
	}
	if employee.Availability == availability {
		return employee, nil
	}
	if err := s.repo.UpdateEmployeeAvailability(ctx, employee, availability); err != nil {
		return nil, mapRepoError(err, "employee")
	}

	s.logger.WithFields(logrus.Fields{
		"employeeId":   id,
		"availability": availability,
	}).Info("Employee availability changed")
	return employee, nil
}
