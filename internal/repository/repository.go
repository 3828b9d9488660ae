package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"complaint-workflow-service/internal/models"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrVersionConflict  = errors.New("version conflict - record was modified by another request")
	ErrCapacityExceeded = errors.New("employee is at maximum capacity")
)

// Sort keys for complaint listings
const (
	SortNewest   = "newest"
	SortOldest   = "oldest"
	SortPriority = "priority"
)

// ComplaintFilter narrows a complaint listing. Empty fields match everything.
type ComplaintFilter struct {
	Status             string
	Priority           string
	Category           string
	AssignedEmployeeID *uuid.UUID
	CitizenID          string
	Query              string
	Sort               string
	Limit              int
	Offset             int
}

// ComplaintRepositoryInterface is the persistence contract of the service.
// Writes that carry a version fail with ErrVersionConflict when the stored
// row has moved on.
type ComplaintRepositoryInterface interface {
	// CreateComplaint assigns the complaint id and stores it with its first history entry
	CreateComplaint(ctx context.Context, complaint *models.Complaint, entry *models.StatusHistoryEntry) error
	GetComplaintByID(ctx context.Context, id string) (*models.Complaint, error)
	ListComplaints(ctx context.Context, filter ComplaintFilter) ([]models.Complaint, int64, error)
	// UpdateComplaint writes the mutable fields if complaint.Version still matches,
	// bumps the version and appends entry with Sequence equal to the new version
	UpdateComplaint(ctx context.Context, complaint *models.Complaint, entry *models.StatusHistoryEntry) error
	GetComplaintHistory(ctx context.Context, complaintID string) ([]models.StatusHistoryEntry, error)
	FindSLABreached(ctx context.Context, now time.Time, limit int) ([]models.Complaint, error)

	CreateWorkflow(ctx context.Context, workflow *models.WorkflowDefinition) error
	GetWorkflowByID(ctx context.Context, id uuid.UUID) (*models.WorkflowDefinition, error)
	ListWorkflows(ctx context.Context, category string) ([]models.WorkflowDefinition, error)
	ListActiveWorkflows(ctx context.Context, category string) ([]models.WorkflowDefinition, error)
	NextWorkflowVersion(ctx context.Context, category string) (int, error)
	SetWorkflowState(ctx context.Context, id uuid.UUID, state string, publishedAt *time.Time) error
	DeactivateWorkflows(ctx context.Context, category string, except uuid.UUID) error

	CreateEmployee(ctx context.Context, employee *models.Employee) error
	GetEmployeeByID(ctx context.Context, id uuid.UUID) (*models.Employee, error)
	ListEmployees(ctx context.Context, limit, offset int) ([]models.Employee, int64, error)
	ListEligibleEmployees(ctx context.Context) ([]models.Employee, error)
	// ReserveEmployeeTask increments the active task count if the version
	// matches and capacity allows
	ReserveEmployeeTask(ctx context.Context, employee *models.Employee) error
	// ReleaseEmployeeTask decrements the active task count, never below zero
	ReleaseEmployeeTask(ctx context.Context, id uuid.UUID) error
	UpdateEmployeeAvailability(ctx context.Context, employee *models.Employee, availability string) error

	Ping(ctx context.Context) error
	WithTransaction(ctx context.Context, fn func(txRepo ComplaintRepositoryInterface) error) error
}

// NormalizeFilter applies listing defaults and bounds
func NormalizeFilter(f ComplaintFilter) ComplaintFilter {
	if f.Limit < 1 || f.Limit > 100 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	switch f.Sort {
	case SortNewest, SortOldest, SortPriority:
	default:
		f.Sort = SortNewest
	}
	return f
}
