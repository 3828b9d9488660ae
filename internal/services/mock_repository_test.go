package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"complaint-workflow-service/internal/models"
	"complaint-workflow-service/internal/repository"
)

// MockComplaintRepository is a mock implementation of ComplaintRepositoryInterface
type MockComplaintRepository struct {
	mock.Mock
}

// Ensure MockComplaintRepository implements the interface
var _ repository.ComplaintRepositoryInterface = (*MockComplaintRepository)(nil)

func (m *MockComplaintRepository) CreateComplaint(ctx context.Context, complaint *models.Complaint, entry *models.StatusHistoryEntry) error {
	args := m.Called(ctx, complaint, entry)
	return args.Error(0)
}

func (m *MockComplaintRepository) GetComplaintByID(ctx context.Context, id string) (*models.Complaint, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	// hand out a copy so callers cannot mutate the fixture
	complaint := *args.Get(0).(*models.Complaint)
	return &complaint, args.Error(1)
}

func (m *MockComplaintRepository) ListComplaints(ctx context.Context, filter repository.ComplaintFilter) ([]models.Complaint, int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]models.Complaint), args.Get(1).(int64), args.Error(2)
}

func (m *MockComplaintRepository) UpdateComplaint(ctx context.Context, complaint *models.Complaint, entry *models.StatusHistoryEntry) error {
	args := m.Called(ctx, complaint, entry)
	if args.Error(0) == nil {
		complaint.Version++
	}
	return args.Error(0)
}

func (m *MockComplaintRepository) GetComplaintHistory(ctx context.Context, complaintID string) ([]models.StatusHistoryEntry, error) {
	args := m.Called(ctx, complaintID)
	return args.Get(0).([]models.StatusHistoryEntry), args.Error(1)
}

func (m *MockComplaintRepository) FindSLABreached(ctx context.Context, now time.Time, limit int) ([]models.Complaint, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Complaint), args.Error(1)
}

func (m *MockComplaintRepository) CreateWorkflow(ctx context.Context, workflow *models.WorkflowDefinition) error {
	args := m.Called(ctx, workflow)
	return args.Error(0)
}

func (m *MockComplaintRepository) GetWorkflowByID(ctx context.Context, id uuid.UUID) (*models.WorkflowDefinition, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.WorkflowDefinition), args.Error(1)
}

func (m *MockComplaintRepository) ListWorkflows(ctx context.Context, category string) ([]models.WorkflowDefinition, error) {
	args := m.Called(ctx, category)
	return args.Get(0).([]models.WorkflowDefinition), args.Error(1)
}

func (m *MockComplaintRepository) ListActiveWorkflows(ctx context.Context, category string) ([]models.WorkflowDefinition, error) {
	args := m.Called(ctx, category)
	return args.Get(0).([]models.WorkflowDefinition), args.Error(1)
}

func (m *MockComplaintRepository) NextWorkflowVersion(ctx context.Context, category string) (int, error) {
	args := m.Called(ctx, category)
	return args.Int(0), args.Error(1)
}

func (m *MockComplaintRepository) SetWorkflowState(ctx context.Context, id uuid.UUID, state string, publishedAt *time.Time) error {
	args := m.Called(ctx, id, state, publishedAt)
	return args.Error(0)
}

func (m *MockComplaintRepository) DeactivateWorkflows(ctx context.Context, category string, except uuid.UUID) error {
	args := m.Called(ctx, category, except)
	return args.Error(0)
}

func (m *MockComplaintRepository) CreateEmployee(ctx context.Context, employee *models.Employee) error {
	args := m.Called(ctx, employee)
	return args.Error(0)
}

func (m *MockComplaintRepository) GetEmployeeByID(ctx context.Context, id uuid.UUID) (*models.Employee, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Employee), args.Error(1)
}

func (m *MockComplaintRepository) ListEmployees(ctx context.Context, limit, offset int) ([]models.Employee, int64, error) {
	args := m.Called(ctx, limit, offset)
	return args.Get(0).([]models.Employee), args.Get(1).(int64), args.Error(2)
}

func (m *MockComplaintRepository) ListEligibleEmployees(ctx context.Context) ([]models.Employee, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.Employee), args.Error(1)
}

func (m *MockComplaintRepository) ReserveEmployeeTask(ctx context.Context, employee *models.Employee) error {
	args := m.Called(ctx, employee)
	return args.Error(0)
}

func (m *MockComplaintRepository) ReleaseEmployeeTask(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockComplaintRepository) UpdateEmployeeAvailability(ctx context.Context, employee *models.Employee, availability string) error {
	args := m.Called(ctx, employee, availability)
	return args.Error(0)
}

func (m *MockComplaintRepository) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// WithTransaction runs fn against the mock itself
func (m *MockComplaintRepository) WithTransaction(ctx context.Context, fn func(txRepo repository.ComplaintRepositoryInterface) error) error {
	return fn(m)
}
