package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"complaint-workflow-service/internal/clock"
	"complaint-workflow-service/internal/events"
	"complaint-workflow-service/internal/metrics"
	"complaint-workflow-service/internal/models"
	"complaint-workflow-service/internal/repository"
)

// CreateComplaintInput is a citizen's new complaint
type CreateComplaintInput struct {
	Category    string          `json:"category"`
	Subcategory string          `json:"subcategory"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Priority    string          `json:"priority"`
	Location    models.Location `json:"location"`
	Citizen     models.Citizen  `json:"citizen"`
}

// ComplaintService creates and reads complaints. Workflow state is only
// changed through the TransitionEngine.
type ComplaintService struct {
	repo       repository.ComplaintRepositoryInterface
	registry   *WorkflowRegistry
	dispatcher events.Dispatcher
	clock      clock.Clock
	metrics    *metrics.Collector
	logger     *logrus.Entry
}

// NewComplaintService creates a new complaint service
func NewComplaintService(
	repo repository.ComplaintRepositoryInterface,
	registry *WorkflowRegistry,
	dispatcher events.Dispatcher,
	clk clock.Clock,
	collector *metrics.Collector,
	logger *logrus.Logger,
) *ComplaintService {
	if logger == nil {
		logger = logrus.New()
	}
	if clk == nil {
		clk = clock.System()
	}
	if dispatcher == nil {
		dispatcher = events.NewLogDispatcher(logger)
	}
	return &ComplaintService{
		repo:       repo,
		registry:   registry,
		dispatcher: dispatcher,
		clock:      clk,
		metrics:    collector,
		logger:     logger.WithField("component", "complaint-service"),
	}
}

// Create validates and stores a new complaint on the start step of the
// category's active workflow.
func (s *ComplaintService) Create(ctx context.Context, input CreateComplaintInput, actor models.Actor) (*models.Complaint, error) {
	input = normalizeInput(input, actor)
	if details := validateInput(input); len(details) > 0 {
		return nil, validationError(details)
	}

	workflow, err := s.registry.GetActiveDefinition(ctx, input.Category)
	if err != nil {
		return nil, err
	}
	graph, err := workflow.Graph()
	if err != nil {
		return nil, newError(ErrConfiguration, "workflow %s cannot be decoded: %v", workflow.ID, err)
	}
	start := graph.Start()
	if start == nil {
		return nil, newError(ErrConfiguration, "workflow %s has no start step", workflow.ID)
	}

	now := s.clock.Now().UTC().Truncate(time.Microsecond)
	complaint := &models.Complaint{
		Category:         input.Category,
		Subcategory:      input.Subcategory,
		Title:            input.Title,
		Description:      input.Description,
		Priority:         input.Priority,
		Location:         input.Location,
		Citizen:          input.Citizen,
		Status:           models.StatusForStep(start, false),
		WorkflowID:       workflow.ID,
		CurrentStepID:    start.StepID(),
		LastTransitionAt: now,
		CreatedAt:        now,
	}
	entry := &models.StatusHistoryEntry{
		Action:    models.ActionCreate,
		Status:    complaint.Status,
		StepID:    complaint.CurrentStepID,
		ActorID:   actor.ID,
		ActorRole: actor.Role,
		Timestamp: now,
	}

	if err := s.repo.CreateComplaint(ctx, complaint, entry); err != nil {
		return nil, fmt.Errorf("failed to create complaint: %w", err)
	}

	s.metrics.RecordComplaintCreated(complaint.Category)
	s.dispatcher.Dispatch(ctx, events.StatusChanged{
		ComplaintID: complaint.ID,
		NewStatus:   complaint.Status,
		ToStepID:    complaint.CurrentStepID,
		Action:      models.ActionCreate,
		ActorID:     actor.ID,
		ActorRole:   actor.Role,
		Timestamp:   now,
	})
	s.logger.WithFields(logrus.Fields{
		"complaintId": complaint.ID,
		"category":    complaint.Category,
		"workflowId":  workflow.ID,
	}).Info("Complaint created")

	return complaint, nil
}

func normalizeInput(input CreateComplaintInput, actor models.Actor) CreateComplaintInput {
	input.Category = strings.TrimSpace(input.Category)
	input.Subcategory = strings.TrimSpace(input.Subcategory)
	input.Title = strings.TrimSpace(input.Title)
	input.Description = strings.TrimSpace(input.Description)
	input.Priority = strings.ToLower(strings.TrimSpace(input.Priority))
	input.Location.Address = strings.TrimSpace(input.Location.Address)
	input.Location.Zone = strings.TrimSpace(input.Location.Zone)
	if input.Priority == "" {
		input.Priority = models.PriorityMedium
	}
	// citizens always file for themselves
	if actor.Role == models.RoleCitizen {
		input.Citizen.ID = actor.ID
		if input.Citizen.Name == "" {
			input.Citizen.Name = actor.Name
		}
	}
	return input
}

func validateInput(input CreateComplaintInput) []string {
	var details []string
	if input.Category == "" {
		details = append(details, "category is required")
	} else if !models.IsValidCategory(input.Category) {
		details = append(details, fmt.Sprintf("unknown category %q", input.Category))
	}
	if input.Title == "" {
		details = append(details, "title is required")
	} else if len(input.Title) > 255 {
		details = append(details, "title must be at most 255 characters")
	}
	if input.Description == "" {
		details = append(details, "description is required")
	}
	if !models.IsValidPriority(input.Priority) {
		details = append(details, fmt.Sprintf("unknown priority %q", input.Priority))
	}
	if input.Location.Address == "" {
		details = append(details, "location.address is required")
	}
	lat, lng := input.Location.Latitude, input.Location.Longitude
	if (lat == nil) != (lng == nil) {
		details = append(details, "location needs both latitude and longitude")
	}
	if lat != nil && (*lat < -90 || *lat > 90) {
		details = append(details, "location.latitude must be between -90 and 90")
	}
	if lng != nil && (*lng < -180 || *lng > 180) {
		details = append(details, "location.longitude must be between -180 and 180")
	}
	if strings.TrimSpace(input.Citizen.ID) == "" {
		details = append(details, "citizen.id is required")
	}
	return details
}

// Get returns a complaint by id
func (s *ComplaintService) Get(ctx context.Context, id string) (*models.Complaint, error) {
	complaint, err := s.repo.GetComplaintByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err, "complaint")
	}
	return complaint, nil
}

// List filters, sorts and pages complaints
func (s *ComplaintService) List(ctx context.Context, filter repository.ComplaintFilter) ([]models.Complaint, int64, error) {
	var details []string
	if filter.Status != "" && !models.IsValidStatus(filter.Status) {
		details = append(details, fmt.Sprintf("unknown status %q", filter.Status))
	}
	if filter.Priority != "" && !models.IsValidPriority(filter.Priority) {
		details = append(details, fmt.Sprintf("unknown priority %q", filter.Priority))
	}
	if filter.Category != "" && !models.IsValidCategory(filter.Category) {
		details = append(details, fmt.Sprintf("unknown category %q", filter.Category))
	}
	switch filter.Sort {
	case "", repository.SortNewest, repository.SortOldest, repository.SortPriority:
	default:
		details = append(details, fmt.Sprintf("unknown sort %q", filter.Sort))
	}
	if len(details) > 0 {
		return nil, 0, validationError(details)
	}

	complaints, total, err := s.repo.ListComplaints(ctx, repository.NormalizeFilter(filter))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list complaints: %w", err)
	}
	return complaints, total, nil
}

// History returns the ordered status history of a complaint
func (s *ComplaintService) History(ctx context.Context, id string) ([]models.StatusHistoryEntry, error) {
	if _, err := s.repo.GetComplaintByID(ctx, id); err != nil {
		return nil, mapRepoError(err, "complaint")
	}
	history, err := s.repo.GetComplaintHistory(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	return history, nil
}
