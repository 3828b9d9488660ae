package services

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"complaint-workflow-service/internal/clock"
	"complaint-workflow-service/internal/events"
	"complaint-workflow-service/internal/models"
	"complaint-workflow-service/internal/repository"
)

var testStart = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

var (
	adminActor    = models.Actor{ID: "admin-1", Role: models.RoleAdmin, Name: "Admin"}
	headActor     = models.Actor{ID: "head-1", Role: models.RoleDepartmentHead, Name: "Department Head"}
	workerActor   = models.Actor{ID: "worker-1", Role: models.RoleEmployee, Name: "Field Worker"}
	citizenActor  = models.Actor{ID: "citizen-1", Role: models.RoleCitizen, Name: "Asha"}
	strangerActor = models.Actor{ID: "citizen-2", Role: models.RoleCitizen, Name: "Ravi"}
)

// recordingDispatcher keeps every dispatched event for assertions
type recordingDispatcher struct {
	mu     sync.Mutex
	events []events.Event
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, event events.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
}

func (d *recordingDispatcher) Of(subject string) []events.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []events.Event
	for _, e := range d.events {
		if e.Subject() == subject {
			out = append(out, e)
		}
	}
	return out
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type testEnv struct {
	ctx        context.Context
	repo       *repository.MemoryRepository
	clock      *clock.Manual
	events     *recordingDispatcher
	registry   *WorkflowRegistry
	engine     *TransitionEngine
	allocator  *Allocator
	complaints *ComplaintService
	employees  *EmployeeService
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithConfig(t, EngineConfig{})
}

func newTestEnvWithConfig(t *testing.T, cfg EngineConfig) *testEnv {
	t.Helper()
	logger := quietLogger()
	repo := repository.NewMemoryRepository()
	clk := clock.NewManual(testStart)
	dispatcher := &recordingDispatcher{}

	registry := NewWorkflowRegistry(repo, nil, clk, logger)
	ranker := NewCandidateRanker(repo)
	engine := NewTransitionEngine(repo, registry, ranker, dispatcher, clk, nil, logger, cfg)

	return &testEnv{
		ctx:        context.Background(),
		repo:       repo,
		clock:      clk,
		events:     dispatcher,
		registry:   registry,
		engine:     engine,
		allocator:  NewAllocator(repo, ranker, engine, nil, logger),
		complaints: NewComplaintService(repo, registry, dispatcher, clk, nil, logger),
		employees:  NewEmployeeService(repo, logger),
	}
}

// scenarioWorkflow routes water supply complaints through automatic
// assignment, investigation, field work and a review decision.
func scenarioWorkflow() WorkflowDraft {
	return WorkflowDraft{
		Name:          "Water supply",
		Category:      models.CategoryWaterSupply,
		ReentryStepID: "investigation",
		Steps: []models.StepSpec{
			{ID: "submitted", Name: "Submitted", Type: models.StepTypeStart, Next: "auto_assignment"},
			{
				ID: "auto_assignment", Name: "Auto Assignment", Type: models.StepTypeAction,
				Next: "field_work", AssignmentMode: models.AssignmentAuto,
				TimeLimitHours: 1, EscalateTo: "investigation", EscalationRole: models.RoleDepartmentHead,
			},
			{
				ID: "investigation", Name: "Investigation", Type: models.StepTypeAction,
				Next: "field_work", AssignmentMode: models.AssignmentDepartmentHead,
			},
			{ID: "field_work", Name: "Field Work", Type: models.StepTypeAction, Next: "review"},
			{
				ID: "review", Name: "Review", Type: models.StepTypeDecision,
				Conditions: []models.Condition{
					{Field: "status", Operator: OpEquals, Value: "resolved", Next: "resolved"},
					{Field: "status", Operator: OpEquals, Value: "rejected", Next: "rejected"},
					{Field: "status", Operator: OpEquals, Value: "escalate", Next: "escalation"},
				},
			},
			{
				ID: "escalation", Name: "Escalation", Type: models.StepTypeAction,
				Next: "field_work", AssignmentMode: models.AssignmentDepartmentHead,
				TimeLimitHours: 24, EscalateTo: "investigation",
			},
			{ID: "resolved", Name: "Resolved", Type: models.StepTypeEnd, Outcome: models.StatusResolved},
			{ID: "rejected", Name: "Rejected", Type: models.StepTypeEnd, Outcome: models.StatusRejected},
		},
	}
}

// loopWorkflow bounces between triage and supervisor on every missed deadline
func loopWorkflow() WorkflowDraft {
	return WorkflowDraft{
		Name:          "Roads",
		Category:      models.CategoryRoads,
		ReentryStepID: "triage",
		Steps: []models.StepSpec{
			{ID: "start", Name: "Start", Type: models.StepTypeStart, Next: "triage"},
			{
				ID: "triage", Name: "Triage", Type: models.StepTypeAction, Next: "work",
				AssignmentMode: models.AssignmentManual, TimeLimitHours: 1, EscalateTo: "supervisor",
			},
			{
				ID: "supervisor", Name: "Supervisor", Type: models.StepTypeAction, Next: "work",
				AssignmentMode: models.AssignmentDepartmentHead, TimeLimitHours: 1, EscalateTo: "triage",
			},
			{ID: "work", Name: "Work", Type: models.StepTypeAction, Next: "done"},
			{ID: "done", Name: "Done", Type: models.StepTypeEnd, Outcome: models.StatusResolved},
		},
	}
}

// autoCloseWorkflow closes road complaints whose work step runs out of time
func autoCloseWorkflow() WorkflowDraft {
	return WorkflowDraft{
		Name:          "Roads",
		Category:      models.CategoryRoads,
		ReentryStepID: "triage",
		Steps: []models.StepSpec{
			{ID: "start", Name: "Start", Type: models.StepTypeStart, Next: "triage"},
			{
				ID: "triage", Name: "Triage", Type: models.StepTypeAction, Next: "work",
				AssignmentMode: models.AssignmentManual,
			},
			{
				ID: "work", Name: "Work", Type: models.StepTypeAction, Next: "done",
				TimeLimitHours: 1, EscalateTo: "closed",
			},
			{ID: "done", Name: "Done", Type: models.StepTypeEnd, Outcome: models.StatusResolved},
			{ID: "closed", Name: "Closed", Type: models.StepTypeEnd, Outcome: models.StatusClosed},
		},
	}
}

// toWork assigns a single-slot employee to a fresh road complaint and
// moves it onto the timed work step
func (env *testEnv) toWork(t *testing.T) (*models.Complaint, *models.Employee) {
	t.Helper()
	employee := env.addEmployee(t, "Ravi", func(in *CreateEmployeeInput) { in.MaxCapacity = 1 })
	complaint := env.createComplaint(t, models.CategoryRoads)

	complaint, err := env.allocator.ConfirmAssignment(env.ctx, complaint.ID, employee.ID, headActor, "")
	require.NoError(t, err)
	require.Equal(t, "triage", complaint.CurrentStepID)
	require.Equal(t, 1, env.employee(t, employee).ActiveTaskCount)

	complaint = env.apply(t, complaint.ID, models.ActionAdvance, nil)
	require.Equal(t, "work", complaint.CurrentStepID)
	return complaint, employee
}

func (env *testEnv) publish(t *testing.T, draft WorkflowDraft) *models.WorkflowDefinition {
	t.Helper()
	created, err := env.registry.CreateDraft(env.ctx, draft, adminActor)
	require.NoError(t, err)
	published, err := env.registry.Publish(env.ctx, created.ID, adminActor)
	require.NoError(t, err)
	return published
}

func complaintInput(category string) CreateComplaintInput {
	return CreateComplaintInput{
		Category:    category,
		Title:       "No water since morning",
		Description: "The main line on our street is dry",
		Priority:    models.PriorityHigh,
		Location:    models.Location{Address: "12 Lake Road", Zone: "north"},
	}
}

func (env *testEnv) createComplaint(t *testing.T, category string) *models.Complaint {
	t.Helper()
	complaint, err := env.complaints.Create(env.ctx, complaintInput(category), citizenActor)
	require.NoError(t, err)
	return complaint
}

func (env *testEnv) addEmployee(t *testing.T, name string, mutate func(*CreateEmployeeInput)) *models.Employee {
	t.Helper()
	input := CreateEmployeeInput{
		Name:            name,
		Zone:            "north",
		Specializations: []string{models.CategoryWaterSupply},
		MaxCapacity:     3,
		Rating:          4,
	}
	if mutate != nil {
		mutate(&input)
	}
	employee, err := env.employees.Create(env.ctx, input)
	require.NoError(t, err)
	return employee
}

func (env *testEnv) apply(t *testing.T, id, action string, payload map[string]interface{}) *models.Complaint {
	t.Helper()
	complaint, err := env.engine.ApplyTransition(env.ctx, TransitionRequest{
		ComplaintID: id,
		Action:      action,
		Actor:       workerActor,
		Payload:     payload,
	})
	require.NoError(t, err)
	return complaint
}

func (env *testEnv) get(t *testing.T, id string) *models.Complaint {
	t.Helper()
	complaint, err := env.complaints.Get(env.ctx, id)
	require.NoError(t, err)
	return complaint
}

func (env *testEnv) history(t *testing.T, id string) []models.StatusHistoryEntry {
	t.Helper()
	history, err := env.complaints.History(env.ctx, id)
	require.NoError(t, err)
	return history
}

func (env *testEnv) employee(t *testing.T, e *models.Employee) *models.Employee {
	t.Helper()
	stored, err := env.employees.Get(env.ctx, e.ID)
	require.NoError(t, err)
	return stored
}

// toReview drives a fresh complaint onto the review decision with an employee assigned
func (env *testEnv) toReview(t *testing.T) (*models.Complaint, *models.Employee) {
	t.Helper()
	employee := env.addEmployee(t, "Meera", nil)
	complaint := env.createComplaint(t, models.CategoryWaterSupply)

	complaint = env.apply(t, complaint.ID, models.ActionAdvance, nil)
	require.Equal(t, "auto_assignment", complaint.CurrentStepID)
	require.True(t, complaint.IsAssigned())

	complaint = env.apply(t, complaint.ID, models.ActionAdvance, nil)
	require.Equal(t, "field_work", complaint.CurrentStepID)
	complaint = env.apply(t, complaint.ID, models.ActionAdvance, nil)
	require.Equal(t, "review", complaint.CurrentStepID)
	return complaint, employee
}
