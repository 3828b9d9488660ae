package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"complaint-workflow-service/internal/clock"
	"complaint-workflow-service/internal/events"
	"complaint-workflow-service/internal/metrics"
	"complaint-workflow-service/internal/models"
	"complaint-workflow-service/internal/repository"
)

// ActionDecide is the conventional action for decision steps. Any action
// that is not reserved is evaluated against the step's conditions.
const ActionDecide = "decide"

// DefaultMaxEscalations bounds automatic SLA escalations per complaint
const DefaultMaxEscalations = 3

// TransitionRequest asks the engine to move a complaint
type TransitionRequest struct {
	ComplaintID string
	Action      string
	Actor       models.Actor
	Note        string
	Payload     map[string]interface{}
}

// EngineConfig tunes the transition engine
type EngineConfig struct {
	MaxEscalations int
}

// TransitionEngine is the only writer of complaint workflow state
type TransitionEngine struct {
	repo           repository.ComplaintRepositoryInterface
	registry       *WorkflowRegistry
	ranker         *CandidateRanker
	dispatcher     events.Dispatcher
	clock          clock.Clock
	metrics        *metrics.Collector
	logger         *logrus.Entry
	maxEscalations int
}

// NewTransitionEngine creates the engine
func NewTransitionEngine(
	repo repository.ComplaintRepositoryInterface,
	registry *WorkflowRegistry,
	ranker *CandidateRanker,
	dispatcher events.Dispatcher,
	clk clock.Clock,
	collector *metrics.Collector,
	logger *logrus.Logger,
	cfg EngineConfig,
) *TransitionEngine {
	if logger == nil {
		logger = logrus.New()
	}
	if clk == nil {
		clk = clock.System()
	}
	if dispatcher == nil {
		dispatcher = events.NewLogDispatcher(logger)
	}
	if cfg.MaxEscalations < 1 {
		cfg.MaxEscalations = DefaultMaxEscalations
	}
	return &TransitionEngine{
		repo:           repo,
		registry:       registry,
		ranker:         ranker,
		dispatcher:     dispatcher,
		clock:          clk,
		metrics:        collector,
		logger:         logger.WithField("component", "transition-engine"),
		maxEscalations: cfg.MaxEscalations,
	}
}

// stepChange is one planned write: the complaint after the move, its
// history entry and the employee bookkeeping that goes with it.
type stepChange struct {
	before     models.Complaint
	after      models.Complaint
	target     models.Step
	status     string // overrides the derived status when set
	entry      models.StatusHistoryEntry
	assignee   *models.Employee
	candidates []AssignmentCandidate
	release    *uuid.UUID
}

type commitResult struct {
	complaint models.Complaint
	assigned  *models.Employee
}

// ApplyTransition performs one workflow action. On failure nothing is written.
func (e *TransitionEngine) ApplyTransition(ctx context.Context, req TransitionRequest) (complaint *models.Complaint, err error) {
	defer func() { e.metrics.RecordTransition(req.Action, err) }()

	if req.Action == "" {
		return nil, validationError([]string{"action is required"})
	}
	if req.Action == models.ActionReopen {
		return e.reopen(ctx, req.ComplaintID, req.Actor, req.Note)
	}

	current, graph, step, err := e.load(ctx, req.ComplaintID)
	if err != nil {
		return nil, err
	}
	if current.IsTerminal() {
		return nil, invalidTransition(current, graph, "complaint is %s, only reopen is allowed", current.Status)
	}

	target, err := e.resolveTarget(current, graph, step, req)
	if err != nil {
		return nil, err
	}

	change, err := e.planEntry(ctx, current, graph, target, req.Action, req.Actor, req.Note, req.Payload, nil)
	if err != nil {
		return nil, err
	}

	result, err := e.commit(ctx, change)
	if err != nil {
		return nil, err
	}
	e.emit(ctx, change, result, req.Actor)
	return &result.complaint, nil
}

// Reopen moves a resolved, rejected or closed complaint back to the
// re-entry step of its workflow.
func (e *TransitionEngine) Reopen(ctx context.Context, complaintID string, actor models.Actor, note string) (complaint *models.Complaint, err error) {
	defer func() { e.metrics.RecordTransition(models.ActionReopen, err) }()
	return e.reopen(ctx, complaintID, actor, note)
}

func (e *TransitionEngine) reopen(ctx context.Context, complaintID string, actor models.Actor, note string) (*models.Complaint, error) {
	current, graph, _, err := e.load(ctx, complaintID)
	if err != nil {
		return nil, err
	}
	if !CanReopen(actor, current) {
		return nil, newError(ErrForbidden, "role %q cannot reopen complaint %s", actor.Role, complaintID)
	}
	if !current.IsTerminal() {
		return nil, invalidTransition(current, graph, "only resolved, rejected or closed complaints can be reopened")
	}

	if graph.ReentryStepID == "" {
		return nil, newError(ErrConfiguration, "workflow %s defines no re-entry step", graph.DefinitionID)
	}
	target, err := stepOf(graph, graph.ReentryStepID)
	if err != nil {
		return nil, err
	}
	switch target.(type) {
	case models.StartStep, models.EndStep:
		return nil, newError(ErrConfiguration, "re-entry step %q of workflow %s is a %s step", target.StepID(), graph.DefinitionID, target.Type())
	}

	cleared := *current
	cleared.AssignedEmployeeID = nil
	cleared.EscalationCount = 0
	cleared.EscalationLocked = false

	change, err := e.planEntry(ctx, &cleared, graph, target, models.ActionReopen, actor, note, nil, nil)
	if err != nil {
		return nil, err
	}
	change.before = *current

	result, err := e.commit(ctx, change)
	if err != nil {
		return nil, err
	}
	e.emit(ctx, change, result, actor)
	return &result.complaint, nil
}

// CanReopen reports whether actor may reopen the complaint
func CanReopen(actor models.Actor, complaint *models.Complaint) bool {
	switch actor.Role {
	case models.RoleAdmin, models.RoleDepartmentHead:
		return true
	case models.RoleCitizen:
		return actor.ID != "" && actor.ID == complaint.Citizen.ID
	}
	return false
}

// assign puts employee on the complaint. From the start step the complaint
// advances to the next step, otherwise it stays where it is.
func (e *TransitionEngine) assign(ctx context.Context, current *models.Complaint, employee *models.Employee, actor models.Actor, note string) (complaint *models.Complaint, err error) {
	defer func() { e.metrics.RecordTransition(models.ActionAssign, err) }()

	graph, err := e.registry.Graph(ctx, current.WorkflowID)
	if err != nil {
		return nil, err
	}
	step, err := stepOf(graph, current.CurrentStepID)
	if err != nil {
		return nil, err
	}

	target := step
	if start, ok := step.(models.StartStep); ok {
		if target, err = stepOf(graph, start.Next); err != nil {
			return nil, err
		}
	}
	if _, ok := target.(models.EndStep); ok {
		return nil, invalidTransition(current, graph, "cannot assign on an end step")
	}

	change, err := e.planEntry(ctx, current, graph, target, models.ActionAssign, actor, note, nil, employee)
	if err != nil {
		return nil, err
	}

	result, err := e.commit(ctx, change)
	if err != nil {
		return nil, err
	}
	e.emit(ctx, change, result, actor)
	return &result.complaint, nil
}

// AllowedActions lists the actions a complaint accepts in its current state
func (e *TransitionEngine) AllowedActions(ctx context.Context, complaint *models.Complaint) ([]string, error) {
	graph, err := e.registry.Graph(ctx, complaint.WorkflowID)
	if err != nil {
		return nil, err
	}
	return allowedActions(complaint, graph), nil
}

func allowedActions(c *models.Complaint, graph *models.Graph) []string {
	if c.IsTerminal() {
		return []string{models.ActionReopen}
	}
	step, ok := graph.Step(c.CurrentStepID)
	if !ok {
		return nil
	}

	var actions []string
	linear := func(nextID string, sla models.SLAPolicy) {
		if next, ok := graph.Step(nextID); ok {
			if end, isEnd := next.(models.EndStep); isEnd {
				actions = append(actions, models.ActionAdvance, actionForOutcome(end.Outcome))
			} else if a, isAction := next.(models.ActionStep); !isAction || !a.RequiresAssignee() || c.IsAssigned() {
				actions = append(actions, models.ActionAdvance)
			}
		}
		if sla.EscalateTo != "" {
			actions = append(actions, models.ActionEscalate)
		}
	}

	switch s := step.(type) {
	case models.StartStep:
		linear(s.Next, models.SLAPolicy{})
		if !c.IsAssigned() {
			actions = append(actions, models.ActionAssign)
		}
	case models.ActionStep:
		linear(s.Next, s.SLA)
		if s.AssignmentMode != "" && !c.IsAssigned() {
			actions = append(actions, models.ActionAssign)
		}
	case models.DecisionStep:
		actions = append(actions, ActionDecide)
		if s.SLA.EscalateTo != "" {
			actions = append(actions, models.ActionEscalate)
		}
	}
	return actions
}

func (e *TransitionEngine) load(ctx context.Context, complaintID string) (*models.Complaint, *models.Graph, models.Step, error) {
	complaint, err := e.repo.GetComplaintByID(ctx, complaintID)
	if err != nil {
		return nil, nil, nil, mapRepoError(err, "complaint")
	}
	graph, err := e.registry.Graph(ctx, complaint.WorkflowID)
	if err != nil {
		return nil, nil, nil, err
	}
	step, err := stepOf(graph, complaint.CurrentStepID)
	if err != nil {
		return nil, nil, nil, err
	}
	return complaint, graph, step, nil
}

func stepOf(graph *models.Graph, id string) (models.Step, error) {
	step, ok := graph.Step(id)
	if !ok {
		return nil, newError(ErrConfiguration, "workflow %s has no step %q", graph.DefinitionID, id)
	}
	return step, nil
}

func (e *TransitionEngine) resolveTarget(c *models.Complaint, graph *models.Graph, step models.Step, req TransitionRequest) (models.Step, error) {
	switch s := step.(type) {
	case models.StartStep:
		return linearTarget(c, graph, s.Next, models.SLAPolicy{}, req.Action)
	case models.ActionStep:
		return linearTarget(c, graph, s.Next, s.SLA, req.Action)
	case models.DecisionStep:
		if req.Action == models.ActionEscalate {
			return escalationTarget(c, graph, s.SLA)
		}
		if isReservedAction(req.Action) {
			return nil, invalidTransition(c, graph, "action %q is not allowed on decision step %q", req.Action, s.ID)
		}
		next, ok := EvaluateConditions(s.Conditions, req.Payload)
		if !ok {
			return nil, &Error{
				Kind:           ErrNoMatchingCondition,
				Message:        fmt.Sprintf("no condition of decision step %q matches the payload", s.ID),
				CurrentStatus:  c.Status,
				AllowedActions: allowedActions(c, graph),
			}
		}
		return stepOf(graph, next)
	}
	return nil, invalidTransition(c, graph, "step %q has no outgoing transitions", step.StepID())
}

func linearTarget(c *models.Complaint, graph *models.Graph, nextID string, sla models.SLAPolicy, action string) (models.Step, error) {
	switch action {
	case models.ActionAdvance:
		return stepOf(graph, nextID)
	case models.ActionResolve, models.ActionReject, models.ActionClose:
		next, err := stepOf(graph, nextID)
		if err != nil {
			return nil, err
		}
		if end, ok := next.(models.EndStep); ok && end.Outcome == outcomeForAction(action) {
			return next, nil
		}
		return nil, invalidTransition(c, graph, "action %q is not available from step %q", action, c.CurrentStepID)
	case models.ActionEscalate:
		return escalationTarget(c, graph, sla)
	}
	return nil, invalidTransition(c, graph, "unknown action %q for step %q", action, c.CurrentStepID)
}

func escalationTarget(c *models.Complaint, graph *models.Graph, sla models.SLAPolicy) (models.Step, error) {
	if sla.EscalateTo == "" {
		return nil, invalidTransition(c, graph, "step %q has no escalation target", c.CurrentStepID)
	}
	return stepOf(graph, sla.EscalateTo)
}

func isReservedAction(action string) bool {
	switch action {
	case models.ActionCreate, models.ActionAssign, models.ActionReopen, models.ActionResolve,
		models.ActionReject, models.ActionClose, models.ActionSLAEscalate, models.ActionSLAFlag, models.ActionSLAExhaust:
		return true
	}
	return false
}

func outcomeForAction(action string) string {
	switch action {
	case models.ActionResolve:
		return models.StatusResolved
	case models.ActionReject:
		return models.StatusRejected
	case models.ActionClose:
		return models.StatusClosed
	}
	return ""
}

func actionForOutcome(outcome string) string {
	switch outcome {
	case models.StatusResolved:
		return models.ActionResolve
	case models.StatusRejected:
		return models.ActionReject
	}
	return models.ActionClose
}

func invalidTransition(c *models.Complaint, graph *models.Graph, format string, args ...interface{}) *Error {
	return &Error{
		Kind:           ErrInvalidTransition,
		Message:        fmt.Sprintf(format, args...),
		CurrentStatus:  c.Status,
		AllowedActions: allowedActions(c, graph),
	}
}

// nextTimestamp keeps transition times strictly increasing per complaint
func (e *TransitionEngine) nextTimestamp(c *models.Complaint) time.Time {
	now := e.clock.Now().UTC().Truncate(time.Microsecond)
	if !now.After(c.LastTransitionAt) {
		now = c.LastTransitionAt.Add(time.Microsecond)
	}
	return now
}

// planEntry prepares moving c into target. assignee is set when the move
// also assigns an employee.
func (e *TransitionEngine) planEntry(
	ctx context.Context,
	c *models.Complaint,
	graph *models.Graph,
	target models.Step,
	action string,
	actor models.Actor,
	note string,
	payload map[string]interface{},
	assignee *models.Employee,
) (*stepChange, error) {
	assigned := c.IsAssigned() || assignee != nil

	actionStep, isAction := target.(models.ActionStep)
	if isAction && actionStep.RequiresAssignee() && !assigned {
		return nil, invalidTransition(c, graph, "step %q requires an assigned employee", target.StepID())
	}

	now := e.nextTimestamp(c)
	after := *c
	after.CurrentStepID = target.StepID()
	after.LastTransitionAt = now
	after.EscalationLocked = false
	after.SLADeadline = nil
	if sla, ok := models.SLAOf(target); ok && sla.TimeLimit() > 0 {
		deadline := now.Add(sla.TimeLimit())
		after.SLADeadline = &deadline
	}

	change := &stepChange{
		before:   *c,
		after:    after,
		target:   target,
		assignee: assignee,
		entry: models.StatusHistoryEntry{
			Action:     action,
			FromStatus: c.Status,
			StepID:     target.StepID(),
			ActorID:    actor.ID,
			ActorRole:  actor.Role,
			Note:       note,
			Timestamp:  now,
		},
	}

	// an end step frees the assignee's slot whichever path led there
	if _, ok := target.(models.EndStep); ok && c.IsAssigned() {
		id := *c.AssignedEmployeeID
		change.release = &id
	}

	if len(payload) > 0 {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, validationError([]string{fmt.Sprintf("payload cannot be encoded: %v", err)})
		}
		change.entry.Payload = datatypes.JSON(data)
	}

	if isAction && actionStep.AssignmentMode == models.AssignmentAuto && !assigned && e.ranker != nil {
		candidates, err := e.ranker.Rank(ctx, c)
		if err != nil {
			return nil, err
		}
		change.candidates = candidates
	}
	return change, nil
}

// commit writes a planned change in one transaction. The function body may
// run more than once when the store retries, so it only works on copies.
func (e *TransitionEngine) commit(ctx context.Context, change *stepChange) (*commitResult, error) {
	var result commitResult

	err := e.repo.WithTransaction(ctx, func(txRepo repository.ComplaintRepositoryInterface) error {
		after := change.after
		entry := change.entry
		var assigned *models.Employee

		if change.release != nil {
			if err := txRepo.ReleaseEmployeeTask(ctx, *change.release); err != nil && !errors.Is(err, repository.ErrNotFound) {
				return err
			}
		}

		if change.assignee != nil {
			employee := *change.assignee
			if err := txRepo.ReserveEmployeeTask(ctx, &employee); err != nil {
				return err
			}
			assigned = &employee
		} else {
			for _, candidate := range change.candidates {
				employee := candidate.Employee
				err := txRepo.ReserveEmployeeTask(ctx, &employee)
				if err == nil {
					assigned = &employee
					break
				}
				if errors.Is(err, repository.ErrVersionConflict) || errors.Is(err, repository.ErrCapacityExceeded) {
					continue
				}
				return err
			}
		}
		if assigned != nil {
			id := assigned.ID
			after.AssignedEmployeeID = &id
		}

		if change.status != "" {
			after.Status = change.status
		} else {
			after.Status = models.StatusForStep(change.target, after.IsAssigned())
		}
		entry.Status = after.Status

		if err := txRepo.UpdateComplaint(ctx, &after, &entry); err != nil {
			return err
		}

		result = commitResult{complaint: after, assigned: assigned}
		return nil
	})
	if err != nil {
		return nil, mapRepoError(err, "complaint")
	}

	e.logger.WithFields(logrus.Fields{
		"complaintId": result.complaint.ID,
		"action":      change.entry.Action,
		"fromStatus":  change.before.Status,
		"status":      result.complaint.Status,
		"stepId":      result.complaint.CurrentStepID,
		"actorId":     change.entry.ActorID,
	}).Info("Complaint transitioned")
	return &result, nil
}

func (e *TransitionEngine) emit(ctx context.Context, change *stepChange, result *commitResult, actor models.Actor) {
	c := result.complaint
	e.dispatcher.Dispatch(ctx, events.StatusChanged{
		ComplaintID: c.ID,
		OldStatus:   change.before.Status,
		NewStatus:   c.Status,
		FromStepID:  change.before.CurrentStepID,
		ToStepID:    c.CurrentStepID,
		Action:      change.entry.Action,
		ActorID:     actor.ID,
		ActorRole:   actor.Role,
		Timestamp:   c.LastTransitionAt,
	})

	if result.assigned != nil {
		e.dispatcher.Dispatch(ctx, events.Assigned{
			ComplaintID: c.ID,
			EmployeeID:  result.assigned.ID.String(),
			ActorID:     actor.ID,
			Automatic:   change.assignee == nil,
			Timestamp:   c.LastTransitionAt,
		})
	}
}
