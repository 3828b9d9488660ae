package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"complaint-workflow-service/internal/cache"
	"complaint-workflow-service/internal/clock"
	"complaint-workflow-service/internal/models"
	"complaint-workflow-service/internal/repository"
)

// GraphError describes one structural problem of a workflow definition
type GraphError struct {
	StepID  string `json:"stepId,omitempty"`
	Message string `json:"message"`
}

func (e GraphError) Error() string {
	if e.StepID == "" {
		return e.Message
	}
	return fmt.Sprintf("step %q: %s", e.StepID, e.Message)
}

// WorkflowDraft is the authoring input for a new definition version
type WorkflowDraft struct {
	Name          string            `json:"name" binding:"required"`
	Category      string            `json:"category" binding:"required"`
	Description   string            `json:"description"`
	ReentryStepID string            `json:"reentryStepId"`
	Steps         []models.StepSpec `json:"steps" binding:"required"`
}

// WorkflowRegistry serves and versions workflow definitions
type WorkflowRegistry struct {
	repo   repository.ComplaintRepositoryInterface
	cache  *cache.WorkflowCache
	clock  clock.Clock
	logger *logrus.Entry
}

// NewWorkflowRegistry creates a registry. cache may be nil.
func NewWorkflowRegistry(repo repository.ComplaintRepositoryInterface, workflowCache *cache.WorkflowCache, clk clock.Clock, logger *logrus.Logger) *WorkflowRegistry {
	if logger == nil {
		logger = logrus.New()
	}
	if clk == nil {
		clk = clock.System()
	}
	return &WorkflowRegistry{
		repo:   repo,
		cache:  workflowCache,
		clock:  clk,
		logger: logger.WithField("component", "workflow-registry"),
	}
}

// GetActiveDefinition returns the single active definition of a category
func (r *WorkflowRegistry) GetActiveDefinition(ctx context.Context, category string) (*models.WorkflowDefinition, error) {
	active, err := r.repo.ListActiveWorkflows(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("failed to load active workflows: %w", err)
	}

	switch len(active) {
	case 0:
		return nil, newError(ErrNotFound, "no active workflow for category %q", category)
	case 1:
		return &active[0], nil
	}

	ids := make([]string, 0, len(active))
	for _, w := range active {
		ids = append(ids, w.ID.String())
	}
	r.logger.WithFields(logrus.Fields{
		"category":    category,
		"workflowIds": strings.Join(ids, ","),
	}).Error("Multiple active workflow definitions for category")
	return nil, newError(ErrConfiguration, "category %q has %d active workflow definitions", category, len(active))
}

// GetDefinition returns a definition version by id, from cache when possible
func (r *WorkflowRegistry) GetDefinition(ctx context.Context, id uuid.UUID) (*models.WorkflowDefinition, error) {
	if cached, err := r.cache.Get(ctx, id); err != nil {
		r.logger.WithError(err).WithField("workflowId", id).Warn("Workflow cache read failed")
	} else if cached != nil {
		return cached, nil
	}

	workflow, err := r.repo.GetWorkflowByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err, "workflow")
	}

	if err := r.cache.Set(ctx, workflow); err != nil {
		r.logger.WithError(err).WithField("workflowId", id).Warn("Workflow cache write failed")
	}
	return workflow, nil
}

// Graph returns the decoded step graph of a definition version
func (r *WorkflowRegistry) Graph(ctx context.Context, id uuid.UUID) (*models.Graph, error) {
	workflow, err := r.GetDefinition(ctx, id)
	if err != nil {
		return nil, err
	}
	graph, err := workflow.Graph()
	if err != nil {
		return nil, newError(ErrConfiguration, "workflow %s cannot be decoded: %v", id, err)
	}
	return graph, nil
}

// GetStep returns a single step of a definition version
func (r *WorkflowRegistry) GetStep(ctx context.Context, definitionID uuid.UUID, stepID string) (models.Step, error) {
	graph, err := r.Graph(ctx, definitionID)
	if err != nil {
		return nil, err
	}
	step, ok := graph.Step(stepID)
	if !ok {
		return nil, newError(ErrNotFound, "step %q not found in workflow %s", stepID, definitionID)
	}
	return step, nil
}

// List returns every definition version of a category, all categories when empty
func (r *WorkflowRegistry) List(ctx context.Context, category string) ([]models.WorkflowDefinition, error) {
	workflows, err := r.repo.ListWorkflows(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	return workflows, nil
}

// Validate checks a draft without storing it
func (r *WorkflowRegistry) Validate(draft WorkflowDraft) []GraphError {
	workflow, err := draftDefinition(draft)
	if err != nil {
		return []GraphError{{Message: err.Error()}}
	}
	return ValidateGraph(workflow)
}

// CreateDraft stores a new definition version in draft state
func (r *WorkflowRegistry) CreateDraft(ctx context.Context, draft WorkflowDraft, actor models.Actor) (*models.WorkflowDefinition, error) {
	var details []string
	if strings.TrimSpace(draft.Name) == "" {
		details = append(details, "name is required")
	}
	if !models.IsValidCategory(draft.Category) {
		details = append(details, fmt.Sprintf("unknown category %q", draft.Category))
	}
	if len(details) > 0 {
		return nil, validationError(details)
	}

	workflow, err := draftDefinition(draft)
	if err != nil {
		return nil, validationError([]string{err.Error()})
	}
	if graphErrs := ValidateGraph(workflow); len(graphErrs) > 0 {
		return nil, graphValidationError(graphErrs)
	}

	err = r.repo.WithTransaction(ctx, func(txRepo repository.ComplaintRepositoryInterface) error {
		version, err := txRepo.NextWorkflowVersion(ctx, draft.Category)
		if err != nil {
			return err
		}
		workflow.Version = version
		workflow.CreatedBy = actor.ID
		workflow.CreatedAt = r.clock.Now()
		return txRepo.CreateWorkflow(ctx, workflow)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create workflow: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"workflowId": workflow.ID,
		"category":   workflow.Category,
		"version":    workflow.Version,
	}).Info("Workflow draft created")
	return workflow, nil
}

// Publish activates a definition version and deactivates every other
// version of its category. In-flight complaints stay on the version they
// were created with.
func (r *WorkflowRegistry) Publish(ctx context.Context, id uuid.UUID, actor models.Actor) (*models.WorkflowDefinition, error) {
	workflow, err := r.repo.GetWorkflowByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err, "workflow")
	}
	if workflow.State == models.WorkflowStateActive {
		return workflow, nil
	}
	if graphErrs := ValidateGraph(workflow); len(graphErrs) > 0 {
		return nil, graphValidationError(graphErrs)
	}

	previous, err := r.repo.ListActiveWorkflows(ctx, workflow.Category)
	if err != nil {
		return nil, fmt.Errorf("failed to load active workflows: %w", err)
	}

	now := r.clock.Now()
	err = r.repo.WithTransaction(ctx, func(txRepo repository.ComplaintRepositoryInterface) error {
		if err := txRepo.DeactivateWorkflows(ctx, workflow.Category, workflow.ID); err != nil {
			return err
		}
		return txRepo.SetWorkflowState(ctx, workflow.ID, models.WorkflowStateActive, &now)
	})
	if err != nil {
		return nil, mapRepoError(err, "workflow")
	}

	stale := []uuid.UUID{workflow.ID}
	for _, w := range previous {
		stale = append(stale, w.ID)
	}
	if err := r.cache.Invalidate(ctx, stale...); err != nil {
		r.logger.WithError(err).Warn("Failed to invalidate workflow cache")
	}

	workflow.State = models.WorkflowStateActive
	workflow.PublishedAt = &now
	r.logger.WithFields(logrus.Fields{
		"workflowId":  workflow.ID,
		"category":    workflow.Category,
		"version":     workflow.Version,
		"publishedBy": actor.ID,
	}).Info("Workflow published")
	return workflow, nil
}

func draftDefinition(draft WorkflowDraft) (*models.WorkflowDefinition, error) {
	workflow := &models.WorkflowDefinition{
		Name:          strings.TrimSpace(draft.Name),
		Category:      draft.Category,
		Description:   draft.Description,
		ReentryStepID: draft.ReentryStepID,
		State:         models.WorkflowStateDraft,
	}
	if err := workflow.SetStepSpecs(draft.Steps); err != nil {
		return nil, err
	}
	return workflow, nil
}

func graphValidationError(graphErrs []GraphError) *Error {
	details := make([]string, 0, len(graphErrs))
	for _, e := range graphErrs {
		details = append(details, e.Error())
	}
	return &Error{Kind: ErrValidation, Message: "workflow graph is invalid", Details: details}
}

// ValidateGraph checks the structure of a definition and returns every
// problem found, nil when the graph is usable.
func ValidateGraph(workflow *models.WorkflowDefinition) []GraphError {
	specs, err := workflow.StepSpecs()
	if err != nil {
		return []GraphError{{Message: err.Error()}}
	}
	if len(specs) == 0 {
		return []GraphError{{Message: "workflow has no steps"}}
	}

	var errs []GraphError
	steps := make(map[string]models.Step, len(specs))
	var order []string
	for _, spec := range specs {
		step, err := spec.Decode()
		if err != nil {
			var decodeErr *models.StepDecodeError
			if errors.As(err, &decodeErr) {
				errs = append(errs, GraphError{StepID: decodeErr.StepID, Message: decodeErr.Reason})
			} else {
				errs = append(errs, GraphError{StepID: spec.ID, Message: err.Error()})
			}
			continue
		}
		if _, dup := steps[step.StepID()]; dup {
			errs = append(errs, GraphError{StepID: step.StepID(), Message: "duplicate step id"})
			continue
		}
		steps[step.StepID()] = step
		order = append(order, step.StepID())
	}

	var starts, ends []string
	for _, id := range order {
		switch steps[id].Type() {
		case models.StepTypeStart:
			starts = append(starts, id)
		case models.StepTypeEnd:
			ends = append(ends, id)
		}
	}
	switch len(starts) {
	case 0:
		errs = append(errs, GraphError{Message: "workflow needs a start step"})
	case 1:
	default:
		errs = append(errs, GraphError{Message: fmt.Sprintf("workflow has %d start steps, exactly one is allowed", len(starts))})
	}
	if len(ends) == 0 {
		errs = append(errs, GraphError{Message: "workflow needs at least one end step"})
	}

	for _, id := range order {
		for _, target := range steps[id].Targets() {
			next, ok := steps[target]
			if !ok {
				errs = append(errs, GraphError{StepID: id, Message: fmt.Sprintf("references unknown step %q", target)})
				continue
			}
			if next.Type() == models.StepTypeStart {
				errs = append(errs, GraphError{StepID: id, Message: "cannot lead back to the start step"})
			}
		}
		if d, ok := steps[id].(models.DecisionStep); ok {
			for i, c := range d.Conditions {
				if c.Field == "" {
					errs = append(errs, GraphError{StepID: id, Message: fmt.Sprintf("condition %d has no field", i+1)})
				}
				if !IsKnownOperator(c.Operator) {
					errs = append(errs, GraphError{StepID: id, Message: fmt.Sprintf("condition %d has unknown operator %q", i+1, c.Operator)})
				}
			}
		}
	}

	if len(starts) == 1 {
		reachable := reachableFrom(starts[0], steps)
		for _, id := range order {
			if !reachable[id] {
				errs = append(errs, GraphError{StepID: id, Message: "is not reachable from the start step"})
			}
		}
	}

	if len(ends) > 0 {
		canFinish := reachingAny(ends, steps)
		for _, id := range order {
			if !canFinish[id] {
				errs = append(errs, GraphError{StepID: id, Message: "cannot reach an end step"})
			}
		}
	}

	for _, cycle := range unboundedCycles(order, steps) {
		errs = append(errs, GraphError{
			StepID:  cycle[0],
			Message: fmt.Sprintf("steps %s form a cycle without an escalation edge", strings.Join(cycle, ", ")),
		})
	}

	errs = append(errs, validateReentry(workflow.ReentryStepID, steps)...)
	return errs
}

func validateReentry(reentry string, steps map[string]models.Step) []GraphError {
	if reentry == "" {
		return []GraphError{{Message: "re-entry step is required"}}
	}
	step, ok := steps[reentry]
	if !ok {
		return []GraphError{{StepID: reentry, Message: "re-entry step does not exist"}}
	}
	switch s := step.(type) {
	case models.StartStep, models.EndStep:
		return []GraphError{{StepID: reentry, Message: "re-entry step cannot be a start or end step"}}
	case models.ActionStep:
		if s.RequiresAssignee() {
			return []GraphError{{StepID: reentry, Message: "re-entry step must have an assignment mode"}}
		}
	}
	return nil
}

func reachableFrom(start string, steps map[string]models.Step) map[string]bool {
	seen := map[string]bool{start: true}
	queue := []string{start}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, target := range steps[id].Targets() {
			if _, ok := steps[target]; ok && !seen[target] {
				seen[target] = true
				queue = append(queue, target)
			}
		}
	}
	return seen
}

func reachingAny(ends []string, steps map[string]models.Step) map[string]bool {
	reverse := make(map[string][]string, len(steps))
	for id, step := range steps {
		for _, target := range step.Targets() {
			reverse[target] = append(reverse[target], id)
		}
	}

	seen := make(map[string]bool, len(steps))
	queue := append([]string(nil), ends...)
	for _, id := range ends {
		seen[id] = true
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, from := range reverse[id] {
			if !seen[from] {
				seen[from] = true
				queue = append(queue, from)
			}
		}
	}
	return seen
}

// unboundedCycles returns the strongly connected components that loop
// without passing an escalation edge. Escalation loops are bounded by the
// escalation counter at runtime.
func unboundedCycles(order []string, steps map[string]models.Step) [][]string {
	index := 0
	indices := make(map[string]int, len(order))
	lowlink := make(map[string]int, len(order))
	onStack := make(map[string]bool, len(order))
	var stack []string
	var components [][]string

	var strongConnect func(id string)
	strongConnect = func(id string) {
		indices[id] = index
		lowlink[id] = index
		index++
		stack = append(stack, id)
		onStack[id] = true

		for _, target := range steps[id].Targets() {
			if _, ok := steps[target]; !ok {
				continue
			}
			if _, visited := indices[target]; !visited {
				strongConnect(target)
				if lowlink[target] < lowlink[id] {
					lowlink[id] = lowlink[target]
				}
			} else if onStack[target] && indices[target] < lowlink[id] {
				lowlink[id] = indices[target]
			}
		}

		if lowlink[id] == indices[id] {
			var component []string
			for {
				top := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[top] = false
				component = append(component, top)
				if top == id {
					break
				}
			}
			components = append(components, component)
		}
	}

	for _, id := range order {
		if _, visited := indices[id]; !visited {
			strongConnect(id)
		}
	}

	var unbounded [][]string
	for _, component := range components {
		members := make(map[string]bool, len(component))
		for _, id := range component {
			members[id] = true
		}
		if len(component) == 1 && !hasEdge(steps[component[0]], component[0]) {
			continue
		}
		escalates := false
		for _, id := range component {
			if sla, ok := models.SLAOf(steps[id]); ok && sla.EscalateTo != "" && members[sla.EscalateTo] {
				escalates = true
				break
			}
		}
		if !escalates {
			sorted := orderedSubset(order, members)
			unbounded = append(unbounded, sorted)
		}
	}
	return unbounded
}

func hasEdge(step models.Step, target string) bool {
	for _, t := range step.Targets() {
		if t == target {
			return true
		}
	}
	return false
}

func orderedSubset(order []string, members map[string]bool) []string {
	out := make([]string, 0, len(members))
	for _, id := range order {
		if members[id] {
			out = append(out, id)
		}
	}
	return out
}
