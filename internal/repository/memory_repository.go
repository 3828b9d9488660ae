package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"complaint-workflow-service/internal/models"
)

type memoryState struct {
	complaints map[string]models.Complaint
	history    map[string][]models.StatusHistoryEntry
	workflows  map[uuid.UUID]models.WorkflowDefinition
	employees  map[uuid.UUID]models.Employee
	sequences  map[int]int
}

func newMemoryState() *memoryState {
	return &memoryState{
		complaints: make(map[string]models.Complaint),
		history:    make(map[string][]models.StatusHistoryEntry),
		workflows:  make(map[uuid.UUID]models.WorkflowDefinition),
		employees:  make(map[uuid.UUID]models.Employee),
		sequences:  make(map[int]int),
	}
}

func (s *memoryState) clone() *memoryState {
	c := newMemoryState()
	for k, v := range s.complaints {
		c.complaints[k] = v
	}
	for k, v := range s.history {
		c.history[k] = append([]models.StatusHistoryEntry(nil), v...)
	}
	for k, v := range s.workflows {
		c.workflows[k] = v
	}
	for k, v := range s.employees {
		v.Specializations = append(v.Specializations[:0:0], v.Specializations...)
		c.employees[k] = v
	}
	for k, v := range s.sequences {
		c.sequences[k] = v
	}
	return c
}

// MemoryRepository keeps everything in process memory. It starts empty and
// honours the same version and capacity rules as the database repository.
// Transactions run on a copy of the state that replaces the original on success.
type MemoryRepository struct {
	mu    sync.Mutex
	state *memoryState
}

// NewMemoryRepository creates an empty in-memory repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{state: newMemoryState()}
}

// WithTransaction runs fn against a snapshot and commits it if fn succeeds
func (r *MemoryRepository) WithTransaction(ctx context.Context, fn func(txRepo ComplaintRepositoryInterface) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &MemoryRepository{state: r.state.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	r.state = tx.state
	return nil
}

// Ping always succeeds
func (r *MemoryRepository) Ping(ctx context.Context) error {
	return ctx.Err()
}

// --- Complaint Methods ---

// CreateComplaint stores a complaint and its first history entry
func (r *MemoryRepository) CreateComplaint(ctx context.Context, complaint *models.Complaint, entry *models.StatusHistoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	year := complaint.CreatedAt.Year()
	r.state.sequences[year]++
	complaint.ID = fmt.Sprintf("CMP-%d-%06d", year, r.state.sequences[year])
	complaint.Version = 1
	complaint.UpdatedAt = complaint.CreatedAt

	entry.ComplaintID = complaint.ID
	entry.Sequence = complaint.Version
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}

	r.state.complaints[complaint.ID] = *complaint
	r.state.history[complaint.ID] = []models.StatusHistoryEntry{*entry}
	return nil
}

// GetComplaintByID retrieves a complaint by ID
func (r *MemoryRepository) GetComplaintByID(ctx context.Context, id string) (*models.Complaint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	complaint, ok := r.state.complaints[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &complaint, nil
}

// ListComplaints filters, sorts and pages complaints
func (r *MemoryRepository) ListComplaints(ctx context.Context, filter ComplaintFilter) ([]models.Complaint, int64, error) {
	filter = NormalizeFilter(filter)

	r.mu.Lock()
	matched := make([]models.Complaint, 0, len(r.state.complaints))
	for _, c := range r.state.complaints {
		if matchesFilter(&c, filter) {
			matched = append(matched, c)
		}
	}
	r.mu.Unlock()

	sortComplaints(matched, filter.Sort)

	total := int64(len(matched))
	if filter.Offset >= len(matched) {
		return []models.Complaint{}, total, nil
	}
	end := filter.Offset + filter.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[filter.Offset:end], total, nil
}

func matchesFilter(c *models.Complaint, f ComplaintFilter) bool {
	if f.Status != "" && c.Status != f.Status {
		return false
	}
	if f.Priority != "" && c.Priority != f.Priority {
		return false
	}
	if f.Category != "" && c.Category != f.Category {
		return false
	}
	if f.AssignedEmployeeID != nil && (c.AssignedEmployeeID == nil || *c.AssignedEmployeeID != *f.AssignedEmployeeID) {
		return false
	}
	if f.CitizenID != "" && c.Citizen.ID != f.CitizenID {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		if !strings.Contains(strings.ToLower(c.Title), q) && !strings.Contains(strings.ToLower(c.Location.Address), q) {
			return false
		}
	}
	return true
}

func sortComplaints(list []models.Complaint, key string) {
	newestFirst := func(a, b models.Complaint) bool {
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	}
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		switch key {
		case SortOldest:
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.ID < b.ID
		case SortPriority:
			ra, rb := models.PriorityRank(a.Priority), models.PriorityRank(b.Priority)
			if ra != rb {
				return ra < rb
			}
			return newestFirst(a, b)
		default:
			return newestFirst(a, b)
		}
	})
}

// UpdateComplaint writes workflow state with optimistic locking and appends the history entry
func (r *MemoryRepository) UpdateComplaint(ctx context.Context, complaint *models.Complaint, entry *models.StatusHistoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.state.complaints[complaint.ID]
	if !ok || stored.Version != complaint.Version {
		return ErrVersionConflict
	}

	updated := stored
	updated.Status = complaint.Status
	updated.AssignedEmployeeID = complaint.AssignedEmployeeID
	updated.CurrentStepID = complaint.CurrentStepID
	updated.SLADeadline = complaint.SLADeadline
	updated.EscalationCount = complaint.EscalationCount
	updated.EscalationLocked = complaint.EscalationLocked
	updated.LastTransitionAt = complaint.LastTransitionAt
	updated.UpdatedAt = complaint.LastTransitionAt
	updated.Version = stored.Version + 1

	entry.ComplaintID = complaint.ID
	entry.Sequence = updated.Version
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}

	r.state.complaints[complaint.ID] = updated
	r.state.history[complaint.ID] = append(r.state.history[complaint.ID], *entry)

	complaint.Version = updated.Version
	complaint.UpdatedAt = updated.UpdatedAt
	return nil
}

// GetComplaintHistory retrieves the ordered history of a complaint
func (r *MemoryRepository) GetComplaintHistory(ctx context.Context, complaintID string) ([]models.StatusHistoryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]models.StatusHistoryEntry{}, r.state.history[complaintID]...), nil
}

// FindSLABreached finds open complaints whose deadline has passed and that are not already flagged
func (r *MemoryRepository) FindSLABreached(ctx context.Context, now time.Time, limit int) ([]models.Complaint, error) {
	r.mu.Lock()
	var breached []models.Complaint
	for _, c := range r.state.complaints {
		if c.SLADeadline == nil || c.SLADeadline.After(now) {
			continue
		}
		if c.IsTerminal() || c.Status == models.StatusEscalated {
			continue
		}
		breached = append(breached, c)
	}
	r.mu.Unlock()

	sort.Slice(breached, func(i, j int) bool {
		if !breached[i].SLADeadline.Equal(*breached[j].SLADeadline) {
			return breached[i].SLADeadline.Before(*breached[j].SLADeadline)
		}
		return breached[i].ID < breached[j].ID
	})
	if limit > 0 && len(breached) > limit {
		breached = breached[:limit]
	}
	return breached, nil
}

// --- Workflow Methods ---

// CreateWorkflow stores a new workflow definition version
func (r *MemoryRepository) CreateWorkflow(ctx context.Context, workflow *models.WorkflowDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if workflow.ID == uuid.Nil {
		workflow.ID = uuid.New()
	}
	for _, existing := range r.state.workflows {
		if existing.Category == workflow.Category && existing.Version == workflow.Version {
			return fmt.Errorf("workflow %s version %d already exists", workflow.Category, workflow.Version)
		}
	}
	r.state.workflows[workflow.ID] = *workflow
	return nil
}

// GetWorkflowByID retrieves a workflow by ID
func (r *MemoryRepository) GetWorkflowByID(ctx context.Context, id uuid.UUID) (*models.WorkflowDefinition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	workflow, ok := r.state.workflows[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &workflow, nil
}

// ListWorkflows lists every version, newest first, optionally for one category
func (r *MemoryRepository) ListWorkflows(ctx context.Context, category string) ([]models.WorkflowDefinition, error) {
	return r.listWorkflows(func(w *models.WorkflowDefinition) bool {
		return category == "" || w.Category == category
	}), nil
}

// ListActiveWorkflows lists the active definitions of a category
func (r *MemoryRepository) ListActiveWorkflows(ctx context.Context, category string) ([]models.WorkflowDefinition, error) {
	return r.listWorkflows(func(w *models.WorkflowDefinition) bool {
		return w.Category == category && w.State == models.WorkflowStateActive
	}), nil
}

func (r *MemoryRepository) listWorkflows(keep func(*models.WorkflowDefinition) bool) []models.WorkflowDefinition {
	r.mu.Lock()
	var workflows []models.WorkflowDefinition
	for _, w := range r.state.workflows {
		if keep(&w) {
			workflows = append(workflows, w)
		}
	}
	r.mu.Unlock()

	sort.Slice(workflows, func(i, j int) bool {
		if workflows[i].Category != workflows[j].Category {
			return workflows[i].Category < workflows[j].Category
		}
		return workflows[i].Version > workflows[j].Version
	})
	return workflows
}

// NextWorkflowVersion returns the version number for a new definition of category
func (r *MemoryRepository) NextWorkflowVersion(ctx context.Context, category string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	maxVersion := 0
	for _, w := range r.state.workflows {
		if w.Category == category && w.Version > maxVersion {
			maxVersion = w.Version
		}
	}
	return maxVersion + 1, nil
}

// SetWorkflowState changes the lifecycle state of a definition
func (r *MemoryRepository) SetWorkflowState(ctx context.Context, id uuid.UUID, state string, publishedAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	workflow, ok := r.state.workflows[id]
	if !ok {
		return ErrNotFound
	}
	workflow.State = state
	if publishedAt != nil {
		workflow.PublishedAt = publishedAt
	}
	r.state.workflows[id] = workflow
	return nil
}

// DeactivateWorkflows marks every active definition of category inactive except one
func (r *MemoryRepository) DeactivateWorkflows(ctx context.Context, category string, except uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, w := range r.state.workflows {
		if w.Category == category && w.State == models.WorkflowStateActive && id != except {
			w.State = models.WorkflowStateInactive
			r.state.workflows[id] = w
		}
	}
	return nil
}

// --- Employee Methods ---

// CreateEmployee creates a new employee
func (r *MemoryRepository) CreateEmployee(ctx context.Context, employee *models.Employee) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if employee.ID == uuid.Nil {
		employee.ID = uuid.New()
	}
	if employee.Version == 0 {
		employee.Version = 1
	}
	stored := *employee
	stored.Specializations = append(stored.Specializations[:0:0], employee.Specializations...)
	r.state.employees[employee.ID] = stored
	return nil
}

// GetEmployeeByID retrieves an employee by ID
func (r *MemoryRepository) GetEmployeeByID(ctx context.Context, id uuid.UUID) (*models.Employee, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	employee, ok := r.state.employees[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &employee, nil
}

// ListEmployees pages through all employees ordered by name
func (r *MemoryRepository) ListEmployees(ctx context.Context, limit, offset int) ([]models.Employee, int64, error) {
	r.mu.Lock()
	employees := make([]models.Employee, 0, len(r.state.employees))
	for _, e := range r.state.employees {
		employees = append(employees, e)
	}
	r.mu.Unlock()

	sort.Slice(employees, func(i, j int) bool {
		if employees[i].Name != employees[j].Name {
			return employees[i].Name < employees[j].Name
		}
		return employees[i].ID.String() < employees[j].ID.String()
	})

	total := int64(len(employees))
	if offset >= len(employees) {
		return []models.Employee{}, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(employees) {
		end = len(employees)
	}
	return employees[offset:end], total, nil
}

// ListEligibleEmployees returns employees that are not offline and have spare capacity
func (r *MemoryRepository) ListEligibleEmployees(ctx context.Context) ([]models.Employee, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var eligible []models.Employee
	for _, e := range r.state.employees {
		if e.IsEligible() {
			eligible = append(eligible, e)
		}
	}
	return eligible, nil
}

// ReserveEmployeeTask increments the active task count with optimistic locking and a capacity guard
func (r *MemoryRepository) ReserveEmployeeTask(ctx context.Context, employee *models.Employee) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.state.employees[employee.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Version != employee.Version {
		return ErrVersionConflict
	}
	if !stored.HasCapacity() {
		return ErrCapacityExceeded
	}

	stored.ActiveTaskCount++
	stored.Version++
	r.state.employees[employee.ID] = stored

	employee.ActiveTaskCount = stored.ActiveTaskCount
	employee.Version = stored.Version
	return nil
}

// ReleaseEmployeeTask decrements the active task count
func (r *MemoryRepository) ReleaseEmployeeTask(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.state.employees[id]
	if !ok {
		return ErrNotFound
	}
	if stored.ActiveTaskCount > 0 {
		stored.ActiveTaskCount--
	}
	stored.Version++
	r.state.employees[id] = stored
	return nil
}

// UpdateEmployeeAvailability changes availability with optimistic locking
func (r *MemoryRepository) UpdateEmployeeAvailability(ctx context.Context, employee *models.Employee, availability string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.state.employees[employee.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Version != employee.Version {
		return ErrVersionConflict
	}

	stored.Availability = availability
	stored.Version++
	r.state.employees[employee.ID] = stored

	employee.Availability = availability
	employee.Version = stored.Version
	return nil
}
