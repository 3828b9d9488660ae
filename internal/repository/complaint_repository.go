package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"complaint-workflow-service/internal/models"
)

// priorityOrder sorts critical first. Constant SQL, no user input.
const priorityOrder = "CASE priority WHEN 'critical' THEN 0 WHEN 'high' THEN 1 WHEN 'medium' THEN 2 WHEN 'low' THEN 3 ELSE 4 END"

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ComplaintRepository handles database operations for complaints, workflows and employees
type ComplaintRepository struct {
	db *gorm.DB
}

// NewComplaintRepository creates a new ComplaintRepository
func NewComplaintRepository(db *gorm.DB) *ComplaintRepository {
	return &ComplaintRepository{db: db}
}

// WithTransaction runs fn against a repository bound to a single database transaction
func (r *ComplaintRepository) WithTransaction(ctx context.Context, fn func(txRepo ComplaintRepositoryInterface) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&ComplaintRepository{db: tx})
	})
}

// Ping checks the database connection
func (r *ComplaintRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// --- Complaint Methods ---

// CreateComplaint stores a complaint and its first history entry.
// The id is the next number of the creation year, e.g. CMP-2026-000042.
func (r *ComplaintRepository) CreateComplaint(ctx context.Context, complaint *models.Complaint, entry *models.StatusHistoryEntry) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		year := complaint.CreatedAt.Year()
		prefix := fmt.Sprintf("CMP-%d-", year)

		// Serialize number allocation per year until commit
		if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", prefix).Error; err != nil {
			return err
		}

		var maxNumber int64
		err := tx.Model(&models.Complaint{}).
			Where("id LIKE ?", prefix+"%").
			Select("COALESCE(MAX(CAST(SUBSTRING(id FROM ?) AS BIGINT)), 0)", len(prefix)+1).
			Scan(&maxNumber).Error
		if err != nil {
			return err
		}

		complaint.ID = fmt.Sprintf("%s%06d", prefix, maxNumber+1)
		complaint.Version = 1
		if err := tx.Create(complaint).Error; err != nil {
			return err
		}

		entry.ComplaintID = complaint.ID
		entry.Sequence = complaint.Version
		return tx.Create(entry).Error
	})
}

// GetComplaintByID retrieves a complaint by ID
func (r *ComplaintRepository) GetComplaintByID(ctx context.Context, id string) (*models.Complaint, error) {
	var complaint models.Complaint
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&complaint).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &complaint, nil
}

// ListComplaints filters, sorts and pages complaints in the database
func (r *ComplaintRepository) ListComplaints(ctx context.Context, filter ComplaintFilter) ([]models.Complaint, int64, error) {
	filter = NormalizeFilter(filter)

	var complaints []models.Complaint
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Complaint{})

	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Priority != "" {
		query = query.Where("priority = ?", filter.Priority)
	}
	if filter.Category != "" {
		query = query.Where("category = ?", filter.Category)
	}
	if filter.AssignedEmployeeID != nil {
		query = query.Where("assigned_employee_id = ?", *filter.AssignedEmployeeID)
	}
	if filter.CitizenID != "" {
		query = query.Where("citizen_id = ?", filter.CitizenID)
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		like := "%" + likeEscaper.Replace(strings.ToLower(q)) + "%"
		query = query.Where("LOWER(title) LIKE ? OR LOWER(location_address) LIKE ?", like, like)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	switch filter.Sort {
	case SortOldest:
		query = query.Order("created_at ASC").Order("id ASC")
	case SortPriority:
		query = query.Order(priorityOrder).Order("created_at DESC").Order("id DESC")
	default:
		query = query.Order("created_at DESC").Order("id DESC")
	}

	err := query.
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&complaints).Error

	return complaints, total, err
}

// UpdateComplaint writes workflow state with optimistic locking and appends the history entry
func (r *ComplaintRepository) UpdateComplaint(ctx context.Context, complaint *models.Complaint, entry *models.StatusHistoryEntry) error {
	oldVersion := complaint.Version

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Complaint{}).
			Where("id = ? AND version = ?", complaint.ID, oldVersion).
			Updates(map[string]interface{}{
				"status":               complaint.Status,
				"assigned_employee_id": complaint.AssignedEmployeeID,
				"current_step_id":      complaint.CurrentStepID,
				"sla_deadline":         complaint.SLADeadline,
				"escalation_count":     complaint.EscalationCount,
				"escalation_locked":    complaint.EscalationLocked,
				"last_transition_at":   complaint.LastTransitionAt,
				"version":              oldVersion + 1,
				"updated_at":           time.Now(),
			})

		if result.Error != nil {
			return result.Error
		}

		if result.RowsAffected == 0 {
			return ErrVersionConflict
		}

		entry.ComplaintID = complaint.ID
		entry.Sequence = oldVersion + 1
		if err := tx.Create(entry).Error; err != nil {
			return err
		}

		complaint.Version = oldVersion + 1
		return nil
	})
}

// GetComplaintHistory retrieves the ordered history of a complaint
func (r *ComplaintRepository) GetComplaintHistory(ctx context.Context, complaintID string) ([]models.StatusHistoryEntry, error) {
	var entries []models.StatusHistoryEntry
	err := r.db.WithContext(ctx).
		Where("complaint_id = ?", complaintID).
		Order("sequence ASC").
		Find(&entries).Error
	return entries, err
}

// FindSLABreached finds open complaints whose deadline has passed and that are not already flagged
func (r *ComplaintRepository) FindSLABreached(ctx context.Context, now time.Time, limit int) ([]models.Complaint, error) {
	var complaints []models.Complaint
	err := r.db.WithContext(ctx).
		Where("sla_deadline IS NOT NULL AND sla_deadline <= ?", now).
		Where("status NOT IN ?", []string{models.StatusResolved, models.StatusRejected, models.StatusClosed, models.StatusEscalated}).
		Order("sla_deadline ASC").
		Limit(limit).
		Find(&complaints).Error
	return complaints, err
}

// --- Workflow Methods ---

// CreateWorkflow stores a new workflow definition version
func (r *ComplaintRepository) CreateWorkflow(ctx context.Context, workflow *models.WorkflowDefinition) error {
	return r.db.WithContext(ctx).Create(workflow).Error
}

// GetWorkflowByID retrieves a workflow by ID
func (r *ComplaintRepository) GetWorkflowByID(ctx context.Context, id uuid.UUID) (*models.WorkflowDefinition, error) {
	var workflow models.WorkflowDefinition
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&workflow).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &workflow, nil
}

// ListWorkflows lists every version, newest first, optionally for one category
func (r *ComplaintRepository) ListWorkflows(ctx context.Context, category string) ([]models.WorkflowDefinition, error) {
	var workflows []models.WorkflowDefinition
	query := r.db.WithContext(ctx).Model(&models.WorkflowDefinition{})
	if category != "" {
		query = query.Where("category = ?", category)
	}
	err := query.Order("category ASC").Order("version DESC").Find(&workflows).Error
	return workflows, err
}

// ListActiveWorkflows lists the active definitions of a category
func (r *ComplaintRepository) ListActiveWorkflows(ctx context.Context, category string) ([]models.WorkflowDefinition, error) {
	var workflows []models.WorkflowDefinition
	err := r.db.WithContext(ctx).
		Where("category = ? AND state = ?", category, models.WorkflowStateActive).
		Order("version DESC").
		Find(&workflows).Error
	return workflows, err
}

// NextWorkflowVersion returns the version number for a new definition of category
func (r *ComplaintRepository) NextWorkflowVersion(ctx context.Context, category string) (int, error) {
	var maxVersion int
	err := r.db.WithContext(ctx).Model(&models.WorkflowDefinition{}).
		Where("category = ?", category).
		Select("COALESCE(MAX(version), 0)").
		Scan(&maxVersion).Error
	if err != nil {
		return 0, err
	}
	return maxVersion + 1, nil
}

// SetWorkflowState changes the lifecycle state of a definition
func (r *ComplaintRepository) SetWorkflowState(ctx context.Context, id uuid.UUID, state string, publishedAt *time.Time) error {
	updates := map[string]interface{}{
		"state":      state,
		"updated_at": time.Now(),
	}
	if publishedAt != nil {
		updates["published_at"] = publishedAt
	}

	result := r.db.WithContext(ctx).Model(&models.WorkflowDefinition{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeactivateWorkflows marks every active definition of category inactive except one
func (r *ComplaintRepository) DeactivateWorkflows(ctx context.Context, category string, except uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&models.WorkflowDefinition{}).
		Where("category = ? AND state = ? AND id <> ?", category, models.WorkflowStateActive, except).
		Updates(map[string]interface{}{
			"state":      models.WorkflowStateInactive,
			"updated_at": time.Now(),
		}).Error
}

// --- Employee Methods ---

// CreateEmployee creates a new employee
func (r *ComplaintRepository) CreateEmployee(ctx context.Context, employee *models.Employee) error {
	return r.db.WithContext(ctx).Create(employee).Error
}

// GetEmployeeByID retrieves an employee by ID
func (r *ComplaintRepository) GetEmployeeByID(ctx context.Context, id uuid.UUID) (*models.Employee, error) {
	var employee models.Employee
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&employee).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &employee, nil
}

// ListEmployees pages through all employees
func (r *ComplaintRepository) ListEmployees(ctx context.Context, limit, offset int) ([]models.Employee, int64, error) {
	var employees []models.Employee
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Employee{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Order("name ASC").Limit(limit).Offset(offset).Find(&employees).Error
	return employees, total, err
}

// ListEligibleEmployees returns employees that are not offline and have spare capacity
func (r *ComplaintRepository) ListEligibleEmployees(ctx context.Context) ([]models.Employee, error) {
	var employees []models.Employee
	err := r.db.WithContext(ctx).
		Where("availability <> ? AND active_task_count < max_capacity", models.AvailabilityOffline).
		Find(&employees).Error
	return employees, err
}

// ReserveEmployeeTask increments the active task count with optimistic locking and a capacity guard
func (r *ComplaintRepository) ReserveEmployeeTask(ctx context.Context, employee *models.Employee) error {
	oldVersion := employee.Version

	result := r.db.WithContext(ctx).Model(&models.Employee{}).
		Where("id = ? AND version = ? AND active_task_count < max_capacity", employee.ID, oldVersion).
		Updates(map[string]interface{}{
			"active_task_count": gorm.Expr("active_task_count + 1"),
			"version":           oldVersion + 1,
			"updated_at":        time.Now(),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		current, err := r.GetEmployeeByID(ctx, employee.ID)
		if err != nil {
			return err
		}
		if current.Version != oldVersion {
			return ErrVersionConflict
		}
		return ErrCapacityExceeded
	}

	employee.ActiveTaskCount++
	employee.Version = oldVersion + 1
	return nil
}

// ReleaseEmployeeTask decrements the active task count
func (r *ComplaintRepository) ReleaseEmployeeTask(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Model(&models.Employee{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"active_task_count": gorm.Expr("GREATEST(active_task_count - 1, 0)"),
			"version":           gorm.Expr("version + 1"),
			"updated_at":        time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateEmployeeAvailability changes availability with optimistic locking
func (r *ComplaintRepository) UpdateEmployeeAvailability(ctx context.Context, employee *models.Employee, availability string) error {
	oldVersion := employee.Version

	result := r.db.WithContext(ctx).Model(&models.Employee{}).
		Where("id = ? AND version = ?", employee.ID, oldVersion).
		Updates(map[string]interface{}{
			"availability": availability,
			"version":      oldVersion + 1,
			"updated_at":   time.Now(),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrVersionConflict
	}

	employee.Availability = availability
	employee.Version = oldVersion + 1
	return nil
}
