package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"complaint-workflow-service/internal/models"
)

// RetryPolicy bounds every storage call
type RetryPolicy struct {
	Timeout         time.Duration
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy returns the policy used when nothing is configured
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Timeout:         5 * time.Second,
		MaxRetries:      3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     2 * time.Second,
	}
}

// ResilientRepository decorates a repository with a per-call timeout and
// exponential backoff on transient failures. Domain errors pass through untouched.
type ResilientRepository struct {
	inner  ComplaintRepositoryInterface
	policy RetryPolicy
}

var _ ComplaintRepositoryInterface = (*ResilientRepository)(nil)

// NewResilientRepository wraps inner with policy
func NewResilientRepository(inner ComplaintRepositoryInterface, policy RetryPolicy) *ResilientRepository {
	if policy.Timeout <= 0 {
		policy.Timeout = DefaultRetryPolicy().Timeout
	}
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	if policy.InitialInterval <= 0 {
		policy.InitialInterval = DefaultRetryPolicy().InitialInterval
	}
	if policy.MaxInterval < policy.InitialInterval {
		policy.MaxInterval = policy.InitialInterval * 20
	}
	return &ResilientRepository{inner: inner, policy: policy}
}

// sqlStater matches driver errors that expose a SQLSTATE code, such as pgconn.PgError
type sqlStater interface {
	SQLState() string
}

// IsTransient reports whether err is worth retrying: connection loss,
// timeouts of a single attempt, serialization failures and deadlocks.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrVersionConflict) || errors.Is(err, ErrCapacityExceeded) {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var stater sqlStater
	if errors.As(err, &stater) {
		code := stater.SQLState()
		switch {
		case len(code) >= 2 && code[:2] == "08": // connection exception
			return true
		case code == "40001", code == "40P01", code == "57P01", code == "53300":
			return true
		}
	}
	return false
}

func (r *ResilientRepository) do(ctx context.Context, op func(ctx context.Context) error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = r.policy.InitialInterval
	eb.MaxInterval = r.policy.MaxInterval
	eb.MaxElapsedTime = 0

	// WithMaxRetries treats zero as unlimited
	var policy backoff.BackOff = &backoff.StopBackOff{}
	if r.policy.MaxRetries > 0 {
		policy = backoff.WithMaxRetries(eb, uint64(r.policy.MaxRetries))
	}
	b := backoff.WithContext(policy, ctx)

	return backoff.Retry(func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		callCtx, cancel := context.WithTimeout(ctx, r.policy.Timeout)
		defer cancel()

		err := op(callCtx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b)
}

// WithTransaction retries the whole transaction on transient failures.
// fn sees the raw transactional repository.
func (r *ResilientRepository) WithTransaction(ctx context.Context, fn func(txRepo ComplaintRepositoryInterface) error) error {
	return r.do(ctx, func(ctx context.Context) error {
		return r.inner.WithTransaction(ctx, fn)
	})
}

func (r *ResilientRepository) Ping(ctx context.Context) error {
	return r.do(ctx, r.inner.Ping)
}

func (r *ResilientRepository) CreateComplaint(ctx context.Context, complaint *models.Complaint, entry *models.StatusHistoryEntry) error {
	return r.do(ctx, func(ctx context.Context) error {
		return r.inner.CreateComplaint(ctx, complaint, entry)
	})
}

func (r *ResilientRepository) GetComplaintByID(ctx context.Context, id string) (complaint *models.Complaint, err error) {
	err = r.do(ctx, func(ctx context.Context) error {
		complaint, err = r.inner.GetComplaintByID(ctx, id)
		return err
	})
	return complaint, err
}

func (r *ResilientRepository) ListComplaints(ctx context.Context, filter ComplaintFilter) (complaints []models.Complaint, total int64, err error) {
	err = r.do(ctx, func(ctx context.Context) error {
		complaints, total, err = r.inner.ListComplaints(ctx, filter)
		return err
	})
	return complaints, total, err
}

func (r *ResilientRepository) UpdateComplaint(ctx context.Context, complaint *models.Complaint, entry *models.StatusHistoryEntry) error {
	return r.do(ctx, func(ctx context.Context) error {
		return r.inner.UpdateComplaint(ctx, complaint, entry)
	})
}

func (r *ResilientRepository) GetComplaintHistory(ctx context.Context, complaintID string) (entries []models.StatusHistoryEntry, err error) {
	err = r.do(ctx, func(ctx context.Context) error {
		entries, err = r.inner.GetComplaintHistory(ctx, complaintID)
		return err
	})
	return entries, err
}

func (r *ResilientRepository) FindSLABreached(ctx context.Context, now time.Time, limit int) (complaints []models.Complaint, err error) {
	err = r.do(ctx, func(ctx context.Context) error {
		complaints, err = r.inner.FindSLABreached(ctx, now, limit)
		return err
	})
	return complaints, err
}

func (r *ResilientRepository) CreateWorkflow(ctx context.Context, workflow *models.WorkflowDefinition) error {
	return r.do(ctx, func(ctx context.Context) error {
		return r.inner.CreateWorkflow(ctx, workflow)
	})
}

func (r *ResilientRepository) GetWorkflowByID(ctx context.Context, id uuid.UUID) (workflow *models.WorkflowDefinition, err error) {
	err = r.do(ctx, func(ctx context.Context) error {
		workflow, err = r.inner.GetWorkflowByID(ctx, id)
		return err
	})
	return workflow, err
}

func (r *ResilientRepository) ListWorkflows(ctx context.Context, category string) (workflows []models.WorkflowDefinition, err error) {
	err = r.do(ctx, func(ctx context.Context) error {
		workflows, err = r.inner.ListWorkflows(ctx, category)
		return err
	})
	return workflows, err
}

func (r *ResilientRepository) ListActiveWorkflows(ctx context.Context, category string) (workflows []models.WorkflowDefinition, err error) {
	err = r.do(ctx, func(ctx context.Context) error {
		workflows, err = r.inner.ListActiveWorkflows(ctx, category)
		return err
	})
	return workflows, err
}

func (r *ResilientRepository) NextWorkflowVersion(ctx context.Context, category string) (version int, err error) {
	err = r.do(ctx, func(ctx context.Context) error {
		version, err = r.inner.NextWorkflowVersion(ctx, category)
		return err
	})
	return version, err
}

func (r *ResilientRepository) SetWorkflowState(ctx context.Context, id uuid.UUID, state string, publishedAt *time.Time) error {
	return r.do(ctx, func(ctx context.Context) error {
		return r.inner.SetWorkflowState(ctx, id, state, publishedAt)
	})
}

func (r *ResilientRepository) DeactivateWorkflows(ctx context.Context, category string, except uuid.UUID) error {
	return r.do(ctx, func(ctx context.Context) error {
		return r.inner.DeactivateWorkflows(ctx, category, except)
	})
}

func (r *ResilientRepository) CreateEmployee(ctx context.Context, employee *models.Employee) error {
	return r.do(ctx, func(ctx context.Context) error {
		return r.inner.CreateEmployee(ctx, employee)
	})
}

func (r *ResilientRepository) GetEmployeeByID(ctx context.Context, id uuid.UUID) (employee *models.Employee, err error) {
	err = r.do(ctx, func(ctx context.Context) error {
		employee, err = r.inner.GetEmployeeByID(ctx, id)
		return err
	})
	return employee, err
}

func (r *ResilientRepository) ListEmployees(ctx context.Context, limit, offset int) (employees []models.Employee, total int64, err error) {
	err = r.do(ctx, func(ctx context.Context) error {
		employees, total, err = r.inner.ListEmployees(ctx, limit, offset)
		return err
	})
	return employees, total, err
}

func (r *ResilientRepository) ListEligibleEmployees(ctx context.Context) (employees []models.Employee, err error) {
	err = r.do(ctx, func(ctx context.Context) error {
		employees, err = r.inner.ListEligibleEmployees(ctx)
		return err
	})
	return employees, err
}

func (r *ResilientRepository) ReserveEmployeeTask(ctx context.Context, employee *models.Employee) error {
	return r.do(ctx, func(ctx context.Context) error {
		return r.inner.ReserveEmployeeTask(ctx, employee)
	})
}

func (r *ResilientRepository) ReleaseEmployeeTask(ctx context.Context, id uuid.UUID) error {
	return r.do(ctx, func(ctx context.Context) error {
		return r.inner.ReleaseEmployeeTask(ctx, id)
	})
}

func (r *ResilientRepository) UpdateEmployeeAvailability(ctx context.Context, employee *models.Employee, availability string) error {
	return r.do(ctx, func(ctx context.Context) error {
		return r.inner.UpdateEmployeeAvailability(ctx, employee, availability)
	})
}
