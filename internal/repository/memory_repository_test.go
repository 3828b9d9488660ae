package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"complaint-workflow-service/internal/models"
)

var baseTime = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func seedComplaint(t *testing.T, repo *MemoryRepository, mutate func(c *models.Complaint)) *models.Complaint {
	t.Helper()
	c := &models.Complaint{
		Category:         models.CategoryRoads,
		Title:            "Pothole",
		Description:      "Deep pothole near the school",
		Priority:         models.PriorityMedium,
		Location:         models.Location{Address: "4 Station Road"},
		Citizen:          models.Citizen{ID: "citizen-1"},
		Status:           models.StatusPending,
		CurrentStepID:    "start",
		CreatedAt:        baseTime,
		LastTransitionAt: baseTime,
	}
	if mutate != nil {
		mutate(c)
	}
	entry := &models.StatusHistoryEntry{Action: models.ActionCreate, Status: c.Status, StepID: c.CurrentStepID, Timestamp: c.CreatedAt}
	require.NoError(t, repo.CreateComplaint(context.Background(), c, entry))
	return c
}

func TestMemoryRepository_CreateComplaintAssignsYearlySequence(t *testing.T) {
	repo := NewMemoryRepository()

	first := seedComplaint(t, repo, nil)
	second := seedComplaint(t, repo, nil)
	nextYear := seedComplaint(t, repo, func(c *models.Complaint) { c.CreatedAt = baseTime.AddDate(1, 0, 0) })

	assert.Equal(t, "CMP-2026-000001", first.ID)
	assert.Equal(t, "CMP-2026-000002", second.ID)
	assert.Equal(t, "CMP-2027-000001", nextYear.ID)
	assert.Equal(t, 1, first.Version)

	history, err := repo.GetComplaintHistory(context.Background(), first.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, 1, history[0].Sequence)
	assert.Equal(t, first.ID, history[0].ComplaintID)
}

func TestMemoryRepository_ListComplaints(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	employee := uuid.New()

	low := seedComplaint(t, repo, func(c *models.Complaint) {
		c.Priority = models.PriorityLow
		c.Title = "Broken streetlight"
	})
	critical := seedComplaint(t, repo, func(c *models.Complaint) {
		c.Priority = models.PriorityCritical
		c.CreatedAt = baseTime.Add(time.Hour)
		c.AssignedEmployeeID = &employee
		c.Status = models.StatusAssigned
	})
	other := seedComplaint(t, repo, func(c *models.Complaint) {
		c.Category = models.CategoryDrainage
		c.CreatedAt = baseTime.Add(2 * time.Hour)
		c.Citizen.ID = "citizen-2"
		c.Location.Address = "7 Canal Street"
	})

	testCases := []struct {
		name   string
		filter ComplaintFilter
		want   []string
	}{
		{"newest_first_by_default", ComplaintFilter{}, []string{other.ID, critical.ID, low.ID}},
		{"oldest_first", ComplaintFilter{Sort: SortOldest}, []string{low.ID, critical.ID, other.ID}},
		{"priority", ComplaintFilter{Sort: SortPriority}, []string{critical.ID, other.ID, low.ID}},
		{"by_category", ComplaintFilter{Category: models.CategoryDrainage}, []string{other.ID}},
		{"by_status", ComplaintFilter{Status: models.StatusAssigned}, []string{critical.ID}},
		{"by_assignee", ComplaintFilter{AssignedEmployeeID: &employee}, []string{critical.ID}},
		{"by_citizen", ComplaintFilter{CitizenID: "citizen-2"}, []string{other.ID}},
		{"query_matches_title", ComplaintFilter{Query: "STREETLIGHT"}, []string{low.ID}},
		{"query_matches_address", ComplaintFilter{Query: "canal"}, []string{other.ID}},
		{"paged", ComplaintFilter{Limit: 1, Offset: 1}, []string{critical.ID}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			complaints, _, err := repo.ListComplaints(ctx, tc.filter)
			require.NoError(t, err)

			ids := make([]string, 0, len(complaints))
			for _, c := range complaints {
				ids = append(ids, c.ID)
			}
			assert.Equal(t, tc.want, ids)
		})
	}

	_, total, err := repo.ListComplaints(ctx, ComplaintFilter{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)

	page, total, err := repo.ListComplaints(ctx, ComplaintFilter{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, page)
	assert.Equal(t, int64(3), total)
}

func TestMemoryRepository_UpdateComplaintChecksVersion(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	c := seedComplaint(t, repo, nil)

	stale := *c
	c.Status = models.StatusAssigned
	c.LastTransitionAt = baseTime.Add(time.Minute)
	require.NoError(t, repo.UpdateComplaint(ctx, c, &models.StatusHistoryEntry{Action: models.ActionAssign, Status: c.Status}))
	assert.Equal(t, 2, c.Version)

	stale.Status = models.StatusRejected
	err := repo.UpdateComplaint(ctx, &stale, &models.StatusHistoryEntry{Action: models.ActionReject})
	assert.ErrorIs(t, err, ErrVersionConflict)

	stored, err := repo.GetComplaintByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAssigned, stored.Status)

	history, err := repo.GetComplaintHistory(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 2, history[1].Sequence)
}

func TestMemoryRepository_FindSLABreached(t *testing.T) {
	repo := NewMemoryRepository()
	now := baseTime.Add(3 * time.Hour)
	deadline := func(d time.Duration) *time.Time {
		ts := baseTime.Add(d)
		return &ts
	}

	later := seedComplaint(t, repo, func(c *models.Complaint) { c.SLADeadline = deadline(2 * time.Hour) })
	earlier := seedComplaint(t, repo, func(c *models.Complaint) { c.SLADeadline = deadline(time.Hour) })
	seedComplaint(t, repo, func(c *models.Complaint) { c.SLADeadline = deadline(4 * time.Hour) })
	seedComplaint(t, repo, func(c *models.Complaint) {
		c.SLADeadline = deadline(time.Hour)
		c.Status = models.StatusEscalated
	})
	seedComplaint(t, repo, func(c *models.Complaint) {
		c.SLADeadline = deadline(time.Hour)
		c.Status = models.StatusResolved
	})
	seedComplaint(t, repo, nil)

	breached, err := repo.FindSLABreached(context.Background(), now, 10)
	require.NoError(t, err)
	require.Len(t, breached, 2)
	assert.Equal(t, earlier.ID, breached[0].ID)
	assert.Equal(t, later.ID, breached[1].ID)

	limited, err := repo.FindSLABreached(context.Background(), now, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, earlier.ID, limited[0].ID)
}

func TestMemoryRepository_ReserveEmployeeTask(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	employee := &models.Employee{Name: "Ravi", MaxCapacity: 1, Availability: models.AvailabilityAvailable}
	require.NoError(t, repo.CreateEmployee(ctx, employee))

	stale := *employee
	require.NoError(t, repo.ReserveEmployeeTask(ctx, employee))
	assert.Equal(t, 1, employee.ActiveTaskCount)
	assert.Equal(t, 2, employee.Version)

	assert.ErrorIs(t, repo.ReserveEmployeeTask(ctx, &stale), ErrVersionConflict)
	assert.ErrorIs(t, repo.ReserveEmployeeTask(ctx, employee), ErrCapacityExceeded)

	eligible, err := repo.ListEligibleEmployees(ctx)
	require.NoError(t, err)
	assert.Empty(t, eligible)

	require.NoError(t, repo.ReleaseEmployeeTask(ctx, employee.ID))
	require.NoError(t, repo.ReleaseEmployeeTask(ctx, employee.ID))
	stored, err := repo.GetEmployeeByID(ctx, employee.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.ActiveTaskCount)

	assert.ErrorIs(t, repo.ReleaseEmployeeTask(ctx, uuid.New()), ErrNotFound)
}

func TestMemoryRepository_TransactionRollsBackOnError(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	c := seedComplaint(t, repo, nil)

	err := repo.WithTransaction(ctx, func(tx ComplaintRepositoryInterface) error {
		c.Status = models.StatusAssigned
		if err := tx.UpdateComplaint(ctx, c, &models.StatusHistoryEntry{Action: models.ActionAssign}); err != nil {
			return err
		}
		return ErrCapacityExceeded
	})
	require.ErrorIs(t, err, ErrCapacityExceeded)

	stored, err := repo.GetComplaintByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stored.Status)
	assert.Equal(t, 1, stored.Version)

	history, err := repo.GetComplaintHistory(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestMemoryRepository_WorkflowVersions(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	v1 := &models.WorkflowDefinition{Name: "roads", Category: models.CategoryRoads, Version: 1, State: models.WorkflowStateActive}
	v2 := &models.WorkflowDefinition{Name: "roads", Category: models.CategoryRoads, Version: 2, State: models.WorkflowStateDraft}
	require.NoError(t, repo.CreateWorkflow(ctx, v1))
	require.NoError(t, repo.CreateWorkflow(ctx, v2))
	assert.Error(t, repo.CreateWorkflow(ctx, &models.WorkflowDefinition{Category: models.CategoryRoads, Version: 2}))

	next, err := repo.NextWorkflowVersion(ctx, models.CategoryRoads)
	require.NoError(t, err)
	assert.Equal(t, 3, next)

	published := baseTime
	require.NoError(t, repo.SetWorkflowState(ctx, v2.ID, models.WorkflowStateActive, &published))
	require.NoError(t, repo.DeactivateWorkflows(ctx, models.CategoryRoads, v2.ID))

	active, err := repo.ListActiveWorkflows(ctx, models.CategoryRoads)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, v2.ID, active[0].ID)

	all, err := repo.ListWorkflows(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, 2, all[0].Version)
	assert.Equal(t, models.WorkflowStateInactive, all[1].State)

	assert.ErrorIs(t, repo.SetWorkflowState(ctx, uuid.New(), models.WorkflowStateActive, nil), ErrNotFound)
}
