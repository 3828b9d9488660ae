package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"complaint-workflow-service/internal/models"
)

func floatPtr(f float64) *float64 { return &f }

func testEmployee(id string, mutate func(e *models.Employee)) models.Employee {
	e := models.Employee{
		ID:           uuid.MustParse(id),
		Name:         "employee " + id[:4],
		Role:         models.RoleEmployee,
		MaxCapacity:  4,
		Availability: models.AvailabilityAvailable,
		Version:      1,
	}
	if mutate != nil {
		mutate(&e)
	}
	return e
}

func TestHaversineKm(t *testing.T) {
	assert.InDelta(t, 0, HaversineKm(12.97, 77.59, 12.97, 77.59), 1e-9)
	// Bengaluru to Chennai
	assert.InDelta(t, 290, HaversineKm(12.9716, 77.5946, 13.0827, 80.2707), 5)
	// one degree of latitude
	assert.InDelta(t, 111.19, HaversineKm(0, 0, 1, 0), 0.1)
}

func TestRankCandidates_ScoreComposition(t *testing.T) {
	complaint := &models.Complaint{
		Category:    models.CategoryWaterSupply,
		Subcategory: "pipe_burst",
		Location: models.Location{
			Zone:      "north",
			Latitude:  floatPtr(12.9716),
			Longitude: floatPtr(77.5946),
		},
	}
	e := testEmployee("00000000-0000-0000-0000-000000000001", func(e *models.Employee) {
		e.Specializations = pq.StringArray{"pipe_burst"}
		e.Zone = "north"
		e.Latitude = floatPtr(12.9716)
		e.Longitude = floatPtr(77.5946)
		e.ActiveTaskCount = 1
		e.Rating = 5
	})

	candidates := RankCandidates(complaint, []models.Employee{e})

	require.Len(t, candidates, 1)
	b := candidates[0].Breakdown
	assert.Equal(t, ScoreSpecialization, b.Specialization)
	assert.Equal(t, ScoreSameZone, b.Zone)
	assert.InDelta(t, ScoreDistanceMax, b.Distance, 1e-6)
	assert.InDelta(t, 7.5, b.Load, 1e-9)
	assert.InDelta(t, 1, b.Rating, 1e-9)
	assert.InDelta(t, 100+50+20+7.5+1, candidates[0].Score, 1e-6)
	require.NotNil(t, candidates[0].DistanceKm)
	assert.InDelta(t, 0, *candidates[0].DistanceKm, 1e-9)
}

func TestRankCandidates_DistanceCutoff(t *testing.T) {
	complaint := &models.Complaint{
		Category: models.CategoryRoads,
		Location: models.Location{Latitude: floatPtr(0), Longitude: floatPtr(0)},
	}
	near := testEmployee("00000000-0000-0000-0000-00000000000a", func(e *models.Employee) {
		e.Latitude, e.Longitude = floatPtr(0.1), floatPtr(0)
	})
	far := testEmployee("00000000-0000-0000-0000-00000000000b", func(e *models.Employee) {
		e.Latitude, e.Longitude = floatPtr(1), floatPtr(0)
	})
	unknown := testEmployee("00000000-0000-0000-0000-00000000000c", nil)

	candidates := RankCandidates(complaint, []models.Employee{far, unknown, near})

	require.Len(t, candidates, 3)
	assert.Equal(t, near.ID, candidates[0].Employee.ID)
	assert.Greater(t, candidates[0].Breakdown.Distance, 0.0)
	for _, c := range candidates[1:] {
		assert.Zero(t, c.Breakdown.Distance)
	}
	assert.Nil(t, candidates[2].DistanceKm)
	assert.NotNil(t, candidates[1].DistanceKm)
}

func TestRankCandidates_SkipsIneligibleAndBreaksTiesById(t *testing.T) {
	complaint := &models.Complaint{Category: models.CategoryDrainage}
	employees := []models.Employee{
		testEmployee("00000000-0000-0000-0000-000000000003", nil),
		testEmployee("00000000-0000-0000-0000-000000000001", nil),
		testEmployee("00000000-0000-0000-0000-000000000002", nil),
		testEmployee("00000000-0000-0000-0000-000000000004", func(e *models.Employee) {
			e.Availability = models.AvailabilityOffline
		}),
		testEmployee("00000000-0000-0000-0000-000000000005", func(e *models.Employee) {
			e.ActiveTaskCount = e.MaxCapacity
		}),
	}

	candidates := RankCandidates(complaint, employees)

	require.Len(t, candidates, 3)
	assert.Equal(t, "00000000-0000-0000-0000-000000000001", candidates[0].Employee.ID.String())
	assert.Equal(t, "00000000-0000-0000-0000-000000000002", candidates[1].Employee.ID.String())
	assert.Equal(t, "00000000-0000-0000-0000-000000000003", candidates[2].Employee.ID.String())
}

func TestRankCandidates_LoadOutweighsRating(t *testing.T) {
	complaint := &models.Complaint{Category: models.CategoryOther}
	idle := testEmployee("00000000-0000-0000-0000-000000000001", func(e *models.Employee) { e.Rating = 1 })
	busy := testEmployee("00000000-0000-0000-0000-000000000002", func(e *models.Employee) {
		e.ActiveTaskCount = 3
		e.Availability = models.AvailabilityBusy
		e.Rating = 5
	})

	candidates := RankCandidates(complaint, []models.Employee{busy, idle})

	require.Len(t, candidates, 2)
	assert.Equal(t, idle.ID, candidates[0].Employee.ID)
}
