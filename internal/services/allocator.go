package services

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"complaint-workflow-service/internal/metrics"
	"complaint-workflow-service/internal/models"
	"complaint-workflow-service/internal/repository"
)

// Scoring weights
const (
	ScoreSpecialization = 100.0
	ScoreSameZone       = 50.0
	ScoreDistanceMax    = 20.0
	ScoreLoadMax        = 10.0
	ScoreRatingMax      = 1.0

	// DistanceCutoffKm is where the distance score reaches zero
	DistanceCutoffKm = 50.0
	earthRadiusKm    = 6371.0
)

// ScoreBreakdown shows how a candidate's score was composed
type ScoreBreakdown struct {
	Specialization float64 `json:"specialization"`
	Zone           float64 `json:"zone"`
	Distance       float64 `json:"distance"`
	Load           float64 `json:"load"`
	Rating         float64 `json:"rating"`
}

// AssignmentCandidate is a scored, eligible employee
type AssignmentCandidate struct {
	Employee   models.Employee `json:"employee"`
	Score      float64         `json:"score"`
	Breakdown  ScoreBreakdown  `json:"breakdown"`
	DistanceKm *float64        `json:"distanceKm,omitempty"`
}

// AssignmentResult is the ranked outcome of an allocation
type AssignmentResult struct {
	ComplaintID string                `json:"complaintId"`
	Top         AssignmentCandidate   `json:"top"`
	Candidates  []AssignmentCandidate `json:"candidates"`
}

// CandidateRanker scores eligible employees for a complaint. It never writes.
type CandidateRanker struct {
	repo repository.ComplaintRepositoryInterface
}

// NewCandidateRanker creates a ranker over repo
func NewCandidateRanker(repo repository.ComplaintRepositoryInterface) *CandidateRanker {
	return &CandidateRanker{repo: repo}
}

// Rank returns every eligible employee ordered best first
func (r *CandidateRanker) Rank(ctx context.Context, complaint *models.Complaint) ([]AssignmentCandidate, error) {
	employees, err := r.repo.ListEligibleEmployees(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load eligible employees: %w", err)
	}
	return RankCandidates(complaint, employees), nil
}

// RankCandidates scores the eligible employees among employees. Higher is
// better; ties break on employee id so the order is deterministic.
func RankCandidates(complaint *models.Complaint, employees []models.Employee) []AssignmentCandidate {
	candidates := make([]AssignmentCandidate, 0, len(employees))
	for i := range employees {
		e := employees[i]
		if !e.IsEligible() {
			continue
		}
		candidates = append(candidates, scoreCandidate(complaint, e))
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Employee.ID.String() < candidates[j].Employee.ID.String()
	})
	return candidates
}

func scoreCandidate(complaint *models.Complaint, e models.Employee) AssignmentCandidate {
	var b ScoreBreakdown

	if e.Specializes(complaint.Category, complaint.Subcategory) {
		b.Specialization = ScoreSpecialization
	}
	if complaint.Location.Zone != "" && e.Zone == complaint.Location.Zone {
		b.Zone = ScoreSameZone
	}

	var distance *float64
	if complaint.Location.HasCoordinates() && e.HasCoordinates() {
		d := HaversineKm(*complaint.Location.Latitude, *complaint.Location.Longitude, *e.Latitude, *e.Longitude)
		distance = &d
		if d < DistanceCutoffKm {
			b.Distance = ScoreDistanceMax * (1 - d/DistanceCutoffKm)
		}
	}

	b.Load = (1 - e.LoadRatio()) * ScoreLoadMax
	if b.Load < 0 {
		b.Load = 0
	}

	rating := math.Max(0, math.Min(5, e.Rating))
	b.Rating = rating / 5 * ScoreRatingMax

	return AssignmentCandidate{
		Employee:   e,
		Score:      b.Specialization + b.Zone + b.Distance + b.Load + b.Rating,
		Breakdown:  b,
		DistanceKm: distance,
	}
}

// HaversineKm is the great-circle distance between two coordinates
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(a)))
}

// Allocator proposes and confirms employee assignments
type Allocator struct {
	repo    repository.ComplaintRepositoryInterface
	ranker  *CandidateRanker
	engine  *TransitionEngine
	metrics *metrics.Collector
	logger  *logrus.Entry
}

// NewAllocator creates an allocator. Confirmed assignments go through engine.
func NewAllocator(repo repository.ComplaintRepositoryInterface, ranker *CandidateRanker, engine *TransitionEngine, collector *metrics.Collector, logger *logrus.Logger) *Allocator {
	if logger == nil {
		logger = logrus.New()
	}
	return &Allocator{
		repo:    repo,
		ranker:  ranker,
		engine:  engine,
		metrics: collector,
		logger:  logger.WithField("component", "allocator"),
	}
}

// Allocate ranks the eligible employees for a complaint without assigning anyone
func (a *Allocator) Allocate(ctx context.Context, complaintID string) (result *AssignmentResult, err error) {
	defer func() { a.metrics.RecordAllocation("allocate", err) }()

	complaint, err := a.repo.GetComplaintByID(ctx, complaintID)
	if err != nil {
		return nil, mapRepoError(err, "complaint")
	}
	if complaint.IsTerminal() {
		return nil, &Error{
			Kind:           ErrInvalidTransition,
			Message:        fmt.Sprintf("complaint is %s and cannot be assigned", complaint.Status),
			CurrentStatus:  complaint.Status,
			AllowedActions: []string{models.ActionReopen},
		}
	}

	candidates, err := a.ranker.Rank(ctx, complaint)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, newError(ErrNoEligibleEmployee, "no eligible employee for complaint %s", complaintID)
	}

	return &AssignmentResult{
		ComplaintID: complaint.ID,
		Top:         candidates[0],
		Candidates:  candidates,
	}, nil
}

// ConfirmAssignment assigns employeeID to the complaint. The employee's
// task count, the complaint and its history change in one transaction.
func (a *Allocator) ConfirmAssignment(ctx context.Context, complaintID string, employeeID uuid.UUID, actor models.Actor, note string) (complaint *models.Complaint, err error) {
	defer func() { a.metrics.RecordAllocation("confirm", err) }()

	current, err := a.repo.GetComplaintByID(ctx, complaintID)
	if err != nil {
		return nil, mapRepoError(err, "complaint")
	}
	if current.IsTerminal() {
		return nil, &Error{
			Kind:           ErrInvalidTransition,
			Message:        fmt.Sprintf("complaint is %s and cannot be assigned", current.Status),
			CurrentStatus:  current.Status,
			AllowedActions: []string{models.ActionReopen},
		}
	}
	if current.IsAssigned() {
		return nil, newError(ErrConflict, "complaint %s is already assigned", complaintID)
	}

	employee, err := a.repo.GetEmployeeByID(ctx, employeeID)
	if err != nil {
		return nil, mapRepoError(err, "employee")
	}
	if employee.Availability == models.AvailabilityOffline {
		return nil, newError(ErrNoEligibleEmployee, "employee %s is offline", employeeID)
	}
	if !employee.HasCapacity() {
		return nil, newError(ErrNoEligibleEmployee, "employee %s is at maximum capacity", employeeID)
	}

	updated, err := a.engine.assign(ctx, current, employee, actor, note)
	if err != nil {
		return nil, err
	}

	a.logger.WithFields(logrus.Fields{
		"complaintId": complaintID,
		"employeeId":  employeeID,
		"actorId":     actor.ID,
	}).Info("Assignment confirmed")
	return updated, nil
}
