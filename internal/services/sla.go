package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"complaint-workflow-service/internal/events"
	"complaint-workflow-service/internal/models"
)

// SLA breach outcomes
const (
	SLAOutcomeEscalated = "escalated"
	SLAOutcomeFlagged   = "flagged"
	SLAOutcomeExhausted = "exhausted"
)

// ScanResult summarizes one SLA scan
type ScanResult struct {
	Checked   int
	Escalated int
	Flagged   int
	Exhausted int
	Skipped   int
	Failed    int
}

// ScanSLA handles up to limit breached complaints, each in its own
// transaction. A failure on one complaint never stops the others.
func (e *TransitionEngine) ScanSLA(ctx context.Context, limit int) (ScanResult, error) {
	started := time.Now()
	var result ScanResult
	defer func() { e.metrics.ObserveSLAScan(time.Since(started), result.Failed) }()

	breached, err := e.repo.FindSLABreached(ctx, e.clock.Now(), limit)
	if err != nil {
		return result, fmt.Errorf("failed to find breached complaints: %w", err)
	}

	for _, c := range breached {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Checked++

		outcome, err := e.HandleSLABreach(ctx, c.ID)
		switch {
		case err == nil:
			switch outcome {
			case SLAOutcomeEscalated:
				result.Escalated++
			case SLAOutcomeFlagged:
				result.Flagged++
			case SLAOutcomeExhausted:
				result.Exhausted++
			default:
				result.Skipped++
			}
		case errors.Is(err, ErrConflict):
			result.Skipped++
			e.logger.WithField("complaintId", c.ID).Debug("Complaint changed during SLA handling, retrying next scan")
		default:
			result.Failed++
			e.logger.WithError(err).WithField("complaintId", c.ID).Error("Failed to handle SLA breach")
		}
	}
	return result, nil
}

// HandleSLABreach applies the escalation policy to one complaint whose
// deadline has passed. It returns an empty outcome when there is nothing to do.
func (e *TransitionEngine) HandleSLABreach(ctx context.Context, complaintID string) (outcome string, err error) {
	defer func() {
		if err == nil && outcome != "" {
			e.metrics.RecordSLABreach(outcome)
		}
	}()

	current, graph, step, err := e.load(ctx, complaintID)
	if err != nil {
		return "", err
	}
	if current.IsTerminal() || current.Status == models.StatusEscalated || current.SLADeadline == nil {
		return "", nil
	}
	if current.SLADeadline.After(e.clock.Now()) {
		return "", nil
	}

	sla, _ := models.SLAOf(step)
	deadline := *current.SLADeadline
	breach := events.SLABreached{
		ComplaintID:     current.ID,
		StepID:          current.CurrentStepID,
		Deadline:        deadline,
		EscalationRole:  sla.EscalationRole,
		EscalationCount: current.EscalationCount,
	}

	if current.EscalationCount >= e.maxEscalations {
		change := e.planMarker(current, step, models.ActionSLAExhaust,
			fmt.Sprintf("escalation limit of %d reached", e.maxEscalations))
		change.after.EscalationLocked = true

		result, err := e.commit(ctx, change)
		if err != nil {
			return "", err
		}
		breach.Exhausted = true
		breach.Timestamp = result.complaint.LastTransitionAt
		e.dispatcher.Dispatch(ctx, breach)
		e.logBreach(current, SLAOutcomeExhausted)
		return SLAOutcomeExhausted, nil
	}

	if sla.EscalateTo != "" {
		target, err := stepOf(graph, sla.EscalateTo)
		if err != nil {
			return "", err
		}
		change, err := e.planEntry(ctx, current, graph, target, models.ActionSLAEscalate, models.SystemActor,
			fmt.Sprintf("SLA deadline %s missed on step %s", deadline.Format(time.RFC3339), current.CurrentStepID), nil, nil)
		if err == nil {
			change.after.EscalationCount++

			result, err := e.commit(ctx, change)
			if err != nil {
				return "", err
			}
			e.emit(ctx, change, result, models.SystemActor)
			breach.EscalatedTo = target.StepID()
			breach.EscalationCount = result.complaint.EscalationCount
			breach.Timestamp = result.complaint.LastTransitionAt
			e.dispatcher.Dispatch(ctx, breach)
			e.logBreach(current, SLAOutcomeEscalated)
			return SLAOutcomeEscalated, nil
		}
		if !errors.Is(err, ErrInvalidTransition) {
			return "", err
		}
		// the escalation target needs an assignee the complaint does not have
		e.logger.WithError(err).WithField("complaintId", current.ID).Warn("Escalation target cannot be entered, flagging instead")
	}

	change := e.planMarker(current, step, models.ActionSLAFlag,
		fmt.Sprintf("SLA deadline %s missed on step %s", deadline.Format(time.RFC3339), current.CurrentStepID))
	result, err := e.commit(ctx, change)
	if err != nil {
		return "", err
	}
	breach.Timestamp = result.complaint.LastTransitionAt
	e.dispatcher.Dispatch(ctx, breach)
	e.logBreach(current, SLAOutcomeFlagged)
	return SLAOutcomeFlagged, nil
}

// planMarker sets the escalated marker without leaving the current step
func (e *TransitionEngine) planMarker(c *models.Complaint, step models.Step, action, note string) *stepChange {
	now := e.nextTimestamp(c)
	after := *c
	after.LastTransitionAt = now

	return &stepChange{
		before: *c,
		after:  after,
		target: step,
		status: models.StatusEscalated,
		entry: models.StatusHistoryEntry{
			Action:     action,
			FromStatus: c.Status,
			StepID:     step.StepID(),
			ActorID:    models.SystemActor.ID,
			ActorRole:  models.SystemActor.Role,
			Note:       note,
			Timestamp:  now,
		},
	}
}

func (e *TransitionEngine) logBreach(c *models.Complaint, outcome string) {
	e.logger.WithFields(logrus.Fields{
		"complaintId":     c.ID,
		"stepId":          c.CurrentStepID,
		"escalationCount": c.EscalationCount,
		"outcome":         outcome,
	}).Warn("SLA breached")
}
