package events

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Event subjects
const (
	SubjectStatusChanged = "complaint.status_changed"
	SubjectSLABreached   = "complaint.sla_breached"
	SubjectAssigned      = "complaint.assigned"
)

// Event is a notification emitted after a committed change
type Event interface {
	Subject() string
	Key() string
}

// StatusChanged is emitted for every successful transition
type StatusChanged struct {
	ComplaintID string    `json:"complaintId"`
	OldStatus   string    `json:"oldStatus"`
	NewStatus   string    `json:"newStatus"`
	FromStepID  string    `json:"fromStepId,omitempty"`
	ToStepID    string    `json:"toStepId"`
	Action      string    `json:"action"`
	ActorID     string    `json:"actorId"`
	ActorRole   string    `json:"actorRole"`
	Timestamp   time.Time `json:"timestamp"`
}

func (e StatusChanged) Subject() string { return SubjectStatusChanged }
func (e StatusChanged) Key() string     { return e.ComplaintID }

// SLABreached is emitted when a complaint misses the deadline of its step
type SLABreached struct {
	ComplaintID     string    `json:"complaintId"`
	StepID          string    `json:"stepId"`
	Deadline        time.Time `json:"deadline"`
	EscalatedTo     string    `json:"escalatedTo,omitempty"`
	EscalationRole  string    `json:"escalationRole,omitempty"`
	EscalationCount int       `json:"escalationCount"`
	Exhausted       bool      `json:"exhausted"`
	Timestamp       time.Time `json:"timestamp"`
}

func (e SLABreached) Subject() string { return SubjectSLABreached }
func (e SLABreached) Key() string     { return e.ComplaintID }

// Assigned is emitted when an employee is confirmed for a complaint
type Assigned struct {
	ComplaintID string    `json:"complaintId"`
	EmployeeID  string    `json:"employeeId"`
	ActorID     string    `json:"actorId"`
	Automatic   bool      `json:"automatic"`
	Timestamp   time.Time `json:"timestamp"`
}

func (e Assigned) Subject() string { return SubjectAssigned }
func (e Assigned) Key() string     { return e.ComplaintID }

// Dispatcher delivers events. Dispatch must not block on delivery.
type Dispatcher interface {
	Dispatch(ctx context.Context, event Event)
}

// LogDispatcher only logs events. Used when NATS is not configured.
type LogDispatcher struct {
	logger *logrus.Entry
}

// NewLogDispatcher creates a dispatcher that writes events to the log
func NewLogDispatcher(logger *logrus.Logger) *LogDispatcher {
	if logger == nil {
		logger = logrus.New()
	}
	return &LogDispatcher{logger: logger.WithField("component", "complaint-events")}
}

// Dispatch logs the event
func (d *LogDispatcher) Dispatch(ctx context.Context, event Event) {
	d.logger.WithFields(logrus.Fields{
		"subject":     event.Subject(),
		"complaintId": event.Key(),
	}).Debug("Event dispatched (publishing disabled)")
}
