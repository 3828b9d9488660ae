package models

import (
	"fmt"
	"time"
)

// Step types
const (
	StepTypeStart    = "start"
	StepTypeAction   = "action"
	StepTypeDecision = "decision"
	StepTypeEnd      = "end"
)

// Assignment modes for action steps
const (
	AssignmentAuto           = "auto"
	AssignmentManual         = "manual"
	AssignmentDepartmentHead = "department_head"
)

// Step is one node of a workflow graph. The concrete types are
// StartStep, ActionStep, DecisionStep and EndStep.
type Step interface {
	StepID() string
	StepName() string
	Type() string
	// Targets lists every step id this step can move to, escalation included
	Targets() []string
	isStep()
}

// SLAPolicy is the time limit and escalation route of a timed step
type SLAPolicy struct {
	TimeLimitHours float64 `json:"timeLimitHours,omitempty"`
	EscalateTo     string  `json:"escalateTo,omitempty"`
	EscalationRole string  `json:"escalationRole,omitempty"`
}

// TimeLimit converts the configured hours, zero means no deadline
func (p SLAPolicy) TimeLimit() time.Duration {
	if p.TimeLimitHours <= 0 {
		return 0
	}
	return time.Duration(p.TimeLimitHours * float64(time.Hour))
}

// StartStep is the single entry point of a workflow
type StartStep struct {
	ID   string
	Name string
	Next string
}

// ActionStep is a unit of work with a single successor
type ActionStep struct {
	ID             string
	Name           string
	Next           string
	AssignmentMode string
	SLA            SLAPolicy
}

// DecisionStep routes on the first matching condition
type DecisionStep struct {
	ID         string
	Name       string
	Conditions []Condition
	SLA        SLAPolicy
}

// EndStep is terminal and carries the resulting status
type EndStep struct {
	ID      string
	Name    string
	Outcome string
}

// Condition compares a payload field against a value and names the next step
type Condition struct {
	Field    string      `json:"field"`
	Operator string      `json:"operator"`
	Value    interface{} `json:"value,omitempty"`
	Next     string      `json:"next"`
}

func (s StartStep) StepID() string    { return s.ID }
func (s StartStep) StepName() string  { return s.Name }
func (s StartStep) Type() string      { return StepTypeStart }
func (s StartStep) Targets() []string { return []string{s.Next} }
func (StartStep) isStep()             {}

func (s ActionStep) StepID() string   { return s.ID }
func (s ActionStep) StepName() string { return s.Name }
func (s ActionStep) Type() string     { return StepTypeAction }
func (s ActionStep) Targets() []string {
	if s.SLA.EscalateTo != "" {
		return []string{s.Next, s.SLA.EscalateTo}
	}
	return []string{s.Next}
}
func (ActionStep) isStep() {}

// RequiresAssignee reports whether entering the step needs an assigned employee
func (s ActionStep) RequiresAssignee() bool {
	return s.AssignmentMode == ""
}

func (s DecisionStep) StepID() string   { return s.ID }
func (s DecisionStep) StepName() string { return s.Name }
func (s DecisionStep) Type() string     { return StepTypeDecision }
func (s DecisionStep) Targets() []string {
	targets := make([]string, 0, len(s.Conditions)+1)
	for _, c := range s.Conditions {
		targets = append(targets, c.Next)
	}
	if s.SLA.EscalateTo != "" {
		targets = append(targets, s.SLA.EscalateTo)
	}
	return targets
}
func (DecisionStep) isStep() {}

func (s EndStep) StepID() string    { return s.ID }
func (s EndStep) StepName() string  { return s.Name }
func (s EndStep) Type() string      { return StepTypeEnd }
func (s EndStep) Targets() []string { return nil }
func (EndStep) isStep()             {}

// SLAOf returns the SLA policy of timed steps
func SLAOf(step Step) (SLAPolicy, bool) {
	switch s := step.(type) {
	case ActionStep:
		return s.SLA, true
	case DecisionStep:
		return s.SLA, true
	}
	return SLAPolicy{}, false
}

// StepSpec is the flat wire and storage form of a Step
type StepSpec struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	Type           string      `json:"type"`
	Next           string      `json:"next,omitempty"`
	AssignmentMode string      `json:"assignmentMode,omitempty"`
	TimeLimitHours float64     `json:"timeLimitHours,omitempty"`
	EscalateTo     string      `json:"escalateTo,omitempty"`
	EscalationRole string      `json:"escalationRole,omitempty"`
	Conditions     []Condition `json:"conditions,omitempty"`
	Outcome        string      `json:"outcome,omitempty"`
}

// StepDecodeError reports a spec that does not form a valid step variant
type StepDecodeError struct {
	StepID string
	Reason string
}

func (e *StepDecodeError) Error() string {
	return fmt.Sprintf("step %q: %s", e.StepID, e.Reason)
}

// Decode turns the flat spec into its typed variant, rejecting fields
// the variant does not carry.
func (s StepSpec) Decode() (Step, error) {
	fail := func(format string, args ...interface{}) (Step, error) {
		return nil, &StepDecodeError{StepID: s.ID, Reason: fmt.Sprintf(format, args...)}
	}
	if s.ID == "" {
		return fail("id is required")
	}
	if s.TimeLimitHours < 0 {
		return fail("timeLimitHours must not be negative")
	}
	sla := SLAPolicy{TimeLimitHours: s.TimeLimitHours, EscalateTo: s.EscalateTo, EscalationRole: s.EscalationRole}
	hasSLA := sla != SLAPolicy{}

	switch s.Type {
	case StepTypeStart:
		if s.Next == "" {
			return fail("start step needs next")
		}
		if hasSLA || s.AssignmentMode != "" || len(s.Conditions) > 0 || s.Outcome != "" {
			return fail("start step only carries next")
		}
		return StartStep{ID: s.ID, Name: s.Name, Next: s.Next}, nil

	case StepTypeAction:
		if s.Next == "" {
			return fail("action step needs next")
		}
		if len(s.Conditions) > 0 || s.Outcome != "" {
			return fail("action step cannot carry conditions or outcome")
		}
		switch s.AssignmentMode {
		case "", AssignmentAuto, AssignmentManual, AssignmentDepartmentHead:
		default:
			return fail("unknown assignment mode %q", s.AssignmentMode)
		}
		return ActionStep{ID: s.ID, Name: s.Name, Next: s.Next, AssignmentMode: s.AssignmentMode, SLA: sla}, nil

	case StepTypeDecision:
		if len(s.Conditions) == 0 {
			return fail("decision step needs at least one condition")
		}
		if s.Next != "" || s.Outcome != "" || s.AssignmentMode != "" {
			return fail("decision step routes only through conditions")
		}
		conds := make([]Condition, len(s.Conditions))
		copy(conds, s.Conditions)
		return DecisionStep{ID: s.ID, Name: s.Name, Conditions: conds, SLA: sla}, nil

	case StepTypeEnd:
		if s.Next != "" || hasSLA || s.AssignmentMode != "" || len(s.Conditions) > 0 {
			return fail("end step cannot have outgoing edges")
		}
		switch s.Outcome {
		case StatusResolved, StatusRejected, StatusClosed:
		case "":
			return fail("end step needs an outcome")
		default:
			return fail("unknown end outcome %q", s.Outcome)
		}
		return EndStep{ID: s.ID, Name: s.Name, Outcome: s.Outcome}, nil
	}
	return fail("unknown step type %q", s.Type)
}

// SpecOf flattens a step back into its spec
func SpecOf(step Step) StepSpec {
	switch s := step.(type) {
	case StartStep:
		return StepSpec{ID: s.ID, Name: s.Name, Type: StepTypeStart, Next: s.Next}
	case ActionStep:
		return StepSpec{
			ID: s.ID, Name: s.Name, Type: StepTypeAction, Next: s.Next,
			AssignmentMode: s.AssignmentMode, TimeLimitHours: s.SLA.TimeLimitHours,
			EscalateTo: s.SLA.EscalateTo, EscalationRole: s.SLA.EscalationRole,
		}
	case DecisionStep:
		return StepSpec{
			ID: s.ID, Name: s.Name, Type: StepTypeDecision, Conditions: s.Conditions,
			TimeLimitHours: s.SLA.TimeLimitHours, EscalateTo: s.SLA.EscalateTo, EscalationRole: s.SLA.EscalationRole,
		}
	case EndStep:
		return StepSpec{ID: s.ID, Name: s.Name, Type: StepTypeEnd, Outcome: s.Outcome}
	}
	return StepSpec{}
}

// StatusForStep derives a complaint status from the step it sits on.
// Action steps with an assignment mode read as assigned once someone is assigned.
func StatusForStep(step Step, assigned bool) string {
	switch s := step.(type) {
	case StartStep:
		return StatusPending
	case ActionStep:
		if s.AssignmentMode == "" {
			return StatusInProgress
		}
		if assigned {
			return StatusAssigned
		}
		return StatusPending
	case DecisionStep:
		return StatusInProgress
	case EndStep:
		return s.Outcome
	}
	return StatusPending
}
