package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepSpec_Decode(t *testing.T) {
	testCases := []struct {
		name    string
		spec    StepSpec
		want    Step
		wantErr string
	}{
		{
			name: "start",
			spec: StepSpec{ID: "s", Name: "Start", Type: StepTypeStart, Next: "a"},
			want: StartStep{ID: "s", Name: "Start", Next: "a"},
		},
		{
			name: "action_with_sla",
			spec: StepSpec{ID: "a", Type: StepTypeAction, Next: "e", AssignmentMode: AssignmentAuto, TimeLimitHours: 2, EscalateTo: "b", EscalationRole: RoleDepartmentHead},
			want: ActionStep{ID: "a", Next: "e", AssignmentMode: AssignmentAuto, SLA: SLAPolicy{TimeLimitHours: 2, EscalateTo: "b", EscalationRole: RoleDepartmentHead}},
		},
		{
			name: "decision",
			spec: StepSpec{ID: "d", Type: StepTypeDecision, Conditions: []Condition{{Field: "x", Operator: "eq", Value: "y", Next: "e"}}},
			want: DecisionStep{ID: "d", Conditions: []Condition{{Field: "x", Operator: "eq", Value: "y", Next: "e"}}},
		},
		{
			name: "end",
			spec: StepSpec{ID: "e", Type: StepTypeEnd, Outcome: StatusClosed},
			want: EndStep{ID: "e", Outcome: StatusClosed},
		},
		{name: "missing_id", spec: StepSpec{Type: StepTypeStart, Next: "a"}, wantErr: "id is required"},
		{name: "unknown_type", spec: StepSpec{ID: "x", Type: "fork"}, wantErr: `unknown step type "fork"`},
		{name: "start_with_sla", spec: StepSpec{ID: "s", Type: StepTypeStart, Next: "a", TimeLimitHours: 1}, wantErr: "start step only carries next"},
		{name: "start_without_next", spec: StepSpec{ID: "s", Type: StepTypeStart}, wantErr: "start step needs next"},
		{name: "action_without_next", spec: StepSpec{ID: "a", Type: StepTypeAction}, wantErr: "action step needs next"},
		{name: "action_with_outcome", spec: StepSpec{ID: "a", Type: StepTypeAction, Next: "b", Outcome: StatusResolved}, wantErr: "cannot carry conditions or outcome"},
		{name: "action_bad_mode", spec: StepSpec{ID: "a", Type: StepTypeAction, Next: "b", AssignmentMode: "random"}, wantErr: `unknown assignment mode "random"`},
		{name: "negative_time_limit", spec: StepSpec{ID: "a", Type: StepTypeAction, Next: "b", TimeLimitHours: -1}, wantErr: "must not be negative"},
		{name: "decision_without_conditions", spec: StepSpec{ID: "d", Type: StepTypeDecision}, wantErr: "at least one condition"},
		{name: "decision_with_next", spec: StepSpec{ID: "d", Type: StepTypeDecision, Next: "e", Conditions: []Condition{{Field: "x", Operator: "eq", Next: "e"}}}, wantErr: "routes only through conditions"},
		{name: "end_with_next", spec: StepSpec{ID: "e", Type: StepTypeEnd, Next: "a", Outcome: StatusResolved}, wantErr: "cannot have outgoing edges"},
		{name: "end_without_outcome", spec: StepSpec{ID: "e", Type: StepTypeEnd}, wantErr: "needs an outcome"},
		{name: "end_bad_outcome", spec: StepSpec{ID: "e", Type: StepTypeEnd, Outcome: StatusEscalated}, wantErr: `unknown end outcome "escalated"`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			step, err := tc.spec.Decode()
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
				var decodeErr *StepDecodeError
				assert.ErrorAs(t, err, &decodeErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, step)
			assert.Equal(t, tc.spec, SpecOf(step))
		})
	}
}

func TestStatusForStep(t *testing.T) {
	testCases := []struct {
		name     string
		step     Step
		assigned bool
		want     string
	}{
		{"start", StartStep{ID: "s"}, false, StatusPending},
		{"auto_unassigned", ActionStep{ID: "a", AssignmentMode: AssignmentAuto}, false, StatusPending},
		{"manual_assigned", ActionStep{ID: "a", AssignmentMode: AssignmentManual}, true, StatusAssigned},
		{"work_step", ActionStep{ID: "w"}, true, StatusInProgress},
		{"decision", DecisionStep{ID: "d"}, true, StatusInProgress},
		{"end_resolved", EndStep{ID: "e", Outcome: StatusResolved}, true, StatusResolved},
		{"end_rejected", EndStep{ID: "e", Outcome: StatusRejected}, false, StatusRejected},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, StatusForStep(tc.step, tc.assigned))
		})
	}
}

func TestStepTargets(t *testing.T) {
	action := ActionStep{ID: "a", Next: "b", SLA: SLAPolicy{EscalateTo: "c"}}
	assert.Equal(t, []string{"b", "c"}, action.Targets())

	decision := DecisionStep{ID: "d", Conditions: []Condition{{Next: "x"}, {Next: "y"}}}
	assert.Equal(t, []string{"x", "y"}, decision.Targets())

	assert.Nil(t, EndStep{ID: "e"}.Targets())
}

func TestWorkflowDefinition_Graph(t *testing.T) {
	w := &WorkflowDefinition{ID: uuid.New(), ReentryStepID: "work"}
	require.NoError(t, w.SetStepSpecs([]StepSpec{
		{ID: "start", Type: StepTypeStart, Next: "work"},
		{ID: "work", Type: StepTypeAction, Next: "done", AssignmentMode: AssignmentManual, TimeLimitHours: 1.5},
		{ID: "done", Type: StepTypeEnd, Outcome: StatusResolved},
	}))

	g, err := w.Graph()
	require.NoError(t, err)
	assert.Equal(t, w.ID, g.DefinitionID)
	assert.Equal(t, "work", g.ReentryStepID)
	assert.Equal(t, "start", g.Start().StepID())

	step, ok := g.Step("work")
	require.True(t, ok)
	sla, timed := SLAOf(step)
	assert.True(t, timed)
	assert.Equal(t, 90*60.0, sla.TimeLimit().Seconds())

	_, ok = g.Step("missing")
	assert.False(t, ok)
}

func TestEmployee_Capacity(t *testing.T) {
	e := Employee{ActiveTaskCount: 2, MaxCapacity: 2, Availability: AvailabilityAvailable}
	assert.False(t, e.HasCapacity())
	assert.False(t, e.IsEligible())
	assert.Equal(t, 1.0, e.LoadRatio())

	e.ActiveTaskCount = 1
	assert.True(t, e.IsEligible())
	e.Availability = AvailabilityOffline
	assert.False(t, e.IsEligible())

	e.Specializations = []string{"roads", "pothole"}
	assert.True(t, e.Specializes("", "pothole"))
	assert.False(t, e.Specializes(""))
}
