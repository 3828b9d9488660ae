package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// WorkflowDefinition is one immutable version of a category's step graph
type WorkflowDefinition struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Name          string         `gorm:"type:varchar(100);not null" json:"name"`
	Category      string         `gorm:"type:varchar(50);not null;uniqueIndex:idx_workflow_category_version,priority:1" json:"category"`
	Version       int            `gorm:"not null;uniqueIndex:idx_workflow_category_version,priority:2" json:"version"`
	State         string         `gorm:"type:varchar(20);not null;default:'draft';index" json:"state"`
	Description   string         `gorm:"type:text" json:"description,omitempty"`
	ReentryStepID string         `gorm:"type:varchar(100)" json:"reentryStepId,omitempty"`
	Steps         datatypes.JSON `gorm:"type:jsonb;not null" json:"steps"`
	CreatedBy     string         `gorm:"type:varchar(255)" json:"createdBy,omitempty"`
	PublishedAt   *time.Time     `json:"publishedAt,omitempty"`
	CreatedAt     time.Time      `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName returns the table name for WorkflowDefinition
func (WorkflowDefinition) TableName() string {
	return "workflow_definitions"
}

// Workflow definition states
const (
	WorkflowStateDraft    = "draft"
	WorkflowStateActive   = "active"
	WorkflowStateInactive = "inactive"
)

// StepSpecs decodes the stored steps without interpreting them
func (w *WorkflowDefinition) StepSpecs() ([]StepSpec, error) {
	var specs []StepSpec
	if len(w.Steps) == 0 {
		return specs, nil
	}
	if err := json.Unmarshal(w.Steps, &specs); err != nil {
		return nil, fmt.Errorf("failed to decode workflow steps: %w", err)
	}
	return specs, nil
}

// SetStepSpecs encodes specs into the Steps column
func (w *WorkflowDefinition) SetStepSpecs(specs []StepSpec) error {
	data, err := json.Marshal(specs)
	if err != nil {
		return fmt.Errorf("failed to encode workflow steps: %w", err)
	}
	w.Steps = datatypes.JSON(data)
	return nil
}

// Graph decodes the steps into their typed variants
func (w *WorkflowDefinition) Graph() (*Graph, error) {
	specs, err := w.StepSpecs()
	if err != nil {
		return nil, err
	}
	g := &Graph{
		DefinitionID:  w.ID,
		ReentryStepID: w.ReentryStepID,
		index:         make(map[string]Step, len(specs)),
	}
	for _, spec := range specs {
		step, err := spec.Decode()
		if err != nil {
			return nil, err
		}
		g.Steps = append(g.Steps, step)
		if _, dup := g.index[step.StepID()]; !dup {
			g.index[step.StepID()] = step
		}
	}
	return g, nil
}

// Graph is a decoded workflow definition
type Graph struct {
	DefinitionID  uuid.UUID
	ReentryStepID string
	Steps         []Step
	index         map[string]Step
}

// Step looks up a step by id
func (g *Graph) Step(id string) (Step, bool) {
	s, ok := g.index[id]
	return s, ok
}

// Start returns the first start step, nil if there is none
func (g *Graph) Start() Step {
	for _, s := range g.Steps {
		if s.Type() == StepTypeStart {
			return s
		}
	}
	return nil
}
