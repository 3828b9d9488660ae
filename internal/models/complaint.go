package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Complaint is a citizen-reported issue tracked through its workflow
type Complaint struct {
	ID          string `gorm:"type:varchar(32);primaryKey" json:"id"`
	Category    string `gorm:"type:varchar(50);not null;index" json:"category"`
	Subcategory string `gorm:"type:varchar(100)" json:"subcategory,omitempty"`
	Title       string `gorm:"type:varchar(255);not null" json:"title"`
	Description string `gorm:"type:text;not null" json:"description"`
	Priority    string `gorm:"type:varchar(20);not null;default:'medium';index" json:"priority"`

	Location Location `gorm:"embedded;embeddedPrefix:location_" json:"location"`
	Citizen  Citizen  `gorm:"embedded;embeddedPrefix:citizen_" json:"citizen"`

	// Workflow state, only changed by the transition engine
	Status             string     `gorm:"type:varchar(30);not null;default:'pending';index" json:"status"`
	AssignedEmployeeID *uuid.UUID `gorm:"type:uuid;index" json:"assignedEmployeeId,omitempty"`
	WorkflowID         uuid.UUID  `gorm:"type:uuid;not null;index" json:"workflowId"`
	CurrentStepID      string     `gorm:"type:varchar(100);not null" json:"currentStepId"`
	SLADeadline        *time.Time `gorm:"index" json:"slaDeadline,omitempty"`
	EscalationCount    int        `gorm:"not null;default:0" json:"escalationCount"`
	EscalationLocked   bool       `gorm:"not null;default:false" json:"escalationLocked"`
	LastTransitionAt   time.Time  `gorm:"not null" json:"lastTransitionAt"`
	Version            int        `gorm:"not null;default:1" json:"version"` // Optimistic locking

	CreatedAt time.Time `gorm:"not null;index" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName returns the table name for Complaint
func (Complaint) TableName() string {
	return "complaints"
}

// Location is where the complaint was reported
type Location struct {
	Address   string   `gorm:"type:text;not null" json:"address"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Zone      string   `gorm:"type:varchar(100);index" json:"zone,omitempty"`
}

// HasCoordinates reports whether both coordinates are set
func (l Location) HasCoordinates() bool {
	return l.Latitude != nil && l.Longitude != nil
}

// Citizen identifies the person who filed the complaint
type Citizen struct {
	ID      string `gorm:"type:varchar(255);not null;index" json:"id"`
	Name    string `gorm:"type:varchar(255)" json:"name,omitempty"`
	Contact string `gorm:"type:varchar(255)" json:"contact,omitempty"`
}

// IsTerminal reports whether the complaint is resolved, rejected or closed
func (c *Complaint) IsTerminal() bool {
	return IsTerminalStatus(c.Status)
}

// IsAssigned reports whether an employee is assigned
func (c *Complaint) IsAssigned() bool {
	return c.AssignedEmployeeID != nil && *c.AssignedEmployeeID != uuid.Nil
}

// Complaint status constants
const (
	StatusPending    = "pending"
	StatusAssigned   = "assigned"
	StatusInProgress = "in_progress"
	StatusResolved   = "resolved"
	StatusRejected   = "rejected"
	StatusClosed     = "closed"
	StatusEscalated  = "escalated"
)

// IsTerminalStatus reports whether status freezes the complaint until reopened
func IsTerminalStatus(status string) bool {
	switch status {
	case StatusResolved, StatusRejected, StatusClosed:
		return true
	}
	return false
}

// IsValidStatus reports whether status is a known complaint status
func IsValidStatus(status string) bool {
	switch status {
	case StatusPending, StatusAssigned, StatusInProgress, StatusResolved, StatusRejected, StatusClosed, StatusEscalated:
		return true
	}
	return false
}

// Priority constants
const (
	PriorityLow      = "low"
	PriorityMedium   = "medium"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

// PriorityRank orders priorities with critical first. Unknown values sort last.
func PriorityRank(priority string) int {
	switch priority {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	}
	return 4
}

// IsValidPriority reports whether priority is one of the known levels
func IsValidPriority(priority string) bool {
	return PriorityRank(priority) < 4
}

// Category catalog
const (
	CategoryWaterSupply = "water_supply"
	CategorySanitation  = "sanitation"
	CategoryRoads       = "roads"
	CategoryElectricity = "electricity"
	CategoryBuilding    = "building"
	CategoryDrainage    = "drainage"
	CategoryStreetLight = "street_light"
	CategoryOther       = "other"
)

// Categories lists the accepted complaint categories
var Categories = []string{
	CategoryWaterSupply,
	CategorySanitation,
	CategoryRoads,
	CategoryElectricity,
	CategoryBuilding,
	CategoryDrainage,
	CategoryStreetLight,
	CategoryOther,
}

// IsValidCategory reports whether category is in the catalog
func IsValidCategory(category string) bool {
	for _, c := range Categories {
		if c == category {
			return true
		}
	}
	return false
}

// StatusHistoryEntry is an immutable record of one complaint mutation
type StatusHistoryEntry struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	ComplaintID string         `gorm:"type:varchar(32);not null;uniqueIndex:idx_history_complaint_seq,priority:1" json:"complaintId"`
	Sequence    int            `gorm:"not null;uniqueIndex:idx_history_complaint_seq,priority:2" json:"sequence"`
	Action      string         `gorm:"type:varchar(50);not null" json:"action"`
	FromStatus  string         `gorm:"type:varchar(30)" json:"fromStatus,omitempty"`
	Status      string         `gorm:"type:varchar(30);not null" json:"status"`
	StepID      string         `gorm:"type:varchar(100);not null" json:"stepId"`
	ActorID     string         `gorm:"type:varchar(255);not null" json:"actorId"`
	ActorRole   string         `gorm:"type:varchar(50);not null" json:"actorRole"`
	Note        string         `gorm:"type:text" json:"note,omitempty"`
	Payload     datatypes.JSON `gorm:"type:jsonb" json:"payload,omitempty"`
	Timestamp   time.Time      `gorm:"not null;index" json:"timestamp"`
}

// TableName returns the table name for StatusHistoryEntry
func (StatusHistoryEntry) TableName() string {
	return "complaint_status_history"
}

// History actions
const (
	ActionCreate      = "create"
	ActionAdvance     = "advance"
	ActionResolve     = "resolve"
	ActionReject      = "reject"
	ActionClose       = "close"
	ActionEscalate    = "escalate"
	ActionAssign      = "assign"
	ActionReopen      = "reopen"
	ActionSLAEscalate = "sla_escalate"
	ActionSLAFlag     = "sla_flag"
	ActionSLAExhaust  = "sla_exhausted"
)

// Actor roles
const (
	RoleCitizen        = "citizen"
	RoleEmployee       = "employee"
	RoleDepartmentHead = "department_head"
	RoleAdmin          = "admin"
	RoleSystem         = "system"
)

// Actor is the user performing an operation
type Actor struct {
	ID   string `json:"id"`
	Role string `json:"role"`
	Name string `json:"name,omitempty"`
}

// SystemActor is recorded for automatic SLA handling
var SystemActor = Actor{ID: "system", Role: RoleSystem, Name: "SLA monitor"}
