package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Employee is a field worker or officer that complaints can be assigned to
type Employee struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Name            string         `gorm:"type:varchar(255);not null" json:"name"`
	Role            string         `gorm:"type:varchar(50);not null" json:"role"`
	Zone            string         `gorm:"type:varchar(100);index" json:"zone"`
	Specializations pq.StringArray `gorm:"type:text[]" json:"specializations"`
	ActiveTaskCount int            `gorm:"not null;default:0" json:"activeTaskCount"`
	MaxCapacity     int            `gorm:"not null;default:5" json:"maxCapacity"`
	Availability    string         `gorm:"type:varchar(20);not null;default:'available';index" json:"availability"`
	Latitude        *float64       `json:"latitude,omitempty"`
	Longitude       *float64       `json:"longitude,omitempty"`
	Rating          float64        `gorm:"not null;default:0" json:"rating"`
	Version         int            `gorm:"not null;default:1" json:"version"` // Optimistic locking
	CreatedAt       time.Time      `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName returns the table name for Employee
func (Employee) TableName() string {
	return "employees"
}

// Availability constants
const (
	AvailabilityAvailable = "available"
	AvailabilityBusy      = "busy"
	AvailabilityOffline   = "offline"
)

// IsValidAvailability reports whether a is a known availability value
func IsValidAvailability(a string) bool {
	switch a {
	case AvailabilityAvailable, AvailabilityBusy, AvailabilityOffline:
		return true
	}
	return false
}

// HasCapacity reports whether the employee can take another task
func (e *Employee) HasCapacity() bool {
	return e.ActiveTaskCount < e.MaxCapacity
}

// IsEligible reports whether the employee can be considered for assignment
func (e *Employee) IsEligible() bool {
	return e.Availability != AvailabilityOffline && e.HasCapacity()
}

// HasCoordinates reports whether the employee's position is known
func (e *Employee) HasCoordinates() bool {
	return e.Latitude != nil && e.Longitude != nil
}

// LoadRatio is active tasks over capacity, 1 when capacity is zero
func (e *Employee) LoadRatio() float64 {
	if e.MaxCapacity <= 0 {
		return 1
	}
	return float64(e.ActiveTaskCount) / float64(e.MaxCapacity)
}

// Specializes reports whether any specialization matches one of the given tags
func (e *Employee) Specializes(tags ...string) bool {
	for _, s := range e.Specializations {
		for _, t := range tags {
			if t != "" && s == t {
				return true
			}
		}
	}
	return false
}
