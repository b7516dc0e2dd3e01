package model

import "time"

// MachineType distinguishes the two kinds of laundry machines.
type MachineType string

const (
	TypeWasher MachineType = "washer"
	TypeDryer  MachineType = "dryer"
)

// Valid reports whether t is a known machine type.
func (t MachineType) Valid() bool {
	return t == TypeWasher || t == TypeDryer
}

// MachineStatus is the lifecycle state of a machine.
type MachineStatus string

const (
	StatusAvailable         MachineStatus = "available"
	StatusRunning           MachineStatus = "running"
	StatusPendingCollection MachineStatus = "pending-collection"
	StatusMaintenance       MachineStatus = "maintenance"
)

// Machine represents one washer or dryer slot. Identity is the composite
// (Seq, Type); the inventory is fixed at startup and never changes.
type Machine struct {
	Seq             int           `gorm:"primaryKey" json:"id"`
	Type            MachineType   `gorm:"primaryKey;size:16" json:"type"`
	Status          MachineStatus `gorm:"size:32;not null" json:"status"`
	Mode            string        `gorm:"size:64" json:"mode"`
	StartedAt       *time.Time    `json:"startedAt,omitempty"`
	DurationMinutes int           `json:"originalDurationMinutes"`
	// TimeLeftSeconds is derived from StartedAt and DurationMinutes on every
	// read; it is never stored and never taken from client input.
	TimeLeftSeconds int    `gorm:"-" json:"timeLeft"`
	Locked          bool   `json:"locked"`
	OwnerStudentID  string `gorm:"size:32" json:"userStudentId"`
	OwnerPhone      string `gorm:"size:32" json:"userPhone"`
}

// Active reports whether the machine is currently held by its owner.
func (m *Machine) Active() bool {
	return m.Status == StatusRunning || m.Status == StatusPendingCollection
}
