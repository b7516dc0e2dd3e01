package model

// WaitlistEntry is one student waiting for the next free machine of a type.
// Position encodes the FIFO order when the entry is persisted; the in-memory
// queues rely on slice order alone.
type WaitlistEntry struct {
	Type      MachineType `gorm:"primaryKey;size:16" json:"-"`
	Position  int         `gorm:"primaryKey" json:"-"`
	StudentID string      `gorm:"size:32;not null" json:"studentId"`
	Phone     string      `gorm:"size:32" json:"phone"`
}

// Waitlists holds the per-type FIFO queues.
type Waitlists struct {
	Washers []WaitlistEntry `json:"washers"`
	Dryers  []WaitlistEntry `json:"dryers"`
}
