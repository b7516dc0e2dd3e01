package model

// UsageStatus tracks the outcome of one machine usage.
type UsageStatus string

const (
	UsageInProgress UsageStatus = "in-progress"
	UsageCompleted  UsageStatus = "completed"
	UsageCancelled  UsageStatus = "cancelled"
)

// UsageRecord is one append-only usage history entry. It is created when a
// machine starts; cancel flips the status and zeroes the spending, collection
// marks it completed.
type UsageRecord struct {
	ID              string      `gorm:"primaryKey;size:64" json:"id"`
	MachineType     MachineType `gorm:"size:16;not null" json:"machineType"`
	MachineSeq      int         `gorm:"not null" json:"machineId"`
	Mode            string      `gorm:"size:64" json:"mode"`
	DurationMinutes int         `json:"duration"`
	StudentID       string      `gorm:"size:32;index;not null" json:"studentId"`
	Phone           string      `gorm:"size:32" json:"phone"`
	Date            string      `gorm:"size:32" json:"date"`
	Timestamp       int64       `gorm:"not null" json:"timestamp"`
	Spending        float64     `json:"spending"`
	Status          UsageStatus `gorm:"size:16;not null" json:"status"`
}
