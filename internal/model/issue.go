package model

// ReportedIssue is an append-only problem report for a machine. Admins may
// mark it resolved or delete it; nothing else mutates it.
type ReportedIssue struct {
	ID          string      `gorm:"primaryKey;size:64" json:"id"`
	MachineType MachineType `gorm:"size:16;not null" json:"machineType"`
	MachineSeq  int         `gorm:"not null" json:"machineId"`
	ReportedBy  string      `gorm:"size:32;not null" json:"reportedBy"`
	Phone       string      `gorm:"size:32" json:"phone"`
	Description string      `gorm:"not null" json:"description"`
	Timestamp   int64       `gorm:"not null" json:"timestamp"`
	Date        string      `gorm:"size:32" json:"date"`
	Resolved    bool        `json:"resolved"`
}
