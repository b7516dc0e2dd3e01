package model

// Stats aggregates completed usage across all students.
type Stats struct {
	ID           uint `gorm:"primaryKey" json:"-"`
	TotalWashes  int  `json:"totalWashes"`
	TotalMinutes int  `json:"totalMinutes"`
}

// AppState is the aggregate root: the single authoritative in-memory state of
// the laundry room, mirrored to durable storage after every mutation.
type AppState struct {
	Machines       []Machine       `json:"machines"`
	Waitlists      Waitlists       `json:"waitlists"`
	ReportedIssues []ReportedIssue `json:"reportedIssues"`
	UsageHistory   []UsageRecord   `json:"usageHistory"`
	Stats          Stats           `json:"stats"`
}

// Clone returns a deep copy of the state. All leaf fields are value types, so
// copying the slices is sufficient.
func (s *AppState) Clone() *AppState {
	out := &AppState{
		Machines:       make([]Machine, len(s.Machines)),
		ReportedIssues: make([]ReportedIssue, len(s.ReportedIssues)),
		UsageHistory:   make([]UsageRecord, len(s.UsageHistory)),
		Stats:          s.Stats,
	}
	copy(out.Machines, s.Machines)
	for i, m := range s.Machines {
		if m.StartedAt != nil {
			t := *m.StartedAt
			out.Machines[i].StartedAt = &t
		}
	}
	copy(out.ReportedIssues, s.ReportedIssues)
	copy(out.UsageHistory, s.UsageHistory)
	out.Waitlists.Washers = append([]WaitlistEntry(nil), s.Waitlists.Washers...)
	out.Waitlists.Dryers = append([]WaitlistEntry(nil), s.Waitlists.Dryers...)
	return out
}
