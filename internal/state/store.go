package state

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"dorm-laundry-backend/config"
	"dorm-laundry-backend/internal/model"
)

// Clock returns the current wall-clock time. Injected so tests can drive the
// countdown without sleeping.
type Clock func() time.Time

// Gateway persists full state snapshots.
type Gateway interface {
	Load(ctx context.Context) (*model.AppState, error)
	Save(ctx context.Context, st *model.AppState) error
}

// UsageSink receives read-only copies of usage records for external
// reporting. Implementations must not block.
type UsageSink interface {
	RecordStarted(rec model.UsageRecord)
	RecordFinished(recordID string, status model.UsageStatus)
}

// Notifier delivers a best-effort notification to the head of a waitlist
// when a machine of that type frees up. Implementations must not block.
type Notifier interface {
	NotifyHead(machineType model.MachineType, head model.WaitlistEntry)
}

// Store owns the authoritative in-memory state and every transition on it.
// All operations take the single mutex, apply one read-modify-write and
// mirror the result through the gateway, so concurrent requests racing on
// the same machine serialize and the first to observe "available" wins.
type Store struct {
	mu       sync.Mutex
	st       *model.AppState
	gw       Gateway
	sink     UsageSink
	notifier Notifier
	clock    Clock
	logger   *zap.Logger
	cfg      config.LaundryConfig
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the wall-clock source.
func WithClock(c Clock) Option { return func(s *Store) { s.clock = c } }

// WithSink attaches an external usage reporting sink.
func WithSink(sink UsageSink) Option { return func(s *Store) { s.sink = sink } }

// WithNotifier attaches a waitlist notifier.
func WithNotifier(n Notifier) Option { return func(s *Store) { s.notifier = n } }

// New loads the persisted snapshot (or builds the initial inventory) and
// returns a ready store.
func New(cfg config.LaundryConfig, gw Gateway, logger *zap.Logger, opts ...Option) (*Store, error) {
	s := &Store{
		gw:     gw,
		clock:  time.Now,
		logger: logger,
		cfg:    cfg,
	}
	for _, opt := range opts {
		opt(s)
	}

	st, err := gw.Load(context.Background())
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	if st == nil || len(st.Machines) == 0 {
		st = initialState(cfg)
		logger.Info("no snapshot found, starting with initial inventory",
			zap.Int("washers", cfg.Washers), zap.Int("dryers", cfg.Dryers))
	} else {
		logger.Info("snapshot restored",
			zap.Int("machines", len(st.Machines)),
			zap.Int("usage_records", len(st.UsageHistory)))
	}
	s.st = st

	// Timers are wall-clock derived, so a restart needs nothing beyond the
	// persisted StartedAt stamps; one refresh settles any cycle that ended
	// while the process was down.
	s.refreshLocked(s.clock())
	return s, nil
}

func initialState(cfg config.LaundryConfig) *model.AppState {
	st := &model.AppState{
		Waitlists:      model.Waitlists{Washers: []model.WaitlistEntry{}, Dryers: []model.WaitlistEntry{}},
		ReportedIssues: []model.ReportedIssue{},
		UsageHistory:   []model.UsageRecord{},
		Stats:          model.Stats{ID: 1},
	}
	for seq := 1; seq <= cfg.Washers; seq++ {
		st.Machines = append(st.Machines, model.Machine{Seq: seq, Type: model.TypeWasher, Status: model.StatusAvailable})
	}
	for seq := 1; seq <= cfg.Dryers; seq++ {
		st.Machines = append(st.Machines, model.Machine{Seq: seq, Type: model.TypeDryer, Status: model.StatusAvailable})
	}
	return st
}

// Snapshot refreshes derived time fields and returns a deep copy of the
// current state. A cycle that ran out is transitioned to pending-collection
// here, as a side effect of the read.
func (s *Store) Snapshot(ctx context.Context) *model.AppState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refreshLocked(s.clock()) {
		s.persistLocked(ctx)
	}
	return s.st.Clone()
}

// RefreshTimers recomputes remaining time for all running machines. The
// background sweep calls this so state converges even when nobody polls;
// running it repeatedly is harmless because time is derived, not counted.
func (s *Store) RefreshTimers(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refreshLocked(s.clock()) {
		s.persistLocked(ctx)
	}
}

// StartRequest carries the parameters of a machine start.
type StartRequest struct {
	Seq             int
	Type            model.MachineType
	Mode            string
	DurationMinutes int
	StudentID       string
	Phone           string
}

// StartMachine transitions an available machine to running for the given
// student, records the usage and drops the student from both waitlists.
func (s *Store) StartMachine(ctx context.Context, req StartRequest) (*model.AppState, error) {
	if !req.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown machine type %q", ErrInvalidArgument, req.Type)
	}
	if req.StudentID == "" {
		return nil, fmt.Errorf("%w: student id is required", ErrInvalidArgument)
	}
	if req.DurationMinutes < s.cfg.MinCycleMinutes || req.DurationMinutes > s.cfg.MaxCycleMinutes {
		return nil, fmt.Errorf("%w: duration %d minutes out of range [%d, %d]",
			ErrInvalidArgument, req.DurationMinutes, s.cfg.MinCycleMinutes, s.cfg.MaxCycleMinutes)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock()
	s.refreshLocked(now)

	m := s.findLocked(req.Seq, req.Type)
	if m == nil {
		return nil, fmt.Errorf("%w: %s %d", ErrNotFound, req.Type, req.Seq)
	}
	if m.Locked || m.Status != model.StatusAvailable {
		return nil, fmt.Errorf("%w: %s %d is %s", ErrConflict, m.Type, m.Seq, m.Status)
	}
	for i := range s.st.Machines {
		if other := &s.st.Machines[i]; other.Active() && other.OwnerStudentID == req.StudentID {
			return nil, fmt.Errorf("%w: %s %d", ErrAlreadyActive, other.Type, other.Seq)
		}
	}

	m.Status = model.StatusRunning
	m.Mode = req.Mode
	startedAt := now
	m.StartedAt = &startedAt
	m.DurationMinutes = req.DurationMinutes
	m.TimeLeftSeconds = req.DurationMinutes * 60
	m.OwnerStudentID = req.StudentID
	m.OwnerPhone = req.Phone

	rec := model.UsageRecord{
		ID:              uuid.NewString(),
		MachineType:     req.Type,
		MachineSeq:      req.Seq,
		Mode:            req.Mode,
		DurationMinutes: req.DurationMinutes,
		StudentID:       req.StudentID,
		Phone:           req.Phone,
		Date:            now.Format("2006-01-02"),
		Timestamp:       now.UnixMilli(),
		Spending:        s.spending(req.Type, req.DurationMinutes),
		Status:          model.UsageInProgress,
	}
	s.st.UsageHistory = append(s.st.UsageHistory, rec)

	s.removeFromWaitlistsLocked(req.StudentID)

	s.persistLocked(ctx)
	if s.sink != nil {
		s.sink.RecordStarted(rec)
	}
	s.logger.Info("machine started",
		zap.String("type", string(req.Type)), zap.Int("seq", req.Seq),
		zap.String("student", req.StudentID), zap.Int("minutes", req.DurationMinutes))
	return s.st.Clone(), nil
}

// CancelMachine aborts a cycle. Only the owner may cancel; the usage record
// is marked cancelled with its spending zeroed.
func (s *Store) CancelMachine(ctx context.Context, seq int, typ model.MachineType, studentID string) (*model.AppState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshLocked(s.clock())

	m := s.findLocked(seq, typ)
	if m == nil {
		return nil, fmt.Errorf("%w: %s %d", ErrNotFound, typ, seq)
	}
	if m.OwnerStudentID == "" || m.OwnerStudentID != studentID {
		return nil, fmt.Errorf("%w: %s %d", ErrNotOwner, typ, seq)
	}

	s.closeUsageLocked(m, model.UsageCancelled)
	s.resetMachineLocked(m)
	s.notifyFreedLocked(typ)
	s.persistLocked(ctx)
	s.logger.Info("machine cancelled",
		zap.String("type", string(typ)), zap.Int("seq", seq), zap.String("student", studentID))
	return s.st.Clone(), nil
}

// CollectClothes frees a pending-collection machine. Only valid for the
// owner while the machine awaits collection.
func (s *Store) CollectClothes(ctx context.Context, seq int, typ model.MachineType, studentID string) (*model.AppState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshLocked(s.clock())

	m := s.findLocked(seq, typ)
	if m == nil {
		return nil, fmt.Errorf("%w: %s %d", ErrNotFound, typ, seq)
	}
	if m.OwnerStudentID == "" || m.OwnerStudentID != studentID {
		return nil, fmt.Errorf("%w: %s %d", ErrNotOwner, typ, seq)
	}
	if m.Status != model.StatusPendingCollection {
		return nil, fmt.Errorf("%w: %s %d is %s, not pending collection", ErrConflict, typ, seq, m.Status)
	}

	s.st.Stats.TotalWashes++
	s.st.Stats.TotalMinutes += m.DurationMinutes
	s.closeUsageLocked(m, model.UsageCompleted)
	s.resetMachineLocked(m)
	s.notifyFreedLocked(typ)
	s.persistLocked(ctx)
	s.logger.Info("clothes collected",
		zap.String("type", string(typ)), zap.Int("seq", seq), zap.String("student", studentID))
	return s.st.Clone(), nil
}

// SetLock sets the admin lock. Locking forces maintenance and cancels any
// in-flight cycle; unlocking returns the machine to available.
func (s *Store) SetLock(ctx context.Context, seq int, typ model.MachineType, locked bool) (*model.AppState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshLocked(s.clock())

	m := s.findLocked(seq, typ)
	if m == nil {
		return nil, fmt.Errorf("%w: %s %d", ErrNotFound, typ, seq)
	}

	if locked {
		if m.Active() {
			s.closeUsageLocked(m, model.UsageCancelled)
			s.resetMachineLocked(m)
		}
		m.Locked = true
		m.Status = model.StatusMaintenance
	} else {
		m.Locked = false
		if m.OwnerStudentID == "" {
			m.Status = model.StatusAvailable
			s.notifyFreedLocked(typ)
		}
	}

	s.persistLocked(ctx)
	s.logger.Info("machine lock updated",
		zap.String("type", string(typ)), zap.Int("seq", seq), zap.Bool("locked", locked))
	return s.st.Clone(), nil
}

// SetMaintenance is the admin status override. Only "available" and
// "maintenance" are accepted; maintenance implies the lock.
func (s *Store) SetMaintenance(ctx context.Context, seq int, typ model.MachineType, status model.MachineStatus) (*model.AppState, error) {
	if status != model.StatusAvailable && status != model.StatusMaintenance {
		return nil, fmt.Errorf("%w: admin override only accepts available or maintenance, got %q", ErrInvalidArgument, status)
	}
	return s.SetLock(ctx, seq, typ, status == model.StatusMaintenance)
}

// JoinWaitlist appends a student to the FIFO queue of a type. Joining twice
// is a no-op; joining while holding an active machine of that type is
// rejected.
func (s *Store) JoinWaitlist(ctx context.Context, typ model.MachineType, studentID, phone string) (*model.AppState, error) {
	if !typ.Valid() {
		return nil, fmt.Errorf("%w: unknown machine type %q", ErrInvalidArgument, typ)
	}
	if studentID == "" {
		return nil, fmt.Errorf("%w: student id is required", ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshLocked(s.clock())

	for i := range s.st.Machines {
		if m := &s.st.Machines[i]; m.Type == typ && m.Active() && m.OwnerStudentID == studentID {
			return nil, fmt.Errorf("%w: already using %s %d", ErrConflict, m.Type, m.Seq)
		}
	}

	q := s.queueLocked(typ)
	for _, e := range *q {
		if e.StudentID == studentID {
			return s.st.Clone(), nil
		}
	}
	*q = append(*q, model.WaitlistEntry{Type: typ, StudentID: studentID, Phone: phone})

	s.persistLocked(ctx)
	s.logger.Info("waitlist joined", zap.String("type", string(typ)), zap.String("student", studentID))
	return s.st.Clone(), nil
}

// LeaveWaitlist removes a student from a queue. Idempotent.
func (s *Store) LeaveWaitlist(ctx context.Context, typ model.MachineType, studentID string) (*model.AppState, error) {
	if !typ.Valid() {
		return nil, fmt.Errorf("%w: unknown machine type %q", ErrInvalidArgument, typ)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.queueLocked(typ)
	kept := (*q)[:0]
	for _, e := range *q {
		if e.StudentID != studentID {
			kept = append(kept, e)
		}
	}
	*q = kept

	s.persistLocked(ctx)
	return s.st.Clone(), nil
}

// WaitlistPosition returns a student's zero-based position in the queue and
// the coarse wait estimate position * averageCycleMinutes.
func (s *Store) WaitlistPosition(ctx context.Context, typ model.MachineType, studentID string) (int, int, error) {
	if !typ.Valid() {
		return 0, 0, fmt.Errorf("%w: unknown machine type %q", ErrInvalidArgument, typ)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, e := range *s.queueLocked(typ) {
		if e.StudentID == studentID {
			return i, i * s.avgCycleMinutes(typ), nil
		}
	}
	return 0, 0, fmt.Errorf("%w: student %s not in %s waitlist", ErrNotFound, studentID, typ)
}

// ReportIssue appends a problem report for a machine.
func (s *Store) ReportIssue(ctx context.Context, typ model.MachineType, seq int, studentID, phone, description string) (*model.AppState, error) {
	if !typ.Valid() {
		return nil, fmt.Errorf("%w: unknown machine type %q", ErrInvalidArgument, typ)
	}
	if description == "" {
		return nil, fmt.Errorf("%w: description is required", ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.findLocked(seq, typ) == nil {
		return nil, fmt.Errorf("%w: %s %d", ErrNotFound, typ, seq)
	}

	now := s.clock()
	s.st.ReportedIssues = append(s.st.ReportedIssues, model.ReportedIssue{
		ID:          uuid.NewString(),
		MachineType: typ,
		MachineSeq:  seq,
		ReportedBy:  studentID,
		Phone:       phone,
		Description: description,
		Timestamp:   now.UnixMilli(),
		Date:        now.Format("2006-01-02"),
	})

	s.persistLocked(ctx)
	s.logger.Info("issue reported",
		zap.String("type", string(typ)), zap.Int("seq", seq), zap.String("student", studentID))
	return s.st.Clone(), nil
}

// ResolveIssue flips the resolved flag on an issue (admin).
func (s *Store) ResolveIssue(ctx context.Context, issueID string, resolved bool) (*model.AppState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.st.ReportedIssues {
		if s.st.ReportedIssues[i].ID == issueID {
			s.st.ReportedIssues[i].Resolved = resolved
			s.persistLocked(ctx)
			return s.st.Clone(), nil
		}
	}
	return nil, fmt.Errorf("%w: issue %s", ErrNotFound, issueID)
}

// DeleteIssue removes an issue entirely (admin).
func (s *Store) DeleteIssue(ctx context.Context, issueID string) (*model.AppState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.st.ReportedIssues {
		if s.st.ReportedIssues[i].ID == issueID {
			s.st.ReportedIssues = append(s.st.ReportedIssues[:i], s.st.ReportedIssues[i+1:]...)
			s.persistLocked(ctx)
			return s.st.Clone(), nil
		}
	}
	return nil, fmt.Errorf("%w: issue %s", ErrNotFound, issueID)
}

// --- locked helpers ---

// refreshLocked derives TimeLeftSeconds for every machine from the persisted
// start stamp and moves finished cycles to pending-collection. Returns true
// when a status transition happened.
func (s *Store) refreshLocked(now time.Time) bool {
	changed := false
	for i := range s.st.Machines {
		m := &s.st.Machines[i]
		if m.Status != model.StatusRunning {
			m.TimeLeftSeconds = 0
			continue
		}
		if m.StartedAt == nil {
			// Should not happen; settle the machine rather than carry a
			// running status with no start stamp.
			m.Status = model.StatusPendingCollection
			m.TimeLeftSeconds = 0
			changed = true
			continue
		}
		remaining := m.DurationMinutes*60 - int(now.Sub(*m.StartedAt).Seconds())
		if remaining <= 0 {
			m.Status = model.StatusPendingCollection
			m.TimeLeftSeconds = 0
			changed = true
			s.logger.Info("cycle finished",
				zap.String("type", string(m.Type)), zap.Int("seq", m.Seq),
				zap.String("student", m.OwnerStudentID))
		} else {
			m.TimeLeftSeconds = remaining
		}
	}
	return changed
}

func (s *Store) findLocked(seq int, typ model.MachineType) *model.Machine {
	for i := range s.st.Machines {
		if s.st.Machines[i].Seq == seq && s.st.Machines[i].Type == typ {
			return &s.st.Machines[i]
		}
	}
	return nil
}

func (s *Store) queueLocked(typ model.MachineType) *[]model.WaitlistEntry {
	if typ == model.TypeWasher {
		return &s.st.Waitlists.Washers
	}
	return &s.st.Waitlists.Dryers
}

func (s *Store) removeFromWaitlistsLocked(studentID string) {
	for _, typ := range []model.MachineType{model.TypeWasher, model.TypeDryer} {
		q := s.queueLocked(typ)
		kept := (*q)[:0]
		for _, e := range *q {
			if e.StudentID != studentID {
				kept = append(kept, e)
			}
		}
		*q = kept
	}
}

// resetMachineLocked clears owner and timer fields and returns the machine
// to available.
func (s *Store) resetMachineLocked(m *model.Machine) {
	m.Status = model.StatusAvailable
	m.Mode = ""
	m.StartedAt = nil
	m.DurationMinutes = 0
	m.TimeLeftSeconds = 0
	m.OwnerStudentID = ""
	m.OwnerPhone = ""
}

// closeUsageLocked finds the most recent in-progress usage record for the
// machine's owner and settles it with the given outcome. Cancellation zeroes
// the spending.
func (s *Store) closeUsageLocked(m *model.Machine, status model.UsageStatus) {
	for i := len(s.st.UsageHistory) - 1; i >= 0; i-- {
		rec := &s.st.UsageHistory[i]
		if rec.MachineType == m.Type && rec.MachineSeq == m.Seq &&
			rec.StudentID == m.OwnerStudentID && rec.Status == model.UsageInProgress {
			rec.Status = status
			if status == model.UsageCancelled {
				rec.Spending = 0
			}
			if s.sink != nil {
				s.sink.RecordFinished(rec.ID, status)
			}
			return
		}
	}
}

func (s *Store) notifyFreedLocked(typ model.MachineType) {
	if s.notifier == nil {
		return
	}
	q := *s.queueLocked(typ)
	if len(q) > 0 {
		s.notifier.NotifyHead(typ, q[0])
	}
}

// persistLocked mirrors the state through the gateway. A failed write is
// logged but never surfaced: the in-memory state stays authoritative and the
// user-visible operation succeeds.
func (s *Store) persistLocked(ctx context.Context) {
	if err := s.gw.Save(ctx, s.st.Clone()); err != nil {
		s.logger.Error("snapshot save failed", zap.Error(err))
	}
}

func (s *Store) avgCycleMinutes(typ model.MachineType) int {
	if typ == model.TypeWasher {
		return s.cfg.AvgWasherCycleMinutes
	}
	return s.cfg.AvgDryerCycleMinutes
}

func (s *Store) spending(typ model.MachineType, minutes int) float64 {
	if typ == model.TypeWasher {
		return float64(minutes) * s.cfg.WasherPricePerMinute
	}
	return float64(minutes) * s.cfg.DryerPricePerMinute
}
