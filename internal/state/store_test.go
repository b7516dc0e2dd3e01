package state

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"dorm-laundry-backend/config"
	"dorm-laundry-backend/internal/model"
)

// fakeClock is a controllable wall clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// memGateway keeps snapshots in memory so restarts can be simulated by
// constructing a second store over the same gateway.
type memGateway struct {
	mu      sync.Mutex
	st      *model.AppState
	saves   int
	saveErr error
}

func (g *memGateway) Load(ctx context.Context) (*model.AppState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.st, nil
}

func (g *memGateway) Save(ctx context.Context, st *model.AppState) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.saveErr != nil {
		return g.saveErr
	}
	g.st = st
	g.saves++
	return nil
}

// recordingNotifier captures NotifyHead calls.
type recordingNotifier struct {
	mu    sync.Mutex
	calls []model.WaitlistEntry
}

func (n *recordingNotifier) NotifyHead(_ model.MachineType, head model.WaitlistEntry) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, head)
}

func testLaundryConfig() config.LaundryConfig {
	return config.LaundryConfig{
		Washers:               6,
		Dryers:                6,
		AvgWasherCycleMinutes: 40,
		AvgDryerCycleMinutes:  45,
		MinCycleMinutes:       1,
		MaxCycleMinutes:       180,
		WasherPricePerMinute:  0.2,
		DryerPricePerMinute:   0.25,
	}
}

func newTestStore(t *testing.T, opts ...Option) (*Store, *fakeClock, *memGateway) {
	t.Helper()
	clk := &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	gw := &memGateway{}
	opts = append([]Option{WithClock(clk.Now)}, opts...)
	s, err := New(testLaundryConfig(), gw, zap.NewNop(), opts...)
	require.NoError(t, err)
	return s, clk, gw
}

func startWasher3(t *testing.T, s *Store) *model.AppState {
	t.Helper()
	st, err := s.StartMachine(context.Background(), StartRequest{
		Seq: 3, Type: model.TypeWasher, Mode: "Normal", DurationMinutes: 30,
		StudentID: "123456", Phone: "0123456789",
	})
	require.NoError(t, err)
	return st
}

func findMachine(st *model.AppState, seq int, typ model.MachineType) *model.Machine {
	for i := range st.Machines {
		if st.Machines[i].Seq == seq && st.Machines[i].Type == typ {
			return &st.Machines[i]
		}
	}
	return nil
}

func TestStartMachine_Lifecycle(t *testing.T) {
	s, clk, _ := newTestStore(t)
	ctx := context.Background()

	st := startWasher3(t, s)
	m := findMachine(st, 3, model.TypeWasher)
	require.NotNil(t, m)
	assert.Equal(t, model.StatusRunning, m.Status)
	assert.Equal(t, 1800, m.TimeLeftSeconds)
	assert.Equal(t, "Normal", m.Mode)
	assert.Equal(t, "123456", m.OwnerStudentID)

	require.Len(t, st.UsageHistory, 1)
	assert.Equal(t, model.UsageInProgress, st.UsageHistory[0].Status)
	assert.InDelta(t, 6.0, st.UsageHistory[0].Spending, 1e-9)

	// Full cycle elapses; the next read observes the finish.
	clk.Advance(1800 * time.Second)
	st = s.Snapshot(ctx)
	m = findMachine(st, 3, model.TypeWasher)
	assert.Equal(t, model.StatusPendingCollection, m.Status)
	assert.Equal(t, 0, m.TimeLeftSeconds)
	assert.Equal(t, "123456", m.OwnerStudentID)

	st, err := s.CollectClothes(ctx, 3, model.TypeWasher, "123456")
	require.NoError(t, err)
	m = findMachine(st, 3, model.TypeWasher)
	assert.Equal(t, model.StatusAvailable, m.Status)
	assert.Empty(t, m.OwnerStudentID)
	assert.Empty(t, m.OwnerPhone)
	assert.Nil(t, m.StartedAt)

	assert.Equal(t, model.UsageCompleted, st.UsageHistory[0].Status)
	assert.Equal(t, 1, st.Stats.TotalWashes)
	assert.Equal(t, 30, st.Stats.TotalMinutes)
}

func TestStartMachine_ConflictWhenNotAvailable(t *testing.T) {
	s, _, _ := newTestStore(t)
	startWasher3(t, s)

	_, err := s.StartMachine(context.Background(), StartRequest{
		Seq: 3, Type: model.TypeWasher, Mode: "Normal", DurationMinutes: 30,
		StudentID: "999999", Phone: "0",
	})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestStartMachine_OneActiveMachinePerStudent(t *testing.T) {
	s, _, _ := newTestStore(t)
	startWasher3(t, s)

	// The cap is system-wide, so a dryer is off limits too.
	_, err := s.StartMachine(context.Background(), StartRequest{
		Seq: 1, Type: model.TypeDryer, Mode: "Normal", DurationMinutes: 45,
		StudentID: "123456", Phone: "0123456789",
	})
	assert.ErrorIs(t, err, ErrAlreadyActive)
}

func TestStartMachine_Locked(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.SetLock(ctx, 2, model.TypeWasher, true)
	require.NoError(t, err)

	_, err = s.StartMachine(ctx, StartRequest{
		Seq: 2, Type: model.TypeWasher, Mode: "Normal", DurationMinutes: 30,
		StudentID: "123456", Phone: "0",
	})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestStartMachine_Validation(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.StartMachine(ctx, StartRequest{
		Seq: 1, Type: "microwave", Mode: "Normal", DurationMinutes: 30, StudentID: "1",
	})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = s.StartMachine(ctx, StartRequest{
		Seq: 1, Type: model.TypeWasher, Mode: "Normal", DurationMinutes: 0, StudentID: "1",
	})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = s.StartMachine(ctx, StartRequest{
		Seq: 99, Type: model.TypeWasher, Mode: "Normal", DurationMinutes: 30, StudentID: "1",
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStartMachine_RemovesStudentFromBothWaitlists(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.JoinWaitlist(ctx, model.TypeWasher, "123456", "0123456789")
	require.NoError(t, err)
	_, err = s.JoinWaitlist(ctx, model.TypeDryer, "123456", "0123456789")
	require.NoError(t, err)

	st := startWasher3(t, s)
	assert.Empty(t, st.Waitlists.Washers)
	assert.Empty(t, st.Waitlists.Dryers)
}

func TestCancel_NotOwnerLeavesStateUnchanged(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()
	startWasher3(t, s)

	_, err := s.CancelMachine(ctx, 3, model.TypeWasher, "999999")
	assert.ErrorIs(t, err, ErrNotOwner)

	st := s.Snapshot(ctx)
	m := findMachine(st, 3, model.TypeWasher)
	assert.Equal(t, model.StatusRunning, m.Status)
	assert.Equal(t, "123456", m.OwnerStudentID)
}

func TestCancel_MarksUsageCancelledAndZeroesSpending(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()
	startWasher3(t, s)

	st, err := s.CancelMachine(ctx, 3, model.TypeWasher, "123456")
	require.NoError(t, err)

	m := findMachine(st, 3, model.TypeWasher)
	assert.Equal(t, model.StatusAvailable, m.Status)
	assert.Empty(t, m.OwnerStudentID)

	require.Len(t, st.UsageHistory, 1)
	assert.Equal(t, model.UsageCancelled, st.UsageHistory[0].Status)
	assert.Zero(t, st.UsageHistory[0].Spending)
	assert.Zero(t, st.Stats.TotalWashes)
}

func TestCollect_OnlyWhenPendingCollection(t *testing.T) {
	s, _, _ := newTestStore(t)
	startWasher3(t, s)

	_, err := s.CollectClothes(context.Background(), 3, model.TypeWasher, "123456")
	assert.ErrorIs(t, err, ErrConflict)
}

func TestMonotonicCountdown(t *testing.T) {
	s, clk, _ := newTestStore(t)
	ctx := context.Background()
	startWasher3(t, s)

	prev := 1800
	for _, step := range []time.Duration{10 * time.Second, 90 * time.Second, 600 * time.Second} {
		clk.Advance(step)
		m := findMachine(s.Snapshot(ctx), 3, model.TypeWasher)
		assert.LessOrEqual(t, m.TimeLeftSeconds, prev)
		assert.GreaterOrEqual(t, m.TimeLeftSeconds, 0)
		prev = m.TimeLeftSeconds
	}
	assert.Equal(t, 1800-10-90-600, prev)
}

func TestRestartRecovery(t *testing.T) {
	s, clk, gw := newTestStore(t)
	startWasher3(t, s)

	// Simulate a process restart after the cycle ended: a fresh store over
	// the same gateway, with only the persisted start stamp to go on.
	clk.Advance(1800 * time.Second)
	restarted, err := New(testLaundryConfig(), gw, zap.NewNop(), WithClock(clk.Now))
	require.NoError(t, err)

	m := findMachine(restarted.Snapshot(context.Background()), 3, model.TypeWasher)
	assert.Equal(t, model.StatusPendingCollection, m.Status)
	assert.Equal(t, 0, m.TimeLeftSeconds)
	assert.Equal(t, "123456", m.OwnerStudentID)
}

func TestWaitlist_JoinIsUniqueAndOrdered(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.JoinWaitlist(ctx, model.TypeWasher, "654321", "111")
	require.NoError(t, err)
	st, err := s.JoinWaitlist(ctx, model.TypeWasher, "654321", "111")
	require.NoError(t, err)
	assert.Len(t, st.Waitlists.Washers, 1)

	pos, est, err := s.WaitlistPosition(ctx, model.TypeWasher, "654321")
	require.NoError(t, err)
	assert.Equal(t, 0, pos)
	assert.Equal(t, 0, est)

	_, err = s.JoinWaitlist(ctx, model.TypeWasher, "777777", "222")
	require.NoError(t, err)
	pos, est, err = s.WaitlistPosition(ctx, model.TypeWasher, "777777")
	require.NoError(t, err)
	assert.Equal(t, 1, pos)
	assert.Equal(t, 40, est)
}

func TestWaitlist_JoinBlockedWhileUsingSameType(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()
	startWasher3(t, s)

	_, err := s.JoinWaitlist(ctx, model.TypeWasher, "123456", "0123456789")
	assert.ErrorIs(t, err, ErrConflict)

	// The other type's queue is fine.
	st, err := s.JoinWaitlist(ctx, model.TypeDryer, "123456", "0123456789")
	require.NoError(t, err)
	assert.Len(t, st.Waitlists.Dryers, 1)
}

func TestWaitlist_LeaveIsIdempotent(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.JoinWaitlist(ctx, model.TypeDryer, "654321", "111")
	require.NoError(t, err)
	st, err := s.LeaveWaitlist(ctx, model.TypeDryer, "654321")
	require.NoError(t, err)
	assert.Empty(t, st.Waitlists.Dryers)

	st, err = s.LeaveWaitlist(ctx, model.TypeDryer, "654321")
	require.NoError(t, err)
	assert.Empty(t, st.Waitlists.Dryers)
}

func TestIssueLifecycle(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	st, err := s.ReportIssue(ctx, model.TypeDryer, 2, "123456", "0123456789", "drum does not spin")
	require.NoError(t, err)
	require.Len(t, st.ReportedIssues, 1)
	issue := st.ReportedIssues[0]
	assert.False(t, issue.Resolved)

	st, err = s.ResolveIssue(ctx, issue.ID, true)
	require.NoError(t, err)
	assert.True(t, st.ReportedIssues[0].Resolved)

	st, err = s.DeleteIssue(ctx, issue.ID)
	require.NoError(t, err)
	assert.Empty(t, st.ReportedIssues)

	_, err = s.ResolveIssue(ctx, issue.ID, true)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.DeleteIssue(ctx, issue.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReportIssue_RequiresDescriptionAndMachine(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.ReportIssue(ctx, model.TypeDryer, 2, "123456", "0", "")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = s.ReportIssue(ctx, model.TypeDryer, 42, "123456", "0", "broken")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetLock_CancelsRunningCycle(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()
	startWasher3(t, s)

	st, err := s.SetLock(ctx, 3, model.TypeWasher, true)
	require.NoError(t, err)

	m := findMachine(st, 3, model.TypeWasher)
	assert.Equal(t, model.StatusMaintenance, m.Status)
	assert.True(t, m.Locked)
	assert.Empty(t, m.OwnerStudentID)
	assert.Equal(t, model.UsageCancelled, st.UsageHistory[0].Status)

	st, err = s.SetLock(ctx, 3, model.TypeWasher, false)
	require.NoError(t, err)
	m = findMachine(st, 3, model.TypeWasher)
	assert.Equal(t, model.StatusAvailable, m.Status)
	assert.False(t, m.Locked)
}

func TestSetMaintenance_RejectsOtherStatuses(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.SetMaintenance(ctx, 1, model.TypeWasher, model.StatusRunning)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	st, err := s.SetMaintenance(ctx, 1, model.TypeWasher, model.StatusMaintenance)
	require.NoError(t, err)
	m := findMachine(st, 1, model.TypeWasher)
	assert.Equal(t, model.StatusMaintenance, m.Status)
	assert.True(t, m.Locked)
}

func TestPersistenceFailure_MutationStillApplies(t *testing.T) {
	s, _, gw := newTestStore(t)
	gw.mu.Lock()
	gw.saveErr = context.DeadlineExceeded
	gw.mu.Unlock()

	st := startWasher3(t, s)
	m := findMachine(st, 3, model.TypeWasher)
	assert.Equal(t, model.StatusRunning, m.Status)
}

func TestNotifyHead_OnMachineFreed(t *testing.T) {
	notifier := &recordingNotifier{}
	s, _, _ := newTestStore(t, WithNotifier(notifier))
	ctx := context.Background()

	_, err := s.JoinWaitlist(ctx, model.TypeWasher, "654321", "111")
	require.NoError(t, err)
	_, err = s.JoinWaitlist(ctx, model.TypeWasher, "777777", "222")
	require.NoError(t, err)

	startWasher3(t, s)
	_, err = s.CancelMachine(ctx, 3, model.TypeWasher, "123456")
	require.NoError(t, err)

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	require.Len(t, notifier.calls, 1)
	assert.Equal(t, "654321", notifier.calls[0].StudentID)
}

func TestSingleOwnerInvariant(t *testing.T) {
	s, clk, _ := newTestStore(t)
	ctx := context.Background()

	check := func(st *model.AppState) {
		t.Helper()
		for _, m := range st.Machines {
			if m.Status == model.StatusRunning || m.Status == model.StatusPendingCollection {
				assert.NotEmpty(t, m.OwnerStudentID, "%s %d", m.Type, m.Seq)
			} else {
				assert.Empty(t, m.OwnerStudentID, "%s %d", m.Type, m.Seq)
			}
		}
	}

	check(startWasher3(t, s))
	clk.Advance(1800 * time.Second)
	check(s.Snapshot(ctx))
	st, err := s.CollectClothes(ctx, 3, model.TypeWasher, "123456")
	require.NoError(t, err)
	check(st)
}

func TestSnapshot_ReturnsIsolatedCopy(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	st := s.Snapshot(ctx)
	st.Machines[0].OwnerStudentID = "tampered"
	st.Waitlists.Washers = append(st.Waitlists.Washers, model.WaitlistEntry{StudentID: "x"})

	fresh := s.Snapshot(ctx)
	assert.Empty(t, fresh.Machines[0].OwnerStudentID)
	assert.Empty(t, fresh.Waitlists.Washers)
}
