package attendance

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/demartbuy-afk/notifyedu/internal/directory"
)

type captureNotifier struct {
	logs []Log
}

func (n *captureNotifier) StudentMarked(_ context.Context, l Log) {
	n.logs = append(n.logs, l)
}

type fixture struct {
	svc      *Service
	store    *MemoryStore
	dir      *directory.MemoryDirectory
	notifier *captureNotifier
	clock    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    NewMemoryStore(),
		dir:      directory.NewMemory(),
		notifier: &captureNotifier{},
		clock:    time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(f.store, f.dir, f.notifier)
	f.svc.now = func() time.Time {
		f.clock = f.clock.Add(time.Minute)
		return f.clock
	}

	ctx := context.Background()
	require.NoError(t, f.dir.Upsert(ctx, directory.Entity{ID: "stu-a", Kind: directory.KindStudent, SchoolID: "sch-1", Name: "Asha"}))
	require.NoError(t, f.dir.Upsert(ctx, directory.Entity{ID: "stu-b", Kind: directory.KindStudent, SchoolID: "sch-1", Name: "Bilal"}))
	require.NoError(t, f.dir.Upsert(ctx, directory.Entity{ID: "stu-e", Kind: directory.KindStudent, SchoolID: "sch-1", Name: "Esha"}))
	require.NoError(t, f.dir.Upsert(ctx, directory.Entity{ID: "stu-x", Kind: directory.KindStudent, SchoolID: "sch-2", Name: "Xavier"}))
	require.NoError(t, f.dir.Upsert(ctx, directory.Entity{ID: "tch-1", Kind: directory.KindTeacher, SchoolID: "sch-1", Name: "Mr. Rao"}))
	return f
}

func TestMarkWalkInDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in, err := f.svc.Mark(ctx, RoleSchool, "sch-1", "stu-a", StatusIn, ModeManual, EntityStudent)
	require.NoError(t, err)
	assert.Equal(t, StatusIn, in.Status)
	assert.Equal(t, "Asha", in.EntityName)
	assert.NotEmpty(t, in.ID)

	out, err := f.svc.Mark(ctx, RoleSchool, "sch-1", "stu-a", StatusOut, ModeManual, EntityStudent)
	require.NoError(t, err)
	assert.Equal(t, StatusOut, out.Status)

	_, err = f.svc.Mark(ctx, RoleSchool, "sch-1", "stu-a", StatusIn, ModeManual, EntityStudent)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already completed the attendance cycle")
}

func TestMarkBusDaySkippedCheckIn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Mark(ctx, RoleSchool, "sch-1", "stu-b", StatusBusIn, ModeQR, EntityStudent)
	require.NoError(t, err)

	_, err = f.svc.Mark(ctx, RoleSchool, "sch-1", "stu-b", StatusBusOut, ModeQR, EntityStudent)
	require.Error(t, err)

	var inv *InvalidTransitionError
	require.ErrorAs(t, err, &inv)
	assert.Equal(t, StatusBusIn, inv.Last)
	assert.Equal(t, StatusBusOut, inv.Requested)
	assert.Contains(t, err.Error(), "after BUS_IN, expected IN")
}

func TestMarkDuplicateScanIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Mark(ctx, RoleSchool, "sch-1", "stu-a", StatusIn, ModeQR, EntityStudent)
	require.NoError(t, err)

	second, err := f.svc.Mark(ctx, RoleSchool, "sch-1", "stu-a", StatusIn, ModeQR, EntityStudent)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	todays, err := f.store.LogsForEntityOnDay(ctx, "stu-a", first.Day())
	require.NoError(t, err)
	assert.Len(t, todays, 1)

	// The duplicate does not re-notify.
	assert.Len(t, f.notifier.logs, 1)
}

func TestMarkFullBusCycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, st := range []Status{StatusBusIn, StatusIn, StatusOut, StatusBusOut} {
		_, err := f.svc.Mark(ctx, RoleSchool, "sch-1", "stu-b", st, ModeQR, EntityStudent)
		require.NoError(t, err, "status %s", st)
	}

	_, err := f.svc.Mark(ctx, RoleSchool, "sch-1", "stu-b", StatusIn, ModeQR, EntityStudent)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already completed the bus attendance cycle")
}

func TestMarkAuthorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var authz *AuthorizationError

	_, err := f.svc.Mark(ctx, RoleGuard, "sch-1", "stu-a", StatusIn, ModeManual, EntityStudent)
	require.ErrorAs(t, err, &authz)

	_, err = f.svc.Mark(ctx, RoleStudent, "sch-1", "stu-a", StatusIn, ModeManual, EntityStudent)
	require.ErrorAs(t, err, &authz)

	// Academic work staff may mark students but never teachers.
	_, err = f.svc.Mark(ctx, RoleAcademicWork, "sch-1", "stu-a", StatusIn, ModeManual, EntityStudent)
	require.NoError(t, err)

	_, err = f.svc.Mark(ctx, RoleAcademicWork, "sch-1", "tch-1", StatusIn, ModeManual, EntityTeacher)
	require.ErrorAs(t, err, &authz)
	assert.Contains(t, err.Error(), "teacher attendance")

	_, err = f.svc.Mark(ctx, RoleSchool, "sch-1", "tch-1", StatusIn, ModeManual, EntityTeacher)
	require.NoError(t, err)
}

func TestMarkSchoolScope(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// stu-x belongs to sch-2; a sch-1 caller cannot see it.
	_, err := f.svc.Mark(ctx, RoleSchool, "sch-1", "stu-x", StatusIn, ModeManual, EntityStudent)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.Mark(ctx, RoleSchool, "sch-1", "missing", StatusIn, ModeManual, EntityStudent)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMarkRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stored, err := f.svc.Mark(ctx, RoleSchool, "sch-1", "stu-a", StatusIn, ModeManual, EntityStudent)
	require.NoError(t, err)

	byEntity, err := f.store.LogsForEntityOnDay(ctx, "stu-a", stored.Day())
	require.NoError(t, err)
	require.Len(t, byEntity, 1)
	assert.Equal(t, stored, byEntity[0])

	bySchool, err := f.store.LogsForSchoolOnDay(ctx, "sch-1", stored.Day())
	require.NoError(t, err)
	require.Len(t, bySchool, 1)
	assert.Equal(t, stored, bySchool[0])
}

func TestStudentNotifications(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Mark(ctx, RoleSchool, "sch-1", "stu-a", StatusIn, ModeManual, EntityStudent)
	require.NoError(t, err)
	_, err = f.svc.Mark(ctx, RoleSchool, "sch-1", "tch-1", StatusIn, ModeManual, EntityTeacher)
	require.NoError(t, err)

	// Teacher marks never notify.
	require.Len(t, f.notifier.logs, 1)
	assert.Equal(t, "stu-a", f.notifier.logs[0].EntityID)
}

func TestSweepAbsent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Mark(ctx, RoleSchool, "sch-1", "stu-a", StatusIn, ModeManual, EntityStudent)
	require.NoError(t, err)
	_, err = f.svc.Mark(ctx, RoleSchool, "sch-1", "stu-b", StatusBusIn, ModeQR, EntityStudent)
	require.NoError(t, err)

	// Only stu-e has no log at all today.
	count, err := f.svc.SweepAbsent(ctx, RoleSchool, "sch-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	todays, err := f.store.LogsForEntityOnDay(ctx, "stu-e", DayOf(f.clock))
	require.NoError(t, err)
	require.Len(t, todays, 1)
	assert.Equal(t, StatusAbsent, todays[0].Status)
	assert.Equal(t, ModeSystem, todays[0].Mode)

	// Re-running is a no-op.
	count, err = f.svc.SweepAbsent(ctx, RoleSchool, "sch-1")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestSweepAbsentAllPresent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, id := range []string{"stu-a", "stu-b", "stu-e"} {
		_, err := f.svc.Mark(ctx, RoleSchool, "sch-1", id, StatusIn, ModeManual, EntityStudent)
		require.NoError(t, err)
	}

	count, err := f.svc.SweepAbsent(ctx, RoleSchool, "sch-1")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestSweepAbsentAuthorization(t *testing.T) {
	f := newFixture(t)

	var authz *AuthorizationError
	_, err := f.svc.SweepAbsent(context.Background(), RoleBus, "sch-1")
	require.ErrorAs(t, err, &authz)
}

func TestSweepNotifies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	count, err := f.svc.SweepAbsent(ctx, RoleAcademicWork, "sch-1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Len(t, f.notifier.logs, 3)
}

// readHookStore invokes onRead before every per-entity day read, letting a
// test inject work at the point between the sweep's read and its append.
type readHookStore struct {
	*MemoryStore
	onRead func(entityID string)
}

func (s *readHookStore) LogsForEntityOnDay(ctx context.Context, entityID, day string) ([]Log, error) {
	if s.onRead != nil {
		s.onRead(entityID)
	}
	return s.MemoryStore.LogsForEntityOnDay(ctx, entityID, day)
}

func TestSweepSerializesWithConcurrentMark(t *testing.T) {
	store := &readHookStore{MemoryStore: NewMemoryStore()}
	dir := directory.NewMemory()
	ctx := context.Background()
	require.NoError(t, dir.Upsert(ctx, directory.Entity{ID: "stu-e", Kind: directory.KindStudent, SchoolID: "sch-1", Name: "Esha"}))

	svc := NewService(store, dir, nil)
	at := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return at }

	// While the sweep holds stu-e's lock, race a scan at it. The scan must
	// wait for the lock, find the sweep's ABSENT, and be rejected, so the
	// day never ends up with both an IN and an ABSENT.
	markErr := make(chan error, 1)
	var once sync.Once
	store.onRead = func(entityID string) {
		if entityID != "stu-e" {
			return
		}
		once.Do(func() {
			go func() {
				_, err := svc.Mark(ctx, RoleSchool, "sch-1", "stu-e", StatusIn, ModeManual, EntityStudent)
				markErr <- err
			}()
			time.Sleep(50 * time.Millisecond)
		})
	}

	count, err := svc.SweepAbsent(ctx, RoleSchool, "sch-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	var invalid *InvalidTransitionError
	require.ErrorAs(t, <-markErr, &invalid)
	assert.Equal(t, StatusAbsent, invalid.Last)

	todays, err := store.LogsForEntityOnDay(ctx, "stu-e", DayOf(at))
	require.NoError(t, err)
	require.Len(t, todays, 1)
	assert.Equal(t, StatusAbsent, todays[0].Status)
}

func TestDeleteEntityCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stored, err := f.svc.Mark(ctx, RoleSchool, "sch-1", "stu-a", StatusIn, ModeManual, EntityStudent)
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteEntity(ctx, "stu-a", EntityStudent))

	_, err = f.dir.Resolve(ctx, directory.KindStudent, "stu-a")
	require.ErrorIs(t, err, directory.ErrNotFound)

	todays, err := f.store.LogsForEntityOnDay(ctx, "stu-a", stored.Day())
	require.NoError(t, err)
	assert.Empty(t, todays)
}

func TestAnalyticsPresenceSupersedesAbsent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Yesterday: swept absent. Today: swept absent, then checked in late.
	yesterday := time.Date(2026, 3, 1, 17, 0, 0, 0, time.UTC)
	_, err := f.store.Append(ctx, Log{
		EntityID: "stu-a", EntityName: "Asha", EntityType: EntityStudent,
		SchoolID: "sch-1", Timestamp: yesterday, Status: StatusAbsent, Mode: ModeSystem,
	})
	require.NoError(t, err)

	today := time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC)
	_, err = f.store.Append(ctx, Log{
		EntityID: "stu-a", EntityName: "Asha", EntityType: EntityStudent,
		SchoolID: "sch-1", Timestamp: today, Status: StatusAbsent, Mode: ModeSystem,
	})
	require.NoError(t, err)

	// The machine rejects IN after a same-day ABSENT, so the late arrival
	// is recorded out of band, the way a manual correction would be.
	in, err := f.store.Append(ctx, Log{
		EntityID: "stu-a", EntityName: "Asha", EntityType: EntityStudent,
		SchoolID: "sch-1", Timestamp: today.Add(2 * time.Hour), Status: StatusIn, Mode: ModeManual,
	})
	require.NoError(t, err)
	out, err := f.store.Append(ctx, Log{
		EntityID: "stu-a", EntityName: "Asha", EntityType: EntityStudent,
		SchoolID: "sch-1", Timestamp: today.Add(8 * time.Hour), Status: StatusOut, Mode: ModeManual,
	})
	require.NoError(t, err)

	stats, err := f.svc.Analytics(ctx, "stu-a")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.PresentCount, "today counts present despite the sweep log")
	assert.Equal(t, 1, stats.AbsentCount, "yesterday stays absent")
	require.NotNil(t, stats.LastEntry)
	assert.True(t, stats.LastEntry.Equal(in.Timestamp))
	require.NotNil(t, stats.LastExit)
	assert.True(t, stats.LastExit.Equal(out.Timestamp))
	assert.Len(t, stats.RecentLogs, 4)
}

func TestMarkAfterSweepIsRejected(t *testing.T) {
	// The sweeper does not retract ABSENT, and the walk-in table has no
	// successor for it; analytics precedence is the recovery path.
	f := newFixture(t)
	ctx := context.Background()

	count, err := f.svc.SweepAbsent(ctx, RoleSchool, "sch-1")
	require.NoError(t, err)
	require.Equal(t, 3, count)

	_, err = f.svc.Mark(ctx, RoleSchool, "sch-1", "stu-a", StatusIn, ModeManual, EntityStudent)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after ABSENT")
}

func TestMemoryStoreOrdering(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	// Same timestamp: the sequence counter breaks the tie.
	ts := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	first, err := s.Append(ctx, Log{EntityID: "e", SchoolID: "s", EntityType: EntityStudent, Timestamp: ts, Status: StatusIn})
	require.NoError(t, err)
	second, err := s.Append(ctx, Log{EntityID: "e", SchoolID: "s", EntityType: EntityStudent, Timestamp: ts, Status: StatusOut})
	require.NoError(t, err)
	assert.Greater(t, second.Seq, first.Seq)

	asc, err := s.LogsForEntityOnDay(ctx, "e", "2026-03-02")
	require.NoError(t, err)
	require.Len(t, asc, 2)
	assert.Equal(t, StatusIn, asc[0].Status)
	assert.Equal(t, StatusOut, asc[1].Status)

	desc, err := s.LogsForSchoolOnDay(ctx, "s", "2026-03-02")
	require.NoError(t, err)
	require.Len(t, desc, 2)
	assert.Equal(t, StatusOut, desc[0].Status)
}

func TestMonthlyLogs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// A log from February must not appear in March's view.
	_, err := f.store.Append(ctx, Log{
		EntityID: "stu-a", EntityName: "Asha", EntityType: EntityStudent,
		SchoolID: "sch-1", Timestamp: time.Date(2026, 2, 27, 8, 0, 0, 0, time.UTC),
		Status: StatusIn, Mode: ModeManual,
	})
	require.NoError(t, err)

	_, err = f.svc.Mark(ctx, RoleSchool, "sch-1", "stu-b", StatusIn, ModeManual, EntityStudent)
	require.NoError(t, err)

	logs, err := f.svc.MonthlyLogs(ctx, "sch-1")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "stu-b", logs[0].EntityID)
}
