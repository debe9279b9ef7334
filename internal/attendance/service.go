package attendance

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/demartbuy-afk/notifyedu/internal/directory"
)

// Notifier receives a best-effort change notification after every successful
// student append. Failures are the notifier's problem; they never roll back
// or fail the committed log.
type Notifier interface {
	StudentMarked(ctx context.Context, log Log)
}

// Service is the validation gate in front of the log store. Every mutation
// of attendance data goes through it.
type Service struct {
	logs     LogStore
	dir      directory.Directory
	notifier Notifier
	now      func() time.Time

	// Striped per-entity locks serialize read-validate-append on one node.
	// Concurrent writers on separate nodes keep the documented race window.
	locks [64]sync.Mutex
}

// NewService creates a service. notifier may be nil.
func NewService(logs LogStore, dir directory.Directory, notifier Notifier) *Service {
	return &Service{logs: logs, dir: dir, notifier: notifier, now: time.Now}
}

func (s *Service) lockFor(entityID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(entityID))
	return &s.locks[h.Sum32()%uint32(len(s.locks))]
}

func kindOf(entityType EntityType) directory.Kind {
	if entityType == EntityTeacher {
		return directory.KindTeacher
	}
	return directory.KindStudent
}

// Mark validates and records one attendance transition. Only School and
// AcademicWork callers may mark by id, and AcademicWork may not mark
// teachers; both checks run before any state evaluation.
func (s *Service) Mark(ctx context.Context, role Role, schoolID, entityID string, status Status, mode Mode, entityType EntityType) (Log, error) {
	if role != RoleSchool && role != RoleAcademicWork {
		return Log{}, &AuthorizationError{Msg: "only school and academic work staff may mark attendance"}
	}
	if role == RoleAcademicWork && entityType == EntityTeacher {
		return Log{}, &AuthorizationError{Msg: "you do not have permission to mark teacher attendance"}
	}

	entity, err := s.dir.Resolve(ctx, kindOf(entityType), entityID)
	if err != nil || entity.SchoolID != schoolID {
		if err != nil && !errors.Is(err, directory.ErrNotFound) {
			return Log{}, err
		}
		return Log{}, fmt.Errorf("%s %s: %w in this school", entityType, entityID, ErrNotFound)
	}

	mu := s.lockFor(entityID)
	mu.Lock()
	defer mu.Unlock()

	now := s.now().UTC()
	todays, err := s.logs.LogsForEntityOnDay(ctx, entityID, DayOf(now))
	if err != nil {
		return Log{}, err
	}

	dup, err := Decide(todays, status, entity.Name)
	if err != nil {
		invalidTransitionsTotal.Inc()
		return Log{}, err
	}
	if dup != nil {
		duplicateScansTotal.Inc()
		return *dup, nil
	}

	stored, err := s.logs.Append(ctx, Log{
		EntityID:   entityID,
		EntityName: entity.Name,
		EntityType: entityType,
		SchoolID:   schoolID,
		Timestamp:  now,
		Status:     status,
		Mode:       mode,
	})
	if err != nil {
		return Log{}, err
	}
	marksTotal.WithLabelValues(string(status), string(mode)).Inc()

	if s.notifier != nil && entityType == EntityStudent {
		s.notifier.StudentMarked(ctx, stored)
	}
	return stored, nil
}

// SweepAbsent marks every student in the school without an IN or OUT log
// today as ABSENT. Students with any log at all today are skipped, which
// makes re-runs no-ops for already-swept students and leaves bus-only
// sequences alone. Returns the number of students marked.
func (s *Service) SweepAbsent(ctx context.Context, role Role, schoolID string) (int, error) {
	if role != RoleSchool && role != RoleAcademicWork {
		return 0, &AuthorizationError{Msg: "only school and academic work staff may run the absence sweep"}
	}
	sweepRunsTotal.Inc()

	now := s.now().UTC()
	day := DayOf(now)

	students, err := s.dir.ListBySchool(ctx, schoolID, directory.KindStudent)
	if err != nil {
		return 0, err
	}

	marked := 0
	for _, st := range students {
		stored, swept, err := s.sweepOne(ctx, schoolID, st.ID, st.Name, day, now)
		if err != nil {
			return marked, err
		}
		if !swept {
			continue
		}
		marked++
		marksTotal.WithLabelValues(string(StatusAbsent), string(ModeSystem)).Inc()
		sweptAbsentTotal.Inc()
		if s.notifier != nil {
			s.notifier.StudentMarked(ctx, stored)
		}
	}
	return marked, nil
}

// sweepOne checks one student and appends ABSENT if the day is still empty.
// It holds the same per-entity lock as Mark so a scan landing mid-sweep
// cannot slip between the read and the append.
func (s *Service) sweepOne(ctx context.Context, schoolID, entityID, entityName, day string, now time.Time) (Log, bool, error) {
	mu := s.lockFor(entityID)
	mu.Lock()
	defer mu.Unlock()

	todays, err := s.logs.LogsForEntityOnDay(ctx, entityID, day)
	if err != nil {
		return Log{}, false, err
	}
	if len(todays) > 0 {
		return Log{}, false, nil
	}
	stored, err := s.logs.Append(ctx, Log{
		EntityID:   entityID,
		EntityName: entityName,
		EntityType: EntityStudent,
		SchoolID:   schoolID,
		Timestamp:  now,
		Status:     StatusAbsent,
		Mode:       ModeSystem,
	})
	if err != nil {
		return Log{}, false, err
	}
	return stored, true, nil
}

// TodaysLogs returns a school's logs for today, most recent first.
func (s *Service) TodaysLogs(ctx context.Context, schoolID string) ([]Log, error) {
	return s.logs.LogsForSchoolOnDay(ctx, schoolID, DayOf(s.now()))
}

// History returns an entity's full attendance history, most recent first.
func (s *Service) History(ctx context.Context, entityID string, entityType EntityType) ([]Log, error) {
	return s.logs.HistoryForEntity(ctx, entityID, entityType)
}

// HistoryForDate filters an entity's history down to one UTC day.
func (s *Service) HistoryForDate(ctx context.Context, entityID string, entityType EntityType, day string) ([]Log, error) {
	return s.logs.LogsForEntityOnDay(ctx, entityID, day)
}

// MonthlyLogs returns a school's logs since the first of the current month.
func (s *Service) MonthlyLogs(ctx context.Context, schoolID string) ([]Log, error) {
	now := s.now().UTC()
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return s.logs.LogsForSchoolSince(ctx, schoolID, first)
}

// DeleteEntity removes an entity record and cascades its logs.
func (s *Service) DeleteEntity(ctx context.Context, entityID string, entityType EntityType) error {
	if err := s.dir.Delete(ctx, kindOf(entityType), entityID); err != nil {
		return err
	}
	return s.logs.DeleteAllForEntity(ctx, entityID)
}

// StudentAnalytics summarizes a student's attendance for their dashboard.
type StudentAnalytics struct {
	PresentCount int        `json:"present_count"`
	AbsentCount  int        `json:"absent_count"`
	LastEntry    *time.Time `json:"last_entry"`
	LastExit     *time.Time `json:"last_exit"`
	RecentLogs   []Log      `json:"recent_logs"`
}

var presenceStatuses = map[Status]bool{
	StatusIn:     true,
	StatusOut:    true,
	StatusBusIn:  true,
	StatusBusOut: true,
}

// Analytics computes per-day present/absent counts and today's last entry
// and exit. A presence log supersedes an ABSENT log on the same day, so a
// late check-in after the sweep counts the day as present.
func (s *Service) Analytics(ctx context.Context, studentID string) (StudentAnalytics, error) {
	logs, err := s.logs.HistoryForEntity(ctx, studentID, EntityStudent)
	if err != nil {
		return StudentAnalytics{}, err
	}

	presentDays := map[string]bool{}
	absentDays := map[string]bool{}
	for _, l := range logs {
		day := l.Day()
		if presenceStatuses[l.Status] {
			presentDays[day] = true
			delete(absentDays, day)
		} else if l.Status == StatusAbsent && !presentDays[day] {
			absentDays[day] = true
		}
	}

	today := DayOf(s.now())
	var lastEntry, lastExit *time.Time
	for _, l := range logs {
		if l.Day() != today {
			continue
		}
		if l.Status == StatusIn && (lastEntry == nil || l.Timestamp.After(*lastEntry)) {
			t := l.Timestamp
			lastEntry = &t
		}
		if l.Status == StatusOut && (lastExit == nil || l.Timestamp.After(*lastExit)) {
			t := l.Timestamp
			lastExit = &t
		}
	}

	recent := logs
	if len(recent) > 5 {
		recent = recent[:5]
	}
	return StudentAnalytics{
		PresentCount: len(presentDays),
		AbsentCount:  len(absentDays),
		LastEntry:    lastEntry,
		LastExit:     lastExit,
		RecentLogs:   recent,
	}, nil
}
