package attendance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/demartbuy-afk/notifyedu/internal/directory"
)

// qrPayload is the wire contract printed on ID cards: a JSON object with a
// student_id or teacher_id plus the issuing school_id.
type qrPayload struct {
	StudentID string `json:"student_id"`
	TeacherID string `json:"teacher_id"`
	SchoolID  string `json:"school_id"`
}

func parseQR(raw string) (qrPayload, EntityType, error) {
	var p qrPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return qrPayload{}, "", &MalformedInputError{Msg: "invalid QR code format"}
	}
	switch {
	case p.StudentID != "":
		return p, EntityStudent, nil
	case p.TeacherID != "":
		return p, EntityTeacher, nil
	default:
		return qrPayload{}, "", &MalformedInputError{Msg: "invalid QR code content"}
	}
}

func (p qrPayload) entityID(entityType EntityType) string {
	if entityType == EntityTeacher {
		return p.TeacherID
	}
	return p.StudentID
}

func (s *Service) lastLogToday(ctx context.Context, entityID string) (*Log, error) {
	todays, err := s.logs.LogsForEntityOnDay(ctx, entityID, DayOf(s.now()))
	if err != nil {
		return nil, err
	}
	if len(todays) == 0 {
		return nil, nil
	}
	last := todays[len(todays)-1]
	return &last, nil
}

// MarkByQR resolves a scanned code and records the inferred next transition
// for a school-side scanning station. The inference is re-validated by Mark,
// so it can never produce an illegal sequence. Returns the stored log and
// the entity's name for the scanner UI.
func (s *Service) MarkByQR(ctx context.Context, role Role, schoolID, qrValue string) (Log, string, error) {
	if role != RoleSchool && role != RoleAcademicWork {
		return Log{}, "", &AuthorizationError{Msg: "only school and academic work staff may scan attendance codes"}
	}

	p, entityType, err := parseQR(qrValue)
	if err != nil {
		return Log{}, "", err
	}
	if p.SchoolID != schoolID {
		return Log{}, "", &AuthorizationError{Msg: "this QR code is not for your school"}
	}

	entity, err := s.dir.Resolve(ctx, kindOf(entityType), p.entityID(entityType))
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return Log{}, "", fmt.Errorf("%s from QR code: %w", entityType, ErrNotFound)
		}
		return Log{}, "", err
	}

	last, err := s.lastLogToday(ctx, entity.ID)
	if err != nil {
		return Log{}, "", err
	}

	var next Status
	switch {
	case last == nil:
		next = StatusIn
	case last.Status == StatusBusIn:
		next = StatusIn
	case last.Status == StatusIn:
		next = StatusOut
	case last.Status == StatusOut || last.Status == StatusBusOut:
		return Log{}, "", &InvalidTransitionError{
			Last:      last.Status,
			Requested: StatusOut,
			Msg:       fmt.Sprintf("%s has already left for the day", entity.Name),
		}
	default: // ABSENT
		next = StatusIn
	}

	log, err := s.Mark(ctx, role, schoolID, entity.ID, next, ModeQR, entityType)
	if err != nil {
		return Log{}, "", err
	}
	return log, entity.Name, nil
}

// BusScan records the bus staff's scan of a student code. Bus scans are only
// valid at the very start of the day (boarding) or right after school
// check-out (de-boarding). The bus staff acts with the scope of its assigned
// school, so the delegated Mark runs as the School role.
func (s *Service) BusScan(ctx context.Context, schoolID, qrValue string) (Log, string, error) {
	p, entityType, err := parseQR(qrValue)
	if err != nil {
		return Log{}, "", err
	}
	if entityType != EntityStudent {
		return Log{}, "", &MalformedInputError{Msg: "this QR code is not for a student"}
	}
	if p.SchoolID != schoolID {
		return Log{}, "", &AuthorizationError{Msg: "this student is not from your assigned school"}
	}

	student, err := s.dir.Resolve(ctx, directory.KindStudent, p.StudentID)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return Log{}, "", fmt.Errorf("student from QR code: %w", ErrNotFound)
		}
		return Log{}, "", err
	}

	last, err := s.lastLogToday(ctx, student.ID)
	if err != nil {
		return Log{}, "", err
	}

	var next Status
	switch {
	case last == nil:
		next = StatusBusIn
	case last.Status == StatusOut:
		next = StatusBusOut
	default:
		return Log{}, "", &InvalidTransitionError{
			Last:      last.Status,
			Requested: StatusBusIn,
			Msg:       fmt.Sprintf("invalid action, last status for %s was %s", student.Name, last.Status),
		}
	}

	log, err := s.Mark(ctx, RoleSchool, schoolID, student.ID, next, ModeQR, EntityStudent)
	if err != nil {
		return Log{}, "", err
	}
	return log, student.Name, nil
}

// SelfScan records a student scanning from their own device. The code must
// be either the school-wide location code or the student's personal code.
// The delegated Mark runs as the School role for the student's own school.
func (s *Service) SelfScan(ctx context.Context, studentID, qrValue, locationCode string) (Log, error) {
	student, err := s.dir.Resolve(ctx, directory.KindStudent, studentID)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return Log{}, fmt.Errorf("student: %w", ErrNotFound)
		}
		return Log{}, err
	}

	locationMatch := locationCode != "" && qrValue == locationCode
	personalMatch := false
	if p, entityType, err := parseQR(qrValue); err == nil && entityType == EntityStudent {
		personalMatch = p.StudentID == studentID
	}
	if !locationMatch && !personalMatch {
		return Log{}, &MalformedInputError{Msg: "invalid QR code"}
	}

	last, err := s.lastLogToday(ctx, studentID)
	if err != nil {
		return Log{}, err
	}
	if last != nil && last.Status == StatusOut {
		return Log{}, &InvalidTransitionError{
			Last:      last.Status,
			Requested: StatusOut,
			Msg:       "you have already been marked OUT for the day",
		}
	}

	next := StatusOut
	if last == nil {
		next = StatusIn
	}
	return s.Mark(ctx, RoleSchool, student.SchoolID, studentID, next, ModeQR, EntityStudent)
}
