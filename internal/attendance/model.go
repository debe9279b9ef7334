package attendance

import "time"

// Status is a recorded attendance state.
type Status string

const (
	StatusIn     Status = "IN"
	StatusOut    Status = "OUT"
	StatusAbsent Status = "ABSENT"
	StatusBusIn  Status = "BUS_IN"
	StatusBusOut Status = "BUS_OUT"
)

// Mode records how a log was produced. It never affects validation.
type Mode string

const (
	ModeManual      Mode = "MANUAL"
	ModeQR          Mode = "QR"
	ModeFingerprint Mode = "FINGERPRINT"
	ModeSystem      Mode = "SYSTEM"
)

// EntityType distinguishes the two kinds of tracked entities.
type EntityType string

const (
	EntityStudent EntityType = "student"
	EntityTeacher EntityType = "teacher"
)

// Role is the caller's role as carried in auth claims.
type Role string

const (
	RoleSchool       Role = "school"
	RoleAcademicWork Role = "academic_work"
	RoleGuard        Role = "guard"
	RoleBus          Role = "bus"
	RoleStudent      Role = "student"
	RoleSuperAdmin   Role = "super_admin"
)

// Log is one immutable attendance event. Corrections are made by appending
// new logs, never by editing existing ones.
type Log struct {
	ID         string     `json:"log_id"`
	EntityID   string     `json:"entity_id"`
	EntityName string     `json:"entity_name"`
	EntityType EntityType `json:"entity_type"`
	SchoolID   string     `json:"school_id"`
	Timestamp  time.Time  `json:"timestamp"`
	Status     Status     `json:"status"`
	Mode       Mode       `json:"mode"`

	// Seq totally orders logs even when timestamps collide at the store's
	// resolution. Assigned by the store, never by callers.
	Seq int64 `json:"-"`
}

// Day returns the UTC calendar date used to bucket per-entity sequences.
func (l Log) Day() string {
	return l.Timestamp.UTC().Format(dayLayout)
}

const dayLayout = "2006-01-02"

// DayOf buckets an instant into its UTC calendar date.
func DayOf(t time.Time) string {
	return t.UTC().Format(dayLayout)
}
