package directory

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Kind selects which entity collection a lookup targets.
type Kind string

const (
	KindStudent Kind = "student"
	KindTeacher Kind = "teacher"
)

// ErrNotFound reports a missing entity.
var ErrNotFound = errors.New("entity not found")

// Entity is a tracked person. Students and teachers share the fields the
// attendance core needs; kind-specific fields are optional.
type Entity struct {
	ID       string `json:"id"`
	Kind     Kind   `json:"kind"`
	SchoolID string `json:"school_id"`
	Name     string `json:"name"`
	QRValue  string `json:"qr_value"`

	// Student-only.
	Class       string `json:"class,omitempty"`
	RollNo      string `json:"roll_no,omitempty"`
	ParentPhone string `json:"parent_phone,omitempty"`

	// Teacher-only.
	Subject string `json:"subject,omitempty"`
	Phone   string `json:"phone_number,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Directory is the read-mostly lookup surface the attendance core depends
// on. Entity creation and deletion is an administrative concern; Upsert and
// Delete exist for provisioning and the log cascade, not for the core.
type Directory interface {
	Resolve(ctx context.Context, kind Kind, id string) (Entity, error)
	ListBySchool(ctx context.Context, schoolID string, kind Kind) ([]Entity, error)
	Upsert(ctx context.Context, e Entity) error
	Delete(ctx context.Context, kind Kind, id string) error
}

// QRValue builds the canonical QR payload embedded on ID cards:
// {"student_id": ..., "school_id": ...} or the teacher_id equivalent.
func QRValue(kind Kind, id, schoolID string) string {
	payload := map[string]string{"school_id": schoolID}
	if kind == KindTeacher {
		payload["teacher_id"] = id
	} else {
		payload["student_id"] = id
	}
	b, _ := json.Marshal(payload)
	return string(b)
}
