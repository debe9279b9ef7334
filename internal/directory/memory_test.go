package directory

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQRValue(t *testing.T) {
	var student map[string]string
	require.NoError(t, json.Unmarshal([]byte(QRValue(KindStudent, "s1", "sch")), &student))
	assert.Equal(t, map[string]string{"student_id": "s1", "school_id": "sch"}, student)

	var teacher map[string]string
	require.NoError(t, json.Unmarshal([]byte(QRValue(KindTeacher, "t1", "sch")), &teacher))
	assert.Equal(t, map[string]string{"teacher_id": "t1", "school_id": "sch"}, teacher)
}

func TestMemoryDirectory(t *testing.T) {
	ctx := context.Background()
	d := NewMemory()

	require.NoError(t, d.Upsert(ctx, Entity{ID: "s1", Kind: KindStudent, SchoolID: "sch-1", Name: "Zara"}))
	require.NoError(t, d.Upsert(ctx, Entity{ID: "s2", Kind: KindStudent, SchoolID: "sch-1", Name: "Ali"}))
	require.NoError(t, d.Upsert(ctx, Entity{ID: "s3", Kind: KindStudent, SchoolID: "sch-2", Name: "Omar"}))
	require.NoError(t, d.Upsert(ctx, Entity{ID: "t1", Kind: KindTeacher, SchoolID: "sch-1", Name: "Mrs. Khan"}))

	e, err := d.Resolve(ctx, KindStudent, "s1")
	require.NoError(t, err)
	assert.Equal(t, "Zara", e.Name)
	assert.Equal(t, QRValue(KindStudent, "s1", "sch-1"), e.QRValue, "upsert fills in the canonical payload")

	// Kinds are separate namespaces.
	_, err = d.Resolve(ctx, KindTeacher, "s1")
	require.ErrorIs(t, err, ErrNotFound)

	students, err := d.ListBySchool(ctx, "sch-1", KindStudent)
	require.NoError(t, err)
	require.Len(t, students, 2)
	assert.Equal(t, "Ali", students[0].Name, "listing is name-ordered")

	require.NoError(t, d.Delete(ctx, KindStudent, "s1"))
	_, err = d.Resolve(ctx, KindStudent, "s1")
	require.ErrorIs(t, err, ErrNotFound)
}
