package dummydb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/rollcall/core/attendance"
	"github.com/trezcool/rollcall/core/roster"
	"github.com/trezcool/rollcall/storage/database/repotest"
)

func TestRepositories(t *testing.T) {
	repotest.Run(t, func(t *testing.T) (attendance.Repository, roster.Repository) {
		db, _ := Open()
		return NewAttendanceRepository(db), NewRosterRepository(db)
	})
}

func TestDeleteStudent(t *testing.T) {
	db, _ := Open()
	ctx := context.Background()
	rRepo := NewRosterRepository(db)
	aRepo := NewAttendanceRepository(db)

	course, err := rRepo.SaveCourse(ctx, roster.Course{Code: "CS101"})
	require.NoError(t, err)
	std, err := rRepo.SaveStudent(ctx, roster.Student{RollNumber: "101", Name: "Alice"})
	require.NoError(t, err)
	require.NoError(t, rRepo.Enroll(ctx, course.ID, std.ID))

	db.DeleteStudent(std.ID)

	entries, err := rRepo.GetRoster(ctx, course.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)

	res, err := aRepo.UpsertMany(ctx, []attendance.Record{
		{StudentID: std.ID, CourseID: course.ID, Date: time.Date(2025, 5, 30, 0, 0, 0, 0, time.UTC), Status: attendance.StatusPresent},
	})
	require.NoError(t, err)
	require.Len(t, res.Failed, 1)
	assert.ErrorIs(t, res.Failed[0].Err, attendance.ErrReferenceViolation)
}
