// Package repotest holds the behaviour every attendance and roster repository must share.
package repotest

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/rollcall/core/attendance"
	"github.com/trezcool/rollcall/core/roster"
	"github.com/trezcool/rollcall/storage/database"
)

// Factory returns repositories over an empty database.
type Factory func(t *testing.T) (attendance.Repository, roster.Repository)

type fixture struct {
	att      attendance.Repository
	ros      roster.Repository
	course   roster.Course
	students []roster.Student
}

func setup(t *testing.T, newRepos Factory) fixture {
	att, ros := newRepos(t)
	ctx := context.Background()

	course, err := ros.SaveCourse(ctx, roster.Course{Code: "CS101", Name: "Intro", CreatedAt: time.Now().UTC()})
	require.NoError(t, err)

	f := fixture{att: att, ros: ros, course: course}
	for _, roll := range []string{"101", "102"} {
		std, err := ros.SaveStudent(ctx, roster.Student{RollNumber: roll, Name: "S" + roll, CreatedAt: time.Now().UTC()})
		require.NoError(t, err)
		require.NoError(t, ros.Enroll(ctx, course.ID, std.ID))
		f.students = append(f.students, std)
	}
	return f
}

func (f fixture) record(i int, date time.Time, status attendance.Status) attendance.Record {
	now := time.Now().UTC()
	return attendance.Record{
		StudentID: f.students[i].ID,
		CourseID:  f.course.ID,
		Date:      date,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func studentIDs(recs []attendance.Record) []string {
	ids := make([]string, 0, len(recs))
	for _, rec := range recs {
		ids = append(ids, rec.StudentID)
	}
	return ids
}

func (f fixture) studentIDs() []string {
	ids := make([]string, 0, len(f.students))
	for _, std := range f.students {
		ids = append(ids, std.ID)
	}
	return ids
}

// Run runs the repository behaviour tests against the repositories built by newRepos.
func Run(t *testing.T, newRepos Factory) {
	day := time.Date(2025, 5, 30, 0, 0, 0, 0, time.UTC)

	t.Run("upsert is idempotent and latest wins", func(t *testing.T) {
		f := setup(t, newRepos)
		ctx := context.Background()
		batch := []attendance.Record{f.record(0, day, attendance.StatusPresent), f.record(1, day, attendance.StatusAbsent)}

		first, err := f.att.UpsertMany(ctx, batch)
		require.NoError(t, err)
		require.Len(t, first.Succeeded, 2)
		assert.Empty(t, first.Failed)

		second, err := f.att.UpsertMany(ctx, batch)
		require.NoError(t, err)
		require.Len(t, second.Succeeded, 2)
		assert.Equal(t, first.Succeeded[0].ID, second.Succeeded[0].ID)

		batch[1].Status = attendance.StatusPresent
		_, err = f.att.UpsertMany(ctx, batch)
		require.NoError(t, err)

		stored, err := f.att.QueryRecords(ctx, attendance.QueryFilter{CourseID: f.course.ID})
		require.NoError(t, err)
		require.Len(t, stored, 2)
		assert.ElementsMatch(t, f.studentIDs(), studentIDs(stored))
		for _, rec := range stored {
			assert.Equal(t, attendance.StatusPresent, rec.Status)
			assert.Equal(t, day, rec.Date)
		}
	})

	t.Run("batch keeps one row per student", func(t *testing.T) {
		f := setup(t, newRepos)
		ctx := context.Background()

		res, err := f.att.UpsertMany(ctx, []attendance.Record{f.record(0, day, attendance.StatusPresent), f.record(1, day, attendance.StatusAbsent)})
		require.NoError(t, err)
		require.Len(t, res.Succeeded, 2)
		res, err = f.att.InsertMany(ctx, []attendance.Record{
			f.record(0, day.AddDate(0, 0, 1), attendance.StatusAbsent),
			f.record(1, day.AddDate(0, 0, 1), attendance.StatusPresent),
		}, true)
		require.NoError(t, err)
		require.Len(t, res.Succeeded, 2)

		for _, d := range []time.Time{day, day.AddDate(0, 0, 1)} {
			from, to := attendance.DayRange(d)
			stored, err := f.att.QueryRecords(ctx, attendance.QueryFilter{CourseID: f.course.ID, From: from, To: to})
			require.NoError(t, err)
			require.Len(t, stored, 2)
			assert.ElementsMatch(t, f.studentIDs(), studentIDs(stored))

			byStudent := map[string]attendance.Status{}
			for _, rec := range stored {
				byStudent[rec.StudentID] = rec.Status
			}
			if d.Equal(day) {
				assert.Equal(t, attendance.StatusPresent, byStudent[f.students[0].ID])
				assert.Equal(t, attendance.StatusAbsent, byStudent[f.students[1].ID])
			} else {
				assert.Equal(t, attendance.StatusAbsent, byStudent[f.students[0].ID])
				assert.Equal(t, attendance.StatusPresent, byStudent[f.students[1].ID])
			}
		}
	})

	t.Run("upsert reports partial failures", func(t *testing.T) {
		f := setup(t, newRepos)
		ghost := f.record(0, day, attendance.StatusPresent)
		ghost.StudentID = uuid.New().String()

		res, err := f.att.UpsertMany(context.Background(), []attendance.Record{
			f.record(0, day, attendance.StatusPresent),
			ghost,
			f.record(1, day, attendance.StatusAbsent),
		})
		require.NoError(t, err)
		assert.Len(t, res.Succeeded, 2)
		require.Len(t, res.Failed, 1)
		assert.Equal(t, ghost.StudentID, res.Failed[0].Record.StudentID)
		assert.ErrorIs(t, res.Failed[0].Err, attendance.ErrReferenceViolation)
	})

	t.Run("insert skips or rejects duplicates", func(t *testing.T) {
		f := setup(t, newRepos)
		ctx := context.Background()

		res, err := f.att.InsertMany(ctx, []attendance.Record{f.record(0, day, attendance.StatusPresent)}, true)
		require.NoError(t, err)
		require.Len(t, res.Succeeded, 1)

		dup := f.record(0, day, attendance.StatusAbsent)
		res, err = f.att.InsertMany(ctx, []attendance.Record{dup, f.record(1, day, attendance.StatusAbsent)}, true)
		require.NoError(t, err)
		assert.Len(t, res.Succeeded, 1)
		assert.Len(t, res.Skipped, 1)
		assert.Empty(t, res.Failed)

		res, err = f.att.InsertMany(ctx, []attendance.Record{dup}, false)
		require.NoError(t, err)
		assert.Empty(t, res.Succeeded)
		require.Len(t, res.Failed, 1)
		assert.ErrorIs(t, res.Failed[0].Err, attendance.ErrPersistenceConflict)

		stored, err := f.att.QueryRecords(ctx, attendance.QueryFilter{StudentID: f.students[0].ID})
		require.NoError(t, err)
		require.Len(t, stored, 1)
		assert.Equal(t, attendance.StatusPresent, stored[0].Status)
	})

	t.Run("update one", func(t *testing.T) {
		f := setup(t, newRepos)
		ctx := context.Background()

		_, err := f.att.UpdateOne(ctx, f.students[0].ID, f.course.ID, day, attendance.StatusPresent)
		assert.ErrorIs(t, err, attendance.ErrNotFound)

		_, err = f.att.UpsertMany(ctx, []attendance.Record{f.record(0, day, attendance.StatusAbsent)})
		require.NoError(t, err)

		rec, err := f.att.UpdateOne(ctx, f.students[0].ID, f.course.ID, day, attendance.StatusPresent)
		require.NoError(t, err)
		assert.Equal(t, attendance.StatusPresent, rec.Status)
		assert.Equal(t, day, rec.Date)

		_, err = f.att.UpdateOne(ctx, f.students[0].ID, f.course.ID, day.AddDate(0, 0, 1), attendance.StatusPresent)
		assert.ErrorIs(t, err, attendance.ErrNotFound)
	})

	t.Run("range queries use utc day boundaries", func(t *testing.T) {
		f := setup(t, newRepos)
		ctx := context.Background()

		east := time.FixedZone("NZST", 12*60*60)
		west := time.FixedZone("HST", -10*60*60)
		_, err := f.att.UpsertMany(ctx, []attendance.Record{
			f.record(0, time.Date(2025, 5, 30, 23, 30, 0, 0, east), attendance.StatusPresent),
			f.record(1, time.Date(2025, 5, 30, 0, 15, 0, 0, west), attendance.StatusPresent),
			f.record(0, time.Date(2025, 5, 31, 0, 0, 0, 0, time.UTC), attendance.StatusAbsent),
		})
		require.NoError(t, err)

		from, to := attendance.DayRange(day)
		recs, err := f.att.QueryRecords(ctx, attendance.QueryFilter{CourseID: f.course.ID, From: from, To: to})
		require.NoError(t, err)
		require.Len(t, recs, 2)
		assert.ElementsMatch(t, f.studentIDs(), studentIDs(recs))
		for _, rec := range recs {
			assert.Equal(t, "2025-05-30", attendance.FormatDate(rec.Date))
		}

		recs, err = f.att.QueryRecords(ctx, attendance.QueryFilter{CourseID: f.course.ID, From: to})
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, f.students[0].ID, recs[0].StudentID)
		assert.Equal(t, attendance.StatusAbsent, recs[0].Status)
	})

	t.Run("roster", func(t *testing.T) {
		f := setup(t, newRepos)
		ctx := context.Background()

		same, err := f.ros.SaveCourse(ctx, roster.Course{Code: "CS101", Name: "Renamed", CreatedAt: time.Now().UTC()})
		require.NoError(t, err)
		assert.Equal(t, f.course.ID, same.ID)
		assert.Equal(t, "Renamed", same.Name)

		std, err := f.ros.SaveStudent(ctx, roster.Student{RollNumber: "9", Name: "Nine", Department: "EE", Semester: 2, CreatedAt: time.Now().UTC()})
		require.NoError(t, err)
		require.NoError(t, f.ros.Enroll(ctx, f.course.ID, std.ID))
		require.NoError(t, f.ros.Enroll(ctx, f.course.ID, std.ID)) // idempotent

		entries, err := f.ros.GetRoster(ctx, f.course.ID)
		require.NoError(t, err)
		require.Len(t, entries, 3)
		assert.Equal(t, []string{"9", "101", "102"}, []string{entries[0].RollNumber, entries[1].RollNumber, entries[2].RollNumber})
		assert.Equal(t, roster.Entry{StudentID: std.ID, RollNumber: "9", DisplayName: "Nine", Department: "EE", Semester: 2}, entries[0])

		_, err = f.ros.GetCourse(ctx, uuid.New().String())
		assert.ErrorIs(t, err, roster.ErrCourseNotFound)
		_, err = f.ros.GetCourseByCode(ctx, "NOPE")
		assert.ErrorIs(t, err, roster.ErrCourseNotFound)
		assert.ErrorIs(t, f.ros.Enroll(ctx, uuid.New().String(), std.ID), roster.ErrCourseNotFound)
		assert.ErrorIs(t, f.ros.Enroll(ctx, f.course.ID, uuid.New().String()), roster.ErrStudentNotFound)
	})
}

// OpenPostgres connects to TEST_DATABASE_URL, migrates it and empties every table.
// The test is skipped when the variable is not set.
func OpenPostgres(t *testing.T) *sql.DB {
	t.Helper()
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	db, err := database.OpenURL(dbURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.Migrate(db))
	_, err = db.Exec("TRUNCATE attendance, enrollment, student, course")
	require.NoError(t, err)
	return db
}
