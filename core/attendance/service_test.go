package attendance_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/rollcall/core"
	"github.com/trezcool/rollcall/core/attendance"
	"github.com/trezcool/rollcall/core/recognition"
	"github.com/trezcool/rollcall/core/roster"
	dummydb "github.com/trezcool/rollcall/storage/database/dummy"
	testutil "github.com/trezcool/rollcall/tests"
)

const exampleOutput = "face_1: 101-Alice (Similarity: 0.91)\nface_2: unknown\nface_3: 102-Bob (Similarity: 0.40)"

type mailer struct {
	sent []*core.EmailMessage
}

func (m *mailer) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		_ = msg.Render()
		m.sent = append(m.sent, msg)
	}
}

type classifier struct {
	out string
	err error
}

func (c classifier) Recognize(_ context.Context, image io.Reader, _ string) (string, error) {
	_, _ = io.Copy(io.Discard, image)
	return c.out, c.err
}

type fixture struct {
	db      *dummydb.DB
	svc     *attendance.Service
	logger  *testutil.Logger
	mailer  *mailer
	course  roster.Course
	entries []roster.Entry
}

func setup(t *testing.T, clf recognition.Classifier) fixture {
	db, _ := dummydb.Open()
	rRepo := dummydb.NewRosterRepository(db)
	course, entries := testutil.CreateCourse(t, rRepo, "CS101", "101", "Alice", "102", "Bob", "103", "Carol")

	logger := new(testutil.Logger)
	m := new(mailer)
	validate := testutil.NewValidator()
	svc := attendance.NewService(
		dummydb.NewAttendanceRepository(db),
		roster.NewService(rRepo, validate),
		nil,
		clf,
		m,
		logger,
		validate,
	)
	svc.NowFunc = func() time.Time { return time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC) }
	return fixture{db: db, svc: svc, logger: logger, mailer: m, course: course, entries: entries}
}

func (f fixture) studentID(roll string) string {
	for _, e := range f.entries {
		if e.RollNumber == roll {
			return e.StudentID
		}
	}
	return ""
}

func TestService_TakeAttendance(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()

	res, err := f.svc.TakeAttendance(ctx, attendance.TakeRequest{CourseID: f.course.ID, RawText: exampleOutput})
	require.NoError(t, err)

	assert.Equal(t, "2025-06-01", res.Date)
	assert.Len(t, res.Records, 3)
	assert.Len(t, res.Result.Succeeded, 3)
	assert.Empty(t, res.Result.Failed)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, recognition.SkipUnknown, res.Skipped[0].Reason)

	sum, err := f.svc.StudentSummary(ctx, f.course.ID, f.studentID("101"), time.Time{})
	require.NoError(t, err)
	assert.Equal(t, "100.00%", sum.Formatted())

	sum, err = f.svc.StudentSummary(ctx, f.course.ID, f.studentID("103"), time.Time{})
	require.NoError(t, err)
	assert.Equal(t, "0.00%", sum.Formatted())

	assert.Equal(t, 1, f.logger.Levels()["debug"]) // the unknown line
}

func TestService_TakeAttendance_rerunConverges(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()
	req := attendance.TakeRequest{CourseID: f.course.ID, Date: "2025-05-30", RawText: exampleOutput}

	_, err := f.svc.TakeAttendance(ctx, req)
	require.NoError(t, err)
	req.RawText = "face_1: 103-Carol"
	_, err = f.svc.TakeAttendance(ctx, req)
	require.NoError(t, err)

	views, err := f.svc.ListByDate(ctx, f.course.ID, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, views, 3)
	got := make(map[string]attendance.Status)
	for _, v := range views {
		got[v.RollNumber] = v.Status
	}
	assert.Equal(t, map[string]attendance.Status{
		"101": attendance.StatusAbsent,
		"102": attendance.StatusAbsent,
		"103": attendance.StatusPresent,
	}, got)
}

func TestService_TakeAttendance_diagnostics(t *testing.T) {
	f := setup(t, nil)

	res, err := f.svc.TakeAttendance(context.Background(), attendance.TakeRequest{
		CourseID: f.course.ID,
		RawText:  "1: 999-Mallory\n2: 102-Zoltan\n3: 101-Alice\n4: 101-Alice",
	})
	require.NoError(t, err)

	assert.Len(t, res.Unmatched, 1)
	assert.Len(t, res.NameMismatches, 1)
	assert.Len(t, res.Duplicates, 1)
	assert.Len(t, res.Records, 3)
	assert.Equal(t, 2, f.logger.Levels()["warn"])
}

func TestService_TakeAttendance_logsRequester(t *testing.T) {
	f := setup(t, nil)

	_, err := f.svc.TakeAttendance(context.Background(), attendance.TakeRequest{
		CourseID:    f.course.ID,
		RawText:     "1: 999-Mallory\n2: 101-Alice",
		NotifyEmail: "Prof@Example.com",
	})
	require.NoError(t, err)

	prof := core.Person{ID: "prof@example.com", Email: "prof@example.com"}
	var warned bool
	for _, e := range f.logger.Entries {
		if e.Level == "warn" {
			warned = true
			assert.Contains(t, e.Args, prof, e.Msg)
		}
	}
	assert.True(t, warned)

	f.logger.Entries = nil
	_, err = f.svc.TakeAttendance(context.Background(), attendance.TakeRequest{CourseID: f.course.ID, RawText: "1: 999-Mallory"})
	require.NoError(t, err)
	for _, e := range f.logger.Entries {
		assert.Empty(t, e.Args, e.Msg)
	}
}

func TestService_TakeAttendance_partialFailure(t *testing.T) {
	f := setup(t, nil)
	f.db.DeleteStudent(f.studentID("103"))

	// the roster no longer lists Carol, so fake a stale batch
	res, err := f.svc.UpsertBatch(context.Background(), []attendance.Record{
		{StudentID: f.studentID("101"), CourseID: f.course.ID, Date: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), Status: attendance.StatusPresent},
		{StudentID: f.studentID("103"), CourseID: f.course.ID, Date: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), Status: attendance.StatusPresent},
		{StudentID: f.studentID("102"), CourseID: f.course.ID, Date: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), Status: "LATE"},
	})
	require.NoError(t, err)

	assert.Len(t, res.Succeeded, 1)
	require.Len(t, res.Failed, 2)
	assert.ErrorIs(t, res.Failed[0].Err, attendance.ErrReferenceViolation)
	assert.ErrorIs(t, res.Failed[1].Err, attendance.ErrInvalidStatus)
	assert.Equal(t, "1 of 3 students recorded, 2 failed", res.String())
	assert.Equal(t, 1, f.logger.Levels()["warn"])
}

func TestService_TakeAttendance_errors(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()

	tests := []struct {
		name    string
		req     attendance.TakeRequest
		wantErr error
	}{
		{name: "unknown course", req: attendance.TakeRequest{CourseID: "nope"}, wantErr: roster.ErrCourseNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.TakeAttendance(ctx, tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	t.Run("invalid date", func(t *testing.T) {
		_, err := f.svc.TakeAttendance(ctx, attendance.TakeRequest{CourseID: f.course.ID, Date: "01/06/2025"})
		assert.Error(t, err)
	})
	t.Run("missing course", func(t *testing.T) {
		_, err := f.svc.TakeAttendance(ctx, attendance.TakeRequest{})
		assert.Error(t, err)
	})
}

func TestService_TakeAttendance_notify(t *testing.T) {
	f := setup(t, nil)

	_, err := f.svc.TakeAttendance(context.Background(), attendance.TakeRequest{
		CourseID:    f.course.ID,
		RawText:     exampleOutput,
		NotifyEmail: "Prof@Example.com",
	})
	require.NoError(t, err)

	require.Len(t, f.mailer.sent, 1)
	msg := f.mailer.sent[0]
	assert.Equal(t, "prof@example.com", msg.To[0].Address)
	assert.Contains(t, msg.TextContent, "3 of 3 students recorded, 0 failed")
	assert.Contains(t, msg.TextContent, "Present: 2")
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "text/csv", msg.Attachments[0].ContentType)
}

func TestService_RecognizeAndTake(t *testing.T) {
	t.Run("classifier output is reconciled", func(t *testing.T) {
		f := setup(t, classifier{out: exampleOutput})
		res, err := f.svc.RecognizeAndTake(context.Background(), attendance.TakeRequest{CourseID: f.course.ID}, strings.NewReader("img"), "class.jpg")
		require.NoError(t, err)
		assert.Len(t, res.Matched, 2)
	})
	t.Run("classifier failure", func(t *testing.T) {
		boom := errors.New("boom")
		f := setup(t, classifier{err: boom})
		_, err := f.svc.RecognizeAndTake(context.Background(), attendance.TakeRequest{CourseID: f.course.ID}, strings.NewReader("img"), "class.jpg")
		assert.ErrorIs(t, err, boom)
	})
	t.Run("no classifier", func(t *testing.T) {
		f := setup(t, nil)
		_, err := f.svc.RecognizeAndTake(context.Background(), attendance.TakeRequest{CourseID: f.course.ID}, strings.NewReader("img"), "class.jpg")
		assert.ErrorIs(t, err, attendance.ErrNoClassifier)
	})
}

func TestService_UpdateStatus(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()
	_, err := f.svc.TakeAttendance(ctx, attendance.TakeRequest{CourseID: f.course.ID, Date: "2025-05-30", RawText: exampleOutput})
	require.NoError(t, err)

	tests := []struct {
		name      string
		ur        attendance.UpdateRecord
		wantErr   error
		wantValid bool
	}{
		{
			name: "correct carol",
			ur:   attendance.UpdateRecord{StudentID: f.studentID("103"), CourseID: f.course.ID, Date: "2025-05-30", Status: "present"},
		},
		{
			name:    "no such record",
			ur:      attendance.UpdateRecord{StudentID: f.studentID("103"), CourseID: f.course.ID, Date: "2025-05-29", Status: "PRESENT"},
			wantErr: attendance.ErrNotFound,
		},
		{name: "missing status", ur: attendance.UpdateRecord{StudentID: "s", CourseID: "c", Date: "2025-05-30"}, wantValid: true},
		{name: "bad status", ur: attendance.UpdateRecord{StudentID: "s", CourseID: "c", Date: "2025-05-30", Status: "LATE"}, wantValid: true},
		{name: "bad date", ur: attendance.UpdateRecord{StudentID: "s", CourseID: "c", Date: "yesterday", Status: "ABSENT"}, wantValid: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := f.svc.UpdateStatus(ctx, tt.ur)
			switch {
			case tt.wantValid:
				assert.Error(t, err)
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			default:
				require.NoError(t, err)
				assert.Equal(t, attendance.StatusPresent, rec.Status)
			}
		})
	}
}

func TestService_ListByDate(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()
	for date, out := range map[string]string{
		"2025-05-28": "1: 101-Alice",
		"2025-05-29": "1: 102-Bob",
		"2025-05-30": "1: 101-Alice\n2: 102-Bob",
	} {
		_, err := f.svc.TakeAttendance(ctx, attendance.TakeRequest{CourseID: f.course.ID, Date: date, RawText: out})
		require.NoError(t, err)
	}

	from, _ := attendance.ParseDate("2025-05-29")
	to, _ := attendance.ParseDate("2025-05-31")
	views, err := f.svc.ListByDate(ctx, f.course.ID, from, to)
	require.NoError(t, err)
	require.Len(t, views, 6)

	pct := make(map[string]string)
	for _, v := range views {
		pct[attendance.FormatDate(v.Date)+"/"+v.RollNumber] = v.Summary.Formatted()
	}
	assert.Equal(t, map[string]string{
		"2025-05-29/101": "50.00%",
		"2025-05-29/102": "50.00%",
		"2025-05-29/103": "0.00%",
		"2025-05-30/101": "66.67%",
		"2025-05-30/102": "66.67%",
		"2025-05-30/103": "0.00%",
	}, pct)
}

func TestService_History(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()
	_, err := f.svc.TakeAttendance(ctx, attendance.TakeRequest{CourseID: f.course.ID, Date: "2025-05-30", RawText: "1: 101-Alice"})
	require.NoError(t, err)

	// a late enrollment has no record yet
	rRepo := dummydb.NewRosterRepository(f.db)
	std, err := rRepo.SaveStudent(ctx, roster.Student{RollNumber: "104", Name: "Dave"})
	require.NoError(t, err)
	require.NoError(t, rRepo.Enroll(ctx, f.course.ID, std.ID))

	views, err := f.svc.History(ctx, f.course.ID, time.Time{})
	require.NoError(t, err)
	require.Len(t, views, 4)

	got := make(map[string]string)
	for _, v := range views {
		got[v.RollNumber] = v.Formatted()
		// grouped and per-student paths agree
		sum, err := f.svc.StudentSummary(ctx, f.course.ID, v.StudentID, time.Time{})
		require.NoError(t, err)
		assert.Equal(t, sum, v.Summary)
	}
	assert.Equal(t, map[string]string{"101": "100.00%", "102": "0.00%", "103": "0.00%", "104": "0.00%"}, got)

	_, err = f.svc.History(ctx, "nope", time.Time{})
	assert.ErrorIs(t, err, roster.ErrCourseNotFound)
}

func TestService_BulkLoad(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()
	date := time.Date(2025, 5, 30, 0, 0, 0, 0, time.UTC)
	recs := []attendance.Record{
		{StudentID: f.studentID("101"), CourseID: f.course.ID, Date: date, Status: attendance.StatusPresent},
		{StudentID: f.studentID("102"), CourseID: f.course.ID, Date: date, Status: attendance.StatusAbsent},
	}

	res, err := f.svc.BulkLoad(ctx, recs)
	require.NoError(t, err)
	assert.Len(t, res.Succeeded, 2)

	recs[0].Status = attendance.StatusAbsent
	res, err = f.svc.BulkLoad(ctx, recs)
	require.NoError(t, err)
	assert.Empty(t, res.Succeeded)
	assert.Len(t, res.Skipped, 2)

	sum, err := f.svc.StudentSummary(ctx, f.course.ID, f.studentID("101"), date)
	require.NoError(t, err)
	assert.Equal(t, "100.00%", sum.Formatted())
}
