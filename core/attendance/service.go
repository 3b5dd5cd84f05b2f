package attendance

import (
	"context"
	"fmt"
	"io"
	"net/mail"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/rollcall/core"
	"github.com/trezcool/rollcall/core/recognition"
	"github.com/trezcool/rollcall/core/roster"
)

var (
	// errors
	ErrNotFound            = errors.New("attendance record not found")
	ErrPersistenceConflict = errors.New("attendance record conflicts with an existing one")
	ErrReferenceViolation  = errors.New("attendance record references an unknown student or course")
	ErrInvalidStatus       = errors.New("invalid attendance status; expected PRESENT or ABSENT")
	ErrEmptyCourse         = errors.New("course id is required")
	ErrNoClassifier        = errors.New("no face recognition classifier configured")
)

type (
	// Repository is the attendance store. Every date it receives is already a UTC midnight.
	Repository interface {
		// UpsertMany inserts each record or updates the status of the one sharing its
		// (student, course, date) key. A record failing to persist never aborts the others.
		UpsertMany(ctx context.Context, records []Record) (BatchResult, error)
		// InsertMany inserts the records; rows violating the uniqueness key are Skipped when
		// skipDuplicates is set, and Failed with ErrPersistenceConflict otherwise.
		InsertMany(ctx context.Context, records []Record, skipDuplicates bool) (BatchResult, error)
		// UpdateOne changes the status of an existing record or fails with ErrNotFound.
		UpdateOne(ctx context.Context, studentID, courseID string, date time.Time, status Status) (Record, error)
		// QueryRecords applies AND on the available QueryFilter fields, ordered by date then student.
		QueryRecords(ctx context.Context, filter QueryFilter) ([]Record, error)
	}

	Service struct {
		repo       Repository
		roster     *roster.Service
		parser     recognition.Parser
		classifier recognition.Classifier
		mailer     core.EmailService
		log        core.Logger
		validate   *validator.Validate

		NowFunc func() time.Time
	}
)

func NewService(
	repo Repository,
	rosterSvc *roster.Service,
	parser recognition.Parser,
	classifier recognition.Classifier,
	mailer core.EmailService,
	logger core.Logger,
	validate *validator.Validate,
) *Service {
	if parser == nil {
		parser = NewDefaultParser()
	}
	return &Service{
		repo:       repo,
		roster:     rosterSvc,
		parser:     parser,
		classifier: classifier,
		mailer:     mailer,
		log:        logger,
		validate:   validate,
		NowFunc:    time.Now,
	}
}

// NewDefaultParser returns the line parser with the clamp confidence policy.
func NewDefaultParser() recognition.Parser {
	return recognition.NewLineParser(recognition.ConfidenceClamp)
}

func (svc *Service) now() time.Time {
	return svc.NowFunc().UTC()
}

// TakeAttendance reconciles raw classifier output against the course roster and upserts the batch.
// Parsing and matching anomalies are logged; storage failures are reported in TakeResult.Result.
func (svc *Service) TakeAttendance(ctx context.Context, req TakeRequest) (TakeResult, error) {
	if err := req.Validate(svc.validate); err != nil {
		return TakeResult{}, err
	}

	day := NormalizeDate(svc.now())
	if req.Date != "" {
		var err error
		if day, err = ParseDate(req.Date); err != nil {
			return TakeResult{}, core.NewValidationError(err, core.FieldError{Field: "date", Error: err.Error()})
		}
	}

	course, err := svc.roster.GetCourse(ctx, req.CourseID)
	if err != nil {
		return TakeResult{}, err
	}
	entries, err := svc.roster.Get(ctx, course.ID)
	if err != nil {
		return TakeResult{}, err
	}

	var logArgs []interface{}
	if req.NotifyEmail != "" {
		logArgs = append(logArgs, core.Person{ID: req.NotifyEmail, Email: req.NotifyEmail})
	}

	parsed := svc.parser.Parse(req.RawText)
	for _, s := range parsed.Skipped {
		svc.log.Debug(fmt.Sprintf("attendance: skipped classifier line %d (%s): %q", s.Line, s.Reason, s.Text))
	}

	rec, err := Reconcile(course.ID, entries, parsed.Observations, day)
	if err != nil {
		return TakeResult{}, err
	}
	for _, o := range rec.Unmatched {
		svc.log.Warn(fmt.Sprintf("attendance: %s-%s is not enrolled in %s", o.RollNumber, o.DisplayName, course.Code), logArgs...)
	}
	for _, nm := range rec.NameMismatches {
		svc.log.Warn(fmt.Sprintf("attendance: roll %s recognized as %q but enrolled as %q (similarity %.2f)",
			nm.RollNumber, nm.ObservedName, nm.RosterName, nm.Similarity), logArgs...)
	}
	if len(rec.Duplicates) > 0 {
		svc.log.Debug(fmt.Sprintf("attendance: ignored %d duplicate detections", len(rec.Duplicates)))
	}

	batch, err := svc.upsertBatch(ctx, rec.Records, logArgs)
	if err != nil {
		return TakeResult{}, err
	}

	res := TakeResult{
		CourseID:       course.ID,
		Date:           FormatDate(day),
		Skipped:        parsed.Skipped,
		Reconciliation: rec,
		Result:         batch,
	}
	if res.Skipped == nil {
		res.Skipped = make([]recognition.SkippedLine, 0)
	}

	if req.NotifyEmail != "" {
		svc.sendReport(req.NotifyEmail, course, entries, res)
	}
	return res, nil
}

// RecognizeAndTake sends the photo to the classifier, then takes attendance from its output.
func (svc *Service) RecognizeAndTake(ctx context.Context, req TakeRequest, image io.Reader, filename string) (TakeResult, error) {
	if svc.classifier == nil {
		return TakeResult{}, ErrNoClassifier
	}
	if err := req.Validate(svc.validate); err != nil {
		return TakeResult{}, err
	}
	if _, err := svc.roster.GetCourse(ctx, req.CourseID); err != nil {
		return TakeResult{}, err
	}
	raw, err := svc.classifier.Recognize(ctx, image, filename)
	if err != nil {
		return TakeResult{}, errors.Wrap(err, "recognizing faces")
	}
	req.RawText = raw
	return svc.TakeAttendance(ctx, req)
}

// UpsertBatch persists the batch, latest run wins on existing (student, course, date) keys.
func (svc *Service) UpsertBatch(ctx context.Context, records []Record) (BatchResult, error) {
	return svc.upsertBatch(ctx, records, nil)
}

func (svc *Service) upsertBatch(ctx context.Context, records []Record, logArgs []interface{}) (BatchResult, error) {
	valid, invalid := svc.prepare(records)
	res, err := svc.repo.UpsertMany(ctx, valid)
	if err != nil {
		return BatchResult{}, errors.Wrap(err, "upserting attendance")
	}
	res.Failed = append(res.Failed, invalid...)
	svc.logFailures(res, logArgs...)
	return res, nil
}

// BulkLoad inserts historical records, ignoring those already stored.
func (svc *Service) BulkLoad(ctx context.Context, records []Record) (BatchResult, error) {
	valid, invalid := svc.prepare(records)
	res, err := svc.repo.InsertMany(ctx, valid, true /* skipDuplicates */)
	if err != nil {
		return BatchResult{}, errors.Wrap(err, "inserting attendance")
	}
	res.Failed = append(res.Failed, invalid...)
	svc.logFailures(res)
	return res, nil
}

// prepare normalizes dates and timestamps and sets aside records the store would reject anyway.
func (svc *Service) prepare(records []Record) (valid []Record, invalid []FailedRecord) {
	now := svc.now()
	valid = make([]Record, 0, len(records))
	for _, r := range records {
		r.Date = NormalizeDate(r.Date)
		r.CreatedAt, r.UpdatedAt = now, now
		switch {
		case !r.Status.IsValid():
			invalid = append(invalid, FailedRecord{Record: r, Err: ErrInvalidStatus})
		case r.StudentID == "" || r.CourseID == "" || r.Date.IsZero():
			invalid = append(invalid, FailedRecord{Record: r, Err: ErrReferenceViolation})
		default:
			valid = append(valid, r)
		}
	}
	return valid, invalid
}

func (svc *Service) logFailures(res BatchResult, logArgs ...interface{}) {
	for _, f := range res.Failed {
		if errors.Is(f.Err, ErrPersistenceConflict) {
			svc.log.Error(fmt.Sprintf("attendance: unexpected conflict for student %s in %s on %s",
				f.Record.StudentID, f.Record.CourseID, FormatDate(f.Record.Date)), append([]interface{}{f.Err}, logArgs...)...)
		}
	}
	if !res.OK() {
		svc.log.Warn("attendance: partial batch failure: "+res.String(), logArgs...)
	}
}

// UpdateStatus applies a manual correction to an existing record.
func (svc *Service) UpdateStatus(ctx context.Context, ur UpdateRecord) (Record, error) {
	if err := ur.Validate(svc.validate); err != nil {
		return Record{}, err
	}
	date, err := ParseDate(ur.Date)
	if err != nil {
		return Record{}, core.NewValidationError(err, core.FieldError{Field: "date", Error: err.Error()})
	}
	status, err := ParseStatus(ur.Status)
	if err != nil {
		return Record{}, core.NewValidationError(err, core.FieldError{Field: "status", Error: err.Error()})
	}
	return svc.repo.UpdateOne(ctx, ur.StudentID, ur.CourseID, date, status)
}

// ListByDate returns the course records dated within [from, to), each with the student's
// percentage as of that record's date. Zero bounds are unbounded.
func (svc *Service) ListByDate(ctx context.Context, courseID string, from, to time.Time) ([]RecordView, error) {
	entries, err := svc.roster.Get(ctx, courseID)
	if err != nil {
		return nil, err
	}
	history, err := svc.repo.QueryRecords(ctx, QueryFilter{CourseID: courseID, To: to}.Normalize())
	if err != nil {
		return nil, err
	}

	byStudent := make(map[string]roster.Entry, len(entries))
	for _, e := range entries {
		byStudent[e.StudentID] = e
	}

	window := QueryFilter{CourseID: courseID, From: from, To: to}.Normalize()
	views := make([]RecordView, 0, len(history))
	for _, r := range history {
		if !window.Match(r) {
			continue
		}
		e := byStudent[r.StudentID]
		views = append(views, RecordView{
			Record:      r,
			RollNumber:  e.RollNumber,
			DisplayName: e.DisplayName,
			Summary:     ComputePercentage(r.StudentID, r.CourseID, history, r.Date),
		})
	}
	return views, nil
}

// History returns one summary per enrolled student as of asOf (today when zero).
func (svc *Service) History(ctx context.Context, courseID string, asOf time.Time) ([]SummaryView, error) {
	if asOf.IsZero() {
		asOf = svc.now()
	}
	entries, err := svc.roster.Get(ctx, courseID)
	if err != nil {
		return nil, err
	}
	_, to := DayRange(asOf)
	records, err := svc.repo.QueryRecords(ctx, QueryFilter{CourseID: courseID, To: to})
	if err != nil {
		return nil, err
	}

	sums := make(map[string]Summary)
	for _, s := range Summarize(records, asOf) {
		sums[s.StudentID] = s
	}

	views := make([]SummaryView, 0, len(entries))
	for _, e := range entries {
		sum, ok := sums[e.StudentID]
		if !ok {
			sum = ComputePercentage(e.StudentID, courseID, nil, asOf)
		}
		views = append(views, SummaryView{Summary: sum, RollNumber: e.RollNumber, DisplayName: e.DisplayName})
	}
	return views, nil
}

// StudentSummary returns the percentage of one student in a course as of asOf (today when zero).
func (svc *Service) StudentSummary(ctx context.Context, courseID, studentID string, asOf time.Time) (Summary, error) {
	if asOf.IsZero() {
		asOf = svc.now()
	}
	if _, err := svc.roster.GetCourse(ctx, courseID); err != nil {
		return Summary{}, err
	}
	_, to := DayRange(asOf)
	records, err := svc.repo.QueryRecords(ctx, QueryFilter{CourseID: courseID, StudentID: studentID, To: to})
	if err != nil {
		return Summary{}, err
	}
	return ComputePercentage(studentID, courseID, records, asOf), nil
}

func (svc *Service) sendReport(to string, course roster.Course, entries []roster.Entry, res TakeResult) {
	if svc.mailer == nil {
		return
	}
	msg, err := NewReportMessage(mail.Address{Address: to}, course, entries, res)
	if err != nil {
		svc.log.Error("attendance: building report", err)
		return
	}
	svc.mailer.SendMessages(msg)
}
