package attendance

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/rollcall/core"
	"github.com/trezcool/rollcall/core/recognition"
)

type Status string

const (
	StatusPresent Status = "PRESENT"
	StatusAbsent  Status = "ABSENT"
)

var Statuses = []Status{StatusPresent, StatusAbsent}

func (s Status) IsValid() bool {
	return s == StatusPresent || s == StatusAbsent
}

func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", ErrInvalidStatus
	}
	return st, nil
}

// Record is the attendance of one student for one course on one UTC calendar day.
// (StudentID, CourseID, Date) is unique.
type Record struct {
	ID        string    `json:"id,omitempty"`
	StudentID string    `json:"student_id"`
	CourseID  string    `json:"course_id"`
	Date      time.Time `json:"-"` // UTC midnight
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at,omitempty"` // UTC
	UpdatedAt time.Time `json:"updated_at,omitempty"` // UTC
}

// Key identifies the uniqueness triple of a Record.
type Key struct {
	StudentID string
	CourseID  string
	Date      string // YYYY-MM-DD
}

func (r Record) Key() Key {
	return Key{StudentID: r.StudentID, CourseID: r.CourseID, Date: FormatDate(r.Date)}
}

func (r Record) IsPresent() bool { return r.Status == StatusPresent }

type recordJSON struct {
	ID        string     `json:"id,omitempty"`
	StudentID string     `json:"student_id"`
	CourseID  string     `json:"course_id"`
	Date      string     `json:"date"`
	Status    Status     `json:"status"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

func (r Record) MarshalJSON() ([]byte, error) {
	rj := recordJSON{
		ID:        r.ID,
		StudentID: r.StudentID,
		CourseID:  r.CourseID,
		Date:      FormatDate(r.Date),
		Status:    r.Status,
	}
	if !r.CreatedAt.IsZero() {
		rj.CreatedAt = &r.CreatedAt
	}
	if !r.UpdatedAt.IsZero() {
		rj.UpdatedAt = &r.UpdatedAt
	}
	return json.Marshal(rj)
}

func (r *Record) UnmarshalJSON(data []byte) error {
	var rj recordJSON
	if err := json.Unmarshal(data, &rj); err != nil {
		return err
	}
	date, err := ParseDate(rj.Date)
	if err != nil {
		return err
	}
	*r = Record{ID: rj.ID, StudentID: rj.StudentID, CourseID: rj.CourseID, Date: date, Status: rj.Status}
	if rj.CreatedAt != nil {
		r.CreatedAt = *rj.CreatedAt
	}
	if rj.UpdatedAt != nil {
		r.UpdatedAt = *rj.UpdatedAt
	}
	return nil
}

// FailedRecord is a Record that could not be persisted.
type FailedRecord struct {
	Record Record
	Err    error
}

func (fr FailedRecord) MarshalJSON() ([]byte, error) {
	msg := ""
	if fr.Err != nil {
		msg = fr.Err.Error()
	}
	return json.Marshal(struct {
		Record Record `json:"record"`
		Error  string `json:"error"`
	}{fr.Record, msg})
}

// BatchResult reports which records of a batch were written.
type BatchResult struct {
	Succeeded []Record       `json:"succeeded"`
	Skipped   []Record       `json:"skipped,omitempty"` // duplicates ignored by InsertMany
	Failed    []FailedRecord `json:"failed"`
}

func NewBatchResult(size int) BatchResult {
	return BatchResult{
		Succeeded: make([]Record, 0, size),
		Failed:    make([]FailedRecord, 0),
	}
}

func (br BatchResult) Total() int { return len(br.Succeeded) + len(br.Skipped) + len(br.Failed) }
func (br BatchResult) OK() bool   { return len(br.Failed) == 0 }

func (br BatchResult) String() string {
	return fmt.Sprintf("%d of %d students recorded, %d failed", len(br.Succeeded), br.Total(), len(br.Failed))
}

// NameMismatch flags an observation whose display name differs from the roster's.
type NameMismatch struct {
	RollNumber   string  `json:"roll_number"`
	ObservedName string  `json:"observed_name"`
	RosterName   string  `json:"roster_name"`
	Similarity   float64 `json:"similarity"`
}

type Reconciliation struct {
	Records        []Record                  `json:"records"`
	Matched        []recognition.Observation `json:"matched"`
	Unmatched      []recognition.Observation `json:"unmatched"`
	Duplicates     []recognition.Observation `json:"duplicates"`
	NameMismatches []NameMismatch            `json:"name_mismatches"`
}

// Summary is the attendance percentage of a student in a course up to AsOf (inclusive).
type Summary struct {
	StudentID    string    `json:"student_id"`
	CourseID     string    `json:"course_id"`
	AsOf         time.Time `json:"-"`
	TotalClasses int       `json:"total_classes"`
	TotalPresent int       `json:"total_present"`
	Percentage   float64   `json:"percentage"`
}

// Formatted renders the percentage with two decimals, eg. "87.50%".
func (s Summary) Formatted() string {
	return fmt.Sprintf("%.2f%%", s.Percentage)
}

func (s Summary) MarshalJSON() ([]byte, error) {
	type summary Summary
	return json.Marshal(struct {
		summary
		AsOf      string `json:"as_of"`
		Formatted string `json:"formatted"`
	}{summary(s), FormatDate(s.AsOf), s.Formatted()})
}

// RecordView is a stored Record enriched for presentation.
type RecordView struct {
	Record
	RollNumber  string  `json:"roll_number"`
	DisplayName string  `json:"display_name"`
	Summary     Summary `json:"summary"` // as of Record.Date
}

func (rv RecordView) MarshalJSON() ([]byte, error) {
	rec, err := json.Marshal(rv.Record)
	if err != nil {
		return nil, err
	}
	var out map[string]interface{}
	if err = json.Unmarshal(rec, &out); err != nil {
		return nil, err
	}
	out["roll_number"] = rv.RollNumber
	out["display_name"] = rv.DisplayName
	out["summary"] = rv.Summary
	return json.Marshal(out)
}

type SummaryView struct {
	Summary
	RollNumber  string `json:"roll_number"`
	DisplayName string `json:"display_name"`
}

func (sv SummaryView) MarshalJSON() ([]byte, error) {
	sum, err := json.Marshal(sv.Summary)
	if err != nil {
		return nil, err
	}
	var out map[string]interface{}
	if err = json.Unmarshal(sum, &out); err != nil {
		return nil, err
	}
	out["roll_number"] = sv.RollNumber
	out["display_name"] = sv.DisplayName
	return json.Marshal(out)
}

type QueryFilter struct {
	CourseID  string
	StudentID string
	From      time.Time // inclusive; zero means unbounded
	To        time.Time // exclusive; zero means unbounded
}

// Normalize snaps the bounds to UTC day boundaries.
func (qf QueryFilter) Normalize() QueryFilter {
	if !qf.From.IsZero() {
		qf.From = NormalizeDate(qf.From)
	}
	if !qf.To.IsZero() {
		qf.To = NormalizeDate(qf.To)
	}
	return qf
}

// Match reports whether rec falls within the filter.
func (qf QueryFilter) Match(rec Record) bool {
	if qf.CourseID != "" && rec.CourseID != qf.CourseID {
		return false
	}
	if qf.StudentID != "" && rec.StudentID != qf.StudentID {
		return false
	}
	day := NormalizeDate(rec.Date)
	if !qf.From.IsZero() && day.Before(NormalizeDate(qf.From)) {
		return false
	}
	if !qf.To.IsZero() && !day.Before(NormalizeDate(qf.To)) {
		return false
	}
	return true
}

// TakeRequest contains information needed to record attendance from classifier output.
type TakeRequest struct {
	CourseID    string `json:"course_id" validate:"required"`
	Date        string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	RawText     string `json:"raw_text"`
	NotifyEmail string `json:"notify_email" validate:"omitempty,email"`
}

func (tr *TakeRequest) Validate(validate *validator.Validate) error {
	tr.CourseID = core.CleanString(tr.CourseID)
	tr.Date = core.CleanString(tr.Date)
	tr.NotifyEmail = core.CleanString(tr.NotifyEmail, true /* lower */)
	return validate.Struct(tr)
}

type TakeResult struct {
	CourseID string                    `json:"course_id"`
	Date     string                    `json:"date"`
	Skipped  []recognition.SkippedLine `json:"skipped"`
	Reconciliation
	Result BatchResult `json:"result"`
}

// UpdateRecord defines what information must be provided to correct a stored Record.
type UpdateRecord struct {
	StudentID string `json:"student_id" validate:"required"`
	CourseID  string `json:"course_id" validate:"required"`
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	Status    string `json:"status" validate:"required,attendance_status"`
}

func (ur *UpdateRecord) Validate(validate *validator.Validate) error {
	ur.StudentID = core.CleanString(ur.StudentID)
	ur.CourseID = core.CleanString(ur.CourseID)
	ur.Date = core.CleanString(ur.Date)
	ur.Status = strings.ToUpper(core.CleanString(ur.Status))
	return validate.Struct(ur)
}
