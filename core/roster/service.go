package roster

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/rollcall/core"
)

var (
	// errors
	ErrCourseNotFound      = errors.New("course not found")
	ErrStudentNotFound     = errors.New("student not found")
	ErrDuplicateRollNumber = errors.New("roll number appears more than once in roster")
)

type (
	Repository interface {
		GetCourse(ctx context.Context, id string) (Course, error)
		GetCourseByCode(ctx context.Context, code string) (Course, error)
		// GetRoster returns the enrolled students of a course ordered by roll number.
		GetRoster(ctx context.Context, courseID string) ([]Entry, error)
		// SaveCourse creates the course or updates the one with the same code.
		SaveCourse(ctx context.Context, course Course) (Course, error)
		// SaveStudent creates the student or updates the one with the same roll number.
		SaveStudent(ctx context.Context, student Student) (Student, error)
		// Enroll is a no-op when the student is already enrolled.
		Enroll(ctx context.Context, courseID, studentID string) error
	}

	Service struct {
		repo     Repository
		validate *validator.Validate
	}
)

func NewService(repo Repository, validate *validator.Validate) *Service {
	return &Service{repo: repo, validate: validate}
}

// Get returns the roster of a course; the course must exist.
func (svc *Service) Get(ctx context.Context, courseID string) ([]Entry, error) {
	if _, err := svc.repo.GetCourse(ctx, courseID); err != nil {
		return nil, err
	}
	entries, err := svc.repo.GetRoster(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if err = CheckUnique(entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (svc *Service) GetCourse(ctx context.Context, id string) (Course, error) {
	return svc.repo.GetCourse(ctx, id)
}

func (svc *Service) GetCourseByCode(ctx context.Context, code string) (Course, error) {
	return svc.repo.GetCourseByCode(ctx, core.CleanString(code))
}

// Import upserts the course, its students and their enrollments.
// Every row is validated before anything is written.
func (svc *Service) Import(ctx context.Context, code, name string, rows []NewEnrollment) (Course, []Entry, error) {
	code, name = core.CleanString(code), core.CleanString(name)
	if code == "" {
		return Course{}, nil, core.NewValidationError(nil, core.FieldError{Field: "code", Error: "this field is required"})
	}
	if name == "" {
		name = code
	}

	seen := make(map[string]int, len(rows))
	for i := range rows {
		if err := rows[i].Validate(svc.validate); err != nil {
			return Course{}, nil, core.NewValidationError(
				fmt.Errorf("row %d: %w", i+1, err),
				core.FieldError{Field: fmt.Sprintf("rows[%d]", i), Error: err.Error()})
		}
		if prev, ok := seen[rows[i].RollNumber]; ok {
			return Course{}, nil, core.NewValidationError(
				fmt.Errorf("row %d: %w (first seen on row %d)", i+1, ErrDuplicateRollNumber, prev+1),
				core.FieldError{Field: fmt.Sprintf("rows[%d].roll_number", i), Error: ErrDuplicateRollNumber.Error()})
		}
		seen[rows[i].RollNumber] = i
	}

	now := time.Now().UTC()
	course, err := svc.repo.SaveCourse(ctx, Course{Code: code, Name: name, CreatedAt: now})
	if err != nil {
		return Course{}, nil, err
	}
	for _, row := range rows {
		std, err := svc.repo.SaveStudent(ctx, Student{
			RollNumber: row.RollNumber,
			Name:       row.Name,
			Department: row.Department,
			Semester:   row.Semester,
			CreatedAt:  now,
		})
		if err != nil {
			return Course{}, nil, err
		}
		if err = svc.repo.Enroll(ctx, course.ID, std.ID); err != nil {
			return Course{}, nil, err
		}
	}

	entries, err := svc.repo.GetRoster(ctx, course.ID)
	if err != nil {
		return Course{}, nil, err
	}
	return course, entries, nil
}

// CheckUnique enforces that roll numbers and student IDs appear once in a roster.
func CheckUnique(entries []Entry) error {
	rolls := make(map[string]struct{}, len(entries))
	ids := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if _, ok := rolls[e.RollNumber]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateRollNumber, e.RollNumber)
		}
		if _, ok := ids[e.StudentID]; ok {
			return fmt.Errorf("%w: student %s", ErrDuplicateRollNumber, e.StudentID)
		}
		rolls[e.RollNumber] = struct{}{}
		ids[e.StudentID] = struct{}{}
	}
	return nil
}
