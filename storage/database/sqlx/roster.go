package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/rollcall/core/roster"
	"github.com/trezcool/rollcall/storage/database"
)

type (
	courseRow struct {
		ID        string    `db:"id"`
		Code      string    `db:"code"`
		Name      string    `db:"name"`
		CreatedAt time.Time `db:"created_at"`
	}

	studentRow struct {
		ID         string      `db:"id"`
		RollNumber string      `db:"roll_number"`
		Name       string      `db:"name"`
		Department null.String `db:"department"`
		Semester   null.Int    `db:"semester"`
		CreatedAt  time.Time   `db:"created_at"`
	}
)

func (row courseRow) course() roster.Course {
	return roster.Course{ID: row.ID, Code: row.Code, Name: row.Name, CreatedAt: row.CreatedAt.UTC()}
}

func (row studentRow) student() roster.Student {
	return roster.Student{
		ID:         row.ID,
		RollNumber: row.RollNumber,
		Name:       row.Name,
		Department: row.Department.String,
		Semester:   row.Semester.Int,
		CreatedAt:  row.CreatedAt.UTC(),
	}
}

func (row studentRow) entry() roster.Entry {
	return roster.Entry{
		StudentID:   row.ID,
		RollNumber:  row.RollNumber,
		DisplayName: row.Name,
		Department:  row.Department.String,
		Semester:    row.Semester.Int,
	}
}

type rosterRepository struct {
	db *sqlx.DB
}

var _ roster.Repository = (*rosterRepository)(nil) // interface compliance check

func NewRosterRepository(db *sqlx.DB) *rosterRepository {
	return &rosterRepository{db: db}
}

// trapNotFound maps "no rows" and malformed ids to errNotFound
func trapNotFound(err error, errNotFound error, msg string) error {
	if err == sql.ErrNoRows || database.SQLState(err) == database.InvalidTextRepresentation {
		return errNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo rosterRepository) GetCourse(ctx context.Context, id string) (roster.Course, error) {
	var row courseRow
	if err := repo.db.GetContext(ctx, &row, "SELECT id, code, name, created_at FROM course WHERE id = $1", id); err != nil {
		return roster.Course{}, trapNotFound(err, roster.ErrCourseNotFound, "getting course")
	}
	return row.course(), nil
}

func (repo rosterRepository) GetCourseByCode(ctx context.Context, code string) (roster.Course, error) {
	var row courseRow
	if err := repo.db.GetContext(ctx, &row, "SELECT id, code, name, created_at FROM course WHERE code = $1", code); err != nil {
		return roster.Course{}, trapNotFound(err, roster.ErrCourseNotFound, "getting course")
	}
	return row.course(), nil
}

func (repo rosterRepository) GetRoster(ctx context.Context, courseID string) ([]roster.Entry, error) {
	var rows []studentRow
	err := repo.db.SelectContext(ctx, &rows, `SELECT s.id, s.roll_number, s.name, s.department, s.semester, s.created_at
FROM enrollment e JOIN student s ON s.id = e.student_id
WHERE e.course_id = $1
ORDER BY length(s.roll_number), s.roll_number`, courseID)
	if err != nil {
		if database.SQLState(err) == database.InvalidTextRepresentation {
			return []roster.Entry{}, nil
		}
		return nil, errors.Wrap(err, "querying roster")
	}

	entries := make([]roster.Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, row.entry())
	}
	return entries, nil
}

func (repo rosterRepository) SaveCourse(ctx context.Context, course roster.Course) (roster.Course, error) {
	if course.CreatedAt.IsZero() {
		course.CreatedAt = time.Now().UTC()
	}
	var row courseRow
	err := repo.db.QueryRowxContext(ctx, `INSERT INTO course (id, code, name, created_at) VALUES ($1, $2, $3, $4)
ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name
RETURNING id, code, name, created_at`,
		uuid.New().String(), course.Code, course.Name, course.CreatedAt.UTC()).StructScan(&row)
	if err != nil {
		return roster.Course{}, errors.Wrap(err, "saving course")
	}
	return row.course(), nil
}

func (repo rosterRepository) SaveStudent(ctx context.Context, student roster.Student) (roster.Student, error) {
	if student.CreatedAt.IsZero() {
		student.CreatedAt = time.Now().UTC()
	}
	var row studentRow
	err := repo.db.QueryRowxContext(ctx, `INSERT INTO student (id, roll_number, name, department, semester, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (roll_number) DO UPDATE SET name = EXCLUDED.name, department = EXCLUDED.department, semester = EXCLUDED.semester
RETURNING id, roll_number, name, department, semester, created_at`,
		uuid.New().String(),
		student.RollNumber,
		student.Name,
		null.NewString(student.Department, student.Department != ""),
		null.NewInt(student.Semester, student.Semester > 0),
		student.CreatedAt.UTC(),
	).StructScan(&row)
	if err != nil {
		return roster.Student{}, errors.Wrap(err, "saving student")
	}
	return row.student(), nil
}

func (repo rosterRepository) Enroll(ctx context.Context, courseID, studentID string) error {
	_, err := repo.db.ExecContext(ctx,
		"INSERT INTO enrollment (course_id, student_id) VALUES ($1, $2) ON CONFLICT DO NOTHING", courseID, studentID)
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && (pqErr.Code == database.ForeignKeyViolation || pqErr.Code == database.InvalidTextRepresentation) {
		if strings.Contains(pqErr.Constraint, "course") {
			return roster.ErrCourseNotFound
		}
		return roster.ErrStudentNotFound
	}
	return errors.Wrap(err, "enrolling student")
}
