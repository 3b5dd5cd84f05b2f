package gormrepos

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/trezcool/rollcall/core/roster"
	"github.com/trezcool/rollcall/storage/database"
)

type (
	courseModel struct {
		ID        string    `gorm:"column:id;type:uuid;primaryKey"`
		Code      string    `gorm:"column:code"`
		Name      string    `gorm:"column:name"`
		CreatedAt time.Time `gorm:"column:created_at"`
	}

	studentModel struct {
		ID         string      `gorm:"column:id;type:uuid;primaryKey"`
		RollNumber string      `gorm:"column:roll_number"`
		Name       string      `gorm:"column:name"`
		Department null.String `gorm:"column:department"`
		Semester   null.Int    `gorm:"column:semester"`
		CreatedAt  time.Time   `gorm:"column:created_at"`
	}

	enrollmentModel struct {
		CourseID  string `gorm:"column:course_id;type:uuid;primaryKey"`
		StudentID string `gorm:"column:student_id;type:uuid;primaryKey"`
	}
)

func (courseModel) TableName() string     { return "course" }
func (studentModel) TableName() string    { return "student" }
func (enrollmentModel) TableName() string { return "enrollment" }

func (m courseModel) course() roster.Course {
	return roster.Course{ID: m.ID, Code: m.Code, Name: m.Name, CreatedAt: m.CreatedAt.UTC()}
}

func (m studentModel) student() roster.Student {
	return roster.Student{
		ID:         m.ID,
		RollNumber: m.RollNumber,
		Name:       m.Name,
		Department: m.Department.String,
		Semester:   m.Semester.Int,
		CreatedAt:  m.CreatedAt.UTC(),
	}
}

type rosterRepository struct {
	db *gorm.DB
}

var _ roster.Repository = (*rosterRepository)(nil) // interface compliance check

func NewRosterRepository(db *gorm.DB) *rosterRepository {
	return &rosterRepository{db: db}
}

func trapNotFound(err error, errNotFound error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) || database.SQLState(err) == database.InvalidTextRepresentation {
		return errNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo rosterRepository) GetCourse(ctx context.Context, id string) (roster.Course, error) {
	var m courseModel
	if err := repo.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return roster.Course{}, trapNotFound(err, roster.ErrCourseNotFound, "getting course")
	}
	return m.course(), nil
}

func (repo rosterRepository) GetCourseByCode(ctx context.Context, code string) (roster.Course, error) {
	var m courseModel
	if err := repo.db.WithContext(ctx).Where("code = ?", code).First(&m).Error; err != nil {
		return roster.Course{}, trapNotFound(err, roster.ErrCourseNotFound, "getting course")
	}
	return m.course(), nil
}

func (repo rosterRepository) GetRoster(ctx context.Context, courseID string) ([]roster.Entry, error) {
	var models []studentModel
	err := repo.db.WithContext(ctx).
		Model(&studentModel{}).
		Joins("JOIN enrollment ON enrollment.student_id = student.id").
		Where("enrollment.course_id = ?", courseID).
		Order("length(student.roll_number), student.roll_number").
		Find(&models).Error
	if err != nil {
		if database.SQLState(err) == database.InvalidTextRepresentation {
			return []roster.Entry{}, nil
		}
		return nil, errors.Wrap(err, "querying roster")
	}

	entries := make([]roster.Entry, 0, len(models))
	for _, m := range models {
		std := m.student()
		entries = append(entries, roster.Entry{
			StudentID:   std.ID,
			RollNumber:  std.RollNumber,
			DisplayName: std.Name,
			Department:  std.Department,
			Semester:    std.Semester,
		})
	}
	return entries, nil
}

func (repo rosterRepository) SaveCourse(ctx context.Context, course roster.Course) (roster.Course, error) {
	m := courseModel{ID: uuid.New().String(), Code: course.Code, Name: course.Name, CreatedAt: course.CreatedAt.UTC()}
	err := repo.db.WithContext(ctx).Clauses(
		clause.OnConflict{Columns: []clause.Column{{Name: "code"}}, DoUpdates: clause.AssignmentColumns([]string{"name"})},
		clause.Returning{},
	).Create(&m).Error
	if err != nil {
		return roster.Course{}, errors.Wrap(err, "saving course")
	}
	return m.course(), nil
}

func (repo rosterRepository) SaveStudent(ctx context.Context, student roster.Student) (roster.Student, error) {
	m := studentModel{
		ID:         uuid.New().String(),
		RollNumber: student.RollNumber,
		Name:       student.Name,
		Department: null.NewString(student.Department, student.Department != ""),
		Semester:   null.NewInt(student.Semester, student.Semester > 0),
		CreatedAt:  student.CreatedAt.UTC(),
	}
	err := repo.db.WithContext(ctx).Clauses(
		clause.OnConflict{
			Columns:   []clause.Column{{Name: "roll_number"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "department", "semester"}),
		},
		clause.Returning{},
	).Create(&m).Error
	if err != nil {
		return roster.Student{}, errors.Wrap(err, "saving student")
	}
	return m.student(), nil
}

func (repo rosterRepository) Enroll(ctx context.Context, courseID, studentID string) error {
	err := repo.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&enrollmentModel{CourseID: courseID, StudentID: studentID}).Error
	if err == nil {
		return nil
	}
	switch database.SQLState(err) {
	case database.ForeignKeyViolation, database.InvalidTextRepresentation:
		if strings.Contains(err.Error(), "course_id") {
			return roster.ErrCourseNotFound
		}
		return roster.ErrStudentNotFound
	}
	return errors.Wrap(err, "enrolling student")
}
