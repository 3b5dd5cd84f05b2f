package dummydb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/trezcool/rollcall/core/roster"
)

type rosterRepository struct {
	db *DB
}

var _ roster.Repository = (*rosterRepository)(nil) // interface compliance check

func NewRosterRepository(db *DB) roster.Repository {
	return &rosterRepository{db: db}
}

func (repo *rosterRepository) GetCourse(_ context.Context, id string) (roster.Course, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if c, ok := repo.db.courses[id]; ok {
		return *c, nil
	}
	return roster.Course{}, roster.ErrCourseNotFound
}

func (repo *rosterRepository) GetCourseByCode(_ context.Context, code string) (roster.Course, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, c := range repo.db.courses {
		if c.Code == code {
			return *c, nil
		}
	}
	return roster.Course{}, roster.ErrCourseNotFound
}

func (repo *rosterRepository) GetRoster(_ context.Context, courseID string) ([]roster.Entry, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	ids := repo.db.enrollments[courseID]
	entries := make([]roster.Entry, 0, len(ids))
	for id := range ids {
		std, ok := repo.db.students[id]
		if !ok {
			continue
		}
		entries = append(entries, roster.Entry{
			StudentID:   std.ID,
			RollNumber:  std.RollNumber,
			DisplayName: std.Name,
			Department:  std.Department,
			Semester:    std.Semester,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return rollLess(entries[i].RollNumber, entries[j].RollNumber) })
	return entries, nil
}

func (repo *rosterRepository) SaveCourse(_ context.Context, course roster.Course) (roster.Course, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, c := range repo.db.courses {
		if c.Code == course.Code {
			c.Name = course.Name
			return *c, nil
		}
	}
	course.ID = uuid.New().String()
	repo.db.courses[course.ID] = &course
	return course, nil
}

func (repo *rosterRepository) SaveStudent(_ context.Context, student roster.Student) (roster.Student, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, s := range repo.db.students {
		if s.RollNumber == student.RollNumber {
			s.Name = student.Name
			s.Department = student.Department
			s.Semester = student.Semester
			return *s, nil
		}
	}
	student.ID = uuid.New().String()
	repo.db.students[student.ID] = &student
	return student, nil
}

func (repo *rosterRepository) Enroll(_ context.Context, courseID, studentID string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.courses[courseID]; !ok {
		return roster.ErrCourseNotFound
	}
	if _, ok := repo.db.students[studentID]; !ok {
		return roster.ErrStudentNotFound
	}
	ids, ok := repo.db.enrollments[courseID]
	if !ok {
		ids = make(map[string]struct{})
		repo.db.enrollments[courseID] = ids
	}
	ids[studentID] = struct{}{}
	return nil
}

// rollLess orders digit-only roll numbers numerically.
func rollLess(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}
