package dummydb

import (
	"sync"

	"github.com/trezcool/rollcall/core/attendance"
	"github.com/trezcool/rollcall/core/roster"
)

type (
	// DB is an in-memory database enforcing the same keys and references as the postgres schema.
	DB struct {
		sync.RWMutex
		courses     map[string]*roster.Course
		students    map[string]*roster.Student
		enrollments map[string]map[string]struct{} // course id -> student ids
		attendance  map[attendance.Key]*attendance.Record
	}
)

func Open() (*DB, error) {
	db := &DB{
		courses:     make(map[string]*roster.Course),
		students:    make(map[string]*roster.Student),
		enrollments: make(map[string]map[string]struct{}),
		attendance:  make(map[attendance.Key]*attendance.Record),
	}
	return db, nil
}

// DeleteStudent removes a student and its enrollments; attendance rows are kept
// so tests can simulate a student vanishing mid-flight.
func (db *DB) DeleteStudent(id string) {
	db.Lock()
	defer db.Unlock()

	delete(db.students, id)
	for _, ids := range db.enrollments {
		delete(ids, id)
	}
}
