package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/rollcall/core"
	"github.com/trezcool/rollcall/core/attendance"
	"github.com/trezcool/rollcall/core/roster"
)

// NewValidator returns a validator with every custom tag registered.
func NewValidator() *validator.Validate {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	attendance.InitValidators(validate, translator)
	return validate
}

// CreateCourse imports a course whose students are given as "roll", "name" pairs.
func CreateCourse(t *testing.T, repo roster.Repository, code string, rollsAndNames ...string) (roster.Course, []roster.Entry) {
	t.Helper()
	if len(rollsAndNames)%2 != 0 {
		t.Fatalf("createCourse() needs roll/name pairs, got %d values", len(rollsAndNames))
	}
	rows := make([]roster.NewEnrollment, 0, len(rollsAndNames)/2)
	for i := 0; i < len(rollsAndNames); i += 2 {
		rows = append(rows, roster.NewEnrollment{RollNumber: rollsAndNames[i], Name: rollsAndNames[i+1], Department: "CS", Semester: 1})
	}
	course, entries, err := roster.NewService(repo, NewValidator()).Import(context.Background(), code, code, rows)
	if err != nil {
		t.Fatalf("createCourse() failed: %v", err)
	}
	return course, entries
}

// LogEntry is one call recorded by Logger.
type LogEntry struct {
	Level string
	Msg   string
	Args  []interface{}
}

// Logger records every call instead of printing it.
type Logger struct {
	mu      sync.Mutex
	Entries []LogEntry
}

var _ core.Logger = (*Logger)(nil)

func (l *Logger) log(level, msg string, args []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Entries = append(l.Entries, LogEntry{Level: level, Msg: msg, Args: args})
}

// Levels returns how many entries were logged per level.
func (l *Logger) Levels() map[string]int {
	l.mu.Lock()
	defer l.mu.Unlock()
	counts := make(map[string]int)
	for _, e := range l.Entries {
		counts[e.Level]++
	}
	return counts
}

func (l *Logger) Debug(msg string, args ...interface{}) { l.log("debug", msg, args) }
func (l *Logger) Info(msg string, args ...interface{})  { l.log("info", msg, args) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.log("warn", msg, args) }
func (l *Logger) Error(msg string, args ...interface{}) { l.log("error", msg, args) }
func (l *Logger) Fatal(msg string, args ...interface{}) {
	l.log("fatal", msg, args)
	panic(fmt.Sprintf("fatal: %s", msg))
}
