package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/rollcall/core/attendance"
	"github.com/trezcool/rollcall/core/roster"
	dummydb "github.com/trezcool/rollcall/storage/database/dummy"
	testutil "github.com/trezcool/rollcall/tests"
)

type fixture struct {
	cli     *commandLine
	out     *bytes.Buffer
	attRepo attendance.Repository
}

func setup(t *testing.T) fixture {
	db, _ := dummydb.Open()
	validate := testutil.NewValidator()
	rosterSvc := roster.NewService(dummydb.NewRosterRepository(db), validate)
	attRepo := dummydb.NewAttendanceRepository(db)
	attSvc := attendance.NewService(attRepo, rosterSvc, nil, nil, nil, new(testutil.Logger), validate)
	attSvc.NowFunc = func() time.Time { return time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC) }

	out := new(bytes.Buffer)
	return fixture{
		cli:     &commandLine{rosterSvc: rosterSvc, attSvc: attSvc, out: out},
		out:     out,
		attRepo: attRepo,
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
}

func (tt cliTest) check(t *testing.T, err error) {
	t.Helper()
	switch {
	case tt.wantErr != nil:
		assert.ErrorIs(t, err, tt.wantErr)
	case tt.wantErrStr != "":
		require.Error(t, err)
		assert.Contains(t, err.Error(), tt.wantErrStr)
	default:
		assert.NoError(t, err)
	}
}

func Test_commandLine_usage(t *testing.T) {
	f := setup(t)
	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "importroster without flags", args: []string{"importroster"}, wantErrStr: "course"},
		{name: "importroster without file", args: []string{"importroster", "-course", "CS101"}, wantErrStr: "file"},
		{name: "importroster unknown flag", args: []string{"importroster", "-lol"}, wantErr: errHelp},
		{name: "reconcile without flags", args: []string{"reconcile"}, wantErrStr: "course"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, f.cli.run(append([]string{"admin"}, tt.args...)))
		})
	}
	assert.Contains(t, f.out.String(), "Usage:")
}

func Test_commandLine_migrate(t *testing.T) {
	f := setup(t)

	gooseRunFunc = func(command string, db *sql.DB, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "1"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "create", args: []string{"migrate", "create", "add_section", "sql"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, f.cli.run(append([]string{"admin"}, tt.args...)))
		})
	}
}

func Test_commandLine_importRoster(t *testing.T) {
	f := setup(t)
	good := writeFile(t, "roster.csv", "name,roll_number,department,semester\nAlice,101,CS,3\nBob,102,CS,3\nCarol,103,EE,\n")

	tests := []cliTest{
		{name: "missing file", args: []string{"importroster", "-course", "CS101", "-file", filepath.Join(t.TempDir(), "nope.csv")}, wantErrStr: "opening roster file"},
		{name: "missing column", args: []string{"importroster", "-course", "CS101", "-file", writeFile(t, "a.csv", "roll,name\n1,A\n")}, wantErr: errMissingColumn},
		{name: "bad semester", args: []string{"importroster", "-course", "CS101", "-file", writeFile(t, "b.csv", "roll_number,name,semester\n1,A,first\n")}, wantErrStr: "line 2: semester must be a number"},
		{name: "duplicate roll numbers", args: []string{"importroster", "-course", "CS101", "-file", writeFile(t, "c.csv", "roll_number,name\n1,A\n1,B\n")}, wantErr: roster.ErrDuplicateRollNumber},
		{name: "ok", args: []string{"importroster", "-course", "CS101", "-name", "Intro to CS", "-file", good}},
		{name: "re-import keeps the name", args: []string{"importroster", "-course", "CS101", "-file", good}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, f.cli.run(append([]string{"admin"}, tt.args...)))
		})
	}

	ctx := context.Background()
	course, err := f.cli.rosterSvc.GetCourseByCode(ctx, "CS101")
	require.NoError(t, err)
	assert.Equal(t, "Intro to CS", course.Name)
	entries, err := f.cli.rosterSvc.Get(ctx, course.ID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, roster.Entry{StudentID: entries[2].StudentID, RollNumber: "103", DisplayName: "Carol", Department: "EE"}, entries[2])
	assert.Contains(t, f.out.String(), "CS101 ("+course.ID+"): 3 students enrolled")
}

func Test_commandLine_reconcile(t *testing.T) {
	f := setup(t)
	rosterFile := writeFile(t, "roster.csv", "roll_number,name\n101,Alice\n102,Bob\n103,Carol\n")
	require.NoError(t, f.cli.run([]string{"admin", "importroster", "-course", "CS101", "-file", rosterFile}))
	output := writeFile(t, "output.txt", "face_1: 101-Alice (Similarity: 0.91)\nface_2: unknown\nface_3: 102-Bob (Similarity: 0.40)\n")

	tests := []cliTest{
		{name: "unknown course", args: []string{"reconcile", "-course", "CS999", "-file", output}, wantErr: roster.ErrCourseNotFound},
		{name: "missing output", args: []string{"reconcile", "-course", "CS101", "-file", filepath.Join(t.TempDir(), "nope.txt")}, wantErrStr: "reading classifier output"},
		{name: "ok", args: []string{"reconcile", "-course", "CS101", "-date", "2025-05-30", "-file", output}},
		{name: "default date", args: []string{"reconcile", "-course", "CS101", "-file", output}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, f.cli.run(append([]string{"admin"}, tt.args...)))
		})
	}

	assert.Contains(t, f.out.String(), "CS101 2025-05-30: 3 of 3 students recorded, 0 failed")
	assert.Contains(t, f.out.String(), "CS101 2025-06-01: 3 of 3 students recorded, 0 failed")
	assert.Contains(t, f.out.String(), "matched 2, unmatched 0, duplicates 0, skipped lines 1")

	course, err := f.cli.rosterSvc.GetCourseByCode(context.Background(), "CS101")
	require.NoError(t, err)
	recs, err := f.attRepo.QueryRecords(context.Background(), attendance.QueryFilter{CourseID: course.ID})
	require.NoError(t, err)
	assert.Len(t, recs, 6)
}
