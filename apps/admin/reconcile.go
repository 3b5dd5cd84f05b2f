package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/trezcool/rollcall/core/attendance"
)

var errPartialBatch = errors.New("some attendance records were not stored")

// reconcile records the attendance of a class from a saved classifier output.
func (cli *commandLine) reconcile(code, date, path, notify string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "reading classifier output")
	}

	ctx := context.Background()
	course, err := cli.rosterSvc.GetCourseByCode(ctx, code)
	if err != nil {
		return err
	}

	res, err := cli.attSvc.TakeAttendance(ctx, attendance.TakeRequest{
		CourseID:    course.ID,
		Date:        date,
		RawText:     string(raw),
		NotifyEmail: notify,
	})
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(cli.out, "%s %s: %s\n", course.Code, res.Date, res.Result)
	_, _ = fmt.Fprintf(cli.out, "  matched %d, unmatched %d, duplicates %d, skipped lines %d\n",
		len(res.Matched), len(res.Unmatched), len(res.Duplicates), len(res.Skipped))
	for _, f := range res.Result.Failed {
		_, _ = fmt.Fprintf(cli.out, "  failed %s: %v\n", f.Record.StudentID, f.Err)
	}
	if !res.Result.OK() {
		return errPartialBatch
	}
	return nil
}
