package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/rollcall/core"
	"github.com/trezcool/rollcall/core/roster"
)

var errMissingColumn = errors.New("roster CSV must have roll_number and name columns")

// importRoster upserts the course and enrolls every student listed in the CSV file.
func (cli *commandLine) importRoster(code, name, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "opening roster file")
	}
	defer f.Close()

	rows, err := readRoster(f)
	if err != nil {
		return err
	}

	ctx := context.Background()
	if name == "" {
		if course, err := cli.rosterSvc.GetCourseByCode(ctx, code); err == nil {
			name = course.Name
		} else if errors.Is(err, roster.ErrCourseNotFound) {
			name = code
		} else {
			return err
		}
	}

	course, entries, err := cli.rosterSvc.Import(ctx, code, name, rows)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cli.out, "%s (%s): %d students enrolled\n", course.Code, course.ID, len(entries))
	return nil
}

// readRoster reads roll_number,name[,department][,semester] rows; the header may list them in any order.
func readRoster(r io.Reader) ([]roster.NewEnrollment, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, errors.Wrap(err, "reading roster header")
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(core.CleanString(h))] = i
	}
	if _, ok := cols["roll_number"]; !ok {
		return nil, errMissingColumn
	}
	if _, ok := cols["name"]; !ok {
		return nil, errMissingColumn
	}

	field := func(rec []string, col string) string {
		if i, ok := cols[col]; ok && i < len(rec) {
			return rec[i]
		}
		return ""
	}

	rows := make([]roster.NewEnrollment, 0)
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "reading roster")
		}

		row := roster.NewEnrollment{
			RollNumber: field(rec, "roll_number"),
			Name:       field(rec, "name"),
			Department: field(rec, "department"),
		}
		if sem := core.CleanString(field(rec, "semester")); sem != "" {
			if row.Semester, err = strconv.Atoi(sem); err != nil {
				return nil, errors.Errorf("line %d: semester must be a number (got %q)", line, sem)
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
