package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/kat-co/vala"

	"github.com/trezcool/rollcall/core/attendance"
	"github.com/trezcool/rollcall/core/roster"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	db        *sql.DB
	rosterSvc *roster.Service
	attSvc    *attendance.Service
	out       io.Writer
}

func (cli *commandLine) printUsage() {
	_, _ = fmt.Fprintln(cli.out, "Usage:")
	_, _ = fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run a goose command over the embedded migrations")
	_, _ = fmt.Fprintln(cli.out, "  importroster -course CODE -name NAME -file roster.csv - import or update a course roster")
	_, _ = fmt.Fprintln(cli.out, "  reconcile -course CODE [-date YYYY-MM-DD] -file output.txt [-notify EMAIL] - record attendance from saved classifier output")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	importCmd := flag.NewFlagSet("importroster", flag.ContinueOnError)
	importCmd.SetOutput(cli.out)
	importCourse := importCmd.String("course", "", "The course code.")
	importName := importCmd.String("name", "", "The course name. Defaults to the code for new courses.")
	importFile := importCmd.String("file", "", "CSV file with roll_number,name[,department][,semester] columns.")

	reconcileCmd := flag.NewFlagSet("reconcile", flag.ContinueOnError)
	reconcileCmd.SetOutput(cli.out)
	reconcileCourse := reconcileCmd.String("course", "", "The course code.")
	reconcileDate := reconcileCmd.String("date", "", "The class day (YYYY-MM-DD). Defaults to today.")
	reconcileFile := reconcileCmd.String("file", "", "File holding the classifier output.")
	reconcileNotify := reconcileCmd.String("notify", "", "E-mail address to send the report to.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "importroster":
		if err := importCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if err := checkRequired("course", *importCourse, "file", *importFile); err != nil {
			importCmd.Usage()
			return err
		}
		return cli.importRoster(*importCourse, *importName, *importFile)
	case "reconcile":
		if err := reconcileCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if err := checkRequired("course", *reconcileCourse, "file", *reconcileFile); err != nil {
			reconcileCmd.Usage()
			return err
		}
		return cli.reconcile(*reconcileCourse, *reconcileDate, *reconcileFile, *reconcileNotify)
	default:
		cli.printUsage()
		return errHelp
	}
}

// checkRequired fails when any of the (name, value) pairs has an empty value.
func checkRequired(nameValues ...string) error {
	checks := make([]vala.Checker, 0, len(nameValues)/2)
	for i := 0; i+1 < len(nameValues); i += 2 {
		checks = append(checks, vala.StringNotEmpty(nameValues[i+1], nameValues[i]))
	}
	return vala.BeginValidation().Validate(checks...).Check()
}
