package main

import (
	"fmt"
	"os"

	"github.com/trezcool/rollcall/apps/shared"
	"github.com/trezcool/rollcall/core"
	"github.com/trezcool/rollcall/core/attendance"
	"github.com/trezcool/rollcall/core/roster"
	"github.com/trezcool/rollcall/storage/database"
)

func main() {
	conf := core.NewConfig()
	logger := shared.NewLogger(conf, os.Stdout, "ADMIN : ")
	defer logger.Close()

	// set up DB
	if err := database.CreateIfNotExist(conf); err != nil {
		logger.Fatal(fmt.Sprintf("creating database: %v", err), err)
	}
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}

	attRepo, rosRepo, err := shared.NewRepositories(conf, db, logger)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up repositories: %v", err), err)
	}
	parser, err := shared.NewParser(conf)
	if err != nil {
		logger.Fatal(err.Error(), err)
	}

	// set up services
	translator := core.NewTranslator()
	validate := shared.NewValidator(translator)
	mailer := shared.NewEmailService(conf, os.Stdout, logger)
	rosterSvc := roster.NewService(rosRepo, validate)
	attSvc := attendance.NewService(
		attRepo,
		rosterSvc,
		parser,
		shared.NewClassifier(conf),
		mailer,
		logger,
		validate,
	)

	// start CLI
	cli := commandLine{
		db:        db,
		rosterSvc: rosterSvc,
		attSvc:    attSvc,
		out:       os.Stdout,
	}
	err = cli.run(os.Args)
	if w, ok := mailer.(interface{ Wait() }); ok {
		w.Wait() // reports are sent in the background
	}
	_ = db.Close()
	if err != nil {
		if err != errHelp {
			if fields := core.TranslateErrors(err, translator); fields != nil {
				_, _ = fmt.Fprintf(os.Stderr, "\nerror: %v\n", fields)
			} else {
				_, _ = fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
			}
		}
		logger.Close()
		os.Exit(1)
	}
}
