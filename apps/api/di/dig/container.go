package dig_container

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/rollcall/apps/api/echo"
	"github.com/trezcool/rollcall/apps/shared"
	"github.com/trezcool/rollcall/core"
	"github.com/trezcool/rollcall/core/attendance"
	"github.com/trezcool/rollcall/core/roster"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

type repositories struct {
	dig.Out
	Attendance attendance.Repository
	Roster     roster.Repository
}

type ServerParams struct {
	dig.In
	Conf          *core.Config
	Logger        core.Logger
	RosterSvc     *roster.Service
	AttendanceSvc *attendance.Service
	Validate      *validator.Validate
	Translator    ut.Translator
}

func newLogger(conf *core.Config) core.Logger {
	return shared.NewLogger(conf, os.Stdout, "API : ")
}

func newDBLogger(conf *core.Config) core.Logger {
	return shared.NewLogger(conf, os.Stdout, "DB : ")
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) *sql.DB {
	db, err := shared.SetUpDB(conf)
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db
}

func newRepositories(conf *core.Config, db *sql.DB, loggerParam DBLoggerParam) (repositories, error) {
	att, ros, err := shared.NewRepositories(conf, db, loggerParam.Logger)
	if err != nil {
		return repositories{}, err
	}
	return repositories{Attendance: att, Roster: ros}, nil
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	return shared.NewEmailService(conf, os.Stdout, logger)
}

func newServer(p ServerParams) *echoapi.Server {
	return echoapi.NewServer(echoapi.ServerDeps{
		Conf:          p.Conf,
		Logger:        p.Logger,
		RosterSvc:     p.RosterSvc,
		AttendanceSvc: p.AttendanceSvc,
		Validate:      p.Validate,
		Translator:    p.Translator,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newDB))
	must(c.Provide(newRepositories))
	must(c.Provide(newEmailService))
	must(c.Provide(shared.NewClassifier))
	must(c.Provide(shared.NewParser))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(shared.NewValidator))
	must(c.Provide(roster.NewService))
	must(c.Provide(attendance.NewService))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
