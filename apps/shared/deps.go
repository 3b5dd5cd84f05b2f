// Package shared builds the dependencies both the API and the admin CLI run on.
package shared

import (
	"database/sql"
	"io"
	"log"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/rollcall/core"
	"github.com/trezcool/rollcall/core/attendance"
	"github.com/trezcool/rollcall/core/recognition"
	"github.com/trezcool/rollcall/core/roster"
	classifiersvc "github.com/trezcool/rollcall/services/classifier"
	emailsvc "github.com/trezcool/rollcall/services/email"
	logsvc "github.com/trezcool/rollcall/services/logger"
	"github.com/trezcool/rollcall/storage/database"
	gormrepos "github.com/trezcool/rollcall/storage/database/gorm"
	sqlxrepos "github.com/trezcool/rollcall/storage/database/sqlx"
)

var ErrUnknownORM = errors.New("unknown database.orm; expected sqlx or gorm")

// NewLogger returns a rollbar logger printing to out with prefix, disabled in DEV.
func NewLogger(conf *core.Config, out io.Writer, prefix string) *logsvc.RollbarLogger {
	logger := logsvc.NewRollbarLogger(log.New(out, prefix, log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)
	logger.Enable(!conf.Debug)
	return logger
}

// SetUpDB creates the database when missing, opens it and applies pending migrations.
func SetUpDB(conf *core.Config) (*sql.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// NewRepositories returns the attendance and roster stores of the configured ORM.
func NewRepositories(conf *core.Config, db *sql.DB, dbLogger core.Logger) (attendance.Repository, roster.Repository, error) {
	switch conf.Database.ORM {
	case "", "sqlx":
		xdb := sqlxrepos.Wrap(db)
		return sqlxrepos.NewAttendanceRepository(xdb), sqlxrepos.NewRosterRepository(xdb), nil
	case "gorm":
		gdb, err := gormrepos.Open(db, dbLogger)
		if err != nil {
			return nil, nil, err
		}
		return gormrepos.NewAttendanceRepository(gdb), gormrepos.NewRosterRepository(gdb), nil
	default:
		return nil, nil, errors.Wrap(ErrUnknownORM, conf.Database.ORM)
	}
}

// NewValidator returns a validator with every custom tag registered.
func NewValidator(translator ut.Translator) *validator.Validate {
	validate := validator.New()
	core.InitValidators(validate, translator)
	attendance.InitValidators(validate, translator)
	return validate
}

func NewEmailService(conf *core.Config, out io.Writer, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, out, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

// NewClassifier calls the recognition service when one is configured.
// In DEV the static classifier recognizes nobody, so every student is marked absent.
func NewClassifier(conf *core.Config) recognition.Classifier {
	if conf.Classifier.URL != "" {
		return classifiersvc.NewHTTPClassifier(conf)
	}
	return classifiersvc.NewStaticClassifier("")
}

func NewParser(conf *core.Config) (recognition.Parser, error) {
	policy, err := recognition.ParsePolicy(conf.Attendance.ConfidencePolicy)
	if err != nil {
		return nil, errors.Wrap(err, "attendance.confidencePolicy")
	}
	return recognition.NewLineParser(policy), nil
}
