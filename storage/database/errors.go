package database

import (
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/rollcall/core/attendance"
)

// postgres error codes
const (
	UniqueViolation     = "23505"
	ForeignKeyViolation = "23503"
	CheckViolation      = "23514"

	InvalidTextRepresentation = "22P02" // eg. malformed uuid
)

// SQLState returns the postgres error code of err, for both lib/pq and pgx errors.
func SQLState(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState()
	}
	return ""
}

// TranslateAttendanceError maps constraint violations on the attendance table to domain errors.
func TranslateAttendanceError(err error) error {
	if err == nil {
		return nil
	}
	switch SQLState(err) {
	case UniqueViolation:
		return attendance.ErrPersistenceConflict
	case ForeignKeyViolation, InvalidTextRepresentation:
		return attendance.ErrReferenceViolation
	case CheckViolation:
		return attendance.ErrInvalidStatus
	}
	return err
}
