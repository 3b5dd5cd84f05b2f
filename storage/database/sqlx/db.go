package sqlxrepos

import (
	"database/sql"

	"github.com/jmoiron/sqlx"
)

// Wrap gives an opened postgres connection pool the sqlx extensions.
func Wrap(db *sql.DB) *sqlx.DB {
	return sqlx.NewDb(db, "postgres")
}
