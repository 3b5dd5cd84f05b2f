package gormrepos

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/trezcool/rollcall/core/attendance"
	"github.com/trezcool/rollcall/core/roster"
	"github.com/trezcool/rollcall/storage/database/repotest"
	testutil "github.com/trezcool/rollcall/tests"
)

func TestRepositories(t *testing.T) {
	repotest.Run(t, func(t *testing.T) (attendance.Repository, roster.Repository) {
		db, err := Open(repotest.OpenPostgres(t), new(testutil.Logger))
		require.NoError(t, err)
		return NewAttendanceRepository(db), NewRosterRepository(db)
	})
}
