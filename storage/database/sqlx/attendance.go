package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/rollcall/core/attendance"
	"github.com/trezcool/rollcall/storage/database"
)

const (
	attendanceColumns = "id, student_id, course_id, date, status, created_at, updated_at"

	insertAttendanceQuery = `INSERT INTO attendance (` + attendanceColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

	upsertAttendanceQuery = insertAttendanceQuery + `
ON CONFLICT (student_id, course_id, date) DO UPDATE SET status = EXCLUDED.status, updated_at = EXCLUDED.updated_at
RETURNING ` + attendanceColumns

	insertIgnoreAttendanceQuery = insertAttendanceQuery + `
ON CONFLICT (student_id, course_id, date) DO NOTHING
RETURNING ` + attendanceColumns

	updateAttendanceQuery = `UPDATE attendance SET status = $1, updated_at = $2
WHERE student_id = $3 AND course_id = $4 AND date = $5
RETURNING ` + attendanceColumns
)

type attendanceRow struct {
	ID        string    `db:"id"`
	StudentID string    `db:"student_id"`
	CourseID  string    `db:"course_id"`
	Date      time.Time `db:"date"`
	Status    string    `db:"status"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (row attendanceRow) record() attendance.Record {
	return attendance.Record{
		ID:        row.ID,
		StudentID: row.StudentID,
		CourseID:  row.CourseID,
		Date:      attendance.NormalizeDate(row.Date),
		Status:    attendance.Status(row.Status),
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
	}
}

// args returns the insert arguments; the day is sent as a plain DATE literal so the session
// timezone never shifts it.
func args(rec attendance.Record) []interface{} {
	id := rec.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now().UTC()
	createdAt, updatedAt := rec.CreatedAt.UTC(), rec.UpdatedAt.UTC()
	if rec.CreatedAt.IsZero() {
		createdAt = now
	}
	if rec.UpdatedAt.IsZero() {
		updatedAt = now
	}
	return []interface{}{id, rec.StudentID, rec.CourseID, attendance.FormatDate(rec.Date), string(rec.Status), createdAt, updatedAt}
}

type attendanceRepository struct {
	db *sqlx.DB
}

var _ attendance.Repository = (*attendanceRepository)(nil) // interface compliance check

func NewAttendanceRepository(db *sqlx.DB) *attendanceRepository {
	return &attendanceRepository{db: db}
}

// eachInTx runs fn for every record in one transaction, isolating each record behind a
// savepoint so a failing row is rolled back alone and reported instead of aborting the batch.
func (repo attendanceRepository) eachInTx(
	ctx context.Context,
	records []attendance.Record,
	fn func(tx *sqlx.Tx, rec attendance.Record, res *attendance.BatchResult) error,
) (attendance.BatchResult, error) {
	res := attendance.NewBatchResult(len(records))
	if len(records) == 0 {
		return res, nil
	}

	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return res, errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	for i, rec := range records {
		sp := fmt.Sprintf("attendance_%d", i)
		if _, err = tx.ExecContext(ctx, "SAVEPOINT "+sp); err != nil {
			return res, errors.Wrap(err, "creating savepoint")
		}
		if err = fn(tx, rec, &res); err != nil {
			if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+sp); rbErr != nil {
				return res, errors.Wrap(rbErr, "rolling back savepoint")
			}
			res.Failed = append(res.Failed, attendance.FailedRecord{Record: rec, Err: database.TranslateAttendanceError(err)})
			continue
		}
		if _, err = tx.ExecContext(ctx, "RELEASE SAVEPOINT "+sp); err != nil {
			return res, errors.Wrap(err, "releasing savepoint")
		}
	}

	if err = tx.Commit(); err != nil {
		return attendance.NewBatchResult(0), errors.Wrap(err, "committing attendance")
	}
	return res, nil
}

func (repo attendanceRepository) UpsertMany(ctx context.Context, records []attendance.Record) (attendance.BatchResult, error) {
	return repo.eachInTx(ctx, records, func(tx *sqlx.Tx, rec attendance.Record, res *attendance.BatchResult) error {
		var row attendanceRow
		if err := tx.QueryRowxContext(ctx, upsertAttendanceQuery, args(rec)...).StructScan(&row); err != nil {
			return err
		}
		res.Succeeded = append(res.Succeeded, row.record())
		return nil
	})
}

func (repo attendanceRepository) InsertMany(ctx context.Context, records []attendance.Record, skipDuplicates bool) (attendance.BatchResult, error) {
	query := insertAttendanceQuery + "\nRETURNING " + attendanceColumns
	if skipDuplicates {
		query = insertIgnoreAttendanceQuery
	}
	return repo.eachInTx(ctx, records, func(tx *sqlx.Tx, rec attendance.Record, res *attendance.BatchResult) error {
		var row attendanceRow
		err := tx.QueryRowxContext(ctx, query, args(rec)...).StructScan(&row)
		switch {
		case err == sql.ErrNoRows:
			rec.Date = attendance.NormalizeDate(rec.Date)
			res.Skipped = append(res.Skipped, rec)
			return nil
		case err != nil:
			return err
		}
		res.Succeeded = append(res.Succeeded, row.record())
		return nil
	})
}

func (repo attendanceRepository) UpdateOne(ctx context.Context, studentID, courseID string, date time.Time, status attendance.Status) (attendance.Record, error) {
	var row attendanceRow
	err := repo.db.QueryRowxContext(ctx, updateAttendanceQuery,
		string(status), time.Now().UTC(), studentID, courseID, attendance.FormatDate(date)).StructScan(&row)
	if err != nil {
		if err == sql.ErrNoRows || database.SQLState(err) == database.InvalidTextRepresentation {
			return attendance.Record{}, attendance.ErrNotFound
		}
		return attendance.Record{}, errors.Wrap(database.TranslateAttendanceError(err), "updating attendance")
	}
	return row.record(), nil
}

func (repo attendanceRepository) QueryRecords(ctx context.Context, filter attendance.QueryFilter) ([]attendance.Record, error) {
	filter = filter.Normalize()

	var (
		conds []string
		qArgs []interface{}
	)
	if filter.CourseID != "" {
		conds = append(conds, "course_id = ?")
		qArgs = append(qArgs, filter.CourseID)
	}
	if filter.StudentID != "" {
		conds = append(conds, "student_id = ?")
		qArgs = append(qArgs, filter.StudentID)
	}
	if !filter.From.IsZero() {
		conds = append(conds, "date >= ?")
		qArgs = append(qArgs, attendance.FormatDate(filter.From))
	}
	if !filter.To.IsZero() {
		conds = append(conds, "date < ?")
		qArgs = append(qArgs, attendance.FormatDate(filter.To))
	}

	query := "SELECT " + attendanceColumns + " FROM attendance"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY date ASC, student_id ASC"

	var rows []attendanceRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(query), qArgs...); err != nil {
		if database.SQLState(err) == database.InvalidTextRepresentation {
			return []attendance.Record{}, nil
		}
		return nil, errors.Wrap(err, "querying attendance")
	}

	records := make([]attendance.Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.record())
	}
	return records, nil
}
