package gormrepos

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/trezcool/rollcall/core/attendance"
	"github.com/trezcool/rollcall/storage/database"
)

type attendanceModel struct {
	ID        string         `gorm:"column:id;type:uuid;primaryKey"`
	StudentID string         `gorm:"column:student_id;type:uuid;not null"`
	CourseID  string         `gorm:"column:course_id;type:uuid;not null"`
	Date      datatypes.Date `gorm:"column:date;not null"`
	Status    string         `gorm:"column:status;not null"`
	CreatedAt time.Time      `gorm:"column:created_at"`
	UpdatedAt time.Time      `gorm:"column:updated_at"`
}

func (attendanceModel) TableName() string { return "attendance" }

func toAttendanceModel(rec attendance.Record) attendanceModel {
	id := rec.ID
	if id == "" {
		id = uuid.New().String()
	}
	return attendanceModel{
		ID:        id,
		StudentID: rec.StudentID,
		CourseID:  rec.CourseID,
		Date:      datatypes.Date(attendance.NormalizeDate(rec.Date)),
		Status:    string(rec.Status),
		CreatedAt: rec.CreatedAt.UTC(),
		UpdatedAt: rec.UpdatedAt.UTC(),
	}
}

func (m attendanceModel) record() attendance.Record {
	return attendance.Record{
		ID:        m.ID,
		StudentID: m.StudentID,
		CourseID:  m.CourseID,
		Date:      attendance.NormalizeDate(time.Time(m.Date)),
		Status:    attendance.Status(m.Status),
		CreatedAt: m.CreatedAt.UTC(),
		UpdatedAt: m.UpdatedAt.UTC(),
	}
}

var attendanceKey = []clause.Column{{Name: "student_id"}, {Name: "course_id"}, {Name: "date"}}

type attendanceRepository struct {
	db *gorm.DB
}

var _ attendance.Repository = (*attendanceRepository)(nil) // interface compliance check

func NewAttendanceRepository(db *gorm.DB) *attendanceRepository {
	return &attendanceRepository{db: db}
}

// eachInTx runs fn for every record in one transaction, each behind its own savepoint.
func (repo attendanceRepository) eachInTx(
	ctx context.Context,
	records []attendance.Record,
	fn func(tx *gorm.DB, m *attendanceModel) (skipped bool, err error),
) (attendance.BatchResult, error) {
	res := attendance.NewBatchResult(len(records))
	if len(records) == 0 {
		return res, nil
	}

	err := repo.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, rec := range records {
			sp := fmt.Sprintf("attendance_%d", i)
			if err := tx.SavePoint(sp).Error; err != nil {
				return errors.Wrap(err, "creating savepoint")
			}

			m := toAttendanceModel(rec)
			skipped, err := fn(tx, &m)
			switch {
			case err != nil:
				if rbErr := tx.RollbackTo(sp).Error; rbErr != nil {
					return errors.Wrap(rbErr, "rolling back savepoint")
				}
				res.Failed = append(res.Failed, attendance.FailedRecord{Record: rec, Err: database.TranslateAttendanceError(err)})
			case skipped:
				rec.Date = attendance.NormalizeDate(rec.Date)
				res.Skipped = append(res.Skipped, rec)
			default:
				res.Succeeded = append(res.Succeeded, m.record())
			}
		}
		return nil
	})
	if err != nil {
		return attendance.NewBatchResult(0), errors.Wrap(err, "writing attendance")
	}
	return res, nil
}

func (repo attendanceRepository) UpsertMany(ctx context.Context, records []attendance.Record) (attendance.BatchResult, error) {
	return repo.eachInTx(ctx, records, func(tx *gorm.DB, m *attendanceModel) (bool, error) {
		err := tx.Clauses(
			clause.OnConflict{Columns: attendanceKey, DoUpdates: clause.AssignmentColumns([]string{"status", "updated_at"})},
			clause.Returning{},
		).Create(m).Error
		return false, err
	})
}

func (repo attendanceRepository) InsertMany(ctx context.Context, records []attendance.Record, skipDuplicates bool) (attendance.BatchResult, error) {
	return repo.eachInTx(ctx, records, func(tx *gorm.DB, m *attendanceModel) (bool, error) {
		if !skipDuplicates {
			return false, tx.Create(m).Error
		}
		result := tx.Clauses(clause.OnConflict{Columns: attendanceKey, DoNothing: true}).Create(m)
		return result.Error == nil && result.RowsAffected == 0, result.Error
	})
}

func (repo attendanceRepository) UpdateOne(ctx context.Context, studentID, courseID string, date time.Time, status attendance.Status) (attendance.Record, error) {
	var m attendanceModel
	result := repo.db.WithContext(ctx).
		Model(&m).
		Clauses(clause.Returning{}).
		Where("student_id = ? AND course_id = ? AND date = ?", studentID, courseID, attendance.FormatDate(date)).
		Updates(map[string]interface{}{"status": string(status), "updated_at": time.Now().UTC()})
	if result.Error != nil {
		if database.SQLState(result.Error) == database.InvalidTextRepresentation {
			return attendance.Record{}, attendance.ErrNotFound
		}
		return attendance.Record{}, errors.Wrap(database.TranslateAttendanceError(result.Error), "updating attendance")
	}
	if result.RowsAffected == 0 {
		return attendance.Record{}, attendance.ErrNotFound
	}
	return m.record(), nil
}

func (repo attendanceRepository) QueryRecords(ctx context.Context, filter attendance.QueryFilter) ([]attendance.Record, error) {
	filter = filter.Normalize()

	q := repo.db.WithContext(ctx).Model(&attendanceModel{})
	if filter.CourseID != "" {
		q = q.Where("course_id = ?", filter.CourseID)
	}
	if filter.StudentID != "" {
		q = q.Where("student_id = ?", filter.StudentID)
	}
	if !filter.From.IsZero() {
		q = q.Where("date >= ?", attendance.FormatDate(filter.From))
	}
	if !filter.To.IsZero() {
		q = q.Where("date < ?", attendance.FormatDate(filter.To))
	}

	var models []attendanceModel
	if err := q.Order("date ASC, student_id ASC").Find(&models).Error; err != nil {
		if database.SQLState(err) == database.InvalidTextRepresentation {
			return []attendance.Record{}, nil
		}
		return nil, errors.Wrap(err, "querying attendance")
	}

	records := make([]attendance.Record, 0, len(models))
	for _, m := range models {
		records = append(records, m.record())
	}
	return records, nil
}
