package dummydb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/rollcall/core/attendance"
)

type attendanceRepository struct {
	db *DB
}

var _ attendance.Repository = (*attendanceRepository)(nil) // interface compliance check

func NewAttendanceRepository(db *DB) attendance.Repository {
	return &attendanceRepository{db: db}
}

// checkRefs mimics the foreign keys of the attendance table.
func (repo *attendanceRepository) checkRefs(rec attendance.Record) error {
	if _, ok := repo.db.students[rec.StudentID]; !ok {
		return attendance.ErrReferenceViolation
	}
	if _, ok := repo.db.courses[rec.CourseID]; !ok {
		return attendance.ErrReferenceViolation
	}
	return nil
}

func (repo *attendanceRepository) UpsertMany(_ context.Context, records []attendance.Record) (attendance.BatchResult, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	res := attendance.NewBatchResult(len(records))
	for _, rec := range records {
		rec.Date = attendance.NormalizeDate(rec.Date)
		if err := repo.checkRefs(rec); err != nil {
			res.Failed = append(res.Failed, attendance.FailedRecord{Record: rec, Err: err})
			continue
		}
		if existing, ok := repo.db.attendance[rec.Key()]; ok {
			existing.Status = rec.Status
			existing.UpdatedAt = rec.UpdatedAt
			res.Succeeded = append(res.Succeeded, *existing)
			continue
		}
		rec.ID = uuid.New().String()
		stored := rec
		repo.db.attendance[stored.Key()] = &stored
		res.Succeeded = append(res.Succeeded, rec)
	}
	return res, nil
}

func (repo *attendanceRepository) InsertMany(_ context.Context, records []attendance.Record, skipDuplicates bool) (attendance.BatchResult, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	res := attendance.NewBatchResult(len(records))
	for _, rec := range records {
		rec.Date = attendance.NormalizeDate(rec.Date)
		if err := repo.checkRefs(rec); err != nil {
			res.Failed = append(res.Failed, attendance.FailedRecord{Record: rec, Err: err})
			continue
		}
		if _, ok := repo.db.attendance[rec.Key()]; ok {
			if skipDuplicates {
				res.Skipped = append(res.Skipped, rec)
			} else {
				res.Failed = append(res.Failed, attendance.FailedRecord{Record: rec, Err: attendance.ErrPersistenceConflict})
			}
			continue
		}
		rec.ID = uuid.New().String()
		stored := rec
		repo.db.attendance[stored.Key()] = &stored
		res.Succeeded = append(res.Succeeded, rec)
	}
	return res, nil
}

func (repo *attendanceRepository) UpdateOne(_ context.Context, studentID, courseID string, date time.Time, status attendance.Status) (attendance.Record, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	key := attendance.Record{StudentID: studentID, CourseID: courseID, Date: date}.Key()
	rec, ok := repo.db.attendance[key]
	if !ok {
		return attendance.Record{}, attendance.ErrNotFound
	}
	rec.Status = status
	rec.UpdatedAt = time.Now().UTC()
	return *rec, nil
}

func (repo *attendanceRepository) QueryRecords(_ context.Context, filter attendance.QueryFilter) ([]attendance.Record, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	filter = filter.Normalize()
	records := make([]attendance.Record, 0)
	for _, rec := range repo.db.attendance {
		if filter.Match(*rec) {
			records = append(records, *rec)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		if !records[i].Date.Equal(records[j].Date) {
			return records[i].Date.Before(records[j].Date)
		}
		return records[i].StudentID < records[j].StudentID
	})
	return records, nil
}
