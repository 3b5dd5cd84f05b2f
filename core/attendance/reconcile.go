package attendance

import (
	"strings"
	"time"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/trezcool/rollcall/core/recognition"
	"github.com/trezcool/rollcall/core/roster"
)

// NameMismatchThreshold is the similarity under which a matched observation's name is reported.
const NameMismatchThreshold = 0.8

// Reconcile merges observations with the course roster into exactly one Record per roster entry,
// in roster order. A student is PRESENT iff their roll number was observed; the first observation
// of a roll number wins and later ones are reported as Duplicates. Observations that match no
// roster entry are reported as Unmatched and never reach the batch.
func Reconcile(courseID string, entries []roster.Entry, observations []recognition.Observation, date time.Time) (Reconciliation, error) {
	if courseID == "" {
		return Reconciliation{}, ErrEmptyCourse
	}
	if err := roster.CheckUnique(entries); err != nil {
		return Reconciliation{}, err
	}

	rec := Reconciliation{
		Records:        make([]Record, 0, len(entries)),
		Matched:        make([]recognition.Observation, 0),
		Unmatched:      make([]recognition.Observation, 0),
		Duplicates:     make([]recognition.Observation, 0),
		NameMismatches: make([]NameMismatch, 0),
	}

	enrolled := make(map[string]roster.Entry, len(entries))
	for _, e := range entries {
		enrolled[e.RollNumber] = e
	}

	seen := make(map[string]recognition.Observation, len(observations))
	for _, o := range observations {
		roll := strings.TrimSpace(o.RollNumber)
		if _, dup := seen[roll]; dup {
			rec.Duplicates = append(rec.Duplicates, o)
			continue
		}
		seen[roll] = o

		entry, ok := enrolled[roll]
		if !ok {
			rec.Unmatched = append(rec.Unmatched, o)
			continue
		}
		rec.Matched = append(rec.Matched, o)
		if ratio := NameSimilarity(o.DisplayName, entry.DisplayName); ratio < NameMismatchThreshold {
			rec.NameMismatches = append(rec.NameMismatches, NameMismatch{
				RollNumber:   roll,
				ObservedName: o.DisplayName,
				RosterName:   entry.DisplayName,
				Similarity:   round2(ratio),
			})
		}
	}

	day := NormalizeDate(date)
	for _, e := range entries {
		status := StatusAbsent
		if _, ok := seen[e.RollNumber]; ok {
			status = StatusPresent
		}
		rec.Records = append(rec.Records, Record{
			StudentID: e.StudentID,
			CourseID:  courseID,
			Date:      day,
			Status:    status,
		})
	}
	return rec, nil
}

// NameSimilarity returns a case-insensitive similarity ratio in [0,1] between two display names.
func NameSimilarity(a, b string) float64 {
	a = strings.ToLower(strings.Join(strings.Fields(a), " "))
	b = strings.ToLower(strings.Join(strings.Fields(b), " "))
	if a == b {
		return 1
	}
	return difflib.NewMatcher(strings.Split(a, ""), strings.Split(b, "")).Ratio()
}
