package attendance

import (
	"math"
	"sort"
	"time"
)

// ComputePercentage counts the records of studentID in courseID dated on or before asOf.
// Records of other students or courses are ignored, so callers may pass a whole course history.
func ComputePercentage(studentID, courseID string, records []Record, asOf time.Time) Summary {
	cutoff := NormalizeDate(asOf)
	sum := Summary{StudentID: studentID, CourseID: courseID, AsOf: cutoff}
	for _, r := range records {
		if r.StudentID != studentID || r.CourseID != courseID {
			continue
		}
		if NormalizeDate(r.Date).After(cutoff) {
			continue
		}
		sum.TotalClasses++
		if r.IsPresent() {
			sum.TotalPresent++
		}
	}
	sum.Percentage = percentage(sum.TotalPresent, sum.TotalClasses)
	return sum
}

// Summarize groups records by (student, course) and returns one Summary per group,
// ordered by course then student.
func Summarize(records []Record, asOf time.Time) []Summary {
	type group struct{ studentID, courseID string }

	groups := make(map[group][]Record)
	for _, r := range records {
		g := group{r.StudentID, r.CourseID}
		groups[g] = append(groups[g], r)
	}

	sums := make([]Summary, 0, len(groups))
	for g, recs := range groups {
		sums = append(sums, ComputePercentage(g.studentID, g.courseID, recs, asOf))
	}
	sort.Slice(sums, func(i, j int) bool {
		if sums[i].CourseID != sums[j].CourseID {
			return sums[i].CourseID < sums[j].CourseID
		}
		return sums[i].StudentID < sums[j].StudentID
	})
	return sums
}

func percentage(present, total int) float64 {
	if total == 0 {
		return 0
	}
	return round2(float64(present) * 100 / float64(total))
}

// round2 rounds half away from zero to two decimals.
func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
