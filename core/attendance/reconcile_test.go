package attendance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/rollcall/core/recognition"
	"github.com/trezcool/rollcall/core/roster"
)

var (
	day = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	alice = roster.Entry{StudentID: "s-alice", RollNumber: "101", DisplayName: "Alice"}
	bob   = roster.Entry{StudentID: "s-bob", RollNumber: "102", DisplayName: "Bob"}
	carol = roster.Entry{StudentID: "s-carol", RollNumber: "103", DisplayName: "Carol"}
)

func observation(roll, name string) recognition.Observation {
	return recognition.Observation{RollNumber: roll, DisplayName: name}
}

func statuses(recs []Record) map[string]Status {
	m := make(map[string]Status, len(recs))
	for _, r := range recs {
		m[r.StudentID] = r.Status
	}
	return m
}

func TestReconcile_example(t *testing.T) {
	parsed := recognition.ParseObservations("face_1: 101-Alice (Similarity: 0.91)\nface_2: unknown\nface_3: 102-Bob (Similarity: 0.40)")

	rec, err := Reconcile("c-1", []roster.Entry{alice, bob, carol}, parsed.Observations, day)
	require.NoError(t, err)

	want := []Record{
		{StudentID: "s-alice", CourseID: "c-1", Date: day, Status: StatusPresent},
		{StudentID: "s-bob", CourseID: "c-1", Date: day, Status: StatusPresent},
		{StudentID: "s-carol", CourseID: "c-1", Date: day, Status: StatusAbsent},
	}
	assert.Equal(t, want, rec.Records)
	assert.Len(t, rec.Matched, 2)
	assert.Empty(t, rec.Unmatched)
	assert.Empty(t, rec.Duplicates)
	assert.Empty(t, rec.NameMismatches)
}

func TestReconcile(t *testing.T) {
	entries := []roster.Entry{alice, bob, carol}

	tests := []struct {
		name           string
		entries        []roster.Entry
		obs            []recognition.Observation
		want           map[string]Status
		wantUnmatched  int
		wantDuplicates int
		wantMismatches int
	}{
		{
			name:    "no observations, everyone absent",
			entries: entries,
			want:    map[string]Status{"s-alice": StatusAbsent, "s-bob": StatusAbsent, "s-carol": StatusAbsent},
		},
		{
			name: "empty roster, empty batch",
			obs:  []recognition.Observation{observation("101", "Alice")},
			want: map[string]Status{},
			// every observation is unmatched
			wantUnmatched: 1,
		},
		{
			name:           "duplicate detections count once",
			entries:        entries,
			obs:            []recognition.Observation{observation("103", "Carol"), observation("103", "Carol"), observation("103", "Carol")},
			want:           map[string]Status{"s-alice": StatusAbsent, "s-bob": StatusAbsent, "s-carol": StatusPresent},
			wantDuplicates: 2,
		},
		{
			name:          "unmatched observation does not alter the batch",
			entries:       entries,
			obs:           []recognition.Observation{observation("999", "Mallory"), observation("101", "Alice")},
			want:          map[string]Status{"s-alice": StatusPresent, "s-bob": StatusAbsent, "s-carol": StatusAbsent},
			wantUnmatched: 1,
		},
		{
			name:           "name mismatch is only a diagnostic",
			entries:        entries,
			obs:            []recognition.Observation{observation("102", "Zoltan")},
			want:           map[string]Status{"s-alice": StatusAbsent, "s-bob": StatusPresent, "s-carol": StatusAbsent},
			wantMismatches: 1,
		},
		{
			name:    "name case and spacing are ignored",
			entries: entries,
			obs:     []recognition.Observation{observation("101", "  alice ")},
			want:    map[string]Status{"s-alice": StatusPresent, "s-bob": StatusAbsent, "s-carol": StatusAbsent},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := Reconcile("c-1", tt.entries, tt.obs, day)
			require.NoError(t, err)

			assert.Len(t, rec.Records, len(tt.entries))
			assert.Equal(t, tt.want, statuses(rec.Records))
			assert.Len(t, rec.Unmatched, tt.wantUnmatched)
			assert.Len(t, rec.Duplicates, tt.wantDuplicates)
			assert.Len(t, rec.NameMismatches, tt.wantMismatches)
		})
	}
}

func TestReconcile_duplicateIdempotence(t *testing.T) {
	entries := []roster.Entry{alice, bob, carol}

	once, err := Reconcile("c-1", entries, []recognition.Observation{observation("102", "Bob")}, day)
	require.NoError(t, err)
	twice, err := Reconcile("c-1", entries, []recognition.Observation{observation("102", "Bob"), observation("102", "Bobby")}, day)
	require.NoError(t, err)

	assert.Equal(t, once.Records, twice.Records)
	// first occurrence wins
	assert.Equal(t, "Bob", twice.Matched[0].DisplayName)
	assert.Equal(t, "Bobby", twice.Duplicates[0].DisplayName)
}

func TestReconcile_normalizesDate(t *testing.T) {
	loc := time.FixedZone("EAT", 3*60*60)
	local := time.Date(2025, 5, 30, 23, 30, 0, 0, loc)

	rec, err := Reconcile("c-1", []roster.Entry{alice}, nil, local)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 5, 30, 0, 0, 0, 0, time.UTC), rec.Records[0].Date)
}

func TestReconcile_errors(t *testing.T) {
	t.Run("course is required", func(t *testing.T) {
		_, err := Reconcile("", []roster.Entry{alice}, nil, day)
		assert.ErrorIs(t, err, ErrEmptyCourse)
	})
	t.Run("roster must have unique roll numbers", func(t *testing.T) {
		clone := alice
		clone.StudentID = "s-clone"
		_, err := Reconcile("c-1", []roster.Entry{alice, clone}, nil, day)
		assert.ErrorIs(t, err, roster.ErrDuplicateRollNumber)
	})
}

func TestNameSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, NameSimilarity("Mary Jane", " mary   jane "))
	assert.Greater(t, NameSimilarity("Jonathan", "Jonathon"), NameMismatchThreshold)
	assert.Less(t, NameSimilarity("Bob", "Zoltan"), NameMismatchThreshold)
}
