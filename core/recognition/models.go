package recognition

import (
	"context"
	"io"

	"github.com/volatiletech/null/v8"
)

// Observation is a single face detection mapped to a roll number.
type Observation struct {
	RollNumber  string       `json:"roll_number"`
	DisplayName string       `json:"display_name"`
	Confidence  null.Float64 `json:"confidence"`
}

type SkipReason string

const (
	SkipUnknown              SkipReason = "unknown"
	SkipUnmatchedFormat      SkipReason = "unmatched_format"
	SkipBadIdentity          SkipReason = "bad_identity"
	SkipConfidenceOutOfRange SkipReason = "confidence_out_of_range"
)

// SkippedLine records a classifier output line that could not be mapped to an identity.
type SkippedLine struct {
	Line   int        `json:"line"` // 1-based
	Text   string     `json:"text"`
	Reason SkipReason `json:"reason"`
}

type ParseResult struct {
	Observations []Observation `json:"observations"`
	Skipped      []SkippedLine `json:"skipped"`
}

type (
	// Parser turns raw classifier output into observations.
	Parser interface {
		Parse(raw string) ParseResult
	}

	// Classifier is the external face-recognition service.
	Classifier interface {
		Recognize(ctx context.Context, image io.Reader, filename string) (string, error)
	}
)
