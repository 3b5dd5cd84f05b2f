package recognition

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/volatiletech/null/v8"
)

// ConfidencePolicy decides what happens to confidences outside [0,1].
type ConfidencePolicy string

const (
	ConfidenceKeep   ConfidencePolicy = "keep"
	ConfidenceClamp  ConfidencePolicy = "clamp"
	ConfidenceReject ConfidencePolicy = "reject"

	unknownSentinel = "unknown"
)

var (
	// [<index marker>:] <identity> [(Similarity: <float>)]
	lineRegex = regexp.MustCompile(
		`(?i)^\s*(?:[^:()]+?\s*:\s*)?(.+?)\s*(?:\(\s*(?:similarity|confidence|score)\s*[:=]\s*([-+]?(?:\d+\.?\d*|\.\d+)(?:e[-+]?\d+)?)\s*\))?\s*$`)

	// a confidence annotation whose value did not parse, eg. "(Similarity: abc)"
	badConfidenceRegex = regexp.MustCompile(`(?i)\(\s*(?:similarity|confidence|score)\b[^()]*\)?\s*$`)

	// <digits>-<display name>
	identityRegex = regexp.MustCompile(`^(\d+)-(.*)$`)
)

func ParsePolicy(s string) (ConfidencePolicy, error) {
	switch p := ConfidencePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case ConfidenceKeep, ConfidenceClamp, ConfidenceReject:
		return p, nil
	case "":
		return ConfidenceClamp, nil
	default:
		return "", fmt.Errorf("unknown confidence policy %q", s)
	}
}

// LineParser parses one detection per line.
type LineParser struct {
	Policy ConfidencePolicy
}

var _ Parser = (*LineParser)(nil) // interface compliance check

func NewLineParser(policy ConfidencePolicy) *LineParser {
	return &LineParser{Policy: policy}
}

// ParseObservations parses raw classifier output with the default (clamping) grammar.
func ParseObservations(raw string) ParseResult {
	return NewLineParser(ConfidenceClamp).Parse(raw)
}

// Parse never fails: lines that cannot be mapped to a complete observation are skipped.
// Output order follows input order.
func (p *LineParser) Parse(raw string) ParseResult {
	res := ParseResult{Observations: make([]Observation, 0)}

	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		obs, reason, ok := p.parseLine(line)
		if !ok {
			res.Skipped = append(res.Skipped, SkippedLine{Line: i + 1, Text: line, Reason: reason})
			continue
		}
		res.Observations = append(res.Observations, obs)
	}
	return res
}

func (p *LineParser) parseLine(line string) (Observation, SkipReason, bool) {
	m := lineRegex.FindStringSubmatch(line)
	if m == nil {
		return Observation{}, SkipUnmatchedFormat, false
	}
	identity, rawConf := strings.TrimSpace(m[1]), m[2]

	if strings.EqualFold(identity, unknownSentinel) {
		return Observation{}, SkipUnknown, false
	}
	if rawConf == "" && badConfidenceRegex.MatchString(identity) {
		return Observation{}, SkipUnmatchedFormat, false
	}

	idm := identityRegex.FindStringSubmatch(identity)
	if idm == nil {
		return Observation{}, SkipBadIdentity, false
	}
	name := strings.TrimSpace(idm[2])
	if name == "" {
		return Observation{}, SkipBadIdentity, false
	}

	obs := Observation{RollNumber: idm[1], DisplayName: name}
	if rawConf != "" {
		conf, err := strconv.ParseFloat(rawConf, 64)
		if err != nil {
			return Observation{}, SkipUnmatchedFormat, false
		}
		if conf < 0 || conf > 1 {
			switch p.Policy {
			case ConfidenceReject:
				return Observation{}, SkipConfidenceOutOfRange, false
			case ConfidenceKeep:
			default:
				conf = clamp(conf)
			}
		}
		obs.Confidence = null.Float64From(conf)
	}
	return obs, "", true
}

func clamp(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
