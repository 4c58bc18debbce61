package evaluation

import (
	"regexp"
	"strconv"
	"strings"
)

// Field line patterns for the fixed evaluation layout. Parsing is
// tolerant: a missing or garbled field defaults rather than failing.
var (
	reHistory       = fieldPattern("HISTORY TAKING")
	reRisk          = fieldPattern("RISK FACTOR ASSESSMENT")
	reDifferential  = fieldPattern("DIFFERENTIAL DIAGNOSIS QUESTIONING")
	reCommunication = fieldPattern("COMMUNICATION AND EMPATHY")
	reUrgency       = fieldPattern("CLINICAL URGENCY")
	reScore         = fieldPattern("OVERALL SCORE")
	reAccuracy      = fieldPattern("DIAGNOSIS ACCURACY")
	reSummary       = regexp.MustCompile(`(?ims)^\s*SUMMARY:\s*(.+)$`)

	reInt = regexp.MustCompile(`\d+`)
)

func fieldPattern(label string) *regexp.Regexp {
	return regexp.MustCompile(`(?im)^\s*` + label + `:\s*(.+)$`)
}

// Parse extracts metrics from evaluation text. Unparseable ratings
// default to Not Assessed, an unparseable score to nil; the call never
// fails.
func Parse(text string) Metrics {
	m := Metrics{
		HistoryTaking:         parseRating(extract(reHistory, text)),
		RiskAssessment:        parseRating(extract(reRisk, text)),
		DifferentialReasoning: parseRating(extract(reDifferential, text)),
		Communication:         parseRating(extract(reCommunication, text)),
		ClinicalUrgency:       parseRating(extract(reUrgency, text)),
		OverallScore:          parseScore(extract(reScore, text)),
		Summary:               strings.TrimSpace(extract(reSummary, text)),
	}
	m.Label = LabelForScore(m.OverallScore)
	m.DiagnosisAccuracy = parseAccuracy(extract(reAccuracy, text), m.Summary)
	return m
}

func extract(re *regexp.Regexp, text string) string {
	match := re.FindStringSubmatch(text)
	if len(match) < 2 {
		return ""
	}
	return strings.TrimSpace(match[1])
}

// parseRating normalizes a rating token; anything unrecognized grades
// Not Assessed.
func parseRating(s string) Rating {
	normalized := strings.ToLower(strings.NewReplacer(" ", "", "-", "", "_", "").Replace(s))
	switch normalized {
	case "excellent":
		return RatingExcellent
	case "verygood":
		return RatingVeryGood
	case "good":
		return RatingGood
	case "fair":
		return RatingFair
	case "poor":
		return RatingPoor
	default:
		return RatingNotAssessed
	}
}

// parseScore pulls the first integer out of the score field and clamps
// it to [0, 100]. No integer means no score.
func parseScore(s string) *int {
	digits := reInt.FindString(s)
	if digits == "" {
		return nil
	}
	v, err := strconv.Atoi(digits)
	if err != nil {
		return nil
	}
	if v < 0 {
		v = 0
	}
	if v > 100 {
		v = 100
	}
	return &v
}

// parseAccuracy reads the accuracy field, falling back to keyword
// matching on the summary when the field is absent or unrecognized.
func parseAccuracy(field, summary string) DiagnosisAccuracy {
	if acc, ok := accuracyFromKeywords(field); ok {
		return acc
	}
	if acc, ok := accuracyFromKeywords(summary); ok {
		return acc
	}
	return DiagnosisUndetermined
}

func accuracyFromKeywords(text string) (DiagnosisAccuracy, bool) {
	lower := strings.ToLower(text)
	switch {
	case lower == "":
		return DiagnosisUndetermined, false
	case strings.Contains(lower, "partial"):
		return DiagnosisPartiallyReached, true
	case strings.Contains(lower, "missed"),
		strings.Contains(lower, "not reached"),
		strings.Contains(lower, "incorrect diagnosis"),
		strings.Contains(lower, "failed to identify"):
		return DiagnosisMissed, true
	case strings.Contains(lower, "reached"),
		strings.Contains(lower, "correctly identified"),
		strings.Contains(lower, "correct diagnosis"),
		strings.Contains(lower, "accurate"):
		return DiagnosisReached, true
	default:
		return DiagnosisUndetermined, false
	}
}
