// Package evaluation converts a finished transcript into a scored
// performance record, with a deterministic fallback when the generation
// backend fails.
package evaluation

// Rating is a qualitative grade for one criterion.
type Rating string

const (
	RatingExcellent   Rating = "Excellent"
	RatingVeryGood    Rating = "Very Good"
	RatingGood        Rating = "Good"
	RatingFair        Rating = "Fair"
	RatingPoor        Rating = "Poor"
	RatingNotAssessed Rating = "Not Assessed"
)

// Ordinal maps a rating onto the comparison scale used by retake
// improvement analytics.
func (r Rating) Ordinal() int {
	switch r {
	case RatingExcellent:
		return 5
	case RatingVeryGood:
		return 4
	case RatingGood:
		return 3
	case RatingFair:
		return 2
	case RatingPoor:
		return 1
	default:
		return 0
	}
}

// Label is the overall performance classification.
type Label string

const (
	LabelExcellent Label = "Excellent"
	LabelVeryGood  Label = "Very Good"
	LabelGood      Label = "Good"
	LabelFair      Label = "Fair"
	LabelPoor      Label = "Poor"
)

// LabelForScore maps an overall score onto its label. A nil score
// (evaluation could not produce a number) grades Fair.
func LabelForScore(score *int) Label {
	if score == nil {
		return LabelFair
	}
	switch {
	case *score >= 85:
		return LabelExcellent
	case *score >= 75:
		return LabelVeryGood
	case *score >= 65:
		return LabelGood
	case *score >= 50:
		return LabelFair
	default:
		return LabelPoor
	}
}

// DiagnosisAccuracy classifies whether the trainee reached the hidden
// diagnosis.
type DiagnosisAccuracy string

const (
	DiagnosisReached          DiagnosisAccuracy = "Reached"
	DiagnosisPartiallyReached DiagnosisAccuracy = "Partially Reached"
	DiagnosisMissed           DiagnosisAccuracy = "Missed"
	DiagnosisUndetermined     DiagnosisAccuracy = "Undetermined"
)

// Criterion names, used as improvement-area labels in retake analytics.
const (
	CriterionHistoryTaking         = "history taking"
	CriterionRiskAssessment        = "risk factor assessment"
	CriterionDifferentialReasoning = "differential diagnosis questioning"
	CriterionCommunication         = "communication and empathy"
	CriterionClinicalUrgency       = "clinical urgency"
)

// Metrics is the parsed, structured form of an evaluation.
type Metrics struct {
	HistoryTaking         Rating
	RiskAssessment        Rating
	DifferentialReasoning Rating
	Communication         Rating
	ClinicalUrgency       Rating

	// OverallScore is 0-100 or nil when the evaluation text carried no
	// parseable score.
	OverallScore *int

	Label             Label
	DiagnosisAccuracy DiagnosisAccuracy
	Summary           string
}

// Result is a completed evaluation: the raw text plus parsed metrics.
// Fallback results are shaped identically to real ones.
type Result struct {
	Text    string
	Metrics Metrics
}
