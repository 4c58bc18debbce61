package evaluation

// FallbackText is the fixed evaluation recorded when the generation
// backend fails. Termination always succeeds once reached; a
// permanently-active session is worse than an under-informative
// evaluation.
const FallbackText = `The automated evaluation service was unavailable at the end of this session. A provisional assessment has been recorded.

HISTORY TAKING: Fair
RISK FACTOR ASSESSMENT: Fair
DIFFERENTIAL DIAGNOSIS QUESTIONING: Fair
COMMUNICATION AND EMPATHY: Fair
CLINICAL URGENCY: Fair
OVERALL SCORE: Not Available
DIAGNOSIS ACCURACY: Undetermined
SUMMARY: The session transcript was recorded, but an automated evaluation could not be generated. Ratings default to Fair pending manual review.`

// Fallback returns the fixed fallback result: all ratings Fair, no
// overall score, diagnosis accuracy undetermined.
func Fallback() *Result {
	return &Result{
		Text: FallbackText,
		Metrics: Metrics{
			HistoryTaking:         RatingFair,
			RiskAssessment:        RatingFair,
			DifferentialReasoning: RatingFair,
			Communication:         RatingFair,
			ClinicalUrgency:       RatingFair,
			OverallScore:          nil,
			Label:                 LabelFair,
			DiagnosisAccuracy:     DiagnosisUndetermined,
			Summary:               "The session transcript was recorded, but an automated evaluation could not be generated. Ratings default to Fair pending manual review.",
		},
	}
}
