package evaluation

import (
	"fmt"
	"strings"

	"github.com/oslerlabs/simcore/internal/simcase"
	"github.com/oslerlabs/simcore/internal/store"
)

const genericSystemPrompt = `You are an experienced clinical educator evaluating a trainee's performance in a simulated patient encounter. You grade strictly but fairly, citing specific moments from the transcript.`

const nursingSystemPrompt = `You are an experienced nursing educator evaluating a trainee's performance in a simulated patient encounter. You assess the trainee's use of the nursing process: assessment, diagnosis, planning, intervention, and evaluation. You grade strictly but fairly, citing specific moments from the transcript.`

// outputLayout is the fixed textual layout both rubrics must produce.
// The parser depends on these exact field labels.
const outputLayout = `Respond in EXACTLY this layout, one field per line, nothing before the first field:

HISTORY TAKING: <Excellent | Very Good | Good | Fair | Poor>
RISK FACTOR ASSESSMENT: <Excellent | Very Good | Good | Fair | Poor>
DIFFERENTIAL DIAGNOSIS QUESTIONING: <Excellent | Very Good | Good | Fair | Poor>
COMMUNICATION AND EMPATHY: <Excellent | Very Good | Good | Fair | Poor>
CLINICAL URGENCY: <Excellent | Very Good | Good | Fair | Poor>
OVERALL SCORE: <integer 0-100>
DIAGNOSIS ACCURACY: <Reached | Partially Reached | Missed | Undetermined>
SUMMARY: <3-6 sentences on the trainee's performance, naming what was done well and what was missed>`

func buildEvalMessage(c *simcase.Case, transcript []store.TranscriptEntry) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("Case: %s\n", c.Title))
	b.WriteString(fmt.Sprintf("Correct diagnosis: %s\n", c.Dossier.HiddenDiagnosis))
	if c.Dossier.ChiefComplaint != "" {
		b.WriteString(fmt.Sprintf("Chief complaint: %s\n", c.Dossier.ChiefComplaint))
	}

	if c.HasNursingData() {
		b.WriteString("\nExpected nursing diagnoses:\n")
		for _, dx := range c.Dossier.Nursing.Diagnoses {
			b.WriteString(fmt.Sprintf("- %s\n", dx))
		}
		if len(c.Dossier.Nursing.Interventions) > 0 {
			b.WriteString("Expected interventions:\n")
			for _, iv := range c.Dossier.Nursing.Interventions {
				b.WriteString(fmt.Sprintf("- %s\n", iv))
			}
		}
	}

	if len(c.EvaluationCriteria) > 0 {
		b.WriteString("\nCase-specific criteria:\n")
		for _, crit := range c.EvaluationCriteria {
			b.WriteString(fmt.Sprintf("- %s\n", crit))
		}
	}

	b.WriteString("\nTranscript:\n")
	b.WriteString(renderTranscript(transcript))

	b.WriteString("\nEvaluate the trainee on: history taking, risk factor assessment, differential diagnosis questioning, communication and empathy, and clinical urgency.\n\n")
	b.WriteString(outputLayout)

	return b.String()
}

// renderTranscript flattens the transcript for the evaluator. Action
// results are included so structured work counts toward the grade.
func renderTranscript(transcript []store.TranscriptEntry) string {
	var b strings.Builder
	for _, e := range transcript {
		switch e.Role {
		case store.RoleClinician:
			b.WriteString(fmt.Sprintf("Clinician: %s\n", e.Content))
		case store.RolePatient:
			b.WriteString(fmt.Sprintf("Patient: %s\n", e.Content))
		case store.RoleSystem:
			b.WriteString(fmt.Sprintf("[system] %s\n", e.Content))
		}
	}
	return b.String()
}
