package patient

import (
	"fmt"
	"strings"

	"github.com/oslerlabs/simcore/internal/llm"
	"github.com/oslerlabs/simcore/internal/simcase"
	"github.com/oslerlabs/simcore/internal/store"
)

// buildPersonaPrompt renders the case persona and dossier into the
// system prompt. The hidden diagnosis is given to the model so symptoms
// stay consistent, with an explicit instruction never to name it.
func buildPersonaPrompt(c *simcase.Case) string {
	var b strings.Builder

	if c.Persona.SpeaksFor != "" {
		b.WriteString(fmt.Sprintf("You are %s, speaking on behalf of the patient %s (%d, %s) during a clinical encounter.\n",
			c.Persona.SpeaksFor, c.Persona.Name, c.Persona.Age, c.Persona.Sex))
	} else {
		b.WriteString(fmt.Sprintf("You are %s, a %d-year-old %s patient in a clinical encounter.\n",
			c.Persona.Name, c.Persona.Age, c.Persona.Sex))
	}

	if c.Persona.Background != "" {
		b.WriteString(fmt.Sprintf("Background: %s\n", c.Persona.Background))
	}
	if c.Persona.Tone != "" {
		b.WriteString(fmt.Sprintf("Tone: %s\n", c.Persona.Tone))
	}

	b.WriteString("\nClinical picture (for your consistency only):\n")
	if c.Dossier.ChiefComplaint != "" {
		b.WriteString(fmt.Sprintf("Chief complaint: %s\n", c.Dossier.ChiefComplaint))
	}
	if c.Dossier.History != "" {
		b.WriteString(fmt.Sprintf("History: %s\n", c.Dossier.History))
	}
	if len(c.Dossier.PatientFactors) > 0 {
		b.WriteString(fmt.Sprintf("Relevant factors: %s\n", strings.Join(c.Dossier.PatientFactors, ", ")))
	}
	if c.Dossier.HiddenDiagnosis != "" {
		b.WriteString(fmt.Sprintf("Underlying condition: %s\n", c.Dossier.HiddenDiagnosis))
	}

	b.WriteString(`
Instructions:
- Answer only what the clinician asks. Do not volunteer the underlying condition or use medical terminology a layperson would not know.
- Never name or confirm the underlying condition, even if asked directly. Describe symptoms and how they feel instead.
- Stay in character for the entire encounter. Keep replies to a few sentences.
- If asked something the patient would not know, say so naturally.`)

	return b.String()
}

// buildDialogue converts the transcript into the provider conversation,
// oldest first, with the new question appended. System entries (action
// results) are not part of the dialogue.
func buildDialogue(transcript []store.TranscriptEntry, question string) []llm.Message {
	var msgs []llm.Message
	for _, e := range transcript {
		switch e.Role {
		case store.RolePatient:
			msgs = append(msgs, llm.Message{Role: llm.RoleAssistant, Content: e.Content})
		case store.RoleClinician:
			msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: e.Content})
		}
	}
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: question})
	return msgs
}
