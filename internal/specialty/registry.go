// Package specialty routes structured actions to per-specialty rule
// handlers. Handlers are pure functions of (dossier, action data); they
// never touch the session or the generation backend.
package specialty

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"

	"github.com/oslerlabs/simcore/internal/llm"
	"github.com/oslerlabs/simcore/internal/simcase"
)

// ErrUnknownAction is returned when no handler is registered for an
// action type within the case's specialty.
var ErrUnknownAction = errors.New("unknown action type")

// Action is the parsed structured-action envelope a clinician submits in
// place of a free-text question.
type Action struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// envelopeSchema validates the action envelope shape before dispatch.
var envelopeSchema = &llm.Schema{
	Name:        "specialty-action",
	Description: "Structured specialty action envelope",
	Definition: map[string]any{
		"type":     "object",
		"required": []any{"type"},
		"properties": map[string]any{
			"type": map[string]any{"type": "string", "minLength": 1},
			"data": map[string]any{"type": "object"},
		},
	},
}

// ParseAction reports whether question is a structured action envelope
// and returns the parsed action when it is. Anything that is not a JSON
// object with a string "type" field is ordinary dialogue.
func ParseAction(question string) (*Action, bool) {
	trimmed := strings.TrimSpace(question)
	if !strings.HasPrefix(trimmed, "{") {
		return nil, false
	}
	if err := llm.ValidateJSON(envelopeSchema, json.RawMessage(trimmed)); err != nil {
		return nil, false
	}
	var a Action
	if err := json.Unmarshal([]byte(trimmed), &a); err != nil {
		return nil, false
	}
	if a.Data == nil {
		a.Data = map[string]any{}
	}
	return &a, true
}

// Handler applies one deterministic specialty rule.
type Handler interface {
	// Type is the action-type tag this handler serves.
	Type() string

	// Handle computes a structured result from the case dossier and the
	// decoded action payload. It must not mutate the dossier.
	Handle(d *simcase.Dossier, data map[string]any) (any, error)
}

// Result is the dispatch envelope appended to the transcript as a
// system entry.
type Result struct {
	Action  string `json:"action"`
	Outcome any    `json:"result"`
}

// Registry maps specialties to their registered action handlers. It is
// built once at startup; adding an action type means registering one
// more Handler, never touching the engine.
type Registry struct {
	handlers map[simcase.Specialty]map[string]Handler
}

// NewRegistry builds the registry with all built-in handlers.
func NewRegistry() *Registry {
	r := &Registry{handlers: make(map[simcase.Specialty]map[string]Handler)}
	r.Register(simcase.SpecialtyLaboratory, laboratoryHandlers()...)
	r.Register(simcase.SpecialtyRadiology, radiologyHandlers()...)
	r.Register(simcase.SpecialtyPharmacy, pharmacyHandlers()...)
	return r
}

// Register adds handlers for a specialty, replacing any with the same type.
func (r *Registry) Register(sp simcase.Specialty, hs ...Handler) {
	m := r.handlers[sp]
	if m == nil {
		m = make(map[string]Handler)
		r.handlers[sp] = m
	}
	for _, h := range hs {
		m[h.Type()] = h
	}
}

// HasActions reports whether a specialty has any registered handlers.
func (r *Registry) HasActions(sp simcase.Specialty) bool {
	return len(r.handlers[sp]) > 0
}

// Dispatch routes an action to its handler and returns the serialized
// result envelope.
func (r *Registry) Dispatch(c *simcase.Case, a *Action) (json.RawMessage, error) {
	h, ok := r.handlers[c.Specialty][a.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, a.Type)
	}

	outcome, err := h.Handle(&c.Dossier, a.Data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", a.Type, err)
	}

	raw, err := json.Marshal(Result{Action: a.Type, Outcome: outcome})
	if err != nil {
		return nil, fmt.Errorf("marshal %s result: %w", a.Type, err)
	}
	return raw, nil
}

// decodeParams maps the loosely typed action payload onto a handler's
// params struct.
func decodeParams(data map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(data); err != nil {
		return fmt.Errorf("decode action data: %w", err)
	}
	return nil
}
