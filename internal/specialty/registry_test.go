package specialty

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oslerlabs/simcore/internal/simcase"
)

func TestParseAction(t *testing.T) {
	tests := []struct {
		name     string
		question string
		wantOK   bool
		wantType string
	}{
		{"plain dialogue", "When did the pain start?", false, ""},
		{"valid envelope", `{"type": "test_execution", "data": {"test": "Glucose", "result": 250}}`, true, "test_execution"},
		{"envelope without data", `{"type": "report_generation"}`, true, "report_generation"},
		{"leading whitespace", `   {"type": "dose_verification", "data": {}}`, true, "dose_verification"},
		{"missing type field", `{"data": {"test": "Glucose"}}`, false, ""},
		{"empty type", `{"type": ""}`, false, ""},
		{"type not a string", `{"type": 42}`, false, ""},
		{"broken json", `{"type": "x"`, false, ""},
		{"json array", `[1, 2, 3]`, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, ok := ParseAction(tt.question)
			require.Equal(t, tt.wantOK, ok)
			if !ok {
				return
			}
			require.Equal(t, tt.wantType, a.Type)
			require.NotNil(t, a.Data)
		})
	}
}

func TestRegistryHasActions(t *testing.T) {
	r := NewRegistry()
	require.True(t, r.HasActions(simcase.SpecialtyLaboratory))
	require.True(t, r.HasActions(simcase.SpecialtyRadiology))
	require.True(t, r.HasActions(simcase.SpecialtyPharmacy))
	require.False(t, r.HasActions(simcase.SpecialtyGeneral))
}

func TestDispatchUnknownAction(t *testing.T) {
	r := NewRegistry()
	c := &simcase.Case{ID: "c1", Specialty: simcase.SpecialtyLaboratory}

	_, err := r.Dispatch(c, &Action{Type: "order_pizza", Data: map[string]any{}})
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrUnknownAction))

	// Pharmacy actions are not visible from a laboratory case.
	_, err = r.Dispatch(c, &Action{Type: ActionDoseVerification, Data: map[string]any{}})
	require.True(t, errors.Is(err, ErrUnknownAction))
}

func TestDispatchEnvelope(t *testing.T) {
	r := NewRegistry()
	c := &simcase.Case{
		ID:        "c1",
		Specialty: simcase.SpecialtyLaboratory,
		Dossier: simcase.Dossier{
			LabPanel: []simcase.LabReference{
				{Test: "Glucose", ReferenceRange: "70-100", Units: "mg/dL"},
			},
		},
	}

	raw, err := r.Dispatch(c, &Action{
		Type: ActionTestExecution,
		Data: map[string]any{"test": "Glucose", "result": 85},
	})
	require.NoError(t, err)

	var env struct {
		Action string          `json:"action"`
		Result json.RawMessage `json:"result"`
	}
	require.NoError(t, json.Unmarshal(raw, &env))
	require.Equal(t, ActionTestExecution, env.Action)
	require.NotEmpty(t, env.Result)
}
