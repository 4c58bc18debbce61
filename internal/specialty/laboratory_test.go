package specialty

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/oslerlabs/simcore/internal/simcase"
)

func labDossier() *simcase.Dossier {
	critLow := 50.0
	critHigh := 400.0
	return &simcase.Dossier{
		LabPanel: []simcase.LabReference{
			{
				Test:           "Glucose",
				Specimen:       "serum",
				Units:          "mg/dL",
				ReferenceRange: "70-100",
				CriticalLow:    &critLow,
				CriticalHigh:   &critHigh,
			},
			{Test: "Potassium", Specimen: "serum", Units: "mmol/L", ReferenceRange: "3.5-5.1"},
		},
	}
}

// decodeOutcome round-trips a handler outcome through JSON into the
// test's view of it, the same shape transcript consumers see.
func decodeOutcome(t *testing.T, outcome any, into any) {
	t.Helper()
	raw, err := json.Marshal(outcome)
	if err != nil {
		t.Fatalf("marshal outcome: %v", err)
	}
	if err := json.Unmarshal(raw, into); err != nil {
		t.Fatalf("unmarshal outcome: %v", err)
	}
}

func TestResultInterpretation(t *testing.T) {
	h := &ResultInterpretationHandler{}
	d := labDossier()

	tests := []struct {
		result   float64
		want     string
		critical bool
	}{
		{65, "Low", false},
		{85, "Normal", false},
		{105, "High", false},
		{45, "Critical Low", true},
		{450, "Critical High", true},
	}

	for _, tt := range tests {
		out, err := h.Handle(d, map[string]any{"test": "Glucose", "result": tt.result})
		if err != nil {
			t.Fatalf("Handle(%v): %v", tt.result, err)
		}
		var res struct {
			Interpretation string `json:"interpretation"`
			Critical       bool   `json:"critical"`
		}
		decodeOutcome(t, out, &res)
		if res.Interpretation != tt.want {
			t.Errorf("interpretation(%v) = %q, want %q", tt.result, res.Interpretation, tt.want)
		}
		if res.Critical != tt.critical {
			t.Errorf("critical(%v) = %v, want %v", tt.result, res.Critical, tt.critical)
		}
	}
}

func TestResultInterpretationUnknownTest(t *testing.T) {
	h := &ResultInterpretationHandler{}
	_, err := h.Handle(labDossier(), map[string]any{"test": "Troponin", "result": 1.0})
	if err == nil || !strings.Contains(err.Error(), "not in the case lab panel") {
		t.Fatalf("expected unknown-test error, got %v", err)
	}
}

func TestTestExecutionFlagsResult(t *testing.T) {
	h := &TestExecutionHandler{}
	out, err := h.Handle(labDossier(), map[string]any{"test": "potassium", "result": 5.9})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	var res struct {
		Test string `json:"test"`
		Flag string `json:"flag"`
	}
	decodeOutcome(t, out, &res)
	if res.Test != "Potassium" {
		t.Errorf("test resolved to %q, want case-insensitive match on Potassium", res.Test)
	}
	if res.Flag != "High" {
		t.Errorf("flag = %q, want High", res.Flag)
	}
}

func TestSpecimenReceipt(t *testing.T) {
	h := &SpecimenReceiptHandler{}
	d := labDossier()

	out, err := h.Handle(d, map[string]any{
		"test": "Glucose", "specimen": "serum", "labeled_correctly": true,
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	var ok struct {
		Accepted bool     `json:"accepted"`
		Issues   []string `json:"issues"`
	}
	decodeOutcome(t, out, &ok)
	if !ok.Accepted {
		t.Errorf("clean specimen rejected: %v", ok.Issues)
	}

	out, err = h.Handle(d, map[string]any{
		"test": "Glucose", "specimen": "urine", "labeled_correctly": false,
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	var bad struct {
		Accepted bool     `json:"accepted"`
		Issues   []string `json:"issues"`
	}
	decodeOutcome(t, out, &bad)
	if bad.Accepted || len(bad.Issues) != 2 {
		t.Errorf("bad specimen accepted: %+v", bad)
	}
}

func TestQualityControl(t *testing.T) {
	h := &QualityControlHandler{}

	out, err := h.Handle(nil, map[string]any{
		"test": "Glucose", "control_value": 101.0, "target_value": 100.0, "sd": 2.0,
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	var in struct {
		InControl bool   `json:"in_control"`
		Action    string `json:"action"`
	}
	decodeOutcome(t, out, &in)
	if !in.InControl {
		t.Errorf("0.5 SD deviation flagged out of control: %+v", in)
	}

	out, err = h.Handle(nil, map[string]any{
		"test": "Glucose", "control_value": 110.0, "target_value": 100.0, "sd": 2.0,
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	var outOf struct {
		InControl bool   `json:"in_control"`
		Action    string `json:"action"`
	}
	decodeOutcome(t, out, &outOf)
	if outOf.InControl {
		t.Errorf("5 SD deviation passed control: %+v", outOf)
	}
	if !strings.Contains(outOf.Action, "hold patient results") {
		t.Errorf("action = %q", outOf.Action)
	}

	if _, err := h.Handle(nil, map[string]any{"sd": 0}); err == nil {
		t.Error("expected zero SD to fail")
	}
}

func TestSafetyIncident(t *testing.T) {
	h := &SafetyIncidentHandler{}

	out, err := h.Handle(nil, map[string]any{
		"incident_type": "needlestick",
		"actions_taken": []string{"washed the wound", "reported to supervisor"},
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	var res struct {
		StepsMissed []string `json:"steps_missed"`
		Score       int      `json:"score"`
	}
	decodeOutcome(t, out, &res)
	if res.Score != 67 {
		t.Errorf("score = %d, want 67 (2 of 3 steps)", res.Score)
	}
	if len(res.StepsMissed) != 1 || res.StepsMissed[0] != "exposure assessment" {
		t.Errorf("steps missed = %v", res.StepsMissed)
	}

	if _, err := h.Handle(nil, map[string]any{"incident_type": "meteor_strike"}); err == nil {
		t.Error("expected unrecognized incident type to fail")
	}
}

func TestCriticalValueProtocol(t *testing.T) {
	h := &CriticalValueHandler{}
	d := labDossier()

	out, err := h.Handle(d, map[string]any{
		"test": "Glucose", "result": 450.0, "notified_provider": true, "read_back": true,
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	var good struct {
		Critical         bool     `json:"critical"`
		ProtocolFollowed bool     `json:"protocol_followed"`
		Omissions        []string `json:"omissions"`
	}
	decodeOutcome(t, out, &good)
	if !good.Critical || !good.ProtocolFollowed {
		t.Errorf("full protocol not accepted: %+v", good)
	}

	out, err = h.Handle(d, map[string]any{
		"test": "Glucose", "result": 450.0, "notified_provider": false, "read_back": false,
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	var bad struct {
		Critical         bool     `json:"critical"`
		ProtocolFollowed bool     `json:"protocol_followed"`
		Omissions        []string `json:"omissions"`
	}
	decodeOutcome(t, out, &bad)
	if bad.ProtocolFollowed || len(bad.Omissions) != 2 {
		t.Errorf("skipped protocol passed: %+v", bad)
	}

	// A normal result needs no escalation.
	out, err = h.Handle(d, map[string]any{
		"test": "Glucose", "result": 85.0, "notified_provider": false, "read_back": false,
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	var normal struct {
		Critical         bool `json:"critical"`
		ProtocolFollowed bool `json:"protocol_followed"`
	}
	decodeOutcome(t, out, &normal)
	if normal.Critical || !normal.ProtocolFollowed {
		t.Errorf("normal result treated as critical: %+v", normal)
	}
}
