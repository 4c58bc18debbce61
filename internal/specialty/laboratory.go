package specialty

import (
	"fmt"
	"math"

	"github.com/oslerlabs/simcore/internal/simcase"
)

// Laboratory action types.
const (
	ActionSpecimenReceipt      = "specimen_receipt"
	ActionQualityControl       = "quality_control"
	ActionTestExecution        = "test_execution"
	ActionResultInterpretation = "result_interpretation"
	ActionSafetyIncident       = "safety_incident"
	ActionCriticalValue        = "critical_value"
)

func laboratoryHandlers() []Handler {
	return []Handler{
		&SpecimenReceiptHandler{},
		&QualityControlHandler{},
		&TestExecutionHandler{},
		&ResultInterpretationHandler{},
		&SafetyIncidentHandler{},
		&CriticalValueHandler{},
	}
}

// findLabReference resolves a test name against the case's lab panel.
func findLabReference(d *simcase.Dossier, test string) (*simcase.LabReference, error) {
	for i := range d.LabPanel {
		if containsFold(d.LabPanel[i].Test, test) || containsFold(test, d.LabPanel[i].Test) {
			return &d.LabPanel[i], nil
		}
	}
	return nil, fmt.Errorf("test %q is not in the case lab panel", test)
}

// SpecimenReceiptHandler checks an arriving specimen against the ordered
// test's requirements.
type SpecimenReceiptHandler struct{}

func (h *SpecimenReceiptHandler) Type() string { return ActionSpecimenReceipt }

func (h *SpecimenReceiptHandler) Handle(d *simcase.Dossier, data map[string]any) (any, error) {
	var p struct {
		Test             string `mapstructure:"test"`
		Specimen         string `mapstructure:"specimen"`
		LabeledCorrectly bool   `mapstructure:"labeled_correctly"`
	}
	if err := decodeParams(data, &p); err != nil {
		return nil, err
	}

	ref, err := findLabReference(d, p.Test)
	if err != nil {
		return nil, err
	}

	var issues []string
	if !p.LabeledCorrectly {
		issues = append(issues, "specimen not labeled correctly; reject and recollect")
	}
	if ref.Specimen != "" && !containsFold(p.Specimen, ref.Specimen) {
		issues = append(issues, fmt.Sprintf("wrong specimen type: %s requires %s", ref.Test, ref.Specimen))
	}

	return struct {
		Test     string   `json:"test"`
		Accepted bool     `json:"accepted"`
		Issues   []string `json:"issues,omitempty"`
	}{Test: ref.Test, Accepted: len(issues) == 0, Issues: issues}, nil
}

// QualityControlHandler evaluates a control run against its target.
// A control more than two standard deviations from target fails.
type QualityControlHandler struct{}

func (h *QualityControlHandler) Type() string { return ActionQualityControl }

func (h *QualityControlHandler) Handle(_ *simcase.Dossier, data map[string]any) (any, error) {
	var p struct {
		Test         string  `mapstructure:"test"`
		ControlValue float64 `mapstructure:"control_value"`
		TargetValue  float64 `mapstructure:"target_value"`
		SD           float64 `mapstructure:"sd"`
	}
	if err := decodeParams(data, &p); err != nil {
		return nil, err
	}
	if p.SD <= 0 {
		return nil, fmt.Errorf("sd must be positive")
	}

	deviation := math.Abs(p.ControlValue-p.TargetValue) / p.SD
	inControl := deviation <= 2

	action := "proceed with patient testing"
	if !inControl {
		action = "hold patient results; recalibrate and rerun controls"
	}

	return struct {
		Test        string  `json:"test"`
		DeviationSD float64 `json:"deviation_sd"`
		InControl   bool    `json:"in_control"`
		Action      string  `json:"action"`
	}{Test: p.Test, DeviationSD: math.Round(deviation*100) / 100, InControl: inControl, Action: action}, nil
}

// TestExecutionHandler runs an ordered test and reports the raw result
// against the reference range.
type TestExecutionHandler struct{}

func (h *TestExecutionHandler) Type() string { return ActionTestExecution }

func (h *TestExecutionHandler) Handle(d *simcase.Dossier, data map[string]any) (any, error) {
	var p struct {
		Test   string  `mapstructure:"test"`
		Result float64 `mapstructure:"result"`
	}
	if err := decodeParams(data, &p); err != nil {
		return nil, err
	}

	ref, err := findLabReference(d, p.Test)
	if err != nil {
		return nil, err
	}
	lo, hi, err := parseRange(ref.ReferenceRange)
	if err != nil {
		return nil, err
	}

	return struct {
		Test           string  `json:"test"`
		Result         float64 `json:"result"`
		Units          string  `json:"units,omitempty"`
		ReferenceRange string  `json:"reference_range"`
		Flag           string  `json:"flag"`
	}{
		Test:           ref.Test,
		Result:         p.Result,
		Units:          ref.Units,
		ReferenceRange: ref.ReferenceRange,
		Flag:           interpretValue(p.Result, lo, hi),
	}, nil
}

// ResultInterpretationHandler classifies a result as Low, High, or
// Normal against the reference range and flags critical values.
type ResultInterpretationHandler struct{}

func (h *ResultInterpretationHandler) Type() string { return ActionResultInterpretation }

func (h *ResultInterpretationHandler) Handle(d *simcase.Dossier, data map[string]any) (any, error) {
	var p struct {
		Test   string  `mapstructure:"test"`
		Result float64 `mapstructure:"result"`
	}
	if err := decodeParams(data, &p); err != nil {
		return nil, err
	}

	ref, err := findLabReference(d, p.Test)
	if err != nil {
		return nil, err
	}
	lo, hi, err := parseRange(ref.ReferenceRange)
	if err != nil {
		return nil, err
	}

	interp := interpretValue(p.Result, lo, hi)
	critical := isCritical(ref, p.Result)
	if critical {
		interp = "Critical " + interp
	}

	return struct {
		Test           string  `json:"test"`
		Result         float64 `json:"result"`
		ReferenceRange string  `json:"reference_range"`
		Interpretation string  `json:"interpretation"`
		Critical       bool    `json:"critical"`
	}{
		Test:           ref.Test,
		Result:         p.Result,
		ReferenceRange: ref.ReferenceRange,
		Interpretation: interp,
		Critical:       critical,
	}, nil
}

func isCritical(ref *simcase.LabReference, v float64) bool {
	if ref.CriticalLow != nil && v <= *ref.CriticalLow {
		return true
	}
	if ref.CriticalHigh != nil && v >= *ref.CriticalHigh {
		return true
	}
	return false
}

// safetyProtocols lists the required response steps per incident type.
var safetyProtocols = map[string][]string{
	"chemical_spill":  {"evacuate", "contain", "ventilate", "report"},
	"needlestick":     {"wash", "report", "exposure assessment"},
	"specimen_spill":  {"don PPE", "disinfect", "dispose", "report"},
	"fire":            {"alarm", "evacuate", "extinguish", "report"},
}

// SafetyIncidentHandler scores an incident response against the required
// protocol steps for the incident type.
type SafetyIncidentHandler struct{}

func (h *SafetyIncidentHandler) Type() string { return ActionSafetyIncident }

func (h *SafetyIncidentHandler) Handle(_ *simcase.Dossier, data map[string]any) (any, error) {
	var p struct {
		IncidentType string   `mapstructure:"incident_type"`
		ActionsTaken []string `mapstructure:"actions_taken"`
	}
	if err := decodeParams(data, &p); err != nil {
		return nil, err
	}

	required, ok := safetyProtocols[p.IncidentType]
	if !ok {
		return nil, fmt.Errorf("unrecognized incident type %q", p.IncidentType)
	}

	covered, missed := matchChecklist(p.ActionsTaken, required)

	return struct {
		IncidentType string   `json:"incident_type"`
		StepsCovered []string `json:"steps_covered,omitempty"`
		StepsMissed  []string `json:"steps_missed,omitempty"`
		Score        int      `json:"score"`
	}{
		IncidentType: p.IncidentType,
		StepsCovered: covered,
		StepsMissed:  missed,
		Score:        coverageScore(len(covered), len(required)),
	}, nil
}

// CriticalValueHandler checks whether a critical result was handled per
// protocol: provider notified with read-back confirmation.
type CriticalValueHandler struct{}

func (h *CriticalValueHandler) Type() string { return ActionCriticalValue }

func (h *CriticalValueHandler) Handle(d *simcase.Dossier, data map[string]any) (any, error) {
	var p struct {
		Test             string  `mapstructure:"test"`
		Result           float64 `mapstructure:"result"`
		NotifiedProvider bool    `mapstructure:"notified_provider"`
		ReadBack         bool    `mapstructure:"read_back"`
	}
	if err := decodeParams(data, &p); err != nil {
		return nil, err
	}

	ref, err := findLabReference(d, p.Test)
	if err != nil {
		return nil, err
	}

	critical := isCritical(ref, p.Result)
	followed := !critical || (p.NotifiedProvider && p.ReadBack)

	var omissions []string
	if critical && !p.NotifiedProvider {
		omissions = append(omissions, "provider not notified of critical value")
	}
	if critical && !p.ReadBack {
		omissions = append(omissions, "read-back confirmation not obtained")
	}

	return struct {
		Test             string   `json:"test"`
		Result           float64  `json:"result"`
		Critical         bool     `json:"critical"`
		ProtocolFollowed bool     `json:"protocol_followed"`
		Omissions        []string `json:"omissions,omitempty"`
	}{Test: ref.Test, Result: p.Result, Critical: critical, ProtocolFollowed: followed, Omissions: omissions}, nil
}
