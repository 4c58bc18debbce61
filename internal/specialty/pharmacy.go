package specialty

import (
	"fmt"
	"strings"

	"github.com/oslerlabs/simcore/internal/simcase"
)

// Pharmacy action types.
const (
	ActionPrescriptionReview   = "prescription_review"
	ActionDrugInteractionCheck = "drug_interaction_check"
	ActionDoseVerification     = "dose_verification"
	ActionPatientCounseling    = "patient_counseling"
	ActionTherapyMonitoring    = "therapy_monitoring"
	ActionAdverseEventReport   = "adverse_event_report"
)

func pharmacyHandlers() []Handler {
	return []Handler{
		&PrescriptionReviewHandler{},
		&DrugInteractionCheckHandler{},
		&DoseVerificationHandler{},
		&PatientCounselingHandler{},
		&TherapyMonitoringHandler{},
		&AdverseEventReportHandler{},
	}
}

func findFormularyEntry(d *simcase.Dossier, drug string) (*simcase.FormularyEntry, error) {
	for i := range d.Formulary {
		if containsFold(d.Formulary[i].Drug, drug) || containsFold(drug, d.Formulary[i].Drug) {
			return &d.Formulary[i], nil
		}
	}
	return nil, fmt.Errorf("drug %q is not in the case formulary", drug)
}

// PrescriptionReviewHandler checks a prescription against the formulary
// entry and the patient's contraindicating factors.
type PrescriptionReviewHandler struct{}

func (h *PrescriptionReviewHandler) Type() string { return ActionPrescriptionReview }

func (h *PrescriptionReviewHandler) Handle(d *simcase.Dossier, data map[string]any) (any, error) {
	var p struct {
		Drug      string `mapstructure:"drug"`
		Dose      string `mapstructure:"dose"`
		Route     string `mapstructure:"route"`
		Frequency string `mapstructure:"frequency"`
	}
	if err := decodeParams(data, &p); err != nil {
		return nil, err
	}

	entry, err := findFormularyEntry(d, p.Drug)
	if err != nil {
		return nil, err
	}

	var issues []string
	for _, contra := range entry.Contraindications {
		if anyContainsFold(d.PatientFactors, contra) {
			issues = append(issues, fmt.Sprintf("contraindicated: patient has %s", contra))
		}
	}
	if entry.Route != "" && p.Route != "" && !containsFold(p.Route, entry.Route) {
		issues = append(issues, fmt.Sprintf("route %s differs from expected %s", p.Route, entry.Route))
	}
	if entry.Frequency != "" && p.Frequency != "" && !containsFold(p.Frequency, entry.Frequency) {
		issues = append(issues, fmt.Sprintf("frequency %s differs from expected %s", p.Frequency, entry.Frequency))
	}

	return struct {
		Drug   string   `json:"drug"`
		Safe   bool     `json:"safe"`
		Issues []string `json:"issues,omitempty"`
	}{Drug: entry.Drug, Safe: len(issues) == 0, Issues: issues}, nil
}

// DrugInteractionCheckHandler checks a medication list pairwise against
// the formulary's known interactions.
type DrugInteractionCheckHandler struct{}

func (h *DrugInteractionCheckHandler) Type() string { return ActionDrugInteractionCheck }

func (h *DrugInteractionCheckHandler) Handle(d *simcase.Dossier, data map[string]any) (any, error) {
	var p struct {
		Drugs []string `mapstructure:"drugs"`
	}
	if err := decodeParams(data, &p); err != nil {
		return nil, err
	}
	if len(p.Drugs) < 2 {
		return nil, fmt.Errorf("at least two drugs are required")
	}

	var interactions []string
	for i := range d.Formulary {
		entry := &d.Formulary[i]
		if !anyContainsFold(p.Drugs, entry.Drug) {
			continue
		}
		for _, other := range entry.Interactions {
			if anyContainsFold(p.Drugs, other) {
				pair := fmt.Sprintf("%s + %s", entry.Drug, other)
				if !anyContainsFold(interactions, pair) {
					interactions = append(interactions, pair)
				}
			}
		}
	}

	return struct {
		Drugs        []string `json:"drugs"`
		Interactions []string `json:"interactions,omitempty"`
		Clear        bool     `json:"clear"`
	}{Drugs: p.Drugs, Interactions: interactions, Clear: len(interactions) == 0}, nil
}

// DoseVerificationHandler compares a proposed daily dose against the
// formulary's maximum.
type DoseVerificationHandler struct{}

func (h *DoseVerificationHandler) Type() string { return ActionDoseVerification }

func (h *DoseVerificationHandler) Handle(d *simcase.Dossier, data map[string]any) (any, error) {
	var p struct {
		Drug        string  `mapstructure:"drug"`
		DailyDoseMg float64 `mapstructure:"daily_dose_mg"`
	}
	if err := decodeParams(data, &p); err != nil {
		return nil, err
	}
	if p.DailyDoseMg <= 0 {
		return nil, fmt.Errorf("daily_dose_mg must be positive")
	}

	entry, err := findFormularyEntry(d, p.Drug)
	if err != nil {
		return nil, err
	}
	if entry.MaxDailyDoseMg <= 0 {
		return struct {
			Drug string `json:"drug"`
			Note string `json:"note"`
		}{Drug: entry.Drug, Note: "no maximum daily dose on file for this drug"}, nil
	}

	within := p.DailyDoseMg <= entry.MaxDailyDoseMg
	verdict := "dose within limit"
	if !within {
		verdict = fmt.Sprintf("dose exceeds maximum of %.0f mg/day; do not dispense", entry.MaxDailyDoseMg)
	}

	return struct {
		Drug           string  `json:"drug"`
		DailyDoseMg    float64 `json:"daily_dose_mg"`
		MaxDailyDoseMg float64 `json:"max_daily_dose_mg"`
		WithinLimit    bool    `json:"within_limit"`
		Verdict        string  `json:"verdict"`
	}{Drug: entry.Drug, DailyDoseMg: p.DailyDoseMg, MaxDailyDoseMg: entry.MaxDailyDoseMg, WithinLimit: within, Verdict: verdict}, nil
}

// PatientCounselingHandler scores counseling coverage against the
// formulary's counseling points for the drug.
type PatientCounselingHandler struct{}

func (h *PatientCounselingHandler) Type() string { return ActionPatientCounseling }

func (h *PatientCounselingHandler) Handle(d *simcase.Dossier, data map[string]any) (any, error) {
	var p struct {
		Drug          string   `mapstructure:"drug"`
		PointsCovered []string `mapstructure:"points_covered"`
	}
	if err := decodeParams(data, &p); err != nil {
		return nil, err
	}

	entry, err := findFormularyEntry(d, p.Drug)
	if err != nil {
		return nil, err
	}

	covered, missed := matchChecklist(p.PointsCovered, entry.CounselingPoints)

	return struct {
		Drug    string   `json:"drug"`
		Covered []string `json:"covered,omitempty"`
		Missed  []string `json:"missed,omitempty"`
		Score   int      `json:"score"`
	}{
		Drug:    entry.Drug,
		Covered: covered,
		Missed:  missed,
		Score:   coverageScore(len(covered), len(entry.CounselingPoints)),
	}, nil
}

// TherapyMonitoringHandler checks a monitoring plan against the
// parameters the formulary requires for the drug.
type TherapyMonitoringHandler struct{}

func (h *TherapyMonitoringHandler) Type() string { return ActionTherapyMonitoring }

func (h *TherapyMonitoringHandler) Handle(d *simcase.Dossier, data map[string]any) (any, error) {
	var p struct {
		Drug       string   `mapstructure:"drug"`
		Parameters []string `mapstructure:"parameters"`
	}
	if err := decodeParams(data, &p); err != nil {
		return nil, err
	}

	entry, err := findFormularyEntry(d, p.Drug)
	if err != nil {
		return nil, err
	}

	covered, missed := matchChecklist(p.Parameters, entry.MonitoringParameters)

	return struct {
		Drug    string   `json:"drug"`
		Covered []string `json:"covered,omitempty"`
		Missed  []string `json:"missed,omitempty"`
		Score   int      `json:"score"`
	}{
		Drug:    entry.Drug,
		Covered: covered,
		Missed:  missed,
		Score:   coverageScore(len(covered), len(entry.MonitoringParameters)),
	}, nil
}

// adverseEventSeverities are the accepted severity grades.
var adverseEventSeverities = map[string]bool{
	"mild":     true,
	"moderate": true,
	"severe":   true,
}

// AdverseEventReportHandler checks an adverse-event report for
// completeness.
type AdverseEventReportHandler struct{}

func (h *AdverseEventReportHandler) Type() string { return ActionAdverseEventReport }

func (h *AdverseEventReportHandler) Handle(d *simcase.Dossier, data map[string]any) (any, error) {
	var p struct {
		Drug     string `mapstructure:"drug"`
		Reaction string `mapstructure:"reaction"`
		Severity string `mapstructure:"severity"`
		Reported bool   `mapstructure:"reported"`
	}
	if err := decodeParams(data, &p); err != nil {
		return nil, err
	}

	entry, err := findFormularyEntry(d, p.Drug)
	if err != nil {
		return nil, err
	}

	var gaps []string
	if strings.TrimSpace(p.Reaction) == "" {
		gaps = append(gaps, "reaction not described")
	}
	if !adverseEventSeverities[strings.ToLower(p.Severity)] {
		gaps = append(gaps, "severity must be mild, moderate, or severe")
	}
	if !p.Reported {
		gaps = append(gaps, "event not submitted to the reporting system")
	}

	return struct {
		Drug     string   `json:"drug"`
		Complete bool     `json:"complete"`
		Gaps     []string `json:"gaps,omitempty"`
	}{Drug: entry.Drug, Complete: len(gaps) == 0, Gaps: gaps}, nil
}
