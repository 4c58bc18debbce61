package specialty

import (
	"fmt"
	"strings"

	"github.com/oslerlabs/simcore/internal/simcase"
)

// Radiology action types.
const (
	ActionStudySelection       = "study_selection"
	ActionImagingTechnique     = "imaging_technique"
	ActionImageInterpretation  = "image_interpretation"
	ActionFindingDocumentation = "finding_documentation"
	ActionReportGeneration     = "report_generation"
	ActionRadiationSafety      = "radiation_safety"
	ActionCriticalFinding      = "critical_finding"
	ActionConsultationRequest  = "consultation_request"
)

func radiologyHandlers() []Handler {
	return []Handler{
		&StudySelectionHandler{},
		&ImagingTechniqueHandler{},
		&ImageInterpretationHandler{},
		&FindingDocumentationHandler{},
		&ReportGenerationHandler{},
		&RadiationSafetyHandler{},
		&CriticalFindingHandler{},
		&ConsultationRequestHandler{},
	}
}

// ionizingModalities use radiation; pregnancy penalties apply to these.
var ionizingModalities = map[string]bool{
	"ct":          true,
	"x-ray":       true,
	"xray":        true,
	"fluoroscopy": true,
	"pet":         true,
}

func usesIonizingRadiation(modality string) bool {
	return ionizingModalities[strings.ToLower(strings.TrimSpace(modality))]
}

func findStudy(d *simcase.Dossier, modality, region string) *simcase.ImagingStudy {
	for i := range d.ImagingStudies {
		s := &d.ImagingStudies[i]
		if containsFold(s.Modality, modality) && containsFold(s.Region, region) {
			return s
		}
	}
	return nil
}

// StudySelectionHandler scores the appropriateness of an ordered study.
// The score starts at 100; patient-factor contraindications and
// non-indicated choices subtract fixed penalties, clamped to [0,100].
type StudySelectionHandler struct{}

func (h *StudySelectionHandler) Type() string { return ActionStudySelection }

func (h *StudySelectionHandler) Handle(d *simcase.Dossier, data map[string]any) (any, error) {
	var p struct {
		Modality string `mapstructure:"modality"`
		Region   string `mapstructure:"region"`
		Contrast bool   `mapstructure:"contrast"`
	}
	if err := decodeParams(data, &p); err != nil {
		return nil, err
	}
	if p.Modality == "" || p.Region == "" {
		return nil, fmt.Errorf("modality and region are required")
	}

	score := 100
	var warnings []string

	study := findStudy(d, p.Modality, p.Region)
	if study == nil || !study.Indicated {
		score -= 40
		warnings = append(warnings, "study is not the indicated choice for this presentation")
	}
	if anyContainsFold(d.PatientFactors, "pregnan") && usesIonizingRadiation(p.Modality) {
		score -= 30
		warnings = append(warnings, "ionizing radiation ordered for a pregnant patient")
	}
	if p.Contrast {
		if anyContainsFold(d.PatientFactors, "contrast allergy") {
			score -= 25
			warnings = append(warnings, "contrast ordered despite documented contrast allergy")
		}
		if anyContainsFold(d.PatientFactors, "renal") {
			score -= 20
			warnings = append(warnings, "contrast ordered despite renal impairment")
		}
	}

	score = clampScore(score)

	return struct {
		Modality    string   `json:"modality"`
		Region      string   `json:"region"`
		Score       int      `json:"appropriateness_score"`
		Appropriate bool     `json:"appropriate"`
		Warnings    []string `json:"warnings,omitempty"`
	}{Modality: p.Modality, Region: p.Region, Score: score, Appropriate: score >= 70, Warnings: warnings}, nil
}

// ImagingTechniqueHandler checks acquisition technique basics:
// positioning documented and shielding for vulnerable patients.
type ImagingTechniqueHandler struct{}

func (h *ImagingTechniqueHandler) Type() string { return ActionImagingTechnique }

func (h *ImagingTechniqueHandler) Handle(d *simcase.Dossier, data map[string]any) (any, error) {
	var p struct {
		Modality      string `mapstructure:"modality"`
		Positioning   string `mapstructure:"positioning"`
		ShieldingUsed bool   `mapstructure:"shielding_used"`
	}
	if err := decodeParams(data, &p); err != nil {
		return nil, err
	}

	var issues []string
	if strings.TrimSpace(p.Positioning) == "" {
		issues = append(issues, "patient positioning not documented")
	}
	if usesIonizingRadiation(p.Modality) && anyContainsFold(d.PatientFactors, "pregnan") && !p.ShieldingUsed {
		issues = append(issues, "no shielding used for a pregnant patient")
	}

	return struct {
		Modality string   `json:"modality"`
		Adequate bool     `json:"adequate"`
		Issues   []string `json:"issues,omitempty"`
	}{Modality: p.Modality, Adequate: len(issues) == 0, Issues: issues}, nil
}

// ImageInterpretationHandler compares reported findings against the key
// findings the case author expects for the study.
type ImageInterpretationHandler struct{}

func (h *ImageInterpretationHandler) Type() string { return ActionImageInterpretation }

func (h *ImageInterpretationHandler) Handle(d *simcase.Dossier, data map[string]any) (any, error) {
	var p struct {
		Modality string   `mapstructure:"modality"`
		Region   string   `mapstructure:"region"`
		Findings []string `mapstructure:"findings"`
	}
	if err := decodeParams(data, &p); err != nil {
		return nil, err
	}

	study := findStudy(d, p.Modality, p.Region)
	if study == nil {
		return nil, fmt.Errorf("no %s study of %s in this case", p.Modality, p.Region)
	}

	identified, missed := matchChecklist(p.Findings, study.KeyFindings)

	return struct {
		Modality   string   `json:"modality"`
		Region     string   `json:"region"`
		Identified []string `json:"identified,omitempty"`
		Missed     []string `json:"missed,omitempty"`
		Score      int      `json:"score"`
	}{
		Modality:   study.Modality,
		Region:     study.Region,
		Identified: identified,
		Missed:     missed,
		Score:      coverageScore(len(identified), len(study.KeyFindings)),
	}, nil
}

// FindingDocumentationHandler checks a free-text documentation note for
// coverage of the study's key findings.
type FindingDocumentationHandler struct{}

func (h *FindingDocumentationHandler) Type() string { return ActionFindingDocumentation }

func (h *FindingDocumentationHandler) Handle(d *simcase.Dossier, data map[string]any) (any, error) {
	var p struct {
		Modality      string `mapstructure:"modality"`
		Region        string `mapstructure:"region"`
		Documentation string `mapstructure:"documentation"`
	}
	if err := decodeParams(data, &p); err != nil {
		return nil, err
	}

	study := findStudy(d, p.Modality, p.Region)
	if study == nil {
		return nil, fmt.Errorf("no %s study of %s in this case", p.Modality, p.Region)
	}

	covered, missed := matchText(p.Documentation, study.KeyFindings)

	return struct {
		Covered []string `json:"covered,omitempty"`
		Missed  []string `json:"missed,omitempty"`
		Score   int      `json:"score"`
	}{Covered: covered, Missed: missed, Score: coverageScore(len(covered), len(study.KeyFindings))}, nil
}

// reportSections are the sections a complete radiology report carries.
var reportSections = []string{"indication", "technique", "findings", "impression"}

// ReportGenerationHandler checks a drafted report for the standard
// section structure.
type ReportGenerationHandler struct{}

func (h *ReportGenerationHandler) Type() string { return ActionReportGeneration }

func (h *ReportGenerationHandler) Handle(_ *simcase.Dossier, data map[string]any) (any, error) {
	var p struct {
		Report string `mapstructure:"report"`
	}
	if err := decodeParams(data, &p); err != nil {
		return nil, err
	}

	present, missing := matchText(p.Report, reportSections)

	return struct {
		SectionsPresent []string `json:"sections_present,omitempty"`
		SectionsMissing []string `json:"sections_missing,omitempty"`
		Complete        bool     `json:"complete"`
		Score           int      `json:"score"`
	}{
		SectionsPresent: present,
		SectionsMissing: missing,
		Complete:        len(missing) == 0,
		Score:           coverageScore(len(present), len(reportSections)),
	}, nil
}

// RadiationSafetyHandler scores radiation-protection practice for an
// ionizing study.
type RadiationSafetyHandler struct{}

func (h *RadiationSafetyHandler) Type() string { return ActionRadiationSafety }

func (h *RadiationSafetyHandler) Handle(d *simcase.Dossier, data map[string]any) (any, error) {
	var p struct {
		Modality          string `mapstructure:"modality"`
		PregnancyScreened bool   `mapstructure:"pregnancy_screened"`
		ShieldingUsed     bool   `mapstructure:"shielding_used"`
		DoseOptimized     bool   `mapstructure:"dose_optimized"`
	}
	if err := decodeParams(data, &p); err != nil {
		return nil, err
	}

	if !usesIonizingRadiation(p.Modality) {
		return struct {
			Modality string `json:"modality"`
			Score    int    `json:"score"`
			Note     string `json:"note"`
		}{Modality: p.Modality, Score: 100, Note: "modality does not use ionizing radiation"}, nil
	}

	score := 100
	var gaps []string
	if !p.PregnancyScreened {
		score -= 40
		gaps = append(gaps, "pregnancy status not screened before exposure")
	}
	if !p.ShieldingUsed {
		score -= 30
		gaps = append(gaps, "shielding not used")
	}
	if !p.DoseOptimized {
		score -= 30
		gaps = append(gaps, "dose not optimized for patient size")
	}

	return struct {
		Modality string   `json:"modality"`
		Score    int      `json:"score"`
		Gaps     []string `json:"gaps,omitempty"`
	}{Modality: p.Modality, Score: clampScore(score), Gaps: gaps}, nil
}

// CriticalFindingHandler checks critical-result communication: the
// ordering provider must be notified within the hour and the
// notification documented.
type CriticalFindingHandler struct{}

func (h *CriticalFindingHandler) Type() string { return ActionCriticalFinding }

func (h *CriticalFindingHandler) Handle(_ *simcase.Dossier, data map[string]any) (any, error) {
	var p struct {
		Finding             string `mapstructure:"finding"`
		NotifiedProvider    bool   `mapstructure:"notified_provider"`
		NotificationMinutes int    `mapstructure:"notification_minutes"`
		Documented          bool   `mapstructure:"documented"`
	}
	if err := decodeParams(data, &p); err != nil {
		return nil, err
	}

	var omissions []string
	if !p.NotifiedProvider {
		omissions = append(omissions, "ordering provider not notified")
	} else if p.NotificationMinutes > 60 {
		omissions = append(omissions, "notification exceeded the 60-minute window")
	}
	if !p.Documented {
		omissions = append(omissions, "notification not documented")
	}

	return struct {
		Finding          string   `json:"finding"`
		ProtocolFollowed bool     `json:"protocol_followed"`
		Omissions        []string `json:"omissions,omitempty"`
	}{Finding: p.Finding, ProtocolFollowed: len(omissions) == 0, Omissions: omissions}, nil
}

// ConsultationRequestHandler checks a consult request for a clear
// question, urgency, and relevant history.
type ConsultationRequestHandler struct{}

func (h *ConsultationRequestHandler) Type() string { return ActionConsultationRequest }

func (h *ConsultationRequestHandler) Handle(_ *simcase.Dossier, data map[string]any) (any, error) {
	var p struct {
		Question        string `mapstructure:"question"`
		UrgencyStated   bool   `mapstructure:"urgency_stated"`
		HistoryProvided bool   `mapstructure:"history_provided"`
	}
	if err := decodeParams(data, &p); err != nil {
		return nil, err
	}

	score := 100
	var gaps []string
	if strings.TrimSpace(p.Question) == "" {
		score -= 50
		gaps = append(gaps, "no clinical question stated")
	}
	if !p.UrgencyStated {
		score -= 25
		gaps = append(gaps, "urgency not stated")
	}
	if !p.HistoryProvided {
		score -= 25
		gaps = append(gaps, "relevant history not provided")
	}

	return struct {
		Score    int      `json:"score"`
		Complete bool     `json:"complete"`
		Gaps     []string `json:"gaps,omitempty"`
	}{Score: clampScore(score), Complete: len(gaps) == 0, Gaps: gaps}, nil
}
