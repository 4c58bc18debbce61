// Package simcase defines the authored clinical case model. Cases are
// read-only at encounter time: the engine resolves them by ID and never
// writes back.
package simcase

import "time"

// Specialty tags a case with its structured-action vocabulary.
type Specialty string

const (
	SpecialtyGeneral    Specialty = "general"
	SpecialtyLaboratory Specialty = "laboratory"
	SpecialtyRadiology  Specialty = "radiology"
	SpecialtyPharmacy   Specialty = "pharmacy"
)

// Case is a static authored scenario: who the patient is, what is actually
// wrong with them, and how the encounter should be scored.
type Case struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Specialty Specialty `json:"specialty"`
	Persona   Persona   `json:"persona"`
	Dossier   Dossier   `json:"dossier"`

	// EvaluationCriteria are case-specific points the evaluator is told
	// to look for, on top of the rubric.
	EvaluationCriteria []string `json:"evaluation_criteria,omitempty"`

	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Persona is the patient presentation the trainee interacts with.
type Persona struct {
	Name       string `json:"name"`
	Age        int    `json:"age"`
	Sex        string `json:"sex"`
	Background string `json:"background,omitempty"`
	Tone       string `json:"tone,omitempty"`

	// SpeaksFor names a guardian who answers on the patient's behalf
	// (e.g. "her mother" for a pediatric case). Empty when the patient
	// speaks for themselves.
	SpeaksFor string `json:"speaks_for,omitempty"`

	// OpeningStatement seeds the transcript when the session starts.
	OpeningStatement string `json:"opening_statement,omitempty"`
}

// Dossier is the hidden clinical ground truth. It is never shown to the
// trainee directly; the virtual patient reveals it piecemeal and the
// specialty handlers consult it for deterministic rules.
type Dossier struct {
	HiddenDiagnosis string `json:"hidden_diagnosis"`
	ChiefComplaint  string `json:"chief_complaint,omitempty"`
	History         string `json:"history,omitempty"`

	// PatientFactors are conditions that drive contraindication rules
	// (e.g. "pregnancy", "renal impairment", "contrast allergy").
	PatientFactors []string `json:"patient_factors,omitempty"`

	LabPanel       []LabReference   `json:"lab_panel,omitempty"`
	ImagingStudies []ImagingStudy   `json:"imaging_studies,omitempty"`
	Formulary      []FormularyEntry `json:"formulary,omitempty"`

	Nursing NursingData `json:"nursing,omitempty"`
}

// LabReference is one analyte the laboratory handlers can act on.
type LabReference struct {
	Test     string `json:"test"`
	Specimen string `json:"specimen,omitempty"`
	Units    string `json:"units,omitempty"`

	// ReferenceRange is "lower-upper", e.g. "70-100".
	ReferenceRange string `json:"reference_range"`

	CriticalLow  *float64 `json:"critical_low,omitempty"`
	CriticalHigh *float64 `json:"critical_high,omitempty"`
}

// ImagingStudy is one study the radiology handlers can act on.
type ImagingStudy struct {
	Modality string `json:"modality"`
	Region   string `json:"region"`

	// Indicated marks the study the case author considers appropriate
	// for the presentation.
	Indicated bool `json:"indicated,omitempty"`

	// KeyFindings are the findings a correct interpretation must cover.
	KeyFindings []string `json:"key_findings,omitempty"`

	Impression string `json:"impression,omitempty"`
}

// FormularyEntry is one medication the pharmacy handlers can act on.
type FormularyEntry struct {
	Drug      string   `json:"drug"`
	Dose      string   `json:"dose,omitempty"`
	Route     string   `json:"route,omitempty"`
	Frequency string   `json:"frequency,omitempty"`

	// DailyDoseMg bounds dose verification when non-zero.
	MaxDailyDoseMg float64 `json:"max_daily_dose_mg,omitempty"`

	Interactions         []string `json:"interactions,omitempty"`
	Contraindications    []string `json:"contraindications,omitempty"`
	CounselingPoints     []string `json:"counseling_points,omitempty"`
	MonitoringParameters []string `json:"monitoring_parameters,omitempty"`
}

// NursingData carries the nursing-process content. A case with at least
// one nursing diagnosis is scored with the nursing rubric.
type NursingData struct {
	Diagnoses     []string `json:"diagnoses,omitempty"`
	Interventions []string `json:"interventions,omitempty"`
	Outcomes      []string `json:"outcomes,omitempty"`
}

// HasNursingData reports whether the case carries nursing-diagnosis
// content, which selects the nursing evaluation rubric.
func (c *Case) HasNursingData() bool {
	return len(c.Dossier.Nursing.Diagnoses) > 0
}

// DisplayName is the name shown to the trainee.
func (c *Case) DisplayName() string {
	if c.Persona.Name != "" {
		return c.Persona.Name
	}
	return "Patient"
}
