package types

// Kind identifies one of the local entity collections.
type Kind string

const (
	KindPatients      Kind = "patients"
	KindDrugs         Kind = "drugs"
	KindTemplates     Kind = "templates"
	KindSettings      Kind = "settings"
	KindPrescriptions Kind = "prescriptions"
)

// AllKinds lists every collection in snapshot order.
var AllKinds = []Kind{KindPatients, KindDrugs, KindTemplates, KindSettings, KindPrescriptions}

// ProfileID is the fixed identity of the DoctorProfile singleton.
const ProfileID = "profile"

// Patient is a locally owned patient record. Timestamps are unix milliseconds.
type Patient struct {
	ID             string   `json:"id"`
	FullName       string   `json:"fullName"`
	Gender         string   `json:"gender"` // "male" or "female"
	Age            int      `json:"age"`
	Weight         *float64 `json:"weight,omitempty"`
	MedicalHistory string   `json:"medicalHistory"`
	Allergies      string   `json:"allergies"`
	PhoneNumber    string   `json:"phoneNumber,omitempty"`
	CreatedAt      int64    `json:"createdAt"`
	UpdatedAt      int64    `json:"updatedAt"`
}

// Drug is a formulary entry. Prescriptions reference drugs by name only,
// so renaming a drug never rewrites historical prescriptions.
type Drug struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	TradeName          string `json:"tradeName,omitempty"`
	DefaultInstruction string `json:"defaultInstruction,omitempty"`
}

// PrescriptionItem is one line of a template or prescription. Item
// identities are minted fresh whenever a template is copied into a
// prescription; the two never share item ids.
type PrescriptionItem struct {
	ID          string `json:"id"`
	DrugName    string `json:"drugName"`
	Dosage      string `json:"dosage"`
	Instruction string `json:"instruction"`
}

// PrescriptionTemplate is a reusable prescription pattern, copied by value
// when applied.
type PrescriptionTemplate struct {
	ID        string             `json:"id"`
	Title     string             `json:"title"`
	Diagnosis string             `json:"diagnosis"`
	Items     []PrescriptionItem `json:"items"`
}

// VitalSigns captured during a visit. All fields optional free text.
type VitalSigns struct {
	BP     string `json:"bp,omitempty"`
	PR     string `json:"pr,omitempty"`
	RR     string `json:"rr,omitempty"`
	Temp   string `json:"temp,omitempty"`
	Weight string `json:"weight,omitempty"`
}

// Prescription is an issued visit record. PatientName is denormalized at
// creation time and does not follow later patient renames. PatientID is a
// soft reference: it must exist at creation but is never re-validated.
type Prescription struct {
	ID          string             `json:"id"`
	PatientID   string             `json:"patientId"`
	PatientName string             `json:"patientName"`
	Date        int64              `json:"date"` // unix milliseconds
	Diagnosis   string             `json:"diagnosis"`
	VitalSigns  VitalSigns         `json:"vitalSigns"`
	Items       []PrescriptionItem `json:"items"`
}

// PrintLayout is opaque to the persistence engine; the visual editor owns it.
type PrintLayout map[string]interface{}

// DoctorProfile is the clinician singleton, created lazily on first save.
type DoctorProfile struct {
	ID                   string      `json:"id"`
	FullName             string      `json:"fullName"`
	Specialty            string      `json:"specialty"`
	MedicalCouncilNumber string      `json:"medicalCouncilNumber"`
	Address              string      `json:"address,omitempty"`
	PhoneNumber          string      `json:"phoneNumber,omitempty"`
	Logo                 string      `json:"logo,omitempty"` // base64 image
	PrintLayout          PrintLayout `json:"printLayout,omitempty"`
}

// LetterheadImage returns the base64 image the remote mirror should publish
// for this profile, preferring the print-layout background over the logo.
func (p *DoctorProfile) LetterheadImage() string {
	if p == nil {
		return ""
	}
	if p.PrintLayout != nil {
		if bg, ok := p.PrintLayout["backgroundImage"].(string); ok && bg != "" {
			return bg
		}
	}
	return p.Logo
}
