// Package extraction turns raw intake documents into a structured
// extraction result: OCR per document, then one LLM formatting pass that
// maps the combined text onto the referral field schema.
package extraction

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// FieldDef describes one field the formatter asks the model to extract.
type FieldDef struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// FieldSet is the extraction schema: patient-level fields, per-procedure
// fields, and order-level fields that sit at the top of extracted_data.
type FieldSet struct {
	Patient   []FieldDef `yaml:"patient_fields"`
	Procedure []FieldDef `yaml:"procedure_fields"`
	Order     []FieldDef `yaml:"order_fields"`
}

// DefaultFieldSet is the built-in referral schema, used when no field
// definitions file is configured.
func DefaultFieldSet() FieldSet {
	return FieldSet{
		Patient: []FieldDef{
			{Name: "patient_name", Description: "Full name of the injured worker"},
			{Name: "dob", Description: "Date of birth, YYYY-MM-DD"},
			{Name: "address", Description: "Street address of the patient's residence"},
			{Name: "city", Description: "City of the patient's residence"},
			{Name: "state", Description: "Two-letter state code"},
			{Name: "zip_code", Description: "ZIP code"},
			{Name: "phone", Description: "Patient phone number"},
			{Name: "claim_number", Description: "Workers' compensation claim number"},
			{Name: "date_of_injury", Description: "Date of injury, YYYY-MM-DD"},
			{Name: "employer", Description: "Employer name on the claim"},
		},
		Procedure: []FieldDef{
			{Name: "cpt", Description: "CPT procedure code, digits only"},
			{Name: "description", Description: "Procedure description as written"},
			{Name: "body_part", Description: "Body part the procedure targets"},
		},
		Order: []FieldDef{
			{Name: "adjuster_name", Description: "Claims adjuster handling the referral"},
			{Name: "adjuster_email", Description: "Adjuster email address"},
			{Name: "insurance_carrier", Description: "Insurance carrier name"},
			{Name: "referring_physician", Description: "Referring physician name"},
		},
	}
}

// LoadFieldSet reads a field definitions YAML file, returning the default
// schema when path is empty. Sections missing from the file fall back to
// the default section.
func LoadFieldSet(path string) (FieldSet, error) {
	defaults := DefaultFieldSet()
	if path == "" {
		return defaults, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return FieldSet{}, eris.Wrapf(err, "extraction: read field definitions %s", path)
	}

	var fs FieldSet
	if err := yaml.Unmarshal(data, &fs); err != nil {
		return FieldSet{}, eris.Wrapf(err, "extraction: parse field definitions %s", path)
	}

	if len(fs.Patient) == 0 {
		fs.Patient = defaults.Patient
	}
	if len(fs.Procedure) == 0 {
		fs.Procedure = defaults.Procedure
	}
	if len(fs.Order) == 0 {
		fs.Order = defaults.Order
	}
	return fs, nil
}

func (fs FieldSet) promptSection(title string, defs []FieldDef) string {
	var sb strings.Builder
	sb.WriteString(title)
	sb.WriteString(":\n")
	for _, d := range defs {
		sb.WriteString("  - ")
		sb.WriteString(d.Name)
		if d.Description != "" {
			sb.WriteString(": ")
			sb.WriteString(d.Description)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
