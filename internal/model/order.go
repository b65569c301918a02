package model

import (
	"encoding/json"
	"strings"
	"time"
)

// OrderStatus represents the lifecycle state of a referral order.
type OrderStatus string

const (
	StatusPending     OrderStatus = "Pending"
	StatusProcessed   OrderStatus = "Processed"
	StatusApproved    OrderStatus = "Approved"
	StatusReadyForCRM OrderStatus = "ReadyForCRM"
	StatusError       OrderStatus = "Error"
)

// Valid reports whether s is one of the closed set of statuses.
func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessed, StatusApproved, StatusReadyForCRM, StatusError:
		return true
	}
	return false
}

// Order is the persisted record for one referral intake case. The order ID
// is the intake folder name; the record exists on disk only after the first
// successful processing run.
type Order struct {
	OrderID          string                        `json:"order_id"`
	Status           OrderStatus                   `json:"status"`
	LastError        string                        `json:"last_error,omitempty"`
	ExtractedData    ExtractedData                 `json:"extracted_data,omitempty"`
	MappingData      *MappingData                  `json:"mapping_data,omitempty"`
	ProviderMapping  map[string]ProcedureProviders `json:"provider_mapping,omitempty"`
	SelectedProvider string                        `json:"selected_provider,omitempty"`
	EditedBy         string                        `json:"edited_by,omitempty"`

	ProcessedDate        *time.Time `json:"processed_date,omitempty"`
	EditedDate           *time.Time `json:"edited_date,omitempty"`
	ApprovedDate         *time.Time `json:"approved_date,omitempty"`
	CRMReadyDate         *time.Time `json:"crm_ready_date,omitempty"`
	ProviderSelectedDate *time.Time `json:"provider_selected_date,omitempty"`
}

// PatientName returns the display name from the patient-name field, or ""
// when the field is absent or not well formed. Legacy records carry the
// name as a flat field; newer ones nest it under patient_info.
func (o *Order) PatientName() string {
	fv, ok := o.ExtractedData.PatientInfo["patient_name"]
	if !ok {
		fv, ok = o.ExtractedData.Fields["patient_name"]
	}
	if !ok {
		return ""
	}
	s, _ := fv.Value.(string)
	return s
}

// FieldValue is one extracted datum with edit provenance. OriginalValue is
// captured the first time the field is edited and never overwritten after
// that, regardless of how many edits follow.
type FieldValue struct {
	Value         any  `json:"value"`
	OriginalValue any  `json:"original_value,omitempty"`
	Edited        bool `json:"edited,omitempty"`
}

// ApplyEdit overwrites Value with v, capturing the machine-extracted value
// into OriginalValue on the first edit only.
func (f *FieldValue) ApplyEdit(v any) {
	if !f.Edited {
		f.OriginalValue = f.Value
	}
	f.Value = v
	f.Edited = true
}

// sentinels the extraction step emits for fields it could not locate.
var sentinelValues = map[string]struct{}{
	"not found": {},
	"null":      {},
}

// HasValue reports whether the field carries a usable value: non-nil,
// non-empty, and not an extraction sentinel.
func (f FieldValue) HasValue() bool {
	if f.Value == nil {
		return false
	}
	if s, ok := f.Value.(string); ok {
		if s == "" {
			return false
		}
		if _, sentinel := sentinelValues[strings.ToLower(strings.TrimSpace(s))]; sentinel {
			return false
		}
	}
	return true
}

// UnmarshalJSON tolerates legacy records where a field was stored as a bare
// scalar instead of a {value, original_value, edited} mapping. Bare values
// are kept but carry no provenance.
func (f *FieldValue) UnmarshalJSON(data []byte) error {
	type plain FieldValue
	var p plain
	if err := json.Unmarshal(data, &p); err == nil {
		*f = FieldValue(p)
		return nil
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	f.Value = v
	return nil
}

// ExtractedData holds the extraction output for an order: flat review/edit
// fields plus the grouped patient-info and procedure sections the CRM
// packager consumes. On the wire all three share one JSON object, with
// "patient_info" and "procedures" as reserved keys.
type ExtractedData struct {
	PatientInfo map[string]FieldValue
	Procedures  []map[string]FieldValue
	Fields      map[string]FieldValue
}

const (
	keyPatientInfo = "patient_info"
	keyProcedures  = "procedures"
)

// IsZero reports whether no extraction data is present.
func (d ExtractedData) IsZero() bool {
	return len(d.PatientInfo) == 0 && len(d.Procedures) == 0 && len(d.Fields) == 0
}

// MarshalJSON flattens the three sections into a single object.
func (d ExtractedData) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.Fields)+2)
	for k, v := range d.Fields {
		out[k] = v
	}
	if len(d.PatientInfo) > 0 {
		out[keyPatientInfo] = d.PatientInfo
	}
	if len(d.Procedures) > 0 {
		out[keyProcedures] = d.Procedures
	}
	return json.Marshal(out)
}

// UnmarshalJSON splits the reserved sections back out; every other key is a
// flat field.
func (d *ExtractedData) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	d.PatientInfo = nil
	d.Procedures = nil
	d.Fields = make(map[string]FieldValue, len(raw))
	for k, v := range raw {
		switch k {
		case keyPatientInfo:
			if err := json.Unmarshal(v, &d.PatientInfo); err != nil {
				return err
			}
		case keyProcedures:
			if err := json.Unmarshal(v, &d.Procedures); err != nil {
				return err
			}
		default:
			var fv FieldValue
			if err := json.Unmarshal(v, &fv); err != nil {
				return err
			}
			d.Fields[k] = fv
		}
	}
	return nil
}

// ProcedureCodes returns the distinct CPT codes across the extracted
// procedures, in first-seen order.
func (d ExtractedData) ProcedureCodes() []string {
	var codes []string
	seen := map[string]struct{}{}
	for _, proc := range d.Procedures {
		code := ProcedureCode(proc)
		if code == "" {
			continue
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	return codes
}

// ProcedureCode pulls the CPT code out of one extracted procedure,
// accepting the field names the formatter has produced over time.
func ProcedureCode(proc map[string]FieldValue) string {
	for _, key := range []string{"cpt", "cpt_code", "procedure_code"} {
		fv, ok := proc[key]
		if !ok || !fv.HasValue() {
			continue
		}
		if s, ok := fv.Value.(string); ok {
			return s
		}
	}
	return ""
}

// MappingData holds the geocoding result for the order's patient address.
type MappingData struct {
	GeocodeData *GeocodeData `json:"geocode_data,omitempty"`
}

// Geocode returns the geocode result, nil-safe on a missing MappingData.
func (m *MappingData) Geocode() *GeocodeData {
	if m == nil {
		return nil
	}
	return m.GeocodeData
}

// GeocodeData is a geocoded point. Latitude and Longitude are pointers so a
// missing coordinate is distinguishable from zero; both must be present and
// non-zero before provider lookup is possible.
type GeocodeData struct {
	Address   string   `json:"address,omitempty"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Source    string   `json:"source,omitempty"`
	Quality   string   `json:"quality,omitempty"`
}

// Located reports whether both coordinates are present and non-zero.
func (g *GeocodeData) Located() bool {
	return g != nil && g.Latitude != nil && g.Longitude != nil &&
		*g.Latitude != 0 && *g.Longitude != 0
}

// OrderSummary is the listing view of an order.
type OrderSummary struct {
	OrderID       string      `json:"order_id"`
	Status        OrderStatus `json:"status"`
	ProcessedDate *time.Time  `json:"processed_date,omitempty"`
	PatientName   string      `json:"patient_name,omitempty"`
}
