package model

import "time"

// CRMExport is the denormalized payload written for downstream CRM
// ingestion. Values are plain scalars: edit provenance and extraction
// sentinels are stripped during assembly.
type CRMExport struct {
	ExportID         string                   `json:"export_id"`
	OrderID          string                   `json:"order_id"`
	PatientInfo      map[string]any           `json:"patient_info"`
	Procedures       []map[string]any         `json:"procedures"`
	ProviderData     map[string][]CRMProvider `json:"provider_data"`
	SelectedProvider string                   `json:"selected_provider,omitempty"`
	GeneratedAt      time.Time                `json:"generated_at"`
}

// CRMProvider is the slim provider shape attached per procedure CPT code.
type CRMProvider struct {
	PrimaryKey    string  `json:"primary_key"`
	BillingName   string  `json:"billing_name"`
	TIN           string  `json:"tin,omitempty"`
	Network       string  `json:"network,omitempty"`
	Phone         string  `json:"phone,omitempty"`
	Fax           string  `json:"fax,omitempty"`
	Email         string  `json:"email,omitempty"`
	Rate          float64 `json:"rate,omitempty"`
	DistanceMiles float64 `json:"distance_miles"`
}
