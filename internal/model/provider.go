package model

// MappingStatusSuccess marks a provider-mapping entry whose lookup completed.
const MappingStatusSuccess = "success"

// Provider is one in-network provider candidate returned by the locator,
// carrying the billing, contact and network fields the panel roster holds.
type Provider struct {
	PrimaryKey    string  `json:"primary_key"`
	BillingName   string  `json:"billing_name"`
	TIN           string  `json:"tin,omitempty"`
	Street        string  `json:"street,omitempty"`
	City          string  `json:"city,omitempty"`
	State         string  `json:"state,omitempty"`
	Network       string  `json:"network,omitempty"`
	Type          string  `json:"type,omitempty"`
	Email         string  `json:"email,omitempty"`
	Fax           string  `json:"fax,omitempty"`
	Phone         string  `json:"phone,omitempty"`
	Website       string  `json:"website,omitempty"`
	Latitude      float64 `json:"lat,omitempty"`
	Longitude     float64 `json:"lon,omitempty"`
	Rate          float64 `json:"rate,omitempty"`
	ProcCodes     string  `json:"proc_codes,omitempty"`
	DistanceMiles float64 `json:"distance_miles"`
}

// ProcedureProviders is the ranked candidate list computed for one
// procedure code, nearest first.
type ProcedureProviders struct {
	Status    string     `json:"status"`
	ProcCode  string     `json:"proc_code,omitempty"`
	Providers []Provider `json:"providers,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// Nearest returns the closest candidate, or nil when the list is empty.
func (p ProcedureProviders) Nearest() *Provider {
	if len(p.Providers) == 0 {
		return nil
	}
	return &p.Providers[0]
}
