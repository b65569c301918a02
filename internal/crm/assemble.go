// Package crm assembles and delivers the denormalized export produced when
// an order is packaged for the CRM.
package crm

import (
	"time"

	"github.com/google/uuid"

	"github.com/clarity-dx/referral-portal/internal/model"
)

// Assemble builds the CRM export from an order record. Assembly is
// tolerant by contract: fields with sentinel or absent values contribute
// nothing, a procedure without a provider-mapping entry contributes no
// provider data, and nothing here returns an error.
func Assemble(order *model.Order) *model.CRMExport {
	export := &model.CRMExport{
		ExportID:         uuid.NewString(),
		OrderID:          order.OrderID,
		PatientInfo:      map[string]any{},
		Procedures:       []map[string]any{},
		ProviderData:     map[string][]model.CRMProvider{},
		SelectedProvider: order.SelectedProvider,
		GeneratedAt:      time.Now().UTC(),
	}

	for name, fv := range order.ExtractedData.PatientInfo {
		if fv.HasValue() {
			export.PatientInfo[name] = fv.Value
		}
	}
	for name, fv := range order.ExtractedData.Fields {
		if fv.HasValue() {
			export.PatientInfo[name] = fv.Value
		}
	}

	for _, proc := range order.ExtractedData.Procedures {
		flat := map[string]any{}
		for name, fv := range proc {
			if fv.HasValue() {
				flat[name] = fv.Value
			}
		}
		if len(flat) == 0 {
			continue
		}
		export.Procedures = append(export.Procedures, flat)

		attachProvider(export, order, model.ProcedureCode(proc))
	}

	return export
}

// attachProvider adds the nearest mapped provider for one procedure code.
// Repeated extraction can yield the same code more than once; each
// occurrence appends, so a code may carry multiple providers.
func attachProvider(export *model.CRMExport, order *model.Order, code string) {
	if code == "" {
		return
	}
	mapping, ok := order.ProviderMapping[code]
	if !ok || mapping.Status != model.MappingStatusSuccess {
		return
	}
	nearest := mapping.Nearest()
	if nearest == nil {
		return
	}
	export.ProviderData[code] = append(export.ProviderData[code], model.CRMProvider{
		PrimaryKey:    nearest.PrimaryKey,
		BillingName:   nearest.BillingName,
		TIN:           nearest.TIN,
		Network:       nearest.Network,
		Phone:         nearest.Phone,
		Fax:           nearest.Fax,
		Email:         nearest.Email,
		Rate:          nearest.Rate,
		DistanceMiles: nearest.DistanceMiles,
	})
}
