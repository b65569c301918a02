package crm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/clarity-dx/referral-portal/internal/model"
	"github.com/clarity-dx/referral-portal/pkg/salesforce"
)

// Submitter pushes packaged exports into Salesforce. Configuring it is
// optional; without credentials the portal only writes the side file.
type Submitter struct {
	client salesforce.Client
	object string
}

// NewSubmitter wraps a Salesforce client targeting the given custom object.
func NewSubmitter(client salesforce.Client, object string) *Submitter {
	return &Submitter{client: client, object: object}
}

// Submit upserts one export as a CRM record keyed by order ID and returns
// the Salesforce ID. Repackaging an order updates its existing record
// instead of creating a duplicate.
func (s *Submitter) Submit(ctx context.Context, export *model.CRMExport) (string, error) {
	record, err := exportRecord(export)
	if err != nil {
		return "", err
	}

	id, err := s.existingRecordID(ctx, export.OrderID)
	if err != nil {
		return "", err
	}

	if id != "" {
		if err := s.client.UpdateOne(ctx, s.object, id, record); err != nil {
			return "", eris.Wrapf(err, "crm: resubmit order %s", export.OrderID)
		}
		zap.L().Info("crm export updated",
			zap.String("order_id", export.OrderID),
			zap.String("sf_id", id))
		return id, nil
	}

	id, err = s.client.InsertOne(ctx, s.object, record)
	if err != nil {
		return "", eris.Wrapf(err, "crm: submit order %s", export.OrderID)
	}

	zap.L().Info("crm export submitted",
		zap.String("order_id", export.OrderID),
		zap.String("sf_id", id))
	return id, nil
}

// existingRecordID looks up a prior submission for the order. Name carries
// the order ID on the custom object.
func (s *Submitter) existingRecordID(ctx context.Context, orderID string) (string, error) {
	soql := fmt.Sprintf("SELECT Id FROM %s WHERE Name = '%s' LIMIT 1",
		s.object, strings.ReplaceAll(orderID, "'", "\\'"))

	var rows []struct {
		Id string
	}
	if err := s.client.Query(ctx, soql, &rows); err != nil {
		return "", eris.Wrapf(err, "crm: look up order %s", orderID)
	}
	if len(rows) == 0 {
		return "", nil
	}
	return rows[0].Id, nil
}

// exportRecord flattens the export into the custom object's fields. The
// nested structures travel as JSON long-text fields.
func exportRecord(export *model.CRMExport) (map[string]any, error) {
	procedures, err := json.Marshal(export.Procedures)
	if err != nil {
		return nil, eris.Wrap(err, "crm: marshal procedures")
	}
	providers, err := json.Marshal(export.ProviderData)
	if err != nil {
		return nil, eris.Wrap(err, "crm: marshal provider data")
	}

	record := map[string]any{
		"Name":             export.OrderID,
		"Export_Id__c":     export.ExportID,
		"Procedures__c":    string(procedures),
		"Provider_Data__c": string(providers),
		"Generated_At__c":  export.GeneratedAt,
	}
	if export.SelectedProvider != "" {
		record["Selected_Provider__c"] = export.SelectedProvider
	}
	if name, ok := export.PatientInfo["patient_name"].(string); ok {
		record["Patient_Name__c"] = name
	}
	if claim, ok := export.PatientInfo["claim_number"].(string); ok {
		record["Claim_Number__c"] = claim
	}
	return record, nil
}
