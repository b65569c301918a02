// Package portal owns the referral order lifecycle: Pending → Processed →
// Approved / ReadyForCRM, human edits with provenance, provider selection,
// and CRM packaging. All mutating operations serialize per order through a
// keyed mutex; cross-process exclusion is out of scope.
package portal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/clarity-dx/referral-portal/internal/audit"
	"github.com/clarity-dx/referral-portal/internal/config"
	"github.com/clarity-dx/referral-portal/internal/crm"
	"github.com/clarity-dx/referral-portal/internal/model"
	"github.com/clarity-dx/referral-portal/internal/providers"
	"github.com/clarity-dx/referral-portal/internal/resilience"
	"github.com/clarity-dx/referral-portal/internal/store"
)

// providerLimit caps the candidates kept per procedure code.
const providerLimit = 5

// ExtractionPipeline is the collaborator that turns an intake folder into
// structured data.
type ExtractionPipeline interface {
	Run(ctx context.Context, orderID string) (*model.ExtractedData, *model.MappingData, error)
}

// Service is the order lifecycle engine.
type Service struct {
	records   store.RecordStore
	pipeline  ExtractionPipeline
	locator   providers.Locator
	crmWriter *crm.Writer
	submitter *crm.Submitter
	trail     audit.Log

	paths config.PathsConfig
	cfg   config.PortalConfig
	retry resilience.RetryConfig

	locks store.KeyedMutex
}

// NewService wires the lifecycle engine. submitter may be nil when no CRM
// credentials are configured; trail may be nil to disable auditing.
func NewService(records store.RecordStore, pipeline ExtractionPipeline, locator providers.Locator,
	crmWriter *crm.Writer, submitter *crm.Submitter, trail audit.Log,
	paths config.PathsConfig, cfg config.PortalConfig, retry resilience.RetryConfig) *Service {
	if trail == nil {
		trail = audit.NopLog{}
	}
	return &Service{
		records:   records,
		pipeline:  pipeline,
		locator:   locator,
		crmWriter: crmWriter,
		submitter: submitter,
		trail:     trail,
		paths:     paths,
		cfg:       cfg,
		retry:     retry,
	}
}

// List enumerates the intake folders and reports each order's status. A
// record that fails to load never fails the listing: the order appears
// without its patient name and the failure is logged.
func (s *Service) List(ctx context.Context) ([]model.OrderSummary, error) {
	entries, err := os.ReadDir(s.paths.OrdersDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []model.OrderSummary{}, nil
		}
		return nil, Persistence("list intake folders", err)
	}

	var ids []string
	for _, entry := range entries {
		if entry.IsDir() {
			ids = append(ids, entry.Name())
		}
	}

	summaries := make([]model.OrderSummary, len(ids))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(s.cfg.ListConcurrency, 1))
	for i, id := range ids {
		g.Go(func() error {
			summary := s.summarize(ctx, id)
			mu.Lock()
			summaries[i] = summary
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(summaries, func(i, j int) bool { return summaries[i].OrderID < summaries[j].OrderID })
	return summaries, nil
}

func (s *Service) summarize(ctx context.Context, orderID string) model.OrderSummary {
	summary := model.OrderSummary{OrderID: orderID, Status: model.StatusPending}
	if !s.records.Exists(orderID) {
		return summary
	}

	order, err := s.records.Load(ctx, orderID)
	if err != nil {
		zap.L().Warn("order record unreadable, listing without details",
			zap.String("order_id", orderID), zap.Error(err))
		summary.Status = model.StatusProcessed
		return summary
	}

	summary.Status = order.Status
	summary.ProcessedDate = order.ProcessedDate
	summary.PatientName = order.PatientName()
	return summary
}

// Get returns the order record. An order whose intake folder exists but
// has never been processed comes back as a Pending stub, not an error.
func (s *Service) Get(ctx context.Context, orderID string) (*model.Order, error) {
	order, err := s.records.Load(ctx, orderID)
	if err == nil {
		return order, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, Persistence("load", err)
	}

	if s.folderExists(orderID) {
		return &model.Order{OrderID: orderID, Status: model.StatusPending}, nil
	}
	return nil, NotFound("order", orderID)
}

// Process runs extraction over the order's intake folder and persists a
// fresh record, fully overwriting any prior one. Reprocessing is not
// incremental: prior edits, provider mappings and approvals are discarded.
func (s *Service) Process(ctx context.Context, orderID string) (*model.Order, error) {
	if !s.folderExists(orderID) {
		return nil, NotFound("order folder", orderID)
	}

	unlock := s.locks.Lock(orderID)
	defer unlock()

	if timeout := time.Duration(s.cfg.ProcessTimeoutSecs) * time.Second; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	extracted, mapping, err := s.pipeline.Run(ctx, orderID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	order := &model.Order{
		OrderID:       orderID,
		Status:        model.StatusProcessed,
		ExtractedData: *extracted,
		MappingData:   mapping,
		ProcessedDate: &now,
	}

	if err := s.records.Save(ctx, orderID, order); err != nil {
		return nil, Persistence("save", err)
	}

	s.trail.Record(ctx, orderID, audit.EventProcessed, "", "")
	zap.L().Info("order processed", zap.String("order_id", orderID))
	return order, nil
}

// UpdateFields applies a human edit to the record. Under the merge policy
// each patched field that exists in the record captures its original value
// on first edit and keeps it through later edits; fields absent from the
// patch are untouched. Under the replace policy the whole extracted_data
// mapping is swapped for the patch with no per-field provenance.
func (s *Service) UpdateFields(ctx context.Context, orderID string, patch model.ExtractedData, editor string) (*model.Order, error) {
	unlock := s.locks.Lock(orderID)
	defer unlock()

	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}

	switch s.cfg.UpdatePolicy {
	case config.UpdatePolicyReplace:
		order.ExtractedData = patch
	default:
		mergeFields(order.ExtractedData.PatientInfo, patch.PatientInfo)
		mergeFields(order.ExtractedData.Fields, patch.Fields)
		for i, procPatch := range patch.Procedures {
			if i >= len(order.ExtractedData.Procedures) {
				break
			}
			mergeFields(order.ExtractedData.Procedures[i], procPatch)
		}
	}

	now := time.Now().UTC()
	order.EditedDate = &now
	order.EditedBy = editor

	if err := s.records.Save(ctx, orderID, order); err != nil {
		return nil, Persistence("save", err)
	}

	s.trail.Record(ctx, orderID, audit.EventFieldsUpdated, editor, "")
	return order, nil
}

// mergeFields edits every field present in both the record and the patch.
func mergeFields(current, patch map[string]model.FieldValue) {
	for name, patched := range patch {
		fv, ok := current[name]
		if !ok {
			continue
		}
		fv.ApplyEdit(patched.Value)
		current[name] = fv
	}
}

// Approve records the human sign-off. Re-approving overwrites the
// timestamp and changes nothing else.
func (s *Service) Approve(ctx context.Context, orderID, actor string) (*model.Order, error) {
	unlock := s.locks.Lock(orderID)
	defer unlock()

	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	order.ApprovedDate = &now
	// ReadyForCRM and Approved are independent flags; packaging first must
	// not be undone by a later approval.
	if order.Status != model.StatusReadyForCRM {
		order.Status = model.StatusApproved
	}

	if err := s.records.Save(ctx, orderID, order); err != nil {
		return nil, Persistence("save", err)
	}

	s.trail.Record(ctx, orderID, audit.EventApproved, actor, "")
	zap.L().Info("order approved", zap.String("order_id", orderID), zap.String("actor", actor))
	return order, nil
}

// FetchProviders looks up the nearest in-network providers and stores the
// ranked results on the record. With a procCode only that code is queried,
// and an empty result is NotFound; with an empty procCode every extracted
// procedure code is queried and a lookup failure for one code is recorded
// on that code's entry without failing the rest. Requires geocoded,
// non-zero patient coordinates.
func (s *Service) FetchProviders(ctx context.Context, orderID, procCode string) (*model.Order, error) {
	unlock := s.locks.Lock(orderID)
	defer unlock()

	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}

	geo := order.MappingData.Geocode()
	if geo == nil {
		return nil, Validationf("order %s has no location data", orderID)
	}
	if !geo.Located() {
		return nil, Validationf("order %s has invalid location data", orderID)
	}

	codes := []string{procCode}
	if procCode == "" {
		codes = order.ExtractedData.ProcedureCodes()
		if len(codes) == 0 {
			return nil, Validationf("order %s has no procedure codes", orderID)
		}
	}

	if order.ProviderMapping == nil {
		order.ProviderMapping = make(map[string]model.ProcedureProviders, len(codes))
	}
	for _, code := range codes {
		entry := model.ProcedureProviders{ProcCode: code}

		cfg := s.retry
		cfg.OnRetry = resilience.LogRetries("provider-locator")
		found, err := resilience.Retry(ctx, cfg, func(ctx context.Context) ([]model.Provider, error) {
			return s.locator.Nearest(ctx, *geo.Latitude, *geo.Longitude, code, providerLimit)
		})
		switch {
		case err != nil && procCode != "":
			return nil, Upstream("provider-locator", err)
		case err != nil:
			zap.L().Warn("provider lookup failed",
				zap.String("order_id", orderID),
				zap.String("proc_code", code),
				zap.Error(err))
			entry.Status = "error"
			entry.Error = err.Error()
		default:
			if procCode != "" && len(found) == 0 {
				return nil, NotFound("providers for procedure", procCode)
			}
			entry.Status = model.MappingStatusSuccess
			entry.Providers = found
		}
		order.ProviderMapping[code] = entry
	}

	if err := s.records.Save(ctx, orderID, order); err != nil {
		return nil, Persistence("save", err)
	}

	s.trail.Record(ctx, orderID, audit.EventProvidersFetched, "", fmt.Sprintf("%d codes", len(codes)))
	return order, nil
}

// SelectProvider records the reviewer's provider choice for the order.
func (s *Service) SelectProvider(ctx context.Context, orderID, providerID, actor string) (*model.Order, error) {
	if providerID == "" {
		return nil, Validationf("provider id is required")
	}

	unlock := s.locks.Lock(orderID)
	defer unlock()

	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if s.cfg.StrictProviderSelection && !hasCandidate(order, providerID) {
		return nil, Validationf("provider %s is not a mapped candidate for order %s", providerID, orderID)
	}

	now := time.Now().UTC()
	order.SelectedProvider = providerID
	order.ProviderSelectedDate = &now

	if err := s.records.Save(ctx, orderID, order); err != nil {
		return nil, Persistence("save", err)
	}

	s.trail.Record(ctx, orderID, audit.EventProviderSelected, actor, providerID)
	return order, nil
}

func hasCandidate(order *model.Order, providerID string) bool {
	for _, entry := range order.ProviderMapping {
		for _, p := range entry.Providers {
			if p.PrimaryKey == providerID {
				return true
			}
		}
	}
	return false
}

// PackageForCRM assembles the export, writes it as a side file, and flips
// the order to ReadyForCRM. The write and the status flip are not a
// transaction: an export written with a failed status flip surfaces the
// flip error while the file remains on disk.
func (s *Service) PackageForCRM(ctx context.Context, orderID, actor string) (*model.Order, *model.CRMExport, error) {
	unlock := s.locks.Lock(orderID)
	defer unlock()

	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	if s.cfg.StrictProviderSelection && order.SelectedProvider == "" {
		return nil, nil, Validationf("order %s has no selected provider", orderID)
	}

	export := crm.Assemble(order)
	if err := s.crmWriter.Write(export); err != nil {
		return nil, nil, Persistence("write crm export", err)
	}

	now := time.Now().UTC()
	order.Status = model.StatusReadyForCRM
	order.CRMReadyDate = &now

	if err := s.records.Save(ctx, orderID, order); err != nil {
		zap.L().Error("crm export written but status flip failed",
			zap.String("order_id", orderID), zap.Error(err))
		return nil, nil, Persistence("save", err)
	}

	s.trail.Record(ctx, orderID, audit.EventCRMPackaged, actor, export.ExportID)

	// Salesforce delivery is best effort; the packaged export on disk is
	// the contract.
	if s.submitter != nil {
		if sfID, err := s.submitter.Submit(ctx, export); err != nil {
			zap.L().Warn("crm submit failed, export kept on disk",
				zap.String("order_id", orderID), zap.Error(err))
		} else {
			s.trail.Record(ctx, orderID, audit.EventCRMSubmitted, actor, sfID)
		}
	}

	return order, export, nil
}

// AuditTrail returns the recorded lifecycle events for an order.
func (s *Service) AuditTrail(ctx context.Context, orderID string) ([]audit.Entry, error) {
	return s.trail.ForOrder(ctx, orderID)
}

// load fetches an existing record, translating a missing one into the
// engine's NotFound.
func (s *Service) load(ctx context.Context, orderID string) (*model.Order, error) {
	order, err := s.records.Load(ctx, orderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, NotFound("order record", orderID)
		}
		return nil, Persistence("load", err)
	}
	return order, nil
}

func (s *Service) folderExists(orderID string) bool {
	info, err := os.Stat(filepath.Join(s.paths.OrdersDir, orderID))
	return err == nil && info.IsDir()
}
