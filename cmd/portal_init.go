package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/clarity-dx/referral-portal/internal/audit"
	"github.com/clarity-dx/referral-portal/internal/auth"
	"github.com/clarity-dx/referral-portal/internal/config"
	"github.com/clarity-dx/referral-portal/internal/crm"
	"github.com/clarity-dx/referral-portal/internal/docview"
	"github.com/clarity-dx/referral-portal/internal/extraction"
	"github.com/clarity-dx/referral-portal/internal/ocr"
	"github.com/clarity-dx/referral-portal/internal/portal"
	"github.com/clarity-dx/referral-portal/internal/providers"
	"github.com/clarity-dx/referral-portal/internal/resilience"
	"github.com/clarity-dx/referral-portal/internal/store"
	anthropicpkg "github.com/clarity-dx/referral-portal/pkg/anthropic"
	"github.com/clarity-dx/referral-portal/pkg/geocode"
	"github.com/clarity-dx/referral-portal/pkg/salesforce"
)

// portalEnv holds the initialized services needed by the serve/process/orders
// commands.
type portalEnv struct {
	Service  *portal.Service
	Docs     *docview.Service
	Identity auth.IdentityProvider
	Issuer   *auth.TokenIssuer
	Audit    audit.Log
}

// Close releases resources held by the portal environment.
func (pe *portalEnv) Close() {
	if pe.Audit != nil {
		_ = pe.Audit.Close()
	}
}

// initPortal sets up the record store, OCR and LLM clients, the extraction
// pipeline, provider panel, CRM writer, and the lifecycle engine. Callers
// should defer env.Close().
func initPortal(ctx context.Context) (*portalEnv, error) {
	records, err := store.NewFileStore(cfg.Paths.ResultsDir)
	if err != nil {
		return nil, err
	}

	extractor, err := ocr.NewExtractor(cfg.OCR)
	if err != nil {
		return nil, err
	}

	retry := retryFromConfig(cfg.Retry)

	anthropicClient := anthropicpkg.NewClient(cfg.Anthropic.Key)
	formatter, err := extraction.NewFormatter(anthropicClient, cfg.Anthropic, retry)
	if err != nil {
		return nil, err
	}

	geoOpts := []geocode.Option{geocode.WithRateLimit(cfg.Geocode.RatePerSec)}
	if cfg.Geocode.GoogleKey != "" {
		geoOpts = append(geoOpts, geocode.WithGoogleAPIKey(cfg.Geocode.GoogleKey))
	}
	geocoder := geocode.NewClient(geoOpts...)

	pipeline := extraction.NewPipeline(extractor, formatter, geocoder, cfg.Paths, retry)

	roster, err := providers.LoadPanel(cfg.Providers.PanelPath, cfg.Providers.Sheet)
	if err != nil {
		zap.L().Warn("provider panel unavailable, provider matching disabled", zap.Error(err))
	}
	locator := providers.NewPanelLocator(roster)

	crmWriter, err := crm.NewWriter(cfg.Paths.CRMDir)
	if err != nil {
		return nil, err
	}

	var submitter *crm.Submitter
	if cfg.Salesforce.Domain != "" {
		sfClient, err := salesforce.Connect(salesforce.Creds{
			Domain:         cfg.Salesforce.Domain,
			Username:       cfg.Salesforce.Username,
			ConsumerKey:    cfg.Salesforce.ConsumerKey,
			ConsumerRSAPem: cfg.Salesforce.ConsumerRSAPem,
		})
		if err != nil {
			return nil, err
		}
		submitter = crm.NewSubmitter(sfClient, cfg.Salesforce.Object)
		zap.L().Info("salesforce submission enabled", zap.String("object", cfg.Salesforce.Object))
	}

	var trail audit.Log
	if cfg.Audit.DBPath != "" {
		sqliteLog, err := audit.NewSQLite(cfg.Audit.DBPath)
		if err != nil {
			return nil, err
		}
		if err := sqliteLog.Migrate(ctx); err != nil {
			_ = sqliteLog.Close()
			return nil, err
		}
		trail = sqliteLog
	}

	svc := portal.NewService(records, pipeline, locator, crmWriter, submitter, trail,
		cfg.Paths, cfg.Portal, retry)

	issuer, err := auth.NewTokenIssuer(cfg.Auth.JWTSecret, time.Duration(cfg.Auth.TokenTTLMins)*time.Minute)
	if err != nil {
		return nil, err
	}

	return &portalEnv{
		Service:  svc,
		Docs:     docview.NewService(cfg.Paths),
		Identity: auth.NewStaticProvider(cfg.Auth.Users),
		Issuer:   issuer,
		Audit:    trail,
	}, nil
}

// retryFromConfig converts the millisecond-based config knobs into the
// duration-based retry policy, falling back to defaults for zero values.
func retryFromConfig(rc config.RetryConfig) resilience.RetryConfig {
	out := resilience.DefaultRetryConfig()
	if rc.MaxAttempts > 0 {
		out.MaxAttempts = rc.MaxAttempts
	}
	if rc.InitialBackoffMs > 0 {
		out.InitialBackoff = time.Duration(rc.InitialBackoffMs) * time.Millisecond
	}
	if rc.MaxBackoffMs > 0 {
		out.MaxBackoff = time.Duration(rc.MaxBackoffMs) * time.Millisecond
	}
	if rc.Multiplier > 0 {
		out.Multiplier = rc.Multiplier
	}
	if rc.JitterFraction > 0 {
		out.JitterFraction = rc.JitterFraction
	}
	return out
}
