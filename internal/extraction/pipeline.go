package extraction

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/clarity-dx/referral-portal/internal/config"
	"github.com/clarity-dx/referral-portal/internal/docview"
	"github.com/clarity-dx/referral-portal/internal/model"
	"github.com/clarity-dx/referral-portal/internal/ocr"
	"github.com/clarity-dx/referral-portal/internal/portal"
	"github.com/clarity-dx/referral-portal/internal/resilience"
	"github.com/clarity-dx/referral-portal/pkg/geocode"
)

// ocrExtensions are document types that go through the OCR provider.
var ocrExtensions = map[string]bool{
	".pdf":  true,
	".tif":  true,
	".tiff": true,
	".png":  true,
	".jpg":  true,
	".jpeg": true,
}

// Pipeline runs the full extraction for one order: per-document text
// extraction with OCR caching, one LLM formatting pass, and a best-effort
// geocode of the patient address.
type Pipeline struct {
	extractor ocr.Extractor
	formatter *Formatter
	geocoder  geocode.Client
	paths     config.PathsConfig
	retry     resilience.RetryConfig
}

// NewPipeline wires the pipeline collaborators. geocoder may be nil to
// disable address mapping.
func NewPipeline(extractor ocr.Extractor, formatter *Formatter, geocoder geocode.Client, paths config.PathsConfig, retry resilience.RetryConfig) *Pipeline {
	return &Pipeline{
		extractor: extractor,
		formatter: formatter,
		geocoder:  geocoder,
		paths:     paths,
		retry:     retry,
	}
}

// Run extracts structured data from every document in the order's intake
// folder. It fails with a validation error when the folder holds no
// readable documents, and an upstream error when OCR or the formatter
// fails.
func (p *Pipeline) Run(ctx context.Context, orderID string) (*model.ExtractedData, *model.MappingData, error) {
	folder := filepath.Join(p.paths.OrdersDir, orderID)
	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil, nil, portal.Persistence("read intake folder", err)
	}

	var texts []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		text, err := p.documentText(ctx, orderID, filepath.Join(folder, entry.Name()))
		if err != nil {
			return nil, nil, err
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		texts = append(texts, fmt.Sprintf("=== Document: %s ===\n%s", entry.Name(), text))
	}

	if len(texts) == 0 {
		return nil, nil, portal.Validationf("no valid documents found for order %s", orderID)
	}

	extracted, err := p.formatter.Format(ctx, strings.Join(texts, "\n\n"))
	if err != nil {
		return nil, nil, portal.Upstream("anthropic", err)
	}

	return extracted, p.geocodePatient(ctx, orderID, extracted), nil
}

// documentText returns the text of one intake document. OCR output is
// cached beside the results so reprocessing and the document viewer can
// reuse it; unsupported file types are skipped with an empty string.
func (p *Pipeline) documentText(ctx context.Context, orderID, path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))

	switch {
	case ext == ".txt":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", portal.Persistence("read document", err)
		}
		return string(data), nil

	case ext == ".eml":
		text, err := docview.EmailText(path)
		if err != nil {
			zap.L().Warn("email parse failed, skipping document",
				zap.String("order_id", orderID),
				zap.String("file", filepath.Base(path)),
				zap.Error(err))
			return "", nil
		}
		return text, nil

	case ocrExtensions[ext]:
		return p.ocrText(ctx, orderID, path)

	default:
		zap.L().Debug("skipping unsupported document type",
			zap.String("order_id", orderID),
			zap.String("file", filepath.Base(path)))
		return "", nil
	}
}

func (p *Pipeline) ocrText(ctx context.Context, orderID, path string) (string, error) {
	cachePath := p.ocrCachePath(orderID, path)
	if data, err := os.ReadFile(cachePath); err == nil {
		return string(data), nil
	}

	cfg := p.retry
	cfg.OnRetry = resilience.LogRetries("ocr")
	text, err := resilience.Retry(ctx, cfg, func(ctx context.Context) (string, error) {
		return p.extractor.ExtractText(ctx, path)
	})
	if err != nil {
		return "", portal.Upstream("ocr", err)
	}

	// Cache write failures are not fatal: the text is already in hand.
	if err := os.MkdirAll(p.paths.OCRDir, 0o755); err == nil {
		if err := os.WriteFile(cachePath, []byte(text), 0o644); err != nil {
			zap.L().Warn("ocr cache write failed", zap.String("path", cachePath), zap.Error(err))
		}
	}

	return text, nil
}

func (p *Pipeline) ocrCachePath(orderID, docPath string) string {
	stem := strings.TrimSuffix(filepath.Base(docPath), filepath.Ext(docPath))
	return filepath.Join(p.paths.OCRDir, orderID+"_"+stem+".txt")
}

// geocodePatient resolves the extracted patient address to coordinates.
// Failures never fail the extraction: orders without location data simply
// cannot fetch providers until the address is corrected.
func (p *Pipeline) geocodePatient(ctx context.Context, orderID string, extracted *model.ExtractedData) *model.MappingData {
	if p.geocoder == nil {
		return nil
	}

	addr := geocode.AddressInput{
		Street:  patientField(extracted, "address"),
		City:    patientField(extracted, "city"),
		State:   patientField(extracted, "state"),
		ZipCode: patientField(extracted, "zip_code"),
	}
	if addr.OneLine() == "" {
		return nil
	}

	result, err := p.geocoder.Geocode(ctx, addr)
	if err != nil {
		zap.L().Warn("geocode failed",
			zap.String("order_id", orderID),
			zap.String("address", addr.OneLine()),
			zap.Error(err))
		return nil
	}
	if !result.Matched {
		zap.L().Info("address not matched by geocoder",
			zap.String("order_id", orderID),
			zap.String("address", addr.OneLine()))
		return nil
	}

	lat, lon := result.Latitude, result.Longitude
	return &model.MappingData{
		GeocodeData: &model.GeocodeData{
			Address:   result.Address,
			Latitude:  &lat,
			Longitude: &lon,
			Source:    result.Source,
			Quality:   result.Quality,
		},
	}
}

// patientField returns the string value of a patient-info field, skipping
// sentinels and non-string values.
func patientField(extracted *model.ExtractedData, name string) string {
	fv, ok := extracted.PatientInfo[name]
	if !ok || !fv.HasValue() {
		return ""
	}
	s, ok := fv.Value.(string)
	if !ok {
		return ""
	}
	return s
}
