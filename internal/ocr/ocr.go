// Package ocr extracts text from intake documents (PDFs and scanned
// images). The portal treats OCR as an external collaborator: one call per
// document, text in, no side effects.
package ocr

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/clarity-dx/referral-portal/internal/config"
)

// Extractor extracts text content from one document file.
type Extractor interface {
	ExtractText(ctx context.Context, path string) (string, error)
}

// NewExtractor creates an Extractor based on config.
func NewExtractor(cfg config.OCRConfig) (Extractor, error) {
	switch cfg.Provider {
	case "local", "":
		return NewPdfToText(cfg.PdfToTextPath), nil
	case "mistral":
		if cfg.MistralKey == "" {
			return nil, eris.New("ocr: mistral provider requires mistral_api_key")
		}
		return NewMistralOCR(cfg.MistralKey, cfg.MistralModel), nil
	default:
		return nil, eris.Errorf("ocr: unknown provider %q", cfg.Provider)
	}
}
