// Package docview serves the raw intake documents behind an order: file
// listings with cached OCR text attached, byte serving with extension-based
// content types, and a flattened text view for email messages.
package docview

import (
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/clarity-dx/referral-portal/internal/config"
	"github.com/clarity-dx/referral-portal/internal/portal"
)

// Document is one file in an order's intake folder.
type Document struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
	OCRText     string `json:"ocr_text,omitempty"`
	HasOCR      bool   `json:"has_ocr"`
}

// Service reads intake documents and their OCR cache.
type Service struct {
	paths config.PathsConfig
}

// NewService creates a document view service.
func NewService(paths config.PathsConfig) *Service {
	return &Service{paths: paths}
}

// ListDocuments lists the files in an order's intake folder, attaching
// cached OCR text when present. A missing OCR cache entry never fails the
// listing; the text is simply absent.
func (s *Service) ListDocuments(orderID string) ([]Document, error) {
	folder := filepath.Join(s.paths.OrdersDir, orderID)
	entries, err := os.ReadDir(folder)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, portal.NotFound("order folder", orderID)
		}
		return nil, portal.Persistence("list documents", err)
	}

	var docs []Document
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}

		doc := Document{
			Name:        entry.Name(),
			ContentType: contentTypeFor(entry.Name()),
			SizeBytes:   info.Size(),
		}

		stem := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		cachePath := filepath.Join(s.paths.OCRDir, orderID+"_"+stem+".txt")
		if data, err := os.ReadFile(cachePath); err == nil {
			doc.OCRText = string(data)
			doc.HasOCR = true
		} else if !os.IsNotExist(err) {
			zap.L().Warn("ocr cache read failed", zap.String("path", cachePath), zap.Error(err))
		}

		docs = append(docs, doc)
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].Name < docs[j].Name })
	return docs, nil
}

// ReadDocument returns a document's bytes and content type. The filename
// is confined to the order's folder.
func (s *Service) ReadDocument(orderID, filename string) ([]byte, string, error) {
	if filename != filepath.Base(filename) || strings.HasPrefix(filename, ".") {
		return nil, "", portal.Validationf("invalid document name %q", filename)
	}

	path := filepath.Join(s.paths.OrdersDir, orderID, filename)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", portal.NotFound("document", filename)
		}
		return nil, "", portal.Persistence("read document", err)
	}

	return data, contentTypeFor(filename), nil
}

// EmailView returns the parsed view of an email document in the order's
// intake folder.
func (s *Service) EmailView(orderID, filename string) (*Email, error) {
	if filename != filepath.Base(filename) {
		return nil, portal.Validationf("invalid document name %q", filename)
	}
	path := filepath.Join(s.paths.OrdersDir, orderID, filename)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, portal.NotFound("document", filename)
	}
	return ParseEmail(path)
}

func contentTypeFor(filename string) string {
	if ct := mime.TypeByExtension(filepath.Ext(filename)); ct != "" {
		return ct
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".eml":
		return "message/rfc822"
	case ".tif", ".tiff":
		return "image/tiff"
	default:
		return "application/octet-stream"
	}
}
