package crm

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/clarity-dx/referral-portal/internal/model"
)

// Writer persists CRM exports as side files next to the order records.
type Writer struct {
	dir string
}

// NewWriter creates the export directory if needed.
func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "crm: create export dir %s", dir)
	}
	return &Writer{dir: dir}, nil
}

// Path returns the export file path for an order.
func (w *Writer) Path(orderID string) string {
	return filepath.Join(w.dir, orderID+"_crm.json")
}

// Write saves the export atomically: temp file in the same directory, sync,
// then rename.
func (w *Writer) Write(export *model.CRMExport) error {
	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return eris.Wrapf(err, "crm: marshal export %s", export.OrderID)
	}

	tmp, err := os.CreateTemp(w.dir, export.OrderID+"_crm_*.tmp")
	if err != nil {
		return eris.Wrap(err, "crm: create temp file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return eris.Wrap(err, "crm: write export")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return eris.Wrap(err, "crm: sync export")
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "crm: close export")
	}

	if err := os.Rename(tmpName, w.Path(export.OrderID)); err != nil {
		return eris.Wrap(err, "crm: rename export")
	}
	return nil
}

// Load reads a previously written export.
func (w *Writer) Load(orderID string) (*model.CRMExport, error) {
	data, err := os.ReadFile(w.Path(orderID))
	if err != nil {
		return nil, eris.Wrapf(err, "crm: read export %s", orderID)
	}
	var export model.CRMExport
	if err := json.Unmarshal(data, &export); err != nil {
		return nil, eris.Wrapf(err, "crm: parse export %s", orderID)
	}
	return &export, nil
}
