package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/clarity-dx/referral-portal/internal/model"
)

// FileStore keeps each order record at {dir}/{order_id}_results.json.
type FileStore struct {
	dir string
}

// NewFileStore creates the results directory if needed and returns a store
// rooted there.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrap(err, "store: create results dir")
	}
	return &FileStore{dir: dir}, nil
}

// Path returns the on-disk location of an order's record.
func (s *FileStore) Path(orderID string) string {
	return filepath.Join(s.dir, orderID+"_results.json")
}

// Exists reports whether a record has been materialized for the order.
func (s *FileStore) Exists(orderID string) bool {
	_, err := os.Stat(s.Path(orderID))
	return err == nil
}

// Load reads and decodes one record. Returns ErrNotFound when the record
// has never been written.
func (s *FileStore) Load(_ context.Context, orderID string) (*model.Order, error) {
	data, err := os.ReadFile(s.Path(orderID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "store: read record %s", orderID)
	}
	var order model.Order
	if err := json.Unmarshal(data, &order); err != nil {
		return nil, eris.Wrapf(err, "store: decode record %s", orderID)
	}
	if order.OrderID == "" {
		order.OrderID = orderID
	}
	return &order, nil
}

// Save replaces the record atomically: write to a temp file in the same
// directory, flush, then rename over the target. A crash mid-write leaves
// the previous record intact rather than a half-written file.
func (s *FileStore) Save(_ context.Context, orderID string, order *model.Order) error {
	data, err := json.MarshalIndent(order, "", "  ")
	if err != nil {
		return eris.Wrapf(err, "store: encode record %s", orderID)
	}

	tmp, err := os.CreateTemp(s.dir, orderID+"_results-*.tmp")
	if err != nil {
		return eris.Wrapf(err, "store: create temp for %s", orderID)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return eris.Wrapf(err, "store: write record %s", orderID)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return eris.Wrapf(err, "store: sync record %s", orderID)
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrapf(err, "store: close temp for %s", orderID)
	}
	if err := os.Rename(tmpName, s.Path(orderID)); err != nil {
		return eris.Wrapf(err, "store: replace record %s", orderID)
	}
	return nil
}
