// Package store persists one JSON record per order under the results
// directory. There is no cross-process locking: concurrent writers in
// separate processes can lose an update. In-process callers serialize
// read-modify-write sequences through the exported KeyedMutex.
package store

import (
	"context"
	"errors"

	"github.com/clarity-dx/referral-portal/internal/model"
)

// ErrNotFound is returned by Load when no record exists for the order.
var ErrNotFound = errors.New("record not found")

// RecordStore reads and writes whole order records. Each call is a full
// document read or replace.
type RecordStore interface {
	Load(ctx context.Context, orderID string) (*model.Order, error)
	Save(ctx context.Context, orderID string, order *model.Order) error
	Exists(orderID string) bool
}
