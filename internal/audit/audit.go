// Package audit records lifecycle events per order in a local SQLite
// database. Writes are best effort: a failed audit insert is logged and
// never fails the operation that produced it.
package audit

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Event names recorded by the portal engine.
const (
	EventProcessed        = "processed"
	EventFieldsUpdated    = "fields_updated"
	EventApproved         = "approved"
	EventProviderSelected = "provider_selected"
	EventProvidersFetched = "providers_fetched"
	EventCRMPackaged      = "crm_packaged"
	EventCRMSubmitted     = "crm_submitted"
)

// Entry is one recorded lifecycle event.
type Entry struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"order_id"`
	Event     string    `json:"event"`
	Actor     string    `json:"actor,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Log is the audit trail consumed by the portal engine.
type Log interface {
	Record(ctx context.Context, orderID, event, actor, detail string)
	ForOrder(ctx context.Context, orderID string) ([]Entry, error)
	Close() error
}

// SQLiteLog implements Log using modernc.org/sqlite.
type SQLiteLog struct {
	db *sql.DB
}

// NewSQLite opens the audit database at the given path and configures WAL
// mode.
func NewSQLite(dsn string) (*SQLiteLog, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "audit: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "audit: exec %s", pragma)
		}
	}
	return &SQLiteLog{db: db}, nil
}

const auditMigration = `
CREATE TABLE IF NOT EXISTS audit_events (
	id         TEXT PRIMARY KEY,
	order_id   TEXT NOT NULL,
	event      TEXT NOT NULL,
	actor      TEXT,
	detail     TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_audit_events_order_id ON audit_events(order_id);
`

// Migrate creates the audit schema.
func (l *SQLiteLog) Migrate(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, auditMigration)
	return eris.Wrap(err, "audit: migrate")
}

func (l *SQLiteLog) Close() error {
	return l.db.Close()
}

// Record inserts one event. Failures are logged, not returned.
func (l *SQLiteLog) Record(ctx context.Context, orderID, event, actor, detail string) {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO audit_events (id, order_id, event, actor, detail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), orderID, event, actor, detail, time.Now().UTC())
	if err != nil {
		zap.L().Warn("audit record failed",
			zap.String("order_id", orderID),
			zap.String("event", event),
			zap.Error(err))
	}
}

// ForOrder returns the events recorded for one order, oldest first.
func (l *SQLiteLog) ForOrder(ctx context.Context, orderID string) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, order_id, event, COALESCE(actor, ''), COALESCE(detail, ''), created_at
		 FROM audit_events WHERE order_id = ? ORDER BY created_at, id`,
		orderID)
	if err != nil {
		return nil, eris.Wrap(err, "audit: query events")
	}
	defer rows.Close() //nolint:errcheck

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.OrderID, &e.Event, &e.Actor, &e.Detail, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "audit: scan event")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "audit: iterate events")
}

// NopLog discards events, for configurations without an audit database.
type NopLog struct{}

func (NopLog) Record(context.Context, string, string, string, string) {}
func (NopLog) ForOrder(context.Context, string) ([]Entry, error)      { return nil, nil }
func (NopLog) Close() error                                           { return nil }
