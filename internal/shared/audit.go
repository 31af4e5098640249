package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditLog represents a record stored in audit_logs.
type AuditLog struct {
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

// AuditLogger writes records into audit_logs.
type AuditLogger struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool, logger *slog.Logger) *AuditLogger {
	return &AuditLogger{pool: pool, logger: logger}
}

// Record persists the log entry.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil || l.pool == nil {
		return errors.New("audit logger not initialised")
	}
	if log.Action == "" || log.Entity == "" || log.EntityID == "" {
		return errors.New("audit log requires action/entity/entity_id")
	}
	metaJSON, err := json.Marshal(log.Meta)
	if err != nil {
		return err
	}
	var at *time.Time
	if !log.At.IsZero() {
		at = &log.At
	}
	_, err = l.pool.Exec(ctx, `INSERT INTO audit_logs (action, entity, entity_id, meta, occurred_at) VALUES ($1, $2, $3, $4, COALESCE($5, NOW()))`, log.Action, log.Entity, log.EntityID, metaJSON, at)
	return err
}

// Committed records every committed mutation. Failures are logged only.
func (l *AuditLogger) Committed(ctx context.Context, evt CommitEvent) {
	err := l.Record(ctx, AuditLog{
		Action:   fmt.Sprintf("%s:%s", evt.Entity, evt.Action),
		Entity:   evt.Entity,
		EntityID: fmt.Sprintf("%d", evt.EntityID),
		Meta:     evt.Meta,
		At:       evt.At,
	})
	if err != nil && l != nil && l.logger != nil {
		l.logger.Warn("audit record failed", slog.String("entity", evt.Entity), slog.Any("error", err))
	}
}
