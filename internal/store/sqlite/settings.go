package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"order_notifier/internal/model"
)

const notifySettingsKey = "notify_settings"

func (s *Store) GetNotifySettings(ctx context.Context) (model.NotifySettings, bool, error) {
	var valueJSON string
	err := s.db.QueryRowContext(ctx, `
		SELECT value_json FROM settings WHERE key = ?
	`, notifySettingsKey).Scan(&valueJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.NotifySettings{}, false, nil
		}
		return model.NotifySettings{}, false, err
	}
	var out model.NotifySettings
	if err := json.Unmarshal([]byte(valueJSON), &out); err != nil {
		return model.NotifySettings{}, false, fmt.Errorf("decode notify settings: %w", err)
	}
	return out, true, nil
}

func (s *Store) UpsertNotifySettings(ctx context.Context, v model.NotifySettings) (model.NotifySettings, error) {
	v.FromName = strings.TrimSpace(v.FromName)
	v.FromAddress = strings.TrimSpace(v.FromAddress)
	v.BccAddress = strings.TrimSpace(v.BccAddress)
	if err := v.Validate(); err != nil {
		return model.NotifySettings{}, err
	}

	b, err := json.Marshal(v)
	if err != nil {
		return model.NotifySettings{}, err
	}
	now := time.Now().UnixMilli()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.NotifySettings{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO settings (key, value_json, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value_json = excluded.value_json,
			updated_at = excluded.updated_at
	`, notifySettingsKey, string(b), now); err != nil {
		return model.NotifySettings{}, err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO settings_audit (key, value_json, changed_at) VALUES (?, ?, ?)
	`, notifySettingsKey, string(b), now); err != nil {
		return model.NotifySettings{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.NotifySettings{}, err
	}
	return v, nil
}

// NotifySettingsHistory returns up to limit revisions, newest first.
func (s *Store) NotifySettingsHistory(ctx context.Context, limit int) ([]model.NotifySettingsChange, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT value_json, changed_at FROM settings_audit
		WHERE key = ? ORDER BY id DESC LIMIT ?
	`, notifySettingsKey, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.NotifySettingsChange, 0, limit)
	for rows.Next() {
		var (
			valueJSON string
			c         model.NotifySettingsChange
		)
		if err := rows.Scan(&valueJSON, &c.ChangedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(valueJSON), &c.Settings); err != nil {
			return nil, fmt.Errorf("decode settings revision: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
