package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

// 项目级设置项
const (
	SettingOpeningBalance = "opening_balance"
)

// GetSetting 获取项目设置项
func (s *Store) GetSetting(ctx context.Context, projectID int64, key string) (string, error) {
	var value string
	err := s.db.GetContext(ctx, &value, `SELECT value FROM project_setting WHERE project_id = ? AND key = ?`, projectID, key)
	if err != nil {
		return "", notFound(err)
	}
	return value, nil
}

// GetSettingFloat 获取浮点设置项，不存在时返回 def
func (s *Store) GetSettingFloat(ctx context.Context, projectID int64, key string, def float64) (float64, error) {
	value, err := s.GetSetting(ctx, projectID, key)
	if errors.Is(err, ErrNotFound) {
		return def, nil
	}
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("setting %s is not a number: %w", key, err)
	}
	return f, nil
}

// SetSetting 设置项目设置项
func (s *Store) SetSetting(ctx context.Context, projectID int64, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO project_setting (project_id, key, value) VALUES (?, ?, ?)
		ON CONFLICT(project_id, key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, projectID, key, value)
	if err != nil {
		return fmt.Errorf("failed to set setting %s: %w", key, err)
	}
	return nil
}

// GetAllSettings 项目的全部设置项
func (s *Store) GetAllSettings(ctx context.Context, projectID int64) (map[string]string, error) {
	var rows []struct {
		Key   string `db:"key"`
		Value string `db:"value"`
	}
	if err := s.db.SelectContext(ctx, &rows, `SELECT key, value FROM project_setting WHERE project_id = ?`, projectID); err != nil {
		return nil, fmt.Errorf("failed to list settings: %w", err)
	}
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.Key] = r.Value
	}
	return out, nil
}
