package store

import (
	"context"
	"fmt"
	"strings"

	"excel2web/internal/model"
)

// EnsureProject 按 code 获取项目，不存在时创建
func (s *Store) EnsureProject(ctx context.Context, code, name string) (*model.Project, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, fmt.Errorf("project code required")
	}
	if strings.TrimSpace(name) == "" {
		name = code
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO project (code, name) VALUES (?, ?)
		ON CONFLICT(code) DO NOTHING
	`, code, name); err != nil {
		return nil, fmt.Errorf("failed to ensure project: %w", err)
	}

	var p model.Project
	if err := s.db.GetContext(ctx, &p, `SELECT id, code, name, created_at FROM project WHERE code = ?`, code); err != nil {
		return nil, fmt.Errorf("failed to load project %q: %w", code, notFound(err))
	}
	return &p, nil
}

// GetProject 按 id 查询项目
func (s *Store) GetProject(ctx context.Context, id int64) (*model.Project, error) {
	var p model.Project
	if err := s.db.GetContext(ctx, &p, `SELECT id, code, name, created_at FROM project WHERE id = ?`, id); err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// GetProjectByCode 按编码查询项目
func (s *Store) GetProjectByCode(ctx context.Context, code string) (*model.Project, error) {
	var p model.Project
	if err := s.db.GetContext(ctx, &p, `SELECT id, code, name, created_at FROM project WHERE code = ?`, strings.TrimSpace(code)); err != nil {
		return nil, fmt.Errorf("project %q: %w", code, notFound(err))
	}
	return &p, nil
}

// ListProjects 全部项目
func (s *Store) ListProjects(ctx context.Context) ([]model.Project, error) {
	out := []model.Project{}
	if err := s.db.SelectContext(ctx, &out, `SELECT id, code, name, created_at FROM project ORDER BY id`); err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	return out, nil
}
