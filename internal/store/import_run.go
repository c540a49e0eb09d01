package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"excel2web/internal/model"
)

const importRunColumns = `id, project_id, file_name, file_hash, status, rows_loaded, started_at, finished_at, created_at`

// GetOrCreateRun 按 (project_id, file_hash) 幂等创建导入运行；created 表示本次新建
func (s *Store) GetOrCreateRun(ctx context.Context, projectID int64, fileName, fileHash string) (*model.ImportRun, bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO import_run (project_id, file_name, file_hash, status)
		VALUES (?, ?, ?, 'queued')
		ON CONFLICT(project_id, file_hash) DO NOTHING
	`, projectID, fileName, fileHash)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create import run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	var run model.ImportRun
	err = s.db.GetContext(ctx, &run,
		`SELECT `+importRunColumns+` FROM import_run WHERE project_id = ? AND file_hash = ?`, projectID, fileHash)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load import run: %w", notFound(err))
	}
	return &run, n > 0, nil
}

// GetRun 按 id 查询导入运行
func (s *Store) GetRun(ctx context.Context, id int64) (*model.ImportRun, error) {
	var run model.ImportRun
	if err := s.db.GetContext(ctx, &run, `SELECT `+importRunColumns+` FROM import_run WHERE id = ?`, id); err != nil {
		return nil, notFound(err)
	}
	return &run, nil
}

// ListRuns 项目的导入运行（新的在前）
func (s *Store) ListRuns(ctx context.Context, projectID int64) ([]model.ImportRun, error) {
	out := []model.ImportRun{}
	if err := s.db.SelectContext(ctx, &out,
		`SELECT `+importRunColumns+` FROM import_run WHERE project_id = ? ORDER BY id DESC`, projectID); err != nil {
		return nil, fmt.Errorf("failed to list import runs: %w", err)
	}
	return out, nil
}

// LatestCompletedRun 最近一次成功完成的导入运行，没有时返回 ErrNotFound
func (s *Store) LatestCompletedRun(ctx context.Context, projectID int64) (*model.ImportRun, error) {
	var run model.ImportRun
	err := s.db.GetContext(ctx, &run, `
		SELECT `+importRunColumns+` FROM import_run
		WHERE project_id = ? AND status IN (?, ?)
		ORDER BY COALESCE(finished_at, created_at) DESC, id DESC
		LIMIT 1
	`, projectID, model.ImportSuccess, model.ImportSuccessWithErrors)
	if err != nil {
		return nil, notFound(err)
	}
	return &run, nil
}

// ListInFlightRuns 所有项目中排队或执行中的运行（启动时恢复队列用）
func (s *Store) ListInFlightRuns(ctx context.Context) ([]model.ImportRun, error) {
	out := []model.ImportRun{}
	if err := s.db.SelectContext(ctx, &out, `
		SELECT `+importRunColumns+` FROM import_run
		WHERE status IN (?, ?) ORDER BY id
	`, model.ImportQueued, model.ImportRunning); err != nil {
		return nil, fmt.Errorf("failed to list in-flight runs: %w", err)
	}
	return out, nil
}

// StatusUpdate SetImportStatus 的可选字段
type StatusUpdate struct {
	StartedAt  *time.Time
	FinishedAt *time.Time
	RowsLoaded *int
}

// SetImportStatus 更新导入状态；nil 字段保持不变
func (s *Store) SetImportStatus(ctx context.Context, id int64, status model.ImportStatus, upd StatusUpdate) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE import_run SET
			status = ?,
			started_at = COALESCE(?, started_at),
			finished_at = COALESCE(?, finished_at),
			rows_loaded = COALESCE(?, rows_loaded)
		WHERE id = ?
	`, status, upd.StartedAt, upd.FinishedAt, upd.RowsLoaded, id)
	if err != nil {
		return fmt.Errorf("failed to update import status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ClearImportErrors 删除运行的错误与工作表摘要（重跑前调用）
func (s *Store) ClearImportErrors(ctx context.Context, runID int64) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM import_error WHERE import_run_id = ?`, runID); err != nil {
			return fmt.Errorf("failed to clear import errors: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM import_sheet WHERE import_run_id = ?`, runID); err != nil {
			return fmt.Errorf("failed to clear import sheets: %w", err)
		}
		return nil
	})
}

// AddImportErrors 写入校验错误
func (s *Store) AddImportErrors(ctx context.Context, runID int64, errs []model.ValidationError) error {
	if len(errs) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		stmt, err := tx.PreparexContext(ctx, `
			INSERT INTO import_error (import_run_id, sheet, row_num, column_name, message)
			VALUES (?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare import error insert: %w", err)
		}
		defer stmt.Close()

		for _, e := range errs {
			var row any
			if e.Row > 0 {
				row = e.Row
			}
			if _, err := stmt.ExecContext(ctx, runID, e.Sheet, row, e.Column, e.Message); err != nil {
				return fmt.Errorf("failed to insert import error: %w", err)
			}
		}
		return nil
	})
}

// ListImportErrors 运行的全部校验错误
func (s *Store) ListImportErrors(ctx context.Context, runID int64) ([]model.ImportError, error) {
	out := []model.ImportError{}
	if err := s.db.SelectContext(ctx, &out, `
		SELECT id, import_run_id, sheet, row_num, column_name, message
		FROM import_error WHERE import_run_id = ? ORDER BY id
	`, runID); err != nil {
		return nil, fmt.Errorf("failed to list import errors: %w", err)
	}
	return out, nil
}

// DeleteRun 删除导入运行及其拥有的全部行；排队或执行中的运行返回 ErrConflict
func (s *Store) DeleteRun(ctx context.Context, id int64) (*model.ImportRun, error) {
	var run model.ImportRun
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &run, `SELECT `+importRunColumns+` FROM import_run WHERE id = ?`, id); err != nil {
			return notFound(err)
		}
		if run.Status.InFlight() {
			return fmt.Errorf("import run %d is %s: %w", id, run.Status, ErrConflict)
		}
		if err := deleteRunRows(ctx, tx, run.ProjectID, run.ID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM import_run WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete import run: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &run, nil
}
