package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"excel2web/internal/model"
)

// InsertSheetSummaries 写入本次导入各工作表的处理摘要（用于追溯）
func (s *Store) InsertSheetSummaries(ctx context.Context, runID int64, sheets []model.SheetSummary) error {
	if len(sheets) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		for _, sh := range sheets {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO import_sheet (import_run_id, sheet_name, status, row_count, error_count, duration_ms)
				VALUES (?, ?, ?, ?, ?, ?)
			`, runID, sh.SheetName, sh.Status, sh.Rows, sh.Errors, sh.DurationMS)
			if err != nil {
				return fmt.Errorf("failed to insert import sheet: %w", err)
			}
		}
		return nil
	})
}

// ListSheetSummaries 导入运行的工作表摘要
func (s *Store) ListSheetSummaries(ctx context.Context, runID int64) ([]model.SheetSummary, error) {
	out := []model.SheetSummary{}
	if err := s.db.SelectContext(ctx, &out, `
		SELECT id, import_run_id, sheet_name, status, row_count, error_count, duration_ms
		FROM import_sheet WHERE import_run_id = ? ORDER BY id
	`, runID); err != nil {
		return nil, fmt.Errorf("failed to list import sheets: %w", err)
	}
	return out, nil
}
