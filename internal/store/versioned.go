package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// VersionedTable 双作用域事实表：每个自然键至多一行手工数据（import_run_id IS NULL），
// 每个导入运行至多一行（import_run_id = X）
type VersionedTable struct {
	Name string
	// Key 自然键列（不含 project_id / import_run_id）
	Key []string
	// Values 冲突时覆盖的列
	Values []string
}

var (
	TableBaseline = VersionedTable{
		Name:   "baseline_volume",
		Key:    []string{"operation_code", "category", "item_name"},
		Values: []string{"operation_name", "wbs", "discipline", "block", "floor", "ugpr", "unit", "plan_qty_total", "price", "amount_total"},
	}
	TableFactVolume = VersionedTable{
		Name:   "fact_volume_daily",
		Key:    []string{"operation_code", "category", "item_name", "date"},
		Values: []string{"operation_name", "wbs", "discipline", "block", "floor", "ugpr", "unit", "qty", "amount"},
	}
	TablePlanMonthly = VersionedTable{
		Name:   "plan_volume_monthly",
		Key:    []string{"operation_code", "month", "scenario"},
		Values: []string{"operation_name", "unit", "qty"},
	}
	TableResourceDaily = VersionedTable{
		Name:   "fact_resource_daily",
		Key:    []string{"resource_name", "category", "date", "scenario"},
		Values: []string{"qty", "manhours"},
	}
	TablePnL = VersionedTable{
		Name:   "fact_pnl_monthly",
		Key:    []string{"account_name", "month", "scenario"},
		Values: []string{"parent_name", "amount"},
	}
	TableCashflow = VersionedTable{
		Name:   "fact_cashflow_monthly",
		Key:    []string{"account_name", "month", "scenario", "direction"},
		Values: []string{"parent_name", "amount"},
	}
	TableSales = VersionedTable{
		Name:   "sales_monthly",
		Key:    []string{"item_name", "month", "scenario"},
		Values: []string{"area_m2"},
	}
)

// VersionedTables 所有版本化表
var VersionedTables = []VersionedTable{
	TableBaseline,
	TableFactVolume,
	TablePlanMonthly,
	TableResourceDaily,
	TablePnL,
	TableCashflow,
	TableSales,
}

// Row 一行数据，Key/Values 与表定义的列一一对应
type Row struct {
	Key    []any
	Values []any
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func (t VersionedTable) upsertSQL(conflict []string, where string) string {
	cols := append([]string{"project_id", "import_run_id"}, t.Key...)
	cols = append(cols, t.Values...)

	set := make([]string, len(t.Values))
	for i, c := range t.Values {
		set[i] = c + " = excluded." + c
	}
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(%s) WHERE %s DO UPDATE SET %s",
		t.Name, strings.Join(cols, ", "), placeholders(len(cols)),
		strings.Join(conflict, ", "), where, strings.Join(set, ", "),
	)
}

func (t VersionedTable) runUpsertSQL() string {
	conflict := append([]string{"project_id", "import_run_id"}, t.Key...)
	return t.upsertSQL(conflict, "import_run_id IS NOT NULL")
}

func (t VersionedTable) manualUpsertSQL() string {
	conflict := append([]string{"project_id"}, t.Key...)
	return t.upsertSQL(conflict, "import_run_id IS NULL")
}

func (t VersionedTable) manualExistsSQL() string {
	conds := make([]string, len(t.Key))
	for i, c := range t.Key {
		conds[i] = c + " = ?"
	}
	return fmt.Sprintf(
		"SELECT EXISTS (SELECT 1 FROM %s WHERE project_id = ? AND import_run_id IS NULL AND %s)",
		t.Name, strings.Join(conds, " AND "),
	)
}

// effective 读取时的作用域条件：手工行 ∪ 所选运行的行，且运行行被同键手工行遮蔽。
// 参数顺序：project_id, run_id（run_id 可为 nil）
func (t VersionedTable) effective(alias string) string {
	shadow := make([]string, len(t.Key))
	for i, c := range t.Key {
		shadow[i] = fmt.Sprintf("m.%s = %s.%s", c, alias, c)
	}
	return fmt.Sprintf(
		"%[1]s.project_id = ? AND (%[1]s.import_run_id IS NULL OR (%[1]s.import_run_id = ? AND NOT EXISTS ("+
			"SELECT 1 FROM %[2]s m WHERE m.project_id = %[1]s.project_id AND m.import_run_id IS NULL AND %[3]s)))",
		alias, t.Name, strings.Join(shadow, " AND "),
	)
}

func (t VersionedTable) check(r Row) error {
	if len(r.Key) != len(t.Key) || len(r.Values) != len(t.Values) {
		return fmt.Errorf("%s: row shape %d/%d, want %d/%d", t.Name, len(r.Key), len(r.Values), len(t.Key), len(t.Values))
	}
	return nil
}

// WriteResult 版本化写入统计
type WriteResult struct {
	Written int
	// SkippedManual 因存在同键手工行而跳过
	SkippedManual int
}

// WriteVersioned 在一个短事务中把行写入 runID 作用域：
// 同键已有手工行则跳过；否则插入，或覆盖同一运行中的同键行
func (s *Store) WriteVersioned(ctx context.Context, t VersionedTable, projectID, runID int64, rows []Row) (WriteResult, error) {
	var res WriteResult
	if len(rows) == 0 {
		return res, nil
	}
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		exists, err := tx.PreparexContext(ctx, t.manualExistsSQL())
		if err != nil {
			return fmt.Errorf("failed to prepare manual check for %s: %w", t.Name, err)
		}
		defer exists.Close()

		upsert, err := tx.PreparexContext(ctx, t.runUpsertSQL())
		if err != nil {
			return fmt.Errorf("failed to prepare upsert for %s: %w", t.Name, err)
		}
		defer upsert.Close()

		for _, r := range rows {
			if err := t.check(r); err != nil {
				return err
			}
			var manual bool
			if err := exists.GetContext(ctx, &manual, append([]any{projectID}, r.Key...)...); err != nil {
				return fmt.Errorf("failed to check manual row in %s: %w", t.Name, err)
			}
			if manual {
				res.SkippedManual++
				continue
			}

			args := append([]any{projectID, runID}, r.Key...)
			args = append(args, r.Values...)
			if _, err := upsert.ExecContext(ctx, args...); err != nil {
				return fmt.Errorf("failed to upsert %s: %w", t.Name, err)
			}
			res.Written++
		}
		return nil
	})
	if err != nil {
		return WriteResult{}, err
	}
	return res, nil
}

// UpsertManual 写入或覆盖一行手工数据（import_run_id 为 NULL）
func (s *Store) UpsertManual(ctx context.Context, t VersionedTable, projectID int64, r Row) error {
	if err := t.check(r); err != nil {
		return err
	}
	args := append([]any{projectID, nil}, r.Key...)
	args = append(args, r.Values...)
	if _, err := s.db.ExecContext(ctx, t.manualUpsertSQL(), args...); err != nil {
		return fmt.Errorf("failed to upsert manual %s: %w", t.Name, err)
	}
	return nil
}

// DeleteRunRows 删除某次运行在所有版本化表中的行（重跑前清理）
func (s *Store) DeleteRunRows(ctx context.Context, projectID, runID int64) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		return deleteRunRows(ctx, tx, projectID, runID)
	})
}

func deleteRunRows(ctx context.Context, tx *sqlx.Tx, projectID, runID int64) error {
	for _, t := range VersionedTables {
		q := fmt.Sprintf("DELETE FROM %s WHERE project_id = ? AND import_run_id = ?", t.Name)
		if _, err := tx.ExecContext(ctx, q, projectID, runID); err != nil {
			return fmt.Errorf("failed to delete run rows from %s: %w", t.Name, err)
		}
	}
	return nil
}

// CountRows 作用域内某表的有效行数
func (s *Store) CountRows(ctx context.Context, t VersionedTable, sc Scope) (int, error) {
	var n int
	q := fmt.Sprintf("SELECT COUNT(1) FROM %s t WHERE %s", t.Name, t.effective("t"))
	if err := s.db.GetContext(ctx, &n, q, sc.args()...); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", t.Name, err)
	}
	return n, nil
}
