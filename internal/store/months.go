package store

import (
	"context"
	"fmt"
)

// MonthStat 可用月份统计
type MonthStat struct {
	Month     string `db:"month" json:"month"`
	FactRows  int    `db:"fact_rows" json:"factRows"`
	PlanRows  int    `db:"plan_rows" json:"planRows"`
	TotalRows int    `db:"-" json:"totalRows"`
}

// ListAvailableMonths 列出作用域内存在实物量或计划数据的月份（YYYY-MM，倒序）
func (s *Store) ListAvailableMonths(ctx context.Context, sc Scope) ([]MonthStat, error) {
	q := fmt.Sprintf(`
		WITH f AS (
			SELECT strftime('%%Y-%%m', t.date) AS ym FROM fact_volume_daily t WHERE %s
		), p AS (
			SELECT strftime('%%Y-%%m', t.month) AS ym FROM plan_volume_monthly t WHERE %s
		), ym AS (
			SELECT ym FROM f UNION SELECT ym FROM p
		)
		SELECT
			ym.ym AS month,
			(SELECT COUNT(1) FROM f WHERE f.ym = ym.ym) AS fact_rows,
			(SELECT COUNT(1) FROM p WHERE p.ym = ym.ym) AS plan_rows
		FROM ym
		WHERE ym.ym IS NOT NULL
		ORDER BY ym.ym DESC
	`, TableFactVolume.effective("t"), TablePlanMonthly.effective("t"))

	args := append(sc.args(), sc.args()...)
	out := []MonthStat{}
	if err := s.db.SelectContext(ctx, &out, q, args...); err != nil {
		return nil, fmt.Errorf("query available months failed: %w", err)
	}
	for i := range out {
		out[i].TotalRows = out[i].FactRows + out[i].PlanRows
	}
	return out, nil
}
