package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Scope 报表读取作用域：手工行 ∪ RunID 所在运行的行；RunID 为 nil 时只有手工行
type Scope struct {
	ProjectID int64
	RunID     *int64
}

func (sc Scope) args() []any {
	var run any
	if sc.RunID != nil {
		run = *sc.RunID
	}
	return []any{sc.ProjectID, run}
}

// ResolveScope 确定读取作用域：显式指定的运行必须属于该项目；
// 未指定时取最近一次完成的运行，没有完成的运行则只读手工行
func (s *Store) ResolveScope(ctx context.Context, projectID int64, runID *int64) (Scope, error) {
	sc := Scope{ProjectID: projectID}
	if runID != nil {
		run, err := s.GetRun(ctx, *runID)
		if err != nil {
			return sc, err
		}
		if run.ProjectID != projectID {
			return sc, fmt.Errorf("import run %d not in project %d: %w", *runID, projectID, ErrNotFound)
		}
		sc.RunID = &run.ID
		return sc, nil
	}

	run, err := s.LatestCompletedRun(ctx, projectID)
	if errors.Is(err, ErrNotFound) {
		return sc, nil
	}
	if err != nil {
		return sc, err
	}
	sc.RunID = &run.ID
	return sc, nil
}

// ReadFilter 报表读取条件，日期区间为闭区间
type ReadFilter struct {
	Scope
	From time.Time
	To   time.Time
	// WBS 路径前缀，空表示不过滤
	WBS string
}

func (f ReadFilter) wbsLike() string {
	return escapeLike(strings.TrimSpace(f.WBS)) + "%"
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike 转义 LIKE 通配符，配合 ESCAPE '\' 使用
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// effectiveBaseline 有效基准价格 CTE，参数为 Scope.args()
func effectiveBaseline() string {
	return fmt.Sprintf(`eb AS (
		SELECT b.operation_code, b.category, b.item_name, b.price
		FROM baseline_volume b
		WHERE %s AND b.price IS NOT NULL
	)`, TableBaseline.effective("b"))
}

// FactPoint 一条有效的日实物量记录，金额已按基准价格补全
type FactPoint struct {
	Date          time.Time `db:"date"`
	OperationCode string    `db:"operation_code"`
	OperationName string    `db:"operation_name"`
	Category      string    `db:"category"`
	ItemName      string    `db:"item_name"`
	WBS           string    `db:"wbs"`
	Discipline    string    `db:"discipline"`
	Block         string    `db:"block"`
	Floor         string    `db:"floor"`
	UGPR          string    `db:"ugpr"`
	Qty           float64   `db:"qty"`
	// Amount 显式金额；否则 qty × 单价（精确匹配 → 作业+类别均价 → 0）
	Amount float64 `db:"amount"`
}

// FactVolumes 区间内的有效日实物量
func (s *Store) FactVolumes(ctx context.Context, f ReadFilter) ([]FactPoint, error) {
	q := `WITH ` + effectiveBaseline() + `
		SELECT f.date, f.operation_code,
			COALESCE(f.operation_name, o.name, f.operation_code) AS operation_name,
			f.category, f.item_name,
			COALESCE(f.wbs, w.path, '') AS wbs,
			COALESCE(f.discipline, o.discipline, '') AS discipline,
			COALESCE(f.block, o.block, '') AS block,
			COALESCE(f.floor, o.floor, '') AS floor,
			COALESCE(f.ugpr, o.ugpr, '') AS ugpr,
			f.qty,
			COALESCE(f.amount, f.qty * COALESCE(
				(SELECT eb.price FROM eb
					WHERE eb.operation_code = f.operation_code AND eb.category = f.category AND eb.item_name = f.item_name
					LIMIT 1),
				(SELECT AVG(eb.price) FROM eb
					WHERE eb.operation_code = f.operation_code AND eb.category = f.category),
				0)) AS amount
		FROM fact_volume_daily f
		LEFT JOIN operation o ON o.project_id = f.project_id AND o.code = f.operation_code
		LEFT JOIN wbs w ON w.id = o.wbs_id
		WHERE ` + TableFactVolume.effective("f") + ` AND f.date >= ? AND f.date <= ?`

	args := append(f.args(), f.args()...)
	args = append(args, dateArg(f.From), dateArg(f.To))
	if strings.TrimSpace(f.WBS) != "" {
		q += ` AND COALESCE(f.wbs, w.path, '') LIKE ? ESCAPE '\'`
		args = append(args, f.wbsLike())
	}
	q += ` ORDER BY f.date, f.operation_code`

	out := []FactPoint{}
	if err := s.db.SelectContext(ctx, &out, q, args...); err != nil {
		return nil, fmt.Errorf("failed to read fact volumes: %w", err)
	}
	return out, nil
}

// PlanPoint 一条有效的月度计划量，附带作业维度与作业平均基准单价
type PlanPoint struct {
	Month         time.Time `db:"month"`
	OperationCode string    `db:"operation_code"`
	OperationName string    `db:"operation_name"`
	Scenario      string    `db:"scenario"`
	WBS           string    `db:"wbs"`
	Discipline    string    `db:"discipline"`
	Block         string    `db:"block"`
	Floor         string    `db:"floor"`
	UGPR          string    `db:"ugpr"`
	Qty           float64   `db:"qty"`
	Price         float64   `db:"price"`
}

// PlanMonthly 与区间相交的月份中某口径的有效月度计划
func (s *Store) PlanMonthly(ctx context.Context, f ReadFilter, scenario string) ([]PlanPoint, error) {
	q := `WITH ` + effectiveBaseline() + `
		SELECT p.month, p.operation_code,
			COALESCE(o.name, p.operation_name, p.operation_code) AS operation_name,
			p.scenario,
			COALESCE(w.path, '') AS wbs,
			COALESCE(o.discipline, '') AS discipline,
			COALESCE(o.block, '') AS block,
			COALESCE(o.floor, '') AS floor,
			COALESCE(o.ugpr, '') AS ugpr,
			p.qty,
			COALESCE((SELECT AVG(eb.price) FROM eb WHERE eb.operation_code = p.operation_code), 0) AS price
		FROM plan_volume_monthly p
		LEFT JOIN operation o ON o.project_id = p.project_id AND o.code = p.operation_code
		LEFT JOIN wbs w ON w.id = o.wbs_id
		WHERE ` + TablePlanMonthly.effective("p") + ` AND p.scenario = ? AND p.month >= ? AND p.month <= ?`

	args := append(f.args(), f.args()...)
	args = append(args, scenario, dateArg(monthStart(f.From)), dateArg(f.To))
	if strings.TrimSpace(f.WBS) != "" {
		q += ` AND COALESCE(w.path, '') LIKE ? ESCAPE '\'`
		args = append(args, f.wbsLike())
	}
	q += ` ORDER BY p.month, p.operation_code`

	out := []PlanPoint{}
	if err := s.db.SelectContext(ctx, &out, q, args...); err != nil {
		return nil, fmt.Errorf("failed to read monthly plan: %w", err)
	}
	return out, nil
}

// ResourcePoint 一条有效的日资源记录
type ResourcePoint struct {
	Date     time.Time `db:"date"`
	Name     string    `db:"resource_name"`
	Category string    `db:"category"`
	Scenario string    `db:"scenario"`
	Qty      float64   `db:"qty"`
	Manhours float64   `db:"manhours"`
}

// ResourceDaily 区间内的有效资源/工时记录
func (s *Store) ResourceDaily(ctx context.Context, f ReadFilter) ([]ResourcePoint, error) {
	q := `
		SELECT r.date, r.resource_name, r.category, r.scenario, r.qty, COALESCE(r.manhours, 0) AS manhours
		FROM fact_resource_daily r
		WHERE ` + TableResourceDaily.effective("r") + ` AND r.date >= ? AND r.date <= ?
		ORDER BY r.date, r.resource_name`
	args := append(f.args(), dateArg(f.From), dateArg(f.To))

	out := []ResourcePoint{}
	if err := s.db.SelectContext(ctx, &out, q, args...); err != nil {
		return nil, fmt.Errorf("failed to read resources: %w", err)
	}
	return out, nil
}

// FinPoint 一条有效的月度财务金额（BDR / BDDS）
type FinPoint struct {
	Month     time.Time `db:"month"`
	Account   string    `db:"account_name"`
	Parent    string    `db:"parent_name"`
	Scenario  string    `db:"scenario"`
	Direction string    `db:"direction"`
	Amount    float64   `db:"amount"`
}

// PnLMonthly 区间内某口径的有效 BDR 金额
func (s *Store) PnLMonthly(ctx context.Context, f ReadFilter, scenario string) ([]FinPoint, error) {
	q := `
		SELECT t.month, t.account_name, COALESCE(t.parent_name, '') AS parent_name, t.scenario, '' AS direction, t.amount
		FROM fact_pnl_monthly t
		WHERE ` + TablePnL.effective("t") + ` AND t.scenario = ? AND t.month >= ? AND t.month <= ?
		ORDER BY t.month, t.account_name`
	args := append(f.args(), scenario, dateArg(monthStart(f.From)), dateArg(f.To))

	out := []FinPoint{}
	if err := s.db.SelectContext(ctx, &out, q, args...); err != nil {
		return nil, fmt.Errorf("failed to read pnl: %w", err)
	}
	return out, nil
}

// CashflowMonthly 区间内某口径的有效 BDDS 金额
func (s *Store) CashflowMonthly(ctx context.Context, f ReadFilter, scenario string) ([]FinPoint, error) {
	q := `
		SELECT t.month, t.account_name, COALESCE(t.parent_name, '') AS parent_name, t.scenario, t.direction, t.amount
		FROM fact_cashflow_monthly t
		WHERE ` + TableCashflow.effective("t") + ` AND t.scenario = ? AND t.month >= ? AND t.month <= ?
		ORDER BY t.month, t.account_name, t.direction`
	args := append(f.args(), scenario, dateArg(monthStart(f.From)), dateArg(f.To))

	out := []FinPoint{}
	if err := s.db.SelectContext(ctx, &out, q, args...); err != nil {
		return nil, fmt.Errorf("failed to read cashflow: %w", err)
	}
	return out, nil
}

// SalesPoint 一条有效的月度销售面积
type SalesPoint struct {
	Month    time.Time `db:"month"`
	ItemName string    `db:"item_name"`
	Scenario string    `db:"scenario"`
	AreaM2   float64   `db:"area_m2"`
}

// SalesMonthly 区间内的有效销售面积（全部口径）
func (s *Store) SalesMonthly(ctx context.Context, f ReadFilter) ([]SalesPoint, error) {
	q := `
		SELECT t.month, t.item_name, t.scenario, t.area_m2
		FROM sales_monthly t
		WHERE ` + TableSales.effective("t") + ` AND t.month >= ? AND t.month <= ?
		ORDER BY t.month, t.item_name`
	args := append(f.args(), dateArg(monthStart(f.From)), dateArg(f.To))

	out := []SalesPoint{}
	if err := s.db.SelectContext(ctx, &out, q, args...); err != nil {
		return nil, fmt.Errorf("failed to read sales: %w", err)
	}
	return out, nil
}
