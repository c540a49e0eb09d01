package report

import (
	"context"

	"excel2web/internal/model"
)

// KPI 区间汇总指标
type KPI struct {
	ProjectID   int64    `json:"project_id"`
	DateFrom    string   `json:"date_from"`
	DateTo      string   `json:"date_to"`
	FactQty     float64  `json:"fact_qty"`
	PlanQty     float64  `json:"plan_qty"`
	ProgressPct float64  `json:"progress_pct"`
	Manhours    float64  `json:"manhours"`
	// Productivity 人工时为 0 时为 null
	Productivity *float64 `json:"productivity"`
}

// KPI 实际量、按天折算的计划量、完成率、人工时与劳动生产率
func (e *Engine) KPI(ctx context.Context, q Query) (*KPI, error) {
	f, err := e.filter(ctx, q, q)
	if err != nil {
		return nil, err
	}

	facts, err := e.store.FactVolumes(ctx, f)
	if err != nil {
		return nil, err
	}
	plans, err := e.store.PlanMonthly(ctx, f, model.ScenarioPlan)
	if err != nil {
		return nil, err
	}
	resources, err := e.store.ResourceDaily(ctx, f)
	if err != nil {
		return nil, err
	}

	out := &KPI{
		ProjectID: q.ProjectID,
		DateFrom:  f.From.Format(dayLayout),
		DateTo:    f.To.Format(dayLayout),
	}
	for _, p := range facts {
		out.FactQty += p.Qty
	}
	for _, p := range plans {
		out.PlanQty += proRate(p.Qty, p.Month, f.From, f.To)
	}
	for _, r := range resources {
		if r.Scenario == model.ScenarioFact {
			out.Manhours += r.Manhours
		}
	}

	out.ProgressPct = pct(out.FactQty, out.PlanQty)
	if out.Manhours > 0 {
		v := out.FactQty / out.Manhours
		out.Productivity = &v
	}
	return out, nil
}
