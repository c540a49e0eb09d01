package report

import (
	"context"
	"time"

	"excel2web/internal/model"
	"excel2web/internal/store"
)

// Series 计划-实际时间序列
type Series struct {
	Fact     []Point `json:"fact"`
	Plan     []Point `json:"plan"`
	Forecast []Point `json:"forecast,omitempty"`
}

// monthlyToPeriods 月粒度直接使用月度桶，日/周粒度先按天均摊再汇总
func monthlyToPeriods(monthly map[time.Time]float64, f store.ReadFilter, g model.Granularity) map[time.Time]float64 {
	if g == model.GranularityMonth {
		return monthly
	}
	return spreadMonthly(monthly, f.From, f.To, g)
}

func (e *Engine) planByPeriod(ctx context.Context, f store.ReadFilter, scenario string, g model.Granularity) (map[time.Time]float64, error) {
	rows, err := e.store.PlanMonthly(ctx, f, scenario)
	if err != nil {
		return nil, err
	}
	monthly := make(map[time.Time]float64)
	for _, p := range rows {
		monthly[monthStart(p.Month)] += p.Qty
	}
	return monthlyToPeriods(monthly, f, g), nil
}

// Series 实际量按周期汇总；计划/预测来自月度计划。
// 没有显式 forecast 口径时，对最后一个有实际值的周期之后做线性回归预测
func (e *Engine) Series(ctx context.Context, q SeriesQuery) (*Series, error) {
	f, err := e.filter(ctx, q, q.Query)
	if err != nil {
		return nil, err
	}

	facts, err := e.store.FactVolumes(ctx, f)
	if err != nil {
		return nil, err
	}
	fact := make(map[time.Time]float64)
	for _, p := range facts {
		fact[periodOf(p.Date, q.Granularity)] += p.Qty
	}

	plan, err := e.planByPeriod(ctx, f, model.ScenarioPlan, q.Granularity)
	if err != nil {
		return nil, err
	}
	forecast, err := e.planByPeriod(ctx, f, model.ScenarioForecast, q.Granularity)
	if err != nil {
		return nil, err
	}

	out := &Series{Fact: toPoints(fact), Plan: toPoints(plan)}
	if len(forecast) > 0 {
		out.Forecast = toPoints(forecast)
		return out, nil
	}

	periods := sortedPeriods(plan, fact)
	values := make([]float64, len(periods))
	for i, p := range periods {
		values[i] = fact[p]
	}
	predicted := autoForecast(values)
	for i, p := range periods {
		if v, ok := predicted[i]; ok {
			out.Forecast = append(out.Forecast, Point{Period: p.Format(dayLayout), Value: v})
		}
	}
	return out, nil
}

// ManhoursSeries 实际人工时按周期汇总
func (e *Engine) ManhoursSeries(ctx context.Context, q SeriesQuery) ([]Point, error) {
	f, err := e.filter(ctx, q, q.Query)
	if err != nil {
		return nil, err
	}
	rows, err := e.store.ResourceDaily(ctx, f)
	if err != nil {
		return nil, err
	}
	out := make(map[time.Time]float64)
	for _, r := range rows {
		if r.Scenario == model.ScenarioFact && r.Manhours != 0 {
			out[periodOf(r.Date, q.Granularity)] += r.Manhours
		}
	}
	return toPoints(out), nil
}

// MoneySeries 价值量（УГПР）序列
type MoneySeries struct {
	Series []Point `json:"series"`
	Plan   []Point `json:"plan"`
}

// UGPRSeries 实际金额按周期汇总；计划金额为月度计划量 × 作业平均基准单价
func (e *Engine) UGPRSeries(ctx context.Context, q SeriesQuery) (*MoneySeries, error) {
	f, err := e.filter(ctx, q, q.Query)
	if err != nil {
		return nil, err
	}

	facts, err := e.store.FactVolumes(ctx, f)
	if err != nil {
		return nil, err
	}
	fact := make(map[time.Time]float64)
	for _, p := range facts {
		fact[periodOf(p.Date, q.Granularity)] += p.Amount
	}

	plans, err := e.store.PlanMonthly(ctx, f, model.ScenarioPlan)
	if err != nil {
		return nil, err
	}
	monthly := make(map[time.Time]float64)
	for _, p := range plans {
		monthly[monthStart(p.Month)] += p.Qty * p.Price
	}

	return &MoneySeries{
		Series: toPoints(fact),
		Plan:   toPoints(monthlyToPeriods(monthly, f, q.Granularity)),
	}, nil
}
