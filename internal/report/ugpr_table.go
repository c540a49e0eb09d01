package report

import (
	"context"
	"sort"
	"time"

	"excel2web/internal/model"
	"excel2web/internal/store"
)

// lifetimeStart 全周期窗口的起点
var lifetimeStart = time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC)

// Money 某时间窗内的计划/实际金额
type Money struct {
	Plan float64 `json:"plan"`
	Fact float64 `json:"fact"`
}

// Windows 作业在各时间窗内的金额
type Windows struct {
	Total  Money `json:"total"`
	Period Money `json:"period"`
	Month  Money `json:"month"`
	Week   Money `json:"week"`
	Day    Money `json:"day"`
}

// OperationMoney 作业级价值量
type OperationMoney struct {
	Code    string  `json:"code"`
	Name    string  `json:"name"`
	Windows Windows `json:"windows"`
}

type window struct {
	from, to time.Time
	pick     func(*Windows) *Money
}

// UGPROperationTable 按作业统计全周期（截至 today）、请求区间、
// today 所在的整月、整周与当天的计划/实际金额
func (e *Engine) UGPROperationTable(ctx context.Context, q Query, today time.Time) ([]OperationMoney, error) {
	f, err := e.filter(ctx, q, q)
	if err != nil {
		return nil, err
	}

	today = truncDay(today)
	week := weekStart(today)
	windows := []window{
		{lifetimeStart, today, func(w *Windows) *Money { return &w.Total }},
		{f.From, f.To, func(w *Windows) *Money { return &w.Period }},
		{monthStart(today), monthEnd(today), func(w *Windows) *Money { return &w.Month }},
		{week, week.AddDate(0, 0, 6), func(w *Windows) *Money { return &w.Week }},
		{today, today, func(w *Windows) *Money { return &w.Day }},
	}

	ops := make(map[string]*OperationMoney)
	get := func(code, name string) *OperationMoney {
		op, ok := ops[code]
		if !ok {
			op = &OperationMoney{Code: code, Name: name}
			ops[code] = op
		}
		return op
	}

	for _, w := range windows {
		wf := store.ReadFilter{Scope: f.Scope, From: w.from, To: w.to, WBS: f.WBS}

		facts, err := e.store.FactVolumes(ctx, wf)
		if err != nil {
			return nil, err
		}
		for _, p := range facts {
			w.pick(&get(p.OperationCode, p.OperationName).Windows).Fact += p.Amount
		}

		plans, err := e.store.PlanMonthly(ctx, wf, model.ScenarioPlan)
		if err != nil {
			return nil, err
		}
		for _, p := range plans {
			w.pick(&get(p.OperationCode, p.OperationName).Windows).Plan += proRate(p.Qty*p.Price, p.Month, w.from, w.to)
		}
	}

	out := make([]OperationMoney, 0, len(ops))
	for _, op := range ops {
		out = append(out, *op)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// UGPROperations 以引擎当前日期为 today
func (e *Engine) UGPROperations(ctx context.Context, q Query) ([]OperationMoney, error) {
	return e.UGPROperationTable(ctx, q, e.now())
}
