package report

import (
	"context"
	"math"
	"time"

	"excel2web/internal/model"
	"excel2web/internal/store"
)

// PnLRow BDR 月度科目金额
type PnLRow struct {
	Month   string  `json:"month"`
	Account string  `json:"account"`
	Amount  float64 `json:"amount"`
}

// PnL 计划口径的月度 BDR
func (e *Engine) PnL(ctx context.Context, q Query) ([]PnLRow, error) {
	f, err := e.filter(ctx, q, q)
	if err != nil {
		return nil, err
	}
	rows, err := e.store.PnLMonthly(ctx, f, model.ScenarioPlan)
	if err != nil {
		return nil, err
	}
	out := make([]PnLRow, len(rows))
	for i, r := range rows {
		out[i] = PnLRow{Month: monthStart(r.Month).Format(dayLayout), Account: r.Account, Amount: r.Amount}
	}
	return out, nil
}

// CashPoint 月度净现金流与期末余额
type CashPoint struct {
	Month   string  `json:"month"`
	Net     float64 `json:"net"`
	Balance float64 `json:"balance"`
}

// CashAccountRow BDDS 月度科目金额
type CashAccountRow struct {
	Month     string  `json:"month"`
	Account   string  `json:"account"`
	Direction string  `json:"direction"`
	Amount    float64 `json:"amount"`
}

// Cashflow 现金流报表
type Cashflow struct {
	Series    []CashPoint      `json:"series"`
	ByAccount []CashAccountRow `json:"by_account"`
}

// Cashflow 计划口径的月度净现金流，余额从期初余额开始累计。
// opening 为 nil 时读取项目设置 opening_balance（默认 0）
func (e *Engine) Cashflow(ctx context.Context, q Query, opening *float64) (*Cashflow, error) {
	f, err := e.filter(ctx, q, q)
	if err != nil {
		return nil, err
	}

	balance := 0.0
	if opening != nil {
		balance = *opening
	} else if balance, err = e.store.GetSettingFloat(ctx, q.ProjectID, store.SettingOpeningBalance, 0); err != nil {
		return nil, err
	}

	rows, err := e.store.CashflowMonthly(ctx, f, model.ScenarioPlan)
	if err != nil {
		return nil, err
	}

	out := &Cashflow{Series: []CashPoint{}, ByAccount: make([]CashAccountRow, len(rows))}
	net := make(map[time.Time]float64)
	for i, r := range rows {
		m := monthStart(r.Month)
		net[m] += r.Amount
		out.ByAccount[i] = CashAccountRow{
			Month:     m.Format(dayLayout),
			Account:   r.Account,
			Direction: r.Direction,
			Amount:    r.Amount,
		}
	}
	for _, m := range sortedPeriods(net) {
		balance += net[m]
		out.Series = append(out.Series, CashPoint{Month: m.Format(dayLayout), Net: net[m], Balance: balance})
	}
	return out, nil
}

// SalesSeries 月度计划/实际销售面积
type SalesSeries struct {
	Plan []Point `json:"plan"`
	Fact []Point `json:"fact"`
}

func (e *Engine) salesByScenario(ctx context.Context, q Query) (plan, fact map[time.Time]float64, err error) {
	f, err := e.filter(ctx, q, q)
	if err != nil {
		return nil, nil, err
	}
	rows, err := e.store.SalesMonthly(ctx, f)
	if err != nil {
		return nil, nil, err
	}
	plan = make(map[time.Time]float64)
	fact = make(map[time.Time]float64)
	for _, r := range rows {
		switch r.Scenario {
		case model.ScenarioPlan:
			plan[monthStart(r.Month)] += r.AreaM2
		case model.ScenarioFact:
			fact[monthStart(r.Month)] += r.AreaM2
		}
	}
	return plan, fact, nil
}

// SalesSeries 按月汇总的计划与实际销售面积
func (e *Engine) SalesSeries(ctx context.Context, q Query) (*SalesSeries, error) {
	plan, fact, err := e.salesByScenario(ctx, q)
	if err != nil {
		return nil, err
	}
	return &SalesSeries{Plan: toPoints(plan), Fact: toPoints(fact)}, nil
}

// SalesKPI 销售面积汇总
type SalesKPI struct {
	PlanM2      float64 `json:"plan_m2"`
	SoldM2      float64 `json:"sold_m2"`
	RemainingM2 float64 `json:"remaining_m2"`
	SoldPct     float64 `json:"sold_pct"`
}

// SalesKPI 计划面积、已售面积、剩余面积（不小于 0）与销售完成率
func (e *Engine) SalesKPI(ctx context.Context, q Query) (*SalesKPI, error) {
	plan, fact, err := e.salesByScenario(ctx, q)
	if err != nil {
		return nil, err
	}
	out := &SalesKPI{}
	for _, v := range plan {
		out.PlanM2 += v
	}
	for _, v := range fact {
		out.SoldM2 += v
	}
	out.RemainingM2 = math.Max(out.PlanM2-out.SoldM2, 0)
	out.SoldPct = pct(out.SoldM2, out.PlanM2)
	return out, nil
}
