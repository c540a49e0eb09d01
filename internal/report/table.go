package report

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"excel2web/internal/model"
	"excel2web/internal/store"
)

// emptyKey 维度为空时的分组键
const emptyKey = "—"

// TableRow 分组计划-实际表的一行
type TableRow struct {
	Key         string  `json:"key"`
	Fact        float64 `json:"fact"`
	Plan        float64 `json:"plan"`
	Variance    float64 `json:"variance"`
	ProgressPct float64 `json:"progress_pct"`
}

func groupKey(by model.Grouping, wbs, discipline, block, floor, ugpr string) string {
	var v string
	switch by {
	case model.GroupWBS:
		v = wbs
	case model.GroupDiscipline:
		v = discipline
	case model.GroupBlock:
		v = block
	case model.GroupFloor:
		v = floor
	case model.GroupUGPR:
		v = ugpr
	}
	if v = strings.TrimSpace(v); v == "" {
		return emptyKey
	}
	return v
}

// Table 按维度分组的计划-实际表，按偏差绝对值降序
func (e *Engine) Table(ctx context.Context, q TableQuery) ([]TableRow, error) {
	f, err := e.filter(ctx, q, q.Query)
	if err != nil {
		return nil, err
	}

	facts, err := e.store.FactVolumes(ctx, f)
	if err != nil {
		return nil, err
	}
	fact := make(map[string]float64)
	for _, p := range facts {
		fact[groupKey(q.By, p.WBS, p.Discipline, p.Block, p.Floor, p.UGPR)] += p.Qty
	}

	var plan map[string]float64
	switch q.Scenario {
	case model.TableActual:
		plan = fact
	case model.TablePlan:
		plan, err = e.groupedPlan(ctx, f, model.ScenarioPlan, q.By)
	case model.TableForecast:
		plan, err = e.groupedPlan(ctx, f, model.ScenarioForecast, q.By)
		if err == nil && len(plan) == 0 {
			plan, err = e.groupedAutoForecast(ctx, f, facts, q.By)
		}
	}
	if err != nil {
		return nil, err
	}

	keys := make(map[string]struct{}, len(fact)+len(plan))
	for k := range fact {
		keys[k] = struct{}{}
	}
	for k := range plan {
		keys[k] = struct{}{}
	}

	rows := make([]TableRow, 0, len(keys))
	for k := range keys {
		row := TableRow{Key: k, Fact: fact[k], Plan: plan[k]}
		row.Variance = row.Fact - row.Plan
		row.ProgressPct = pct(row.Fact, row.Plan)
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		vi, vj := math.Abs(rows[i].Variance), math.Abs(rows[j].Variance)
		if vi != vj {
			return vi > vj
		}
		return rows[i].Key < rows[j].Key
	})
	return rows, nil
}

// groupedPlan 作业级月度计划按天折算后按维度汇总
func (e *Engine) groupedPlan(ctx context.Context, f store.ReadFilter, scenario string, by model.Grouping) (map[string]float64, error) {
	rows, err := e.store.PlanMonthly(ctx, f, scenario)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64)
	for _, p := range rows {
		out[groupKey(by, p.WBS, p.Discipline, p.Block, p.Floor, p.UGPR)] += proRate(p.Qty, p.Month, f.From, f.To)
	}
	return out, nil
}

// groupedAutoForecast 每组按月做线性回归：
// 最后一个非零实际月之前取实际值，之后取预测值
func (e *Engine) groupedAutoForecast(ctx context.Context, f store.ReadFilter, facts []store.FactPoint, by model.Grouping) (map[string]float64, error) {
	plans, err := e.store.PlanMonthly(ctx, f, model.ScenarioPlan)
	if err != nil {
		return nil, err
	}

	factByGroup := make(map[string]map[time.Time]float64)
	planByGroup := make(map[string]map[time.Time]float64)
	bucket := func(m map[string]map[time.Time]float64, key string) map[time.Time]float64 {
		if m[key] == nil {
			m[key] = make(map[time.Time]float64)
		}
		return m[key]
	}
	for _, p := range facts {
		key := groupKey(by, p.WBS, p.Discipline, p.Block, p.Floor, p.UGPR)
		bucket(factByGroup, key)[monthStart(p.Date)] += p.Qty
	}
	for _, p := range plans {
		key := groupKey(by, p.WBS, p.Discipline, p.Block, p.Floor, p.UGPR)
		bucket(planByGroup, key)[monthStart(p.Month)] += p.Qty
	}

	out := make(map[string]float64)
	for key, fm := range factByGroup {
		periods := sortedPeriods(planByGroup[key], fm)
		values := make([]float64, len(periods))
		for i, p := range periods {
			values[i] = fm[p]
		}
		predicted := autoForecast(values)
		var total float64
		for i, v := range values {
			if pv, ok := predicted[i]; ok {
				total += pv
			} else {
				total += v
			}
		}
		out[key] = total
	}
	return out, nil
}
