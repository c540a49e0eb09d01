package importer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"excel2web/internal/config"
	"excel2web/internal/model"
	"excel2web/internal/parser"
	"excel2web/internal/store"
)

// Loader 把解析结果按版本化规则写入存储：
// 批内同键先聚合，已有手工行的键跳过，其余写入当前运行作用域
type Loader struct {
	store *store.Store
	etl   config.ETLConfig
}

// NewLoader 创建加载器
func NewLoader(s *store.Store, etl config.ETLConfig) *Loader {
	return &Loader{store: s, etl: etl}
}

// batch 保持首次出现顺序的聚合表
type batch[T any] struct {
	order []string
	items map[string]*T
}

func newBatch[T any]() *batch[T] {
	return &batch[T]{items: make(map[string]*T)}
}

// get 返回 key 对应的聚合项；created 表示首次出现
func (b *batch[T]) get(key ...string) (item *T, created bool) {
	k := strings.Join(key, "\x00")
	if it, ok := b.items[k]; ok {
		return it, false
	}
	it := new(T)
	b.items[k] = it
	b.order = append(b.order, k)
	return it, true
}

func (b *batch[T]) each(fn func(*T)) {
	for _, k := range b.order {
		fn(b.items[k])
	}
}

func (b *batch[T]) len() int {
	return len(b.order)
}

func firstNonEmpty(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

func addNullable(dst **float64, v *float64) {
	if v == nil {
		return
	}
	if *dst == nil {
		x := *v
		*dst = &x
		return
	}
	**dst += *v
}

func day(t time.Time) string {
	return t.Format("2006-01-02")
}

func orNil(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func floatOrNil(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

// unit 识别单位；原值为空时不写
func (l *Loader) unit(raw string) string {
	if parser.CleanString(raw) == "" {
		return ""
	}
	return parser.UnitOrFallback(raw, l.etl.UnitMaxLen, l.etl.FallbackUnit)
}

func (l *Loader) write(ctx context.Context, t store.VersionedTable, projectID, runID int64, rows []store.Row) (int, error) {
	res, err := l.store.WriteVersioned(ctx, t, projectID, runID, rows)
	if err != nil {
		return 0, err
	}
	return res.Written, nil
}

// LoadOperations 作业与 WBS 维度（不分版本），随后用 ВДЦ 基准补充缺失的专业/楼层
func (l *Loader) LoadOperations(ctx context.Context, projectID int64, schedule []model.ScheduleRow, baseline []model.BaselineRow) (int, error) {
	ops := newBatch[store.OperationUpsert]()
	for _, r := range schedule {
		op, _ := ops.get(r.Code)
		name := r.Name
		if name == "" {
			name = r.Code
		}
		// 同一编码出现多次时后者覆盖前者
		*op = store.OperationUpsert{
			Code:       r.Code,
			Name:       name,
			WBSPath:    r.WBSPath,
			Discipline: r.Discipline,
			Block:      r.Block,
			Floor:      r.Floor,
			UGPR:       r.UGPR,
			Unit:       parser.UnitOrFallback(r.Unit, l.etl.UnitMaxLen, l.etl.FallbackUnit),
			PlanStart:  r.PlanStart,
			PlanFinish: r.PlanFinish,
		}
		if r.PlanQtyTotal != nil {
			op.PlanQtyTotal = *r.PlanQtyTotal
		}
	}
	list := make([]store.OperationUpsert, 0, ops.len())
	ops.each(func(op *store.OperationUpsert) { list = append(list, *op) })
	if _, err := l.store.UpsertOperations(ctx, projectID, list); err != nil {
		return 0, err
	}

	dims := make(map[string]store.OperationDims)
	for _, b := range baseline {
		d := dims[b.OperationCode]
		firstNonEmpty(&d.Discipline, b.Discipline)
		firstNonEmpty(&d.Floor, b.Floor)
		if d.Discipline != "" || d.Floor != "" {
			dims[b.OperationCode] = d
		}
	}
	if err := l.store.EnrichOperationDims(ctx, projectID, dims); err != nil {
		return 0, err
	}
	return len(list), nil
}

type baselineAgg struct {
	model.BaselineRow
}

// LoadBaseline 基准快照：数量与金额求和，单价取最后一个非空值
func (l *Loader) LoadBaseline(ctx context.Context, projectID, runID int64, rows []model.BaselineRow) (int, error) {
	b := newBatch[baselineAgg]()
	for _, r := range rows {
		a, created := b.get(r.OperationCode, r.Category, r.ItemName)
		if created {
			a.OperationCode, a.Category, a.ItemName = r.OperationCode, r.Category, r.ItemName
		}
		firstNonEmpty(&a.OperationName, r.OperationName)
		firstNonEmpty(&a.WBS, r.WBS)
		firstNonEmpty(&a.Discipline, r.Discipline)
		firstNonEmpty(&a.Block, r.Block)
		firstNonEmpty(&a.Floor, r.Floor)
		firstNonEmpty(&a.UGPR, r.UGPR)
		firstNonEmpty(&a.Unit, r.Unit)
		addNullable(&a.PlanQtyTotal, r.PlanQtyTotal)
		addNullable(&a.AmountTotal, r.AmountTotal)
		if r.UnitPrice != nil {
			p := *r.UnitPrice
			a.UnitPrice = &p
		}
	}

	out := make([]store.Row, 0, b.len())
	b.each(func(a *baselineAgg) {
		out = append(out, store.Row{
			Key: []any{a.OperationCode, a.Category, a.ItemName},
			Values: []any{
				orNil(a.OperationName), orNil(a.WBS), orNil(a.Discipline), orNil(a.Block),
				orNil(a.Floor), orNil(a.UGPR), orNil(l.unit(a.Unit)),
				floatOrNil(a.PlanQtyTotal), floatOrNil(a.UnitPrice), floatOrNil(a.AmountTotal),
			},
		})
	})
	return l.write(ctx, store.TableBaseline, projectID, runID, out)
}

type factAgg struct {
	model.FactVolumeRow
}

// LoadFacts 按日实物量：同键数量与金额求和
func (l *Loader) LoadFacts(ctx context.Context, projectID, runID int64, rows []model.FactVolumeRow) (int, error) {
	b := newBatch[factAgg]()
	for _, r := range rows {
		a, created := b.get(r.OperationCode, r.Category, r.ItemName, day(r.Date))
		if created {
			a.OperationCode, a.Category, a.ItemName, a.Date = r.OperationCode, r.Category, r.ItemName, r.Date
		}
		firstNonEmpty(&a.OperationName, r.OperationName)
		firstNonEmpty(&a.WBS, r.WBS)
		firstNonEmpty(&a.Discipline, r.Discipline)
		firstNonEmpty(&a.Block, r.Block)
		firstNonEmpty(&a.Floor, r.Floor)
		firstNonEmpty(&a.UGPR, r.UGPR)
		firstNonEmpty(&a.Unit, r.Unit)
		a.Qty += r.Qty
		addNullable(&a.Amount, r.Amount)
	}

	out := make([]store.Row, 0, b.len())
	b.each(func(a *factAgg) {
		out = append(out, store.Row{
			Key: []any{a.OperationCode, a.Category, a.ItemName, day(a.Date)},
			Values: []any{
				orNil(a.OperationName), orNil(a.WBS), orNil(a.Discipline), orNil(a.Block),
				orNil(a.Floor), orNil(a.UGPR), orNil(l.unit(a.Unit)),
				a.Qty, floatOrNil(a.Amount),
			},
		})
	})
	return l.write(ctx, store.TableFactVolume, projectID, runID, out)
}

type planAgg struct {
	code, name, unit string
	month            time.Time
	qty              float64
}

// LoadPlan 把 ГПР 中每个作业的计划总量按日均摊后汇总为月度计划
func (l *Loader) LoadPlan(ctx context.Context, projectID, runID int64, schedule []model.ScheduleRow) (int, error) {
	b := newBatch[planAgg]()
	for _, r := range schedule {
		if r.PlanStart == nil || r.PlanFinish == nil || r.PlanQtyTotal == nil || *r.PlanQtyTotal == 0 {
			continue
		}
		for _, m := range DistributeQtyToMonths(*r.PlanStart, *r.PlanFinish, *r.PlanQtyTotal) {
			a, created := b.get(r.Code, day(m.Month))
			if created {
				a.code, a.month = r.Code, m.Month
			}
			firstNonEmpty(&a.name, r.Name)
			firstNonEmpty(&a.unit, r.Unit)
			a.qty += m.Qty
		}
	}

	out := make([]store.Row, 0, b.len())
	b.each(func(a *planAgg) {
		name := a.name
		if name == "" {
			name = a.code
		}
		out = append(out, store.Row{
			Key:    []any{a.code, day(a.month), model.ScenarioPlan},
			Values: []any{name, orNil(l.unit(a.unit)), a.qty},
		})
	})
	return l.write(ctx, store.TablePlanMonthly, projectID, runID, out)
}

type resourceAgg struct {
	model.ResourceRow
}

// LoadResources 资源维度与按日数量/人工时
func (l *Loader) LoadResources(ctx context.Context, projectID, runID int64, rows []model.ResourceRow) (int, error) {
	dims := newBatch[store.ResourceUpsert]()
	b := newBatch[resourceAgg]()
	for _, r := range rows {
		d, created := dims.get(r.Name, r.Category)
		if created {
			d.Name, d.Category = r.Name, r.Category
		}
		firstNonEmpty(&d.Unit, l.unit(r.Unit))

		a, created := b.get(r.Name, r.Category, day(r.Date), r.Scenario)
		if created {
			a.Name, a.Category, a.Date, a.Scenario = r.Name, r.Category, r.Date, r.Scenario
		}
		a.Qty += r.Qty
		addNullable(&a.Manhours, r.Manhours)
	}

	res := make([]store.ResourceUpsert, 0, dims.len())
	dims.each(func(d *store.ResourceUpsert) { res = append(res, *d) })
	if err := l.store.UpsertResources(ctx, projectID, res); err != nil {
		return 0, err
	}

	out := make([]store.Row, 0, b.len())
	b.each(func(a *resourceAgg) {
		out = append(out, store.Row{
			Key:    []any{a.Name, a.Category, day(a.Date), a.Scenario},
			Values: []any{a.Qty, floatOrNil(a.Manhours)},
		})
	})
	return l.write(ctx, store.TableResourceDaily, projectID, runID, out)
}

type finAgg struct {
	account, parent, scenario, direction string
	month                                time.Time
	amount                               float64
}

func (l *Loader) loadFinance(ctx context.Context, projectID, runID int64, kind string, t store.VersionedTable, rows []finAgg) (int, error) {
	accounts := newBatch[store.FinAccountUpsert]()
	b := newBatch[finAgg]()
	for _, r := range rows {
		// 预测列只解析不入库
		if r.scenario != model.ScenarioPlan {
			continue
		}
		acc, created := accounts.get(r.account)
		if created {
			acc.Name = r.account
		}
		firstNonEmpty(&acc.ParentName, r.parent)

		key := []string{r.account, day(r.month), r.scenario}
		if kind == model.FinKindCashflow {
			key = append(key, r.direction)
		}
		a, created := b.get(key...)
		if created {
			a.account, a.month, a.scenario, a.direction = r.account, r.month, r.scenario, r.direction
		}
		firstNonEmpty(&a.parent, r.parent)
		a.amount += r.amount
	}

	list := make([]store.FinAccountUpsert, 0, accounts.len())
	accounts.each(func(a *store.FinAccountUpsert) { list = append(list, *a) })
	if err := l.store.UpsertFinAccounts(ctx, projectID, kind, list); err != nil {
		return 0, err
	}

	out := make([]store.Row, 0, b.len())
	b.each(func(a *finAgg) {
		key := []any{a.account, day(a.month), a.scenario}
		if kind == model.FinKindCashflow {
			key = append(key, a.direction)
		}
		out = append(out, store.Row{Key: key, Values: []any{orNil(a.parent), a.amount}})
	})
	return l.write(ctx, t, projectID, runID, out)
}

// LoadPnL BDR：只保留 plan 口径
func (l *Loader) LoadPnL(ctx context.Context, projectID, runID int64, rows []model.PnLRow) (int, error) {
	in := make([]finAgg, len(rows))
	for i, r := range rows {
		in[i] = finAgg{account: r.Account, parent: r.ParentName, scenario: r.Scenario, month: r.Month, amount: r.Amount}
	}
	return l.loadFinance(ctx, projectID, runID, model.FinKindPnL, store.TablePnL, in)
}

// LoadCashflow BDDS：只保留 plan 口径，方向参与自然键
func (l *Loader) LoadCashflow(ctx context.Context, projectID, runID int64, rows []model.CashflowRow) (int, error) {
	in := make([]finAgg, len(rows))
	for i, r := range rows {
		in[i] = finAgg{
			account: r.Account, parent: r.ParentName, scenario: r.Scenario,
			direction: r.Direction, month: r.Month, amount: r.Amount,
		}
	}
	return l.loadFinance(ctx, projectID, runID, model.FinKindCashflow, store.TableCashflow, in)
}

type salesAgg struct {
	item, scenario string
	month          time.Time
	area           float64
}

// LoadSales 销售面积
func (l *Loader) LoadSales(ctx context.Context, projectID, runID int64, rows []model.SalesRow) (int, error) {
	b := newBatch[salesAgg]()
	for _, r := range rows {
		a, created := b.get(r.ItemName, day(r.Month), r.Scenario)
		if created {
			a.item, a.month, a.scenario = r.ItemName, r.Month, r.Scenario
		}
		a.area += r.AreaM2
	}

	out := make([]store.Row, 0, b.len())
	b.each(func(a *salesAgg) {
		out = append(out, store.Row{
			Key:    []any{a.item, day(a.month), a.scenario},
			Values: []any{a.area},
		})
	})
	n, err := l.write(ctx, store.TableSales, projectID, runID, out)
	if err != nil {
		return 0, fmt.Errorf("load sales: %w", err)
	}
	return n, nil
}
