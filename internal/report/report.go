// Package report 计划-实际报表：KPI、时间序列、分组表、价值量、甘特图与财务/销售汇总。
// 所有读取都基于 store 的有效作用域（手工行 ∪ 所选导入运行的行）
package report

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"excel2web/internal/model"
	"excel2web/internal/store"
)

// ErrInvalidQuery 查询参数不合法
var ErrInvalidQuery = errors.New("invalid report query")

const dayLayout = "2006-01-02"

// Engine 报表引擎
type Engine struct {
	store    *store.Store
	validate *validator.Validate
	now      func() time.Time
}

// New 创建报表引擎
func New(s *store.Store) *Engine {
	return &Engine{
		store:    s,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      time.Now,
	}
}

// Query 通用报表查询：项目、闭区间日期、可选 WBS 前缀与导入运行
type Query struct {
	ProjectID int64     `json:"project_id" validate:"gt=0"`
	From      time.Time `json:"date_from" validate:"required"`
	To        time.Time `json:"date_to" validate:"required,gtefield=From"`
	WBS       string    `json:"wbs_path"`
	RunID     *int64    `json:"import_run_id" validate:"omitempty,gt=0"`
}

// SeriesQuery 时间序列查询
type SeriesQuery struct {
	Query
	Granularity model.Granularity `json:"granularity" validate:"required,oneof=day week month"`
}

// TableQuery 分组计划-实际表查询
type TableQuery struct {
	Query
	By       model.Grouping      `json:"by" validate:"required,oneof=wbs discipline block floor ugpr"`
	Scenario model.TableScenario `json:"scenario" validate:"required,oneof=plan forecast actual"`
}

func (e *Engine) check(q any) error {
	if err := e.validate.Struct(q); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, len(verrs))
			for i, fe := range verrs {
				msgs[i] = fmt.Sprintf("%s failed on %s", fe.Field(), fe.Tag())
			}
			return fmt.Errorf("%w: %s", ErrInvalidQuery, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	return nil
}

// filter 校验查询并解析读取作用域
func (e *Engine) filter(ctx context.Context, q any, base Query) (store.ReadFilter, error) {
	if err := e.check(q); err != nil {
		return store.ReadFilter{}, err
	}
	sc, err := e.store.ResolveScope(ctx, base.ProjectID, base.RunID)
	if err != nil {
		return store.ReadFilter{}, err
	}
	return store.ReadFilter{
		Scope: sc,
		From:  truncDay(base.From),
		To:    truncDay(base.To),
		WBS:   base.WBS,
	}, nil
}

// Point 序列中的一个点
type Point struct {
	Period string  `json:"period"`
	Value  float64 `json:"value"`
}

func truncDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func monthEnd(t time.Time) time.Time {
	return monthStart(t).AddDate(0, 1, -1)
}

func daysInMonth(t time.Time) int {
	return monthEnd(t).Day()
}

// weekStart 周一为一周的开始
func weekStart(t time.Time) time.Time {
	t = truncDay(t)
	offset := (int(t.Weekday()) + 6) % 7
	return t.AddDate(0, 0, -offset)
}

// periodOf 日期所在的周期起点
func periodOf(t time.Time, g model.Granularity) time.Time {
	switch g {
	case model.GranularityWeek:
		return weekStart(t)
	case model.GranularityMonth:
		return monthStart(t)
	default:
		return truncDay(t)
	}
}

// overlapDays 两个闭区间重叠的天数
func overlapDays(aStart, aEnd, bStart, bEnd time.Time) int {
	start, end := aStart, aEnd
	if bStart.After(start) {
		start = bStart
	}
	if bEnd.Before(end) {
		end = bEnd
	}
	if end.Before(start) {
		return 0
	}
	return int(end.Sub(start).Hours()/24) + 1
}

// proRate 月度数值按与 [from, to] 重叠的天数折算
func proRate(value float64, month, from, to time.Time) float64 {
	days := overlapDays(monthStart(month), monthEnd(month), from, to)
	if days == 0 {
		return 0
	}
	return value / float64(daysInMonth(month)) * float64(days)
}

// spreadMonthly 把月度数值平均分到 [from, to] 内的每一天，再按粒度汇总
func spreadMonthly(monthly map[time.Time]float64, from, to time.Time, g model.Granularity) map[time.Time]float64 {
	out := make(map[time.Time]float64)
	for m, v := range monthly {
		if v == 0 {
			continue
		}
		perDay := v / float64(daysInMonth(m))
		for d := monthStart(m); !d.After(monthEnd(m)); d = d.AddDate(0, 0, 1) {
			if d.Before(from) || d.After(to) {
				continue
			}
			out[periodOf(d, g)] += perDay
		}
	}
	return out
}

func sortedPeriods(maps ...map[time.Time]float64) []time.Time {
	seen := make(map[time.Time]struct{})
	var out []time.Time
	for _, m := range maps {
		for p := range m {
			if _, ok := seen[p]; !ok {
				seen[p] = struct{}{}
				out = append(out, p)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

func toPoints(m map[time.Time]float64) []Point {
	periods := sortedPeriods(m)
	out := make([]Point, len(periods))
	for i, p := range periods {
		out[i] = Point{Period: p.Format(dayLayout), Value: m[p]}
	}
	return out
}

func pct(part, whole float64) float64 {
	if whole <= 0 {
		return 0
	}
	return part / whole * 100
}
