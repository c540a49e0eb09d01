package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"excel2web/internal/model"
	"excel2web/internal/report"
)

// reportParams 报表查询参数，日期格式 YYYY-MM-DD
type reportParams struct {
	From        time.Time `form:"date_from" time_format:"2006-01-02" time_utc:"1"`
	To          time.Time `form:"date_to" time_format:"2006-01-02" time_utc:"1"`
	WBS         string    `form:"wbs_path"`
	RunID       *int64    `form:"import_run_id"`
	Granularity string    `form:"granularity"`
	By          string    `form:"by"`
	Scenario    string    `form:"scenario"`
	Opening     *float64  `form:"opening_balance"`
}

// bindReport 解析项目 ID 与查询参数；失败时已写入 400
func bindReport(c *gin.Context) (report.Query, reportParams, bool) {
	var p reportParams
	pid, ok := idParam(c, "id")
	if !ok {
		return report.Query{}, p, false
	}
	if err := c.ShouldBindQuery(&p); err != nil {
		badRequest(c, "查询参数错误: "+err.Error())
		return report.Query{}, p, false
	}
	return report.Query{ProjectID: pid, From: p.From, To: p.To, WBS: p.WBS, RunID: p.RunID}, p, true
}

func seriesQuery(q report.Query, p reportParams) report.SeriesQuery {
	g := model.Granularity(p.Granularity)
	if g == "" {
		g = model.GranularityMonth
	}
	return report.SeriesQuery{Query: q, Granularity: g}
}

func optionalID(c *gin.Context, name string) (*int64, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "无效的 "+name)
		return nil, false
	}
	return &id, true
}

// respond 统一输出报表结果
func (h *Handler) respond(c *gin.Context, data any, err error) {
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, data)
}

// KPI GET /api/projects/:id/reports/kpi
func (h *Handler) KPI(c *gin.Context) {
	q, _, ok := bindReport(c)
	if !ok {
		return
	}
	out, err := h.reports.KPI(c.Request.Context(), q)
	h.respond(c, out, err)
}

// Series GET /api/projects/:id/reports/series?granularity=day|week|month
func (h *Handler) Series(c *gin.Context) {
	q, p, ok := bindReport(c)
	if !ok {
		return
	}
	out, err := h.reports.Series(c.Request.Context(), seriesQuery(q, p))
	h.respond(c, out, err)
}

// Table GET /api/projects/:id/reports/table?by=...&scenario=...
func (h *Handler) Table(c *gin.Context) {
	q, p, ok := bindReport(c)
	if !ok {
		return
	}
	tq := report.TableQuery{Query: q, By: model.Grouping(p.By), Scenario: model.TableScenario(p.Scenario)}
	if tq.By == "" {
		tq.By = model.GroupWBS
	}
	if tq.Scenario == "" {
		tq.Scenario = model.TablePlan
	}
	out, err := h.reports.Table(c.Request.Context(), tq)
	h.respond(c, gin.H{"rows": out}, err)
}

// UGPRSeries GET /api/projects/:id/reports/ugpr
func (h *Handler) UGPRSeries(c *gin.Context) {
	q, p, ok := bindReport(c)
	if !ok {
		return
	}
	out, err := h.reports.UGPRSeries(c.Request.Context(), seriesQuery(q, p))
	h.respond(c, out, err)
}

// UGPROperations GET /api/projects/:id/reports/ugpr-operations
func (h *Handler) UGPROperations(c *gin.Context) {
	q, _, ok := bindReport(c)
	if !ok {
		return
	}
	out, err := h.reports.UGPROperations(c.Request.Context(), q)
	h.respond(c, gin.H{"rows": out}, err)
}

// Gantt GET /api/projects/:id/reports/gantt
func (h *Handler) Gantt(c *gin.Context) {
	q, _, ok := bindReport(c)
	if !ok {
		return
	}
	out, err := h.reports.Gantt(c.Request.Context(), q)
	h.respond(c, out, err)
}

// Manhours GET /api/projects/:id/reports/manhours
func (h *Handler) Manhours(c *gin.Context) {
	q, p, ok := bindReport(c)
	if !ok {
		return
	}
	out, err := h.reports.ManhoursSeries(c.Request.Context(), seriesQuery(q, p))
	h.respond(c, gin.H{"series": out}, err)
}

// PnL GET /api/projects/:id/reports/pnl
func (h *Handler) PnL(c *gin.Context) {
	q, _, ok := bindReport(c)
	if !ok {
		return
	}
	out, err := h.reports.PnL(c.Request.Context(), q)
	h.respond(c, gin.H{"rows": out}, err)
}

// Cashflow GET /api/projects/:id/reports/cashflow?opening_balance=
func (h *Handler) Cashflow(c *gin.Context) {
	q, p, ok := bindReport(c)
	if !ok {
		return
	}
	out, err := h.reports.Cashflow(c.Request.Context(), q, p.Opening)
	h.respond(c, out, err)
}

// Sales GET /api/projects/:id/reports/sales
func (h *Handler) Sales(c *gin.Context) {
	q, _, ok := bindReport(c)
	if !ok {
		return
	}
	out, err := h.reports.SalesSeries(c.Request.Context(), q)
	h.respond(c, out, err)
}

// SalesKPI GET /api/projects/:id/reports/sales-kpi
func (h *Handler) SalesKPI(c *gin.Context) {
	q, _, ok := bindReport(c)
	if !ok {
		return
	}
	out, err := h.reports.SalesKPI(c.Request.Context(), q)
	h.respond(c, out, err)
}
