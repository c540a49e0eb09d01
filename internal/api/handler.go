package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"excel2web/internal/importer"
	"excel2web/internal/report"
	"excel2web/internal/store"
)

// Handler HTTP API 处理器
type Handler struct {
	store   *store.Store
	reports *report.Engine
	imports *importer.Service
	events  *ProgressHub
	log     logrus.FieldLogger
}

// NewHandler 创建 API 处理器；events 为 nil 时不提供进度推送
func NewHandler(s *store.Store, reports *report.Engine, imports *importer.Service, events *ProgressHub, log logrus.FieldLogger) *Handler {
	return &Handler{
		store:   s,
		reports: reports,
		imports: imports,
		events:  events,
		log:     log,
	}
}

// RegisterRoutes 注册 API 路由
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	// 项目
	router.GET("/projects", h.ListProjects)
	router.POST("/projects", h.CreateProject)
	router.GET("/projects/:id", h.GetProject)
	router.GET("/projects/:id/months", h.ListMonths)

	// 项目设置
	router.GET("/projects/:id/settings", h.GetSettings)
	router.PUT("/projects/:id/settings", h.UpdateSettings)

	// 数据导入
	router.POST("/projects/:id/imports", h.UploadImport)
	router.GET("/projects/:id/imports", h.ListImports)
	router.GET("/imports/events", h.ImportEvents)
	router.GET("/imports/:run", h.GetImport)
	router.GET("/imports/:run/errors", h.ListImportErrors)
	router.GET("/imports/:run/sheets", h.ListImportSheets)
	router.DELETE("/imports/:run", h.DeleteImport)

	// 手工录入
	router.POST("/projects/:id/entries/fact-volume", h.CreateFactVolume)
	router.POST("/projects/:id/entries/plan-monthly", h.CreatePlanMonthly)

	// 进度计划
	router.GET("/projects/:id/operations", h.ListOperations)
	router.POST("/projects/:id/operations", h.CreateOperation)
	router.GET("/projects/:id/dependencies", h.ListDependencies)
	router.POST("/projects/:id/dependencies", h.CreateDependency)
	router.DELETE("/dependencies/:id", h.DeleteDependency)

	// 报表
	reports := router.Group("/projects/:id/reports")
	reports.GET("/kpi", h.KPI)
	reports.GET("/series", h.Series)
	reports.GET("/table", h.Table)
	reports.GET("/ugpr", h.UGPRSeries)
	reports.GET("/ugpr-operations", h.UGPROperations)
	reports.GET("/gantt", h.Gantt)
	reports.GET("/manhours", h.Manhours)
	reports.GET("/pnl", h.PnL)
	reports.GET("/cashflow", h.Cashflow)
	reports.GET("/sales", h.Sales)
	reports.GET("/sales-kpi", h.SalesKPI)
}

// statusOf 把领域错误映射为 HTTP 状态码
func statusOf(err error) int {
	switch {
	case errors.Is(err, report.ErrInvalidQuery), errors.Is(err, importer.ErrNotWorkbook):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, importer.ErrQueueFull):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		h.log.WithError(err).WithField("path", c.FullPath()).Error("request failed")
		_ = c.Error(err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

// idParam 解析路径中的正整数 ID
func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "无效的 "+name)
		return 0, false
	}
	return id, true
}
