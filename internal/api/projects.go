package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"excel2web/internal/store"
)

type createProjectRequest struct {
	Code string `json:"code" binding:"required"`
	Name string `json:"name"`
}

// ListProjects 项目列表
// GET /api/projects
func (h *Handler) ListProjects(c *gin.Context) {
	projects, err := h.store.ListProjects(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, projects)
}

// CreateProject 按编码创建项目，已存在时直接返回
// POST /api/projects
func (h *Handler) CreateProject(c *gin.Context) {
	var req createProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "请求格式错误")
		return
	}
	code := strings.TrimSpace(req.Code)
	name := strings.TrimSpace(req.Name)
	if code == "" {
		badRequest(c, "项目编码不能为空")
		return
	}
	if name == "" {
		name = code
	}
	p, err := h.store.EnsureProject(c.Request.Context(), code, name)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// GetProject 项目详情
// GET /api/projects/:id
func (h *Handler) GetProject(c *gin.Context) {
	pid, ok := idParam(c, "id")
	if !ok {
		return
	}
	p, err := h.store.GetProject(c.Request.Context(), pid)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

type monthsResponse struct {
	ImportRunID *int64            `json:"import_run_id"`
	Items       []store.MonthStat `json:"items"`
}

// ListMonths 有实际或计划数据的月份
// GET /api/projects/:id/months
func (h *Handler) ListMonths(c *gin.Context) {
	pid, ok := idParam(c, "id")
	if !ok {
		return
	}
	runID, ok := optionalID(c, "import_run_id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	sc, err := h.store.ResolveScope(ctx, pid, runID)
	if err != nil {
		h.fail(c, err)
		return
	}
	items, err := h.store.ListAvailableMonths(ctx, sc)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, monthsResponse{ImportRunID: sc.RunID, Items: items})
}

// GetSettings 项目设置
// GET /api/projects/:id/settings
func (h *Handler) GetSettings(c *gin.Context) {
	pid, ok := idParam(c, "id")
	if !ok {
		return
	}
	settings, err := h.store.GetAllSettings(c.Request.Context(), pid)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

// UpdateSettings 部分更新项目设置
// PUT /api/projects/:id/settings
func (h *Handler) UpdateSettings(c *gin.Context) {
	pid, ok := idParam(c, "id")
	if !ok {
		return
	}
	var updates map[string]string
	if err := c.ShouldBindJSON(&updates); err != nil {
		badRequest(c, "请求格式错误")
		return
	}
	ctx := c.Request.Context()
	if _, err := h.store.GetProject(ctx, pid); err != nil {
		h.fail(c, err)
		return
	}
	if v, ok := updates[store.SettingOpeningBalance]; ok {
		if _, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err != nil {
			badRequest(c, "opening_balance 必须是数字")
			return
		}
	}
	for key, value := range updates {
		if err := h.store.SetSetting(ctx, pid, key, strings.TrimSpace(value)); err != nil {
			h.fail(c, err)
			return
		}
	}
	h.GetSettings(c)
}
