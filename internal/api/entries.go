package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"excel2web/internal/model"
	"excel2web/internal/store"
)

// CreateFactVolume 手工录入日实物量，覆盖同键的已有手工行
// POST /api/projects/:id/entries/fact-volume
func (h *Handler) CreateFactVolume(c *gin.Context) {
	pid, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in store.ManualFactVolume
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "请求格式错误: "+err.Error())
		return
	}
	ctx := c.Request.Context()
	if _, err := h.store.GetProject(ctx, pid); err != nil {
		h.fail(c, err)
		return
	}
	if err := h.store.InsertManualFactVolume(ctx, pid, in); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"ok": true})
}

// CreatePlanMonthly 手工录入月度计划/预测量
// POST /api/projects/:id/entries/plan-monthly
func (h *Handler) CreatePlanMonthly(c *gin.Context) {
	pid, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in store.ManualPlanMonthly
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "请求格式错误: "+err.Error())
		return
	}
	switch in.Scenario {
	case "", model.ScenarioPlan, model.ScenarioForecast:
	default:
		badRequest(c, "scenario 只能是 plan 或 forecast")
		return
	}
	ctx := c.Request.Context()
	if _, err := h.store.GetProject(ctx, pid); err != nil {
		h.fail(c, err)
		return
	}
	if err := h.store.InsertManualPlanMonthly(ctx, pid, in); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"ok": true})
}
