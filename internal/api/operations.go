package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"excel2web/internal/store"
)

type listOperationsParams struct {
	From           *time.Time `form:"date_from" time_format:"2006-01-02" time_utc:"1"`
	To             *time.Time `form:"date_to" time_format:"2006-01-02" time_utc:"1"`
	Q              string     `form:"q"`
	IncludeUndated *bool      `form:"include_undated"`
	Limit          int        `form:"limit" binding:"omitempty,min=1,max=2000"`
	Offset         int        `form:"offset" binding:"omitempty,min=0"`
}

// ListOperations 作业列表
// GET /api/projects/:id/operations
func (h *Handler) ListOperations(c *gin.Context) {
	pid, ok := idParam(c, "id")
	if !ok {
		return
	}
	var p listOperationsParams
	if err := c.ShouldBindQuery(&p); err != nil {
		badRequest(c, "查询参数错误: "+err.Error())
		return
	}
	f := store.OperationFilter{
		From:           p.From,
		To:             p.To,
		Q:              strings.TrimSpace(p.Q),
		IncludeUndated: p.IncludeUndated == nil || *p.IncludeUndated,
		Limit:          p.Limit,
		Offset:         p.Offset,
	}
	ops, err := h.store.ListOperations(c.Request.Context(), pid, f)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ops)
}

// CreateOperation 手工新建作业；编码重复返回 409
// POST /api/projects/:id/operations
func (h *Handler) CreateOperation(c *gin.Context) {
	pid, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in store.OperationInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "请求格式错误: "+err.Error())
		return
	}
	if in.PlanStart != nil && in.PlanFinish != nil && in.PlanFinish.Before(*in.PlanStart) {
		badRequest(c, "plan_finish 早于 plan_start")
		return
	}
	ctx := c.Request.Context()
	if _, err := h.store.GetProject(ctx, pid); err != nil {
		h.fail(c, err)
		return
	}
	op, err := h.store.CreateOperation(ctx, pid, in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, op)
}

// ListDependencies 作业依赖
// GET /api/projects/:id/dependencies
func (h *Handler) ListDependencies(c *gin.Context) {
	pid, ok := idParam(c, "id")
	if !ok {
		return
	}
	deps, err := h.store.ListDependencies(c.Request.Context(), pid)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, deps)
}

type createDependencyRequest struct {
	PredecessorID int64 `json:"predecessor_id" binding:"required"`
	SuccessorID   int64 `json:"successor_id" binding:"required"`
}

// CreateDependency 新建依赖；自依赖或重复返回 409
// POST /api/projects/:id/dependencies
func (h *Handler) CreateDependency(c *gin.Context) {
	pid, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req createDependencyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "请求格式错误")
		return
	}
	dep, err := h.store.CreateDependency(c.Request.Context(), pid, req.PredecessorID, req.SuccessorID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, dep)
}

// DeleteDependency 删除依赖
// DELETE /api/dependencies/:id
func (h *Handler) DeleteDependency(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.store.DeleteDependency(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
