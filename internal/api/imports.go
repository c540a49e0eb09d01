package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// UploadImport 上传工作簿并提交导入
// POST /api/projects/:id/imports
func (h *Handler) UploadImport(c *gin.Context) {
	pid, ok := idParam(c, "id")
	if !ok {
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "未找到上传文件")
		return
	}
	f, err := fh.Open()
	if err != nil {
		badRequest(c, "无法读取上传文件")
		return
	}
	defer f.Close()

	run, enqueued, err := h.imports.Submit(c.Request.Context(), pid, fh.Filename, f)
	if err != nil {
		h.fail(c, err)
		return
	}

	status := http.StatusOK
	if enqueued {
		status = http.StatusAccepted
	}
	c.JSON(status, gin.H{"run": run, "enqueued": enqueued})
}

// ListImports 项目的导入运行
// GET /api/projects/:id/imports
func (h *Handler) ListImports(c *gin.Context) {
	pid, ok := idParam(c, "id")
	if !ok {
		return
	}
	runs, err := h.store.ListRuns(c.Request.Context(), pid)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, runs)
}

// GetImport 导入运行状态
// GET /api/imports/:run
func (h *Handler) GetImport(c *gin.Context) {
	id, ok := idParam(c, "run")
	if !ok {
		return
	}
	run, err := h.store.GetRun(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

// ListImportErrors 导入运行记录的校验问题
// GET /api/imports/:run/errors
func (h *Handler) ListImportErrors(c *gin.Context) {
	id, ok := idParam(c, "run")
	if !ok {
		return
	}
	if _, err := h.store.GetRun(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	errs, err := h.store.ListImportErrors(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, errs)
}

// ListImportSheets 导入运行的工作表摘要
// GET /api/imports/:run/sheets
func (h *Handler) ListImportSheets(c *gin.Context) {
	id, ok := idParam(c, "run")
	if !ok {
		return
	}
	sheets, err := h.store.ListSheetSummaries(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sheets)
}

// DeleteImport 删除导入运行及其数据；排队或执行中返回 409
// DELETE /api/imports/:run
func (h *Handler) DeleteImport(c *gin.Context) {
	id, ok := idParam(c, "run")
	if !ok {
		return
	}
	run, err := h.imports.Delete(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": run.ID})
}

// ImportEvents 导入进度 (SSE 流式响应)，可用 ?run= 过滤
// GET /api/imports/events
func (h *Handler) ImportEvents(c *gin.Context) {
	if h.events == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "进度推送不可用"})
		return
	}
	var runID int64
	if raw := c.Query("run"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			badRequest(c, "无效的 run")
			return
		}
		runID = id
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "不支持流式响应"})
		return
	}

	// 设置 SSE 响应头
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	flusher.Flush()

	events, cancel := h.events.Subscribe()
	defer cancel()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-events:
			if runID != 0 && evt.RunID != runID {
				continue
			}
			data, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			// SSE 格式: data: {json}\n\n
			fmt.Fprintf(c.Writer, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}
