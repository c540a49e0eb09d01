package importer

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"excel2web/internal/config"
	"excel2web/internal/metrics"
	"excel2web/internal/model"
	"excel2web/internal/parser"
	"excel2web/internal/store"
)

// Coordinator 导入协调器：解析工作簿并按固定顺序加载各类数据
type Coordinator struct {
	store   *store.Store
	loader  *Loader
	etl     config.ETLConfig
	log     logrus.FieldLogger
	metrics *metrics.Import
}

// NewCoordinator 创建导入协调器
func NewCoordinator(s *store.Store, etl config.ETLConfig, log logrus.FieldLogger, m *metrics.Import) *Coordinator {
	return &Coordinator{
		store:   s,
		loader:  NewLoader(s, etl),
		etl:     etl,
		log:     log,
		metrics: m,
	}
}

// ProgressEvent 进度事件
type ProgressEvent struct {
	RunID     int64       `json:"run_id"`
	Type      string      `json:"type"`    // start/parsed/step_done/done/error
	Message   string      `json:"message"` // 事件消息
	Data      interface{} `json:"data"`    // 附加数据
	Timestamp time.Time   `json:"timestamp"`
}

// Outcome 一次导入的结果
type Outcome struct {
	Errors     []model.ValidationError
	RowsLoaded int
	Sheets     []parser.SheetResult
}

type loadStep struct {
	name string
	fn   func(ctx context.Context) (int, error)
	// dimension 维度 upsert，不计入 RowsLoaded
	dimension bool
}

// Run 执行一次导入：
// 解析 → 清理本运行旧数据 → 作业/WBS → 基准 → 实物量 → 月度计划 → 资源 → BDR → BDDS → 销售。
// 每一步在各自的短事务中提交；返回的 error 表示导入失败，校验错误只出现在 Outcome 中
func (c *Coordinator) Run(ctx context.Context, job model.Job, progress chan<- ProgressEvent) (*Outcome, error) {
	log := c.log.WithFields(logrus.Fields{"run_id": job.ImportRunID, "project_id": job.ProjectID})

	c.sendProgress(progress, ProgressEvent{
		RunID:   job.ImportRunID,
		Type:    "start",
		Message: "开始导入 Excel 文件",
		Data: map[string]string{
			"filename": filepath.Base(job.FilePath),
		},
	})

	parsed, err := parser.ParseFile(job.FilePath, parser.Options{ShiftHours: c.etl.ShiftHours})
	if err != nil {
		return nil, fmt.Errorf("parse workbook: %w", err)
	}
	for _, e := range parsed.Errors {
		c.metrics.ObserveValidationError(e.Sheet)
		log.WithField("sheet", e.Sheet).Warn(e.Message)
	}
	c.sendProgress(progress, ProgressEvent{
		RunID:   job.ImportRunID,
		Type:    "parsed",
		Message: fmt.Sprintf("解析完成: %d 个校验问题", len(parsed.Errors)),
		Data:    parsed.Sheets,
	})

	if err := c.store.DeleteRunRows(ctx, job.ProjectID, job.ImportRunID); err != nil {
		return nil, fmt.Errorf("cleanup run rows: %w", err)
	}

	pid, rid := job.ProjectID, job.ImportRunID
	steps := []loadStep{
		{"operations", func(ctx context.Context) (int, error) {
			return c.loader.LoadOperations(ctx, pid, parsed.Schedule, parsed.Volume.Baseline)
		}, true},
		{"baseline", func(ctx context.Context) (int, error) {
			return c.loader.LoadBaseline(ctx, pid, rid, parsed.Volume.Baseline)
		}, false},
		{"fact_volume", func(ctx context.Context) (int, error) {
			return c.loader.LoadFacts(ctx, pid, rid, parsed.Volume.Facts)
		}, false},
		{"plan_monthly", func(ctx context.Context) (int, error) {
			return c.loader.LoadPlan(ctx, pid, rid, parsed.Schedule)
		}, false},
		{"resources", func(ctx context.Context) (int, error) {
			return c.loader.LoadResources(ctx, pid, rid, parsed.Resources)
		}, false},
		{"pnl", func(ctx context.Context) (int, error) {
			return c.loader.LoadPnL(ctx, pid, rid, parsed.PnL)
		}, false},
		{"cashflow", func(ctx context.Context) (int, error) {
			return c.loader.LoadCashflow(ctx, pid, rid, parsed.Cashflow)
		}, false},
		{"sales", func(ctx context.Context) (int, error) {
			return c.loader.LoadSales(ctx, pid, rid, parsed.Sales)
		}, false},
	}

	out := &Outcome{Errors: parsed.Errors, Sheets: parsed.Sheets}
	for _, st := range steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := st.fn(ctx)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", st.name, err)
		}
		if !st.dimension {
			out.RowsLoaded += n
		}
		log.WithFields(logrus.Fields{"step": st.name, "rows": n}).Info("step loaded")
		c.sendProgress(progress, ProgressEvent{
			RunID:   job.ImportRunID,
			Type:    "step_done",
			Message: fmt.Sprintf("%s: %d 行", st.name, n),
			Data: map[string]interface{}{
				"step": st.name,
				"rows": n,
			},
		})
	}

	c.sendProgress(progress, ProgressEvent{
		RunID:   job.ImportRunID,
		Type:    "done",
		Message: "导入完成",
		Data: map[string]interface{}{
			"rows_loaded": out.RowsLoaded,
			"errors":      len(out.Errors),
		},
	})
	return out, nil
}

// sendProgress 发送进度事件（非阻塞）
func (c *Coordinator) sendProgress(ch chan<- ProgressEvent, event ProgressEvent) {
	if ch == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case ch <- event:
	default:
	}
}

// SheetSummaries 把解析摘要转换为持久化记录
func SheetSummaries(sheets []parser.SheetResult) []model.SheetSummary {
	out := make([]model.SheetSummary, len(sheets))
	for i, sh := range sheets {
		out[i] = model.SheetSummary{
			SheetName:  sh.SheetName,
			Status:     sh.Status,
			Rows:       sh.Rows,
			Errors:     sh.Errors,
			DurationMS: sh.Duration.Milliseconds(),
		}
	}
	return out
}
