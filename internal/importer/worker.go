package importer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"excel2web/internal/config"
	"excel2web/internal/metrics"
	"excel2web/internal/model"
	"excel2web/internal/store"
)

// ErrQueueFull 任务队列已满
var ErrQueueFull = errors.New("import queue is full")

// Worker 进程内导入任务池
type Worker struct {
	store     *store.Store
	coord     *Coordinator
	log       logrus.FieldLogger
	metrics   *metrics.Import
	uploadDir string

	concurrency int
	jobs        chan model.Job
	progress    chan ProgressEvent

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

// NewWorker 创建任务池
func NewWorker(s *store.Store, coord *Coordinator, cfg *config.AppConfig, log logrus.FieldLogger, m *metrics.Import) *Worker {
	n := cfg.Worker.Concurrency
	if n <= 0 {
		n = 1
	}
	size := cfg.Worker.QueueSize
	if size <= 0 {
		size = 64
	}
	return &Worker{
		store:       s,
		coord:       coord,
		log:         log,
		metrics:     m,
		uploadDir:   cfg.Storage.UploadDir,
		concurrency: n,
		jobs:        make(chan model.Job, size),
		progress:    make(chan ProgressEvent, 100),
	}
}

// Start 启动 N 个 goroutine 消费任务，ctx 结束后不再领取新任务
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case job, ok := <-w.jobs:
					if !ok {
						return
					}
					// 已开始的任务不随 ctx 取消，未领取的任务保持 queued 等待 Resume
					_ = w.Execute(context.WithoutCancel(ctx), job)
				}
			}
		}()
	}
}

// Stop 关闭队列并等待执行中的任务结束
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.stopped {
		w.stopped = true
		close(w.jobs)
	}
	w.mu.Unlock()
	w.wg.Wait()
}

// Enqueue 提交任务，不阻塞
func (w *Worker) Enqueue(job model.Job) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return ErrQueueFull
	}
	select {
	case w.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Progress 进度事件通道；无人读取时事件被丢弃
func (w *Worker) Progress() <-chan ProgressEvent {
	return w.progress
}

// Resume 重新提交上次退出时仍在排队或执行中的运行
func (w *Worker) Resume(ctx context.Context) error {
	runs, err := w.store.ListInFlightRuns(ctx)
	if err != nil {
		return err
	}
	for _, run := range runs {
		job := model.Job{
			ImportRunID: run.ID,
			ProjectID:   run.ProjectID,
			FilePath:    FinalPath(w.uploadDir, run.ProjectID, run.FileHash),
		}
		if err := w.Enqueue(job); err != nil {
			return fmt.Errorf("resume run %d: %w", run.ID, err)
		}
		w.log.WithField("run_id", run.ID).Info("import run resumed")
	}
	return nil
}

// Execute 任务边界：标记 running，执行导入，写入错误与最终状态。
// 任何错误或 panic 都会把运行标记为 failed
func (w *Worker) Execute(ctx context.Context, job model.Job) (err error) {
	start := time.Now()
	log := w.log.WithFields(logrus.Fields{"run_id": job.ImportRunID, "project_id": job.ProjectID})

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("import panic: %v", r)
		}
		if err != nil {
			log.WithError(err).Error("import run failed")
			w.markFailed(job.ImportRunID)
			w.metrics.ObserveRun(string(model.ImportFailed), 0, time.Since(start))
			w.coord.sendProgress(w.progress, ProgressEvent{RunID: job.ImportRunID, Type: "error", Message: err.Error()})
		}
	}()

	if err := w.store.SetImportStatus(ctx, job.ImportRunID, model.ImportRunning, store.StatusUpdate{StartedAt: &start}); err != nil {
		return fmt.Errorf("mark running: %w", err)
	}
	if err := w.store.ClearImportErrors(ctx, job.ImportRunID); err != nil {
		return err
	}

	out, err := w.coord.Run(ctx, job, w.progress)
	if err != nil {
		return err
	}

	if err := w.store.AddImportErrors(ctx, job.ImportRunID, out.Errors); err != nil {
		return err
	}
	if err := w.store.InsertSheetSummaries(ctx, job.ImportRunID, SheetSummaries(out.Sheets)); err != nil {
		return err
	}

	status := model.ImportSuccess
	if len(out.Errors) > 0 {
		status = model.ImportSuccessWithErrors
	}
	finished := time.Now()
	rows := out.RowsLoaded
	if err := w.store.SetImportStatus(ctx, job.ImportRunID, status, store.StatusUpdate{FinishedAt: &finished, RowsLoaded: &rows}); err != nil {
		return fmt.Errorf("mark %s: %w", status, err)
	}

	w.metrics.ObserveRun(string(status), rows, finished.Sub(start))
	log.WithFields(logrus.Fields{"status": status, "rows": rows, "errors": len(out.Errors)}).Info("import run finished")
	return nil
}

// markFailed 写入 failed 状态；主连接写入失败时改用新连接
func (w *Worker) markFailed(runID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	finished := time.Now()
	upd := store.StatusUpdate{FinishedAt: &finished}
	err := w.store.SetImportStatus(ctx, runID, model.ImportFailed, upd)
	if err == nil {
		return
	}
	w.log.WithError(err).WithField("run_id", runID).Warn("status write failed, retrying on a fresh connection")

	fresh, err := w.store.Reopen()
	if err != nil {
		w.log.WithError(err).WithField("run_id", runID).Error("cannot reopen database")
		return
	}
	defer fresh.Close()
	if err := fresh.SetImportStatus(ctx, runID, model.ImportFailed, upd); err != nil {
		w.log.WithError(err).WithField("run_id", runID).Error("run left without terminal status")
	}
}
