package importer

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"excel2web/internal/model"
	"excel2web/internal/store"
)

// Service 上传入口：保存文件、幂等创建运行并提交任务
type Service struct {
	store     *store.Store
	worker    *Worker
	uploadDir string
	log       logrus.FieldLogger
}

// NewService 创建上传服务
func NewService(s *store.Store, w *Worker, uploadDir string, log logrus.FieldLogger) *Service {
	return &Service{store: s, worker: w, uploadDir: uploadDir, log: log}
}

// Submit 保存上传的工作簿并提交导入。
// 同一项目相同内容的文件复用已有运行：已完成或排队中的运行不再重复提交，失败的运行重新排队
func (s *Service) Submit(ctx context.Context, projectID int64, name string, r io.Reader) (*model.ImportRun, bool, error) {
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return nil, false, err
	}

	stored, err := SaveUpload(s.uploadDir, projectID, name, r)
	if err != nil {
		return nil, false, err
	}

	run, created, err := s.store.GetOrCreateRun(ctx, projectID, name, stored.Hash)
	if err != nil {
		return nil, false, err
	}
	if !created && (run.Status.Completed() || run.Status.InFlight()) {
		return run, false, nil
	}
	if !created {
		if err := s.store.SetImportStatus(ctx, run.ID, model.ImportQueued, store.StatusUpdate{}); err != nil {
			return nil, false, err
		}
		run.Status = model.ImportQueued
	}

	job := model.Job{ImportRunID: run.ID, ProjectID: projectID, FilePath: stored.Path}
	if err := s.worker.Enqueue(job); err != nil {
		return run, false, fmt.Errorf("enqueue run %d: %w", run.ID, err)
	}
	s.log.WithFields(logrus.Fields{"run_id": run.ID, "project_id": projectID, "file": name}).Info("import run queued")
	return run, true, nil
}

// Delete 删除运行及其数据，并删除对应的工作簿文件
func (s *Service) Delete(ctx context.Context, runID int64) (*model.ImportRun, error) {
	run, err := s.store.DeleteRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if err := RemoveUpload(s.uploadDir, run.ProjectID, run.FileHash); err != nil {
		s.log.WithError(err).WithField("run_id", runID).Warn("cannot remove workbook file")
	}
	return run, nil
}
