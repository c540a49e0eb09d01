package model

import "time"

// ImportStatus 导入运行状态
type ImportStatus string

const (
	ImportQueued            ImportStatus = "queued"
	ImportRunning           ImportStatus = "running"
	ImportSuccess           ImportStatus = "success"
	ImportSuccessWithErrors ImportStatus = "success_with_errors"
	ImportFailed            ImportStatus = "failed"
)

// Completed 是否为成功结束状态（可作为报表默认版本）
func (s ImportStatus) Completed() bool {
	return s == ImportSuccess || s == ImportSuccessWithErrors
}

// InFlight 是否正在排队或执行
func (s ImportStatus) InFlight() bool {
	return s == ImportQueued || s == ImportRunning
}

// ImportRun 一次工作簿导入
type ImportRun struct {
	ID         int64        `db:"id" json:"id"`
	ProjectID  int64        `db:"project_id" json:"project_id"`
	FileName   string       `db:"file_name" json:"file_name"`
	FileHash   string       `db:"file_hash" json:"file_hash"`
	Status     ImportStatus `db:"status" json:"status"`
	RowsLoaded int          `db:"rows_loaded" json:"rows_loaded"`
	StartedAt  *time.Time   `db:"started_at" json:"started_at"`
	FinishedAt *time.Time   `db:"finished_at" json:"finished_at"`
	CreatedAt  time.Time    `db:"created_at" json:"created_at"`
}

// ImportError 导入过程中记录的校验问题
type ImportError struct {
	ID          int64  `db:"id" json:"id"`
	ImportRunID int64  `db:"import_run_id" json:"import_run_id"`
	Sheet       string `db:"sheet" json:"sheet"`
	RowNum      *int   `db:"row_num" json:"row_num"`
	Column      string `db:"column_name" json:"column"`
	Message     string `db:"message" json:"message"`
}

// ValidationError 解析器产出的数据质量问题，不中断导入
type ValidationError struct {
	Sheet   string
	Row     int
	Column  string
	Message string
}

func (e ValidationError) Error() string {
	return e.Sheet + ": " + e.Message
}

// Job 导入任务句柄
type Job struct {
	ImportRunID int64
	ProjectID   int64
	FilePath    string
}

// SheetSummary 一次导入中单个工作表的处理摘要
type SheetSummary struct {
	ID          int64  `db:"id" json:"id"`
	ImportRunID int64  `db:"import_run_id" json:"import_run_id"`
	SheetName   string `db:"sheet_name" json:"sheet_name"`
	Status      string `db:"status" json:"status"`
	Rows        int    `db:"row_count" json:"rows"`
	Errors      int    `db:"error_count" json:"errors"`
	DurationMS  int64  `db:"duration_ms" json:"duration_ms"`
}
