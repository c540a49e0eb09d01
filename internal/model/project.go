package model

import "time"

// Project 建设项目
type Project struct {
	ID        int64     `db:"id" json:"id"`
	Code      string    `db:"code" json:"code"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// WBS 工作分解结构路径
type WBS struct {
	ID        int64  `db:"id" json:"id"`
	ProjectID int64  `db:"project_id" json:"project_id"`
	Path      string `db:"path" json:"path"`
}

// Operation 进度计划中的一项作业
type Operation struct {
	ID           int64      `db:"id" json:"id"`
	ProjectID    int64      `db:"project_id" json:"project_id"`
	Code         string     `db:"code" json:"code"`
	Name         string     `db:"name" json:"name"`
	WBSID        *int64     `db:"wbs_id" json:"wbs_id"`
	WBSPath      *string    `db:"wbs_path" json:"wbs_path,omitempty"`
	Discipline   *string    `db:"discipline" json:"discipline"`
	Block        *string    `db:"block" json:"block"`
	Floor        *string    `db:"floor" json:"floor"`
	UGPR         *string    `db:"ugpr" json:"ugpr"`
	Unit         *string    `db:"unit" json:"unit"`
	PlanQtyTotal *float64   `db:"plan_qty_total" json:"plan_qty_total"`
	PlanStart    *time.Time `db:"plan_start" json:"plan_start"`
	PlanFinish   *time.Time `db:"plan_finish" json:"plan_finish"`
}

// OperationDependency 作业间的前后置关系
type OperationDependency struct {
	ID            int64 `db:"id" json:"id"`
	ProjectID     int64 `db:"project_id" json:"project_id"`
	PredecessorID int64 `db:"predecessor_id" json:"predecessor_id"`
	SuccessorID   int64 `db:"successor_id" json:"successor_id"`
}

// Resource 人力/机械资源
type Resource struct {
	ID        int64  `db:"id" json:"id"`
	ProjectID int64  `db:"project_id" json:"project_id"`
	Name      string `db:"name" json:"name"`
	Category  string `db:"category" json:"category"`
	Unit      string `db:"unit" json:"unit"`
}

// FinAccount 财务科目（BDR / BDDS）
type FinAccount struct {
	ID         int64   `db:"id" json:"id"`
	ProjectID  int64   `db:"project_id" json:"project_id"`
	Kind       string  `db:"kind" json:"kind"`
	Name       string  `db:"name" json:"name"`
	ParentName *string `db:"parent_name" json:"parent_name"`
}

const (
	FinKindPnL      = "pnl"
	FinKindCashflow = "cashflow"
)
