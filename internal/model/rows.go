package model

import "time"

// 解析器输出的长表记录

// BaselineRow 基准工程量/单价快照
type BaselineRow struct {
	OperationCode string
	OperationName string
	Category      string
	ItemName      string
	Unit          string
	Block         string
	WBS           string
	Discipline    string
	Floor         string
	UGPR          string
	PlanQtyTotal  *float64
	UnitPrice     *float64
	AmountTotal   *float64
}

// FactVolumeRow 按日实物工程量
type FactVolumeRow struct {
	OperationCode string
	OperationName string
	Category      string
	ItemName      string
	Unit          string
	WBS           string
	Discipline    string
	Block         string
	Floor         string
	UGPR          string
	Date          time.Time
	Qty           float64
	Amount        *float64
}

// ScheduleRow 进度计划（ГПР）中的一行
type ScheduleRow struct {
	Code         string
	Name         string
	WBSPath      string
	Block        string
	Discipline   string
	Floor        string
	UGPR         string
	Unit         string
	PlanStart    *time.Time
	PlanFinish   *time.Time
	PlanQtyTotal *float64
	Price        *float64
	Cost         *float64
}

// ResourceRow 按日人力/机械数量
type ResourceRow struct {
	Name     string
	Category string
	Unit     string
	Scenario string
	Date     time.Time
	Qty      float64
	Manhours *float64
}

// PnLRow BDR 月度金额
type PnLRow struct {
	Account    string
	ParentName string
	Month      time.Time
	Scenario   string
	Amount     float64
}

// CashflowRow BDDS 月度金额
type CashflowRow struct {
	Account    string
	ParentName string
	Month      time.Time
	Scenario   string
	Direction  string
	Amount     float64
}

// SalesRow 销售计划月度面积
type SalesRow struct {
	ItemName string
	Month    time.Time
	Scenario string
	AreaM2   float64
}

const (
	ScenarioPlan     = "plan"
	ScenarioFact     = "fact"
	ScenarioForecast = "forecast"

	DirectionIn  = "in"
	DirectionOut = "out"
)
