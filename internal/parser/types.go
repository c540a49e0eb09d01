package parser

import (
	"time"

	"excel2web/internal/model"
)

// 已知的六种工作表
const (
	SheetVDC    = "ВДЦ"
	SheetGPR    = "ГПР"
	SheetPeople = "Люди техника"
	SheetBDR    = "БДР"
	SheetBDDS   = "БДДС"
	SheetSales  = "план продаж"
)

// 工作表处理状态
const (
	StatusImported = "imported"
	StatusSkipped  = "skipped"
	StatusError    = "error"
)

// Options 解析参数
type Options struct {
	// ShiftHours 人工班次小时数，manhours = qty × ShiftHours
	ShiftHours float64
}

// SheetResult 单个工作表的解析结果摘要
type SheetResult struct {
	SheetName string        `json:"sheetName"`
	Status    string        `json:"status"`
	Rows      int           `json:"rows"`
	Errors    int           `json:"errors"`
	Duration  time.Duration `json:"duration"`
}

// VolumeResult ВДЦ 解析结果
type VolumeResult struct {
	Baseline []model.BaselineRow
	Facts    []model.FactVolumeRow
}

// Result 整个工作簿的解析结果
type Result struct {
	Volume    VolumeResult
	Schedule  []model.ScheduleRow
	Resources []model.ResourceRow
	PnL       []model.PnLRow
	Cashflow  []model.CashflowRow
	Sales     []model.SalesRow
	Errors    []model.ValidationError
	Sheets    []SheetResult
}

func sheetError(sheet, msg string) model.ValidationError {
	return model.ValidationError{Sheet: sheet, Message: msg}
}
