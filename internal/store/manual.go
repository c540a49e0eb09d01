package store

import (
	"context"
	"strings"
	"time"

	"excel2web/internal/model"
)

// ManualFactVolume 手工录入的日实物量，优先于任何导入数据
type ManualFactVolume struct {
	OperationCode string    `json:"operation_code" binding:"required"`
	OperationName string    `json:"operation_name"`
	Category      string    `json:"category"`
	ItemName      string    `json:"item_name"`
	Unit          string    `json:"unit"`
	WBS           string    `json:"wbs"`
	Discipline    string    `json:"discipline"`
	Block         string    `json:"block"`
	Floor         string    `json:"floor"`
	UGPR          string    `json:"ugpr"`
	Date          time.Time `json:"date" binding:"required"`
	Qty           float64   `json:"qty"`
	Amount        *float64  `json:"amount"`
}

// InsertManualFactVolume 写入或覆盖同键的手工实物量
func (s *Store) InsertManualFactVolume(ctx context.Context, projectID int64, in ManualFactVolume) error {
	item := strings.TrimSpace(in.ItemName)
	if item == "" {
		item = strings.TrimSpace(in.OperationName)
	}
	return s.UpsertManual(ctx, TableFactVolume, projectID, Row{
		Key: []any{strings.TrimSpace(in.OperationCode), strings.TrimSpace(in.Category), item, dateArg(in.Date)},
		Values: []any{
			nullableString(in.OperationName), nullableString(in.WBS), nullableString(in.Discipline),
			nullableString(in.Block), nullableString(in.Floor), nullableString(in.UGPR), nullableString(in.Unit),
			in.Qty, in.Amount,
		},
	})
}

// ManualPlanMonthly 手工录入的月度计划量
type ManualPlanMonthly struct {
	OperationCode string    `json:"operation_code" binding:"required"`
	OperationName string    `json:"operation_name"`
	Month         time.Time `json:"month" binding:"required"`
	Scenario      string    `json:"scenario"`
	Unit          string    `json:"unit"`
	Qty           float64   `json:"qty"`
}

// InsertManualPlanMonthly 写入或覆盖同键的手工月度计划；月份归一到月初，口径默认 plan
func (s *Store) InsertManualPlanMonthly(ctx context.Context, projectID int64, in ManualPlanMonthly) error {
	scenario := strings.TrimSpace(in.Scenario)
	if scenario == "" {
		scenario = model.ScenarioPlan
	}
	return s.UpsertManual(ctx, TablePlanMonthly, projectID, Row{
		Key:    []any{strings.TrimSpace(in.OperationCode), dateArg(monthStart(in.Month)), scenario},
		Values: []any{nullableString(in.OperationName), nullableString(in.Unit), in.Qty},
	})
}
