package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"excel2web/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newProject(t *testing.T, s *Store) int64 {
	t.Helper()
	p, err := s.EnsureProject(context.Background(), "P1", "Проект 1")
	require.NoError(t, err)
	return p.ID
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func factRow(code string, date time.Time, qty float64, amount any) Row {
	return Row{
		Key:    []any{code, "Работы", "Бетон", dateArg(date)},
		Values: []any{"Операция " + code, "1.1", nil, nil, nil, nil, "м3", qty, amount},
	}
}

func completeRun(t *testing.T, s *Store, runID int64) {
	t.Helper()
	now := time.Now()
	rows := 0
	require.NoError(t, s.SetImportStatus(context.Background(), runID, model.ImportSuccess, StatusUpdate{FinishedAt: &now, RowsLoaded: &rows}))
}

func sumQty(points []FactPoint) float64 {
	var total float64
	for _, p := range points {
		total += p.Qty
	}
	return total
}

func TestGetOrCreateRun_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	pid := newProject(t, s)

	run, created, err := s.GetOrCreateRun(ctx, pid, "book.xlsx", "abc")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, model.ImportQueued, run.Status)

	again, created, err := s.GetOrCreateRun(ctx, pid, "book-copy.xlsx", "abc")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, run.ID, again.ID)
	assert.Equal(t, "book.xlsx", again.FileName)

	runs, err := s.ListRuns(ctx, pid)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestWriteVersioned_ManualPrecedence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	pid := newProject(t, s)

	require.NoError(t, s.UpsertManual(ctx, TableFactVolume, pid, factRow("OP-1", day(2025, 1, 10), 7, nil)))

	run, _, err := s.GetOrCreateRun(ctx, pid, "book.xlsx", "h1")
	require.NoError(t, err)
	res, err := s.WriteVersioned(ctx, TableFactVolume, pid, run.ID, []Row{
		factRow("OP-1", day(2025, 1, 10), 100, nil),
		factRow("OP-2", day(2025, 1, 10), 3, nil),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Written)
	assert.Equal(t, 1, res.SkippedManual)

	points, err := s.FactVolumes(ctx, ReadFilter{
		Scope: Scope{ProjectID: pid, RunID: &run.ID},
		From:  day(2025, 1, 1),
		To:    day(2025, 1, 31),
	})
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.InDelta(t, 10.0, sumQty(points), 1e-9)
}

func TestEffectiveScope_ManualShadowsRunRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	pid := newProject(t, s)

	run, _, err := s.GetOrCreateRun(ctx, pid, "book.xlsx", "h1")
	require.NoError(t, err)
	_, err = s.WriteVersioned(ctx, TableFactVolume, pid, run.ID, []Row{factRow("OP-1", day(2025, 1, 10), 100, nil)})
	require.NoError(t, err)

	// 手工行在导入之后录入，读取时不应重复计数
	require.NoError(t, s.UpsertManual(ctx, TableFactVolume, pid, factRow("OP-1", day(2025, 1, 10), 5, nil)))

	sc := Scope{ProjectID: pid, RunID: &run.ID}
	n, err := s.CountRows(ctx, TableFactVolume, sc)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	points, err := s.FactVolumes(ctx, ReadFilter{Scope: sc, From: day(2025, 1, 1), To: day(2025, 1, 31)})
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.InDelta(t, 5.0, points[0].Qty, 1e-9)
	assert.True(t, points[0].Date.Equal(day(2025, 1, 10)))
}

func TestWriteVersioned_RerunReplacesRunRows(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	pid := newProject(t, s)

	run, _, err := s.GetOrCreateRun(ctx, pid, "book.xlsx", "h1")
	require.NoError(t, err)
	rows := []Row{factRow("OP-1", day(2025, 1, 10), 4, nil), factRow("OP-1", day(2025, 1, 11), 6, nil)}

	for i := 0; i < 2; i++ {
		require.NoError(t, s.DeleteRunRows(ctx, pid, run.ID))
		_, err := s.WriteVersioned(ctx, TableFactVolume, pid, run.ID, rows)
		require.NoError(t, err)
	}

	n, err := s.CountRows(ctx, TableFactVolume, Scope{ProjectID: pid, RunID: &run.ID})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestWriteVersioned_RowShape(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	pid := newProject(t, s)

	run, _, err := s.GetOrCreateRun(ctx, pid, "book.xlsx", "h1")
	require.NoError(t, err)
	_, err = s.WriteVersioned(ctx, TableSales, pid, run.ID, []Row{{Key: []any{"Квартиры"}, Values: []any{1.0}}})
	assert.Error(t, err)
}

func TestFactVolumes_BaselinePriceFallback(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	pid := newProject(t, s)

	run, _, err := s.GetOrCreateRun(ctx, pid, "book.xlsx", "h1")
	require.NoError(t, err)

	baseline := func(item string, price float64) Row {
		return Row{
			Key:    []any{"OP-1", "Работы", item},
			Values: []any{"Операция", nil, nil, nil, nil, nil, "м3", 10.0, price, price * 10},
		}
	}
	_, err = s.WriteVersioned(ctx, TableBaseline, pid, run.ID, []Row{baseline("Бетон", 100), baseline("Арматура", 300)})
	require.NoError(t, err)

	other := Row{
		Key:    []any{"OP-1", "Работы", "Опалубка", dateArg(day(2025, 1, 11))},
		Values: []any{"Операция", nil, nil, nil, nil, nil, "м2", 2.0, nil},
	}
	_, err = s.WriteVersioned(ctx, TableFactVolume, pid, run.ID, []Row{
		factRow("OP-1", day(2025, 1, 10), 2, nil),
		factRow("OP-1", day(2025, 1, 12), 1, 55.0),
		other,
	})
	require.NoError(t, err)

	points, err := s.FactVolumes(ctx, ReadFilter{
		Scope: Scope{ProjectID: pid, RunID: &run.ID},
		From:  day(2025, 1, 1),
		To:    day(2025, 1, 31),
	})
	require.NoError(t, err)
	require.Len(t, points, 3)
	// 精确匹配单价
	assert.InDelta(t, 200.0, points[0].Amount, 1e-9)
	// 作业+类别均价 (100+300)/2
	assert.InDelta(t, 400.0, points[1].Amount, 1e-9)
	// 显式金额优先
	assert.InDelta(t, 55.0, points[2].Amount, 1e-9)
}

func TestPlanMonthly_WBSFilterAndPrice(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	pid := newProject(t, s)

	_, err := s.UpsertOperations(ctx, pid, []OperationUpsert{
		{Code: "OP-1", Name: "Бетон", WBSPath: "1.1", Discipline: "КЖ"},
		{Code: "OP-2", Name: "Кладка", WBSPath: "2.1"},
	})
	require.NoError(t, err)
	require.NoError(t, s.InsertManualPlanMonthly(ctx, pid, ManualPlanMonthly{OperationCode: "OP-1", Month: day(2025, 1, 15), Qty: 31}))
	require.NoError(t, s.InsertManualPlanMonthly(ctx, pid, ManualPlanMonthly{OperationCode: "OP-2", Month: day(2025, 1, 1), Qty: 10}))

	points, err := s.PlanMonthly(ctx, ReadFilter{
		Scope: Scope{ProjectID: pid},
		From:  day(2025, 1, 10),
		To:    day(2025, 1, 20),
		WBS:   "1.",
	}, model.ScenarioPlan)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, "OP-1", points[0].OperationCode)
	assert.Equal(t, "КЖ", points[0].Discipline)
	assert.True(t, points[0].Month.Equal(day(2025, 1, 1)))
	assert.InDelta(t, 0.0, points[0].Price, 1e-9)
}

func TestResolveScope(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	pid := newProject(t, s)

	sc, err := s.ResolveScope(ctx, pid, nil)
	require.NoError(t, err)
	assert.Nil(t, sc.RunID)

	run, _, err := s.GetOrCreateRun(ctx, pid, "book.xlsx", "h1")
	require.NoError(t, err)
	sc, err = s.ResolveScope(ctx, pid, nil)
	require.NoError(t, err)
	assert.Nil(t, sc.RunID, "queued run is not a reporting default")

	completeRun(t, s, run.ID)
	sc, err = s.ResolveScope(ctx, pid, nil)
	require.NoError(t, err)
	require.NotNil(t, sc.RunID)
	assert.Equal(t, run.ID, *sc.RunID)

	other, err := s.EnsureProject(ctx, "P2", "Проект 2")
	require.NoError(t, err)
	_, err = s.ResolveScope(ctx, other.ID, &run.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestDeleteRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	pid := newProject(t, s)

	run, _, err := s.GetOrCreateRun(ctx, pid, "book.xlsx", "h1")
	require.NoError(t, err)
	_, err = s.WriteVersioned(ctx, TableFactVolume, pid, run.ID, []Row{factRow("OP-1", day(2025, 1, 10), 1, nil)})
	require.NoError(t, err)
	require.NoError(t, s.AddImportErrors(ctx, run.ID, []model.ValidationError{{Sheet: "ГПР", Message: "x"}}))

	_, err = s.DeleteRun(ctx, run.ID)
	assert.True(t, errors.Is(err, ErrConflict))

	completeRun(t, s, run.ID)
	deleted, err := s.DeleteRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "h1", deleted.FileHash)

	n, err := s.CountRows(ctx, TableFactVolume, Scope{ProjectID: pid, RunID: &run.ID})
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	errs, err := s.ListImportErrors(ctx, run.ID)
	require.NoError(t, err)
	assert.Empty(t, errs)

	_, err = s.GetRun(ctx, run.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestImportErrorsAndSheets(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	pid := newProject(t, s)

	run, _, err := s.GetOrCreateRun(ctx, pid, "book.xlsx", "h1")
	require.NoError(t, err)
	require.NoError(t, s.AddImportErrors(ctx, run.ID, []model.ValidationError{
		{Sheet: "ГПР", Row: 4, Column: "Начало", Message: "нет даты"},
		{Sheet: "БДР", Message: "Лист 'БДР' не найден"},
	}))
	require.NoError(t, s.InsertSheetSummaries(ctx, run.ID, []model.SheetSummary{{SheetName: "ГПР", Status: "imported", Rows: 3, Errors: 1}}))

	errs, err := s.ListImportErrors(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, errs, 2)
	require.NotNil(t, errs[0].RowNum)
	assert.Equal(t, 4, *errs[0].RowNum)
	assert.Nil(t, errs[1].RowNum)

	require.NoError(t, s.ClearImportErrors(ctx, run.ID))
	errs, err = s.ListImportErrors(ctx, run.ID)
	require.NoError(t, err)
	assert.Empty(t, errs)
	sheets, err := s.ListSheetSummaries(ctx, run.ID)
	require.NoError(t, err)
	assert.Empty(t, sheets)
}

func TestOperationsAndDependencies(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	pid := newProject(t, s)

	start, finish := day(2025, 1, 1), day(2025, 1, 5)
	a, err := s.CreateOperation(ctx, pid, OperationInput{Code: "A", Name: "A", WBSPath: "1", PlanStart: &start, PlanFinish: &finish})
	require.NoError(t, err)
	require.NotNil(t, a.WBSPath)
	assert.Equal(t, "1", *a.WBSPath)

	_, err = s.CreateOperation(ctx, pid, OperationInput{Code: "A", Name: "dup"})
	assert.True(t, errors.Is(err, ErrConflict))

	b, err := s.CreateOperation(ctx, pid, OperationInput{Code: "B", Name: "Без дат"})
	require.NoError(t, err)

	from, to := day(2025, 1, 3), day(2025, 1, 10)
	ops, err := s.ListOperations(ctx, pid, OperationFilter{From: &from, To: &to})
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, "A", ops[0].Code)

	ops, err = s.ListOperations(ctx, pid, OperationFilter{From: &from, To: &to, IncludeUndated: true})
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, "B", ops[1].Code, "undated operations come last")

	ops, err = s.ListOperations(ctx, pid, OperationFilter{Q: "дат"})
	require.NoError(t, err)
	require.Len(t, ops, 1)

	dep, err := s.CreateDependency(ctx, pid, a.ID, b.ID)
	require.NoError(t, err)
	_, err = s.CreateDependency(ctx, pid, a.ID, b.ID)
	assert.True(t, errors.Is(err, ErrConflict))
	_, err = s.CreateDependency(ctx, pid, a.ID, a.ID)
	assert.True(t, errors.Is(err, ErrConflict))

	deps, err := s.ListDependencies(ctx, pid)
	require.NoError(t, err)
	assert.Len(t, deps, 1)

	require.NoError(t, s.DeleteDependency(ctx, dep.ID))
	assert.True(t, errors.Is(s.DeleteDependency(ctx, dep.ID), ErrNotFound))
}

func TestUpsertOperations_KeepsEnrichedDims(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	pid := newProject(t, s)

	_, err := s.UpsertOperations(ctx, pid, []OperationUpsert{{Code: "OP-1", Name: "Бетон"}})
	require.NoError(t, err)
	require.NoError(t, s.EnrichOperationDims(ctx, pid, map[string]OperationDims{"OP-1": {Discipline: "КЖ", Floor: "3"}}))

	ids, err := s.UpsertOperations(ctx, pid, []OperationUpsert{{Code: "OP-1", Name: "Бетон М300"}})
	require.NoError(t, err)

	op, err := s.GetOperation(ctx, ids["OP-1"])
	require.NoError(t, err)
	assert.Equal(t, "Бетон М300", op.Name)
	require.NotNil(t, op.Discipline)
	assert.Equal(t, "КЖ", *op.Discipline)
}

func TestListAvailableMonths(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	pid := newProject(t, s)

	require.NoError(t, s.UpsertManual(ctx, TableFactVolume, pid, factRow("OP-1", day(2025, 1, 10), 1, nil)))
	require.NoError(t, s.UpsertManual(ctx, TableFactVolume, pid, factRow("OP-1", day(2025, 1, 11), 1, nil)))
	require.NoError(t, s.InsertManualPlanMonthly(ctx, pid, ManualPlanMonthly{OperationCode: "OP-1", Month: day(2025, 2, 1), Qty: 5}))

	months, err := s.ListAvailableMonths(ctx, Scope{ProjectID: pid})
	require.NoError(t, err)
	require.Len(t, months, 2)
	assert.Equal(t, "2025-02", months[0].Month)
	assert.Equal(t, 1, months[0].PlanRows)
	assert.Equal(t, 2, months[1].FactRows)
	assert.Equal(t, 2, months[1].TotalRows)
}

func TestSettings(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	pid := newProject(t, s)

	v, err := s.GetSettingFloat(ctx, pid, SettingOpeningBalance, 0)
	require.NoError(t, err)
	assert.Equal(t, 0.0, v)

	require.NoError(t, s.SetSetting(ctx, pid, SettingOpeningBalance, "1500.5"))
	v, err = s.GetSettingFloat(ctx, pid, SettingOpeningBalance, 0)
	require.NoError(t, err)
	assert.Equal(t, 1500.5, v)
}

func TestProjects_LookupByCode(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	pid := newProject(t, s)

	again, err := s.EnsureProject(ctx, " P1 ", "другое имя")
	require.NoError(t, err)
	assert.Equal(t, pid, again.ID)
	assert.Equal(t, "Проект 1", again.Name)

	p, err := s.GetProjectByCode(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, pid, p.ID)

	_, err = s.GetProjectByCode(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestLikeFilters_TreatWildcardsLiterally(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	pid := newProject(t, s)

	_, err := s.UpsertOperations(ctx, pid, []OperationUpsert{
		{Code: "A_1", Name: "Фундамент", WBSPath: "1_1"},
		{Code: "AB1", Name: "Стены 100%", WBSPath: "101"},
	})
	require.NoError(t, err)
	for _, code := range []string{"A_1", "AB1"} {
		require.NoError(t, s.InsertManualPlanMonthly(ctx, pid, ManualPlanMonthly{OperationCode: code, Month: day(2025, 1, 1), Qty: 1}))
	}

	ops, err := s.ListOperations(ctx, pid, OperationFilter{Q: "A_"})
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, "A_1", ops[0].Code)

	ops, err = s.ListOperations(ctx, pid, OperationFilter{Q: "100%"})
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, "AB1", ops[0].Code)

	points, err := s.PlanMonthly(ctx, ReadFilter{
		Scope: Scope{ProjectID: pid},
		From:  day(2025, 1, 1),
		To:    day(2025, 1, 31),
		WBS:   "1_",
	}, model.ScenarioPlan)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, "A_1", points[0].OperationCode)
}
