package importer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"excel2web/internal/config"
	"excel2web/internal/logging"
	"excel2web/internal/model"
	"excel2web/internal/parser"
	"excel2web/internal/store"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestDistributeQtyToMonths(t *testing.T) {
	got := DistributeQtyToMonths(date(2025, 1, 20), date(2025, 2, 10), 22)
	require.Len(t, got, 2)
	assert.True(t, got[0].Month.Equal(date(2025, 1, 1)))
	assert.InDelta(t, 12.0, got[0].Qty, 1e-9)
	assert.True(t, got[1].Month.Equal(date(2025, 2, 1)))
	assert.InDelta(t, 10.0, got[1].Qty, 1e-9)

	cases := []struct {
		start, finish time.Time
		qty           float64
	}{
		{date(2025, 1, 1), date(2025, 1, 1), 7},
		{date(2024, 11, 15), date(2025, 3, 3), 1000},
		{date(2024, 2, 1), date(2024, 2, 29), 29},
	}
	for _, tc := range cases {
		var total float64
		for _, m := range DistributeQtyToMonths(tc.start, tc.finish, tc.qty) {
			total += m.Qty
		}
		assert.InDelta(t, tc.qty, total, 1e-9, "%s..%s", tc.start.Format("2006-01-02"), tc.finish.Format("2006-01-02"))
	}

	assert.Len(t, DistributeQtyToMonths(date(2024, 11, 15), date(2025, 3, 3), 1), 5)
}

func TestDistributeQtyToMonths_ReversedRange(t *testing.T) {
	got := DistributeQtyToMonths(date(2025, 2, 10), date(2025, 1, 20), 22)
	require.Len(t, got, 2)
	assert.True(t, got[0].Month.Equal(date(2025, 1, 1)))
	assert.InDelta(t, 12.0, got[0].Qty, 1e-9)
	assert.True(t, got[1].Month.Equal(date(2025, 2, 1)))
	assert.InDelta(t, 10.0, got[1].Qty, 1e-9)

	var total float64
	for _, m := range DistributeQtyToMonths(date(2025, 3, 3), date(2024, 11, 15), 1000) {
		total += m.Qty
	}
	assert.InDelta(t, 1000.0, total, 1e-9)
}

func setRows(t *testing.T, f *excelize.File, sheet string, rows [][]interface{}) {
	t.Helper()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		r := row
		require.NoError(t, f.SetSheetRow(sheet, cell, &r))
	}
}

// buildWorkbook ВДЦ + ГПР + Люди техника；财务与销售表缺失
func buildWorkbook(t *testing.T, dir string) string {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	require.NoError(t, f.SetSheetName("Sheet1", parser.SheetVDC))
	setRows(t, f, parser.SheetVDC, [][]interface{}{
		{"Идентификатор операции", "Категория", "WBS", "Дисциплина", "Этаж", "Название операции",
			"Наименование работ и материалов", "Ед. изм", "Количество Защита", "Цена Защита",
			date(2025, 1, 1), date(2025, 1, 2)},
		{"OP-1", "СМР", "WBS-1", "Монолит", "1", "Операция 1", "Бетон", "м3", 10, 100, 2, 3},
	})

	_, err := f.NewSheet(parser.SheetGPR)
	require.NoError(t, err)
	setRows(t, f, parser.SheetGPR, [][]interface{}{
		{"Идентификатор операции", "Название операции", "Название ИСР", "Начало", "Окончание", "Ед. изм",
			"Плановое количество нетрудовых ресурсов"},
		{"OP-1", "Операция 1", "WBS-1", date(2025, 1, 1), date(2025, 1, 31), "м3", 10},
	})

	_, err = f.NewSheet(parser.SheetPeople)
	require.NoError(t, err)
	setRows(t, f, parser.SheetPeople, [][]interface{}{
		{"наименование", "категория", "ед. изм", "план/факт", "01.01.2025", "02.01.2025"},
		{"Разнорабочие", "Manpower", "чел.", "ФАКТ", 5, 6},
	})

	path := filepath.Join(dir, "book.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

type fixture struct {
	store  *store.Store
	worker *Worker
	cfg    *config.AppConfig
	pid    int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.Database.Path = filepath.Join(dir, "test.db")
	cfg.Storage.UploadDir = filepath.Join(dir, "uploads")

	s, err := store.New(context.Background(), cfg.Database.Path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	p, err := s.EnsureProject(context.Background(), "P1", "Проект")
	require.NoError(t, err)

	log := logging.Discard()
	coord := NewCoordinator(s, cfg.ETL, log, nil)
	return &fixture{store: s, worker: NewWorker(s, coord, cfg, log, nil), cfg: cfg, pid: p.ID}
}

func (fx *fixture) newRun(t *testing.T, path string) model.Job {
	t.Helper()
	run, _, err := fx.store.GetOrCreateRun(context.Background(), fx.pid, filepath.Base(path), "hash-"+filepath.Base(path))
	require.NoError(t, err)
	return model.Job{ImportRunID: run.ID, ProjectID: fx.pid, FilePath: path}
}

func (fx *fixture) scope(runID int64) store.ReadFilter {
	return store.ReadFilter{
		Scope: store.Scope{ProjectID: fx.pid, RunID: &runID},
		From:  date(2025, 1, 1),
		To:    date(2025, 12, 31),
	}
}

func counts(t *testing.T, s *store.Store, sc store.Scope) map[string]int {
	t.Helper()
	out := make(map[string]int)
	for _, tbl := range store.VersionedTables {
		n, err := s.CountRows(context.Background(), tbl, sc)
		require.NoError(t, err)
		out[tbl.Name] = n
	}
	return out
}

func TestExecute_LoadsWorkbook(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	job := fx.newRun(t, buildWorkbook(t, t.TempDir()))

	require.NoError(t, fx.worker.Execute(ctx, job))

	run, err := fx.store.GetRun(ctx, job.ImportRunID)
	require.NoError(t, err)
	// БДР/БДДС/план продаж 缺失
	assert.Equal(t, model.ImportSuccessWithErrors, run.Status)
	// 作业维度不计入 rows_loaded
	assert.Equal(t, 6, run.RowsLoaded)
	require.NotNil(t, run.StartedAt)
	require.NotNil(t, run.FinishedAt)

	errs, err := fx.store.ListImportErrors(ctx, job.ImportRunID)
	require.NoError(t, err)
	assert.Len(t, errs, 3)

	sheets, err := fx.store.ListSheetSummaries(ctx, job.ImportRunID)
	require.NoError(t, err)
	assert.Len(t, sheets, 6)

	c := counts(t, fx.store, store.Scope{ProjectID: fx.pid, RunID: &job.ImportRunID})
	assert.Equal(t, 1, c["baseline_volume"])
	assert.Equal(t, 2, c["fact_volume_daily"])
	assert.Equal(t, 1, c["plan_volume_monthly"])
	assert.Equal(t, 2, c["fact_resource_daily"])

	plan, err := fx.store.PlanMonthly(ctx, fx.scope(job.ImportRunID), model.ScenarioPlan)
	require.NoError(t, err)
	require.Len(t, plan, 1)
	assert.InDelta(t, 10.0, plan[0].Qty, 1e-9)
	assert.Equal(t, "Монолит", plan[0].Discipline, "discipline enriched from baseline")
	assert.InDelta(t, 100.0, plan[0].Price, 1e-9)

	res, err := fx.store.ResourceDaily(ctx, fx.scope(job.ImportRunID))
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.InDelta(t, 40.0, res[0].Manhours, 1e-9)
}

func TestExecute_IdempotentReimport(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	job := fx.newRun(t, buildWorkbook(t, t.TempDir()))
	sc := store.Scope{ProjectID: fx.pid, RunID: &job.ImportRunID}

	require.NoError(t, fx.worker.Execute(ctx, job))
	first := counts(t, fx.store, sc)
	facts, err := fx.store.FactVolumes(ctx, fx.scope(job.ImportRunID))
	require.NoError(t, err)

	require.NoError(t, fx.worker.Execute(ctx, job))
	assert.Equal(t, first, counts(t, fx.store, sc))
	again, err := fx.store.FactVolumes(ctx, fx.scope(job.ImportRunID))
	require.NoError(t, err)
	assert.Equal(t, facts, again)

	errs, err := fx.store.ListImportErrors(ctx, job.ImportRunID)
	require.NoError(t, err)
	assert.Len(t, errs, 3, "errors are replaced, not appended")
}

func TestExecute_ManualRowsWin(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	require.NoError(t, fx.store.InsertManualFactVolume(ctx, fx.pid, store.ManualFactVolume{
		OperationCode: "OP-1",
		Category:      "СМР",
		ItemName:      "Бетон",
		Date:          date(2025, 1, 1),
		Qty:           99,
	}))

	job := fx.newRun(t, buildWorkbook(t, t.TempDir()))
	require.NoError(t, fx.worker.Execute(ctx, job))

	facts, err := fx.store.FactVolumes(ctx, fx.scope(job.ImportRunID))
	require.NoError(t, err)
	require.Len(t, facts, 2)
	assert.InDelta(t, 99.0, facts[0].Qty, 1e-9)
	assert.InDelta(t, 3.0, facts[1].Qty, 1e-9)
}

func TestExecute_MissingFileMarksFailed(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	job := fx.newRun(t, filepath.Join(t.TempDir(), "missing.xlsx"))

	require.Error(t, fx.worker.Execute(ctx, job))

	run, err := fx.store.GetRun(ctx, job.ImportRunID)
	require.NoError(t, err)
	assert.Equal(t, model.ImportFailed, run.Status)
	assert.NotNil(t, run.FinishedAt)
}

func TestService_SubmitIsIdempotent(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	svc := NewService(fx.store, fx.worker, fx.cfg.Storage.UploadDir, logging.Discard())

	body, err := os.ReadFile(buildWorkbook(t, t.TempDir()))
	require.NoError(t, err)

	run, enqueued, err := svc.Submit(ctx, fx.pid, "book.xlsx", bytes.NewReader(body))
	require.NoError(t, err)
	assert.True(t, enqueued)
	assert.Equal(t, model.ImportQueued, run.Status)
	_, statErr := os.Stat(FinalPath(fx.cfg.Storage.UploadDir, fx.pid, run.FileHash))
	require.NoError(t, statErr)

	again, enqueued, err := svc.Submit(ctx, fx.pid, "book.xlsx", bytes.NewReader(body))
	require.NoError(t, err)
	assert.False(t, enqueued)
	assert.Equal(t, run.ID, again.ID)

	job := <-fx.worker.jobs
	require.NoError(t, fx.worker.Execute(ctx, job))

	again, enqueued, err = svc.Submit(ctx, fx.pid, "book.xlsx", bytes.NewReader(body))
	require.NoError(t, err)
	assert.False(t, enqueued, "completed run is not re-enqueued")
	assert.True(t, again.Status.Completed())

	_, err = svc.Delete(ctx, run.ID)
	require.NoError(t, err)
	_, statErr = os.Stat(FinalPath(fx.cfg.Storage.UploadDir, fx.pid, run.FileHash))
	assert.True(t, errors.Is(statErr, os.ErrNotExist))
}

func TestSaveUpload_RejectsNonWorkbooks(t *testing.T) {
	dir := t.TempDir()

	_, err := SaveUpload(dir, 1, "data.csv", bytes.NewReader([]byte("a,b\n1,2\n")))
	assert.True(t, errors.Is(err, ErrNotWorkbook))

	_, err = SaveUpload(dir, 1, "fake.xlsx", bytes.NewReader([]byte("plain text, not a zip")))
	assert.True(t, errors.Is(err, ErrNotWorkbook))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temp files are removed")
}

func TestTempName(t *testing.T) {
	name := TempName(7, "../книга.xlsx")
	assert.Regexp(t, `^tmp_7_[0-9a-f]{32}_книга\.xlsx$`, name)
	assert.Equal(t, filepath.Join("u", fmt.Sprintf("%d_%s.xlsx", 7, "abc")), FinalPath("u", 7, "abc"))
}
