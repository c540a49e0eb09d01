package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"excel2web/internal/config"
	"excel2web/internal/importer"
	"excel2web/internal/logging"
	"excel2web/internal/model"
	"excel2web/internal/report"
	"excel2web/internal/store"
)

type testAPI struct {
	router *gin.Engine
	store  *store.Store
	pid    int64
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.Storage.UploadDir = filepath.Join(dir, "uploads")

	ctx, cancel := context.WithCancel(context.Background())
	s, err := store.New(ctx, filepath.Join(dir, "api.db"))
	require.NoError(t, err)

	log := logging.Discard()
	coord := importer.NewCoordinator(s, cfg.ETL, log, nil)
	worker := importer.NewWorker(s, coord, cfg, log, nil)
	worker.Start(ctx)
	hub := NewProgressHub()
	go hub.Run(ctx, worker.Progress())

	t.Cleanup(func() {
		cancel()
		worker.Stop()
		s.Close()
	})

	h := NewHandler(s, report.New(s), importer.NewService(s, worker, cfg.Storage.UploadDir, log), hub, log)
	r := gin.New()
	h.RegisterRoutes(r.Group("/api"))

	p, err := s.EnsureProject(ctx, "P1", "Проект")
	require.NoError(t, err)
	return &testAPI{router: r, store: s, pid: p.ID}
}

func (a *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func (a *testAPI) upload(t *testing.T, name string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/projects/"+strconv.FormatInt(a.pid, 10)+"/imports", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func (a *testAPI) path(format string) string {
	return "/api/projects/" + strconv.FormatInt(a.pid, 10) + format
}

// workbook 只有 ГПР 页的最小工作簿
func workbook(t *testing.T) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetSheetName("Sheet1", "ГПР"))
	for i, v := range []any{"Идентификатор операции", "Название операции", "Начало", "Окончание", "Количество"} {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		require.NoError(t, f.SetCellValue("ГПР", cell, v))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusOf(report.ErrInvalidQuery))
	assert.Equal(t, http.StatusBadRequest, statusOf(importer.ErrNotWorkbook))
	assert.Equal(t, http.StatusNotFound, statusOf(store.ErrNotFound))
	assert.Equal(t, http.StatusConflict, statusOf(store.ErrConflict))
	assert.Equal(t, http.StatusServiceUnavailable, statusOf(importer.ErrQueueFull))
	assert.Equal(t, http.StatusInternalServerError, statusOf(assert.AnError))
}

func TestUploadImport_Lifecycle(t *testing.T) {
	a := newTestAPI(t)
	content := workbook(t)

	w := a.upload(t, "book.xlsx", content)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	first := decode[struct {
		Run      model.ImportRun `json:"run"`
		Enqueued bool            `json:"enqueued"`
	}](t, w)
	assert.True(t, first.Enqueued)
	runPath := "/api/imports/" + strconv.FormatInt(first.Run.ID, 10)

	require.Eventually(t, func() bool {
		req := httptest.NewRequest(http.MethodGet, runPath, nil)
		w := httptest.NewRecorder()
		a.router.ServeHTTP(w, req)
		var run model.ImportRun
		return w.Code == http.StatusOK && json.Unmarshal(w.Body.Bytes(), &run) == nil && run.Status.Completed()
	}, 10*time.Second, 20*time.Millisecond)

	run := decode[model.ImportRun](t, a.do(t, http.MethodGet, runPath, nil))
	assert.Equal(t, model.ImportSuccessWithErrors, run.Status)

	errs := decode[[]model.ImportError](t, a.do(t, http.MethodGet, runPath+"/errors", nil))
	assert.NotEmpty(t, errs)
	sheets := decode[[]model.SheetSummary](t, a.do(t, http.MethodGet, runPath+"/sheets", nil))
	assert.NotEmpty(t, sheets)

	// 相同内容再次上传复用已完成的运行
	w = a.upload(t, "copy.xlsx", content)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	runs := decode[[]model.ImportRun](t, a.do(t, http.MethodGet, a.path("/imports"), nil))
	assert.Len(t, runs, 1)

	assert.Equal(t, http.StatusOK, a.do(t, http.MethodDelete, runPath, nil).Code)
	assert.Equal(t, http.StatusNotFound, a.do(t, http.MethodGet, runPath, nil).Code)
}

func TestUploadImport_RejectsNonWorkbook(t *testing.T) {
	a := newTestAPI(t)
	w := a.upload(t, "notes.xlsx", []byte("just text"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteImport_InFlightConflict(t *testing.T) {
	a := newTestAPI(t)
	run, _, err := a.store.GetOrCreateRun(context.Background(), a.pid, "queued.xlsx", "h1")
	require.NoError(t, err)

	w := a.do(t, http.MethodDelete, "/api/imports/"+strconv.FormatInt(run.ID, 10), nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, http.StatusNotFound, a.do(t, http.MethodDelete, "/api/imports/999", nil).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodGet, "/api/imports/abc", nil).Code)
}

func TestReports_Validation(t *testing.T) {
	a := newTestAPI(t)

	assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodGet, a.path("/reports/kpi"), nil).Code)
	assert.Equal(t, http.StatusBadRequest,
		a.do(t, http.MethodGet, a.path("/reports/kpi?date_from=2025-02-01&date_to=2025-01-01"), nil).Code)
	assert.Equal(t, http.StatusBadRequest,
		a.do(t, http.MethodGet, a.path("/reports/series?date_from=2025-01-01&date_to=2025-01-31&granularity=year"), nil).Code)
	assert.Equal(t, http.StatusBadRequest,
		a.do(t, http.MethodGet, a.path("/reports/table?date_from=2025-01-01&date_to=2025-01-31&by=room"), nil).Code)
	assert.Equal(t, http.StatusNotFound,
		a.do(t, http.MethodGet, a.path("/reports/kpi?date_from=2025-01-01&date_to=2025-01-31&import_run_id=77"), nil).Code)

	w := a.do(t, http.MethodGet, a.path("/reports/kpi?date_from=2025-01-01&date_to=2025-01-31"), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var kpi map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &kpi))
	for _, field := range []string{"fact_qty", "plan_qty", "progress_pct", "manhours", "productivity"} {
		assert.Contains(t, kpi, field)
	}
	assert.Nil(t, kpi["productivity"])
}

func TestManualEntries_FeedReports(t *testing.T) {
	a := newTestAPI(t)

	w := a.do(t, http.MethodPost, a.path("/entries/plan-monthly"), map[string]any{
		"operation_code": "OP-1", "month": "2025-01-01T00:00:00Z", "qty": 31,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = a.do(t, http.MethodPost, a.path("/entries/fact-volume"), map[string]any{
		"operation_code": "OP-1", "category": "Работы", "item_name": "Бетон", "date": "2025-01-05T00:00:00Z", "qty": 5,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodPost, a.path("/entries/plan-monthly"), map[string]any{
		"operation_code": "OP-1", "month": "2025-01-01T00:00:00Z", "scenario": "actual",
	}).Code)

	kpi := decode[report.KPI](t, a.do(t, http.MethodGet, a.path("/reports/kpi?date_from=2025-01-01&date_to=2025-01-10"), nil))
	assert.InDelta(t, 5.0, kpi.FactQty, 1e-9)
	assert.InDelta(t, 10.0, kpi.PlanQty, 1e-9)
	assert.InDelta(t, 50.0, kpi.ProgressPct, 1e-9)

	months := decode[monthsResponse](t, a.do(t, http.MethodGet, a.path("/months"), nil))
	require.Len(t, months.Items, 1)
	assert.Equal(t, "2025-01", months.Items[0].Month)
}

func TestOperationsAndGantt(t *testing.T) {
	a := newTestAPI(t)

	create := func(code, start, finish string) int64 {
		w := a.do(t, http.MethodPost, a.path("/operations"), map[string]any{
			"code": code, "name": "Операция " + code,
			"plan_start": start + "T00:00:00Z", "plan_finish": finish + "T00:00:00Z",
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		return decode[model.Operation](t, w).ID
	}
	opA := create("A", "2025-01-01", "2025-01-05")
	opB := create("B", "2025-01-06", "2025-01-10")

	w := a.do(t, http.MethodPost, a.path("/operations"), map[string]any{"code": "A", "name": "dup"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = a.do(t, http.MethodPost, a.path("/dependencies"), map[string]any{"predecessor_id": opA, "successor_id": opB})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	dep := decode[model.OperationDependency](t, w)
	assert.Equal(t, http.StatusConflict,
		a.do(t, http.MethodPost, a.path("/dependencies"), map[string]any{"predecessor_id": opA, "successor_id": opA}).Code)

	ops := decode[[]model.Operation](t, a.do(t, http.MethodGet, a.path("/operations?q=A"), nil))
	require.Len(t, ops, 1)

	gantt := decode[report.Gantt](t, a.do(t, http.MethodGet, a.path("/reports/gantt?date_from=2025-01-01&date_to=2025-01-31"), nil))
	assert.Equal(t, []int64{opA, opB}, gantt.CriticalPath)
	assert.Len(t, gantt.Operations, 2)

	depPath := "/api/dependencies/" + strconv.FormatInt(dep.ID, 10)
	assert.Equal(t, http.StatusNoContent, a.do(t, http.MethodDelete, depPath, nil).Code)
	assert.Equal(t, http.StatusNotFound, a.do(t, http.MethodDelete, depPath, nil).Code)
}

func TestSettings_OpeningBalance(t *testing.T) {
	a := newTestAPI(t)

	assert.Equal(t, http.StatusBadRequest,
		a.do(t, http.MethodPut, a.path("/settings"), map[string]string{"opening_balance": "много"}).Code)

	w := a.do(t, http.MethodPut, a.path("/settings"), map[string]string{"opening_balance": " 1000 "})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "1000", decode[map[string]string](t, w)["opening_balance"])

	require.NoError(t, a.store.UpsertManual(context.Background(), store.TableCashflow, a.pid, store.Row{
		Key:    []any{"Поступления", "2025-01-01", model.ScenarioPlan, model.DirectionIn},
		Values: []any{nil, 50.0},
	}))
	cf := decode[report.Cashflow](t, a.do(t, http.MethodGet, a.path("/reports/cashflow?date_from=2025-01-01&date_to=2025-01-31"), nil))
	require.Len(t, cf.Series, 1)
	assert.InDelta(t, 1050.0, cf.Series[0].Balance, 1e-9)

	cf = decode[report.Cashflow](t, a.do(t, http.MethodGet, a.path("/reports/cashflow?date_from=2025-01-01&date_to=2025-01-31&opening_balance=0"), nil))
	assert.InDelta(t, 50.0, cf.Series[0].Balance, 1e-9)
}

func TestProjects(t *testing.T) {
	a := newTestAPI(t)

	w := a.do(t, http.MethodPost, "/api/projects", map[string]string{"code": "P2"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	p := decode[model.Project](t, w)
	assert.Equal(t, "P2", p.Name)

	assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodPost, "/api/projects", map[string]string{"code": "  "}).Code)
	assert.Len(t, decode[[]model.Project](t, a.do(t, http.MethodGet, "/api/projects", nil)), 2)
	assert.Equal(t, http.StatusNotFound, a.do(t, http.MethodGet, "/api/projects/999", nil).Code)
}

func TestProgressHub_FanOut(t *testing.T) {
	hub := NewProgressHub()
	src := make(chan importer.ProgressEvent)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx, src)

	first, cancelFirst := hub.Subscribe()
	second, cancelSecond := hub.Subscribe()
	defer cancelSecond()

	src <- importer.ProgressEvent{RunID: 1, Type: "start"}
	assert.Equal(t, "start", (<-first).Type)
	assert.Equal(t, "start", (<-second).Type)

	cancelFirst()
	cancelFirst()
	src <- importer.ProgressEvent{RunID: 1, Type: "done"}
	assert.Equal(t, "done", (<-second).Type)

	select {
	case evt := <-first:
		t.Fatalf("unexpected event after unsubscribe: %v", evt)
	case <-time.After(20 * time.Millisecond):
	}
}
