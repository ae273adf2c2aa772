package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"
	"github.com/mohammad-safakhou/tweetsense/internal/store"
)

var runColumns = []string{"id", "request_id", "search_query", "topic", "author", "date_from", "date_to",
	"limit_number", "outcome", "posts", "positive", "negative", "error", "duration_ms", "created_at"}

func TestHistoryList(t *testing.T) {
	e := echo.New()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("FROM prediction_runs")).
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows(runColumns).
			AddRow("run-1", "req-1", "python", "python", nil, nil, nil, 100, store.OutcomeOK, 3, 2, 1, nil, int64(42), created))

	h := &HistoryHandler{Runs: &store.Store{DB: db}}
	req := httptest.NewRequest(http.MethodGet, "/predictions?limit=10", nil)
	rec := httptest.NewRecorder()
	if err := h.list(e.NewContext(req, rec)); err != nil {
		t.Fatalf("list: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	var resp []PredictionRunResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp) != 1 || resp[0].ID != "run-1" || resp[0].Positive != 2 || resp[0].DurationMS != 42 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestHistoryBadLimit(t *testing.T) {
	e := echo.New()
	h := &HistoryHandler{Runs: &store.Store{}}
	req := httptest.NewRequest(http.MethodGet, "/predictions?limit=-4", nil)
	err := h.list(e.NewContext(req, httptest.NewRecorder()))
	if code, _ := httpCode(t, err); code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", code)
	}
}

func TestHistoryDisabled(t *testing.T) {
	e := New(Options{})
	rec := serve(e, http.MethodGet, "/predictions", "", "")
	if rec.Code != http.StatusNotFound || decodeDetail(t, rec) != "prediction log is not enabled" {
		t.Fatalf("expected 404 envelope, got %d %s", rec.Code, rec.Body.String())
	}
}
