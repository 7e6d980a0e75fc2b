package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/fieldwise/farmhand/internal/advisor"
)

type datasetStoreStub struct {
	datasets   []advisor.Dataset
	registered []advisor.Dataset
	err        error
}

func (s *datasetStoreStub) RegisterDataset(ctx context.Context, name, storagePath string, columns []string, rowCount int) (advisor.Dataset, error) {
	if s.err != nil {
		return advisor.Dataset{}, s.err
	}
	ds := advisor.Dataset{
		ID:           "ds-1",
		Name:         name,
		StoragePath:  storagePath,
		Columns:      columns,
		RowCount:     rowCount,
		RegisteredAt: time.Unix(1700000000, 0),
	}
	s.registered = append(s.registered, ds)
	return ds, nil
}

func (s *datasetStoreStub) ListDatasets(ctx context.Context) ([]advisor.Dataset, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.datasets, nil
}

func TestDatasetsHandlerCreate(t *testing.T) {
	st := &datasetStoreStub{}
	h := NewDatasetsHandler(st)

	payload := `{"name":"milk_yield.csv","storage_path":"herd/milk_yield.csv","columns":["cow_id","date","litres"],"row_count":1240}`
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/datasets", strings.NewReader(payload))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	if err := h.create(e.NewContext(req, rec)); err != nil {
		t.Fatalf("create returned error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if len(st.registered) != 1 {
		t.Fatalf("expected one registration, got %d", len(st.registered))
	}
	got := st.registered[0]
	if got.Name != "milk_yield.csv" || got.StoragePath != "herd/milk_yield.csv" || got.RowCount != 1240 {
		t.Fatalf("unexpected registration: %#v", got)
	}
	if len(got.Columns) != 3 || got.Columns[2] != "litres" {
		t.Fatalf("columns not forwarded: %#v", got.Columns)
	}
	var resp advisor.Dataset
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ID != "ds-1" {
		t.Fatalf("unexpected response: %#v", resp)
	}
}

func TestDatasetsHandlerCreateValidation(t *testing.T) {
	h := NewDatasetsHandler(&datasetStoreStub{})
	e := echo.New()

	cases := []struct {
		name    string
		payload string
	}{
		{"blank name", `{"name":" ","storage_path":"x.csv"}`},
		{"blank path", `{"name":"x.csv","storage_path":""}`},
		{"negative rows", `{"name":"x.csv","storage_path":"x.csv","row_count":-1}`},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/api/datasets", strings.NewReader(tc.payload))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()

		err := h.create(e.NewContext(req, rec))
		if err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
		httpErr, ok := err.(*echo.HTTPError)
		if !ok || httpErr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400 http error, got %#v", tc.name, err)
		}
	}
}

func TestDatasetsHandlerList(t *testing.T) {
	st := &datasetStoreStub{datasets: []advisor.Dataset{
		{ID: "ds-1", Name: "yield.csv"},
		{ID: "ds-2", Name: "feed.csv"},
	}}
	h := NewDatasetsHandler(st)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/datasets", nil)
	rec := httptest.NewRecorder()

	if err := h.list(e.NewContext(req, rec)); err != nil {
		t.Fatalf("list returned error: %v", err)
	}
	var got []advisor.Dataset
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 || got[0].Name != "yield.csv" {
		t.Fatalf("unexpected datasets: %#v", got)
	}
}

func TestDatasetsHandlerListEmptyIsJSONArray(t *testing.T) {
	h := NewDatasetsHandler(&datasetStoreStub{})

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/datasets", nil)
	rec := httptest.NewRecorder()

	if err := h.list(e.NewContext(req, rec)); err != nil {
		t.Fatalf("list returned error: %v", err)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Fatalf("expected empty array, got %s", body)
	}
}
