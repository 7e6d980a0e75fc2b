package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/fieldwise/farmhand/internal/advisor"
)

type datasetStore interface {
	RegisterDataset(ctx context.Context, name, storagePath string, columns []string, rowCount int) (advisor.Dataset, error)
	ListDatasets(ctx context.Context) ([]advisor.Dataset, error)
}

// DatasetsHandler registers tabular data files by metadata. The files
// themselves live on disk under the configured data directory.
type DatasetsHandler struct {
	Store datasetStore
}

func NewDatasetsHandler(st datasetStore) *DatasetsHandler {
	return &DatasetsHandler{Store: st}
}

func (h *DatasetsHandler) Register(g *echo.Group) {
	g.POST("", h.create)
	g.GET("", h.list)
}

type datasetCreateRequest struct {
	Name        string   `json:"name"`
	StoragePath string   `json:"storage_path"`
	Columns     []string `json:"columns"`
	RowCount    int      `json:"row_count"`
}

func (h *DatasetsHandler) create(c echo.Context) error {
	var req datasetCreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Name) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name is required")
	}
	if strings.TrimSpace(req.StoragePath) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "storage_path is required")
	}
	if req.RowCount < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "row_count must not be negative")
	}
	ds, err := h.Store.RegisterDataset(c.Request().Context(), req.Name, req.StoragePath, req.Columns, req.RowCount)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, ds)
}

func (h *DatasetsHandler) list(c echo.Context) error {
	items, err := h.Store.ListDatasets(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []advisor.Dataset{}
	}
	return c.JSON(http.StatusOK, items)
}
