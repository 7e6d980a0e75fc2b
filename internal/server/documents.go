package server

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/fieldwise/farmhand/internal/advisor"
	"github.com/fieldwise/farmhand/internal/library"
	"github.com/fieldwise/farmhand/internal/store"
)

type documentStore interface {
	CreateDocument(ctx context.Context, displayName string, fragments []string) (store.Document, error)
	ListDocuments(ctx context.Context) ([]store.Document, error)
	FragmentsForDocument(ctx context.Context, documentID string) ([]advisor.Fragment, error)
	DeleteDocument(ctx context.Context, id string) (bool, error)
}

// DocumentsHandler registers reference material and serves the operator
// fragment search.
type DocumentsHandler struct {
	Store  documentStore
	Index  *library.Index
	logger *log.Logger
}

func NewDocumentsHandler(st documentStore, idx *library.Index) *DocumentsHandler {
	return &DocumentsHandler{
		Store:  st,
		Index:  idx,
		logger: log.New(log.Writer(), "[LIBRARY] ", log.LstdFlags),
	}
}

func (h *DocumentsHandler) Register(g *echo.Group) {
	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/search", h.search)
	g.GET("/:id/fragments", h.fragments)
	g.DELETE("/:id", h.delete)
}

type documentCreateRequest struct {
	DisplayName string   `json:"display_name"`
	Fragments   []string `json:"fragments"`
}

// create registers a document whose text arrives already chunked.
func (h *DocumentsHandler) create(c echo.Context) error {
	var req documentCreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.DisplayName) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "display_name is required")
	}
	var fragments []string
	for _, f := range req.Fragments {
		if strings.TrimSpace(f) != "" {
			fragments = append(fragments, f)
		}
	}
	if len(fragments) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "at least one non-empty fragment is required")
	}

	doc, err := h.Store.CreateDocument(c.Request().Context(), req.DisplayName, fragments)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	// Index the stored fragments; a failure here leaves search stale but
	// never loses the document.
	if h.Index != nil {
		stored, err := h.Store.FragmentsForDocument(c.Request().Context(), doc.ID)
		if err != nil {
			h.logger.Printf("load fragments for index: %v", err)
		} else {
			for _, f := range stored {
				if err := h.Index.Add(f); err != nil {
					h.logger.Printf("index fragment %s: %v", f.ID, err)
				}
			}
		}
	}
	return c.JSON(http.StatusCreated, doc)
}

func (h *DocumentsHandler) list(c echo.Context) error {
	items, err := h.Store.ListDocuments(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []store.Document{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *DocumentsHandler) fragments(c echo.Context) error {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid document id")
	}
	frags, err := h.Store.FragmentsForDocument(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if len(frags) == 0 {
		return echo.NewHTTPError(http.StatusNotFound, "document not found")
	}
	return c.JSON(http.StatusOK, frags)
}

func (h *DocumentsHandler) delete(c echo.Context) error {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid document id")
	}
	deleted, err := h.Store.DeleteDocument(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !deleted {
		return echo.NewHTTPError(http.StatusNotFound, "document not found")
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *DocumentsHandler) search(c echo.Context) error {
	q := strings.TrimSpace(c.QueryParam("q"))
	if q == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q is required")
	}
	limit := 10
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = n
	}
	hits, err := h.Index.Search(q, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if hits == nil {
		hits = []library.Hit{}
	}
	return c.JSON(http.StatusOK, hits)
}
