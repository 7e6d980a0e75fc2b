package server

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/fieldwise/farmhand/internal/advisor"
	"github.com/fieldwise/farmhand/internal/store"
)

type conversationStore interface {
	CreateConversation(ctx context.Context, title string) (store.Conversation, error)
	ListConversations(ctx context.Context) ([]store.Conversation, error)
	GetConversation(ctx context.Context, id string) (store.Conversation, bool, error)
	DeleteConversation(ctx context.Context, id string) (bool, error)
	ListTurns(ctx context.Context, conversationID string) ([]store.Turn, error)
}

type asker interface {
	Answer(ctx context.Context, req advisor.Request) (advisor.Answer, error)
}

// ConversationsHandler exposes conversation CRUD and the ask operation.
type ConversationsHandler struct {
	Store   conversationStore
	Advisor asker
}

func NewConversationsHandler(st conversationStore, adv asker) *ConversationsHandler {
	return &ConversationsHandler{Store: st, Advisor: adv}
}

func (h *ConversationsHandler) Register(g *echo.Group) {
	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/:id/turns", h.turns)
	g.DELETE("/:id", h.delete)
	g.POST("/:id/ask", h.ask)
}

func (h *ConversationsHandler) create(c echo.Context) error {
	var req struct {
		Title string `json:"title"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	conv, err := h.Store.CreateConversation(c.Request().Context(), req.Title)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, conv)
}

func (h *ConversationsHandler) list(c echo.Context) error {
	items, err := h.Store.ListConversations(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []store.Conversation{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *ConversationsHandler) turns(c echo.Context) error {
	id, err := conversationID(c)
	if err != nil {
		return err
	}
	if _, found, err := h.Store.GetConversation(c.Request().Context(), id); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	} else if !found {
		return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
	}
	turns, err := h.Store.ListTurns(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if turns == nil {
		turns = []store.Turn{}
	}
	return c.JSON(http.StatusOK, turns)
}

func (h *ConversationsHandler) delete(c echo.Context) error {
	id, err := conversationID(c)
	if err != nil {
		return err
	}
	deleted, err := h.Store.DeleteConversation(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !deleted {
		return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
	}
	return c.NoContent(http.StatusNoContent)
}

type askRequest struct {
	Question    string   `json:"question"`
	DocumentIDs []string `json:"document_ids"`
	DatasetIDs  []string `json:"dataset_ids"`
}

type askResponse struct {
	Answer    string              `json:"answer"`
	Sources   []advisor.SourceRef `json:"sources"`
	Strategy  advisor.Strategy    `json:"strategy"`
	ElapsedMS int64               `json:"elapsed_ms"`
}

func (h *ConversationsHandler) ask(c echo.Context) error {
	id, err := conversationID(c)
	if err != nil {
		return err
	}
	var req askRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Question == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "question is required")
	}
	if _, found, err := h.Store.GetConversation(c.Request().Context(), id); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	} else if !found {
		return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
	}

	ans, err := h.Advisor.Answer(c.Request().Context(), advisor.Request{
		ConversationID: id,
		Query:          req.Question,
		DocumentIDs:    req.DocumentIDs,
		DatasetIDs:     req.DatasetIDs,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if ans.Sources == nil {
		ans.Sources = []advisor.SourceRef{}
	}
	return c.JSON(http.StatusOK, askResponse{
		Answer:    ans.Text,
		Sources:   ans.Sources,
		Strategy:  ans.Strategy,
		ElapsedMS: ans.Elapsed.Milliseconds(),
	})
}

func conversationID(c echo.Context) (string, error) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		return "", echo.NewHTTPError(http.StatusBadRequest, "invalid conversation id")
	}
	return id, nil
}
