package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/dkeye/P2PCall/internal/core"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// StoreHandlers exposes a core.DocumentStore over plain JSON requests.
type StoreHandlers struct {
	Store     core.DocumentStore
	ReadLimit int64
}

func storePath(c *gin.Context) string {
	return strings.Trim(c.Param("path"), "/")
}

// errorCode maps store errors to a status and a stable code.
func errorCode(err error) (int, string) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, core.ErrAlreadyExists):
		return http.StatusConflict, "already_exists"
	case errors.Is(err, core.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, core.ErrInvalid):
		return http.StatusBadRequest, "invalid"
	case errors.Is(err, core.ErrUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func abortWith(c *gin.Context, err error) {
	status, code := errorCode(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("module", "adapters.http").Str("path", c.Request.URL.Path).Msg("store error")
	}
	c.AbortWithStatusJSON(status, gin.H{"error": code})
}

// readBody reads at most ReadLimit bytes; larger bodies are answered with 413.
func (h *StoreHandlers) readBody(c *gin.Context) (json.RawMessage, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.ReadLimit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "too_large"})
			return nil, false
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid"})
		return nil, false
	}
	return body, true
}

func (h *StoreHandlers) GetDocument(c *gin.Context) {
	doc, err := h.Store.Get(c.Request.Context(), storePath(c))
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (h *StoreHandlers) CreateDocument(c *gin.Context) {
	body, ok := h.readBody(c)
	if !ok {
		return
	}
	p := storePath(c)
	if err := h.Store.Create(c.Request.Context(), p, body); err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": p[strings.LastIndex(p, "/")+1:]})
}

func (h *StoreHandlers) UpdateDocument(c *gin.Context) {
	body, ok := h.readBody(c)
	if !ok {
		return
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil || fields == nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid"})
		return
	}
	if err := h.Store.Update(c.Request.Context(), storePath(c), fields, c.Query("if_absent")); err != nil {
		abortWith(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *StoreHandlers) AddRecord(c *gin.Context) {
	body, ok := h.readBody(c)
	if !ok {
		return
	}
	id, err := h.Store.Add(c.Request.Context(), storePath(c), body)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}
