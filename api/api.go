// Package api serves the stored forum dataset over a read-only HTTP API.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/pevans/forumsent"
	"github.com/pevans/forumsent/ingest"
	"github.com/pevans/forumsent/store"
)

// Pagination bounds.
const (
	DefaultLimit = 50
	MaxLimit     = 1000
)

// Reader is the read side of the document store.
type Reader interface {
	FindOne(ctx context.Context, collection string, filter store.Filter) (store.Document, error)
	Find(ctx context.Context, collection string, filter store.Filter, opts ...store.FindOption) ([]store.Document, error)
	Count(ctx context.Context, collection string, filter store.Filter) (int, error)
}

// StateReader exposes the run log.
type StateReader interface {
	GetState(ctx context.Context, key string) (string, error)
}

// Server is the HTTP API server.
type Server struct {
	store       Reader
	state       StateReader
	collections ingest.Collections
	logger      *slog.Logger
}

// NewServer creates a server over the given store. state may be nil, which
// disables the run log endpoint.
func NewServer(r Reader, state StateReader, collections ingest.Collections, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:       r,
		state:       state,
		collections: collections,
		logger:      logger,
	}
}

// resource describes one listable collection and the query parameters it
// can be filtered by.
type resource struct {
	collection string
	filters    []string
	bools      []string
}

// SetupRouter configures the Gin router with all API routes.
func (s *Server) SetupRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	api := router.Group("/api/v1")
	api.GET("/sections", s.handleList(resource{
		collection: s.collections.Sections,
		filters:    []string{"id", "title"},
		bools:      []string{"is_private"},
	}))
	api.GET("/sections/:id", s.HandleGetSection)
	api.GET("/discussions", s.handleList(resource{
		collection: s.collections.Discussions,
		filters:    []string{"author", "section_title", "type", "title"},
	}))
	api.GET("/posts", s.handleList(resource{
		collection: s.collections.Posts,
		filters:    []string{"author", "section_title", "discussion_title", "date"},
	}))
	api.GET("/authors", s.handleList(resource{
		collection: s.collections.Authors,
		filters:    []string{"author"},
	}))
	api.GET("/analysis", s.handleList(resource{
		collection: s.collections.Analysis,
		filters:    []string{"author", "message"},
	}))
	api.GET("/runs/last", s.HandleLastRun)

	return router
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		s.logger.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status())
	}
}

// ListResponse is the body of every list endpoint.
type ListResponse struct {
	Items  []store.Document `json:"items"`
	Total  int              `json:"total"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error code and message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(c *gin.Context, status int, code, message string) {
	c.JSON(status, ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
}

func (s *Server) handleList(res resource) gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := store.Filter{}
		for _, key := range res.filters {
			if v, ok := c.GetQuery(key); ok {
				filter[key] = v
			}
		}
		for _, key := range res.bools {
			v, ok := c.GetQuery(key)
			if !ok {
				continue
			}
			b, err := strconv.ParseBool(v)
			if err != nil {
				writeError(c, http.StatusBadRequest, "invalid_parameter", "Invalid "+key+" parameter: must be true or false")
				return
			}
			filter[key] = b
		}

		limit, offset, ok := pagination(c)
		if !ok {
			return
		}

		ctx := c.Request.Context()
		total, err := s.store.Count(ctx, res.collection, filter)
		if err != nil {
			s.internalError(c, "Failed to count documents", err)
			return
		}

		items, err := s.store.Find(ctx, res.collection, filter, store.WithLimit(limit), store.WithOffset(offset))
		if err != nil {
			s.internalError(c, "Failed to list documents", err)
			return
		}
		if items == nil {
			items = []store.Document{}
		}

		c.JSON(http.StatusOK, ListResponse{
			Items:  items,
			Total:  total,
			Limit:  limit,
			Offset: offset,
		})
	}
}

// pagination reads limit and offset, writing a 400 response when either is
// invalid.
func pagination(c *gin.Context) (limit, offset int, ok bool) {
	limit = DefaultLimit
	if limitParam := c.Query("limit"); limitParam != "" {
		parsed, err := strconv.Atoi(limitParam)
		if err != nil || parsed < 1 {
			writeError(c, http.StatusBadRequest, "invalid_parameter", "Invalid limit parameter")
			return 0, 0, false
		}
		limit = min(parsed, MaxLimit)
	}

	if offsetParam := c.Query("offset"); offsetParam != "" {
		parsed, err := strconv.Atoi(offsetParam)
		if err != nil || parsed < 0 {
			writeError(c, http.StatusBadRequest, "invalid_parameter", "Invalid offset parameter")
			return 0, 0, false
		}
		offset = parsed
	}

	return limit, offset, true
}

// HandleGetSection handles GET /api/v1/sections/:id.
func (s *Server) HandleGetSection(c *gin.Context) {
	id := c.Param("id")

	doc, err := s.store.FindOne(c.Request.Context(), s.collections.Sections, store.Filter{"id": id})
	if errors.Is(err, store.ErrNotFound) {
		writeError(c, http.StatusNotFound, "not_found", "Section with ID "+id+" not found")
		return
	}
	if err != nil {
		s.internalError(c, "Failed to get section", err)
		return
	}

	c.JSON(http.StatusOK, doc)
}

// HandleLastRun handles GET /api/v1/runs/last.
func (s *Server) HandleLastRun(c *gin.Context) {
	if s.state == nil {
		writeError(c, http.StatusNotFound, "not_found", "Run log not available")
		return
	}

	value, err := s.state.GetState(c.Request.Context(), forumsent.LastRunResultKey)
	if errors.Is(err, store.ErrNotFound) {
		writeError(c, http.StatusNotFound, "not_found", "No completed run recorded")
		return
	}
	if err != nil {
		s.internalError(c, "Failed to read run log", err)
		return
	}

	c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(value))
}

func (s *Server) internalError(c *gin.Context, message string, err error) {
	s.logger.Error(message, "path", c.Request.URL.Path, "err", err)
	writeError(c, http.StatusInternalServerError, "internal_error", message+": "+err.Error())
}
