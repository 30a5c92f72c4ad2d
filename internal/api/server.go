package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/samcharles93/ckptinspect/internal/inspect"
	"github.com/samcharles93/ckptinspect/internal/logger"
	"github.com/samcharles93/ckptinspect/internal/version"
)

// Inspector is the part of inspect.Inspector the server needs.
type Inspector interface {
	Open(ctx context.Context, path string) (*inspect.Document, error)
	Refresh(ctx context.Context, doc *inspect.Document) (*inspect.Document, error)
}

type Server struct {
	inspector Inspector
	store     *DocumentStore
	root      string
	log       logger.Logger
	clock     func() time.Time
	metrics   http.Handler
}

// Config holds optional server settings.
type Config struct {
	// Root restricts inspectable paths to this directory when set.
	Root string
	// Store keeps opened documents; a default-sized store is used when nil.
	Store  *DocumentStore
	Logger logger.Logger
}

func NewServer(in Inspector, cfg Config) *Server {
	store := cfg.Store
	if store == nil {
		store = NewDocumentStore(0)
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Discard()
	}
	return &Server{
		inspector: in,
		store:     store,
		root:      cfg.Root,
		log:       log,
		clock:     time.Now,
		metrics:   promhttp.Handler(),
	}
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/healthz", s.handleHealth)
	e.GET("/metrics", s.handleMetrics)

	e.GET("/v1/inspect", s.handleInspect)
	e.POST("/v1/inspect/refresh", s.handleRefresh)
	e.GET("/v1/documents/:id", s.handleGetDocument)
	e.DELETE("/v1/documents/:id", s.handleDeleteDocument)
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok", Version: version.String()})
}

func (s *Server) handleMetrics(c *echo.Context) error {
	s.metrics.ServeHTTP(c.Response(), c.Request())
	return nil
}

func (s *Server) handleInspect(c *echo.Context) error {
	path, err := resolvePath(s.root, c.QueryParam("path"))
	if err != nil {
		return writeOpenError(c, err)
	}
	return s.open(c, path)
}

func (s *Server) handleRefresh(c *echo.Context) error {
	req, err := decodeJSON[RefreshRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	if req.ID != "" {
		prev, ok := s.store.Get(req.ID)
		if !ok {
			return writeNotFound(c, "document not found")
		}
		doc, err := s.inspector.Refresh(c.Request().Context(), prev)
		if err != nil {
			return writeOpenError(c, err)
		}
		return s.respond(c, doc)
	}
	path, err := resolvePath(s.root, req.Path)
	if err != nil {
		return writeOpenError(c, err)
	}
	return s.open(c, path)
}

func (s *Server) handleGetDocument(c *echo.Context) error {
	doc, ok := s.store.Get(c.Param("id"))
	if !ok {
		return writeNotFound(c, "document not found")
	}
	return c.JSON(http.StatusOK, newInspectResponse(doc))
}

func (s *Server) handleDeleteDocument(c *echo.Context) error {
	id := c.Param("id")
	if !s.store.Delete(id) {
		return writeNotFound(c, "document not found")
	}
	return c.JSON(http.StatusOK, DeleteDocumentResp{ID: id, Object: "document", Deleted: true})
}

func (s *Server) open(c *echo.Context, path string) error {
	started := s.clock()
	ctx := logger.WithContext(c.Request().Context(), s.log)
	doc, err := s.inspector.Open(ctx, path)
	if err != nil {
		s.log.Debug("open rejected", "path", path, "err", err)
		return writeOpenError(c, err)
	}
	s.log.Info("inspected", "path", path, "id", doc.ID, "rows", len(doc.Rows),
		"failed", doc.Failed(), "elapsed", s.clock().Sub(started))
	return s.respond(c, doc)
}

// respond stores doc and writes it. A document whose parse failed is still a
// successful response; the failure is reported in its error field.
func (s *Server) respond(c *echo.Context, doc *inspect.Document) error {
	s.store.Save(doc)
	return c.JSON(http.StatusOK, newInspectResponse(doc))
}
