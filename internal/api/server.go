// Package api exposes symbolication over HTTP.
package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/labstack/echo/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/samcharles93/symcache/internal/logger"
	"github.com/samcharles93/symcache/internal/symstore"
	"github.com/samcharles93/symcache/internal/version"
	"github.com/samcharles93/symcache/internal/webui"
)

const (
	defaultPageSize = 100
	maxPageSize     = 10000
	// MaxAddresses bounds the addresses accepted by one symbolicate request.
	MaxAddresses = 10000
	maxBodyBytes = 4 << 20
)

// CacheStore is what the server needs from a cache registry. *symstore.Registry implements it.
type CacheStore interface {
	List() ([]string, error)
	Info(name string) (symstore.Info, error)
	Get(name string) (*symstore.File, error)
	Symbolicate(ctx context.Context, name string, addrs []uint64) ([]symstore.Result, error)
}

type Options struct {
	// Gatherer backs GET /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
	// RateLimit is the sustained number of requests per second; 0 disables limiting.
	RateLimit float64
	Burst     int
	Logger    logger.Logger
}

type Server struct {
	store   CacheStore
	metrics http.Handler
	limiter *rate.Limiter
	log     logger.Logger
}

func NewServer(store CacheStore, opts Options) *Server {
	s := &Server{store: store, log: opts.Logger}
	if s.log == nil {
		s.log = logger.Default()
	}
	if opts.Gatherer != nil {
		s.metrics = promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})
	}
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = max(int(opts.RateLimit), 1)
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return s
}

func (s *Server) Register(e *echo.Echo) {
	e.Use(s.requestID)
	e.GET("/", echo.WrapHandler(webui.Handler()))
	e.GET("/healthz", s.handleHealth)
	if s.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(s.metrics))
	}

	v1 := e.Group("/v1", s.rateLimit)
	v1.GET("/caches", s.handleListCaches)
	v1.GET("/caches/:name", s.handleGetCache)
	v1.GET("/caches/:name/functions", s.handleListFunctions)
	v1.GET("/caches/:name/files", s.handleListFiles)
	v1.POST("/symbolicate", s.handleSymbolicate)
}

// requestID tags every response with an X-Request-Id, reusing the caller's when present.
func (s *Server) requestID(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c *echo.Context) error {
		id := c.Request().Header.Get(echo.HeaderXRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Response().Header().Set(echo.HeaderXRequestID, id)
		c.Set("request_id", id)
		return next(c)
	}
}

func (s *Server) rateLimit(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c *echo.Context) error {
		if s.limiter != nil && !s.limiter.Allow() {
			return writeError(c, http.StatusTooManyRequests, "rate_limit_error", "too many requests", "rate_limited")
		}
		return next(c)
	}
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok", "version": version.String()})
}

func (s *Server) handleListCaches(c *echo.Context) error {
	names, err := s.store.List()
	if err != nil {
		return writeStoreError(c, err)
	}
	if names == nil {
		names = []string{}
	}
	return c.JSON(http.StatusOK, CacheList{Object: "list", Data: names})
}

func (s *Server) handleGetCache(c *echo.Context) error {
	info, err := s.store.Info(c.Param("name"))
	if err != nil {
		return writeStoreError(c, err)
	}
	return c.JSON(http.StatusOK, info)
}

func (s *Server) handleListFunctions(c *echo.Context) error {
	offset, limit, err := pageParams(c)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	name := c.Param("name")
	f, err := s.store.Get(name)
	if err != nil {
		return writeStoreError(c, err)
	}
	fns, err := f.Functions(offset, limit)
	if err != nil {
		return writeStoreError(c, err)
	}
	if fns == nil {
		fns = []symstore.FunctionInfo{}
	}
	return c.JSON(http.StatusOK, FunctionList{Object: "list", Cache: name, Offset: offset, Data: fns})
}

func (s *Server) handleListFiles(c *echo.Context) error {
	offset, limit, err := pageParams(c)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	name := c.Param("name")
	f, err := s.store.Get(name)
	if err != nil {
		return writeStoreError(c, err)
	}
	files, err := f.Files(offset, limit)
	if err != nil {
		return writeStoreError(c, err)
	}
	if files == nil {
		files = []symstore.FileInfo{}
	}
	return c.JSON(http.StatusOK, FileList{Object: "list", Cache: name, Offset: offset, Data: files})
}

func (s *Server) handleSymbolicate(c *echo.Context) error {
	req, err := decodeJSON[SymbolicateRequest](http.MaxBytesReader(c.Response(), c.Request().Body, maxBodyBytes))
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	if err := validateSymbolicate(&req); err != nil {
		return writeBadRequest(c, err.Error())
	}

	addrs := make([]uint64, len(req.Addresses))
	for i, a := range req.Addresses {
		addrs[i] = uint64(a)
	}
	start := time.Now()
	results, err := s.store.Symbolicate(c.Request().Context(), req.Cache, addrs)
	if err != nil {
		return writeStoreError(c, err)
	}

	resp := SymbolicateResponse{
		ID:      "sym_" + uuid.NewString(),
		Object:  "symbolication",
		Cache:   req.Cache,
		Results: make([]AddressResult, len(results)),
	}
	found := 0
	for i, r := range results {
		resp.Results[i] = AddressResult{
			Address: Address(r.Address),
			Found:   len(r.Frames) > 0,
			Frames:  r.Frames,
			Error:   r.Error,
		}
		if resp.Results[i].Frames == nil {
			resp.Results[i].Frames = []symstore.Frame{}
		}
		if resp.Results[i].Found {
			found++
		}
	}
	s.log.Debug("symbolicated", "request_id", c.Get("request_id"), "cache", req.Cache,
		"addresses", len(addrs), "found", found, "elapsed", time.Since(start))
	return c.JSON(http.StatusOK, resp)
}

func validateSymbolicate(req *SymbolicateRequest) error {
	if req.Cache == "" {
		return newInvalidRequest("cache is required")
	}
	if len(req.Addresses) == 0 {
		return newInvalidRequest("addresses must not be empty")
	}
	if len(req.Addresses) > MaxAddresses {
		return newInvalidRequest(fmt.Sprintf("at most %d addresses per request", MaxAddresses))
	}
	return nil
}

func pageParams(c *echo.Context) (offset, limit int, err error) {
	limit = defaultPageSize
	if v := c.QueryParam("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil || offset < 0 {
			return 0, 0, newInvalidRequest("offset must be a non-negative integer")
		}
	}
	if v := c.QueryParam("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit <= 0 || limit > maxPageSize {
			return 0, 0, newInvalidRequest(fmt.Sprintf("limit must be between 1 and %d", maxPageSize))
		}
	}
	return offset, limit, nil
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return out, err
	}
	return out, nil
}
