// Package server exposes post lookup, community management and the
// dashboard over HTTP.
package server

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/qepting91/reddit-top/internal/budget"
	"github.com/qepting91/reddit-top/internal/communities"
	"github.com/qepting91/reddit-top/internal/dashboard"
	"github.com/qepting91/reddit-top/internal/domain"
	"github.com/qepting91/reddit-top/internal/lookup"
	"github.com/qepting91/reddit-top/internal/metrics"
	"github.com/qepting91/reddit-top/internal/pipeline"
	"github.com/qepting91/reddit-top/internal/storage"
)

type Lookup interface {
	FetchPost(ctx context.Context, raw string) (lookup.Result, error)
}

type Pipeline interface {
	Execute(ctx context.Context, command string) (domain.Report, error)
}

// Deps are the collaborators of the HTTP surface. Pipeline, Budget and
// Metrics may be nil.
type Deps struct {
	Lookup   Lookup
	Registry *communities.Registry
	Pipeline Pipeline
	Budget   *budget.Budget
	Metrics  *metrics.Metrics
	DataDir  string
	Logger   *slog.Logger
}

type Server struct {
	deps   Deps
	logger *slog.Logger
	now    func() time.Time
}

func New(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{deps: deps, logger: logger, now: time.Now}
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.accessLog(), cors())

	api := r.Group("/api")
	api.GET("/health", s.handleHealth)
	api.GET("/fetch-post", s.handleFetchPost)
	api.GET("/communities", s.handleCommunities)
	api.POST("/add-community", s.handleAddCommunity)
	api.POST("/remove-community", s.handleRemoveCommunity)
	api.POST("/run-pipeline", s.handleRunPipeline)

	if s.deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(s.deps.Metrics.Handler()))
	}
	r.GET("/", s.handleDashboard)

	r.NoRoute(func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusOK)
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "route not found", "kind": "not_found"})
	})
	return r
}

// Serve runs the router on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Router(), ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("Shutting down HTTP server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleFetchPost(c *gin.Context) {
	raw := c.Query("url")
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "query parameter 'url' is required", "kind": "invalid_request"})
		return
	}
	res, err := s.deps.Lookup.FetchPost(c.Request.Context(), raw)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"post":        res.Post,
		"community":   res.Community,
		"is_tracked":  res.Tracked,
		"subscribers": res.Subscribers,
	})
}

func (s *Server) handleCommunities(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"communities": s.deps.Registry.List()})
}

type communityRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleAddCommunity(c *gin.Context) {
	var req communityRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "JSON body with a 'name' is required", "kind": "invalid_request"})
		return
	}
	name, err := s.deps.Registry.Add(c.Request.Context(), req.Name)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"message":     "r/" + name + " added",
		"communities": s.deps.Registry.List(),
	})
}

func (s *Server) handleRemoveCommunity(c *gin.Context) {
	var req communityRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "JSON body with a 'name' is required", "kind": "invalid_request"})
		return
	}
	if err := s.deps.Registry.Remove(c.Request.Context(), req.Name); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"message":     "r/" + req.Name + " removed",
		"communities": s.deps.Registry.List(),
	})
}

type communitySummary struct {
	Community string `json:"community"`
	Raw       int    `json:"raw"`
	Windowed  int    `json:"windowed"`
	Ranked    int    `json:"ranked"`
	ErrorKind string `json:"error_kind,omitempty"`
}

func (s *Server) handleRunPipeline(c *gin.Context) {
	if s.deps.Pipeline == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "pipeline not configured", "kind": "internal"})
		return
	}
	report, err := s.deps.Pipeline.Execute(c.Request.Context(), "http")
	if err != nil {
		s.writeError(c, err)
		return
	}
	summary := make([]communitySummary, 0, len(report.Results))
	for _, res := range report.Results {
		summary = append(summary, communitySummary{
			Community: res.Community,
			Raw:       len(res.Raw),
			Windowed:  len(res.Recent),
			Ranked:    len(res.Ranked),
			ErrorKind: res.ErrorKind,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"finished_at": report.FinishedAt,
		"communities": summary,
	})
}

func (s *Server) handleDashboard(c *gin.Context) {
	report, err := storage.LoadReport(s.deps.DataDir)
	if errors.Is(err, storage.ErrNoReport) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "no report yet, run the pipeline first", "kind": "not_found"})
		return
	}
	if err != nil {
		s.writeError(c, err)
		return
	}
	var buf bytes.Buffer
	if err := dashboard.Render(&buf, report, s.now()); err != nil {
		s.writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

// statusFor maps an error class to its HTTP status and kind.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, communities.ErrInvalidName):
		return http.StatusBadRequest, "invalid_name"
	case errors.Is(err, communities.ErrAlreadyPresent):
		return http.StatusConflict, "already_present"
	case errors.Is(err, communities.ErrNotRegistered):
		return http.StatusNotFound, "not_registered"
	case errors.Is(err, pipeline.ErrRunInProgress):
		return http.StatusConflict, "run_in_progress"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	}

	kind := domain.Kind(err)
	switch kind {
	case "unrecognized_format", "not_a_post":
		return http.StatusBadRequest, kind
	case "post_not_found":
		return http.StatusNotFound, kind
	case "community_unavailable":
		return http.StatusForbidden, kind
	case "redirect_loop":
		return http.StatusUnprocessableEntity, kind
	case "rate_limited":
		return http.StatusTooManyRequests, kind
	case "network_failure":
		return http.StatusBadGateway, kind
	default:
		return http.StatusInternalServerError, kind
	}
}

func (s *Server) writeError(c *gin.Context, err error) {
	status, kind := statusFor(err)
	if status == http.StatusTooManyRequests {
		c.Header("Retry-After", strconv.Itoa(s.retryAfterSeconds()))
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", "path", c.FullPath(), "kind", kind, "err", err)
	}
	c.JSON(status, gin.H{"success": false, "error": err.Error(), "kind": kind})
}

func (s *Server) retryAfterSeconds() int {
	if s.deps.Budget == nil {
		return 1
	}
	st := s.deps.Budget.Snapshot()
	secs := int(st.ResetAt.Sub(s.now()).Seconds() + 0.999)
	if secs < 1 {
		secs = 1
	}
	return secs
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		if s.deps.Metrics != nil {
			s.deps.Metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		}
		s.logger.Debug("HTTP request", "method", c.Request.Method, "route", route, "status", status, "duration", time.Since(start).String())
	}
}
