// Package server implements the HTTP API for running workflows.
package server

import (
	"log/slog"
	"net/http"

	glog "github.com/gin-contrib/slog"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dshills/convoflow/flow"
	"github.com/dshills/convoflow/store"
)

// Server exposes the workflow engine over HTTP.
type Server struct {
	engine   *flow.Engine
	resolver *flow.Resolver
	registry *flow.Registry
	runs     store.Store[flow.State]
	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

// Deps carries the server's dependencies.
type Deps struct {
	// Engine executes resolved plans. Required.
	Engine *flow.Engine

	// Resolver turns workflow requests into plans. Required.
	Resolver *flow.Resolver

	// Registry lists the available steps. Required.
	Registry *flow.Registry

	// Runs serves run history lookups. Optional.
	Runs store.Store[flow.State]

	// Gatherer backs the /metrics endpoint. Optional.
	Gatherer prometheus.Gatherer

	// Logger for request handling. Nil falls back to slog.Default.
	Logger *slog.Logger
}

// New creates an HTTP API server.
func New(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		engine:   deps.Engine,
		resolver: deps.Resolver,
		registry: deps.Registry,
		runs:     deps.Runs,
		gatherer: deps.Gatherer,
		logger:   logger,
	}
}

// SetupRoutes configures and returns the HTTP router with all API endpoints.
func (s *Server) SetupRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(glog.SetLogger(
		glog.WithLogger(func(c *gin.Context, l *slog.Logger) *slog.Logger {
			return s.logger
		}),
	))

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set(
			"Access-Control-Allow-Methods",
			"GET, POST, OPTIONS",
		)
		c.Writer.Header().Set(
			"Access-Control-Allow-Headers",
			"Content-Type, Authorization, X-Api-Key",
		)

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	})

	router.GET("/health", s.handleHealth)
	if s.gatherer != nil {
		router.GET("/metrics", gin.WrapH(
			promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	api := router.Group("/api/graph")
	{
		api.POST("/run", s.handleRun)
		api.GET("/workflows", s.handleWorkflows)
		api.GET("/runs/:runID", s.handleRunHistory)
	}

	return router
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
