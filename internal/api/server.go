// Package api implements the HTTP + Server-Sent-Event surface (spec §6):
// task submission, live status/streaming, history, agents, and the
// admin/diagnostic query endpoints.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/taskmesh/orchestrator/internal/ai"
	"github.com/taskmesh/orchestrator/internal/audit"
	"github.com/taskmesh/orchestrator/internal/cancel"
	"github.com/taskmesh/orchestrator/internal/events"
	"github.com/taskmesh/orchestrator/internal/learning"
	"github.com/taskmesh/orchestrator/internal/logbuffer"
	"github.com/taskmesh/orchestrator/internal/orchestrator"
	"github.com/taskmesh/orchestrator/internal/registry"
	"github.com/taskmesh/orchestrator/internal/replay"
	"github.com/taskmesh/orchestrator/internal/scheduler"
	"github.com/taskmesh/orchestrator/internal/task"
)

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	MaxBodySize  int64
	TLSEnabled   bool
	TLSCertFile  string
	TLSKeyFile   string
	Environment  string
}

// DefaultServerConfig returns a development-friendly ServerConfig.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Host:         "0.0.0.0",
		Port:         8080,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
		MaxBodySize:  10 * 1024 * 1024,
		Environment:  "development",
	}
}

// Services bundles every process-wide collaborator the handlers need
// (spec §5, "Shared-resource policy" — all of these are singletons
// constructed once by internal/app and passed in here).
type Services struct {
	Tasks        *task.Store
	Scheduler    *scheduler.Scheduler
	Orchestrator *orchestrator.Orchestrator
	Agents       *registry.AgentRegistry
	Bus          *events.Bus
	Cancels      *cancel.Registry
	Audit        *audit.Log
	Replay       *replay.Store
	Learning     *learning.Module
	Models       *ai.Registry
	Logs         *logbuffer.Hook
}

// Server is the REST + SSE API server.
type Server struct {
	router   *gin.Engine
	server   *http.Server
	config   *ServerConfig
	services *Services
	log      *logrus.Logger

	graphs *graphIndex
}

// NewServer wires services into a gin.Engine following the spec's full
// route table and returns a ready-to-start Server.
func NewServer(config *ServerConfig, services *Services, log *logrus.Logger) *Server {
	if config.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()

	s := &Server{
		router:   router,
		config:   config,
		services: services,
		log:      log,
		graphs:   newGraphIndex(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(RecoveryMiddleware())
	s.router.Use(RequestIDMiddleware())
	s.router.Use(LoggingMiddleware())
	s.router.Use(SecurityHeadersMiddleware())
	s.router.Use(CORSMiddleware())
	s.router.Use(ValidateContentTypeMiddleware())
	s.router.Use(RequestSizeLimitMiddleware(s.config.MaxBodySize))
	s.router.Use(HealthCheckMiddleware())
}

// setupRoutes registers every path from spec.md §6. The route table is
// flat (not nested under /api/v1) because it is the external contract
// the spec names literally.
func (s *Server) setupRoutes() {
	s.router.POST("/task", s.submitTask)

	taskGroup := s.router.Group("/api/task/:id")
	{
		taskGroup.GET("/status", s.taskStatus)
		taskGroup.GET("/details", s.taskDetails)
		taskGroup.GET("/stream", s.taskStream)
		taskGroup.POST("/cancel", s.cancelTask)
		taskGroup.DELETE("", s.deleteTask)
	}

	history := s.router.Group("/api/history")
	{
		history.GET("", s.listHistory)
		history.GET("/:id", s.getHistory)
		history.POST("/:id/retry", s.retryHistory)
		history.DELETE("", s.clearHistory)
		history.GET("/agent/:agentId/stats", s.agentStats)
	}

	s.router.GET("/api/agents", s.listAgents)
	s.router.GET("/api/metrics/agents", s.agentMetrics)
	s.router.GET("/api/scheduler/status", s.schedulerStatus)
	s.router.GET("/api/models", s.listModels)
	s.router.GET("/api/status", s.statusProbe)
	s.router.GET("/api/logs", s.recentLogs)
	s.router.GET("/api/audit", s.auditQuery)
	s.router.GET("/api/replay/:taskId", s.replayQuery)
	s.router.POST("/api/replay/:taskId/run", s.replayRun)
	s.router.GET("/api/tasks", s.activeTasks)
}

// Start begins serving; it blocks until the listener stops.
func (s *Server) Start() error {
	s.log.WithFields(logrus.Fields{
		"host": s.config.Host,
		"port": s.config.Port,
		"tls":  s.config.TLSEnabled,
	}).Info("starting API server")

	if s.config.TLSEnabled {
		return s.server.ListenAndServeTLS(s.config.TLSCertFile, s.config.TLSKeyFile)
	}
	return s.server.ListenAndServe()
}

// Stop gracefully shuts the HTTP listener down.
func (s *Server) Stop(ctx context.Context) error {
	s.log.Info("stopping API server")
	return s.server.Shutdown(ctx)
}

// GetRouter exposes the underlying engine for tests.
func (s *Server) GetRouter() *gin.Engine {
	return s.router
}
