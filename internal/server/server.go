package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	glog "github.com/gin-contrib/slog"
	"github.com/gin-gonic/gin"

	"github.com/rendis/flowgraph/internal/debugger"
	"github.com/rendis/flowgraph/internal/engine"
	"github.com/rendis/flowgraph/internal/scheduler"
	"github.com/rendis/flowgraph/internal/store"
	"github.com/rendis/flowgraph/internal/streaming"
	"github.com/rendis/flowgraph/internal/validation"
)

const shutdownTimeout = 10 * time.Second

// Deps holds the collaborators the HTTP API is built on. Scheduler is
// optional; without it the schedule endpoints answer 503.
type Deps struct {
	Engine    *engine.Engine
	Debugger  *debugger.Manager
	Store     store.Store
	Validator validation.Validator
	Scheduler *scheduler.Scheduler
	Hub       streaming.EventHub
	Logger    *slog.Logger
	Version   string
}

// Server implements the HTTP API.
type Server struct {
	engine    *engine.Engine
	debugger  *debugger.Manager
	store     store.Store
	workflows *store.ValidatingStore
	validator validation.Validator
	scheduler *scheduler.Scheduler
	hub       streaming.EventHub
	logger    *slog.Logger
	version   string
}

// NewServer creates the HTTP API server.
func NewServer(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	hub := deps.Hub
	if hub == nil {
		hub = streaming.Nop{}
	}
	s := &Server{
		engine:    deps.Engine,
		debugger:  deps.Debugger,
		store:     deps.Store,
		validator: deps.Validator,
		scheduler: deps.Scheduler,
		hub:       hub,
		logger:    logger,
		version:   deps.Version,
	}
	if deps.Store != nil && deps.Validator != nil {
		s.workflows = store.NewValidatingStore(deps.Store, deps.Validator)
	}
	return s
}

// SetupRoutes configures and returns the router with every API endpoint.
func (s *Server) SetupRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(glog.SetLogger(
		glog.WithLogger(func(_ *gin.Context, _ *slog.Logger) *slog.Logger {
			return s.logger
		}),
	))
	router.Use(cors)

	router.GET("/health", s.handleHealth)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/workflows", s.listWorkflows)
		v1.POST("/workflows", s.saveWorkflow)
		v1.GET("/workflows/:id", s.getWorkflow)
		v1.DELETE("/workflows/:id", s.deleteWorkflow)
		v1.POST("/workflows/:id/execute", s.executeWorkflow)
		v1.GET("/workflows/:id/diagram", s.renderDiagram)
		v1.POST("/validate", s.validateWorkflow)

		v1.POST("/webhooks/:id", s.handleWebhook)

		v1.GET("/runs", s.listRuns)
		v1.GET("/runs/:id", s.getRun)
		v1.GET("/runs/:id/events", s.listRunEvents)

		dbg := v1.Group("/debug/sessions")
		dbg.GET("", s.listDebugSessions)
		dbg.POST("", s.startDebugSession)
		dbg.GET("/:id", s.getDebugSession)
		dbg.POST("/:id/step", s.stepDebugSession)
		dbg.POST("/:id/continue", s.continueDebugSession)
		dbg.POST("/:id/pause", s.pauseDebugSession)
		dbg.DELETE("/:id", s.stopDebugSession)

		v1.GET("/schedules", s.listSchedules)
		v1.POST("/schedules", s.createSchedule)
		v1.PATCH("/schedules/:id", s.updateSchedule)
		v1.DELETE("/schedules/:id", s.deleteSchedule)

		v1.GET("/events/stream", s.streamEvents)
	}

	return router
}

// ListenAndServe serves the API on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.SetupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func cors(c *gin.Context) {
	c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
	c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
	c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

	if c.Request.Method == http.MethodOptions {
		c.AbortWithStatus(http.StatusOK)
		return
	}
	c.Next()
}

func (s *Server) handleHealth(c *gin.Context) {
	version := s.version
	if version == "" {
		version = "dev"
	}
	c.JSON(http.StatusOK, gin.H{"service": "flowgraph", "version": version, "status": "ok"})
}
