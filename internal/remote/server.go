// Package remote exposes the camera session over HTTP for headless hosts.
package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"camswitch/internal/domain"
	"camswitch/internal/usecase"
)

// Session is the subset of the session controller the server drives.
type Session interface {
	Start(ctx context.Context) (*usecase.StreamHandle, error)
	Stop() error
	SwitchNext(ctx context.Context) (*usecase.StreamHandle, error)
	RefreshDevices(ctx context.Context) ([]domain.DeviceDescriptor, error)
	Snapshot() domain.Snapshot
}

type errorResponse struct {
	Code     domain.ErrorCode `json:"code"`
	Error    string           `json:"error"`
	Snapshot domain.Snapshot  `json:"snapshot"`
}

type devicesResponse struct {
	Devices []domain.DeviceDescriptor `json:"devices"`
}

// Server serves the session control routes and the event feed.
type Server struct {
	session  Session
	hub      *Hub
	logger   *slog.Logger
	engine   *gin.Engine
	upgrader websocket.Upgrader

	httpServer *http.Server
}

func NewServer(addr string, session Session, hub *Hub, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if hub == nil {
		hub = NewHub(logger)
	}

	s := &Server{
		session: session,
		hub:     hub,
		logger:  logger.With("component", "remote-server"),
		engine:  gin.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	s.engine.Use(gin.Recovery(), s.requestLogger())
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.engine.GET("/health", s.handleHealth)

	api := s.engine.Group("/api")
	api.GET("/devices", s.handleDevices)
	api.GET("/session", s.handleSnapshot)
	api.POST("/session/start", s.handleStart)
	api.POST("/session/stop", s.handleStop)
	api.POST("/session/switch", s.handleSwitch)
	api.GET("/session/events", s.handleEvents)
}

// Handler returns the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// ListenAndServe blocks until the server stops. A clean shutdown returns nil.
func (s *Server) ListenAndServe() error {
	s.logger.Info("remote control listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("remote server failed: %w", err)
	}
	return nil
}

// Shutdown closes event feeds and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("remote server shutdown failed: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now().Format(time.RFC3339)})
}

func (s *Server) handleSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, s.session.Snapshot())
}

func (s *Server) handleDevices(c *gin.Context) {
	devices, err := s.session.RefreshDevices(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, devicesResponse{Devices: devices})
}

func (s *Server) handleStart(c *gin.Context) {
	if _, err := s.session.Start(c.Request.Context()); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.session.Snapshot())
}

func (s *Server) handleStop(c *gin.Context) {
	if err := s.session.Stop(); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.session.Snapshot())
}

func (s *Server) handleSwitch(c *gin.Context) {
	if _, err := s.session.SwitchNext(c.Request.Context()); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.session.Snapshot())
}

func (s *Server) handleEvents(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("session feed upgrade failed", "error", err)
		return
	}
	s.hub.Serve(conn, s.session.Snapshot())
}

func (s *Server) writeError(c *gin.Context, err error) {
	code := domain.CodeFor(err)
	status := statusFor(code)
	if status >= http.StatusInternalServerError {
		s.logger.Error("session request failed", "path", c.FullPath(), "code", code, "error", err)
	}
	c.JSON(status, errorResponse{Code: code, Error: err.Error(), Snapshot: s.session.Snapshot()})
}

func statusFor(code domain.ErrorCode) int {
	switch code {
	case domain.ErrorCodeSessionBusy, domain.ErrorCodeNoAlternateDevice:
		return http.StatusConflict
	case domain.ErrorCodeCaptureDenied:
		return http.StatusForbidden
	case domain.ErrorCodeDeviceUnavailable:
		return http.StatusNotFound
	case domain.ErrorCodeEnumeration, domain.ErrorCodeSessionClosed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
