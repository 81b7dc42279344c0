// Package api exposes the local control surface: health, metrics, run
// status and history, manual triggers, pause/resume and clip preview.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/storyreel/storyreel-agent/internal/media"
	"github.com/storyreel/storyreel-agent/internal/metrics"
	"github.com/storyreel/storyreel-agent/internal/stories"
)

// RunController is the part of the stories runner the API drives.
type RunController interface {
	Trigger() bool
	Pause()
	Resume()
	IsPaused() bool
	IsBusy() bool
	LastRun() *stories.Run
}

// ClipServer serves rendered clips by artifact-relative path.
type ClipServer interface {
	ServeClip(w http.ResponseWriter, r *http.Request, rel string) error
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

type ServerConfig struct {
	Port        int
	Repository  stories.Repository
	Runner      RunController
	Clips       ClipServer
	Doctor      *media.CachedDoctor
	Metrics     *metrics.Metrics
	Communities []string
	Logger      *slog.Logger
	StartTime   time.Time
	Version     string
}

func NewServer(cfg ServerConfig) *Server {
	router := NewRouter(cfg)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("127.0.0.1:%d", cfg.Port),
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}
