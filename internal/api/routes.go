package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/storyreel/storyreel-agent/internal/metrics"
	"github.com/storyreel/storyreel-agent/internal/stories"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(CORSAllowlist())
	if cfg.Metrics != nil {
		r.Use(metrics.RequestMiddleware(cfg.Metrics))
		r.Handle("/metrics", cfg.Metrics.Handler())
	}

	r.Get("/health", healthHandler(cfg))

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Repository, cfg.Logger))

		r.Get("/status", statusHandler(cfg))
		r.Get("/runs", listRunsHandler(cfg))
		r.Post("/runs", triggerRunHandler(cfg))
		r.Get("/runs/{id}", getRunHandler(cfg))
		r.Post("/pause", pauseHandler(cfg, true))
		r.Post("/resume", pauseHandler(cfg, false))
		r.Get("/uploads", listUploadsHandler(cfg))
	})

	r.Group(func(r chi.Router) {
		r.Use(LoopbackGuard())
		r.Use(AuthMiddleware(cfg.Repository, cfg.Logger))

		r.Get("/clips/file", clipHandler(cfg))
		r.Head("/clips/file", clipHandler(cfg))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		version := cfg.Version
		if version == "" {
			version = "dev"
		}
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: version,
			UptimeS: int64(time.Since(cfg.StartTime).Seconds()),
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		resp := StatusResponse{State: "idle", Communities: cfg.Communities}
		if resp.Communities == nil {
			resp.Communities = []string{}
		}

		var last *stories.Run
		if cfg.Runner != nil {
			last = cfg.Runner.LastRun()
			resp.Paused = cfg.Runner.IsPaused()
			if cfg.Runner.IsBusy() {
				resp.State = "running"
				if last != nil {
					active := RunToResponse(last)
					resp.ActiveRun = &active
				}
			}
		}
		if last == nil {
			if runs, err := cfg.Repository.ListRuns(ctx, 1); err == nil && len(runs) > 0 {
				last = runs[0]
			}
		}
		if last != nil {
			lr := RunToResponse(last)
			resp.LastRun = &lr
			if last.Status == stories.RunStatusFailed {
				resp.LastError = last.Error
			}
		}

		switch {
		case resp.State == "running":
		case resp.Paused:
			resp.State = "paused"
		case resp.LastError != "":
			resp.State = "error"
		}

		if cfg.Doctor != nil {
			// never probe from a status poll
			if caps := cfg.Doctor.Peek(); caps != nil {
				resp.Media = MediaToResponse(caps)
			}
		}

		WriteJSON(w, http.StatusOK, resp)
	}
}

func listRunsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, ok := parseLimit(w, r)
		if !ok {
			return
		}
		runs, err := cfg.Repository.ListRuns(r.Context(), limit)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list runs", "INTERNAL_ERROR")
			return
		}

		resp := RunsResponse{Runs: make([]RunResponse, len(runs))}
		for i, run := range runs {
			resp.Runs[i] = RunToResponse(run)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func getRunHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			WriteError(w, http.StatusBadRequest, "run id required", "BAD_REQUEST")
			return
		}

		run, err := cfg.Repository.GetRun(r.Context(), id)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		if run == nil {
			WriteError(w, http.StatusNotFound, "run not found", "NOT_FOUND")
			return
		}

		WriteJSON(w, http.StatusOK, RunToResponse(run))
	}
}

func triggerRunHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Runner == nil {
			WriteError(w, http.StatusServiceUnavailable, "runner not available", "UNAVAILABLE")
			return
		}
		if cfg.Runner.IsPaused() {
			WriteError(w, http.StatusConflict, "runner is paused", "PAUSED")
			return
		}
		WriteJSON(w, http.StatusAccepted, TriggerResponse{Queued: cfg.Runner.Trigger()})
	}
}

func pauseHandler(cfg ServerConfig, pause bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Runner == nil {
			WriteError(w, http.StatusServiceUnavailable, "runner not available", "UNAVAILABLE")
			return
		}
		if pause {
			cfg.Runner.Pause()
		} else {
			cfg.Runner.Resume()
		}
		WriteJSON(w, http.StatusOK, PauseResponse{Paused: cfg.Runner.IsPaused()})
	}
}

func listUploadsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, ok := parseLimit(w, r)
		if !ok {
			return
		}
		uploads, err := cfg.Repository.ListUploads(r.Context(), limit)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list uploads", "INTERNAL_ERROR")
			return
		}

		resp := UploadsResponse{Uploads: make([]UploadResponse, len(uploads))}
		for i, u := range uploads {
			resp.Uploads[i] = UploadToResponse(u)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func clipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rel := r.URL.Query().Get("path")
		if rel == "" {
			WriteError(w, http.StatusBadRequest, "path is required", "BAD_REQUEST")
			return
		}
		if cfg.Clips == nil {
			WriteError(w, http.StatusServiceUnavailable, "clip preview not available", "UNAVAILABLE")
			return
		}
		if err := cfg.Clips.ServeClip(w, r, rel); err != nil {
			cfg.Logger.Error("clip preview error", "error", err, "path", rel)
		}
	}
}

func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		WriteError(w, http.StatusBadRequest, "limit must be a positive integer", "BAD_REQUEST")
		return 0, false
	}
	return min(n, maxListLimit), true
}
