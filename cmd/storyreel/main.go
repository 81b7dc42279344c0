package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/storyreel/storyreel-agent/internal/api"
	"github.com/storyreel/storyreel-agent/internal/artifacts"
	"github.com/storyreel/storyreel-agent/internal/card"
	"github.com/storyreel/storyreel-agent/internal/config"
	"github.com/storyreel/storyreel-agent/internal/db"
	"github.com/storyreel/storyreel-agent/internal/llm"
	"github.com/storyreel/storyreel-agent/internal/logging"
	"github.com/storyreel/storyreel-agent/internal/media"
	"github.com/storyreel/storyreel-agent/internal/metrics"
	"github.com/storyreel/storyreel-agent/internal/narration"
	"github.com/storyreel/storyreel-agent/internal/pipeline"
	"github.com/storyreel/storyreel-agent/internal/playback"
	"github.com/storyreel/storyreel-agent/internal/publish"
	"github.com/storyreel/storyreel-agent/internal/segmenter"
	"github.com/storyreel/storyreel-agent/internal/sources"
	"github.com/storyreel/storyreel-agent/internal/stories"
	"github.com/storyreel/storyreel-agent/internal/titlecache"
	"github.com/storyreel/storyreel-agent/internal/ui"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
	startTime := time.Now()

	if err := config.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel(), cfg.LogFormat())
	logger.Info("starting storyreel agent",
		"version", config.Version,
		"build_time", config.BuildTime,
		"git_commit", config.GitCommit,
		"data_dir", logging.SanitizePath(cfg.DataDir()),
		"communities", cfg.Communities(),
	)

	if cfg.TTSKey() == "" {
		return fmt.Errorf("%s is required", config.EnvTTSKey)
	}
	if cfg.RendererURL() == "" {
		return fmt.Errorf("%s is required", config.EnvRendererURL)
	}
	if len(cfg.Communities()) == 0 {
		return fmt.Errorf("%s lists no communities", config.EnvCommunities)
	}

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	repo := stories.NewRepository(database.Conn())
	m := metrics.New()

	store, err := artifacts.NewFSStore(cfg.ArtifactsDir())
	if err != nil {
		return err
	}
	cache := artifacts.NewCache(store, m, logging.WithComponent(logger, "artifacts"))

	var model interface {
		stories.TextRewriter
		titlecache.Shortener
	} = llm.Unconfigured{}
	if cfg.OpenAIKey() != "" {
		model = llm.NewClient(cfg.OpenAIKey(), cfg.OpenAIModel(), cfg.OpenAIBaseURL(), logging.WithComponent(logger, "llm"))
	} else {
		logger.Warn("no OpenAI key configured, titles and text are used unchanged")
	}

	titles, err := titlecache.New(titlecache.NewJSONFileStore(cfg.TitleCachePath()), model, logging.WithComponent(logger, "titlecache"))
	if err != nil {
		return err
	}

	ff := media.NewRealFFmpeg(cfg.FFmpegPath(), cfg.FFprobePath(), logging.WithComponent(logger, "ffmpeg"))
	if err := ff.Available(); err != nil {
		return err
	}
	doctor := media.NewCachedDoctor(ff, logger)
	probeCtx, probeCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if caps, err := doctor.Refresh(probeCtx); err != nil {
		logger.Warn("initial media probe failed", "error", err)
	} else {
		logger.Info("media capabilities detected",
			"version", caps.Version,
			"libx264", caps.Libx264,
			"aac", caps.AAC,
		)
	}
	probeCancel()

	narrator := narration.NewStreamingClient(cfg.TTSBaseURL(), cfg.TTSKey(), cfg.TTSVoice(), cfg.NarrationTimeout(), logging.WithComponent(logger, "narration"))
	renderer := card.NewScreenshotRenderer(cfg.RendererURL(), logging.WithComponent(logger, "card"))

	segments := pipeline.New(
		cache,
		narrator,
		renderer,
		media.NewCompositor(ff, logger),
		ff,
		media.NewBackgrounds(cfg.BackgroundPath()),
		logging.WithComponent(logger, "pipeline"),
	)

	var publisher publish.Publisher
	if cfg.PublishURL() != "" && cfg.PublishToken() != "" {
		publisher = publish.NewHTTPPublisher(cfg.PublishURL(), cfg.PublishToken(), logging.WithComponent(logger, "publish"))
		logger.Info("publishing enabled", "endpoint", cfg.PublishURL())
	} else {
		publisher = publish.NewStubPublisher(logging.WithComponent(logger, "publish"))
		logger.Info("publishing not configured, running as dry run")
	}

	service := stories.NewService(stories.Deps{
		Titles:    titles,
		Rewriter:  model,
		Cache:     cache,
		Segments:  segments,
		Splitter:  media.NewSplitter(ff, cfg.MinTailSeconds(), logger),
		Publisher: publisher,
		Repo:      repo,
		Recorder:  m,
	}, stories.Options{
		Policy: segmenter.Policy{
			LongThreshold: cfg.LongTextWords(),
			MinWords:      cfg.SegmentMinWords(),
		},
		MaxBodyWords:   cfg.MaxBodyWords(),
		MaxClipSeconds: cfg.MaxClipSeconds(),
		Hashtags:       cfg.Hashtags(),
	}, logger)

	source := sources.NewRedditSource(cfg.RedditBaseURL(), cfg.RedditUserAgent(), sources.Query{
		Sort:       cfg.Sort(),
		TimeWindow: cfg.TimeWindow(),
		Limit:      cfg.FetchLimit(),
	}, logging.WithComponent(logger, "sources"))

	schedule, err := stories.ParseSchedule(cfg.Schedule(), cfg.RunInterval())
	if err != nil {
		return fmt.Errorf("%s: %w", config.EnvSchedule, err)
	}
	runner := stories.NewRunner(service, repo, source, cfg.Communities(), m, schedule, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if cfg.RunOnce() {
		go func() {
			sig := <-sigCh
			logger.Info("received shutdown signal", "signal", sig)
			cancel()
		}()
		result, err := runner.RunOnce(ctx, stories.TriggerManual)
		if err != nil {
			return err
		}
		fmt.Printf("run %s %s: %d posts seen, %d admitted, %d clips rendered, %d published\n",
			result.ID, result.Status, result.PostsSeen, result.PostsAdmitted, result.ClipsRendered, result.ClipsPublished)
		return nil
	}

	authToken, err := ensureAuthToken(repo)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}

	fmt.Println()
	fmt.Printf("  StoryReel agent %s\n", config.Version)
	fmt.Printf("  API URL:    http://127.0.0.1:%d\n", cfg.Port())
	fmt.Printf("  Auth Token: %s\n", authToken)
	fmt.Println()

	go runner.Start(ctx)

	apiServer := api.NewServer(api.ServerConfig{
		Port:        cfg.Port(),
		Repository:  repo,
		Runner:      runner,
		Clips:       playback.NewClipServer(store.Root(), logger),
		Doctor:      doctor,
		Metrics:     m,
		Communities: cfg.Communities(),
		Logger:      logging.WithComponent(logger, "api"),
		StartTime:   startTime,
		Version:     config.Version,
	})

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	quitCh := make(chan struct{})
	quit := sync.OnceFunc(func() { close(quitCh) })
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			quit()
		case <-quitCh:
		}
	}()

	if cfg.Headless() {
		logger.Info("running in headless mode (no system tray)")
	} else {
		tray := ui.NewTray(ui.TrayConfig{
			Runner:      runner,
			Communities: cfg.Communities(),
			Logger:      logger,
			OnQuit:      quit,
		})
		go tray.Run()
	}

	<-quitCh

	logger.Info("initiating graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

func ensureAuthToken(repo stories.Repository) (string, error) {
	ctx := context.Background()

	existing, err := repo.GetConfig(ctx, api.ConfigKeyAuthToken)
	if err == nil && existing != "" {
		return existing, nil
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	token := hex.EncodeToString(tokenBytes)

	if err := repo.SetConfig(ctx, api.ConfigKeyAuthToken, token); err != nil {
		return "", err
	}

	return token, nil
}
