package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"promptcanvas/backend/internal/adapter"
	"promptcanvas/backend/internal/api"
	"promptcanvas/backend/internal/flow"
	"promptcanvas/backend/internal/models"
	"promptcanvas/backend/internal/retention"
	"promptcanvas/backend/pkg/config"
	"promptcanvas/backend/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}

	if err := logger.Init(cfg.Env); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		log.Warn("Ignoring LOG_LEVEL", zap.Error(err))
	}
	log.Info("Starting canvas server...", zap.String("env", cfg.Env))

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	a, err := newApp(cfg)
	if err != nil {
		log.Fatal("Failed to initialize", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.run(ctx); err != nil {
		log.Error("Server stopped with error", zap.Error(err))
		os.Exit(1)
	}
	log.Info("Server exited")
}

// app is the wired process: one canvas, its orchestrator and the sweeper
type app struct {
	cfg       *config.Config
	flow      *flow.Orchestrator
	retention *retention.Manager
	server    *http.Server
	logger    *zap.Logger
}

func newApp(cfg *config.Config) (*app, error) {
	registry := models.Default()
	if cfg.ModelRegistryFile != "" {
		r, err := models.LoadFile(cfg.ModelRegistryFile)
		if err != nil {
			return nil, err
		}
		registry = r
	}

	llm := adapter.NewLLMAdapter(cfg.LiteLLMURL, cfg.OpenRouterAPIKey, cfg.ModelID)
	llm.SetVisionModel(cfg.VisionModelID)

	generator, err := adapter.NewImageGenerator(cfg)
	if err != nil {
		return nil, err
	}

	o := flow.New(flow.Deps{
		Registry:  registry,
		Enhancer:  llm,
		Generator: generator,
		Describer: llm,
		Analyzer:  llm,
	}, flow.WithTimeout(cfg.OperationTimeout))

	mgr := retention.NewManager(retention.Config{
		Interval:           cfg.CleanupInterval,
		AggressiveInterval: cfg.AggressiveCleanupInterval,
	})
	mgr.Register(o.Store, retention.Policy{MaxAge: cfg.NodeMaxAge, MaxCount: cfg.MaxNodes})
	mgr.Register(o.Images, retention.Policy{MaxAge: cfg.ImageMaxAge, MaxCount: cfg.MaxImages})
	mgr.Register(o.Prompts, retention.Policy{MaxAge: cfg.PromptMaxAge, MaxCount: cfg.MaxPrompts})
	// statuses live as long as the nodes they describe and do not count toward pressure
	mgr.Register(o.Operations, retention.Policy{MaxAge: cfg.NodeMaxAge, MaxCount: cfg.MaxNodes, Unweighted: true})

	return &app{
		cfg:       cfg,
		flow:      o,
		retention: mgr,
		server: &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           api.NewServer(o, mgr).Router(),
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger.Named("server"),
	}, nil
}

// run serves HTTP and sweeps until ctx is done, then shuts both down
func (a *app) run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("Server started", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return a.retention.Run(ctx)
	})

	g.Go(func() error {
		<-ctx.Done()
		a.logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("Server forced to shutdown", zap.Error(err))
			return err
		}
		return nil
	})

	return g.Wait()
}
