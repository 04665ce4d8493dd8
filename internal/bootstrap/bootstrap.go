// Package bootstrap wires the process together: configuration, logging,
// the session store, the supervised LLM backend, the transcription and
// synthesis clients, and the websocket/HTTP transports, then runs until
// an OS signal asks it to stop. A backend that fails to start ends Run
// early; a backend declared dead after startup does not stop it.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"voxd-server/internal/dialog"
	"voxd-server/internal/domain/eventbus"
	platformauth "voxd-server/internal/platform/auth"
	platformconfig "voxd-server/internal/platform/config"
	platformerrors "voxd-server/internal/platform/errors"
	"voxd-server/internal/platform/logging"
	"voxd-server/internal/session"
	"voxd-server/internal/supervisor"
	"voxd-server/internal/synth"
	"voxd-server/internal/transcriber"
	httptransport "voxd-server/internal/transport/http"
	"voxd-server/internal/transport/ws"
	"voxd-server/internal/workerpool"
)

// ExitCode enumerates the process exit codes documented for operators.
type ExitCode int

const (
	ExitOK             ExitCode = 0
	ExitConfigError    ExitCode = 2
	ExitBackendDead    ExitCode = 3
)

// Result carries the exit code Run wants the caller to use, alongside
// any error worth logging to stderr before exiting.
type Result struct {
	Code ExitCode
	Err  error
}

// Run loads configuration, wires every collaborator and serves until
// ctx is cancelled or an unrecoverable startup failure occurs.
func Run(ctx context.Context, configPath string) Result {
	result, err := platformconfig.NewLoader().Load(configPath)
	if err != nil {
		return Result{Code: ExitConfigError, Err: fmt.Errorf("load config: %w", err)}
	}
	cfg := result.Config

	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, Dir: cfg.Log.Dir, File: cfg.Log.File})
	if err != nil {
		return Result{Code: ExitConfigError, Err: fmt.Errorf("init logger: %w", err)}
	}
	defer logger.Close()

	logger.InfoTag("bootstrap", "starting voxd-server", "config_path", result.Path)

	eventbus.NewLogHandler(logger).Install(eventbus.SubscribeAsync)

	store, err := buildStore(cfg)
	if err != nil {
		return Result{Code: ExitConfigError, Err: fmt.Errorf("build session store: %w", err)}
	}

	// Transcription and synthesis both run on this pool (§5 — "the
	// worker pool is shared"); size it to the host rather than a fixed
	// constant so a bigger box naturally serves more concurrent turns.
	poolCapacity := int64(runtime.NumCPU() * 2)
	if poolCapacity < 4 {
		poolCapacity = 4
	}
	pool := workerpool.New(poolCapacity)

	sup := supervisor.New(supervisor.Config{
		ExePath:          cfg.Backend.ExePath,
		Args:             cfg.Backend.Args,
		WorkDir:          cfg.Backend.WorkDir,
		HealthURL:        cfg.Backend.HealthURL,
		StartupTimeout:   cfg.Backend.StartupTimeout,
		HealthInterval:   cfg.Backend.HealthInterval,
		HealthTimeout:    cfg.Backend.HealthTimeout,
		FailureThreshold: cfg.Backend.FailureThreshold,
		MaxRestarts:      cfg.Backend.MaxRestarts,
		BackoffInitial:   cfg.Backend.BackoffInitial,
		BackoffMax:       cfg.Backend.BackoffMax,
	}, logger.WithTag("backend"))

	startCtx, cancelStart := context.WithTimeout(ctx, cfg.Backend.StartupTimeout+5*time.Second)
	defer cancelStart()
	if err := sup.Start(startCtx); err != nil {
		return Result{Code: ExitBackendDead, Err: fmt.Errorf("start backend: %w", err)}
	}
	defer sup.Shutdown()

	var tools *dialog.ToolRegistry
	if cfg.Dialog.ToolsEnabled && cfg.Dialog.ToolsCommand != "" {
		// The tool subprocess is not supervised like the LLM backend;
		// a missing tool binary degrades the dialog engine to a plain
		// chat loop rather than failing startup.
		tools, err = dialog.NewToolRegistry(ctx, cfg.Dialog.ToolsCommand, cfg.Dialog.ToolsArgs, nil, logger.WithTag("tools"))
		if err != nil {
			logger.WarnTag("bootstrap", "tool registry unavailable, continuing without tools: %v", err)
			tools = nil
		}
	}
	if tools != nil {
		defer tools.Close()
	}

	transcriberClient := transcriber.New(transcriber.Config{BaseURL: cfg.STT.BaseURL, Model: cfg.STT.Model}, pool)

	synthesizer, err := buildSynthesizer(cfg)
	if err != nil {
		return Result{Code: ExitConfigError, Err: fmt.Errorf("build synthesizer: %w", err)}
	}

	deps := session.Deps{
		Config:      *cfg,
		Store:       store,
		Gate:        sup,
		Pool:        pool,
		Tools:       tools,
		Transcriber: transcriberClient,
		Synth:       synthesizer,
		Logger:      logger.WithTag("session"),
	}

	var authToken *platformauth.Token
	var ginAuthMiddleware gin.HandlerFunc
	var wsAuthMiddleware func(http.HandlerFunc) http.HandlerFunc
	if cfg.Auth.Enabled {
		authToken = platformauth.NewToken(cfg.Auth.Secret)
		ginAuthMiddleware = platformauth.Middleware(authToken)
		wsAuthMiddleware = func(next http.HandlerFunc) http.HandlerFunc {
			return platformauth.RequireBearer(authToken, next)
		}
	}

	hub := ws.NewHub(logger.WithTag("hub"))
	router := ws.NewRouter(hub, logger.WithTag("ws"), ws.RouterOptions{HandshakeTimeout: cfg.Server.HandshakeTimeout})
	wsServer := ws.NewServer(ws.ServerConfig{
		Addr:             fmt.Sprintf("%s:%d", cfg.Server.IP, cfg.Server.WSPort),
		Path:             "/ws/audio",
		HandshakeTimeout: cfg.Server.HandshakeTimeout,
		Middleware:       wsAuthMiddleware,
	}, router, hub, logger.WithTag("ws"))
	wsServer.SetHandlerBuilder(session.NewHandlerBuilder(deps))

	httpRouter, err := httptransport.Build(httptransport.Options{Config: cfg, Logger: logger.WithTag("http"), AuthMiddleware: ginAuthMiddleware})
	if err != nil {
		return Result{Code: ExitConfigError, Err: fmt.Errorf("build http router: %w", err)}
	}
	registerHealthRoute(httpRouter, sup, hub, ginAuthMiddleware)

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.IP, cfg.Server.HTTPPort),
		Handler: httpRouter.Engine,
	}

	rootCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	signalCtx, stop := signal.NotifyContext(rootCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(rootCtx)

	group.Go(func() error {
		err := wsServer.Start(groupCtx)
		if err != nil {
			return fmt.Errorf("websocket server: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		go func() {
			<-groupCtx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = httpSrv.Shutdown(shutdownCtx)
		}()
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	logger.InfoTag("bootstrap", "serving", "ws_addr", fmt.Sprintf("%s:%d", cfg.Server.IP, cfg.Server.WSPort), "http_addr", fmt.Sprintf("%s:%d", cfg.Server.IP, cfg.Server.HTTPPort))

	<-signalCtx.Done()
	logger.InfoTag("bootstrap", "shutdown signal received")
	cancel()
	_ = wsServer.Stop()

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.ErrorTag("bootstrap", "shutdown with error: %v", err)
		return Result{Code: ExitOK, Err: err}
	}

	logger.InfoTag("bootstrap", "stopped cleanly")
	return Result{Code: ExitOK}
}

func buildStore(cfg *platformconfig.Config) (session.Store, error) {
	switch cfg.Storage.Backend {
	case "sqlite":
		return session.NewSQLStore(cfg.Storage.SQLite.DSN)
	case "redis":
		return session.NewRedisStore(session.RedisStoreConfig{
			Addr:     cfg.Storage.Redis.Addr,
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
			Prefix:   cfg.Storage.Redis.Prefix,
		})
	case "file", "":
		return session.NewFileStore(cfg.Storage.File.Dir)
	default:
		return nil, platformerrors.New(platformerrors.KindFatal, "build store", fmt.Sprintf("unknown storage backend %q", cfg.Storage.Backend))
	}
}

func buildSynthesizer(cfg *platformconfig.Config) (synth.Synthesizer, error) {
	var base synth.Synthesizer
	switch cfg.Synth.Provider {
	case "edge":
		edge := synth.NewEdgeSynthesizer(synth.EdgeConfig{Voice: cfg.Synth.Voice})
		if cfg.Synth.CacheDir != "" {
			base = synth.NewCachedEdgeSynthesizer(edge, cfg.Synth.Voice, cfg.Synth.CacheDir)
		} else {
			base = edge
		}
	case "piper", "":
		base = synth.NewPiperSynthesizer(synth.PiperConfig{
			ExePath:   cfg.Synth.PiperExePath,
			ModelPath: cfg.Synth.PiperModelPath,
			Timeout:   cfg.Dialog.RequestTimeout,
		})
	default:
		return nil, platformerrors.New(platformerrors.KindFatal, "build synthesizer", fmt.Sprintf("unknown synth provider %q", cfg.Synth.Provider))
	}

	if cfg.Synth.RetryAttempts > 0 {
		base = synth.WithRetry(base, synth.RetryConfig{Attempts: cfg.Synth.RetryAttempts, Delay: cfg.Synth.RetryDelay})
	}
	return base, nil
}

func registerHealthRoute(router *httptransport.Router, sup *supervisor.Supervisor, hub *ws.Hub, authMiddleware gin.HandlerFunc) {
	handler := func(c *gin.Context) {
		backendStatus := "unhealthy"
		if sup.Healthy() {
			backendStatus = "healthy"
		}
		clients, sessions := hub.Counts()
		httptransport.RespondSuccess(c, http.StatusOK, gin.H{
			"backend":     backendStatus,
			"connections": sessions,
			"clients":     clients,
		}, "ok")
	}
	if authMiddleware != nil {
		router.Engine.GET("/health", authMiddleware, handler)
		return
	}
	router.Engine.GET("/health", handler)
}
