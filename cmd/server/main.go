// LastMinute - study workspace server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/ashureev/lastminute/internal/agent"
	"github.com/ashureev/lastminute/internal/api"
	"github.com/ashureev/lastminute/internal/config"
	"github.com/ashureev/lastminute/internal/health"
	"github.com/ashureev/lastminute/internal/identity"
	"github.com/ashureev/lastminute/internal/metrics"
	"github.com/ashureev/lastminute/internal/middleware"
	"github.com/ashureev/lastminute/internal/speech"
	"github.com/ashureev/lastminute/internal/store"
	"github.com/ashureev/lastminute/internal/tutor"
	"github.com/ashureev/lastminute/internal/workspace"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "grpc_port", cfg.GRPCPort, "store", cfg.Store.Backend, "dev", cfg.IsDevelopment())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rec := metrics.New()

	// Initialize dependencies.
	backend, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize session store", "error", err, "backend", cfg.Store.Backend)
		os.Exit(1)
	}
	repo, err := store.NewCached(backend, cfg.Store.CacheSize, rec.CacheLookup)
	if err != nil {
		slog.Error("Failed to initialize session cache", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(ctx); err != nil {
		slog.Error("Session store health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Session store connected", "backend", cfg.Store.Backend)

	if cfg.Store.Backend == config.BackendSQLite {
		store.StartTTLWorker(ctx, repo, cfg.Store.SweepInterval, rec.Swept)
	}

	conversationLogger, err := agent.NewConversationLogger(agent.ConversationLogConfig{
		Enabled:       cfg.ConversationLog.Enabled,
		Dir:           cfg.ConversationLog.Dir,
		GlobalEnabled: cfg.ConversationLog.GlobalEnabled,
		GlobalPath:    cfg.ConversationLog.GlobalPath,
		QueueSize:     cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize conversation logger", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := conversationLogger.Close(); closeErr != nil {
			slog.Error("Failed to close conversation logger", "error", closeErr)
		}
	}()

	var model tutor.Model
	if cfg.Tutor.GeminiAPIKey != "" {
		model = tutor.NewGeminiModel(cfg.Tutor.GeminiAPIKey, cfg.Tutor.Model)
		slog.Info("Tutor model configured", "model", cfg.Tutor.Model)
	} else {
		slog.Info("Tutor disabled (GEMINI_API_KEY not set)")
	}

	var synth speech.Synthesizer
	if cfg.Speech.URL != "" {
		synth = speech.NewHTTPSynthesizer(cfg.Speech.URL, cfg.Speech.Timeout)
	} else {
		slog.Info("Speech disabled (SPEECH_URL not set)")
	}

	// Initialize handlers.
	tutorClient := agent.NewHTTPClient(cfg.Tutor.URL, cfg.Tutor.Timeout)
	registry := workspace.NewRegistry()

	sessionHandler := api.NewSessionHandler(api.NewHandler(repo), api.Features{
		TutorEnabled:  model != nil,
		SpeechEnabled: synth != nil,
	}, rec.SessionLoad)
	tutorHandler := tutor.NewHandler(model,
		tutor.NewRateLimiter(ctx, cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.WindowDuration),
		tutor.WithMaxBody(cfg.Tutor.MaxBodySize),
		tutor.WithRequestObserver(rec.TutorRequest),
	)
	wsHandler := workspace.NewHandler(workspace.Deps{
		Repo:     repo,
		Chat:     tutorClient,
		Analysis: tutorClient,
		Synth:    synth,
		ConvLog:  conversationLogger,
		Metrics:  rec,
	}, registry, cfg.FrontendURL, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(allowedOrigins(cfg)))
	r.Use(identity.Middleware(cfg.IsDevelopment()))

	r.Handle("/metrics", rec.Handler())
	sessionHandler.RegisterRoutes(r)
	tutorHandler.RegisterRoutes(r)

	// WebSocket endpoint.
	r.Get("/ws/workspace", wsHandler.ServeHTTP)

	// Create servers.
	// No WriteTimeout: workspace sockets stay open for the whole session.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}
	srv.RegisterOnShutdown(func() { registry.CloseAll("server shutting down") })

	grpcServer := grpc.NewServer()
	checker := health.NewChecker(repo, health.DefaultInterval)
	checker.Register(grpcServer)

	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		slog.Error("Failed to listen for gRPC", "error", err, "port", cfg.GRPCPort)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		slog.Info("gRPC health server listening", "addr", lis.Addr().String())
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		checker.Run(gctx)
		return nil
	})
	g.Go(func() error {
		// Wait for shutdown signal or a server failure.
		<-gctx.Done()
		slog.Info("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		grpcServer.GracefulStop()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}

// openStore connects the configured backend, retrying transient failures.
func openStore(ctx context.Context, cfg *config.Config) (store.Repository, error) {
	connect := func() (store.Repository, error) {
		switch cfg.Store.Backend {
		case config.BackendRedis:
			return store.NewRedis(ctx, store.RedisConfig{
				Addr:     cfg.Store.RedisAddr,
				Password: cfg.Store.RedisPassword,
				DB:       cfg.Store.RedisDB,
			})
		case config.BackendMongo:
			return store.NewMongo(ctx, cfg.Store.MongoURI, cfg.Store.MongoDatabase)
		default:
			return store.NewSQLite(cfg.Store.DBPath)
		}
	}

	tries := max(cfg.Store.ConnectTries, 1)
	return backoff.Retry(ctx, func() (store.Repository, error) {
		repo, err := connect()
		if err != nil {
			slog.Warn("Session store connection failed", "error", err, "backend", cfg.Store.Backend)
			return nil, err
		}
		return repo, nil
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(uint(tries)))
}

func allowedOrigins(cfg *config.Config) []string {
	if cfg.IsDevelopment() {
		return []string{"*"}
	}
	return []string{cfg.FrontendURL}
}
