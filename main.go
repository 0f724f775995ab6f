package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/recorpproduction-prog/camcapprod/capture"
	"github.com/recorpproduction-prog/camcapprod/config"
	"github.com/recorpproduction-prog/camcapprod/handler"
	"github.com/recorpproduction-prog/camcapprod/middleware"
	"github.com/recorpproduction-prog/camcapprod/model"
	"github.com/recorpproduction-prog/camcapprod/pkg/logger"
	"github.com/recorpproduction-prog/camcapprod/pkg/metrics"
	"github.com/recorpproduction-prog/camcapprod/service"
	"github.com/recorpproduction-prog/camcapprod/storage"
	"github.com/recorpproduction-prog/camcapprod/storage/kv"
)

func main() {
	configPath := "config.yaml"
	if p := os.Getenv("CAMCAPPROD_CONFIG"); p != "" {
		configPath = p
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", configPath)
		os.Exit(1)
	}

	logger.Init(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})

	slog.Info("configuration loaded successfully", "store", cfg.Store.Driver)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Local state store
	store, err := kv.Open(ctx, kv.Config{
		Driver:     kv.Driver(cfg.Store.Driver),
		Path:       cfg.Store.Path,
		DSN:        cfg.Store.DSN,
		QuotaBytes: cfg.Store.QuotaBytes,
	})
	if err != nil {
		slog.Error("failed to open local store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// Storage backends
	backends, selector, err := buildBackends(cfg, store)
	if err != nil {
		slog.Error("failed to initialize storage backends", "error", err)
		os.Exit(1)
	}
	local := storage.NewLocal(store)

	renderer, err := service.NewPDFRenderer(cfg.Mail.LogoPath)
	if err != nil {
		slog.Error("failed to initialize PDF renderer", "error", err)
		os.Exit(1)
	}

	archive, err := service.NewArchive(ctx, &cfg.Archive)
	if err != nil {
		slog.Error("failed to initialize PDF archive", "error", err, "driver", cfg.Archive.Driver)
		os.Exit(1)
	}

	// Services
	records := service.NewSyncService(selector, local)
	users := service.NewUserDirectory(backends.SharedAPI, cfg.Directory())
	exports := service.NewExportLog(store, cfg.Store.ExportHistory)
	requests := service.NewRequestService(store, records)
	conn := service.NewConnection(selector, cfg.SharedAPI.Timeout)
	workflow := service.NewWorkflow(service.WorkflowDeps{
		Sync:           records,
		Renderer:       renderer,
		Mailer:         service.NewSMTPMailer(&cfg.Mail),
		Archive:        archive,
		Exports:        exports,
		Users:          users,
		HoldingAddress: cfg.Mail.HoldingAddress,
	})

	capturer := capture.NewCapturer(
		capture.NewGate(capture.GateConfig{
			SharpnessThreshold: cfg.Capture.SharpnessThreshold,
			TextDensityMin:     cfg.Capture.TextDensityMin,
			EdgeDelta:          cfg.Capture.EdgeDelta,
			Cooldown:           cfg.Capture.Cooldown,
		}),
		capture.NewHTTPSubmitter(cfg.Capture.IngestURL, 0),
	)

	go conn.Run(ctx, cfg.Server.ProbeInterval)

	// Handlers
	authHandler := handler.NewAuthHandler(cfg)
	sopHandler := handler.NewSOPHandler(records, workflow)
	exportHandler := handler.NewExportHandler(exports)
	requestHandler := handler.NewRequestHandler(requests)
	userHandler := handler.NewUserHandler(users)
	connHandler := handler.NewConnectionHandler(conn)
	settingsHandler := handler.NewSettingsHandler(backends, users, conn)
	captureHandler := handler.NewCaptureHandler(capturer, cfg.Capture.MaxFrameWidth)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(corsMiddleware())
	router.Use(noCacheMiddleware())
	router.Use(middleware.RateLimit(600, time.Minute))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"backend":   conn.State().Backend,
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := router.Group("/api")
	{
		api.POST("/auth/login", authHandler.Login)
	}

	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(&cfg.Auth))
	{
		protected.GET("/auth/me", authHandler.GetCurrentUser)

		protected.GET("/sops", sopHandler.List)
		protected.POST("/sops", sopHandler.Create)
		protected.GET("/sops/:id", sopHandler.Get)
		protected.PUT("/sops/:id", sopHandler.Autosave)
		protected.DELETE("/sops/:id", sopHandler.Delete)
		protected.POST("/sops/:id/submit", sopHandler.Submit)
		protected.POST("/sops/:id/approve", middleware.RequireRole(model.RoleReviewer), sopHandler.Approve)
		protected.POST("/sops/:id/reject", middleware.RequireRole(model.RoleReviewer), sopHandler.Reject)
		protected.POST("/sops/:id/export", sopHandler.Export)
		protected.GET("/review", sopHandler.Review)
		protected.GET("/sequence", sopHandler.Sequence)

		protected.GET("/exports", exportHandler.List)
		protected.DELETE("/exports", exportHandler.Clear)

		protected.GET("/requests", requestHandler.List)
		protected.POST("/requests", requestHandler.Create)
		protected.POST("/requests/:id/start", requestHandler.Start)

		protected.GET("/users", userHandler.List)
		protected.POST("/users", middleware.RequireRole(model.RoleAdmin), userHandler.Register)

		protected.GET("/connection", connHandler.Get)
		protected.POST("/connection/retry", connHandler.Retry)
		protected.PUT("/settings/:backend", middleware.RequireRole(model.RoleAdmin), settingsHandler.Update)

		// frames arrive every few hundred milliseconds per camera
		frameLimit := middleware.NewRateLimiter(300, time.Minute)
		protected.POST("/capture/frames", middleware.RateLimitBy(frameLimit, middleware.UserKey), captureHandler.Frame)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	// let author notifications finish before the store closes
	workflow.Wait()

	slog.Info("server exited gracefully")
}

// buildBackends constructs every remote adapter from config. Shared API and
// Drive are always wired; GitHub and Gist join the selector only when listed
// in storage.fallbacks.
func buildBackends(cfg *config.Config, store kv.Store) (handler.Backends, *storage.Selector, error) {
	var b handler.Backends
	b.SharedAPI = storage.NewSharedAPI(storage.SharedAPIConfig{
		BaseURL: cfg.SharedAPI.BaseURL,
		Timeout: cfg.SharedAPI.Timeout,
	})
	b.Drive = storage.NewDrive(storage.DriveConfig{
		ClientID:     cfg.Drive.ClientID,
		ClientSecret: cfg.Drive.ClientSecret,
		APIKey:       cfg.Drive.APIKey,
		FolderID:     cfg.Drive.FolderID,
		AccessToken:  cfg.Drive.AccessToken,
		RefreshToken: cfg.Drive.RefreshToken,
		Expiry:       cfg.Drive.TokenExpiresAt,
		Endpoint:     cfg.Drive.Endpoint,
	}, store)

	var fallbacks []storage.Adapter
	for _, name := range cfg.Storage.Fallbacks {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case string(storage.KindGitHub):
			repo, err := storage.NewGitHubRepo(storage.GitHubConfig{
				Token:   cfg.GitHub.Token,
				Owner:   cfg.GitHub.Owner,
				Repo:    cfg.GitHub.Repo,
				Branch:  cfg.GitHub.Branch,
				Dir:     cfg.GitHub.Dir,
				BaseURL: cfg.GitHub.BaseURL,
			})
			if err != nil {
				return b, nil, err
			}
			b.GitHub = repo
			fallbacks = append(fallbacks, repo)
		case string(storage.KindGist):
			gist, err := storage.NewGist(storage.GistConfig{
				Token:   cfg.Gist.Token,
				BaseURL: cfg.Gist.BaseURL,
			}, store)
			if err != nil {
				return b, nil, err
			}
			b.Gist = gist
			fallbacks = append(fallbacks, gist)
		default:
			return b, nil, fmt.Errorf("unknown storage fallback %q", name)
		}
	}

	return b, storage.NewSelector(b.SharedAPI, b.Drive, fallbacks...), nil
}

// corsMiddleware handles CORS headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "X-Request-ID, X-Export-Warnings, Content-Disposition")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// noCacheMiddleware keeps browsers from caching API responses
func noCacheMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api") {
			c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
			c.Header("Pragma", "no-cache")
			c.Header("Expires", "0")
		}
		c.Next()
	}
}
