package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"

	ogmetahandlers "SaveBox/internal/api/handlers/ogmeta"
	"SaveBox/internal/api/middleware"
	"SaveBox/internal/api/routes"
	"SaveBox/internal/core/ogmeta"
	"SaveBox/internal/core/storage"
	"SaveBox/internal/db/migrations"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel()})))

	ogCfg := ogmeta.ConfigFromEnv()
	if err := ogCfg.Validate(); err != nil {
		log.Fatal("Invalid og-meta configuration:", err)
	}

	storageCfg := storage.ConfigFromEnv()
	if err := storageCfg.Validate(); err != nil {
		log.Fatal("Invalid storage configuration:", err)
	}

	// The database is optional; it only backs the postgres result cache.
	var db *sql.DB
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		var err error
		db, err = openDatabase(dbURL)
		if err != nil {
			log.Fatal(err)
		}
		defer db.Close()
	}

	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)

	if origins := splitList(os.Getenv("CORS_ALLOWED_ORIGINS")); len(origins) > 0 {
		r.Use(routes.CORSMiddleware(origins))
		log.Printf("CORS enabled for %d origin(s)", len(origins))
	}

	// Rate limiting: 60 requests per minute per IP by default
	rateLimiter := middleware.NewRateLimiter(
		intEnv("RATE_LIMIT_PER_MINUTE", 60),
		1*time.Minute,
		os.Getenv("RATE_LIMIT_TRUST_PROXY") == "true",
	)
	r.Use(rateLimiter.Middleware)

	bgCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()
	rateLimiter.StartCleanup(bgCtx, 5*time.Minute)

	// Thumbnail storage
	var uploader storage.Uploader
	switch storageCfg.Backend {
	case storage.BackendSupabase:
		store, err := storage.NewSupabaseStore(storageCfg.SupabaseURL, storageCfg.SupabaseServiceKey, storageCfg.SupabaseBucket, storageCfg.UploadTimeout)
		if err != nil {
			log.Fatal("Failed to create Supabase store:", err)
		}
		uploader = store
		log.Printf("Thumbnail storage: supabase (bucket=%s)", storageCfg.SupabaseBucket)
	case storage.BackendDisk:
		store, err := storage.NewDiskStore(storageCfg.DiskPath, storageCfg.PublicBaseURL, storageCfg.DiskTTLDays)
		if err != nil {
			log.Fatal("Failed to create disk store:", err)
		}
		stopDiskCleanup := store.StartCleanupJob(storageCfg.DiskCleanupInterval)
		defer stopDiskCleanup()
		routes.RegisterThumbnailRoutes(r, store.BasePath())
		uploader = store
		log.Printf("Thumbnail storage: disk (path=%s)", store.BasePath())
	default:
		log.Println("Thumbnail storage disabled, thumbnails will not be re-hosted")
	}

	opts := []ogmeta.ServiceOption{}
	if ogCfg.ProxyEnabled && uploader != nil {
		opts = append(opts, ogmeta.WithThumbnailProxy(
			ogmeta.NewThumbnailProxy(uploader, ogCfg.ImageTimeout, ogCfg.MaxThumbnailBytes()),
		))
	}

	// Result cache
	if ogCfg.CacheEnabled() {
		switch ogCfg.CacheBackend {
		case ogmeta.CacheBackendPostgres:
			if db == nil {
				log.Fatal("OG_META_CACHE_BACKEND=postgres requires DATABASE_URL")
			}
			repo := ogmeta.NewPostgresRepository(db)
			stopCacheCleanup := repo.StartCleanupJob(1 * time.Hour)
			defer stopCacheCleanup()
			opts = append(opts, ogmeta.WithRepository(repo, ogCfg.CacheTTL))
		default:
			opts = append(opts, ogmeta.WithRepository(
				ogmeta.NewMemoryRepository(ogCfg.MemoryCacheSize, ogCfg.CacheTTL), ogCfg.CacheTTL,
			))
		}
		log.Printf("Result cache: %s (ttl=%s)", ogCfg.CacheBackend, ogCfg.CacheTTL)
	}

	fetcher := ogmeta.NewHTTPPageFetcher(ogCfg.PageTimeout, ogmeta.DefaultUserAgents())
	ogService, err := ogmeta.NewService(fetcher, opts...)
	if err != nil {
		log.Fatal("Failed to create og-meta service:", err)
	}

	ogHandler := ogmetahandlers.NewHandler(ogService)
	routes.RegisterOGMetaRoutes(r, ogHandler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	server := &http.Server{
		Addr:              ":" + port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		// Page fetch plus thumbnail download and upload must fit.
		WriteTimeout: ogCfg.PageTimeout + ogCfg.ImageTimeout + storageCfg.UploadTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		fmt.Printf("SaveBox API starting on port %s\n", port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server failed:", err)
		}
	}()

	// Operator endpoints listen separately, e.g. ADMIN_ADDR=127.0.0.1:9090.
	var adminServer *http.Server
	if adminAddr := os.Getenv("ADMIN_ADDR"); adminAddr != "" {
		admin := chi.NewRouter()
		admin.Use(chiMiddleware.Recoverer)
		routes.RegisterAdminRoutes(admin, ogHandler)

		adminServer = &http.Server{
			Addr:              adminAddr,
			Handler:           admin,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Printf("Admin listener on %s", adminAddr)
			if err := adminServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatal("Admin server failed:", err)
			}
		}()
	}

	<-ctx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if adminServer != nil {
		_ = adminServer.Shutdown(shutdownCtx)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Graceful shutdown failed: %v", err)
	}
}

func openDatabase(dbURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	log.Println("Connected to database")

	// Run migrations
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.Up(db, "."); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Println("Migrations completed successfully")

	return db, nil
}

func logLevel() slog.Level {
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func intEnv(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		slog.Warn("invalid integer environment value, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
