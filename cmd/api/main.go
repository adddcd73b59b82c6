package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"imovel-monitor/internal/cleanup"
	"imovel-monitor/internal/config"
	"imovel-monitor/internal/database"
	"imovel-monitor/internal/handlers"
	"imovel-monitor/internal/logging"
	"imovel-monitor/internal/orchestrator"
	"imovel-monitor/internal/ratelimit"
	"imovel-monitor/internal/scheduler"
	"imovel-monitor/internal/scraper"
	"imovel-monitor/internal/search"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Printf("Warning: %v", err)
	}

	configPath := getEnv("CONFIG_PATH", "config/monitor.yaml")
	appConfig, err := config.LoadConfig(configPath)
	if err != nil {
		log.Printf("Warning: Failed to load config from %s: %v. Using defaults.", configPath, err)
		appConfig = config.DefaultConfig()
	} else {
		log.Printf("Loaded configuration from %s", configPath)
	}
	applyEnv(appConfig)
	logging.SetLevel(logging.ParseLevel(appConfig.Logging.Level))

	repo, err := database.Open(appConfig.Database)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer repo.Close()
	log.Printf("Using %s store", storeName(appConfig.Database.Type))

	// interface values stay nil unless search is configured
	var (
		indexer  scheduler.Indexer
		searcher handlers.Searcher
		remover  cleanup.SearchRemover
	)
	if ms := appConfig.Search.Meilisearch; ms.Enabled {
		searchClient := search.NewSearchClient(ms.Host, ms.APIKey, ms.Index)
		if err := searchClient.InitIndex(); err != nil {
			log.Printf("Warning: Failed to initialize search index: %v", err)
		}
		indexer, searcher, remover = searchClient, searchClient, searchClient
		log.Printf("Meilisearch enabled at %s (index %s)", ms.Host, ms.Index)
	}

	adapters, err := scraper.NewAdapters(scraper.ConfiguredSites(appConfig), scraper.NewFetcher(appConfig.Scraper))
	if err != nil {
		log.Fatalf("Invalid site configuration: %v", err)
	}
	orch := orchestrator.New(adapters, orchestrator.Options{Parallel: appConfig.Scraper.ParallelAdapters})
	log.Printf("%d agency adapters configured", len(adapters))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	coordinator := scheduler.NewCoordinator(orch, repo, indexer, scheduler.RunSettings{
		Timeout: appConfig.Scraper.GetRunTimeout(),
	})
	coordinator.Start(ctx)
	defer coordinator.Stop()

	appScheduler := scheduler.NewScheduler(coordinator, appConfig)
	if err := appScheduler.Start(); err != nil {
		log.Printf("Warning: Failed to start scheduler: %v", err)
	}
	defer appScheduler.Stop()

	var cleanupService handlers.CleanupService
	if gdb, ok := repo.(*database.GormDB); ok {
		cleanupService = cleanup.NewService(gdb.DB(), remover)
	}
	cleanupDefaults := cleanup.Config{
		RetentionDays:    appConfig.Cleanup.RetentionDays,
		MaxDeletionCount: appConfig.Cleanup.MaxDeletionCount,
	}

	rateLimiter := ratelimit.NewRateLimiter(
		appConfig.RateLimit.RequestsPerMinute,
		appConfig.RateLimit.RequestsPerHour,
		appConfig.RateLimit.Enabled,
	)
	log.Printf("Rate limiter initialized: %d req/min, %d req/hour (enabled: %v)",
		appConfig.RateLimit.RequestsPerMinute,
		appConfig.RateLimit.RequestsPerHour,
		appConfig.RateLimit.Enabled,
	)

	r := gin.Default()
	r.Use(cors.New(cors.Config{
		AllowOrigins:     appConfig.Server.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		AllowCredentials: true,
	}))

	handlers.RegisterRoutes(r,
		handlers.NewMonitorHandler(repo, coordinator, searcher),
		handlers.NewAdminHandler(cleanupService, cleanupDefaults),
		rateLimiter,
	)

	srv := &http.Server{
		Addr:              ":" + appConfig.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Server starting on port %s", appConfig.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown failed: %v", err)
	}
}

// applyEnv lets the environment fill anything the config file left empty
func applyEnv(cfg *config.Config) {
	cfg.Server.Port = getEnv("PORT", cfg.Server.Port)
	cfg.Database.Type = getEnvOrConfig(cfg.Database.Type, "DB_TYPE", "mysql")

	switch cfg.Database.Type {
	case "mysql":
		my := &cfg.Database.MySQL
		my.Host = getEnvOrConfig(my.Host, "DB_HOST", "mysql")
		my.Port = getIntEnvOrConfig(my.Port, "DB_PORT", 3306)
		my.User = getEnvOrConfig(my.User, "DB_USER", "monitor")
		my.Password = getEnvOrConfig(my.Password, "DB_PASSWORD", "")
		my.Database = getEnvOrConfig(my.Database, "DB_NAME", "imovel_monitor")
	case "postgres":
		pg := &cfg.Database.Postgres
		pg.Host = getEnvOrConfig(pg.Host, "DB_HOST", "db")
		pg.Port = getIntEnvOrConfig(pg.Port, "DB_PORT", 5432)
		pg.User = getEnvOrConfig(pg.User, "DB_USER", "monitor")
		pg.Password = getEnvOrConfig(pg.Password, "DB_PASSWORD", "")
		pg.Database = getEnvOrConfig(pg.Database, "DB_NAME", "imovel_monitor")
		pg.SSLMode = getEnvOrConfig(pg.SSLMode, "DB_SSLMODE", "disable")
	}

	ms := &cfg.Search.Meilisearch
	if host := os.Getenv("MEILISEARCH_HOST"); host != "" && ms.Host == "" {
		ms.Host = host
		ms.Enabled = true
	}
	ms.APIKey = getEnvOrConfig(ms.APIKey, "MEILISEARCH_KEY", "")
}

func storeName(dbType string) string {
	switch dbType {
	case "postgres":
		return "PostgreSQL"
	case "memory":
		return "in-memory"
	}
	return "MySQL (GORM)"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrConfig returns config value if set, otherwise falls back to environment variable, then default
func getEnvOrConfig(configValue, envKey, defaultValue string) string {
	if configValue != "" {
		return configValue
	}
	return getEnv(envKey, defaultValue)
}

func getIntEnvOrConfig(configValue int, envKey string, defaultValue int) int {
	if configValue > 0 {
		return configValue
	}
	if n, err := strconv.Atoi(os.Getenv(envKey)); err == nil && n > 0 {
		return n
	}
	return defaultValue
}
