package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ignite/deduply/internal/api"
	"github.com/ignite/deduply/internal/config"
	"github.com/ignite/deduply/internal/domain"
	"github.com/ignite/deduply/internal/pkg/distlock"
	"github.com/ignite/deduply/internal/pkg/logger"
	"github.com/ignite/deduply/internal/repository/postgres"
	"github.com/ignite/deduply/internal/service/dedup"
	"github.com/ignite/deduply/internal/service/jobs"
	"github.com/ignite/deduply/internal/worker"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"
)

// checkPortAvailable verifies that the target port is not already in use.
// This prevents confusion from stale processes occupying the port.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v\n"+
			"  Hint: Run 'lsof -i :%d' to find the blocking process", port, addr, err, port)
	}
	ln.Close()
	return nil
}

func extractHost(dsn string) string {
	at := strings.Index(dsn, "@")
	if at < 0 {
		return "(unknown)"
	}
	rest := dsn[at+1:]
	slash := strings.Index(rest, "/")
	if slash >= 0 {
		rest = rest[:slash]
	}
	return rest
}

func openDatabase(cfg config.DatabaseConfig) (*sql.DB, error) {
	dbURL := cfg.URL
	sep := "?"
	if strings.Contains(dbURL, "?") {
		sep = "&"
	}
	if !strings.Contains(dbURL, "connect_timeout") {
		dbURL += sep + "connect_timeout=5"
	}
	log.Printf("DB URL host portion: ...@%s/...", extractHost(dbURL))

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime())

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func openRedis(cfg config.RedisConfig) *redis.Client {
	if !cfg.Enabled {
		log.Println("Redis not configured: progress mirror and merge locks use in-process fallbacks")
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Printf("Warning: Redis connection failed (%s): %v, falling back to PG advisory locks", cfg.Addr, err)
		client.Close()
		return nil
	}
	log.Printf("Redis connected: %s", cfg.Addr)
	return client
}

func main() {
	log.Println("Deduply server (cmd/server/main.go)")

	// Load configuration
	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if os.Getenv("DATABASE_URL") != "" {
		log.Println("[config] DATABASE_URL env override active")
	}

	// Pre-flight check: verify the target port is available
	host := cfg.Server.GetHost()
	port := cfg.Server.Port
	if err := checkPortAvailable(host, port); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}
	log.Printf("Pre-flight check passed: port %d is available", port)

	db, err := openDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	redisClient := openRedis(cfg.Redis)
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Repositories
	contacts := postgres.NewContactRepo(db)
	importJobRepo := postgres.NewJobRepo(db, "import_jobs")
	verifyJobRepo := postgres.NewJobRepo(db, "verification_jobs")

	// Services
	locks := func(key string) distlock.DistLock {
		return distlock.NewLock(redisClient, db, key, cfg.Dedup.LockTTL())
	}
	dedupSvc := dedup.NewService(contacts, locks)
	importJobs := jobs.NewService(importJobRepo, domain.JobKindImport, redisClient)
	verifyJobs := jobs.NewService(verifyJobRepo, domain.JobKindVerify, redisClient)

	// Runners
	importer := worker.NewImporter(contacts, importJobs, cfg.Import.CleanValues)
	provider := worker.NewMXProvider(cfg.Verification.Timeout())
	verifier := worker.NewVerifier(contacts, verifyJobs, provider, cfg.Verification.CountErrorsAsUnknown)

	// Watchdog for jobs orphaned by a crashed process
	var watchdog *worker.Watchdog
	if cfg.Watchdog.Enabled {
		watchdog = worker.NewWatchdog(cfg.Watchdog.Interval(), cfg.Watchdog.StaleAfter(), importJobs, verifyJobs)
		watchdog.Start()
		log.Printf("Watchdog started (interval=%s, stale_after=%s)", cfg.Watchdog.Interval(), cfg.Watchdog.StaleAfter())
	}

	// HTTP server
	handlers := api.NewHandlers(dedupSvc, importJobs, verifyJobs, importer, verifier, cfg.Import)
	health := api.NewHealthChecker(db, redisClient, importJobs, verifyJobs)
	server := api.NewServer(cfg.Server, handlers, health, cfg.Auth.APIToken)

	// Setup graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		addr := fmt.Sprintf("%s:%d", host, port)
		log.Printf("Starting server on %s", addr)
		if err := server.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	logger.Info("server ready", "host", host, "port", port)

	<-done
	log.Println("Shutting down...")

	if watchdog != nil {
		watchdog.Stop()
	}

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}
