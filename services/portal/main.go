// Портал машинного парка: вход по паролю, сессии в Postgres, справочник станков.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/machinepark/internal/audit"
	"github.com/machinepark/internal/config"
	"github.com/machinepark/internal/handler"
	"github.com/machinepark/internal/logger"
	"github.com/machinepark/internal/middleware"
	"github.com/machinepark/internal/repository"
	"github.com/machinepark/internal/service"
	"github.com/machinepark/internal/startup"
	"github.com/machinepark/migrations"
)

func main() {
	logger.SetPrefix("portal")
	migrate := flag.Bool("migrate", false, "run database migrations")
	dev := flag.Bool("dev", false, "start with embedded PostgreSQL (no external DB required)")
	flag.Parse()

	logger.Info("starting portal")
	cfg := config.Load()

	var embeddedDB *embeddedpostgres.EmbeddedPostgres
	if *dev {
		var err error
		embeddedDB, err = startEmbeddedPostgres(cfg)
		if err != nil {
			logger.Errorf("embedded postgres: %v", err)
			os.Exit(1)
		}
		defer func() {
			logger.Info("stopping embedded postgres...")
			if err := embeddedDB.Stop(); err != nil {
				logger.Errorf("embedded postgres stop: %v", err)
			}
		}()
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL())
	if err != nil {
		logger.Errorf("parse db config: %v", err)
		os.Exit(1)
	}
	poolCfg.MaxConns = int32(cfg.DBMaxConnections())
	poolCfg.MinConns = 4

	pool := startup.ConnectDBWithRetry(poolCfg, 60*time.Second, "portal: ")
	defer pool.Close()

	runMigrations(pool)
	if *migrate && !*dev {
		return
	}
	logger.Info("database connected, migrations applied")

	sessionRepo := repository.NewSessionRepository(pool)
	userRepo := repository.NewUserRepository(pool)
	machineRepo := repository.NewMachineRepository(pool)
	eventRepo := repository.NewEventRepository(pool)

	recorder := audit.NewPGRecorder(eventRepo)
	creds := service.NewCredentialService(userRepo)
	sessions := service.NewSessionService(sessionRepo, creds, recorder)
	janitor := service.NewJanitor(sessionRepo, recorder, cfg.Janitor.Interval, cfg.Janitor.RetryInterval)

	// Стартовая уборка до приёма трафика; неудача не мешает запуску.
	sweepCtx, sweepCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if _, err := janitor.RunOnce(sweepCtx); err != nil {
		logger.Errorf("стартовая уборка сессий: %v", err)
	}
	sweepCancel()

	janCtx, janCancel := context.WithCancel(context.Background())
	var janWg sync.WaitGroup
	janWg.Add(1)
	go func() {
		defer janWg.Done()
		janitor.Run(janCtx)
	}()

	authH := handler.NewAuthHandler(sessions, creds, cfg.SecureCookies)
	consentH := handler.NewConsentHandler(cfg.SecureCookies)
	machineH := handler.NewMachineHandler(machineRepo)
	opsH := handler.NewOpsHandler(janitor, sessionRepo)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(middleware.RecoverJSON)
	r.Use(chimw.Compress(5))
	r.Use(middleware.RequestLog)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.CORSAllowedOrigins},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK); w.Write([]byte("ok")) })

	r.Post("/api/auth/login", authH.Login)
	r.Post("/api/auth/logout", authH.Logout)
	r.Get("/api/auth/session", authH.SessionStatus)
	r.Post("/api/auth/check-user", authH.CheckUser)

	r.Post("/api/consent/accept", consentH.Accept)
	r.Post("/api/consent/select", consentH.Select)
	r.Post("/api/consent/reject", consentH.Reject)
	r.Get("/api/consent/status", consentH.Status)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireSession(sessions))
		r.Get("/api/machines", machineH.List)
		r.Get("/api/machines/types", machineH.Types)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.InternalOnly)
		r.Post("/internal/sweep", opsH.Sweep)
		r.Get("/internal/stats", opsH.Stats)
	})

	webDist := "./web/dist"
	if info, err := os.Stat(webDist); err == nil && info.IsDir() {
		r.Get("/*", spaHandler(webDist))
	}

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	var srvWg sync.WaitGroup
	errCh := make(chan error, 1)
	srvWg.Add(1)
	go func() {
		defer srvWg.Done()
		logger.Infof("server listening on %s", cfg.ServerAddr)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Errorf("server error: %v", err)
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
	logger.Info("server stopped accepting connections")
	janCancel()
	janWg.Wait()
	logger.Info("janitor stopped")
	srvWg.Wait()
	logger.Info("server goroutine exited")
}

func spaHandler(dir string) http.HandlerFunc {
	fs := http.Dir(dir)
	fileServer := http.FileServer(fs)
	return func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(filepath.Clean(r.URL.Path), "/")
		if path == "" {
			path = "index.html"
		}
		if f, err := fs.Open(path); err != nil {
			http.ServeFile(w, r, filepath.Join(dir, "index.html"))
		} else {
			f.Close()
			fileServer.ServeHTTP(w, r)
		}
	}
}

func runMigrations(pool *pgxpool.Pool) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	entries, err := migrations.Files.ReadDir(".")
	if err != nil {
		logger.Errorf("read migrations: %v", err)
		os.Exit(1)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		data, err := migrations.Files.ReadFile(name)
		if err != nil {
			logger.Errorf("read migration %s: %v", name, err)
			os.Exit(1)
		}
		if _, err := pool.Exec(ctx, string(data)); err != nil {
			logger.Errorf("run migration %s: %v", name, err)
			os.Exit(1)
		}
	}
	logger.Info("migrations applied")
}

func startEmbeddedPostgres(cfg *config.Config) (*embeddedpostgres.EmbeddedPostgres, error) {
	const (
		port     = 5432
		user     = "machinepark"
		password = "machinepark_secret"
		database = "machinepark"
	)

	dataDir := filepath.Join(".", ".pgdata")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create pgdata dir: %w", err)
	}

	db := embeddedpostgres.NewDatabase(
		embeddedpostgres.DefaultConfig().
			Port(port).
			Username(user).
			Password(password).
			Database(database).
			DataPath(dataDir).
			RuntimePath(filepath.Join(os.TempDir(), "embedded-pg-runtime")),
	)

	logger.Info("starting embedded PostgreSQL...")
	if err := db.Start(); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}

	cfg.Database.URL = fmt.Sprintf(
		"postgres://%s:%s@localhost:%d/%s?sslmode=disable",
		user, password, port, database,
	)
	logger.Infof("embedded PostgreSQL running on port %d", port)
	return db, nil
}
