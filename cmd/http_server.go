package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/frahmantamala/kb-management/internal"
	"github.com/frahmantamala/kb-management/internal/accesscontrol"
	acpostgres "github.com/frahmantamala/kb-management/internal/accesscontrol/postgres"
	"github.com/frahmantamala/kb-management/internal/auth"
	authpostgres "github.com/frahmantamala/kb-management/internal/auth/postgres"
	"github.com/frahmantamala/kb-management/internal/core/events"
	"github.com/frahmantamala/kb-management/internal/directory"
	dirpostgres "github.com/frahmantamala/kb-management/internal/directory/postgres"
	"github.com/frahmantamala/kb-management/internal/kb"
	kbpostgres "github.com/frahmantamala/kb-management/internal/kb/postgres"
	"github.com/frahmantamala/kb-management/internal/transport/rest"
	"github.com/frahmantamala/kb-management/pkg/logger"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config *internal.Config
	DB     *sqlx.DB
	Router *chi.Mux
	Logger *slog.Logger
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	slog.Info("Starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:         addr,
		Handler:      deps.Router,
		ReadTimeout:  deps.Config.Server.ReadTimeout,
		WriteTimeout: deps.Config.Server.WriteTimeout,
		IdleTimeout:  deps.Config.Server.IdleTimeout,
	}

	// Signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		slog.Info("Received signal, shutting down...", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}
		if err := deps.DB.Close(); err != nil {
			slog.Error("Database close error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}

	slog.Info("Server stopped")
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	env := "development"
	if config.Observability.Logging.Format == "json" {
		env = "production"
	}
	logger.Init(env)
	log := logger.LoggerWrapper()

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gdb, err := gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: db.DB}), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open gorm over db pool: %w", err)
	}

	eventBus := events.NewEventBus(log)
	accesscontrol.RegisterAuditSubscriber(eventBus, log)

	// The grant repository backs every accesscontrol interface.
	grantRepo := acpostgres.NewGrantRepository(gdb)
	engine := accesscontrol.NewEngine(grantRepo, grantRepo, grantRepo, log)
	adminSvc := accesscontrol.NewAdminService(grantRepo, grantRepo, grantRepo, grantRepo, grantRepo, eventBus, log)
	accessHandler := accesscontrol.NewHandler(engine, adminSvc)

	authRepo := authpostgres.NewRepository(gdb)
	tokenGen := auth.NewJWTTokenGenerator(
		config.Security.AccessTokenSecret,
		config.Security.RefreshTokenSecret,
		config.Security.AccessTokenDuration,
		config.Security.RefreshTokenDuration,
	)
	authSvc := auth.NewService(authRepo, tokenGen, config.Security.BCryptCost)
	authHandler := auth.NewHandler(authSvc)

	dirRepo := dirpostgres.NewDirectoryRepository(gdb)
	dirSvc := directory.NewService(dirRepo, adminSvc, authSvc, log)
	dirHandler := directory.NewHandler(dirSvc)

	kbRepo := kbpostgres.NewKBRepository(gdb)
	kbSvc := kb.NewService(kbRepo, adminSvc, engine, log)
	kbHandler := kb.NewHandler(kbSvc)

	router := chi.NewRouter()
	rest.RegisterAllRoutes(router, db.DB, authHandler, dirHandler, kbHandler, accessHandler, engine, grantRepo, log)

	return &Dependencies{
		Config: config,
		Logger: log,
		DB:     db,
		Router: router,
	}, nil
}

// initDB initializes the database connection
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// verify connection; close underlying *sql.DB on failure
	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}
