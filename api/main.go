package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/harlequingg/taskd/internal/data"
	"github.com/harlequingg/taskd/internal/logger"
	"github.com/harlequingg/taskd/internal/mailer"
	"github.com/harlequingg/taskd/internal/service"
)

const version = "1.0.0"

const (
	profileInMemory = "in_memory"
	profilePostgres = "postgres"
)

type config struct {
	port     int
	env      string
	profile  string
	logLevel string
	db       struct {
		dsn                string
		maxOpenConnections int
		maxIdleConnections int
		maxIdleTime        time.Duration
	}
	smtp struct {
		host     string
		port     int
		username string
		password string
		sender   string
	}
	jwt struct {
		secret string
		ttl    time.Duration
	}
	limiter struct {
		enabled             bool
		maxRequestPerSecond float64
		burst               int
	}
	cors struct {
		trustedOrigins []string
	}
}

type application struct {
	config    config
	log       *zap.SugaredLogger
	users     *service.UserService
	tasks     *service.TaskService
	userCache *cache.Cache
}

func newApplication(cfg config, store service.Store, notifier mailer.Notifier, log *zap.SugaredLogger, opts ...service.UserOption) *application {
	return &application{
		config:    cfg,
		log:       log,
		users:     service.NewUserService(store, log, opts...),
		tasks:     service.NewTaskService(store, notifier, log),
		userCache: cache.New(time.Minute, 5*time.Minute),
	}
}

func envInt(key string, fallback int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return n
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	// a missing .env is fine, the environment may be set already
	_ = godotenv.Load()

	var cfg config
	flag.IntVar(&cfg.port, "port", envInt("PORT", 3000), "Server Port")
	flag.StringVar(&cfg.env, "env", envOr("ENV", "development"), "Environment [development|production]")
	flag.StringVar(&cfg.profile, "profile", envOr("PROFILE", profileInMemory), "Storage profile [in_memory|postgres]")
	flag.StringVar(&cfg.logLevel, "log-level", envOr("LOG_LEVEL", "info"), "Log level [debug|info|warn|error]")

	flag.StringVar(&cfg.db.dsn, "db-dsn", os.Getenv("DB_DSN"), "PostgreSQL DSN")
	flag.IntVar(&cfg.db.maxOpenConnections, "db-max-open-conns", 25, "PostgreSQL max open connections")
	flag.IntVar(&cfg.db.maxIdleConnections, "db-max-idle-conns", 25, "PostgreSQL max idle connections")
	flag.DurationVar(&cfg.db.maxIdleTime, "db-max-idle-time", 15*time.Minute, "PostgreSQL max connection idle time")

	flag.StringVar(&cfg.smtp.host, "smtp-host", os.Getenv("SMTP_HOST"), "SMTP host")
	flag.IntVar(&cfg.smtp.port, "smtp-port", envInt("SMTP_PORT", 25), "SMTP port")
	flag.StringVar(&cfg.smtp.username, "smtp-username", os.Getenv("SMTP_USERNAME"), "SMTP username")
	flag.StringVar(&cfg.smtp.password, "smtp-password", os.Getenv("SMTP_PASSWORD"), "SMTP password")
	flag.StringVar(&cfg.smtp.sender, "smtp-sender", envOr("SMTP_SENDER", "taskd <no-reply@taskd.local>"), "SMTP sender")

	flag.StringVar(&cfg.jwt.secret, "jwt-secret", os.Getenv("JWT_SECRET"), "JWT secret")
	flag.DurationVar(&cfg.jwt.ttl, "jwt-ttl", 24*time.Hour, "JWT lifetime")

	flag.BoolVar(&cfg.limiter.enabled, "limiter-enabled", true, "Enable rate limiter")
	flag.Float64Var(&cfg.limiter.maxRequestPerSecond, "limiter-rps", 2, "Rate limiter maximum requests per second")
	flag.IntVar(&cfg.limiter.burst, "limiter-burst", 4, "Rate limiter maximum burst")

	flag.Func("cors-trusted-origins", "Trusted CORS origins (space separated)", func(val string) error {
		cfg.cors.trustedOrigins = strings.Fields(val)
		return nil
	})
	flag.Parse()

	log, err := logger.New(cfg.logLevel, cfg.env)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStorage(ctx, cfg)
	if err != nil {
		log.Fatalw("open storage", "profile", cfg.profile, "error", err)
	}
	defer store.Close()
	log.Infow("storage ready", "profile", cfg.profile, "dialect", store.Dialect())

	if cfg.jwt.secret == "" {
		secret := make([]byte, 32)
		_, err = rand.Read(secret)
		if err != nil {
			log.Fatalw("generate jwt secret", "error", err)
		}
		cfg.jwt.secret = hex.EncodeToString(secret)
		log.Warn("no jwt secret configured, tokens will not survive a restart")
	}

	var notifier mailer.Notifier = mailer.Noop{}
	if cfg.smtp.host != "" {
		notifier = mailer.New(cfg.smtp.host, cfg.smtp.port, cfg.smtp.username, cfg.smtp.password, cfg.smtp.sender)
	}

	app := newApplication(cfg, store, notifier, log)

	err = app.serve(ctx)
	if err != nil {
		log.Fatalw("server stopped", "error", err)
	}
}

func openStorage(ctx context.Context, cfg config) (*data.Storage, error) {
	switch cfg.profile {
	case profileInMemory:
		return data.Open(ctx, data.InMemory())
	case profilePostgres:
		return data.Open(ctx, data.Config{
			Dialect:            data.DialectPostgres,
			DSN:                cfg.db.dsn,
			MaxOpenConnections: cfg.db.maxOpenConnections,
			MaxIdleConnections: cfg.db.maxIdleConnections,
			MaxIdleTime:        cfg.db.maxIdleTime,
		})
	default:
		return nil, fmt.Errorf("unknown profile %q", cfg.profile)
	}
}

func (app *application) serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", app.config.port),
		Handler:      app.routes(ctx),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		ErrorLog:     zap.NewStdLog(app.log.Desugar()),
	}

	shutdownErr := make(chan error, 1)
	go func() {
		<-ctx.Done()
		app.log.Infow("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		shutdownErr <- srv.Shutdown(shutdownCtx)
	}()

	app.log.Infow("starting server", "env", app.config.env, "port", app.config.port)
	err := srv.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	err = <-shutdownErr
	if err != nil {
		return err
	}

	app.tasks.Wait()
	app.log.Infow("stopped server")
	return nil
}
