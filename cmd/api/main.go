package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bryanwahyu/essay-coach-gateway/internal/application"
	appgrading "github.com/bryanwahyu/essay-coach-gateway/internal/application/grading"
	"github.com/bryanwahyu/essay-coach-gateway/internal/config"
	"github.com/bryanwahyu/essay-coach-gateway/internal/domain/feedback"
	domain "github.com/bryanwahyu/essay-coach-gateway/internal/domain/grading"
	"github.com/bryanwahyu/essay-coach-gateway/internal/domain/runfailures"
	mysqlp "github.com/bryanwahyu/essay-coach-gateway/internal/infra/db/mysql"
	pgp "github.com/bryanwahyu/essay-coach-gateway/internal/infra/db/postgres"
	"github.com/bryanwahyu/essay-coach-gateway/internal/infra/engine/agent"
	openaiengine "github.com/bryanwahyu/essay-coach-gateway/internal/infra/engine/openai"
	"github.com/bryanwahyu/essay-coach-gateway/internal/infra/httpserver"
	"github.com/bryanwahyu/essay-coach-gateway/internal/infra/proxy"
	minioStore "github.com/bryanwahyu/essay-coach-gateway/internal/infra/storage"
	"github.com/bryanwahyu/essay-coach-gateway/internal/logger"
	"github.com/bryanwahyu/essay-coach-gateway/internal/middleware"
)

func main() {
	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	// load config
	cfg, err := config.Load(path)
	if err != nil {
		logrus.Fatalf("config load error: %v", err)
	}
	log := logger.New(cfg.LogLevel, os.Stdout)

	ctx := context.Background()
	var health []middleware.DependencyCheck

	// database optional; tanpa database feedback dan failure tidak disimpan
	var (
		db         *sql.DB
		feedbackRp feedback.Repository
		failuresRp runfailures.Repository
	)
	switch cfg.Database.Driver {
	case "mysql":
		db, err = mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			log.Fatalf("mysql connect error: %v", err)
		}
		if err := mysqlp.Migrate(ctx, db); err != nil {
			log.Fatalf("mysql migrate error: %v", err)
		}
		feedbackRp = mysqlp.NewFeedbackRepository(db)
		failuresRp = mysqlp.NewRunFailureRepository(db)
	case "postgres":
		db, err = pgp.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			log.Fatalf("postgres connect error: %v", err)
		}
		if err := pgp.Migrate(ctx, db); err != nil {
			log.Fatalf("postgres migrate error: %v", err)
		}
		feedbackRp = pgp.NewFeedbackRepository(db)
		failuresRp = pgp.NewRunFailureRepository(db)
	default:
		log.Warn("no database configured, feedback history disabled")
	}
	if db != nil {
		defer db.Close()
		health = append(health, middleware.DependencyCheck{Name: "database", Checker: &middleware.DatabaseHealthChecker{DB: db}})
	}

	// init minio
	var reports domain.ReportStore
	if cfg.MinioEnabled() {
		store, err := minioStore.New(ctx, minioStore.Options{
			Endpoint:  cfg.Minio.Endpoint,
			Region:    cfg.Minio.Region,
			Bucket:    cfg.Minio.BucketName,
			AccessKey: cfg.Minio.AccessKey,
			SecretKey: cfg.Minio.SecretKey,
			UseSSL:    cfg.Minio.UseSSL,
			PublicURL: cfg.Minio.PublicURL,
		})
		if err != nil {
			log.Fatalf("minio init error: %v", err)
		}
		reports = store
		health = append(health, middleware.DependencyCheck{Name: "storage", Checker: store, Optional: true})
	}

	// init engine
	var engine domain.Engine
	switch cfg.Engine.Provider {
	case "openai":
		oe := openaiengine.NewEngine(cfg.Engine.OpenAI.APIKey, cfg.Engine.OpenAI.Model, logger.Component(log, "engine"))
		defer oe.Close()
		engine = oe
	default:
		client := agent.NewClient(agent.Options{
			BaseURL:    cfg.Engine.Agent.BaseURL,
			Token:      cfg.Engine.Agent.Token,
			AuthScheme: cfg.Backend.AuthScheme,
			Timeout:    cfg.Backend.Timeout,
			Debug:      cfg.Engine.Agent.Debug,
		})
		health = append(health, middleware.DependencyCheck{Name: "engine", Checker: middleware.CheckFunc(client.Check), Optional: true})
		engine = client
	}

	metrics := middleware.NewMetrics()
	limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	defer limiter.Stop()

	// init service
	svc := &appgrading.Service{
		Engine:   engine,
		Adapter:  domain.NewAdapter(),
		Feedback: feedbackRp,
		Failures: failuresRp,
		Reports:  reports,
		Metrics:  metrics,
		Clock:    application.SystemClock{},
		Log:      logger.Component(log, "grading"),
	}
	tracker := appgrading.NewTracker(svc, cfg.Tracker.Size, cfg.Tracker.TTL)

	gateways := map[string]*proxy.Gateway{}
	for _, v := range []string{"v1", "v2"} {
		gateways[v] = proxy.NewGateway(cfg.Backend.Origin, v, cfg.Backend.AuthScheme, cfg.Backend.Timeout, logger.Component(log, "proxy"))
	}

	handler := httpserver.NewRouter(httpserver.Deps{
		Tracker:      tracker,
		Service:      svc,
		Gateways:     gateways,
		Metrics:      metrics,
		Limiter:      limiter,
		Health:       health,
		CORSOrigins:  cfg.CORSOrigins,
		AuthRequired: cfg.Auth.Required,
		Log:          log,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Backend.Timeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// run server
	go func() {
		log.WithFields(logrus.Fields{"addr": addr, "engine": cfg.Engine.Provider}).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Info("shutting down server...")

	ctx2, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		log.WithError(err).Warn("shutdown error")
	}
	if err := tracker.Shutdown(ctx2); err != nil {
		log.WithError(err).Warn("tracker shutdown error")
	}
}
