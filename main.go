package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/joho/godotenv"
	"github.com/sing3demons/jwks-server/internal/auth"
	"github.com/sing3demons/jwks-server/internal/config"
	"github.com/sing3demons/jwks-server/internal/database"
	"github.com/sing3demons/jwks-server/internal/discover"
	"github.com/sing3demons/jwks-server/internal/health"
	"github.com/sing3demons/jwks-server/internal/jwks"
	"github.com/sing3demons/jwks-server/pkg/kafka"
	"github.com/sing3demons/jwks-server/pkg/kp"
	"github.com/sing3demons/jwks-server/pkg/logAction"
	"github.com/sing3demons/jwks-server/pkg/logger"
	"github.com/sing3demons/jwks-server/pkg/mlog"
)

func main() {
	_ = godotenv.Load()
	cfg := config.NewConfigManager()
	if err := cfg.LoadDefaults(); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	sysLog := logger.NewLoggerWithConfig(cfg.ServiceName, cfg.Version, &cfg.LoggerConfig)
	ctx := logger.NewContext(context.Background(), sysLog)

	if err := run(ctx, cfg); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, cfg *config.AppConfig) error {
	srv, err := newServer(ctx, cfg)
	if err != nil {
		return err
	}
	defer srv.Close()

	mlog.L(ctx).Info(logAction.SYSTEM("server start"), map[string]any{
		"port":   cfg.Port,
		"store":  cfg.StoreConfig.Driver,
		"redis":  cfg.RedisConfig.Enabled(),
		"kafka":  cfg.KafkaConfig.Enabled(),
		"issuer": cfg.OidcConfig.Issuer,
	})
	srv.app.Start()
	return nil
}

// server owns the process-wide handles; closers run in reverse open order.
type server struct {
	app     kp.IMicroservice
	closers []io.Closer
}

// newServer opens the store, cache and producer and bootstraps keys. On failure
// every handle opened so far is closed before the error is returned.
func newServer(ctx context.Context, cfg *config.AppConfig) (_ *server, err error) {
	s := &server{}
	defer func() {
		if err != nil {
			_ = s.Close()
		}
	}()

	repo, store, err := jwks.OpenKeyRepository(cfg.StoreConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to open key store: %w", err)
	}
	s.closers = append(s.closers, store)

	cache, err := database.NewCache(&cfg.RedisConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to cache: %w", err)
	}
	s.closers = append(s.closers, cache)

	publisher, producer, err := newKeyEventPublisher(cfg.KafkaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	if producer != nil {
		s.closers = append(s.closers, producer)
	}

	jwksService := jwks.NewJWKSService(cfg, repo, cache)
	bootstrapper := jwks.NewBootstrapper(repo, cfg.KeyConfig,
		jwks.WithPublisher(publisher),
		jwks.WithKeyCreatedHook(jwksService.InvalidateJWKS),
	)
	// a store that cannot hold one valid and one expired key must not serve traffic
	if _, err := bootstrapper.EnsureMinimum(ctx); err != nil {
		return nil, fmt.Errorf("failed to bootstrap keys: %w", err)
	}

	s.app = kp.NewMicroservice(cfg)
	registerRoutes(s.app, cfg, jwksService)
	return s, nil
}

func (s *server) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

func registerRoutes(app kp.IMicroservice, cfg *config.AppConfig, jwksService *jwks.JWKSService) {
	app.Use(kp.RecoverMiddleware)

	app.GET("/healthz", health.Healthz)

	authHandler := auth.NewAuthHandler(jwksService)
	app.POST("/auth", authHandler.IssueTokenHandler)

	discoverHandler := discover.NewDiscoverHandler(cfg, jwksService)
	app.GET("/.well-known/openid-configuration", discoverHandler.OIDCHandler)
	app.GET("/.well-known/jwks.json", discoverHandler.JwksHandler)
}

// newKeyEventPublisher returns a no-op publisher and nil producer when no brokers are configured.
func newKeyEventPublisher(cfg config.KafkaConfig) (jwks.KeyEventPublisher, kafka.Client, error) {
	if !cfg.Enabled() {
		return jwks.NewNoopKeyEventPublisher(), nil, nil
	}
	producer, err := kafka.New(&kafka.Config{
		Brokers:      cfg.Brokers,
		BatchSize:    cfg.BatchSize,
		BatchBytes:   cfg.BatchBytes,
		BatchTimeout: cfg.BatchTimeout,
	})
	if err != nil {
		return nil, nil, err
	}
	return jwks.NewKafkaKeyEventPublisher(producer, cfg.Topic), producer, nil
}
