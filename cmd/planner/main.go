// @title           Event Planner API
// @version         1.0
// @description     Session, role resolution and role-scoped views for the event planner.
// @BasePath        /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
// @description                 Type "Bearer" followed by a space and the access token.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/eventplanner/planner/internal/api"
	"github.com/eventplanner/planner/internal/api/handler"
	"github.com/eventplanner/planner/internal/core/domain"
	"github.com/eventplanner/planner/internal/core/resolver"
	"github.com/eventplanner/planner/internal/core/service"
	"github.com/eventplanner/planner/internal/core/session"
	"github.com/eventplanner/planner/internal/infrastructure/credentials"
	mongodb "github.com/eventplanner/planner/internal/infrastructure/db/mongo"
	redisdb "github.com/eventplanner/planner/internal/infrastructure/db/redis"
	"github.com/eventplanner/planner/internal/infrastructure/queue"
	"github.com/eventplanner/planner/internal/infrastructure/realtime"
	"github.com/eventplanner/planner/internal/pkg/config"
	"github.com/eventplanner/planner/pkg/logger"
)

const serviceName = "planner"

var shutdownSignals = []os.Signal{
	syscall.SIGINT,
	syscall.SIGTERM,
}

func main() {
	cfg := config.Load()
	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.IsDevelopment(),
		Service: serviceName,
	})

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("planner stopped")
	}
	log.Info().Msg("server exited gracefully")
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Storage ---
	mongoClient, db, err := mongodb.Connect(ctx, mongodb.Config{
		URI:      cfg.Mongo.URI,
		Database: cfg.Mongo.Database,
		AppName:  serviceName,
	})
	if err != nil {
		return err
	}
	defer func() { _ = mongoClient.Disconnect(context.Background()) }()
	log.Info().Str("database", cfg.Mongo.Database).Msg("mongodb connection established")

	rdb, err := redisdb.Connect(ctx, redisdb.Config{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		ClientName: serviceName,
	})
	if err != nil {
		return err
	}
	defer func() { _ = rdb.Close() }()
	log.Info().Str("addr", cfg.Redis.Addr).Msg("redis connection established")

	// --- Change feed ---
	hub := realtime.NewHub(log)
	dispatcher := queue.NewDispatcher(cfg.Mongo.ChangeWorkers, hub, log)
	dispatcher.Start(ctx)

	identities := mongodb.NewIdentityRepository(db)
	var profileOpts []mongodb.ProfileOption
	if cfg.Mongo.WatchChanges {
		watcher := mongodb.NewChangeWatcher(db, dispatcher.Enqueue, log)
		go watcher.Run(ctx)
	} else {
		// Without change streams only this process's own writes are seen.
		// Writes can happen on a worker goroutine, so they must never block on
		// a worker queue.
		profileOpts = append(profileOpts, mongodb.WithNotifier(func(ev domain.ChangeEvent) {
			dispatcher.TryEnqueue(ev)
		}))
		log.Warn().Msg("mongodb change streams disabled, publishing local writes only")
	}
	profiles := mongodb.NewProfileRepository(db, profileOpts...)

	if err := identities.EnsureIndexes(ctx); err != nil {
		return err
	}
	if err := profiles.EnsureIndexes(ctx); err != nil {
		return err
	}

	// --- Credential store ---
	creds := credentials.NewService(
		identities,
		redisdb.NewLimiter(rdb, cfg.Auth.SignInAttempts, cfg.Auth.SignInWindow),
		redisdb.NewTokenStore(rdb, cfg.Auth.ResetTokenTTL),
		redisdb.NewRevocations(rdb),
		credentials.NewLogMailer(log),
		credentials.Config{
			Secret:              cfg.JWTSecret,
			TokenTTL:            cfg.Auth.TokenTTL,
			MinPasswordLength:   cfg.Auth.MinPasswordLength,
			RequireConfirmation: cfg.Auth.RequireConfirm,
		},
		log,
	)

	if err := service.SeedAdmin(ctx, creds, profiles, service.AdminSeed{
		Email:    cfg.Auth.BootstrapAdminEmail,
		Password: cfg.Auth.BootstrapAdminPassword,
	}, log); err != nil {
		return err
	}

	// --- Sessions ---
	factory := func(ctx context.Context, token string) (*session.Context, error) {
		client := creds.NewClient()
		if token != "" {
			restored, err := creds.Restore(ctx, token)
			if err != nil {
				return nil, err
			}
			client = restored
		}
		cache := redisdb.NewRoleCache(rdb, client.Key())
		sc := session.New(session.Config{
			Credentials: client,
			Repo:        profiles,
			Cache:       cache,
			Feed:        hub,
			Resolver: resolver.New(resolver.Config{
				Repo:       profiles,
				Cache:      cache,
				Metadata:   client,
				AdminEmail: cfg.Auth.BootstrapAdminEmail,
				Timeout:    cfg.Auth.ResolveTimeout,
			}, log),
			MinPasswordLength: cfg.Auth.MinPasswordLength,
			SignUpSpacing:     cfg.Auth.SignUpSpacing,
		}, log)
		sc.Start(ctx)
		return sc, nil
	}
	registry := session.NewRegistry(factory, log,
		session.WithLimits(cfg.Auth.MaxSessions, cfg.Auth.MaxSessions),
		session.WithIdleTimeout(cfg.Auth.SessionIdleTimeout),
	)
	defer registry.Close()

	// --- HTTP ---
	e := api.NewRouter(api.Dependencies{
		Sessions:  registry,
		Confirmer: creds,
		Vendors:   profiles,
		Health: map[string]handler.Pinger{
			"mongodb": handler.MongoPinger(db),
			"redis":   handler.RedisPinger(rdb),
		},
		Log:           log,
		SecureCookies: !cfg.IsDevelopment(),
	})

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Msg("starting http server")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, shutdownSignals...)
	select {
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("shutting down server")
	case err := <-serverErr:
		return err
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer stop()
	return e.Shutdown(shutdownCtx)
}
