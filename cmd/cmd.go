package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/anicoll/arduino-bridge/internal/pkg/auth"
	"github.com/anicoll/arduino-bridge/internal/pkg/bridge"
	"github.com/anicoll/arduino-bridge/internal/pkg/config"
	"github.com/anicoll/arduino-bridge/internal/pkg/connection"
	"github.com/anicoll/arduino-bridge/internal/pkg/database"
	"github.com/anicoll/arduino-bridge/internal/pkg/database/migration"
	"github.com/anicoll/arduino-bridge/internal/pkg/homekit"
	"github.com/anicoll/arduino-bridge/internal/pkg/iotapi"
	"github.com/anicoll/arduino-bridge/internal/pkg/mqtt"
	"github.com/anicoll/arduino-bridge/internal/pkg/publisher"
	"github.com/anicoll/arduino-bridge/internal/pkg/server"
	"github.com/anicoll/arduino-bridge/pkg/hasher"
)

const cleanupSchedule = "0 3 * * *"

// BridgeCommand is the main entry point for the bridge CLI command.
// It validates configuration and starts all required services.
func BridgeCommand(ctx *cli.Context) error {
	cfg := &config.Config{
		CloudCfg: &config.CloudConfig{
			ClientID:     ctx.String("client-id"),
			ClientSecret: ctx.String("client-secret"),
		},
		HomeKitCfg: &config.HomeKitConfig{
			BridgeName:  ctx.String("bridge-name"),
			Pin:         ctx.String("homekit-pin"),
			StoragePath: ctx.String("homekit-storage"),
			Addr:        ctx.String("homekit-addr"),
		},
		DatabaseURL:       ctx.String("database-url"),
		MigrationsFolder:  ctx.String("migrations-folder"),
		Retention:         ctx.Duration("retention"),
		DiscoverySchedule: ctx.String("discovery-schedule"),
		StatusAddr:        ctx.String("status-addr"),
		StatusToken:       ctx.String("status-token"),
		LogLevel:          ctx.String("log-level"),
	}
	if err := config.LoadEndpoints(cfg.CloudCfg); err != nil {
		return err
	}

	return run(ctx.Context, cfg)
}

func run(ctx context.Context, cfg *config.Config) error {
	var err error
	logCfg := zap.NewProductionConfig()

	logCfg.Level, err = zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logCfg.OutputPaths = []string{"stdout"}
	logCfg.ErrorOutputPaths = []string{"stdout"}
	logCfg.Sampling = nil
	logger := zap.Must(logCfg.Build(zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel)))
	defer func() {
		_ = logger.Sync() // flushes buffer, if any.
	}()
	zap.ReplaceGlobals(logger)

	if err := cfg.CloudCfg.Validate(); err != nil {
		return err
	}

	conn := connection.New(cfg.CloudCfg, auth.New(cfg.CloudCfg),
		func(token func() string, onLost func(error)) connection.Streamer {
			return mqtt.New(cfg.CloudCfg, token, onLost)
		},
		func(token string) connection.Requester {
			return iotapi.New(cfg.CloudCfg.APIURL, token)
		},
	)
	host := homekit.New(cfg.HomeKitCfg)
	svc := services{
		conn:   conn,
		bridge: bridge.New(conn, host),
		host:   host,
	}

	if cfg.DatabaseURL != "" {
		if err := migration.Migrate(cfg.DatabaseURL, cfg.MigrationsFolder); err != nil {
			return err
		}
		db, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := publisher.RegisterPublisher("postgres", db); err != nil {
			return err
		}
		svc.store = db
	}

	return serve(ctx, cfg, svc)
}

// serve runs every long lived task until ctx is done or one of them fails.
func serve(ctx context.Context, cfg *config.Config, svc services) error {
	logger := zap.L()
	defer svc.conn.Close()
	defer svc.bridge.Close()

	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		return svc.host.Run(ctx)
	})

	eg.Go(func() error {
		return scheduleDiscovery(ctx, cfg.DiscoverySchedule, svc.bridge)
	})

	if svc.store != nil {
		eg.Go(func() error {
			return cronDbCleanup(ctx, svc.store, cfg.Retention)
		})
	}

	eg.Go(func() error {
		var opts []server.Option
		if cfg.StatusToken != "" {
			hash, err := hasher.HashToken([]byte(cfg.StatusToken))
			if err != nil {
				return err
			}
			opts = append(opts, server.RequireToken(hash))
		}
		srv := &http.Server{
			Handler:      server.New(svc.conn, svc.bridge, svc.store, opts...).Routes(),
			Addr:         cfg.StatusAddr,
			WriteTimeout: 15 * time.Second,
			ReadTimeout:  15 * time.Second,
		}
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	err := eg.Wait()
	logger.Info("bridge stopped", zap.Error(err))
	return err
}

type discoverer interface {
	Discover(ctx context.Context) error
}

// scheduleDiscovery runs one pass immediately and then on schedule. Failed
// passes are logged and retried on the next tick.
func scheduleDiscovery(ctx context.Context, schedule string, b discoverer) error {
	discover := func() {
		if err := b.Discover(ctx); err != nil {
			zap.L().Error("error discovering things", zap.Error(err))
		}
	}

	c := cron.New()
	if _, err := c.AddFunc(schedule, discover); err != nil {
		return err
	}
	discover()

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

type cleaner interface {
	Cleanup(ctx context.Context, retention time.Duration) (int64, error)
}

func cronDbCleanup(ctx context.Context, db cleaner, retention time.Duration) error {
	cleanup := func() {
		deleted, err := db.Cleanup(ctx, retention)
		if err != nil {
			zap.L().Error("error cleaning up database", zap.Error(err))
			return
		}
		zap.L().Info("cleaned up readings", zap.Int64("deleted", deleted))
	}

	// CRON automation
	c := cron.New()
	if _, err := c.AddFunc(cleanupSchedule, cleanup); err != nil {
		return err
	}
	cleanup()

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
