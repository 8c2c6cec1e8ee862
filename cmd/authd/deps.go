package main

import (
	"context"
	"fmt"

	backDashboard "github.com/orbitadevhub/backDashboard"
	"github.com/orbitadevhub/backDashboard/account"
	"github.com/orbitadevhub/backDashboard/internal/config"
	"github.com/orbitadevhub/backDashboard/notify"
	"github.com/orbitadevhub/backDashboard/store/memory"
	mongostore "github.com/orbitadevhub/backDashboard/store/mongo"
	"github.com/orbitadevhub/backDashboard/store/postgres"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func openRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return rdb, nil
}

// openStore connects the configured account store. migrate applies the
// postgres schema first; the other drivers ignore it.
func openStore(ctx context.Context, cfg config.StoreConfig, migrate bool, logger zerolog.Logger) (account.Store, func(), error) {
	switch cfg.Driver {
	case config.StorePostgres:
		db, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		if migrate {
			if err := postgres.Migrate(ctx, db); err != nil {
				_ = db.Close()
				return nil, nil, err
			}
			logger.Info().Msg("postgres schema up to date")
		}
		return postgres.New(db), func() { _ = db.Close() }, nil

	case config.StoreMongo:
		client, err := mongostore.Connect(ctx, cfg.MongoURI)
		if err != nil {
			return nil, nil, err
		}
		s, err := mongostore.New(ctx, client.Database(cfg.MongoDB))
		if err != nil {
			_ = client.Disconnect(ctx)
			return nil, nil, err
		}
		return s, func() { _ = client.Disconnect(context.Background()) }, nil

	default:
		logger.Warn().Msg("using the in-memory account store; accounts are lost on restart")
		return memory.New(), func() {}, nil
	}
}

// buildEngine wires the engine from the server configuration.
func buildEngine(cfg config.Config, logger zerolog.Logger, rdb redis.UniversalClient, store account.Store) (*backDashboard.Engine, backDashboard.Config, error) {
	engineCfg, ephemeral, err := cfg.Engine()
	if err != nil {
		return nil, engineCfg, err
	}
	if ephemeral {
		logger.Warn().Msg("no jwt keys configured; generated an ephemeral ed25519 key pair")
	}

	b := backDashboard.New().
		WithConfig(engineCfg).
		WithRedis(rdb).
		WithAccountStore(store).
		WithLogger(logger)

	if cfg.SMTP.Enabled() {
		mailer, err := notify.NewSMTPNotifier(notify.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		})
		if err != nil {
			return nil, engineCfg, err
		}
		b = b.WithNotifier(mailer)
	}

	engine, err := b.Build()
	if err != nil {
		return nil, engineCfg, err
	}
	return engine, engineCfg, nil
}
