// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 taskloop contributors
// https://github.com/lrbcloud/taskloop

package app

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/lrbcloud/taskloop/internal/nats"
	"github.com/lrbcloud/taskloop/internal/pkg/logger"
	"github.com/lrbcloud/taskloop/internal/repository/postgres"
	"github.com/lrbcloud/taskloop/internal/repository/redis"
	"github.com/lrbcloud/taskloop/internal/storage"
)

func (a *Application) initLogger() error {
	cfg := a.Config.Logging

	log, err := logger.NewFromConfig(cfg.Level, cfg.Format, logger.OutputConfig{
		Output: cfg.Output,
		File: logger.FileConfig{
			Path:       cfg.File.Path,
			MaxSize:    cfg.File.MaxSize,
			MaxBackups: cfg.File.MaxBackups,
			MaxAge:     cfg.File.MaxAge,
			Compress:   cfg.File.Compress,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	a.Logger = log
	return nil
}

func (a *Application) initDatabase(ctx context.Context) error {
	cfg := a.Config.Database

	db, err := postgres.New(ctx, cfg.URL, postgres.Options{
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	a.DB = db

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// sqlx handle over the same pool for the analytics queries.
	stdDB := stdlib.OpenDBFromPool(db.Pool())
	a.SQLX = sqlx.NewDb(stdDB, "pgx")

	a.Logger.Info("database ready")
	return nil
}

func (a *Application) initRedis(ctx context.Context) error {
	cfg := a.Config.Redis

	client, err := redis.New(ctx, cfg.URL, redis.Options{
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	a.Redis = client
	a.Logger.Info("redis ready")
	return nil
}

// initNATS connects to the event bus. NATS is optional; without it events
// and WebSocket fan-out are disabled but everything else works.
func (a *Application) initNATS(ctx context.Context) error {
	cfg := a.Config.NATS
	if cfg.URL == "" {
		a.Logger.Info("nats disabled, no URL configured")
		return nil
	}

	natsCfg := nats.DefaultConfig()
	natsCfg.URL = cfg.URL
	if cfg.Name != "" {
		natsCfg.Name = cfg.Name
	}
	natsCfg.Token = cfg.Token
	natsCfg.Username = cfg.Username
	natsCfg.Password = cfg.Password
	natsCfg.MaxReconnects = cfg.MaxReconnects
	if cfg.ReconnectWait > 0 {
		natsCfg.ReconnectWait = cfg.ReconnectWait
	}

	client, err := nats.NewClient(natsCfg, a.Logger.Base())
	if err != nil {
		return fmt.Errorf("failed to create NATS client: %w", err)
	}
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	a.NATS = client
	a.Logger.Info("nats ready", "url", cfg.URL)
	return nil
}

func (a *Application) initStorage(ctx context.Context) error {
	cfg := a.Config.Storage

	switch cfg.Type {
	case "sftp":
		privateKey := ""
		if cfg.SFTP.PrivateKeyFile != "" {
			data, err := os.ReadFile(cfg.SFTP.PrivateKeyFile)
			if err != nil {
				return fmt.Errorf("failed to read SFTP private key: %w", err)
			}
			privateKey = string(data)
		}

		backend, err := storage.NewSFTPBackend(ctx, storage.SFTPConfig{
			Host:                  cfg.SFTP.Host,
			Port:                  cfg.SFTP.Port,
			Username:              cfg.SFTP.Username,
			Password:              cfg.SFTP.Password,
			PrivateKey:            privateKey,
			PrivateKeyPassphrase:  cfg.SFTP.PrivateKeyPassphrase,
			HostKeyFingerprint:    cfg.SFTP.HostKeyFingerprint,
			InsecureIgnoreHostKey: cfg.SFTP.InsecureIgnoreHostKey,
			BasePath:              cfg.SFTP.BasePath,
			ConnectTimeout:        cfg.SFTP.ConnectTimeout,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize SFTP storage: %w", err)
		}
		a.Files = backend

	default:
		backend, err := storage.NewLocalBackend(cfg.Path)
		if err != nil {
			return fmt.Errorf("failed to initialize local storage: %w", err)
		}
		a.Files = backend
	}

	a.Logger.Info("storage ready", "type", a.Files.Type())
	return nil
}
