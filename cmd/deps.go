package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-referral/app/cache"
	"github.com/vibast-solutions/ms-go-referral/app/events"
	"github.com/vibast-solutions/ms-go-referral/config"
)

func openDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// newReferralCache returns the configured cache and a function releasing
// its resources.
func newReferralCache(cfg *config.Config) (cache.ReferralCache, func(), error) {
	switch cfg.Cache.Driver {
	case config.CacheDriverRedis:
		client, err := cache.NewRedisClient(context.Background(), cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		logrus.WithField("addr", cfg.Redis.Addr).Info("Using redis referral cache")
		return cache.NewRedisCache(client, cfg.Cache.Prefix), func() { _ = client.Close() }, nil
	default:
		logrus.Info("Using in-memory referral cache")
		return cache.NewMemoryCache(), func() {}, nil
	}
}

func newPublisher(cfg *config.Config) (events.Publisher, error) {
	if !cfg.Events.Enabled {
		return events.NoopPublisher{}, nil
	}

	publisher, err := events.NewAMQPPublisher(cfg.Events.URL, cfg.Events.Queue)
	if err != nil {
		return nil, err
	}
	logrus.WithField("queue", cfg.Events.Queue).Info("Publishing domain events")
	return publisher, nil
}
