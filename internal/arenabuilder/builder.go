package arenabuilder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/adapter/matchpresenter"
	"github.com/park285/cheese-arena/internal/archive"
	"github.com/park285/cheese-arena/internal/chessrules"
	"github.com/park285/cheese-arena/internal/config"
	"github.com/park285/cheese-arena/internal/gateway"
	"github.com/park285/cheese-arena/internal/match"
	"github.com/park285/cheese-arena/internal/monitor"
	"github.com/park285/cheese-arena/internal/msgcat"
	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/internal/publish"
	"github.com/park285/cheese-arena/internal/rating"
)

type Deps struct {
	Orchestrator *match.Orchestrator
	Monitor      *monitor.Monitor
	Gateway      *gateway.Server

	redis   *redis.Client
	archive *archive.Repository
}

// New wires the arena from cfg. Redis and Postgres are optional: without
// REDIS_URL sessions live in memory, without DATABASE_URL results are not archived.
func New(cfg *config.AppConfig) (*Deps, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	catalog, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	presenter := matchpresenter.New(catalog)
	deps := &Deps{}

	var (
		store match.Store
		bus   publish.Bus
	)
	if cfg.RedisURL != "" {
		opts, perr := redis.ParseURL(cfg.RedisURL)
		if perr != nil {
			return nil, fmt.Errorf("parse redis url: %w", perr)
		}
		rdb := redis.NewClient(opts)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := rdb.Ping(ctx).Err()
		cancel()
		if err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		deps.redis = rdb
		store = match.NewRedisStore(rdb, cfg.SessionRetention)
		bus = publish.NewRedisBus(rdb, presenter)
		obslog.L().Info("arena_store", zap.String("backend", "redis"), zap.String("addr", opts.Addr), zap.Int("db", opts.DB))
	} else {
		store = match.NewMemoryStore()
		bus = publish.NewLocalBus(presenter)
		obslog.L().Warn("arena_store", zap.String("backend", "memory"))
	}

	orchOpts := []match.Option{match.WithPublisher(bus)}
	if cfg.DatabaseURL != "" {
		repo, rerr := archive.NewRepository(cfg.DatabaseURL)
		if rerr != nil {
			_ = deps.Close()
			return nil, fmt.Errorf("init archive: %w", rerr)
		}
		deps.archive = repo
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := repo.Migrate(ctx)
		cancel()
		if err != nil {
			_ = deps.Close()
			return nil, err
		}
		orchOpts = append(orchOpts, match.WithResultSink(repo))
	}
	if cfg.RatingWebhookURL != "" {
		orchOpts = append(orchOpts, match.WithResultSink(rating.NewNotifier(cfg.RatingWebhookURL, presenter.ResultNotice)))
	}

	orch, err := match.New(store, chessrules.New(), cfg.Match(), orchOpts...)
	if err != nil {
		_ = deps.Close()
		return nil, err
	}
	deps.Orchestrator = orch
	deps.Monitor = monitor.New(orch, cfg.SweepInterval)
	deps.Gateway = gateway.New(orch, bus, presenter, gateway.WithOriginPatterns(cfg.AllowedOrigins...))
	return deps, nil
}

func (d *Deps) Close() error {
	var errs []error
	if d.archive != nil {
		errs = append(errs, d.archive.Close())
	}
	if d.redis != nil {
		errs = append(errs, d.redis.Close())
	}
	return errors.Join(errs...)
}
