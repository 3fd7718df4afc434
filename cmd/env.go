package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/parcabul/broker/internal/catalog"
	"github.com/parcabul/broker/internal/config"
	"github.com/parcabul/broker/internal/directory"
	"github.com/parcabul/broker/internal/events"
	"github.com/parcabul/broker/internal/pipeline"
	"github.com/parcabul/broker/internal/recorder"
	"github.com/parcabul/broker/internal/registry"
	"github.com/parcabul/broker/internal/store"
)

// brokerEnv holds the initialized store, collaborators and pipeline needed by
// the serve/search/submit/batch commands.
type brokerEnv struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
	Registry *registry.Registry
	events   events.Publisher
	closers  []func() error
}

// Close releases resources held by the environment.
func (be *brokerEnv) Close() {
	for i := len(be.closers) - 1; i >= 0; i-- {
		if err := be.closers[i](); err != nil {
			zap.L().Warn("close failed", zap.Error(err))
		}
	}
}

// initStore opens the configured store without migrating it.
func initStore(ctx context.Context, c *config.Config) (store.Store, error) {
	switch c.Store.Driver {
	case "sqlite":
		return store.NewSQLite(c.Store.DatabaseURL)
	case "postgres":
		return store.NewPostgres(ctx, c.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", c.Store.Driver)
	}
}

// openStore opens and migrates the store. Callers should defer Close.
func openStore(ctx context.Context, c *config.Config) (store.Store, error) {
	st, err := initStore(ctx, c)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func initSource(c *config.Config) catalog.Source {
	if c.Catalog.UseMock() {
		zap.L().Warn("catalog base url not set, serving the built-in sample catalog")
		return catalog.MockSource{}
	}
	opts := []catalog.Option{
		catalog.WithTimeout(c.Catalog.Timeout()),
		catalog.WithMaxAttempts(c.Catalog.MaxAttempts),
	}
	if c.Catalog.APIKey != "" {
		opts = append(opts, catalog.WithAPIKey(c.Catalog.APIKey))
	}
	return catalog.NewHTTPSource(c.Catalog.BaseURL, opts...)
}

// initBroker validates the config for mode and wires every collaborator.
// Callers should defer env.Close().
func initBroker(ctx context.Context, c *config.Config, mode string) (*brokerEnv, error) {
	if err := c.Validate(mode); err != nil {
		return nil, err
	}

	st, err := openStore(ctx, c)
	if err != nil {
		return nil, err
	}
	env := &brokerEnv{Store: st, closers: []func() error{st.Close}}

	var dir directory.Directory = directory.NewStoreDirectory(st)
	var inv registry.Invalidator
	if c.Redis.Addr != "" {
		rdb := directory.NewRedisClient(c.Redis.Addr, c.Redis.Password, c.Redis.DB)
		env.closers = append(env.closers, rdb.Close)
		cached := directory.NewCachedDirectory(dir, rdb, c.Directory.CacheTTL())
		dir, inv = cached, cached
		zap.L().Info("directory cache enabled", zap.String("addr", c.Redis.Addr))
	}

	env.events = events.Nop{}
	if len(c.Kafka.Brokers) > 0 {
		k := events.NewKafka(c.Kafka.Brokers, c.Kafka.Topic)
		env.events = k
		env.closers = append(env.closers, k.Close)
		zap.L().Info("audit events enabled",
			zap.Strings("brokers", c.Kafka.Brokers),
			zap.String("topic", c.Kafka.Topic),
		)
	}

	env.Pipeline = pipeline.New(pipeline.Config{
		CatalogTimeout:   c.Catalog.Timeout(),
		DirectoryTimeout: c.Directory.Timeout(),
		DefaultCurrency:  c.Pipeline.DefaultCurrency,
	}, initSource(c), dir, recorder.New(st), env.events)
	env.Registry = registry.New(st, inv)

	return env, nil
}
