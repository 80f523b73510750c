// Package app wires the station service and its dependencies from the
// process configuration. It is shared by the API server and the worker.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/synopmap/synopmap/internal/api/handler"
	"github.com/synopmap/synopmap/internal/api/middleware"
	"github.com/synopmap/synopmap/internal/config"
	"github.com/synopmap/synopmap/internal/database"
	"github.com/synopmap/synopmap/internal/notify"
	"github.com/synopmap/synopmap/internal/ogimet"
	"github.com/synopmap/synopmap/internal/provider/resilience"
	"github.com/synopmap/synopmap/internal/stations"
)

const mqttConnectTimeout = 10 * time.Second

// Components are the long-lived objects built from the configuration.
type Components struct {
	Stations *stations.Service
	Registry *resilience.Registry
	Checks   []handler.DependencyCheck

	closers []func()
}

// Close releases connections in reverse order of creation.
func (c *Components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

// Build creates the bulletin provider, snapshot repository, notifier and
// station service. On error everything created so far is closed.
func Build(ctx context.Context, cfg config.Config, log zerolog.Logger) (_ *Components, err error) {
	c := &Components{Registry: resilience.NewRegistry()}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	provider := newProvider(cfg.Source, c.Registry, log)
	log.Info().
		Str("source", provider.Name()).
		Str("country", provider.Country()).
		Msg("bulletin source configured")

	repo, err := c.newRepository(ctx, cfg.Store, log)
	if err != nil {
		return nil, err
	}

	var notifier stations.Notifier
	if cfg.MQTT.Enabled() {
		notifier = c.newNotifier(ctx, cfg.MQTT, log)
	}

	metrics, err := middleware.NewProviderMetrics(provider.Name())
	if err != nil {
		return nil, fmt.Errorf("creating provider metrics: %w", err)
	}

	c.Stations = stations.NewService(stations.ServiceConfig{
		Provider:        provider,
		Repository:      repo,
		Notifier:        notifier,
		Metrics:         metrics,
		Logger:          log.With().Str("component", "stations").Logger(),
		CacheTTL:        cfg.Cache.TTL,
		StaleIfErrorTTL: cfg.Cache.StaleIfError,
		Retain:          cfg.Cache.Retain,
	})

	return c, nil
}

func newProvider(src config.SourceConfig, registry *resilience.Registry, log zerolog.Logger) stations.Provider {
	if src.Kind == config.SourceFile {
		return stations.NewFileProvider(src.FilePath, src.Country)
	}

	rc := resilience.DefaultClientConfig(ogimet.ProviderName)
	rc.UserAgent = ogimet.BrowserUserAgent
	rc.Registry = registry

	return ogimet.NewClient(ogimet.ClientConfig{
		BaseURL:    src.BaseURL,
		Country:    src.Country,
		HTTPClient: resilience.NewClient(rc),
		Logger:     log.With().Str("component", "ogimet").Logger(),
	})
}

func (c *Components) newRepository(ctx context.Context, store string, log zerolog.Logger) (stations.Repository, error) {
	switch store {
	case config.StoreSQLite:
		sqliteCfg := database.SQLiteConfigFromEnv()
		db, err := database.OpenSQLite(sqliteCfg)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite: %w", err)
		}
		c.closers = append(c.closers, func() { _ = db.Close() })

		if err := database.MigrateSQLite(ctx, db); err != nil {
			return nil, err
		}
		c.Checks = append(c.Checks, handler.DependencyCheck{Name: "sqlite", Check: db.PingContext})

		log.Info().Str("path", sqliteCfg.Path).Msg("sqlite snapshot store opened")
		return stations.NewSQLiteRepository(db), nil

	case config.StorePostgres:
		dbCfg := database.ConfigFromEnv()
		pool, err := database.Connect(ctx, dbCfg)
		if err != nil {
			return nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		c.closers = append(c.closers, pool.Close)

		if err := database.MigratePostgres(ctx, pool); err != nil {
			return nil, err
		}
		c.Checks = append(c.Checks, handler.DependencyCheck{Name: "postgres", Check: pool.Ping})

		log.Info().
			Str("host", dbCfg.Host).
			Int("port", dbCfg.Port).
			Str("database", dbCfg.Database).
			Msg("database connected")
		return stations.NewPostgresRepository(pool), nil

	default:
		log.Info().Msg("using in-memory snapshot store")
		return stations.NewInMemoryRepository(), nil
	}
}

// newNotifier starts the MQTT publisher. A broker that is down at start-up
// is not fatal; the client keeps reconnecting in the background.
func (c *Components) newNotifier(ctx context.Context, mc config.MQTTConfig, log zerolog.Logger) stations.Notifier {
	pub := notify.NewPublisher(notify.Config{
		BrokerURL:   mc.BrokerURL,
		ClientID:    mc.ClientID,
		Username:    mc.Username,
		Password:    mc.Password,
		TopicPrefix: mc.TopicPrefix,
	}, log)
	c.closers = append(c.closers, pub.Close)

	connectCtx, cancel := context.WithTimeout(ctx, mqttConnectTimeout)
	defer cancel()
	if err := pub.Connect(connectCtx); err != nil {
		log.Warn().Err(err).Str("broker", mc.BrokerURL).Msg("mqtt broker unavailable, continuing without notifications")
	}

	c.Checks = append(c.Checks, handler.DependencyCheck{
		Name: "mqtt",
		Check: func(context.Context) error {
			if !pub.IsConnected() {
				return notify.ErrNotConnected
			}
			return nil
		},
	})

	log.Info().Str("topic", pub.Topic()).Msg("snapshot notifications enabled")
	return pub
}
