package cmd

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/darmiel/satellite/internal/cache"
	"github.com/darmiel/satellite/internal/cliconfig"
	"github.com/darmiel/satellite/internal/config"
	"github.com/darmiel/satellite/internal/health"
	"github.com/darmiel/satellite/internal/metrics"
	"github.com/darmiel/satellite/internal/registration"
	"github.com/darmiel/satellite/internal/source"
	"github.com/darmiel/satellite/internal/store"
	"github.com/darmiel/satellite/internal/syncer"
	"github.com/darmiel/satellite/internal/updates"
	"github.com/darmiel/satellite/pkg/client"
	"github.com/darmiel/satellite/pkg/hub"
)

type Factory struct {
	// RemoteAddr is the address of a running satellite to talk to.
	RemoteAddr   string
	RemoteAPIKey string

	cfg   *config.Config
	store store.Store
	src   source.Source
}

func NewFactory() *Factory {
	return &Factory{}
}

// Satellite is the wired object graph of one node.
type Satellite struct {
	Config       *config.Config
	Store        store.Store
	Keys         store.Keys
	Cache        *cache.Cache
	Source       source.Source
	InstanceID   string
	Hub          *hub.Client
	Updates      *updates.Dispatcher
	Registration *registration.Manager
	Syncer       *syncer.Orchestrator
	Collector    *metrics.Collector
	Publisher    *metrics.Publisher
	Health       *health.Checker
}

// Remote reports whether commands should go to a running satellite.
func (f *Factory) Remote() bool {
	return f.remoteAddr() != ""
}

func (f *Factory) remoteAddr() string {
	if f.RemoteAddr != "" { // prio 1: command-line flag
		return f.RemoteAddr
	}
	return viper.GetString(RemoteAddrKey) // prio 2: config/env
}

func (f *Factory) bindRemoteFlags(flags *pflag.FlagSet) {
	flags.StringVar(&f.RemoteAddr, "server", "",
		"Address of a running satellite; remote commands talk to it instead of the local config")
	_ = viper.BindPFlag(RemoteAddrKey, flags.Lookup("server"))

	flags.StringVar(&f.RemoteAPIKey, "api-key", "", "API key for the remote satellite")
	_ = viper.BindPFlag(RemoteAPIKeyKey, flags.Lookup("api-key"))
}

// GetClient returns a client for the satellite API of a running node.
func (f *Factory) GetClient() (*client.Client, error) {
	server := f.remoteAddr()
	if server == "" {
		return nil, fmt.Errorf("server address not configured (use --server or set SATELLITE_REMOTE_ADDR)")
	}

	apiKey := f.RemoteAPIKey // prio 1: command-line flag
	if apiKey == "" {
		apiKey = viper.GetString(RemoteAPIKeyKey) // prio 2: config/env
	}
	if apiKey == "" { // prio 3: saved credential
		if saved, err := loadCredentials(); err == nil {
			if cred, err := saved.GetCredential(server); err == nil {
				apiKey = cred.APIKey
			}
		}
	}
	var opts []client.Option

	// inbound requests are checked against the hub key, so a local config is enough
	if cfg, err := f.Config(); err == nil {
		if apiKey == "" {
			apiKey = cfg.Hub.APIKey.Reveal()
		}
		opts = append(opts, client.WithAPIPrefix(cfg.Satellite.APIPrefix))
	}
	opts = append(opts, client.WithAPIKey(apiKey))
	return client.New(server, opts...), nil
}

func (f *Factory) Config() (*config.Config, error) {
	if f.cfg != nil {
		return f.cfg, nil
	}
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}
	f.cfg = cfg
	return cfg, nil
}

func (f *Factory) Store(ctx context.Context) (store.Store, error) {
	if f.store != nil {
		return f.store, nil
	}
	cfg, err := f.Config()
	if err != nil {
		return nil, err
	}

	var s store.Store
	switch cfg.Store.Driver {
	case config.StoreRedis:
		rs, err := store.NewRedisStore(ctx, cfg.Store.RedisURL.Reveal())
		if err != nil {
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		s = rs
	case config.StoreSQLite:
		ss, err := store.OpenSQLite(ctx, cfg.Store.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		s = ss
	default:
		s = store.NewInMemoryStore()
	}
	log.Debug().Str("driver", cfg.Store.Driver).Msg("store opened")
	f.store = s
	return s, nil
}

func (f *Factory) Source(ctx context.Context) (source.Source, error) {
	if f.src != nil {
		return f.src, nil
	}
	cfg, err := f.Config()
	if err != nil {
		return nil, err
	}
	src, err := source.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening data source: %w", err)
	}
	f.src = src
	return src, nil
}

// Collector builds a metrics collector. It needs no hub credentials.
func (f *Factory) Collector(ctx context.Context) (*metrics.Collector, error) {
	cfg, err := f.Config()
	if err != nil {
		return nil, err
	}
	src, err := f.Source(ctx)
	if err != nil {
		return nil, err
	}
	return metrics.NewCollector(cfg, src), nil
}

// Checker builds the local health checker. It needs no hub credentials.
func (f *Factory) Checker(ctx context.Context) (*health.Checker, error) {
	cfg, err := f.Config()
	if err != nil {
		return nil, err
	}
	s, err := f.Store(ctx)
	if err != nil {
		return nil, err
	}
	src, err := f.Source(ctx)
	if err != nil {
		return nil, err
	}
	keys := store.NewKeys(cfg.Cache.Prefix)
	return health.NewChecker(cfg, s, keys, src, cache.New(s, keys, cfg.Cache.TTL(), cfg.Cache.Tags)), nil
}

// Satellite wires the full node. The hub url and api key must be configured.
func (f *Factory) Satellite(ctx context.Context) (*Satellite, error) {
	cfg, err := f.Config()
	if err != nil {
		return nil, err
	}
	if err := cfg.RequireHub(); err != nil {
		return nil, err
	}
	s, err := f.Store(ctx)
	if err != nil {
		return nil, err
	}
	src, err := f.Source(ctx)
	if err != nil {
		return nil, err
	}

	keys := store.NewKeys(cfg.Cache.Prefix)
	c := cache.New(s, keys, cfg.Cache.TTL(), cfg.Cache.Tags)

	instanceID, err := registration.InstanceID(ctx, s, keys)
	if err != nil {
		return nil, err
	}

	dispatcher := updates.NewDispatcher()
	updates.RegisterDefaults(dispatcher, c)

	hc, err := hub.New(hub.OptionsFromConfig(cfg, instanceID), hub.WithUpdateHandler(dispatcher))
	if err != nil {
		return nil, fmt.Errorf("creating hub client: %w", err)
	}

	collector := metrics.NewCollector(cfg, src)
	return &Satellite{
		Config:       cfg,
		Store:        s,
		Keys:         keys,
		Cache:        c,
		Source:       src,
		InstanceID:   instanceID,
		Hub:          hc,
		Updates:      dispatcher,
		Registration: registration.NewManager(cfg, s, keys, hc, instanceID),
		Syncer:       syncer.New(cfg, src, hc, s, keys, c),
		Collector:    collector,
		Publisher:    metrics.NewPublisher(collector, hc, s, keys),
		Health:       health.NewChecker(cfg, s, keys, src, c),
	}, nil
}

// Close releases the store and the data source.
func (f *Factory) Close() {
	if f.src != nil {
		f.src.Close()
	}
	if f.store != nil {
		if err := f.store.Close(); err != nil {
			log.Warn().Err(err).Msg("closing store")
		}
	}
}

func loadCredentials() (*cliconfig.CLIConfig, error) {
	path, err := cliconfig.DefaultPath()
	if err != nil {
		return nil, err
	}
	return cliconfig.Load(path)
}
