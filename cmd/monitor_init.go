package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/dakiwatch/dakiwatch/internal/adapter"
	"github.com/dakiwatch/dakiwatch/internal/config"
	"github.com/dakiwatch/dakiwatch/internal/creator"
	"github.com/dakiwatch/dakiwatch/internal/engine"
	"github.com/dakiwatch/dakiwatch/internal/fetch"
	"github.com/dakiwatch/dakiwatch/internal/model"
	"github.com/dakiwatch/dakiwatch/internal/notify"
	"github.com/dakiwatch/dakiwatch/internal/registry"
	"github.com/dakiwatch/dakiwatch/internal/store"
)

// monitorEnv holds the initialized store, registry, and engine needed by
// the run/serve commands.
type monitorEnv struct {
	Store    store.Store
	Registry *registry.Registry
	Engine   *engine.Engine
	Items    []model.MonitoredItem
}

// Close releases resources held by the monitor environment.
func (me *monitorEnv) Close() {
	if me.Store != nil {
		_ = me.Store.Close()
	}
}

// initStore opens and migrates the configured store backend.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	zap.L().Info("store ready",
		zap.String("driver", cfg.Store.Driver),
	)
	return st, nil
}

// buildRegistry constructs one adapter per enabled platform, each with its
// own fetcher so per-site pacing and proxy settings stay isolated.
func buildRegistry(platforms *config.PlatformsFile) (*registry.Registry, error) {
	var adapters []adapter.Adapter
	for _, p := range model.AllPlatforms() {
		pcfg := platforms.Platform(p)
		if !pcfg.Enabled {
			zap.L().Info("platform disabled", zap.String("platform", string(p)))
			continue
		}

		fetcher, err := fetch.NewHTTPFetcher(fetch.Options{
			UserAgents:   platforms.General.UserAgents,
			Timeout:      time.Duration(cfg.Scrape.FetchTimeoutSecs) * time.Second,
			MaxRetries:   cfg.Scrape.MaxRetries,
			PerHostRate:  rate.Every(pcfg.MinInterval()),
			ProxyURL:     pcfg.ProxyURL,
			MaxBodyBytes: platforms.General.MaxBodyBytes,
		})
		if err != nil {
			return nil, eris.Wrapf(err, "build fetcher for %s", p)
		}

		opts := adapter.Options{
			BaseURL:       pcfg.BaseURL,
			MinInterval:   pcfg.MinInterval(),
			Jitter:        pcfg.Jitter(),
			MaxCandidates: pcfg.MaxCandidates,
		}

		switch p {
		case model.PlatformMercari:
			adapters = append(adapters, adapter.NewMercari(fetcher, opts))
		case model.PlatformYahooAuction:
			adapters = append(adapters, adapter.NewYahooAuction(fetcher, opts))
		case model.PlatformSurugaya:
			adapters = append(adapters, adapter.NewSurugaya(fetcher, opts))
		case model.PlatformLashinbang:
			adapters = append(adapters, adapter.NewLashinbang(fetcher, opts))
		}
	}
	if len(adapters) == 0 {
		return nil, eris.New("no platforms enabled")
	}

	timeout := time.Duration(cfg.Scrape.AdapterTimeoutSecs) * time.Second
	return registry.New(timeout, adapters...), nil
}

// initMonitor sets up the store, adapters, creator feeds, and notifiers,
// and builds the Engine. Callers should defer env.Close(). When noEmail is
// set the email notifier is skipped regardless of config.
func initMonitor(ctx context.Context, noEmail bool) (*monitorEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	items, err := config.LoadItems(cfg.ItemsFile)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	platforms, err := config.LoadPlatforms(cfg.PlatformsFile)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	reg, err := buildRegistry(platforms)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	notifiers := []notify.Notifier{notify.LogNotifier{}}
	if cfg.Email.Enabled && !noEmail {
		notifiers = append(notifiers, notify.NewEmail(cfg.Email))
		zap.L().Info("email notifications enabled",
			zap.String("smtp_host", cfg.Email.SMTPHost),
			zap.Int("recipients", len(cfg.Email.To)),
		)
	}

	var creators engine.CreatorChecker
	if len(items.Creators) > 0 {
		feedFetcher, err := fetch.NewHTTPFetcher(fetch.Options{
			UserAgents: platforms.General.UserAgents,
			Timeout:    time.Duration(cfg.Scrape.FetchTimeoutSecs) * time.Second,
			MaxRetries: cfg.Scrape.MaxRetries,
		})
		if err != nil {
			_ = st.Close()
			return nil, eris.Wrap(err, "build feed fetcher")
		}
		creators = creator.NewMonitor(items.Creators, creator.NewHTMLFeed(feedFetcher), st)
		zap.L().Info("creator feeds configured", zap.Int("feeds", len(items.Creators)))
	}

	eng := engine.New(engine.Options{
		Store:         st,
		Dispatcher:    reg,
		Creators:      creators,
		Notifiers:     notifiers,
		MaxConcurrent: cfg.Scrape.MaxConcurrentItems,
	})

	zap.L().Info("monitor ready",
		zap.Int("items", len(items.Items)),
		zap.Int("platforms", len(reg.Platforms())),
	)

	return &monitorEnv{
		Store:    st,
		Registry: reg,
		Engine:   eng,
		Items:    items.Items,
	}, nil
}
