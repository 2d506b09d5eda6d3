package ledgerbuilder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/park285/h2h-ledger/internal/config"
	"github.com/park285/h2h-ledger/internal/ledger"
	"github.com/park285/h2h-ledger/internal/msgcat"
	"github.com/park285/h2h-ledger/internal/reconcile"
	"github.com/park285/h2h-ledger/internal/remote"
	"github.com/park285/h2h-ledger/internal/scoreboard"
	"github.com/park285/h2h-ledger/internal/stats"
	"github.com/park285/h2h-ledger/internal/statestore"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	feedReconnectAttempts = 20
	syncTimeout           = 30 * time.Second
)

type Deps struct {
	KV        ledger.KV
	Ledger    *ledger.Store
	Photos    *ledger.Photos
	Outbox    *reconcile.Outbox
	Remote    *remote.Client
	Feed      *remote.Feed
	State     *statestore.Store
	Engine    *reconcile.Engine
	Formatter *scoreboard.Formatter

	logger *zap.Logger
}

func New(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (*Deps, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	kv, err := ledger.OpenKV(ctx, cfg.LedgerURL)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	cat, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		_ = kv.Close()
		return nil, fmt.Errorf("load messages: %w", err)
	}

	client := remote.NewClient(cfg.APIBaseURL,
		remote.WithTimeout(cfg.RequestTimeout),
		remote.WithRetry(cfg.RetryMax),
	)
	state := statestore.New(stats.Baseline(cfg.PlayerOne, cfg.PlayerTwo))
	outbox := reconcile.NewOutbox(kv)
	store := ledger.NewStore(kv, cfg.LedgerKey, logger.Named("ledger"))
	engine := reconcile.New(store, state, client, outbox, reconcile.Options{
		PlayerOne:       cfg.PlayerOne,
		PlayerTwo:       cfg.PlayerTwo,
		OfflineFallback: cfg.OfflineFallback,
		StrictIntegrity: cfg.StrictIntegrity,
		Logger:          logger.Named("reconcile"),
	})

	d := &Deps{
		KV:        kv,
		Ledger:    store,
		Photos:    ledger.NewPhotos(kv),
		Outbox:    outbox,
		Remote:    client,
		State:     state,
		Engine:    engine,
		Formatter: scoreboard.NewFormatter(cat),
		logger:    logger,
	}
	if u := strings.TrimSpace(cfg.FeedURL); u != "" {
		d.Feed = remote.NewFeed(u, feedReconnectAttempts, logger.Named("feed"))
		d.wireFeed()
	}
	return d, nil
}

// wireFeed ties feed connectivity to the engine: a reconnect triggers a sync,
// pushed listings replace the cache.
func (d *Deps) wireFeed() {
	d.Feed.OnStateChange(func(s remote.FeedState) {
		switch s {
		case remote.FeedConnected:
			d.Engine.SetConnected(true)
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
				defer cancel()
				if _, err := d.Engine.Sync(ctx); err != nil {
					d.logger.Warn("feed_sync_failed", zap.Error(err))
				}
			}()
		case remote.FeedDisconnected, remote.FeedFailed:
			d.Engine.SetConnected(false)
		}
	})
	d.Feed.OnMessage(func(m *remote.FeedMessage) {
		if m == nil || m.Type != remote.MessageTypePlayers {
			return
		}
		d.Engine.Observe(context.Background(), m.Players)
	})
}

// Start initialises the engine and connects the feed when one is configured.
// A feed that cannot connect is not fatal; it keeps reconnecting in the background.
func (d *Deps) Start(ctx context.Context) error {
	if _, err := d.Engine.Init(ctx); err != nil {
		return err
	}
	if d.Feed != nil {
		if err := d.Feed.Connect(ctx); err != nil {
			d.logger.Warn("feed_connect_failed", zap.Error(err))
		}
	}
	return nil
}

func (d *Deps) Close(ctx context.Context) error {
	var err error
	if d.Feed != nil {
		err = multierr.Append(err, d.Feed.Close(ctx))
	}
	return multierr.Append(err, d.KV.Close())
}
