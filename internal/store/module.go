package store

import (
	"context"

	"github.com/signalmesh/notify-relay-service/config"
	pebblestore "github.com/signalmesh/notify-relay-service/internal/storage/pebble"
	"go.uber.org/fx"
)

var Module = fx.Module("store",
	fx.Provide(
		func(cfg *config.Config) (*pebblestore.DB, error) {
			return pebblestore.Open(pebblestore.Options{
				DataDir: cfg.Storage.DataDir,
				Fsync:   pebblestore.ParseFsyncMode(cfg.Storage.Fsync),
			})
		},
		NewPending,
		func(p *Pending) PendingStore { return NewBreakerStore(p) },
	),
	fx.Invoke(func(lc fx.Lifecycle, db *pebblestore.DB) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return db.Close()
			},
		})
	}),
)
