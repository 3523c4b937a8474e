package pipeline

import (
	"context"

	"github.com/signalmesh/notify-relay-service/config"
	"go.uber.org/fx"
)

var Module = fx.Module("pipeline",
	fx.Provide(
		func(cfg *config.Config) *Lanes {
			return NewLanes(
				WithMailboxSize(cfg.Delivery.MailboxSize),
				WithIdleTimeout(cfg.Delivery.LaneIdleTimeout),
				WithEvictionInterval(cfg.Delivery.LaneEvictionInterval),
			)
		},
	),
	fx.Invoke(func(lc fx.Lifecycle, ls *Lanes) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				ls.Shutdown()
				return nil
			},
		})
	}),
)
