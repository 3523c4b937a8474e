package http

import (
	"context"

	"github.com/signalmesh/notify-relay-service/internal/handler/ws"
	"go.uber.org/fx"
)

var Module = fx.Module("http-handler",
	fx.Provide(
		NewAPI,
		ws.NewWSHandler,
		NewServer,
	),
	fx.Invoke(func(lc fx.Lifecycle, s *Server) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				s.Start()
				return nil
			},
			OnStop: func(ctx context.Context) error {
				return s.Stop(ctx)
			},
		})
	}),
)
