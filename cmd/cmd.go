package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/signalmesh/notify-relay-service/config"
	"github.com/urfave/cli/v2"
)

const ServiceName = "notify-relay"

func Run() error {
	app := &cli.App{
		Name:  ServiceName,
		Usage: "Store-and-forward notification delivery service",
		Commands: []*cli.Command{
			serverCmd(),
			sendCmd(),
		},
	}

	return app.Run(os.Args)
}

func serverCmd() *cli.Command {
	return &cli.Command{
		Name:    "server",
		Aliases: []string{"s"},
		Usage:   "Run the delivery server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config_file",
				Usage: "Path to the configuration file",
			},
		},
		Action: func(c *cli.Context) error {
			path := c.String("config_file")
			cfg, err := config.LoadConfig(path)
			if err != nil {
				return err
			}
			app := NewApp(cfg, path)

			if err := app.Start(c.Context); err != nil {
				return err
			}

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			<-stop

			slog.Info("Shutting down...")
			return app.Stop(context.Background())
		},
	}
}
