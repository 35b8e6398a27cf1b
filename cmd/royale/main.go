package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/ashourz/AlgoRoyale-sub003/internal/version"
)

func newApp() *cli.Command {
	return &cli.Command{
		Name:    "royale",
		Usage:   "Walk-forward backtesting and strategy optimisation pipeline",
		Version: version.GetVersion(),
		Commands: []*cli.Command{
			runCommand(),
			windowsCommand(),
			catalogueCommand(),
			schemaCommand(),
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
