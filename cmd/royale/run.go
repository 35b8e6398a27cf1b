package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/ashourz/AlgoRoyale-sub003/internal/config"
	"github.com/ashourz/AlgoRoyale-sub003/internal/logger"
	"github.com/ashourz/AlgoRoyale-sub003/internal/metrics"
	"github.com/ashourz/AlgoRoyale-sub003/internal/pipeline"
	"github.com/ashourz/AlgoRoyale-sub003/internal/stage"
	"github.com/ashourz/AlgoRoyale-sub003/pkg/marketdata"
)

var configFlag = &cli.StringFlag{
	Name:     "config",
	Aliases:  []string{"c"},
	Usage:    "Path to the YAML run configuration",
	Required: true,
}

func loadConfig(cmd *cli.Command) (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, nil, err
	}

	log, err := logger.NewLoggerWithOptions(cfg.Log.Options())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return cfg, log, nil
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run the whole pipeline or selected stages",
		Flags: []cli.Flag{
			configFlag,
			&cli.StringSliceFlag{
				Name:    "stage",
				Aliases: []string{"s"},
				Usage:   fmt.Sprintf("Stage to run, repeatable (one of %v). Defaults to every stage", stage.All()),
			},
			&cli.BoolFlag{
				Name:    "force",
				Aliases: []string{"f"},
				Usage:   "Reprocess units that are already marked done",
			},
			&cli.StringFlag{
				Name:  "metrics-file",
				Usage: "Write the Prometheus metrics in text format to this file after the run",
			},
			&cli.BoolFlag{
				Name:  "no-progress",
				Usage: "Disable the progress bars",
			},
		},
		Action: runAction,
	}
}

func runAction(ctx context.Context, cmd *cli.Command) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if path := cmd.String("metrics-file"); path != "" {
		cfg.MetricsFile = path
	}

	source, err := marketdata.NewSource(cfg.Source, log)
	if err != nil {
		return fmt.Errorf("failed to create market data source: %w", err)
	}

	if closer, ok := source.(io.Closer); ok {
		defer closer.Close()
	}

	p, err := pipeline.New(cfg, source, log, metrics.New())
	if err != nil {
		return err
	}
	defer p.Close()

	stages := make([]stage.Name, 0)
	for _, name := range cmd.StringSlice("stage") {
		stages = append(stages, stage.Name(name))
	}

	callbacks := pipeline.LifecycleCallbacks{}
	if !cmd.Bool("no-progress") {
		callbacks = progressCallbacks(os.Stderr)
	}

	err = p.Run(ctx, pipeline.RunOptions{Stages: stages, Force: cmd.Bool("force")}, callbacks)
	if err != nil {
		log.Error("Run failed", zap.String("run_id", p.RunID()), zap.Error(err))

		return err
	}

	return nil
}

// progressCallbacks draws one progress bar per stage.
func progressCallbacks(w io.Writer) pipeline.LifecycleCallbacks {
	var bar *progressbar.ProgressBar

	onStageStart := pipeline.OnStageStartCallback(func(index int, name stage.Name, total int, units int) error {
		bar = progressbar.NewOptions(units,
			progressbar.OptionSetWriter(w),
			progressbar.OptionSetDescription(fmt.Sprintf("[%d/%d] %s", index+1, total, name)),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)

		return nil
	})

	onUnitDone := pipeline.OnUnitDoneCallback(func(_ stage.Name, _, _ string, _ error, _, _ int) {
		if bar != nil {
			_ = bar.Add(1)
		}
	})

	onStageEnd := pipeline.OnStageEndCallback(func(_ int, name stage.Name, err error) {
		if bar != nil {
			_ = bar.Finish()
			bar = nil
		}

		if err != nil {
			fmt.Fprintf(w, "%s: %v\n", name, err)
		}
	})

	return pipeline.LifecycleCallbacks{
		OnStageStart: &onStageStart,
		OnUnitDone:   &onUnitDone,
		OnStageEnd:   &onStageEnd,
	}
}
