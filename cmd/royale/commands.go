package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/ashourz/AlgoRoyale-sub003/internal/config"
	"github.com/ashourz/AlgoRoyale-sub003/internal/stage"
	"github.com/ashourz/AlgoRoyale-sub003/internal/strategy"
	"github.com/ashourz/AlgoRoyale-sub003/internal/walkforward"
)

const (
	schemaName       = "royale-config.json"
	sampleConfigName = "royale-config.yaml"
)

func windowsCommand() *cli.Command {
	return &cli.Command{
		Name:  "windows",
		Usage: "Print the walk-forward windows of an ingested symbol",
		Flags: []cli.Flag{
			configFlag,
			&cli.StringFlag{
				Name:     "symbol",
				Usage:    "Symbol whose ingested bars define the windows",
				Required: true,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, log, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			start, end := cfg.DateRange(time.Now())
			loader, err := stage.NewLoader(stage.NewManager(cfg.DataRoot, start, end), log)
			if err != nil {
				return err
			}
			defer loader.Close()

			df, err := loader.LoadSymbol(ctx, stage.LoadRequest{Stage: stage.DataIngest}, cmd.String("symbol"))
			if err != nil {
				return err
			}

			windows, err := walkforward.GenerateWindows(df.Index(), cfg.WalkForward.Windows)
			if err != nil {
				return err
			}

			out := cmd.Root().Writer
			for _, w := range windows {
				fmt.Fprintf(out, "%s\t%s\n", w.Key(), w.String())
			}

			fmt.Fprintf(out, "%d windows over %d bars\n", len(windows), df.Len())

			return nil
		},
	}
}

func catalogueCommand() *cli.Command {
	return &cli.Command{
		Name:  "catalogue",
		Usage: "List the strategy ids every family enumerates",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "strategy",
				Usage: "Family to include, repeatable. Defaults to every family",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write the catalogue JSON to this file instead of stdout",
			},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			factory, err := strategy.DefaultFactory(nil).Select(cmd.StringSlice("strategy"))
			if err != nil {
				return err
			}

			if path := cmd.String("output"); path != "" {
				return factory.WriteCatalogue(path)
			}

			catalogue, err := factory.Catalogue()
			if err != nil {
				return err
			}

			data, err := json.MarshalIndent(catalogue, "", "  ")
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.Root().Writer, string(data))

			return err
		},
	}
}

func schemaCommand() *cli.Command {
	return &cli.Command{
		Name:  "schema",
		Usage: "Write the configuration JSON schema and a sample configuration",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "dir",
				Aliases: []string{"d"},
				Usage:   "Output directory",
				Value:   "config",
			},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			return writeSchema(cmd.String("dir"))
		},
	}
}

// writeSchema writes the schema and, unless one already exists, a sample
// configuration referencing it.
func writeSchema(dir string) error {
	schemaJSON, err := config.GenerateSchemaJSON()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, schemaName), []byte(schemaJSON), 0o644); err != nil {
		return fmt.Errorf("failed to write schema: %w", err)
	}

	samplePath := filepath.Join(dir, sampleConfigName)
	if _, err := os.Stat(samplePath); err == nil {
		return nil
	}

	sample := config.Default()
	sample.Symbols = []string{"AAPL", "MSFT"}

	data, err := yaml.Marshal(&sample)
	if err != nil {
		return fmt.Errorf("failed to marshal sample config: %w", err)
	}

	data = append([]byte("# yaml-language-server: $schema="+schemaName+"\n"), data...)
	if err := os.WriteFile(samplePath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write sample config: %w", err)
	}

	return nil
}
