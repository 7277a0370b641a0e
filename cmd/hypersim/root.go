package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/atmx/hyperdrive-engine/internal/agent"
	"github.com/atmx/hyperdrive-engine/internal/config"
	"github.com/atmx/hyperdrive-engine/internal/journal"
	"github.com/atmx/hyperdrive-engine/internal/market"
	"github.com/atmx/hyperdrive-engine/internal/metrics"
)

type rootOptions struct {
	logLevel  string
	logFormat string
}

func (o *rootOptions) logger() (*zap.Logger, error) {
	return config.LogConfig{Level: o.logLevel, Format: o.logFormat}.NewLogger()
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "hypersim",
		Short:         "Hyperdrive market simulator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "console", "log format (json, console)")

	root.AddCommand(runCmd(opts))
	root.AddCommand(journalCmd(opts))
	return root
}

func runCmd(opts *rootOptions) *cobra.Command {
	var (
		scenarioPath string
		journalDir   string
		poolID       string
		outPath      string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a YAML scenario and print the final report as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			log, err := opts.logger()
			if err != nil {
				return err
			}
			defer log.Sync()

			sc, err := agent.LoadScenario(scenarioPath)
			if err != nil {
				return err
			}

			var rec agent.Recorder
			if journalDir != "" {
				j, err := journal.Open(journal.Config{
					Dir:              journalDir,
					SegmentThreshold: 1000,
					MaxSegments:      100,
				})
				if err != nil {
					return err
				}
				defer j.Close()
				rec = j.Recorder(poolID)
			}

			sim, err := agent.NewSimulation(sc, rec, log, market.WithObserver(metrics.PoolObserver{PoolID: poolID}))
			if err != nil {
				return err
			}
			rep, err := sim.Run(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if outPath != "" {
				f, err := os.Create(outPath)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}
			return writeJSON(out, rep)
		},
	}
	cmd.Flags().StringVar(&scenarioPath, "scenario", "", "scenario YAML file")
	cmd.Flags().StringVar(&journalDir, "journal-dir", "", "append applied trades to a journal in this directory")
	cmd.Flags().StringVar(&poolID, "pool-id", "sim", "pool id recorded in the journal")
	cmd.Flags().StringVar(&outPath, "out", "", "write the report here instead of stdout")
	cmd.MarkFlagRequired("scenario")
	return cmd
}

func journalCmd(opts *rootOptions) *cobra.Command {
	var (
		dir    string
		poolID string
	)
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Print journaled trades as JSON lines",
		RunE: func(cmd *cobra.Command, _ []string) error {
			log, err := opts.logger()
			if err != nil {
				return err
			}
			defer log.Sync()

			j, err := journal.Open(journal.Config{Dir: dir, SegmentThreshold: 1000, MaxSegments: 100})
			if err != nil {
				return err
			}
			defer j.Close()

			enc := json.NewEncoder(cmd.OutOrStdout())
			n := 0
			err = j.Replay(func(e journal.Entry) error {
				if poolID != "" && e.PoolID != poolID {
					return nil
				}
				n++
				return enc.Encode(e)
			})
			log.Info("journal replayed", zap.String("dir", dir), zap.Int("entries", n))
			return err
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "journal directory")
	cmd.Flags().StringVar(&poolID, "pool-id", "", "only print entries for this pool")
	cmd.MarkFlagRequired("dir")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
