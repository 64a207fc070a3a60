package main

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/danpilch/stackspy/pkg/config"
	"github.com/danpilch/stackspy/pkg/debug"
	"github.com/danpilch/stackspy/pkg/sampler"
	"github.com/danpilch/stackspy/pkg/spy"
)

const (
	attachAttempts = 3
	attachDelay    = 100 * time.Millisecond
)

// applyConfigFile loads a YAML config file into cfg. Flags given on the
// command line win over the file.
func applyConfigFile(cmd *cobra.Command, cfg *config.Config, path string) error {
	if path == "" {
		return nil
	}
	set := make(map[string]string)
	cmd.Flags().Visit(func(f *pflag.Flag) {
		set[f.Name] = f.Value.String()
	})

	loaded, err := config.Load(*cfg, path)
	if err != nil {
		return err
	}
	*cfg = loaded
	for name, value := range set {
		if err := cmd.Flags().Set(name, value); err != nil {
			return err
		}
	}
	return nil
}

func registerRecordCommand(attach sampler.AttachFunc, logger *logrus.Logger) *cobra.Command {
	cfg := config.Default()
	var (
		configPath string
		function   bool
		timing     bool
		pprofAddr  string
	)

	record := &cobra.Command{
		Use:     "record",
		Short:   "Record stack samples to a flame graph, speedscope or raw file",
		Example: "stackspy record --pid 1234 --duration 30 --format speedscope -o profile.json",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := applyConfigFile(cmd, &cfg, configPath); err != nil {
				return err
			}
			if function {
				cfg.ShowLineNumbers = false
			}
			if err := cfg.ValidateRecord(); err != nil {
				return err
			}
			if pprofAddr != "" {
				stop, err := debug.StartPprofServer(pprofAddr, logger)
				if err != nil {
					return err
				}
				defer stop()
			}

			target, err := sampler.Attach(cmd.Context(), attach, cfg.Pid, attachAttempts, attachDelay, logger)
			if err != nil {
				return err
			}
			_, err = spy.Record(cmd.Context(), target, cfg, spy.Options{
				Logger:        logger,
				Stdout:        cmd.OutOrStdout(),
				Stderr:        cmd.ErrOrStderr(),
				HandleSignals: true,
				Timing:        timing,
			})
			return err
		},
	}

	flags := record.Flags()
	flags.IntVarP(&cfg.Pid, "pid", "p", 0, "PID of the process to profile")
	flags.Uint64VarP(&cfg.Rate, "rate", "r", cfg.Rate, "Samples per second")
	flags.VarP(&cfg.Duration, "duration", "d", "Seconds to sample for, or 'unlimited'")
	flags.VarP(&cfg.Format, "format", "f", "Output format: flamegraph, speedscope or raw")
	flags.StringVarP(&cfg.Output, "output", "o", "", "Output file (default stackspy-<pid>.<ext>, add .zst to compress)")
	flags.StringVar(&cfg.IdleList, "idle-list", "", "File of 'function program MODE' rules marking functions as idle")
	flags.BoolVarP(&cfg.IncludeIdle, "idle", "i", false, "Include stack traces of idle threads")
	flags.BoolVarP(&cfg.GILOnly, "gil", "g", false, "Only include traces holding the GIL")
	flags.BoolVarP(&cfg.IncludeThreadIDs, "threads", "t", false, "Add the thread id to each stack trace")
	flags.BoolVarP(&function, "function", "F", false, "Aggregate by function name instead of line number")
	flags.BoolVar(&timing, "timing", false, "Print a capture latency report")
	flags.StringVar(&pprofAddr, "pprof-addr", "", "Serve pprof for stackspy itself on this address")
	flags.StringVarP(&configPath, "config", "c", "", "YAML config file; command line flags take precedence")
	return record
}

func registerDumpCommand(attach sampler.AttachFunc, logger *logrus.Logger) *cobra.Command {
	var pid int
	dump := &cobra.Command{
		Use:     "dump",
		Short:   "Print the current stack of every thread",
		Example: "stackspy dump --pid 1234",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			cfg.Pid = pid
			if err := cfg.ValidateRecord(); err != nil {
				return err
			}
			target, err := sampler.Attach(cmd.Context(), attach, pid, attachAttempts, attachDelay, logger)
			if err != nil {
				return err
			}
			return spy.Dump(target, spy.Options{
				Logger: logger,
				Stdout: cmd.OutOrStdout(),
				Stderr: cmd.ErrOrStderr(),
			})
		},
	}
	dump.Flags().IntVarP(&pid, "pid", "p", 0, "PID of the process to inspect")
	dump.MarkFlagRequired("pid")
	return dump
}

func registerGenerateCommand(logger *logrus.Logger) *cobra.Command {
	cfg := config.Default()
	var (
		configPath  string
		dumpBuckets int
	)

	generate := &cobra.Command{
		Use:     "generate",
		Short:   "Render a flame graph of a time window of a raw recording",
		Example: "stackspy generate --file profile.raw.json --start 10 --end 20",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := applyConfigFile(cmd, &cfg, configPath); err != nil {
				return err
			}
			_, err := spy.Generate(cfg, spy.Options{
				Logger:      logger,
				Stdout:      cmd.OutOrStdout(),
				Stderr:      cmd.ErrOrStderr(),
				DumpBuckets: dumpBuckets,
			})
			return err
		},
	}

	flags := generate.Flags()
	flags.StringVar(&cfg.Input, "file", "", "Raw snapshot written by 'record --format raw'")
	flags.Uint64Var(&cfg.Start, "start", cfg.Start, "First second of the window (inclusive)")
	flags.Uint64Var(&cfg.End, "end", cfg.End, "Last second of the window (exclusive)")
	flags.BoolVar(&cfg.Folded, "folded", false, "Write folded stacks instead of an SVG")
	flags.IntVar(&dumpBuckets, "dump-buckets", 0, "Print per-second counts of the N busiest stacks, -1 for all")
	flags.StringVarP(&configPath, "config", "c", "", "YAML config file; command line flags take precedence")
	return generate
}
