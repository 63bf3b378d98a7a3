// Smartfolder watches directories and runs an agentic workflow over
// every file that arrives in them.
//
// Usage:
//
//	smartfolder <folder> --prompt "..."   Watch one folder ad hoc
//	smartfolder run --config <file>       Run from a config file
//	smartfolder validate --config <file>  Validate a config file
//	smartfolder history [folder]          Show recent runs
//	smartfolder --version                 Print the version
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/smartfolderhq/smartfolder/internal/config"
	"github.com/smartfolderhq/smartfolder/internal/llm"
	"github.com/smartfolderhq/smartfolder/internal/runlog"
	"github.com/smartfolderhq/smartfolder/internal/state"
	"github.com/smartfolderhq/smartfolder/internal/supervisor"
)

var version = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		promptText string
		dryRun     bool
		runOnce    bool
		verbose    bool
	)

	root := &cobra.Command{
		Use:           "smartfolder <folder>",
		Short:         "Run an AI agent over files arriving in watched folders",
		Version:       version,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if promptText == "" {
				return fmt.Errorf("--prompt is required")
			}
			folder, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			cfg, err := config.Normalize(&config.File{
				Folders: []config.FolderEntry{{
					Path:   folder,
					Prompt: promptText,
					DryRun: &dryRun,
				}},
			})
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, runOnce, verbose)
		},
	}
	root.Flags().StringVarP(&promptText, "prompt", "p", "", "instructions for the folder agent")
	root.Flags().BoolVar(&dryRun, "dry-run", false, "log what would happen without touching files")
	root.Flags().BoolVar(&runOnce, "run-once", false, "start watchers, confirm readiness, then exit")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(newRunCommand(&runOnce, &verbose))
	root.AddCommand(newValidateCommand())
	root.AddCommand(newHistoryCommand())
	return root
}

func newRunCommand(runOnce, verbose *bool) *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Watch every folder in a config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, *runOnce, *verbose)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to the config file (JSON or YAML)")
	cmd.MarkFlagRequired("config")
	cmd.Flags().BoolVar(runOnce, "run-once", false, "start watchers, confirm readiness, then exit")
	return cmd
}

func newValidateCommand() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a config file without starting anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("config invalid: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config valid: %d folder(s), %d root(s)\n",
				len(cfg.Folders), len(cfg.RootDirectories))
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to the config file (JSON or YAML)")
	cmd.MarkFlagRequired("config")
	return cmd
}

func newHistoryCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history [folder]",
		Short: "Show recently processed files",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			folder := ""
			if len(args) == 1 {
				abs, err := filepath.Abs(args[0])
				if err != nil {
					return err
				}
				folder = abs
			}

			store, err := runlog.NewStore(filepath.Join(state.Home(), "runs.db"))
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.Recent(folder, limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no runs recorded")
				return nil
			}
			for _, r := range runs {
				status := "ok"
				if !r.OK {
					status = "error"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-5s  %s  %s\n",
					r.FinishedAt.Local().Format("2006-01-02 15:04:05"), status, r.Folder, r.File)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum runs to show")
	return cmd
}

// serve runs the supervisor until a shutdown signal (or, with
// runOnce, until the watchers report ready).
func serve(ctx context.Context, cfg *config.Config, runOnce, verbose bool) error {
	level := config.LogLevelFromEnv()
	if verbose {
		level = slog.LevelDebug
	}
	logger := config.NewLogger(os.Stderr, level)

	apiKey, err := config.ResolveAPIKey(cfg)
	if err != nil {
		return err
	}
	client := llm.NewGatewayClient(cfg.AI.BaseURL, apiKey, cfg.AI.Temperature, logger)

	store, err := runlog.NewStore(filepath.Join(state.Home(), "runs.db"))
	if err != nil {
		logger.Warn("run index unavailable", "error", err)
		store = nil
	} else {
		defer store.Close()
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sup := supervisor.New(cfg, client, store, logger)
	if err := sup.Start(ctx); err != nil {
		return err
	}
	<-sup.Ready()

	if runOnce {
		logger.Info("watchers ready; exiting (run-once)")
		sup.Shutdown()
		return nil
	}

	<-ctx.Done()
	sup.Shutdown()
	return nil
}
