package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"cdd/internal/analysis"
	"cdd/internal/config"
	"cdd/internal/report"
	"cdd/internal/watcher"
)

// watchedManifests are the files next to the root whose edits change how
// imports resolve.
var watchedManifests = []string{"tsconfig.json", "package.json", "pnpm-workspace.yaml", config.FileName}

// watchExtras lists the non-source files that trigger a re-run.
func watchExtras(root, tsconfigPath, cfgPath string) []string {
	seen := make(map[string]bool)
	var extras []string
	add := func(p string) {
		if p == "" || seen[p] {
			return
		}
		seen[p] = true
		extras = append(extras, p)
	}
	for _, name := range watchedManifests {
		add(filepath.Join(root, name))
	}
	if tsconfigPath != "" {
		if !filepath.IsAbs(tsconfigPath) {
			tsconfigPath = filepath.Join(root, tsconfigPath)
		}
		if info, err := os.Stat(tsconfigPath); err == nil && info.IsDir() {
			tsconfigPath = filepath.Join(tsconfigPath, "tsconfig.json")
		}
		add(tsconfigPath)
	}
	add(cfgPath)
	return extras
}

// runWatch analyzes root until ctx is done, re-reading the config file and
// re-running after every batch of changes.
func runWatch(ctx context.Context, cmd *cobra.Command, root, cfgPath string, logger *slog.Logger) error {
	stdout := cmd.OutOrStdout()
	st := report.NewStyles(stdout)

	settings, _, err := rootOpts.loadSettings(cmd, root, logger)
	if err != nil {
		return err
	}

	w := watcher.New(watcher.Config{
		Root:    root,
		Exclude: settings.Exclude,
		Extra:   watchExtras(root, settings.TSConfigPath, cfgPath),
	}, logger)

	return w.Run(ctx, func(ctx context.Context, changes []watcher.Change) {
		if len(changes) > 0 {
			logger.Info("Change detected", "files", len(changes), "first", changes[0].Path, "type", changes[0].Type)
			if s, _, err := rootOpts.loadSettings(cmd, root, logger); err != nil {
				logger.Warn("Keeping previous config", "error", err)
			} else {
				settings = s
			}
		}

		res, err := analysis.Run(ctx, rootOpts.analysisOptions(root, settings), logger)
		if err != nil {
			if ctx.Err() == nil {
				logger.Error("Analysis failed", "error", err)
			}
			return
		}
		if err := report.WriteText(stdout, res, st); err != nil {
			logger.Error("Could not write report", "error", err)
			return
		}
		verdict := report.Check(res, settings.ExpectedCycles, settings.ExpectedHash)
		if err := report.WriteVerdict(stdout, verdict, st); err != nil {
			logger.Error("Could not write report", "error", err)
		}
	})
}
