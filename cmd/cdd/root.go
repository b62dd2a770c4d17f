package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"cdd/internal/analysis"
	"cdd/internal/config"
	cdderrors "cdd/internal/errors"
	"cdd/internal/imports"
	"cdd/internal/paths"
	"cdd/internal/report"
	"cdd/internal/slogutil"
	"cdd/internal/version"
)

type rootOptions struct {
	exclude           []string
	ignoreTypeImports bool
	expectedCycles    int
	expectedHash      string
	allowlist         string
	tsconfig          string
	noTSConfig        bool
	noWorkspace       bool
	json              bool
	init              bool
	updateHash        bool
	watch             bool
	cache             bool
	workers           int
	parser            string
	logLevel          string
	logFormat         string
	verbose           int
	quiet             bool
}

var rootOpts rootOptions

var rootCmd = &cobra.Command{
	Use:   "cdd [dir]",
	Short: "cdd - circular dependency detector for JavaScript and TypeScript",
	Long: `cdd scans a JavaScript/TypeScript project, builds the graph of relative,
path-alias and workspace imports, and reports every circular dependency.

Examples:
  cdd                          # Analyze the current directory
  cdd ./app -n 2               # Expect exactly two cycles
  cdd --expected-hash 3f2a...  # Fail when the set of cycles changes
  cdd --init                   # Accept the current cycles as a baseline
  cdd --watch                  # Re-run on every change`,
	Args:          cobra.MaximumNArgs(1),
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runRoot,
}

func init() {
	rootCmd.SetVersionTemplate("cdd version {{.Version}}\n")

	f := rootCmd.Flags()
	f.StringSliceVarP(&rootOpts.exclude, "exclude", "e", nil, "Directory names to skip (repeatable)")
	f.BoolVar(&rootOpts.ignoreTypeImports, "ignore-type-imports", false, "Ignore type-only imports and exports")
	f.IntVarP(&rootOpts.expectedCycles, "expected-cycles", "n", 0, "Number of cycles expected")
	f.StringVar(&rootOpts.expectedHash, "expected-hash", "", "Expected cycles hash")
	f.StringVar(&rootOpts.allowlist, "allowlist", "", "Allowlist file (.toml, .yaml, .json or text)")
	f.StringVar(&rootOpts.tsconfig, "tsconfig", "", "Path to tsconfig.json (default: <dir>/tsconfig.json)")
	f.BoolVar(&rootOpts.noTSConfig, "no-tsconfig", false, "Do not resolve tsconfig path aliases")
	f.BoolVar(&rootOpts.noWorkspace, "no-workspace", false, "Do not resolve workspace packages")
	f.BoolVar(&rootOpts.json, "json", false, "Print the result as JSON")
	f.BoolVar(&rootOpts.init, "init", false, "Write .cddrc.json accepting the current cycles")
	f.BoolVar(&rootOpts.updateHash, "update-hash", false, "Store the current cycles hash in the config file")
	f.BoolVarP(&rootOpts.watch, "watch", "w", false, "Re-run the analysis when files change")
	f.BoolVar(&rootOpts.cache, "cache", false, "Cache extracted imports under <dir>/.cdd")
	f.IntVar(&rootOpts.workers, "workers", 0, "Parallel parsers (default: number of CPUs)")
	f.StringVar(&rootOpts.parser, "parser", imports.ParserAuto, "Import parser: auto, treesitter or scan")
	f.StringVar(&rootOpts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	f.StringVar(&rootOpts.logFormat, "log-format", "text", "Log format on stderr: text or json")

	rootCmd.PersistentFlags().CountVarP(&rootOpts.verbose, "verbose", "v", "Verbose logging")
	rootCmd.PersistentFlags().BoolVarP(&rootOpts.quiet, "quiet", "q", false, "Suppress logs")

	rootCmd.MarkFlagsMutuallyExclusive("init", "update-hash")
	rootCmd.MarkFlagsMutuallyExclusive("watch", "json")
	rootCmd.MarkFlagsMutuallyExclusive("watch", "init")
	rootCmd.MarkFlagsMutuallyExclusive("watch", "update-hash")
}

// configFlags returns the flags that override the config file. Flags the
// user did not set are left empty.
func (o *rootOptions) configFlags(cmd *cobra.Command) config.Flags {
	flags := config.Flags{
		Exclude:           o.exclude,
		IgnoreTypeImports: o.ignoreTypeImports,
		TSConfigPath:      o.tsconfig,
		ExpectedHash:      o.expectedHash,
		AllowlistPath:     o.allowlist,
		Cache:             o.cache,
		LogLevel:          o.logLevel,
	}
	if cmd.Flags().Changed("expected-cycles") {
		n := o.expectedCycles
		flags.ExpectedCycles = &n
	}
	if cmd.Flags().Changed("workers") {
		n := o.workers
		flags.Workers = &n
	}
	return flags
}

func (o *rootOptions) analysisOptions(root string, s *config.Settings) analysis.Options {
	return analysis.Options{
		Root:              root,
		Exclude:           s.Exclude,
		IgnoreTypeImports: s.IgnoreTypeImports,
		TSConfigPath:      s.TSConfigPath,
		NoTSConfig:        o.noTSConfig,
		NoWorkspace:       o.noWorkspace,
		Allowed:           s.Allowed,
		Workers:           s.Workers,
		Parser:            o.parser,
		Cache:             s.Cache,
	}
}

// level picks the level from -q, -v, the configured level, then the
// output mode. JSON output keeps stderr down to warnings.
func (o *rootOptions) level(configured string) slog.Level {
	switch {
	case o.quiet || o.verbose > 0:
		return slogutil.LevelFromVerbosity(o.verbose, o.quiet)
	case configured != "":
		return slogutil.LevelFromString(configured)
	case o.json:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// newLogger writes to w in the selected format. Watch mode keeps
// timestamps since it runs for a long time.
func (o *rootOptions) newLogger(w io.Writer, level slog.Level) *slog.Logger {
	switch {
	case o.logFormat == "json":
		return slogutil.NewJSONLogger(w, level)
	case o.watch:
		return slogutil.NewLogger(w, level)
	default:
		return slogutil.NewTerminalLogger(w, level)
	}
}

// checkRoot validates dir and returns its normalized absolute path.
func checkRoot(dir string) (string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return "", cdderrors.New(cdderrors.RootInvalid, dir, "directory does not exist", err)
	}
	if !info.IsDir() {
		return "", cdderrors.New(cdderrors.RootInvalid, dir, "not a directory", nil)
	}
	return paths.Normalize(dir), nil
}

// loadSettings reads the config file above root and merges the flags into
// it. It returns the config file path, or "" when there is none.
func (o *rootOptions) loadSettings(cmd *cobra.Command, root string, logger *slog.Logger) (*config.Settings, string, error) {
	cfg, cfgPath, err := config.Load(root, logger)
	if err != nil {
		return nil, "", err
	}
	if cfgPath != "" {
		logger.Debug("Loaded config", "path", cfgPath)
	}
	return config.Merge(o.configFlags(cmd), cfg, logger), cfgPath, nil
}

func runRoot(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}
	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()

	logger := rootOpts.newLogger(stderr, rootOpts.level(""))
	if cwd, err := os.Getwd(); err == nil {
		if err := config.LoadDotEnv(cwd); err != nil {
			logger.Warn("Could not load .env", "error", err)
		}
	}

	root, err := checkRoot(dir)
	if err != nil {
		return err
	}

	settings, cfgPath, err := rootOpts.loadSettings(cmd, root, logger)
	if err != nil {
		return err
	}
	logger = rootOpts.newLogger(stderr, rootOpts.level(settings.LogLevel))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if rootOpts.watch {
		return runWatch(ctx, cmd, root, cfgPath, logger)
	}

	logger.Info("Starting analysis", "dir", dir)
	res, err := analysis.Run(ctx, rootOpts.analysisOptions(root, settings), logger)
	if err != nil {
		return err
	}

	switch {
	case rootOpts.init:
		return writeInit(stdout, stderr, res)
	case rootOpts.updateHash:
		return writeUpdateHash(stdout, stderr, res)
	}

	verdict := report.Check(res, settings.ExpectedCycles, settings.ExpectedHash)
	if rootOpts.json {
		if err := report.WriteJSON(stdout, res); err != nil {
			return err
		}
	} else {
		st := report.NewStyles(stdout)
		if err := report.WriteText(stdout, res, st); err != nil {
			return err
		}
		if !rootOpts.quiet {
			if err := report.WriteVerdict(stdout, verdict, st); err != nil {
				return err
			}
		}
	}

	if code := verdict.ExitCode(); code != 0 {
		return &exitError{code: code}
	}
	return nil
}

// writeInit records the remaining cycles as the accepted baseline.
func writeInit(stdout, stderr io.Writer, res *analysis.Result) error {
	path, err := config.Init(res.Root, res.Cycles)
	if err != nil {
		return err
	}
	if rootOpts.json {
		if err := report.WriteJSON(stdout, res); err != nil {
			return err
		}
		fmt.Fprintf(stderr, "Initialized %s\n", path)
		return nil
	}
	st := report.NewStyles(stdout)
	fmt.Fprintf(stdout, "%s Initialized %s with %d allowed cycle(s)\n", st.OK.Render("OK"), path, len(res.Cycles))
	fmt.Fprintln(stdout, "All current cycles are now in the allowlist. New cycles will cause failures.")
	return nil
}

// writeUpdateHash stores the cycles hash in the config file.
func writeUpdateHash(stdout, stderr io.Writer, res *analysis.Result) error {
	path, err := config.UpdateHash(res.Root, res.Hash)
	if err != nil {
		return err
	}
	if rootOpts.json {
		if err := report.WriteJSON(stdout, res); err != nil {
			return err
		}
		fmt.Fprintf(stderr, "Updated expected_hash in %s\n", path)
		return nil
	}
	st := report.NewStyles(stdout)
	if err := report.WriteText(stdout, res, st); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s Updated expected_hash to %s in %s\n", st.OK.Render("OK"), st.Good.Render(res.Hash), path)
	return nil
}
