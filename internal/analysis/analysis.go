// Package analysis runs one end-to-end detection pass over a project:
// collect files, resolve imports, build the graph, report cycles.
package analysis

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"cdd/internal/allowlist"
	"cdd/internal/cache"
	cdderrors "cdd/internal/errors"
	"cdd/internal/files"
	"cdd/internal/graph"
	"cdd/internal/imports"
	"cdd/internal/paths"
	"cdd/internal/resolve"
	"cdd/internal/tsconfig"
	"cdd/internal/workspace"
)

// Options configures a run.
type Options struct {
	Root    string
	Exclude []string

	IgnoreTypeImports bool

	// TSConfigPath is an explicit tsconfig file or directory. When empty,
	// <Root>/tsconfig.json is used if it exists.
	TSConfigPath string
	NoTSConfig   bool
	NoWorkspace  bool

	Allowed []allowlist.AllowedCycle

	// Workers bounds concurrent extraction; zero means GOMAXPROCS.
	Workers int

	// Parser selects the extractor when Extractor is nil.
	Parser string
	// Extractor overrides the parser. It must apply IgnoreTypeImports itself.
	Extractor imports.Extractor

	// Cache enables the on-disk extraction cache under Root.
	Cache bool
}

// Result is the outcome of one run.
type Result struct {
	RunID      string `json:"runId"`
	Root       string `json:"root"`
	TotalFiles int    `json:"totalFiles"`
	Nodes      int    `json:"nodes"`
	Edges      int    `json:"edges"`

	// Cycles excludes allowed cycles; AllCycles does not.
	Cycles       []graph.Cycle `json:"-"`
	AllCycles    []graph.Cycle `json:"-"`
	AllowedCount int           `json:"allowedCount"`

	// Hash is the aggregate hash of AllCycles, taken before allowlist
	// filtering, so a baseline hash stays valid as the allowlist changes.
	Hash string `json:"cyclesHash"`

	Duration time.Duration `json:"duration"`
	Cache    *cache.Stats  `json:"cache,omitempty"`
}

// Run performs one analysis pass. Missing or broken tsconfig and workspace
// manifests degrade to "no aliases" and "no workspace" with a warning; an
// invalid root and cancellation of ctx are the only errors.
func Run(ctx context.Context, opts Options, logger *slog.Logger) (*Result, error) {
	start := time.Now()
	runID := uuid.NewString()
	logger = logger.With("run", runID[:8])

	root := paths.Normalize(opts.Root)
	collected, err := files.Collect(root, opts.Exclude)
	if err != nil {
		return nil, err
	}
	logger.Info("Collected files", "count", len(collected), "root", root)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	aliases := loadAliases(root, opts, logger)
	ws := detectWorkspace(root, opts, logger)

	extractor, closeExtractor, cacheExtractor, err := buildExtractor(ctx, root, collected, opts, logger)
	if err != nil {
		return nil, err
	}
	defer closeExtractor()

	resolver := resolve.New(aliases, ws, resolve.WithLogger(logger))
	g, err := graph.Build(ctx, collected, extractor, resolver, opts.Workers, logger)
	if err != nil {
		return nil, err
	}
	stats := g.Stats()
	logger.Info("Built dependency graph", "nodes", stats.Nodes, "edges", stats.Edges)

	all := g.Cycles(root)
	hash := graph.AggregateHash(all)

	kept, removed := allowlist.Filter(all, opts.Allowed, root, logger)
	if removed > 0 {
		logger.Info("Filtered allowed cycles", "allowed", removed, "remaining", len(kept))
	}

	res := &Result{
		RunID:        runID,
		Root:         root,
		TotalFiles:   len(collected),
		Nodes:        stats.Nodes,
		Edges:        stats.Edges,
		Cycles:       kept,
		AllCycles:    all,
		AllowedCount: removed,
		Hash:         hash,
		Duration:     time.Since(start),
	}
	if cacheExtractor != nil {
		s := cacheExtractor.Stats()
		res.Cache = &s
		logger.Debug("Extraction cache", "hits", s.Hits, "misses", s.Misses, "errors", s.Errors)
	}

	logger.Info("Analysis completed", "cycles", len(kept), "hash", hash, "duration", res.Duration.Round(time.Millisecond))
	return res, nil
}

func loadAliases(root string, opts Options, logger *slog.Logger) *tsconfig.PathAliases {
	if opts.NoTSConfig {
		return nil
	}

	path := opts.TSConfigPath
	explicit := path != ""
	if !explicit {
		path = filepath.Join(root, "tsconfig.json")
		if _, err := os.Stat(path); err != nil {
			return nil
		}
	} else if !filepath.IsAbs(path) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}

	aliases, err := tsconfig.Load(path, logger)
	if err != nil {
		logger.Warn("Could not load tsconfig", "path", path, "code", cdderrors.CodeOf(err), "error", err)
		return nil
	}
	if !explicit {
		logger.Debug("Auto-detected tsconfig.json", "path", path)
	}
	return aliases
}

func detectWorkspace(root string, opts Options, logger *slog.Logger) *workspace.Workspace {
	if opts.NoWorkspace {
		return nil
	}
	ws, err := workspace.Detect(root, logger)
	if err != nil {
		logger.Warn("Could not detect workspace", "root", root, "code", cdderrors.CodeOf(err), "error", err)
		return nil
	}
	if ws != nil {
		logger.Info("Detected workspace", "packages", len(ws.Packages), "names", ws.Names())
	}
	return ws
}

// buildExtractor picks the extractor and, when enabled, wraps it with the
// on-disk cache. The returned func releases whatever was opened.
func buildExtractor(ctx context.Context, root string, collected []string, opts Options, logger *slog.Logger) (imports.Extractor, func(), *cache.CachingExtractor, error) {
	extractor := opts.Extractor
	if extractor == nil {
		e, err := imports.NewExtractor(opts.Parser, imports.Options{IgnoreTypeImports: opts.IgnoreTypeImports})
		if err != nil {
			return nil, nil, nil, err
		}
		extractor = e
	}
	logger.Debug("Using extractor", "name", extractor.Name())

	noop := func() {}
	if !opts.Cache {
		return extractor, noop, nil, nil
	}

	db, err := cache.Open(ctx, root, logger)
	if err != nil {
		logger.Warn("Extraction cache unavailable", "code", cdderrors.CacheUnavailable, "error", err)
		return extractor, noop, nil, nil
	}
	cached, err := cache.NewCachingExtractor(extractor, db, logger)
	if err != nil {
		_ = db.Close()
		logger.Warn("Extraction cache unavailable", "code", cdderrors.CacheUnavailable, "error", err)
		return extractor, noop, nil, nil
	}
	if removed, err := cached.Prune(ctx, collected); err != nil {
		logger.Warn("Failed to prune extraction cache", "error", err)
	} else if removed > 0 {
		logger.Debug("Pruned extraction cache", "removed", removed)
	}

	closeFn := func() {
		cached.Close()
		if err := db.Close(); err != nil {
			logger.Warn("Failed to close extraction cache", "error", err)
		}
	}
	return cached, closeFn, cached, nil
}
