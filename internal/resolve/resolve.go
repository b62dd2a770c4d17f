// Package resolve maps import specifiers to files: relative paths first,
// then tsconfig path aliases, then workspace packages.
package resolve

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"cdd/internal/paths"
	"cdd/internal/slogutil"
	"cdd/internal/tsconfig"
	"cdd/internal/workspace"
)

// DefaultCacheSize bounds the number of remembered stat results.
const DefaultCacheSize = 8192

type entryKind uint8

const (
	missing entryKind = iota
	regular
	directory
)

// Probe finds the file a candidate base path refers to. It remembers stat
// results, so it must not outlive the run whose filesystem it observed.
type Probe struct {
	stats *lru.Cache[string, entryKind]
}

// NewProbe creates a probe with an LRU stat cache of the given size.
func NewProbe(size int) *Probe {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, entryKind](size)
	if err != nil {
		return &Probe{}
	}
	return &Probe{stats: cache}
}

func (p *Probe) stat(path string) entryKind {
	if p.stats != nil {
		if k, ok := p.stats.Get(path); ok {
			return k
		}
	}

	k := missing
	if info, err := os.Stat(path); err == nil {
		if info.IsDir() {
			k = directory
		} else {
			k = regular
		}
	}

	if p.stats != nil {
		p.stats.Add(path, k)
	}
	return k
}

// Find tries candidate as a file, then candidate+ext for each source
// extension, then candidate/index+ext. The match is normalized.
func (p *Probe) Find(candidate string) (string, bool) {
	if p.stat(candidate) == regular {
		return paths.Normalize(candidate), true
	}
	for _, ext := range paths.Extensions {
		if p.stat(candidate+ext) == regular {
			return paths.Normalize(candidate + ext), true
		}
	}
	if p.stat(candidate) == directory {
		for _, ext := range paths.Extensions {
			index := filepath.Join(candidate, "index"+ext)
			if p.stat(index) == regular {
				return paths.Normalize(index), true
			}
		}
	}
	return "", false
}

// Resolver resolves specifiers for one analysis run. The alias table and
// workspace are read-only after construction.
type Resolver struct {
	aliases   *tsconfig.PathAliases
	workspace *workspace.Workspace
	probe     *Probe
	logger    *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger used for unresolved specifier notes.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) { r.logger = logger }
}

// WithProbe replaces the default probe.
func WithProbe(p *Probe) Option {
	return func(r *Resolver) { r.probe = p }
}

// New creates a resolver. aliases and ws may be nil.
func New(aliases *tsconfig.PathAliases, ws *workspace.Workspace, opts ...Option) *Resolver {
	r := &Resolver{aliases: aliases, workspace: ws}
	for _, opt := range opts {
		opt(r)
	}
	if r.probe == nil {
		r.probe = NewProbe(DefaultCacheSize)
	}
	if r.logger == nil {
		r.logger = slogutil.NewDiscardLogger()
	}
	return r
}

// Resolve returns the file that specifier, written in baseFile, refers to.
func (r *Resolver) Resolve(baseFile, specifier string) (string, bool) {
	if specifier == "" {
		return "", false
	}

	if isRelative(specifier) {
		candidate := filepath.Join(filepath.Dir(baseFile), filepath.FromSlash(specifier))
		if p, ok := r.probe.Find(candidate); ok {
			return p, true
		}
		r.logger.Debug("Unresolved relative import", "from", baseFile, "specifier", specifier)
		return "", false
	}

	for _, candidate := range r.aliases.Candidates(specifier) {
		if p, ok := r.probe.Find(candidate); ok {
			return p, true
		}
	}

	if p, ok := r.workspace.Resolve(specifier); ok {
		return paths.Normalize(p), true
	}

	r.logger.Debug("Unresolved import", "from", baseFile, "specifier", specifier)
	return "", false
}

func isRelative(specifier string) bool {
	return specifier == "." || specifier == ".." ||
		strings.HasPrefix(specifier, "./") || strings.HasPrefix(specifier, "../")
}
