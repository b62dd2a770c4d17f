// Package tsconfig loads compiler path aliases (baseUrl and paths) from a
// tsconfig.json and its extends chain.
package tsconfig

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tailscale/hujson"

	cdderrors "cdd/internal/errors"
)

// PathAliases is the merged alias table of a config and its ancestors.
type PathAliases struct {
	// BaseURL is absolute, or empty when no config in the chain sets it.
	BaseURL string
	// Paths maps a pattern ("@/*", "config") to replacement templates.
	Paths map[string][]string
	// ConfigDir is the directory of the root config. Templates resolve
	// against the directory that declared them when BaseURL is empty.
	ConfigDir string

	declaredIn map[string]string
	wildcards  []string
	indexed    bool
}

// New builds an alias table directly, for callers that do not read a file.
func New(baseURL, configDir string, paths map[string][]string) *PathAliases {
	a := &PathAliases{BaseURL: baseURL, Paths: paths, ConfigDir: configDir}
	if a.Paths == nil {
		a.Paths = make(map[string][]string)
	}
	a.index()
	return a
}

type rawConfig struct {
	Extends         json.RawMessage `json:"extends"`
	CompilerOptions *struct {
		BaseURL *string             `json:"baseUrl"`
		Paths   map[string][]string `json:"paths"`
	} `json:"compilerOptions"`
}

// Load reads the config at path, or path/tsconfig.json when path is a
// directory. Ancestors that cannot be read or parsed are logged and skipped.
func Load(path string, logger *slog.Logger) (*PathAliases, error) {
	configPath := path
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		configPath = filepath.Join(path, "tsconfig.json")
	}
	if _, err := os.Stat(configPath); err != nil {
		return nil, cdderrors.New(cdderrors.ConfigNotFound, configPath, "tsconfig not found", err)
	}

	abs, err := filepath.Abs(configPath)
	if err != nil {
		abs = configPath
	}

	l := &loader{logger: logger, visiting: make(map[string]bool)}
	aliases := &PathAliases{
		Paths:     make(map[string][]string),
		ConfigDir: filepath.Dir(abs),
	}
	if err := l.load(abs, aliases); err != nil {
		return nil, err
	}
	aliases.index()

	logger.Debug("Loaded tsconfig",
		"path", abs,
		"baseUrl", aliases.BaseURL,
		"patterns", len(aliases.Paths),
	)
	return aliases, nil
}

type loader struct {
	logger   *slog.Logger
	visiting map[string]bool
}

// load applies the extends chain of path onto acc, then path's own options.
// Ancestor failures are logged; extends cycles always propagate.
func (l *loader) load(path string, acc *PathAliases) error {
	if l.visiting[path] {
		return cdderrors.New(cdderrors.ConfigCycle, path, "circular tsconfig extends", nil)
	}
	l.visiting[path] = true
	defer delete(l.visiting, path)

	data, err := os.ReadFile(path)
	if err != nil {
		return cdderrors.New(cdderrors.ConfigInvalid, path, "cannot read tsconfig", err)
	}

	// tsconfig allows comments and trailing commas.
	data, err = hujson.Standardize(data)
	if err != nil {
		return cdderrors.New(cdderrors.ConfigInvalid, path, "cannot parse tsconfig", err)
	}
	var cfg rawConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cdderrors.New(cdderrors.ConfigInvalid, path, "cannot parse tsconfig", err)
	}

	dir := filepath.Dir(path)
	for _, ext := range extendsList(cfg.Extends) {
		parent, ok := resolveExtends(ext, dir)
		if !ok {
			l.logger.Warn("Cannot resolve tsconfig extends", "path", path, "extends", ext)
			continue
		}
		if err := l.load(parent, acc); err != nil {
			if cdderrors.HasCode(err, cdderrors.ConfigCycle) {
				return err
			}
			l.logger.Warn("Skipping tsconfig ancestor", "path", parent, "error", err)
		}
	}

	if cfg.CompilerOptions == nil {
		return nil
	}
	if cfg.CompilerOptions.BaseURL != nil {
		acc.BaseURL = filepath.Join(dir, *cfg.CompilerOptions.BaseURL)
	}
	for pattern, targets := range cfg.CompilerOptions.Paths {
		acc.Paths[pattern] = append([]string(nil), targets...)
		if acc.declaredIn == nil {
			acc.declaredIn = make(map[string]string)
		}
		acc.declaredIn[pattern] = dir
	}
	return nil
}

// extendsList accepts `"extends": "x"` and `"extends": ["x", "y"]`.
func extendsList(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var one string
	if err := json.Unmarshal(raw, &one); err == nil {
		if one == "" {
			return nil
		}
		return []string{one}
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err == nil {
		return many
	}
	return nil
}

func resolveExtends(ext, dir string) (string, bool) {
	var candidates []string
	if strings.HasPrefix(ext, ".") || filepath.IsAbs(ext) {
		base := ext
		if !filepath.IsAbs(base) {
			base = filepath.Join(dir, ext)
		}
		if filepath.Ext(base) == ".json" {
			candidates = append(candidates, base)
		} else {
			candidates = append(candidates, base+".json")
		}
		candidates = append(candidates, filepath.Join(base, "tsconfig.json"))
	} else {
		base := filepath.Join(dir, "node_modules", filepath.FromSlash(ext))
		candidates = append(candidates, base, base+".json", filepath.Join(base, "tsconfig.json"))
	}

	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c, true
		}
	}
	return "", false
}

func (a *PathAliases) index() {
	a.wildcards = wildcardPatterns(a.Paths)
	a.indexed = true
}

// wildcardPatterns orders the `*` patterns: longest prefix first, then text.
func wildcardPatterns(paths map[string][]string) []string {
	var patterns []string
	for pattern := range paths {
		if strings.Contains(pattern, "*") {
			patterns = append(patterns, pattern)
		}
	}
	sort.Slice(patterns, func(i, j int) bool {
		pi := patterns[i][:strings.Index(patterns[i], "*")]
		pj := patterns[j][:strings.Index(patterns[j], "*")]
		if len(pi) != len(pj) {
			return len(pi) > len(pj)
		}
		return patterns[i] < patterns[j]
	})
	return patterns
}

// Candidates returns the base paths that specifier may refer to, in the order
// they should be probed: exact patterns, wildcard patterns, then baseUrl.
// The caller probes each candidate for extensions and index files.
func (a *PathAliases) Candidates(specifier string) []string {
	if a == nil || specifier == "" || strings.HasPrefix(specifier, ".") || strings.HasPrefix(specifier, "/") {
		return nil
	}
	wildcards := a.wildcards
	if !a.indexed {
		wildcards = wildcardPatterns(a.Paths)
	}

	var out []string
	if !strings.Contains(specifier, "*") {
		for _, target := range a.Paths[specifier] {
			out = append(out, a.template(specifier, target))
		}
	}

	for _, pattern := range wildcards {
		star := strings.Index(pattern, "*")
		prefix, suffix := pattern[:star], pattern[star+1:]
		if len(specifier) < len(prefix)+len(suffix) ||
			!strings.HasPrefix(specifier, prefix) || !strings.HasSuffix(specifier, suffix) {
			continue
		}
		captured := specifier[len(prefix) : len(specifier)-len(suffix)]
		for _, target := range a.Paths[pattern] {
			out = append(out, a.template(pattern, strings.Replace(target, "*", captured, 1)))
		}
	}

	if a.BaseURL != "" {
		out = append(out, filepath.Join(a.BaseURL, filepath.FromSlash(specifier)))
	}
	return out
}

func (a *PathAliases) template(pattern, target string) string {
	target = filepath.FromSlash(target)
	if filepath.IsAbs(target) {
		return filepath.Clean(target)
	}
	base := a.BaseURL
	if base == "" {
		base = a.ConfigDir
		if dir, ok := a.declaredIn[pattern]; ok {
			base = dir
		}
	}
	return filepath.Join(base, target)
}

// String summarizes the table for debug logs.
func (a *PathAliases) String() string {
	return fmt.Sprintf("PathAliases{baseUrl=%q patterns=%d dir=%q}", a.BaseURL, len(a.Paths), a.ConfigDir)
}
