// Package workspace detects npm/yarn/pnpm monorepo packages and resolves
// bare specifiers that name them.
package workspace

import (
	"encoding/json"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	cdderrors "cdd/internal/errors"
	"cdd/internal/paths"
)

var (
	rootEntries   = []string{"src/index.ts", "src/index.tsx", "index.ts", "index.js"}
	exportExts    = []string{".ts", ".tsx", ".js", ".jsx"}
	probeExts     = []string{"", ".ts", ".tsx", ".js", ".jsx"}
	probePrefixes = []string{"src", ""}
)

// PackageInfo is one workspace package manifest.
type PackageInfo struct {
	Name    string
	Path    string
	Main    string
	Module  string
	Exports *Exports
}

// Workspace is the set of named packages found under Root.
type Workspace struct {
	Root     string
	Packages map[string]*PackageInfo

	logger *slog.Logger
}

type manifest struct {
	Name       string          `json:"name"`
	Main       string          `json:"main"`
	Module     string          `json:"module"`
	Exports    json.RawMessage `json:"exports"`
	Workspaces json.RawMessage `json:"workspaces"`
}

type pnpmWorkspace struct {
	Packages []string `yaml:"packages"`
}

// Detect looks for package.json workspaces, then pnpm-workspace.yaml, under
// root. It returns nil, nil when root is not a workspace.
func Detect(root string, logger *slog.Logger) (*Workspace, error) {
	root = paths.Normalize(root)

	patterns, source, err := workspacePatterns(root, logger)
	if err != nil {
		return nil, err
	}
	if len(patterns) == 0 {
		logger.Debug("No workspace configuration found", "root", root)
		return nil, nil
	}
	logger.Debug("Found workspace patterns", "source", source, "patterns", patterns)

	ws := &Workspace{
		Root:     root,
		Packages: make(map[string]*PackageInfo),
		logger:   logger,
	}
	for _, dir := range expandPatterns(root, patterns, logger) {
		info, err := loadPackage(dir)
		if err != nil {
			logger.Warn("Skipping workspace package", "path", dir, "error", err)
			continue
		}
		if info == nil {
			logger.Debug("Skipping package without name", "path", dir)
			continue
		}
		if prev, ok := ws.Packages[info.Name]; ok {
			logger.Warn("Duplicate workspace package name", "name", info.Name, "kept", prev.Path, "ignored", info.Path)
			continue
		}
		ws.Packages[info.Name] = info
	}

	logger.Debug("Detected workspace", "root", root, "packages", len(ws.Packages))
	return ws, nil
}

// workspacePatterns reads the package globs. A root package.json that
// cannot be parsed is logged and pnpm-workspace.yaml is tried instead.
func workspacePatterns(root string, logger *slog.Logger) ([]string, string, error) {
	pkgPath := filepath.Join(root, "package.json")
	if data, err := os.ReadFile(pkgPath); err == nil {
		var m manifest
		if err := json.Unmarshal(data, &m); err != nil {
			logger.Warn("Cannot parse root package.json", "path", pkgPath, "error", err)
		} else if patterns := parseWorkspaces(m.Workspaces); len(patterns) > 0 {
			return patterns, "package.json", nil
		}
	}

	pnpmPath := filepath.Join(root, "pnpm-workspace.yaml")
	data, err := os.ReadFile(pnpmPath)
	if err != nil {
		return nil, "", nil
	}
	var pw pnpmWorkspace
	if err := yaml.Unmarshal(data, &pw); err != nil {
		return nil, "", cdderrors.New(cdderrors.ManifestInvalid, pnpmPath, "cannot parse pnpm-workspace.yaml", err)
	}
	return pw.Packages, "pnpm-workspace.yaml", nil
}

// parseWorkspaces accepts ["a/*"] and {"packages": ["a/*"]}.
func parseWorkspaces(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var obj struct {
		Packages []string `json:"packages"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Packages
	}
	return nil
}

// expandPatterns globs each pattern for package.json files and returns the
// sorted package directories. `!pattern` entries exclude directories.
func expandPatterns(root string, patterns []string, logger *slog.Logger) []string {
	var include, exclude []string
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if neg, ok := strings.CutPrefix(p, "!"); ok {
			exclude = append(exclude, cleanPattern(neg))
		} else if p != "" {
			include = append(include, cleanPattern(p))
		}
	}

	fsys := os.DirFS(root)
	seen := make(map[string]bool)
	var dirs []string
	for _, p := range include {
		matches, err := doublestar.Glob(fsys, path.Join(p, "package.json"))
		if err != nil {
			logger.Warn("Invalid workspace pattern", "pattern", p, "error", err)
			continue
		}
		for _, m := range matches {
			rel := path.Dir(m)
			if seen[rel] || rel == "." || isExcluded(rel, exclude) || hasNodeModules(rel) {
				continue
			}
			seen[rel] = true
			dirs = append(dirs, filepath.Join(root, filepath.FromSlash(rel)))
		}
	}
	sort.Strings(dirs)
	return dirs
}

func cleanPattern(p string) string {
	p = strings.TrimPrefix(filepath.ToSlash(p), "./")
	return strings.TrimSuffix(p, "/")
}

func isExcluded(rel string, exclude []string) bool {
	for _, p := range exclude {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

func hasNodeModules(rel string) bool {
	for _, seg := range strings.Split(rel, "/") {
		if seg == "node_modules" {
			return true
		}
	}
	return false
}

// loadPackage reads dir/package.json. A manifest without a name yields nil.
func loadPackage(dir string) (*PackageInfo, error) {
	pkgPath := filepath.Join(dir, "package.json")
	data, err := os.ReadFile(pkgPath)
	if err != nil {
		return nil, cdderrors.New(cdderrors.ReadFailed, pkgPath, "cannot read package.json", err)
	}
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, cdderrors.New(cdderrors.ManifestInvalid, pkgPath, "cannot parse package.json", err)
	}
	if m.Name == "" {
		return nil, nil
	}
	return &PackageInfo{
		Name:    m.Name,
		Path:    paths.Normalize(dir),
		Main:    m.Main,
		Module:  m.Module,
		Exports: parseExports(m.Exports),
	}, nil
}

// Names returns the package names in sorted order.
func (w *Workspace) Names() []string {
	if w == nil {
		return nil
	}
	names := make([]string, 0, len(w.Packages))
	for name := range w.Packages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve maps a bare specifier naming a workspace package, or a subpath of
// one, to an existing file.
func (w *Workspace) Resolve(specifier string) (string, bool) {
	if w == nil || len(w.Packages) == 0 {
		return "", false
	}
	if info, ok := w.Packages[specifier]; ok {
		return w.ResolveEntry(info)
	}

	// Longest matching name wins when package names nest.
	var best *PackageInfo
	for name, info := range w.Packages {
		if strings.HasPrefix(specifier, name+"/") && (best == nil || len(name) > len(best.Name)) {
			best = info
		}
	}
	if best == nil {
		return "", false
	}
	return w.resolveSubpath(best, strings.TrimPrefix(specifier, best.Name+"/"))
}

// ResolveEntry resolves the package root entry point.
func (w *Workspace) ResolveEntry(info *PackageInfo) (string, bool) {
	if v, ok := info.Exports.Lookup("."); ok {
		if p, ok := w.resolveExportValue(info, v, ""); ok {
			return p, true
		}
	}

	for _, field := range []string{info.Module, info.Main} {
		if field == "" {
			continue
		}
		if p, ok := isFile(filepath.Join(info.Path, filepath.FromSlash(field))); ok {
			return p, true
		}
	}

	for _, entry := range rootEntries {
		if p, ok := isFile(filepath.Join(info.Path, filepath.FromSlash(entry))); ok {
			return p, true
		}
	}
	return "", false
}

func (w *Workspace) resolveSubpath(info *PackageInfo, sub string) (string, bool) {
	if info.Exports.IsConditional() {
		if v, ok := info.Exports.Lookup("./" + sub); ok {
			if p, ok := w.resolveExportValue(info, v, ""); ok {
				return p, true
			}
		}
		if p, ok := w.resolveWildcardExport(info, sub); ok {
			return p, true
		}
	}

	for _, prefix := range probePrefixes {
		base := filepath.Join(info.Path, prefix, filepath.FromSlash(sub))
		for _, ext := range probeExts {
			if p, ok := isFile(base + ext); ok {
				return p, true
			}
			if p, ok := isFile(filepath.Join(base, "index"+ext)); ok {
				return p, true
			}
		}
	}
	return "", false
}

// resolveWildcardExport matches "./prefix*" keys, longest prefix first.
func (w *Workspace) resolveWildcardExport(info *PackageInfo, sub string) (string, bool) {
	type pattern struct {
		key, prefix, suffix string
	}
	var patterns []pattern
	for key := range info.Exports.Conditional {
		star := strings.Index(key, "*")
		if star < 0 {
			continue
		}
		patterns = append(patterns, pattern{
			key:    key,
			prefix: strings.TrimPrefix(key[:star], "./"),
			suffix: key[star+1:],
		})
	}
	sort.Slice(patterns, func(i, j int) bool {
		if len(patterns[i].prefix) != len(patterns[j].prefix) {
			return len(patterns[i].prefix) > len(patterns[j].prefix)
		}
		return patterns[i].key < patterns[j].key
	})

	for _, p := range patterns {
		if !strings.HasPrefix(sub, p.prefix) || !strings.HasSuffix(sub[len(p.prefix):], p.suffix) {
			continue
		}
		captured := strings.TrimSuffix(sub[len(p.prefix):], p.suffix)
		if resolved, ok := w.resolveExportValue(info, info.Exports.Conditional[p.key], captured); ok {
			return resolved, true
		}
	}
	return "", false
}

// resolveExportValue substitutes captured for `*` in v's target and accepts
// the target as written or with its extension swapped for a source one.
func (w *Workspace) resolveExportValue(info *PackageInfo, v ExportValue, captured string) (string, bool) {
	target, ok := v.Target()
	if !ok {
		return "", false
	}
	target = strings.Replace(target, "*", captured, -1)
	full := filepath.Join(info.Path, filepath.FromSlash(strings.TrimPrefix(target, "./")))

	if p, ok := isFile(full); ok {
		return p, true
	}
	stem := strings.TrimSuffix(full, filepath.Ext(full))
	for _, ext := range exportExts {
		if p, ok := isFile(stem + ext); ok {
			return p, true
		}
	}
	if w.logger != nil {
		w.logger.Debug("Export target missing", "package", info.Name, "target", target)
	}
	return "", false
}

func isFile(p string) (string, bool) {
	info, err := os.Stat(p)
	if err != nil || info.IsDir() {
		return "", false
	}
	return paths.Normalize(p), true
}
