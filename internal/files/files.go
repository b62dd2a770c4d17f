// Package files collects the JS/TS sources under an analysis root.
package files

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	cdderrors "cdd/internal/errors"
	"cdd/internal/paths"
)

// DefaultExclude is the directory list used when none is configured.
var DefaultExclude = []string{"node_modules"}

// Collect walks root and returns every source file, normalized and sorted.
// Directories whose base name is in exclude are not entered. Unreadable
// entries below root are skipped; only an unusable root is an error.
func Collect(root string, exclude []string) ([]string, error) {
	root = paths.Normalize(root)

	info, err := os.Stat(root)
	if err != nil {
		return nil, cdderrors.New(cdderrors.RootInvalid, root, "analysis root does not exist", err)
	}
	if !info.IsDir() {
		return nil, cdderrors.New(cdderrors.RootInvalid, root, "analysis root is not a directory", nil)
	}

	if exclude == nil {
		exclude = DefaultExclude
	}
	skip := make(map[string]bool, len(exclude))
	for _, name := range exclude {
		skip[name] = true
	}

	var out []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if path != root && skip[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}

		if !paths.IsSourceFile(path) {
			return nil
		}
		// Symlinked directories are not followed; symlinked files resolve.
		out = append(out, paths.Normalize(path))
		return nil
	})
	if err != nil {
		return nil, cdderrors.New(cdderrors.RootInvalid, root, "cannot walk analysis root", err)
	}

	sort.Strings(out)
	return dedupeSorted(out), nil
}

// Excluded reports whether any directory component of path, relative to
// root, is in exclude.
func Excluded(path, root string, exclude []string) bool {
	if exclude == nil {
		exclude = DefaultExclude
	}
	rel, err := filepath.Rel(root, filepath.Dir(path))
	if err != nil {
		return false
	}
	for rel != "." && rel != string(filepath.Separator) && rel != "" {
		base := filepath.Base(rel)
		for _, name := range exclude {
			if base == name {
				return true
			}
		}
		rel = filepath.Dir(rel)
	}
	return false
}

func dedupeSorted(in []string) []string {
	if len(in) < 2 {
		return in
	}
	out := in[:1]
	for _, s := range in[1:] {
		if s != out[len(out)-1] {
			out = append(out, s)
		}
	}
	return out
}
