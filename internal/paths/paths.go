// Package paths normalizes file paths so that graph identity is stable
// across machines and checkout locations.
package paths

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"
)

// Extensions lists the supported source extensions in resolution priority order.
var Extensions = []string{".tsx", ".ts", ".jsx", ".js", ".cjs", ".mjs"}

// IsSourceFile reports whether path carries one of the supported extensions.
func IsSourceFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Normalize converts a path to its absolute, cleaned, symlink-resolved form.
// - Relative paths are made absolute against the working directory
// - Symlinks are resolved when the path exists
// - A path that does not exist is returned cleaned but otherwise untouched
func Normalize(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = filepath.Clean(path)
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return abs
	}
	return resolved
}

// RelativeString returns path relative to root with forward slashes.
// Paths outside root are returned in slash form unchanged.
func RelativeString(path string, root string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// CleanRelative normalizes a user-written relative path ("./src\\a.ts") to
// the slash form produced by RelativeString ("src/a.ts").
func CleanRelative(p string) string {
	p = strings.TrimSpace(strings.ReplaceAll(p, "\\", "/"))
	if p == "" {
		return ""
	}
	cleaned := filepath.ToSlash(filepath.Clean(filepath.FromSlash(p)))
	return strings.TrimPrefix(cleaned, "./")
}

// HashStrings hashes each value followed by a newline with SHA-256 and
// returns the first n lowercase hex characters.
func HashStrings(values []string, n int) string {
	h := sha256.New()
	for _, v := range values {
		h.Write([]byte(v))
		h.Write([]byte{'\n'})
	}
	sum := hex.EncodeToString(h.Sum(nil))
	if n > len(sum) {
		n = len(sum)
	}
	return sum[:n]
}
