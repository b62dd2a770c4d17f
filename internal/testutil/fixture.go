// Package testutil builds throwaway JS/TS projects for tests.
package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Project is a fixture tree written under a test's temp directory.
type Project struct {
	// Root is the absolute, symlink-resolved project directory.
	Root string
}

// NewProject writes files (relative slash paths to contents) into a fresh
// temp directory, failing the test on error.
func NewProject(t *testing.T, files map[string]string) *Project {
	t.Helper()

	root := t.TempDir()
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}

	p := &Project{Root: root}
	for rel, content := range files {
		p.Write(t, rel, content)
	}
	return p
}

// Write creates or replaces one file, creating parent directories.
func (p *Project) Write(t *testing.T, rel, content string) string {
	t.Helper()

	path := p.Path(rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("Failed to create directory for %s: %v", rel, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write fixture %s: %v", rel, err)
	}
	return path
}

// Path returns the absolute path of a project-relative slash path.
func (p *Project) Path(rel string) string {
	return filepath.Join(p.Root, filepath.FromSlash(rel))
}

// Paths maps project-relative slash paths to absolute paths.
func (p *Project) Paths(rels ...string) []string {
	out := make([]string, len(rels))
	for i, rel := range rels {
		out[i] = p.Path(rel)
	}
	return out
}

// Redact replaces the project root in s with <root> and uses forward slashes,
// so output can be compared across machines.
func (p *Project) Redact(s string) string {
	s = strings.ReplaceAll(s, p.Root, "<root>")
	return strings.ReplaceAll(s, "\\", "/")
}
