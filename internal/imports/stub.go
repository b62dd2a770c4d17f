//go:build !cgo

package imports

import (
	"context"
	"errors"
)

// ErrNoCGO is returned when tree-sitter parsing is requested in a build
// without cgo.
var ErrNoCGO = errors.New("tree-sitter extraction requires CGO")

// TreeSitterExtractor is a stub when CGO is disabled.
type TreeSitterExtractor struct{}

// TreeSitterAvailable reports whether this build can parse with tree-sitter.
func TreeSitterAvailable() bool {
	return false
}

// NewTreeSitterExtractor always fails without CGO.
func NewTreeSitterExtractor(opts Options) (*TreeSitterExtractor, error) {
	return nil, ErrNoCGO
}

// NewDefaultExtractor falls back to the regex scanner without CGO.
func NewDefaultExtractor(opts Options) Extractor {
	return NewScanExtractor(opts)
}

// Name identifies the extractor.
func (e *TreeSitterExtractor) Name() string {
	return "treesitter"
}

// Extract always returns ErrNoCGO.
func (e *TreeSitterExtractor) Extract(ctx context.Context, path string) ([]Record, error) {
	return nil, ErrNoCGO
}
