// Package imports defines the per-file import records consumed by the graph
// builder and the extractors that produce them from JS/TS source.
package imports

import (
	"context"
	"fmt"
)

// Kind is the syntactic form an import was written in.
type Kind int

const (
	// EsModule is `import { x } from './foo'` or `import './foo'`.
	EsModule Kind = iota
	// CommonJs is `require('./foo')`.
	CommonJs
	// Dynamic is `import('./foo')`.
	Dynamic
	// ReExport is `export * from './foo'` or `export { x } from './foo'`.
	ReExport
)

var kindNames = map[Kind]string{
	EsModule: "import",
	CommonJs: "require",
	Dynamic:  "dynamic import",
	ReExport: "re-export",
}

// String returns the user-facing name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// MarshalText encodes the kind by name so cached and reported records stay readable.
func (k Kind) MarshalText() ([]byte, error) {
	name, ok := kindNames[k]
	if !ok {
		return nil, fmt.Errorf("unknown import kind %d", int(k))
	}
	return []byte(name), nil
}

// UnmarshalText decodes a kind written by MarshalText.
func (k *Kind) UnmarshalText(text []byte) error {
	for kind, name := range kindNames {
		if name == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown import kind %q", string(text))
}

// Record is a single import statement found in a file.
type Record struct {
	// Source is the specifier, e.g. "./useUser" or "@acme/ui/button".
	Source string `json:"source"`
	// Line is 1-indexed.
	Line int `json:"line"`
	// Text is the statement (or call expression) as written.
	Text string `json:"text"`
	// TypeOnly is set when the statement only imports types.
	TypeOnly bool `json:"typeOnly,omitempty"`
	Kind     Kind `json:"kind"`
}

// Options controls which records an extractor emits.
type Options struct {
	// IgnoreTypeImports drops statements that only import types.
	IgnoreTypeImports bool
}

// Fingerprint identifies the options in cache keys.
func (o Options) Fingerprint() string {
	if o.IgnoreTypeImports {
		return "ignore-types"
	}
	return "all"
}

// Extractor produces the ordered import records of one file.
// Implementations must be safe for concurrent use by multiple goroutines.
type Extractor interface {
	// Name identifies the extractor in logs and cache keys.
	Name() string
	// Extract returns the records of path in source order.
	Extract(ctx context.Context, path string) ([]Record, error)
}

// keep reports whether a record survives the type-only policy.
func (o Options) keep(typeOnly bool) bool {
	return !(o.IgnoreTypeImports && typeOnly)
}

// Parser names accepted by NewExtractor.
const (
	ParserAuto       = "auto"
	ParserTreeSitter = "treesitter"
	ParserScan       = "scan"
)

// NewExtractor builds the extractor named by parser. "auto" (or "") picks
// tree-sitter when this build supports it and the scanner otherwise.
func NewExtractor(parser string, opts Options) (Extractor, error) {
	switch parser {
	case "", ParserAuto:
		return NewDefaultExtractor(opts), nil
	case ParserTreeSitter:
		e, err := NewTreeSitterExtractor(opts)
		if err != nil {
			return nil, err
		}
		return e, nil
	case ParserScan:
		return NewScanExtractor(opts), nil
	}
	return nil, fmt.Errorf("unknown parser %q (want %s, %s or %s)", parser, ParserAuto, ParserTreeSitter, ParserScan)
}
