//go:build cgo

package imports

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	cdderrors "cdd/internal/errors"
)

// TreeSitterExtractor parses files with tree-sitter and walks the syntax tree
// for import, re-export, require and dynamic import nodes.
type TreeSitterExtractor struct {
	opts    Options
	parsers sync.Pool
}

// TreeSitterAvailable reports whether this build can parse with tree-sitter.
func TreeSitterAvailable() bool {
	return true
}

// NewTreeSitterExtractor creates a tree-sitter backed extractor.
// A *sitter.Parser is not safe for concurrent use, so parsers are pooled.
func NewTreeSitterExtractor(opts Options) (*TreeSitterExtractor, error) {
	e := &TreeSitterExtractor{opts: opts}
	e.parsers.New = func() any { return sitter.NewParser() }
	return e, nil
}

// NewDefaultExtractor returns the tree-sitter extractor.
func NewDefaultExtractor(opts Options) Extractor {
	e, _ := NewTreeSitterExtractor(opts)
	return e
}

// Name identifies the extractor.
func (e *TreeSitterExtractor) Name() string {
	return "treesitter/" + e.opts.Fingerprint()
}

// Extract parses path and returns its import records.
func (e *TreeSitterExtractor) Extract(ctx context.Context, path string) ([]Record, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, cdderrors.New(cdderrors.ReadFailed, path, "cannot read source file", err)
	}
	return e.ExtractSource(ctx, path, source)
}

// ExtractSource parses source, choosing the grammar from path's extension.
func (e *TreeSitterExtractor) ExtractSource(ctx context.Context, path string, source []byte) ([]Record, error) {
	parser := e.parsers.Get().(*sitter.Parser)
	defer e.parsers.Put(parser)

	parser.SetLanguage(languageFor(path))
	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, cdderrors.New(cdderrors.ParseFailed, path, "tree-sitter parse failed", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, cdderrors.New(cdderrors.ParseFailed, path, "source contains syntax errors", nil)
	}

	c := &collector{opts: e.opts, source: source}
	c.walk(root)
	return c.records, nil
}

// languageFor maps an extension to a grammar. JSX parses with the
// javascript grammar; unknown extensions get the most permissive (tsx).
func languageFor(path string) *sitter.Language {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ts", ".mts", ".cts":
		return typescript.GetLanguage()
	case ".js", ".jsx", ".mjs", ".cjs":
		return javascript.GetLanguage()
	default:
		return tsx.GetLanguage()
	}
}

type collector struct {
	opts    Options
	source  []byte
	records []Record
}

func (c *collector) walk(n *sitter.Node) {
	switch n.Type() {
	case "import_statement":
		c.importStatement(n)
	case "export_statement":
		c.exportStatement(n)
	case "call_expression":
		c.callExpression(n)
	}

	for i := 0; i < int(n.NamedChildCount()); i++ {
		c.walk(n.NamedChild(i))
	}
}

func (c *collector) add(n *sitter.Node, spec string, kind Kind, typeOnly bool) {
	if !c.opts.keep(typeOnly) {
		return
	}
	c.records = append(c.records, Record{
		Source:   spec,
		Line:     int(n.StartPoint().Row) + 1,
		Text:     n.Content(c.source),
		TypeOnly: typeOnly,
		Kind:     kind,
	})
}

func (c *collector) importStatement(n *sitter.Node) {
	if src := n.ChildByFieldName("source"); src != nil {
		c.add(n, c.stringValue(src), EsModule, hasKeyword(n, "type") || allSpecifiersTyped(n, "named_imports"))
		return
	}

	// import x = require('y')
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child.Type() != "import_require_clause" {
			continue
		}
		if src := child.ChildByFieldName("source"); src != nil {
			c.add(n, c.stringValue(src), CommonJs, hasKeyword(n, "type"))
		}
	}
}

func (c *collector) exportStatement(n *sitter.Node) {
	src := n.ChildByFieldName("source")
	if src == nil {
		return
	}
	c.add(n, c.stringValue(src), ReExport, hasKeyword(n, "type") || allSpecifiersTyped(n, "export_clause"))
}

func (c *collector) callExpression(n *sitter.Node) {
	fn := n.ChildByFieldName("function")
	args := n.ChildByFieldName("arguments")
	if fn == nil || args == nil || args.NamedChildCount() == 0 {
		return
	}

	first := args.NamedChild(0)
	if first.Type() != "string" {
		return
	}

	switch {
	case fn.Type() == "import":
		c.add(n, c.stringValue(first), Dynamic, false)
	case fn.Type() == "identifier" && fn.Content(c.source) == "require":
		c.add(n, c.stringValue(first), CommonJs, false)
	}
}

func (c *collector) stringValue(n *sitter.Node) string {
	s := n.Content(c.source)
	if len(s) >= 2 {
		return s[1 : len(s)-1]
	}
	return s
}

// hasKeyword reports whether n has the anonymous keyword child kw
// (`import type ...`, `export type ...`).
func hasKeyword(n *sitter.Node, kw string) bool {
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if !child.IsNamed() && child.Type() == kw {
			return true
		}
	}
	return false
}

// allSpecifiersTyped reports whether the statement's only bindings are a
// non-empty specifier list (named_imports / export_clause) whose every entry
// carries `type`. A default or namespace binding makes it a value import.
func allSpecifiersTyped(stmt *sitter.Node, listType string) bool {
	list := findList(stmt, listType)
	if list == nil {
		return false
	}

	if clause := list.Parent(); clause != nil && clause.Type() == "import_clause" {
		for i := 0; i < int(clause.NamedChildCount()); i++ {
			if clause.NamedChild(i).Type() != listType {
				return false
			}
		}
	}

	count := 0
	for i := 0; i < int(list.NamedChildCount()); i++ {
		spec := list.NamedChild(i)
		if spec.Type() != "import_specifier" && spec.Type() != "export_specifier" {
			continue
		}
		count++
		if !hasKeyword(spec, "type") {
			return false
		}
	}
	return count > 0
}

func findList(n *sitter.Node, listType string) *sitter.Node {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child.Type() == listType {
			return child
		}
		if child.Type() == "import_clause" {
			if found := findList(child, listType); found != nil {
				return found
			}
		}
	}
	return nil
}
