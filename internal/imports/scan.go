package imports

import (
	"bytes"
	"context"
	"os"
	"regexp"
	"sort"
	"strings"

	cdderrors "cdd/internal/errors"
)

// Import statement patterns, applied to comment-blanked source so that
// statements spanning several lines are still matched. Matches starting
// inside a string or template literal are dropped.
var (
	esImportRe   = regexp.MustCompile(`\bimport\s+([^;'"()]*?)\s*\bfrom\s*['"]([^'"\n]+)['"]`)
	sideEffectRe = regexp.MustCompile(`\bimport\s*['"]([^'"\n]+)['"]`)
	reExportRe   = regexp.MustCompile(`\bexport\s+((?:type\s+)?(?:\*(?:\s+as\s+[\w$]+)?|\{[^}]*\}))\s*from\s*['"]([^'"\n]+)['"]`)
	requireRe    = regexp.MustCompile(`\brequire\s*\(\s*['"]([^'"\n]+)['"]\s*\)`)
	dynamicRe    = regexp.MustCompile(`\bimport\s*\(\s*['"]([^'"\n]+)['"]\s*\)`)
)

// ScanExtractor finds imports with regular expressions. It needs no cgo and
// never fails on malformed source, at the cost of missing exotic syntax.
type ScanExtractor struct {
	opts Options
}

// NewScanExtractor creates a regex based extractor.
func NewScanExtractor(opts Options) *ScanExtractor {
	return &ScanExtractor{opts: opts}
}

// Name identifies the extractor.
func (s *ScanExtractor) Name() string {
	return "scan/" + s.opts.Fingerprint()
}

// Extract reads path and returns its import records.
func (s *ScanExtractor) Extract(ctx context.Context, path string) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, cdderrors.New(cdderrors.ReadFailed, path, "cannot read source file", err)
	}
	return s.ExtractSource(source), nil
}

type located struct {
	offset int
	rec    Record
}

// ExtractSource returns the import records of source in source order.
func (s *ScanExtractor) ExtractSource(source []byte) []Record {
	blanked, literals := maskSource(source)
	var found []located

	add := func(start, end int, spec string, kind Kind, typeOnly bool) {
		if !s.opts.keep(typeOnly) || inLiteral(literals, start) || isMemberAccess(blanked, start) {
			return
		}
		if end < len(source) && source[end] == ';' && (kind == EsModule || kind == ReExport) {
			end++
		}
		found = append(found, located{
			offset: start,
			rec: Record{
				Source:   spec,
				Line:     bytes.Count(source[:start], []byte{'\n'}) + 1,
				Text:     string(source[start:end]),
				TypeOnly: typeOnly,
				Kind:     kind,
			},
		})
	}

	for _, m := range esImportRe.FindAllSubmatchIndex(blanked, -1) {
		clause := string(blanked[m[2]:m[3]])
		add(m[0], m[1], string(source[m[4]:m[5]]), EsModule, clauseIsTypeOnly(clause))
	}
	for _, m := range sideEffectRe.FindAllSubmatchIndex(blanked, -1) {
		add(m[0], m[1], string(source[m[2]:m[3]]), EsModule, false)
	}
	for _, m := range reExportRe.FindAllSubmatchIndex(blanked, -1) {
		clause := string(blanked[m[2]:m[3]])
		add(m[0], m[1], string(source[m[4]:m[5]]), ReExport, clauseIsTypeOnly(clause))
	}
	for _, m := range requireRe.FindAllSubmatchIndex(blanked, -1) {
		add(m[0], m[1], string(source[m[2]:m[3]]), CommonJs, false)
	}
	for _, m := range dynamicRe.FindAllSubmatchIndex(blanked, -1) {
		add(m[0], m[1], string(source[m[2]:m[3]]), Dynamic, false)
	}

	sort.SliceStable(found, func(i, j int) bool { return found[i].offset < found[j].offset })

	records := make([]Record, 0, len(found))
	for _, f := range found {
		records = append(records, f.rec)
	}
	return records
}

// clauseIsTypeOnly reports whether an import/export clause only names types:
// `type { A }`, `type * as ns`, or `{ type A, type B }`. Default and
// namespace bindings are values, and an empty clause is a side-effect import.
func clauseIsTypeOnly(clause string) bool {
	clause = strings.TrimSpace(clause)
	if rest, ok := strings.CutPrefix(clause, "type"); ok && rest != "" {
		switch rest[0] {
		case ' ', '\t', '\n', '\r', '{', '*':
			return true
		}
	}

	if !strings.HasPrefix(clause, "{") || !strings.HasSuffix(clause, "}") {
		return false
	}
	inner := strings.TrimSpace(clause[1 : len(clause)-1])
	if inner == "" {
		return false
	}
	for _, spec := range strings.Split(inner, ",") {
		spec = strings.TrimSpace(spec)
		if spec == "" {
			continue // trailing comma
		}
		if !strings.HasPrefix(spec, "type ") && !strings.HasPrefix(spec, "type\t") && !strings.HasPrefix(spec, "type\n") {
			return false
		}
	}
	return true
}

// isMemberAccess reports whether the keyword at start is a property access
// such as `loader.require('x')`.
func isMemberAccess(src []byte, start int) bool {
	for i := start - 1; i >= 0; i-- {
		switch src[i] {
		case ' ', '\t', '\n', '\r':
			continue
		case '.':
			return !(i > 0 && src[i-1] == '.') // spread `...require(x)` is not member access
		default:
			return false
		}
	}
	return false
}

// literal is the byte range [start, end) of a string or template literal,
// quotes included. The `${...}` parts of a template are not covered.
type literal struct {
	start, end int
}

// inLiteral reports whether offset falls inside one of the sorted literals.
func inLiteral(literals []literal, offset int) bool {
	i := sort.Search(len(literals), func(i int) bool { return literals[i].end > offset })
	return i < len(literals) && literals[i].start <= offset
}

// maskSource replaces comment bytes with spaces, keeping newlines and
// offsets intact, and returns the string and template literals it skipped.
func maskSource(src []byte) ([]byte, []literal) {
	out := make([]byte, len(src))
	copy(out, src)

	const (
		code = iota
		lineComment
		blockComment
		quoted
	)
	state := code
	var (
		quote    byte
		start    int
		literals []literal
		// open brace count of each enclosing template substitution
		templates []int
	)

	for i := 0; i < len(out); i++ {
		c := out[i]
		switch state {
		case code:
			switch {
			case c == '/' && i+1 < len(out) && out[i+1] == '/':
				state = lineComment
				out[i], out[i+1] = ' ', ' '
				i++
			case c == '/' && i+1 < len(out) && out[i+1] == '*':
				state = blockComment
				out[i], out[i+1] = ' ', ' '
				i++
			case c == '\'' || c == '"' || c == '`':
				state = quoted
				quote = c
				start = i
			case c == '{' && len(templates) > 0:
				templates[len(templates)-1]++
			case c == '}' && len(templates) > 0:
				top := len(templates) - 1
				if templates[top] > 0 {
					templates[top]--
					break
				}
				templates = templates[:top]
				state = quoted
				quote = '`'
				start = i
			}
		case lineComment:
			if c == '\n' {
				state = code
			} else {
				out[i] = ' '
			}
		case blockComment:
			if c == '*' && i+1 < len(out) && out[i+1] == '/' {
				out[i], out[i+1] = ' ', ' '
				i++
				state = code
			} else if c != '\n' {
				out[i] = ' '
			}
		case quoted:
			switch {
			case c == '\\':
				i++
			case c == quote:
				literals = append(literals, literal{start, i + 1})
				state = code
			case quote == '`' && c == '$' && i+1 < len(out) && out[i+1] == '{':
				literals = append(literals, literal{start, i})
				templates = append(templates, 0)
				i++
				state = code
			case c == '\n' && quote != '`':
				literals = append(literals, literal{start, i}) // unterminated
				state = code
			}
		}
	}
	if state == quoted {
		literals = append(literals, literal{start, len(out)})
	}
	return out, literals
}
