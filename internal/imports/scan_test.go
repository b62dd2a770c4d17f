package imports

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cdderrors "cdd/internal/errors"
)

const scanFixture = `import React from 'react';
import { a } from './a';
import {
  b,
  c,
} from './multi';
import type { T } from './types';
import { type A, type B } from './typed';
import Def, { type C } from './def';
import './side-effect';
// import { gone } from './commented';
/* const x = require('./block'); */
export * from './all';
export type { U } from './utypes';
const cjs = require('./cjs');
const lazy = () => import('./lazy');
loader.require('./member');
`

func TestScanExtractor_ExtractSource(t *testing.T) {
	records := NewScanExtractor(Options{}).ExtractSource([]byte(scanFixture))

	type want struct {
		source   string
		line     int
		kind     Kind
		typeOnly bool
	}
	expected := []want{
		{"react", 1, EsModule, false},
		{"./a", 2, EsModule, false},
		{"./multi", 3, EsModule, false},
		{"./types", 7, EsModule, true},
		{"./typed", 8, EsModule, true},
		{"./def", 9, EsModule, false},
		{"./side-effect", 10, EsModule, false},
		{"./all", 13, ReExport, false},
		{"./utypes", 14, ReExport, true},
		{"./cjs", 15, CommonJs, false},
		{"./lazy", 16, Dynamic, false},
	}

	require.Len(t, records, len(expected))
	for i, w := range expected {
		got := records[i]
		assert.Equal(t, w.source, got.Source, "record %d source", i)
		assert.Equal(t, w.line, got.Line, "record %d line", i)
		assert.Equal(t, w.kind, got.Kind, "record %d kind", i)
		assert.Equal(t, w.typeOnly, got.TypeOnly, "record %d typeOnly", i)
	}

	assert.Equal(t, "import { a } from './a';", records[1].Text)
	assert.Equal(t, "require('./cjs')", records[9].Text)
	assert.Equal(t, "import './side-effect';", records[6].Text)
}

func TestScanExtractor_IgnoreTypeImports(t *testing.T) {
	records := NewScanExtractor(Options{IgnoreTypeImports: true}).ExtractSource([]byte(scanFixture))

	var sources []string
	for _, r := range records {
		sources = append(sources, r.Source)
		assert.False(t, r.TypeOnly)
	}
	assert.NotContains(t, sources, "./types")
	assert.NotContains(t, sources, "./typed")
	assert.NotContains(t, sources, "./utypes")
	assert.Contains(t, sources, "./def")
	assert.Contains(t, sources, "./side-effect")
}

func TestScanExtractor_Extract(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.ts")
	require.NoError(t, os.WriteFile(path, []byte("import { x } from './x'\n"), 0o644))

	e := NewScanExtractor(Options{})
	records, err := e.Extract(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "./x", records[0].Source)
	assert.Equal(t, "import { x } from './x'", records[0].Text)

	_, err = e.Extract(context.Background(), filepath.Join(dir, "missing.ts"))
	assert.True(t, cdderrors.HasCode(err, cdderrors.ReadFailed))
}

func TestClauseIsTypeOnly(t *testing.T) {
	tests := []struct {
		clause string
		want   bool
	}{
		{"type { A }", true},
		{"type * as ns", true},
		{"type Foo", true},
		{"{ type A, type B, }", true},
		{"{ type A, b }", false},
		{"{}", false},
		{"", false},
		{"typeFoo", false},
		{"type", false},
		{"* as ns", false},
		{"Def, { type A }", false},
	}

	for _, tt := range tests {
		t.Run(tt.clause, func(t *testing.T) {
			assert.Equal(t, tt.want, clauseIsTypeOnly(tt.clause))
		})
	}
}

func TestMaskSource(t *testing.T) {
	src := "a // x\nb /* y\nz */ c 'not // comment'"
	out, literals := maskSource([]byte(src))

	assert.Len(t, out, len(src))
	assert.Equal(t, "a     \nb     \n     c 'not // comment'", string(out))
	require.Len(t, literals, 1)
	assert.Equal(t, "'not // comment'", src[literals[0].start:literals[0].end])
}

func TestMaskSource_TemplateSubstitutions(t *testing.T) {
	src := "`a ${ {b: 1}.b } c` + 'd'"
	_, literals := maskSource([]byte(src))

	var parts []string
	for _, l := range literals {
		parts = append(parts, src[l.start:l.end])
	}
	assert.Equal(t, []string{"`a ", "} c`", "'d'"}, parts)
}

func TestScanExtractor_IgnoresImportsInsideStrings(t *testing.T) {
	src := "const msg = \"import x from './b'\";\n" +
		"const doc = `see require('./c')`;\n" +
		"const lazy = `${require('./d')}`;\n" +
		"import { e } from './e';\n"
	records := NewScanExtractor(Options{}).ExtractSource([]byte(src))

	var sources []string
	for _, r := range records {
		sources = append(sources, r.Source)
	}
	assert.Equal(t, []string{"./d", "./e"}, sources)
}

func TestKind_TextRoundTrip(t *testing.T) {
	for _, k := range []Kind{EsModule, CommonJs, Dynamic, ReExport} {
		text, err := k.MarshalText()
		require.NoError(t, err)
		var back Kind
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, k, back)
	}

	var k Kind
	assert.Error(t, k.UnmarshalText([]byte("bogus")))
	assert.Equal(t, "unknown", Kind(42).String())
}

func TestNewExtractor(t *testing.T) {
	scan, err := NewExtractor(ParserScan, Options{IgnoreTypeImports: true})
	require.NoError(t, err)
	assert.Equal(t, "scan/ignore-types", scan.Name())

	auto, err := NewExtractor("", Options{})
	require.NoError(t, err)
	if TreeSitterAvailable() {
		assert.Equal(t, "treesitter/all", auto.Name())
	} else {
		assert.Equal(t, "scan/all", auto.Name())
	}

	_, err = NewExtractor(ParserTreeSitter, Options{})
	assert.Equal(t, TreeSitterAvailable(), err == nil)

	_, err = NewExtractor("swc", Options{})
	assert.Error(t, err)
}
