package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cdd/internal/allowlist"
	cdderrors "cdd/internal/errors"
	"cdd/internal/graph"
	"cdd/internal/slogutil"
	"cdd/internal/testutil"
)

func intPtr(n int) *int    { return &n }
func boolPtr(b bool) *bool { return &b }

func TestFind_WalksUp(t *testing.T) {
	p := testutil.NewProject(t, map[string]string{
		"cdd.config.json":      `{}`,
		"apps/web/src/a.ts":    "",
		"apps/.cddrc.json":     `{}`,
		"apps/cdd.config.json": `{}`,
	})

	path, ok := Find(p.Path("apps/web/src"))
	require.True(t, ok)
	assert.Equal(t, p.Path("apps/.cddrc.json"), path, ".cddrc.json wins within a directory")

	path, ok = Find(p.Root)
	require.True(t, ok)
	assert.Equal(t, p.Path("cdd.config.json"), path)
}

func TestLoad_File(t *testing.T) {
	p := testutil.NewProject(t, map[string]string{
		".cddrc.json": `{
  "exclude": ["dist", "build"],
  "ignore_type_imports": true,
  "expected_cycles": 2,
  "tsconfig_path": "config/tsconfig.json",
  "expected_hash": "0123456789ab",
  "allowed_cycles": [
    {"files": ["src/a.ts", "src/b.ts"], "reason": "legacy"}
  ],
  "workers": 4
}`,
	})

	cfg, path, err := Load(p.Root, slogutil.NewDiscardLogger())
	require.NoError(t, err)
	assert.Equal(t, p.Path(".cddrc.json"), path)

	assert.Equal(t, []string{"dist", "build"}, cfg.Exclude)
	assert.Equal(t, boolPtr(true), cfg.IgnoreTypeImports)
	assert.Equal(t, intPtr(2), cfg.ExpectedCycles)
	assert.Equal(t, p.Path("config/tsconfig.json"), cfg.TSConfigPath)
	assert.Equal(t, "0123456789ab", cfg.ExpectedHash)
	assert.Equal(t, intPtr(4), cfg.Workers)
	assert.Nil(t, cfg.Cache)
	require.Len(t, cfg.AllowedCycles, 1)
	assert.Equal(t, allowlist.AllowedCycle{Files: []string{"src/a.ts", "src/b.ts"}, Reason: "legacy"}, cfg.AllowedCycles[0])
}

func TestLoad_NoFile(t *testing.T) {
	p := testutil.NewProject(t, nil)

	cfg, path, err := Load(p.Root, slogutil.NewDiscardLogger())
	require.NoError(t, err)
	assert.Empty(t, path)
	assert.Equal(t, &Config{}, cfg)
}

func TestLoad_EnvOverrides(t *testing.T) {
	p := testutil.NewProject(t, map[string]string{
		".cddrc.json": `{"ignore_type_imports": false, "expected_cycles": 1}`,
	})
	t.Setenv("CDD_IGNORE_TYPE_IMPORTS", "true")
	t.Setenv("CDD_EXPECTED_CYCLES", "3")
	t.Setenv("CDD_CACHE", "1")
	t.Setenv("CDD_LOG_LEVEL", "debug")

	cfg, _, err := Load(p.Root, slogutil.NewDiscardLogger())
	require.NoError(t, err)
	assert.Equal(t, boolPtr(true), cfg.IgnoreTypeImports)
	assert.Equal(t, intPtr(3), cfg.ExpectedCycles)
	assert.Equal(t, boolPtr(true), cfg.Cache)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"syntax":   `{"exclude": [`,
		"negative": `{"expected_cycles": -1}`,
		"hash":     `{"expected_hash": "not-a-hash"}`,
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			p := testutil.NewProject(t, map[string]string{".cddrc.json": content})
			_, path, err := Load(p.Root, slogutil.NewDiscardLogger())
			assert.True(t, cdderrors.HasCode(err, cdderrors.ConfigInvalid), "got %v", err)
			assert.Equal(t, p.Path(".cddrc.json"), path)
		})
	}
}

func TestValidate(t *testing.T) {
	assert.NoError(t, (&Config{}).Validate())
	assert.NoError(t, (&Config{ExpectedHash: "abcdef012345", Workers: intPtr(0)}).Validate())

	err := (&Config{Workers: intPtr(-2)}).Validate()
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "workers", cfgErr.Field)
	assert.Equal(t, "config error in field 'workers': must not be negative", err.Error())

	assert.Error(t, (&Config{ExpectedHash: "ABCDEF012345"}).Validate())
}

func TestLoadDotEnv(t *testing.T) {
	p := testutil.NewProject(t, map[string]string{".env": "CDD_WORKERS=7\n"})
	t.Setenv("CDD_WORKERS", "")
	require.NoError(t, os.Unsetenv("CDD_WORKERS"))

	require.NoError(t, LoadDotEnv(p.Root))
	assert.Equal(t, "7", os.Getenv("CDD_WORKERS"))

	require.NoError(t, LoadDotEnv(p.Path("missing")))
}

func TestMerge(t *testing.T) {
	cfg := &Config{
		Exclude:           []string{"dist"},
		IgnoreTypeImports: boolPtr(true),
		ExpectedCycles:    intPtr(2),
		TSConfigPath:      "/repo/tsconfig.base.json",
		ExpectedHash:      "aaaaaaaaaaaa",
		AllowedCycles:     []allowlist.AllowedCycle{{Files: []string{"a.ts", "b.ts"}}},
		Workers:           intPtr(8),
		LogLevel:          "warn",
	}

	t.Run("config only", func(t *testing.T) {
		s := Merge(Flags{}, cfg, slogutil.NewDiscardLogger())
		assert.Equal(t, []string{"node_modules", "dist"}, s.Exclude)
		assert.True(t, s.IgnoreTypeImports)
		assert.Equal(t, 2, s.ExpectedCycles)
		assert.Equal(t, "/repo/tsconfig.base.json", s.TSConfigPath)
		assert.Equal(t, "aaaaaaaaaaaa", s.ExpectedHash)
		assert.Equal(t, 8, s.Workers)
		assert.Equal(t, "warn", s.LogLevel)
		assert.Len(t, s.Allowed, 1)
	})

	t.Run("flags win", func(t *testing.T) {
		p := testutil.NewProject(t, map[string]string{"allow.txt": "c.ts > d.ts\n"})
		s := Merge(Flags{
			Exclude:        []string{"build", "dist"},
			ExpectedCycles: intPtr(0),
			TSConfigPath:   "tsconfig.app.json",
			ExpectedHash:   "bbbbbbbbbbbb",
			AllowlistPath:  p.Path("allow.txt"),
			Workers:        intPtr(1),
		}, cfg, slogutil.NewDiscardLogger())

		assert.Equal(t, []string{"node_modules", "dist", "build"}, s.Exclude)
		assert.Equal(t, 0, s.ExpectedCycles)
		assert.Equal(t, "tsconfig.app.json", s.TSConfigPath)
		assert.Equal(t, "bbbbbbbbbbbb", s.ExpectedHash)
		assert.Equal(t, 1, s.Workers)
		require.Len(t, s.Allowed, 2)
		assert.Equal(t, []string{"c.ts", "d.ts"}, s.Allowed[1].Files)
	})

	t.Run("nil config and unreadable allowlist", func(t *testing.T) {
		s := Merge(Flags{AllowlistPath: "/does/not/exist.txt"}, nil, slogutil.NewDiscardLogger())
		assert.Equal(t, []string{"node_modules"}, s.Exclude)
		assert.Empty(t, s.Allowed)
		assert.Zero(t, s.ExpectedCycles)
	})
}

func readJSON(t *testing.T, path string) map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	return doc
}

func TestUpdateHash_PreservesFields(t *testing.T) {
	p := testutil.NewProject(t, map[string]string{
		"cdd.config.json": `{"exclude": ["dist"], "expected_hash": "aaaaaaaaaaaa", "custom": {"x": 1}}`,
		"src/a.ts":        "",
	})

	path, err := UpdateHash(p.Path("src"), "bbbbbbbbbbbb")
	require.NoError(t, err)
	assert.Equal(t, p.Path("cdd.config.json"), path)

	doc := readJSON(t, path)
	assert.Equal(t, "bbbbbbbbbbbb", doc["expected_hash"])
	assert.Equal(t, []any{"dist"}, doc["exclude"])
	assert.Equal(t, map[string]any{"x": float64(1)}, doc["custom"])
}

func TestUpdateHash_CreatesFile(t *testing.T) {
	p := testutil.NewProject(t, nil)

	path, err := UpdateHash(p.Root, "cccccccccccc")
	require.NoError(t, err)
	assert.Equal(t, p.Path(".cddrc.json"), path)
	assert.Equal(t, map[string]any{"expected_hash": "cccccccccccc"}, readJSON(t, path))
}

func TestInit(t *testing.T) {
	p := testutil.NewProject(t, nil)
	cycles := []graph.Cycle{{
		Edges: []graph.CycleEdge{
			{From: p.Path("src/a.ts"), To: p.Path("src/b.ts")},
			{From: p.Path("src/b.ts"), To: p.Path("src/a.ts")},
		},
	}}

	path, err := Init(p.Root, cycles)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(p.Root, ".cddrc.json"), path)

	cfg, _, err := Load(p.Root, slogutil.NewDiscardLogger())
	require.NoError(t, err)
	assert.Equal(t, intPtr(0), cfg.ExpectedCycles)
	require.Len(t, cfg.AllowedCycles, 1)
	assert.Equal(t, []string{"src/a.ts", "src/b.ts"}, cfg.AllowedCycles[0].Files)
	assert.Equal(t, InitReason, cfg.AllowedCycles[0].Reason)

	_, err = Init(p.Root, cycles)
	assert.True(t, cdderrors.HasCode(err, cdderrors.ConfigExists))
}

func TestInit_NoCycles(t *testing.T) {
	p := testutil.NewProject(t, nil)

	path, err := Init(p.Root, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"expected_cycles": float64(0)}, readJSON(t, path))
}
