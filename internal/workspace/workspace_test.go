package workspace

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cdderrors "cdd/internal/errors"
	"cdd/internal/slogutil"
	"cdd/internal/testutil"
)

func monorepo(t *testing.T) *testutil.Project {
	t.Helper()
	return testutil.NewProject(t, map[string]string{
		"package.json": `{"name": "test-monorepo", "workspaces": ["packages/*"]}`,

		"packages/ui/package.json":         `{"name": "@test/ui", "main": "dist/index.js", "module": "dist/index.mjs"}`,
		"packages/ui/src/index.ts":         `export const ui = true;`,
		"packages/ui/src/button/index.tsx": `export const Button = () => null;`,

		"packages/utils/package.json": `{
  "name": "@test/utils",
  "exports": {
    ".": { "import": "./src/index.ts", "require": "./dist/index.cjs" },
    "./helpers": "./src/helpers.ts",
    "./fmt/*": { "types": "./types/*.d.ts", "import": "./dist/fmt/*.js" }
  }
}`,
		"packages/utils/src/index.ts":     `export const utils = true;`,
		"packages/utils/src/helpers.ts":   `export const helpers = true;`,
		"packages/utils/dist/fmt/date.ts": `export const date = 1;`,

		"packages/nameless/package.json": `{"private": true}`,
	})
}

func TestDetect_PackageJSONWorkspaces(t *testing.T) {
	p := monorepo(t)

	ws, err := Detect(p.Root, slogutil.NewDiscardLogger())
	require.NoError(t, err)
	require.NotNil(t, ws)

	assert.Equal(t, []string{"@test/ui", "@test/utils"}, ws.Names())
	assert.Equal(t, p.Path("packages/ui"), ws.Packages["@test/ui"].Path)
}

func TestDetect_ObjectWorkspacesAndNegation(t *testing.T) {
	p := testutil.NewProject(t, map[string]string{
		"package.json":                           `{"workspaces": {"packages": ["apps/**", "!apps/legacy"]}}`,
		"apps/web/package.json":                  `{"name": "web"}`,
		"apps/nested/api/package.json":           `{"name": "api"}`,
		"apps/legacy/package.json":               `{"name": "legacy"}`,
		"apps/web/node_modules/dep/package.json": `{"name": "dep"}`,
	})

	ws, err := Detect(p.Root, slogutil.NewDiscardLogger())
	require.NoError(t, err)
	require.NotNil(t, ws)
	assert.Equal(t, []string{"api", "web"}, ws.Names())
}

func TestDetect_Pnpm(t *testing.T) {
	p := testutil.NewProject(t, map[string]string{
		"package.json":           `{"name": "root"}`,
		"pnpm-workspace.yaml":    "packages:\n  - 'libs/*'\n",
		"libs/core/package.json": `{"name": "@acme/core"}`,
		"libs/core/index.ts":     `export {};`,
	})

	ws, err := Detect(p.Root, slogutil.NewDiscardLogger())
	require.NoError(t, err)
	require.NotNil(t, ws)

	resolved, ok := ws.Resolve("@acme/core")
	require.True(t, ok)
	assert.Equal(t, p.Path("libs/core/index.ts"), resolved)
}

func TestDetect_NoWorkspace(t *testing.T) {
	p := testutil.NewProject(t, map[string]string{"package.json": `{"name": "single"}`})

	ws, err := Detect(p.Root, slogutil.NewDiscardLogger())
	assert.NoError(t, err)
	assert.Nil(t, ws)
	assert.Nil(t, ws.Names())

	_, ok := ws.Resolve("single")
	assert.False(t, ok)
}

func TestDetect_InvalidManifest(t *testing.T) {
	logger := slogutil.NewDiscardLogger()

	t.Run("package.json alone", func(t *testing.T) {
		p := testutil.NewProject(t, map[string]string{"package.json": `{ nope`})

		ws, err := Detect(p.Root, logger)
		assert.NoError(t, err)
		assert.Nil(t, ws)
	})

	t.Run("falls back to pnpm", func(t *testing.T) {
		p := testutil.NewProject(t, map[string]string{
			"package.json":           `{ nope`,
			"pnpm-workspace.yaml":    "packages:\n  - 'libs/*'\n",
			"libs/core/package.json": `{"name": "@acme/core"}`,
		})

		ws, err := Detect(p.Root, logger)
		require.NoError(t, err)
		require.NotNil(t, ws)
		assert.Equal(t, []string{"@acme/core"}, ws.Names())
	})

	t.Run("pnpm-workspace.yaml", func(t *testing.T) {
		p := testutil.NewProject(t, map[string]string{"pnpm-workspace.yaml": "packages: [unclosed\n"})

		_, err := Detect(p.Root, logger)
		assert.True(t, cdderrors.HasCode(err, cdderrors.ManifestInvalid))
	})
}

func TestResolve(t *testing.T) {
	p := monorepo(t)
	ws, err := Detect(p.Root, slogutil.NewDiscardLogger())
	require.NoError(t, err)

	tests := []struct {
		specifier string
		want      string
		ok        bool
	}{
		// module and main are missing, so the conventional entry is used
		{"@test/ui", "packages/ui/src/index.ts", true},
		{"@test/ui/button", "packages/ui/src/button/index.tsx", true},
		{"@test/utils", "packages/utils/src/index.ts", true},
		{"@test/utils/helpers", "packages/utils/src/helpers.ts", true},
		// wildcard export target ./dist/fmt/date.js swaps to .ts
		{"@test/utils/fmt/date", "packages/utils/dist/fmt/date.ts", true},
		{"@test/utils/missing", "", false},
		{"@test/other", "", false},
		{"react", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.specifier, func(t *testing.T) {
			got, ok := ws.Resolve(tt.specifier)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, p.Path(tt.want), got)
			}
		})
	}
}

func TestParseExports(t *testing.T) {
	t.Run("string", func(t *testing.T) {
		e := parseExports(json.RawMessage(`"./index.js"`))
		require.NotNil(t, e)
		assert.False(t, e.IsConditional())
		v, ok := e.Lookup(".")
		require.True(t, ok)
		assert.Equal(t, "./index.js", v.Direct)
		_, ok = e.Lookup("./x")
		assert.False(t, ok)
	})

	t.Run("root condition map", func(t *testing.T) {
		e := parseExports(json.RawMessage(`{"require": "./a.cjs", "default": "./a.js"}`))
		v, ok := e.Lookup(".")
		require.True(t, ok)
		target, ok := v.Target()
		require.True(t, ok)
		assert.Equal(t, "./a.cjs", target)
	})

	t.Run("nested conditions", func(t *testing.T) {
		e := parseExports(json.RawMessage(`{".": {"import": {"types": "./a.d.ts", "default": "./a.mjs"}}}`))
		v, ok := e.Lookup(".")
		require.True(t, ok)
		target, _ := v.Target()
		assert.Equal(t, "./a.mjs", target)
	})

	t.Run("unsupported", func(t *testing.T) {
		assert.Nil(t, parseExports(json.RawMessage(`42`)))
		assert.Nil(t, parseExports(nil))
	})
}
