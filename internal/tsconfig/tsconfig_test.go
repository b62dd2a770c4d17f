package tsconfig

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cdderrors "cdd/internal/errors"
	"cdd/internal/slogutil"
	"cdd/internal/testutil"
)

func TestLoad_PathsAndBaseURL(t *testing.T) {
	p := testutil.NewProject(t, map[string]string{
		"tsconfig.json": `{
  // comments are allowed
  "compilerOptions": {
    "baseUrl": ".",
    "paths": {
      "@/*": ["src/*"],
      "config": ["src/config/index.ts"], /* trailing comma below */
    },
  },
}`,
	})

	aliases, err := Load(p.Root, slogutil.NewDiscardLogger())
	require.NoError(t, err)

	assert.Equal(t, p.Root, aliases.BaseURL)
	assert.Equal(t, p.Root, aliases.ConfigDir)
	assert.Equal(t, []string{p.Path("src/utils/helper"), p.Path("@/utils/helper")},
		aliases.Candidates("@/utils/helper"))
	assert.Equal(t, []string{p.Path("src/config/index.ts"), p.Path("config")},
		aliases.Candidates("config"))
}

func TestLoad_ExtendsChildOverridesParent(t *testing.T) {
	p := testutil.NewProject(t, map[string]string{
		"tsconfig.base.json": `{
  "compilerOptions": {
    "baseUrl": "./base",
    "paths": {
      "@shared/*": ["shared/*"],
      "@app/*": ["old/*"]
    }
  }
}`,
		"app/tsconfig.json": `{
  "extends": "../tsconfig.base",
  "compilerOptions": {
    "paths": { "@app/*": ["src/*"] }
  }
}`,
	})

	aliases, err := Load(p.Path("app/tsconfig.json"), slogutil.NewDiscardLogger())
	require.NoError(t, err)

	// baseUrl is inherited, so every template resolves against it
	assert.Equal(t, p.Path("base"), aliases.BaseURL)
	assert.Equal(t, p.Path("base/src/main"), aliases.Candidates("@app/main")[0])
	assert.Equal(t, p.Path("base/shared/x"), aliases.Candidates("@shared/x")[0])
	assert.Len(t, aliases.Paths, 2)
}

func TestLoad_PathsWithoutBaseURLUseDeclaringDir(t *testing.T) {
	p := testutil.NewProject(t, map[string]string{
		"configs/base.json": `{"compilerOptions": {"paths": {"@lib/*": ["../lib/*"]}}}`,
		"tsconfig.json":     `{"extends": ["./configs/base.json"]}`,
	})

	aliases, err := Load(p.Path("tsconfig.json"), slogutil.NewDiscardLogger())
	require.NoError(t, err)

	assert.Empty(t, aliases.BaseURL)
	assert.Equal(t, []string{p.Path("lib/a")}, aliases.Candidates("@lib/a"))
}

func TestLoad_ExtendsFromNodeModules(t *testing.T) {
	p := testutil.NewProject(t, map[string]string{
		"node_modules/@acme/tsconfig/tsconfig.json": `{"compilerOptions": {"baseUrl": "."}}`,
		"tsconfig.json":                             `{"extends": "@acme/tsconfig", "compilerOptions": {"paths": {"~/*": ["src/*"]}}}`,
	})

	aliases, err := Load(p.Root, slogutil.NewDiscardLogger())
	require.NoError(t, err)
	assert.Equal(t, p.Path("node_modules/@acme/tsconfig"), aliases.BaseURL)
}

func TestLoad_BrokenAncestorIsSkipped(t *testing.T) {
	p := testutil.NewProject(t, map[string]string{
		"base.json":     `{ not json`,
		"tsconfig.json": `{"extends": "./base.json", "compilerOptions": {"baseUrl": "src"}}`,
	})

	aliases, err := Load(p.Root, slogutil.NewDiscardLogger())
	require.NoError(t, err)
	assert.Equal(t, p.Path("src"), aliases.BaseURL)
}

func TestLoad_Errors(t *testing.T) {
	logger := slogutil.NewDiscardLogger()

	t.Run("missing", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope"), logger)
		assert.True(t, cdderrors.HasCode(err, cdderrors.ConfigNotFound))
	})

	t.Run("invalid root", func(t *testing.T) {
		p := testutil.NewProject(t, map[string]string{"tsconfig.json": `{`})
		_, err := Load(p.Root, logger)
		assert.True(t, cdderrors.HasCode(err, cdderrors.ConfigInvalid))
	})

	t.Run("extends cycle", func(t *testing.T) {
		p := testutil.NewProject(t, map[string]string{
			"a.json":        `{"extends": "./b.json"}`,
			"b.json":        `{"extends": "./a.json"}`,
			"tsconfig.json": `{"extends": "./a.json"}`,
		})
		_, err := Load(p.Root, logger)
		assert.True(t, cdderrors.HasCode(err, cdderrors.ConfigCycle))
	})
}

func TestCandidates_Ordering(t *testing.T) {
	aliases := New("", "/repo", map[string][]string{
		"@/*":            {"src/*"},
		"@/components/*": {"ui/*", "legacy/*"},
		"*.svg":          {"assets/*.svg"},
	})

	assert.Equal(t, []string{
		filepath.FromSlash("/repo/ui/button"),
		filepath.FromSlash("/repo/legacy/button"),
		filepath.FromSlash("/repo/src/components/button"),
	}, aliases.Candidates("@/components/button"))

	assert.Equal(t, []string{filepath.FromSlash("/repo/assets/logo.svg")}, aliases.Candidates("logo.svg"))
	assert.Nil(t, aliases.Candidates("./relative"))
	assert.Nil(t, aliases.Candidates("react"))

	var none *PathAliases
	assert.Nil(t, none.Candidates("@/x"))
}

func TestLoad_CommentsAndTrailingCommas(t *testing.T) {
	p := testutil.NewProject(t, map[string]string{
		"base.json": `{
  // shared
  "compilerOptions": {"baseUrl": "./*not a comment*/",},
}`,
		"tsconfig.json": `{
  /* block */ "extends": "./base.json",
  "compilerOptions": {
    "paths": {"@/*": ["src/*",],}, // trailing
  },
}`,
	})

	aliases, err := Load(p.Root, slogutil.NewDiscardLogger())
	require.NoError(t, err)
	assert.Equal(t, p.Path("*not a comment*"), aliases.BaseURL)
	assert.Equal(t, []string{"src/*"}, aliases.Paths["@/*"])
}
