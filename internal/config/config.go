// Package config loads the per-project .cddrc.json, applies CDD_*
// environment overrides and merges the result with command-line flags.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"cdd/internal/allowlist"
	cdderrors "cdd/internal/errors"
	"cdd/internal/files"
	"cdd/internal/graph"
)

// FileName is the config file written by Init and UpdateHash.
const FileName = ".cddrc.json"

// FileNames are searched in order in every directory from the root upward.
var FileNames = []string{FileName, "cdd.config.json"}

// EnvPrefix prefixes environment overrides, e.g. CDD_IGNORE_TYPE_IMPORTS.
const EnvPrefix = "CDD"

// InitReason is recorded on every cycle written by Init.
const InitReason = "Existing cycle from --init"

// Config is the contents of a config file. Pointer fields distinguish
// "not set" from the zero value.
type Config struct {
	Exclude           []string                 `json:"exclude,omitempty" mapstructure:"exclude"`
	IgnoreTypeImports *bool                    `json:"ignore_type_imports,omitempty" mapstructure:"ignore_type_imports"`
	ExpectedCycles    *int                     `json:"expected_cycles,omitempty" mapstructure:"expected_cycles"`
	TSConfigPath      string                   `json:"tsconfig_path,omitempty" mapstructure:"tsconfig_path"`
	ExpectedHash      string                   `json:"expected_hash,omitempty" mapstructure:"expected_hash"`
	AllowedCycles     []allowlist.AllowedCycle `json:"allowed_cycles,omitempty" mapstructure:"allowed_cycles"`
	Cache             *bool                    `json:"cache,omitempty" mapstructure:"cache"`
	Workers           *int                     `json:"workers,omitempty" mapstructure:"workers"`
	LogLevel          string                   `json:"log_level,omitempty" mapstructure:"log_level"`
}

// keys are bound to CDD_<KEY> environment variables.
var keys = []string{
	"exclude",
	"ignore_type_imports",
	"expected_cycles",
	"tsconfig_path",
	"expected_hash",
	"cache",
	"workers",
	"log_level",
}

// LoadDotEnv loads dir/.env into the process environment without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(dir string) error {
	err := godotenv.Load(filepath.Join(dir, ".env"))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

// Find walks up from start and returns the first config file that exists.
func Find(start string) (string, bool) {
	dir := start
	for {
		for _, name := range FileNames {
			p := filepath.Join(dir, name)
			if info, err := os.Stat(p); err == nil && !info.IsDir() {
				return p, true
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// Load reads the nearest config file above start and applies environment
// overrides. It returns the path that was read, or "" when none was found;
// the returned Config is never nil. A relative tsconfig_path from the file
// is resolved against the file's directory.
func Load(start string, logger *slog.Logger) (*Config, string, error) {
	path, found := Find(start)

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return nil, "", fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if found {
		v.SetConfigFile(path)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			return nil, path, cdderrors.New(cdderrors.ConfigInvalid, path, "cannot parse config file", err)
		}
		logger.Debug("Loaded config file", "path", path)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, path, cdderrors.New(cdderrors.ConfigInvalid, path, "invalid config value", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, path, cdderrors.New(cdderrors.ConfigInvalid, path, "invalid config", err)
	}

	_, fromEnv := os.LookupEnv(EnvPrefix + "_TSCONFIG_PATH")
	if found && !fromEnv && cfg.TSConfigPath != "" && !filepath.IsAbs(cfg.TSConfigPath) {
		cfg.TSConfigPath = filepath.Join(filepath.Dir(path), cfg.TSConfigPath)
	}
	return &cfg, path, nil
}

var hashPattern = regexp.MustCompile(`^[0-9a-f]{12}$`)

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.ExpectedCycles != nil && *c.ExpectedCycles < 0 {
		return &ConfigError{Field: "expected_cycles", Message: "must not be negative"}
	}
	if c.Workers != nil && *c.Workers < 0 {
		return &ConfigError{Field: "workers", Message: "must not be negative"}
	}
	if c.ExpectedHash != "" && !hashPattern.MatchString(c.ExpectedHash) {
		return &ConfigError{Field: "expected_hash", Message: "must be 12 lowercase hex characters"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}

// Flags are the command-line values that override a config file. Nil
// pointers and empty strings mean "not given".
type Flags struct {
	Exclude           []string
	IgnoreTypeImports bool
	ExpectedCycles    *int
	TSConfigPath      string
	ExpectedHash      string
	AllowlistPath     string
	Cache             bool
	Workers           *int
	LogLevel          string
}

// Settings is the effective configuration of a run.
type Settings struct {
	Exclude           []string
	IgnoreTypeImports bool
	ExpectedCycles    int
	TSConfigPath      string
	ExpectedHash      string
	Allowed           []allowlist.AllowedCycle
	Cache             bool
	Workers           int
	LogLevel          string
}

// Merge combines flags with cfg. Flags win; excludes are unioned with the
// default list; allowlist file entries are appended to the config entries.
// An allowlist file that cannot be loaded is reported and skipped.
func Merge(flags Flags, cfg *Config, logger *slog.Logger) *Settings {
	if cfg == nil {
		cfg = &Config{}
	}
	s := &Settings{
		IgnoreTypeImports: flags.IgnoreTypeImports,
		TSConfigPath:      flags.TSConfigPath,
		ExpectedHash:      flags.ExpectedHash,
		Cache:             flags.Cache,
		LogLevel:          flags.LogLevel,
	}

	s.Exclude = union(files.DefaultExclude, cfg.Exclude, flags.Exclude)

	if !s.IgnoreTypeImports && cfg.IgnoreTypeImports != nil {
		s.IgnoreTypeImports = *cfg.IgnoreTypeImports
	}
	if !s.Cache && cfg.Cache != nil {
		s.Cache = *cfg.Cache
	}
	switch {
	case flags.ExpectedCycles != nil:
		s.ExpectedCycles = *flags.ExpectedCycles
	case cfg.ExpectedCycles != nil:
		s.ExpectedCycles = *cfg.ExpectedCycles
	}
	switch {
	case flags.Workers != nil:
		s.Workers = *flags.Workers
	case cfg.Workers != nil:
		s.Workers = *cfg.Workers
	}
	if s.TSConfigPath == "" {
		s.TSConfigPath = cfg.TSConfigPath
	}
	if s.ExpectedHash == "" {
		s.ExpectedHash = cfg.ExpectedHash
	}
	if s.LogLevel == "" {
		s.LogLevel = cfg.LogLevel
	}

	s.Allowed = append(s.Allowed, cfg.AllowedCycles...)
	if flags.AllowlistPath != "" {
		entries, err := allowlist.LoadFile(flags.AllowlistPath)
		if err != nil {
			logger.Warn("Could not load allowlist", "path", flags.AllowlistPath, "code", cdderrors.CodeOf(err), "error", err)
		} else {
			s.Allowed = append(s.Allowed, entries...)
		}
	}
	return s
}

func union(lists ...[]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, list := range lists {
		for _, item := range list {
			if item == "" || seen[item] {
				continue
			}
			seen[item] = true
			out = append(out, item)
		}
	}
	return out
}

// UpdateHash stores hash as expected_hash in the config file found above
// dir, or in a new dir/.cddrc.json. Other fields, including ones this
// version does not know, are kept. It returns the file written.
func UpdateHash(dir, hash string) (string, error) {
	doc := make(map[string]any)

	path, found := Find(dir)
	if found {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", cdderrors.New(cdderrors.ReadFailed, path, "cannot read config file", err)
		}
		if err := json.Unmarshal(data, &doc); err != nil {
			return "", cdderrors.New(cdderrors.ConfigInvalid, path, "cannot parse config file", err)
		}
	} else {
		path = filepath.Join(dir, FileName)
	}

	doc["expected_hash"] = hash
	return path, writeJSON(path, doc)
}

// Init writes dir/.cddrc.json accepting every cycle in cycles as a baseline
// with expected_cycles 0, so only new cycles fail. It refuses to replace an
// existing file.
func Init(dir string, cycles []graph.Cycle) (string, error) {
	path := filepath.Join(dir, FileName)
	if _, err := os.Stat(path); err == nil {
		return "", cdderrors.New(cdderrors.ConfigExists, path, "config file already exists", nil)
	}

	zero := 0
	cfg := Config{
		ExpectedCycles: &zero,
		AllowedCycles:  allowlist.FromCycles(cycles, dir, InitReason),
	}
	return path, writeJSON(path, cfg)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return cdderrors.New(cdderrors.InternalError, path, "cannot write config file", err)
	}
	return nil
}
