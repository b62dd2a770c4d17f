// Package allowlist removes accepted cycles from a result set.
package allowlist

import (
	"log/slog"
	"sort"
	"strings"

	"cdd/internal/graph"
	"cdd/internal/paths"
)

// Separator splits the files of a text allowlist line.
const Separator = " > "

// AllowedCycle is a cycle accepted as a known baseline. Files are paths
// relative to the analysis root; their order does not matter.
type AllowedCycle struct {
	Files  []string `json:"files" yaml:"files" toml:"files" mapstructure:"files"`
	Reason string   `json:"reason,omitempty" yaml:"reason,omitempty" toml:"reason,omitempty" mapstructure:"reason"`
}

// key is the sorted, cleaned, deduplicated file set. Empty entries yield "".
func (a AllowedCycle) key() string {
	set := make(map[string]bool, len(a.Files))
	for _, f := range a.Files {
		if f = paths.CleanRelative(f); f != "" && f != "." {
			set[f] = true
		}
	}
	return setKey(set)
}

func setKey(set map[string]bool) string {
	files := make([]string, 0, len(set))
	for f := range set {
		files = append(files, f)
	}
	sort.Strings(files)
	return strings.Join(files, "\n")
}

// Filter drops every cycle whose file set equals the file set of an allowed
// entry. Subsets and supersets do not match. Malformed entries are skipped.
func Filter(cycles []graph.Cycle, allowed []AllowedCycle, root string, logger *slog.Logger) ([]graph.Cycle, int) {
	if len(allowed) == 0 {
		return cycles, 0
	}

	reasons := make(map[string]string, len(allowed))
	for i, a := range allowed {
		k := a.key()
		if k == "" {
			logger.Warn("Skipping empty allowlist entry", "index", i)
			continue
		}
		if _, dup := reasons[k]; !dup {
			reasons[k] = a.Reason
		}
	}

	kept := make([]graph.Cycle, 0, len(cycles))
	removed := 0
	for _, c := range cycles {
		set := make(map[string]bool, len(c.Edges))
		for _, f := range c.RelativeFiles(root) {
			set[f] = true
		}
		reason, ok := reasons[setKey(set)]
		if !ok {
			kept = append(kept, c)
			continue
		}
		removed++
		logger.Debug("Cycle allowed by allowlist", "cycle", c.Key(root), "hash", c.Hash, "reason", reason)
	}
	return kept, removed
}

// FromCycles builds allowlist entries for cycles, e.g. to record a baseline.
func FromCycles(cycles []graph.Cycle, root, reason string) []AllowedCycle {
	out := make([]AllowedCycle, 0, len(cycles))
	for _, c := range cycles {
		out = append(out, AllowedCycle{Files: c.RelativeFiles(root), Reason: reason})
	}
	return out
}
