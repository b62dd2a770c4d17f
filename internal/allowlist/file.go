package allowlist

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	gotoml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	cdderrors "cdd/internal/errors"
)

// document is the structured allowlist file shape shared by TOML, YAML and
// JSON. TOML files use [[cycle]] tables.
type document struct {
	Cycles []AllowedCycle `json:"cycles" yaml:"cycles" toml:"cycle"`
}

// ParseText reads the plain text format: one cycle per line, files separated
// by " > ", `#` starting a comment line, blank lines ignored.
func ParseText(content string) []AllowedCycle {
	var out []AllowedCycle
	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		var files []string
		for _, f := range strings.Split(line, Separator) {
			if f = strings.TrimSpace(f); f != "" {
				files = append(files, f)
			}
		}
		out = append(out, AllowedCycle{Files: files})
	}
	return out
}

// LoadFile reads an allowlist, choosing the format from the extension:
// .toml, .yaml/.yml, .json, anything else is plain text.
func LoadFile(path string) ([]AllowedCycle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, cdderrors.New(cdderrors.ReadFailed, path, "cannot read allowlist", err)
	}

	var doc document
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), &doc); err != nil {
			return nil, cdderrors.New(cdderrors.AllowlistInvalid, path, "cannot parse TOML allowlist", err)
		}
	case ".yaml", ".yml":
		if err := decodeStructured(data, yaml.Unmarshal, &doc); err != nil {
			return nil, cdderrors.New(cdderrors.AllowlistInvalid, path, "cannot parse YAML allowlist", err)
		}
	case ".json":
		if err := decodeStructured(data, json.Unmarshal, &doc); err != nil {
			return nil, cdderrors.New(cdderrors.AllowlistInvalid, path, "cannot parse JSON allowlist", err)
		}
	default:
		return ParseText(string(data)), nil
	}
	return doc.Cycles, nil
}

// decodeStructured accepts either {cycles: [...]} or a bare list of entries.
func decodeStructured(data []byte, unmarshal func([]byte, any) error, doc *document) error {
	if err := unmarshal(data, doc); err == nil {
		return nil
	}
	var list []AllowedCycle
	if err := unmarshal(data, &list); err != nil {
		return err
	}
	doc.Cycles = list
	return nil
}

// WriteFile stores entries in the format implied by path's extension.
func WriteFile(path string, entries []AllowedCycle) error {
	doc := document{Cycles: entries}

	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		data, err = gotoml.Marshal(doc)
	case ".yaml", ".yml":
		data, err = yaml.Marshal(doc)
	case ".json":
		data, err = json.MarshalIndent(doc, "", "  ")
		data = append(data, '\n')
	default:
		data = []byte(FormatText(entries))
	}
	if err != nil {
		return fmt.Errorf("failed to encode allowlist: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return cdderrors.New(cdderrors.InternalError, path, "cannot write allowlist", err)
	}
	return nil
}

// FormatText renders entries in the plain text format, reasons as comments.
func FormatText(entries []AllowedCycle) string {
	var b strings.Builder
	for _, e := range entries {
		if e.Reason != "" {
			fmt.Fprintf(&b, "# %s\n", e.Reason)
		}
		b.WriteString(strings.Join(e.Files, Separator))
		b.WriteByte('\n')
	}
	return b.String()
}
