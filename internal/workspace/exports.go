package workspace

import (
	"encoding/json"
	"strings"
)

// conditionOrder is the preference among export conditions.
var conditionOrder = []string{"import", "require", "default"}

// ExportValue is one entry of an exports map: a target path, or a map from
// condition name to target path.
type ExportValue struct {
	Direct      string
	Conditional map[string]string
}

// IsConditional reports which variant v holds.
func (v ExportValue) IsConditional() bool {
	return v.Conditional != nil
}

// Target picks the path v points at, preferring import > require > default.
func (v ExportValue) Target() (string, bool) {
	if !v.IsConditional() {
		return v.Direct, v.Direct != ""
	}
	for _, cond := range conditionOrder {
		if t, ok := v.Conditional[cond]; ok && t != "" {
			return t, true
		}
	}
	return "", false
}

// Exports is the package.json "exports" field: a single target string, or a
// map from subpath ("." or "./x" or "./x/*") to ExportValue.
type Exports struct {
	Direct      string
	Conditional map[string]ExportValue
}

// IsConditional reports whether e is a subpath map. A nil e is neither.
func (e *Exports) IsConditional() bool {
	return e != nil && e.Conditional != nil
}

// Lookup returns the value declared for subpath ("." or "./x").
func (e *Exports) Lookup(subpath string) (ExportValue, bool) {
	if e == nil {
		return ExportValue{}, false
	}
	if !e.IsConditional() {
		if subpath == "." && e.Direct != "" {
			return ExportValue{Direct: e.Direct}, true
		}
		return ExportValue{}, false
	}
	v, ok := e.Conditional[subpath]
	return v, ok
}

// parseExports decodes the raw exports field. Unsupported shapes yield nil.
func parseExports(raw json.RawMessage) *Exports {
	if len(raw) == 0 {
		return nil
	}

	var direct string
	if err := json.Unmarshal(raw, &direct); err == nil {
		return &Exports{Direct: direct}
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil
	}

	// A map without subpath keys is a condition map for ".".
	if !hasSubpathKeys(obj) {
		v, ok := parseExportValue(raw)
		if !ok {
			return nil
		}
		return &Exports{Conditional: map[string]ExportValue{".": v}}
	}

	exports := &Exports{Conditional: make(map[string]ExportValue, len(obj))}
	for key, val := range obj {
		if v, ok := parseExportValue(val); ok {
			exports.Conditional[key] = v
		}
	}
	return exports
}

func hasSubpathKeys(obj map[string]json.RawMessage) bool {
	for key := range obj {
		if strings.HasPrefix(key, ".") {
			return true
		}
	}
	return false
}

func parseExportValue(raw json.RawMessage) (ExportValue, bool) {
	var direct string
	if err := json.Unmarshal(raw, &direct); err == nil {
		return ExportValue{Direct: direct}, true
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ExportValue{}, false
	}

	conds := make(map[string]string, len(obj))
	for cond, val := range obj {
		if leaf, ok := firstLeaf(val); ok {
			conds[cond] = leaf
		}
	}
	return ExportValue{Conditional: conds}, true
}

// firstLeaf flattens nested condition maps to one string target.
func firstLeaf(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", false
	}
	for _, cond := range conditionOrder {
		if val, ok := obj[cond]; ok {
			if leaf, ok := firstLeaf(val); ok {
				return leaf, true
			}
		}
	}
	return "", false
}
