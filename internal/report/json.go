package report

import (
	"encoding/json"
	"io"

	"cdd/internal/analysis"
	"cdd/internal/imports"
	"cdd/internal/paths"
)

// JSONOutput is the machine-readable report. Paths are relative to the root.
type JSONOutput struct {
	RunID         string      `json:"runId"`
	TotalFiles    int         `json:"totalFiles"`
	TotalCycles   int         `json:"totalCycles"`
	AllowedCycles int         `json:"allowedCycles"`
	CyclesHash    string      `json:"cyclesHash"`
	Cycles        []JSONCycle `json:"cycles"`
}

// JSONCycle is one reported cycle.
type JSONCycle struct {
	Hash  string     `json:"hash"`
	Edges []JSONEdge `json:"edges"`
}

// JSONEdge is one import along a cycle.
type JSONEdge struct {
	FromFile   string       `json:"fromFile"`
	ToFile     string       `json:"toFile"`
	Line       int          `json:"line"`
	ImportText string       `json:"importText"`
	Kind       imports.Kind `json:"kind"`
}

// JSONError is written instead of a report when a run fails.
type JSONError struct {
	Error string `json:"error"`
}

// NewJSON converts a result to its JSON form.
func NewJSON(res *analysis.Result) JSONOutput {
	out := JSONOutput{
		RunID:         res.RunID,
		TotalFiles:    res.TotalFiles,
		TotalCycles:   len(res.Cycles),
		AllowedCycles: res.AllowedCount,
		CyclesHash:    res.Hash,
		Cycles:        make([]JSONCycle, 0, len(res.Cycles)),
	}
	for _, c := range res.Cycles {
		jc := JSONCycle{Hash: c.Hash, Edges: make([]JSONEdge, 0, len(c.Edges))}
		for _, e := range c.Edges {
			jc.Edges = append(jc.Edges, JSONEdge{
				FromFile:   paths.RelativeString(e.From, res.Root),
				ToFile:     paths.RelativeString(e.To, res.Root),
				Line:       e.Line,
				ImportText: e.Text,
				Kind:       e.Kind,
			})
		}
		out.Cycles = append(out.Cycles, jc)
	}
	return out
}

// WriteJSON writes the indented JSON report.
func WriteJSON(w io.Writer, res *analysis.Result) error {
	return encode(w, NewJSON(res))
}

// WriteJSONError writes {"error": "..."}.
func WriteJSONError(w io.Writer, err error) error {
	return encode(w, JSONError{Error: err.Error()})
}

func encode(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
