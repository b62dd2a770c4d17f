// Package report renders analysis results as text or JSON and decides the
// process exit status.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"cdd/internal/analysis"
	"cdd/internal/paths"
)

// Styles holds the lipgloss styles of the text report.
type Styles struct {
	Index lipgloss.Style
	Hash  lipgloss.Style
	File  lipgloss.Style
	Line  lipgloss.Style
	Text  lipgloss.Style
	Arrow lipgloss.Style
	OK    lipgloss.Style
	Fail  lipgloss.Style
	Good  lipgloss.Style
	Bad   lipgloss.Style
}

// NewStyles builds styles for w. Color is dropped when w is not a terminal
// or NO_COLOR is set.
func NewStyles(w io.Writer) Styles {
	r := lipgloss.NewRenderer(w)
	return Styles{
		Index: r.NewStyle().Foreground(lipgloss.Color("12")).Bold(true),
		Hash:  r.NewStyle().Faint(true),
		File:  r.NewStyle().Foreground(lipgloss.Color("6")),
		Line:  r.NewStyle().Foreground(lipgloss.Color("3")),
		Text:  r.NewStyle().Faint(true),
		Arrow: r.NewStyle().Foreground(lipgloss.Color("12")),
		OK:    r.NewStyle().Foreground(lipgloss.Color("2")).Bold(true),
		Fail:  r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		Good:  r.NewStyle().Foreground(lipgloss.Color("10")).Bold(true),
		Bad:   r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
	}
}

// WriteText prints every reported cycle with the file, line and statement
// of each import, followed by the aggregate hash.
//
//	X Found 1 circular dependencies!
//
//	1) Circular dependency [3f2a9c1b7d4e]:
//	   src/a.ts:3
//	   | import { b } from './b';
//	   v
//	   src/b.ts:2
//	   | import { a } from './a';
//	   ^-- (cycle)
func WriteText(w io.Writer, res *analysis.Result, st Styles) error {
	var b strings.Builder

	if len(res.Cycles) == 0 {
		b.WriteString(st.OK.Render("No circular dependencies found."))
		b.WriteString("\n")
		if res.AllowedCount > 0 {
			fmt.Fprintf(&b, "%d allowed cycle(s) ignored.\n", res.AllowedCount)
		}
		_, err := io.WriteString(w, b.String())
		return err
	}

	fmt.Fprintf(&b, "%s Found %s circular dependencies!\n\n",
		st.Fail.Render("X"),
		st.Bad.Render(fmt.Sprint(len(res.Cycles))),
	)

	for i, c := range res.Cycles {
		fmt.Fprintf(&b, "%s Circular dependency [%s]:\n",
			st.Index.Render(fmt.Sprintf("%d)", i+1)),
			st.Hash.Render(c.Hash),
		)
		for j, e := range c.Edges {
			fmt.Fprintf(&b, "   %s:%s\n",
				st.File.Render(paths.RelativeString(e.From, res.Root)),
				st.Line.Render(fmt.Sprint(e.Line)),
			)
			fmt.Fprintf(&b, "   %s %s\n", st.Text.Render("|"), st.Text.Render(oneLine(e.Text)))
			if j < len(c.Edges)-1 {
				fmt.Fprintf(&b, "   %s\n", st.Arrow.Render("v"))
			} else {
				fmt.Fprintf(&b, "   %s (cycle)\n", st.Arrow.Render("^--"))
			}
		}
		b.WriteString("\n")
	}

	if res.AllowedCount > 0 {
		fmt.Fprintf(&b, "%d allowed cycle(s) ignored.\n", res.AllowedCount)
	}
	fmt.Fprintf(&b, "Cycles hash: %s\n", st.Hash.Render(res.Hash))

	_, err := io.WriteString(w, b.String())
	return err
}

// oneLine collapses a multi-line statement onto one line.
func oneLine(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
