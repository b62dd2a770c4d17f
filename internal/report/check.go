package report

import (
	"fmt"
	"io"

	"cdd/internal/analysis"
)

// Verdict compares a result with the expected cycle count and hash.
type Verdict struct {
	ExpectedCycles int
	FoundCycles    int
	ExpectedHash   string
	Hash           string
}

// Check builds the verdict for res. An empty expectedHash is not checked.
func Check(res *analysis.Result, expectedCycles int, expectedHash string) Verdict {
	return Verdict{
		ExpectedCycles: expectedCycles,
		FoundCycles:    len(res.Cycles),
		ExpectedHash:   expectedHash,
		Hash:           res.Hash,
	}
}

// CountOK reports whether the number of cycles matched.
func (v Verdict) CountOK() bool {
	return v.ExpectedCycles == v.FoundCycles
}

// HashOK reports whether the hash matched, or was not checked.
func (v Verdict) HashOK() bool {
	return v.ExpectedHash == "" || v.ExpectedHash == v.Hash
}

// ExitCode is 0 when every expectation held and 1 otherwise.
func (v Verdict) ExitCode() int {
	if v.CountOK() && v.HashOK() {
		return 0
	}
	return 1
}

// WriteVerdict prints one line per expectation.
func WriteVerdict(w io.Writer, v Verdict, st Styles) error {
	var err error
	if v.CountOK() {
		_, err = fmt.Fprintf(w, "%s Expected %s cycle(s) and found %s cycle(s).\n",
			st.OK.Render("OK"), st.Good.Render(fmt.Sprint(v.ExpectedCycles)), st.Good.Render(fmt.Sprint(v.FoundCycles)))
	} else {
		_, err = fmt.Fprintf(w, "%s Expected %s cycle(s), but found %s cycle(s).\n",
			st.Fail.Render("X"), st.Good.Render(fmt.Sprint(v.ExpectedCycles)), st.Bad.Render(fmt.Sprint(v.FoundCycles)))
	}
	if err != nil || v.ExpectedHash == "" {
		return err
	}

	if v.HashOK() {
		_, err = fmt.Fprintf(w, "%s Hash matches: %s\n", st.OK.Render("OK"), st.Good.Render(v.Hash))
	} else {
		_, err = fmt.Fprintf(w, "%s Hash mismatch: expected %s, got %s\n",
			st.Fail.Render("X"), st.Good.Render(v.ExpectedHash), st.Bad.Render(v.Hash))
	}
	return err
}
