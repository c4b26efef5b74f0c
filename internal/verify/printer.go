package verify

import (
	"fmt"
	"io"
	"strings"
)

// Printer writes the human-readable report. Failures go to errw so that a
// developer piping stdout still sees them.
type Printer struct {
	out  io.Writer
	errw io.Writer
}

func NewPrinter(out, errw io.Writer) *Printer {
	if out == nil {
		out = io.Discard
	}
	if errw == nil {
		errw = out
	}
	return &Printer{out: out, errw: errw}
}

func (p *Printer) Line(format string, args ...any) {
	_, _ = fmt.Fprintf(p.out, format+"\n", args...)
}

func (p *Printer) Fail(format string, args ...any) {
	_, _ = fmt.Fprintf(p.errw, format+"\n", args...)
}

func (p *Printer) Title(runID string) {
	p.Line("Verifying Development Environment Setup")
	p.Line("%s", strings.Repeat("=", 50))
	if runID != "" {
		p.Line("Run ID: %s", runID)
	}
}

func (p *Printer) Summary(r Report) {
	if r.OK() {
		p.Line("\nSetup verification complete!")
		p.Line("Ready to build advanced RAG systems!")
		return
	}
	if skipped := r.Skipped(); len(skipped) > 0 {
		names := make([]string, 0, len(skipped))
		for _, s := range skipped {
			names = append(names, s.Name)
		}
		p.Line("\nSkipped checks: %s", strings.Join(names, ", "))
	}
	p.Line("\nSetup verification failed")
	p.Line("Please fix the issues above and run again")
}
