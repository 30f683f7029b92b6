// Package report implements end-of-run symbolization and formatting for
// the race reports the check driver accumulates.
//
// The driver itself only ever produces (histInstn, curInstn, byteAddr)
// triples — raw instruction pointers, opaque to the core. This package
// is the external "symbolization of instruction addresses" collaborator
// the specification calls out as outside the core's concern: it resolves
// those pointers back to function names and source locations using the
// running binary's own symbol table, the same way the teacher's detector
// formats its race output.
package report

import (
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/kolkov/romp/internal/race/driver"
)

// Location is a symbolized instruction address.
type Location struct {
	Func string
	File string
	Line int
}

// Symbolize resolves pc to its enclosing function and source location.
// If the binary carries no symbol information for pc (e.g. it came from
// generated or stripped code) Func is left empty.
func Symbolize(pc uintptr) Location {
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return Location{}
	}
	file, line := fn.FileLine(pc)
	return Location{Func: fn.Name(), File: file, Line: line}
}

func (l Location) String() string {
	if l.Func == "" {
		return "  (unknown location)"
	}
	return fmt.Sprintf("  %s()\n      %s:%d", l.Func, l.File, l.Line)
}

// Formatted is one race report with both sides symbolized, ready for
// display.
type Formatted struct {
	ByteAddr uintptr
	Hist     Location
	Cur      Location
}

// Format renders reports in the two-sided layout the teacher's detector
// used for its runtime-path reports, one race per paragraph.
func Format(w io.Writer, reports []driver.Report) error {
	var buf strings.Builder
	for i, r := range reports {
		if i > 0 {
			buf.WriteString("\n")
		}
		hist := Symbolize(r.HistInstn)
		cur := Symbolize(r.CurInstn)
		fmt.Fprintf(&buf, "DATA RACE on byte 0x%x\n", r.ByteAddr)
		buf.WriteString("Previous access:\n")
		buf.WriteString(hist.String())
		buf.WriteString("\n")
		buf.WriteString("Current access:\n")
		buf.WriteString(cur.String())
		buf.WriteString("\n")
	}
	_, err := io.WriteString(w, buf.String())
	return err
}

// FormatAll symbolizes reports without writing them anywhere, for callers
// that want structured data instead of preformatted text (e.g. a JSON
// summary emitted at process exit).
func FormatAll(reports []driver.Report) []Formatted {
	out := make([]Formatted, len(reports))
	for i, r := range reports {
		out[i] = Formatted{
			ByteAddr: r.ByteAddr,
			Hist:     Symbolize(r.HistInstn),
			Cur:      Symbolize(r.CurInstn),
		}
	}
	return out
}
