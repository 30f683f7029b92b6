package report

import (
	"runtime"
	"strings"
	"testing"

	"github.com/kolkov/romp/internal/race/driver"
)

func currentPC() uintptr {
	var pcs [1]uintptr
	n := runtime.Callers(2, pcs[:])
	if n == 0 {
		return 0
	}
	return pcs[0]
}

func TestSymbolizeResolvesKnownFunction(t *testing.T) {
	loc := Symbolize(currentPC())
	if loc.Func == "" {
		t.Fatal("expected a known PC to resolve to a function name")
	}
}

func TestSymbolizeUnknownPCReturnsEmptyLocation(t *testing.T) {
	loc := Symbolize(0)
	if loc.Func != "" {
		t.Fatal("expected the zero PC to resolve to nothing")
	}
}

func TestFormatProducesOneParagraphPerReport(t *testing.T) {
	reports := []driver.Report{
		{HistInstn: currentPC(), CurInstn: currentPC(), ByteAddr: 0x1000},
		{HistInstn: currentPC(), CurInstn: currentPC(), ByteAddr: 0x2000},
	}

	var buf strings.Builder
	if err := Format(&buf, reports); err != nil {
		t.Fatalf("Format returned an error: %v", err)
	}
	out := buf.String()
	if strings.Count(out, "DATA RACE") != 2 {
		t.Fatalf("expected 2 race paragraphs, got output:\n%s", out)
	}
}

func TestFormatAllReturnsSymbolizedSlice(t *testing.T) {
	reports := []driver.Report{{HistInstn: currentPC(), CurInstn: currentPC(), ByteAddr: 0x3000}}
	out := FormatAll(reports)
	if len(out) != 1 {
		t.Fatalf("len(out) = %d, want 1", len(out))
	}
	if out[0].ByteAddr != 0x3000 {
		t.Fatalf("ByteAddr = %x, want 0x3000", out[0].ByteAddr)
	}
}
