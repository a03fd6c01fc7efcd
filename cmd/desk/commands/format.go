package commands

import (
	"fmt"
	"io"
	"os"
	"strings"
)

const reportWidth = 60

// out receives the check and simulate reports
var out io.Writer = os.Stdout

// row is one label/value line of a report section
type row struct {
	label string
	value string
}

// banner opens a report with its title between a heavy and a light rule
func banner(format string, args ...interface{}) {
	fmt.Fprintln(out, strings.Repeat("═", reportWidth))
	fmt.Fprintf(out, "  "+format+"\n", args...)
	rule()
}

func rule() {
	fmt.Fprintln(out, strings.Repeat("─", reportWidth))
}

func endReport() {
	fmt.Fprintln(out, strings.Repeat("═", reportWidth))
}

// passed, failed and skipped mark the outcome of one desk check
func passed(format string, args ...interface{}) {
	fmt.Fprintf(out, "✅ "+format+"\n", args...)
}

func failed(err error) {
	fmt.Fprintf(out, "❌ %v\n", err)
}

func skipped(format string, args ...interface{}) {
	fmt.Fprintf(out, "-  "+format+"\n", args...)
}

// refused reports an order the desk would not take during a simulation
func refused(format string, args ...interface{}) {
	fmt.Fprintf(out, "\n⚠️  "+format+"\n\n", args...)
}

// section prints a heading and its rows with the labels aligned
func section(name string, rows ...row) {
	width := 0
	for _, r := range rows {
		if len(r.label) > width {
			width = len(r.label)
		}
	}
	fmt.Fprintf(out, "  %s\n", name)
	for _, r := range rows {
		fmt.Fprintf(out, "    %-*s : %s\n", width, r.label, r.value)
	}
}
