// Package diagnostic renders a PicoError as a caret-underlined terminal
// message. It lives outside the core's import graph on purpose: nothing
// here affects the bytecode a compile produces, it only decides how a
// failure looks on a terminal.
package diagnostic

import (
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-isatty"

	picoerrors "github.com/dru-blip/picoc/internal/errors"
)

const (
	colorRed   = "\x1b[31m"
	colorReset = "\x1b[0m"
)

// Print renders err against source the way the original pico-lang
// prototype's error_printer.py does: message, file:line:col, the offending
// source line, and a caret span under the exact token range. Color is only
// used when w looks like a terminal.
func Print(w io.Writer, filename, source string, err *picoerrors.PicoError) {
	color := false
	if f, ok := w.(interface{ Fd() uintptr }); ok {
		color = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}

	tok := err.Token
	line := sourceLine(source, tok.LineStart, tok.Start)

	fmt.Fprintf(w, "%s: %s\n", err.Kind, err.Message)
	fmt.Fprintf(w, "--> %s:%d:%d\n", filename, tok.Line, tok.Col)
	fmt.Fprintln(w, "  |")
	fmt.Fprintf(w, "%d | %s\n", tok.Line, line)

	caretLen := tok.End - tok.Start
	if caretLen < 1 {
		caretLen = 1
	}
	caret := strings.Repeat("^", caretLen)
	if color {
		caret = colorRed + caret + colorReset
	}
	pad := tok.Col - 1 // Col is 1-based
	if pad < 0 {
		pad = 0
	}
	gutter := strings.Repeat(" ", len(fmt.Sprint(tok.Line)))
	fmt.Fprintf(w, "%s | %s%s\n", gutter, strings.Repeat(" ", pad), caret)
	fmt.Fprintln(w, "  |")
}

func sourceLine(source string, lineStart, start int) string {
	offset := start
	for offset < len(source) && source[offset] != '\n' {
		offset++
	}
	if lineStart > len(source) {
		lineStart = len(source)
	}
	if offset > len(source) {
		offset = len(source)
	}
	return source[lineStart:offset]
}
