package commands

import (
	"fmt"
	"os"

	"github.com/kr/pretty"

	"github.com/dru-blip/picoc/internal/hirgen"
	"github.com/dru-blip/picoc/internal/lexer"
	"github.com/dru-blip/picoc/internal/parser"
	picoerrors "github.com/dru-blip/picoc/internal/errors"
	"github.com/dru-blip/picoc/internal/types"
)

// DumpCommand parses and lowers args[0] to HIR without running Sema or the
// emitter, pretty-printing the resulting tree with kr/pretty — a debugging
// aid, not a build product.
func DumpCommand(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: picoc dump <source.pico>")
	}
	src := args[0]

	source, err := os.ReadFile(src)
	if err != nil {
		return picoerrors.Wrap(err, src)
	}

	tokens, err := lexer.Tokenize(string(source), src)
	if err != nil {
		return reportDumpError(src, string(source), err)
	}

	decls, err := parser.Parse(tokens, src)
	if err != nil {
		return reportDumpError(src, string(source), err)
	}

	gen := hirgen.New(types.New())
	global, err := gen.Generate(decls)
	if err != nil {
		return reportDumpError(src, string(source), err)
	}

	pretty.Println(global)
	return nil
}

func reportDumpError(src, source string, err error) error {
	if pe, ok := err.(*picoerrors.PicoError); ok {
		fmt.Fprintf(os.Stderr, "%s: %s (line %d, col %d)\n", pe.Kind, pe.Message, pe.Token.Line, pe.Token.Col)
		return fmt.Errorf("dump failed")
	}
	return picoerrors.Wrap(err, src)
}
