// Package compiler wires the core pipeline end to end: tokenize, parse,
// lower to HIR, type-check, emit bytecode (spec §2 "System Overview"). Each
// call to Compile owns a fresh types.Registry and hirgen.Generator so two
// concurrent compiles never share mutable state (spec §5, §9).
package compiler

import (
	"github.com/dru-blip/picoc/internal/emitter"
	"github.com/dru-blip/picoc/internal/hirgen"
	"github.com/dru-blip/picoc/internal/lexer"
	"github.com/dru-blip/picoc/internal/parser"
	"github.com/dru-blip/picoc/internal/sema"
	"github.com/dru-blip/picoc/internal/types"
)

// Compile turns Pico source text into a serialized PEXB module. filename is
// carried through only for diagnostics; this package never touches the
// filesystem itself (spec §6: the core takes source text and a name, the
// driver owns all I/O).
func Compile(source, filename string) ([]byte, error) {
	tokens, err := lexer.Tokenize(source, filename)
	if err != nil {
		return nil, err
	}

	decls, err := parser.Parse(tokens, filename)
	if err != nil {
		return nil, err
	}

	reg := types.New()
	gen := hirgen.New(reg)
	global, err := gen.Generate(decls)
	if err != nil {
		return nil, err
	}

	analyzer := sema.New(global, reg)
	if err := analyzer.Analyze(); err != nil {
		return nil, err
	}

	return emitter.Emit(global)
}
