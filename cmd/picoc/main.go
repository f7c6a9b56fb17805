// Command picoc is the Pico compiler driver: argument parsing, file I/O and
// diagnostic rendering live here, never in internal/{lexer,parser,types,
// symbols,hir,hirgen,sema,emitter} (spec.md's Non-goals keep the CLI/exit
// code plumbing architecturally separate from the core compiler).
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/dru-blip/picoc/cmd/picoc/commands"
)

const version = "0.1.0"

// commandAliases mirrors the teacher's short-form dispatch.
var commandAliases = map[string]string{
	"b": "build",
	"w": "watch",
	"d": "dump",
}

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	cmd := args[0]
	if alias, ok := commandAliases[cmd]; ok {
		cmd = alias
	}

	var err error
	switch cmd {
	case "build":
		err = commands.BuildCommand(args[1:])
	case "watch":
		err = commands.WatchCommand(args[1:])
	case "dump":
		err = commands.DumpCommand(args[1:])
	case "version", "--version", "-v":
		fmt.Println("picoc " + version)
		return
	case "help", "--help", "-h":
		usage()
		return
	default:
		usage()
		os.Exit(1)
	}

	if err != nil {
		log.Fatalf("picoc: %v", err)
	}
}

func usage() {
	fmt.Println(`picoc - Pico compiler

Usage:
  picoc build <source.pico> [output.pexb]   compile to a PEXB module
  picoc watch <source.pico> [addr]          recompile on change, serve diagnostics over websocket
  picoc dump  <source.pico>                 print the lowered HIR tree
  picoc version
  picoc help`)
}
