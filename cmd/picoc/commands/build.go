// Package commands implements picoc's subcommands, one file per command,
// mirroring the teacher's cmd/sentra/commands layout.
package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/dru-blip/picoc/cmd/picoc/internal/diagnostic"
	"github.com/dru-blip/picoc/internal/cache"
	"github.com/dru-blip/picoc/internal/compiler"
	picoerrors "github.com/dru-blip/picoc/internal/errors"
)

// BuildCommand compiles a single .pico file to a .pexb module. args[0] is
// the source path; an optional args[1] is the output path (defaults to the
// source path with its extension replaced by .pexb).
func BuildCommand(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: picoc build <source.pico> [output.pexb]")
	}
	src := args[0]
	out := args[1:]
	outPath := ""
	if len(out) > 0 {
		outPath = out[0]
	} else {
		ext := filepath.Ext(src)
		outPath = src[:len(src)-len(ext)] + ".pexb"
	}

	sessionID := uuid.NewString()
	log := newLogger(sessionID)

	source, err := os.ReadFile(src)
	if err != nil {
		return picoerrors.Wrap(err, src)
	}

	log.Printf("compiling %s", src)
	bin, err := compiler.Compile(string(source), src)
	if err != nil {
		if pe, ok := err.(*picoerrors.PicoError); ok {
			diagnostic.Print(os.Stderr, src, string(source), pe)
			return fmt.Errorf("compile failed")
		}
		return picoerrors.Wrap(err, src)
	}

	if err := writeAtomic(outPath, bin); err != nil {
		return picoerrors.Wrap(err, outPath)
	}

	log.Printf("wrote %s (%s)", outPath, humanize.Bytes(uint64(len(bin))))
	return nil
}

// writeAtomic writes data to path via a temp file in the same directory
// followed by a rename, per SPEC_FULL.md's "written atomically" wording.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".picoc-build-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}

// buildCachedCompile exposes internal/cache wiring for callers (watch.go)
// that want cache-deduped compiles keyed by a session's own cache store.
func buildCachedCompile(store *cache.Store) cache.CompileFunc {
	return func(source, filename string) ([]byte, error) {
		return store.CompileCached(source, filename, compiler.Compile)
	}
}
