package commands

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/dru-blip/picoc/internal/cache"
	"github.com/dru-blip/picoc/internal/compiler"
	"github.com/dru-blip/picoc/internal/watch"
)

// WatchCommand starts a watch-mode compile server for args[0], serving
// websocket diagnostics on args[1] (defaults to ":4777").
func WatchCommand(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: picoc watch <source.pico> [addr]")
	}
	src := args[0]
	addr := ":4777"
	if len(args) > 1 {
		addr = args[1]
	}

	sessionID := uuid.NewString()
	log := newLogger(sessionID)

	cacheDir, err := os.UserCacheDir()
	if err != nil {
		cacheDir = os.TempDir()
	}
	cacheDir = filepath.Join(cacheDir, "picoc")
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return err
	}
	store, err := cache.Open(filepath.Join(cacheDir, "build-cache.db"))
	if err != nil {
		return err
	}
	defer store.Close()

	compile := buildCachedCompile(store)
	server := watch.NewServer(src, watch.CompileFunc(compile), 0, log)

	http.HandleFunc("/", server.ServeHTTP)
	log.Printf("watching %s, serving on %s", src, addr)

	done := make(chan struct{})
	go server.Run(done)
	defer close(done)

	return http.ListenAndServe(addr, nil)
}

// compile-time check that compiler.Compile has the cache.CompileFunc shape
var _ cache.CompileFunc = compiler.Compile
