// Package watch implements the compile server behind `picoc watch`: it
// polls a source file for mtime changes, recompiles on change, and
// broadcasts the result to every connected websocket client.
package watch

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	picoerrors "github.com/dru-blip/picoc/internal/errors"
)

// CompileFunc mirrors internal/compiler.Compile's signature.
type CompileFunc func(source, filename string) ([]byte, error)

// Result is the JSON message broadcast to every connected client after
// each recompile attempt.
type Result struct {
	OK     bool     `json:"ok"`
	Errors []string `json:"errors,omitempty"`
	Bytes  int      `json:"bytes"`
}

// client is one connected websocket, following the registry shape of a
// map of live connections guarded by a mutex with a broadcast-to-all
// method, generalized from a proxy's client table to a push-only one.
type client struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) send(msg Result) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(msg)
}

// Server watches one .pico file and pushes compile results to connected
// editors. It never touches the core compiler's single-threaded-per-call
// guarantee: Compile is invoked from a single background goroutine, one
// call at a time.
type Server struct {
	path    string
	compile CompileFunc
	poll    time.Duration
	log     *log.Logger

	mu      sync.RWMutex
	clients map[string]*client

	upgrader websocket.Upgrader
}

// NewServer builds a watch server for path, polling for mtime changes
// every poll (a zero value defaults to 500ms — no fsnotify dependency is
// available, so polling is the only option).
func NewServer(path string, compile CompileFunc, poll time.Duration, logger *log.Logger) *Server {
	if poll <= 0 {
		poll = 500 * time.Millisecond
	}
	if logger == nil {
		logger = log.New(os.Stderr, "picoc-watch: ", log.LstdFlags)
	}
	return &Server{
		path:    path,
		compile: compile,
		poll:    poll,
		log:     logger,
		clients: make(map[string]*client),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the connection to a websocket and registers it as a
// broadcast target until it disconnects.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Printf("upgrade failed: %v", err)
		return
	}
	id := uuid.NewString()
	c := &client{id: id, conn: conn}

	s.mu.Lock()
	s.clients[id] = c
	s.mu.Unlock()
	s.log.Printf("[%s] client connected", id)

	defer func() {
		s.mu.Lock()
		delete(s.clients, id)
		s.mu.Unlock()
		conn.Close()
		s.log.Printf("[%s] client disconnected", id)
	}()

	// Clients never send anything meaningful; read until the connection
	// closes so gorilla's control-frame handling (ping/pong, close) runs.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Broadcast pushes msg to every currently connected client, dropping any
// client whose write fails.
func (s *Server) Broadcast(msg Result) {
	s.mu.RLock()
	targets := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		targets = append(targets, c)
	}
	s.mu.RUnlock()

	for _, c := range targets {
		if err := c.send(msg); err != nil {
			s.log.Printf("[%s] broadcast failed, dropping client: %v", c.id, err)
			s.mu.Lock()
			delete(s.clients, c.id)
			s.mu.Unlock()
		}
	}
}

// Run polls s.path for mtime changes until ctxDone is closed, recompiling
// and broadcasting on every change. The first tick always compiles once
// so a client connecting right away sees an immediate result.
func (s *Server) Run(ctxDone <-chan struct{}) {
	var lastMod time.Time
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	s.recompileAndBroadcast(&lastMod, true)
	for {
		select {
		case <-ctxDone:
			return
		case <-ticker.C:
			s.recompileAndBroadcast(&lastMod, false)
		}
	}
}

func (s *Server) recompileAndBroadcast(lastMod *time.Time, force bool) {
	info, err := os.Stat(s.path)
	if err != nil {
		s.log.Printf("stat %s: %v", s.path, err)
		return
	}
	if !force && !info.ModTime().After(*lastMod) {
		return
	}
	modTime := info.ModTime()

	source, err := os.ReadFile(s.path)
	if err != nil {
		// Transient: don't advance lastMod, so the next poll retries
		// against the same mtime once the file is readable again (e.g. an
		// editor mid-save).
		s.broadcastError(picoerrors.Wrap(err, s.path))
		return
	}
	*lastMod = modTime

	bin, err := s.compile(string(source), s.path)
	if err != nil {
		// picoerrors.Cause distinguishes a Lex/Syntax/Semantic failure
		// (only worth retrying once the source changes again, so lastMod
		// stays advanced) from anything else — a cache/IO failure the
		// compile itself never raises, worth retrying on the next poll
		// regardless of whether the source changed.
		if _, ok := picoerrors.Cause(err).(*picoerrors.PicoError); !ok {
			*lastMod = time.Time{}
		}
		s.broadcastError(picoerrors.Wrap(err, s.path))
		return
	}

	s.log.Printf("compiled %s (%d bytes)", s.path, len(bin))
	s.Broadcast(Result{OK: true, Bytes: len(bin)})
}

func (s *Server) broadcastError(err error) {
	s.log.Printf("compile failed: %v", err)
	s.Broadcast(Result{OK: false, Errors: []string{err.Error()}})
}

// MarshalResult is exposed for tests and for cmd/picoc to print the same
// JSON shape a connected client would receive.
func MarshalResult(r Result) ([]byte, error) {
	return json.Marshal(r)
}
