package watch

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	picoerrors "github.com/dru-blip/picoc/internal/errors"
)

func TestMarshalResult(t *testing.T) {
	b, err := MarshalResult(Result{OK: true, Bytes: 42})
	if err != nil {
		t.Fatalf("MarshalResult: %v", err)
	}
	var got Result
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !got.OK || got.Bytes != 42 {
		t.Errorf("got %+v", got)
	}
}

func TestServeHTTPBroadcastsCompileResult(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "main.pico")
	if err := os.WriteFile(path, []byte("fn main()int{return 1;}"), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	compile := func(source, filename string) ([]byte, error) {
		return []byte("BYTECODE"), nil
	}
	s := NewServer(path, compile, 20*time.Millisecond, nil)

	httpSrv := httptest.NewServer(http.HandlerFunc(s.ServeHTTP))
	defer httpSrv.Close()

	wsURL := "ws" + strings.TrimPrefix(httpSrv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	go s.Run(done)
	defer close(done)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}

	var res Result
	if err := json.Unmarshal(msg, &res); err != nil {
		t.Fatalf("unmarshal broadcast: %v", err)
	}
	if !res.OK || res.Bytes != len("BYTECODE") {
		t.Errorf("unexpected broadcast result: %+v", res)
	}
}

func TestServeHTTPBroadcastsCompileError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "main.pico")
	if err := os.WriteFile(path, []byte("garbage"), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	compile := func(source, filename string) ([]byte, error) {
		return nil, errBadSource{}
	}
	s := NewServer(path, compile, 20*time.Millisecond, nil)

	httpSrv := httptest.NewServer(http.HandlerFunc(s.ServeHTTP))
	defer httpSrv.Close()

	wsURL := "ws" + strings.TrimPrefix(httpSrv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	go s.Run(done)
	defer close(done)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}

	var res Result
	if err := json.Unmarshal(msg, &res); err != nil {
		t.Fatalf("unmarshal broadcast: %v", err)
	}
	if res.OK || len(res.Errors) == 0 {
		t.Errorf("expected a failed result with errors, got %+v", res)
	}
}

type errBadSource struct{}

func (errBadSource) Error() string { return "bad source" }

func TestRecompileRetriesUnchangedSourceAfterNonCompileError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "main.pico")
	if err := os.WriteFile(path, []byte("fn main()int{return 1;}"), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	var calls int
	var nextErr error
	compile := func(source, filename string) ([]byte, error) {
		calls++
		return nil, nextErr
	}
	s := NewServer(path, compile, time.Second, nil)
	var lastMod time.Time

	nextErr = errBadSource{} // a non-compile (e.g. cache) failure
	s.recompileAndBroadcast(&lastMod, true)
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
	s.recompileAndBroadcast(&lastMod, false) // unchanged mtime, not forced
	if calls != 2 {
		t.Errorf("expected a non-compile error to reset lastMod and retry, got %d calls", calls)
	}
}

func TestRecompileDoesNotRetryUnchangedSourceAfterPicoError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "main.pico")
	if err := os.WriteFile(path, []byte("garbage"), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	var calls int
	compile := func(source, filename string) ([]byte, error) {
		calls++
		return nil, picoerrors.New(picoerrors.Syntax, "bad token", picoerrors.TokenInfo{})
	}
	s := NewServer(path, compile, time.Second, nil)
	var lastMod time.Time

	s.recompileAndBroadcast(&lastMod, true)
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
	s.recompileAndBroadcast(&lastMod, false) // unchanged mtime, not forced
	if calls != 1 {
		t.Errorf("expected a compile (Syntax) error to leave lastMod advanced and skip retry, got %d calls", calls)
	}
}
