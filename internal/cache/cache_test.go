package cache

import (
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "cache.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGetMissThenPutThenHit(t *testing.T) {
	s := openTestStore(t)
	hash := HashSource("fn main()int{return 1;}")

	if _, ok, err := s.Get(hash); err != nil || ok {
		t.Fatalf("expected miss on empty cache, got ok=%v err=%v", ok, err)
	}

	want := []byte{1, 2, 3, 4}
	if err := s.Put(hash, want); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok, err := s.Get(hash)
	if err != nil || !ok {
		t.Fatalf("expected hit after Put, got ok=%v err=%v", ok, err)
	}
	if string(got) != string(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestHashSourceIsStableAndDistinguishesInput(t *testing.T) {
	a := HashSource("fn main()int{return 1;}")
	b := HashSource("fn main()int{return 1;}")
	c := HashSource("fn main()int{return 2;}")
	if a != b {
		t.Errorf("same source produced different hashes: %s vs %s", a, b)
	}
	if a == c {
		t.Errorf("different source produced the same hash: %s", a)
	}
}

func TestCompileCachedDedupesConcurrentCompiles(t *testing.T) {
	s := openTestStore(t)
	src := "fn main()int{return 1;}"

	var calls int32
	compile := func(source, filename string) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		return []byte("compiled:" + source), nil
	}

	var wg sync.WaitGroup
	results := make([][]byte, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			bin, err := s.CompileCached(src, "t.pico", compile)
			if err != nil {
				t.Errorf("CompileCached: %v", err)
				return
			}
			results[i] = bin
		}(i)
	}
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("expected exactly 1 underlying compile call, got %d", got)
	}
	for i, r := range results {
		if string(r) != "compiled:"+src {
			t.Errorf("result[%d] = %q, want %q", i, r, "compiled:"+src)
		}
	}
}

func TestCompileCachedPropagatesCompileError(t *testing.T) {
	s := openTestStore(t)
	wantErr := errCompileFailed{}
	_, err := s.CompileCached("bad source", "t.pico", func(source, filename string) ([]byte, error) {
		return nil, wantErr
	})
	if err == nil {
		t.Fatalf("expected an error from a failing compile")
	}
}

type errCompileFailed struct{}

func (errCompileFailed) Error() string { return "compile failed" }
