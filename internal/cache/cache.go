// Package cache provides a content-addressed build cache for compiled Pico
// modules, backed by a local modernc.org/sqlite database.
package cache

import (
	"database/sql"
	"hash/fnv"
	"time"

	_ "modernc.org/sqlite"
	"golang.org/x/sync/singleflight"
)

const schema = `
CREATE TABLE IF NOT EXISTS cache (
	source_hash TEXT PRIMARY KEY,
	binary      BLOB NOT NULL,
	created_at  INTEGER NOT NULL
);`

// Store wraps a single-file sqlite cache of compiled bytecode, keyed by the
// FNV-1a hash of the source text that produced it. This is a cache key, not
// a security boundary — collisions just cost a recompile, nothing more.
type Store struct {
	db    *sql.DB
	group singleflight.Group
}

// Open opens (creating if necessary) a cache database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// HashSource returns the cache key for a source text.
func HashSource(source string) string {
	h := fnv.New64a()
	h.Write([]byte(source))
	return hexUint64(h.Sum64())
}

func hexUint64(v uint64) string {
	const hexDigits = "0123456789abcdef"
	buf := make([]byte, 16)
	for i := 15; i >= 0; i-- {
		buf[i] = hexDigits[v&0xf]
		v >>= 4
	}
	return string(buf)
}

// Get returns the cached binary for hash, and whether it was found.
func (s *Store) Get(hash string) ([]byte, bool, error) {
	var bin []byte
	err := s.db.QueryRow("SELECT binary FROM cache WHERE source_hash = ?", hash).Scan(&bin)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return bin, true, nil
}

// Put stores the compiled binary for hash, overwriting any previous entry.
func (s *Store) Put(hash string, binary []byte) error {
	_, err := s.db.Exec(
		"INSERT INTO cache(source_hash, binary, created_at) VALUES(?, ?, ?) "+
			"ON CONFLICT(source_hash) DO UPDATE SET binary = excluded.binary, created_at = excluded.created_at",
		hash, binary, time.Now().Unix(),
	)
	return err
}

// CompileFunc compiles source text into a PEXB module. It is the shape of
// internal/compiler.Compile, taken as a parameter so this package never
// imports internal/compiler (a build cache is a concern of the driver, not
// the core pipeline — spec §5/§9's single-threaded-per-invocation guarantee
// is unaffected; this only arbitrates which goroutine gets to call it).
type CompileFunc func(source, filename string) ([]byte, error)

// CompileCached hashes source, serves a cache hit if one exists, and
// otherwise calls compile exactly once even if CompileCached is called
// concurrently with the same source from multiple goroutines (e.g. two
// near-simultaneous watch-mode rebuilds of an unchanged file).
func (s *Store) CompileCached(source, filename string, compile CompileFunc) ([]byte, error) {
	hash := HashSource(source)
	if bin, ok, err := s.Get(hash); err != nil {
		return nil, err
	} else if ok {
		return bin, nil
	}

	v, err, _ := s.group.Do(hash, func() (interface{}, error) {
		if bin, ok, err := s.Get(hash); err == nil && ok {
			return bin, nil
		}
		bin, err := compile(source, filename)
		if err != nil {
			return nil, err
		}
		if err := s.Put(hash, bin); err != nil {
			return nil, err
		}
		return bin, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}
