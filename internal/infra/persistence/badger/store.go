// Package badger persists contract state in an embedded BadgerDB key space,
// one key per state bucket.
package badger

import (
	"context"
	"errors"
	"fmt"
	"os"

	badgerdb "github.com/dgraph-io/badger/v3"

	"tracefood/internal/infra/persistence/bucket"
	"tracefood/internal/infra/persistence/memory"
	"tracefood/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

const keyPrefix = "state/"

// Store keeps the in-memory store as the transactional core and writes every
// bucket in a single Badger update during commit.
type Store struct {
	*memory.Store
	db   *badgerdb.DB
	path string
}

// NewStore opens (or creates) a Badger database at dir. An empty dir opens an
// in-memory database. logger may be nil to silence Badger's own output.
func NewStore(dir string, engine *domain.RulesEngine, logger badgerdb.Logger) (*Store, error) {
	opts := badgerdb.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	} else if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create badger dir: %w", err)
	}
	opts = opts.WithLogger(logger)
	opts.BlockCacheSize = 32 << 20
	opts.IndexCacheSize = 32 << 20
	opts.NumMemtables = 2

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	s := &Store{db: db, path: dir}
	s.Store = memory.NewStore(engine, memory.WithCommitHook(s.persist))
	snapshot, found, err := s.load()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if found {
		s.ImportState(snapshot)
	}
	return s, nil
}

func (s *Store) load() (domain.Snapshot, bool, error) {
	payloads := map[string][]byte{}
	err := s.db.View(func(txn *badgerdb.Txn) error {
		for _, name := range bucket.Names {
			item, err := txn.Get([]byte(keyPrefix + name))
			if errors.Is(err, badgerdb.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return fmt.Errorf("get %s: %w", name, err)
			}
			value, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("read %s: %w", name, err)
			}
			payloads[name] = value
		}
		return nil
	})
	if err != nil {
		return domain.Snapshot{}, false, err
	}
	if len(payloads) == 0 {
		return domain.Snapshot{}, false, nil
	}
	snapshot, err := bucket.Decode(payloads)
	if err != nil {
		return domain.Snapshot{}, false, err
	}
	return snapshot, true, nil
}

func (s *Store) persist(_ context.Context, snapshot domain.Snapshot) error {
	entries, err := bucket.Encode(snapshot)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badgerdb.Txn) error {
		for _, e := range entries {
			if err := txn.Set([]byte(keyPrefix+e.Name), e.Payload); err != nil {
				return fmt.Errorf("set %s: %w", e.Name, err)
			}
		}
		return nil
	})
}

// DB exposes the underlying Badger handle for maintenance hooks.
func (s *Store) DB() *badgerdb.DB { return s.db }

// Path returns the configured data directory; empty for in-memory databases.
func (s *Store) Path() string { return s.path }

// Close flushes and closes the database.
func (s *Store) Close() error { return s.db.Close() }
