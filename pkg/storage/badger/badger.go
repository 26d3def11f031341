package badger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/nicktill/tinynotes/pkg/storage"
)

const (
	notePrefix  = "note/"
	sequenceKey = "seq/note"

	// Ids leased per sequence round trip. Unused ids in a lease are skipped on
	// restart, which keeps the never-reused guarantee.
	sequenceBandwidth = 100

	maxConflictRetries = 3
)

// Storage implements storage.Store using BadgerDB (LSM tree)
type Storage struct {
	db  *badger.DB
	seq *badger.Sequence
}

// Config holds BadgerDB configuration
type Config struct {
	// Path to store database files
	Path string

	// InMemory mode (for testing)
	InMemory bool

	// MaxMemoryMB limits BadgerDB memory usage in MB (0 = use defaults)
	MaxMemoryMB int64
}

// New creates a BadgerDB storage backend
func New(cfg Config) (*Storage, error) {
	opts := badger.DefaultOptions(cfg.Path)

	if cfg.InMemory {
		opts = opts.WithInMemory(true)
	}

	// Notes are tiny; keep the footprint laptop-sized.
	memTableSize := int64(16 * 1024 * 1024)
	if cfg.MaxMemoryMB > 0 {
		memTableSize = cfg.MaxMemoryMB * 1024 * 1024 / 3 // ~33% for memtable
	}

	opts = opts.
		WithLogger(nil).
		WithCompression(options.Snappy).
		WithNumVersionsToKeep(1).
		WithMemTableSize(memTableSize).
		WithNumMemtables(3).
		WithBlockCacheSize(memTableSize / 2).
		WithIndexCacheSize(memTableSize / 4).
		WithMaxLevels(4).
		WithNumCompactors(2).
		WithValueThreshold(1024).      // notes always fit in the LSM
		WithValueLogFileSize(64 << 20) // 64 MB value log files instead of default 2GB

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	seq, err := db.GetSequence([]byte(sequenceKey), sequenceBandwidth)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open id sequence: %w", err)
	}

	return &Storage{db: db, seq: seq}, nil
}

// Create stores a note under the next sequence id
func (s *Storage) Create(ctx context.Context, content string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := storage.ValidateContent(content); err != nil {
		return 0, err
	}

	next, err := s.seq.Next()
	if err != nil {
		return 0, fmt.Errorf("failed to allocate id: %w", err)
	}
	// Sequence starts at 0; note ids start at 1.
	id := int64(next) + 1

	note := storage.Note{ID: id, Content: content}
	err = s.update(ctx, func(txn *badger.Txn) error {
		return putNote(txn, note)
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// Get reads a note by id
func (s *Storage) Get(ctx context.Context, id int64) (storage.Note, error) {
	if err := ctx.Err(); err != nil {
		return storage.Note{}, err
	}

	var note storage.Note
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		note, err = getNote(txn, id)
		return err
	})
	if err != nil {
		return storage.Note{}, err
	}
	return note, nil
}

// Update overwrites the content of an existing note
func (s *Storage) Update(ctx context.Context, id int64, content string) (storage.Note, error) {
	if err := ctx.Err(); err != nil {
		return storage.Note{}, err
	}
	if err := storage.ValidateContent(content); err != nil {
		return storage.Note{}, err
	}

	note := storage.Note{ID: id, Content: content}
	err := s.update(ctx, func(txn *badger.Txn) error {
		if _, err := getNote(txn, id); err != nil {
			return err
		}
		return putNote(txn, note)
	})
	if err != nil {
		return storage.Note{}, err
	}
	return note, nil
}

// Delete removes a note by id
func (s *Storage) Delete(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.update(ctx, func(txn *badger.Txn) error {
		if _, err := getNote(txn, id); err != nil {
			return err
		}
		return txn.Delete(makeKey(id))
	})
}

// Close releases the id lease and closes the database
func (s *Storage) Close() error {
	if err := s.seq.Release(); err != nil {
		_ = s.db.Close()
		return fmt.Errorf("failed to release id sequence: %w", err)
	}
	return s.db.Close()
}

// RunGC runs BadgerDB's value log garbage collection
// This reclaims disk space from deleted/updated values
// discardRatio: run GC if this fraction of file can be discarded (0.5 = 50%)
func (s *Storage) RunGC(discardRatio float64) error {
	return s.db.RunValueLogGC(discardRatio)
}

// Maintain runs one value log GC pass. Nothing to rewrite is not an error.
func (s *Storage) Maintain(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.RunGC(0.5)
	if err != nil && !errors.Is(err, badger.ErrNoRewrite) && !errors.Is(err, badger.ErrGCInMemoryMode) {
		return fmt.Errorf("value log gc: %w", err)
	}
	return nil
}

// update runs fn in a read-write transaction, retrying on write conflicts.
// The context is checked after fn and before commit, so a cancelled caller
// never sees an error for a write that was applied. Once the commit starts
// its real result is returned.
func (s *Storage) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		err = s.db.Update(func(txn *badger.Txn) error {
			if err := fn(txn); err != nil {
				return err
			}
			return ctx.Err()
		})
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
	}
	return err
}

func getNote(txn *badger.Txn, id int64) (storage.Note, error) {
	item, err := txn.Get(makeKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return storage.Note{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.Note{}, fmt.Errorf("failed to read note: %w", err)
	}

	var note storage.Note
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &note)
	})
	if err != nil {
		return storage.Note{}, fmt.Errorf("failed to decode note: %w", err)
	}
	return note, nil
}

func putNote(txn *badger.Txn, note storage.Note) error {
	value, err := json.Marshal(note)
	if err != nil {
		return fmt.Errorf("failed to encode note: %w", err)
	}
	if err := txn.Set(makeKey(note.ID), value); err != nil {
		return fmt.Errorf("failed to write note: %w", err)
	}
	return nil
}

// makeKey creates a key: note/<big-endian id>, so iteration order is id order
func makeKey(id int64) []byte {
	key := make([]byte, len(notePrefix)+8)
	copy(key, notePrefix)
	binary.BigEndian.PutUint64(key[len(notePrefix):], uint64(id))
	return key
}
