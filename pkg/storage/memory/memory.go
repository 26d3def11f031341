package memory

import (
	"context"
	"sync"

	"github.com/nicktill/tinynotes/pkg/storage"
)

// Storage stores notes in memory. Data is lost on restart.
// Useful for testing and development.
type Storage struct {
	notes  map[int64]string
	lastID int64
	mu     sync.RWMutex
}

// New creates an in-memory storage backend
func New() *Storage {
	return &Storage{
		notes: make(map[int64]string),
	}
}

// Create stores a note and returns its id
func (s *Storage) Create(ctx context.Context, content string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := storage.ValidateContent(content); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastID++
	s.notes[s.lastID] = content
	return s.lastID, nil
}

// Get returns a note by id
func (s *Storage) Get(ctx context.Context, id int64) (storage.Note, error) {
	if err := ctx.Err(); err != nil {
		return storage.Note{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	content, ok := s.notes[id]
	if !ok {
		return storage.Note{}, storage.ErrNotFound
	}
	return storage.Note{ID: id, Content: content}, nil
}

// Update overwrites the content of an existing note
func (s *Storage) Update(ctx context.Context, id int64, content string) (storage.Note, error) {
	if err := ctx.Err(); err != nil {
		return storage.Note{}, err
	}
	if err := storage.ValidateContent(content); err != nil {
		return storage.Note{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.notes[id]; !ok {
		return storage.Note{}, storage.ErrNotFound
	}
	s.notes[id] = content
	return storage.Note{ID: id, Content: content}, nil
}

// Delete removes a note by id
func (s *Storage) Delete(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.notes[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.notes, id)
	return nil
}

// Len returns the number of stored notes
func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.notes)
}

// Close is a no-op for memory storage
func (s *Storage) Close() error {
	return nil
}
