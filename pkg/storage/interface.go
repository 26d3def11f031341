package storage

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"
)

// MaxContentLength is the maximum note length in characters.
const MaxContentLength = 500

// ErrNotFound is returned when no note matches the requested id.
var ErrNotFound = errors.New("note not found")

// Note is the single persisted resource.
type Note struct {
	ID      int64  `json:"id"`
	Content string `json:"content"`
}

// Store defines the interface for note storage backends.
// Implementations: memory (testing), sqlite (default), badger (embedded KV)
type Store interface {
	// Create inserts a note and returns its assigned id
	Create(ctx context.Context, content string) (int64, error)

	// Get returns the note with the given id, or ErrNotFound
	Get(ctx context.Context, id int64) (Note, error)

	// Update overwrites the content of an existing note
	Update(ctx context.Context, id int64, content string) (Note, error)

	// Delete removes the note with the given id, or returns ErrNotFound
	Delete(ctx context.Context, id int64) error

	// Close cleanly shuts down the storage
	Close() error
}

// Maintainer is implemented by backends that need periodic upkeep
// (vacuuming, value log GC, planner statistics).
type Maintainer interface {
	Maintain(ctx context.Context) error
}

// ValidationError reports a required field that is missing or out of bounds.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// ValidateContent checks the presence and length bound of note content.
func ValidateContent(content string) error {
	if content == "" {
		return &ValidationError{Field: "content", Reason: "is required"}
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return &ValidationError{
			Field:  "content",
			Reason: fmt.Sprintf("must be at most %d characters", MaxContentLength),
		}
	}
	return nil
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
