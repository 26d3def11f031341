/*
Package storage provides the pluggable storage abstraction for notes.

# Storage Interface

Notes are persisted behind a small interface so backends can be swapped
without touching the HTTP layer:
  - sqlite: single-file relational table (default)
  - badger: embedded LSM key-value store
  - memory: in-process map for tests and ephemeral runs

All backends implement the Store interface:

	type Store interface {
	    Create(ctx context.Context, content string) (int64, error)
	    Get(ctx context.Context, id int64) (Note, error)
	    Update(ctx context.Context, id int64, content string) (Note, error)
	    Delete(ctx context.Context, id int64) error
	    Close() error
	}

# Identity

Ids are assigned by the backend, start at 1 and are never reused after a
delete. The sqlite backend relies on AUTOINCREMENT, badger on a leased
Sequence, memory on a counter.

# Errors

Get, Update and Delete return ErrNotFound for an absent id. Create and Update
return a *ValidationError when content is empty or longer than
MaxContentLength characters; validation is checked before existence.

	id, err := store.Create(ctx, "hello")
	note, err := store.Get(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
	    // 404
	}

# Maintenance

Backends that need periodic upkeep also implement Maintainer. The server
schedules Maintain on a fixed interval.

# See Also

  - sqlite.Open() for the default backend
  - badger.New() for the embedded KV backend
  - storagetest.Run() for the conformance suite every backend passes
*/
package storage
