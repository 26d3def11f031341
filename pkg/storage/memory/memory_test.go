package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/nicktill/tinynotes/pkg/storage"
	"github.com/nicktill/tinynotes/pkg/storage/storagetest"
)

func TestMemoryStorage_Conformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		return New()
	})
}

func TestMemoryStorage_ConcurrentCreate(t *testing.T) {
	store := New()
	defer store.Close()

	ctx := context.Background()
	const writers = 50

	var wg sync.WaitGroup
	ids := make(chan int64, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := store.Create(ctx, "concurrent")
			if err != nil {
				t.Errorf("Create failed: %v", err)
				return
			}
			ids <- id
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]bool)
	for id := range ids {
		if seen[id] {
			t.Errorf("id %d assigned twice", id)
		}
		seen[id] = true
	}

	if store.Len() != writers {
		t.Errorf("Expected %d notes, got %d", writers, store.Len())
	}
}

func TestMemoryStorage_CancelledContext(t *testing.T) {
	store := New()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := store.Create(ctx, "hello"); err == nil {
		t.Error("Create should fail with cancelled context")
	}
	if store.Len() != 0 {
		t.Errorf("Expected no notes, got %d", store.Len())
	}
}
