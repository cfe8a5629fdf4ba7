package persistence

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/example/intellidesk/internal/codec"
)

// Blob is the stored payload of one collection and its version. A collection
// that was never written reads as an empty payload at version 0.
type Blob struct {
	Payload []byte
	Version int64
}

// BlobStore stores one opaque payload per collection name. Swap replaces the
// payload atomically only if the stored version still equals expected.
type BlobStore interface {
	Read(ctx context.Context, name string) (Blob, error)
	Swap(ctx context.Context, name string, payload []byte, expected int64) (int64, error)
}

// DefaultMaxAttempts bounds optimistic retries in Collection.Mutate.
const DefaultMaxAttempts = 8

// Collection is a typed list of records stored as one blob.
type Collection[T any] struct {
	store       BlobStore
	name        string
	maxAttempts int
}

type envelope[T any] struct {
	Records []T `cbor:"records"`
}

// NewCollection binds a typed collection to name in store.
func NewCollection[T any](store BlobStore, name string) *Collection[T] {
	return &Collection[T]{store: store, name: name, maxAttempts: DefaultMaxAttempts}
}

// Name returns the collection name.
func (c *Collection[T]) Name() string { return c.name }

// List returns every record in stored order.
func (c *Collection[T]) List(ctx context.Context) ([]T, error) {
	records, _, err := c.load(ctx)
	return records, err
}

func (c *Collection[T]) load(ctx context.Context) ([]T, int64, error) {
	blob, err := c.store.Read(ctx, c.name)
	if err != nil {
		return nil, 0, fmt.Errorf("read collection %s: %w", c.name, err)
	}
	if len(blob.Payload) == 0 {
		return nil, blob.Version, nil
	}
	var env envelope[T]
	if err := codec.Unmarshal(blob.Payload, &env); err != nil {
		return nil, 0, fmt.Errorf("decode collection %s: %w", c.name, err)
	}
	return env.Records, blob.Version, nil
}

// Append adds record at the end of the collection.
func (c *Collection[T]) Append(ctx context.Context, record T) error {
	_, err := c.Mutate(ctx, func(records []T) ([]T, error) {
		return append(records, record), nil
	})
	return err
}

// Mutate reads the collection, applies fn and swaps the result in. When
// another writer got there first fn runs again on the fresher snapshot, so
// fn must be free of side effects. Errors from fn abort without writing.
func (c *Collection[T]) Mutate(ctx context.Context, fn func(records []T) ([]T, error)) ([]T, error) {
	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		records, version, err := c.load(ctx)
		if err != nil {
			return nil, err
		}
		next, err := fn(records)
		if err != nil {
			return nil, err
		}
		payload, err := codec.Marshal(envelope[T]{Records: next})
		if err != nil {
			return nil, fmt.Errorf("encode collection %s: %w", c.name, err)
		}
		if _, err := c.store.Swap(ctx, c.name, payload, version); err != nil {
			if errors.Is(err, ErrVersionConflict) {
				lastErr = err
				continue
			}
			return nil, fmt.Errorf("write collection %s: %w", c.name, err)
		}
		return next, nil
	}
	return nil, fmt.Errorf("write collection %s after %d attempts: %w", c.name, c.maxAttempts, lastErr)
}

// MemoryBlobStore is an in-process BlobStore.
type MemoryBlobStore struct {
	mu    sync.RWMutex
	blobs map[string]Blob
}

// NewMemoryBlobStore returns an empty store.
func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{blobs: make(map[string]Blob)}
}

// Read returns a copy of the named blob.
func (m *MemoryBlobStore) Read(_ context.Context, name string) (Blob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	blob := m.blobs[name]
	return Blob{Payload: append([]byte(nil), blob.Payload...), Version: blob.Version}, nil
}

// Swap writes payload when the stored version matches expected.
func (m *MemoryBlobStore) Swap(_ context.Context, name string, payload []byte, expected int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current := m.blobs[name]
	if current.Version != expected {
		return current.Version, fmt.Errorf("%w: %s at %d, expected %d", ErrVersionConflict, name, current.Version, expected)
	}
	next := Blob{Payload: append([]byte(nil), payload...), Version: expected + 1}
	m.blobs[name] = next
	return next.Version, nil
}
