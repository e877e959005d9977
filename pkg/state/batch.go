package state

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

type pendingWrite struct {
	value   []byte
	deleted bool
}

// Batch is the unit of work for one turn. Reads go through to the store once
// and are cached; writes and deletes are buffered until Commit.
type Batch struct {
	store Store
	last  map[string]struct{}

	mu      sync.Mutex
	reads   map[Key][]byte
	missing map[Key]struct{}
	pending map[Key]pendingWrite
	order   []Key
	closed  bool
}

// BatchOption configures a Batch.
type BatchOption func(*Batch)

// CommitLast defers writes to the named properties until every other write
// has been applied.
func CommitLast(properties ...string) BatchOption {
	return func(b *Batch) {
		for _, p := range properties {
			b.last[p] = struct{}{}
		}
	}
}

// NewBatch opens a batch over store.
func NewBatch(store Store, opts ...BatchOption) *Batch {
	b := &Batch{
		store:   store,
		last:    make(map[string]struct{}),
		reads:   make(map[Key][]byte),
		missing: make(map[Key]struct{}),
		pending: make(map[Key]pendingWrite),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Store returns the underlying store.
func (b *Batch) Store() Store { return b.store }

// Get returns the buffered value for key, or the stored one.
func (b *Batch) Get(ctx context.Context, key Key) ([]byte, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrBatchClosed
	}
	if w, ok := b.pending[key]; ok {
		b.mu.Unlock()
		if w.deleted {
			return nil, ErrNotFound
		}
		return copyBytes(w.value), nil
	}
	if v, ok := b.reads[key]; ok {
		b.mu.Unlock()
		return copyBytes(v), nil
	}
	if _, ok := b.missing[key]; ok {
		b.mu.Unlock()
		return nil, ErrNotFound
	}
	b.mu.Unlock()

	v, err := b.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			b.mu.Lock()
			b.missing[key] = struct{}{}
			b.mu.Unlock()
		}
		return nil, err
	}

	b.mu.Lock()
	b.reads[key] = copyBytes(v)
	b.mu.Unlock()
	return v, nil
}

// Set buffers a write.
func (b *Batch) Set(key Key, value []byte) error {
	return b.buffer(key, pendingWrite{value: copyBytes(value)})
}

// Delete buffers a delete.
func (b *Batch) Delete(key Key) error {
	return b.buffer(key, pendingWrite{deleted: true})
}

func (b *Batch) buffer(key Key, w pendingWrite) error {
	if err := key.Validate(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBatchClosed
	}
	if _, ok := b.pending[key]; !ok {
		b.order = append(b.order, key)
	}
	b.pending[key] = w
	return nil
}

// Dirty reports whether any write is buffered.
func (b *Batch) Dirty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending) > 0
}

// Commit applies buffered writes in the order they were first made, with
// CommitLast properties applied after everything else. The batch is closed
// afterwards even when a write fails.
func (b *Batch) Commit(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBatchClosed
	}
	b.closed = true
	first := make([]Key, 0, len(b.order))
	var deferred []Key
	for _, k := range b.order {
		if _, ok := b.last[k.Property]; ok {
			deferred = append(deferred, k)
			continue
		}
		first = append(first, k)
	}
	pending := b.pending
	b.mu.Unlock()

	for _, k := range append(first, deferred...) {
		w := pending[k]
		var err error
		if w.deleted {
			err = b.store.Delete(ctx, k)
		} else {
			err = b.store.Set(ctx, k, w.value)
		}
		if err != nil {
			return fmt.Errorf("commit %s: %w", k, err)
		}
	}
	return nil
}

// Discard drops every buffered write and closes the batch.
func (b *Batch) Discard() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.pending = make(map[Key]pendingWrite)
	b.order = nil
}
