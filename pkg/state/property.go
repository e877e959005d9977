package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Property is a typed accessor for one named property in a scope.
type Property[T any] struct {
	scope Scope
	name  string
}

// NewProperty binds a typed accessor to scope and name.
func NewProperty[T any](scope Scope, name string) Property[T] {
	return Property[T]{scope: scope, name: name}
}

// Name returns the property name.
func (p Property[T]) Name() string { return p.name }

// Key returns the storage key for owner.
func (p Property[T]) Key(owner string) Key {
	return Key{Scope: p.scope, Owner: owner, Property: p.name}
}

// Get decodes the value for owner. found is false when nothing is stored.
func (p Property[T]) Get(ctx context.Context, b *Batch, owner string) (value T, found bool, err error) {
	raw, err := b.Get(ctx, p.Key(owner))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return value, false, nil
		}
		return value, false, err
	}
	if err := json.Unmarshal(raw, &value); err != nil {
		return value, false, fmt.Errorf("decode %s: %w", p.Key(owner), err)
	}
	return value, true, nil
}

// Set encodes and buffers value for owner.
func (p Property[T]) Set(b *Batch, owner string, value T) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", p.Key(owner), err)
	}
	return b.Set(p.Key(owner), raw)
}

// Delete buffers removal of the value for owner.
func (p Property[T]) Delete(b *Batch, owner string) error {
	return b.Delete(p.Key(owner))
}
