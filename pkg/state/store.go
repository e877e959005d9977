// Package state persists conversation and user scoped properties between turns.
package state

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when a key has no stored value.
	ErrNotFound = errors.New("state: not found")
	// ErrInvalidKey is returned for keys missing a scope, owner or property.
	ErrInvalidKey = errors.New("state: invalid key")
	// ErrBatchClosed is returned when a committed or discarded batch is used again.
	ErrBatchClosed = errors.New("state: batch already closed")
)

// Scope partitions stored properties by what they belong to.
type Scope string

const (
	ScopeConversation Scope = "conversation"
	ScopeUser         Scope = "user"
)

// Key addresses one stored property.
type Key struct {
	Scope    Scope  `json:"scope"`
	Owner    string `json:"owner"`
	Property string `json:"property"`
}

// ConversationKey builds a conversation scoped key.
func ConversationKey(conversationID, property string) Key {
	return Key{Scope: ScopeConversation, Owner: conversationID, Property: property}
}

// UserKey builds a user scoped key.
func UserKey(userID, property string) Key {
	return Key{Scope: ScopeUser, Owner: userID, Property: property}
}

// Validate checks that every component of the key is set.
func (k Key) Validate() error {
	switch k.Scope {
	case ScopeConversation, ScopeUser:
	default:
		return fmt.Errorf("%w: unknown scope %q", ErrInvalidKey, k.Scope)
	}
	if strings.TrimSpace(k.Owner) == "" {
		return fmt.Errorf("%w: owner is required", ErrInvalidKey)
	}
	if strings.TrimSpace(k.Property) == "" {
		return fmt.Errorf("%w: property is required", ErrInvalidKey)
	}
	return nil
}

// String renders the key as scope/owner/property.
func (k Key) String() string {
	return string(k.Scope) + "/" + k.Owner + "/" + k.Property
}

// Store is the persistence backend for state properties. Values are opaque bytes.
type Store interface {
	Get(ctx context.Context, key Key) ([]byte, error)
	Set(ctx context.Context, key Key, value []byte) error
	Delete(ctx context.Context, key Key) error
}
