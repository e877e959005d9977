package dialog

import (
	"fmt"
	"sort"
)

// Registry maps dialog ids to implementations. It is populated at startup
// and read-only afterwards, so it can be shared across conversations.
type Registry struct {
	dialogs map[ID]Dialog
}

// NewRegistry creates a registry holding dialogs and validates references.
func NewRegistry(dialogs ...Dialog) (*Registry, error) {
	r := &Registry{dialogs: make(map[ID]Dialog, len(dialogs))}
	for _, d := range dialogs {
		if err := r.Register(d); err != nil {
			return nil, err
		}
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Register adds a dialog. Registering an id twice fails with ErrDuplicateID.
func (r *Registry) Register(d Dialog) error {
	if d == nil {
		return fmt.Errorf("register: %w: dialog", ErrMissingParameter)
	}
	id := d.ID()
	if err := id.Validate(); err != nil {
		return fmt.Errorf("register: %w", err)
	}
	if _, ok := r.dialogs[id]; ok {
		return fmt.Errorf("register %q: %w", id, ErrDuplicateID)
	}
	r.dialogs[id] = d
	return nil
}

// Resolve returns the dialog registered under id.
func (r *Registry) Resolve(id ID) (Dialog, error) {
	d, ok := r.dialogs[id]
	if !ok {
		return nil, fmt.Errorf("resolve %q: %w", id, ErrUnknownDialog)
	}
	return d, nil
}

// Has reports whether id is registered.
func (r *Registry) Has(id ID) bool {
	_, ok := r.dialogs[id]
	return ok
}

// IDs returns the registered ids in sorted order.
func (r *Registry) IDs() []ID {
	ids := make([]ID, 0, len(r.dialogs))
	for id := range r.dialogs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Validate checks that every id referenced by a registered dialog resolves.
func (r *Registry) Validate() error {
	for _, id := range r.IDs() {
		ref, ok := r.dialogs[id].(Referencer)
		if !ok {
			continue
		}
		for _, target := range ref.References() {
			if _, ok := r.dialogs[target]; !ok {
				return fmt.Errorf("dialog %q references %q: %w", id, target, ErrUnknownDialog)
			}
		}
	}
	return nil
}
