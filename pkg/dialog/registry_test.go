package dialog

import (
	"context"
	"errors"
	"testing"
)

func TestRegistryRegisterAndResolve(t *testing.T) {
	reg, err := NewRegistry(NewMessage("help", Text("hi")))
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	d, err := reg.Resolve("help")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if d.ID() != "help" {
		t.Errorf("id = %q, want %q", d.ID(), "help")
	}
	if !reg.Has("help") || reg.Has("other") {
		t.Error("Has returned unexpected result")
	}
}

func TestRegistryErrors(t *testing.T) {
	tests := []struct {
		name    string
		dialogs []Dialog
		wantErr error
	}{
		{"duplicate", []Dialog{NewMessage("a"), NewMessage("a")}, ErrDuplicateID},
		{"empty id", []Dialog{NewMessage("")}, ErrInvalidID},
		{"whitespace id", []Dialog{NewMessage("bad id")}, ErrInvalidID},
		{"nil dialog", []Dialog{nil}, ErrMissingParameter},
		{"dangling reference", []Dialog{
			func() Dialog {
				w, _ := NewWaterfall("flow", func(_ context.Context, _ *StepContext) (Result, error) { return Waiting(), nil })
				return w.Uses("missing")
			}(),
		}, ErrUnknownDialog},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(tt.dialogs...)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRegistryResolveUnknown(t *testing.T) {
	reg, _ := NewRegistry()
	_, err := reg.Resolve("nope")
	if !errors.Is(err, ErrUnknownDialog) {
		t.Errorf("err = %v, want ErrUnknownDialog", err)
	}
}

func TestRegistryIDsSorted(t *testing.T) {
	reg, _ := NewRegistry(NewMessage("b"), NewMessage("a"), NewMessage("c"))
	ids := reg.IDs()
	if len(ids) != 3 || ids[0] != "a" || ids[1] != "b" || ids[2] != "c" {
		t.Errorf("ids = %v", ids)
	}
}
