package nodes

import (
	"errors"
	"reflect"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"full url", "http://192.168.0.5:5000", "http://192.168.0.5:5000", false},
		{"https url", "https://node.example.com", "https://node.example.com", false},
		{"bare host port", "192.168.0.5:5000", "http://192.168.0.5:5000", false},
		{"strips path", "http://node.example.com:5000/chain", "http://node.example.com:5000", false},
		{"trims whitespace", "  http://peer:5001  ", "http://peer:5001", false},
		{"empty", "", "", true},
		{"whitespace only", "   ", "", true},
		{"bad scheme", "ftp://peer:5001", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRegistry_RegisterIdempotent(t *testing.T) {
	r := NewRegistry()

	if _, err := r.Register("http://peer-a:5000"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := r.Register("peer-a:5000"); err != nil {
		t.Fatalf("register normalized duplicate: %v", err)
	}
	if _, err := r.Register("http://peer-a:5000/nodes"); err != nil {
		t.Fatalf("register with path: %v", err)
	}

	if r.Size() != 1 {
		t.Errorf("expected 1 peer after duplicate registrations, got %d", r.Size())
	}
}

func TestRegistry_ListSorted(t *testing.T) {
	r := NewRegistry()
	for _, addr := range []string{"http://c:5000", "http://a:5000", "http://b:5000"} {
		if _, err := r.Register(addr); err != nil {
			t.Fatalf("register %s: %v", addr, err)
		}
	}

	want := []string{"http://a:5000", "http://b:5000", "http://c:5000"}
	if got := r.List(); !reflect.DeepEqual(got, want) {
		t.Errorf("List() = %v, want %v", got, want)
	}
}

func TestRegistry_RejectsInvalid(t *testing.T) {
	r := NewRegistry()
	_, err := r.Register("")
	if err == nil {
		t.Fatal("expected error for empty address")
	}
	if !errors.Is(err, ErrInvalidNode) {
		t.Errorf("expected ErrInvalidNode, got %v", err)
	}
	if r.Size() != 0 {
		t.Errorf("registry should be empty after failed registration, got %d", r.Size())
	}
}

func TestRegistry_RegisterAll(t *testing.T) {
	r := NewRegistry()

	peers, err := r.RegisterAll([]string{"http://peer-a:5000", "peer-b:5001"})
	if err != nil {
		t.Fatalf("register all: %v", err)
	}
	if len(peers) != 2 || r.Size() != 2 {
		t.Errorf("expected 2 registered peers, got %v (size %d)", peers, r.Size())
	}
}

func TestRegistry_RegisterAllAtomic(t *testing.T) {
	r := NewRegistry()

	// One bad address in the list must leave the registry untouched.
	_, err := r.RegisterAll([]string{"http://peer-a:5000", "ftp://bad", "http://peer-c:5000"})
	if err == nil {
		t.Fatal("expected error for invalid address in list")
	}
	if !errors.Is(err, ErrInvalidNode) {
		t.Errorf("expected ErrInvalidNode, got %v", err)
	}
	if r.Size() != 0 {
		t.Errorf("no peer should be registered when the list is invalid, got %d", r.Size())
	}
}
