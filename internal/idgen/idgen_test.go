package idgen

import (
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	a, b := New(), New()
	if a == b {
		t.Fatal("expected distinct IDs")
	}
	if !IsRequestID(a) {
		t.Fatalf("New() = %q, not a UUID", a)
	}
}

func TestWithPrefix(t *testing.T) {
	id := WithPrefix("wa_")
	if !strings.HasPrefix(id, "wa_") || len(id) != 3+24 {
		t.Fatalf("unexpected id %q", id)
	}
}

func TestIsRequestID(t *testing.T) {
	tests := map[string]bool{
		"6ba7b810-9dad-11d1-80b4-00c04fd430c8": true,
		"not-a-uuid":                           false,
		"":                                     false,
	}
	for in, want := range tests {
		if got := IsRequestID(in); got != want {
			t.Errorf("IsRequestID(%q) = %v, want %v", in, got, want)
		}
	}
}
