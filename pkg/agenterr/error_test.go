package agenterr

import (
	"errors"
	"fmt"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(NotFound, "cache.Load", "no entry at path")
	if err.Kind != NotFound {
		t.Errorf("Kind = %v, want %v", err.Kind, NotFound)
	}
	if err.Cause != nil {
		t.Errorf("Cause should be nil, got %v", err.Cause)
	}
	want := "cache.Load: NotFound: no entry at path"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestWrap(t *testing.T) {
	cause := fmt.Errorf("dial tcp: connection refused")
	err := Wrap(SocketError, "mqtt.Connect", cause)

	if err.Kind != SocketError {
		t.Errorf("Kind = %v, want %v", err.Kind, SocketError)
	}
	if !errors.Is(err, cause) {
		t.Error("Wrap should preserve cause for errors.Is/Unwrap")
	}
}

func TestIs(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind Kind
		want bool
	}{
		{"matching kind", New(NotFound, "op", "msg"), NotFound, true},
		{"mismatched kind", New(NotFound, "op", "msg"), Internal, false},
		{"plain error", errors.New("boom"), NotFound, false},
		{"nil error", nil, NotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Is(tt.err, tt.kind); got != tt.want {
				t.Errorf("Is() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsThroughWrappedChain(t *testing.T) {
	inner := New(MappingIncompatible, "schema.Validate", "type mismatch")
	outer := fmt.Errorf("stream_individual: %w", inner)

	if !Is(outer, MappingIncompatible) {
		t.Error("Is should unwrap through fmt.Errorf %w chains")
	}
}

func TestErrorIsComparesOnlyKind(t *testing.T) {
	a := New(Timeout, "poll", "no data")
	b := New(Timeout, "connect", "different op, same kind")

	if !errors.Is(a, b) {
		t.Error("two *Error values with the same Kind should satisfy errors.Is")
	}
}

func TestKindString(t *testing.T) {
	if Ok.String() != "Ok" {
		t.Errorf("Ok.String() = %q", Ok.String())
	}
	unknown := Kind(999)
	if unknown.String() != "Kind(999)" {
		t.Errorf("unknown Kind.String() = %q", unknown.String())
	}
}
