package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "plain error", err: errors.New("boom"), want: false},
		{name: "lock timeout", err: &pq.Error{Code: CodeLockNotAvailable}, want: true},
		{name: "wrapped deadlock", err: fmt.Errorf("claim: %w", &pq.Error{Code: CodeDeadlockDetected}), want: true},
		{name: "serialization", err: &pq.Error{Code: CodeSerializationFailure}, want: true},
		{name: "unique violation", err: &pq.Error{Code: "23505"}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Fatalf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestNewClientRequiresDSN(t *testing.T) {
	if _, err := NewClient(""); err == nil {
		t.Fatal("expected error for empty dsn")
	}
}
