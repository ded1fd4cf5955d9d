package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

func TestBackoffWithJitter(t *testing.T) {
	min, max := 10*time.Millisecond, 80*time.Millisecond
	tests := []struct {
		attempt int
		ceiling time.Duration
	}{
		{attempt: 1, ceiling: 10 * time.Millisecond},
		{attempt: 2, ceiling: 20 * time.Millisecond},
		{attempt: 4, ceiling: 80 * time.Millisecond},
		{attempt: 10, ceiling: 80 * time.Millisecond},
		{attempt: 64, ceiling: 80 * time.Millisecond},
	}
	for _, tt := range tests {
		for i := 0; i < 50; i++ {
			got := backoffWithJitter(min, max, tt.attempt)
			if got > tt.ceiling || got < tt.ceiling/2 {
				t.Fatalf("attempt %d: backoff %v outside [%v, %v]", tt.attempt, got, tt.ceiling/2, tt.ceiling)
			}
		}
	}
}

func TestEncodeValue(t *testing.T) {
	b, err := encodeValue(map[string]int{"a": 1})
	if err != nil || string(b) != `{"a":1}` {
		t.Fatalf("encode map = %q, %v", b, err)
	}
	b, _ = encodeValue("raw")
	if string(b) != "raw" {
		t.Fatalf("encode string = %q", b)
	}
	if _, err := encodeValue(func() {}); err == nil {
		t.Fatalf("expected error encoding a func")
	}
}

func TestPermanentUnwraps(t *testing.T) {
	base := errors.New("bad json")
	err := Permanent(base)
	var perm *PermanentError
	if !errors.As(err, &perm) || !errors.Is(err, base) {
		t.Fatalf("Permanent(%v) = %v", base, err)
	}
	if Permanent(nil) != nil {
		t.Fatalf("Permanent(nil) should be nil")
	}
}

func TestTraceHook(t *testing.T) {
	km := kafka.Message{Headers: []kafka.Header{{Key: "trace_id", Value: []byte("abc")}}}
	ctx, _, _, err := TraceHook().BeforeHandle(context.Background(), "t", km, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := TraceID(ctx); got != "abc" {
		t.Fatalf("TraceID = %q, want abc", got)
	}
	ctx, _, _, _ = TraceHook().BeforeHandle(context.Background(), "t", kafka.Message{}, nil)
	if got := TraceID(ctx); got != "" {
		t.Fatalf("TraceID without header = %q", got)
	}
}

func TestNewRequiresBrokers(t *testing.T) {
	if _, err := NewProducer(); err == nil {
		t.Fatalf("producer without brokers should fail")
	}
	if _, err := NewConsumer(); err == nil {
		t.Fatalf("consumer without brokers should fail")
	}
}
