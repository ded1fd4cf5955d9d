package ratelimit

import "testing"

func TestLimiterBurstPerKey(t *testing.T) {
	l := New(0.001, 2)

	for i := 0; i < 2; i++ {
		if !l.Allow("10.0.0.1") {
			t.Fatalf("request %d within burst rejected", i+1)
		}
	}
	if l.Allow("10.0.0.1") {
		t.Fatalf("third request should exceed burst")
	}
	if !l.Allow("10.0.0.2") {
		t.Fatalf("other key must have its own bucket")
	}
	if l.Len() != 2 {
		t.Fatalf("tracked keys = %d, want 2", l.Len())
	}
}
