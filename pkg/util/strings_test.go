package util

import "testing"

func TestNormalizeTickers(t *testing.T) {
	got := NormalizeTickers([]string{" aapl", "$MSFT", "AAPL", "", "nvda "})
	want := []string{"AAPL", "MSFT", "NVDA"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestParseIntDefault(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{in: "12", want: 12},
		{in: "", want: 7},
		{in: "x", want: 7},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseIntDefault(tt.in, 7); got != tt.want {
				t.Fatalf("ParseIntDefault(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}
