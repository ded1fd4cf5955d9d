package scheduler

import (
	"context"
	"testing"
	"time"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		spec    string
		wantErr bool
	}{
		{spec: "0 */15 * * * *"},
		{spec: "*/5 * * * *"},
		{spec: "@every 30s"},
		{spec: "not a spec", wantErr: true},
		{spec: "61 * * * *", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			err := Validate(tt.spec)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate(%q) err = %v, wantErr %v", tt.spec, err, tt.wantErr)
			}
		})
	}
}

func TestAddAcceptsWhatValidateAccepts(t *testing.T) {
	r := New(context.Background(), nil)
	for _, spec := range []string{"0 */15 * * * *", "*/5 * * * *", "@hourly"} {
		if _, err := r.Add(spec, func(context.Context) {}); err != nil {
			t.Fatalf("Add(%q): %v", spec, err)
		}
	}
	if _, err := r.Add("bogus", func(context.Context) {}); err == nil {
		t.Fatal("expected error for bogus spec")
	}
}

func TestRunnerFiresJobs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fired := make(chan struct{}, 4)
	r := New(ctx, nil)
	if _, err := r.Add("@every 1s", func(got context.Context) {
		if got != ctx {
			t.Errorf("job received a different context")
		}
		select {
		case fired <- struct{}{}:
		default:
		}
	}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	r.Start()

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("job never fired")
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	if err := r.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
