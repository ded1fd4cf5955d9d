package collaborators

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"SignalGate/pkg/config"
	xhttp "SignalGate/pkg/http"
	"SignalGate/pkg/retry"
)

// HTTPBase is the shared client for collaborator services: one base URL,
// JSON POSTs, and retries on transient failures only.
type HTTPBase struct {
	baseURL string
	client  *xhttp.Client
	policy  *retry.Policy
}

func NewHTTPBase(cfg config.CollaboratorsConfig) *HTTPBase {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HTTPBase{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  xhttp.NewClient(xhttp.WithTimeout(timeout)),
		policy: retry.New(
			retry.WithMaxAttempts(cfg.Attempts),
			retry.WithIntervals(50*time.Millisecond, 500*time.Millisecond),
			retry.WithClassifier(isTransient),
		),
	}
}

// Enabled is false when no base URL is configured.
func (b *HTTPBase) Enabled() bool { return b != nil && b.baseURL != "" }

// PostJSON posts payload to path under the base URL and decodes the JSON reply into dest.
func (b *HTTPBase) PostJSON(ctx context.Context, path string, payload interface{}, dest interface{}) error {
	if !b.Enabled() {
		return fmt.Errorf("collaborator client not configured")
	}
	err := b.policy.Do(ctx, func(ctx context.Context) error {
		return b.client.SendAndParse(ctx, &xhttp.RequestOptions{
			Method: xhttp.MethodPost,
			URL:    b.baseURL + path,
			Body:   payload,
		}, dest)
	})
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	return nil
}

func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var se *xhttp.StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
