package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"SignalGate/internal/domain/models"
	"SignalGate/internal/domain/repository"

	"github.com/redis/go-redis/v9"
)

// claimScript compares and sets in one server-side step, so concurrent
// claimers across processes are serialised by Redis itself.
// KEYS[1] ledger key; ARGV[1] now (unix ms); ARGV[2] window (ms).
var claimScript = redis.NewScript(`
local last = redis.call('GET', KEYS[1])
if last and (tonumber(ARGV[1]) - tonumber(last)) < tonumber(ARGV[2]) then
  return {0, last}
end
redis.call('SET', KEYS[1], ARGV[1])
return {1, last or '0'}
`)

// RedisLedger stores last-sent times as unix milliseconds under prefix:TICKER:TYPE.
// Keys carry no TTL; entries are only ever overwritten.
type RedisLedger struct {
	client  redis.UniversalClient
	prefix  string
	closeFn func() error
}

// RedisLedgerOption configures RedisLedger.
type RedisLedgerOption func(*RedisLedger)

// WithOwnedClient makes Close release the client through fn.
func WithOwnedClient(fn func() error) RedisLedgerOption {
	return func(l *RedisLedger) { l.closeFn = fn }
}

func NewRedisLedger(client redis.UniversalClient, prefix string, opts ...RedisLedgerOption) *RedisLedger {
	l := &RedisLedger{client: client, prefix: prefix}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *RedisLedger) key(k models.LedgerKey) string {
	return l.prefix + ":" + k.Ticker + ":" + string(k.AlertType)
}

func (l *RedisLedger) Claim(ctx context.Context, key models.LedgerKey, now time.Time, window time.Duration) (bool, time.Time, error) {
	res, err := claimScript.Run(ctx, l.client, []string{l.key(key)}, now.UnixMilli(), window.Milliseconds()).Slice()
	if err != nil {
		return false, time.Time{}, classifyRedisError("claim", err)
	}
	if len(res) != 2 {
		return false, time.Time{}, fmt.Errorf("claim: unexpected script reply %v: %w", res, repository.ErrLedgerUnavailable)
	}
	claimed, _ := res[0].(int64)
	last := parseMillis(res[1])
	return claimed == 1, last, nil
}

func (l *RedisLedger) Get(ctx context.Context, key models.LedgerKey) (models.DedupLedgerEntry, error) {
	v, err := l.client.Get(ctx, l.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return models.DedupLedgerEntry{}, repository.ErrNotFound
	}
	if err != nil {
		return models.DedupLedgerEntry{}, classifyRedisError("get", err)
	}
	return models.DedupLedgerEntry{Ticker: key.Ticker, AlertType: key.AlertType, LastSent: parseMillis(v)}, nil
}

func (l *RedisLedger) Backend() string { return "redis" }

// Close releases the client only when the ledger owns it; a shared cache
// client is closed by the cache.
func (l *RedisLedger) Close() error {
	if l.closeFn == nil {
		return nil
	}
	return l.closeFn()
}

func parseMillis(v interface{}) time.Time {
	var ms int64
	switch x := v.(type) {
	case int64:
		ms = x
	case string:
		ms, _ = strconv.ParseInt(x, 10, 64)
	}
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// Redis replies that mean the server is alive but cannot serve us right now.
var redisBusyPrefixes = []string{"BUSY", "LOADING", "TRYAGAIN", "CLUSTERDOWN"}

func classifyRedisError(op string, err error) error {
	var rerr redis.Error
	if errors.As(err, &rerr) {
		msg := rerr.Error()
		for _, p := range redisBusyPrefixes {
			if strings.HasPrefix(msg, p) {
				return fmt.Errorf("%s: %w: %w", op, repository.ErrLedgerContention, err)
			}
		}
	}
	return fmt.Errorf("%s: %w: %w", op, repository.ErrLedgerUnavailable, err)
}

var _ repository.AlertLedger = (*RedisLedger)(nil)
