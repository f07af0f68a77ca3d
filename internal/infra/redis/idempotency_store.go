// File: internal/infra/redis/idempotency_store.go
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/Le-Sourcier/servcraft-sub004/internal/domain"
	"github.com/Le-Sourcier/servcraft-sub004/internal/domain/ports/repository"
)

var _ repository.IdempotencyStore = (*IdempotencyStore)(nil)

// idemEntry is the stored record for one key. State is "inflight" until the
// first caller commits its outcome.
type idemEntry struct {
	State  string                        `json:"state"` // inflight | committed
	Token  string                        `json:"token,omitempty"`
	Result *repository.IdempotencyResult `json:"result,omitempty"`
}

// IdempotencyStore implements atomic key reservation on Redis SETNX. The
// first reservation wins; concurrent callers poll boundedly for the winner's
// committed result so duplicate provider effects cannot happen. Entries
// expire after the retention TTL, matching the bounded provider-side
// idempotency window.
type IdempotencyStore struct {
	cli      *redis.Client
	ttl      time.Duration
	waitStep time.Duration
	waitMax  time.Duration
}

func NewIdempotencyStore(c *Client, ttl time.Duration) *IdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyStore{
		cli:      c.cli,
		ttl:      ttl,
		waitStep: 50 * time.Millisecond,
		waitMax:  3 * time.Second,
	}
}

func key(k string) string { return "idem:" + k }

func (s *IdempotencyStore) Reserve(ctx context.Context, k string) (repository.Reservation, error) {
	token := uuid.NewString()
	entry, _ := json.Marshal(idemEntry{State: "inflight", Token: token})

	ok, err := s.cli.SetNX(ctx, key(k), entry, s.ttl).Result()
	if err != nil {
		if ctx.Err() != nil {
			return repository.Reservation{}, ctx.Err()
		}
		return repository.Reservation{}, domain.ErrStorageUnavailable
	}
	if ok {
		return repository.Reservation{Fresh: true, Token: token}, nil
	}

	// someone else holds the key; wait boundedly for their committed result
	deadline := time.Now().Add(s.waitMax)
	for {
		raw, err := s.cli.Get(ctx, key(k)).Result()
		if errors.Is(err, redis.Nil) {
			// winner released (retryable failure); try to take over
			ok, err := s.cli.SetNX(ctx, key(k), entry, s.ttl).Result()
			if err != nil {
				if ctx.Err() != nil {
					return repository.Reservation{}, ctx.Err()
				}
				return repository.Reservation{}, domain.ErrStorageUnavailable
			}
			if ok {
				return repository.Reservation{Fresh: true, Token: token}, nil
			}
			continue
		}
		if err != nil {
			// a canceled caller is not a storage outage
			if ctx.Err() != nil {
				return repository.Reservation{}, ctx.Err()
			}
			return repository.Reservation{}, domain.ErrStorageUnavailable
		}
		var cur idemEntry
		if err := json.Unmarshal([]byte(raw), &cur); err != nil {
			return repository.Reservation{}, domain.ErrStorageUnavailable
		}
		if cur.State == "committed" {
			return repository.Reservation{Fresh: false, Result: cur.Result}, nil
		}
		if time.Now().After(deadline) {
			// first caller still in flight; surface a conflict rather than
			// risking a duplicate charge
			return repository.Reservation{Fresh: false}, nil
		}
		select {
		case <-ctx.Done():
			return repository.Reservation{}, ctx.Err()
		case <-time.After(s.waitStep):
		}
	}
}

func (s *IdempotencyStore) Commit(ctx context.Context, k string, res repository.IdempotencyResult) error {
	entry, err := json.Marshal(idemEntry{State: "committed", Result: &res})
	if err != nil {
		return err
	}
	if err := s.cli.Set(ctx, key(k), entry, s.ttl).Err(); err != nil {
		return domain.ErrStorageUnavailable
	}
	return nil
}

var luaReleaseIfHeld = redis.NewScript(`
local raw = redis.call("GET", KEYS[1])
if not raw then return 0 end
local entry = cjson.decode(raw)
if entry.state == "inflight" and entry.token == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Release drops an uncommitted reservation so a retry can re-execute. The
// token check means a release can never clobber another caller's reservation
// or a committed result.
func (s *IdempotencyStore) Release(ctx context.Context, k, token string) error {
	_, err := luaReleaseIfHeld.Run(ctx, s.cli, []string{key(k)}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return domain.ErrStorageUnavailable
	}
	return nil
}
