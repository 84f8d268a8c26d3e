package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/yolla/server/internal/clock"
)

// RevocationRepo is the set of token ids invalidated before their natural expiry.
// Entries only need to live until the token would have expired anyway.
type RevocationRepo interface {
	// Add inserts tokenID if absent. added is false when it was already present,
	// which is how concurrent rotations of one refresh token pick a single winner.
	Add(ctx context.Context, tokenID string, expiresAt time.Time) (added bool, err error)
	Contains(ctx context.Context, tokenID string) (bool, error)
	// Prune removes entries whose expiresAt has passed
	Prune(ctx context.Context) (int, error)
}

// minRevocationTTL keeps an entry for a token that is about to expire long enough to cover clock skew.
const minRevocationTTL = time.Second

type revocationRepo struct {
	rdb    *redis.Client
	clock  clock.Clock
	prefix string
}

// NewRevocationRepo creates a Redis-backed RevocationRepo. Keys expire with the token, so Redis prunes them.
func NewRevocationRepo(rdb *redis.Client, clk clock.Clock) RevocationRepo {
	return &revocationRepo{rdb: rdb, clock: clk, prefix: "revoked"}
}

func (r *revocationRepo) key(tokenID string) string {
	return r.prefix + ":" + tokenID
}

func (r *revocationRepo) Add(ctx context.Context, tokenID string, expiresAt time.Time) (bool, error) {
	ttl := expiresAt.Sub(r.clock.Now())
	if ttl < minRevocationTTL {
		ttl = minRevocationTTL
	}
	added, err := r.rdb.SetNX(ctx, r.key(tokenID), expiresAt.Unix(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("revoke token: %w", err)
	}
	return added, nil
}

func (r *revocationRepo) Contains(ctx context.Context, tokenID string) (bool, error) {
	n, err := r.rdb.Exists(ctx, r.key(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("check revocation: %w", err)
	}
	return n > 0, nil
}

func (r *revocationRepo) Prune(context.Context) (int, error) {
	return 0, nil
}
