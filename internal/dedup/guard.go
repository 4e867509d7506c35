// Package dedup rejects gateway redeliveries before anything is mutated.
package dedup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

var ErrDuplicate = errors.New("dedup: event already processed")

// Claimer is a shared set-if-absent store (redis in production).
type Claimer interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// History answers whether a gateway id has already been stored durably.
type History interface {
	HasGatewayMessage(ctx context.Context, tenantID, gatewayID string) (bool, error)
}

type Guard struct {
	claims  Claimer
	history History
	ttl     time.Duration
}

// NewGuard builds a guard. claims may be nil, leaving the durable lookup
// and the unique index as the only protection.
func NewGuard(claims Claimer, history History, ttl time.Duration) *Guard {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Guard{claims: claims, history: history, ttl: ttl}
}

func Key(tenantID, gatewayID string) string {
	return fmt.Sprintf("dedup:%s:%s", tenantID, gatewayID)
}

// Claim returns ErrDuplicate when the event was seen before. Otherwise the
// returned release drops the in-flight claim; call it when processing fails
// unexpectedly so a redelivery is judged by the durable record alone.
func (g *Guard) Claim(ctx context.Context, tenantID, gatewayID string) (func(), error) {
	noop := func() {}
	if gatewayID == "" {
		return noop, nil
	}

	release := noop
	if g.claims != nil {
		key := Key(tenantID, gatewayID)
		ok, err := g.claims.Claim(ctx, key, g.ttl)
		switch {
		case err != nil:
			log.Warn().Err(err).Str("tenant", tenantID).Str("wamid", gatewayID).Msg("dedup claim store unavailable, using durable check only")
		case !ok:
			return noop, ErrDuplicate
		default:
			release = func() {
				rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				if err := g.claims.Release(rctx, key); err != nil {
					log.Warn().Err(err).Str("key", key).Msg("release dedup claim")
				}
			}
		}
	}

	seen, err := g.history.HasGatewayMessage(ctx, tenantID, gatewayID)
	if err != nil {
		release()
		return noop, fmt.Errorf("dedup lookup: %w", err)
	}
	if seen {
		return noop, ErrDuplicate
	}
	return release, nil
}
