package dedup

import (
	"context"
	"time"

	"github.com/feedbridge/feedbridge/internal/store"
)

// DefaultKeepAliveTTL is how far a duplicate pushes the matched event's
// expiry when the connector does not set its own event TTL.
const DefaultKeepAliveTTL = 7 * 24 * time.Hour

// storeTokenSource adapts the token repository to the engine's TokenSource.
type storeTokenSource struct {
	repo *store.TokenRepository
}

// NewStoreTokenSource wraps a TokenRepository as a TokenSource.
func NewStoreTokenSource(repo *store.TokenRepository) TokenSource {
	return &storeTokenSource{repo: repo}
}

func (s *storeTokenSource) Recent(ctx context.Context, connectorID string, limit int) ([]Token, error) {
	tokens, err := s.repo.Recent(ctx, connectorID, limit)
	if err != nil {
		return nil, err
	}

	out := make([]Token, len(tokens))
	for i, t := range tokens {
		out[i] = Token{EventID: t.EventID, Fingerprint: t.Fingerprint}
	}
	return out, nil
}

// eventKeepAlive adapts the event repository to the engine's KeepAlive.
type eventKeepAlive struct {
	repo *store.EventRepository
	ttl  time.Duration
}

// NewEventKeepAlive wraps an EventRepository as a KeepAlive that pushes
// the matched event's expiry ttl into the future. A non-positive ttl
// falls back to DefaultKeepAliveTTL.
func NewEventKeepAlive(repo *store.EventRepository, ttl time.Duration) KeepAlive {
	if ttl <= 0 {
		ttl = DefaultKeepAliveTTL
	}
	return &eventKeepAlive{repo: repo, ttl: ttl}
}

func (k *eventKeepAlive) ExtendExpiry(ctx context.Context, eventID string) error {
	return k.repo.TouchExpiry(ctx, eventID, time.Now().Add(k.ttl).UnixMilli())
}

// Candidate is a payload the engine decided to store, paired with the
// fingerprint to record alongside the resulting event.
type Candidate struct {
	Payload     map[string]interface{}
	Fingerprint string
}

// FilterPayloads runs a whole invocation's payloads through the engine
// and returns, in the original order, those that should be stored. The
// candidate count fed into the look-back sizing is the full batch size,
// matching the per-invocation sizing rule.
func (m *Module) FilterPayloads(ctx context.Context, connectorID string, payloads []map[string]interface{}) ([]Candidate, error) {
	if len(payloads) == 0 {
		return nil, nil
	}

	kept := make([]Candidate, 0, len(payloads))
	for _, p := range payloads {
		storeIt, fp, err := m.ShouldStore(ctx, connectorID, p, len(payloads))
		if err != nil {
			return nil, err
		}
		if storeIt {
			kept = append(kept, Candidate{Payload: p, Fingerprint: fp})
		}
	}

	return kept, nil
}
