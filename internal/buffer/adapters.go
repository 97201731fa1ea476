package buffer

import (
	"context"

	"github.com/feedbridge/feedbridge/internal/store"
)

// repositoryStore adapts the buffer repository to the scheduler's Store.
type repositoryStore struct {
	repo *store.BufferRepository
}

// NewRepositoryStore wraps a BufferRepository as a Store.
func NewRepositoryStore(repo *store.BufferRepository) Store {
	return &repositoryStore{repo: repo}
}

func (s *repositoryStore) Append(ctx context.Context, connectorID string, eventIDs []string) error {
	return s.repo.Append(ctx, connectorID, eventIDs)
}

func (s *repositoryStore) State(ctx context.Context, connectorID string) (State, error) {
	st, err := s.repo.State(ctx, connectorID)
	if err != nil {
		return State{}, err
	}
	return State{
		Pending:         st.Pending,
		InProcess:       st.InProcess,
		MissedChecks:    st.MissedChecks,
		OldestPendingAt: st.OldestPendingAt,
	}, nil
}

func (s *repositoryStore) IncrementMissedChecks(ctx context.Context, connectorID string) error {
	return s.repo.IncrementMissedChecks(ctx, connectorID)
}

func (s *repositoryStore) BeginFlush(ctx context.Context, connectorID string, max int) ([]string, error) {
	return s.repo.BeginFlush(ctx, connectorID, max)
}

func (s *repositoryStore) EndFlush(ctx context.Context, connectorID string, flushed []string) error {
	return s.repo.EndFlush(ctx, connectorID, flushed)
}
