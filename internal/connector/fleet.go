package connector

import (
	"context"
	"fmt"
	"log/slog"
)

// Fleet owns the lifecycle of every configured connector.
type Fleet struct {
	connectors map[string]*Connector
	order      []string
	logger     *slog.Logger
}

// NewFleet creates an empty Fleet.
func NewFleet(logger *slog.Logger) *Fleet {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fleet{
		connectors: make(map[string]*Connector),
		logger:     logger.With("module", "fleet"),
	}
}

// Add registers a connector. Ids must be unique across the fleet.
func (f *Fleet) Add(c *Connector) error {
	if _, exists := f.connectors[c.ID()]; exists {
		return fmt.Errorf("duplicate connector id %q", c.ID())
	}
	f.connectors[c.ID()] = c
	f.order = append(f.order, c.ID())
	return nil
}

// Get returns a connector by id.
func (f *Fleet) Get(id string) (*Connector, bool) {
	c, ok := f.connectors[id]
	return c, ok
}

// IDs returns the connector ids in registration order.
func (f *Fleet) IDs() []string {
	ids := make([]string, len(f.order))
	copy(ids, f.order)
	return ids
}

// Start launches every connector.
func (f *Fleet) Start(ctx context.Context) {
	for _, id := range f.order {
		f.connectors[id].Start(ctx)
	}
	f.logger.Info("fleet started", "connectors", len(f.order))
}

// Stop shuts every connector down, in reverse registration order.
func (f *Fleet) Stop() {
	for i := len(f.order) - 1; i >= 0; i-- {
		f.connectors[f.order[i]].Stop()
	}
	f.logger.Info("fleet stopped")
}
