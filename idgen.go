package modregistry

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// UUIDGenerator is the default IDGenerator, producing UUIDv7 identifiers.
// UUIDv7 includes timestamp information which provides time-ordered
// uniqueness, useful when ids end up as primary keys.
type UUIDGenerator struct{}

// NewID implements IDGenerator.
func (UUIDGenerator) NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// Fallback to v4 if v7 fails for any reason
		id = uuid.New()
	}
	return id.String()
}

// SequentialIDGenerator produces "<prefix>-1", "<prefix>-2", ... and is
// intended for deterministic tests.
type SequentialIDGenerator struct {
	Prefix  string
	counter atomic.Int64
}

// NewID implements IDGenerator.
func (g *SequentialIDGenerator) NewID() string {
	return fmt.Sprintf("%s-%d", g.Prefix, g.counter.Add(1))
}
