package lifecycle

import (
	"context"

	"github.com/oshokin/warehouse-alarms/internal/logger"
)

// Backend applies operator actions to the system of record.
type Backend interface {
	// Acknowledge marks an alarm acknowledged upstream.
	Acknowledge(ctx context.Context, id string) error
	// Resolve marks an alarm resolved upstream.
	Resolve(ctx context.Context, id string) error
}

// MemoryBackend accepts every action without side effects.
type MemoryBackend struct{}

// NewMemoryBackend creates a MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return new(MemoryBackend)
}

// Acknowledge always succeeds.
func (*MemoryBackend) Acknowledge(ctx context.Context, id string) error {
	logger.DebugKV(ctx, "acknowledge accepted by memory backend", "id", id)

	return nil
}

// Resolve always succeeds.
func (*MemoryBackend) Resolve(ctx context.Context, id string) error {
	logger.DebugKV(ctx, "resolve accepted by memory backend", "id", id)

	return nil
}
