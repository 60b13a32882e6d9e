package credentials

import (
	"context"
	"fmt"
	"maps"
	"sync"
)

// MemoryBackend keeps contexts in process memory.
type MemoryBackend struct {
	mu       sync.RWMutex
	contexts map[string]map[Key]string // contextID -> values
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		contexts: make(map[string]map[Key]string),
	}
}

func (b *MemoryBackend) Load(_ context.Context, contextID string) (map[Key]string, error) {
	if contextID == "" {
		return nil, fmt.Errorf("contextID is required")
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	// Hand out a copy so callers cannot mutate stored state
	values := make(map[Key]string, len(b.contexts[contextID]))
	maps.Copy(values, b.contexts[contextID])
	return values, nil
}

func (b *MemoryBackend) Save(_ context.Context, contextID string, values map[Key]string) error {
	if contextID == "" {
		return fmt.Errorf("contextID is required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.contexts[contextID] = maps.Clone(values)
	return nil
}

func (b *MemoryBackend) Delete(_ context.Context, contextID string) error {
	if contextID == "" {
		return fmt.Errorf("contextID is required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.contexts, contextID)
	return nil
}

// Len returns the number of stored contexts.
func (b *MemoryBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.contexts)
}
