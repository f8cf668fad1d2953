// services/market-stream/internal/credstore/memory.go
package credstore

import (
	"context"
	"sync"
)

// Memory — хранилище в памяти процесса (dev, тесты, запуск без Redis).
type Memory struct {
	mu  sync.Mutex
	c   Credentials
	set bool
}

// NewMemory создаёт пустое хранилище.
func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Load(context.Context) (Credentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.set {
		return Credentials{}, ErrNotFound
	}
	return m.c, nil
}

func (m *Memory) Save(_ context.Context, c Credentials) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.c, m.set = c, true
	return nil
}

func (m *Memory) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.c, m.set = Credentials{}, false
	return nil
}
