package regression

import (
	"sync"

	"github.com/google/uuid"
)

// Cancellations holds cooperative cancel requests shared by the service and the workers.
type Cancellations struct {
	mu        sync.RWMutex
	requested map[uuid.UUID]struct{}
}

func NewCancellations() *Cancellations {
	return &Cancellations{requested: make(map[uuid.UUID]struct{})}
}

func (c *Cancellations) Request(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requested[id] = struct{}{}
}

func (c *Cancellations) IsRequested(id uuid.UUID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.requested[id]
	return ok
}

// Clear forgets id once its task reached a terminal state.
func (c *Cancellations) Clear(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.requested, id)
}
