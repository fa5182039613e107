// Package notify holds fired reminders until the owner's client polls for
// them.
package notify

import (
	"sync"
	"time"
)

// Notification is a fired reminder waiting to be shown to its owner.
type Notification struct {
	ID      string    `json:"id"`
	Owner   string    `json:"-"`
	Message string    `json:"mensaje"`
	DueAt   time.Time `json:"due_at"`
	FiredAt time.Time `json:"fired_at"`
}

// Gateway is an in-memory per-owner FIFO of notifications. A notification is
// handed out by exactly one Poll. Contents do not survive a restart.
type Gateway struct {
	mu     sync.Mutex
	queues map[string][]Notification
}

func NewGateway() *Gateway {
	return &Gateway{queues: make(map[string][]Notification)}
}

// Push appends n to its owner's queue.
func (g *Gateway) Push(n Notification) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.queues[n.Owner] = append(g.queues[n.Owner], n)
}

// Poll removes and returns every notification queued for owner, oldest
// first. It never returns nil.
func (g *Gateway) Poll(owner string) []Notification {
	g.mu.Lock()
	q := g.queues[owner]
	delete(g.queues, owner)
	g.mu.Unlock()

	if q == nil {
		return []Notification{}
	}
	return q
}

// Pending reports how many notifications are queued for owner.
func (g *Gateway) Pending(owner string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.queues[owner])
}
