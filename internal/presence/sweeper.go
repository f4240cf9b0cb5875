package presence

import (
	"context"
	"log"
	"time"
)

// Sweeper periodically evicts records whose connections went away without a
// close frame. The registry's liveness window already hides them from peer
// lists; the sweeper reclaims the memory and notifies rooms.
type Sweeper struct {
	registry *Registry
	interval time.Duration
}

// NewSweeper creates a sweeper. A zero interval defaults to a third of the
// registry's liveness window so a stale record survives at most one window
// plus one tick.
func NewSweeper(registry *Registry, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = registry.Window() / 3
	}
	return &Sweeper{registry: registry, interval: interval}
}

// Run loops until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			changed := s.registry.SweepExpired(time.Now())
			for _, room := range changed {
				log.Printf("presence: swept stale records from %s", room)
			}
		}
	}
}
