package repository

import (
	"sync"

	"go.uber.org/zap"

	"github.com/iliyamo/parking-ticket-tracker/internal/clock"
	"github.com/iliyamo/parking-ticket-tracker/internal/store"
)

// Registry hands out one TicketRepo per device and keeps it for the life of
// the process, so that every request for a device shares the same lock.
type Registry struct {
	kv        store.Store
	namespace string
	clock     clock.Clock
	log       *zap.Logger

	mu    sync.Mutex
	repos map[string]*TicketRepo
}

func NewRegistry(kv store.Store, namespace string, clk clock.Clock, log *zap.Logger) *Registry {
	return &Registry{kv: kv, namespace: namespace, clock: clk, log: log, repos: make(map[string]*TicketRepo)}
}

// For returns the repository of device, creating it on first use.
func (g *Registry) For(device string) *TicketRepo {
	g.mu.Lock()
	defer g.mu.Unlock()
	if r, ok := g.repos[device]; ok {
		return r
	}
	r := NewTicketRepo(g.kv, g.namespace, device, g.clock, g.log)
	g.repos[device] = r
	return r
}
