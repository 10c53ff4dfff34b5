package dex

import (
	"fmt"
	"sync"

	"github.com/michaelpento.lv/flasharb/types"

	"github.com/ethereum/go-ethereum/common"
)

// Registry maps call targets to venues
type Registry struct {
	mu     sync.RWMutex
	venues map[common.Address]Venue
}

// NewRegistry creates an empty venue registry
func NewRegistry() *Registry {
	return &Registry{
		venues: make(map[common.Address]Venue),
	}
}

// Register adds a venue under its own address
func (r *Registry) Register(v Venue) error {
	if v == nil {
		return fmt.Errorf("venue cannot be nil")
	}
	addr := v.Address()
	if addr == (common.Address{}) {
		return fmt.Errorf("venue address cannot be zero")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.venues[addr]; exists {
		return fmt.Errorf("venue %s already registered", addr.Hex())
	}
	r.venues[addr] = v
	return nil
}

// Resolve returns the venue behind addr
func (r *Registry) Resolve(addr common.Address) (Venue, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.venues[addr]
	if !ok {
		return nil, fmt.Errorf("%w: no venue at %s", types.ErrVenueFailure, addr.Hex())
	}
	return v, nil
}

// Addresses lists every registered venue
func (r *Registry) Addresses() []common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]common.Address, 0, len(r.venues))
	for addr := range r.venues {
		out = append(out, addr)
	}
	return out
}

// NameOf returns a display name for the venue at addr
func (r *Registry) NameOf(addr common.Address) string {
	v, err := r.Resolve(addr)
	if err != nil {
		return addr.Hex()
	}
	if n, ok := v.(Named); ok {
		return n.GetName()
	}
	return addr.Hex()
}
