package registry

import (
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Ktl-XV/account-monitor/internal/metrics"
	"github.com/Ktl-XV/account-monitor/internal/model"
)

// InsertResult reports whether an Insert changed the registry.
type InsertResult int

const (
	Inserted InsertResult = iota
	AlreadyPresent
)

// Registry is the shared set of watched accounts. Reads are lock-free: the
// current map is published through an atomic pointer and never mutated after
// publication. Writers copy the whole map under a mutex; inserts are rare
// (bootstrap plus occasional admin calls) and the map stays small.
type Registry struct {
	mu      sync.Mutex
	current atomic.Pointer[map[common.Address]string]
}

// New creates an empty registry.
func New() *Registry {
	r := &Registry{}
	empty := make(map[common.Address]string)
	r.current.Store(&empty)
	return r
}

// Insert adds an account. Inserting an address that is already watched is a
// no-op and keeps the existing label.
func (r *Registry) Insert(acc model.Account) InsertResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := *r.current.Load()
	if _, ok := cur[acc.Address]; ok {
		return AlreadyPresent
	}

	next := make(map[common.Address]string, len(cur)+1)
	for k, v := range cur {
		next[k] = v
	}
	next[acc.Address] = acc.Label
	r.current.Store(&next)
	metrics.RegistrySize.Set(float64(len(next)))
	return Inserted
}

// Contains reports whether the address is watched.
func (r *Registry) Contains(addr common.Address) bool {
	_, ok := (*r.current.Load())[addr]
	return ok
}

// Get returns the label for a watched address.
func (r *Registry) Get(addr common.Address) (string, bool) {
	label, ok := (*r.current.Load())[addr]
	return label, ok
}

// Snapshot returns the current address set. The returned map must not be
// mutated.
func (r *Registry) Snapshot() map[common.Address]string {
	return *r.current.Load()
}

// Len returns the number of watched accounts.
func (r *Registry) Len() int {
	return len(*r.current.Load())
}
