package lifecycle

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dray-io/droplife/internal/drop"
)

// ErrAlreadyRegistered is returned when a drop with the same UID is added twice.
var ErrAlreadyRegistered = errors.New("drop already registered")

// Registry indexes drops by UID and groups them by OID.
// It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	byUID map[string]*drop.Drop
	byOID map[string][]string
	order []*drop.Drop
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byUID: make(map[string]*drop.Drop),
		byOID: make(map[string][]string),
	}
}

// Add registers d.
func (r *Registry) Add(d *drop.Drop) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byUID[d.UID()]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, d.UID())
	}
	r.byUID[d.UID()] = d
	r.byOID[d.OID()] = append(r.byOID[d.OID()], d.UID())
	r.order = append(r.order, d)
	return nil
}

// Remove unregisters the drop with the given UID.
// It reports whether the drop's OID has no copies left.
func (r *Registry) Remove(uid string) (last bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.byUID[uid]
	if !ok {
		return false
	}
	delete(r.byUID, uid)

	oid := d.OID()
	uids := r.byOID[oid]
	for i, u := range uids {
		if u == uid {
			uids = append(uids[:i:i], uids[i+1:]...)
			break
		}
	}
	if len(uids) == 0 {
		delete(r.byOID, oid)
		last = true
	} else {
		r.byOID[oid] = uids
	}

	for i, o := range r.order {
		if o == d {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
	return last
}

// Get returns the drop registered under uid.
func (r *Registry) Get(uid string) (*drop.Drop, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byUID[uid]
	return d, ok
}

// UIDs returns the UIDs of every registered copy of oid, in registration order.
func (r *Registry) UIDs(oid string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	uids := r.byOID[oid]
	out := make([]string, len(uids))
	copy(out, uids)
	return out
}

// Copies returns every registered copy of oid, in registration order.
func (r *Registry) Copies(oid string) []*drop.Drop {
	r.mu.RLock()
	defer r.mu.RUnlock()
	uids := r.byOID[oid]
	out := make([]*drop.Drop, 0, len(uids))
	for _, uid := range uids {
		out = append(out, r.byUID[uid])
	}
	return out
}

// Snapshot returns the registered drops in registration order. Drops added
// after the call are not included.
func (r *Registry) Snapshot() []*drop.Drop {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*drop.Drop, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of registered drops.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUID)
}
