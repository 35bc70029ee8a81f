package transport

import "github.com/patrickmn/go-cache"

// dedupSet is a FIFO-evicted bounded set of transaction id hex strings,
// grounded on two teacher patterns at once: the `completed map[uint16]
// time.Time` recently-seen guard in the teacher's fragment reassembler,
// and the go-cache-backed lookup in its SessionManager. go-cache supplies
// the concurrent-safe membership store; since go-cache's own eviction is
// TTL-based and this set has no TTL (spec §4.4: "No TTL — identifiers
// persist... until evicted by capacity"), entries are stored with
// cache.NoExpiration and a parallel insertion-order slice drives capacity
// eviction instead.
type dedupSet struct {
	store    *cache.Cache
	order    []string
	capacity int
}

func newDedupSet(capacity int) *dedupSet {
	if capacity <= 0 {
		capacity = 1
	}
	return &dedupSet{
		store:    cache.New(cache.NoExpiration, cache.NoExpiration),
		order:    make([]string, 0, capacity),
		capacity: capacity,
	}
}

func (d *dedupSet) contains(txID string) bool {
	_, found := d.store.Get(txID)
	return found
}

// insert adds txID if not already present, evicting the oldest entry
// first if the set is at capacity.
func (d *dedupSet) insert(txID string) {
	if d.contains(txID) {
		return
	}
	if len(d.order) >= d.capacity {
		oldest := d.order[0]
		d.order = d.order[1:]
		d.store.Delete(oldest)
	}
	d.store.Set(txID, struct{}{}, cache.NoExpiration)
	d.order = append(d.order, txID)
}

func (d *dedupSet) size() int {
	return len(d.order)
}
