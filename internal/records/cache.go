package records

import (
	"sync"
	"time"

	"github.com/beacon-mdns/beacon/internal/protocol"
)

// ChangeKind identifies what happened to a record in the cache when a
// listener fires.
type ChangeKind int

const (
	// Added means the record was not previously cached.
	Added ChangeKind = iota
	// Updated means an existing record's TTL/timestamp was refreshed, or a
	// unique record's payload was superseded.
	Updated
	// Removed means a goodbye (TTL=0) record deleted the cached entry.
	Removed
	// Expired means Reap evicted the record after its TTL lapsed.
	Expired
)

// Listener is notified on insert, update, removal, or expiry of a record
// matching the (name, type) it was registered for.
type Listener func(r *Record, kind ChangeKind)

type listenerKey struct {
	name string
	typ  uint16 // 0 matches every type for the name
}

// Cache stores records keyed by (lowercased name, type, class), with
// TTL-driven expiry and per-(name,type) change listeners. The cache is the
// exclusive owner of cached records: callers hand it freshly decoded
// records and it decides whether to insert, refresh, or supersede.
//
// A key maps to a slice, not a single record, because name+type+class alone
// does not identify a record: RFC 6762 §5.2 has many non-unique records
// share a name (the canonical case being one PTR per discovered instance
// under a single service-type name). Records within a slice are kept
// distinct by Same; Put only refreshes or supersedes the slice entry whose
// payload is the same as the incoming record.
type Cache struct {
	mu        sync.Mutex
	byKey     map[string][]*Record
	listeners map[listenerKey][]Listener
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{
		byKey:     make(map[string][]*Record),
		listeners: make(map[listenerKey][]Listener),
	}
}

// AddListener registers fn to be called whenever a record matching
// (name, typ) changes. Pass typ 0 to match every type for that name.
func (c *Cache) AddListener(name string, typ uint16, fn Listener) {
	key := listenerKey{name: normalizedName(name), typ: typ}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners[key] = append(c.listeners[key], fn)
}

// notify fires listeners for r's (name, type) and the name's wildcard
// listeners, on a snapshot taken before iteration so a listener that
// registers another listener cannot deadlock or race the slice.
func (c *Cache) notify(r *Record, kind ChangeKind) {
	c.mu.Lock()
	exact := append([]Listener(nil), c.listeners[listenerKey{name: normalizedName(r.Name), typ: uint16(r.Type)}]...)
	wild := append([]Listener(nil), c.listeners[listenerKey{name: normalizedName(r.Name), typ: 0}]...)
	c.mu.Unlock()
	for _, fn := range exact {
		fn(r, kind)
	}
	for _, fn := range wild {
		fn(r, kind)
	}
}

// Put inserts r, applying the cache's identity and refresh policy:
//
//   - among the records already sharing r's (name, type, class) key, if
//     none is "same as" r (same payload) and r is not unique, r coexists
//     alongside them as a new entry (Added) — this is what lets multiple
//     non-unique records (e.g. one PTR per service instance) share a name.
//   - if none is "same as" r and r.Class is unique (cache-flush), the first
//     entry under the key takes r's payload and TTL (Updated) and any other
//     entries under the key are dropped (Removed).
//   - if one is "same as" r, and r.Class is unique (cache-flush) or r.TTL
//     exceeds twice that entry's remaining TTL, its payload is superseded
//     by r (Updated, new payload).
//   - otherwise that entry is refreshed in place via ResetTTL (Updated,
//     same payload, new expiry).
//   - a TTL of 0 (goodbye) always removes the one matching entry, if any
//     (Removed), instead of inserting or refreshing; it never touches
//     sibling entries under the same key.
func (c *Cache) Put(r *Record, now time.Time) {
	c.mu.Lock()
	key := r.Key()
	siblings := c.byKey[key]
	idx := indexOfSame(siblings, r)

	if r.TTL == 0 {
		if idx >= 0 {
			existing := siblings[idx]
			c.byKey[key] = removeAt(siblings, idx)
			if len(c.byKey[key]) == 0 {
				delete(c.byKey, key)
			}
			c.mu.Unlock()
			c.notify(existing, Removed)
			return
		}
		c.mu.Unlock()
		return
	}

	if idx >= 0 {
		existing := siblings[idx]
		if r.Class.Unique() || r.TTL > existing.RemainingTTL(now)*2 {
			existing.TTL = r.TTL
			existing.CreatedAt = now
			existing.Class = r.Class
			copyPayload(existing, r)
			c.mu.Unlock()
			c.notify(existing, Updated)
			return
		}
		existing.ResetTTL(r.TTL, now)
		c.mu.Unlock()
		c.notify(existing, Updated)
		return
	}

	if r.Class.Unique() && len(siblings) > 0 {
		existing := siblings[0]
		dropped := append([]*Record(nil), siblings[1:]...)
		existing.TTL = r.TTL
		existing.CreatedAt = now
		existing.Class = r.Class
		copyPayload(existing, r)
		c.byKey[key] = siblings[:1]
		c.mu.Unlock()
		c.notify(existing, Updated)
		for _, d := range dropped {
			c.notify(d, Removed)
		}
		return
	}

	r.CreatedAt = now
	c.byKey[key] = append(siblings, r)
	c.mu.Unlock()
	c.notify(r, Added)
}

// indexOfSame returns the index of the record in recs that is Same as r, or
// -1 if none matches.
func indexOfSame(recs []*Record, r *Record) int {
	for i, existing := range recs {
		if existing.Same(r) {
			return i
		}
	}
	return -1
}

// removeAt returns recs with the element at idx spliced out, reusing the
// backing array.
func removeAt(recs []*Record, idx int) []*Record {
	return append(recs[:idx], recs[idx+1:]...)
}

func copyPayload(dst, src *Record) {
	dst.Address = src.Address
	dst.Pointer = src.Pointer
	dst.Text = src.Text
	dst.Service = src.Service
	dst.HostInfo = src.HostInfo
	dst.Opt = src.Opt
}

// Get returns a cached record matching name, typ, class, if any. Several
// distinct-payload records can share that key (see Cache); callers that
// need all of them should use GetAll or ByType instead.
func (c *Cache) Get(name string, typ protocol.Type, class protocol.Class) (*Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	probe := &Record{Name: name, Type: typ, Class: class}
	recs := c.byKey[probe.Key()]
	if len(recs) == 0 {
		return nil, false
	}
	return recs[0], true
}

// GetAll returns every cached record for name, regardless of type.
func (c *Cache) GetAll(name string) []*Record {
	name = normalizedName(name)
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*Record
	for _, recs := range c.byKey {
		for _, r := range recs {
			if normalizedName(r.Name) == name {
				out = append(out, r)
			}
		}
	}
	return out
}

// ByType returns every cached record of the given type.
func (c *Cache) ByType(typ protocol.Type) []*Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*Record
	for _, recs := range c.byKey {
		for _, r := range recs {
			if r.Type == typ {
				out = append(out, r)
			}
		}
	}
	return out
}

// Remove deletes r from the cache, notifying listeners with Removed. Only
// the sibling entry r.Same matches is removed; other payloads sharing its
// key are untouched.
func (c *Cache) Remove(r *Record) {
	c.mu.Lock()
	key := r.Key()
	recs := c.byKey[key]
	idx := indexOfSame(recs, r)
	var existing *Record
	if idx >= 0 {
		existing = recs[idx]
		recs = removeAt(recs, idx)
		if len(recs) == 0 {
			delete(c.byKey, key)
		} else {
			c.byKey[key] = recs
		}
	}
	c.mu.Unlock()
	if existing != nil {
		c.notify(existing, Removed)
	}
}

// Clear empties the cache without firing listeners; used when the owned
// name set is reverted after a conflict or an I/O recovery.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byKey = make(map[string][]*Record)
}

// Reap evicts every record expired as of now, notifying listeners with
// Expired for each.
func (c *Cache) Reap(now time.Time) {
	c.mu.Lock()
	var expired []*Record
	for key, recs := range c.byKey {
		var kept []*Record
		for _, r := range recs {
			if r.IsExpired(now) {
				expired = append(expired, r)
			} else {
				kept = append(kept, r)
			}
		}
		if len(kept) == 0 {
			delete(c.byKey, key)
		} else {
			c.byKey[key] = kept
		}
	}
	c.mu.Unlock()
	for _, r := range expired {
		c.notify(r, Expired)
	}
}

// Len reports the number of cached records.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, recs := range c.byKey {
		n += len(recs)
	}
	return n
}
