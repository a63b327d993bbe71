package realtime

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Deduplicator filters redelivered changes by key. Keys expire after the
// window, so a change redelivered much later is let through again and
// reconciled idempotently by the projection.
type Deduplicator struct {
	seen *gocache.Cache
}

func NewDeduplicator(window time.Duration) *Deduplicator {
	return &Deduplicator{seen: gocache.New(window, 2*window)}
}

// IsDuplicate returns true if key has been seen within the window.
// If not a duplicate, marks the key as seen.
func (d *Deduplicator) IsDuplicate(key string) bool {
	return d.seen.Add(key, struct{}{}, gocache.DefaultExpiration) != nil
}

// Len is the number of keys currently remembered.
func (d *Deduplicator) Len() int {
	return d.seen.ItemCount()
}
