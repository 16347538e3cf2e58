package nats

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Deduplicator suppresses redelivered events by event id within a TTL
// window. The transport is at-least-once; whether consumers collapse
// duplicates is an explicit policy, not an accident.
type Deduplicator struct {
	seen *gocache.Cache
}

func NewDeduplicator(window time.Duration) *Deduplicator {
	if window <= 0 {
		window = 10 * time.Minute
	}
	return &Deduplicator{
		seen: gocache.New(window, window),
	}
}

// Seen records (topic, eventID) and reports whether it was already recorded
// inside the window.
func (d *Deduplicator) Seen(topic, eventID string) bool {
	key := topic + "/" + eventID
	if err := d.seen.Add(key, struct{}{}, gocache.DefaultExpiration); err != nil {
		return true
	}
	return false
}
