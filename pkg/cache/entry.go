package cache

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/Sternrassler/storefront-gateway/pkg/catalog"
)

// Source records which chain step produced an entry's payload.
type Source string

const (
	SourcePrimary       Source = "primary"
	SourceSecondary     Source = "secondary"
	SourceStaleFallback Source = "stale-fallback"
	SourceStatic        Source = "static"
)

// Entry represents a cached query result.
type Entry struct {
	// Key is the Key.String() the entry is stored under
	Key string `json:"key"`

	// Items is the normalized payload. Never empty for stored entries.
	Items []catalog.Item `json:"items"`

	// FetchedAt is when the payload was fetched from its upstream
	FetchedAt time.Time `json:"fetched_at"`

	// Source is the chain step that produced the payload
	Source Source `json:"source"`

	// Checksum is the xxhash of the encoded payload
	Checksum uint64 `json:"checksum"`
}

// NewEntry creates an entry and computes its payload checksum.
func NewEntry(key string, items []catalog.Item, source Source, fetchedAt time.Time) *Entry {
	return &Entry{
		Key:       key,
		Items:     items,
		FetchedAt: fetchedAt,
		Source:    source,
		Checksum:  Checksum(items),
	}
}

// Checksum hashes an item payload. Equal payloads hash equally.
func Checksum(items []catalog.Item) uint64 {
	data, err := json.Marshal(items)
	if err != nil {
		return 0
	}
	return xxhash.Sum64(data)
}

// Age returns how long ago the entry was fetched.
func (e *Entry) Age(now time.Time) time.Duration {
	age := now.Sub(e.FetchedAt)
	if age < 0 {
		return 0
	}
	return age
}

// ETag returns a strong HTTP entity tag for the payload.
func (e *Entry) ETag() string {
	return fmt.Sprintf(`"%016x"`, e.Checksum)
}
