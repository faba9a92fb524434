package cache

import (
	"fmt"
	"time"
)

// Zone is the staleness zone of an entry.
type Zone int

const (
	ZoneFresh Zone = iota
	ZoneStale
	ZoneExpired
)

func (z Zone) String() string {
	switch z {
	case ZoneFresh:
		return "fresh"
	case ZoneStale:
		return "stale"
	default:
		return "expired"
	}
}

// Policy holds the staleness thresholds of one resource.
type Policy struct {
	// StaleAfter is the age at which an entry stops being fresh.
	StaleAfter time.Duration

	// HardTTL is the age at which an entry is treated as a miss.
	HardTTL time.Duration
}

// Zone classifies an entry at time now.
func (p Policy) Zone(e *Entry, now time.Time) Zone {
	age := e.Age(now)
	switch {
	case age < p.StaleAfter:
		return ZoneFresh
	case age < p.HardTTL:
		return ZoneStale
	default:
		return ZoneExpired
	}
}

// Validate checks that 0 < StaleAfter < HardTTL.
func (p Policy) Validate() error {
	if p.StaleAfter <= 0 {
		return fmt.Errorf("stale_after must be positive (got %s)", p.StaleAfter)
	}
	if p.HardTTL <= p.StaleAfter {
		return fmt.Errorf("hard_ttl (%s) must exceed stale_after (%s)", p.HardTTL, p.StaleAfter)
	}
	return nil
}
