package pipeline

import "time"

// LanesOption defines a functional configuration type for Lanes.
type LanesOption func(*Lanes)

// WithMailboxSize sets the per-key task buffer capacity.
func WithMailboxSize(size int) LanesOption {
	return func(ls *Lanes) {
		if size > 0 {
			ls.config.mailboxSize = size
		}
	}
}

// WithIdleTimeout defines the quiet period after which an empty lane is
// eligible for eviction.
func WithIdleTimeout(d time.Duration) LanesOption {
	return func(ls *Lanes) {
		if d > 0 {
			ls.config.idleTimeout = d
		}
	}
}

// WithEvictionInterval configures how often the janitor reclaims idle lanes.
func WithEvictionInterval(d time.Duration) LanesOption {
	return func(ls *Lanes) {
		if d > 0 {
			ls.config.evictionInterval = d
		}
	}
}
