package registry

// Option defines a functional configuration type for the Hub.
type Option func(*Hub)

// WithFanOut keeps every concurrent session for a user and delivers to all of
// them. Default is most-recent-wins: a new connection replaces the previous
// one.
func WithFanOut(enabled bool) Option {
	return func(h *Hub) {
		h.config.fanOut = enabled
	}
}

// WithChangesBuffer sizes the reconnect-notification channel drained by the
// replay driver.
func WithChangesBuffer(size int) Option {
	return func(h *Hub) {
		if size > 0 {
			h.config.changesBuffer = size
		}
	}
}
