package providers

import "time"

const (
	// shutdownTimeout is the maximum time to wait for queued handlers to drain.
	shutdownTimeout = 30 * time.Second
)
