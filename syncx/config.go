// ABOUTME: EngineConfig controls batching, retries, and timing for the
// ABOUTME: sync engine; TableRegistration binds a registered entity to its endpoint.
package syncx

import "time"

// EngineConfig controls the sync engine's runtime behavior (spec sections
// 4.4 and 5).
type EngineConfig struct {
	// BatchSize bounds how many unsynced rows are pushed per batch.
	// Default 50, clamped to [1, 500] (spec section 4.4.1).
	BatchSize int

	// MaxRetries bounds push/pull attempts and sync_queue retry_count.
	// Default 3 (spec section 7).
	MaxRetries int

	// HTTPTimeout is the network adapter's connect/send/receive timeout.
	// Default 30s (spec section 5).
	HTTPTimeout time.Duration

	// AutoSyncEnabled toggles the periodic timer (spec section 4.4.5).
	AutoSyncEnabled bool

	// AutoSyncInterval is the period between automatic sync_all calls.
	// Default 5 minutes (spec section 4.4.5).
	AutoSyncInterval time.Duration

	// QueueRetryBase is the backoff unit between queue retries:
	// wait = (retry_count+1) * QueueRetryBase. Default 3s (spec section 5).
	QueueRetryBase time.Duration

	// PushRetryBase is the backoff unit within a single push's retry loop:
	// wait = attempt * PushRetryBase. Default 2s (spec section 4.4.1).
	PushRetryBase time.Duration

	// QueueInitialDelay is how far in the future a freshly-enqueued retry
	// is scheduled. Default 60s (spec section 4.4.1).
	QueueInitialDelay time.Duration
}

// DefaultEngineConfig returns the defaults named throughout spec sections
// 4.4, 5, and 7.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		BatchSize:         50,
		MaxRetries:        3,
		HTTPTimeout:       30 * time.Second,
		AutoSyncEnabled:   false,
		AutoSyncInterval:  5 * time.Minute,
		QueueRetryBase:    3 * time.Second,
		PushRetryBase:     2 * time.Second,
		QueueInitialDelay: 60 * time.Second,
	}
}

// Normalize clamps BatchSize to [1, 500] and fills in zero-valued fields
// with defaults, matching spec section 4.4.1's clamp requirement.
func (c EngineConfig) Normalize() EngineConfig {
	d := DefaultEngineConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.BatchSize > 500 {
		c.BatchSize = 500
	}
	if c.BatchSize < 1 {
		c.BatchSize = 1
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = d.HTTPTimeout
	}
	if c.AutoSyncInterval <= 0 {
		c.AutoSyncInterval = d.AutoSyncInterval
	}
	if c.QueueRetryBase <= 0 {
		c.QueueRetryBase = d.QueueRetryBase
	}
	if c.PushRetryBase <= 0 {
		c.PushRetryBase = d.PushRetryBase
	}
	if c.QueueInitialDelay <= 0 {
		c.QueueInitialDelay = d.QueueInitialDelay
	}
	return c
}

// TableRegistration binds a registered entity table to its remote endpoint
// and storage-table DDL, the per-table unit the engine iterates in
// registration order (spec sections 4.2 and 4.4).
type TableRegistration struct {
	Table      string
	Endpoint   string
	CreateSQL  string
	Factory    Factory
}
