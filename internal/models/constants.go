package models

import "time"

const (
	// DefaultSlotDuration is the granularity availability windows are cut into.
	DefaultSlotDuration = 15 * time.Minute

	// DefaultLeadTime is the minimum gap between now and a slot's start for a hold.
	DefaultLeadTime = 24 * time.Hour

	// DefaultHoldDuration is how long an unconfirmed hold lives.
	DefaultHoldDuration = 30 * time.Minute

	// DefaultSweepBatchSize is the page size used when a sweep reads expired holds.
	DefaultSweepBatchSize = 500

	// DefaultSweepLeaseTTL bounds how long one instance may own the sweep.
	DefaultSweepLeaseTTL = 2 * time.Minute
)
