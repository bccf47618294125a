package models

import "time"

const (
	CapacityModeSum   = "sum"
	CapacityModeSweep = "sweep"
)

const (
	SyncStatusPending   = "pending"
	SyncStatusRetry     = "retry"
	SyncStatusCompleted = "completed"
	SyncStatusFailed    = "failed"
)

const (
	// DefaultCredits is the balance a profile starts with.
	DefaultCredits = 1000

	// SettledListingCacheTTL how long a settled listing stays in the cache
	SettledListingCacheTTL = 24 * time.Hour

	// MaxListingLength upper bound for endsAt relative to creation
	MaxListingLength = 365 * 24 * time.Hour

	// DefaultReportDays number of days in an occupancy export
	DefaultReportDays = 31

	// MaxReportDays upper bound for the days of an occupancy export
	MaxReportDays = 366

	// WorkerQueueSize size of the in-memory sync queue
	WorkerQueueSize = 128

	DateLayout = "2006-01-02"
)
