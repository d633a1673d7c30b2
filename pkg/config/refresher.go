package config

import "time"

type Refresher struct {
	// RefreshInterval is how often warm resources are checked (zero disables the background refresher).
	RefreshInterval    time.Duration `mapstructure:"REFRESH_INTERVAL"`
	RefreshParallelism int           `mapstructure:"REFRESH_PARALLELISM"`
	// RefreshRateLimit is the max refreshes started per second.
	RefreshRateLimit float64 `mapstructure:"REFRESH_RATE_LIMIT"`
}
