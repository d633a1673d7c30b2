package config

import "time"

type Fetcher struct {
	// RetryBaseDelay is the backoff unit, the n-th retry of a provider waits n * RetryBaseDelay.
	RetryBaseDelay time.Duration `mapstructure:"RETRY_BASE_DELAY"`
	// DispatchTimeout bounds how long a single operation may wait for its data.
	DispatchTimeout time.Duration `mapstructure:"DISPATCH_TIMEOUT"`
}
