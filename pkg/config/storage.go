package config

import "time"

type Storage struct {
	// DurableCacheDir is a leveldb directory mirroring the in-memory cache.
	// Empty disables the durable tier, ":memory:" keeps it in process memory.
	DurableCacheDir           string `mapstructure:"DURABLE_CACHE_DIR"`
	InitStorageLengthPerShard int    `mapstructure:"INIT_STORAGE_LEN_PER_SHARD"`
	// PurgeInterval is how often entries older than PurgeMaxAge are removed (zero disables purging).
	PurgeInterval time.Duration `mapstructure:"PURGE_INTERVAL"`
	PurgeMaxAge   time.Duration `mapstructure:"PURGE_MAX_AGE"`
}
