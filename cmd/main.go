package main

import (
	"context"
	"errors"
	"io/fs"
	"runtime"
	"time"

	"github.com/Borislavv/sports-data-aggregator/internal/aggregator"
	"github.com/Borislavv/sports-data-aggregator/internal/aggregator/config"
	"github.com/Borislavv/sports-data-aggregator/pkg/k8s/probe/liveness"
	"github.com/Borislavv/sports-data-aggregator/pkg/shutdown"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"go.uber.org/automaxprocs/maxprocs"
)

// Loads .env files (a missing .env.local is fine) and binds every key through viper,
// so any value may be overridden by the process environment.
func init() {
	for _, file := range []string{".env", ".env.local"} {
		if err := godotenv.Overload(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			panic(err)
		}
	}

	viper.AutomaticEnv()
	_ = viper.BindEnv("APP_ENV")
	_ = viper.BindEnv("APP_DEBUG")
	_ = viper.BindEnv("SERVER_NAME")
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("SERVER_SHUTDOWN_TIMEOUT")
	_ = viper.BindEnv("SERVER_REQUEST_TIMEOUT")
	_ = viper.BindEnv("IS_PROMETHEUS_METRICS_ENABLED")
	_ = viper.BindEnv("LIVENESS_PROBE_FAILED_TIMEOUT")
	_ = viper.BindEnv("PROVIDERS_FILE")
	_ = viper.BindEnv("DURABLE_CACHE_DIR")
	_ = viper.BindEnv("INIT_STORAGE_LEN_PER_SHARD")
	_ = viper.BindEnv("REFRESH_INTERVAL")
	_ = viper.BindEnv("REFRESH_PARALLELISM")
	_ = viper.BindEnv("REFRESH_RATE_LIMIT")
	_ = viper.BindEnv("PURGE_INTERVAL")
	_ = viper.BindEnv("PURGE_MAX_AGE")
	_ = viper.BindEnv("RETRY_BASE_DELAY")
	_ = viper.BindEnv("DISPATCH_TIMEOUT")
	// provider credentials, looked up by name at request time
	_ = viper.BindEnv("SPORTSDATAIO_KEY")
	_ = viper.BindEnv("ODDS_API_KEY")
	_ = viper.BindEnv("ODDS_API_BACKUP_KEY")

	viper.SetDefault("SERVER_NAME", "sports-data-aggregator")
	viper.SetDefault("SERVER_PORT", ":8020")
	viper.SetDefault("SERVER_SHUTDOWN_TIMEOUT", "5s")
	viper.SetDefault("PROVIDERS_FILE", "config/providers.yaml")
	viper.SetDefault("INIT_STORAGE_LEN_PER_SHARD", 32)
	viper.SetDefault("RETRY_BASE_DELAY", "500ms")
	viper.SetDefault("DISPATCH_TIMEOUT", "25s")
}

// setMaxProcs sets GOMAXPROCS according to the cgroup CPU quota.
func setMaxProcs() {
	if _, err := maxprocs.Set(); err != nil {
		log.Err(err).Msg("[main] setting up GOMAXPROCS value failed")
		panic(err)
	}
	log.Info().Msgf("[main] optimized GOMAXPROCS=%d was set up", runtime.GOMAXPROCS(0))
}

func loadCfg() *config.Config {
	cfg := &config.Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		log.Err(err).Msg("[main] failed to unmarshal config from envs")
		panic(err)
	}
	return cfg
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	setMaxProcs()

	cfg := loadCfg()
	if !cfg.IsDebugOn() {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	gracefulShutdown := shutdown.NewGraceful(ctx, cancel)
	gracefulShutdown.SetGracefulTimeout(cfg.ServerShutDownTimeout + 5*time.Second)

	probe := liveness.NewProbe(cfg.LivenessProbeTimeout)

	if app, err := aggregator.NewApp(ctx, cfg, probe); err != nil {
		log.Err(err).Msg("[main] failed to init aggregator app")
		cancel()
	} else {
		gracefulShutdown.Add(1)
		go app.Start(gracefulShutdown)
	}

	if err := gracefulShutdown.ListenCancelAndAwait(); err != nil {
		log.Err(err).Msg("[main] failed to gracefully shut down service")
	}
}
