package config

import (
	"time"

	aggregatorConfig "github.com/Borislavv/sports-data-aggregator/pkg/config"
	"github.com/Borislavv/sports-data-aggregator/pkg/server/config"
)

type Config struct {
	fasthttpconfig.HttpServer `mapstructure:",squash"`
	aggregatorConfig.Config   `mapstructure:",squash"`

	LivenessProbeTimeout time.Duration `mapstructure:"LIVENESS_PROBE_FAILED_TIMEOUT"`
}
