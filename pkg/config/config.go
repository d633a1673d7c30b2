package config

type Config struct {
	AppEnv   string `mapstructure:"APP_ENV"`
	AppDebug bool   `mapstructure:"APP_DEBUG"`
	// ProvidersFile is a path to the YAML catalog of providers and resources.
	ProvidersFile string `mapstructure:"PROVIDERS_FILE"`

	Storage   `mapstructure:",squash"`
	Refresher `mapstructure:",squash"`
	Fetcher   `mapstructure:",squash"`
}

func (c *Config) IsProd() bool {
	return c.AppEnv == "prod"
}

func (c *Config) IsDebugOn() bool {
	return c.AppDebug
}
