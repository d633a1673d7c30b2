package catalog

import (
	"strings"

	"github.com/spf13/viper"
)

// Secrets resolves credential values by env name.
type Secrets interface {
	Lookup(name string) (value string, found bool)
}

// EnvSecrets reads credentials through viper, so .env files and process env both apply.
type EnvSecrets struct{}

func (EnvSecrets) Lookup(name string) (string, bool) {
	v := strings.TrimSpace(viper.GetString(name))
	return v, v != ""
}

// StaticSecrets is a fixed set of credentials.
type StaticSecrets map[string]string

func (s StaticSecrets) Lookup(name string) (string, bool) {
	v, ok := s[name]
	return v, ok && v != ""
}
