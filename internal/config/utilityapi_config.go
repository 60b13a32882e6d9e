package config

import (
	"strings"
	"time"
)

// apiTokenLifetime is assumed by the client; the issuance endpoint does not
// return an expiry of its own.
const apiTokenLifetime = 24 * time.Hour

type UtilityAPI struct {
	URL     string        `env:"UTILITY_API_URL" envDefault:"http://localhost:9000"`
	APIKey  string        `env:"UTILITY_API_KEY"`
	Timeout time.Duration `env:"UTILITY_API_TIMEOUT" envDefault:"15s"`
}

var _ UtilityAPIConfig = UtilityAPI{}

func (u UtilityAPI) GetUtilityAPIURL() string {
	return strings.TrimSuffix(u.URL, "/")
}

func (u UtilityAPI) GetUtilityAPIKey() string {
	return u.APIKey
}

func (u UtilityAPI) GetUtilityAPITimeout() time.Duration {
	if u.Timeout <= 0 {
		return 15 * time.Second
	}
	return u.Timeout
}

func (UtilityAPI) GetAPITokenLifetime() time.Duration {
	return apiTokenLifetime
}
