package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config interface {
	EnvConfig
	CorsConfig
	UtilityAPIConfig
	SessionConfig
	SocialConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetBaseURL() string
	GetLogLevel() string
	GetEnv() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type UtilityAPIConfig interface {
	GetUtilityAPIURL() string
	GetUtilityAPIKey() string
	GetUtilityAPITimeout() time.Duration
	GetAPITokenLifetime() time.Duration
}

type SessionConfig interface {
	GetSessionCookieName() string
	GetSessionMaxAge() time.Duration
	GetCredentialBackend() string
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
	GetCredentialFile() string
	GetCredentialKey() string
}

type SocialConfig interface {
	GetGoogleClientID() string
	GetGoogleClientSecret() string
	GetFacebookClientID() string
	GetFacebookClientSecret() string
}

type mainConfig struct {
	EnvVars
	Cors
	UtilityAPI
	Session
	Social
}

// New reads the configuration from the process environment.
func New() (Config, error) {
	var c mainConfig
	if err := env.Parse(&c); err != nil {
		return nil, fmt.Errorf("[config New] parse environment: %w", err)
	}
	return c, nil
}
