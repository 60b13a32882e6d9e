package config

import (
	"strings"
)

type EnvVars struct {
	Port     string `env:"PORT" envDefault:"8080"`
	AppName  string `env:"APP_NAME" envDefault:"Utility Portal"`
	BaseURL  string `env:"BASE_URL" envDefault:"http://localhost:8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	Env      string `env:"ENV" envDefault:"DEV"`
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetPort() string {
	port := e.Port
	if port == "" {
		port = "8080"
	}
	if !strings.HasPrefix(port, ":") {
		port = ":" + port
	}
	return port
}

func (e EnvVars) GetAppName() string {
	return e.AppName
}

// GetBaseURL returns the public URL of the portal (e.g., "https://portal.example.com").
// Social login redirect URIs are built from it.
func (e EnvVars) GetBaseURL() string {
	return strings.TrimSuffix(e.BaseURL, "/")
}

func (e EnvVars) GetLogLevel() string {
	return e.LogLevel
}

func (e EnvVars) GetEnv() string {
	if e.Env == "" {
		return "DEV"
	}
	return e.Env
}
