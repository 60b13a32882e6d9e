package config

import "time"

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendFile   = "file"
)

type Session struct {
	CookieName    string        `env:"SESSION_COOKIE" envDefault:"portal_sid"`
	MaxAge        time.Duration `env:"SESSION_MAX_AGE" envDefault:"720h"`
	Backend       string        `env:"CREDENTIAL_BACKEND" envDefault:"memory"`
	RedisAddr     string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB" envDefault:"0"`
	File          string        `env:"CREDENTIAL_FILE" envDefault:"./data/credentials.json"`
	Key           string        `env:"CREDENTIAL_KEY"` // hex encoded, 32 bytes
}

var _ SessionConfig = Session{}

func (s Session) GetSessionCookieName() string {
	return s.CookieName
}

func (s Session) GetSessionMaxAge() time.Duration {
	return s.MaxAge
}

func (s Session) GetCredentialBackend() string {
	return s.Backend
}

func (s Session) GetRedisAddr() string {
	return s.RedisAddr
}

func (s Session) GetRedisPassword() string {
	return s.RedisPassword
}

func (s Session) GetRedisDB() int {
	return s.RedisDB
}

func (s Session) GetCredentialFile() string {
	return s.File
}

func (s Session) GetCredentialKey() string {
	return s.Key
}
