package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Env holds overrides and secrets read from the environment.
type Env struct {
	DeepgramAPIKey string `env:"DEEPGRAM_API_KEY"`
	DBPath         string `env:"READFLUENT_DB"`
	LogLevel       string `env:"READFLUENT_LOG_LEVEL"`
	LogFile        string `env:"READFLUENT_LOG_FILE"`
}

// LoadEnv reads Env from the process environment.
func LoadEnv() (Env, error) {
	var e Env
	if err := env.Parse(&e); err != nil {
		return Env{}, fmt.Errorf("failed to parse env: %w", err)
	}
	return e, nil
}
