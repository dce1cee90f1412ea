package grpccomm

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// EnvConfig is the launch identity injected by a process launcher.
type EnvConfig struct {
	Rank  int      `env:"RANK" envDefault:"-1"`
	Peers []string `env:"PEERS" envSeparator:","`
}

// Present reports whether the launcher set a rank.
func (e EnvConfig) Present() bool {
	return e.Rank >= 0
}

// ParseEnv reads GRIDFLOW_RANK and GRIDFLOW_PEERS.
func ParseEnv() (EnvConfig, error) {
	var cfg EnvConfig
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "GRIDFLOW_"}); err != nil {
		return EnvConfig{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
