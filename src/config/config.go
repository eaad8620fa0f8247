// Package config loads the CLI configuration from a yaml file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	RPCURL           string `yaml:"rpc_url"`                     // supports ${VAR} expansion
	MulticallAddress string `yaml:"multicall_address,omitempty"` // empty selects the chain default
	LogLevel         string `yaml:"log_level,omitempty"`
	Buckets          int    `yaml:"buckets,omitempty"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.RPCURL = os.ExpandEnv(cfg.RPCURL)
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc_url is required")
	}
	if cfg.Buckets < 1 {
		cfg.Buckets = 1
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	return &cfg, nil
}
