// Package config provides a reusable loader for per-node object-mesh
// configuration files and environment variables. It is versioned so that
// applications can depend on a stable API contract.
//
// Version: v0.2.0
package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/liberum-neto/objectnet/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.2.0"

// Config is the persisted configuration for a single node, stored at
// <nodes-root>/<name>/config.yaml.
type Config struct {
	Network struct {
		ListenAddr     string   `mapstructure:"listen_addr" yaml:"listen_addr" json:"listen_addr"`
		DiscoveryTag   string   `mapstructure:"discovery_tag" yaml:"discovery_tag" json:"discovery_tag"`
		BootstrapPeers []string `mapstructure:"bootstrap_peers" yaml:"bootstrap_peers" json:"bootstrap_peers"`
		ExternalAddrs  []string `mapstructure:"external_addrs" yaml:"external_addrs" json:"external_addrs"`
	} `mapstructure:"network" yaml:"network" json:"network"`

	Logging struct {
		Level string `mapstructure:"level" yaml:"level" json:"level"`
	} `mapstructure:"logging" yaml:"logging" json:"logging"`
}

// Default returns the baseline configuration assigned to a freshly created
// node: wildcard QUIC listen address, no bootstrap peers, info logging.
func Default() Config {
	var c Config
	c.Network.ListenAddr = "/ip6/::/udp/0/quic-v1"
	c.Network.DiscoveryTag = "liberum-neto"
	c.Logging.Level = "info"
	return c
}

// Load reads the YAML configuration file at path. It returns the default
// configuration, unmodified, if the file does not exist — a freshly created
// node directory has no config.yaml until the first Save.
func Load(path string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return &cfg, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, utils.Wrap(err, "load node config")
	}
	v.AutomaticEnv()
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, utils.Wrap(err, "unmarshal node config")
	}
	return &cfg, nil
}

// Save writes cfg as YAML to path, creating parent directories as needed.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return utils.Wrap(err, "create node directory")
	}
	v := viper.New()
	v.Set("network", cfg.Network)
	v.Set("logging", cfg.Logging)
	v.SetConfigType("yaml")
	if err := v.WriteConfigAs(path); err != nil {
		return utils.Wrap(err, "save node config")
	}
	return nil
}
