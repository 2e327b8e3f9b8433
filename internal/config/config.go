// Package config handles Reynard's global configuration loading using
// viper, mirroring the teacher's internal/config.Load: one YAML file
// under a root key, environment overrides, and explicit defaults.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/mpifr-bdr/reynard/internal/log"
)

// GlobalConfig is the top-level static configuration shared by every
// Reynard daemon. Each binary only reads the sections it needs; the
// rest sit at their zero value.
type GlobalConfig struct {
	Telescope  string          `mapstructure:"telescope"`
	ConfigRoot string          `mapstructure:"config_root"` // REYNARD_CONFIG
	Node       NodeConfig      `mapstructure:"node"`
	Control    ControlConfig   `mapstructure:"control"`
	Multicast  MulticastConfig `mapstructure:"multicast"`
	NodePool   NodePoolConfig  `mapstructure:"node_pool"`
	UBN        UBNConfig       `mapstructure:"ubn"`
	Metrics    MetricsConfig   `mapstructure:"metrics"`
	Log        log.Config      `mapstructure:"log"`
}

// NodeConfig identifies the host this daemon runs on.
type NodeConfig struct {
	Hostname string `mapstructure:"hostname"` // empty = os.Hostname()
}

// ControlConfig configures the KATCP control-plane listener and the
// admin (status/stop/reload) surface that rides the same transport.
type ControlConfig struct {
	Listen  string `mapstructure:"listen"`
	PIDFile string `mapstructure:"pid_file"`
}

// MulticastConfig configures the Aggregator's multicast ingress.
type MulticastConfig struct {
	Addr         string `mapstructure:"addr"`
	Interface    string `mapstructure:"interface"`
	TickInterval string `mapstructure:"tick_interval"` // e.g. "1s"
}

// NodePoolConfig locates the Node Pool manifest under ConfigRoot.
type NodePoolConfig struct {
	ManifestPath string `mapstructure:"manifest_path"` // <config_root>/nodes/<set>.json
}

// UBNConfig configures a Backend Node's host-telemetry sensors.
type UBNConfig struct {
	Volumes      []string `mapstructure:"volumes"`
	NumCPU       int      `mapstructure:"num_cpu"`
	NUMANodes    int      `mapstructure:"numa_nodes"`
	MonitorTick  string   `mapstructure:"monitor_tick"` // e.g. "1s"
}

// MetricsConfig configures the per-daemon Prometheus HTTP endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// configRoot wraps GlobalConfig under the YAML root key "reynard:",
// matching the teacher's capture-agent: wrapper convention.
type configRoot struct {
	Reynard GlobalConfig `mapstructure:"reynard"`
}

// Load reads path (YAML), applies REYNARD_-prefixed environment
// overrides and defaults, and validates the result.
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	v.SetEnvPrefix("reynard")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("config: unmarshal %s: %w", path, err)
	}
	cfg := root.Reynard

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("reynard.telescope", "effelsberg")
	v.SetDefault("reynard.control.listen", ":7147")
	v.SetDefault("reynard.control.pid_file", "/var/run/reynard.pid")

	v.SetDefault("reynard.multicast.addr", "224.168.2.132:1602")

	v.SetDefault("reynard.node_pool.manifest_path", "nodes/default.json")

	v.SetDefault("reynard.metrics.enabled", true)
	v.SetDefault("reynard.metrics.listen", ":9147")
	v.SetDefault("reynard.metrics.path", "/metrics")

	v.SetDefault("reynard.log.level", "info")
	v.SetDefault("reynard.log.pattern", "%time [%level] %field %msg")
}

// applyDefaults fills in values that depend on the running host rather
// than a static default, the way the teacher's resolveNodeIP does for
// node.ip.
func (cfg *GlobalConfig) applyDefaults() error {
	if cfg.Node.Hostname == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return fmt.Errorf("config: resolve hostname: %w", err)
		}
		cfg.Node.Hostname = hostname
	}
	if cfg.ConfigRoot == "" {
		if root := os.Getenv("REYNARD_CONFIG"); root != "" {
			cfg.ConfigRoot = root
		} else {
			cfg.ConfigRoot = "/etc/reynard"
		}
	}
	return nil
}
