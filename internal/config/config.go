// Package config handles configuration loading using viper, grounded on
// the pack's capture-agent config loader: a YAML file under a single root
// key, env var overrides, viper defaults, then validation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/pollinet/relay-core/internal/transport"
)

// RootConfig is the top-level static configuration. Maps to the
// `pollinet:` root key in YAML; env vars use the POLLINET_ prefix (e.g.
// POLLINET_TRANSPORT_MTU_PAYLOAD_MAX).
type RootConfig struct {
	Transport TransportConfig `mapstructure:"transport"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Log       LogConfig       `mapstructure:"log"`
	Tick      TickConfig      `mapstructure:"tick"`
}

// TransportConfig mirrors transport.Config with mapstructure tags and
// string durations, matching spec §6.3's recognized options.
type TransportConfig struct {
	MTUPayloadMax        int    `mapstructure:"mtu_payload_max"`
	MaxTxBytes           int    `mapstructure:"max_tx_bytes"`
	ReassemblyTimeout    string `mapstructure:"reassembly_timeout"`
	MaxBuckets           int    `mapstructure:"max_buckets"`
	BucketFragmentCap    int    `mapstructure:"bucket_fragment_cap"`
	MaxTotalFragments    int    `mapstructure:"max_total_fragments"`
	DedupCapacity        int    `mapstructure:"dedup_capacity"`
	OutboundCapacity     int    `mapstructure:"outbound_capacity"`
	ReceivedCapacity     int    `mapstructure:"received_capacity"`
	ConfirmationCapacity int    `mapstructure:"confirmation_capacity"`
}

// MetricsConfig controls the Prometheus exporter.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// LogConfig controls zerolog output.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug / info / warn / error
	Format string `mapstructure:"format"` // json / console
}

// TickConfig controls the façade's maintenance scheduler cadence.
type TickConfig struct {
	Interval string `mapstructure:"interval"`
}

// configRoot wraps RootConfig to match the YAML `pollinet:` root key.
type configRoot struct {
	Pollinet RootConfig `mapstructure:"pollinet"`
}

// Load reads configuration from the YAML file at path, applying env var
// overrides and defaults, and validates the result.
func Load(path string) (*RootConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.Pollinet

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := transport.DefaultConfig()

	v.SetDefault("pollinet.transport.mtu_payload_max", d.MTUPayloadMax)
	v.SetDefault("pollinet.transport.max_tx_bytes", d.MaxTxBytes)
	v.SetDefault("pollinet.transport.reassembly_timeout", d.ReassemblyTimeout.String())
	v.SetDefault("pollinet.transport.max_buckets", d.MaxBuckets)
	v.SetDefault("pollinet.transport.bucket_fragment_cap", d.BucketFragmentCap)
	v.SetDefault("pollinet.transport.max_total_fragments", d.MaxTotalFragments)
	v.SetDefault("pollinet.transport.dedup_capacity", d.DedupCapacity)
	v.SetDefault("pollinet.transport.outbound_capacity", d.OutboundCapacity)
	v.SetDefault("pollinet.transport.received_capacity", d.ReceivedCapacity)
	v.SetDefault("pollinet.transport.confirmation_capacity", d.ConfirmationCapacity)

	v.SetDefault("pollinet.metrics.enabled", true)
	v.SetDefault("pollinet.metrics.listen", ":9090")
	v.SetDefault("pollinet.metrics.path", "/metrics")

	v.SetDefault("pollinet.log.level", "info")
	v.SetDefault("pollinet.log.format", "console")

	v.SetDefault("pollinet.tick.interval", "1s")
}

func (cfg *RootConfig) validate() error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug/info/warn/error)", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json/console)", cfg.Log.Format)
	}
	if _, err := time.ParseDuration(cfg.Transport.ReassemblyTimeout); err != nil {
		return fmt.Errorf("invalid transport.reassembly_timeout: %w", err)
	}
	if _, err := time.ParseDuration(cfg.Tick.Interval); err != nil {
		return fmt.Errorf("invalid tick.interval: %w", err)
	}
	if cfg.Transport.MTUPayloadMax <= 0 {
		return fmt.Errorf("transport.mtu_payload_max must be positive")
	}
	return nil
}

// ToTransportConfig converts the loaded config into a transport.Config.
func (cfg *RootConfig) ToTransportConfig() transport.Config {
	timeout, _ := time.ParseDuration(cfg.Transport.ReassemblyTimeout)
	return transport.Config{
		MTUPayloadMax:        cfg.Transport.MTUPayloadMax,
		MaxTxBytes:           cfg.Transport.MaxTxBytes,
		ReassemblyTimeout:    timeout,
		MaxBuckets:           cfg.Transport.MaxBuckets,
		BucketFragmentCap:    cfg.Transport.BucketFragmentCap,
		MaxTotalFragments:    cfg.Transport.MaxTotalFragments,
		DedupCapacity:        cfg.Transport.DedupCapacity,
		OutboundCapacity:     cfg.Transport.OutboundCapacity,
		ReceivedCapacity:     cfg.Transport.ReceivedCapacity,
		ConfirmationCapacity: cfg.Transport.ConfirmationCapacity,
	}
}

// TickInterval parses Tick.Interval, already validated by Load.
func (cfg *RootConfig) TickInterval() time.Duration {
	d, _ := time.ParseDuration(cfg.Tick.Interval)
	return d
}
