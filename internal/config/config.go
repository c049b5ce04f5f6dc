// Package config loads the node's typed configuration from RHEIA_*
// environment variables, per spec: the CLI itself takes no arguments.
package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds every tunable named in the specification, each defaulted
// to the mandated constant so a bare `rheia-node` with no environment
// overrides runs to spec.
type Config struct {
	ListenAddr string `envconfig:"LISTEN_ADDR" default:"0.0.0.0:9000"`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info"`

	MaxParallelTasks int           `envconfig:"MAX_PARALLEL_TASKS" default:"256"`
	MaxBatchSize     int           `envconfig:"MAX_BATCH_SIZE" default:"64"`
	FlushDelayMin    time.Duration `envconfig:"FLUSH_DELAY_MIN" default:"100ms"`
	FlushDelayMax    time.Duration `envconfig:"FLUSH_DELAY_MAX" default:"500ms"`

	ProposeDelayMin   time.Duration `envconfig:"PROPOSE_DELAY_MIN" default:"0ms"`
	ProposeDelayMax   time.Duration `envconfig:"PROPOSE_DELAY_MAX" default:"500ms"`
	MaxTransactionIDs int           `envconfig:"MAX_TRANSACTION_IDS" default:"65535"`
	MaxPendingSize    int           `envconfig:"MAX_PENDING_SIZE" default:"1000000"`

	SamplerAlpha float64 `envconfig:"SAMPLER_ALPHA" default:"0.80"`
	SamplerBeta  int     `envconfig:"SAMPLER_BETA" default:"150"`

	RecentIDCacheSize int `envconfig:"RECENT_ID_CACHE_SIZE" default:"16384"`
}

// Load reads Config from the environment, applying defaults for anything
// unset.
func Load() (Config, error) {
	var c Config
	if err := envconfig.Process("rheia", &c); err != nil {
		return Config{}, err
	}
	return c, nil
}
