// internal/workers/valuation/calculate-valuation/config.go
package calculatevaluation

import (
	"time"

	"valuation-workers/internal/common/config"
)

type Config struct {
	Timeout time.Duration
}

func LoadConfig(wcfg config.WorkerConfig) *Config {
	cfg := &Config{
		Timeout: 30 * time.Second,
	}
	if wcfg.Timeout > 0 {
		cfg.Timeout = time.Duration(wcfg.Timeout) * time.Millisecond
	}
	return cfg
}
