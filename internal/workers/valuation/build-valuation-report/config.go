// internal/workers/valuation/build-valuation-report/config.go
package buildvaluationreport

import (
	"time"

	"valuation-workers/internal/common/config"
)

type Config struct {
	Timeout     time.Duration
	CompanyName string
	AppVersion  string
	// SchemaPath overrides the built-in report schema when set.
	SchemaPath string
	CacheTTL   time.Duration
}

func LoadConfig(cfg *config.Config) *Config {
	c := &Config{
		Timeout:     10 * time.Second,
		CompanyName: cfg.Report.CompanyName,
		AppVersion:  cfg.App.Version,
		SchemaPath:  cfg.Report.SchemaPath,
		CacheTTL:    5 * time.Minute,
	}
	if w, ok := cfg.Workers[TaskType]; ok && w.Timeout > 0 {
		c.Timeout = time.Duration(w.Timeout) * time.Millisecond
	}
	return c
}
