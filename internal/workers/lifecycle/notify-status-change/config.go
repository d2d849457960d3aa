// internal/workers/lifecycle/notify-status-change/config.go
package notifystatuschange

import (
	"time"

	"loan-origination/internal/common/config"
	"loan-origination/internal/common/validation"
)

type Config struct {
	Timeout time.Duration
	// InputSchema, when set, is checked against the raw job variables
	// before they are decoded.
	InputSchema *validation.SchemaValidator
}

func LoadConfig(wc config.WorkerConfig) *Config {
	timeout := config.GetDuration(wc.Timeout)
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Config{Timeout: timeout}
}
