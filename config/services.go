package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the HTTP server.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeOrphanReaper runs the worker that repairs identities left without a profile.
	ServiceModeOrphanReaper ServiceMode = "orphan-reaper"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{ServiceModeHTTP, ServiceModeOrphanReaper}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if strings.TrimSpace(servicesStr) == "" {
		return services, errors.New("at least one service must be specified")
	}

	for _, part := range strings.Split(servicesStr, ",") {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeHTTP, ServiceModeOrphanReaper:
			services[mode] = true
		default:
			return nil, fmt.Errorf("invalid service name: %q (valid options: http, orphan-reaper)", serviceName)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// OrphanReaperConfig contains configuration for the orphan identity reaper.
type OrphanReaperConfig struct {
	// Interval is how often the queue is drained.
	Interval time.Duration `env:"ORPHAN_REAPER_INTERVAL" envDefault:"1m"`
	// BatchSize is the number of orphans handled per tick.
	BatchSize int `env:"ORPHAN_REAPER_BATCH_SIZE" envDefault:"50"`
	// MaxAttempts drops an orphan (with an error log) after this many failed deletions.
	MaxAttempts int `env:"ORPHAN_REAPER_MAX_ATTEMPTS" envDefault:"10"`
}

// Sanitize applies guardrails to reaper configuration values.
func (c *OrphanReaperConfig) Sanitize() {
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
	if c.BatchSize < 1 {
		c.BatchSize = 1
	}
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 1
	}
}
