// Package worker refreshes the station snapshot in the background, on a
// schedule and on request from a Pub/Sub subscription.
package worker

import (
	"time"

	"github.com/synopmap/synopmap/internal/config"
	"github.com/synopmap/synopmap/internal/ogimet"
)

// RefreshConfig holds configuration for the snapshot refresh job.
type RefreshConfig struct {
	// Interval is the time between scheduled refreshes.
	// Default: 1 hour
	Interval time.Duration

	// Timeout bounds a single refresh.
	// Default: 2 minutes
	Timeout time.Duration

	// AlignToSynopHours delays the first scheduled refresh until
	// PublicationDelay after the next synoptic hour, so that ticks land
	// once the new bulletin is out.
	AlignToSynopHours bool

	// PublicationDelay is how long after a synoptic hour its bulletin is
	// expected upstream.
	// Default: 20 minutes
	PublicationDelay time.Duration

	// SkipInitial disables the refresh run at start-up.
	SkipInitial bool
}

// DefaultRefreshConfig returns the default refresh configuration.
func DefaultRefreshConfig() RefreshConfig {
	return RefreshConfig{
		Interval:          time.Hour,
		Timeout:           2 * time.Minute,
		AlignToSynopHours: true,
		PublicationDelay:  20 * time.Minute,
	}
}

// RefreshConfigFrom applies the worker settings of the application
// configuration to DefaultRefreshConfig.
func RefreshConfigFrom(c config.WorkerConfig) RefreshConfig {
	cfg := DefaultRefreshConfig()
	if c.Interval > 0 {
		cfg.Interval = c.Interval
	}
	if c.Timeout > 0 {
		cfg.Timeout = c.Timeout
	}
	return cfg
}

func (c RefreshConfig) withDefaults() RefreshConfig {
	defaults := DefaultRefreshConfig()
	if c.Interval <= 0 {
		c.Interval = defaults.Interval
	}
	if c.Timeout <= 0 {
		c.Timeout = defaults.Timeout
	}
	if c.PublicationDelay <= 0 {
		c.PublicationDelay = defaults.PublicationDelay
	}
	return c
}

// FirstDelay returns how long to wait from now before the first scheduled
// refresh.
func (c RefreshConfig) FirstDelay(now time.Time) time.Duration {
	c = c.withDefaults()
	if !c.AlignToSynopHours {
		return c.Interval
	}

	next := ogimet.LatestSynopTime(now).Add(c.PublicationDelay)
	for !next.After(now) {
		next = next.Add(ogimet.SynopInterval)
	}
	return next.Sub(now)
}
