package config

import (
	"fmt"
	"strings"
)

var validLogLevels = map[string]bool{
	"debug":   true,
	"info":    true,
	"warn":    true,
	"warning": true,
	"error":   true,
}

// ValidationResult splits problems into fatals, which must stop the
// program, and warnings, which were corrected in place.
type ValidationResult struct {
	Fatals   []error
	Warnings []error
}

func (r ValidationResult) HasFatals() bool { return len(r.Fatals) > 0 }

// ValidateTiered checks the config. Out-of-range numbers are clamped to a
// safe range and reported as warnings; values nothing can be inferred from
// are fatal.
func (c *Config) ValidateTiered() ValidationResult {
	var r ValidationResult

	if c.DisplayIndex < 0 {
		r.Fatals = append(r.Fatals, fmt.Errorf("display_index %d must not be negative", c.DisplayIndex))
	}
	if c.LogLevel != "" && !validLogLevels[strings.ToLower(c.LogLevel)] {
		r.Fatals = append(r.Fatals, fmt.Errorf("log_level %q is not valid (use debug, info, warn, error)", c.LogLevel))
	}
	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		r.Fatals = append(r.Fatals, fmt.Errorf("log_format %q is not valid (use text or json)", c.LogFormat))
	}

	if strings.TrimSpace(c.OutputDir) == "" {
		r.Warnings = append(r.Warnings, fmt.Errorf("output_dir is empty, using %q", Default().OutputDir))
		c.OutputDir = Default().OutputDir
	}

	clamp(&r, "poll_interval_ms", &c.PollIntervalMs, 1, 1000)
	clamp(&r, "grab_timeout_ms", &c.GrabTimeoutMs, 1, 600000)
	clamp(&r, "record_frames", &c.RecordFrames, 1, 100000)
	clamp(&r, "workers", &c.Workers, 1, 64)
	clamp(&r, "queue_size", &c.QueueSize, 1, 10000)
	clamp(&r, "log_max_size_mb", &c.LogMaxSizeMB, 1, 1024)
	clamp(&r, "log_max_backups", &c.LogMaxBackups, 1, 100)

	return r
}

func clamp(r *ValidationResult, key string, v *int, lo, hi int) {
	switch {
	case *v < lo:
		r.Warnings = append(r.Warnings, fmt.Errorf("%s %d is below minimum %d, clamping", key, *v, lo))
		*v = lo
	case *v > hi:
		r.Warnings = append(r.Warnings, fmt.Errorf("%s %d exceeds maximum %d, clamping", key, *v, hi))
		*v = hi
	}
}
