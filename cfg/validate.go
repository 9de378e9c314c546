package cfg

import (
	"fmt"
	"net"
)

const (
	// DebugLevelOutOfRangeError is returned when -g is outside [0,4].
	DebugLevelOutOfRangeError = "debug-level must be between 0 and 4"
	// BackupRequiresDanger0Error is returned when -b is set without -y.
	BackupRequiresDanger0Error = "backup (-b) requires danger0 (-y)"
	// ModeFlagsConflictError is returned when check-only is combined with
	// a fix-enabling mode flag.
	ModeFlagsConflictError = "check-only (-n) cannot be combined with safe (-a), danger0 (-y), or backup (-b)"
	// VolumeRequiredError is returned when no volume path was given.
	VolumeRequiredError = "a volume path is required"
)

// ValidateConfig performs the read-only checks BindFlags/Rationalize
// can't: flag combinations that are individually well-formed but jointly
// contradictory, and values with a fixed valid range. It never mutates
// c, mirroring the teacher's ValidateConfig.
func ValidateConfig(c *Config) error {
	if err := isValidDebugLevel(c); err != nil {
		return fmt.Errorf("error parsing logging config: %w", err)
	}
	if err := isValidModeCombination(c); err != nil {
		return fmt.Errorf("error parsing mode config: %w", err)
	}
	if err := isValidMetricsAddr(c); err != nil {
		return fmt.Errorf("error parsing metrics config: %w", err)
	}
	if c.Volume == "" {
		return fmt.Errorf("error parsing volume config: %s", VolumeRequiredError)
	}
	if c.LebSize == 0 || c.MinIOSize == 0 || c.MaxWriteSize == 0 {
		return fmt.Errorf("error parsing geometry config: leb-size, min-io-size, and max-write-size must be nonzero")
	}
	return nil
}

func isValidDebugLevel(c *Config) error {
	if c.DebugLevel < 0 || c.DebugLevel > 4 {
		return fmt.Errorf(DebugLevelOutOfRangeError)
	}
	return nil
}

func isValidModeCombination(c *Config) error {
	if c.Backup && !c.Danger0 {
		return fmt.Errorf(BackupRequiresDanger0Error)
	}
	if c.CheckOnly && (c.Safe || c.Danger0) {
		return fmt.Errorf(ModeFlagsConflictError)
	}
	return nil
}

func isValidMetricsAddr(c *Config) error {
	if c.MetricsAddr == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(c.MetricsAddr); err != nil {
		return fmt.Errorf("invalid metrics-addr %q: %w", c.MetricsAddr, err)
	}
	return nil
}
