// Package cfg defines ubifsck's configuration surface: the fields the
// CLI's flags/environment/config file populate, plus the derivation
// (Rationalize) and checking (ValidateConfig) passes cmd/ runs over them
// before a Session is ever constructed.
package cfg

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// LogRotateConfig configures internal/logger's rotating file sink.
type LogRotateConfig struct {
	MaxFileSizeMb   int  `yaml:"max-file-size-mb" mapstructure:"max-file-size-mb"`
	BackupFileCount int  `yaml:"backup-file-count" mapstructure:"backup-file-count"`
	Compress        bool `yaml:"compress" mapstructure:"compress"`
}

// Config is the fully-resolved set of knobs a single ubifsck run is
// driven by. Volume is populated from the command's positional argument,
// never from a flag/env/config-file binding; every other field is
// bindable through BindFlags.
type Config struct {
	Volume string `yaml:"-" mapstructure:"-"`

	PrintVersion bool `yaml:"version" mapstructure:"version"`
	DebugLevel   int  `yaml:"debug-level" mapstructure:"debug-level"`

	Safe         bool `yaml:"safe" mapstructure:"safe"`
	Danger0      bool `yaml:"danger0" mapstructure:"danger0"`
	Backup       bool `yaml:"backup" mapstructure:"backup"`
	CheckOnly    bool `yaml:"check-only" mapstructure:"check-only"`
	KeepRecovery bool `yaml:"recovery" mapstructure:"recovery"`

	// Mode may be set directly in a config file instead of via the
	// individual mode flags above; Rationalize prefers the flags when
	// any of them is set and falls back to this field otherwise.
	Mode        Mode        `yaml:"mode" mapstructure:"mode"`
	LogSeverity LogSeverity `yaml:"log-severity" mapstructure:"log-severity"`

	LogFile   string          `yaml:"log-file" mapstructure:"log-file"`
	LogFormat string          `yaml:"log-format" mapstructure:"log-format"`
	LogRotate LogRotateConfig `yaml:"log-rotate" mapstructure:"log-rotate"`

	MetricsAddr string `yaml:"metrics-addr" mapstructure:"metrics-addr"`

	// Geometry overrides the file-volume defaults ubifsck assumes when
	// the volume path names a flat image rather than a live UBI device
	// node (device-node geometry discovery is out of scope; see
	// DESIGN.md). LebCount is derived from the image's file size when
	// left at 0.
	LebSize      uint32 `yaml:"leb-size" mapstructure:"leb-size"`
	MinIOSize    uint32 `yaml:"min-io-size" mapstructure:"min-io-size"`
	MaxWriteSize uint32 `yaml:"max-write-size" mapstructure:"max-write-size"`
}

// BindFlags registers every ubifsck flag on flagSet and binds it into
// viper under the same key BindFlags uses to populate Config via
// viper.Unmarshal, mirroring the teacher's generated cfg.BindFlags.
func BindFlags(flagSet *pflag.FlagSet) error {
	var err error

	flagSet.BoolP("version", "V", false, "Print the ubifsck version and exit.")
	if err = viper.BindPFlag("version", flagSet.Lookup("version")); err != nil {
		return err
	}

	flagSet.IntP("debug-level", "g", 0, "Debug verbosity, 0 (quietest) through 4 (trace).")
	if err = viper.BindPFlag("debug-level", flagSet.Lookup("debug-level")); err != nil {
		return err
	}

	flagSet.BoolP("safe", "a", false, "Safe mode: fix only problems that cannot drop data or need a rebuild.")
	if err = viper.BindPFlag("safe", flagSet.Lookup("safe")); err != nil {
		return err
	}

	flagSet.BoolP("danger0", "y", false, "Danger-0 mode: fix every fixable problem automatically.")
	if err = viper.BindPFlag("danger0", flagSet.Lookup("danger0")); err != nil {
		return err
	}

	flagSet.BoolP("backup", "b", false, "Danger-1 mode when combined with -y: also force a rebuild if needed.")
	if err = viper.BindPFlag("backup", flagSet.Lookup("backup")); err != nil {
		return err
	}

	flagSet.BoolP("check-only", "n", false, "Check mode: report problems, fix nothing.")
	if err = viper.BindPFlag("check-only", flagSet.Lookup("check-only")); err != nil {
		return err
	}

	flagSet.BoolP("recovery", "r", false, "Accepted and ignored, for command-line compatibility.")
	if err = viper.BindPFlag("recovery", flagSet.Lookup("recovery")); err != nil {
		return err
	}

	flagSet.String("mode", "", "Explicit run mode (normal, safe, danger-0, danger-1, check), overridden by -a/-y/-b/-n when set.")
	if err = viper.BindPFlag("mode", flagSet.Lookup("mode")); err != nil {
		return err
	}

	flagSet.String("log-severity", "", "Explicit log severity, overriding the level -g would otherwise derive.")
	if err = viper.BindPFlag("log-severity", flagSet.Lookup("log-severity")); err != nil {
		return err
	}

	flagSet.String("log-file", "", "Path to a rotating log file; stderr when empty.")
	if err = viper.BindPFlag("log-file", flagSet.Lookup("log-file")); err != nil {
		return err
	}

	flagSet.String("log-format", "text", "Log output format: text or json.")
	if err = viper.BindPFlag("log-format", flagSet.Lookup("log-format")); err != nil {
		return err
	}

	flagSet.Int("log-rotate-max-file-size-mb", 10, "Log file size, in MiB, that triggers rotation.")
	if err = viper.BindPFlag("log-rotate.max-file-size-mb", flagSet.Lookup("log-rotate-max-file-size-mb")); err != nil {
		return err
	}

	flagSet.Int("log-rotate-backup-file-count", 5, "Number of rotated log files to retain (0 retains all).")
	if err = viper.BindPFlag("log-rotate.backup-file-count", flagSet.Lookup("log-rotate-backup-file-count")); err != nil {
		return err
	}

	flagSet.Bool("log-rotate-compress", false, "Gzip-compress rotated log files.")
	if err = viper.BindPFlag("log-rotate.compress", flagSet.Lookup("log-rotate-compress")); err != nil {
		return err
	}

	flagSet.String("metrics-addr", "", "Address to serve Prometheus metrics on (disabled when empty).")
	if err = viper.BindPFlag("metrics-addr", flagSet.Lookup("metrics-addr")); err != nil {
		return err
	}

	flagSet.Uint32("leb-size", 126976, "LEB size in bytes, for volumes opened as a flat image.")
	if err = viper.BindPFlag("leb-size", flagSet.Lookup("leb-size")); err != nil {
		return err
	}

	flagSet.Uint32("min-io-size", 2048, "Minimum I/O unit size in bytes, for volumes opened as a flat image.")
	if err = viper.BindPFlag("min-io-size", flagSet.Lookup("min-io-size")); err != nil {
		return err
	}

	flagSet.Uint32("max-write-size", 2048, "Maximum single-write size in bytes, for volumes opened as a flat image.")
	if err = viper.BindPFlag("max-write-size", flagSet.Lookup("max-write-size")); err != nil {
		return err
	}

	return nil
}
