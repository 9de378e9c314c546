package cfg

// Rationalize derives cross-field state the individual flags/config-file
// values don't carry on their own: the overall Mode from the -a/-y/-b/-n
// flags (falling back to an explicit Mode set in a config file), and the
// LogSeverity from DebugLevel when no explicit severity was given. It
// mutates c in place, the way the teacher's own Rationalize derives
// EnableEmptyManagedFolders/metadata-cache settings from sibling fields.
func Rationalize(c *Config) error {
	rationalizeMode(c)
	rationalizeLogSeverity(c)
	return nil
}

// rationalizeMode applies the flags' fixed precedence: -n (check-only)
// beats -a (safe) beats -y/-b (danger-0, or danger-1 when both are set)
// beats an explicit config-file Mode, which beats the normal-mode
// default. A later flag never silently overrides an earlier one; each
// tier only applies when every higher tier is absent.
func rationalizeMode(c *Config) {
	switch {
	case c.CheckOnly:
		c.Mode = ModeCheck
	case c.Safe:
		c.Mode = ModeSafe
	case c.Danger0 && c.Backup:
		c.Mode = ModeDanger1
	case c.Danger0:
		c.Mode = ModeDanger0
	case c.Mode != "":
		// Explicit config-file mode, left as-is.
	default:
		c.Mode = ModeNormal
	}
}

// rationalizeLogSeverity honors an explicit LogSeverity (from a config
// file) over the derived one, so a user who only wants to override
// logging doesn't also have to recompute it from -g.
func rationalizeLogSeverity(c *Config) {
	if c.LogSeverity != "" {
		return
	}
	c.LogSeverity = levelFromDebug(c.DebugLevel)
}
