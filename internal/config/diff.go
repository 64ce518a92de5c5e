package config

import "reflect"

// ConfigDiff describes what changed between two configs.
// Only the log level can be applied to a running process; every other
// changed section is listed in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RestartRequired names the changed sections that take effect only after
	// a restart, in schema order (e.g., "server.listen_addr", "agent").
	RestartRequired []string
}

// Empty reports whether d records no change at all.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	sections := []struct {
		name     string
		old, new any
	}{
		{"server.listen_addr", old.Server.ListenAddr, new.Server.ListenAddr},
		{"server.shutdown_timeout", old.Server.ShutdownTimeout, new.Server.ShutdownTimeout},
		{"provider", old.Provider, new.Provider},
		{"agent", old.Agent, new.Agent},
		{"breaker", old.Breaker, new.Breaker},
		{"mcp", old.MCP, new.MCP},
	}
	for _, s := range sections {
		if !reflect.DeepEqual(s.old, s.new) {
			d.RestartRequired = append(d.RestartRequired, s.name)
		}
	}
	return d
}
