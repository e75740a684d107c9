package config

// ConfigDiff describes what changed between two configs. Hot-reloadable
// fields are tracked individually; everything else lands in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// ResearchChanged is true when the pipeline tuning (default depth,
	// source cap, task age) changed. New tasks pick the values up; running
	// tasks finish with the old ones.
	ResearchChanged bool

	// AuthChanged is true when token lifetimes changed. Applies to newly
	// issued tokens only.
	AuthChanged bool

	// RestartRequired lists config groups whose changes cannot be applied
	// to a running server (database, llm, embeddings, search, fetch,
	// server address).
	RestartRequired []string
}

// Changed reports whether the diff carries any change at all.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.ResearchChanged || d.AuthChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Research != new.Research {
		d.ResearchChanged = true
	}
	if old.Auth != new.Auth {
		d.AuthChanged = true
	}

	if old.Server.ListenAddr != new.Server.ListenAddr ||
		old.Server.ShutdownTimeout != new.Server.ShutdownTimeout {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if old.Database != new.Database {
		d.RestartRequired = append(d.RestartRequired, "database")
	}
	if old.LLM != new.LLM {
		d.RestartRequired = append(d.RestartRequired, "llm")
	}
	if old.Embeddings != new.Embeddings {
		d.RestartRequired = append(d.RestartRequired, "embeddings")
	}
	if !searchEqual(old.Search, new.Search) {
		d.RestartRequired = append(d.RestartRequired, "search")
	}
	if old.Fetch != new.Fetch {
		d.RestartRequired = append(d.RestartRequired, "fetch")
	}

	return d
}

// searchEqual compares search configs field by field; the struct carries a
// slice and a map and cannot be compared directly.
func searchEqual(a, b SearchConfig) bool {
	if a.Command != b.Command || a.SearxngURL != b.SearxngURL ||
		a.Timeout != b.Timeout || a.QueryDelay != b.QueryDelay {
		return false
	}
	if len(a.Args) != len(b.Args) || len(a.Env) != len(b.Env) {
		return false
	}
	for i := range a.Args {
		if a.Args[i] != b.Args[i] {
			return false
		}
	}
	for k, v := range a.Env {
		if b.Env[k] != v {
			return false
		}
	}
	return true
}
