package config

// ServerConfig holds configuration for the aquaproc HTTP server.
type ServerConfig struct {
	Addr       string // Listen address (default ":8080")
	LogLevel   string // Log level: debug, info, warn, error
	LogFormat  string // Log format: text, json
	DBPath     string // SQLite database path (default ~/.aquaproc/jobs.db, ":memory:" for testing)
	ConfigFile string // Service config file; falls back to AQUAINFRA_CONFIG_FILE, then ./config.json
}

// DefaultServerConfig returns sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:      ":8080",
		LogLevel:  "info",
		LogFormat: "text",
	}
}
