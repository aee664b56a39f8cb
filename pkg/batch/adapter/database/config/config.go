// Package config holds the settings of one named database connection,
// decoded from an entry of the "adapter.database" block.
package config

// PoolConfig holds database connection pool settings.
type PoolConfig struct {
	MaxOpenConns           int `yaml:"max_open_conns" default:"4"`
	MaxIdleConns           int `yaml:"max_idle_conns" default:"2"`
	ConnMaxLifetimeMinutes int `yaml:"conn_max_lifetime_minutes"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Type     string `yaml:"type"`     // "sqlite", "postgres" or "mysql".
	Host     string `yaml:"host" default:"localhost"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"` // Database name, or the file path for sqlite.
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Schema   string `yaml:"schema,omitempty"` // search_path for PostgreSQL.
	Sslmode  string `yaml:"sslmode" default:"disable"`
	// BusyTimeoutMillis is how long sqlite waits on a locked database.
	BusyTimeoutMillis int        `yaml:"busy_timeout_ms" default:"5000"`
	Pool              PoolConfig `yaml:"pool"`
}
