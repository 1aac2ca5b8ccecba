package sqlbackend

import (
	"fmt"
	"os"
	"time"
)

// DefaultSQLPort is the default Dolt sql-server MySQL-protocol port.
const DefaultSQLPort = 3306

// Config configures how a Backend connects to its Dolt database, either
// embedded in-process or over the MySQL wire protocol to a dolt sql-server.
type Config struct {
	// Path is the directory holding the embedded Dolt database. Ignored in
	// server mode.
	Path string
	// Database is the logical Dolt database name.
	Database string

	ServerMode     bool
	ServerHost     string
	ServerPort     int
	ServerUser     string
	ServerPassword string
	ServerTLS      bool

	CommitterName  string
	CommitterEmail string

	ReadOnly bool

	// OpenTimeout is set to 30s by applyDefaults when zero. The open paths
	// do not read it; the embedded open retries under its own fixed bound.
	OpenTimeout time.Duration
}

func (cfg *Config) applyDefaults() {
	if cfg.Database == "" {
		cfg.Database = "elemental"
	}
	if cfg.CommitterName == "" {
		cfg.CommitterName = os.Getenv("GIT_AUTHOR_NAME")
		if cfg.CommitterName == "" {
			cfg.CommitterName = "elemental"
		}
	}
	if cfg.CommitterEmail == "" {
		cfg.CommitterEmail = os.Getenv("GIT_AUTHOR_EMAIL")
		if cfg.CommitterEmail == "" {
			cfg.CommitterEmail = "elemental@local"
		}
	}
	if cfg.ServerMode {
		if cfg.ServerHost == "" {
			cfg.ServerHost = "127.0.0.1"
		}
		if cfg.ServerPort == 0 {
			cfg.ServerPort = DefaultSQLPort
		}
		if cfg.ServerUser == "" {
			cfg.ServerUser = "root"
		}
		if cfg.ServerPassword == "" {
			cfg.ServerPassword = os.Getenv("ELEMENTAL_DOLT_PASSWORD")
		}
	}
	if cfg.OpenTimeout == 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
}

func buildServerDSN(cfg *Config, database string) string {
	var userPart string
	if cfg.ServerPassword != "" {
		userPart = fmt.Sprintf("%s:%s", cfg.ServerUser, cfg.ServerPassword)
	} else {
		userPart = cfg.ServerUser
	}

	dbPart := "/"
	if database != "" {
		dbPart = "/" + database
	}

	params := "parseTime=true"
	if cfg.ServerTLS {
		params += "&tls=true"
	}

	return fmt.Sprintf("%s@tcp(%s:%d)%s?%s", userPart, cfg.ServerHost, cfg.ServerPort, dbPart, params)
}
