package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

//go:embed secrets.example.toml
var ExampleSecretsTOML []byte

// Secrets holds named warehouse connection profiles. The layout matches
// Streamlit's secrets.toml so an existing file can be reused as-is:
//
//	[connections.snowflake]
//	account = "xy12345.eu-west-1"
//	user = "dashboard"
type Secrets struct {
	Connections map[string]Connection `toml:"connections"`
}

// Connection is one warehouse profile. Which fields matter depends on Type.
type Connection struct {
	Type string `toml:"type"` // snowflake (default), postgres, sqlite

	// Snowflake
	Account   string `toml:"account"`
	User      string `toml:"user"`
	Password  string `toml:"password"`
	Role      string `toml:"role"`
	Warehouse string `toml:"warehouse"`
	Database  string `toml:"database"`
	Schema    string `toml:"schema"`

	// Postgres / Redshift
	URL string `toml:"url"`

	// SQLite
	Path string `toml:"path"`
}

// Connection types.
const (
	TypeSnowflake = "snowflake"
	TypePostgres  = "postgres"
	TypeSQLite    = "sqlite"
)

// Kind returns the connection type, defaulting to snowflake.
func (c Connection) Kind() string {
	if c.Type == "" {
		return TypeSnowflake
	}
	return c.Type
}

// ResolveSecretsPath finds the secrets file following priority:
// explicit path > ~/.config/resultsdash/secrets.toml > ./.streamlit/secrets.toml
func ResolveSecretsPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("secrets file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgSecrets := filepath.Join(ConfigDir(), "secrets.toml")
	if _, err := os.Stat(xdgSecrets); err == nil {
		return xdgSecrets, nil
	}

	streamlitSecrets := filepath.Join(".streamlit", "secrets.toml")
	if _, err := os.Stat(streamlitSecrets); err == nil {
		return streamlitSecrets, nil
	}

	return "", fmt.Errorf(
		"no secrets file found; searched:\n  %s\n  ./.streamlit/secrets.toml",
		xdgSecrets,
	)
}

// LoadSecrets reads and parses a secrets TOML file.
func LoadSecrets(path string) (*Secrets, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading secrets: %w", err)
	}
	return parseSecrets(data)
}

func parseSecrets(data []byte) (*Secrets, error) {
	s := &Secrets{}
	if _, err := toml.Decode(string(data), s); err != nil {
		return nil, fmt.Errorf("parsing secrets: %w", err)
	}
	if s.Connections == nil {
		s.Connections = map[string]Connection{}
	}
	return s, nil
}
