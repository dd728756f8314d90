// Package warehouse resolves named connection profiles to shared database
// handles and runs read-only queries against them.
package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"

	_ "github.com/lib/pq"
	sf "github.com/snowflakedb/gosnowflake"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/TobiSchelling/resultsdash/internal/config"
)

// Provider hands out one Conn per profile name for the life of the process.
type Provider struct {
	profiles map[string]config.Connection
	logger   *zap.SugaredLogger

	mu    sync.Mutex
	conns map[string]*Conn
}

// NewProvider creates a provider over the given profiles.
func NewProvider(profiles map[string]config.Connection, logger *zap.SugaredLogger) *Provider {
	return &Provider{
		profiles: profiles,
		logger:   logger,
		conns:    make(map[string]*Conn),
	}
}

// Get returns the connection for the named profile, opening it on first use.
// Credentials are not checked here; a bad password surfaces on the first query.
func (p *Provider) Get(name string) (*Conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.conns[name]; ok {
		return c, nil
	}

	profile, ok := p.profiles[name]
	if !ok {
		return nil, &ConfigurationError{Name: name, Err: errors.New("no such profile in secrets")}
	}

	driver, dsn, err := driverDSN(profile)
	if err != nil {
		return nil, &ConfigurationError{Name: name, Err: err}
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, &ConfigurationError{Name: name, Err: fmt.Errorf("opening %s handle: %w", driver, err)}
	}

	c := &Conn{name: name, kind: profile.Kind(), db: db}
	p.conns[name] = c
	p.logger.Infow("opened warehouse connection", "name", name, "type", c.kind)
	return c, nil
}

// Source returns a Querier bound to the named profile. The profile is
// resolved on each query, so a configuration problem surfaces when the
// data is first needed.
func (p *Provider) Source(name string) *Source {
	return &Source{provider: p, name: name}
}

// Source runs queries against one named profile.
type Source struct {
	provider *Provider
	name     string
}

// Query resolves the profile and runs query on it.
func (s *Source) Query(ctx context.Context, query string) (*Table, error) {
	c, err := s.provider.Get(s.name)
	if err != nil {
		return nil, err
	}
	return c.Query(ctx, query)
}

// Close closes every connection opened so far.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for name, c := range p.conns {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", name, err))
		}
		delete(p.conns, name)
	}
	return errors.Join(errs...)
}

// driverDSN maps a profile onto a registered database/sql driver name and DSN.
func driverDSN(c config.Connection) (string, string, error) {
	switch c.Kind() {
	case config.TypeSnowflake:
		dsn, err := snowflakeDSN(c)
		if err != nil {
			return "", "", err
		}
		return "snowflake", dsn, nil
	case config.TypePostgres:
		if c.URL == "" {
			return "", "", errors.New("postgres profile requires url")
		}
		return "postgres", c.URL, nil
	case config.TypeSQLite:
		if c.Path == "" {
			return "", "", errors.New("sqlite profile requires path")
		}
		path := config.ExpandPath(c.Path)
		if _, err := os.Stat(path); err != nil {
			return "", "", fmt.Errorf("sqlite warehouse not found: %w", err)
		}
		return "sqlite", path + "?_pragma=query_only(1)", nil
	default:
		return "", "", fmt.Errorf("unknown connection type %q", c.Type)
	}
}

func snowflakeDSN(c config.Connection) (string, error) {
	cfg := &sf.Config{
		Account:   c.Account,
		User:      c.User,
		Password:  c.Password,
		Role:      c.Role,
		Warehouse: c.Warehouse,
		Database:  c.Database,
		Schema:    c.Schema,
	}
	dsn, err := sf.DSN(cfg)
	if err != nil {
		return "", fmt.Errorf("building snowflake dsn: %w", err)
	}
	return dsn, nil
}

// Conn is a shared handle to one configured data source.
type Conn struct {
	name string
	kind string
	db   *sql.DB
}

// NewConn wraps an already opened handle.
func NewConn(name, kind string, db *sql.DB) *Conn {
	return &Conn{name: name, kind: kind, db: db}
}

// Name returns the profile name.
func (c *Conn) Name() string { return c.name }

// Kind returns the profile type.
func (c *Conn) Kind() string { return c.kind }

// Query runs a read-only statement and returns the full result.
func (c *Conn) Query(ctx context.Context, query string) (*Table, error) {
	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, &QueryExecutionError{Query: query, Err: err}
	}
	defer rows.Close()

	t, err := scanTable(rows)
	if err != nil {
		return nil, &QueryExecutionError{Query: query, Err: err}
	}
	return t, nil
}

// Ping checks that the data source is reachable.
func (c *Conn) Ping(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return &QueryExecutionError{Query: "ping", Err: err}
	}
	return nil
}

// Close closes the underlying handle.
func (c *Conn) Close() error {
	return c.db.Close()
}
