// Package postgres persists execution results, the audit log and registry
// state in PostgreSQL via pgx.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	defaultPort    = 5432
	defaultSSLMode = "disable"
	migrationTable = "harness_migrations"
)

// ClientConfig is either a full DSN or the parts to build one from.
type ClientConfig struct {
	DSN      string
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string
	MaxConns int
	MinConns int
}

// DSN returns cfg.DSN when set, otherwise a postgres:// URL with the
// credentials escaped.
func DSN(cfg ClientConfig) string {
	if dsn := strings.TrimSpace(cfg.DSN); dsn != "" {
		return dsn
	}
	port := cfg.Port
	if port == 0 {
		port = defaultPort
	}
	mode := cfg.SSLMode
	if mode == "" {
		mode = defaultSSLMode
	}
	u := url.URL{
		Scheme:   "postgres",
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(port)),
		Path:     "/" + cfg.Database,
		RawQuery: url.Values{"sslmode": {mode}}.Encode(),
	}
	if cfg.User != "" {
		u.User = url.UserPassword(cfg.User, cfg.Password)
	}
	return u.String()
}

// Client owns the pgx pool the execution, audit and registry stores share.
type Client struct {
	pool *pgxpool.Pool
}

// New opens the pool and fails unless the server answers a ping.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	pc, err := pgxpool.ParseConfig(DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("postgres: bad connection settings: %w", err)
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		pc.MinConns = int32(cfg.MinConns)
	}
	pc.ConnConfig.DialFunc = dialIPv4First

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("postgres: open pool: %w", err)
	}
	c := &Client{pool: pool}
	if err := c.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) Pool() *pgxpool.Pool { return c.pool }

// Ping doubles as the /healthz check for the store.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres: unreachable: %w", err)
	}
	return nil
}

func (c *Client) Close() { c.pool.Close() }

// migrationFiles lists the embedded .sql files in apply order.
func migrationFiles() ([]string, error) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("postgres: list migrations: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && path.Ext(e.Name()) == ".sql" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// RunMigrations brings the schema up to date. Each file runs in its own
// transaction together with its row in harness_migrations, so a rerun skips
// whatever already landed.
func (c *Client) RunMigrations(ctx context.Context) error {
	ddl := `CREATE TABLE IF NOT EXISTS ` + migrationTable + ` (
		filename   TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`
	if _, err := c.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("postgres: migration table: %w", err)
	}

	names, err := migrationFiles()
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := c.applyMigration(ctx, name); err != nil {
			return fmt.Errorf("postgres: migration %s: %w", name, err)
		}
	}
	return nil
}

func (c *Client) applyMigration(ctx context.Context, name string) error {
	var done bool
	q := `SELECT EXISTS(SELECT 1 FROM ` + migrationTable + ` WHERE filename = $1)`
	if err := c.pool.QueryRow(ctx, q, name).Scan(&done); err != nil {
		return fmt.Errorf("lookup: %w", err)
	}
	if done {
		return nil
	}

	body, err := migrationsFS.ReadFile(path.Join("migrations", name))
	if err != nil {
		return err
	}
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, string(body)); err != nil {
		return fmt.Errorf("apply: %w", err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO `+migrationTable+` (filename) VALUES ($1)`, name); err != nil {
		return fmt.Errorf("mark applied: %w", err)
	}
	return tx.Commit(ctx)
}

// dialIPv4First tries every A record before handing addr to the default
// dialer. Some hosted Postgres endpoints publish AAAA records that are not
// routable from IPv4-only networks.
func dialIPv4First(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("postgres: dial %q: %w", addr, err)
	}
	var d net.Dialer

	if ip := net.ParseIP(host); ip != nil {
		nw := "tcp6"
		if ip.To4() != nil {
			nw = "tcp4"
		}
		return d.DialContext(ctx, nw, addr)
	}

	v4, lookupErr := net.DefaultResolver.LookupIP(ctx, "ip4", host)
	for _, ip := range v4 {
		conn, err := d.DialContext(ctx, "tcp4", net.JoinHostPort(ip.String(), port))
		if err == nil {
			return conn, nil
		}
	}
	conn, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("postgres: dial %q: %w", addr, errors.Join(lookupErr, err))
	}
	return conn, nil
}
