package config

import (
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/joacominatel/dataview/internal/database"
	"github.com/joacominatel/dataview/internal/page"
)

// AppID keys the preferences of this application.
const AppID = "dataview"

// Config represents the application configuration.
type Config struct {
	Connections []Connection   `mapstructure:"connections" yaml:"connections"`
	Preferences Preferences    `mapstructure:"preferences" yaml:"preferences"`
	Paging      map[string]int `mapstructure:"paging" yaml:"paging"`
}

// Connection represents a saved database connection profile. The password
// lives in the system keyring, never in the file.
type Connection struct {
	Name     string `mapstructure:"name" yaml:"name"`
	Driver   string `mapstructure:"driver" yaml:"driver"`
	Client   string `mapstructure:"client" yaml:"client,omitempty"`
	Host     string `mapstructure:"host" yaml:"host,omitempty"`
	Port     int    `mapstructure:"port" yaml:"port,omitempty"`
	Database string `mapstructure:"database" yaml:"database,omitempty"`
	Username string `mapstructure:"username" yaml:"username,omitempty"`
	Password string `mapstructure:"-" yaml:"-"`
	SSLMode  string `mapstructure:"sslmode" yaml:"sslmode,omitempty"`
	Path     string `mapstructure:"path" yaml:"path,omitempty"`
}

// Preferences holds user preferences.
type Preferences struct {
	Theme                string `mapstructure:"theme" yaml:"theme"`
	DefaultConnection    string `mapstructure:"default_connection" yaml:"default_connection"`
	UseScrollableCursors bool   `mapstructure:"use_scrollable_cursors" yaml:"use_scrollable_cursors"`
	LogLevel             string `mapstructure:"log_level" yaml:"log_level"`
}

// Backend returns the backend the profile connects to.
func (c Connection) Backend() (database.Backend, error) {
	return database.ParseBackend(c.Driver)
}

// DSN builds the driver connection string for the profile.
func (c Connection) DSN() string {
	b, _ := c.Backend()
	switch b {
	case database.MySQL:
		cfg := mysql.NewConfig()
		cfg.User = c.Username
		cfg.Passwd = c.Password
		cfg.Net = "tcp"
		port := c.Port
		if port == 0 {
			port = 3306
		}
		cfg.Addr = net.JoinHostPort(c.Host, strconv.Itoa(port))
		cfg.DBName = c.Database
		return cfg.FormatDSN()
	case database.SQLite:
		return c.Path
	}

	u := url.URL{Scheme: "postgresql", Host: c.Host, Path: "/" + c.Database}
	if c.Port > 0 {
		u.Host = net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	}
	if c.Username != "" {
		if c.Password != "" {
			u.User = url.UserPassword(c.Username, c.Password)
		} else {
			u.User = url.User(c.Username)
		}
	}
	if c.SSLMode != "" {
		u.RawQuery = "sslmode=" + url.QueryEscape(c.SSLMode)
	}
	return u.String()
}

// DisplayString returns a human-readable summary of the connection.
func (c Connection) DisplayString() string {
	if b, _ := c.Backend(); b == database.SQLite {
		return "sqlite:" + c.Path
	}
	s := c.Host
	if c.Port > 0 {
		s += ":" + strconv.Itoa(c.Port)
	}
	s += "/" + c.Database
	if c.Username != "" {
		s = c.Username + "@" + s
	}
	return s
}

// ParseDSN parses a connection string into a Connection. It accepts
// postgres:// and postgresql:// URLs, mysql:// URLs, go-sql-driver/mysql
// DSNs (user:pass@tcp(host:port)/db), sqlite:<path> and bare paths to
// SQLite files.
func ParseDSN(dsn string) (Connection, error) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return parseURL(dsn, "postgres", 5432)
	case strings.HasPrefix(dsn, "mysql://"):
		return parseURL(dsn, "mysql", 3306)
	case strings.HasPrefix(dsn, "sqlite:"):
		return sqliteConnection(strings.TrimPrefix(dsn, "sqlite:")), nil
	case strings.Contains(dsn, "@tcp("):
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return Connection{}, fmt.Errorf("invalid DSN: %w", err)
		}
		host, portStr, _ := net.SplitHostPort(cfg.Addr)
		port, _ := strconv.Atoi(portStr)
		conn := Connection{
			Driver:   "mysql",
			Host:     host,
			Port:     port,
			Database: cfg.DBName,
			Username: cfg.User,
			Password: cfg.Passwd,
		}
		conn.Name = fmt.Sprintf("mysql-%s-%d-%s", conn.Host, conn.Port, conn.Database)
		return conn, nil
	case dsn == ":memory:" || isSQLitePath(dsn):
		return sqliteConnection(dsn), nil
	}
	return Connection{}, fmt.Errorf("invalid DSN: unrecognised connection string %q", dsn)
}

func parseURL(dsn, driver string, defaultPort int) (Connection, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return Connection{}, fmt.Errorf("invalid DSN: %w", err)
	}

	conn := Connection{
		Driver:   driver,
		Host:     u.Hostname(),
		Database: strings.TrimPrefix(u.Path, "/"),
		SSLMode:  u.Query().Get("sslmode"),
	}

	if u.User != nil {
		conn.Username = u.User.Username()
		if p, ok := u.User.Password(); ok {
			conn.Password = p
		}
	}

	if portStr := u.Port(); portStr != "" {
		conn.Port, _ = strconv.Atoi(portStr)
	}
	if conn.Port == 0 {
		conn.Port = defaultPort
	}

	// Auto-generate a name
	conn.Name = fmt.Sprintf("%s-%s-%d-%s", driver, conn.Host, conn.Port, conn.Database)

	return conn, nil
}

func sqliteConnection(path string) Connection {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if path == ":memory:" {
		name = "memory"
	}
	return Connection{Name: "sqlite-" + name, Driver: "sqlite", Path: path}
}

func isSQLitePath(s string) bool {
	switch strings.ToLower(filepath.Ext(s)) {
	case ".db", ".sqlite", ".sqlite3":
		return true
	}
	return false
}

// HasConnection checks if a connection with the given name already exists.
func (cfg *Config) HasConnection(name string) bool {
	return cfg.FindConnection(name) != nil
}

// FindConnection returns the connection with the given name, or nil.
func (cfg *Config) FindConnection(name string) *Connection {
	for i := range cfg.Connections {
		if cfg.Connections[i].Name == name {
			return &cfg.Connections[i]
		}
	}
	return nil
}

// AddConnection appends a connection if it doesn't already exist.
func (cfg *Config) AddConnection(conn Connection) {
	if !cfg.HasConnection(conn.Name) {
		cfg.Connections = append(cfg.Connections, conn)
	}
}

// PageSize returns the stored page size for appID, or page.DefaultSize.
func (cfg *Config) PageSize(appID string) int {
	if n, ok := cfg.Paging[strings.ToLower(appID)]; ok && n >= 0 {
		return n
	}
	return page.DefaultSize
}

// SetPageSize stores the page size for appID.
func (cfg *Config) SetPageSize(appID string, n int) {
	if n < 0 {
		n = 0
	}
	if cfg.Paging == nil {
		cfg.Paging = make(map[string]int)
	}
	// viper lowercases keys on read
	cfg.Paging[strings.ToLower(appID)] = n
}
