package database

import (
	"context"
	"database/sql"
	"fmt"
)

// Connection holds the pool and the single dedicated connection every
// statement of a session runs on. Cursors and transactions are connection
// state, so nothing may use the pool directly once Conn is taken.
type Connection struct {
	DB   *sql.DB
	Conn *sql.Conn
}

// Open opens driverName with dsn, pings it and reserves one connection.
func Open(ctx context.Context, driverName, dsn string) (*Connection, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driverName, err)
	}
	db.SetMaxOpenConns(1)

	conn, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Connection{DB: db, Conn: conn}, nil
}

// Close releases the dedicated connection and the pool.
func (c *Connection) Close() error {
	if c == nil {
		return nil
	}
	var first error
	if c.Conn != nil {
		first = c.Conn.Close()
	}
	if err := c.DB.Close(); err != nil && first == nil {
		first = err
	}
	return first
}

// Ping checks the dedicated connection.
func (c *Connection) Ping(ctx context.Context) error {
	if c == nil || c.Conn == nil {
		return fmt.Errorf("not connected")
	}
	return c.Conn.PingContext(ctx)
}
