package app

import (
	"context"
	"fmt"

	"github.com/joacominatel/dataview/internal/database"
	"github.com/joacominatel/dataview/internal/database/mysql"
	"github.com/joacominatel/dataview/internal/database/postgres"
	"github.com/joacominatel/dataview/internal/database/sqlite"
	"github.com/joacominatel/dataview/internal/uiloop"
)

// NewDriver returns the driver for b. client selects the PostgreSQL client
// library ("pgx" or "pq") and is ignored by the other backends.
func NewDriver(b database.Backend, client string) (database.Driver, error) {
	switch b {
	case database.PostgreSQL:
		return postgres.New(client), nil
	case database.MySQL:
		return mysql.New(), nil
	case database.SQLite:
		return sqlite.New(), nil
	}
	return nil, fmt.Errorf("no driver for backend %s", b)
}

// Open creates a service for backend b and connects it to dsn.
func Open(ctx context.Context, b database.Backend, client, dsn string, ui uiloop.Dispatcher, opts Options) (*Service, error) {
	driver, err := NewDriver(b, client)
	if err != nil {
		return nil, &ErrConfig{Cause: err}
	}
	svc := NewService(driver, ui, opts)
	if err := svc.Connect(ctx, dsn); err != nil {
		return nil, err
	}
	return svc, nil
}
