package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/ministore/recordstore/recordstore/models"
	"github.com/ministore/recordstore/recordstore/storage"
)

const (
	// DriverModernc is the pure Go driver registered by modernc.org/sqlite.
	DriverModernc = "sqlite"
	// DriverMattn is the cgo driver registered by github.com/mattn/go-sqlite3.
	DriverMattn = "sqlite3"
)

type Adapter struct {
	Path       string
	DriverName string
}

func New(path string) *Adapter {
	return &Adapter{Path: path, DriverName: DriverModernc}
}

func NewWithDriver(path, driver string) *Adapter {
	return &Adapter{Path: path, DriverName: driver}
}

func (a *Adapter) Backend() storage.Backend {
	return storage.BackendSQLite
}

func (a *Adapter) StoreID() string {
	return a.Path
}

func (a *Adapter) dsn() string {
	var params string
	if a.DriverName == DriverMattn {
		params = "_busy_timeout=5000&_foreign_keys=on"
	} else {
		params = "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	}
	if strings.Contains(a.Path, "?") {
		return a.Path + "&" + params
	}
	return a.Path + "?" + params
}

func (a *Adapter) Connect(ctx context.Context) (*sql.DB, error) {
	db, err := sql.Open(a.DriverName, a.dsn())
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	_, _ = db.ExecContext(ctx, "PRAGMA journal_mode=WAL;")
	_, _ = db.ExecContext(ctx, "PRAGMA synchronous=NORMAL;")
	return db, nil
}

func (a *Adapter) Close() error {
	return nil
}

func (a *Adapter) Bootstrap(ctx context.Context, db *storage.DB) error {
	_, err := db.ExecContext(ctx, ddlRegistry, nil)
	return err
}

func (a *Adapter) CreateCollectionTable(ctx context.Context, db *storage.DB, c *models.Collection) error {
	if _, err := db.ExecContext(ctx, storage.CreateTableSQL(c, columnType), nil); err != nil {
		return err
	}
	_, err := db.ExecContext(ctx, storage.CreateIndexSQL(c), nil)
	return err
}
