package storage

import (
	"context"
	"database/sql"

	"github.com/ministore/recordstore/recordstore/models"
)

// Adapter abstracts the database specific parts of the store.
type Adapter interface {
	Backend() Backend
	StoreID() string

	Connect(ctx context.Context) (*sql.DB, error)
	Close() error

	// Bootstrap creates the collection registry if it does not exist yet.
	Bootstrap(ctx context.Context, db *DB) error
	// CreateCollectionTable creates the table backing c.
	CreateCollectionTable(ctx context.Context, db *DB, c *models.Collection) error
}

// Statements shared by every backend. They are written with [[identifier]]
// quoting and :name parameters and rendered by DB.
const (
	SelectCollections = "SELECT [[data]] FROM [[_collections]] ORDER BY [[name]]"
	InsertCollection  = "INSERT INTO [[_collections]] ([[id]], [[name]], [[data]]) VALUES (:id, :name, :data)"
)
