package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/ministore/recordstore/recordstore/models"
	"github.com/ministore/recordstore/recordstore/storage"
)

type Adapter struct {
	DSN    string
	Schema string // used as dedicated schema via search_path
}

func New(dsn, schema string) *Adapter {
	return &Adapter{DSN: dsn, Schema: schema}
}

func (a *Adapter) Backend() storage.Backend { return storage.BackendPostgres }

func (a *Adapter) StoreID() string { return "postgres:" + a.Schema }

func (a *Adapter) Close() error { return nil }

var schemaNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func quoteIdent(ident string) string {
	// ident is validated to contain no quotes; safe to wrap
	return `"` + ident + `"`
}

func (a *Adapter) ensureSchema(ctx context.Context, db *sql.DB) error {
	if a.Schema == "" || !schemaNameRe.MatchString(a.Schema) {
		return fmt.Errorf("invalid postgres schema name %q (must match %s)", a.Schema, schemaNameRe.String())
	}
	_, err := db.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+quoteIdent(a.Schema))
	return err
}

func (a *Adapter) Connect(ctx context.Context) (*sql.DB, error) {
	// connect without search_path first so the schema can be created
	cfg0, err := pgx.ParseConfig(a.DSN)
	if err != nil {
		return nil, err
	}
	db0 := stdlib.OpenDB(*cfg0)
	if err := db0.PingContext(ctx); err != nil {
		_ = db0.Close()
		return nil, err
	}
	if err := a.ensureSchema(ctx, db0); err != nil {
		_ = db0.Close()
		return nil, err
	}
	_ = db0.Close()

	cfg, err := pgx.ParseConfig(a.DSN)
	if err != nil {
		return nil, err
	}
	if cfg.RuntimeParams == nil {
		cfg.RuntimeParams = make(map[string]string)
	}
	// public stays as a fallback for built-ins; schema is first
	cfg.RuntimeParams["search_path"] = fmt.Sprintf("%s,public", quoteIdent(a.Schema))

	db := stdlib.OpenDB(*cfg)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
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
