package storage

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/ministore/recordstore/recordstore/storage/sqlbuilder"
)

// DB executes statements written with [[identifier]] quoting and :name
// parameters. Every statement is rendered for the backend and logged at
// debug level before it reaches database/sql.
type DB struct {
	db      *sql.DB
	backend Backend
	logger  *zap.SugaredLogger
}

func NewDB(db *sql.DB, backend Backend) *DB {
	return &DB{
		db:      db,
		backend: backend,
		logger:  zap.S().Named("storage"),
	}
}

func (d *DB) Backend() Backend { return d.backend }

// Raw returns the underlying connection pool.
func (d *DB) Raw() *sql.DB { return d.db }

func (d *DB) Close() error { return d.db.Close() }

func (d *DB) render(query string, params map[string]any) (string, []any, error) {
	rendered, args, err := sqlbuilder.Render(query, params, d.backend.PlaceholderStyle())
	if err != nil {
		return "", nil, err
	}
	for i, a := range args {
		args[i] = d.backend.ConvertArg(a)
	}
	return rendered, args, nil
}

func (d *DB) QueryContext(ctx context.Context, query string, params map[string]any) (*sql.Rows, error) {
	rendered, args, err := d.render(query, params)
	if err != nil {
		return nil, err
	}
	d.logger.Debugw("query", "query", rendered, "args", args)
	return d.db.QueryContext(ctx, rendered, args...)
}

// QueryRowContext runs a single row query and scans it into dest.
func (d *DB) QueryRowContext(ctx context.Context, query string, params map[string]any, dest ...any) error {
	rendered, args, err := d.render(query, params)
	if err != nil {
		return err
	}
	d.logger.Debugw("query_row", "query", rendered, "args", args)
	return d.db.QueryRowContext(ctx, rendered, args...).Scan(dest...)
}

func (d *DB) ExecContext(ctx context.Context, query string, params map[string]any) (sql.Result, error) {
	rendered, args, err := d.render(query, params)
	if err != nil {
		return nil, err
	}
	d.logger.Debugw("exec", "query", rendered, "args", args)
	return d.db.ExecContext(ctx, rendered, args...)
}

// ScanMaps reads every remaining row into a column name keyed map.
func ScanMaps(rows *sql.Rows) ([]map[string]any, error) {
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		row := make(map[string]any, len(cols))
		for i, c := range cols {
			if b, ok := values[i].([]byte); ok {
				values[i] = string(b)
			}
			row[c] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
