package postgres

import "github.com/ministore/recordstore/recordstore/models"

const ddlRegistry = `
CREATE TABLE IF NOT EXISTS [[_collections]] (
  [[id]]   TEXT PRIMARY KEY,
  [[name]] TEXT UNIQUE NOT NULL,
  [[data]] JSONB NOT NULL
)`

func columnType(f models.Field) string {
	switch {
	case f.IsJSON():
		return "JSONB"
	case f.Type == models.FieldNumber:
		return "DOUBLE PRECISION"
	case f.Type == models.FieldBool:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}
