package sqlite

import "github.com/ministore/recordstore/recordstore/models"

const ddlRegistry = `
CREATE TABLE IF NOT EXISTS [[_collections]] (
  [[id]]   TEXT PRIMARY KEY NOT NULL,
  [[name]] TEXT UNIQUE NOT NULL,
  [[data]] TEXT NOT NULL
)`

func columnType(f models.Field) string {
	switch {
	case f.IsJSON():
		return "JSON"
	case f.Type == models.FieldNumber:
		return "NUMERIC"
	case f.Type == models.FieldBool:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}
