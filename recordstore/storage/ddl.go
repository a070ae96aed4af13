package storage

import (
	"strings"

	"github.com/ministore/recordstore/recordstore/models"
)

// CreateTableSQL builds the CREATE TABLE statement for a collection using
// the backend specific column types.
func CreateTableSQL(c *models.Collection, columnType func(models.Field) string) string {
	var sb strings.Builder
	sb.WriteString("CREATE TABLE IF NOT EXISTS [[" + c.TableName() + "]] (\n")
	sb.WriteString("  [[id]] TEXT PRIMARY KEY NOT NULL,\n")
	sb.WriteString("  [[created]] TEXT NOT NULL DEFAULT '',\n")
	sb.WriteString("  [[updated]] TEXT NOT NULL DEFAULT ''")
	for _, f := range c.Fields {
		sb.WriteString(",\n  [[" + f.Name + "]] " + columnType(f))
	}
	sb.WriteString("\n)")
	return sb.String()
}

// CreateIndexSQL indexes the created column, the default sort key.
func CreateIndexSQL(c *models.Collection) string {
	name := "idx_" + c.TableName() + "_created"
	return "CREATE INDEX IF NOT EXISTS [[" + name + "]] ON [[" + c.TableName() + "]] ([[created]])"
}
