package db

import (
	"context"
	"strings"
)

// TableSchema is the introspected metadata of one table. Column order
// follows ordinal position, so derived ids stay stable across processes.
type TableSchema struct {
	Columns     []string
	PrimaryKeys []string
	// Foreigners maps the derived local key (id_position -> "position") to
	// its foreign-key descriptor.
	Foreigners map[string]ForeignKey
}

// Schema is the introspected metadata of every table in the configured
// database schema. It is built once at connect time; DDL changes require a
// reconnect. LoadSchema accepts a hand-built Schema for offline use.
type Schema struct {
	Tables map[string]*TableSchema
}

// NewSchema creates an empty schema.
func NewSchema() *Schema {
	return &Schema{Tables: map[string]*TableSchema{}}
}

func (s *Schema) table(name string) *TableSchema {
	t, ok := s.Tables[name]
	if !ok {
		t = &TableSchema{Foreigners: map[string]ForeignKey{}}
		s.Tables[name] = t
	}
	return t
}

// localKeyFor derives the relation name of a foreign-key column by stripping
// the id prefix or suffix: id_position and position_id both map to
// "position". Columns without either convention keep their full name.
func localKeyFor(column string) string {
	if name, ok := strings.CutPrefix(column, "id_"); ok {
		return name
	}
	if name, ok := strings.CutSuffix(column, "_id"); ok {
		return name
	}
	return column
}

const columnsQuery = `SELECT table_name, column_name ` +
	`FROM information_schema.columns ` +
	`WHERE table_schema = $1 AND table_catalog = $2 ` +
	`ORDER BY table_name, ordinal_position`

const primaryKeysQuery = `SELECT kcu.table_name, kcu.column_name ` +
	`FROM information_schema.table_constraints tco ` +
	`JOIN information_schema.key_column_usage kcu ` +
	`ON kcu.constraint_name = tco.constraint_name ` +
	`AND kcu.constraint_schema = tco.constraint_schema ` +
	`WHERE tco.constraint_type = 'PRIMARY KEY' ` +
	`AND kcu.table_schema = $1 AND kcu.table_catalog = $2 ` +
	`ORDER BY kcu.table_name, kcu.ordinal_position`

const foreignKeysQuery = `SELECT kcu.table_name, kcu.column_name, ` +
	`ccu.table_name AS foreign_table_name, ccu.column_name AS foreign_column_name ` +
	`FROM information_schema.table_constraints tco ` +
	`JOIN information_schema.key_column_usage kcu ` +
	`ON kcu.constraint_name = tco.constraint_name ` +
	`AND kcu.constraint_schema = tco.constraint_schema ` +
	`JOIN information_schema.constraint_column_usage ccu ` +
	`ON ccu.constraint_name = tco.constraint_name ` +
	`AND ccu.constraint_schema = tco.constraint_schema ` +
	`WHERE tco.constraint_type = 'FOREIGN KEY' ` +
	`AND kcu.table_schema = $1 AND kcu.table_catalog = $2`

// introspectSchema reads table columns, primary keys and foreign keys from
// information_schema, scoped to the configured schema and database.
func (c *Client) introspectSchema(ctx context.Context) (*Schema, error) {
	schema := NewSchema()
	scope := []any{c.config.schemaName(), c.config.Database}

	columns, err := c.Query(ctx, columnsQuery, scope)
	if err != nil {
		return nil, wrapError(err)
	}
	for _, row := range columns {
		t := schema.table(rowString(row, "table_name"))
		t.Columns = append(t.Columns, rowString(row, "column_name"))
	}

	primaryKeys, err := c.Query(ctx, primaryKeysQuery, scope)
	if err != nil {
		return nil, wrapError(err)
	}
	for _, row := range primaryKeys {
		t := schema.table(rowString(row, "table_name"))
		t.PrimaryKeys = append(t.PrimaryKeys, rowString(row, "column_name"))
	}

	foreignKeys, err := c.Query(ctx, foreignKeysQuery, scope)
	if err != nil {
		return nil, wrapError(err)
	}
	for _, row := range foreignKeys {
		t := schema.table(rowString(row, "table_name"))
		column := rowString(row, "column_name")
		t.Foreigners[localKeyFor(column)] = ForeignKey{
			Column:        column,
			ForeignTable:  rowString(row, "foreign_table_name"),
			ForeignColumn: rowString(row, "foreign_column_name"),
		}
	}
	return schema, nil
}

func rowString(row RowData, key string) string {
	s, _ := row[key].(string)
	return s
}
