package db

import (
	"context"

	"go.uber.org/zap"
)

// newTestClient builds a disconnected client over a hand-made schema:
// position (single pk), user_position (composite pk, one foreign key) and
// audit_log (no pk at all).
func newTestClient() *Client {
	c := &Client{
		config: DefaultConfig("localhost", "testdb", "tester", "secret"),
		log:    zap.NewNop(),
		tables: map[string]cacheSource{},
	}

	schema := NewSchema()
	position := schema.table("position")
	position.Columns = []string{"id_position", "name", "sticky", "level"}
	position.PrimaryKeys = []string{"id_position"}

	userPosition := schema.table("user_position")
	userPosition.Columns = []string{"user_id", "id_position", "executor_id", "given_at", "expires_at"}
	userPosition.PrimaryKeys = []string{"user_id", "id_position"}
	userPosition.Foreigners["position"] = ForeignKey{
		Column:        "id_position",
		ForeignTable:  "position",
		ForeignColumn: "id_position",
	}

	auditLog := schema.table("audit_log")
	auditLog.Columns = []string{"source", "message"}

	c.schema = schema
	return c
}

func rowFactory(table string) RowFactory[*TableRow] {
	return func(client *Client, data RowData) *TableRow {
		row := NewTableRow(client, table, data)
		return &row
	}
}

// fakeExecutor stands in for the connected client, recording statements
// and replaying canned results.
type fakeExecutor struct {
	rows    []RowData
	err     error
	queries []string
	params  [][]any
}

func (f *fakeExecutor) query(ctx context.Context, query string, params []any) ([]RowData, error) {
	f.queries = append(f.queries, query)
	f.params = append(f.params, params)
	if f.err != nil {
		return nil, f.err
	}
	return f.rows, nil
}
