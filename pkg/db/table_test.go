package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrimsnet/scrimsbot/pkg/bus"
)

func newTestTable(c *Client, name string) (*Table[*TableRow], *fakeExecutor) {
	exec := &fakeExecutor{}
	table := NewTable(c, name, rowFactory(name))
	table.exec = exec
	return table, exec
}

func TestTableCreateRollsBackOnError(t *testing.T) {
	c := newTestClient()
	table, exec := newTestTable(c, "position")
	exec.err = NewError("insert failed")

	row := positionRow(c, 5, "prime")
	_, err := table.Create(context.Background(), row)

	require.Error(t, err)
	assert.Equal(t, 0, table.Cache().Size())
	require.Len(t, exec.queries, 1)
	assert.Contains(t, exec.queries[0], "INSERT INTO position")
}

func TestTableCreateFromData(t *testing.T) {
	c := newTestClient()
	table, exec := newTestTable(c, "position")
	exec.rows = []RowData{{"id_position": 5, "name": "prime", "sticky": false, "level": 1}}

	row, err := table.Create(context.Background(), RowData{"name": "prime"})

	require.NoError(t, err)
	assert.Equal(t, "5", row.ID())
	require.Len(t, table.Cache().Get("5"), 1)
	assert.Equal(t, []any{"prime"}, exec.params[0])
}

func TestTableCreateAbsorbsReturnedColumns(t *testing.T) {
	c := newTestClient()
	table, exec := newTestTable(c, "position")
	exec.rows = []RowData{{"id_position": 5, "name": "prime", "sticky": true, "level": 1}}

	row := positionRow(c, 5, "prime")
	created, err := table.Create(context.Background(), row)

	require.NoError(t, err)
	assert.True(t, created.GetBool("sticky"))
	assert.Same(t, row, created)
}

func TestTableCreateResolvesRelation(t *testing.T) {
	c := newTestClient()
	table, exec := newTestTable(c, "user_position")
	exec.rows = []RowData{{
		"user_id": "u1", "id_position": 7,
		"executor_id": nil, "given_at": nil, "expires_at": nil,
	}}

	row, err := table.Create(context.Background(), RowData{
		"user_id":  "u1",
		"position": RowData{"name": "prime"},
	})

	require.NoError(t, err)
	assert.Contains(t, exec.queries[0],
		`(SELECT id_position FROM position "position" WHERE "position"."name" = $1 LIMIT 1)`)
	assert.Equal(t, []any{"prime", "u1"}, exec.params[0])
	assert.Equal(t, "u1#7", row.ID())
}

func TestTableUpdateRollsBackToSnapshot(t *testing.T) {
	c := newTestClient()
	table, exec := newTestTable(c, "position")
	table.Cache().Push(positionRow(c, 5, "prime"))
	exec.err = NewError("update failed")

	_, err := table.Update(context.Background(), RowData{"id_position": 5}, RowData{"name": "renamed"})

	require.Error(t, err)
	row, ok := table.Cache().Find("5")
	require.True(t, ok)
	assert.Equal(t, "prime", row.GetString("name"))
}

func TestTableUpdateEvictsWhenNoSnapshot(t *testing.T) {
	c := newTestClient()
	table, exec := newTestTable(c, "position")
	exec.err = NewError("update failed")

	_, err := table.Update(context.Background(), RowData{"id_position": 5}, RowData{"name": "renamed"})

	require.Error(t, err)
	assert.Equal(t, 0, table.Cache().Size())
}

func TestTableUpdatePatchesPassedEntity(t *testing.T) {
	c := newTestClient()
	table, exec := newTestTable(c, "position")
	exec.rows = []RowData{{"id_position": 5, "name": "renamed", "sticky": false, "level": nil}}

	// never cached, still patched in place
	row := positionRow(c, 5, "prime")
	_, err := table.Update(context.Background(), row, RowData{"name": "renamed"})

	require.NoError(t, err)
	assert.Equal(t, "renamed", row.GetString("name"))
}

func TestTableUpdateRevertsPassedEntityOnError(t *testing.T) {
	c := newTestClient()
	table, exec := newTestTable(c, "position")
	exec.err = NewError("update failed")

	row := positionRow(c, 5, "prime")
	_, err := table.Update(context.Background(), row, RowData{"name": "renamed"})

	require.Error(t, err)
	assert.Equal(t, "prime", row.GetString("name"))
	assert.Equal(t, 0, table.Cache().Size())
}

func TestTableUpdateSuccess(t *testing.T) {
	c := newTestClient()
	table, exec := newTestTable(c, "position")
	table.Cache().Push(positionRow(c, 5, "prime"))
	exec.rows = []RowData{{"id_position": 5, "name": "renamed", "sticky": false, "level": nil}}

	rows, err := table.Update(context.Background(), RowData{"id_position": 5}, RowData{"name": "renamed"})

	require.NoError(t, err)
	require.Len(t, rows, 1)
	cached, ok := table.Cache().Find("5")
	require.True(t, ok)
	assert.Equal(t, "renamed", cached.GetString("name"))
	assert.Contains(t, exec.queries[0], "UPDATE position")
}

func TestTableDeleteRestoresCacheOnError(t *testing.T) {
	c := newTestClient()
	table, exec := newTestTable(c, "position")
	table.Cache().Push(positionRow(c, 5, "prime"))
	exec.err = NewError("delete failed")

	_, err := table.Delete(context.Background(), RowData{"id_position": 5})

	require.Error(t, err)
	assert.Equal(t, 1, table.Cache().Size())
}

func TestTableDeleteSuccess(t *testing.T) {
	c := newTestClient()
	table, exec := newTestTable(c, "position")
	table.Cache().Push(positionRow(c, 5, "prime"))
	exec.rows = []RowData{{"id_position": 5, "name": "prime", "sticky": false, "level": nil}}

	rows, err := table.Delete(context.Background(), 5)

	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 0, table.Cache().Size())
	assert.Contains(t, exec.queries[0], "DELETE FROM position")
}

func TestTableSQLFindForceSingle(t *testing.T) {
	c := newTestClient()
	table, exec := newTestTable(c, "position")
	exec.rows = []RowData{
		{"id_position": 5, "name": "prime", "sticky": false, "level": nil},
		{"id_position": 6, "name": "prime", "sticky": false, "level": nil},
	}

	_, found, err := table.SQLFind(context.Background(), RowData{"name": "prime"}, true)

	require.NoError(t, err)
	assert.False(t, found)
	// ambiguous results still land in the cache
	assert.Equal(t, 2, table.Cache().Size())
	assert.Contains(t, exec.queries[0], "LIMIT 2")
}

func TestTableFetchPrefersCache(t *testing.T) {
	c := newTestClient()
	table, exec := newTestTable(c, "position")
	table.Cache().Push(positionRow(c, 5, "prime"))

	rows, err := table.Fetch(context.Background(), RowData{"name": "prime"}, true)

	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Empty(t, exec.queries)
}

func TestTableFetchAllReplacesCache(t *testing.T) {
	c := newTestClient()
	table, exec := newTestTable(c, "position")
	table.Cache().Push(positionRow(c, 9, "stale"))
	exec.rows = []RowData{{"id_position": 5, "name": "prime", "sticky": false, "level": nil}}

	rows, err := table.SQLFetch(context.Background(), nil, SelectOptions{})

	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Empty(t, table.Cache().Get("9"))
	assert.Len(t, table.Cache().Get("5"), 1)
}

func TestTableFindByScalarID(t *testing.T) {
	c := newTestClient()
	table, exec := newTestTable(c, "position")
	table.Cache().Push(positionRow(c, 5, "prime"))

	row, found, err := table.Find(context.Background(), 5, true)

	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "prime", row.GetString("name"))
	assert.Empty(t, exec.queries)
}

func TestTableNestedSelectorResolvesThroughForeignCache(t *testing.T) {
	c := newTestClient()
	positions, _ := newTestTable(c, "position")
	positions.Cache().Push(positionRow(c, 7, "prime"))
	userPositions, exec := newTestTable(c, "user_position")
	userPositions.Cache().Push(userPositionRow(c, "u1", 7))

	rows, err := userPositions.Fetch(context.Background(),
		RowData{"position": RowData{"name": "prime"}}, true)

	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "u1#7", rows[0].ID())
	assert.Empty(t, exec.queries)
}

func TestTableNestedSelectorWithForeignColumn(t *testing.T) {
	c := newTestClient()
	userPositions, exec := newTestTable(c, "user_position")
	userPositions.Cache().Push(userPositionRow(c, "u1", 7))

	// carries the referenced key directly, no foreign cache needed
	rows, err := userPositions.Fetch(context.Background(),
		RowData{"position": RowData{"id_position": 7}}, true)

	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Empty(t, exec.queries)
}

func TestTableNestedSelectorUnresolvableMissesCache(t *testing.T) {
	c := newTestClient()
	newTestTable(c, "position")
	userPositions, exec := newTestTable(c, "user_position")
	userPositions.Cache().Push(userPositionRow(c, "u1", 7))

	rows, err := userPositions.Fetch(context.Background(),
		RowData{"position": RowData{"name": "ghost"}}, true)

	require.NoError(t, err)
	assert.Empty(t, rows)
	require.Len(t, exec.queries, 1)
}

func TestTableCount(t *testing.T) {
	c := newTestClient()
	table, exec := newTestTable(c, "position")
	exec.rows = []RowData{{"count": int64(3)}}

	count, err := table.Count(context.Background(), nil)

	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
	assert.Contains(t, exec.queries[0], "SELECT count(*)")
}

func TestTableCall(t *testing.T) {
	c := newTestClient()
	table, exec := newTestTable(c, "position")
	exec.rows = []RowData{{"id_position": 5, "name": "prime", "sticky": false, "level": nil}}

	rows, err := table.Call(context.Background(), "expire", []any{"u1"})

	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, `SELECT * FROM position_expire($1)`, exec.queries[0])
	assert.Equal(t, []any{"u1"}, exec.params[0])
}

func TestTableUnknownTableIsNoop(t *testing.T) {
	c := newTestClient()
	table, exec := newTestTable(c, "ghost_table")

	rows, err := table.SQLFetch(context.Background(), nil, SelectOptions{})
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Empty(t, exec.queries)

	_, err = table.Create(context.Background(), RowData{"name": "x"})
	require.Error(t, err)
}

func TestTableFetchMap(t *testing.T) {
	c := newTestClient()
	table, exec := newTestTable(c, "position")
	exec.rows = []RowData{
		{"id_position": 5, "name": "prime", "sticky": false, "level": nil},
		{"id_position": 6, "name": "private", "sticky": false, "level": nil},
	}

	byName, err := table.FetchMap(context.Background(), nil, []string{"name"})

	require.NoError(t, err)
	require.Len(t, byName, 2)
	assert.Equal(t, "5", byName["prime"].ID())
}

func TestTableNotificationsUpdateCache(t *testing.T) {
	c := newTestClient()
	c.bus = bus.NewMemBus()
	table, _ := newTestTable(c, "position")
	table.addListeners()
	ctx := context.Background()

	err := c.bus.Publish(ctx, bus.CreateTopic("position"),
		map[string]any{"id_position": "p1", "name": "prime", "sticky": false, "level": nil})
	require.NoError(t, err)
	require.Len(t, table.Cache().Get("p1"), 1)

	err = c.bus.Publish(ctx, bus.UpdateTopic("position"), bus.UpdatePayload{
		Selector: map[string]any{"id_position": "p1"},
		Data:     map[string]any{"name": "renamed"},
	})
	require.NoError(t, err)
	row, ok := table.Cache().Find("p1")
	require.True(t, ok)
	assert.Equal(t, "renamed", row.GetString("name"))

	err = c.bus.Publish(ctx, bus.RemoveTopic("position"), map[string]any{"id_position": "p1"})
	require.NoError(t, err)
	assert.Equal(t, 0, table.Cache().Size())
}

func TestTableWritesPublishNotifications(t *testing.T) {
	c := newTestClient()
	memBus := bus.NewMemBus()
	c.bus = memBus
	table, exec := newTestTable(c, "position")

	var created []byte
	memBus.Subscribe(bus.CreateTopic("position"), func(payload []byte) { created = payload })

	exec.rows = []RowData{{"id_position": 5, "name": "prime", "sticky": false, "level": nil}}
	_, err := table.Create(context.Background(), RowData{"name": "prime"})

	require.NoError(t, err)
	require.NotNil(t, created)
	var data map[string]any
	require.NoError(t, memBus.Codec().Unmarshal(created, &data))
	assert.Equal(t, "prime", data["name"])
}

func TestTableWithTTLMarksRows(t *testing.T) {
	c := newTestClient()
	table, exec := newTestTable(c, "position")
	table.WithTTL(1)
	exec.rows = []RowData{{"id_position": 5, "name": "prime", "sticky": false, "level": nil}}

	rows, err := table.SQLFetch(context.Background(), nil, SelectOptions{})

	require.NoError(t, err)
	require.Len(t, rows, 1)
	// a nanosecond TTL has long passed by the time the cache is read
	assert.Empty(t, table.Cache().Values())
}
