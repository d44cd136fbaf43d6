package models

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/scrimsnet/scrimsbot/pkg/db"
)

// testDatabase builds a Database over a disconnected client with the full
// schema preloaded, so cache behavior is testable without a server.
func testDatabase(t *testing.T) *Database {
	t.Helper()
	client, err := db.NewClient(
		db.DefaultConfig("localhost", "testdb", "tester", "secret"),
		nil, zap.NewNop())
	require.NoError(t, err)
	client.LoadSchema(testSchema())
	return NewDatabase(client)
}

func testSchema() *db.Schema {
	schema := db.NewSchema()
	add := func(name string, columns, primaryKeys []string, foreigners map[string]db.ForeignKey) {
		if foreigners == nil {
			foreigners = map[string]db.ForeignKey{}
		}
		schema.Tables[name] = &db.TableSchema{
			Columns:     columns,
			PrimaryKeys: primaryKeys,
			Foreigners:  foreigners,
		}
	}

	add(GuildTable,
		[]string{"guild_id", "name", "icon"},
		[]string{"guild_id"}, nil)
	add(UserProfileTable,
		[]string{"user_id", "username", "discriminator", "joined_at", "avatar", "country", "timezone"},
		[]string{"user_id"}, nil)
	add(PositionTable,
		[]string{"id_position", "name", "sticky", "level"},
		[]string{"id_position"}, nil)
	add(PositionRoleTable,
		[]string{"id_position", "role_id", "guild_id"},
		[]string{"id_position", "guild_id"},
		map[string]db.ForeignKey{
			"position": {Column: "id_position", ForeignTable: PositionTable, ForeignColumn: "id_position"},
		})
	add(UserPositionTable,
		[]string{"user_id", "id_position", "executor_id", "given_at", "expires_at"},
		[]string{"user_id", "id_position"},
		map[string]db.ForeignKey{
			"position": {Column: "id_position", ForeignTable: PositionTable, ForeignColumn: "id_position"},
		})
	add(TicketTypeTable,
		[]string{"id_type", "name"},
		[]string{"id_type"}, nil)
	add(TicketStatusTable,
		[]string{"id_status", "name"},
		[]string{"id_status"}, nil)
	add(TicketTable,
		[]string{"id_ticket", "user_id", "guild_id", "channel_id", "closer_id", "id_type", "id_status", "created_at"},
		[]string{"id_ticket"},
		map[string]db.ForeignKey{
			"type":   {Column: "id_type", ForeignTable: TicketTypeTable, ForeignColumn: "id_type"},
			"status": {Column: "id_status", ForeignTable: TicketStatusTable, ForeignColumn: "id_status"},
		})
	add(TicketMessageTable,
		[]string{"id_ticket", "author_id", "message_id", "reference_id", "content", "deleted", "created_at"},
		[]string{"message_id"},
		map[string]db.ForeignKey{
			"ticket": {Column: "id_ticket", ForeignTable: TicketTable, ForeignColumn: "id_ticket"},
		})
	add(SessionTypeTable,
		[]string{"id_type", "name"},
		[]string{"id_type"}, nil)
	add(SessionTable,
		[]string{"id_session", "id_type", "creator_id", "started_at", "ended_at"},
		[]string{"id_session"},
		map[string]db.ForeignKey{
			"type": {Column: "id_type", ForeignTable: SessionTypeTable, ForeignColumn: "id_type"},
		})
	add(VouchTable,
		[]string{"id_vouch", "user_id", "id_position", "executor_id", "given_at", "worth", "comment"},
		[]string{"id_vouch"},
		map[string]db.ForeignKey{
			"position": {Column: "id_position", ForeignTable: PositionTable, ForeignColumn: "id_position"},
		})
	return schema
}

func seedPosition(d *Database, id int64, name string, level any) {
	d.Positions.Cache().Push(NewPosition(d.Client, db.RowData{
		"id_position": id, "name": name, "sticky": false, "level": level,
	}))
}

func seedTicketStatus(d *Database, id int64, name string) {
	d.TicketStatuses.Cache().Push(typeFactory(TicketStatusTable)(d.Client, db.RowData{
		"id_status": id, "name": name,
	}))
}

func seedTicketType(d *Database, id int64, name string) {
	d.TicketTypes.Cache().Push(typeFactory(TicketTypeTable)(d.Client, db.RowData{
		"id_type": id, "name": name,
	}))
}
