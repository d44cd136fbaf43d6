package models

import "github.com/scrimsnet/scrimsbot/pkg/db"

// GuildTable is the relational table behind Guild.
const GuildTable = "guild_profile"

// Guild is the bot-side record of a community server.
type Guild struct {
	db.TableRow
}

// NewGuild wraps raw column values as a guild row.
func NewGuild(client *db.Client, data db.RowData) *Guild {
	return &Guild{db.NewTableRow(client, GuildTable, data)}
}

func (g *Guild) GuildID() string { return g.GetString("guild_id") }
func (g *Guild) Name() string    { return g.GetString("name") }
func (g *Guild) Icon() string    { return g.GetString("icon") }

// SetGuild assigns the guild id.
func (g *Guild) SetGuild(guildID string) *Guild {
	g.Set("guild_id", guildID)
	return g
}

// SetName assigns the display name.
func (g *Guild) SetName(name string) *Guild {
	g.Set("name", name)
	return g
}

// SetIcon assigns the icon hash; "" nulls it.
func (g *Guild) SetIcon(icon string) *Guild {
	if icon == "" {
		g.Set("icon", nil)
	} else {
		g.Set("icon", icon)
	}
	return g
}
