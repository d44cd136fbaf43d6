package models

import "github.com/scrimsnet/scrimsbot/pkg/db"

// Relational tables behind Position and PositionRole.
const (
	PositionTable     = "position"
	PositionRoleTable = "position_role"
)

// ranks are the positions forming the ladder; order is lowest to highest.
var ranks = []string{"prime", "private", "premium"}

// Position is a named rank or role within the community, optionally part of
// the leveled ladder.
type Position struct {
	db.TableRow
}

// NewPosition wraps raw column values as a position row.
func NewPosition(client *db.Client, data db.RowData) *Position {
	return &Position{db.NewTableRow(client, PositionTable, data)}
}

func (p *Position) PositionID() int64 { return p.GetInt("id_position") }
func (p *Position) Name() string      { return p.GetString("name") }
func (p *Position) Sticky() bool      { return p.GetBool("sticky") }

// TitleName returns the name with underscores split and words capitalized.
func (p *Position) TitleName() string { return titleName(p.Name()) }

// Level returns the ladder level; ok is false for unleveled positions.
func (p *Position) Level() (int64, bool) {
	v, ok := p.Get("level")
	if !ok || v == nil {
		return 0, false
	}
	return p.GetInt("level"), true
}

// HasLevel reports whether the position is part of the leveled ladder.
func (p *Position) HasLevel() bool {
	_, ok := p.Level()
	return ok
}

// IsRank reports whether the position is one of the rank ladder names.
func (p *Position) IsRank() bool {
	return rankIndex(p.Name()) != -1
}

// IsRankLevel reports whether this rank is at or above the named rank.
func (p *Position) IsRankLevel(name string) bool {
	mine, theirs := rankIndex(p.Name()), rankIndex(name)
	return mine != -1 && theirs != -1 && mine >= theirs
}

func rankIndex(name string) int {
	for i, rank := range ranks {
		if rank == name {
			return i
		}
	}
	return -1
}

// SetName assigns the name.
func (p *Position) SetName(name string) *Position {
	p.Set("name", name)
	return p
}

// SetSticky marks whether the position survives member rejoins.
func (p *Position) SetSticky(sticky bool) *Position {
	p.Set("sticky", sticky)
	return p
}

// SetLevel assigns the ladder level.
func (p *Position) SetLevel(level int64) *Position {
	p.Set("level", level)
	return p
}

// PositionRole connects a position to the platform role representing it in
// one guild.
type PositionRole struct {
	db.TableRow
}

// NewPositionRole wraps raw column values as a position-role row, resolving
// a relation given by nested object shape.
func NewPositionRole(client *db.Client, data db.RowData) *PositionRole {
	r := &PositionRole{db.NewTableRow(client, PositionRoleTable, data)}
	if v, ok := data["position"]; ok {
		r.SetPosition(v)
	}
	return r
}

func (r *PositionRole) PositionID() int64 { return r.GetInt("id_position") }
func (r *PositionRole) RoleID() string    { return r.GetString("role_id") }
func (r *PositionRole) GuildID() string   { return r.GetString("guild_id") }

// Position returns the cached position this role maps to.
func (r *PositionRole) Position() (db.RowData, bool) {
	return r.Related(PositionTable, []string{"id_position"}, []string{"id_position"})
}

// SetPosition resolves the position reference and assigns id_position. A
// plain string resolves by position name.
func (r *PositionRole) SetPosition(resolvable any) *PositionRole {
	if name, ok := resolvable.(string); ok {
		resolvable = db.RowData{"name": name}
	}
	r.SetForeignKeys(PositionTable, []string{"id_position"}, []string{"id_position"}, resolvable)
	return r
}

// SetRole assigns the platform role id.
func (r *PositionRole) SetRole(roleID string) *PositionRole {
	r.Set("role_id", roleID)
	return r
}

// SetGuild assigns the guild id.
func (r *PositionRole) SetGuild(guildID string) *PositionRole {
	r.Set("guild_id", guildID)
	return r
}

// Update re-resolves the position relation when the patch addresses it.
func (r *PositionRole) Update(data db.RowData) {
	r.TableRow.Update(data)
	if v, ok := data["position"]; ok {
		r.SetPosition(v)
	}
}
