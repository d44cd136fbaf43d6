package models

import (
	"context"
	"time"

	"github.com/scrimsnet/scrimsbot/pkg/db"
)

// volatileRowTTL bounds how long rows of the frequently-changing tables
// stay cached without a refresh. Lookup tables keep their rows until
// replaced or removed.
const volatileRowTTL = time.Hour

// Database aggregates the typed table handles of the whole schema over one
// client. Construct it, then Connect once the client configuration is
// final.
type Database struct {
	Client *db.Client

	Guilds         *db.Table[*Guild]
	Users          *db.Table[*UserProfile]
	Positions      *db.Table[*Position]
	PositionRoles  *db.Table[*PositionRole]
	UserPositions  *db.Table[*UserPosition]
	TicketTypes    *db.Table[*TypeRow]
	TicketStatuses *db.Table[*TypeRow]
	Tickets        *db.Table[*Ticket]
	TicketMessages *db.Table[*TicketMessage]
	SessionTypes   *db.Table[*TypeRow]
	Sessions       *db.Table[*Session]
	Vouches        *db.Table[*Vouch]
}

// NewDatabase binds every table of the schema to the client.
func NewDatabase(client *db.Client) *Database {
	return &Database{
		Client:         client,
		Guilds:         db.NewTable(client, GuildTable, NewGuild),
		Users:          db.NewTable(client, UserProfileTable, NewUserProfile),
		Positions:      db.NewTable(client, PositionTable, NewPosition),
		PositionRoles:  db.NewTable(client, PositionRoleTable, NewPositionRole),
		UserPositions:  db.NewTable(client, UserPositionTable, NewUserPosition).WithTTL(volatileRowTTL),
		TicketTypes:    db.NewTable(client, TicketTypeTable, typeFactory(TicketTypeTable)),
		TicketStatuses: db.NewTable(client, TicketStatusTable, typeFactory(TicketStatusTable)),
		Tickets:        db.NewTable(client, TicketTable, NewTicket).WithTTL(volatileRowTTL),
		TicketMessages: db.NewTable(client, TicketMessageTable, NewTicketMessage).WithTTL(volatileRowTTL),
		SessionTypes:   db.NewTable(client, SessionTypeTable, typeFactory(SessionTypeTable)),
		Sessions:       db.NewTable(client, SessionTable, NewSession),
		Vouches:        db.NewTable(client, VouchTable, NewVouch).WithTTL(volatileRowTTL),
	}
}

type connectable interface {
	Connect(ctx context.Context) error
}

// tables lists every handle, lookup tables before their dependents so that
// relation resolution finds warm caches.
func (d *Database) tables() []connectable {
	return []connectable{
		d.Guilds, d.Users, d.Positions,
		d.TicketTypes, d.TicketStatuses, d.SessionTypes,
		d.PositionRoles, d.UserPositions,
		d.Tickets, d.TicketMessages,
		d.Sessions, d.Vouches,
	}
}

// Connect connects the client, then warms every table cache and subscribes
// the notification topics.
func (d *Database) Connect(ctx context.Context) error {
	if err := d.Client.Connect(ctx); err != nil {
		return err
	}
	for _, table := range d.tables() {
		if err := table.Connect(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Destroy releases the client and its bus.
func (d *Database) Destroy() error {
	return d.Client.Destroy()
}
