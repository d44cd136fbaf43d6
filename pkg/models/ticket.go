package models

import (
	"time"

	"github.com/scrimsnet/scrimsbot/pkg/db"
)

// Relational tables behind Ticket and TicketMessage.
const (
	TicketTable        = "ticket"
	TicketMessageTable = "ticket_message"
)

// TicketStatusDeleted is the status name marking a ticket as gone; rows in
// that status age out of the cache.
const TicketStatusDeleted = "deleted"

// Ticket is a support/report conversation opened by a user in one guild.
type Ticket struct {
	db.TableRow
}

// NewTicket wraps raw column values as a ticket row. Missing ids and
// creation times get defaults, so a fresh ticket is insertable as-is.
func NewTicket(client *db.Client, data db.RowData) *Ticket {
	t := &Ticket{db.NewTableRow(client, TicketTable, data)}
	if v, ok := data["type"]; ok {
		t.SetType(v)
	}
	if v, ok := data["status"]; ok {
		t.SetStatus(v)
	}
	if t.TicketID() == "" && client != nil {
		t.SetID(client.GenerateID())
	}
	if t.CreatedAt() == 0 {
		t.SetCreation(0)
	}
	return t
}

func (t *Ticket) TicketID() string  { return t.GetString("id_ticket") }
func (t *Ticket) UserID() string    { return t.GetString("user_id") }
func (t *Ticket) GuildID() string   { return t.GetString("guild_id") }
func (t *Ticket) ChannelID() string { return t.GetString("channel_id") }
func (t *Ticket) CloserID() string  { return t.GetString("closer_id") }
func (t *Ticket) CreatedAt() int64  { return t.GetInt("created_at") }

// StatusName resolves the ticket's status name through the status cache.
func (t *Ticket) StatusName() string {
	status, ok := t.Related(TicketStatusTable, []string{"id_status"}, []string{"id_status"})
	if !ok {
		return ""
	}
	name, _ := status["name"].(string)
	return name
}

// TypeName resolves the ticket's type name through the type cache.
func (t *Ticket) TypeName() string {
	typ, ok := t.Related(TicketTypeTable, []string{"id_type"}, []string{"id_type"})
	if !ok {
		return ""
	}
	name, _ := typ["name"].(string)
	return name
}

// CacheExpired keeps open tickets cached indefinitely; deleted tickets age
// out with the table TTL.
func (t *Ticket) CacheExpired(now time.Time) bool {
	return t.StatusName() == TicketStatusDeleted && t.TableRow.CacheExpired(now)
}

// SetID assigns the ticket id.
func (t *Ticket) SetID(id string) *Ticket {
	t.Set("id_ticket", id)
	return t
}

// SetType resolves the type reference and assigns id_type. A plain string
// resolves by type name.
func (t *Ticket) SetType(resolvable any) *Ticket {
	if name, ok := resolvable.(string); ok {
		resolvable = db.RowData{"name": name}
	}
	t.SetForeignKeys(TicketTypeTable, []string{"id_type"}, []string{"id_type"}, resolvable)
	return t
}

// SetStatus resolves the status reference and assigns id_status. A plain
// string resolves by status name.
func (t *Ticket) SetStatus(resolvable any) *Ticket {
	if name, ok := resolvable.(string); ok {
		resolvable = db.RowData{"name": name}
	}
	t.SetForeignKeys(TicketStatusTable, []string{"id_status"}, []string{"id_status"}, resolvable)
	return t
}

// SetUser assigns the ticket opener.
func (t *Ticket) SetUser(userID string) *Ticket {
	t.Set("user_id", userID)
	return t
}

// SetCloser assigns the user who closed the ticket.
func (t *Ticket) SetCloser(userID string) *Ticket {
	t.Set("closer_id", userID)
	return t
}

// SetGuild assigns the guild id.
func (t *Ticket) SetGuild(guildID string) *Ticket {
	t.Set("guild_id", guildID)
	return t
}

// SetChannel assigns the conversation channel id.
func (t *Ticket) SetChannel(channelID string) *Ticket {
	t.Set("channel_id", channelID)
	return t
}

// SetCreation assigns the creation timestamp, defaulting to now.
func (t *Ticket) SetCreation(createdAt int64) *Ticket {
	if createdAt == 0 {
		createdAt = time.Now().Unix()
	}
	t.Set("created_at", createdAt)
	return t
}

// Update re-resolves type and status relations when the patch addresses
// them.
func (t *Ticket) Update(data db.RowData) {
	t.TableRow.Update(data)
	if v, ok := data["type"]; ok {
		t.SetType(v)
	}
	if v, ok := data["status"]; ok {
		t.SetStatus(v)
	}
}

// TicketMessage is one logged message of a ticket conversation.
type TicketMessage struct {
	db.TableRow
}

// NewTicketMessage wraps raw column values as a ticket-message row.
func NewTicketMessage(client *db.Client, data db.RowData) *TicketMessage {
	return &TicketMessage{db.NewTableRow(client, TicketMessageTable, data)}
}

func (m *TicketMessage) TicketID() string    { return m.GetString("id_ticket") }
func (m *TicketMessage) AuthorID() string    { return m.GetString("author_id") }
func (m *TicketMessage) MessageID() string   { return m.GetString("message_id") }
func (m *TicketMessage) ReferenceID() string { return m.GetString("reference_id") }
func (m *TicketMessage) Content() string     { return m.GetString("content") }
func (m *TicketMessage) CreatedAt() int64    { return m.GetInt("created_at") }

// Deleted reports whether the source message was deleted.
func (m *TicketMessage) Deleted() bool { return m.GetInt("deleted") != 0 }

// Ticket returns the cached parent ticket.
func (m *TicketMessage) Ticket() (db.RowData, bool) {
	return m.Related(TicketTable, []string{"id_ticket"}, []string{"id_ticket"})
}

// SetTicket assigns the parent ticket id.
func (m *TicketMessage) SetTicket(ticketID string) *TicketMessage {
	m.Set("id_ticket", ticketID)
	return m
}

// SetAuthor assigns the author user id.
func (m *TicketMessage) SetAuthor(userID string) *TicketMessage {
	m.Set("author_id", userID)
	return m
}

// SetMessage assigns the platform message id.
func (m *TicketMessage) SetMessage(messageID string) *TicketMessage {
	m.Set("message_id", messageID)
	return m
}

// SetReference assigns the replied-to message id; "" nulls it.
func (m *TicketMessage) SetReference(messageID string) *TicketMessage {
	if messageID == "" {
		m.Set("reference_id", nil)
	} else {
		m.Set("reference_id", messageID)
	}
	return m
}

// SetContent assigns the message content.
func (m *TicketMessage) SetContent(content string) *TicketMessage {
	m.Set("content", content)
	return m
}

// SetDeletedPoint marks the message deleted at the given time, defaulting
// to now.
func (m *TicketMessage) SetDeletedPoint(deletedAt int64) *TicketMessage {
	if deletedAt == 0 {
		deletedAt = time.Now().Unix()
	}
	m.Set("deleted", deletedAt)
	return m
}

// SetCreation assigns the creation timestamp, defaulting to now.
func (m *TicketMessage) SetCreation(createdAt int64) *TicketMessage {
	if createdAt == 0 {
		createdAt = time.Now().Unix()
	}
	m.Set("created_at", createdAt)
	return m
}
