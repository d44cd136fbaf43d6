package models

import (
	"time"

	"github.com/scrimsnet/scrimsbot/pkg/db"
)

// SessionTable is the relational table behind Session.
const SessionTable = "session"

// Session is one hosted game session, typed by the session_type lookup
// table.
type Session struct {
	db.TableRow
}

// NewSession wraps raw column values as a session row, generating an id
// when none is given.
func NewSession(client *db.Client, data db.RowData) *Session {
	s := &Session{db.NewTableRow(client, SessionTable, data)}
	if v, ok := data["type"]; ok {
		s.SetType(v)
	}
	if s.SessionID() == "" && client != nil {
		s.SetID(client.GenerateID())
	}
	return s
}

func (s *Session) SessionID() string { return s.GetString("id_session") }
func (s *Session) CreatorID() string { return s.GetString("creator_id") }
func (s *Session) StartedAt() int64  { return s.GetInt("started_at") }
func (s *Session) EndedAt() int64    { return s.GetInt("ended_at") }

// TypeName resolves the session's type name through the type cache.
func (s *Session) TypeName() string {
	typ, ok := s.Related(SessionTypeTable, []string{"id_type"}, []string{"id_type"})
	if !ok {
		return ""
	}
	name, _ := typ["name"].(string)
	return name
}

// Duration returns the session length, or 0 while incomplete.
func (s *Session) Duration() time.Duration {
	if s.StartedAt() == 0 || s.EndedAt() == 0 {
		return 0
	}
	return time.Duration(s.EndedAt()-s.StartedAt()) * time.Second
}

// SetID assigns the session id.
func (s *Session) SetID(id string) *Session {
	s.Set("id_session", id)
	return s
}

// SetType resolves the type reference and assigns id_type. A plain string
// resolves by type name.
func (s *Session) SetType(resolvable any) *Session {
	if name, ok := resolvable.(string); ok {
		resolvable = db.RowData{"name": name}
	}
	s.SetForeignKeys(SessionTypeTable, []string{"id_type"}, []string{"id_type"}, resolvable)
	return s
}

// SetCreator assigns the hosting user.
func (s *Session) SetCreator(userID string) *Session {
	s.Set("creator_id", userID)
	return s
}

// SetStartPoint assigns the start timestamp, defaulting to now.
func (s *Session) SetStartPoint(startedAt int64) *Session {
	if startedAt == 0 {
		startedAt = time.Now().Unix()
	}
	s.Set("started_at", startedAt)
	return s
}

// SetEndPoint assigns the end timestamp, defaulting to now.
func (s *Session) SetEndPoint(endedAt int64) *Session {
	if endedAt == 0 {
		endedAt = time.Now().Unix()
	}
	s.Set("ended_at", endedAt)
	return s
}

// Update re-resolves the type relation when the patch addresses it.
func (s *Session) Update(data db.RowData) {
	s.TableRow.Update(data)
	if v, ok := data["type"]; ok {
		s.SetType(v)
	}
}
