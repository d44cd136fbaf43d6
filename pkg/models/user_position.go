package models

import (
	"time"

	"github.com/scrimsnet/scrimsbot/pkg/db"
)

// UserPositionTable is the relational table behind UserPosition.
const UserPositionTable = "user_position"

// UserPosition grants a user one position, optionally until an expiration
// point. Expired grants disappear from the cache on their own.
type UserPosition struct {
	db.TableRow
}

// NewUserPosition wraps raw column values as a user-position row, resolving
// a relation given by nested object shape.
func NewUserPosition(client *db.Client, data db.RowData) *UserPosition {
	r := &UserPosition{db.NewTableRow(client, UserPositionTable, data)}
	if v, ok := data["position"]; ok {
		r.SetPosition(v)
	}
	return r
}

func (p *UserPosition) UserID() string     { return p.GetString("user_id") }
func (p *UserPosition) PositionID() int64  { return p.GetInt("id_position") }
func (p *UserPosition) ExecutorID() string { return p.GetString("executor_id") }
func (p *UserPosition) GivenAt() int64     { return p.GetInt("given_at") }

// ExpiresAt returns the expiration timestamp; ok is false for permanent
// grants.
func (p *UserPosition) ExpiresAt() (int64, bool) {
	v, ok := p.Get("expires_at")
	if !ok || v == nil {
		return 0, false
	}
	return p.GetInt("expires_at"), true
}

// Expired reports whether the grant has run out.
func (p *UserPosition) Expired(now time.Time) bool {
	expiresAt, ok := p.ExpiresAt()
	return ok && expiresAt <= now.Unix()
}

// CacheExpired treats expired grants as absent, on top of the base TTL.
func (p *UserPosition) CacheExpired(now time.Time) bool {
	return p.Expired(now) || p.TableRow.CacheExpired(now)
}

// Position returns the cached position of this grant.
func (p *UserPosition) Position() (db.RowData, bool) {
	return p.Related(PositionTable, []string{"id_position"}, []string{"id_position"})
}

// SetUser assigns the granted user id.
func (p *UserPosition) SetUser(userID string) *UserPosition {
	p.Set("user_id", userID)
	return p
}

// SetPosition resolves the position reference and assigns id_position. A
// plain string resolves by position name.
func (p *UserPosition) SetPosition(resolvable any) *UserPosition {
	if name, ok := resolvable.(string); ok {
		resolvable = db.RowData{"name": name}
	}
	p.SetForeignKeys(PositionTable, []string{"id_position"}, []string{"id_position"}, resolvable)
	return p
}

// SetExecutor assigns the user who gave the position.
func (p *UserPosition) SetExecutor(userID string) *UserPosition {
	p.Set("executor_id", userID)
	return p
}

// SetGivenPoint assigns the grant timestamp, defaulting to now.
func (p *UserPosition) SetGivenPoint(givenAt int64) *UserPosition {
	if givenAt == 0 {
		givenAt = time.Now().Unix()
	}
	p.Set("given_at", givenAt)
	return p
}

// SetExpirationPoint assigns the expiration timestamp; 0 makes the grant
// permanent.
func (p *UserPosition) SetExpirationPoint(expiresAt int64) *UserPosition {
	if expiresAt == 0 {
		p.Set("expires_at", nil)
	} else {
		p.Set("expires_at", expiresAt)
	}
	return p
}

// Update re-resolves the position relation when the patch addresses it.
func (p *UserPosition) Update(data db.RowData) {
	p.TableRow.Update(data)
	if v, ok := data["position"]; ok {
		p.SetPosition(v)
	}
}
