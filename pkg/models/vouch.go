package models

import (
	"time"

	"github.com/scrimsnet/scrimsbot/pkg/db"
)

// VouchTable is the relational table behind Vouch.
const VouchTable = "vouch"

// Vouch lifetimes: negative vouches count against a member for two weeks,
// positive ones for roughly four months.
const (
	negativeVouchLifetime = 14 * 24 * time.Hour
	positiveVouchLifetime = time.Duration(4 * 30.41 * 24 * float64(time.Hour))
)

// Vouch is one council or community judgement about a member's play for a
// position. Worth is positive for approval, negative for denial; a missing
// executor marks a vote outcome.
type Vouch struct {
	db.TableRow
}

// NewVouch wraps raw column values as a vouch row, generating an id when
// none is given.
func NewVouch(client *db.Client, data db.RowData) *Vouch {
	v := &Vouch{db.NewTableRow(client, VouchTable, data)}
	if rel, ok := data["position"]; ok {
		v.SetPosition(rel)
	}
	if v.VouchID() == "" && client != nil {
		v.SetID(client.GenerateID())
	}
	return v
}

func (v *Vouch) VouchID() string    { return v.GetString("id_vouch") }
func (v *Vouch) UserID() string     { return v.GetString("user_id") }
func (v *Vouch) PositionID() int64  { return v.GetInt("id_position") }
func (v *Vouch) ExecutorID() string { return v.GetString("executor_id") }
func (v *Vouch) GivenAt() int64     { return v.GetInt("given_at") }
func (v *Vouch) Worth() int64       { return v.GetInt("worth") }
func (v *Vouch) Comment() string    { return v.GetString("comment") }

// Positive reports whether the vouch counts in the member's favor.
func (v *Vouch) Positive() bool { return v.Worth() > 0 }

// VoteOutcome reports whether the vouch records a council vote rather than
// an individual judgement.
func (v *Vouch) VoteOutcome() bool { return v.ExecutorID() == "" }

// Expired reports whether the vouch no longer counts.
func (v *Vouch) Expired(now time.Time) bool {
	lifetime := positiveVouchLifetime
	if v.Worth() < 0 {
		lifetime = negativeVouchLifetime
	}
	return now.Unix() >= v.GivenAt()+int64(lifetime.Seconds())
}

// CacheExpired ages out vouches that no longer count, once past the table
// TTL.
func (v *Vouch) CacheExpired(now time.Time) bool {
	return v.Expired(now) && v.TableRow.CacheExpired(now)
}

// SetID assigns the vouch id.
func (v *Vouch) SetID(id string) *Vouch {
	v.Set("id_vouch", id)
	return v
}

// SetUser assigns the vouched member.
func (v *Vouch) SetUser(userID string) *Vouch {
	v.Set("user_id", userID)
	return v
}

// SetPosition resolves the position reference and assigns id_position. A
// plain string resolves by position name.
func (v *Vouch) SetPosition(resolvable any) *Vouch {
	if name, ok := resolvable.(string); ok {
		resolvable = db.RowData{"name": name}
	}
	v.SetForeignKeys(PositionTable, []string{"id_position"}, []string{"id_position"}, resolvable)
	return v
}

// SetExecutor assigns the vouching user; "" marks a vote outcome.
func (v *Vouch) SetExecutor(userID string) *Vouch {
	if userID == "" {
		v.Set("executor_id", nil)
	} else {
		v.Set("executor_id", userID)
	}
	return v
}

// SetGivenAt assigns the judgement timestamp, defaulting to now.
func (v *Vouch) SetGivenAt(givenAt int64) *Vouch {
	if givenAt == 0 {
		givenAt = time.Now().Unix()
	}
	v.Set("given_at", givenAt)
	return v
}

// SetWorth assigns the judgement weight.
func (v *Vouch) SetWorth(worth int64) *Vouch {
	v.Set("worth", worth)
	return v
}

// SetComment assigns the judgement comment; "" nulls it.
func (v *Vouch) SetComment(comment string) *Vouch {
	if comment == "" {
		v.Set("comment", nil)
	} else {
		v.Set("comment", comment)
	}
	return v
}

// Update re-resolves the position relation when the patch addresses it.
func (v *Vouch) Update(data db.RowData) {
	v.TableRow.Update(data)
	if rel, ok := data["position"]; ok {
		v.SetPosition(rel)
	}
}
