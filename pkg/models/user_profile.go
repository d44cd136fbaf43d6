package models

import (
	"fmt"
	"time"

	"github.com/scrimsnet/scrimsbot/pkg/db"
)

// UserProfileTable is the relational table behind UserProfile.
const UserProfileTable = "user_profile"

// UserProfile is the bot-side record of a platform user: identity, optional
// locale details and the time they joined the community.
type UserProfile struct {
	db.TableRow
}

// NewUserProfile wraps raw column values as a profile row.
func NewUserProfile(client *db.Client, data db.RowData) *UserProfile {
	return &UserProfile{db.NewTableRow(client, UserProfileTable, data)}
}

func (u *UserProfile) UserID() string       { return u.GetString("user_id") }
func (u *UserProfile) Username() string     { return u.GetString("username") }
func (u *UserProfile) Discriminator() int64 { return u.GetInt("discriminator") }
func (u *UserProfile) JoinedAt() int64      { return u.GetInt("joined_at") }
func (u *UserProfile) Avatar() string       { return u.GetString("avatar") }
func (u *UserProfile) Country() string      { return u.GetString("country") }
func (u *UserProfile) Timezone() string     { return u.GetString("timezone") }

// Tag returns the classic name#0000 form.
func (u *UserProfile) Tag() string {
	return fmt.Sprintf("%s#%04d", u.Username(), u.Discriminator())
}

// Mention returns the chat mention of the user, or "" without an id.
func (u *UserProfile) Mention() string {
	if id := u.UserID(); id != "" {
		return fmt.Sprintf("<@%s>", id)
	}
	return ""
}

func (u *UserProfile) String() string {
	if mention := u.Mention(); mention != "" {
		return mention
	}
	return "*Unknown User*"
}

// SetUser assigns the user id.
func (u *UserProfile) SetUser(userID string) *UserProfile {
	u.Set("user_id", userID)
	return u
}

// SetJoinPoint assigns the join timestamp, defaulting to now.
func (u *UserProfile) SetJoinPoint(joinedAt int64) *UserProfile {
	if joinedAt == 0 {
		joinedAt = time.Now().Unix()
	}
	u.Set("joined_at", joinedAt)
	return u
}

// SetUsername assigns the username.
func (u *UserProfile) SetUsername(username string) *UserProfile {
	u.Set("username", username)
	return u
}

// SetDiscriminator assigns the discriminator.
func (u *UserProfile) SetDiscriminator(discriminator int64) *UserProfile {
	u.Set("discriminator", discriminator)
	return u
}

// SetAvatar assigns the avatar hash; "" nulls it.
func (u *UserProfile) SetAvatar(avatar string) *UserProfile {
	if avatar == "" {
		u.Set("avatar", nil)
	} else {
		u.Set("avatar", avatar)
	}
	return u
}

// SetCountry assigns the country.
func (u *UserProfile) SetCountry(country string) *UserProfile {
	u.Set("country", country)
	return u
}

// SetTimezone assigns the IANA timezone name.
func (u *UserProfile) SetTimezone(timezone string) *UserProfile {
	u.Set("timezone", timezone)
	return u
}

// UTCOffset formats the user's timezone offset as ±hh:mm at the given time,
// or "" without a valid timezone.
func (u *UserProfile) UTCOffset(at time.Time) string {
	loc, err := time.LoadLocation(u.Timezone())
	if err != nil || u.Timezone() == "" {
		return ""
	}
	_, seconds := at.In(loc).Zone()
	sign := "+"
	if seconds < 0 {
		sign = "-"
		seconds = -seconds
	}
	return fmt.Sprintf("%s%02d:%02d", sign, seconds/3600, (seconds%3600)/60)
}
