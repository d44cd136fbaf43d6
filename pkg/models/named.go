// Package models contains the typed rows of the community-management
// schema and the Database aggregate that binds them to one client. Rows
// keep their state in the generic column map of db.TableRow; the types here
// add accessors, fluent builders and domain cache-expiry rules.
package models

import (
	"strings"

	"github.com/scrimsnet/scrimsbot/pkg/db"
)

// Lookup table names referenced by foreign keys across the schema.
const (
	TicketTypeTable   = "ticket_type"
	TicketStatusTable = "ticket_status"
	SessionTypeTable  = "session_type"
)

// TypeRow is the shape of the small name-keyed lookup tables: an id, a name
// and nothing else. Ticket types, ticket statuses and session types all use
// it.
type TypeRow struct {
	db.TableRow
}

func typeFactory(table string) db.RowFactory[*TypeRow] {
	return func(client *db.Client, data db.RowData) *TypeRow {
		return &TypeRow{db.NewTableRow(client, table, data)}
	}
}

// Name returns the row's name value.
func (t *TypeRow) Name() string { return t.GetString("name") }

// TitleName returns the name with underscores split and words capitalized.
func (t *TypeRow) TitleName() string { return titleName(t.Name()) }

// NeatName returns the name with underscores replaced by spaces.
func (t *TypeRow) NeatName() string { return strings.ReplaceAll(t.Name(), "_", " ") }

// SetName assigns the name value.
func (t *TypeRow) SetName(name string) *TypeRow {
	t.Set("name", name)
	return t
}

func titleName(name string) string {
	words := strings.Split(name, "_")
	for i, word := range words {
		if word != "" {
			words[i] = strings.ToUpper(word[:1]) + word[1:]
		}
	}
	return strings.Join(words, " ")
}
