package db

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Row is the contract every table entity satisfies. TableRow provides the
// base implementation; entity types embed it and may override Update (to
// re-resolve foreign keys) and CacheExpired (to layer domain expiry on top
// of the TTL check).
type Row interface {
	// ID derives the cache identity: the "#"-joined primary-key column
	// values if all are present, else all column values if all are
	// present, else "" (the row cannot be cached or identified).
	ID() string
	// Partial reports whether any declared column has no value yet.
	Partial() bool
	// Update assigns only columns declared for the row's table.
	Update(data RowData)
	// SQLData returns exactly the declared column values.
	SQLData() RowData
	// ToSelector returns primary-key-only fields if fully known, else the
	// full column projection.
	ToSelector() RowData
	// SetCacheExpiration sets the explicit time-based expiry consulted by
	// CacheExpired.
	SetCacheExpiration(expiration time.Time)
	// CacheExpired reports whether the cache must treat this row as
	// absent. Any true expiry cause suffices.
	CacheExpired(now time.Time) bool
}

// TableRow is the base behavior of one in-memory relational row. Column and
// primary-key lists come from the client's schema metadata at runtime, never
// from hardcoded lists. Constructing a row never fails: unrecognized data is
// ignored and missing columns just leave the row partial.
type TableRow struct {
	client     *Client
	table      string
	data       RowData
	expiration time.Time
}

// NewTableRow creates a row bound to the given table, assigning the
// declared columns from data.
func NewTableRow(client *Client, table string, data RowData) TableRow {
	r := TableRow{client: client, table: table, data: RowData{}}
	r.Update(data)
	return r
}

// Client returns the database client this row belongs to.
func (r *TableRow) Client() *Client { return r.client }

// TableName returns the relational table this row maps to.
func (r *TableRow) TableName() string { return r.table }

// Columns returns the declared column list from schema metadata.
func (r *TableRow) Columns() []string {
	if r.client == nil {
		return nil
	}
	return r.client.TableColumns(r.table)
}

// PrimaryKeys returns the primary-key column list from schema metadata.
func (r *TableRow) PrimaryKeys() []string {
	if r.client == nil {
		return nil
	}
	return r.client.TablePrimaryKeys(r.table)
}

// Get returns the value of a column, and whether it is set.
func (r *TableRow) Get(column string) (any, bool) {
	v, ok := r.data[column]
	return v, ok
}

// Set assigns one column value.
func (r *TableRow) Set(column string, value any) {
	r.data[column] = value
}

// GetString returns a column as string, or "" when unset or NULL.
func (r *TableRow) GetString(column string) string {
	switch v := r.data[column].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}

// GetInt returns a column as int64, or 0 when not numeric.
func (r *TableRow) GetInt(column string) int64 {
	if f, ok := numericValue(r.data[column]); ok {
		return int64(f)
	}
	return 0
}

// GetBool returns a column as bool, or false when unset.
func (r *TableRow) GetBool(column string) bool {
	b, _ := r.data[column].(bool)
	return b
}

// GetTime returns a column as time.Time, or the zero time when unset.
func (r *TableRow) GetTime(column string) time.Time {
	t, _ := r.data[column].(time.Time)
	return t
}

// ID implements Row.
func (r *TableRow) ID() string {
	if id, ok := joinValues(r.data, r.PrimaryKeys()); ok {
		return id
	}
	if id, ok := joinValues(r.data, r.Columns()); ok {
		return id
	}
	return ""
}

func joinValues(data RowData, keys []string) (string, bool) {
	if len(keys) == 0 {
		return "", false
	}
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		v, ok := data[key]
		if !ok {
			return "", false
		}
		parts = append(parts, fmt.Sprintf("%v", v))
	}
	return strings.Join(parts, "#"), true
}

// Partial implements Row.
func (r *TableRow) Partial() bool {
	for _, column := range r.Columns() {
		if _, ok := r.data[column]; !ok {
			return true
		}
	}
	return false
}

// Update implements Row: only declared columns are assigned.
func (r *TableRow) Update(data RowData) {
	columns := r.Columns()
	for key, value := range data {
		for _, column := range columns {
			if key == column {
				r.data[key] = value
				break
			}
		}
	}
}

// SQLData implements Row.
func (r *TableRow) SQLData() RowData {
	out := RowData{}
	for _, column := range r.Columns() {
		if v, ok := r.data[column]; ok {
			out[column] = v
		}
	}
	return out
}

// ToSelector implements Row.
func (r *TableRow) ToSelector() RowData {
	pks := r.PrimaryKeys()
	if selector := projectKeys(r.data, pks); selector != nil {
		return selector
	}
	return r.SQLData()
}

func projectKeys(data RowData, keys []string) RowData {
	if len(keys) == 0 {
		return nil
	}
	out := RowData{}
	for _, key := range keys {
		v, ok := data[key]
		if !ok {
			return nil
		}
		out[key] = v
	}
	return out
}

// MarshalJSON emits exactly the declared columns, suitable for persistence
// round-trip. Transient state never serializes.
func (r *TableRow) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.SQLData())
}

// SetCacheExpiration sets the explicit time-based expiry consulted by
// CacheExpired.
func (r *TableRow) SetCacheExpiration(expiration time.Time) {
	r.expiration = expiration
}

// CacheExpired implements Row with the explicit TTL check. Overrides must
// call this base check too, so expiry causes compose.
func (r *TableRow) CacheExpired(now time.Time) bool {
	return !r.expiration.IsZero() && !r.expiration.After(now)
}

// Equals compares by primary key when both sides carry all primary-key
// values, which is cheaper and immune to transient fields; otherwise it
// falls back to ExactlyEquals.
func (r *TableRow) Equals(other any) bool {
	otherData := dataOf(other)
	if otherData == nil {
		return false
	}
	pks := r.PrimaryKeys()
	if len(pks) > 0 {
		mine := projectKeys(r.data, pks)
		theirs := projectKeys(otherData, pks)
		if mine != nil && theirs != nil {
			return valuesMatch(theirs, mine)
		}
	}
	return r.ExactlyEquals(other)
}

// ExactlyEquals deep-compares all declared column values.
func (r *TableRow) ExactlyEquals(other any) bool {
	otherData := dataOf(other)
	if otherData == nil {
		return false
	}
	return valuesMatch(otherData, r.SQLData()) && valuesMatch(r.SQLData(), otherData)
}

func dataOf(v any) RowData {
	switch t := v.(type) {
	case RowData:
		return t
	case map[string]any:
		return RowData(t)
	case Row:
		return t.SQLData()
	default:
		return nil
	}
}

// SetForeignKeys resolves a belongs-to reference and assigns the local
// foreign-key columns. The resolvable may be a related Row, a partial
// object carrying the foreign key values, or a raw id resolvable through
// the foreign table's cache. nil explicitly nulls the local keys. An
// unresolvable reference degrades to nil local keys; it never fails.
//
// Callers decide what "no value given" means: only call this when the
// incoming data actually addressed the relation.
func (r *TableRow) SetForeignKeys(foreignTable string, localKeys, foreignKeys []string, resolvable any) {
	if resolvable != nil {
		if r.extractForeignKeys(dataOf(resolvable), localKeys, foreignKeys) {
			return
		}
		if r.client != nil {
			if data, ok := r.client.lookupCache(foreignTable, resolvable); ok {
				if r.extractForeignKeys(data, localKeys, foreignKeys) {
					return
				}
			}
		}
	}
	for _, key := range localKeys {
		r.data[key] = nil
	}
}

func (r *TableRow) extractForeignKeys(target RowData, localKeys, foreignKeys []string) bool {
	if target == nil {
		return false
	}
	for _, key := range foreignKeys {
		if _, ok := target[key]; !ok {
			return false
		}
	}
	for i, key := range localKeys {
		r.data[key] = target[foreignKeys[i]]
	}
	return true
}

// Related looks up the cached row of a belongs-to relation by foreign key.
// Back-references are always resolved through the owning table's cache, not
// stored as pointers, so evicted or replaced parents never go stale here.
func (r *TableRow) Related(foreignTable string, localKeys, foreignKeys []string) (RowData, bool) {
	if r.client == nil {
		return nil, false
	}
	selector := RowData{}
	for i, key := range localKeys {
		v, ok := r.data[key]
		if !ok || v == nil {
			return nil, false
		}
		selector[foreignKeys[i]] = v
	}
	return r.client.lookupCache(foreignTable, selector)
}

// valuesMatch reports whether every entry of sub matches data, recursing
// into nested objects and comparing scalars loosely (numeric types compare
// by value, everything else by representation).
func valuesMatch(sub RowData, data RowData) bool {
	for key, want := range sub {
		have, ok := data[key]
		if !ok {
			return false
		}
		if !looseEqual(want, have) {
			return false
		}
	}
	return true
}

func looseEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if _, ok := a.(undefined); ok {
		return false
	}
	if _, ok := b.(undefined); ok {
		return false
	}
	if subA, okA := nestedData(a); okA {
		if subB, okB := nestedData(b); okB {
			return valuesMatch(subA, subB) && valuesMatch(subB, subA)
		}
		return false
	}
	if fa, ok := numericValue(a); ok {
		if fb, ok := numericValue(b); ok {
			return fa == fb
		}
	}
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Equal(tb)
		}
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func numericValue(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
