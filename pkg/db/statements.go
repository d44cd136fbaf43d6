package db

import (
	"fmt"
	"sort"
	"strings"
)

// RowData maps column names to values. A key that is absent from the map is
// simply not part of the data. A nil value is SQL NULL. The Undefined
// sentinel marks a column that is known to have no resolvable value: it
// renders as an always-false condition in WHERE context and is dropped from
// SET/INSERT context.
type RowData map[string]any

// Clone returns a shallow copy of the data.
func (d RowData) Clone() RowData {
	out := make(RowData, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

func (d RowData) sortedKeys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type undefined struct{}

// Undefined is the "no value can match" marker, used for foreign keys that
// failed to resolve. See RowData.
var Undefined undefined

// Expr is a raw SQL fragment that is inlined without parameterization.
// Never build one from untrusted input.
type Expr struct {
	SQL string
}

// Params collects positional query parameters and hands out sequential
// placeholders. One Params instance is shared across an entire statement.
type Params struct {
	values []any
}

// Add appends a value and returns its placeholder, e.g. "$3".
func (p *Params) Add(v any) string {
	p.values = append(p.values, v)
	return fmt.Sprintf("$%d", len(p.values))
}

// Values returns the collected parameters in placeholder order.
func (p *Params) Values() []any {
	if p.values == nil {
		return []any{}
	}
	return p.values
}

// shaper rewrites one predicate object in place, typically replacing
// foreign-key entries with sub-select fragments. See QueryBuilder.
type shaper func(obj RowData, p *Params)

// Statement converts nested value objects into parameterized SQL fragments:
// WHERE conditions, SET assignments, INSERT value lists and function
// arguments. Multiple objects combine with the configured separator, each
// parenthesized. Nested objects flatten into alias-qualified column
// references, so {position: {id: 5}} becomes a condition on "position"."id".
//
// Go maps iterate in random order, so keys are processed in sorted order
// within each object; objects keep the order they were given in. Parameter
// placeholders are assigned in that deterministic encounter order.
type Statement struct {
	prefix    string
	operator  string
	separator string
	parent    string
	objs      []any // RowData or *Statement
}

// NewStatement builds an AND-combined equality statement from the given
// objects. Each object may be a RowData (or plain map), a Row, another
// *Statement, or a slice of those. Empty input yields empty clauses.
func NewStatement(objs ...any) *Statement {
	return newStatement(objs, "", "=", "AND")
}

// And combines objects with AND.
func And(objs ...any) *Statement { return newStatement(objs, "", "=", "AND") }

// Or combines objects with OR.
func Or(objs ...any) *Statement { return newStatement(objs, "", "=", "OR") }

// Not negates each object's condition group.
func Not(objs ...any) *Statement { return newStatement(objs, "NOT", "=", "AND") }

// AndNot combines negated groups with AND.
func AndNot(objs ...any) *Statement { return newStatement(objs, "NOT", "=", "AND") }

// OrNot combines negated groups with OR.
func OrNot(objs ...any) *Statement { return newStatement(objs, "NOT", "=", "OR") }

// Like compares with the LIKE operator.
func Like(objs ...any) *Statement { return newStatement(objs, "", "LIKE", "AND") }

// OrLike combines LIKE conditions with OR.
func OrLike(objs ...any) *Statement { return newStatement(objs, "", "LIKE", "OR") }

// ILike compares with the case-insensitive ILIKE operator.
func ILike(objs ...any) *Statement { return newStatement(objs, "", "ILIKE", "AND") }

// OrILike combines ILIKE conditions with OR.
func OrILike(objs ...any) *Statement { return newStatement(objs, "", "ILIKE", "OR") }

func newStatement(objs []any, prefix, operator, separator string) *Statement {
	s := &Statement{prefix: prefix, operator: operator, separator: separator, parent: "this"}
	s.Add(objs...)
	return s
}

// Add appends further objects to the statement.
func (s *Statement) Add(objs ...any) *Statement {
	for _, obj := range objs {
		switch v := obj.(type) {
		case nil:
			// nothing to add
		case *Statement:
			s.objs = append(s.objs, v)
		case RowData:
			s.objs = append(s.objs, v.Clone())
		case map[string]any:
			s.objs = append(s.objs, RowData(v).Clone())
		case []any:
			s.Add(v...)
		case interface{ SQLData() RowData }:
			s.objs = append(s.objs, v.SQLData())
		default:
			panic(fmt.Sprintf("db: cannot build statement from %T", obj))
		}
	}
	return s
}

// SetParent sets the alias used to qualify bare column names and propagates
// it to nested statements.
func (s *Statement) SetParent(parent string) *Statement {
	s.parent = strings.ReplaceAll(parent, `"`, "")
	for _, obj := range s.objs {
		if nested, ok := obj.(*Statement); ok {
			nested.SetParent(parent)
		}
	}
	return s
}

// shape applies fn to every value object, recursing into nested statements.
func (s *Statement) shape(fn shaper, p *Params) *Statement {
	for _, obj := range s.objs {
		switch v := obj.(type) {
		case *Statement:
			v.shape(fn, p)
		case RowData:
			fn(v, p)
		}
	}
	return s
}

// merge unions all value objects into one, later objects overriding earlier
// ones on key collision. Used for SET/INSERT/function-argument shapes.
func (s *Statement) merge() RowData {
	out := RowData{}
	for _, obj := range s.objs {
		switch v := obj.(type) {
		case *Statement:
			for k, val := range v.merge() {
				out[k] = val
			}
		case RowData:
			for k, val := range v {
				out[k] = val
			}
		}
	}
	return out
}

type pair struct {
	key string
	val any
}

// flatten converts one value object into an ordered list of qualified
// column/value pairs. Nested objects become alias-qualified references
// ("position"."id"); top-level scalar keys are qualified with the statement
// parent. Keys already shaped as sub-selects pass through untouched.
func (s *Statement) flatten(obj RowData) []pair {
	var out []pair
	s.flattenInto(&out, obj, "")
	return out
}

func (s *Statement) flattenInto(out *[]pair, obj RowData, prevParent string) {
	for _, key := range obj.sortedKeys() {
		val := obj[key]
		if strings.HasPrefix(key, "(") && strings.HasSuffix(key, ")") {
			*out = append(*out, pair{key: key, val: val})
			continue
		}
		qualified := `"` + key + `"`
		if prevParent != "" {
			qualified = prevParent + "." + qualified
		}
		if nested, ok := nestedData(val); ok {
			s.flattenInto(out, nested, qualified)
			continue
		}
		if s.parent != "" && prevParent == "" {
			qualified = `"` + s.parent + `".` + qualified
		}
		*out = append(*out, pair{key: qualified, val: val})
	}
}

// nestedData reports whether val is a nested value object.
func nestedData(val any) (RowData, bool) {
	switch v := val.(type) {
	case RowData:
		return v, true
	case map[string]any:
		return RowData(v), true
	default:
		return nil, false
	}
}

// WhereClause renders the statement as a WHERE condition, appending
// parameters to p. Returns "" when there is nothing to render, in which
// case the caller omits the WHERE keyword.
func (s *Statement) WhereClause(p *Params) string {
	sql := ""
	for _, obj := range s.objs {
		var part string
		switch v := obj.(type) {
		case *Statement:
			part = v.WhereClause(p)
		case RowData:
			part = s.whereConditions(v, p)
		}
		if part == "" {
			continue
		}
		if sql == "" {
			sql = strings.TrimSpace(s.prefix + " " + part)
		} else {
			sql = fmt.Sprintf("(%s) %s %s(%s)", sql, s.separator, s.prefix, part)
		}
	}
	return sql
}

func (s *Statement) whereConditions(obj RowData, p *Params) string {
	pairs := s.flatten(obj)
	conditions := make([]string, 0, len(pairs))
	for _, pr := range pairs {
		switch v := pr.val.(type) {
		case undefined:
			conditions = append(conditions, "FALSE")
		case nil:
			conditions = append(conditions, fmt.Sprintf("%s IS NULL", pr.key))
		case Expr:
			conditions = append(conditions, fmt.Sprintf("%s %s %s", pr.key, s.operator, v.SQL))
		default:
			conditions = append(conditions, fmt.Sprintf("%s %s %s", pr.key, s.operator, p.Add(pr.val)))
		}
	}
	return strings.Join(conditions, " AND ")
}

// SetClause renders the statement as UPDATE assignments. Keys are used
// verbatim (unqualified); Undefined entries are dropped.
func (s *Statement) SetClause(p *Params) string {
	merged := s.merge()
	assignments := make([]string, 0, len(merged))
	for _, key := range merged.sortedKeys() {
		rendered, ok := renderValue(merged[key], p)
		if !ok {
			continue
		}
		assignments = append(assignments, fmt.Sprintf("%s = %s", key, rendered))
	}
	return strings.Join(assignments, ", ")
}

// InsertClause renders "(columns) VALUES (values)". Undefined entries are
// dropped. Returns "" when no columns remain.
func (s *Statement) InsertClause(p *Params) string {
	merged := s.merge()
	columns := make([]string, 0, len(merged))
	values := make([]string, 0, len(merged))
	for _, key := range merged.sortedKeys() {
		rendered, ok := renderValue(merged[key], p)
		if !ok {
			continue
		}
		columns = append(columns, key)
		values = append(values, rendered)
	}
	if len(columns) == 0 {
		return ""
	}
	return fmt.Sprintf("(%s) VALUES (%s)", strings.Join(columns, ", "), strings.Join(values, ", "))
}

// FuncParams renders named function arguments ("key => $1, ...").
func (s *Statement) FuncParams(p *Params) string {
	merged := s.merge()
	args := make([]string, 0, len(merged))
	for _, key := range merged.sortedKeys() {
		rendered, ok := renderValue(merged[key], p)
		if !ok {
			continue
		}
		args = append(args, fmt.Sprintf("%s => %s", key, rendered))
	}
	return strings.Join(args, ", ")
}

// renderValue parameterizes a write-context value. The second return is
// false for Undefined values, which write contexts drop entirely.
func renderValue(val any, p *Params) (string, bool) {
	switch v := val.(type) {
	case undefined:
		return "", false
	case nil:
		return "NULL", true
	case Expr:
		return v.SQL, true
	default:
		return p.Add(val), true
	}
}
