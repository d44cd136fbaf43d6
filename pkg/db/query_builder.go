package db

import (
	"fmt"
	"sort"
	"strings"
)

// thisAlias is the alias every table-scoped statement runs under, so that
// predicates can reference the base table without knowing its name.
const thisAlias = `"_this"`

// ForeignKey describes one belongs-to relationship of a table: the local
// column referencing ForeignColumn on ForeignTable. Foreign keys are keyed
// by a local name derived from the column (id_position -> "position"), which
// doubles as the join alias.
type ForeignKey struct {
	Column        string
	ForeignTable  string
	ForeignColumn string
}

// schemaSource provides the foreign-key metadata a query builder needs.
// The database client implements it from schema introspection.
type schemaSource interface {
	TableForeigners(table string) map[string]ForeignKey
}

// SelectOptions adjust SELECT/COUNT statements.
type SelectOptions struct {
	OrderBy string
	// Limit is emitted when positive.
	Limit int
}

// QueryBuilder composes full statements for one table, rewriting
// foreign-key-shaped predicate entries into joins (reads) or correlated
// sub-selects (writes) so that every CRUD path accepts the same nested
// object shape.
type QueryBuilder struct {
	table  string
	schema schemaSource
}

// NewQueryBuilder creates a query builder for the named table.
func NewQueryBuilder(table string, schema schemaSource) *QueryBuilder {
	return &QueryBuilder{table: table, schema: schema}
}

func (b *QueryBuilder) foreigners() map[string]ForeignKey {
	if b.schema == nil {
		return nil
	}
	return b.schema.TableForeigners(b.table)
}

func sortedForeignerKeys(foreigners map[string]ForeignKey) []string {
	keys := make([]string, 0, len(foreigners))
	for k := range foreigners {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// leftJoins generates one LEFT JOIN per declared foreign key, aliased to the
// local key name, so read predicates like {type: {name: "x"}} resolve
// against the joined table.
func (b *QueryBuilder) leftJoins() string {
	foreigners := b.foreigners()
	joins := make([]string, 0, len(foreigners))
	for _, localKey := range sortedForeignerKeys(foreigners) {
		fk := foreigners[localKey]
		joins = append(joins, fmt.Sprintf(
			`LEFT JOIN %s "%s" ON %s."%s"="%s"."%s"`,
			fk.ForeignTable, localKey, thisAlias, fk.Column, localKey, fk.ForeignColumn,
		))
	}
	return strings.Join(joins, " ")
}

// readForeignerShaper rewrites foreign-key predicate entries into correlated
// sub-select conditions against the foreign table, for statements that
// cannot carry joins (DELETE, UPDATE ... WHERE).
func (b *QueryBuilder) readForeignerShaper() shaper {
	return func(obj RowData, p *Params) {
		foreigners := b.foreigners()
		for _, localKey := range sortedForeignerKeys(foreigners) {
			val, ok := obj[localKey]
			if !ok {
				continue
			}
			fk := foreigners[localKey]
			nested, isNested := nestedData(val)
			if !isNested {
				continue
			}
			for _, childKey := range nested.sortedKeys() {
				subSelect := fmt.Sprintf(
					`(SELECT %s FROM %s _v WHERE %s."%s"=_v."%s")`,
					childKey, fk.ForeignTable, thisAlias, fk.Column, fk.ForeignColumn,
				)
				obj[subSelect] = nested[childKey]
			}
			delete(obj, localKey)
		}
	}
}

// writeForeignerShaper rewrites foreign-key data entries into single-row
// sub-selects resolving the referenced key, so writes may address relations
// by nested object shape rather than by raw foreign-key column.
func (b *QueryBuilder) writeForeignerShaper() shaper {
	return func(obj RowData, p *Params) {
		foreigners := b.foreigners()
		for _, localKey := range sortedForeignerKeys(foreigners) {
			val, ok := obj[localKey]
			if !ok {
				continue
			}
			fk := foreigners[localKey]
			delete(obj, localKey)
			nested, isNested := nestedData(val)
			if !isNested {
				// nil nulls the relation; anything else unresolvable
				// drops out of the write entirely
				if val == nil {
					obj[fk.Column] = nil
				} else {
					obj[fk.Column] = Undefined
				}
				continue
			}
			where := NewStatement(nested).SetParent(localKey).WhereClause(p)
			if where != "" {
				where = " WHERE " + where
			}
			obj[fk.Column] = Expr{SQL: fmt.Sprintf(
				`(SELECT %s FROM %s "%s"%s LIMIT 1)`,
				fk.ForeignColumn, fk.ForeignTable, localKey, where,
			)}
		}
	}
}

func optionsSQL(opts SelectOptions) string {
	parts := make([]string, 0, 2)
	if opts.OrderBy != "" {
		parts = append(parts, "ORDER BY "+opts.OrderBy)
	}
	if opts.Limit > 0 {
		parts = append(parts, fmt.Sprintf("LIMIT %d", opts.Limit))
	}
	return strings.Join(parts, " ")
}

// BuildSelect builds "SELECT "_this".* FROM table "_this" LEFT JOIN ...".
func (b *QueryBuilder) BuildSelect(where *Statement, opts SelectOptions) (string, []any) {
	return b.buildRead(fmt.Sprintf("SELECT %s.*", thisAlias), where, opts)
}

// BuildCount builds the matching "SELECT count(*)" statement.
func (b *QueryBuilder) BuildCount(where *Statement, opts SelectOptions) (string, []any) {
	return b.buildRead("SELECT count(*)", where, opts)
}

func (b *QueryBuilder) buildRead(selection string, where *Statement, opts SelectOptions) (string, []any) {
	p := &Params{}
	cond := where.SetParent(thisAlias).WhereClause(p)

	var query strings.Builder
	query.WriteString(selection)
	query.WriteString(fmt.Sprintf(" FROM %s %s", b.table, thisAlias))
	if joins := b.leftJoins(); joins != "" {
		query.WriteString(" " + joins)
	}
	if cond != "" {
		query.WriteString(" WHERE " + cond)
	}
	if options := optionsSQL(opts); options != "" {
		query.WriteString(" " + options)
	}
	return query.String(), p.Values()
}

// BuildDelete builds a DELETE returning the removed rows. Foreign-key
// predicate entries are rewritten into correlated sub-selects.
func (b *QueryBuilder) BuildDelete(where *Statement) (string, []any) {
	p := &Params{}
	cond := where.SetParent(thisAlias).shape(b.readForeignerShaper(), p).WhereClause(p)

	var query strings.Builder
	query.WriteString(fmt.Sprintf("DELETE FROM %s %s", b.table, thisAlias))
	if cond != "" {
		query.WriteString(" WHERE " + cond)
	}
	query.WriteString(" RETURNING *")
	return query.String(), p.Values()
}

// BuildUpdate builds an UPDATE returning the changed rows. An empty SET
// list after flattening is a caller error, not a silent success.
func (b *QueryBuilder) BuildUpdate(data RowData, where *Statement) (string, []any, error) {
	p := &Params{}
	set := NewStatement(data).SetParent(thisAlias).shape(b.writeForeignerShaper(), p).SetClause(p)
	if set == "" {
		return "", nil, NewError(fmt.Sprintf("%s: empty set statement", b.table))
	}
	cond := where.SetParent(thisAlias).shape(b.readForeignerShaper(), p).WhereClause(p)

	var query strings.Builder
	query.WriteString(fmt.Sprintf("UPDATE %s %s SET %s", b.table, thisAlias, set))
	if cond != "" {
		query.WriteString(" WHERE " + cond)
	}
	query.WriteString(" RETURNING *")
	return query.String(), p.Values(), nil
}

// BuildInsert builds an INSERT returning the created row. An empty column
// list is a caller error.
func (b *QueryBuilder) BuildInsert(data RowData) (string, []any, error) {
	p := &Params{}
	insert := NewStatement(data).shape(b.writeForeignerShaper(), p).InsertClause(p)
	if insert == "" {
		return "", nil, NewError(fmt.Sprintf("%s: empty insert statement", b.table))
	}
	return fmt.Sprintf("INSERT INTO %s %s RETURNING *", b.table, insert), p.Values(), nil
}

// BuildFunctionCall builds "SELECT fn(...)". Arguments may be nil (no
// arguments), a RowData (named "key => $n" arguments) or a []any
// (positional arguments).
func BuildFunctionCall(name string, args any) (string, []any) {
	p := &Params{}
	return fmt.Sprintf("SELECT %s(%s)", name, functionArgs(args, p)), p.Values()
}

// BuildFunctionSelect builds "SELECT * FROM fn(...)", for set-returning
// functions whose result rows should scan like table rows.
func BuildFunctionSelect(name string, args any) (string, []any) {
	p := &Params{}
	return fmt.Sprintf("SELECT * FROM %s(%s)", name, functionArgs(args, p)), p.Values()
}

func functionArgs(args any, p *Params) string {
	switch v := args.(type) {
	case nil:
		return ""
	case RowData:
		return NewStatement(v).FuncParams(p)
	case map[string]any:
		return NewStatement(RowData(v)).FuncParams(p)
	case []any:
		parts := make([]string, 0, len(v))
		for _, arg := range v {
			value, ok := renderValue(arg, p)
			if !ok {
				continue
			}
			parts = append(parts, value)
		}
		return strings.Join(parts, ", ")
	default:
		rendered, _ := renderValue(v, p)
		return rendered
	}
}
