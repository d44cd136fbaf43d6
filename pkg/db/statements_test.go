package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWhereClauseQualifiesAndSortsKeys(t *testing.T) {
	p := &Params{}
	sql := NewStatement(RowData{"b": 2, "a": 1}).SetParent(thisAlias).WhereClause(p)

	assert.Equal(t, `"_this"."a" = $1 AND "_this"."b" = $2`, sql)
	assert.Equal(t, []any{1, 2}, p.Values())
}

func TestWhereClauseNullAndUndefined(t *testing.T) {
	p := &Params{}
	sql := NewStatement(RowData{"gone": nil, "missing": Undefined}).SetParent(thisAlias).WhereClause(p)

	assert.Equal(t, `"_this"."gone" IS NULL AND FALSE`, sql)
	assert.Empty(t, p.Values())
}

func TestWhereClauseInlinesExpressions(t *testing.T) {
	p := &Params{}
	sql := NewStatement(RowData{"total": Expr{SQL: "(SELECT count(*) FROM vouch)"}}).
		SetParent(thisAlias).WhereClause(p)

	assert.Equal(t, `"_this"."total" = (SELECT count(*) FROM vouch)`, sql)
	assert.Empty(t, p.Values())
}

func TestWhereClauseNestedObjects(t *testing.T) {
	p := &Params{}
	sql := NewStatement(RowData{"position": RowData{"name": "prime"}}).SetParent(thisAlias).WhereClause(p)

	assert.Equal(t, `"position"."name" = $1`, sql)
	assert.Equal(t, []any{"prime"}, p.Values())
}

func TestWhereClauseCombinators(t *testing.T) {
	p := &Params{}
	sql := Or(RowData{"a": 1}, RowData{"b": 2}).SetParent(thisAlias).WhereClause(p)
	assert.Equal(t, `("_this"."a" = $1) OR ("_this"."b" = $2)`, sql)

	p = &Params{}
	sql = Not(RowData{"a": 1}).SetParent(thisAlias).WhereClause(p)
	assert.Equal(t, `NOT "_this"."a" = $1`, sql)

	p = &Params{}
	sql = ILike(RowData{"name": "%prime%"}).SetParent(thisAlias).WhereClause(p)
	assert.Equal(t, `"_this"."name" ILIKE $1`, sql)
}

func TestWhereClauseNestedStatements(t *testing.T) {
	p := &Params{}
	inner := Or(RowData{"a": 1}, RowData{"b": 2})
	sql := And(RowData{"c": 3}, inner).SetParent(thisAlias).WhereClause(p)

	assert.Equal(t, `("_this"."c" = $1) AND (("_this"."a" = $2) OR ("_this"."b" = $3))`, sql)
	assert.Equal(t, []any{3, 1, 2}, p.Values())
}

func TestStatementAddClonesInput(t *testing.T) {
	data := RowData{"a": 1}
	s := NewStatement(data)
	data["a"] = 99

	p := &Params{}
	s.SetParent(thisAlias).WhereClause(p)
	assert.Equal(t, []any{1}, p.Values())
}

func TestStatementAddRejectsUnknownShapes(t *testing.T) {
	assert.Panics(t, func() { NewStatement(42) })
}

func TestEmptyStatementRendersNothing(t *testing.T) {
	p := &Params{}
	assert.Equal(t, "", NewStatement().WhereClause(p))
	assert.Equal(t, "", NewStatement().SetClause(p))
	assert.Equal(t, "", NewStatement().InsertClause(p))
}

func TestSetClauseDropsUndefinedRendersNull(t *testing.T) {
	p := &Params{}
	sql := NewStatement(RowData{"a": nil, "b": Undefined, "c": 3}).SetClause(p)

	assert.Equal(t, `a = NULL, c = $1`, sql)
	assert.Equal(t, []any{3}, p.Values())
}

func TestInsertClause(t *testing.T) {
	p := &Params{}
	sql := NewStatement(RowData{"name": "x", "level": nil, "ghost": Undefined}).InsertClause(p)

	assert.Equal(t, `(level, name) VALUES (NULL, $1)`, sql)
	assert.Equal(t, []any{"x"}, p.Values())
}

func TestInsertClauseAllUndefined(t *testing.T) {
	p := &Params{}
	assert.Equal(t, "", NewStatement(RowData{"ghost": Undefined}).InsertClause(p))
}

func TestFuncParams(t *testing.T) {
	p := &Params{}
	sql := NewStatement(RowData{"b": 2, "a": 1}).FuncParams(p)

	assert.Equal(t, `a => $1, b => $2`, sql)
	assert.Equal(t, []any{1, 2}, p.Values())
}

func TestMergeLaterObjectsWin(t *testing.T) {
	p := &Params{}
	sql := NewStatement(RowData{"a": 1}, RowData{"a": 2}).SetClause(p)

	require.Equal(t, `a = $1`, sql)
	assert.Equal(t, []any{2}, p.Values())
}
