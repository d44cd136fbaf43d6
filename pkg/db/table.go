package db

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/scrimsnet/scrimsbot/pkg/bus"
)

// RowFactory constructs the typed row of a table from raw column values.
type RowFactory[T Row] func(client *Client, data RowData) T

// executor issues one parameterized statement. The client implements it;
// tests substitute their own.
type executor interface {
	query(ctx context.Context, query string, params []any) ([]RowData, error)
}

// Table binds one relational table to its typed rows, its cache and its
// notification topics. All writes are optimistic: the cache changes first,
// the statement runs second, and a failed statement rolls the cache back
// before the error surfaces.
type Table[T Row] struct {
	client  *Client
	name    string
	cache   *Cache[T]
	builder *QueryBuilder
	factory RowFactory[T]
	exec    executor
	ttl     time.Duration
	metrics *tableMetrics
	log     *zap.Logger
}

// NewTable creates a table bound to the client and registers it for
// cross-table cache lookups.
func NewTable[T Row](client *Client, name string, factory RowFactory[T]) *Table[T] {
	t := &Table[T]{
		client:  client,
		name:    name,
		cache:   NewCache[T](),
		builder: NewQueryBuilder(name, client),
		factory: factory,
		exec:    client,
		metrics: newTableMetrics(name),
		log:     client.Logger().Named(name),
	}
	client.register(name, t)
	return t
}

// WithTTL gives every row wrapped by this table a time-based cache expiry.
// Zero (the default) keeps rows until replaced or removed.
func (t *Table[T]) WithTTL(ttl time.Duration) *Table[T] {
	t.ttl = ttl
	return t
}

// Name returns the relational table name.
func (t *Table[T]) Name() string { return t.name }

// Cache returns the table's cache.
func (t *Table[T]) Cache() *Cache[T] { return t.cache }

// exists reports whether the table was found during schema introspection.
// Operations on unknown tables are no-ops with empty results.
func (t *Table[T]) exists() bool {
	return len(t.client.TableColumns(t.name)) > 0
}

// Connect subscribes the notification topics and warms the cache with a
// full fetch. Call after the client connected.
func (t *Table[T]) Connect(ctx context.Context) error {
	t.addListeners()
	_, err := t.SQLFetch(ctx, nil, SelectOptions{})
	return err
}

func (t *Table[T]) addListeners() {
	notifier := t.client.Bus()
	if notifier == nil {
		return
	}
	codec := notifier.Codec()
	notifier.Subscribe(bus.CreateTopic(t.name), func(payload []byte) {
		t.metrics.notifications.Inc()
		var data map[string]any
		if err := codec.Unmarshal(payload, &data); err != nil {
			t.log.Warn("bad create notification", zap.Error(err))
			return
		}
		t.cache.Push(t.wrap(RowData(data)))
	})
	notifier.Subscribe(bus.UpdateTopic(t.name), func(payload []byte) {
		t.metrics.notifications.Inc()
		var update bus.UpdatePayload
		if err := codec.Unmarshal(payload, &update); err != nil {
			t.log.Warn("bad update notification", zap.Error(err))
			return
		}
		if selector, ok := t.cacheSelector(update.Selector); ok {
			t.cache.Update(selector, RowData(update.Data))
		}
	})
	notifier.Subscribe(bus.RemoveTopic(t.name), func(payload []byte) {
		t.metrics.notifications.Inc()
		var selector map[string]any
		if err := codec.Unmarshal(payload, &selector); err != nil {
			t.log.Warn("bad remove notification", zap.Error(err))
			return
		}
		if normalized, ok := t.cacheSelector(selector); ok {
			t.cache.FilterOut(normalized)
		}
	})
}

func (t *Table[T]) publish(ctx context.Context, topic string, payload any) {
	notifier := t.client.Bus()
	if notifier == nil {
		return
	}
	if err := notifier.Publish(ctx, topic, payload); err != nil {
		t.log.Warn("publish failed", zap.String("topic", topic), zap.Error(err))
	}
}

// Query runs a raw statement and wraps the result rows as table rows. The
// cache is not touched.
func (t *Table[T]) Query(ctx context.Context, query string, params ...any) ([]T, error) {
	rows, err := t.runQuery(ctx, query, params)
	if err != nil {
		return nil, err
	}
	return t.wrapRows(rows), nil
}

func (t *Table[T]) runQuery(ctx context.Context, query string, params []any) ([]RowData, error) {
	t.metrics.queries.Inc()
	rows, err := t.exec.query(ctx, query, params)
	if err != nil {
		t.metrics.queryErrors.Inc()
	}
	return rows, err
}

func (t *Table[T]) wrap(data RowData) T {
	row := t.factory(t.client, data)
	if t.ttl > 0 {
		row.SetCacheExpiration(time.Now().Add(t.ttl))
	}
	return row
}

func (t *Table[T]) wrapRows(rows []RowData) []T {
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		out = append(out, t.wrap(row))
	}
	return out
}

// Fetch returns all rows matching the selector, from cache when it has any
// match and useCache is set, otherwise from the database.
func (t *Table[T]) Fetch(ctx context.Context, selector any, useCache bool) ([]T, error) {
	if useCache {
		if normalized, ok := t.cacheSelector(selector); ok {
			if cached := t.cache.Get(normalized); len(cached) > 0 {
				t.metrics.cacheHits.Inc()
				return cached, nil
			}
		}
		t.metrics.cacheMisses.Inc()
	}
	return t.SQLFetch(ctx, selector, SelectOptions{})
}

// Find returns the first row matching the selector, from cache when
// possible. Absence is not an error.
func (t *Table[T]) Find(ctx context.Context, selector any, useCache bool) (T, bool, error) {
	var zero T
	normalized, matchable := t.cacheSelector(selector)
	if useCache && matchable {
		if cached, ok := t.cache.Find(normalized); ok {
			t.metrics.cacheHits.Inc()
			return cached, true, nil
		}
		t.metrics.cacheMisses.Inc()
	}
	row, found, err := t.SQLFind(ctx, t.plainSelector(selector), false)
	if err != nil {
		return zero, false, err
	}
	return row, found, nil
}

// SQLFetch always queries the database. A nil selector fetches everything
// and wholesale-replaces the cache; any other selector merges the results
// into the cache row by row.
func (t *Table[T]) SQLFetch(ctx context.Context, selector any, opts SelectOptions) ([]T, error) {
	if !t.exists() {
		return nil, nil
	}
	query, params := t.builder.BuildSelect(t.statement(selector), opts)
	rows, err := t.runQuery(ctx, query, params)
	if err != nil {
		return nil, err
	}
	out := t.wrapRows(rows)
	if selector == nil {
		t.cache.SetAll(out)
	} else {
		for _, row := range out {
			t.cache.Push(row)
		}
	}
	return out, nil
}

// SQLFind queries the database for a single row. With forceSingle set, a
// selector matching more than one row yields no result instead of an
// arbitrary one. Returned rows still land in the cache.
func (t *Table[T]) SQLFind(ctx context.Context, selector any, forceSingle bool) (T, bool, error) {
	var zero T
	if !t.exists() {
		return zero, false, nil
	}
	limit := 1
	if forceSingle {
		limit = 2
	}
	query, params := t.builder.BuildSelect(t.statement(selector), SelectOptions{Limit: limit})
	rows, err := t.runQuery(ctx, query, params)
	if err != nil {
		return zero, false, err
	}
	out := t.wrapRows(rows)
	for _, row := range out {
		t.cache.Push(row)
	}
	if len(out) != 1 {
		return zero, false, nil
	}
	return out[0], true, nil
}

// Create inserts a row. When given a typed row with a derivable id, the row
// enters the cache before the insert and is evicted again if the insert
// fails; on success it absorbs the database-assigned values. Raw data may
// address relations by nested object shape.
func (t *Table[T]) Create(ctx context.Context, obj any) (T, error) {
	var zero T
	if !t.exists() {
		return zero, NewError(fmt.Sprintf("%s: unknown table", t.name))
	}

	row, isRow := obj.(T)
	optimistic := isRow && row.ID() != ""
	if optimistic {
		t.cache.Push(row)
	}

	insertData := dataOf(obj)
	if insertData == nil {
		return zero, NewError(fmt.Sprintf("%s: cannot create from %T", t.name, obj))
	}
	query, params, err := t.builder.BuildInsert(insertData)
	if err != nil {
		if optimistic {
			t.cache.Remove(row.ID())
		}
		return zero, err
	}
	rows, err := t.runQuery(ctx, query, params)
	if err != nil {
		if optimistic {
			t.cache.Remove(row.ID())
		}
		return zero, err
	}
	if len(rows) == 0 {
		return zero, NewError(fmt.Sprintf("%s: insert returned no row", t.name))
	}

	created := rows[0]
	result := row
	if isRow {
		row.Update(created)
	} else {
		result = t.wrap(created)
	}
	t.cache.Push(result)
	t.publish(ctx, bus.CreateTopic(t.name), map[string]any(created))
	return result, nil
}

// Update applies the patch to all rows matching the selector. The cache
// updates first; on failure it is restored from the pre-update snapshot
// when one exists, or the now-unknowable entries are evicted. A row passed
// as the selector is patched in place the same way, cached or not.
func (t *Table[T]) Update(ctx context.Context, selector any, data RowData) ([]T, error) {
	if !t.exists() {
		return nil, nil
	}
	plain := t.plainSelector(selector)
	normalized, matchable := t.cacheSelector(plain)

	entity, isEntity := selector.(Row)
	var entitySnapshot RowData
	if isEntity {
		entitySnapshot = entity.SQLData().Clone()
	}

	var snapshot RowData
	if matchable {
		if existing, ok := t.cache.Find(normalized); ok {
			snapshot = existing.SQLData().Clone()
		}
		t.cache.Update(normalized, data)
	}
	if isEntity {
		entity.Update(data)
	}

	query, params, err := t.builder.BuildUpdate(data, t.statement(plain))
	if err == nil {
		var rows []RowData
		rows, err = t.runQuery(ctx, query, params)
		if err == nil {
			out := t.wrapRows(rows)
			for _, row := range out {
				t.cache.Push(row)
			}
			t.publishUpdate(ctx, plain, data)
			return out, nil
		}
	}

	if isEntity {
		entity.Update(entitySnapshot)
	}
	if matchable {
		if snapshot != nil {
			t.cache.Update(normalized, snapshot)
		} else {
			t.cache.FilterOut(normalized)
		}
	}
	return nil, err
}

func (t *Table[T]) publishUpdate(ctx context.Context, selector any, data RowData) {
	payload, ok := selectorPayload(selector)
	if !ok {
		return
	}
	t.publish(ctx, bus.UpdateTopic(t.name), bus.UpdatePayload{
		Selector: payload,
		Data:     map[string]any(data),
	})
}

// Delete removes all rows matching the selector, cache first. A failed
// statement puts the evicted entries back.
func (t *Table[T]) Delete(ctx context.Context, selector any) ([]T, error) {
	if !t.exists() {
		return nil, nil
	}
	plain := t.plainSelector(selector)

	var removed []T
	if normalized, ok := t.cacheSelector(plain); ok {
		removed = t.cache.FilterOut(normalized)
	}

	query, params := t.builder.BuildDelete(t.statement(plain))
	rows, err := t.runQuery(ctx, query, params)
	if err != nil {
		for _, row := range removed {
			t.cache.Push(row)
		}
		return nil, err
	}
	out := t.wrapRows(rows)
	for _, row := range out {
		if id := row.ID(); id != "" {
			t.cache.Remove(id)
		}
	}
	if payload, ok := selectorPayload(plain); ok {
		t.publish(ctx, bus.RemoveTopic(t.name), payload)
	}
	return out, nil
}

// Count returns the number of rows matching the selector.
func (t *Table[T]) Count(ctx context.Context, selector any) (int64, error) {
	if !t.exists() {
		return 0, nil
	}
	query, params := t.builder.BuildCount(t.statement(selector), SelectOptions{})
	rows, err := t.runQuery(ctx, query, params)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	if n, ok := numericValue(rows[0]["count"]); ok {
		return int64(n), nil
	}
	return 0, nil
}

// Call invokes a table-scoped set-returning database function, named
// "<table>_<name>", and wraps its result rows.
func (t *Table[T]) Call(ctx context.Context, name string, args any) ([]T, error) {
	query, params := BuildFunctionSelect(fmt.Sprintf("%s_%s", t.name, name), args)
	rows, err := t.runQuery(ctx, query, params)
	if err != nil {
		return nil, err
	}
	return t.wrapRows(rows), nil
}

// FetchMap fetches matching rows and keys them by the value found walking
// the given keys into each row's data.
func (t *Table[T]) FetchMap(ctx context.Context, selector any, keys []string) (map[string]T, error) {
	rows, err := t.SQLFetch(ctx, selector, SelectOptions{})
	if err != nil {
		return nil, err
	}
	out := make(map[string]T, len(rows))
	for _, row := range rows {
		out[mapKey(row.SQLData(), keys)] = row
	}
	return out, nil
}

// FetchArrayMap is FetchMap grouping rows sharing a key.
func (t *Table[T]) FetchArrayMap(ctx context.Context, selector any, keys []string) (map[string][]T, error) {
	rows, err := t.SQLFetch(ctx, selector, SelectOptions{})
	if err != nil {
		return nil, err
	}
	out := map[string][]T{}
	for _, row := range rows {
		key := mapKey(row.SQLData(), keys)
		out[key] = append(out[key], row)
	}
	return out, nil
}

func mapKey(data RowData, keys []string) string {
	var v any = data
	for _, key := range keys {
		nested, ok := nestedData(v)
		if !ok {
			return ""
		}
		v = nested[key]
	}
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}

// lookupCache implements cacheSource for cross-table foreign-key
// resolution.
func (t *Table[T]) lookupCache(selector any) (RowData, bool) {
	normalized, ok := t.cacheSelector(selector)
	if !ok {
		return nil, false
	}
	row, found := t.cache.Find(normalized)
	if !found {
		return nil, false
	}
	return row.SQLData(), true
}

// statement converts any accepted selector shape into a Statement for the
// query builder. nil yields an unfiltered statement.
func (t *Table[T]) statement(selector any) *Statement {
	switch v := t.plainSelector(selector).(type) {
	case nil:
		return NewStatement()
	case *Statement:
		return v
	default:
		return NewStatement(v)
	}
}

// plainSelector reduces rows and scalar ids to plain column/value maps.
func (t *Table[T]) plainSelector(selector any) any {
	switch v := selector.(type) {
	case Row:
		return v.ToSelector()
	case RowData, map[string]any, *Statement, nil:
		return selector
	case []any:
		return t.selectorFromID(v)
	default:
		return t.selectorFromID([]any{v})
	}
}

// selectorFromID zips scalar id values onto the primary-key columns.
// Missing values become never-matching conditions rather than wildcards.
func (t *Table[T]) selectorFromID(ids []any) RowData {
	out := RowData{}
	for i, key := range t.client.TablePrimaryKeys(t.name) {
		if i < len(ids) {
			out[key] = ids[i]
		} else {
			out[key] = Undefined
		}
	}
	return out
}

// cacheSelector rewrites relation-shaped selector entries onto the local
// foreign-key columns so the cache can match them against stored rows.
// Nested objects resolve through the foreign table's cache when they do not
// carry the referenced key directly; an unresolvable reference becomes a
// never-matching condition. Statements cannot be matched against the cache.
func (t *Table[T]) cacheSelector(selector any) (any, bool) {
	switch v := t.plainSelector(selector).(type) {
	case nil:
		return nil, true
	case string:
		return v, true
	case *Statement:
		return nil, false
	case RowData:
		return t.flattenForeigners(v), true
	case map[string]any:
		return t.flattenForeigners(RowData(v)), true
	default:
		return nil, false
	}
}

func (t *Table[T]) flattenForeigners(selector RowData) RowData {
	foreigners := t.client.TableForeigners(t.name)
	if len(foreigners) == 0 {
		return selector
	}
	out := selector.Clone()
	for localKey, fk := range foreigners {
		val, ok := out[localKey]
		if !ok {
			continue
		}
		delete(out, localKey)
		nested, isNested := nestedData(val)
		if !isNested {
			out[fk.Column] = val
			continue
		}
		if keyVal, ok := nested[fk.ForeignColumn]; ok && len(nested) == 1 {
			out[fk.Column] = keyVal
			continue
		}
		if foreign, ok := t.client.lookupCache(fk.ForeignTable, nested); ok {
			out[fk.Column] = foreign[fk.ForeignColumn]
			continue
		}
		out[fk.Column] = Undefined
	}
	return out
}

// selectorPayload converts a selector into a serializable notification
// payload. Statements and never-matching selectors are not publishable.
func selectorPayload(selector any) (map[string]any, bool) {
	data := dataOf(selector)
	if data == nil {
		return nil, false
	}
	for _, v := range data {
		if _, ok := v.(undefined); ok {
			return nil, false
		}
	}
	return map[string]any(data), true
}
