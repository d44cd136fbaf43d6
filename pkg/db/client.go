package db

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/scrimsnet/scrimsbot/pkg/bus"
)

// cacheSource is the view the client keeps of each registered table: enough
// to resolve foreign references through that table's cache without knowing
// its row type.
type cacheSource interface {
	lookupCache(selector any) (RowData, bool)
}

// Client owns the database connection, the introspected schema and the
// notification bus. Tables register themselves against it; the client routes
// cross-table cache lookups between them.
//
// The connection is managed by gorm for pooling and SQL logging, but every
// statement this package issues is raw parameterized SQL against the
// underlying *sql.DB.
type Client struct {
	config *Config
	log    *zap.Logger
	bus    bus.Bus

	mu        sync.Mutex
	db        *gorm.DB
	sqlDB     *sql.DB
	schema    *Schema
	tables    map[string]cacheSource
	connected bool
	hooks     []func()
	cancel    context.CancelFunc

	// introspect replaces the information_schema introspection; tests
	// substitute their own.
	introspect func(ctx context.Context) (*Schema, error)
}

// NewClient creates a client from the given configuration. The bus may be
// nil, in which case writes are local-only and no notifications flow.
func NewClient(config *Config, notifier bus.Bus, log *zap.Logger) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		config: config,
		log:    log,
		bus:    notifier,
		tables: map[string]cacheSource{},
	}, nil
}

// Connect opens the connection pool and starts the bus listener on the
// first call, then refreshes the schema metadata. Re-calling Connect on a
// connected client re-introspects, so schema drift is picked up on
// reconnects; the physical connections are established once and the
// connected hooks fire exactly once.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	connected := c.connected
	preloaded := c.schema != nil
	c.mu.Unlock()

	if !connected {
		gormConfig := &gorm.Config{
			Logger:                                   logger.Default.LogMode(getLogLevel(c.config.LogLevel)),
			DisableForeignKeyConstraintWhenMigrating: true,
		}
		db, err := gorm.Open(postgres.Open(c.config.DSN()), gormConfig)
		if err != nil {
			return wrapError(err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return wrapError(err)
		}
		sqlDB.SetMaxOpenConns(c.config.MaxOpenConns)
		sqlDB.SetMaxIdleConns(c.config.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(c.config.ConnMaxLifetime)
		sqlDB.SetConnMaxIdleTime(c.config.ConnMaxIdleTime)
		if err := sqlDB.PingContext(ctx); err != nil {
			sqlDB.Close()
			return wrapError(err)
		}
		c.mu.Lock()
		c.db = db
		c.sqlDB = sqlDB
		c.mu.Unlock()
	}

	// a preloaded schema only covers the first call; reconnects always
	// re-read the metadata
	if connected || !preloaded {
		schema, err := c.loadRemoteSchema(ctx)
		if err != nil {
			if !connected {
				c.mu.Lock()
				sqlDB := c.sqlDB
				c.sqlDB = nil
				c.db = nil
				c.mu.Unlock()
				sqlDB.Close()
			}
			return err
		}
		c.mu.Lock()
		c.schema = schema
		c.mu.Unlock()
	}

	if connected {
		return nil
	}

	if c.bus != nil {
		listenCtx, cancel := context.WithCancel(context.Background())
		c.mu.Lock()
		c.cancel = cancel
		c.mu.Unlock()
		go func() {
			if err := c.bus.Listen(listenCtx); err != nil && listenCtx.Err() == nil {
				c.log.Error("database: bus listener stopped", zap.Error(err))
			}
		}()
	}

	c.mu.Lock()
	c.connected = true
	hooks := c.hooks
	c.hooks = nil
	c.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
	c.log.Info("database: connected",
		zap.String("host", c.config.Host),
		zap.String("database", c.config.Database))
	return nil
}

func (c *Client) loadRemoteSchema(ctx context.Context) (*Schema, error) {
	if c.introspect != nil {
		return c.introspect(ctx)
	}
	return c.introspectSchema(ctx)
}

func getLogLevel(level string) logger.LogLevel {
	switch level {
	case "info":
		return logger.Info
	case "warn":
		return logger.Warn
	case "error":
		return logger.Error
	case "silent":
		return logger.Silent
	default:
		return logger.Error
	}
}

// OnConnected registers a hook fired once after the first successful
// Connect. Hooks registered after that point run immediately.
func (c *Client) OnConnected(fn func()) {
	c.mu.Lock()
	if !c.connected {
		c.hooks = append(c.hooks, fn)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	fn()
}

// LoadSchema injects a pre-built schema, skipping introspection on the
// first Connect; reconnects still re-read the live metadata. Tables work
// against the loaded metadata immediately.
func (c *Client) LoadSchema(schema *Schema) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.schema = schema
}

// Bus returns the notification bus, or nil when none was configured.
func (c *Client) Bus() bus.Bus { return c.bus }

// Logger returns the client's logger.
func (c *Client) Logger() *zap.Logger { return c.log }

// GenerateID returns a fresh random identifier for rows whose primary key
// the application assigns.
func (c *Client) GenerateID() string { return uuid.NewString() }

func (c *Client) tableSchema(table string) *TableSchema {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.schema == nil {
		return nil
	}
	return c.schema.Tables[table]
}

// TableColumns returns the declared columns of a table, in ordinal order.
func (c *Client) TableColumns(table string) []string {
	if t := c.tableSchema(table); t != nil {
		return t.Columns
	}
	return nil
}

// TablePrimaryKeys returns the primary-key columns of a table.
func (c *Client) TablePrimaryKeys(table string) []string {
	if t := c.tableSchema(table); t != nil {
		return t.PrimaryKeys
	}
	return nil
}

// TableForeigners returns the foreign keys of a table keyed by local name.
func (c *Client) TableForeigners(table string) map[string]ForeignKey {
	if t := c.tableSchema(table); t != nil {
		return t.Foreigners
	}
	return nil
}

func (c *Client) register(table string, source cacheSource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tables[table] = source
}

// lookupCache resolves a selector against the cache of another registered
// table. Used for foreign-key resolution and cached back-references.
func (c *Client) lookupCache(table string, selector any) (RowData, bool) {
	c.mu.Lock()
	source := c.tables[table]
	c.mu.Unlock()
	if source == nil {
		return nil, false
	}
	return source.lookupCache(selector)
}

// Query runs one statement built from the given fragments: strings join
// into the SQL text, []any fragments append parameters, anything else is a
// single parameter. Rows come back as generic column/value maps with byte
// slices normalized to strings.
func (c *Client) Query(ctx context.Context, fragments ...any) ([]RowData, error) {
	var parts []string
	var params []any
	for _, fragment := range fragments {
		switch v := fragment.(type) {
		case string:
			parts = append(parts, v)
		case []any:
			params = append(params, v...)
		default:
			params = append(params, v)
		}
	}
	return c.query(ctx, strings.Join(parts, " "), params)
}

func (c *Client) query(ctx context.Context, query string, params []any) ([]RowData, error) {
	c.mu.Lock()
	sqlDB := c.sqlDB
	c.mu.Unlock()
	if sqlDB == nil {
		return nil, NewError("database: not connected")
	}
	if c.config.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.QueryTimeout)
		defer cancel()
	}

	start := time.Now()
	rows, err := sqlDB.QueryContext(ctx, query, params...)
	if err != nil {
		c.log.Debug("database: query failed",
			zap.String("query", query), zap.Error(err))
		return nil, wrapError(err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, wrapError(err)
	}
	var out []RowData
	for rows.Next() {
		values := make([]any, len(columns))
		scan := make([]any, len(columns))
		for i := range values {
			scan[i] = &values[i]
		}
		if err := rows.Scan(scan...); err != nil {
			return nil, wrapError(err)
		}
		row := make(RowData, len(columns))
		for i, column := range columns {
			row[column] = normalizeValue(values[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapError(err)
	}
	c.log.Debug("database: query",
		zap.String("query", query),
		zap.Int("rows", len(out)),
		zap.Duration("took", time.Since(start)))
	return out, nil
}

// normalizeValue maps driver representations onto the value domain the rest
// of the package compares with: text columns arrive as []byte from the
// generic scan and become strings.
func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// Call invokes a database function. Arguments may be nil, a column/value
// map (named arguments) or a []any (positional arguments).
func (c *Client) Call(ctx context.Context, name string, args any) ([]RowData, error) {
	query, params := BuildFunctionCall(name, args)
	return c.query(ctx, query, params)
}

// Destroy stops the bus listener, closes the bus and releases the pool.
func (c *Client) Destroy() error {
	c.mu.Lock()
	cancel := c.cancel
	sqlDB := c.sqlDB
	c.cancel = nil
	c.sqlDB = nil
	c.db = nil
	c.connected = false
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	var firstErr error
	if c.bus != nil {
		if err := c.bus.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if sqlDB != nil {
		if err := sqlDB.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
