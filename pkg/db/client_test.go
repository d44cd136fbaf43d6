package db

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"
)

func TestNewClientValidatesConfig(t *testing.T) {
	_, err := NewClient(&Config{}, nil, nil)
	require.Error(t, err)

	c, err := NewClient(DefaultConfig("localhost", "db", "user", "pass"), nil, nil)
	require.NoError(t, err)
	assert.NotNil(t, c.Logger())
	assert.Nil(t, c.Bus())
}

func TestConfigValidate(t *testing.T) {
	valid := DefaultConfig("localhost", "db", "user", "pass")
	require.NoError(t, valid.Validate())

	broken := DefaultConfig("localhost", "db", "user", "pass")
	broken.Port = 0
	assert.Error(t, broken.Validate())

	broken = DefaultConfig("localhost", "db", "user", "pass")
	broken.MaxIdleConns = broken.MaxOpenConns + 1
	assert.Error(t, broken.Validate())

	broken = DefaultConfig("localhost", "db", "user", "pass")
	broken.SSLMode = "sometimes"
	assert.Error(t, broken.Validate())
}

func TestConfigDSN(t *testing.T) {
	config := DefaultConfig("localhost", "db", "user", "pass")
	assert.Equal(t, "host=localhost port=5432 user=user dbname=db password=pass sslmode=disable", config.DSN())

	config.Password = ""
	config.SSLMode = ""
	assert.Equal(t, "host=localhost port=5432 user=user dbname=db sslmode=disable", config.DSN())
}

func TestGetLogLevel(t *testing.T) {
	assert.Equal(t, logger.Info, getLogLevel("info"))
	assert.Equal(t, logger.Silent, getLogLevel("silent"))
	assert.Equal(t, logger.Error, getLogLevel(""))
	assert.Equal(t, logger.Error, getLogLevel("bogus"))
}

func TestLocalKeyFor(t *testing.T) {
	assert.Equal(t, "position", localKeyFor("id_position"))
	assert.Equal(t, "user", localKeyFor("user_id"))
	assert.Equal(t, "channel", localKeyFor("channel"))
}

func TestClientQueryNotConnected(t *testing.T) {
	c := newTestClient()
	_, err := c.Query(context.Background(), "SELECT 1")
	require.Error(t, err)
	assert.True(t, IsError(err))
	assert.Contains(t, err.Error(), "not connected")
}

func TestClientSchemaMetadata(t *testing.T) {
	c := newTestClient()

	assert.Equal(t, []string{"id_position", "name", "sticky", "level"}, c.TableColumns("position"))
	assert.Equal(t, []string{"user_id", "id_position"}, c.TablePrimaryKeys("user_position"))
	assert.Nil(t, c.TableColumns("ghost_table"))

	foreigners := c.TableForeigners("user_position")
	require.Contains(t, foreigners, "position")
	assert.Equal(t, "id_position", foreigners["position"].Column)
}

func TestClientOnConnected(t *testing.T) {
	c := newTestClient()

	fired := 0
	c.OnConnected(func() { fired++ })
	assert.Equal(t, 0, fired)

	c.mu.Lock()
	c.connected = true
	hooks := c.hooks
	c.hooks = nil
	c.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
	assert.Equal(t, 1, fired)

	// registered after connecting, runs immediately
	c.OnConnected(func() { fired++ })
	assert.Equal(t, 2, fired)
}

func TestConnectRefreshesSchema(t *testing.T) {
	c := newTestClient()
	calls := 0
	c.introspect = func(ctx context.Context) (*Schema, error) {
		calls++
		schema := NewSchema()
		schema.table("position").Columns = []string{"id_position", "name"}
		return schema, nil
	}
	// a connected client skips the pool setup and goes straight to
	// re-introspection
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()

	require.NoError(t, c.Connect(context.Background()))
	require.NoError(t, c.Connect(context.Background()))

	assert.Equal(t, 2, calls)
	assert.Equal(t, []string{"id_position", "name"}, c.TableColumns("position"))

	// a failed refresh keeps the previous schema
	c.introspect = func(ctx context.Context) (*Schema, error) {
		return nil, NewError("introspection failed")
	}
	require.Error(t, c.Connect(context.Background()))
	assert.Equal(t, []string{"id_position", "name"}, c.TableColumns("position"))
}

func TestClientLookupCache(t *testing.T) {
	c := newTestClient()

	_, ok := c.lookupCache("position", "5")
	assert.False(t, ok)

	positions := NewTable(c, "position", rowFactory("position"))
	positions.Cache().Push(positionRow(c, 5, "prime"))

	data, ok := c.lookupCache("position", "5")
	require.True(t, ok)
	assert.Equal(t, "prime", data["name"])
}

func TestWrapError(t *testing.T) {
	assert.Nil(t, wrapError(nil))

	typed := NewError("boom")
	assert.Same(t, typed, wrapError(typed))

	wrapped := wrapError(errors.New("driver: broken pipe"))
	assert.True(t, IsError(wrapped))
	assert.Equal(t, "driver: broken pipe", wrapped.Error())
	assert.False(t, IsError(errors.New("plain")))
}

func TestNormalizeValue(t *testing.T) {
	assert.Equal(t, "text", normalizeValue([]byte("text")))
	assert.Equal(t, int64(5), normalizeValue(int64(5)))
	assert.Nil(t, normalizeValue(nil))
}

func TestClientGenerateID(t *testing.T) {
	c := newTestClient()
	a, b := c.GenerateID(), c.GenerateID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}
