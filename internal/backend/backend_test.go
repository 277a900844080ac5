package backend

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"

	"github.com/Additional-Code/tableside/internal/config"
	"github.com/Additional-Code/tableside/internal/settings"
	"github.com/Additional-Code/tableside/internal/store"
)

func testConfig() config.Config {
	return config.Config{
		Store: config.Store{SeedCatalog: true},
	}
}

func TestSelect(t *testing.T) {
	env := config.Remote{Driver: "redis", APIKey: "env-key", Endpoint: "env:6379"}
	saved := config.Remote{Driver: "redis", APIKey: "saved-key", Endpoint: "saved:6379"}
	placeholder := config.Remote{Driver: "redis", APIKey: "COLAR_SUA_CHAVE", Endpoint: "x:6379"}

	got, source := Select(env, saved, true)
	assert.Equal(t, SourceEnv, source)
	assert.Equal(t, "env-key", got.APIKey)

	got, source = Select(placeholder, saved, true)
	assert.Equal(t, SourceSettings, source)
	assert.Equal(t, "saved-key", got.APIKey)

	_, source = Select(config.Remote{}, saved, false)
	assert.Equal(t, SourceLocal, source)

	_, source = Select(config.Remote{}, placeholder, true)
	assert.Equal(t, SourceLocal, source)
}

func TestNewFallsBackToSeededLocalStore(t *testing.T) {
	lc := fxtest.NewLifecycle(t)
	res, err := New(lc, testConfig(), nil)
	require.NoError(t, err)
	lc.RequireStart()
	defer lc.RequireStop()

	assert.Equal(t, Info{Driver: "local", Source: SourceLocal}, res.Info)
	assert.False(t, res.Backend.IsRemote())
	assert.Same(t, res.Local, res.Backend)

	docs, err := res.Backend.List(context.Background(), store.Products)
	require.NoError(t, err)
	assert.Len(t, docs, 4)
}

func TestNewOpensRedisFromEnv(t *testing.T) {
	mr := miniredis.RunT(t)
	mr.RequireAuth("s3cret")

	cfg := testConfig()
	cfg.Remote = config.Remote{Driver: "redis", APIKey: "s3cret", ProjectID: "bar", Endpoint: mr.Addr()}

	lc := fxtest.NewLifecycle(t)
	res, err := New(lc, cfg, nil)
	require.NoError(t, err)
	lc.RequireStart()
	defer lc.RequireStop()

	assert.Equal(t, SourceEnv, res.Info.Source)
	assert.True(t, res.Info.Remote)
	assert.Equal(t, "redis", res.Backend.Name())

	require.NoError(t, res.Backend.Put(context.Background(), store.Orders, "o1", []byte(`{"tableId":1}`)))
	assert.True(t, mr.Exists("bar:orders"))
}

func TestNewUsesSavedSettingsAndMigratesSQL(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.Database = config.Database{MaxOpenConns: 1}

	lc := fxtest.NewLifecycle(t)
	res, err := New(lc, cfg, nil)
	require.NoError(t, err)
	_, err = settings.New(res.Local, nil).Save(ctx, config.Remote{
		Driver:    "sqlite",
		APIKey:    "unused-for-sqlite",
		ProjectID: "bar",
		Endpoint:  "file:" + t.Name() + "?mode=memory&cache=shared",
	})
	require.NoError(t, err)

	// Settings only live in memory here, so select against the same local
	// store rather than reopening.
	saved, ok, err := settings.New(res.Local, nil).Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	remote, source := Select(cfg.Remote, saved, ok)
	require.Equal(t, SourceSettings, source)

	lc2 := fxtest.NewLifecycle(t)
	active, err := openSQL(lc2, cfg, remote, zap.NewNop())
	require.NoError(t, err)
	lc2.RequireStart()
	defer lc2.RequireStop()

	assert.Equal(t, "sqlite", active.Name())
	require.NoError(t, active.Put(ctx, store.Tables, "3", []byte(`{"tableId":3,"status":"OPEN"}`)))
	doc, err := active.Get(ctx, store.Tables, "3")
	require.NoError(t, err)
	assert.JSONEq(t, `{"tableId":3,"status":"OPEN"}`, string(doc.Data))
}

func TestNewRejectsUnreachableRemote(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := testConfig()
	cfg.Remote = config.Remote{Driver: "redis", APIKey: "k3y", ProjectID: "bar", Endpoint: addr}

	lc := fxtest.NewLifecycle(t)
	_, err := New(lc, cfg, nil)
	require.NoError(t, err)
	assert.Error(t, lc.Start(context.Background()))
}
