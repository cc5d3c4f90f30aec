package storage

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AneeshNi47/walletfit-ui/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

func testSession() *models.Session {
	return &models.Session{
		AccessToken:  "A",
		RefreshToken: "R",
		User:         models.User{Username: "a@b.com"},
	}
}

// StoreTestSuite runs the CredentialStore contract against one backend.
type StoreTestSuite struct {
	suite.Suite
	newStore func(t *testing.T) CredentialStore
	store    CredentialStore
}

// SetupTest runs before each test
func (suite *StoreTestSuite) SetupTest() {
	suite.store = suite.newStore(suite.T())
}

func (suite *StoreTestSuite) TestLoadEmpty() {
	_, err := suite.store.Load(context.Background())
	assert.ErrorIs(suite.T(), err, ErrNotFound)
}

func (suite *StoreTestSuite) TestSaveAndLoad() {
	ctx := context.Background()
	require.NoError(suite.T(), suite.store.Save(ctx, testSession()))

	got, err := suite.store.Load(ctx)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), testSession(), got)
}

func (suite *StoreTestSuite) TestSaveReplaces() {
	ctx := context.Background()
	require.NoError(suite.T(), suite.store.Save(ctx, testSession()))

	updated := testSession()
	updated.AccessToken = "A2"
	require.NoError(suite.T(), suite.store.Save(ctx, updated))

	got, err := suite.store.Load(ctx)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "A2", got.AccessToken)
	assert.Equal(suite.T(), "R", got.RefreshToken, "refresh token should be kept")
}

func (suite *StoreTestSuite) TestClear() {
	ctx := context.Background()
	require.NoError(suite.T(), suite.store.Save(ctx, testSession()))
	require.NoError(suite.T(), suite.store.Clear(ctx))

	_, err := suite.store.Load(ctx)
	assert.ErrorIs(suite.T(), err, ErrNotFound)

	// Clearing twice is fine.
	assert.NoError(suite.T(), suite.store.Clear(ctx))
}

func (suite *StoreTestSuite) TestSaveNil() {
	assert.Error(suite.T(), suite.store.Save(context.Background(), nil))
}

func TestSQLiteStoreSuite(t *testing.T) {
	suite.Run(t, &StoreTestSuite{newStore: func(t *testing.T) CredentialStore {
		db, err := NewDB(":memory:", "")
		require.NoError(t, err, "failed to create test database")
		t.Cleanup(func() { db.Close() })
		return db
	}})
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, &StoreTestSuite{newStore: func(t *testing.T) CredentialStore {
		return NewMemoryStore()
	}})
}

func TestRedisStoreSuite(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set, skipping redis store tests")
	}
	suite.Run(t, &StoreTestSuite{newStore: func(t *testing.T) CredentialStore {
		store, err := NewRedisStore(context.Background(), RedisOptions{Addr: addr, Key: "test-" + t.Name()})
		require.NoError(t, err)
		t.Cleanup(func() {
			_ = store.Clear(context.Background())
			store.Close()
		})
		return store
	}})
}

func TestSQLiteStoredJSON(t *testing.T) {
	db, err := NewDB(":memory:", "auth")
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Save(context.Background(), testSession()))

	var raw string
	require.NoError(t, db.conn.QueryRow("SELECT value FROM credentials WHERE key = 'auth'").Scan(&raw))
	assert.JSONEq(t, `{"accessToken":"A","refreshToken":"R","user":{"username":"a@b.com"}}`, raw)

	updated, err := db.UpdatedAt(context.Background())
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), updated, 5*time.Second)
}

func TestSQLiteKeysAreSeparate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "walletfit.db")
	first, err := NewDB(path, "first")
	require.NoError(t, err)
	defer first.Close()
	second, err := NewDB(path, "second")
	require.NoError(t, err)
	defer second.Close()

	require.NoError(t, first.Save(context.Background(), testSession()))

	_, err = second.Load(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteCorruptRecord(t *testing.T) {
	db, err := NewDB(":memory:", "")
	require.NoError(t, err)
	defer db.Close()

	_, err = db.conn.Exec("INSERT INTO credentials (key, value) VALUES ('auth', 'not json')")
	require.NoError(t, err)

	_, err = db.Load(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestWatchReportsWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "walletfit.db")
	db, err := NewDB(path, "")
	require.NoError(t, err)
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	_, err = Watch(ctx, path, 20*time.Millisecond, nil, func() { calls.Add(1) })
	require.NoError(t, err)

	require.NoError(t, db.Save(context.Background(), testSession()))

	assert.Eventually(t, func() bool { return calls.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestWatchStopsAfterCancel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "walletfit.db")
	db, err := NewDB(path, "")
	require.NoError(t, err)
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	done, err := Watch(ctx, path, 200*time.Millisecond, nil, func() { calls.Add(1) })
	require.NoError(t, err)

	// A write is pending in the debounce window when the watch is cancelled.
	require.NoError(t, db.Save(context.Background(), testSession()))
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load(), "no change may be reported after cancel")
}
