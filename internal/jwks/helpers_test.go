package jwks

import (
	"context"
	"crypto/rsa"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sing3demons/jwks-server/internal/database"
	"github.com/stretchr/testify/require"
)

var (
	testKeysOnce sync.Once
	testKeys     []*rsa.PrivateKey
)

// testKey returns one of a few keys generated once per test binary.
func testKey(t *testing.T, i int) *rsa.PrivateKey {
	t.Helper()
	testKeysOnce.Do(func() {
		for range 3 {
			k, err := GenerateKeyPair(DefaultKeyBits)
			if err != nil {
				panic(err)
			}
			testKeys = append(testKeys, k)
		}
	})
	return testKeys[i%len(testKeys)]
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{t: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newSQLiteRepo(t *testing.T, now func() time.Time) *KeyRepository {
	t.Helper()
	db, err := database.NewSQLiteDatabase(filepath.Join(t.TempDir(), "keys.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo, err := NewKeyRepository(db, WithClock(now))
	require.NoError(t, err)
	return repo
}

func insertKey(t *testing.T, repo IKeyRepository, key *rsa.PrivateKey, exp int64) int64 {
	t.Helper()
	kid, err := repo.Insert(context.Background(), EncodePrivateKey(key), exp)
	require.NoError(t, err)
	return kid
}

// stubRepository fails every call with err.
type stubRepository struct {
	err error
}

func (s stubRepository) Insert(context.Context, []byte, int64) (int64, error) { return 0, s.err }
func (s stubRepository) FetchOne(context.Context, bool) (*KeyRecord, error)   { return nil, s.err }
func (s stubRepository) FetchAllValid(context.Context) ([]KeyRecord, error)   { return nil, s.err }
func (s stubRepository) FetchAll(context.Context) ([]KeyRecord, error)        { return nil, s.err }
func (s stubRepository) CountByValidity(context.Context) (ValidityCounts, error) {
	return ValidityCounts{}, s.err
}
