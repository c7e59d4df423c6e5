package storage

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]Database {
	t.Helper()
	dir := t.TempDir()

	level, err := NewLevelDB(filepath.Join(dir, "level"))
	require.NoError(t, err)
	t.Cleanup(level.Close)

	bolt, err := NewBoltDB(filepath.Join(dir, "state.bolt"))
	require.NoError(t, err)
	t.Cleanup(bolt.Close)

	return map[string]Database{
		"mem":     NewMemDB(),
		"leveldb": level,
		"bolt":    bolt,
	}
}

func TestDatabaseGetPutDelete(t *testing.T) {
	for name, db := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := db.Get([]byte("missing"))
			require.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, db.Put([]byte("k"), []byte("v1")))
			require.NoError(t, db.Put([]byte("k"), []byte("v2")))
			value, err := db.Get([]byte("k"))
			require.NoError(t, err)
			require.Equal(t, []byte("v2"), value)

			require.NoError(t, db.Delete([]byte("k")))
			require.NoError(t, db.Delete([]byte("k")))
			_, err = db.Get([]byte("k"))
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestDatabaseIteratePrefix(t *testing.T) {
	for name, db := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for _, key := range []string{"reserve/b", "reserve/a", "reservex", "balance/a", "reserve/c"} {
				require.NoError(t, db.Put([]byte(key), []byte("v-"+key)))
			}

			var seen []string
			err := db.Iterate([]byte("reserve/"), func(key, value []byte) error {
				require.Equal(t, "v-"+string(key), string(value))
				seen = append(seen, string(key))
				return nil
			})
			require.NoError(t, err)
			require.Equal(t, []string{"reserve/a", "reserve/b", "reserve/c"}, seen)

			// Deleting from inside the walk is allowed.
			require.NoError(t, db.Iterate([]byte("reserve/"), func(key, _ []byte) error {
				return db.Delete(key)
			}))
			count := 0
			require.NoError(t, db.Iterate(nil, func(_, _ []byte) error {
				count++
				return nil
			}))
			require.Equal(t, 2, count)

			stop := errors.New("stop")
			require.ErrorIs(t, db.Iterate(nil, func(_, _ []byte) error { return stop }), stop)
		})
	}
}

func TestMemDBCopiesValues(t *testing.T) {
	db := NewMemDB()
	value := []byte("abc")
	require.NoError(t, db.Put([]byte("k"), value))
	value[0] = 'x'
	got, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("abc"), got)
}
