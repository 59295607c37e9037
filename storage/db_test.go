package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemDBRoundTrip(t *testing.T) {
	db := NewMemDB()
	require.NoError(t, db.Put([]byte("a"), []byte("1")))

	got, err := db.Get([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), got)

	_, err = db.Get([]byte("missing"))
	require.ErrorIs(t, err, ErrKeyNotFound)

	require.NoError(t, db.Delete([]byte("a")))
	_, err = db.Get([]byte("a"))
	require.ErrorIs(t, err, ErrKeyNotFound)
}

func TestMemDBGetReturnsCopy(t *testing.T) {
	db := NewMemDB()
	require.NoError(t, db.Put([]byte("k"), []byte("abc")))
	got, err := db.Get([]byte("k"))
	require.NoError(t, err)
	got[0] = 'z'
	again, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("abc"), again)
}

func TestMemDBIteratePrefixOrdered(t *testing.T) {
	db := NewMemDB()
	require.NoError(t, db.Put([]byte("escrow/2"), []byte("b")))
	require.NoError(t, db.Put([]byte("escrow/1"), []byte("a")))
	require.NoError(t, db.Put([]byte("account/x"), []byte("c")))

	var keys []string
	require.NoError(t, db.Iterate([]byte("escrow/"), func(key, value []byte) bool {
		keys = append(keys, string(key))
		return true
	}))
	require.Equal(t, []string{"escrow/1", "escrow/2"}, keys)
}

func TestMemDBIterateEarlyStop(t *testing.T) {
	db := NewMemDB()
	require.NoError(t, db.Put([]byte("p/1"), []byte("a")))
	require.NoError(t, db.Put([]byte("p/2"), []byte("b")))
	var visited int
	require.NoError(t, db.Iterate([]byte("p/"), func(key, value []byte) bool {
		visited++
		return false
	}))
	require.Equal(t, 1, visited)
}
