package numstore

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/intellect4all/numstore/internal/testutil"
	"github.com/intellect4all/numstore/pkgerr"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	dir := testutil.TempDir(t)
	db, err := Open(DefaultConfig(dir))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNewVariableInsertReadRoundTrips(t *testing.T) {
	db := openTestDB(t)

	tid, err := db.BeginTxn()
	require.NoError(t, err)
	require.NoError(t, db.NewVariable(tid, "temperatures", []byte("f64")))
	require.NoError(t, db.Commit(tid))

	data := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	tid2, err := db.BeginTxn()
	require.NoError(t, err)
	require.NoError(t, db.Insert(tid2, "temperatures", data, 0, 1, len(data)))
	require.NoError(t, db.Commit(tid2))

	size, err := db.Fsize("temperatures")
	require.NoError(t, err)
	require.Equal(t, uint64(len(data)), size)

	dest := make([]byte, len(data))
	n, err := db.Read("temperatures", dest, 1, Range{Start: 0, End: uint64(len(data)), Stride: 1})
	require.NoError(t, err)
	require.Equal(t, len(data), n)
	require.Equal(t, data, dest)
}

func TestWriteThenReadStrided(t *testing.T) {
	db := openTestDB(t)

	tid, err := db.BeginTxn()
	require.NoError(t, err)
	require.NoError(t, db.NewVariable(tid, "v", nil))
	require.NoError(t, db.Insert(tid, "v", make([]byte, 16), 0, 1, 16))
	require.NoError(t, db.Commit(tid))

	tid2, err := db.BeginTxn()
	require.NoError(t, err)
	require.NoError(t, db.Write(tid2, "v", []byte{9, 9, 9, 9}, 2, Range{Start: 0, End: 2, Stride: 1}))
	require.NoError(t, db.Commit(tid2))

	dest := make([]byte, 4)
	n, err := db.Read("v", dest, 2, Range{Start: 0, End: 2, Stride: 1})
	require.NoError(t, err)
	require.Equal(t, 4, n)
	require.Equal(t, []byte{9, 9, 9, 9}, dest)
}

func TestRemoveDecreasesFsize(t *testing.T) {
	db := openTestDB(t)

	tid, err := db.BeginTxn()
	require.NoError(t, err)
	require.NoError(t, db.NewVariable(tid, "v", nil))
	require.NoError(t, db.Insert(tid, "v", []byte("abcdefgh"), 0, 1, 8))
	require.NoError(t, db.Commit(tid))

	tid2, err := db.BeginTxn()
	require.NoError(t, err)
	dest := make([]byte, 2)
	n, err := db.Remove(tid2, "v", dest, 1, Range{Start: 2, End: 4, Stride: 1})
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, []byte("cd"), dest)
	require.NoError(t, db.Commit(tid2))

	size, err := db.Fsize("v")
	require.NoError(t, err)
	require.Equal(t, uint64(6), size)
}

func TestDeleteVariableThenGetFails(t *testing.T) {
	db := openTestDB(t)

	tid, err := db.BeginTxn()
	require.NoError(t, err)
	require.NoError(t, db.NewVariable(tid, "gone", []byte("u8")))
	require.NoError(t, db.Insert(tid, "gone", []byte("xyz"), 0, 1, 3))
	require.NoError(t, db.Commit(tid))

	tid2, err := db.BeginTxn()
	require.NoError(t, err)
	require.NoError(t, db.DeleteVariable(tid2, "gone"))
	require.NoError(t, db.Commit(tid2))

	_, err = db.Fsize("gone")
	require.Error(t, err)
	kind, ok := pkgerr.CauseKind(err)
	require.True(t, ok)
	require.Equal(t, pkgerr.VariableNotExist, kind)
}

func TestRollbackUndoesInsert(t *testing.T) {
	db := openTestDB(t)

	tid, err := db.BeginTxn()
	require.NoError(t, err)
	require.NoError(t, db.NewVariable(tid, "v", nil))
	require.NoError(t, db.Commit(tid))

	tid2, err := db.BeginTxn()
	require.NoError(t, err)
	require.NoError(t, db.Insert(tid2, "v", []byte("abcd"), 0, 1, 4))
	require.NoError(t, db.Rollback(tid2))

	size, err := db.Fsize("v")
	require.NoError(t, err)
	require.Equal(t, uint64(0), size)
}

func TestReopenRunsRecoveryAfterCrash(t *testing.T) {
	dir := testutil.TempDir(t)

	db, err := Open(DefaultConfig(dir))
	require.NoError(t, err)

	tid, err := db.BeginTxn()
	require.NoError(t, err)
	require.NoError(t, db.NewVariable(tid, "v", nil))
	require.NoError(t, db.Insert(tid, "v", []byte("abcd"), 0, 1, 4))
	require.NoError(t, db.Commit(tid))

	// Simulate a crash: close without an explicit checkpoint or graceful
	// shutdown sequence beyond what Commit already synced.
	require.NoError(t, db.Close())

	db2, err := Open(DefaultConfig(dir))
	require.NoError(t, err)
	t.Cleanup(func() { db2.Close() })

	size, err := db2.Fsize("v")
	require.NoError(t, err)
	require.Equal(t, uint64(4), size)
}
