package lockmgr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvanderweele/vzfs/internal/vzstore"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	store, err := vzstore.Open("test", "file:"+t.TempDir()+"/test.vzfs.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return New(store)
}

func TestLockPathAcquiresOnFirstCall(t *testing.T) {
	m := newTestManager(t)
	prefix, err := m.LockPath("/", "/a/b", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "/a/b", prefix)
}

func TestLockPathRejectsDoubleAcquireWhileUnexpired(t *testing.T) {
	m := newTestManager(t)
	_, err := m.LockPath("/", "/a/b", time.Minute)
	require.NoError(t, err)
	_, err = m.LockPath("/", "/a/b", time.Minute)
	require.Error(t, err)
}

func TestLockPathRetriesOnceWhenExistingLockExpired(t *testing.T) {
	m := newTestManager(t)
	fakeNow := time.Now()
	m.Now = func() time.Time { return fakeNow }

	_, err := m.LockPath("/", "/a/b", time.Millisecond)
	require.NoError(t, err)

	fakeNow = fakeNow.Add(time.Second)
	prefix, err := m.LockPath("/", "/a/b", time.Minute)
	require.NoError(t, err, "an expired lock should be pruned and the acquire retried once")
	assert.Equal(t, "/a/b", prefix)
}

func TestRemoveLockIsBestEffort(t *testing.T) {
	m := newTestManager(t)
	m.RemoveLock("/never/locked")
	_, err := m.LockPath("/", "/never/locked", time.Minute)
	require.NoError(t, err)
}

func TestRejectIfConflictingPrefixesCatchesAncestorLock(t *testing.T) {
	m := newTestManager(t)
	_, err := m.LockPath("/", "/a", time.Minute)
	require.NoError(t, err)

	err = m.RejectIfConflictingPrefixes("/", []string{"/a/b/c"}, true)
	assert.Error(t, err)
}

func TestRejectIfConflictingPrefixesIgnoresJustAcquired(t *testing.T) {
	m := newTestManager(t)
	one, err := m.LockPath("/", "/a", time.Minute)
	require.NoError(t, err)
	two, err := m.LockPath("/", "/a/b/c", time.Minute)
	require.NoError(t, err)

	err = m.RejectIfConflictingPrefixes("/", []string{one, two}, true)
	assert.NoError(t, err)
}

func TestRejectIfConflictingPrefixesUnrelatedLocksPass(t *testing.T) {
	m := newTestManager(t)
	_, err := m.LockPath("/", "/x", time.Minute)
	require.NoError(t, err)

	err = m.RejectIfConflictingPrefixes("/", []string{"/y"}, true)
	assert.NoError(t, err)
}

func TestPruneExpiredLocksDeletesOnlyExpired(t *testing.T) {
	m := newTestManager(t)
	fakeNow := time.Now()
	m.Now = func() time.Time { return fakeNow }

	_, err := m.LockPath("/", "/expired", time.Millisecond)
	require.NoError(t, err)
	_, err = m.LockPath("/", "/fresh", time.Hour)
	require.NoError(t, err)

	fakeNow = fakeNow.Add(time.Second)
	result, err := m.PruneExpiredLocks()
	require.NoError(t, err)
	assert.Equal(t, 1, result.Examined)
	assert.Equal(t, 1, result.Pruned)
	assert.Equal(t, 0, result.Skipped)

	_, err = m.LockPath("/", "/expired", time.Minute)
	assert.NoError(t, err, "pruned lock should be acquirable again")

	err = m.RejectIfConflictingPrefixes("/", nil, true)
	require.NoError(t, err)
}

func TestGreatestCommonPrefix(t *testing.T) {
	cases := []struct{ a, b, want string }{
		{"/a/b/c", "/a/b/d", "/a/b/"},
		{"/a/bee", "/a/bear", "/a/"},
		{"/a/b", "/a/b", "/a/"},
		{"/a", "/b", "/"},
		{"/", "/", "/"},
	}
	for _, tc := range cases {
		got := GreatestCommonPrefix(tc.a, tc.b)
		assert.Equalf(t, tc.want, got, "GreatestCommonPrefix(%q, %q)", tc.a, tc.b)
	}
}
