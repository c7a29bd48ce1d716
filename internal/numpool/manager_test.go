package numpool

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, keepUsedLocked bool, numbers ...string) *Manager {
	t.Helper()
	store := Load(filepath.Join(t.TempDir(), "numbers.json"))
	m := NewManager(store, Config{TTL: 15 * time.Minute, KeepUsedLocked: keepUsedLocked})
	if len(numbers) > 0 {
		_, _, err := m.AddNumbers("default", numbers)
		require.NoError(t, err)
	}
	return m
}

func TestAssignExhausted(t *testing.T) {
	m := newTestManager(t, true)
	_, err := m.Assign(100)
	assert.ErrorIs(t, err, ErrExhausted)
}

func TestAssignIsIdempotentUntilOTP(t *testing.T) {
	m := newTestManager(t, true, "15551230001", "15551230002")

	first, err := m.Assign(100)
	require.NoError(t, err)
	assert.Equal(t, "15551230001", first.Value)

	again, err := m.Assign(100)
	require.NoError(t, err)
	assert.Equal(t, first.Value, again.Value)

	other, err := m.Assign(200)
	require.NoError(t, err)
	assert.Equal(t, "15551230002", other.Value)
}

func TestAssignAfterDeliveryGivesFreshNumber(t *testing.T) {
	m := newTestManager(t, false, "15551230001", "15551230002")

	first, err := m.Assign(100)
	require.NoError(t, err)

	_, err = m.Deliver(first.Value, "482913", "svc", "panel-a")
	require.NoError(t, err)

	// The lease was consumed by the delivery; a new request gets a new number.
	next, err := m.Assign(100)
	require.NoError(t, err)
	assert.Equal(t, "15551230002", next.Value)
}

func TestChangeReleasesAndBumpsCount(t *testing.T) {
	m := newTestManager(t, true, "15551230001", "15551230002")

	first, err := m.Assign(100)
	require.NoError(t, err)

	second, err := m.Change(100)
	require.NoError(t, err)
	assert.NotEqual(t, first.Value, second.Value)
	assert.Equal(t, 1, second.ReassignCount)

	// The released number is available again.
	rec := m.store.FindByValue(first.Value)
	require.NotNil(t, rec)
	assert.Equal(t, StatusAvailable, rec.Status)
	assert.Zero(t, rec.Holder)
}

func TestChangeMayReturnJustReleasedNumber(t *testing.T) {
	m := newTestManager(t, true, "15551230001")

	first, err := m.Assign(100)
	require.NoError(t, err)

	// With a single number in the pool the swap hands it right back.
	second, err := m.Change(100)
	require.NoError(t, err)
	assert.Equal(t, first.Value, second.Value)
}

func TestChangeRetiresNumberWithDeliveredOTP(t *testing.T) {
	m := newTestManager(t, false, "15551230001", "15551230002")

	first, err := m.Assign(100)
	require.NoError(t, err)
	_, err = m.Deliver(first.Value, "482913", "svc", "panel-a")
	require.NoError(t, err)

	_, err = m.Change(100)
	require.NoError(t, err)

	rec := m.store.FindByValue(first.Value)
	require.NotNil(t, rec)
	assert.Equal(t, StatusUsed, rec.Status)
}

func TestChangeExhaustedStillReleases(t *testing.T) {
	m := newTestManager(t, false, "15551230001")

	first, err := m.Assign(100)
	require.NoError(t, err)
	_, err = m.Deliver(first.Value, "482913", "svc", "panel-a")
	require.NoError(t, err)

	_, err = m.Change(100)
	assert.ErrorIs(t, err, ErrExhausted)

	rec := m.store.FindByValue(first.Value)
	require.NotNil(t, rec)
	assert.Equal(t, StatusUsed, rec.Status)
}

func TestReleaseAndBlock(t *testing.T) {
	m := newTestManager(t, true, "15551230001")

	lease, err := m.Assign(100)
	require.NoError(t, err)

	require.NoError(t, m.Release(lease.Value, false))
	rec := m.store.FindByValue(lease.Value)
	assert.Equal(t, StatusAvailable, rec.Status)
	_, ok := m.Current(100)
	assert.False(t, ok)

	require.NoError(t, m.Block(lease.Value))
	assert.Equal(t, StatusBlocked, rec.Status)
	// Blocking again is a no-op.
	require.NoError(t, m.Block(lease.Value))

	assert.ErrorIs(t, m.Release("19999999999", false), ErrNotFound)
	assert.ErrorIs(t, m.Block("19999999999"), ErrNotFound)
}

func TestReleaseForceUsed(t *testing.T) {
	m := newTestManager(t, true, "15551230001")
	require.NoError(t, m.Release("15551230001", true))
	assert.Equal(t, StatusUsed, m.store.FindByValue("15551230001").Status)
}

func TestReclaimExpired(t *testing.T) {
	m := newTestManager(t, true, "15551230001", "15551230002")

	lease, err := m.Assign(100)
	require.NoError(t, err)

	// Not yet expired.
	reclaimed, err := m.ReclaimExpired(time.Now(), m.TTL())
	require.NoError(t, err)
	assert.Empty(t, reclaimed)

	past := time.Now().Add(-20 * time.Minute).UTC()
	m.store.FindByValue(lease.Value).AssignedAt = &past

	reclaimed, err = m.ReclaimExpired(time.Now(), m.TTL())
	require.NoError(t, err)
	assert.Equal(t, []string{lease.Value}, reclaimed)
	assert.Equal(t, StatusAvailable, m.store.FindByValue(lease.Value).Status)
	_, ok := m.Current(100)
	assert.False(t, ok)
}

func TestReclaimSkipsDeliveredLeases(t *testing.T) {
	m := newTestManager(t, false, "15551230001")

	lease, err := m.Assign(100)
	require.NoError(t, err)
	_, err = m.Deliver(lease.Value, "482913", "svc", "panel-a")
	require.NoError(t, err)

	past := time.Now().Add(-20 * time.Minute).UTC()
	m.store.FindByValue(lease.Value).AssignedAt = &past

	reclaimed, err := m.ReclaimExpired(time.Now(), m.TTL())
	require.NoError(t, err)
	assert.Empty(t, reclaimed)
}

func TestDeliverKeepUsedLocked(t *testing.T) {
	m := newTestManager(t, true, "15551230001")

	lease, err := m.Assign(100)
	require.NoError(t, err)

	d, err := m.Deliver(lease.Value, "482913", "svc", "panel-a")
	require.NoError(t, err)
	assert.Equal(t, int64(100), d.Holder)
	assert.True(t, d.Retired)

	rec := m.store.FindByValue(lease.Value)
	assert.Equal(t, StatusUsed, rec.Status)
	assert.Len(t, rec.History, 1)
	assert.Equal(t, "482913", rec.History[0].Code)
}

func TestDeliverKeepsAssignedWhenUnlocked(t *testing.T) {
	m := newTestManager(t, false, "15551230001")

	lease, err := m.Assign(100)
	require.NoError(t, err)

	d, err := m.Deliver(lease.Value, "482913", "svc", "panel-a")
	require.NoError(t, err)
	assert.Equal(t, int64(100), d.Holder)
	assert.False(t, d.Retired)
	assert.Equal(t, StatusAssigned, m.store.FindByValue(lease.Value).Status)

	// The lease survives and now carries the delivered code.
	current, ok := m.Current(100)
	require.True(t, ok)
	assert.Equal(t, "482913", current.LastOTP)
}

func TestDeliverUnknownNumber(t *testing.T) {
	m := newTestManager(t, true, "15551230001")
	_, err := m.Deliver("19999999999", "482913", "svc", "panel-a")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAddNumbersDedupesAndSkipsGarbage(t *testing.T) {
	m := newTestManager(t, true)

	added, skipped, err := m.AddNumbers("batch1", []string{
		"+1 555 123 0001", "15551230001", "not-a-number", "15551230002",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, added)
	assert.Equal(t, 2, skipped)
	assert.Equal(t, 2, m.store.Len())
}

func TestRemoveListInvalidatesLeases(t *testing.T) {
	m := newTestManager(t, true)
	_, _, err := m.AddNumbers("batch1", []string{"15551230001"})
	require.NoError(t, err)
	_, _, err = m.AddNumbers("batch2", []string{"15551230002"})
	require.NoError(t, err)

	lease, err := m.Assign(100)
	require.NoError(t, err)
	assert.Equal(t, "15551230001", lease.Value)

	removed, err := m.RemoveList("batch1")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Nil(t, m.store.FindByValue("15551230001"))
	_, ok := m.Current(100)
	assert.False(t, ok)

	assert.Equal(t, []string{"batch2"}, m.Lists())
}

func TestStatsAndActiveLeases(t *testing.T) {
	m := newTestManager(t, true, "15551230001", "15551230002", "15551230003")

	_, err := m.Assign(100)
	require.NoError(t, err)
	require.NoError(t, m.Block("15551230003"))

	st := m.Stats()
	assert.Equal(t, Stats{Total: 3, Available: 1, Assigned: 1, Blocked: 1}, st)

	leases := m.ActiveLeases()
	require.Len(t, leases, 1)
	assert.Equal(t, int64(100), leases[0].Holder)
	assert.Equal(t, "15551230001", leases[0].Value)
}

func TestKnownUsers(t *testing.T) {
	m := newTestManager(t, true)
	require.NoError(t, m.RegisterUser(200))
	require.NoError(t, m.RegisterUser(100))
	require.NoError(t, m.RegisterUser(200))
	assert.Equal(t, []int64{100, 200}, m.KnownUsers())
}

func TestStatePersistsAcrossReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "numbers.json")

	m := NewManager(Load(path), Config{TTL: 15 * time.Minute, KeepUsedLocked: true})
	_, _, err := m.AddNumbers("batch1", []string{"15551230001", "15551230002"})
	require.NoError(t, err)
	lease, err := m.Assign(100)
	require.NoError(t, err)
	_, err = m.Change(100)
	require.NoError(t, err)
	require.NoError(t, m.RegisterUser(100))
	_ = lease

	reloaded := NewManager(Load(path), Config{TTL: 15 * time.Minute, KeepUsedLocked: true})
	current, ok := reloaded.Current(100)
	require.True(t, ok)
	assert.Equal(t, "15551230002", current.Value)
	assert.Equal(t, 1, current.ReassignCount)
	assert.Equal(t, []int64{100}, reloaded.KnownUsers())
}
