package history

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Open resolves the migrations directory relative to the working directory,
// so the test runs from the repository root.
func openTestArchive(t *testing.T) *Archive {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(filepath.Join(wd, "..", "..")))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	a, err := Open(context.Background(), filepath.Join(t.TempDir(), "otp_history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestArchiveRoundTrip(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	require.NoError(t, a.Record(ctx, Entry{
		Number: "15551230001", Code: "111111", Service: "WhatsApp",
		Source: "panel-a", Holder: 100, ReceivedAt: base,
	}))
	require.NoError(t, a.Record(ctx, Entry{
		Number: "15551230001", Code: "222222", Service: "Telegram",
		Source: "panel-b", Holder: 100, ReceivedAt: base.Add(time.Minute),
	}))
	require.NoError(t, a.Record(ctx, Entry{
		Number: "15551230002", Code: "333333", ReceivedAt: base,
	}))

	entries, err := a.RecentByNumber(ctx, "15551230001", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "222222", entries[0].Code)
	assert.Equal(t, "Telegram", entries[0].Service)
	assert.Equal(t, "panel-b", entries[0].Source)
	assert.Equal(t, int64(100), entries[0].Holder)
	assert.True(t, entries[0].ReceivedAt.Equal(base.Add(time.Minute)))

	assert.Equal(t, "111111", entries[1].Code)
}

func TestRecentByNumberHonorsLimit(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, a.Record(ctx, Entry{
			Number: "15551230001", Code: "11111" + string(rune('0'+i)),
			ReceivedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	entries, err := a.RecentByNumber(ctx, "15551230001", 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "111114", entries[0].Code)
	assert.Equal(t, "111113", entries[1].Code)
}

func TestCountSince(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	require.NoError(t, a.Record(ctx, Entry{Number: "1", Code: "111111", ReceivedAt: base.Add(-time.Hour)}))
	require.NoError(t, a.Record(ctx, Entry{Number: "2", Code: "222222", ReceivedAt: base}))
	require.NoError(t, a.Record(ctx, Entry{Number: "3", Code: "333333", ReceivedAt: base.Add(time.Hour)}))

	n, err := a.CountSince(ctx, base)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestOpenReappliesNothingOnSecondConnect(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(filepath.Join(wd, "..", "..")))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	path := filepath.Join(t.TempDir(), "otp_history.db")
	ctx := context.Background()

	a, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, a.Record(ctx, Entry{Number: "1", Code: "111111"}))
	require.NoError(t, a.Close())

	reopened, err := Open(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()

	entries, err := reopened.RecentByNumber(ctx, "1", 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestNilArchiveIsNoOp(t *testing.T) {
	var a *Archive
	ctx := context.Background()

	assert.NoError(t, a.Record(ctx, Entry{Number: "1", Code: "111111"}))

	entries, err := a.RecentByNumber(ctx, "1", 10)
	assert.NoError(t, err)
	assert.Empty(t, entries)

	n, err := a.CountSince(ctx, time.Now())
	assert.NoError(t, err)
	assert.Zero(t, n)

	assert.NoError(t, a.Close())
}
