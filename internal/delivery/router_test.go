package delivery

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"otprelay/internal/numpool"
)

type fakeNotifier struct {
	holderIDs  []int64
	holderMsgs []string
	logMsgs    []string
}

func (f *fakeNotifier) NotifyHolder(_ context.Context, holder int64, text string) {
	f.holderIDs = append(f.holderIDs, holder)
	f.holderMsgs = append(f.holderMsgs, text)
}

func (f *fakeNotifier) NotifyLog(_ context.Context, text string) {
	f.logMsgs = append(f.logMsgs, text)
}

func newTestRouter(t *testing.T, numbers ...string) (*Router, *numpool.Manager, *fakeNotifier) {
	t.Helper()
	store := numpool.Load(filepath.Join(t.TempDir(), "numbers.json"))
	pool := numpool.NewManager(store, numpool.Config{
		TTL:            15 * time.Minute,
		KeepUsedLocked: true,
	})
	if len(numbers) > 0 {
		_, _, err := pool.AddNumbers("default", numbers)
		require.NoError(t, err)
	}
	notifier := &fakeNotifier{}
	return &Router{Pool: pool, Notifier: notifier}, pool, notifier
}

func TestHandleMessageRoutesToHolderAndLog(t *testing.T) {
	r, pool, notifier := newTestRouter(t, "15551230001")

	lease, err := pool.Assign(100)
	require.NoError(t, err)

	handled, err := r.HandleMessage(context.Background(), lease.Value,
		"Your WhatsApp code is 482913", "WhatsApp", "panel-a")
	require.NoError(t, err)
	assert.True(t, handled)

	require.Equal(t, []int64{100}, notifier.holderIDs)
	assert.Contains(t, notifier.holderMsgs[0], "<code>482913</code>")
	assert.Contains(t, notifier.holderMsgs[0], "WhatsApp")
	require.Len(t, notifier.logMsgs, 1)
	assert.Equal(t, notifier.holderMsgs[0], notifier.logMsgs[0])

	// The delivery retired the number.
	st := pool.Stats()
	assert.Equal(t, 1, st.Used)
}

func TestHandleMessageWithoutCodeIsSkipped(t *testing.T) {
	r, pool, notifier := newTestRouter(t, "15551230001")
	_, err := pool.Assign(100)
	require.NoError(t, err)

	handled, err := r.HandleMessage(context.Background(), "15551230001",
		"Welcome to the service!", "svc", "panel-a")
	require.NoError(t, err)
	assert.False(t, handled)
	assert.Empty(t, notifier.holderIDs)
	assert.Empty(t, notifier.logMsgs)
	assert.Equal(t, 1, pool.Stats().Assigned)
}

func TestHandleMessageUnknownNumberIsSkipped(t *testing.T) {
	r, _, notifier := newTestRouter(t, "15551230001")

	handled, err := r.HandleMessage(context.Background(), "19999999999",
		"code 482913", "svc", "panel-a")
	require.NoError(t, err)
	assert.False(t, handled)
	assert.Empty(t, notifier.logMsgs)
}

func TestHandleMessageUnleasedNumberGoesToLogOnly(t *testing.T) {
	r, pool, notifier := newTestRouter(t, "15551230001")

	handled, err := r.HandleMessage(context.Background(), "15551230001",
		"code 482913", "svc", "panel-a")
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Empty(t, notifier.holderIDs)
	require.Len(t, notifier.logMsgs, 1)
	// An OTP on an unleased number burns it.
	assert.Equal(t, 1, pool.Stats().Used)
}

func TestRenderDeliveryEscapesHTML(t *testing.T) {
	text := renderDelivery("15551230001", "482913", "<svc>", "code 482913 <b>")
	assert.Contains(t, text, "&lt;svc&gt;")
	assert.NotContains(t, text, "<svc>")
	assert.Contains(t, text, "+155******01")
}
