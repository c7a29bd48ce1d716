package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	coreconfig "otprelay/core/config"
)

type stubContext struct {
	tele.Context
	sender *tele.User
	sent   []string
}

func (s *stubContext) Sender() *tele.User { return s.sender }

func (s *stubContext) Send(what interface{}, _ ...interface{}) error {
	if text, ok := what.(string); ok {
		s.sent = append(s.sent, text)
	}
	return nil
}

func newGateHandlers() *Handlers {
	return &Handlers{
		Cfg: &coreconfig.Config{
			Telegram: coreconfig.TelegramConfig{AdminIDs: []int64{1}},
		},
	}
}

func TestAdminGateRejectsNonAdminCallback(t *testing.T) {
	h := newGateHandlers()
	called := false
	gated := h.adminGate(func(tele.Context) error { called = true; return nil })

	c := &stubContext{sender: &tele.User{ID: 2}}
	require.NoError(t, gated(c))

	assert.False(t, called)
	require.Len(t, c.sent, 1)
	assert.Contains(t, c.sent[0], "not authorized")
}

func TestAdminGatePassesAdminCallback(t *testing.T) {
	h := newGateHandlers()
	called := false
	gated := h.adminGate(func(tele.Context) error { called = true; return nil })

	c := &stubContext{sender: &tele.User{ID: 1}}
	require.NoError(t, gated(c))

	assert.True(t, called)
	assert.Empty(t, c.sent)
}
