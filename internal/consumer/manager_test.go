package consumer

import (
	"context"
	"testing"

	"streamchat-orchestrator/internal/bus"
	"streamchat-orchestrator/internal/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSub struct {
	stopped *bool
}

func (f *fakeSub) Stop() { *f.stopped = true }

type fakeBus struct {
	connected bool
	subs      []*fakeSub
}

func (f *fakeBus) IsConnected() bool { return f.connected }

func (f *fakeBus) Subscribe(ctx context.Context, subject, durable string, handler func(bus.Msg)) (bus.Subscription, error) {
	stopped := false
	s := &fakeSub{stopped: &stopped}
	f.subs = append(f.subs, s)
	return s, nil
}

func TestAcquire_CancelsPriorSlotOccupant(t *testing.T) {
	fb := &fakeBus{connected: true}
	m := NewManager(fb, logger.NewZapLogger(t.TempDir()+"/t.log", false))

	c1, err := m.Acquire(context.Background(), bus.QueueChat, "conn1", "u1", "s1", "1", func(bus.Msg) {})
	require.NoError(t, err)
	require.Len(t, fb.subs, 1)

	c2, err := m.Acquire(context.Background(), bus.QueueChat, "conn1", "u1", "s1", "2", func(bus.Msg) {})
	require.NoError(t, err)

	assert.True(t, *fb.subs[0].stopped, "prior consumer must be cancelled before new subscribe")
	assert.False(t, *fb.subs[1].stopped)
	assert.NotEqual(t, c1.Tag, c2.Tag)
	assert.Equal(t, 1, m.ActiveSlots())
}

func TestAcquire_FailsFastWhenBusUnavailable(t *testing.T) {
	fb := &fakeBus{connected: false}
	m := NewManager(fb, logger.NewZapLogger(t.TempDir()+"/t.log", false))

	_, err := m.Acquire(context.Background(), bus.QueueChat, "conn1", "u1", "s1", "1", func(bus.Msg) {})
	require.Error(t, err)
}

func TestCancelFor_MatchesByChatID(t *testing.T) {
	fb := &fakeBus{connected: true}
	m := NewManager(fb, logger.NewZapLogger(t.TempDir()+"/t.log", false))

	_, err := m.Acquire(context.Background(), bus.QueueChat, "conn1", "u1", "s1", "7", func(bus.Msg) {})
	require.NoError(t, err)

	assert.False(t, m.CancelFor("u1", "s1", "99"), "mismatched chat id must not cancel")
	assert.True(t, m.CancelFor("u1", "s1", "7"))
	assert.Equal(t, 0, m.ActiveSlots())
}

func TestForceCleanupAll_StopsEverySlot(t *testing.T) {
	fb := &fakeBus{connected: true}
	m := NewManager(fb, logger.NewZapLogger(t.TempDir()+"/t.log", false))

	_, _ = m.Acquire(context.Background(), bus.QueueChat, "conn1", "u1", "s1", "1", func(bus.Msg) {})
	_, _ = m.Acquire(context.Background(), bus.QueueChat, "conn1", "u2", "s2", "1", func(bus.Msg) {})

	m.ForceCleanupAll()

	assert.Equal(t, 0, m.ActiveSlots())
	for _, s := range fb.subs {
		assert.True(t, *s.stopped)
	}
}
