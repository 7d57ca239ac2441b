package session

import (
	"context"
	"testing"

	"streamchat-orchestrator/internal/bus"
	"streamchat-orchestrator/internal/catalog"
	"streamchat-orchestrator/internal/consumer"
	"streamchat-orchestrator/internal/domain"
	"streamchat-orchestrator/internal/pkg/logger"
	"streamchat-orchestrator/internal/registry"
	"streamchat-orchestrator/internal/repository/memory"
	"streamchat-orchestrator/internal/transcript"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSub struct {
	stopped *bool
}

func (f *fakeSub) Stop() { *f.stopped = true }

type fakeIndexBus struct {
	connected bool
	subs      []*fakeSub
	handlers  []func(bus.Msg)
}

func (f *fakeIndexBus) IsConnected() bool { return f.connected }

func (f *fakeIndexBus) Subscribe(ctx context.Context, subject, durable string, handler func(bus.Msg)) (bus.Subscription, error) {
	stopped := false
	s := &fakeSub{stopped: &stopped}
	f.subs = append(f.subs, s)
	f.handlers = append(f.handlers, handler)
	return s, nil
}

func newTestContext(t *testing.T, b busIndexSubscriber) (*Context, *catalog.Catalog, *transcript.Store) {
	log := logger.NewZapLogger(t.TempDir()+"/t.log", false)
	cat := catalog.New(memory.NewCatalogRepository(), log)
	ts := transcript.New(memory.NewTranscriptRepository(), log)
	cat.AddEvictionHook(ts)
	cm := consumer.NewManager(&fakeIndexBus{connected: false}, log)
	reg := registry.New()
	return New(cat, ts, cm, reg, b, log), cat, ts
}

func TestLogin_OpensSessionIndexSubscriptionWhenBusConnected(t *testing.T) {
	fb := &fakeIndexBus{connected: true}
	ctx, _, _ := newTestContext(t, fb)

	ctx.Login(context.Background(), "u1", 4)

	require.Len(t, fb.subs, 1)
	assert.False(t, *fb.subs[0].stopped)
}

func TestLogin_SkipsSubscriptionWhenBusDisconnected(t *testing.T) {
	fb := &fakeIndexBus{connected: false}
	ctx, _, _ := newTestContext(t, fb)

	ctx.Login(context.Background(), "u1", 0)

	assert.Empty(t, fb.subs)
}

func TestLogin_HandlerSyncsCatalogFromIndexEntries(t *testing.T) {
	fb := &fakeIndexBus{connected: true}
	sessCtx, cat, _ := newTestContext(t, fb)

	sessCtx.Login(context.Background(), "u1", 0)
	require.Len(t, fb.handlers, 1)

	fb.handlers[0](fakeMsg{data: []byte(`[["s1","Renamed"]]`)})

	s, ok := cat.Get("u1", "s1")
	require.True(t, ok)
	assert.Equal(t, "Renamed", s.Title)
}

func TestLogout_StopsIndexSubscriptionAndFlushesState(t *testing.T) {
	fb := &fakeIndexBus{connected: true}
	sessCtx, cat, ts := newTestContext(t, fb)

	sessCtx.Login(context.Background(), "u1", 0)
	cat.Upsert(&domain.Session{ID: "s1", OwnerUserID: "u1", Source: domain.SessionSourceLocal})
	ts.AppendUser("u1", "s1", "c1", "hi", "")

	sessCtx.Logout("u1")

	assert.True(t, *fb.subs[0].stopped)
	assert.Empty(t, cat.List("u1"))
	assert.Empty(t, ts.History("u1", "s1"))
}

func TestLogout_RunsRegisteredFlushHooks(t *testing.T) {
	fb := &fakeIndexBus{connected: false}
	log := logger.NewZapLogger(t.TempDir()+"/t.log", false)
	cat := catalog.New(memory.NewCatalogRepository(), log)
	ts := transcript.New(memory.NewTranscriptRepository(), log)
	cm := consumer.NewManager(fb, log)
	reg := registry.New()

	flushed := ""
	reg.AddFlushHook(func(userID string) { flushed = userID })

	sessCtx := New(cat, ts, cm, reg, fb, log)
	sessCtx.Login(context.Background(), "u2", 0)
	sessCtx.Logout("u2")

	assert.Equal(t, "u2", flushed)
}

type fakeMsg struct {
	data []byte
}

func (m fakeMsg) Data() []byte     { return m.data }
func (m fakeMsg) Subject() string  { return "" }
func (m fakeMsg) Ack() error       { return nil }
func (m fakeMsg) Nak() error       { return nil }
