package websocket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"streamchat-orchestrator/internal/domain"
	"streamchat-orchestrator/internal/fanout"
	"streamchat-orchestrator/internal/pkg/logger"
)

func newTestHub(t *testing.T) (*Hub, *fanout.Fanout) {
	log := logger.NewZapLogger(t.TempDir()+"/t.log", false)
	fo := fanout.New(log, nil)
	hub := NewHub(fo, nil, log)
	go hub.Run()
	return hub, fo
}

func TestHub_BridgesRoomEventsToLocalClient(t *testing.T) {
	hub, fo := newTestHub(t)

	client := &Client{Hub: hub, Room: "chat_u1_s1_c1", Send: make(chan []byte, 8), logger: logger.NewZapLogger(t.TempDir()+"/t.log", false)}
	hub.register <- client
	time.Sleep(20 * time.Millisecond) // let Run() set up the bridge goroutine

	if err := fo.Publish(context.Background(), "chat_u1_s1_c1", domain.Event{Type: domain.EventStream, Content: "Hi", ChatID: "c1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case payload := <-client.Send:
		var decoded map[string]interface{}
		if err := json.Unmarshal(payload, &decoded); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if decoded["content"] != "Hi" {
			t.Fatalf("expected content Hi, got %v", decoded["content"])
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for bridged event")
	}
}

func TestHub_UnregisterTearsDownBridgeAndClosesSend(t *testing.T) {
	hub, _ := newTestHub(t)

	client := &Client{Hub: hub, Room: "chat_u1_s1_c1", Send: make(chan []byte, 8), logger: logger.NewZapLogger(t.TempDir()+"/t.log", false)}
	hub.register <- client
	time.Sleep(20 * time.Millisecond)

	hub.unregister <- client
	time.Sleep(20 * time.Millisecond)

	select {
	case _, ok := <-client.Send:
		if ok {
			t.Fatal("expected Send to be closed after unregister")
		}
	default:
		t.Fatal("expected Send to be closed (readable immediately) after unregister")
	}

	hub.mu.RLock()
	_, stillBridged := hub.bridges["chat_u1_s1_c1"]
	hub.mu.RUnlock()
	if stillBridged {
		t.Fatal("expected bridge to be torn down once the room has no clients")
	}
}

func TestHub_DoesNotDoubleBridgeSameRoom(t *testing.T) {
	hub, fo := newTestHub(t)

	c1 := &Client{Hub: hub, Room: "chat_u1_s1_c1", Send: make(chan []byte, 8), logger: logger.NewZapLogger(t.TempDir()+"/t.log", false)}
	c2 := &Client{Hub: hub, Room: "chat_u1_s1_c1", Send: make(chan []byte, 8), logger: logger.NewZapLogger(t.TempDir()+"/t.log", false)}
	hub.register <- c1
	hub.register <- c2
	time.Sleep(20 * time.Millisecond)

	hub.mu.RLock()
	n := len(hub.clients["chat_u1_s1_c1"])
	hub.mu.RUnlock()
	if n != 2 {
		t.Fatalf("expected 2 clients in room, got %d", n)
	}

	// With a single bridge each client receives one copy of an event; a
	// second bridge on the same room would deliver it twice.
	if err := fo.Publish(context.Background(), "chat_u1_s1_c1", domain.Event{Type: domain.EventStream, Content: "once", ChatID: "c1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	for i, c := range []*Client{c1, c2} {
		if got := len(c.Send); got != 1 {
			t.Fatalf("client %d: expected exactly one delivered event, got %d", i+1, got)
		}
	}
}
