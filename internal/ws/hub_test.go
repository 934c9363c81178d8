package ws

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/atelierhq/api/internal/enum"
)

func newTestClient(hub *Hub, location string) *Client {
	return &Client{
		hub:      hub,
		location: location,
		send:     make(chan []byte, 8),
	}
}

func TestHubBroadcastsToRoom(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	unit1 := newTestClient(hub, "Unit 1")
	unit2 := newTestClient(hub, "Unit 2")
	hub.register <- unit1
	hub.register <- unit2

	hub.BroadcastToLocation("Unit 1", Event{
		Type:    "order.created",
		Payload: json.RawMessage(`{"id":"abc"}`),
	})

	select {
	case msg := <-unit1.send:
		var ev Event
		if err := json.Unmarshal(msg, &ev); err != nil {
			t.Fatalf("unmarshal broadcast: %v", err)
		}
		if ev.Type != "order.created" {
			t.Errorf("event type = %q, want order.created", ev.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("Unit 1 client never received the event")
	}

	select {
	case msg := <-unit2.send:
		t.Errorf("Unit 2 client received event for Unit 1: %s", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubUnregisterClosesSend(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := newTestClient(hub, "Unit 1")
	hub.register <- client
	hub.unregister <- client

	select {
	case _, ok := <-client.send:
		if ok {
			t.Error("send channel delivered a message instead of closing")
		}
	case <-time.After(time.Second):
		t.Fatal("send channel not closed after unregister")
	}

	// Broadcasting to the now-empty room must not block or panic.
	hub.BroadcastToLocation("Unit 1", Event{Type: "order.created"})
}

func TestCanWatch(t *testing.T) {
	tests := []struct {
		name         string
		role         string
		userLocation string
		roomLocation string
		want         bool
	}{
		{"admin any room", enum.UserRoleAdmin, "Unit 1", "Unit 2", true},
		{"manager own unit", enum.UserRoleManager, "Unit 1", "Unit 1", true},
		{"manager other unit", enum.UserRoleManager, "Unit 1", "Unit 2", false},
		{"tailor denied", enum.UserRoleTailor, "Unit 1", "Unit 1", false},
		{"unknown role denied", "intern", "Unit 1", "Unit 1", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanWatch(tc.role, tc.userLocation, tc.roomLocation); got != tc.want {
				t.Errorf("CanWatch() = %v, want %v", got, tc.want)
			}
		})
	}
}
