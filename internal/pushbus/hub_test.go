package pushbus

import (
	"encoding/json"
	"testing"
	"time"
)

func newTestClient(h *Hub, id string) *Client {
	return &Client{
		hub:    h,
		send:   make(chan []byte, 4),
		id:     id,
		groups: make(map[string]bool),
	}
}

func recvEvent(t *testing.T, ch chan []byte) Event {
	t.Helper()
	select {
	case body := <-ch:
		var evt Event
		if err := json.Unmarshal(body, &evt); err != nil {
			t.Fatalf("unmarshal event: %v", err)
		}
		return evt
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestHubPublishOnlyReachesGroupMembers(t *testing.T) {
	h := NewHub(nil)
	go h.Run()

	member := newTestClient(h, "member")
	other := newTestClient(h, "other")
	h.register <- member
	h.register <- other

	member.Join(TaskTopic("t1"))

	h.PublishTask("t1", EventStatusUpdate, StatusUpdate{TaskID: "t1", Status: "Converting"})

	evt := recvEvent(t, member.send)
	if evt.Type != EventStatusUpdate {
		t.Errorf("member event type = %v, want StatusUpdate", evt.Type)
	}

	select {
	case <-other.send:
		t.Error("non-member client should not receive a group-scoped event")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHubPublishBroadcastsToAllOnEmptyGroup(t *testing.T) {
	h := NewHub(nil)
	go h.Run()

	a := newTestClient(h, "a")
	b := newTestClient(h, "b")
	h.register <- a
	h.register <- b

	h.Publish("", Event{Type: EventSystemNotification, Data: SystemNotification{Message: "hi", Level: "info"}})

	recvEvent(t, a.send)
	recvEvent(t, b.send)
}

func TestHubUnregisterClosesSendChannel(t *testing.T) {
	h := NewHub(nil)
	go h.Run()

	c := newTestClient(h, "c")
	h.register <- c
	h.unregister <- c

	// give the hub goroutine a moment to process the unregister.
	time.Sleep(50 * time.Millisecond)

	_, ok := <-c.send
	if ok {
		t.Error("send channel should be closed after unregister")
	}
}

func TestClientJoinLeave(t *testing.T) {
	h := NewHub(nil)
	c := newTestClient(h, "d")

	c.Join(TopicSpace)
	if !c.isIn(TopicSpace) {
		t.Error("client should be in the space group after Join")
	}

	c.Leave(TopicSpace)
	if c.isIn(TopicSpace) {
		t.Error("client should not be in the space group after Leave")
	}
}

func TestClientReplyDeliversDirectlyToSender(t *testing.T) {
	h := NewHub(nil)
	c := newTestClient(h, "e")

	c.Reply(Event{Type: EventStatusUpdate, Data: StatusUpdate{TaskID: "t9", Status: "Completed"}})

	evt := recvEvent(t, c.send)
	if evt.Type != EventStatusUpdate {
		t.Errorf("reply event type = %v, want StatusUpdate", evt.Type)
	}
}

func TestClientID(t *testing.T) {
	h := NewHub(nil)
	c := newTestClient(h, "client-123")
	if c.ID() != "client-123" {
		t.Errorf("ID() = %q, want client-123", c.ID())
	}
}
