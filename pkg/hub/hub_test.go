package hub

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	h := New("test")
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)
	return h
}

func attach(h *Hub, buffer int, topics ...string) *Client {
	c := &Client{hub: h, queue: make(chan []byte, buffer), topics: topicSet(topics)}
	h.join(c)
	return c
}

// settle waits until the hub loop has handled every queued broadcast.
func settle(h *Hub) {
	for len(h.broadcast) > 0 {
		time.Sleep(time.Millisecond)
	}
	// a round trip through Run means the last broadcast finished
	marker := &Client{hub: h, queue: make(chan []byte, 16)}
	h.join(marker)
	h.leave(marker)
}

func receive(t *testing.T, c *Client) Envelope {
	t.Helper()
	select {
	case data, ok := <-c.queue:
		if !ok {
			t.Fatal("client channel closed")
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatalf("bad message %s: %v", data, err)
		}
		return env
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
	return Envelope{}
}

func TestBroadcastReachesClients(t *testing.T) {
	h := startHub(t)
	a := attach(h, 8)
	b := attach(h, 8)

	if err := h.BroadcastJSON("tick", map[string]string{"final": "ATTENTIVE"}, false); err != nil {
		t.Fatal(err)
	}

	for _, c := range []*Client{a, b} {
		env := receive(t, c)
		if env.Type != "tick" {
			t.Errorf("type = %q, want tick", env.Type)
		}
		if string(env.Data) != `{"final":"ATTENTIVE"}` {
			t.Errorf("data = %s", env.Data)
		}
	}
	if got := h.ClientCount(); got != 2 {
		t.Errorf("ClientCount() = %d, want 2", got)
	}
}

func TestRetainedReplayedToNewClients(t *testing.T) {
	h := startHub(t)
	first := attach(h, 8)

	h.BroadcastJSON("status", map[string]string{"state": "IDLE"}, true)
	h.BroadcastJSON("status", map[string]string{"state": "RUNNING"}, true)
	h.BroadcastJSON("tick", 1, false)
	receive(t, first)
	receive(t, first)
	receive(t, first)

	late := attach(h, 8)
	env := receive(t, late)
	if env.Type != "status" || string(env.Data) != `{"state":"RUNNING"}` {
		t.Errorf("replayed %s %s, want latest status", env.Type, env.Data)
	}
	select {
	case data := <-late.queue:
		t.Errorf("unexpected replay %s", data)
	default:
	}

	if _, ok := h.Retained("status"); !ok {
		t.Error("status not retained")
	}
	if _, ok := h.Retained("tick"); ok {
		t.Error("tick should not be retained")
	}
}

func TestSlowClientDropped(t *testing.T) {
	h := startHub(t)
	slow := attach(h, 1)

	for i := 0; i < 3; i++ {
		h.BroadcastJSON("tick", i, false)
	}

	deadline := time.Now().Add(time.Second)
	for h.ClientCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if h.ClientCount() != 0 {
		t.Fatal("slow client was not dropped")
	}

	<-slow.queue
	if _, ok := <-slow.queue; ok {
		t.Error("slow client channel should be closed")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	h := New("test")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	c := attach(h, 1)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
	if _, ok := <-c.queue; ok {
		t.Error("client channel should be closed on shutdown")
	}
	if h.IsRunning() {
		t.Error("IsRunning() = true after shutdown")
	}
}

func TestTopicFilter(t *testing.T) {
	h := startHub(t)
	all := attach(h, 8)
	statusOnly := attach(h, 8, "status", "summary")

	h.BroadcastJSON("tick", 1, false)
	h.BroadcastJSON("status", map[string]string{"state": "RUNNING"}, true)

	if env := receive(t, all); env.Type != "tick" {
		t.Errorf("unfiltered client got %s first, want tick", env.Type)
	}
	if env := receive(t, statusOnly); env.Type != "status" {
		t.Errorf("filtered client got %s, want status", env.Type)
	}
	settle(h)
	select {
	case data := <-statusOnly.queue:
		t.Errorf("filtered client got extra message %s", data)
	default:
	}
}

func TestRetainedReplayHonoursFilter(t *testing.T) {
	h := startHub(t)
	h.BroadcastJSON("status", map[string]string{"state": "ENDED"}, true)
	h.BroadcastJSON("summary", map[string]float64{"focus_percent": 75}, true)
	settle(h)

	c := attach(h, 8, "summary")
	if env := receive(t, c); env.Type != "summary" {
		t.Fatalf("replayed %s, want summary", env.Type)
	}
	settle(h)
	select {
	case data := <-c.queue:
		t.Errorf("unexpected replay %s", data)
	default:
	}
}

func TestSubscriptionChangeReplaysNewTopics(t *testing.T) {
	h := startHub(t)
	h.BroadcastJSON("status", map[string]string{"state": "RUNNING"}, true)
	h.BroadcastJSON("summary", map[string]float64{"focus_percent": 75}, true)
	settle(h)

	c := attach(h, 8, "status")
	if env := receive(t, c); env.Type != "status" {
		t.Fatalf("replayed %s, want status", env.Type)
	}

	h.setTopics(c, []string{"status", "summary"})
	if env := receive(t, c); env.Type != "summary" {
		t.Fatalf("after subscribing got %s, want summary replay only", env.Type)
	}
	settle(h)
	select {
	case data := <-c.queue:
		t.Errorf("status replayed twice: %s", data)
	default:
	}

	h.BroadcastJSON("tick", 1, false)
	h.BroadcastJSON("status", map[string]string{"state": "ENDED"}, true)
	if env := receive(t, c); env.Type != "status" {
		t.Errorf("got %s, want status (tick is filtered)", env.Type)
	}
}

func TestParseTopics(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"status", 1},
		{" status , summary ,", 2},
	}
	for _, tt := range tests {
		if got := ParseTopics(tt.in); len(got) != tt.want {
			t.Errorf("ParseTopics(%q) = %v, want %d topics", tt.in, got, tt.want)
		}
	}
}

func TestStoppedHubDoesNotBlock(t *testing.T) {
	h := New("test")
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()
	c := attach(h, 4)
	cancel()
	<-stopped

	done := make(chan struct{})
	go func() {
		h.leave(c)
		h.setTopics(c, []string{"status"})
		if h.join(&Client{hub: h, queue: make(chan []byte, 1)}) {
			t.Error("join succeeded on a stopped hub")
		}
		if _, err := NewClient(h, nil); !errors.Is(err, ErrStopped) {
			t.Errorf("NewClient() error = %v, want ErrStopped", err)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("client calls blocked after the hub stopped")
	}
}
