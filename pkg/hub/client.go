package hub

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-focus/internal/log"
)

// Connection timings. Dashboards answer pings automatically; a connection
// silent for longer than idleTimeout is considered gone.
const (
	writeTimeout = 10 * time.Second
	idleTimeout  = 60 * time.Second
	keepalive    = idleTimeout * 9 / 10

	maxInbound = 4 * 1024
	queueSize  = 256
)

// Subscription is the only message a dashboard sends. It replaces the
// connection's topic filter; an empty list means every topic.
//
//	{"topics":["status","summary"]}
type Subscription struct {
	Topics []string `json:"topics"`
}

// ParseTopics splits a comma-separated topic list, as given in the
// ?topics= query parameter.
func ParseTopics(s string) []string {
	var topics []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			topics = append(topics, t)
		}
	}
	return topics
}

// Client is one dashboard connection. It only receives the topics it is
// subscribed to; the filter is owned by the hub's Run loop.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	queue  chan []byte
	topics map[string]bool // nil receives everything
}

// NewClient registers a connection with the hub, subscribed to topics
// (all topics when none are given). It returns ErrStopped when the hub has
// shut down.
func NewClient(hub *Hub, conn *websocket.Conn, topics ...string) (*Client, error) {
	c := &Client{
		hub:    hub,
		conn:   conn,
		queue:  make(chan []byte, queueSize),
		topics: topicSet(topics),
	}
	if !hub.join(c) {
		return nil, ErrStopped
	}
	return c, nil
}

func topicSet(topics []string) map[string]bool {
	if len(topics) == 0 {
		return nil
	}
	set := make(map[string]bool, len(topics))
	for _, t := range topics {
		set[t] = true
	}
	return set
}

func (c *Client) wants(topic string) bool {
	return c.topics == nil || c.topics[topic]
}

func (c *Client) topicList() []string {
	if c.topics == nil {
		return nil
	}
	out := make([]string, 0, len(c.topics))
	for t := range c.topics {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Serve sends queued messages on a separate goroutine and handles
// subscription changes until the connection closes. Call it from the
// websocket handler.
func (c *Client) Serve() {
	go c.send()
	c.receive()
}

// receive applies subscription messages and notices disconnects.
func (c *Client) receive() {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxInbound)
	extend := func() error { return c.conn.SetReadDeadline(time.Now().Add(idleTimeout)) }
	extend()
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		extend()
		if kind != websocket.TextMessage {
			continue
		}
		var sub Subscription
		if err := json.Unmarshal(data, &sub); err != nil {
			log.Debug("ignoring websocket message", "hub", c.hub.name, "error", err)
			continue
		}
		c.hub.setTopics(c, sub.Topics)
	}
}

// send is the connection's only writer.
func (c *Client) send() {
	ping := time.NewTicker(keepalive)
	defer func() {
		ping.Stop()
		c.conn.Close()
	}()

	write := func(kind int, data []byte) error {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case data, ok := <-c.queue:
			if !ok {
				write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
				return
			}
			if write(websocket.TextMessage, data) != nil {
				return
			}
		case <-ping.C:
			if write(websocket.PingMessage, nil) != nil {
				return
			}
		}
	}
}
