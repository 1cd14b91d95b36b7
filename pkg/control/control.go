// Package control carries session commands from external actors to the
// session loop.
//
// The loop polls a Channel once per tick and sees only the latest command
// value. A value is applied once; polling the same value again is a no-op,
// so channels never need to clear what they hold.
package control

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// ErrUnknownKind is returned when parsing an unrecognised command name.
var ErrUnknownKind = errors.New("control: unknown command")

// Kind is a session command.
type Kind string

const (
	StartSession Kind = "START_SESSION"
	Calibrate    Kind = "CALIBRATE"
	EndSession   Kind = "END_SESSION"
)

// Kinds lists every valid command.
var Kinds = []Kind{StartSession, Calibrate, EndSession}

// ParseKind parses a command name. Matching is case-insensitive.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToUpper(strings.TrimSpace(s)))
	for _, valid := range Kinds {
		if k == valid {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Command is one command value. Two commands are the same value when both
// kind and issue time match.
type Command struct {
	Kind     Kind
	IssuedAt time.Time
}

// Same reports whether c and o are the same command value.
func (c Command) Same(o Command) bool {
	return c.Kind == o.Kind && c.IssuedAt.Equal(o.IssuedAt)
}

func (c Command) String() string {
	return fmt.Sprintf("%s@%s", c.Kind, c.IssuedAt.Format(time.RFC3339Nano))
}

// Channel exposes the latest pending command. ok is false when no command
// has been issued.
type Channel interface {
	Latest() (cmd Command, ok bool)
}

// Mailbox is an in-memory Channel. It is safe for concurrent use, so HTTP
// handlers can submit while the session loop polls.
type Mailbox struct {
	mu  sync.Mutex
	cmd Command
	ok  bool
	now func() time.Time
}

// NewMailbox creates an empty mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{now: time.Now}
}

// Submit stamps kind with the current time and makes it the latest command.
// Every Submit produces a distinct value, even within one clock tick.
func (m *Mailbox) Submit(kind Kind) Command {
	m.mu.Lock()
	defer m.mu.Unlock()

	at := m.now()
	if m.ok && !at.After(m.cmd.IssuedAt) {
		at = m.cmd.IssuedAt.Add(time.Nanosecond)
	}
	m.cmd = Command{Kind: kind, IssuedAt: at}
	m.ok = true
	return m.cmd
}

// Put makes cmd the latest command as is.
func (m *Mailbox) Put(cmd Command) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cmd = cmd
	m.ok = true
}

// Latest implements Channel.
func (m *Mailbox) Latest() (Command, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cmd, m.ok
}

type newest []Channel

// Newest merges channels: Latest returns the most recently issued command
// across all of them.
func Newest(chs ...Channel) Channel {
	return newest(chs)
}

func (n newest) Latest() (Command, bool) {
	var best Command
	found := false
	for _, ch := range n {
		cmd, ok := ch.Latest()
		if !ok {
			continue
		}
		if !found || cmd.IssuedAt.After(best.IssuedAt) {
			best = cmd
			found = true
		}
	}
	return best, found
}
