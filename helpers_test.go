package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time {
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.t = c.t.Add(d)
}

// fakeScheduler records scheduled callbacks; tests fire them by hand.
type fakeScheduler struct {
	fns       []func()
	cancelled int
}

func (s *fakeScheduler) every(_ time.Duration, fn func()) func() {
	s.fns = append(s.fns, fn)

	return func() {
		s.cancelled++
	}
}

func (s *fakeScheduler) fire(i int) {
	s.fns[i]()
}

func (s *fakeScheduler) fireLatest() {
	s.fns[len(s.fns)-1]()
}

type sent struct {
	roomID string
	msg    any
}

type recorder struct {
	sent []sent
}

func (r *recorder) broadcast(roomID string, msg any) {
	r.sent = append(r.sent, sent{roomID: roomID, msg: msg})
}

func (r *recorder) types() []string {
	out := make([]string, 0, len(r.sent))
	for _, s := range r.sent {
		out = append(out, msgType(s.msg))
	}

	return out
}

func msgType(msg any) string {
	switch m := msg.(type) {
	case SimpleMessage:
		return m.Type
	case CreateRoomMessage:
		return m.Type
	case RoomUsersMessage:
		return m.Type
	case PromptListMessage:
		return m.Type
	case RoundStartMessage:
		return m.Type
	case GameStateMessage:
		return m.Type
	case TimerMessage:
		return m.Type
	}

	return ""
}

func usernames(members []User) []string {
	out := make([]string, 0, len(members))
	for _, u := range members {
		out = append(out, u.Username)
	}

	return out
}

// assertPartitioned checks that the room's users and its two teams hold
// exactly the same people, each in one team.
func assertPartitioned(t *testing.T, room *Room) {
	t.Helper()

	seen := make(map[string]int)
	for _, u := range room.teamA.Members {
		seen[u.ID]++
	}
	for _, u := range room.teamB.Members {
		seen[u.ID]++
	}

	assert.Equal(t, len(room.users), len(room.teamA.Members)+len(room.teamB.Members))
	assert.Len(t, seen, len(room.users))

	for id, n := range seen {
		assert.Equal(t, 1, n, "user %s is in both teams", id)
		assert.Contains(t, room.users, id)
	}
}
