/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"golang.org/x/time/rate"
)

const (
	sendBuffer     = 32
	taskBuffer     = 256
	maxMessageSize = 64 << 10
)

var errHubStopped = errors.New("hub stopped")

type Client struct {
	id      string
	conn    *websocket.Conn
	send    chan any
	limiter *rate.Limiter

	// room this client receives broadcasts for, "" when none
	room string
}

// Hub is the session gateway. A single goroutine (run) drains the task
// queue and is the only one to touch rooms, users, rounds and clients.
type Hub struct {
	cfg *Config

	tasks   chan func()
	stopped chan struct{}

	clients map[*Client]bool
	subs    map[string]map[*Client]bool

	rooms  *RoomStore
	users  *UserRegistry
	rounds *RoundController
}

func newHub(cfg *Config) *Hub {
	h := &Hub{
		cfg:     cfg,
		tasks:   make(chan func(), taskBuffer),
		stopped: make(chan struct{}),
		clients: make(map[*Client]bool),
		subs:    make(map[string]map[*Client]bool),
		rooms:   newRoomStore(time.Now),
		users:   newUserRegistry(),
	}
	h.rounds = newRoundController(h.rooms, h, h, time.Now)

	return h
}

func (h *Hub) run(ctx context.Context) {
	defer close(h.stopped)

	var reap <-chan time.Time
	if h.cfg.sessionTimeout > 0 {
		ticker := time.NewTicker(h.cfg.sessionTimeout / 2)
		defer ticker.Stop()
		reap = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			h.closeAll()

			return
		case fn := <-h.tasks:
			fn()
		case <-reap:
			h.reapIdle(time.Now().Add(-h.cfg.sessionTimeout))
		}
	}
}

// post queues fn for the task loop. It reports false once the loop is gone.
func (h *Hub) post(fn func()) bool {
	select {
	case h.tasks <- fn:
		return true
	case <-h.stopped:
		return false
	}
}

// query runs fn on the task loop and waits for its result. The result
// channel is buffered so an abandoned query never blocks the loop.
func query[T any](ctx context.Context, h *Hub, fn func() T) (T, error) {
	var zero T

	result := make(chan T, 1)
	if !h.post(func() { result <- fn() }) {
		return zero, errHubStopped
	}

	select {
	case v := <-result:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-h.stopped:
		return zero, errHubStopped
	}
}

// RoomExists answers the out-of-band room check.
func (h *Hub) RoomExists(ctx context.Context, roomID string) (bool, error) {
	return query(ctx, h, func() bool {
		return h.rooms.Exists(roomID)
	})
}

// every implements scheduler: fn is posted to the task loop on each tick.
func (h *Hub) every(d time.Duration, fn func()) func() {
	stop := make(chan struct{})

	go func() {
		ticker := time.NewTicker(d)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-h.stopped:
				return
			case <-ticker.C:
				select {
				case h.tasks <- fn:
				case <-stop:
					return
				case <-h.stopped:
					return
				}
			}
		}
	}()

	var once sync.Once

	return func() {
		once.Do(func() {
			close(stop)
		})
	}
}

// broadcast implements broadcaster.
func (h *Hub) broadcast(roomID string, msg any) {
	for c := range h.subs[roomID] {
		h.sendTo(c, msg)
	}
}

func (h *Hub) sendTo(c *Client, msg any) {
	if !h.clients[c] {
		return
	}

	select {
	case c.send <- msg:
	default:
		logf(h.cfg, "ERROR: Dropping slow client %s", c.id)
		h.drop(c)
	}
}

// drop stops writing to c. Its read pump notices the closed socket and
// queues the disconnect.
func (h *Hub) drop(c *Client) {
	if !h.clients[c] {
		return
	}

	h.unsubscribe(c)
	delete(h.clients, c)
	close(c.send)
}

func (h *Hub) subscribe(c *Client, roomID string) {
	h.unsubscribe(c)

	if h.subs[roomID] == nil {
		h.subs[roomID] = make(map[*Client]bool)
	}
	h.subs[roomID][c] = true
	c.room = roomID
}

func (h *Hub) unsubscribe(c *Client) {
	if c.room == "" {
		return
	}

	delete(h.subs[c.room], c)
	if len(h.subs[c.room]) == 0 {
		delete(h.subs, c.room)
	}
	c.room = ""
}

func (h *Hub) closeAll() {
	for c := range h.clients {
		h.drop(c)
	}
}

// reapIdle removes rooms that were created but have sat empty since cutoff.
// Rooms with members are left to their members.
func (h *Hub) reapIdle(cutoff time.Time) {
	for _, id := range h.rooms.Idle(cutoff) {
		room, ok := h.rooms.Find(id)
		if !ok || room.UserCount() > 0 {
			continue
		}

		h.rounds.Forget(id)
		h.rooms.Delete(id)

		logf(h.cfg, "ROOMS: Reaped idle room %s", id)
	}
}

func (h *Hub) dispatch(c *Client, msg ClientMessage) {
	if msg.RoomID != "" {
		h.rooms.Touch(msg.RoomID)
	}

	switch msg.Type {
	case cmdCreateRoom:
		h.createRoom(c, msg)
	case cmdJoinRoom:
		h.joinRoom(c, msg)
	case cmdLeaveRoom:
		h.leaveRoom(c, msg)
	case cmdChangeTeam:
		h.changeTeam(c, msg)
	case cmdStartRound:
		h.startRound(c, msg)
	case cmdStopRound:
		h.stopRound(msg)
	case cmdResetGame:
		h.resetGame(msg)
	case cmdAddPrompt:
		h.addPrompt(msg)
	case cmdDeletePrompt:
		h.deletePrompt(msg)
	case cmdDrawPrompt:
		h.drawPrompt(msg)
	case cmdResetPrompts:
		h.resetPrompts(msg)
	default:
		logf(h.cfg, "ERROR: Unknown message type %q from %s", msg.Type, c.id)
	}
}

func (h *Hub) createRoom(c *Client, msg ClientMessage) {
	id := h.rooms.UniqueID(msg.RoomID)
	h.rooms.Create(id)

	logf(h.cfg, "ROOMS: Created room %s (requested %q)", id, msg.RoomID)

	h.sendTo(c, CreateRoomMessage{
		Type:   evtCreateRoom,
		Status: "ok",
		RoomID: id,
	})
}

func (h *Hub) joinRoom(c *Client, msg ClientMessage) {
	room, ok := h.rooms.Find(msg.RoomID)
	if !ok {
		h.sendTo(c, SimpleMessage{
			Type:    evtNotFound,
			Message: "That room does not exist.",
		})

		return
	}

	if u, ok := h.users.Get(c.id); ok && u.Room != room.ID {
		h.leave(c)
	}

	if _, ok := h.users.Get(c.id); !ok {
		u := h.users.Join(c.id, msg.Name, room.ID)
		team := h.rooms.JoinTeam(room, u)

		logf(h.cfg, "ROOMS: Player %q joined team %s in %s", u.Username, team, room.ID)
	}

	h.subscribe(c, room.ID)

	h.broadcast(room.ID, RoomUsersMessage{
		Type:  evtRoomUsers,
		Teams: room.Teams(),
	})

	prompts, _ := h.rooms.Prompts(room.ID)
	h.sendTo(c, PromptListMessage{
		Type:    evtAllPrompts,
		Prompts: prompts,
	})

	if room.roundInProgress {
		h.sendTo(c, RoundStartMessage{
			Type:     evtRoundStart,
			Username: room.currentPlayer,
		})

		if remaining, ok := h.rounds.Remaining(room.ID); ok {
			h.sendTo(c, TimerMessage{
				Type:      evtTimer,
				Remaining: remaining.Milliseconds(),
			})
		}
	}
}

func (h *Hub) leaveRoom(c *Client, msg ClientMessage) {
	if u, ok := h.users.Get(c.id); ok && msg.RoomID != "" && u.Room != msg.RoomID {
		logf(h.cfg, "ERROR: %s asked to leave %s but is in %s", c.id, msg.RoomID, u.Room)

		return
	}

	h.leave(c)
}

// leave takes c out of its room. The room is deleted if it empties, and the
// round is stopped if c was the one playing.
func (h *Hub) leave(c *Client) {
	u, ok := h.users.Get(c.id)
	if !ok {
		return
	}

	h.users.Leave(c.id)
	h.unsubscribe(c)

	room, ok := h.rooms.Find(u.Room)
	if !ok {
		return
	}

	wasPlaying := room.roundInProgress && room.currentPlayer == u.Username

	emptied, err := h.rooms.LeaveTeam(room, c.id)
	if err != nil {
		logf(h.cfg, "ERROR: %v", err)

		return
	}

	logf(h.cfg, "ROOMS: Player %q left %s", u.Username, room.ID)

	if emptied {
		h.rounds.Forget(room.ID)

		logf(h.cfg, "ROOMS: Deleted room %s (empty)", room.ID)

		return
	}

	h.broadcast(room.ID, RoomUsersMessage{
		Type:  evtRoomUsers,
		Teams: room.Teams(),
	})

	if wasPlaying {
		if err := h.rounds.Halt(room.ID); err != nil {
			logf(h.cfg, "ERROR: %v", err)
		}
	}
}

func (h *Hub) disconnect(c *Client) {
	h.leave(c)
	h.drop(c)
}

func (h *Hub) changeTeam(c *Client, msg ClientMessage) {
	room, ok := h.rooms.Find(msg.RoomID)
	if !ok {
		return
	}

	team, ok := parseTeam(msg.Team)
	if !ok {
		logf(h.cfg, "ERROR: %v: %q", ErrUnknownTeam, msg.Team)

		return
	}

	if err := h.rooms.ChangeTeam(room, c.id, team); err != nil {
		logf(h.cfg, "ERROR: %v", err)

		return
	}

	h.broadcast(room.ID, RoomUsersMessage{
		Type:  evtRoomUsers,
		Teams: room.Teams(),
	})
}

func (h *Hub) startRound(c *Client, msg ClientMessage) {
	name := msg.Name
	if u, ok := h.users.Get(c.id); ok && name == "" {
		name = u.Username
	}

	if err := h.rounds.StartRound(msg.RoomID, name); err != nil {
		logf(h.cfg, "ERROR: %v", err)

		return
	}

	if err := h.rounds.StartTimer(msg.RoomID, h.cfg.roundDuration); err != nil {
		logf(h.cfg, "ERROR: %v", err)
	}

	logf(h.cfg, "ROUND: %q started a round for team %s in %s", name, msg.Team, msg.RoomID)

	h.broadcast(msg.RoomID, RoundStartMessage{
		Type:     evtRoundStart,
		Username: name,
		Team:     msg.Team,
	})

	h.sendTo(c, SimpleMessage{Type: evtCurrentlyPlaying})
}

func (h *Hub) stopRound(msg ClientMessage) {
	if err := h.rounds.Halt(msg.RoomID); err != nil {
		logf(h.cfg, "ERROR: %v", err)

		return
	}

	logf(h.cfg, "ROUND: Stopped round in %s", msg.RoomID)
}

func (h *Hub) resetGame(msg ClientMessage) {
	snap, err := h.rooms.ResetGame(msg.RoomID)
	if err != nil {
		logf(h.cfg, "ERROR: %v", err)

		return
	}

	h.broadcast(msg.RoomID, GameStateMessage{
		Type:         evtGameReset,
		GameSnapshot: snap,
	})
}

func (h *Hub) addPrompt(msg ClientMessage) {
	if _, err := h.rooms.AddPrompt(msg.RoomID, msg.Prompt); err != nil {
		logf(h.cfg, "ERROR: %v", err)

		return
	}

	h.broadcastPrompts(msg.RoomID)
}

func (h *Hub) deletePrompt(msg ClientMessage) {
	if err := h.rooms.DeletePrompt(msg.RoomID, msg.PromptID); err != nil {
		logf(h.cfg, "ERROR: %v", err)

		return
	}

	h.broadcastPrompts(msg.RoomID)
}

func (h *Hub) drawPrompt(msg ClientMessage) {
	team, ok := parseTeam(msg.Team)
	if !ok {
		logf(h.cfg, "ERROR: %v: %q", ErrUnknownTeam, msg.Team)

		return
	}

	res, err := h.rooms.DrawPrompt(msg.RoomID, msg.PromptID, team)
	if err != nil {
		logf(h.cfg, "ERROR: %v", err)

		return
	}

	switch {
	case !res.Found:
		logf(h.cfg, "ROUND: Team %s scored unknown prompt %s in %s", msg.Team, msg.PromptID, msg.RoomID)
	case res.AlreadyDrawn:
		logf(h.cfg, "ROUND: Team %s scored prompt %s twice in %s", msg.Team, msg.PromptID, msg.RoomID)
	}

	h.broadcast(msg.RoomID, GameStateMessage{
		Type:         evtPromptDrawn,
		GameSnapshot: res.GameSnapshot,
	})
}

func (h *Hub) resetPrompts(msg ClientMessage) {
	if err := h.rooms.ResetPrompts(msg.RoomID); err != nil {
		logf(h.cfg, "ERROR: %v", err)

		return
	}

	h.broadcastPrompts(msg.RoomID)
}

func (h *Hub) broadcastPrompts(roomID string) {
	prompts, err := h.rooms.Prompts(roomID)
	if err != nil {
		return
	}

	h.broadcast(roomID, PromptListMessage{
		Type:    evtAllPrompts,
		Prompts: prompts,
	})
}

func newConnID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}

	return hex.EncodeToString(buf)
}

func newUpgrader(cfg *Config) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return cfg.originAllowed(r.Header.Get("Origin"))
		},
	}
}

// serveWS upgrades the request and attaches the connection to the hub.
func serveWS(cfg *Config, h *Hub) httprouter.Handle {
	upgrader := newUpgrader(cfg)

	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		id := newConnID()
		if id == "" {
			http.Error(w, "unable to assign connection id", http.StatusInternalServerError)

			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logf(cfg, "ERROR: Upgrade failed for %s: %v", realIP(r), err)

			return
		}

		conn.SetReadLimit(maxMessageSize)

		c := &Client{
			id:      id,
			conn:    conn,
			send:    make(chan any, sendBuffer),
			limiter: rate.NewLimiter(rate.Limit(cfg.rateLimit), max(1, int(cfg.rateLimit))),
		}

		if !h.post(func() { h.clients[c] = true }) {
			_ = conn.Close()

			return
		}

		logf(cfg, "SERVE: Connection %s from %s", id, realIP(r))

		go c.writePump()
		c.readPump(h)
	}
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		h.post(func() { h.disconnect(c) })
		_ = c.conn.Close()
	}()

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		if !c.limiter.Allow() {
			h.post(func() {
				h.sendTo(c, SimpleMessage{
					Type:    evtRateLimited,
					Message: "Too many messages; slow down.",
				})
			})

			continue
		}

		if !h.post(func() { h.dispatch(c, msg) }) {
			return
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(timeout))
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}

	_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
