/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"fmt"
	"time"
)

const tickInterval = time.Second

// broadcaster fans a message out to every subscriber of a room.
type broadcaster interface {
	broadcast(roomID string, msg any)
}

// scheduler runs fn every d until the returned cancel is called. fn must be
// run on the same task loop that owns room state.
type scheduler interface {
	every(d time.Duration, fn func()) (cancel func())
}

type roundTimer struct {
	deadline time.Time
	cancel   func()
}

// RoundController drives each room between Idle and Active and owns the one
// countdown a room may have.
type RoundController struct {
	rooms    *RoomStore
	out      broadcaster
	sched    scheduler
	now      func() time.Time
	interval time.Duration

	timers map[string]*roundTimer
}

func newRoundController(rooms *RoomStore, out broadcaster, sched scheduler, now func() time.Time) *RoundController {
	if now == nil {
		now = time.Now
	}

	return &RoundController{
		rooms:    rooms,
		out:      out,
		sched:    sched,
		now:      now,
		interval: tickInterval,
		timers:   make(map[string]*roundTimer),
	}
}

// StartRound makes player the current player of an idle room.
func (rc *RoundController) StartRound(roomID, player string) error {
	room, err := rc.rooms.findRoom(roomID)
	if err != nil {
		return err
	}

	if room.roundInProgress {
		return fmt.Errorf("%w: %s", ErrRoundActive, roomID)
	}

	room.roundInProgress = true
	room.currentPlayer = player

	return nil
}

// StopRound returns an active room to Idle and tells the room.
func (rc *RoundController) StopRound(roomID string) error {
	room, err := rc.rooms.findRoom(roomID)
	if err != nil {
		return err
	}

	if !room.roundInProgress {
		return fmt.Errorf("%w: %s", ErrRoundIdle, roomID)
	}

	room.roundInProgress = false
	room.currentPlayer = ""

	rc.out.broadcast(roomID, SimpleMessage{Type: evtRoundStop})

	return nil
}

// StartTimer arms a countdown of d for the room, replacing any running one.
func (rc *RoundController) StartTimer(roomID string, d time.Duration) error {
	if !rc.rooms.Exists(roomID) {
		return fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
	}

	rc.cancel(roomID)

	t := &roundTimer{
		deadline: rc.now().Add(d),
	}
	t.cancel = rc.sched.every(rc.interval, func() {
		rc.tick(roomID, t)
	})
	rc.timers[roomID] = t

	return nil
}

// StopTimer disarms the countdown, announces it and stops the round.
func (rc *RoundController) StopTimer(roomID string) error {
	if !rc.cancel(roomID) {
		return fmt.Errorf("%w: %s", ErrNoTimer, roomID)
	}

	rc.out.broadcast(roomID, SimpleMessage{Type: evtStopTimer})

	return rc.StopRound(roomID)
}

// Halt ends whatever is running in the room: the timer and its round if a
// timer is armed, otherwise just the round.
func (rc *RoundController) Halt(roomID string) error {
	if _, armed := rc.timers[roomID]; armed {
		return rc.StopTimer(roomID)
	}

	return rc.StopRound(roomID)
}

// Forget drops the room's timer without telling anyone. Used when the room
// itself is gone.
func (rc *RoundController) Forget(roomID string) {
	rc.cancel(roomID)
}

// Remaining reports the time left on the room's countdown.
func (rc *RoundController) Remaining(roomID string) (time.Duration, bool) {
	t, ok := rc.timers[roomID]
	if !ok {
		return 0, false
	}

	return max(t.deadline.Sub(rc.now()), 0), true
}

func (rc *RoundController) cancel(roomID string) bool {
	t, ok := rc.timers[roomID]
	if !ok {
		return false
	}

	t.cancel()
	delete(rc.timers, roomID)

	return true
}

func (rc *RoundController) tick(roomID string, t *roundTimer) {
	// A tick already queued when its timer was replaced or cancelled.
	if rc.timers[roomID] != t {
		return
	}

	if !rc.rooms.Exists(roomID) {
		rc.cancel(roomID)

		return
	}

	remaining := t.deadline.Sub(rc.now())
	if remaining <= 0 {
		_ = rc.StopTimer(roomID)

		return
	}

	rc.out.broadcast(roomID, TimerMessage{
		Type:      evtTimer,
		Remaining: remaining.Milliseconds(),
	})
}
