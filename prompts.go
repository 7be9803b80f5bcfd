/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"fmt"
	"slices"

	"github.com/google/uuid"
)

// Prompt is one guessable entry in a room's deck.
type Prompt struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Drawn bool   `json:"drawn"`
}

// GameSnapshot pairs the deck with both teams, as sent on draw and reset.
type GameSnapshot struct {
	Prompts []Prompt  `json:"prompts"`
	Teams   TeamsView `json:"teams"`
}

// DrawResult is the outcome of DrawPrompt. Found and AlreadyDrawn describe
// the prompt before the draw; the point is awarded either way.
type DrawResult struct {
	GameSnapshot

	Found        bool
	AlreadyDrawn bool
}

func (r *Room) snapshot() GameSnapshot {
	return GameSnapshot{
		Prompts: slices.Clone(r.prompts),
		Teams:   r.Teams(),
	}
}

func (s *RoomStore) findRoom(roomID string) (*Room, error) {
	room, ok := s.rooms[roomID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
	}

	return room, nil
}

// AddPrompt appends an undrawn prompt with a fresh id.
func (s *RoomStore) AddPrompt(roomID, text string) (Prompt, error) {
	room, err := s.findRoom(roomID)
	if err != nil {
		return Prompt{}, err
	}

	p := Prompt{
		ID:   uuid.NewString(),
		Text: text,
	}
	room.prompts = append(room.prompts, p)

	return p, nil
}

func (s *RoomStore) DeletePrompt(roomID, promptID string) error {
	room, err := s.findRoom(roomID)
	if err != nil {
		return err
	}

	i := promptIndex(room.prompts, promptID)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrPromptNotFound, promptID)
	}

	room.prompts = slices.Delete(room.prompts, i, i+1)

	return nil
}

// Prompts returns a copy of the deck in insertion order.
func (s *RoomStore) Prompts(roomID string) ([]Prompt, error) {
	room, err := s.findRoom(roomID)
	if err != nil {
		return nil, err
	}

	return slices.Clone(room.prompts), nil
}

// DrawPrompt marks promptID as drawn and gives team a point.
//
// Neither an unknown nor an already drawn prompt blocks the point; the
// result reports both cases so callers can tell them apart.
func (s *RoomStore) DrawPrompt(roomID, promptID string, team TeamID) (DrawResult, error) {
	room, err := s.findRoom(roomID)
	if err != nil {
		return DrawResult{}, err
	}

	t := room.team(team)
	if t == nil {
		return DrawResult{}, fmt.Errorf("%w: %q", ErrUnknownTeam, team)
	}

	var res DrawResult

	if i := promptIndex(room.prompts, promptID); i >= 0 {
		res.Found = true
		res.AlreadyDrawn = room.prompts[i].Drawn
		room.prompts[i].Drawn = true
	}

	t.Points++
	room.lastActive = s.now()
	res.GameSnapshot = room.snapshot()

	return res, nil
}

// ResetPrompts clears every drawn flag so the deck can be played again.
func (s *RoomStore) ResetPrompts(roomID string) error {
	room, err := s.findRoom(roomID)
	if err != nil {
		return err
	}

	for i := range room.prompts {
		room.prompts[i].Drawn = false
	}

	return nil
}

// ResetGame empties the deck and zeroes both scores.
func (s *RoomStore) ResetGame(roomID string) (GameSnapshot, error) {
	room, err := s.findRoom(roomID)
	if err != nil {
		return GameSnapshot{}, err
	}

	room.prompts = []Prompt{}
	room.teamA.Points = 0
	room.teamB.Points = 0

	return room.snapshot(), nil
}

func promptIndex(prompts []Prompt, id string) int {
	return slices.IndexFunc(prompts, func(p Prompt) bool {
		return p.ID == id
	})
}
