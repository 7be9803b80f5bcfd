/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

// Inbound message types
const (
	cmdCreateRoom   = "createRoom"
	cmdJoinRoom     = "joinRoom"
	cmdLeaveRoom    = "leaveRoom"
	cmdChangeTeam   = "changeTeam"
	cmdStartRound   = "startRound"
	cmdStopRound    = "stopRound"
	cmdResetGame    = "resetGame"
	cmdAddPrompt    = "addPrompt"
	cmdDeletePrompt = "deletePrompt"
	cmdDrawPrompt   = "drawPrompt"
	cmdResetPrompts = "resetPrompts"
)

// Outbound message types
const (
	evtCreateRoom       = "createRoom"
	evtNotFound         = "notFound"
	evtRoomUsers        = "roomUsers"
	evtAllPrompts       = "allPrompts"
	evtRoundStart       = "roundStart"
	evtCurrentlyPlaying = "currentlyPlaying"
	evtRoundStop        = "roundStop"
	evtGameReset        = "gameReset"
	evtPromptDrawn      = "promptDrawn"
	evtTimer            = "timer"
	evtStopTimer        = "stopTimer"
	evtRateLimited      = "rateLimited"
)

// ClientMessage is every command a client can send. Which fields are
// read depends on Type.
type ClientMessage struct {
	Type     string `json:"type"`
	RoomID   string `json:"roomId,omitempty"`
	Name     string `json:"name,omitempty"`     // joinRoom / startRound
	Team     string `json:"team,omitempty"`     // changeTeam / startRound / drawPrompt
	Prompt   string `json:"prompt,omitempty"`   // addPrompt
	PromptID string `json:"promptId,omitempty"` // deletePrompt / drawPrompt
}

// SimpleMessage is for notifications without a payload ("roundStop", "notFound", etc.)
type SimpleMessage struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

// CreateRoomMessage acknowledges createRoom with the id actually assigned.
type CreateRoomMessage struct {
	Type   string `json:"type"`   // "createRoom"
	Status string `json:"status"` // "ok"
	RoomID string `json:"id"`
}

type RoomUsersMessage struct {
	Type  string    `json:"type"` // "roomUsers"
	Teams TeamsView `json:"teams"`
}

type PromptListMessage struct {
	Type    string   `json:"type"` // "allPrompts"
	Prompts []Prompt `json:"prompts"`
}

type RoundStartMessage struct {
	Type     string `json:"type"` // "roundStart"
	Username string `json:"username"`
	Team     string `json:"team,omitempty"`
}

// GameStateMessage carries the deck and both teams ("gameReset", "promptDrawn").
type GameStateMessage struct {
	Type string `json:"type"`
	GameSnapshot
}

// TimerMessage is the once-a-second countdown of an active round.
type TimerMessage struct {
	Type      string `json:"type"`      // "timer"
	Remaining int64  `json:"remaining"` // milliseconds
}
