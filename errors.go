/*
Copyright © 2025 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"log"
	"time"
)

var (
	ErrRoomNotFound   = errors.New("room not found")
	ErrPromptNotFound = errors.New("prompt not found")
	ErrUnknownTeam    = errors.New("unknown team")
	ErrNotMember      = errors.New("user is not a member")
	ErrRoundActive    = errors.New("round already in progress")
	ErrRoundIdle      = errors.New("no round in progress")
	ErrNoTimer        = errors.New("no timer armed")
)

func logf(cfg *Config, format string, args ...any) {
	if cfg == nil || !cfg.verbose {
		return
	}

	log.Printf("%s | "+format, append([]any{time.Now().Format(logDate)}, args...)...)
}
