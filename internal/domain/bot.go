// Package domain contains core domain types for the bot worker.
package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// BotStatus is the lifecycle state of a token bot record.
type BotStatus string

const (
	// StatusPending means the bot was created but activation has not completed.
	StatusPending BotStatus = "PENDING"
	// StatusActive means the bot should be running.
	StatusActive BotStatus = "ACTIVE"
	// StatusError means the worker failed to load the bot.
	StatusError BotStatus = "ERROR"
)

// Valid reports whether s is a known status value.
func (s BotStatus) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusError:
		return true
	}
	return false
}

// Persona describes how a token's bot should present itself.
// SystemPrompt is user-owned and passed through verbatim.
type Persona struct {
	SystemPrompt    string   `json:"system_prompt"`
	Traits          []string `json:"traits,omitempty"`
	Tone            string   `json:"tone"`
	AllowedTopics   []string `json:"allowed_topics,omitempty"`
	ForbiddenTopics []string `json:"forbidden_topics,omitempty"`
}

// ParsePersona decodes the persona JSON stored alongside a bot record.
func ParsePersona(raw string) (Persona, error) {
	var p Persona
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return Persona{}, fmt.Errorf("parse persona: %w", err)
	}
	return p, nil
}

// BotRecord is one token bot as persisted in the registry.
// Records are created by the launchpad's activation flow; the worker
// only reads them and flips status to ERROR on load failure.
type BotRecord struct {
	TokenMint           string    `json:"token_mint"`
	Status              BotStatus `json:"status"`
	EncryptedCredential string    `json:"-"`
	PersonaJSON         string    `json:"-"`
	LastError           string    `json:"last_error,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// IsActive reports whether the record should have a live session.
func (b *BotRecord) IsActive() bool {
	return b.Status == StatusActive
}
