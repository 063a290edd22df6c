package domain

import (
	"strings"
	"time"
)

// Role identifies which side of a conversation produced a message.
type Role string

const (
	// RoleUser marks a message written by the human operator.
	RoleUser Role = "user"

	// RoleAssistant marks a message written by the agent.
	RoleAssistant Role = "assistant"
)

// RoleFromTypeCode maps a stored header type code to a Role.
// Type code 1 is a user turn; every other value is treated as assistant.
func RoleFromTypeCode(code int) Role {
	if code == 1 {
		return RoleUser
	}
	return RoleAssistant
}

// Message is the canonical, normalised representation of one chat turn.
// It is what the tailing engine hands to the emitter; the engine does not
// retain messages after emission.
type Message struct {
	// ID is unique within the unit that produced the message.
	ID string

	// Role is who wrote the message.
	Role Role

	// Text is the message body. Never empty or whitespace-only at
	// emission time; normalisers drop records that trim to nothing.
	Text string

	// ObservedAt is when the engine first saw the message, not when the
	// source recorded it.
	ObservedAt time.Time
}

// Valid reports whether the message satisfies the emission invariant.
func (m Message) Valid() bool {
	return m.ID != "" && strings.TrimSpace(m.Text) != ""
}
