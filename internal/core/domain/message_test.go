package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRoleFromTypeCode(t *testing.T) {
	tests := []struct {
		name string
		code int
		want Role
	}{
		{"type 1 is user", 1, RoleUser},
		{"type 2 is assistant", 2, RoleAssistant},
		{"type 0 is assistant", 0, RoleAssistant},
		{"negative is assistant", -1, RoleAssistant},
		{"large code is assistant", 42, RoleAssistant},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RoleFromTypeCode(tt.code))
		})
	}
}

func TestMessage_Valid(t *testing.T) {
	now := time.Now()

	t.Run("valid message", func(t *testing.T) {
		msg := Message{ID: "m1", Role: RoleUser, Text: "hello", ObservedAt: now}
		assert.True(t, msg.Valid())
	})

	t.Run("empty text is invalid", func(t *testing.T) {
		msg := Message{ID: "m1", Role: RoleUser, Text: ""}
		assert.False(t, msg.Valid())
	})

	t.Run("whitespace-only text is invalid", func(t *testing.T) {
		msg := Message{ID: "m1", Role: RoleAssistant, Text: " \t\n "}
		assert.False(t, msg.Valid())
	})

	t.Run("missing ID is invalid", func(t *testing.T) {
		msg := Message{Role: RoleUser, Text: "hello"}
		assert.False(t, msg.Valid())
	})
}
