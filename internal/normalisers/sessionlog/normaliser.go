package sessionlog

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/custodia-labs/chattail-cli/internal/connectors/sessionlog"
	"github.com/custodia-labs/chattail-cli/internal/core/domain"
	"github.com/custodia-labs/chattail-cli/internal/core/ports/driven"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// sentinelPrefixes mark injected system or metadata text inside user
// records. Items starting with one of these are dropped, not emitted.
var sentinelPrefixes = []string{
	"<",
	"This may or may not",
}

// Normaliser maps session log records to canonical messages. A record's
// message content can hold several text items; each non-empty item becomes
// one message.
type Normaliser struct{}

// New creates a session log normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SourceType returns the source kind this normaliser handles.
func (n *Normaliser) SourceType() string {
	return sessionlog.Type
}

// record is the decoded shape of one transcript line.
type record struct {
	Type    string `json:"type"`
	Message *struct {
		Content json.RawMessage `json:"content"`
	} `json:"message"`
}

// contentItem is one entry of a record's content list.
type contentItem struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Normalise emits one message per non-empty text item of a user or
// assistant record. User items starting with a sentinel prefix are dropped.
// Other record types (tool results, summaries, ...) yield nothing, as do
// payloads that fail to decode.
func (n *Normaliser) Normalise(rec domain.RawRecord) ([]domain.Message, error) {
	var r record
	if err := json.Unmarshal(rec.Data, &r); err != nil {
		return nil, nil
	}
	if r.Message == nil {
		return nil, nil
	}

	var role domain.Role
	switch r.Type {
	case "user":
		role = domain.RoleUser
	case "assistant":
		role = domain.RoleAssistant
	default:
		return nil, nil
	}

	var msgs []domain.Message
	for i, text := range textItems(r.Message.Content) {
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if role == domain.RoleUser && hasSentinelPrefix(text) {
			continue
		}

		// Parts past the first get a suffixed ID so a multi-part record
		// stays unique within its unit.
		id := rec.ID
		if i > 0 {
			id = fmt.Sprintf("%s#%d", rec.ID, i)
		}

		msgs = append(msgs, domain.Message{
			ID:         id,
			Role:       role,
			Text:       text,
			ObservedAt: rec.ObservedAt,
		})
	}

	return msgs, nil
}

// textItems extracts the text entries of a content payload. Content is
// either a list of typed items or, in older records, a bare string.
func textItems(content json.RawMessage) []string {
	if len(content) == 0 {
		return nil
	}

	var items []contentItem
	if err := json.Unmarshal(content, &items); err == nil {
		var texts []string
		for _, item := range items {
			if item.Type == "text" {
				texts = append(texts, item.Text)
			}
		}
		return texts
	}

	var plain string
	if err := json.Unmarshal(content, &plain); err == nil {
		return []string{plain}
	}

	return nil
}

// hasSentinelPrefix reports whether trimmed text starts with one of the
// injected-metadata markers.
func hasSentinelPrefix(text string) bool {
	for _, prefix := range sentinelPrefixes {
		if strings.HasPrefix(text, prefix) {
			return true
		}
	}
	return false
}
