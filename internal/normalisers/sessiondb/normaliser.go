package sessiondb

import (
	"encoding/json"
	"strings"

	"github.com/custodia-labs/chattail-cli/internal/connectors/sessiondb"
	"github.com/custodia-labs/chattail-cli/internal/core/domain"
	"github.com/custodia-labs/chattail-cli/internal/core/ports/driven"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser maps conversation database bubbles to canonical messages.
// A bubble carries a single text field; the role comes from the header
// type code the connector recorded on the raw record.
type Normaliser struct{}

// New creates a conversation database normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SourceType returns the source kind this normaliser handles.
func (n *Normaliser) SourceType() string {
	return sessiondb.Type
}

// bubble is the decoded shape of one message body.
type bubble struct {
	Text string `json:"text"`
}

// Normalise emits the bubble's text when it is non-empty after trimming.
// Unparsable bodies and empty bubbles yield nothing.
func (n *Normaliser) Normalise(rec domain.RawRecord) ([]domain.Message, error) {
	var b bubble
	if err := json.Unmarshal(rec.Data, &b); err != nil {
		return nil, nil
	}

	text := strings.TrimSpace(b.Text)
	if text == "" {
		return nil, nil
	}

	return []domain.Message{{
		ID:         rec.ID,
		Role:       domain.RoleFromTypeCode(rec.TypeCode),
		Text:       text,
		ObservedAt: rec.ObservedAt,
	}}, nil
}
