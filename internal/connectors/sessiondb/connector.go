package sessiondb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/chattail-cli/internal/core/domain"
	"github.com/custodia-labs/chattail-cli/internal/core/ports/driven"
	"github.com/custodia-labs/chattail-cli/internal/logger"
)

// Ensure Connector implements the interface.
var _ driven.Source = (*Connector)(nil)

// Type is the source kind identifier for the conversation database.
const Type = "sessiondb"

const (
	// conversationKeyPrefix prefixes keys whose value is a structured
	// conversation with its header list.
	conversationKeyPrefix = "composerData:"

	// bubbleKeyPrefix prefixes keys holding individual message bodies,
	// keyed as bubbleId:<conversation>:<message>.
	bubbleKeyPrefix = "bubbleId:"
)

// Connector tails conversations stored in an embedded SQLite key-value
// table. Each conversation is one unit; its cursor counts the headers
// already processed. The database is opened read-only per fetch and closed
// before the fetch returns, so a writer holding the file locked only costs
// the current tick.
type Connector struct {
	sourceID string
	dbPath   string
	interval time.Duration
}

// New creates a conversation database connector for the store at dbPath.
func New(sourceID, dbPath string, interval time.Duration) *Connector {
	return &Connector{
		sourceID: sourceID,
		dbPath:   dbPath,
		interval: interval,
	}
}

// Type returns the source kind identifier.
func (c *Connector) Type() string {
	return Type
}

// SourceID returns the configured source ID.
func (c *Connector) SourceID() string {
	return c.sourceID
}

// PollInterval returns the tailing cadence for this source. The store's
// read path is cheap compared to filesystem scans, so it polls faster.
func (c *Connector) PollInterval() time.Duration {
	return c.interval
}

// Validate checks the database file exists.
func (c *Connector) Validate(_ context.Context) error {
	info, err := os.Stat(c.dbPath)
	if err != nil {
		return fmt.Errorf("%w: %s", domain.ErrRootNotFound, c.dbPath)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", domain.ErrRootNotFound, c.dbPath)
	}
	return nil
}

// open opens the store read-only with a short busy timeout. Lock contention
// with a concurrent writer surfaces as an error and the tick is skipped.
func (c *Connector) open() (*sql.DB, error) {
	db, err := sql.Open("sqlite", "file:"+c.dbPath+"?mode=ro&_pragma=busy_timeout(100)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return db, nil
}

// conversation is the stored shape of a composerData value. Only the
// fields the tailer needs are decoded.
type conversation struct {
	ComposerID string   `json:"composerId"`
	Name       string   `json:"name"`
	Headers    []header `json:"fullConversationHeadersOnly"`
}

// header is one entry of a conversation's header list, in arrival order.
type header struct {
	BubbleID string `json:"bubbleId"`
	Type     int    `json:"type"`
}

// ListUnits scans the store for conversation entries. A conversation is
// surfaced only once it has at least one header.
func (c *Connector) ListUnits(ctx context.Context) ([]domain.Unit, error) {
	db, err := c.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx,
		"SELECT key, value FROM ItemTable WHERE key LIKE ?",
		conversationKeyPrefix+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("scanning conversations: %w", err)
	}
	defer rows.Close()

	var units []domain.Unit
	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scanning conversation row: %w", err)
		}

		var conv conversation
		if err := json.Unmarshal(value, &conv); err != nil {
			logger.Debug("skipping unparsable conversation %s: %v", key, err)
			continue
		}
		if len(conv.Headers) == 0 {
			continue
		}

		id := key[len(conversationKeyPrefix):]
		label := conv.Name
		if label == "" {
			label = id
		}
		units = append(units, domain.Unit{ID: id, Label: label})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversations: %w", err)
	}

	return units, nil
}

// HeadCursor returns the conversation's current header count, so a newly
// discovered conversation is tailed from its end.
func (c *Connector) HeadCursor(ctx context.Context, unit domain.Unit) (domain.Cursor, error) {
	db, err := c.open()
	if err != nil {
		return 0, err
	}
	defer db.Close()

	conv, err := c.loadConversation(ctx, db, unit.ID)
	if err != nil {
		return 0, err
	}
	return domain.Cursor(len(conv.Headers)), nil
}

// FetchNew resolves the headers past the processed count against their
// bubble bodies. A header whose body is missing or unparsable is dropped
// but still advances the cursor: an already-indexed header is not retried.
func (c *Connector) FetchNew(ctx context.Context, unit domain.Unit, cursor domain.Cursor) ([]domain.RawRecord, domain.Cursor, error) {
	db, err := c.open()
	if err != nil {
		return nil, cursor, err
	}
	defer db.Close()

	conv, err := c.loadConversation(ctx, db, unit.ID)
	if err != nil {
		return nil, cursor, err
	}

	total := domain.Cursor(len(conv.Headers))
	if total <= cursor {
		return nil, cursor, nil
	}

	var records []domain.RawRecord
	now := time.Now()
	for _, h := range conv.Headers[cursor:] {
		body, err := c.loadBubble(ctx, db, unit.ID, h.BubbleID)
		if err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				// Genuine I/O failure: abandon the batch, keep the old
				// cursor, retry the whole range next tick.
				return nil, cursor, err
			}
			logger.Debug("bubble %s missing in conversation %s", h.BubbleID, unit.ID)
			continue
		}
		if !json.Valid(body) {
			logger.Debug("bubble %s in conversation %s is not valid JSON", h.BubbleID, unit.ID)
			continue
		}

		records = append(records, domain.RawRecord{
			ID:         h.BubbleID,
			TypeCode:   h.Type,
			Data:       json.RawMessage(body),
			ObservedAt: now,
		})
	}

	return records, total, nil
}

// Close releases resources. The connector holds none between fetches.
func (c *Connector) Close() error {
	return nil
}

// loadConversation fetches and parses one conversation value.
func (c *Connector) loadConversation(ctx context.Context, db *sql.DB, conversationID string) (*conversation, error) {
	var value []byte
	err := db.QueryRowContext(ctx,
		"SELECT value FROM ItemTable WHERE key = ?",
		conversationKeyPrefix+conversationID,
	).Scan(&value)
	if err != nil {
		return nil, fmt.Errorf("loading conversation %s: %w", conversationID, err)
	}

	var conv conversation
	if err := json.Unmarshal(value, &conv); err != nil {
		return nil, fmt.Errorf("parsing conversation %s: %w", conversationID, err)
	}
	return &conv, nil
}

// loadBubble fetches one message body. Returns sql.ErrNoRows (wrapped) when
// the key is absent.
func (c *Connector) loadBubble(ctx context.Context, db *sql.DB, conversationID, bubbleID string) ([]byte, error) {
	var value []byte
	err := db.QueryRowContext(ctx,
		"SELECT value FROM ItemTable WHERE key = ?",
		bubbleKeyPrefix+conversationID+":"+bubbleID,
	).Scan(&value)
	if err != nil {
		return nil, fmt.Errorf("loading bubble %s: %w", bubbleID, err)
	}
	return value, nil
}
