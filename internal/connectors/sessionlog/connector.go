package sessionlog

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/custodia-labs/chattail-cli/internal/core/domain"
	"github.com/custodia-labs/chattail-cli/internal/core/ports/driven"
	"github.com/custodia-labs/chattail-cli/internal/logger"
)

// Ensure Connector implements the interface.
var _ driven.Source = (*Connector)(nil)

// Type is the source kind identifier for session log directories.
const Type = "sessionlog"

// logSuffix is the file name suffix of transcript files.
const logSuffix = ".jsonl"

// Connector tails newline-delimited JSON transcript files under a root
// directory. Each file is one unit; its cursor is a byte offset. Files are
// opened per fetch and closed before the fetch returns, so no handle is
// held across the loop's suspension.
type Connector struct {
	sourceID string
	rootPath string
	interval time.Duration
}

// New creates a session log connector rooted at rootPath.
func New(sourceID, rootPath string, interval time.Duration) *Connector {
	return &Connector{
		sourceID: sourceID,
		rootPath: rootPath,
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

// PollInterval returns the tailing cadence for this source.
func (c *Connector) PollInterval() time.Duration {
	return c.interval
}

// Validate checks the root directory exists and is readable.
func (c *Connector) Validate(_ context.Context) error {
	info, err := os.Stat(c.rootPath)
	if err != nil {
		return fmt.Errorf("%w: %s", domain.ErrRootNotFound, c.rootPath)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", domain.ErrRootNotFound, c.rootPath)
	}
	return nil
}

// ListUnits enumerates transcript files under the root. The traversal uses
// an explicit work stack so arbitrarily deep trees cannot exhaust the call
// stack. Directories that fail to read are skipped for this tick.
func (c *Connector) ListUnits(_ context.Context) ([]domain.Unit, error) {
	var units []domain.Unit

	stack := []string{c.rootPath}
	for len(stack) > 0 {
		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries, err := os.ReadDir(dir)
		if err != nil {
			if dir == c.rootPath {
				return nil, fmt.Errorf("reading root %s: %w", dir, err)
			}
			logger.Debug("skipping unreadable directory %s: %v", dir, err)
			continue
		}

		for _, entry := range entries {
			path := filepath.Join(dir, entry.Name())
			if entry.IsDir() {
				stack = append(stack, path)
				continue
			}
			if strings.HasSuffix(entry.Name(), logSuffix) {
				units = append(units, domain.Unit{
					ID:    path,
					Label: filepath.Base(dir),
				})
			}
		}
	}

	return units, nil
}

// HeadCursor returns the file's current size. A unit seen for the first
// time starts tailing here; pre-existing content is never replayed.
func (c *Connector) HeadCursor(_ context.Context, unit domain.Unit) (domain.Cursor, error) {
	info, err := os.Stat(unit.ID)
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", unit.ID, err)
	}
	return domain.Cursor(info.Size()), nil
}

// FetchNew reads complete lines appended past the byte-offset cursor. A
// trailing line without a terminating newline is left unread; the returned
// cursor stops before it so the line is retried once a later tick finds it
// terminated. Lines that fail to parse, and records carrying the agent
// initialisation marker, are dropped without error.
func (c *Connector) FetchNew(_ context.Context, unit domain.Unit, cursor domain.Cursor) ([]domain.RawRecord, domain.Cursor, error) {
	f, err := os.Open(unit.ID)
	if err != nil {
		return nil, cursor, fmt.Errorf("opening %s: %w", unit.ID, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, cursor, fmt.Errorf("stat %s: %w", unit.ID, err)
	}
	if domain.Cursor(info.Size()) <= cursor {
		// Nothing new. A shrunken file also lands here: cursors never
		// move backwards, so a rewritten file is ignored until it grows
		// past its old size again.
		return nil, cursor, nil
	}

	if _, err := f.Seek(int64(cursor), io.SeekStart); err != nil {
		return nil, cursor, fmt.Errorf("seeking %s to %d: %w", unit.ID, cursor, err)
	}

	var records []domain.RawRecord
	offset := int64(cursor)
	now := time.Now()

	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadBytes('\n')
		if err == io.EOF {
			// Partial trailing line: leave it for the next tick.
			break
		}
		if err != nil {
			// Mid-batch read failure: discard the whole batch and let
			// the next tick re-read from the old cursor.
			return nil, cursor, fmt.Errorf("reading %s: %w", unit.ID, err)
		}

		lineStart := offset
		offset += int64(len(line))

		rec, ok := parseLine(line, lineStart, now)
		if !ok {
			continue
		}
		records = append(records, rec)
	}

	return records, domain.Cursor(offset), nil
}

// Close releases resources. The connector holds none between fetches.
func (c *Connector) Close() error {
	return nil
}

// lineProbe is the subset of a transcript line the connector inspects
// before handing the payload to the normaliser.
type lineProbe struct {
	UUID    string `json:"uuid"`
	AgentID string `json:"agentId"`
}

// parseLine screens one complete line. Unparsable lines and agent
// initialisation records are dropped here, before normalisation. The byte
// offset of the line stands in for a missing record ID: it is stable
// across re-reads of the same region, so dedup still holds.
func parseLine(line []byte, lineStart int64, observedAt time.Time) (domain.RawRecord, bool) {
	trimmed := strings.TrimSpace(string(line))
	if trimmed == "" {
		return domain.RawRecord{}, false
	}

	var probe lineProbe
	if err := json.Unmarshal([]byte(trimmed), &probe); err != nil {
		return domain.RawRecord{}, false
	}
	if probe.AgentID != "" {
		return domain.RawRecord{}, false
	}

	id := probe.UUID
	if id == "" {
		id = fmt.Sprintf("line@%d", lineStart)
	}

	return domain.RawRecord{
		ID:         id,
		Data:       json.RawMessage(trimmed),
		ObservedAt: observedAt,
	}, true
}
