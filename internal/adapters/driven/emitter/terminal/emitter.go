// Package terminal renders canonical messages as a coloured, line-wrapped
// stream on a terminal. It is the only place that knows about colours or
// widths; the engine just calls Emit.
package terminal

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/custodia-labs/chattail-cli/internal/core/domain"
	"github.com/custodia-labs/chattail-cli/internal/core/ports/driven"
)

// Ensure Emitter implements the interface.
var _ driven.Emitter = (*Emitter)(nil)

// fallbackWidth is used when the output is not a terminal.
const fallbackWidth = 100

// continuationIndent aligns wrapped lines under the first one.
const continuationIndent = "   "

// Option configures an Emitter.
type Option func(*Emitter)

// WithWidth fixes the wrap width instead of detecting it. Useful for tests
// and non-terminal sinks.
func WithWidth(w int) Option {
	return func(e *Emitter) {
		e.width = w
	}
}

// WithCompact drops the per-message unit header, printing one stamped line
// block per message.
func WithCompact(compact bool) Option {
	return func(e *Emitter) {
		e.compact = compact
	}
}

// Emitter writes messages to w. Writes are serialised with a mutex so a
// future concurrent caller cannot interleave message blocks.
type Emitter struct {
	mu      sync.Mutex
	w       io.Writer
	compact bool
	width   int

	stamp     lipgloss.Style
	label     lipgloss.Style
	userMark  lipgloss.Style
	agentMark lipgloss.Style
}

// New creates an emitter writing to w. A nil w defaults to stdout.
func New(w io.Writer, opts ...Option) *Emitter {
	if w == nil {
		w = os.Stdout
	}
	e := &Emitter{
		w:         w,
		stamp:     lipgloss.NewStyle().Faint(true),
		label:     lipgloss.NewStyle().Foreground(lipgloss.Color("14")), // cyan
		userMark:  lipgloss.NewStyle().Foreground(lipgloss.Color("11")), // yellow
		agentMark: lipgloss.NewStyle().Foreground(lipgloss.Color("10")), // green
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Emit renders one message. Full mode prints a stamped unit header, the
// marked first line and indented continuations; compact mode skips the
// header. Emit never blocks beyond the write itself.
func (e *Emitter) Emit(msg domain.Message, unitLabel string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	stamp := e.stamp.Render("[" + msg.ObservedAt.Format("15:04:05") + "]")
	marker := e.markerFor(msg.Role)
	lines := wrap(msg.Text, e.wrapWidth())

	if e.compact {
		fmt.Fprintf(e.w, "%s %s %s\n", stamp, marker, lines[0])
		for _, line := range lines[1:] {
			fmt.Fprintf(e.w, "%s%s\n", continuationIndent, line)
		}
		fmt.Fprintln(e.w)
		return
	}

	fmt.Fprintf(e.w, "%s %s\n", stamp, e.label.Render(unitLabel))
	fmt.Fprintf(e.w, "%s %s\n", marker, lines[0])
	for _, line := range lines[1:] {
		fmt.Fprintf(e.w, "%s%s\n", continuationIndent, line)
	}
	fmt.Fprintln(e.w)
}

// markerFor returns the coloured direction marker for a role.
func (e *Emitter) markerFor(role domain.Role) string {
	if role == domain.RoleUser {
		return e.userMark.Render(">>")
	}
	return e.agentMark.Render("<<")
}

// wrapWidth returns the configured width, or the terminal's current width
// minus marker padding, or the fallback.
func (e *Emitter) wrapWidth() int {
	if e.width > 0 {
		return e.width
	}
	if f, ok := e.w.(*os.File); ok {
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 4 {
			return w - 4
		}
	}
	return fallbackWidth
}

// wrap splits text on newlines and hard-breaks lines longer than width.
// Always returns at least one line.
func wrap(text string, width int) []string {
	if width < 1 {
		width = 1
	}

	var out []string
	for _, line := range splitLines(text) {
		runes := []rune(line)
		for len(runes) > width {
			out = append(out, string(runes[:width]))
			runes = runes[width:]
		}
		out = append(out, string(runes))
	}
	if len(out) == 0 {
		out = []string{""}
	}
	return out
}

// splitLines splits on \n, tolerating \r\n.
func splitLines(text string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			line := text[start:i]
			if len(line) > 0 && line[len(line)-1] == '\r' {
				line = line[:len(line)-1]
			}
			lines = append(lines, line)
			start = i + 1
		}
	}
	lines = append(lines, text[start:])
	return lines
}
