// ABOUTME: Logger wraps zerolog.Logger with the engine's own field
// ABOUTME: conventions (table, op) so call sites stay terse.
package synclog

import (
	"os"

	"github.com/rs/zerolog"
)

// Logger embeds zerolog.Logger so every standard zerolog method is
// available directly, following the pack's logger-wrapper convention.
type Logger struct {
	zerolog.Logger
}

// New builds a JSON logger writing to stdout, tagged with component.
func New(component string) Logger {
	return Logger{zerolog.New(os.Stdout).With().
		Str("component", component).
		Timestamp().
		Logger()}
}

// Nop discards all output; useful for tests and library callers that
// haven't configured logging yet.
func Nop() Logger {
	return Logger{zerolog.Nop()}
}

// ForTable returns a child logger tagged with table, scoping every log line
// it writes to that table.
func (l Logger) ForTable(table string) Logger {
	return Logger{l.With().Str("table", table).Logger()}
}
