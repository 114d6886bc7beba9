// Package report accumulates the warnings and errors raised while importing an
// archive. Nothing in the import engine fails synchronously for recoverable
// problems; it records them here and the caller inspects the report once the
// whole operation has completed.
package report

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"github.com/arthur-debert/homemigrate/pkg/errors"
	"github.com/arthur-debert/homemigrate/pkg/logging"
)

// Kind classifies a recorded message
type Kind int

const (
	// KindWarning degrades the operation without failing it
	KindWarning Kind = iota
	// KindError fails the operation
	KindError
)

// String returns the lowercase name of the kind
func (k Kind) String() string {
	switch k {
	case KindWarning:
		return "warning"
	case KindError:
		return "error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Message is a single warning or error recorded during an operation.
type Message struct {
	Kind Kind
	Text string
	Err  error
}

// Warningf creates a warning message
func Warningf(format string, args ...interface{}) Message {
	return Message{Kind: KindWarning, Text: fmt.Sprintf(format, args...)}
}

// Warning creates a warning message carrying the underlying cause
func Warning(err error, format string, args ...interface{}) Message {
	return Message{Kind: KindWarning, Text: fmt.Sprintf(format, args...), Err: err}
}

// Error creates an error message from err
func Error(err error) Message {
	return Message{Kind: KindError, Text: err.Error(), Err: err}
}

// Errorf creates an error message with the given code
func Errorf(code errors.ErrorCode, format string, args ...interface{}) Message {
	err := errors.Newf(code, format, args...)
	return Message{Kind: KindError, Text: err.Message, Err: err}
}

// String renders the message for display
func (m Message) String() string {
	if m.Err != nil && m.Err.Error() != m.Text {
		return fmt.Sprintf("%s: %s (%v)", m.Kind, m.Text, m.Err)
	}
	return fmt.Sprintf("%s: %s", m.Kind, m.Text)
}

// Report is an ordered sink of messages for one operation.
type Report struct {
	mu        sync.Mutex
	id        uuid.UUID
	operation string
	start     time.Time
	messages  []Message
	logger    zerolog.Logger
}

// New creates an empty report for the named operation
func New(operation string) *Report {
	id := uuid.New()
	return &Report{
		id:        id,
		operation: operation,
		start:     time.Now(),
		logger: logging.GetLogger("report").With().
			Str("operation", operation).
			Str("report", id.String()).
			Logger(),
	}
}

// ID returns the unique identifier of the operation
func (r *Report) ID() uuid.UUID {
	return r.id
}

// Operation returns the name of the operation
func (r *Report) Operation() string {
	return r.operation
}

// Start returns the time the report was created
func (r *Report) Start() time.Time {
	return r.start
}

// Record appends m to the report.
func (r *Report) Record(m Message) {
	r.mu.Lock()
	r.messages = append(r.messages, m)
	r.mu.Unlock()

	switch m.Kind {
	case KindError:
		r.logger.Error().Err(m.Err).Msg(m.Text)
	default:
		r.logger.Warn().Err(m.Err).Msg(m.Text)
	}
}

// Messages returns every recorded message in recording order
func (r *Report) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// Warnings returns the recorded warnings in recording order
func (r *Report) Warnings() []Message {
	return r.filter(KindWarning)
}

// Errors returns the recorded errors in recording order
func (r *Report) Errors() []Message {
	return r.filter(KindError)
}

// HasWarnings reports whether any warning was recorded
func (r *Report) HasWarnings() bool {
	return len(r.Warnings()) > 0
}

// HasErrors reports whether any error was recorded
func (r *Report) HasErrors() bool {
	return len(r.Errors()) > 0
}

// WasSuccessful reports whether no errors were recorded. Warnings do not
// affect success.
func (r *Report) WasSuccessful() bool {
	return !r.HasErrors()
}

// Verify returns every recorded error combined into one, or nil when the
// operation was successful.
func (r *Report) Verify() error {
	var err error
	for _, m := range r.Errors() {
		cause := m.Err
		if cause == nil {
			cause = errors.New(errors.ErrUnknown, m.Text)
		}
		err = multierr.Append(err, cause)
	}
	return err
}

func (r *Report) filter(kind Kind) []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Message
	for _, m := range r.messages {
		if m.Kind == kind {
			out = append(out, m)
		}
	}
	return out
}
