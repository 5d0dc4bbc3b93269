package pipeline

import "github.com/kingrea/packsync/internal/logbook"

// Message is one event on a run's channel. The set is closed: Status,
// Progress and Done are the only implementations.
type Message interface {
	message()
}

// Status is a human-readable line for the log panel.
type Status struct {
	Level logbook.Level
	Text  string
}

// Progress reports overall completion from 0 to 100.
type Progress struct {
	Percent int
}

// Done is always the last message of a run. Err is set when OK is false.
type Done struct {
	OK  bool
	Err error
}

func (Status) message()   {}
func (Progress) message() {}
func (Done) message()     {}
