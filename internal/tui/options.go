package tui

import "time"

// Option configures a Model.
type Option func(*Model)

// WithStopOnExit stops every running timer when the user quits.
func WithStopOnExit(stop bool) Option {
	return func(m *Model) {
		m.stopOnExit = stop
	}
}

// WithClock overrides the clock used for the running timer display.
func WithClock(clock func() time.Time) Option {
	return func(m *Model) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// WithClipboard overrides how summaries are copied.
func WithClipboard(write func(string) error) Option {
	return func(m *Model) {
		if write != nil {
			m.copyText = write
		}
	}
}
