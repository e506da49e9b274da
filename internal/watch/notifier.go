package watch

import "context"

// Notifier delivers a watch's updates to whatever channel started it.
// match is nil for plain status text. A non-nil error means the channel is
// gone and the watch stops.
type Notifier interface {
	Deliver(ctx context.Context, text string, match *Match) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, text string, match *Match) error

func (f NotifierFunc) Deliver(ctx context.Context, text string, match *Match) error {
	return f(ctx, text, match)
}

// ConfirmFunc asks the user whether a matched slot should be booked.
type ConfirmFunc func(ctx context.Context, m Match) (bool, error)
