package watch

import (
	"context"
	"fmt"
	"time"

	"github.com/example/resy-watch/internal/watchlog"
	"github.com/rs/zerolog"
)

const (
	DefaultInterval = 60 * time.Second

	// terminal log writes outlive the cancelled watch context by at most this long
	terminalWriteTimeout = 10 * time.Second
)

// Engine polls availability for one request at a time per Run call. A
// single Engine is shared by every watch; Run holds no engine-level state.
type Engine struct {
	Availability AvailabilityProvider
	Booking      BookingProvider
	Log          *watchlog.Log

	// Interval between polls. Zero means DefaultInterval.
	Interval time.Duration
	// CallTimeout bounds each provider and notifier call. Zero disables it.
	CallTimeout time.Duration

	Policy Policy
	// Confirm, when set, is asked before an auto-book submits the booking.
	Confirm ConfirmFunc
	// PollImmediately skips the sleep before the first poll.
	PollImmediately bool

	Now    func() time.Time
	Logger zerolog.Logger
}

// Run persists a watching entry, then polls until ctx is cancelled, the
// notifier fails, or (under PolicyAutoBook) a booking attempt finishes.
//
// Cancellation is only acted on between steps: a poll whose context was
// cancelled mid-flight is discarded, never reported. On cancellation the
// first watching entry for the venue/date is moved to stopped before Run
// returns.
func (e *Engine) Run(ctx context.Context, req Request, n Notifier) Result {
	if err := req.Validate(); err != nil {
		return Result{State: StateFailed, Err: err}
	}
	if n == nil {
		return Result{State: StateFailed, Err: &ValidationError{Field: "notifier", Msg: "required"}}
	}
	logger := e.logger(ctx).With().Int64("venue_id", req.VenueID).Str("date", req.Date).Logger()

	entry := watchlog.Entry{
		Status:         watchlog.StatusWatching,
		Venue:          req.VenueName,
		VenueID:        req.VenueID,
		Date:           req.Date,
		PartySize:      req.PartySize,
		PreferredTimes: append([]string(nil), req.PreferredTimes...),
		CreatedAt:      watchlog.Timestamp(e.now()),
	}
	wctx, cancel := detached(ctx)
	err := e.Log.Begin(wctx, entry)
	cancel()
	if err != nil {
		logger.Error().Err(err).Msg("record watch failed")
		return Result{State: StateFailed, Err: fmt.Errorf("record watch: %w", err)}
	}
	logger.Info().Strs("preferred_times", req.PreferredTimes).Str("policy", e.Policy.String()).Msg("watch started")

	for first := true; ; first = false {
		if !first || !e.PollImmediately {
			if err := e.wait(ctx); err != nil {
				return e.stop(ctx, req, logger)
			}
		} else if ctx.Err() != nil {
			return e.stop(ctx, req, logger)
		}

		if res, done := e.poll(ctx, req, n, logger); done {
			return res
		}
	}
}

// poll runs one iteration. done reports whether the watch is over.
func (e *Engine) poll(ctx context.Context, req Request, n Notifier, logger zerolog.Logger) (Result, bool) {
	stamp := e.now().Format("15:04:05")

	slots, err := e.findSlots(ctx, req)
	if ctx.Err() != nil {
		return e.stop(ctx, req, logger), true
	}
	if err != nil {
		logger.Warn().Err(err).Msg("poll failed")
		if nerr := e.deliver(ctx, n, fmt.Sprintf("[%s] Poll error: %v", stamp, err), nil); nerr != nil {
			return e.channelGone(ctx, req, nerr, logger), true
		}
		return Result{}, false
	}

	slot, ok := FindMatch(slots, req.PreferredTimes)
	if !ok {
		logger.Debug().Int("slots", len(slots)).Msg("no match")
		if nerr := e.deliver(ctx, n, fmt.Sprintf("[%s] No match. Available: %s", stamp, Starts(slots)), nil); nerr != nil {
			return e.channelGone(ctx, req, nerr, logger), true
		}
		return Result{}, false
	}

	m := req.matchFor(slot)
	logger.Info().Str("time", m.Time).Msg("match found")
	if e.Policy == PolicyAutoBook {
		return e.autoBook(ctx, req, m, n, stamp, logger)
	}
	text := fmt.Sprintf("[%s] Match found: %s! Type 'book it' to confirm or I'll keep watching.", stamp, m.Time)
	if nerr := e.deliver(ctx, n, text, &m); nerr != nil {
		return e.channelGone(ctx, req, nerr, logger), true
	}
	return Result{}, false
}

func (e *Engine) autoBook(ctx context.Context, req Request, m Match, n Notifier, stamp string, logger zerolog.Logger) (Result, bool) {
	if nerr := e.deliver(ctx, n, fmt.Sprintf("[%s] Match found: %s", stamp, m.Time), &m); nerr != nil {
		return e.channelGone(ctx, req, nerr, logger), true
	}

	details, err := e.bookingDetails(ctx, m)
	if ctx.Err() != nil {
		return e.stop(ctx, req, logger), true
	}
	if err != nil {
		return e.bookingFailed(ctx, n, &BookingError{Stage: StageDetails, Err: err},
			fmt.Sprintf("Failed to get booking details: %v", err), logger), true
	}
	if details.BookToken == "" {
		return e.bookingFailed(ctx, n, &BookingError{Stage: StageDetails, Err: ErrNoBookToken},
			"Could not obtain a booking token.", logger), true
	}

	if e.Confirm != nil {
		ok, err := e.Confirm(ctx, m)
		if ctx.Err() != nil {
			return e.stop(ctx, req, logger), true
		}
		if err != nil {
			// the prompt is the channel; losing it is the same as losing the notifier
			return e.channelGone(ctx, req, &NotifierError{Err: err}, logger), true
		}
		if !ok {
			if nerr := e.deliver(ctx, n, "Skipped. Resuming watch...", nil); nerr != nil {
				return e.channelGone(ctx, req, nerr, logger), true
			}
			return Result{}, false
		}
	}

	outcome, err := e.book(ctx, details)
	if err != nil {
		if ctx.Err() != nil {
			return e.stop(ctx, req, logger), true
		}
		return e.bookingFailed(ctx, n, &BookingError{Stage: StageBook, Err: err},
			fmt.Sprintf("Booking failed: %v", err), logger), true
	}

	token := outcome.ConfirmationToken
	if token == "" {
		token = "N/A"
	}
	res := Result{State: StateBooked, Confirmation: token}

	wctx, cancel := detached(ctx)
	found, err := e.Log.MarkBooked(wctx, req.VenueID, req.Date, watchlog.Booking{Time: m.Time, ConfirmationToken: token, At: e.now()})
	cancel()
	switch {
	case err != nil:
		logger.Error().Err(err).Msg("record booking failed")
		res.Err = fmt.Errorf("record booking: %w", err)
	case !found:
		logger.Warn().Msg("no watching entry to mark booked")
	}
	logger.Info().Str("time", m.Time).Str("state", string(StateBooked)).Msg("watch ended")

	// already booked; a dead channel here changes nothing
	if nerr := e.deliver(context.WithoutCancel(ctx), n, fmt.Sprintf("Reservation confirmed! Confirmation token: %s", token), &m); nerr != nil {
		logger.Warn().Err(nerr).Msg("confirmation not delivered")
	}
	return res, true
}

// bookingFailed reports err once and ends the watch without a log
// transition; the entry stays watching.
func (e *Engine) bookingFailed(ctx context.Context, n Notifier, err *BookingError, text string, logger zerolog.Logger) Result {
	logger.Warn().Err(err).Msg("auto-book failed, entry left watching")
	if nerr := e.deliver(ctx, n, text, nil); nerr != nil {
		logger.Warn().Err(nerr).Msg("booking failure not delivered")
	}
	return Result{State: StateFailed, Err: err}
}

// channelGone ends the watch after a notifier failure. If the failure was
// caused by cancellation, the cancellation path wins.
func (e *Engine) channelGone(ctx context.Context, req Request, err error, logger zerolog.Logger) Result {
	if ctx.Err() != nil {
		return e.stop(ctx, req, logger)
	}
	logger.Warn().Err(err).Str("state", string(StateFailed)).Msg("notifier failed, watch ended")
	return Result{State: StateFailed, Err: err}
}

func (e *Engine) stop(ctx context.Context, req Request, logger zerolog.Logger) Result {
	wctx, cancel := detached(ctx)
	defer cancel()
	found, err := e.Log.MarkStopped(wctx, req.VenueID, req.Date, e.now())
	if err != nil {
		logger.Error().Err(err).Msg("record stop failed")
		return Result{State: StateStopped, Err: fmt.Errorf("record stop: %w", err)}
	}
	if !found {
		logger.Warn().Msg("no watching entry to mark stopped")
	}
	logger.Info().Str("state", string(StateStopped)).Msg("watch ended")
	return Result{State: StateStopped}
}

func (e *Engine) wait(ctx context.Context) error {
	t := time.NewTimer(e.interval())
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
	}
	return ctx.Err()
}

func (e *Engine) findSlots(ctx context.Context, req Request) ([]Slot, error) {
	cctx, cancel := e.callCtx(ctx)
	defer cancel()
	slots, err := e.Availability.FindSlots(cctx, req.VenueID, req.PartySize, req.Date)
	if err != nil {
		return nil, &ProviderError{Op: "find slots", Err: err}
	}
	return slots, nil
}

func (e *Engine) bookingDetails(ctx context.Context, m Match) (BookingDetails, error) {
	cctx, cancel := e.callCtx(ctx)
	defer cancel()
	d, err := e.Booking.GetBookingDetails(cctx, m.ConfigToken, m.Date, m.PartySize)
	if err != nil {
		return BookingDetails{}, &ProviderError{Op: "booking details", Err: err}
	}
	return d, nil
}

func (e *Engine) book(ctx context.Context, d BookingDetails) (BookingOutcome, error) {
	cctx, cancel := e.callCtx(ctx)
	defer cancel()
	out, err := e.Booking.Book(cctx, d.BookToken, d.PaymentMethodID)
	if err != nil {
		return BookingOutcome{}, &ProviderError{Op: "book", Err: err}
	}
	return out, nil
}

func (e *Engine) deliver(ctx context.Context, n Notifier, text string, m *Match) error {
	cctx, cancel := e.callCtx(ctx)
	defer cancel()
	if err := n.Deliver(cctx, text, m); err != nil {
		return &NotifierError{Err: err}
	}
	return nil
}

func (e *Engine) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.CallTimeout)
}

func (e *Engine) interval() time.Duration {
	if e.Interval <= 0 {
		return DefaultInterval
	}
	return e.Interval
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// logger prefers a logger carried on ctx (the supervisor attaches one per
// task) over the engine's own.
func (e *Engine) logger(ctx context.Context) zerolog.Logger {
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		return *l
	}
	return e.Logger
}

func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), terminalWriteTimeout)
}
