package despacho

import (
	"context"
	"log/slog"
	"time"

	"github.com/prilive-com/despacho/internal/fetch"
	"github.com/prilive-com/despacho/sender"
	"github.com/prilive-com/despacho/tg"
)

// DefaultConnectDelay is how long a fresh session stays quiet after its
// probe before payload traffic starts. Rapid-fire sends on a just-opened
// session are a reliable way to trip the API's flood control.
const DefaultConnectDelay = 5 * time.Second

// Fetcher downloads the media at url into dir and returns the staged
// file paths. Implementations must honor ctx cancellation and write
// only inside dir.
type Fetcher interface {
	Fetch(ctx context.Context, url, dir string) ([]string, error)
}

// Dispatcher delivers notifications to a single destination, rotating
// through a credential pool when the API applies backpressure.
type Dispatcher struct {
	pool         *Pool
	dest         tg.Destination
	logger       *slog.Logger
	sleeper      sender.Sleeper
	fetcher      Fetcher
	senderCfg    sender.Config
	connectDelay time.Duration
	parseMode    tg.ParseMode
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithSleeper replaces the clock used for rate-limit blocking and the
// post-open delay. Tests inject a fake here.
func WithSleeper(s sender.Sleeper) DispatcherOption {
	return func(d *Dispatcher) {
		if s != nil {
			d.sleeper = s
		}
	}
}

// WithFetcher replaces the video fetcher.
func WithFetcher(f Fetcher) DispatcherOption {
	return func(d *Dispatcher) {
		if f != nil {
			d.fetcher = f
		}
	}
}

// WithSenderConfig overrides the per-session client configuration. The
// token field is ignored; each session sets its own credential.
func WithSenderConfig(cfg sender.Config) DispatcherOption {
	return func(d *Dispatcher) { d.senderCfg = cfg }
}

// WithConnectDelay overrides the post-open quiet period. Zero disables it.
func WithConnectDelay(delay time.Duration) DispatcherOption {
	return func(d *Dispatcher) { d.connectDelay = delay }
}

// WithParseMode sets the parse mode applied to all outgoing text and
// captions.
func WithParseMode(mode tg.ParseMode) DispatcherOption {
	return func(d *Dispatcher) { d.parseMode = mode }
}

// New creates a dispatcher for the given pool and destination chat.
func New(pool *Pool, chatID int64, opts ...DispatcherOption) (*Dispatcher, error) {
	if pool == nil || pool.Len() == 0 {
		return nil, ErrNoCredentials
	}
	dest, err := tg.ResolveDestination(chatID)
	if err != nil {
		return nil, err
	}

	d := &Dispatcher{
		pool:         pool,
		dest:         dest,
		logger:       slog.Default(),
		sleeper:      sender.RealSleeper{},
		fetcher:      &fetch.YtDlp{},
		senderCfg:    sender.DefaultConfig(),
		connectDelay: DefaultConnectDelay,
		parseMode:    tg.ParseModeMarkdown,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Dispatch delivers one payload. Credentials are tried in pool order:
// a rate-limited attempt rotates to the next credential immediately,
// without honoring the advised wait. Only when the last credential is
// rate limited does Dispatch block for the advised interval before
// failing, so the caller inherits a cooled-down pool. Rejection and
// fatal outcomes abort at once; fresh credentials cannot fix bad content
// or a dead network.
func (d *Dispatcher) Dispatch(ctx context.Context, p Payload) error {
	for i := 0; i < d.pool.Len(); i++ {
		cred := d.pool.At(i)
		out := d.attempt(ctx, cred, p)

		switch out.Kind {
		case OutcomeDelivered:
			d.logger.Info("notification delivered",
				"attempt", i+1, "session", cred.Name(), "media", p.MediaKind())
			return nil

		case OutcomeRateLimited:
			if i < d.pool.Len()-1 {
				d.logger.Warn("rate limited, rotating credential",
					"attempt", i+1, "session", cred.Name(), "advised_wait", out.Wait)
				continue
			}
			d.logger.Warn("rate limited on last credential, honoring advised wait",
				"attempt", i+1, "session", cred.Name(), "advised_wait", out.Wait)
			if err := d.sleeper.Sleep(ctx, out.Wait); err != nil {
				return &DispatchError{Kind: FailRateLimited, Wait: out.Wait, Err: err}
			}
			return &DispatchError{Kind: FailRateLimited, Wait: out.Wait, Err: out.Err}

		case OutcomeRejected:
			d.logger.Error("delivery rejected",
				"attempt", i+1, "session", cred.Name(), "error", out.Err)
			return &DispatchError{Kind: FailRejected, Err: out.Err}

		default:
			d.logger.Error("delivery failed",
				"attempt", i+1, "session", cred.Name(), "error", out.Err)
			return &DispatchError{Kind: FailConnectivity, Err: out.Err}
		}
	}
	return &DispatchError{Kind: FailConfig, Err: ErrNoCredentials}
}

// attempt opens a session on one credential, runs the delivery tiers and
// closes the session whatever the result.
func (d *Dispatcher) attempt(ctx context.Context, cred Credential, p Payload) Outcome {
	s, err := d.openSession(ctx, cred)
	if err != nil {
		return fatal(err)
	}
	defer s.close()

	if d.connectDelay > 0 {
		if err := d.sleeper.Sleep(ctx, d.connectDelay); err != nil {
			return fatal(err)
		}
	}

	return d.deliver(ctx, s, p)
}
