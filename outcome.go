package despacho

import (
	"errors"
	"time"

	"github.com/prilive-com/despacho/tg"
)

// OutcomeKind classifies the result of one delivery attempt on a single
// credential.
type OutcomeKind int

const (
	// OutcomeDelivered means the notification reached the destination.
	OutcomeDelivered OutcomeKind = iota
	// OutcomeRateLimited means the credential hit API backpressure.
	OutcomeRateLimited
	// OutcomeRejected means the API refused the content itself.
	OutcomeRejected
	// OutcomeFatal means connectivity or an unclassified failure.
	OutcomeFatal
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeDelivered:
		return "delivered"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeRejected:
		return "rejected"
	default:
		return "fatal"
	}
}

// Outcome is the result of one attempt. Wait is only meaningful for
// OutcomeRateLimited and is the server-advised backoff.
type Outcome struct {
	Kind OutcomeKind
	Wait time.Duration
	Err  error
}

func delivered() Outcome {
	return Outcome{Kind: OutcomeDelivered}
}

func rateLimited(wait time.Duration, err error) Outcome {
	return Outcome{Kind: OutcomeRateLimited, Wait: wait, Err: err}
}

func rejected(err error) Outcome {
	return Outcome{Kind: OutcomeRejected, Err: err}
}

func fatal(err error) Outcome {
	return Outcome{Kind: OutcomeFatal, Err: err}
}

// defaultRateLimitWait is used when the API signals backpressure without
// advising a retry interval.
const defaultRateLimitWait = time.Second

// classify maps a send error to an attempt outcome. Rate limits are
// recognized before content rejections so a 429 never degrades content.
func classify(err error) Outcome {
	if err == nil {
		return delivered()
	}
	var apiErr *tg.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.IsRateLimit():
			wait := apiErr.RetryAfter
			if wait <= 0 {
				wait = defaultRateLimitWait
			}
			return rateLimited(wait, err)
		case apiErr.IsContentRejection():
			return rejected(err)
		}
	}
	return fatal(err)
}
