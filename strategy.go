package despacho

import (
	"context"

	"github.com/prilive-com/despacho/internal/mediastore"
)

// maxAlbumExtras bounds the album sent alongside the anchor photo so the
// whole image set stays within the API's ten-item media group cap.
const maxAlbumExtras = 9

// deliver runs the tier selected by the payload's media kind and reports
// the attempt outcome.
func (d *Dispatcher) deliver(ctx context.Context, s *session, p Payload) Outcome {
	switch p.MediaKind() {
	case MediaVideo:
		return d.deliverVideo(ctx, s, p)
	case MediaImages:
		return d.deliverImages(ctx, s, p)
	default:
		return classify(s.sendText(ctx, p.Text(), p.Keyboard))
	}
}

// deliverImages sends the image set. Extra images go out first as a
// caption-less album; the album is best effort and its rejection never
// fails the attempt. The first image is then sent as the anchor photo
// carrying the caption and keyboard, and its result is the attempt
// result.
func (d *Dispatcher) deliverImages(ctx context.Context, s *session, p Payload) Outcome {
	if len(p.Images) > 1 {
		extras := p.Images[1:]
		if len(extras) > maxAlbumExtras {
			extras = extras[:maxAlbumExtras]
		}
		if err := s.sendAlbum(ctx, extras); err != nil {
			out := classify(err)
			if out.Kind == OutcomeRateLimited {
				return out
			}
			s.logger.Warn("album send failed, keeping anchor photo",
				"error", err, "images", len(extras))
		}
	}
	return classify(s.sendAnchorPhoto(ctx, p.Images[0], p.Text(), p.Keyboard))
}

// deliverVideo fetches the remote video into a temporary store, uploads
// every produced file, and degrades to plain text when the fetch fails or
// the API rejects the upload. Rate limits are never degraded; they
// propagate so the credential can rotate. The store is removed on every
// path.
func (d *Dispatcher) deliverVideo(ctx context.Context, s *session, p Payload) Outcome {
	store, err := mediastore.New()
	if err != nil {
		return fatal(err)
	}
	defer store.Close()

	files, err := d.fetcher.Fetch(ctx, p.Video, store.Dir())
	if err != nil {
		if ctx.Err() != nil {
			return fatal(err)
		}
		s.logger.Warn("video fetch failed, degrading to text", "error", err, "url", p.Video)
		return d.textFallback(ctx, s, p)
	}

	for _, f := range files {
		if err := s.sendVideoFile(ctx, f, p.Text(), p.Keyboard); err != nil {
			out := classify(err)
			if out.Kind != OutcomeRejected {
				return out
			}
			s.logger.Warn("video rejected, degrading to text", "error", err, "file", f)
			return d.textFallback(ctx, s, p)
		}
	}
	return delivered()
}

// textFallback is the terminal tier. A rate limit here still propagates
// for rotation; anything else is fatal because there is nothing further
// to degrade to.
func (d *Dispatcher) textFallback(ctx context.Context, s *session, p Payload) Outcome {
	if err := s.sendText(ctx, p.Text(), p.Keyboard); err != nil {
		out := classify(err)
		if out.Kind == OutcomeRateLimited {
			return out
		}
		return fatal(err)
	}
	return delivered()
}
