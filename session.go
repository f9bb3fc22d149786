package despacho

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/prilive-com/despacho/sender"
	"github.com/prilive-com/despacho/tg"
)

// session is one live connection to the API under a single credential.
// It owns the sender client and must be closed on every path.
type session struct {
	client    *sender.Client
	dest      tg.Destination
	parseMode tg.ParseMode
	logger    *slog.Logger
	closeOnce sync.Once
}

// openSession builds a client for the credential and verifies it with a
// getMe probe. The probe catches revoked or malformed tokens before any
// payload traffic is attempted.
func (d *Dispatcher) openSession(ctx context.Context, cred Credential) (*session, error) {
	cfg := d.senderCfg
	cfg.Token = cred.Token()

	logger := d.logger.With("session", cred.Name())
	client, err := sender.NewFromConfig(cfg,
		sender.WithLogger(logger),
		sender.WithSleeper(d.sleeper),
	)
	if err != nil {
		return nil, err
	}

	me, err := client.GetMe(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("session probe: %w", err)
	}
	logger.Debug("session opened", "bot", me.Username, "chat_id", d.dest.ChatID, "peer", d.dest.Kind)

	return &session{
		client:    client,
		dest:      d.dest,
		parseMode: d.parseMode,
		logger:    logger,
	}, nil
}

// close releases the session. Safe to call more than once.
func (s *session) close() {
	s.closeOnce.Do(func() {
		if err := s.client.Close(); err != nil {
			s.logger.Warn("session close failed", "error", err)
		} else {
			s.logger.Debug("session closed")
		}
	})
}

func (s *session) sendText(ctx context.Context, text string, kb *tg.InlineKeyboardMarkup) error {
	req := sender.SendMessageRequest{
		ChatID:                s.dest.Recipient(),
		Text:                  text,
		ParseMode:             s.parseMode,
		DisableWebPagePreview: true,
	}
	if kb != nil {
		req.ReplyMarkup = kb
	}
	_, err := s.client.SendMessage(ctx, req)
	return err
}

func (s *session) sendAnchorPhoto(ctx context.Context, photoURL, caption string, kb *tg.InlineKeyboardMarkup) error {
	req := sender.SendPhotoRequest{
		ChatID:    s.dest.Recipient(),
		Photo:     photoURL,
		Caption:   caption,
		ParseMode: s.parseMode,
	}
	if kb != nil {
		req.ReplyMarkup = kb
	}
	_, err := s.client.SendPhoto(ctx, req)
	return err
}

// sendAlbum sends caption-less photos as a media group. A single photo
// goes out via sendPhoto because media groups require at least two items.
func (s *session) sendAlbum(ctx context.Context, photoURLs []string) error {
	if len(photoURLs) == 1 {
		_, err := s.client.SendPhoto(ctx, sender.SendPhotoRequest{
			ChatID: s.dest.Recipient(),
			Photo:  photoURLs[0],
		})
		return err
	}
	media := make([]sender.MediaItem, 0, len(photoURLs))
	for _, u := range photoURLs {
		media = append(media, sender.Photo(u))
	}
	_, err := s.client.SendMediaGroup(ctx, sender.SendMediaGroupRequest{
		ChatID: s.dest.Recipient(),
		Media:  media,
	})
	return err
}

// sendVideoFile uploads a local video file. The file handle is held open
// only for the duration of the send.
func (s *session) sendVideoFile(ctx context.Context, path, caption string, kb *tg.InlineKeyboardMarkup) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open video: %w", err)
	}
	defer f.Close()

	req := sender.SendVideoRequest{
		ChatID:    s.dest.Recipient(),
		Video:     sender.FromReader(f, filepath.Base(path)),
		Caption:   caption,
		ParseMode: s.parseMode,
	}
	if kb != nil {
		req.ReplyMarkup = kb
	}
	_, err = s.client.SendVideo(ctx, req)
	return err
}
