package despacho

import (
	"strings"

	"github.com/prilive-com/despacho/tg"
)

// MediaKind classifies which delivery tier a payload selects.
type MediaKind int

const (
	// MediaNone means the payload carries no media: plain text delivery.
	MediaNone MediaKind = iota
	// MediaImages means the payload carries one or more image URLs.
	MediaImages
	// MediaVideo means the payload references a remote video to fetch.
	MediaVideo
)

func (k MediaKind) String() string {
	switch k {
	case MediaImages:
		return "images"
	case MediaVideo:
		return "video"
	default:
		return "none"
	}
}

// Payload is a single notification to deliver. Title, Link and Body are
// already rendered for the target parse mode (see the compose package);
// the dispatcher only assembles them, it never reformats them.
type Payload struct {
	Title    string                   `json:"title"`
	Body     string                   `json:"body,omitempty"`
	Link     string                   `json:"link,omitempty"`
	Images   []string                 `json:"images,omitempty"`
	Video    string                   `json:"video,omitempty"`
	Keyboard *tg.InlineKeyboardMarkup `json:"keyboard,omitempty"`
}

// MediaKind selects the delivery tier. Video wins over images when both
// are present.
func (p Payload) MediaKind() MediaKind {
	switch {
	case p.Video != "":
		return MediaVideo
	case len(p.Images) > 0:
		return MediaImages
	default:
		return MediaNone
	}
}

// Text assembles the full message text: source link, title and body
// separated by blank lines, empty fields skipped. Used both as the media
// caption and as the terminal text fallback.
func (p Payload) Text() string {
	parts := make([]string, 0, 3)
	for _, s := range []string{p.Link, p.Title, p.Body} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n")
}
