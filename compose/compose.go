// Package compose renders scraped items into dispatch payloads:
// Markdown title and body, source attribution line, and the inline
// keyboard with the post link and a WhatsApp share link.
package compose

import (
	"net/url"
	"strings"

	"github.com/prilive-com/despacho"
	"github.com/prilive-com/despacho/tg"
)

const (
	newsEmoji  = "\U0001F4F0"
	phoneEmoji = "\U0001F4F1"

	// DefaultMaxBodyLength caps the rendered body so captions stay
	// within the API's limit with room for title and link.
	DefaultMaxBodyLength = 500

	truncationMark = " **[...]**"
)

// Item is a scraped post ready for notification.
type Item struct {
	Title   string   `json:"title"`
	Link    string   `json:"link"`
	Content []string `json:"content"`
	Images  []string `json:"images,omitempty"`
	Video   string   `json:"video,omitempty"`
}

// Composer renders Items into payloads. The zero value is not usable;
// call New.
type Composer struct {
	maxBodyLength int
	openLabel     string
	shareLabel    string
	promoLine     string
}

// Option configures a Composer.
type Option func(*Composer)

// WithMaxBodyLength caps the body at n runes before the truncation mark.
func WithMaxBodyLength(n int) Option {
	return func(c *Composer) {
		if n > 0 {
			c.maxBodyLength = n
		}
	}
}

// WithButtonLabels replaces the default keyboard button labels.
func WithButtonLabels(open, share string) Option {
	return func(c *Composer) {
		if open != "" {
			c.openLabel = open
		}
		if share != "" {
			c.shareLabel = share
		}
	}
}

// WithPromoLine appends a promotional line to the WhatsApp share text,
// typically an invite to the Telegram channel.
func WithPromoLine(line string) Option {
	return func(c *Composer) { c.promoLine = line }
}

// New creates a Composer.
func New(opts ...Option) *Composer {
	c := &Composer{
		maxBodyLength: DefaultMaxBodyLength,
		openLabel:     "Open post",
		shareLabel:    "Share on WhatsApp",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Payload renders an item into a dispatch payload.
func (c *Composer) Payload(item Item) despacho.Payload {
	return despacho.Payload{
		Title:    c.title(item),
		Body:     c.body(item),
		Link:     c.sourceLine(item),
		Images:   item.Images,
		Video:    item.Video,
		Keyboard: c.keyboard(item),
	}
}

// title renders the bold headline with the leading newspaper emoji.
func (c *Composer) title(item Item) string {
	return newsEmoji + " **" + strings.TrimSpace(item.Title) + "**"
}

// body joins the content paragraphs and truncates at the rune cap. A
// body that is only whitespace renders as empty so the payload skips it.
func (c *Composer) body(item Item) string {
	body := strings.Join(item.Content, " ")
	if strings.TrimSpace(body) == "" {
		return ""
	}
	runes := []rune(body)
	if len(runes) > c.maxBodyLength {
		body = string(runes[:c.maxBodyLength]) + truncationMark
	}
	return body
}

// sourceLine renders the italic source attribution: the link's domain,
// hyperlinked to the post.
func (c *Composer) sourceLine(item Item) string {
	u, err := url.Parse(item.Link)
	if err != nil || u.Host == "" {
		return ""
	}
	return "__[" + u.Host + "](" + item.Link + ")__"
}

// keyboard builds the two-row inline keyboard: open the post, share it
// on WhatsApp.
func (c *Composer) keyboard(item Item) *tg.InlineKeyboardMarkup {
	return tg.InlineKeyboard(
		tg.Row(tg.BtnURL(c.openLabel, item.Link)),
		tg.Row(tg.BtnURL(c.shareLabel, c.WhatsAppLink(item))),
	)
}

// WhatsAppLink builds a pre-filled WhatsApp share URL for the item. The
// share text uses single-asterisk bold, the dialect WhatsApp renders.
func (c *Composer) WhatsAppLink(item Item) string {
	lines := []string{
		strings.ReplaceAll(c.title(item), "**", "*"),
		"*Source:* " + item.Link,
	}
	if body := c.body(item); body != "" {
		lines = append(lines, strings.ReplaceAll(body, "**", "*"))
	}
	if c.promoLine != "" {
		lines = append(lines, phoneEmoji+" "+c.promoLine)
	}
	text := strings.Join(lines, "\n\n")
	return "https://api.whatsapp.com/send?text=" + url.QueryEscape(text)
}
