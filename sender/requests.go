package sender

import (
	"github.com/prilive-com/despacho/tg"
)

// SendMessageRequest represents a request to send a text message.
type SendMessageRequest struct {
	ChatID                string       `json:"chat_id"`
	Text                  string       `json:"text"`
	ParseMode             tg.ParseMode `json:"parse_mode,omitempty"`
	DisableWebPagePreview bool         `json:"disable_web_page_preview,omitempty"`
	DisableNotification   bool         `json:"disable_notification,omitempty"`
	ReplyMarkup           any          `json:"reply_markup,omitempty"`
}

// SendPhotoRequest represents a request to send a photo by URL or file_id.
type SendPhotoRequest struct {
	ChatID              string       `json:"chat_id"`
	Photo               string       `json:"photo"` // URL or file_id
	Caption             string       `json:"caption,omitempty"`
	ParseMode           tg.ParseMode `json:"parse_mode,omitempty"`
	DisableNotification bool         `json:"disable_notification,omitempty"`
	ReplyMarkup         any          `json:"reply_markup,omitempty"`
}

// SendVideoRequest represents a request to send a video, either by
// reference (URL/file_id) or as a multipart upload of local content.
type SendVideoRequest struct {
	ChatID              string       `json:"chat_id"`
	Video               InputFile    `json:"video"`
	Caption             string       `json:"caption,omitempty"`
	ParseMode           tg.ParseMode `json:"parse_mode,omitempty"`
	DisableNotification bool         `json:"disable_notification,omitempty"`
	ReplyMarkup         any          `json:"reply_markup,omitempty"`
}

// MediaItem is one element of a media group.
type MediaItem struct {
	Type      string       `json:"type"` // "photo" or "video"
	Media     string       `json:"media"`
	Caption   string       `json:"caption,omitempty"`
	ParseMode tg.ParseMode `json:"parse_mode,omitempty"`
}

// Photo creates a photo media item referencing a URL or file_id.
func Photo(media string) MediaItem {
	return MediaItem{Type: "photo", Media: media}
}

// SendMediaGroupRequest represents a request to send an album of
// photos/videos referenced by URL or file_id.
type SendMediaGroupRequest struct {
	ChatID              string      `json:"chat_id"`
	Media               []MediaItem `json:"media"`
	DisableNotification bool        `json:"disable_notification,omitempty"`
}
