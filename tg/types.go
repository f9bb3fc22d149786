package tg

// User represents a Telegram user or bot.
type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

// Chat represents a Telegram chat.
type Chat struct {
	ID        int64  `json:"id"`
	Type      string `json:"type"`
	Title     string `json:"title,omitempty"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// PhotoSize represents one size of a photo.
type PhotoSize struct {
	FileID       string `json:"file_id"`
	FileUniqueID string `json:"file_unique_id"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	FileSize     int64  `json:"file_size,omitempty"`
}

// Video represents a video file.
type Video struct {
	FileID       string `json:"file_id"`
	FileUniqueID string `json:"file_unique_id"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	Duration     int    `json:"duration"`
	MimeType     string `json:"mime_type,omitempty"`
	FileSize     int64  `json:"file_size,omitempty"`
}

// Message represents a Telegram message. Only the fields the dispatcher
// reads back from send responses are modelled.
type Message struct {
	MessageID    int                   `json:"message_id"`
	From         *User                 `json:"from,omitempty"`
	Date         int64                 `json:"date"`
	Chat         *Chat                 `json:"chat"`
	Text         string                `json:"text,omitempty"`
	Caption      string                `json:"caption,omitempty"`
	Photo        []PhotoSize           `json:"photo,omitempty"`
	Video        *Video                `json:"video,omitempty"`
	MediaGroupID string                `json:"media_group_id,omitempty"`
	ReplyMarkup  *InlineKeyboardMarkup `json:"reply_markup,omitempty"`
}
