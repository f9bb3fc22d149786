package tg

import "encoding/json"

// InlineKeyboardMarkup represents an inline keyboard attached to a message.
type InlineKeyboardMarkup struct {
	InlineKeyboard [][]InlineKeyboardButton `json:"inline_keyboard"`
}

// InlineKeyboardButton represents a button in an inline keyboard.
type InlineKeyboardButton struct {
	Text         string `json:"text"`
	URL          string `json:"url,omitempty"`
	CallbackData string `json:"callback_data,omitempty"`
}

// Btn creates a callback button.
func Btn(text, callbackData string) InlineKeyboardButton {
	return InlineKeyboardButton{Text: text, CallbackData: callbackData}
}

// BtnURL creates a URL button.
func BtnURL(text, url string) InlineKeyboardButton {
	return InlineKeyboardButton{Text: text, URL: url}
}

// Keyboard builds inline keyboards fluently.
type Keyboard struct {
	rows [][]InlineKeyboardButton
}

// NewKeyboard creates a new keyboard builder.
func NewKeyboard() *Keyboard {
	return &Keyboard{rows: make([][]InlineKeyboardButton, 0, 4)}
}

// Row adds a row of buttons.
func (k *Keyboard) Row(buttons ...InlineKeyboardButton) *Keyboard {
	if len(buttons) > 0 {
		k.rows = append(k.rows, buttons)
	}
	return k
}

// Build returns the completed InlineKeyboardMarkup.
func (k *Keyboard) Build() *InlineKeyboardMarkup {
	return &InlineKeyboardMarkup{InlineKeyboard: k.rows}
}

// Empty returns true if keyboard has no buttons.
func (k *Keyboard) Empty() bool {
	return len(k.rows) == 0
}

// MarshalJSON implements json.Marshaler.
func (k *Keyboard) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.Build())
}

// InlineKeyboard creates a keyboard from rows of buttons.
func InlineKeyboard(rows ...[]InlineKeyboardButton) *InlineKeyboardMarkup {
	return &InlineKeyboardMarkup{InlineKeyboard: rows}
}

// Row creates a row of buttons (for use with InlineKeyboard).
func Row(buttons ...InlineKeyboardButton) []InlineKeyboardButton {
	return buttons
}
