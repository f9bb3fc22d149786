// Package tg contains the Telegram Bot API wire types and errors the
// dispatcher needs: messages, inline keyboards, destination identifiers
// and the error taxonomy (including rate-limit signals carrying
// retry_after).
//
// The package has no dependencies beyond the standard library and is
// safe to import from any layer.
package tg
