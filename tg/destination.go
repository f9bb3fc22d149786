package tg

import (
	"strconv"
	"strings"
)

// PeerKind classifies a destination identifier.
type PeerKind string

// Destination kinds derivable from an identifier's shape.
const (
	PeerUser    PeerKind = "user"
	PeerChat    PeerKind = "chat"
	PeerChannel PeerKind = "channel"
)

// ResolvePeerKind derives the destination kind from the shape of a
// numeric chat identifier. Positive IDs address users, "-100"-prefixed
// IDs address broadcast channels (and supergroups), any other negative
// ID addresses a basic group chat.
//
// The function is pure and total: every int64 maps to exactly one kind.
func ResolvePeerKind(id int64) PeerKind {
	s := strconv.FormatInt(id, 10)
	switch {
	case !strings.HasPrefix(s, "-"):
		return PeerUser
	case strings.HasPrefix(s, "-100"):
		return PeerChannel
	default:
		return PeerChat
	}
}

// Destination is a resolved delivery target: the raw chat identifier
// plus the peer kind derived from its shape.
type Destination struct {
	ChatID int64
	Kind   PeerKind
}

// ResolveDestination builds a Destination from a raw chat identifier.
// A zero identifier is malformed and yields ErrInvalidDestination.
func ResolveDestination(chatID int64) (Destination, error) {
	if chatID == 0 {
		return Destination{}, ErrInvalidDestination
	}
	return Destination{ChatID: chatID, Kind: ResolvePeerKind(chatID)}, nil
}

// Recipient returns the chat_id value to put on the wire.
func (d Destination) Recipient() string {
	return strconv.FormatInt(d.ChatID, 10)
}
