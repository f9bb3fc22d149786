// Package sender implements the outbound Telegram Bot API client one
// dispatch session runs on: JSON and multipart transports, token-bucket
// rate limiting, a circuit breaker, bounded retries with retry_after
// awareness, and token scrubbing in transport errors.
//
// A Client is bound to exactly one bot credential. The dispatcher opens
// a fresh Client per delivery attempt and closes it when the attempt
// ends; Clients are never shared across credentials.
package sender
