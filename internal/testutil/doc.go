// Package testutil provides test infrastructure for the dispatcher:
// a mock Bot API server with request capture, canned reply helpers
// (success, rate limit with retry_after, content rejections), a
// FakeSleeper for deterministic wait verification, and shared fixtures.
//
// Intended for this module's tests only.
package testutil
