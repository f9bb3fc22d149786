package tg_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/prilive-com/despacho/tg"
)

func TestAPIError_Sentinels(t *testing.T) {
	tests := []struct {
		name     string
		code     int
		desc     string
		sentinel error
	}{
		{"bad request", 400, "Bad Request: wrong remote file", tg.ErrBadRequest},
		{"unauthorized", 401, "Unauthorized", tg.ErrUnauthorized},
		{"bot blocked", 403, "Forbidden: bot was blocked by the user", tg.ErrBotBlocked},
		{"chat not found", 400, "Bad Request: chat not found", tg.ErrChatNotFound},
		{"rate limited", 429, "Too Many Requests: retry after 5", tg.ErrTooManyRequests},
		{"file too big", 413, "Request Entity Too Large: file is too big", tg.ErrFileTooBig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tg.NewAPIError("sendMessage", tt.code, tt.desc)
			assert.True(t, errors.Is(err, tt.sentinel), "expected %v", tt.sentinel)
		})
	}
}

func TestAPIError_Classification(t *testing.T) {
	rl := tg.NewAPIErrorWithRetry("sendPhoto", 429, "Too Many Requests", 7*time.Second)
	assert.True(t, rl.IsRateLimit())
	assert.False(t, rl.IsContentRejection())
	assert.True(t, rl.IsRetryable())

	bad := tg.NewAPIError("sendVideo", 400, "Bad Request: wrong file identifier")
	assert.False(t, bad.IsRateLimit())
	assert.True(t, bad.IsContentRejection())
	assert.False(t, bad.IsRetryable())

	srv := tg.NewAPIError("sendMessage", 502, "Bad Gateway")
	assert.False(t, srv.IsContentRejection())
	assert.True(t, srv.IsRetryable())
}

func TestAPIError_ErrorString(t *testing.T) {
	err := tg.NewAPIErrorWithRetry("sendMessage", 429, "Too Many Requests", 5*time.Second)
	assert.Contains(t, err.Error(), "retry_after=5s")
	assert.Contains(t, err.Error(), "sendMessage")
}
