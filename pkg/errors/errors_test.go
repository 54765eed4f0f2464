package errors

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAppError(t *testing.T) {
	err := NewAppError(ErrCodeRoomNotFound, "room algebra-101 not found")
	assert.Equal(t, ErrCodeRoomNotFound, err.Code)
	assert.Equal(t, http.StatusNotFound, err.HTTPStatus)
	assert.Equal(t, "ROOM_NOT_FOUND: room algebra-101 not found", err.Error())
}

func TestNewAppErrorf(t *testing.T) {
	err := NewAppErrorf(ErrCodeSessionInactive, "session %s is not active", "sess-1")
	assert.Equal(t, "session sess-1 is not active", err.Message)
	assert.Equal(t, http.StatusUnauthorized, err.HTTPStatus)
}

func TestWrapErrorKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := WrapError(ErrCodeProviderUnavailable, cause)

	assert.Equal(t, http.StatusServiceUnavailable, err.HTTPStatus)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestWithDetails(t *testing.T) {
	err := NewAppError(ErrCodeUnknownTarget, "no such connection").
		WithDetails("target", "conn-x").
		WithDetails("room", "algebra-101/sess-1")

	require.NotNil(t, err.Details)
	assert.Equal(t, "conn-x", err.Details["target"])
	assert.Equal(t, "algebra-101/sess-1", err.Details["room"])
}

func TestAsAppError(t *testing.T) {
	appErr, ok := AsAppError(NewAppError(ErrCodeInvalidMessage, "bad envelope"))
	require.True(t, ok)
	assert.Equal(t, ErrCodeInvalidMessage, appErr.Code)

	_, ok = AsAppError(errors.New("plain"))
	assert.False(t, ok)
	assert.False(t, IsAppError(errors.New("plain")))
}
