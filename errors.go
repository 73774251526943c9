package main

import (
	"errors"
	"net/http"
)

var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrPlayerNotFound  = errors.New("player not found")
	ErrInvalidRoomCode = errors.New("invalid room code")
	ErrInvalidMessage  = errors.New("invalid message")
	ErrRoomLimit       = errors.New("room limit reached")
	ErrInvalidToken    = errors.New("invalid token")
	ErrRateLimited     = errors.New("too many requests")
)

// errorCode maps an error to the code sent to clients
func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrRoomNotFound):
		return "ROOM_NOT_FOUND"
	case errors.Is(err, ErrPlayerNotFound):
		return "PLAYER_NOT_FOUND"
	case errors.Is(err, ErrInvalidRoomCode):
		return "INVALID_ROOM_CODE"
	case errors.Is(err, ErrInvalidMessage):
		return "INVALID_MESSAGE"
	case errors.Is(err, ErrRoomLimit):
		return "ROOM_LIMIT"
	case errors.Is(err, ErrInvalidToken):
		return "INVALID_TOKEN"
	case errors.Is(err, ErrRateLimited):
		return "RATE_LIMITED"
	}
	return "UNKNOWN"
}

// errorStatus maps an error to an HTTP status code
func errorStatus(err error) int {
	switch {
	case errors.Is(err, ErrRoomNotFound), errors.Is(err, ErrPlayerNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidRoomCode):
		return http.StatusForbidden
	case errors.Is(err, ErrInvalidMessage):
		return http.StatusBadRequest
	case errors.Is(err, ErrRoomLimit):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}
