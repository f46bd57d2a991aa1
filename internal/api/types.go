package api

import (
	"time"

	"github.com/satriahrh/suara/domain/entities"
)

// AuthRequest represents the request payload for operator authentication
type AuthRequest struct {
	ClientID string `json:"client_id"`
	Secret   string `json:"secret"`
}

// AuthResponse represents the response payload for operator authentication
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	ClientID  string    `json:"client_id"`
}

// StartResponse is returned when a recording starts
type StartResponse struct {
	SessionID string `json:"session_id"`
}

// SessionsResponse lists finished sessions, newest first
type SessionsResponse struct {
	Sessions []entities.SessionRecord `json:"sessions"`
	Count    int                      `json:"count"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
