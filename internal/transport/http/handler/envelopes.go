package handler

import (
	"encoding/json"
	"net/http"
)

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorCode int    `json:"error_code,omitempty"`
}

// RenewalEnvelope wraps the JSON renewal response.
type RenewalEnvelope struct {
	Valid        bool  `json:"valid"`
	Stale        bool  `json:"stale"`
	ExpirationTS int64 `json:"expiration_ts"`
}

// ValidityEnvelope wraps admin set-validity responses.
type ValidityEnvelope struct {
	ExpirationTS int64 `json:"expiration_ts"`
}

// ExpiredEnvelope wraps the admin expiry check.
type ExpiredEnvelope struct {
	Expired bool `json:"expired"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Error: msg})
}

func writeHTML(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
