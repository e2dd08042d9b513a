package middleware

import (
	"errors"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	maxSessionKeyLength = 128
	maxTextLength       = 20000
)

// ValidateSessionID validates an opaque client session key.
func ValidateSessionID(id string) error {
	if len(id) == 0 {
		return errors.New("session_id cannot be empty")
	}
	if len(id) > maxSessionKeyLength {
		return errors.New("session_id exceeds maximum length")
	}
	if !utf8.ValidString(id) {
		return errors.New("session_id must be valid UTF-8")
	}
	return nil
}

// ValidateTranscriptText validates one side of a transcript fragment.
// Empty text is valid; a fragment may carry only one speaker.
func ValidateTranscriptText(text string) error {
	if len(text) > maxTextLength {
		return errors.New("text exceeds maximum length")
	}
	if !utf8.ValidString(text) {
		return errors.New("text must be valid UTF-8")
	}
	return nil
}

// ValidateConversationID validates a conversation record ID.
func ValidateConversationID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid conversation ID format")
	}
	return nil
}

// ValidateOwnerName validates the optional display name on a fragment.
func ValidateOwnerName(name string) error {
	if len(name) > 256 {
		return errors.New("user_name exceeds maximum length")
	}
	if !utf8.ValidString(name) {
		return errors.New("user_name must be valid UTF-8")
	}
	return nil
}
