package service

import (
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/heirloom-restoration/workshop/internal/apperr"
)

const (
	maxNameLength    = 100
	maxTitleLength   = 256
	maxContentLength = 4000
)

// ValidateName validates a person's display name.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return apperr.Validation("name is required")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return apperr.Validation("name exceeds maximum length")
	}
	return nil
}

// ValidateEmail validates an email address.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return apperr.Validation("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return apperr.Validation("email address is invalid")
	}
	return nil
}

// ValidateMessageContent validates chat message content.
func ValidateMessageContent(content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return apperr.Validation("message content is required")
	}
	if !utf8.ValidString(content) {
		return apperr.Validation("content must be valid UTF-8")
	}
	if utf8.RuneCountInString(content) > maxContentLength {
		return apperr.Validation("content exceeds maximum length")
	}
	return nil
}

// ValidateTitle validates a title.
func ValidateTitle(title string) error {
	if utf8.RuneCountInString(title) > maxTitleLength {
		return apperr.Validation("title exceeds maximum length")
	}
	if !utf8.ValidString(title) {
		return apperr.Validation("title must be valid UTF-8")
	}
	return nil
}

// ValidateID validates a record id.
func ValidateID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return apperr.Validation("invalid id format")
	}
	return nil
}
