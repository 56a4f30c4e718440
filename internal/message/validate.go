package message

import (
	"fmt"
	"unicode/utf8"
)

const (
	MaxContentBytes = 4096 // 4KB max content size
	MaxContentChars = 2000 // max character count
)

// Validate checks that a message-to-be meets content requirements: it must
// carry non-empty content or at least one attachment, and text content must
// stay within size limits and be valid UTF-8. Attachments only need a URL;
// the upload service owns everything else about them.
func Validate(content string, attachments []Attachment) error {
	if len(content) == 0 && len(attachments) == 0 {
		return fmt.Errorf("message requires content or at least one attachment")
	}
	if len(content) > MaxContentBytes {
		return fmt.Errorf("content exceeds %d byte limit", MaxContentBytes)
	}
	if utf8.RuneCountInString(content) > MaxContentChars {
		return fmt.Errorf("content exceeds %d character limit", MaxContentChars)
	}
	if !utf8.ValidString(content) {
		return fmt.Errorf("content contains invalid UTF-8")
	}
	for _, a := range attachments {
		if a.URL == "" {
			return fmt.Errorf("attachment is missing a url")
		}
	}
	return nil
}
