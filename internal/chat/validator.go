package chat

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxContentChars is the maximum message length in characters.
const MaxContentChars = 1000

// SendCommand is the client request to send a chat message.
type SendCommand struct {
	Content     string
	RecipientID string
	MessageType string
}

// Validate checks that a send command meets content requirements. The
// returned error describes the first violation found.
func (c SendCommand) Validate() error {
	if strings.TrimSpace(c.Content) == "" {
		return fmt.Errorf("content must not be blank")
	}
	if utf8.RuneCountInString(c.Content) > MaxContentChars {
		return fmt.Errorf("content exceeds %d character limit", MaxContentChars)
	}
	if !utf8.ValidString(c.Content) {
		return fmt.Errorf("content contains invalid UTF-8")
	}
	if strings.TrimSpace(c.RecipientID) == "" {
		return fmt.Errorf("recipientId must not be blank")
	}
	if c.MessageType == "" {
		return fmt.Errorf("messageType must not be empty")
	}
	if !ValidTypes[c.MessageType] {
		return fmt.Errorf("unknown messageType %q", c.MessageType)
	}
	return nil
}
