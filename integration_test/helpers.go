package integration_test

import (
	"messengerrelay/internal/models"
)

// SentTexts returns the text of every plain text reply
func SentTexts(sent []models.SendRequest) []string {
	var texts []string
	for _, req := range sent {
		if req.Message != nil && req.Message.Text != "" {
			texts = append(texts, req.Message.Text)
		}
	}
	return texts
}

// RecipientsOf returns the recipient of each request in order
func RecipientsOf(sent []models.SendRequest) []string {
	recipients := make([]string, len(sent))
	for i, req := range sent {
		recipients[i] = req.Recipient.ID
	}
	return recipients
}
