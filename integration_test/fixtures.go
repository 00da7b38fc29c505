package integration_test

import (
	"fmt"
	"time"

	"messengerrelay/internal/models"
)

// Credentials configured on every test relay
const (
	TestVerifyToken     = "integration-verify-token"
	TestPageAccessToken = "integration-page-access-token"
	TestPageID          = "104857600123456"
)

// TestFixtures builds webhook envelopes for the message flow scenarios
type TestFixtures struct{}

// NewTestFixtures creates a new fixtures instance
func NewTestFixtures() *TestFixtures {
	return &TestFixtures{}
}

// Users returns page-scoped IDs keyed by a short name
func (f *TestFixtures) Users() map[string]string {
	return map[string]string{
		"alice": "6783451209876543",
		"bob":   "2468013579246801",
		"carol": "1357924680135792",
	}
}

// Envelope wraps the events into a page envelope, one entry per event
func (f *TestFixtures) Envelope(events ...models.MessagingEvent) models.WebhookEnvelope {
	envelope := models.WebhookEnvelope{Object: models.ObjectPage}
	for _, event := range events {
		envelope.Entry = append(envelope.Entry, models.Entry{
			ID:        TestPageID,
			Time:      time.Now().UnixMilli(),
			Messaging: []models.MessagingEvent{event},
		})
	}
	return envelope
}

// TextEvent is a plain text message from psid
func (f *TestFixtures) TextEvent(psid, text string) models.MessagingEvent {
	return models.MessagingEvent{
		Sender:    models.Party{ID: psid},
		Recipient: models.Party{ID: TestPageID},
		Timestamp: time.Now().UnixMilli(),
		Message: &models.InboundMessage{
			MID:  fmt.Sprintf("m_%d", time.Now().UnixNano()),
			Text: text,
		},
	}
}

// ImageEvent is an image attachment without text
func (f *TestFixtures) ImageEvent(psid, url string) models.MessagingEvent {
	return models.MessagingEvent{
		Sender:    models.Party{ID: psid},
		Recipient: models.Party{ID: TestPageID},
		Timestamp: time.Now().UnixMilli(),
		Message: &models.InboundMessage{
			MID: fmt.Sprintf("m_%d", time.Now().UnixNano()),
			Attachments: []models.InboundAttachment{{
				Type:    models.AttachmentTypeImage,
				Payload: models.InboundAttachmentPayload{URL: url},
			}},
		},
	}
}

// PostbackEvent is a button tap carrying payload
func (f *TestFixtures) PostbackEvent(psid, payload string) models.MessagingEvent {
	return models.MessagingEvent{
		Sender:    models.Party{ID: psid},
		Recipient: models.Party{ID: TestPageID},
		Timestamp: time.Now().UnixMilli(),
		Postback:  &models.InboundPostback{Title: payload, Payload: payload},
	}
}

// EchoEvent is a copy of a message the page itself sent
func (f *TestFixtures) EchoEvent(psid, text string) models.MessagingEvent {
	event := f.TextEvent(psid, text)
	event.Message.IsEcho = true
	return event
}

// ImageURLs returns n distinct image URLs
func (f *TestFixtures) ImageURLs(n int) []string {
	urls := make([]string, n)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://images.example.com/%d.jpg", i+1)
	}
	return urls
}
