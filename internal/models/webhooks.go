package models

// Messenger webhook object tags
const (
	ObjectPage = "page"
)

// WebhookEnvelope is the top-level payload of a Messenger webhook POST
type WebhookEnvelope struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry carries the messaging events of one page in a batch
type Entry struct {
	ID        string           `json:"id"`
	Time      int64            `json:"time"`
	Messaging []MessagingEvent `json:"messaging"`
}

// FirstEvent returns the first messaging event of the entry.
// Any further events in the same entry are ignored by the relay.
func (e Entry) FirstEvent() (MessagingEvent, bool) {
	if len(e.Messaging) == 0 {
		return MessagingEvent{}, false
	}
	return e.Messaging[0], true
}

// Party identifies a sender or recipient by page-scoped ID
type Party struct {
	ID string `json:"id"`
}

// MessagingEvent is a single message or postback from a user
type MessagingEvent struct {
	Sender    Party            `json:"sender"`
	Recipient Party            `json:"recipient"`
	Timestamp int64            `json:"timestamp"`
	Message   *InboundMessage  `json:"message,omitempty"`
	Postback  *InboundPostback `json:"postback,omitempty"`
}

// InboundMessage is the message part of a messaging event
type InboundMessage struct {
	MID         string              `json:"mid"`
	Text        string              `json:"text,omitempty"`
	IsEcho      bool                `json:"is_echo,omitempty"`
	Attachments []InboundAttachment `json:"attachments,omitempty"`
}

// InboundAttachment is a media attachment sent by the user
type InboundAttachment struct {
	Type    string                   `json:"type"`
	Payload InboundAttachmentPayload `json:"payload"`
}

// InboundAttachmentPayload holds the attachment URL
type InboundAttachmentPayload struct {
	URL string `json:"url"`
}

// InboundPostback is sent when a user taps a postback button
type InboundPostback struct {
	Title   string `json:"title,omitempty"`
	Payload string `json:"payload"`
}

// EventKind classifies a messaging event for dispatch
type EventKind int

const (
	EventUnknown EventKind = iota
	EventText
	EventAttachment
	EventPostback
	EventEcho
)

// String returns the string representation of the kind
func (k EventKind) String() string {
	switch k {
	case EventText:
		return "text"
	case EventAttachment:
		return "attachment"
	case EventPostback:
		return "postback"
	case EventEcho:
		return "echo"
	default:
		return "unknown"
	}
}

// Kind classifies the event. Text wins over attachments and a message wins over a postback.
func (m MessagingEvent) Kind() EventKind {
	if m.Message != nil {
		switch {
		case m.Message.IsEcho:
			return EventEcho
		case m.Message.Text != "":
			return EventText
		case len(m.Message.Attachments) > 0:
			return EventAttachment
		default:
			return EventUnknown
		}
	}
	if m.Postback != nil {
		return EventPostback
	}
	return EventUnknown
}
