package models

// Outbound attachment and template types
const (
	AttachmentTypeImage    = "image"
	AttachmentTypeTemplate = "template"
	TemplateTypeGeneric    = "generic"
	ButtonTypePostback     = "postback"
)

// Reply is the message part of a Send API request
type Reply struct {
	Text       string      `json:"text,omitempty"`
	Attachment *Attachment `json:"attachment,omitempty"`
}

// Attachment is a structured outbound attachment
type Attachment struct {
	Type    string            `json:"type"`
	Payload AttachmentPayload `json:"payload"`
}

// AttachmentPayload carries either a media URL or a template
type AttachmentPayload struct {
	URL          string            `json:"url,omitempty"`
	IsReusable   bool              `json:"is_reusable,omitempty"`
	TemplateType string            `json:"template_type,omitempty"`
	Elements     []TemplateElement `json:"elements,omitempty"`
}

// TemplateElement is one card of a generic template
type TemplateElement struct {
	Title    string   `json:"title"`
	Subtitle string   `json:"subtitle,omitempty"`
	ImageURL string   `json:"image_url,omitempty"`
	Buttons  []Button `json:"buttons,omitempty"`
}

// Button is a template action button
type Button struct {
	Type    string `json:"type"`
	Title   string `json:"title"`
	Payload string `json:"payload,omitempty"`
}

// SendRequest is the body of a Send API call
type SendRequest struct {
	MessagingType string `json:"messaging_type,omitempty"`
	Recipient     Party  `json:"recipient"`
	Message       *Reply `json:"message"`
}

// SendResponse is the Send API success body
type SendResponse struct {
	RecipientID string `json:"recipient_id"`
	MessageID   string `json:"message_id"`
}

// GraphError is the error body returned by the Graph API
type GraphError struct {
	Error struct {
		Message   string `json:"message"`
		Type      string `json:"type"`
		Code      int    `json:"code"`
		FBTraceID string `json:"fbtrace_id"`
	} `json:"error"`
}

// TextReply builds a plain text reply
func TextReply(text string) *Reply {
	return &Reply{Text: text}
}

// ImageReply builds a single image attachment reply
func ImageReply(url string) *Reply {
	return &Reply{
		Attachment: &Attachment{
			Type: AttachmentTypeImage,
			Payload: AttachmentPayload{
				URL:        url,
				IsReusable: true,
			},
		},
	}
}

// GenericTemplateReply builds a generic template reply from the given elements
func GenericTemplateReply(elements []TemplateElement) *Reply {
	return &Reply{
		Attachment: &Attachment{
			Type: AttachmentTypeTemplate,
			Payload: AttachmentPayload{
				TemplateType: TemplateTypeGeneric,
				Elements:     elements,
			},
		},
	}
}

// Elements returns the template elements of the reply, if any
func (r *Reply) Elements() []TemplateElement {
	if r == nil || r.Attachment == nil {
		return nil
	}
	return r.Attachment.Payload.Elements
}
