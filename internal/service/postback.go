package service

import (
	"messengerrelay/internal/constants"
	"messengerrelay/internal/models"
)

// PostbackReply maps a postback payload to its acknowledgement. Any payload
// other than yes/no, the template's "Show More" button included, returns nil
// and nothing is sent.
func PostbackReply(payload string) *models.Reply {
	switch payload {
	case constants.PostbackPayloadYes:
		return models.TextReply(constants.PostbackYesText)
	case constants.PostbackPayloadNo:
		return models.TextReply(constants.PostbackNoText)
	default:
		return nil
	}
}

// AttachmentFallbackReply is the fixed template sent back when a user sends
// media instead of text. It echoes the first attachment's URL.
func AttachmentFallbackReply(attachments []models.InboundAttachment) *models.Reply {
	element := models.TemplateElement{Title: constants.AttachmentFallbackTitle}
	if len(attachments) > 0 {
		element.ImageURL = attachments[0].Payload.URL
	}
	return models.GenericTemplateReply([]models.TemplateElement{element})
}
