package constants

// Default server configuration values
const (
	DefaultServerReadTimeoutSec  = 15
	DefaultServerWriteTimeoutSec = 15
	DefaultServerIdleTimeoutSec  = 60
	DefaultGracefulShutdownSec   = 30
	ServerErrorChannelSize       = 1
	DefaultMaxWebhookBodyBytes   = 1 << 20
)

// Messenger Platform defaults
const (
	DefaultGraphAPIURL         = "https://graph.facebook.com/v2.6"
	DefaultSendTimeoutSec      = 15
	DefaultMessagingType       = "RESPONSE"
	SubscribeMode              = "subscribe"
	PageObject                 = "page"
	EventReceivedBody          = "EVENT_RECEIVED"
	DefaultHomeBody            = "Hello World"
	MinProductionTokenLength   = 16
	DefaultTaskShutdownWaitSec = 10
)

// Reply strategy defaults
const (
	DefaultImageSearchURL      = "https://api.kenliejugarap.com/pinterestbymarjhun/"
	DefaultExternalTimeoutSec  = 15
	DefaultMaxTemplateElements = 5
	DefaultMaxSequentialImages = 10
	MaxGenericTemplateElements = 10
	DefaultImageElementTitle   = "Image"
	DefaultShowMoreButtonTitle = "Show More"
	ShowMorePayload            = "more_images"
	DefaultPersonaChatURL      = "https://api.kenliejugarap.com/freegpt4o8k/"
	DefaultPersonaChatModel    = "gpt-4o-mini"
	DefaultPersonaChatBackend  = "http"
	DefaultPersonaChatBanner   = "🤖 "
	DefaultPersonaChatThinking = "⏳ Thinking..."
	DefaultPersonaChatPrompt   = "You are a cheerful, playful assistant chatting on Messenger. Keep answers short and friendly. The user says: %s"
	DefaultPersonaChatApology  = "Oops, my brain took a little nap. Please try again in a moment!"
)

// Fixed reply texts and postback payloads
const (
	AttachmentFallbackTitle = "Sorry, I can't read images."
	NoImagesFoundText       = "Sorry, no images found for your search."
	ImageSearchErrorText    = "Sorry, there was an error while fetching images."
	PostbackPayloadYes      = "yes"
	PostbackPayloadNo       = "no"
	PostbackYesText         = "Thanks!"
	PostbackNoText          = "Oops, try sending another image."
)

// Circuit breaker defaults for the external reply APIs
const (
	DefaultBreakerMaxFailures = 5
	DefaultBreakerTimeoutSec  = 30
	DefaultBreakerHalfOpenMax = 3
)

// Privacy settings
const (
	DefaultPSIDMaskLength  = 4
	DefaultTokenMaskLength = 4
)

// Validation limits
const (
	MaxPSIDLength = 64
)
