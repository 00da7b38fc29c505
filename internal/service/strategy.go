package service

import (
	"context"
	"fmt"
	"strings"

	"messengerrelay/internal/constants"
	"messengerrelay/internal/errors"
	"messengerrelay/internal/models"
	"messengerrelay/pkg/imagesearch"
	"messengerrelay/pkg/personachat"

	"github.com/sirupsen/logrus"
)

// SendFunc delivers one reply to the user the strategy is answering
type SendFunc func(ctx context.Context, reply *models.Reply) error

// ReplyStrategy turns a user's text into one or more replies. External API
// failures never escape: they become fallback replies. The returned error is
// the first send failure, after which the strategy stops sending.
type ReplyStrategy interface {
	Name() string
	Respond(ctx context.Context, psid, text string, send SendFunc) error
}

// NewStrategy builds the strategy selected by cfg.Strategy
func NewStrategy(cfg models.ReplyConfig, search imagesearch.Searcher, chat personachat.Client, logger *logrus.Logger) (ReplyStrategy, error) {
	switch cfg.Strategy {
	case "", models.StrategyImageTemplate:
		if search == nil {
			return nil, errors.NewConfigError("reply.strategy", "image search client is required")
		}
		return &imageTemplateStrategy{search: search, config: cfg.ImageSearch, logger: logger}, nil
	case models.StrategyImageSequential:
		if search == nil {
			return nil, errors.NewConfigError("reply.strategy", "image search client is required")
		}
		return &imageSequentialStrategy{search: search, config: cfg.ImageSearch, logger: logger}, nil
	case models.StrategyImageSingle:
		if search == nil {
			return nil, errors.NewConfigError("reply.strategy", "image search client is required")
		}
		return &imageSingleStrategy{search: search, logger: logger}, nil
	case models.StrategyPersonaChat:
		if chat == nil {
			return nil, errors.NewConfigError("reply.strategy", "persona chat client is required")
		}
		return &personaChatStrategy{chat: chat, config: cfg.PersonaChat, logger: logger}, nil
	default:
		return nil, errors.NewConfigError("reply.strategy", fmt.Sprintf("unknown reply strategy %q", cfg.Strategy))
	}
}

// searchImages runs the image search and, on failure or no results, sends the
// matching fallback text. ok reports whether images were found.
func searchImages(ctx context.Context, search imagesearch.Searcher, logger *logrus.Logger, strategy, text string, send SendFunc) (images []string, ok bool, err error) {
	images, searchErr := search.Search(ctx, text)
	if searchErr != nil {
		entryFor(ctx, logger).WithFields(logrus.Fields{
			LogFieldStrategy:  strategy,
			LogFieldService:   ServiceImageSearch,
			LogFieldErrorCode: errors.GetCode(searchErr),
		}).WithError(searchErr).Warn("Image search request failed, sending fallback reply")
		return nil, false, send(ctx, models.TextReply(constants.ImageSearchErrorText))
	}

	if len(images) == 0 {
		entryFor(ctx, logger).WithField(LogFieldStrategy, strategy).Debug("Image search returned no results")
		return nil, false, send(ctx, models.TextReply(constants.NoImagesFoundText))
	}

	return images, true, nil
}

// imageTemplateStrategy sends one generic template with a card per image
type imageTemplateStrategy struct {
	search imagesearch.Searcher
	config models.ImageSearchConfig
	logger *logrus.Logger
}

func (s *imageTemplateStrategy) Name() string { return models.StrategyImageTemplate }

func (s *imageTemplateStrategy) Respond(ctx context.Context, psid, text string, send SendFunc) error {
	images, ok, err := searchImages(ctx, s.search, s.logger, s.Name(), text, send)
	if !ok {
		return err
	}
	return send(ctx, BuildImageTemplate(images, s.config))
}

// BuildImageTemplate builds the generic template for up to MaxTemplateElements images
func BuildImageTemplate(images []string, cfg models.ImageSearchConfig) *models.Reply {
	limit := cfg.MaxTemplateElements
	if limit <= 0 {
		limit = constants.DefaultMaxTemplateElements
	}
	if len(images) > limit {
		images = images[:limit]
	}

	title := cfg.ElementTitle
	if title == "" {
		title = constants.DefaultImageElementTitle
	}
	buttonTitle := cfg.ButtonTitle
	if buttonTitle == "" {
		buttonTitle = constants.DefaultShowMoreButtonTitle
	}

	elements := make([]models.TemplateElement, 0, len(images))
	for _, url := range images {
		elements = append(elements, models.TemplateElement{
			Title:    title,
			ImageURL: url,
			Buttons: []models.Button{{
				Type:    models.ButtonTypePostback,
				Title:   buttonTitle,
				Payload: constants.ShowMorePayload,
			}},
		})
	}
	return models.GenericTemplateReply(elements)
}

// imageSequentialStrategy sends each image as its own message, in order
type imageSequentialStrategy struct {
	search imagesearch.Searcher
	config models.ImageSearchConfig
	logger *logrus.Logger
}

func (s *imageSequentialStrategy) Name() string { return models.StrategyImageSequential }

func (s *imageSequentialStrategy) Respond(ctx context.Context, psid, text string, send SendFunc) error {
	images, ok, err := searchImages(ctx, s.search, s.logger, s.Name(), text, send)
	if !ok {
		return err
	}

	limit := s.config.MaxSequentialImages
	if limit <= 0 {
		limit = constants.DefaultMaxSequentialImages
	}
	if len(images) > limit {
		images = images[:limit]
	}

	for _, url := range images {
		if err := send(ctx, models.ImageReply(url)); err != nil {
			return err
		}
	}
	return nil
}

// imageSingleStrategy sends only the first image
type imageSingleStrategy struct {
	search imagesearch.Searcher
	logger *logrus.Logger
}

func (s *imageSingleStrategy) Name() string { return models.StrategyImageSingle }

func (s *imageSingleStrategy) Respond(ctx context.Context, psid, text string, send SendFunc) error {
	images, ok, err := searchImages(ctx, s.search, s.logger, s.Name(), text, send)
	if !ok {
		return err
	}
	return send(ctx, models.ImageReply(images[0]))
}

// personaChatStrategy answers through a text generation backend
type personaChatStrategy struct {
	chat   personachat.Client
	config models.PersonaChatConfig
	logger *logrus.Logger
}

func (s *personaChatStrategy) Name() string { return models.StrategyPersonaChat }

func (s *personaChatStrategy) Respond(ctx context.Context, psid, text string, send SendFunc) error {
	thinking := s.config.ThinkingText
	if thinking == "" {
		thinking = constants.DefaultPersonaChatThinking
	}
	// The placeholder is best effort; the answer is still attempted if it fails.
	_ = send(ctx, models.TextReply(thinking))

	answer, err := s.chat.Ask(ctx, BuildPersonaPrompt(s.config.PromptTemplate, text), psid)
	if err != nil {
		entryFor(ctx, s.logger).WithFields(logrus.Fields{
			LogFieldStrategy:  s.Name(),
			LogFieldService:   ServicePersonaChat,
			LogFieldErrorCode: errors.GetCode(err),
		}).WithError(err).Warn("Persona chat request failed, sending apology")

		apology := s.config.ApologyText
		if apology == "" {
			apology = constants.DefaultPersonaChatApology
		}
		return send(ctx, models.TextReply(apology))
	}

	banner := s.config.Banner
	if banner == "" {
		banner = constants.DefaultPersonaChatBanner
	}
	return send(ctx, models.TextReply(banner+answer))
}

// BuildPersonaPrompt substitutes the user's message for the first %s in template
func BuildPersonaPrompt(template, text string) string {
	if template == "" {
		template = constants.DefaultPersonaChatPrompt
	}
	return strings.Replace(template, "%s", text, 1)
}
