package service

import (
	"context"
	"crypto/subtle"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"messengerrelay/internal/constants"
	"messengerrelay/internal/errors"
	"messengerrelay/internal/metrics"
	"messengerrelay/internal/models"
	"messengerrelay/internal/tracing"
	"messengerrelay/internal/validation"
	"messengerrelay/pkg/messenger"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// Relay validates webhook traffic and answers each user through the reply strategy
type Relay interface {
	// VerifySubscription answers the subscription handshake with the challenge
	VerifySubscription(ctx context.Context, mode, token, challenge string) (string, error)
	// HandleEvent accepts an envelope and processes its entries in the background
	HandleEvent(ctx context.Context, envelope *models.WebhookEnvelope) error
	// StrategyName reports the active reply strategy
	StrategyName() string
	// InFlight reports the number of background tasks still running
	InFlight() int64
	// Wait blocks until every background task has finished or ctx is done
	Wait(ctx context.Context) error
}

type relay struct {
	config    *models.Config
	sender    messenger.Client
	strategy  ReplyStrategy
	logger    *logrus.Logger
	errLogger *errors.Logger

	wg       sync.WaitGroup
	inFlight atomic.Int64
}

// NewRelay creates the relay. cfg is read-only after this call.
func NewRelay(cfg *models.Config, sender messenger.Client, strategy ReplyStrategy, logger *logrus.Logger) Relay {
	if logger == nil {
		logger = logrus.New()
	}
	return &relay{
		config:    cfg,
		sender:    sender,
		strategy:  strategy,
		logger:    logger,
		errLogger: errors.WrapLogger(logger),
	}
}

func (r *relay) StrategyName() string {
	return r.strategy.Name()
}

func (r *relay) InFlight() int64 {
	return r.inFlight.Load()
}

func (r *relay) VerifySubscription(ctx context.Context, mode, token, challenge string) (string, error) {
	if mode == "" || token == "" {
		return "", errors.NewValidationError("hub.mode", "mode and verify token are required")
	}

	expected := r.config.Messenger.VerifyToken
	tokenOK := subtle.ConstantTimeCompare([]byte(token), []byte(expected)) == 1
	if mode != constants.SubscribeMode || !tokenOK {
		metrics.IncrementCounter("webhook_verifications_total", map[string]string{"status": "rejected"}, "Webhook subscription handshakes")
		entryFor(ctx, r.logger).WithField("mode", mode).Warn("Rejected webhook verification")
		return "", errors.NewAuthMismatchError(mode)
	}

	metrics.IncrementCounter("webhook_verifications_total", map[string]string{"status": "verified"}, "Webhook subscription handshakes")
	entryFor(ctx, r.logger).Info("WEBHOOK_VERIFIED")
	return challenge, nil
}

func (r *relay) HandleEvent(ctx context.Context, envelope *models.WebhookEnvelope) error {
	if envelope == nil {
		return errors.NewMalformedEnvelopeError("", nil)
	}
	if envelope.Object != constants.PageObject {
		metrics.IncrementCounter("webhook_envelopes_total", map[string]string{"status": "not_page"}, "Webhook envelopes received")
		entryFor(ctx, r.logger).WithField("object", envelope.Object).Debug("Skipping webhook envelope: not a page subscription")
		return errors.NewMalformedEnvelopeError(envelope.Object, nil)
	}

	metrics.IncrementCounter("webhook_envelopes_total", map[string]string{"status": "accepted"}, "Webhook envelopes received")
	entryFor(ctx, r.logger).WithField(LogFieldEntries, len(envelope.Entry)).Debug("Webhook envelope accepted")

	for _, entry := range envelope.Entry {
		event, ok := entry.FirstEvent()
		if !ok {
			entryFor(ctx, r.logger).WithField(LogFieldPageID, entry.ID).Debug("Skipping entry: no messaging events")
			continue
		}
		if dropped := len(entry.Messaging) - 1; dropped > 0 {
			metrics.AddToCounter("webhook_events_dropped_total", float64(dropped), nil, "Messaging events after the first in an entry")
			entryFor(ctx, r.logger).WithFields(logrus.Fields{
				LogFieldPageID: entry.ID,
				LogFieldCount:  dropped,
			}).Debug("Dropping additional messaging events in entry")
		}
		r.dispatch(ctx, entry.ID, event)
	}

	return nil
}

// dispatch processes one event in its own goroutine. The task outlives the
// inbound request, so it runs on a context detached from its cancellation.
func (r *relay) dispatch(ctx context.Context, pageID string, event models.MessagingEvent) {
	taskCtx := tracing.Detach(ctx)

	r.wg.Add(1)
	r.setInFlight(r.inFlight.Add(1))

	go func() {
		defer r.wg.Done()
		defer func() { r.setInFlight(r.inFlight.Add(-1)) }()
		defer func() {
			if p := recover(); p != nil {
				metrics.IncrementCounter("relay_task_panics_total", nil, "Recovered panics in messaging event tasks")
				entryFor(taskCtx, r.logger).WithFields(logrus.Fields{
					LogFieldPanic:  fmt.Sprint(p),
					LogFieldPageID: pageID,
					"stack":        string(debug.Stack()),
				}).Error("Recovered panic in messaging event task")
			}
		}()

		r.processEvent(taskCtx, pageID, event)
	}()
}

func (r *relay) setInFlight(n int64) {
	metrics.SetGauge("relay_tasks_in_flight", float64(n), nil, "Messaging event tasks in flight")
}

func (r *relay) processEvent(ctx context.Context, pageID string, event models.MessagingEvent) {
	kind := event.Kind()
	psid := event.Sender.ID

	ctx, span := tracing.StartSpan(ctx, "relay.process_event",
		attribute.String("messenger.event_kind", kind.String()),
		attribute.String("messenger.page_id", pageID),
	)
	defer span.End()

	metrics.IncrementCounter("webhook_events_total", map[string]string{"kind": kind.String()}, "Messaging events processed")

	log := entryFor(ctx, r.logger).WithFields(logrus.Fields{
		LogFieldPSID:      SanitizePSID(ctx, psid),
		LogFieldEventKind: kind.String(),
	})

	switch kind {
	case models.EventText, models.EventAttachment, models.EventPostback:
		if err := validation.ValidatePSID(psid); err != nil {
			log.WithError(err).Warn("Skipping messaging event: invalid sender")
			return
		}
	default:
		log.Debug("Skipping messaging event: nothing to answer")
		return
	}

	switch kind {
	case models.EventText:
		text := event.Message.Text
		if err := validation.ValidateUserText(text); err != nil {
			log.WithError(err).Warn("Skipping text message: invalid text")
			return
		}

		log.WithFields(logrus.Fields{
			LogFieldStrategy: r.strategy.Name(),
			"text":           SanitizeText(ctx, text),
		}).Info("Processing text message")

		start := time.Now()
		err := r.strategy.Respond(ctx, psid, text, func(ctx context.Context, reply *models.Reply) error {
			return r.send(ctx, psid, reply)
		})
		metrics.RecordTimer("reply_duration", time.Since(start), map[string]string{"strategy": r.strategy.Name()}, "Time to answer a text message")
		if err != nil {
			tracing.RecordError(ctx, err)
			log.WithError(err).Debug("Reply stopped after a send failure")
		}

	case models.EventAttachment:
		if !r.config.Reply.AttachmentFallbackEnabled() {
			log.Debug("Skipping attachment: fallback reply disabled")
			return
		}
		if err := r.send(ctx, psid, AttachmentFallbackReply(event.Message.Attachments)); err != nil {
			tracing.RecordError(ctx, err)
		}

	case models.EventPostback:
		reply := PostbackReply(event.Postback.Payload)
		if reply == nil {
			log.WithField(LogFieldPayload, event.Postback.Payload).Debug("Skipping postback: unknown payload")
			return
		}
		if err := r.send(ctx, psid, reply); err != nil {
			tracing.RecordError(ctx, err)
		}
	}
}

// send delivers one reply. Failures are logged and counted, never retried.
func (r *relay) send(ctx context.Context, psid string, reply *models.Reply) error {
	if reply == nil {
		return nil
	}

	start := time.Now()
	resp, err := r.sender.Send(ctx, psid, reply)
	duration := time.Since(start)
	metrics.RecordTimer("messenger_send_duration", duration, nil, "Send API latency")

	if err != nil {
		metrics.IncrementCounter("messenger_sends_total", map[string]string{"status": "error"}, "Send API calls")
		r.errLogger.LogError(err, "Failed to send Messenger reply", logrus.Fields{
			LogFieldPSID:     SanitizePSID(ctx, psid),
			LogFieldDuration: duration.Milliseconds(),
		})
		return err
	}

	metrics.IncrementCounter("messenger_sends_total", map[string]string{"status": "success"}, "Send API calls")
	fields := logrus.Fields{
		LogFieldPSID:     SanitizePSID(ctx, psid),
		LogFieldDuration: duration.Milliseconds(),
	}
	if resp != nil && resp.MessageID != "" {
		fields[LogFieldMessageID] = resp.MessageID
	}
	entryFor(ctx, r.logger).WithFields(fields).Info("Messenger reply sent")
	return nil
}

func (r *relay) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%d relay tasks still running: %w", r.inFlight.Load(), ctx.Err())
	}
}
