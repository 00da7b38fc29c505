package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"

	"messengerrelay/internal/constants"
	"messengerrelay/internal/errors"
	"messengerrelay/internal/httputil"
	"messengerrelay/internal/middleware"
	"messengerrelay/internal/models"
	"messengerrelay/internal/service"
	"messengerrelay/internal/tracing"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type Server struct {
	cfg     *models.Config
	relay   service.Relay
	logger  *logrus.Logger
	verbose bool
	router  *mux.Router
	server  *http.Server
}

func NewServer(cfg *models.Config, relay service.Relay, logger *logrus.Logger, verbose bool) *Server {
	s := &Server{
		cfg:     cfg,
		relay:   relay,
		logger:  logger,
		verbose: verbose,
		router:  mux.NewRouter(),
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSec) * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.ObservabilityMiddleware(s.logger))
	if s.verbose {
		s.router.Use(middleware.DetailedLoggingMiddleware(s.logger, middleware.DefaultDetailedLoggingConfig()))
	}

	s.router.HandleFunc("/", s.handleHome()).Methods(http.MethodGet)
	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics", s.handleMetrics()).Methods(http.MethodGet)

	// Messenger webhook, with or without a trailing slash
	webhookMW := middleware.WebhookObservabilityMiddleware(s.logger)
	for _, path := range []string{"/webhook", "/webhook/"} {
		s.router.Handle(path, webhookMW(s.handleVerify())).Methods(http.MethodGet)
		s.router.Handle(path, webhookMW(s.handleEvent())).Methods(http.MethodPost)
	}
}

func (s *Server) Start() error {
	s.logger.Infof("Starting server on port %s", s.cfg.Server.Port)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHome() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteText(w, http.StatusOK, s.cfg.Server.HomePageBody)
	}
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":    "ok",
			"strategy":  s.relay.StrategyName(),
			"version":   Version,
			"in_flight": s.relay.InFlight(),
		})
	}
}

// handleVerify answers the subscription handshake. Failures get an empty body.
func (s *Server) handleVerify() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := service.WithVerbose(r.Context(), s.verbose)
		query := r.URL.Query()

		challenge, err := s.relay.VerifySubscription(ctx,
			query.Get("hub.mode"),
			query.Get("hub.verify_token"),
			query.Get("hub.challenge"),
		)
		if err != nil {
			w.WriteHeader(errors.HTTPStatusCode(err))
			return
		}

		httputil.WriteText(w, http.StatusOK, challenge)
	}
}

// handleEvent decodes the envelope and hands it to the relay. The reply work
// runs in the background so Messenger gets its 200 right away.
func (s *Server) handleEvent() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := service.WithVerbose(r.Context(), s.verbose)
		requestInfo := tracing.GetRequestInfo(ctx)
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxBodyBytes)

		var envelope models.WebhookEnvelope
		if err := json.NewDecoder(r.Body).Decode(&envelope); err != nil {
			status := errors.HTTPStatusCode(errors.NewMalformedEnvelopeError("", err))
			var maxBytesErr *http.MaxBytesError
			if stderrors.As(err, &maxBytesErr) {
				status = http.StatusRequestEntityTooLarge
			}

			s.logger.WithFields(logrus.Fields{
				service.LogFieldRequestID:  requestInfo.RequestID,
				service.LogFieldStatusCode: status,
			}).WithError(err).Warn("Rejected undecodable webhook body")
			w.WriteHeader(status)
			return
		}

		if err := s.relay.HandleEvent(ctx, &envelope); err != nil {
			w.WriteHeader(errors.HTTPStatusCode(err))
			return
		}

		httputil.WriteText(w, http.StatusOK, constants.EventReceivedBody)
	}
}
