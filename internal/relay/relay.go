// Package relay validates credential payloads, forwards them to the external
// connection testing service and reshapes its reply into an Envelope.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/illegalcall/bank-relay/internal/models"
)

const (
	MessageMissingFields  = "bank_id, email et password requis"
	MessageNotConfigured  = "Service non configuré. Configurez PYTHON_SERVICE_URL ou implémentez la logique ici."
	MessageUsePost        = "Utilisez POST pour tester les connexions"
	messageUpstreamPrefix = "Erreur lors de l'appel au service de test: "
	messageServerPrefix   = "Erreur serveur: "
)

// Outcome is the result of one POST: the envelope plus what is needed to
// account for it.
type Outcome struct {
	Envelope models.Envelope
	Kind     models.Outcome
	BankID   string
	Duration time.Duration
}

// Event converts the outcome into a credential-free event. requestID must be
// unique per request; correlationID is whatever the caller supplied.
func (o Outcome) Event(requestID, correlationID string, at time.Time) models.ConnectionTestEvent {
	return models.ConnectionTestEvent{
		RequestID:     requestID,
		CorrelationID: correlationID,
		BankID:        o.BankID,
		Outcome:       o.Kind,
		Success:       o.Envelope.Succeeded(),
		Message:       o.Envelope.Text(),
		DurationMS:    o.Duration.Milliseconds(),
		OccurredAt:    at.UTC(),
	}
}

// Relay holds only read-only configuration and is safe for concurrent use.
type Relay struct {
	endpoint  *url.URL
	forwarder Forwarder
	validate  *validator.Validate
	log       zerolog.Logger
}

// New creates a Relay. A nil endpoint keeps the relay in the not configured state.
func New(endpoint *url.URL, forwarder Forwarder, log zerolog.Logger) *Relay {
	validate := validator.New()
	// Registered with callValidationEvenIfNull so absent fields reach Truthy.
	_ = validate.RegisterValidation("truthy", func(fl validator.FieldLevel) bool {
		field := fl.Field()
		if !field.IsValid() {
			return false
		}
		return models.Truthy(field.Interface())
	}, true)

	return &Relay{
		endpoint:  endpoint,
		forwarder: forwarder,
		validate:  validate,
		log:       log,
	}
}

// Configured reports whether a forwarding endpoint was injected.
func (r *Relay) Configured() bool {
	return r.endpoint != nil
}

// HandlePost turns a raw request body into exactly one envelope.
func (r *Relay) HandlePost(ctx context.Context, rawBody []byte) Outcome {
	start := time.Now()
	log := r.logger(ctx)

	log.Info().
		Int("body_size", len(rawBody)).
		Str("bank_id", gjson.GetBytes(rawBody, "bank_id").String()).
		Msg("relay request received")

	outcome := r.handle(ctx, rawBody)
	outcome.Duration = time.Since(start)
	return outcome
}

// HandleGet rejects every GET whatever its query.
func (r *Relay) HandleGet() models.Envelope {
	return models.NewEnvelope(false, MessageUsePost, nil)
}

func (r *Relay) handle(ctx context.Context, rawBody []byte) Outcome {
	req, err := r.parse(rawBody)
	if err != nil {
		var malformed *MalformedInputError
		if errors.As(err, &malformed) {
			r.logger(ctx).Warn().Err(err).Msg("rejecting malformed relay request")
			return Outcome{
				Envelope: models.NewEnvelope(false, messageServerPrefix+malformed.Err.Error(), nil),
				Kind:     models.OutcomeMalformed,
			}
		}
		r.logger(ctx).Warn().Err(err).Msg("rejecting incomplete relay request")
		return Outcome{
			Envelope: models.NewEnvelope(false, MessageMissingFields, nil),
			Kind:     models.OutcomeInvalid,
			BankID:   req.BankLabel(),
		}
	}

	env, err := r.forward(ctx, *req)
	switch {
	case err == nil:
		return Outcome{Envelope: env, Kind: models.OutcomeForwarded, BankID: req.BankLabel()}
	case errors.Is(err, ErrNotConfigured):
		r.logger(ctx).Warn().Str("bank_id", req.BankLabel()).Msg("relay endpoint not configured")
		return Outcome{
			Envelope: models.NewEnvelope(false, MessageNotConfigured, nil),
			Kind:     models.OutcomeNotConfigured,
			BankID:   req.BankLabel(),
		}
	}

	var upstream *UpstreamError
	if !errors.As(err, &upstream) {
		upstream = &UpstreamError{Err: err}
	}
	r.logger(ctx).Error().
		Err(upstream.Err).
		Str("bank_id", req.BankLabel()).
		Str("endpoint", upstream.Endpoint).
		Msg("relay call to test service failed")

	return Outcome{
		Envelope: models.NewEnvelope(false, messageUpstreamPrefix+upstream.Err.Error(), nil),
		Kind:     models.OutcomeUpstreamError,
		BankID:   req.BankLabel(),
	}
}

// parse decodes and validates the body. Field values are not type checked:
// any JSON value is accepted and judged by truthiness. A body that is valid
// JSON but not an object has no fields and fails validation. On
// ErrMissingFields the partially decoded request is still returned.
func (r *Relay) parse(rawBody []byte) (*models.IncomingRequest, error) {
	dec := json.NewDecoder(bytes.NewReader(rawBody))
	dec.UseNumber()

	var body interface{}
	if err := dec.Decode(&body); err != nil {
		return nil, &MalformedInputError{Err: err}
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, &MalformedInputError{Err: errors.New("unexpected data after JSON body")}
	}
	if body == nil {
		return nil, &MalformedInputError{Err: errors.New("request body is null")}
	}

	fields, _ := body.(map[string]interface{})
	req := &models.IncomingRequest{
		BankID:   fields["bank_id"],
		Email:    fields["email"],
		Password: fields["password"],
	}
	if err := r.validate.Struct(req); err != nil {
		return req, fmt.Errorf("%w: %v", ErrMissingFields, err)
	}
	return req, nil
}

func (r *Relay) forward(ctx context.Context, req models.IncomingRequest) (models.Envelope, error) {
	if r.endpoint == nil {
		return models.Envelope{}, ErrNotConfigured
	}

	endpoint := r.endpoint.String()
	env, err := r.forwarder.Forward(ctx, endpoint, req)
	if err != nil {
		return models.Envelope{}, &UpstreamError{Endpoint: endpoint, Err: err}
	}
	return env, nil
}

// logger prefers the request scoped logger attached by the HTTP layer.
func (r *Relay) logger(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &r.log
}
