package middleware

import (
	"encoding/json"
	"errors"
	"fmt"

	"TokenPulse/internal/domain/models"
	domrepo "TokenPulse/internal/domain/repository"
	"TokenPulse/internal/service/ratelimit"
	xhttp "TokenPulse/pkg/http"
	"TokenPulse/pkg/util"
)

var (
	// ErrThrottled is returned when a client sends faster than its bucket allows.
	ErrThrottled = errors.New("rate limit exceeded")
	// ErrInvalidMessage wraps every decode or validation failure.
	ErrInvalidMessage = errors.New("invalid message")
)

// MessagePipeline sits between a realtime connection and the broadcaster.
// It throttles, decodes and validates inbound frames.
type MessagePipeline struct {
	metrics      domrepo.Metrics
	limiter      *ratelimit.Keyed
	maxAddresses int
}

type PipelineOption func(*MessagePipeline)

// WithRate sets the per-client token bucket.
func WithRate(perSecond float64, burst int) PipelineOption {
	return func(p *MessagePipeline) {
		if perSecond > 0 {
			p.limiter = ratelimit.NewKeyed(perSecond, burst)
		}
	}
}

// WithMaxAddresses caps the addresses a single subscribe or unsubscribe may carry.
func WithMaxAddresses(n int) PipelineOption {
	return func(p *MessagePipeline) {
		if n > 0 {
			p.maxAddresses = n
		}
	}
}

// NewMessagePipeline creates a new pipeline.
func NewMessagePipeline(metrics domrepo.Metrics, opts ...PipelineOption) *MessagePipeline {
	p := &MessagePipeline{
		metrics:      metrics,
		limiter:      ratelimit.NewKeyed(10, 20),
		maxAddresses: 50,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Decode turns one inbound frame from clientID into a validated message.
// Addresses are trimmed and de-duplicated, keeping their original case.
func (p *MessagePipeline) Decode(clientID string, raw []byte) (models.ClientMessage, error) {
	if !p.limiter.Allow(clientID) {
		p.metrics.RecordError("ws_throttled")
		return models.ClientMessage{}, ErrThrottled
	}

	var msg models.ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		p.metrics.RecordError("ws_decode")
		return models.ClientMessage{}, fmt.Errorf("%w: invalid message format", ErrInvalidMessage)
	}

	if err := xhttp.ValidateStruct(&msg); err != nil {
		p.metrics.RecordError("ws_validate")
		return models.ClientMessage{}, p.describe(msg, err)
	}

	switch msg.Type {
	case models.MsgSubscribe, models.MsgUnsubscribe:
		msg.TokenAddresses = util.UniqueOriginal(msg.TokenAddresses)
		if len(msg.TokenAddresses) == 0 {
			p.metrics.RecordError("ws_validate")
			return models.ClientMessage{}, fmt.Errorf("%w: tokenAddresses is required", ErrInvalidMessage)
		}
		if len(msg.TokenAddresses) > p.maxAddresses {
			p.metrics.RecordError("ws_validate")
			return models.ClientMessage{}, fmt.Errorf("%w: tokenAddresses must contain at most %d entries", ErrInvalidMessage, p.maxAddresses)
		}
	default:
		msg.TokenAddresses = nil
	}
	return msg, nil
}

// Forget drops the throttle state of a disconnected client.
func (p *MessagePipeline) Forget(clientID string) {
	p.limiter.Forget(clientID)
}

func (p *MessagePipeline) describe(msg models.ClientMessage, err error) error {
	for _, v := range xhttp.ValidationErrors(err) {
		if v.Field == "type" && msg.Type != "" && v.Code == "ERR_ONEOF" {
			return fmt.Errorf("%w: unknown message type: %s", ErrInvalidMessage, msg.Type)
		}
		return fmt.Errorf("%w: %s", ErrInvalidMessage, v.Message)
	}
	return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
}
