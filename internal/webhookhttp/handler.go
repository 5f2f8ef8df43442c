package webhookhttp

import (
	"errors"
	"io"
	"net/http"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/abilian/taler-go/internal/common"
	"github.com/abilian/taler-go/internal/events"
	"github.com/abilian/taler-go/internal/obs"
	"github.com/abilian/taler-go/internal/taler"
)

const maxBodyBytes = 1 << 20

// Handler receives merchant backend notifications, verifies them through the
// payment client and republishes them on the event bus.
type Handler struct {
	Client    *taler.Client
	Events    *events.Bus
	Replay    *redis.Client
	ReplayTTL time.Duration
	Logger    zerolog.Logger
}

// Handle processes a single webhook delivery. The raw body is captured before
// parsing so the signature check covers the exact bytes sent by the backend.
func (h Handler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.Client == nil {
		common.JSONError(w, http.StatusInternalServerError, "WEBHOOK_NOT_CONFIGURED", "webhook unavailable", nil)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "unable to read payload", nil)
		return
	}

	event, err := h.Client.HandleWebhook(body, r.Header.Get(taler.SignatureHeader))
	if err != nil {
		switch {
		case errors.Is(err, taler.ErrSignatureInvalid):
			h.record("invalid_signature")
			common.JSONError(w, http.StatusUnauthorized, "INVALID_SIGNATURE", "signature verification failed", nil)
		case errors.Is(err, taler.ErrMalformedPayload):
			h.record("malformed")
			common.JSONError(w, http.StatusBadRequest, "MALFORMED_PAYLOAD", "unable to decode notification", nil)
		default:
			h.record("error")
			common.JSONError(w, http.StatusInternalServerError, "WEBHOOK_ERROR", err.Error(), nil)
		}
		return
	}

	if h.Replay != nil && h.ReplayTTL > 0 {
		key := "wh:taler:" + common.Sha256HexBytes(body)
		ok, err := h.Replay.SetNX(r.Context(), key, "1", h.ReplayTTL).Result()
		if err != nil {
			h.record("error")
			common.JSONError(w, http.StatusInternalServerError, "REPLAY_STORE_ERROR", err.Error(), nil)
			return
		}
		if !ok {
			h.record("replay")
			common.JSONError(w, http.StatusConflict, "REPLAY", "duplicate webhook", nil)
			return
		}
	}

	if h.Events != nil {
		topic := topicFor(event.Type)
		if _, err := h.Events.Emit(r.Context(), topic, event.OrderID, event.Raw); err != nil {
			h.Logger.Error().Err(err).Str("topic", topic).Str("order_id", event.OrderID).Msg("webhook event dispatch")
		}
	}
	h.record("ok")
	h.Logger.Info().Str("type", event.Type).Str("order_id", event.OrderID).Msg("webhook processed")
	w.WriteHeader(http.StatusNoContent)
}

func (h Handler) record(result string) {
	if obs.WebhookEventsTotal == nil {
		return
	}
	obs.WebhookEventsTotal.WithLabelValues(result).Inc()
}

func topicFor(eventType string) string {
	switch eventType {
	case taler.EventPaymentSucceeded:
		return events.TopicPaymentSucceeded
	case taler.EventPaymentFailed:
		return events.TopicPaymentFailed
	default:
		return eventType
	}
}
