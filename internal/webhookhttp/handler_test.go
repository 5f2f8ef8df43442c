package webhookhttp_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/abilian/taler-go/internal/events"
	"github.com/abilian/taler-go/internal/taler"
	"github.com/abilian/taler-go/internal/webhookhttp"
)

const secret = "webhook-secret"

func sign(t *testing.T, body []byte) string {
	t.Helper()
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func newClient(t *testing.T) *taler.Client {
	t.Helper()
	client, err := taler.New(taler.Config{
		BackendBaseURL: "https://merchant.example.com",
		APIKey:         "test_api_key",
		WebhookSecret:  secret,
	})
	require.NoError(t, err)
	return client
}

func newRequest(body []byte, signature string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/taler/webhook", bytes.NewReader(body))
	if signature != "" {
		req.Header.Set(taler.SignatureHeader, signature)
	}
	return req
}

func TestHandleDispatchesVerifiedEvent(t *testing.T) {
	bus := events.NewBus()
	var seen []events.Event
	bus.Subscribe(events.TopicPaymentSucceeded, events.NotifierFunc(func(_ context.Context, ev events.Event) error {
		seen = append(seen, ev)
		return nil
	}))
	handler := webhookhttp.Handler{Client: newClient(t), Events: bus}

	body := []byte(`{"type":"payment.succeeded","payload":{"order_id":"order-1"}}`)
	rr := httptest.NewRecorder()
	handler.Handle(rr, newRequest(body, sign(t, body)))

	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Len(t, seen, 1)
	require.Equal(t, "order-1", seen[0].OrderID)
}

func TestHandleRejectsBadSignature(t *testing.T) {
	handler := webhookhttp.Handler{Client: newClient(t), Events: events.NewBus()}

	body := []byte(`{"type":"payment.succeeded","payload":{"order_id":"order-1"}}`)
	rr := httptest.NewRecorder()
	handler.Handle(rr, newRequest(body, "deadbeef"))
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = httptest.NewRecorder()
	handler.Handle(rr, newRequest(body, ""))
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestHandleRejectsMalformedPayload(t *testing.T) {
	handler := webhookhttp.Handler{Client: newClient(t), Events: events.NewBus()}

	body := []byte(`{"type":"payment.succeeded"}`)
	rr := httptest.NewRecorder()
	handler.Handle(rr, newRequest(body, sign(t, body)))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleReplayProtection(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	handler := webhookhttp.Handler{
		Client:    newClient(t),
		Events:    events.NewBus(),
		Replay:    rdb,
		ReplayTTL: time.Minute,
	}

	body := []byte(`{"type":"payment.failed","payload":{"order_id":"order-2"}}`)
	signature := sign(t, body)

	rr := httptest.NewRecorder()
	handler.Handle(rr, newRequest(body, signature))
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = httptest.NewRecorder()
	handler.Handle(rr, newRequest(body, signature))
	require.Equal(t, http.StatusConflict, rr.Code)
}
