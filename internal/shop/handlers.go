package shop

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/abilian/taler-go/internal/common"
	"github.com/abilian/taler-go/internal/events"
	"github.com/abilian/taler-go/internal/taler"
)

// Handler exposes the demo storefront endpoints.
type Handler struct {
	Client  *taler.Client
	Catalog *Catalog
	Orders  *Store
	Events  *events.Bus
	// BaseURL is the externally visible address of this storefront, used to
	// build fulfillment URLs handed to the backend.
	BaseURL string
	Logger  zerolog.Logger
}

// Products handles GET /products.
func (h Handler) Products(w http.ResponseWriter, _ *http.Request) {
	if h.Catalog == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog not configured", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": h.Catalog.List()})
}

// Buy handles POST /buy/{id}. It creates a backend order for the product and
// returns the address the payer should be sent to.
func (h Handler) Buy(w http.ResponseWriter, r *http.Request) {
	if h.Client == nil || h.Catalog == nil || h.Orders == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "storefront not configured", nil)
		return
	}
	productID := strings.TrimSpace(chi.URLParam(r, "id"))
	product, ok := h.Catalog.Get(productID)
	if !ok {
		common.JSONError(w, http.StatusNotFound, "PRODUCT_NOT_FOUND", "unknown product", nil)
		return
	}

	orderID := product.ID + "-" + uuid.NewString()
	result, err := h.Client.CreateOrder(r.Context(), taler.OrderRequest{
		Amount:         product.Price,
		OrderID:        orderID,
		Summary:        product.Name,
		FulfillmentURL: h.fulfillmentURL(),
		Metadata:       map[string]any{"product_id": product.ID},
	})
	if err != nil {
		h.writeClientError(w, err, "unable to create order")
		return
	}

	paymentURI := result.PaymentURI
	if paymentURI == "" {
		// Some backend versions return the payment address only on a
		// follow-up order lookup.
		paymentURI, err = h.Client.GetPaymentURL(r.Context(), result.OrderID)
		if err != nil {
			h.writeClientError(w, err, "unable to resolve payment address")
			return
		}
	}

	h.Orders.Put(Order{
		OrderID:    result.OrderID,
		ProductID:  product.ID,
		Status:     StatusPending,
		PaymentURI: paymentURI,
	})
	if h.Events != nil {
		_, _ = h.Events.Emit(r.Context(), events.TopicOrderCreated, result.OrderID, map[string]any{
			"order_id":   result.OrderID,
			"product_id": product.ID,
		})
	}
	h.Logger.Info().Str("order_id", result.OrderID).Str("product_id", product.ID).Msg("order created")
	common.JSON(w, http.StatusCreated, map[string]any{
		"order_id":    result.OrderID,
		"payment_url": paymentURI,
	})
}

// PaymentSuccess handles GET /payment/success/{orderID}, the fulfillment
// address the payer lands on after paying. It confirms the order with the
// backend before reporting success.
func (h Handler) PaymentSuccess(w http.ResponseWriter, r *http.Request) {
	if h.Client == nil || h.Orders == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "storefront not configured", nil)
		return
	}
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	result, err := h.Client.GetOrder(r.Context(), orderID)
	if err != nil {
		h.writeClientError(w, err, "unable to confirm order")
		return
	}
	if result == nil {
		common.JSONError(w, http.StatusNotFound, "ORDER_NOT_FOUND", "unknown order", nil)
		return
	}
	order := h.Orders.SetStatus(result.OrderID, StatusPaid, nil)
	common.JSON(w, http.StatusOK, map[string]any{"data": order})
}

// OrderStatus handles GET /orders/{orderID}.
func (h Handler) OrderStatus(w http.ResponseWriter, r *http.Request) {
	if h.Orders == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "storefront not configured", nil)
		return
	}
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	order, err := h.Orders.Get(orderID)
	if err != nil {
		common.JSONError(w, http.StatusNotFound, "ORDER_NOT_FOUND", "unknown order", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": order})
}

type refundRequestBody struct {
	Amount string `json:"amount"`
	Reason string `json:"reason"`
}

// Refund handles POST /refund/{orderID}. The body may carry a partial amount
// and a reason; an absent amount refunds the full order.
func (h Handler) Refund(w http.ResponseWriter, r *http.Request) {
	if h.Client == nil || h.Orders == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "storefront not configured", nil)
		return
	}
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))

	var body refundRequestBody
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "unable to decode request", nil)
			return
		}
	}

	result, err := h.Client.ProcessRefund(r.Context(), taler.RefundRequest{
		OrderID: orderID,
		Amount:  body.Amount,
		Reason:  body.Reason,
	})
	if err != nil {
		h.writeClientError(w, err, "unable to process refund")
		return
	}
	if result == nil {
		common.JSONError(w, http.StatusNotFound, "ORDER_NOT_FOUND", "unknown order", nil)
		return
	}
	h.Orders.SetRefunded(orderID, result.RefundID)
	if h.Events != nil {
		_, _ = h.Events.Emit(r.Context(), events.TopicOrderRefunded, orderID, map[string]any{
			"order_id":  orderID,
			"refund_id": result.RefundID,
		})
	}
	h.Logger.Info().Str("order_id", orderID).Str("refund_id", result.RefundID).Msg("refund processed")
	common.JSON(w, http.StatusOK, map[string]any{
		"order_id":  orderID,
		"refund_id": result.RefundID,
	})
}

func (h Handler) fulfillmentURL() string {
	base := strings.TrimRight(strings.TrimSpace(h.BaseURL), "/")
	if base == "" {
		return ""
	}
	return fmt.Sprintf("%s/payment/success/${ORDER_ID}", base)
}

func (h Handler) writeClientError(w http.ResponseWriter, err error, message string) {
	var transport *taler.TransportError
	var backend *taler.BackendError
	switch {
	case errors.As(err, &transport):
		h.Logger.Error().Err(err).Msg("backend unreachable")
		common.JSONError(w, http.StatusBadGateway, "BACKEND_UNREACHABLE", message, nil)
	case errors.As(err, &backend):
		h.Logger.Error().Err(err).Int("status", backend.Status).Msg("backend rejected request")
		common.JSONError(w, http.StatusBadGateway, "BACKEND_ERROR", message, nil)
	default:
		h.Logger.Error().Err(err).Msg("storefront failure")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", message, nil)
	}
}
