package shop_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/abilian/taler-go/internal/shop"
	"github.com/abilian/taler-go/internal/taler"
)

func newStorefront(t *testing.T, backend http.Handler) (shop.Handler, *shop.Store) {
	t.Helper()
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)
	client, err := taler.New(taler.Config{
		BackendBaseURL: srv.URL,
		APIKey:         "test_api_key",
	})
	require.NoError(t, err)
	store := shop.NewStore()
	return shop.Handler{
		Client:  client,
		Catalog: shop.DefaultCatalog("EUR"),
		Orders:  store,
		BaseURL: "https://shop.example.com",
	}, store
}

func newRouter(h shop.Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/products", h.Products)
	r.Post("/buy/{id}", h.Buy)
	r.Get("/payment/success/{orderID}", h.PaymentSuccess)
	r.Get("/orders/{orderID}", h.OrderStatus)
	r.Post("/refund/{orderID}", h.Refund)
	return r
}

func TestProductsListing(t *testing.T) {
	handler, _ := newStorefront(t, http.NotFoundHandler())
	rr := httptest.NewRecorder()
	newRouter(handler).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/products", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Data []shop.Product `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Data, 3)
	require.Equal(t, "article-1", body.Data[0].ID)
	require.Equal(t, "EUR:0.5", body.Data[0].Price.String())
}

func TestBuyCreatesOrder(t *testing.T) {
	var gotBody map[string]any
	backend := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/private/orders", r.URL.Path)
		require.Equal(t, "Basic test_api_key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"order_id":"order-7","taler_pay_uri":"taler://pay/order-7"}`))
	})
	handler, store := newStorefront(t, backend)

	rr := httptest.NewRecorder()
	newRouter(handler).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/buy/article-2", nil))

	require.Equal(t, http.StatusCreated, rr.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "order-7", resp["order_id"])
	require.Equal(t, "taler://pay/order-7", resp["payment_url"])

	order, ok := gotBody["order"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "EUR:1.5", order["amount"])
	require.Equal(t, "Article two", order["summary"])
	orderID, _ := order["order_id"].(string)
	require.True(t, strings.HasPrefix(orderID, "article-2-"), orderID)
	require.Equal(t, true, gotBody["create_token"])

	stored, err := store.Get("order-7")
	require.NoError(t, err)
	require.Equal(t, shop.StatusPending, stored.Status)
}

func TestBuyUnknownProduct(t *testing.T) {
	handler, _ := newStorefront(t, http.NotFoundHandler())
	rr := httptest.NewRecorder()
	newRouter(handler).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/buy/nope", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestBuyBackendDown(t *testing.T) {
	backend := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	handler, _ := newStorefront(t, backend)
	rr := httptest.NewRecorder()
	newRouter(handler).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/buy/article-1", nil))
	require.Equal(t, http.StatusBadGateway, rr.Code)
}

func TestPaymentSuccessMarksOrderPaid(t *testing.T) {
	backend := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/private/orders/order-9", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"order_id":"order-9","order_status":"paid"}`))
	})
	handler, store := newStorefront(t, backend)
	store.Put(shop.Order{OrderID: "order-9", ProductID: "article-1", Status: shop.StatusPending})

	rr := httptest.NewRecorder()
	newRouter(handler).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/payment/success/order-9", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	stored, err := store.Get("order-9")
	require.NoError(t, err)
	require.Equal(t, shop.StatusPaid, stored.Status)
}

func TestPaymentSuccessUnknownOrder(t *testing.T) {
	handler, _ := newStorefront(t, http.NotFoundHandler())
	rr := httptest.NewRecorder()
	newRouter(handler).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/payment/success/missing", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRefund(t *testing.T) {
	backend := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/private/orders/order-5/refund", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "0.5", body["refund"])
		require.Equal(t, "damaged", body["reason"])
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"refund_id":"refund-1"}`))
	})
	handler, store := newStorefront(t, backend)
	store.Put(shop.Order{OrderID: "order-5", ProductID: "article-1", Status: shop.StatusPaid})

	req := httptest.NewRequest(http.MethodPost, "/refund/order-5", strings.NewReader(`{"amount":"0.5","reason":"damaged"}`))
	rr := httptest.NewRecorder()
	newRouter(handler).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	stored, err := store.Get("order-5")
	require.NoError(t, err)
	require.Equal(t, shop.StatusRefunded, stored.Status)
	require.Equal(t, "refund-1", stored.RefundID)
}

func TestRefundUnknownOrder(t *testing.T) {
	handler, _ := newStorefront(t, http.NotFoundHandler())
	rr := httptest.NewRecorder()
	newRouter(handler).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/refund/missing", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)
}
