package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	intconfig "bookingcore/internal/config"
	"bookingcore/internal/gateway"
	h "bookingcore/internal/http/handlers"
	"bookingcore/internal/http/middleware"
	"bookingcore/internal/logger"
	"bookingcore/internal/metrics"
	"bookingcore/internal/repositories"
	"bookingcore/internal/services"
)

const webhookSecret = "whsec_test"

func newTestRouter(t *testing.T, env intconfig.Env) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := repositories.NewMemoryStore()
	reg := prometheus.NewRegistry()
	m := metrics.New("test", reg)
	log := logger.Nop()
	d := services.Deps{Store: store, Audit: store, Metrics: m, Log: log}
	return NewRouter(Options{
		Env:      env,
		Log:      log,
		Metrics:  m,
		Gatherer: reg,
		Handler:  h.New(d, log, webhookSecret),
	})
}

func do(r http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func as(id, role string) map[string]string {
	return map[string]string{"X-Actor-ID": id, "X-Actor-Role": role}
}

type bookingBody struct {
	ID      int64  `json:"id"`
	Status  string `json:"status"`
	Version int64  `json:"version"`
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func createBooking(t *testing.T, r http.Handler) bookingBody {
	t.Helper()
	w := do(r, http.MethodPost, "/api/bookings", map[string]any{
		"customerId":  "cust-1",
		"category":    "car",
		"tripType":    "city",
		"distance":    8.5,
		"ratePerKm":   90,
		"totalAmount": 765,
	}, as("cust-1", "User"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, `"1"`, w.Header().Get("ETag"))
	return decode[bookingBody](t, w)
}

func TestBookingLifecycleOverHTTP(t *testing.T) {
	r := newTestRouter(t, intconfig.Env{})
	b := createBooking(t, r)
	assert.Equal(t, "pending", b.Status)

	path := "/api/bookings/" + itoa(b.ID)
	w := do(r, http.MethodPost, path+"/status", map[string]any{"status": "accepted", "version": b.Version}, as("drv-1", "Driver"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	accepted := decode[bookingBody](t, w)
	assert.Equal(t, int64(2), accepted.Version)

	// The same stale version again loses.
	w = do(r, http.MethodPost, path+"/status", map[string]any{"status": "started", "version": b.Version}, as("drv-1", "Driver"))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "version_conflict", decode[h.ErrorResponse](t, w).Code)

	// If-Match carries the version when the body omits it.
	w = do(r, http.MethodPost, path+"/status", map[string]any{"status": "completed"}, map[string]string{
		"X-Actor-ID": "drv-1", "X-Actor-Role": "Driver", "If-Match": `"2"`,
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "invalid_transition", decode[h.ErrorResponse](t, w).Code)

	w = do(r, http.MethodGet, path+"/history", nil, as("cust-1", "User"))
	require.Equal(t, http.StatusOK, w.Code)
	hist := decode[struct {
		History []struct {
			Status string `json:"status"`
		} `json:"history"`
	}](t, w)
	require.Len(t, hist.History, 2)
	assert.Equal(t, "accepted", hist.History[1].Status)

	w = do(r, http.MethodGet, "/api/bookings?status=accepted", nil, as("ops-1", "Admin"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total":1`)
}

func TestAuthAndRoles(t *testing.T) {
	r := newTestRouter(t, intconfig.Env{})
	b := createBooking(t, r)
	path := "/api/bookings/" + itoa(b.ID)

	w := do(r, http.MethodGet, path, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(r, http.MethodPost, path+"/cancellation/approve", map[string]any{"version": 1}, as("cust-1", "User"))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(r, http.MethodPost, path+"/payment/cash-collected", map[string]any{"version": 1}, as("cust-1", "User"))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(r, http.MethodGet, "/api/bookings/abc", nil, as("cust-1", "User"))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodGet, "/api/bookings/999", nil, as("cust-1", "User"))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBearerTokens(t *testing.T) {
	const secret = "jwt-secret"
	r := newTestRouter(t, intconfig.Env{JWTSecret: secret})

	sign := func(key string, role string) string {
		tok := jwt.NewWithClaims(jwt.SigningMethodHS256, middleware.Claims{
			Role: role,
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "ops-1",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		})
		s, err := tok.SignedString([]byte(key))
		require.NoError(t, err)
		return "Bearer " + s
	}

	w := do(r, http.MethodGet, "/api/bookings", nil, map[string]string{"Authorization": sign(secret, "Admin")})
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodGet, "/api/bookings", nil, map[string]string{"Authorization": sign("wrong", "Admin")})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Headers are ignored once tokens are required.
	w = do(r, http.MethodGet, "/api/bookings", nil, as("ops-1", "Admin"))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPaymentWebhook(t *testing.T) {
	r := newTestRouter(t, intconfig.Env{})
	b := createBooking(t, r)
	path := "/api/bookings/" + itoa(b.ID)

	w := do(r, http.MethodPost, path+"/payment/intent", map[string]any{
		"version": b.Version, "method": "upi", "amount": 765,
	}, as("cust-1", "User"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	payload, err := json.Marshal(map[string]any{
		"bookingId": b.ID, "transactionId": "pay_abc", "status": "completed", "amount": 765,
	})
	require.NoError(t, err)

	send := func(sig string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/webhooks/payment", bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Gateway-Signature", sig)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w = send("deadbeef")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "invalid_signature", decode[h.ErrorResponse](t, w).Code)

	w = send(gateway.Sign(webhookSecret, payload))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	first := decode[map[string]any](t, w)
	assert.Equal(t, false, first["replayed"])
	assert.Equal(t, "completed", first["overallPaymentStatus"])

	w = send("sha256=" + gateway.Sign(webhookSecret, payload))
	require.Equal(t, http.StatusOK, w.Code)
	again := decode[map[string]any](t, w)
	assert.Equal(t, true, again["replayed"])
	assert.Equal(t, first["version"], again["version"])
}

func TestHealthAndMetrics(t *testing.T) {
	r := newTestRouter(t, intconfig.Env{})
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/api/health", nil, nil).Code)

	createBooking(t, r)
	w := do(r, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "test_http_request_duration_seconds")
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }

func TestBodylessDecisionsUseIfMatch(t *testing.T) {
	r := newTestRouter(t, intconfig.Env{})
	b := createBooking(t, r)
	path := "/api/bookings/" + itoa(b.ID)
	admin := func(version string) map[string]string {
		return map[string]string{"X-Actor-ID": "ops-1", "X-Actor-Role": "Admin", "If-Match": version}
	}

	w := do(r, http.MethodPost, path+"/cancellation/request", map[string]any{"version": 1, "reason": "plans changed"}, as("cust-1", "User"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(r, http.MethodPost, path+"/cancellation/reject", nil, admin(`"2"`))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	rejected := decode[bookingBody](t, w)
	assert.Equal(t, "pending", rejected.Status)
	assert.Equal(t, `"3"`, w.Header().Get("ETag"))

	w = do(r, http.MethodPost, path+"/cancellation/request", map[string]any{"version": 3, "reason": "still changed"}, as("cust-1", "User"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// A stale If-Match still loses without a body.
	w = do(r, http.MethodPost, path+"/cancellation/approve", nil, admin(`"3"`))
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(r, http.MethodPost, path+"/cancellation/approve", nil, admin(`"4"`))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "cancelled", decode[bookingBody](t, w).Status)

	req := httptest.NewRequest(http.MethodPost, path+"/cancellation/reject", bytes.NewBufferString("{not json"))
	for k, v := range admin(`"5"`) {
		req.Header.Set(k, v)
	}
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStatusAcceptsTargetStatus(t *testing.T) {
	r := newTestRouter(t, intconfig.Env{})
	b := createBooking(t, r)
	path := "/api/bookings/" + itoa(b.ID)

	w := do(r, http.MethodPost, path+"/status", map[string]any{"targetStatus": "accepted", "version": b.Version}, as("drv-1", "Driver"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "accepted", decode[bookingBody](t, w).Status)

	w = do(r, http.MethodPost, path+"/status", map[string]any{"version": 2}, as("drv-1", "Driver"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation_error", decode[h.ErrorResponse](t, w).Code)

	w = do(r, http.MethodPost, path+"/status", map[string]any{"targetStatus": "teleported", "version": 2}, as("drv-1", "Driver"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "cancellation_requested")
}

func TestListBookingsByDateRange(t *testing.T) {
	r := newTestRouter(t, intconfig.Env{})
	createBooking(t, r)
	now := time.Now().UTC()
	day := func(d time.Time) string { return d.Format("2006-01-02") }
	admin := as("ops-1", "Admin")

	w := do(r, http.MethodGet, "/api/bookings?dateRange="+day(now.AddDate(0, 0, -1))+","+day(now.AddDate(0, 0, 2)), nil, admin)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"total":1`)

	w = do(r, http.MethodGet, "/api/bookings?dateRange=2001-01-01,2001-02-01", nil, admin)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total":0`)

	w = do(r, http.MethodGet, "/api/bookings?dateRange=2001-01-01", nil, admin)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhookOutcomeAndDecimalAmounts(t *testing.T) {
	r := newTestRouter(t, intconfig.Env{})
	b := createBooking(t, r)
	path := "/api/bookings/" + itoa(b.ID)

	w := do(r, http.MethodPost, path+"/payment/intent", map[string]any{
		"version": b.Version, "method": "upi", "amount": "7.65",
	}, as("cust-1", "User"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	payload, err := json.Marshal(map[string]any{
		"bookingId": b.ID, "transactionId": "pay_dec", "outcome": "completed", "amount": "Rs 7.65",
	})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/payment", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Gateway-Signature", gateway.Sign(webhookSecret, payload))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[map[string]any](t, w)
	assert.Equal(t, "completed", res["overallPaymentStatus"])

	w = do(r, http.MethodPost, path+"/payment/intent", map[string]any{
		"version": 3, "method": "upi", "amount": "7.655",
	}, as("cust-1", "User"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
