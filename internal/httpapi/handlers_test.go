package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"order-service/internal/clients"
	"order-service/internal/metrics"
	"order-service/internal/orders"
	"order-service/internal/telemetry"
)

// memStore keeps orders as BSON documents, so reads see what a Mongo
// round trip would give back.
type memStore struct {
	mu        sync.Mutex
	docs      [][]byte
	findCalls int
	pingErr   error
}

func (m *memStore) Insert(_ context.Context, o *orders.Order) (primitive.ObjectID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *o
	stored.ID = primitive.NewObjectID()
	doc, err := bson.Marshal(stored)
	if err != nil {
		return primitive.NilObjectID, &orders.DatabaseError{Op: "insert", Err: err}
	}
	m.docs = append(m.docs, doc)
	return stored.ID, nil
}

func (m *memStore) all() []orders.Order {
	out := make([]orders.Order, 0, len(m.docs))
	for _, doc := range m.docs {
		var o orders.Order
		if err := bson.Unmarshal(doc, &o); err == nil {
			out = append(out, o)
		}
	}
	return out
}

func (m *memStore) FindByID(_ context.Context, id primitive.ObjectID) (*orders.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.findCalls++
	for _, o := range m.all() {
		if o.ID == id {
			found := o
			return &found, nil
		}
	}
	return nil, orders.ErrNotFound
}

func (m *memStore) List(_ context.Context, skip, limit int64) ([]orders.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.all()
	out := []orders.Order{}
	for i := skip; i < int64(len(all)) && int64(len(out)) < limit; i++ {
		out = append(out, all[i])
	}
	return out, nil
}

func (m *memStore) Ping(context.Context) error { return m.pingErr }

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs)
}

type busStub struct {
	mu     sync.Mutex
	status string
	err    error
	sent   [][]byte
}

func (b *busStub) Publish(_ context.Context, _ string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.sent = append(b.sent, data)
	return nil
}

func (b *busStub) Status() string { return b.status }

func (b *busStub) published() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sent)
}

type env struct {
	router   http.Handler
	store    *memStore
	bus      *busStub
	metrics  *metrics.Metrics
	upstream *httptest.Server
}

// newEnv serves user 1 and products 10 (priced, 5 in stock) and 20
// (unpriced, 5 in stock) from a fake collaborator.
func newEnv(t *testing.T) *env {
	t.Helper()
	mr := mux.NewRouter()
	mr.HandleFunc("/api/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		switch mux.Vars(r)["id"] {
		case "1":
			w.Write([]byte(`{"id":1,"name":"Ada","email":"ada@example.com"}`))
		case "500":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			http.Error(w, `{"detail":"User not found"}`, http.StatusNotFound)
		}
	})
	mr.HandleFunc("/api/inventory/{id}", func(w http.ResponseWriter, r *http.Request) {
		switch mux.Vars(r)["id"] {
		case "10":
			w.Write([]byte(`{"id":10,"product_name":"Widget","sku":"W-10","quantity":5,"location":"A1","price":12.5}`))
		case "20":
			w.Write([]byte(`{"id":20,"product_name":"Gadget","sku":"G-20","quantity":5,"location":"B2"}`))
		default:
			http.Error(w, `{"error":"Item not found"}`, http.StatusNotFound)
		}
	})
	upstream := httptest.NewServer(mr)
	t.Cleanup(upstream.Close)

	quiet := logrus.New()
	quiet.SetLevel(logrus.PanicLevel)
	logger := logrus.NewEntry(quiet)

	store := &memStore{}
	bus := &busStub{status: "connected"}
	m := metrics.New()
	client := clients.NewHTTPClient(time.Second)
	svc := orders.NewService(store,
		clients.NewUserClient(upstream.URL, client, logger),
		clients.NewInventoryClient(upstream.URL, client, logger),
		bus, 999.99, logger)
	h := NewHandler(svc, bus, m, "order-service", logger)

	return &env{router: NewRouter(h, m, logger), store: store, bus: bus, metrics: m, upstream: upstream}
}

func (e *env) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, httptest.NewRequest(method, path, rdr))
	return rec
}

func decodeOrder(t *testing.T, rec *httptest.ResponseRecorder) orders.Order {
	t.Helper()
	var o orders.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &o))
	return o
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var e errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	return e.Error
}

func TestSimpleCreateThenGet(t *testing.T) {
	e := newEnv(t)

	created := e.do(t, "POST", "/api/orders", `{"user_id":3,"product_name":"Lamp","quantity":4,"price_per_unit":2.5}`)
	require.Equal(t, http.StatusCreated, created.Code)
	order := decodeOrder(t, created)
	assert.False(t, order.ID.IsZero())
	assert.Equal(t, 10.0, order.TotalPrice)
	assert.Equal(t, "pending", order.Status)
	assert.Equal(t, 1, e.bus.published())

	got := e.do(t, "GET", "/api/orders/"+order.ID.Hex(), "")
	require.Equal(t, http.StatusOK, got.Code)
	assert.Equal(t, created.Body.String(), got.Body.String())
}

func TestSimpleCreateRejectsBadBodies(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, "POST", "/api/orders", `{"user_id":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, msgInvalidBody, errorMessage(t, rec))

	rec = e.do(t, "POST", "/api/orders", `{"user_id":1,"product_name":"Lamp","quantity":0,"price_per_unit":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, errorMessage(t, rec), "quantity")

	assert.Zero(t, e.store.count())
}

func TestValidatedCreateUsesInventoryPrice(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, "POST", "/api/orders/validated", `{"user_id":1,"product_id":"10","quantity":2}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	order := decodeOrder(t, rec)
	assert.Equal(t, "Widget", order.ProductName)
	assert.Equal(t, 25.0, order.TotalPrice)
	require.Equal(t, 1, e.bus.published())

	var ev map[string]any
	require.NoError(t, json.Unmarshal(e.bus.sent[0], &ev))
	assert.Equal(t, "Ada", ev["user_name"])
	assert.Equal(t, "10", ev["product_id"])
}

func TestValidatedCreateUsesFallbackPrice(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, "POST", "/api/orders/validated", `{"user_id":1,"product_id":"20","quantity":2}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.InDelta(t, 1999.98, decodeOrder(t, rec).TotalPrice, 1e-9)
}

func TestValidatedCreateRejections(t *testing.T) {
	tests := []struct {
		name string
		body string
		msg  string
	}{
		{"unknown user", `{"user_id":42,"product_id":"10","quantity":1}`, "User 42 not found"},
		{"unknown product", `{"user_id":1,"product_id":"99","quantity":1}`, "Product 99 not found"},
		{"insufficient stock", `{"user_id":1,"product_id":"10","quantity":6}`, "Insufficient inventory for Widget: requested 6, available 5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)

			rec := e.do(t, "POST", "/api/orders/validated", tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.msg, errorMessage(t, rec))
			list := e.do(t, "GET", "/api/orders", "")
			assert.JSONEq(t, `[]`, list.Body.String())
			assert.Zero(t, e.bus.published())
		})
	}
}

func TestValidatedCreateUpstreamFailureIs500(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, "POST", "/api/orders/validated", `{"user_id":500,"product_id":"10","quantity":1}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, msgUpstream, errorMessage(t, rec))
	assert.Zero(t, e.store.count())
}

func TestValidatedCreateSurvivesBrokerOutage(t *testing.T) {
	e := newEnv(t)
	e.bus.err = errors.New("nats: connection closed")

	rec := e.do(t, "POST", "/api/orders/validated", `{"user_id":1,"product_id":"10","quantity":1}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, 1, e.store.count())
	assert.Equal(t, e.store.all()[0].ID, decodeOrder(t, rec).ID)
}

func TestListSkipAndLimit(t *testing.T) {
	e := newEnv(t)
	var ids []primitive.ObjectID
	for i := 1; i <= 5; i++ {
		body, _ := json.Marshal(createOrderRequest{UserID: i, ProductName: "p", Quantity: 1, PricePerUnit: 1})
		rec := e.do(t, "POST", "/api/orders", string(body))
		require.Equal(t, http.StatusCreated, rec.Code)
		ids = append(ids, decodeOrder(t, rec).ID)
	}

	rec := e.do(t, "GET", "/api/orders?skip=2&limit=3", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []orders.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 3)
	for i, o := range list {
		assert.Equal(t, ids[i+2], o.ID)
		assert.Equal(t, i+3, o.UserID)
	}

	rec = e.do(t, "GET", "/api/orders?skip=bogus&limit=-1", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 5)
}

func TestGetOrderErrors(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, "GET", "/api/orders/not-an-object-id", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, msgInternal, errorMessage(t, rec))
	assert.Zero(t, e.store.findCalls)

	rec = e.do(t, "GET", "/api/orders/"+primitive.NewObjectID().Hex(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, msgOrderNotFound, errorMessage(t, rec))
}

func TestHealth(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, "GET", "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy","service":"order-service","database":"connected","nats":"connected"}`, rec.Body.String())

	e.store.pingErr = &orders.DatabaseError{Op: "ping", Err: errors.New("no reachable servers")}
	e.bus.status = "disconnected"
	rec = e.do(t, "GET", "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"unhealthy","service":"order-service","database":"error","nats":"disconnected"}`, rec.Body.String())
}

func TestMetricsEndpointCountsOrders(t *testing.T) {
	e := newEnv(t)
	e.do(t, "POST", "/api/orders", `{"user_id":1,"product_name":"Lamp","quantity":1,"price_per_unit":1}`)
	e.do(t, "GET", "/api/orders", "")

	rec := e.do(t, "GET", "/metrics", "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "orders_created_total 1")
	assert.Contains(t, body, "orders_queried_total 1")
	assert.Contains(t, body, `http_requests_total{endpoint="/api/orders",method="POST",status="201"} 1`)
}

func TestRequestIDHeader(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, "GET", "/health", "")
	assert.NotEmpty(t, rec.Header().Get(HeaderRequestID))

	req := httptest.NewRequest("GET", "/health", nil)
	req.Header.Set(HeaderRequestID, "req-123")
	rec = httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	assert.Equal(t, "req-123", rec.Header().Get(HeaderRequestID))
}

func TestPanicAnswers500AndIsCounted(t *testing.T) {
	quiet := logrus.New()
	quiet.SetLevel(logrus.PanicLevel)
	m := metrics.New()
	r := newBaseRouter("order-service", m, logrus.NewEntry(quiet))
	r.HandleFunc("/boom", func(http.ResponseWriter, *http.Request) { panic("boom") })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(HeaderRequestID))

	metricsRec := httptest.NewRecorder()
	m.Handler().ServeHTTP(metricsRec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Contains(t, metricsRec.Body.String(), `http_requests_total{endpoint="/boom",method="GET",status="500"} 1`)
}

// headerCounter counts WriteHeader calls that reach the connection.
type headerCounter struct {
	http.ResponseWriter
	calls int
}

func (c *headerCounter) WriteHeader(code int) {
	c.calls++
	c.ResponseWriter.WriteHeader(code)
}

func TestPanicAfterHeaderWritesOneHeader(t *testing.T) {
	quiet := logrus.New()
	quiet.SetLevel(logrus.PanicLevel)
	r := newBaseRouter("order-service", metrics.New(), logrus.NewEntry(quiet))
	r.HandleFunc("/late", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		panic("late")
	})

	rec := httptest.NewRecorder()
	w := &headerCounter{ResponseWriter: rec}
	r.ServeHTTP(w, httptest.NewRequest("GET", "/late", nil))

	assert.Equal(t, 1, w.calls)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestSimpleCreateRejectsOverflowingTotal(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, "POST", "/api/orders", `{"user_id":1,"product_name":"Yacht","quantity":10,"price_per_unit":1e308}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, errorMessage(t, rec), "total_price")
	assert.Zero(t, e.store.count())
	assert.Zero(t, e.bus.published())

	list := e.do(t, "GET", "/api/orders", "")
	assert.Equal(t, http.StatusOK, list.Code)
	assert.JSONEq(t, `[]`, list.Body.String())
}

func TestWriteJSONUnencodableValueIs500(t *testing.T) {
	rec := httptest.NewRecorder()

	writeJSON(rec, http.StatusOK, orders.Order{TotalPrice: math.Inf(1)})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, msgInternal, errorMessage(t, rec))
}

func TestCreateRejectsOversizedBody(t *testing.T) {
	e := newEnv(t)
	body := `{"user_id":1,"product_name":"` + strings.Repeat("x", maxBodyBytes) + `","quantity":1,"price_per_unit":1}`

	rec := e.do(t, "POST", "/api/orders", body)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, msgBodyTooLarge, errorMessage(t, rec))
	assert.Zero(t, e.store.count())
}

func TestRequestsJoinCallerTrace(t *testing.T) {
	telemetry.SetupPropagator()
	rec := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	e := newEnv(t)

	req := httptest.NewRequest("POST", "/api/orders/validated", strings.NewReader(`{"user_id":1,"product_id":"10","quantity":1}`))
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	resp := httptest.NewRecorder()
	e.router.ServeHTTP(resp, req)
	require.Equal(t, http.StatusCreated, resp.Code)

	kinds := map[trace.SpanKind]int{}
	for _, span := range rec.Ended() {
		assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", span.SpanContext().TraceID().String(), span.Name())
		kinds[span.SpanKind()]++
	}
	assert.Equal(t, 1, kinds[trace.SpanKindServer])
	assert.Equal(t, 2, kinds[trace.SpanKindClient], "one client span per collaborator call")
}
