package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/chat-ticketing/internal/dedup"
	"github.com/iliyamo/chat-ticketing/internal/inbound"
	"github.com/iliyamo/chat-ticketing/internal/model"
	"github.com/iliyamo/chat-ticketing/internal/outbound"
	"github.com/iliyamo/chat-ticketing/internal/repository"
	"github.com/iliyamo/chat-ticketing/internal/ticket"
	"github.com/iliyamo/chat-ticketing/internal/webhook"
)

var brt = time.FixedZone("-03:00", -3*60*60)

type testEnv struct {
	e       *echo.Echo
	store   *repository.MemoryStore
	rec     *outbound.Recorder
	purged  int
	tickets *ticket.Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := repository.NewMemoryStore()
	require.NoError(t, store.CreateEvent(context.Background(), &model.Event{
		ID:    "ev1",
		Title: "Sunset",
		City:  "Uberaba",
		Venue: "Terraço 21",
		Date:  time.Date(2025, 9, 21, 2, 0, 0, 0, time.UTC),
		Price: decimal.NewFromInt(60),
	}))
	rec := &outbound.Recorder{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng := ticket.NewEngine(store, outbound.NewComposer(rec, time.Second, log), ticket.Options{
		BaseURL:  "https://tickets.example.com",
		Brand:    "IngressAI",
		Location: brt,
		Logger:   log,
	})

	env := &testEnv{e: echo.New(), store: store, rec: rec, tickets: eng}
	th := &TicketHandler{Tickets: eng}
	env.e.GET("/purchase/start", th.PurchaseStart)
	env.e.POST("/orders", th.CreateOrder)
	env.e.POST("/tickets/issue", th.Issue)
	env.e.GET("/tickets/pdf", th.PDF)
	env.e.GET("/validate", th.Validate)

	eh := &EventHandler{Store: store, Location: brt, OnChange: func(context.Context) { env.purged++ }}
	env.e.GET("/events", eh.List)
	env.e.GET("/events/:id", eh.Get)
	env.e.POST("/events", eh.Create)
	env.e.PATCH("/events/:id", eh.Update)
	env.e.DELETE("/events/:id", eh.Delete)
	return env
}

func (env *testEnv) do(method, target, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestPurchaseStart(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/purchase/start?ev=ev1&to=%2B55%2034%2098888-7777&name=Maria&qty=2", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, true, body["ok"])
	code := body["code"].(string)
	assert.Equal(t, "https://tickets.example.com/tickets/pdf?code="+code, body["pdfUrl"])

	o, err := env.store.GetOrder(context.Background(), code)
	require.NoError(t, err)
	assert.True(t, o.Issued)
	assert.Equal(t, 2, o.Quantity)
	assert.Equal(t, "5534988887777", o.BuyerPhone)
	require.Equal(t, 1, env.rec.Count(outbound.KindDocument))
	assert.Equal(t, "5534988887777", env.rec.Last().To)
}

func TestPurchaseStartErrors(t *testing.T) {
	env := newTestEnv(t)

	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/purchase/start?ev=nope&name=Maria", "").Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/purchase/start?ev=ev1&name=Maria&qty=0", "").Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/purchase/start?ev=ev1&name=Maria&qty=x", "").Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/purchase/start?ev=ev1", "").Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/purchase/start?name=Maria", "").Code)
}

func TestPurchaseStartSendFailure(t *testing.T) {
	env := newTestEnv(t)
	env.rec.Err = outbound.ErrTransport

	rec := env.do(http.MethodGet, "/purchase/start?ev=ev1&to=5534988887777&name=Maria", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, false, body["ok"])
	assert.NotEmpty(t, body["code"])
}

func TestCreateOrderThenIssueIsIdempotent(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/orders", `{"eventId":"ev1","qty":1,"buyer":{"name":"João","phone":"5534988887777"}}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	order := decode(t, rec)["order"].(map[string]interface{})
	code := order["code"].(string)
	assert.Zero(t, env.rec.Count(outbound.KindDocument))

	for i := 0; i < 2; i++ {
		rec = env.do(http.MethodPost, "/tickets/issue", `{"orderId":"`+code+`"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, true, body["ok"])
		assert.Equal(t, i == 1, body["alreadyIssued"])
	}
	assert.Equal(t, 1, env.rec.Count(outbound.KindDocument))
}

func TestIssueConcurrentSendsOnce(t *testing.T) {
	env := newTestEnv(t)
	o, err := env.tickets.CreateOrder(context.Background(), "ev1", 1, "Maria", "5534988887777")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			env.do(http.MethodPost, "/tickets/issue", `{"orderId":"`+o.Code+`"}`)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, env.rec.Count(outbound.KindDocument))
}

func TestIssueErrors(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/tickets/issue", `{"orderId":"missing"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "OrderNotFound", decode(t, rec)["error"])

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/tickets/issue", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/orders", `{"eventId":"ev1","buyer":{"name":" "}}`).Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodPost, "/orders", `{"eventId":"x","buyer":{"name":"Ana"}}`).Code)
}

func TestTicketPDF(t *testing.T) {
	env := newTestEnv(t)
	o, err := env.tickets.CreateOrder(context.Background(), "ev1", 1, "Maria", "")
	require.NoError(t, err)

	rec := env.do(http.MethodGet, "/tickets/pdf?code="+o.Code, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get(echo.HeaderContentType))
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), "attachment;")
	assert.True(t, strings.HasPrefix(rec.Body.String(), "%PDF"))

	again := env.do(http.MethodGet, "/tickets/pdf?code="+o.Code, "")
	assert.Equal(t, rec.Body.Bytes(), again.Body.Bytes())

	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/tickets/pdf?code=unknown", "").Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/tickets/pdf", "").Code)
}

func TestValidateSingleUse(t *testing.T) {
	env := newTestEnv(t)
	o, err := env.tickets.CreateOrder(context.Background(), "ev1", 3, "Maria", "")
	require.NoError(t, err)

	rec := env.do(http.MethodGet, "/validate?c="+o.Code, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, ticket.StatusValid, body["status"])
	assert.Equal(t, "Maria", body["buyer"])
	assert.EqualValues(t, 3, body["quantity"])

	body = decode(t, env.do(http.MethodGet, "/validate?c="+o.Code, ""))
	assert.Equal(t, false, body["ok"])
	assert.Equal(t, ticket.StatusUsed, body["status"])

	rec = env.do(http.MethodGet, "/validate?c=bogus", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, ticket.StatusInvalid, decode(t, rec)["status"])
}

func TestEventsCRUD(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/events", `{"title":"Jazz na Praça","city":"Uberaba","venue":"Praça Rui Barbosa","date":"20/09/2025 23:00","price":"45,00"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "price must be a decimal")

	rec = env.do(http.MethodPost, "/events", `{"title":"Jazz na Praça","city":"Uberaba","venue":"Praça Rui Barbosa","date":"20/09/2025 23:00","price":45}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode(t, rec)["event"].(map[string]interface{})
	id := created["id"].(string)
	assert.Equal(t, 1, env.purged)

	ev, err := env.store.GetEvent(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, ev.Date.Equal(time.Date(2025, 9, 21, 2, 0, 0, 0, time.UTC)))
	assert.True(t, ev.Price.Equal(decimal.NewFromInt(45)))

	rec = env.do(http.MethodPatch, "/events/"+id, `{"price":"50.5","media":"https://cdn.example.com/a.jpg"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	ev, err = env.store.GetEvent(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "50.5", ev.Price.String())
	assert.Equal(t, "https://cdn.example.com/a.jpg", ev.MediaURL)
	assert.Equal(t, "Jazz na Praça", ev.Title)

	list := decode(t, env.do(http.MethodGet, "/events?city=uberaba", ""))
	assert.Len(t, list["items"], 2)

	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/events/"+id, "").Code)
	assert.Equal(t, http.StatusNoContent, env.do(http.MethodDelete, "/events/"+id, "").Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/events/"+id, "").Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodDelete, "/events/"+id, "").Code)
	assert.Equal(t, 3, env.purged)
}

func TestEventsValidation(t *testing.T) {
	env := newTestEnv(t)

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/events", `{"title":"Sem data"}`).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/events", `{"title":"X","date":"ontem"}`).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/events", `{"title":"X","date":"20/09/2025 20:00","price":-1}`).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPatch, "/events/ev1", `{"title":"  "}`).Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodPatch, "/events/nope", `{"city":"Uberlândia"}`).Code)
	assert.Zero(t, env.purged)
}

type recordingBot struct {
	mu   sync.Mutex
	msgs []inbound.Message
}

func (b *recordingBot) Dispatch(_ context.Context, m inbound.Message) error {
	b.mu.Lock()
	b.msgs = append(b.msgs, m)
	b.mu.Unlock()
	return nil
}

func newWebhookEcho(secret string) (*echo.Echo, *webhook.Gateway, *recordingBot) {
	bot := &recordingBot{}
	gw := webhook.New(webhook.Config{VerifyToken: "verify-me", AppSecret: secret}, webhook.Deps{
		Dedup:  dedup.NewMemory(time.Minute),
		Bot:    bot,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	h := &WebhookHandler{Gateway: gw}
	e := echo.New()
	e.GET("/webhook", h.Verify)
	e.POST("/webhook", h.Receive)
	return e, gw, bot
}

func TestWebhookVerify(t *testing.T) {
	e, _, _ := newWebhookEcho("s3cret")

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=42", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "42", rec.Body.String())

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=nope&hub.challenge=42", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestWebhookReceive(t *testing.T) {
	e, gw, bot := newWebhookEcho("s3cret")
	payload := `{"entry":[{"changes":[{"field":"messages","value":{"messages":[{"id":"wamid.1","from":"5534988887777","type":"text","text":{"body":"oi"}}]}}]}]}`

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(payload))
	req.Header.Set("X-Hub-Signature-256", "sha256=00")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	for i := 0; i < 2; i++ {
		req = httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(payload))
		req.Header.Set("X-Hub-Signature-256", webhook.Sign([]byte("s3cret"), []byte(payload)))
		rec = httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "OK", rec.Body.String())
	}
	gw.Wait()

	bot.mu.Lock()
	defer bot.mu.Unlock()
	require.Len(t, bot.msgs, 1)
	assert.Equal(t, "oi", bot.msgs[0].Text)
}
