package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shehryarbajwa/review-background/internal/action"
	"github.com/shehryarbajwa/review-background/internal/billing"
	"github.com/shehryarbajwa/review-background/internal/messaging"
	"github.com/shehryarbajwa/review-background/internal/session"
	"github.com/shehryarbajwa/review-background/internal/useragent"
	"github.com/shehryarbajwa/review-background/internal/webrequest"
	"github.com/shehryarbajwa/review-background/pkg/models"
)

const proxyPrefix = "chrome-extension://review/proxy"

type stubProvider struct{}

func (stubProvider) GetSkuDetails(context.Context, string) ([]models.Product, error) {
	return []models.Product{{SKU: "re_view", State: models.ProductStateActive}}, nil
}

func (stubProvider) GetPurchases(context.Context, string) ([]models.Purchase, error) {
	return []models.Purchase{{SKU: "re_view"}}, nil
}

func (stubProvider) Buy(context.Context, string, string) (*models.PurchaseResult, error) {
	return &models.PurchaseResult{OrderID: "o-1"}, nil
}

type harness struct {
	server   *Server
	sessions *session.Manager
	ws       *websocket.Conn
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	sessions := session.NewManager()
	cache := useragent.NewCache(time.Hour, nil)
	srv := NewServer("chrome-extension://review/", nil)

	facade := billing.NewFacade(stubProvider{}, billing.Options{Environment: "prod", SKU: "re_view"},
		messaging.NewBroadcaster(sessions, srv, nil), nil)
	router := messaging.NewRouter(context.Background(), sessions, nil, facade, nil, nil)
	controller := action.NewController(sessions, srv, nil, nil)
	interceptor := webrequest.NewInterceptor(proxyPrefix, cache, sessions, nil)
	srv.Bind(controller, interceptor, router)

	ts := httptest.NewServer(http.HandlerFunc(srv.HandleConnection))
	t.Cleanup(ts.Close)

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })

	require.Eventually(t, srv.Connected, time.Second, 5*time.Millisecond)
	return &harness{server: srv, sessions: sessions, ws: ws}
}

func (h *harness) send(t *testing.T, id, typ string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, h.ws.WriteJSON(Envelope{ID: id, Type: typ, Payload: raw}))
}

func (h *harness) read(t *testing.T) Envelope {
	t.Helper()
	require.NoError(t, h.ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env Envelope
	require.NoError(t, h.ws.ReadJSON(&env))
	return env
}

func TestProxyRedirectAndUserAgentRoundTrip(t *testing.T) {
	h := newHarness(t)

	h.send(t, "r1", TypeBeforeRequest, models.RequestDetails{
		URL:     proxyPrefix + "?userAgent=Mobile%2F1.0&url=https%3A%2F%2Fexample.com",
		FrameID: 3,
		TabID:   1,
		Type:    models.ResourceSubFrame,
	})
	env := h.read(t)
	assert.Equal(t, "r1", env.ID)
	assert.Equal(t, TypeReply, env.Type)

	var verdict models.BlockingResponse
	require.NoError(t, json.Unmarshal(env.Payload, &verdict))
	assert.Equal(t, "https://example.com", verdict.RedirectURL)

	h.send(t, "r2", TypeBeforeSendHeaders, models.RequestDetails{
		URL:            "https://example.com",
		FrameID:        3,
		RequestHeaders: []models.Header{{Name: "User-Agent", Value: "Desktop"}},
	})
	env = h.read(t)
	assert.Equal(t, "r2", env.ID)
	require.NoError(t, json.Unmarshal(env.Payload, &verdict))
	assert.Equal(t, []models.Header{{Name: "User-Agent", Value: "Mobile/1.0"}}, verdict.RequestHeaders)
}

func TestClickIssuesHostCommands(t *testing.T) {
	h := newHarness(t)

	h.send(t, "", TypeActionClicked, clickedEvent{Tab: models.Tab{ID: 7, URL: "https://example.com"}})

	var types []string
	for i := 0; i < 3; i++ {
		env := h.read(t)
		assert.NotEmpty(t, env.ID)
		types = append(types, env.Type)
	}
	assert.Equal(t, []string{TypeInsertCSS, TypeExecuteScript, TypeSetIcon}, types)
	assert.True(t, h.sessions.IsActive(7))

	h.send(t, "", TypeTabRemoved, tabEvent{TabID: 7})
	require.Eventually(t, func() bool { return !h.sessions.IsActive(7) }, time.Second, 5*time.Millisecond)
}

func TestRuntimeMessages(t *testing.T) {
	h := newHarness(t)
	h.sessions.Activate(2, "https://example.com")

	h.send(t, "m1", TypeRuntimeMessage, messageEvent{
		Message: models.Message{Action: models.ActionIsReviewFrame},
		Sender:  models.Sender{Tab: &models.Tab{ID: 2}, FrameID: 4},
	})
	env := h.read(t)
	assert.Equal(t, "m1", env.ID)
	assert.Equal(t, TypeReply, env.Type)
	assert.JSONEq(t, "true", string(env.Payload))

	h.send(t, "m2", TypeRuntimeMessage, messageEvent{
		Message: models.Message{Action: models.ActionIsDonated},
		Sender:  models.Sender{Tab: &models.Tab{ID: 2}, FrameID: 4},
	})
	env = h.read(t)
	assert.Equal(t, "m2", env.ID)
	assert.JSONEq(t, `{"data":true}`, string(env.Payload))

	h.send(t, "m3", TypeRuntimeMessage, messageEvent{
		Message: models.Message{Action: "unknown"},
		Sender:  models.Sender{Tab: &models.Tab{ID: 2}},
	})
	env = h.read(t)
	assert.Equal(t, "m3", env.ID)
	assert.Equal(t, TypeNoReply, env.Type)
}

func TestDonateBroadcastsToActiveTabs(t *testing.T) {
	h := newHarness(t)
	h.sessions.Activate(2, "https://example.com")

	h.send(t, "d1", TypeRuntimeMessage, messageEvent{
		Message: models.Message{Action: models.ActionDonate},
		Sender:  models.Sender{Tab: &models.Tab{ID: 2}, FrameID: 4},
	})

	var sawBroadcast, sawReply bool
	for i := 0; i < 2; i++ {
		env := h.read(t)
		switch env.Type {
		case TypeSendMessage:
			var cmd sendMessageCommand
			require.NoError(t, json.Unmarshal(env.Payload, &cmd))
			assert.Equal(t, 2, cmd.TabID)
			assert.Equal(t, models.ActionDonateSuccess, cmd.Message.Action)
			sawBroadcast = true
		case TypeReply:
			assert.Equal(t, "d1", env.ID)
			sawReply = true
		}
	}
	assert.True(t, sawBroadcast)
	assert.True(t, sawReply)
}

func TestMalformedRequestIsUnblocked(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.ws.WriteJSON(Envelope{ID: "bad", Type: TypeHeadersReceived, Payload: json.RawMessage(`"oops"`)}))
	env := h.read(t)
	assert.Equal(t, "bad", env.ID)
	assert.Equal(t, TypeReply, env.Type)
	assert.JSONEq(t, "{}", string(env.Payload))
}

func TestCommandsWithoutHost(t *testing.T) {
	srv := NewServer("", nil)
	assert.False(t, srv.Connected())
	assert.ErrorIs(t, srv.SetIcon(1, action.DefaultIcon), ErrNoHost)
	assert.ErrorIs(t, srv.SendMessage(1, models.Message{Action: models.ActionDestroy}, models.SendOptions{}), ErrNoHost)
}

func TestCheckOrigin(t *testing.T) {
	srv := NewServer("chrome-extension://review/", nil)
	check := srv.upgrader.CheckOrigin

	req := httptest.NewRequest(http.MethodGet, "/v1/bridge", nil)
	assert.True(t, check(req))

	req.Header.Set("Origin", "chrome-extension://review")
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://evil.example")
	assert.False(t, check(req))
}
