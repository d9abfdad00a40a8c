package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shivamkadam692/WorkConnect/internal/api"
	"github.com/Shivamkadam692/WorkConnect/internal/api/middleware"
	"github.com/Shivamkadam692/WorkConnect/internal/handlers"
	"github.com/Shivamkadam692/WorkConnect/internal/lifecycle"
	"github.com/Shivamkadam692/WorkConnect/internal/models"
	"github.com/Shivamkadam692/WorkConnect/internal/notify"
	"github.com/Shivamkadam692/WorkConnect/internal/presence"
	"github.com/Shivamkadam692/WorkConnect/internal/store"
	"github.com/Shivamkadam692/WorkConnect/internal/store/storetest"
)

const paymentSecret = "test-secret"

type testServer struct {
	*httptest.Server
	db  store.DataStore
	hub *presence.Hub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zerolog.Nop()
	db := storetest.NewSQLite(t)

	var dispatcher *handlers.SocketDispatcher

	hub := presence.NewHub(presence.HubOptions{
		Logger: logger,
		OnMessage: func(ctx context.Context, conn *presence.Conn, env presence.Envelope) {
			dispatcher.Handle(ctx, conn, env)
		},
	})
	notifications := notify.NewService(db, notify.Options{Pusher: hub, Logger: logger})
	requests := lifecycle.NewService(db, lifecycle.Options{Notifier: notifications, Hub: hub, Logger: logger})
	dispatcher = handlers.NewSocketDispatcher(requests, logger)

	h := handlers.NewHandler(handlers.Deps{
		DB:            db,
		Requests:      requests,
		Notifications: notifications,
		Hub:           hub,
		Logger:        logger,
	})
	srv := httptest.NewServer(api.NewRouter(api.Options{
		Logger:        logger,
		Handler:       h,
		PaymentSecret: paymentSecret,
	}))
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, db: db, hub: hub}
}

func (s *testServer) do(t *testing.T, as models.Actor, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, s.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if as.UserID != uuid.Nil {
		req.Header.Set(middleware.HeaderUserID, as.UserID.String())
		req.Header.Set(middleware.HeaderUserRole, string(as.Role))
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func decodeAs[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

func TestMissingIdentityIs401(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := srv.do(t, models.Actor{}, http.MethodGet, "/requests", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRequestLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	worker, profile := storetest.SeedProfile(t, srv.db)
	client := storetest.Stranger(models.RoleClient)

	resp, body := srv.do(t, client, http.MethodPost, "/requests", map[string]any{
		"workerProfileId": profile.ID.String(),
		"price":           "750.00",
		"message":         "Paint the fence",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	created := decodeAs[models.Request](t, body)
	assert.Equal(t, models.StatusPending, created.Status)
	assert.True(t, decimal.RequireFromString("750").Equal(created.Price), created.Price.String())
	base := "/requests/" + created.ID.String()

	resp, _ = srv.do(t, client, http.MethodPost, base+"/accept", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode, "clients cannot accept")

	resp, body = srv.do(t, worker, http.MethodPost, base+"/accept", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	resp, _ = srv.do(t, worker, http.MethodPost, base+"/accept", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body = srv.do(t, worker, http.MethodPost, base+"/location", map[string]float64{"lat": 18.5, "lng": 73.8})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	resp, body = srv.do(t, client, http.MethodGet, base+"/tracking", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	view := decodeAs[models.Request](t, body)
	require.NotNil(t, view.WorkerLocation)

	resp, _ = srv.do(t, worker, http.MethodPost, base+"/start", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = srv.do(t, worker, http.MethodPost, base+"/complete", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = srv.do(t, client, http.MethodPost, base+"/messages", map[string]string{"text": "thanks"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body = srv.do(t, client, http.MethodGet, "/notifications", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page := decodeAs[notify.Page](t, body)
	var types []models.NotificationType
	for _, n := range page.Notifications {
		types = append(types, n.Type)
	}
	assert.ElementsMatch(t, []models.NotificationType{
		models.NotifyRequestAccepted,
		models.NotifyLocationUpdate,
		models.NotifyServiceStarted,
		models.NotifyServiceCompleted,
	}, types)
}

func TestValidationAndNotFound(t *testing.T) {
	srv := newTestServer(t)
	client := storetest.Stranger(models.RoleClient)

	resp, _ := srv.do(t, client, http.MethodPost, "/requests", map[string]any{"workerProfileId": "nope"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = srv.do(t, client, http.MethodPost, "/requests", map[string]any{"workerProfileId": uuid.NewString()})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = srv.do(t, client, http.MethodGet, "/requests/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = srv.do(t, client, http.MethodGet, "/requests/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMessagesOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	f := storetest.SeedRequest(t, srv.db)
	base := "/requests/" + f.Request.ID.String() + "/messages"

	resp, _ := srv.do(t, storetest.Stranger(models.RoleClient), http.MethodPost, base, map[string]string{"text": "hi"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = srv.do(t, f.Client, http.MethodPost, base, map[string]string{"text": ""})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	for _, text := range []string{"first", "second"} {
		resp, body := srv.do(t, f.Client, http.MethodPost, base, map[string]string{"text": text})
		require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	}

	resp, body := srv.do(t, f.Worker, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	thread := decodeAs[handlers.MessagesResponse](t, body)
	require.Len(t, thread.Messages, 2)
	assert.Equal(t, "first", thread.Messages[0].Text)
	assert.Equal(t, "second", thread.Messages[1].Text)
}

func TestNotificationEndpoints(t *testing.T) {
	srv := newTestServer(t)
	f := storetest.SeedRequest(t, srv.db)

	resp, body := srv.do(t, f.Worker, http.MethodPost, "/requests/"+f.Request.ID.String()+"/reject", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	resp, body = srv.do(t, f.Client, http.MethodGet, "/notifications/unread-count", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, decodeAs[handlers.CountResponse](t, body).Count)

	resp, body = srv.do(t, f.Client, http.MethodGet, "/notifications?limit=5", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page := decodeAs[notify.Page](t, body)
	require.Len(t, page.Notifications, 1)
	id := page.Notifications[0].ID.String()

	resp, _ = srv.do(t, f.Worker, http.MethodPut, "/notifications/"+id+"/read", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "only the recipient may mark it")

	resp, _ = srv.do(t, f.Client, http.MethodPut, "/notifications/"+id+"/read", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = srv.do(t, f.Client, http.MethodDelete, "/notifications/read", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, decodeAs[handlers.CountResponse](t, body).Count)

	resp, _ = srv.do(t, f.Client, http.MethodDelete, "/notifications/"+id, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWorkerStatus(t *testing.T) {
	srv := newTestServer(t)
	worker, profile := storetest.SeedProfile(t, srv.db)
	path := "/workers/" + profile.ID.String() + "/status"

	resp, _ := srv.do(t, storetest.Stranger(models.RoleWorker), http.MethodPut, path, map[string]string{"status": "offline"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = srv.do(t, worker, http.MethodPut, path, map[string]string{"status": "busy"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "busy is managed by the lifecycle")

	resp, body := srv.do(t, worker, http.MethodPut, path, map[string]string{"status": "offline"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Equal(t, models.WorkerOffline, decodeAs[models.WorkerProfile](t, body).Status)
}

func TestPaymentCallback(t *testing.T) {
	srv := newTestServer(t)
	f := storetest.SeedRequest(t, srv.db)
	body := map[string]any{"requestId": f.Request.ID.String(), "amount": "1500.50"}

	resp, _ := srv.do(t, models.Actor{}, http.MethodPost, "/internal/payments", body)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	data, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/internal/payments", bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.HeaderInternalToken, paymentSecret)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, http.StatusCreated, res.StatusCode)

	resp, raw := srv.do(t, f.Worker, http.MethodGet, "/notifications", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page := decodeAs[notify.Page](t, raw)
	require.Len(t, page.Notifications, 1)
	assert.Equal(t, models.NotifyPaymentReceived, page.Notifications[0].Type)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	resp, body := srv.do(t, models.Actor{}, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	health := decodeAs[handlers.HealthResponse](t, body)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "pass", health.Checks["database"].Status)
	assert.Equal(t, "skip", health.Checks["redis"].Status)
}

func dialWS(t *testing.T, srv *testServer, as models.Actor) *websocket.Conn {
	t.Helper()
	header := http.Header{}
	header.Set(middleware.HeaderUserID, as.UserID.String())
	header.Set(middleware.HeaderUserRole, string(as.Role))
	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", header)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

// readUntil reads frames until one with the wanted event arrives.
func readUntil(t *testing.T, ws *websocket.Conn, event string) presence.Envelope {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		require.NoError(t, ws.SetReadDeadline(deadline))
		var env presence.Envelope
		require.NoError(t, ws.ReadJSON(&env))
		if env.Event == event {
			return env
		}
	}
}

func TestSocketLocationFlow(t *testing.T) {
	srv := newTestServer(t)
	f := storetest.SeedRequest(t, srv.db)
	base := "/requests/" + f.Request.ID.String()

	resp, _ := srv.do(t, f.Worker, http.MethodPost, base+"/accept", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	clientWS := dialWS(t, srv, f.Client)
	workerWS := dialWS(t, srv, f.Worker)
	stranger := dialWS(t, srv, storetest.Stranger(models.RoleClient))

	join := presence.Envelope{Event: handlers.EventJoin, Data: json.RawMessage(`{"requestId":"` + f.Request.ID.String() + `"}`)}
	require.NoError(t, stranger.WriteJSON(join))
	env := readUntil(t, stranger, presence.EventError)
	var failure presence.ErrorPayload
	require.NoError(t, json.Unmarshal(env.Data, &failure))
	assert.Equal(t, "unauthorized", failure.Kind)

	room := presence.RequestRoom(f.Request.ID)
	require.NoError(t, clientWS.WriteJSON(join))
	require.Eventually(t, func() bool { return srv.hub.Members(room) == 1 }, 2*time.Second, 10*time.Millisecond)

	resp, _ = srv.do(t, f.Client, http.MethodPost, base+"/messages", map[string]string{"text": "ping"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	env = readUntil(t, clientWS, presence.EventNewMessage)
	var msg lifecycle.MessagePayload
	require.NoError(t, json.Unmarshal(env.Data, &msg))
	assert.Equal(t, "ping", msg.Text)

	update := presence.Envelope{
		Event: handlers.EventLocationUpdate,
		Data:  json.RawMessage(`{"requestId":"` + f.Request.ID.String() + `","role":"client","lat":18.52,"lng":73.85}`),
	}
	require.NoError(t, workerWS.WriteJSON(update))

	env = readUntil(t, clientWS, presence.EventLocationUpdate)
	var loc lifecycle.LocationPayload
	require.NoError(t, json.Unmarshal(env.Data, &loc))
	assert.Equal(t, models.RoleWorker, loc.Role, "the bound role wins over the payload")
	assert.InDelta(t, 18.52, loc.Lat, 1e-9)

	env = readUntil(t, clientWS, presence.EventNewNotification)
	var pushed notify.Payload
	require.NoError(t, json.Unmarshal(env.Data, &pushed))
	assert.Equal(t, models.NotifyLocationUpdate, pushed.Type)
}
