package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/pm8sim/internal/bridges/modbus"
	"github.com/nerrad567/pm8sim/internal/device"
	"github.com/nerrad567/pm8sim/internal/infrastructure/config"
	"github.com/nerrad567/pm8sim/internal/infrastructure/logging"
)

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "discard"}, "test")
}

// testServer creates a Server over a fresh simulated device.
func testServer(t *testing.T) (*Server, *device.State) {
	t.Helper()

	state := device.NewState(device.Values{ProcessValue: 22.1, Setpoint: 50, Ambient: 22})
	handler := device.NewHandler(state, device.DefaultRegisterMap())

	srv, err := New(Deps{
		Config:   config.APIConfig{Host: "127.0.0.1", StreamInterval: 10 * time.Millisecond},
		Logger:   testLogger(),
		DeviceID: "pm8-01",
		Version:  "test",
		State:    state,
		Handler:  handler,
		Modbus:   modbus.NewServer(handler, modbus.SerialConfig{Port: "/dev/ttyS9", BaudRate: 19200}),
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return srv, state
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, req)
	return w
}

func TestNew_RequiresDeps(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Error("New() without logger should fail")
	}
	if _, err := New(Deps{Logger: testLogger()}); err == nil {
		t.Error("New() without state should fail")
	}
}

func TestHealth(t *testing.T) {
	srv, _ := testServer(t)

	w := do(t, srv, http.MethodGet, "/api/v1/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var resp HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	// The serial port is never opened in tests.
	if resp.Status != "degraded" || resp.Version != "test" || resp.DeviceID != "pm8-01" {
		t.Errorf("health = %+v", resp)
	}
	if resp.Serial == nil || resp.Serial.Port != "/dev/ttyS9" || resp.Serial.BaudRate != 19200 || resp.Serial.Listening {
		t.Errorf("serial = %+v", resp.Serial)
	}
}

func TestHealth_NoModbus(t *testing.T) {
	srv, _ := testServer(t)
	srv.modbus = nil

	var resp HealthResponse
	w := do(t, srv, http.MethodGet, "/api/v1/health", "")
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Status != "ok" || resp.Serial != nil {
		t.Errorf("health = %+v", resp)
	}
}

func TestRequestID(t *testing.T) {
	srv, _ := testServer(t)

	w := do(t, srv, http.MethodGet, "/api/v1/health", "")
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-123")
	rec := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want client-123", got)
	}
}

func TestNotFound(t *testing.T) {
	srv, _ := testServer(t)
	if w := do(t, srv, http.MethodGet, "/api/v1/nonexistent", ""); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestPanel(t *testing.T) {
	srv, _ := testServer(t)

	w := do(t, srv, http.MethodGet, "/", "")
	if w.Code != http.StatusFound || w.Header().Get("Location") != "/panel/" {
		t.Errorf("GET / = %d %q, want redirect to /panel/", w.Code, w.Header().Get("Location"))
	}

	w = do(t, srv, http.MethodGet, "/panel/", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "/api/v1/ws") {
		t.Errorf("GET /panel/ = %d, status page not served", w.Code)
	}
}

func TestState(t *testing.T) {
	srv, _ := testServer(t)

	w := do(t, srv, http.MethodGet, "/api/v1/state", "")
	var resp StateResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.DeviceID != "pm8-01" || resp.State.ProcessValue != 22.1 || resp.State.Setpoint != 50 {
		t.Errorf("state = %+v", resp)
	}
}

func TestRegisters(t *testing.T) {
	srv, _ := testServer(t)

	w := do(t, srv, http.MethodGet, "/api/v1/registers", "")
	var resp struct {
		DeviceID  string             `json:"device_id"`
		Registers []RegisterResponse `json:"registers"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	want := map[uint16]struct {
		word     uint16
		writable bool
	}{
		100:  {221, false},
		300:  {500, true},
		360:  {0x41B0, false},
		361:  {0xCCCD, false},
		2322: {500, true},
		7101: {221, false},
	}
	if len(resp.Registers) != len(want) {
		t.Fatalf("registers = %d, want %d", len(resp.Registers), len(want))
	}
	for _, r := range resp.Registers {
		exp, ok := want[r.Address]
		if !ok {
			t.Errorf("unexpected address %d", r.Address)
			continue
		}
		if r.Word != exp.word || r.Writable != exp.writable {
			t.Errorf("register %d = word %#04x writable %v", r.Address, r.Word, r.Writable)
		}
	}
	if srv.handler.Stats().Reads != 0 {
		t.Error("listing registers should not count as Modbus reads")
	}
}

func TestSetpoint(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
		wantSP     float32
	}{
		{"valid", `{"setpoint": 65}`, http.StatusOK, "", 65},
		{"invalid json", `{`, http.StatusBadRequest, CodeInvalidBody, 50},
		{"missing", `{}`, http.StatusUnprocessableEntity, CodeInvalidSetpoint, 50},
		{"out of range", `{"setpoint": 10000}`, http.StatusUnprocessableEntity, CodeInvalidSetpoint, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, state := testServer(t)

			w := do(t, srv, http.MethodPut, "/api/v1/setpoint", tt.body)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (%s)", w.Code, tt.wantStatus, w.Body.String())
			}
			if sp := state.Snapshot().Setpoint; sp != tt.wantSP {
				t.Errorf("Setpoint = %v, want %v", sp, tt.wantSP)
			}
			if tt.wantCode == "" {
				return
			}
			var body ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("decoding error body: %v", err)
			}
			if body.Code != tt.wantCode || body.Message == "" {
				t.Errorf("error body = %+v, want code %q with a message", body, tt.wantCode)
			}
		})
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	srv, _ := testServer(t)
	h := srv.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("handler bug")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/state", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	var body ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil || body.Code != CodeInternal {
		t.Errorf("error body = %s (%v)", w.Body.String(), err)
	}
}

func TestHub_Broadcast(t *testing.T) {
	hub := NewHub(testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	subscribed := &WSClient{hub: hub, send: make(chan []byte, wsSendBufferSize), subscriptions: map[string]struct{}{ChannelDeviceState: {}}}
	other := &WSClient{hub: hub, send: make(chan []byte, wsSendBufferSize), subscriptions: map[string]struct{}{}}
	hub.Register(subscribed)
	hub.Register(other)

	hub.Broadcast(ChannelDeviceState, map[string]any{"setpoint": 65})

	select {
	case msg := <-subscribed.send:
		var wsMsg WSMessage
		if err := json.Unmarshal(msg, &wsMsg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if wsMsg.Type != WSTypeEvent || wsMsg.EventType != ChannelDeviceState {
			t.Errorf("message = %+v", wsMsg)
		}
	case <-time.After(time.Second):
		t.Error("timed out waiting for broadcast")
	}

	select {
	case <-other.send:
		t.Error("unsubscribed client should not receive message")
	default:
	}

	hub.Unregister(other)
	hub.Unregister(other)
	if hub.ClientCount() != 1 {
		t.Errorf("ClientCount() = %d, want 1", hub.ClientCount())
	}
}

func TestWebSocket_StreamsState(t *testing.T) {
	srv, state := testServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.hub.Run(ctx)
	go srv.streamLoop(ctx)

	ts := httptest.NewServer(srv.buildRouter())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	readState := func() modbus.StateMessage {
		t.Helper()
		//nolint:errcheck // Test deadline
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		for {
			var msg struct {
				Type      string              `json:"type"`
				EventType string              `json:"event_type"`
				Payload   modbus.StateMessage `json:"payload"`
			}
			if err := conn.ReadJSON(&msg); err != nil {
				t.Fatalf("ReadJSON() error = %v", err)
			}
			if msg.Type == WSTypeEvent && msg.EventType == ChannelDeviceState {
				return msg.Payload
			}
		}
	}

	first := readState()
	if first.DeviceID != "pm8-01" || first.State.Setpoint != 50 {
		t.Errorf("first snapshot = %+v", first)
	}

	state.Do(func(v *device.Values) { v.Setpoint = 65 })
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if readState().State.Setpoint == 65 {
			return
		}
	}
	t.Error("stream never reported the new setpoint")
}

func TestWebSocket_Ping(t *testing.T) {
	srv, _ := testServer(t)
	ts := httptest.NewServer(srv.buildRouter())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/api/v1/ws", nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(WSMessage{Type: WSTypePing, ID: "p1"}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}

	//nolint:errcheck // Test deadline
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var msg WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("ReadJSON() error = %v", err)
		}
		if msg.Type == WSTypePong {
			if msg.ID != "p1" {
				t.Errorf("pong id = %q, want p1", msg.ID)
			}
			return
		}
	}
}

func TestHub_CountsDroppedFrames(t *testing.T) {
	hub := NewHub(testLogger())
	slow := &WSClient{hub: hub, send: make(chan []byte, 1), subscriptions: map[string]struct{}{ChannelDeviceState: {}}}
	hub.Register(slow)

	hub.Broadcast(ChannelDeviceState, map[string]any{"n": 1})
	hub.Broadcast(ChannelDeviceState, map[string]any{"n": 2})

	if got := hub.Dropped(); got != 1 {
		t.Errorf("Dropped() = %d, want 1", got)
	}
}

func TestWSClient_Subscriptions(t *testing.T) {
	tests := []struct {
		name     string
		message  string
		wantType string
		wantSubs []string
	}{
		{
			name:     "subscribe health",
			message:  `{"type":"subscribe","id":"s1","payload":{"channels":["device.health"]}}`,
			wantType: WSTypeResponse,
			wantSubs: []string{ChannelDeviceState, ChannelHealth},
		},
		{
			name:     "unsubscribe state",
			message:  `{"type":"unsubscribe","id":"s2","payload":{"channels":["device.state"]}}`,
			wantType: WSTypeResponse,
			wantSubs: nil,
		},
		{
			name:     "unknown channel rejected",
			message:  `{"type":"subscribe","id":"s3","payload":{"channels":["device.health","bogus"]}}`,
			wantType: WSTypeError,
			wantSubs: []string{ChannelDeviceState},
		},
		{
			name:     "missing payload",
			message:  `{"type":"subscribe","id":"s4"}`,
			wantType: WSTypeError,
			wantSubs: []string{ChannelDeviceState},
		},
		{
			name:     "unknown type",
			message:  `{"type":"reboot","id":"s5"}`,
			wantType: WSTypeError,
			wantSubs: []string{ChannelDeviceState},
		},
		{
			name:     "not json",
			message:  `subscribe`,
			wantType: WSTypeError,
			wantSubs: []string{ChannelDeviceState},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hub := NewHub(testLogger())
			client := &WSClient{hub: hub, send: make(chan []byte, 4), subscriptions: map[string]struct{}{ChannelDeviceState: {}}}

			client.handleMessage([]byte(tt.message))

			var reply WSMessage
			select {
			case data := <-client.send:
				if err := json.Unmarshal(data, &reply); err != nil {
					t.Fatalf("unmarshal: %v", err)
				}
			default:
				t.Fatal("no reply queued")
			}
			if reply.Type != tt.wantType {
				t.Errorf("reply type = %q, want %q (%s)", reply.Type, tt.wantType, reply.Payload)
			}

			if len(client.subscriptions) != len(tt.wantSubs) {
				t.Errorf("subscriptions = %v, want %v", client.subscriptions, tt.wantSubs)
			}
			for _, ch := range tt.wantSubs {
				if !client.isSubscribed(ch) {
					t.Errorf("not subscribed to %q", ch)
				}
			}
		})
	}
}

func TestHealthResponse_Degraded(t *testing.T) {
	srv, _ := testServer(t)

	resp := srv.healthResponse()
	if resp.Status != "degraded" || resp.Serial == nil || resp.Serial.Port != "/dev/ttyS9" {
		t.Errorf("healthResponse() = %+v", resp)
	}
}
