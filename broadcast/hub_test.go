package broadcast

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"whatsapp-branch-bot/types"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

type staticSource []types.SessionSnapshot

func (s staticSource) Snapshot() []types.SessionSnapshot { return s }

func newTestServer(t *testing.T, h *Hub) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	t.Cleanup(func() {
		h.Close()
		srv.Close()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env Envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	return env
}

func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	var env Envelope
	if err := conn.ReadJSON(&env); err == nil {
		t.Fatalf("unexpected event %s: %s", env.Event, env.Data)
	}
}

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, have %d", n, h.ClientCount())
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestReplayConnectedBranches(t *testing.T) {
	h := NewHub(zerolog.Nop())
	h.SetSource(staticSource{
		{Branch: "sucursal1", Status: types.StatusConnected},
		{Branch: "sucursal2", Status: types.StatusConnected},
		{Branch: "sucursal3", Status: types.StatusConnected},
	})
	conn := dial(t, newTestServer(t, h))

	for _, want := range []string{"sucursal1", "sucursal2", "sucursal3"} {
		env := readEnvelope(t, conn)
		if env.Event != EventStatus {
			t.Fatalf("expected %s, got %s", EventStatus, env.Event)
		}
		var p StatusPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			t.Fatal(err)
		}
		if p.Branch != want || p.Status != types.StatusConnected {
			t.Fatalf("unexpected replay %+v", p)
		}
	}
	expectSilence(t, conn)
}

func TestReplayPendingQR(t *testing.T) {
	h := NewHub(zerolog.Nop())
	h.SetSource(staticSource{
		{Branch: "sucursal1", Status: types.StatusAwaitingScan, QR: "2@pending"},
		{Branch: "sucursal2", Status: types.StatusAwaitingScan},
	})
	conn := dial(t, newTestServer(t, h))

	if env := readEnvelope(t, conn); env.Event != EventStatus {
		t.Fatalf("expected status first, got %s", env.Event)
	}
	env := readEnvelope(t, conn)
	if env.Event != EventQR {
		t.Fatalf("expected qr, got %s", env.Event)
	}
	var p QRPayload
	if err := json.Unmarshal(env.Data, &p); err != nil {
		t.Fatal(err)
	}
	if p.Branch != "sucursal1" || p.QR != "2@pending" {
		t.Fatalf("unexpected qr payload %+v", p)
	}
	if !strings.HasPrefix(p.Image, "data:image/png;base64,") {
		t.Fatalf("expected a PNG data URL, got %.40q", p.Image)
	}

	if env := readEnvelope(t, conn); env.Event != EventStatus {
		t.Fatalf("expected status for the second branch, got %s", env.Event)
	}
	expectSilence(t, conn)
}

func TestLiveEventsReachEveryClient(t *testing.T) {
	h := NewHub(zerolog.Nop())
	url := newTestServer(t, h)
	a := dial(t, url)
	b := dial(t, url)
	waitClients(t, h, 2)

	h.Status("sucursal1", types.StatusResetting)
	h.Message(types.FeedMessage{Branch: "sucursal1", Text: "hola", Sender: "Ana", Time: "2024-03-05 14:07:09"})

	for _, conn := range []*websocket.Conn{a, b} {
		env := readEnvelope(t, conn)
		var st StatusPayload
		if err := json.Unmarshal(env.Data, &st); err != nil || env.Event != EventStatus || st.Status != types.StatusResetting {
			t.Fatalf("unexpected status event %s %s", env.Event, env.Data)
		}
		env = readEnvelope(t, conn)
		var msg types.FeedMessage
		if err := json.Unmarshal(env.Data, &msg); err != nil || env.Event != EventMessage || msg.Sender != "Ana" {
			t.Fatalf("unexpected message event %s %s", env.Event, env.Data)
		}
	}
}

func TestClientMessageIsRebroadcast(t *testing.T) {
	h := NewHub(zerolog.Nop())
	url := newTestServer(t, h)
	a := dial(t, url)
	b := dial(t, url)
	waitClients(t, h, 2)

	if err := a.WriteMessage(websocket.TextMessage, []byte(`{"event":"mensaje","data":{"branch":"sucursal2","text":"listo"}}`)); err != nil {
		t.Fatal(err)
	}
	if err := a.WriteMessage(websocket.TextMessage, []byte(`{"event":"otro","data":{}}`)); err != nil {
		t.Fatal(err)
	}

	for _, conn := range []*websocket.Conn{a, b} {
		env := readEnvelope(t, conn)
		if env.Event != EventMessage {
			t.Fatalf("expected mensaje, got %s", env.Event)
		}
		var p map[string]string
		if err := json.Unmarshal(env.Data, &p); err != nil {
			t.Fatal(err)
		}
		if p["branch"] != "sucursal2" || p["text"] != "listo" {
			t.Fatalf("payload was not relayed verbatim: %v", p)
		}
		expectSilence(t, conn)
	}
}

func TestClientMessageKeepsOriginalFrame(t *testing.T) {
	h := NewHub(zerolog.Nop())
	url := newTestServer(t, h)
	a := dial(t, url)
	b := dial(t, url)
	waitClients(t, h, 2)

	frame := `{"event":"mensaje", "data":{"branch":"sucursal1",  "text":"listo"}, "from":"caja"}`
	if err := a.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		t.Fatal(err)
	}

	b.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, got, err := b.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(got) != frame {
		t.Fatalf("frame = %s, want %s", got, frame)
	}
}

func TestDisconnectUnregisters(t *testing.T) {
	h := NewHub(zerolog.Nop())
	url := newTestServer(t, h)
	conn := dial(t, url)
	waitClients(t, h, 1)

	conn.Close()
	waitClients(t, h, 0)
}
