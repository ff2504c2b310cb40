package httpserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/khushidubeyokok/AMD/internal/config"
	"github.com/khushidubeyokok/AMD/internal/content"
	"github.com/khushidubeyokok/AMD/internal/logger"
	"github.com/khushidubeyokok/AMD/internal/progress"
	"github.com/khushidubeyokok/AMD/internal/session"
)

func newTestServer(t *testing.T) (*Server, *Manager) {
	t.Helper()
	cfg := config.Config{
		VoiceProvider: config.ProviderHost,
		DebounceWnd:   20 * time.Millisecond,
		PacingDelay:   time.Hour,
	}
	mgr := NewManager(cfg, progress.NewMemory(), content.Catalog{}, logger.NewNop())
	t.Cleanup(mgr.Close)
	return New(mgr, progress.NewMemory(), logger.NewNop()), mgr
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestSubjects(t *testing.T) {
	srv, _ := newTestServer(t)
	r := httptest.NewRequest(http.MethodGet, "/api/subjects", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body struct {
		Subjects []string `json:"subjects"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Subjects) == 0 {
		t.Fatal("no subjects returned")
	}
}

func TestSessionLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)

	r := httptest.NewRequest(http.MethodPost, "/api/sessions",
		strings.NewReader(`{"subject":"Science","chapter":"Chapter-4"}`))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil || created.ID == "" {
		t.Fatalf("create response: %s err=%v", w.Body.String(), err)
	}

	r = httptest.NewRequest(http.MethodGet, "/api/sessions/"+created.ID, nil)
	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", w.Code)
	}
	var snap sessionSnapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.Phase != "not_started" || len(snap.Sections) != 4 || len(snap.Questions) != 4 {
		t.Fatalf("snapshot = phase %q, %d sections, %d questions",
			snap.Phase, len(snap.Sections), len(snap.Questions))
	}

	r = httptest.NewRequest(http.MethodDelete, "/api/sessions/"+created.ID, nil)
	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", w.Code)
	}

	r = httptest.NewRequest(http.MethodGet, "/api/sessions/"+created.ID, nil)
	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)
	if w.Code != http.StatusNotFound {
		t.Fatalf("get after delete: expected 404, got %d", w.Code)
	}
}

func TestCreateSessionValidation(t *testing.T) {
	srv, _ := newTestServer(t)
	r := httptest.NewRequest(http.MethodPost, "/api/sessions", strings.NewReader(`{}`))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestLastProgressEmpty(t *testing.T) {
	srv, _ := newTestServer(t)
	r := httptest.NewRequest(http.MethodGet, "/api/progress/last", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 with no progress, got %d", w.Code)
	}
}

// TestWebsocketBridge exercises the full wire: attach, receive the welcome
// speak frame, ack playback, then drive a lesson command through the
// transcript path.
func TestWebsocketBridge(t *testing.T) {
	srv, mgr := newTestServer(t)
	mg, err := mgr.Create("Science", "Chapter-4")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/sessions/" + mg.Session.ID()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Read frames until the welcome speak arrives, then ack it.
	var speak wsMessage
	deadline := time.Now().Add(2 * time.Second)
	for {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		if msg.Type == "speak" {
			speak = msg
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("no speak frame before deadline")
		}
	}
	if !strings.Contains(speak.Text, "Welcome to Science") {
		t.Fatalf("welcome text = %q", speak.Text)
	}
	if err := conn.WriteJSON(wsMessage{Type: "speech_end", ID: speak.ID}); err != nil {
		t.Fatalf("ack: %v", err)
	}

	// Give the channel a moment to leave the speaking state, then send a
	// final transcript fragment.
	waitFor(t, func() bool {
		return mg.Session.Phase() == session.PhaseNotStarted && len(mg.Session.Conversation()) == 1
	})
	time.Sleep(50 * time.Millisecond)
	if err := conn.WriteJSON(wsMessage{Type: "fragment", Text: "start learning", Final: true}); err != nil {
		t.Fatalf("fragment: %v", err)
	}

	waitFor(t, func() bool { return mg.Session.Phase() == session.PhaseLessonActive })
}

// A transcript buffered in the previous listening turn must not fire into a
// new turn that starts inside the debounce window.
func TestListenRestartDropsBufferedTranscript(t *testing.T) {
	cfg := config.Config{
		VoiceProvider: config.ProviderHost,
		DebounceWnd:   120 * time.Millisecond,
		PacingDelay:   time.Hour,
	}
	mgr := NewManager(cfg, progress.NewMemory(), content.Catalog{}, logger.NewNop())
	t.Cleanup(mgr.Close)
	mg, err := mgr.Create("Science", "Chapter-4")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := mg.channel.StartListening(); err != nil {
		t.Fatalf("StartListening: %v", err)
	}
	mg.debouncer.OnFragment("start learning", true)
	if err := mg.channel.StopListening(); err != nil {
		t.Fatalf("StopListening: %v", err)
	}
	if err := mg.channel.StartListening(); err != nil {
		t.Fatalf("restart: %v", err)
	}

	time.Sleep(300 * time.Millisecond)
	if got := len(mg.Session.Conversation()); got != 0 {
		t.Fatalf("stale transcript reached the session: %d conversation entries", got)
	}
	if mg.Session.Phase() != session.PhaseNotStarted {
		t.Fatalf("phase = %v, want not_started", mg.Session.Phase())
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
