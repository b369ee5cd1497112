package visualization

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nvandessel/neurodemo/internal/layout"
	"github.com/nvandessel/neurodemo/internal/loop"
	"github.com/nvandessel/neurodemo/internal/neuron"
	"github.com/nvandessel/neurodemo/internal/ratelimit"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestLoop(queueSize int) *loop.Loop {
	return loop.New(neuron.New(neuron.DefaultParams()), layout.Default(), loop.Config{QueueSize: queueSize})
}

func newTestServer(t *testing.T, l *loop.Loop, opts Options) (*Server, *httptest.Server) {
	t.Helper()
	srv, err := NewServer(l, opts)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func TestNewServer_UnreadableBackgroundFails(t *testing.T) {
	_, err := NewServer(newTestLoop(4), Options{BackgroundPath: filepath.Join(t.TempDir(), "missing.png")})
	if err == nil || !strings.Contains(err.Error(), "background") {
		t.Errorf("NewServer = %v, want background error", err)
	}
}

func TestServer_ServesHTML(t *testing.T) {
	_, ts := newTestServer(t, newTestLoop(4), Options{})

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET / status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("Content-Type = %q, want text/html; charset=utf-8", ct)
	}

	resp, err = http.Get(ts.URL + "/nope")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET /nope status = %d, want 404", resp.StatusCode)
	}
}

func TestServer_Background(t *testing.T) {
	// Without a configured image there is nothing to serve.
	_, plain := newTestServer(t, newTestLoop(4), Options{})
	resp, err := http.Get(plain.URL + "/background")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404 without background", resp.StatusCode)
	}

	png := []byte("\x89PNG\r\n\x1a\n0000")
	path := filepath.Join(t.TempDir(), "bg.png")
	if err := os.WriteFile(path, png, 0644); err != nil {
		t.Fatal(err)
	}
	_, ts := newTestServer(t, newTestLoop(4), Options{BackgroundPath: path})

	resp, err = http.Get(ts.URL + "/background")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q, want image/png", ct)
	}
}

func TestServer_Layout(t *testing.T) {
	_, ts := newTestServer(t, newTestLoop(4), Options{})

	resp, err := http.Get(ts.URL + "/api/layout")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var scene sceneData
	if err := json.NewDecoder(resp.Body).Decode(&scene); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if scene.Layout != layout.Default() {
		t.Errorf("layout = %+v, want default", scene.Layout)
	}
	if len(scene.Connections) != 2 {
		t.Errorf("connections = %d, want 2", len(scene.Connections))
	}
}

func postClick(t *testing.T, url string, body string) int {
	t.Helper()
	resp, err := http.Post(url+"/api/click", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST /api/click: %v", err)
	}
	resp.Body.Close()
	return resp.StatusCode
}

func TestServer_ClickReachesModel(t *testing.T) {
	l := newTestLoop(4)
	_, ts := newTestServer(t, l, Options{})

	if code := postClick(t, ts.URL, `{"x": 121, "y": 331}`); code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", code)
	}

	f := l.Step(context.Background(), t0)
	if len(f.Stimuli) != 1 || f.Stimuli[0].Node != neuron.Input2 {
		t.Errorf("stimuli = %+v, want input2", f.Stimuli)
	}

	resp, err := http.Get(ts.URL + "/api/snapshot")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var got loop.Frame
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Seq != 1 || !got.Snapshot.Input2.Active {
		t.Errorf("snapshot = %+v, want frame 1 with input2 active", got)
	}
}

func TestServer_ClickErrors(t *testing.T) {
	_, ts := newTestServer(t, newTestLoop(4), Options{})

	if code := postClick(t, ts.URL, `not json`); code != http.StatusBadRequest {
		t.Errorf("bad body status = %d, want 400", code)
	}

	resp, err := http.Get(ts.URL + "/api/click")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET status = %d, want 405", resp.StatusCode)
	}
}

func TestServer_ClickOffCanvasRejected(t *testing.T) {
	l := newTestLoop(4)
	_, ts := newTestServer(t, l, Options{})

	for _, body := range []string{
		`{"x": 4294967417, "y": 151}`,
		`{"x": -1, "y": 151}`,
		`{"x": 121, "y": 482}`,
	} {
		if code := postClick(t, ts.URL, body); code != http.StatusBadRequest {
			t.Errorf("click %s status = %d, want 400", body, code)
		}
	}

	f := l.Step(context.Background(), time.Now())
	if len(f.Stimuli) != 0 || f.Misses != 0 {
		t.Errorf("off-canvas clicks reached the loop: %+v", f)
	}
}

func TestServer_ClickRateLimited(t *testing.T) {
	srv, ts := newTestServer(t, newTestLoop(8), Options{})
	srv.clicks = ratelimit.NewLimiter(0, 2)

	for i := 0; i < 2; i++ {
		if code := postClick(t, ts.URL, `{"x": 1, "y": 1}`); code != http.StatusAccepted {
			t.Fatalf("click %d status = %d, want 202", i, code)
		}
	}
	if code := postClick(t, ts.URL, `{"x": 1, "y": 1}`); code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", code)
	}
}

func TestServer_QueueFull(t *testing.T) {
	_, ts := newTestServer(t, newTestLoop(1), Options{})

	if code := postClick(t, ts.URL, `{"x": 1, "y": 1}`); code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", code)
	}
	if code := postClick(t, ts.URL, `{"x": 1, "y": 1}`); code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 when the queue is full", code)
	}
}

func TestServer_Stimulate(t *testing.T) {
	l := newTestLoop(4)
	_, ts := newTestServer(t, l, Options{})

	tests := []struct {
		query string
		want  int
	}{
		{"", http.StatusBadRequest},
		{"?node=axon", http.StatusBadRequest},
		{"?node=output", http.StatusBadRequest},
		{"?node=input1", http.StatusAccepted},
	}

	for _, tt := range tests {
		resp, err := http.Post(ts.URL+"/api/stimulate"+tt.query, "", nil)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != tt.want {
			t.Errorf("POST /api/stimulate%s status = %d, want %d", tt.query, resp.StatusCode, tt.want)
		}
	}

	f := l.Step(context.Background(), t0)
	if len(f.Stimuli) != 1 || f.Stimuli[0].Node != neuron.Input1 {
		t.Errorf("stimuli = %+v, want one input1 stimulation", f.Stimuli)
	}
}

func TestServer_Reset(t *testing.T) {
	l := newTestLoop(4)
	_, ts := newTestServer(t, l, Options{})

	if code := postClick(t, ts.URL, `{"x": 121, "y": 151}`); code != http.StatusAccepted {
		t.Fatalf("click status = %d, want 202", code)
	}
	if f := l.Step(context.Background(), t0); f.Snapshot.Level == 0 {
		t.Fatal("click should charge the output")
	}

	resp, err := http.Post(ts.URL+"/api/reset", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("POST /api/reset status = %d, want 202", resp.StatusCode)
	}

	f := l.Step(context.Background(), t0.Add(time.Second/60))
	if f.Snapshot.Level != 0 || f.Snapshot.Input1.Active {
		t.Errorf("snapshot after reset = %+v, want cleared", f.Snapshot)
	}

	resp, err = http.Get(ts.URL + "/api/reset")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET status = %d, want 405", resp.StatusCode)
	}
}

func TestServer_WebSocketStreamsFrames(t *testing.T) {
	l := newTestLoop(4)
	_, ts := newTestServer(t, l, Options{})

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	// The current state arrives first.
	var first loop.Frame
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read initial frame: %v", err)
	}
	if first.Seq != 0 {
		t.Errorf("initial seq = %d, want 0", first.Seq)
	}

	l.Submit(loop.Stimulate(neuron.Input1))
	l.Step(context.Background(), t0)

	var next loop.Frame
	if err := conn.ReadJSON(&next); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if next.Seq != 1 || !next.Snapshot.Input1.Active {
		t.Errorf("frame = %+v, want seq 1 with input1 active", next)
	}
}

func TestServer_CleanShutdown(t *testing.T) {
	srv, err := NewServer(newTestLoop(4), Options{})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(ctx) }()

	waitForServer(t, srv, 2*time.Second)
	if !strings.HasPrefix(srv.URL(), "http://127.0.0.1:") && !strings.HasPrefix(srv.URL(), "http://[::1]:") {
		t.Errorf("URL() = %q, want a loopback address", srv.URL())
	}

	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("unexpected error on shutdown: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down within 3 seconds")
	}
}

// waitForServer polls the server until it's ready or the timeout is reached.
func waitForServer(t *testing.T, srv *Server, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		addr := srv.Addr()
		if addr == "" {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		resp, err := http.Get("http://" + addr + "/")
		if err == nil {
			resp.Body.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("server did not start within timeout")
}
