package visualization

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nvandessel/neurodemo/internal/constants"
	"github.com/nvandessel/neurodemo/internal/layout"
	"github.com/nvandessel/neurodemo/internal/logging"
	"github.com/nvandessel/neurodemo/internal/loop"
	"github.com/nvandessel/neurodemo/internal/neuron"
	"github.com/nvandessel/neurodemo/internal/ratelimit"
)

const (
	writeWait       = 10 * time.Second
	pongWait        = 60 * time.Second
	pingPeriod      = pongWait * 9 / 10
	limiterIdle     = 5 * time.Minute
	maxRequestBytes = 1 << 10
)

// Options configures a Server.
type Options struct {
	// Addr is the listen address. Empty means constants.DefaultServerAddr.
	Addr string

	// BackgroundPath is an optional decorative image. When set it must be
	// readable, otherwise NewServer fails.
	BackgroundPath string

	// Logger receives request and connection logs. Nil discards them.
	Logger *slog.Logger
}

// Server serves the live canvas and accepts input for the render loop.
type Server struct {
	loop       *loop.Loop
	layout     layout.Layout
	addrOpt    string
	background []byte
	clicks     *ratelimit.Limiter
	logger     *slog.Logger
	upgrader   websocket.Upgrader

	httpServer *http.Server
	listener   net.Listener
	mu         sync.Mutex
	addr       string
}

// NewServer creates a server feeding l.
func NewServer(l *loop.Loop, opts Options) (*Server, error) {
	s := &Server{
		loop:    l,
		layout:  l.Layout(),
		addrOpt: opts.Addr,
		clicks:  ratelimit.NewClickLimiter(),
		logger:  opts.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	if s.addrOpt == "" {
		s.addrOpt = constants.DefaultServerAddr
	}
	if s.logger == nil {
		s.logger = logging.Discard()
	}

	if opts.BackgroundPath != "" {
		data, err := os.ReadFile(opts.BackgroundPath)
		if err != nil {
			return nil, fmt.Errorf("loading background image: %w", err)
		}
		s.background = data
	}

	return s, nil
}

// Addr returns the address the server is listening on (e.g., "localhost:PORT").
// Returns empty string if the server hasn't started yet.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// URL returns the page URL, or empty string before the server starts.
func (s *Server) URL() string {
	addr := s.Addr()
	if addr == "" {
		return ""
	}
	return "http://" + addr + "/"
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/background", s.handleBackground)
	mux.HandleFunc("/api/snapshot", s.handleSnapshot)
	mux.HandleFunc("/api/layout", s.handleLayout)
	mux.HandleFunc("/api/click", s.handleClick)
	mux.HandleFunc("/api/stimulate", s.handleStimulate)
	mux.HandleFunc("/api/reset", s.handleReset)
	mux.HandleFunc("/ws", s.handleWebSocket)
	return mux
}

// ListenAndServe starts the HTTP server and blocks until the context is
// cancelled. Returns nil on clean shutdown.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addrOpt)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	s.mu.Lock()
	s.listener = ln
	s.addr = ln.Addr().String()
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.mu.Unlock()

	s.logger.Info("visualization server listening", "url", s.URL())

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				s.httpServer.Shutdown(shutdownCtx)
				return
			case <-ticker.C:
				s.clicks.Prune(limiterIdle)
			}
		}
	}()

	err = s.httpServer.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	html, err := RenderHTML(s.layout, s.background != nil)
	if err != nil {
		http.Error(w, "render error: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(html)
}

func (s *Server) handleBackground(w http.ResponseWriter, r *http.Request) {
	if s.background == nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(s.background))
	w.Header().Set("Cache-Control", "max-age=3600")
	w.Write(s.background)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.loop.Latest())
}

func (s *Server) handleLayout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, sceneData{
		Layout:      s.layout,
		Connections: s.layout.Connections(),
		Background:  s.background != nil,
	})
}

// handleClick accepts a canvas click as JSON {"x": .., "y": ..}. Hit-testing
// happens on the loop, so a miss is still accepted.
func (s *Server) handleClick(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.allow(r) {
		http.Error(w, "too many clicks", http.StatusTooManyRequests)
		return
	}

	var p layout.Point
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&p); err != nil {
		http.Error(w, "invalid click: "+err.Error(), http.StatusBadRequest)
		return
	}
	if !s.layout.Contains(p) {
		http.Error(w, fmt.Sprintf("click (%d, %d) is outside the %dx%d canvas",
			p.X, p.Y, s.layout.Width, s.layout.Height), http.StatusBadRequest)
		return
	}

	s.submit(w, loop.Click(p))
}

// handleStimulate triggers an input neuron by name: POST /api/stimulate?node=input1.
func (s *Server) handleStimulate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := r.URL.Query().Get("node")
	if name == "" {
		http.Error(w, "missing 'node' query parameter", http.StatusBadRequest)
		return
	}
	id, err := neuron.ParseNodeID(name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !id.IsInput() {
		http.Error(w, fmt.Sprintf("%s is not an input neuron", id), http.StatusBadRequest)
		return
	}
	if !s.allow(r) {
		http.Error(w, "too many stimulations", http.StatusTooManyRequests)
		return
	}

	s.submit(w, loop.Stimulate(id))
}

// handleReset clears all activation state: POST /api/reset.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.submit(w, loop.Reset())
}

func (s *Server) submit(w http.ResponseWriter, ev loop.Event) {
	if err := s.loop.Submit(ev); err != nil {
		s.logger.Warn("dropping input event", "kind", ev.Kind, "error", err)
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"queued": true})
}

// allow applies the per-client click budget, keyed by remote host.
func (s *Server) allow(r *http.Request) bool {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return s.clicks.Allow(host)
}

// handleWebSocket streams every published frame to the client as JSON.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	frames, cancel := s.loop.Subscribe()
	defer cancel()

	s.logger.Debug("websocket client connected", "remote", r.RemoteAddr)
	defer s.logger.Debug("websocket client disconnected", "remote", r.RemoteAddr)

	// The reader only handles control frames and notices the close.
	closed := make(chan struct{})
	conn.SetReadLimit(maxRequestBytes)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// Send the current state right away rather than waiting for a frame.
	if err := s.writeFrame(conn, s.loop.Latest()); err != nil {
		return
	}

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait))
			return
		case <-closed:
			return
		case f, ok := <-frames:
			if !ok {
				return
			}
			if err := s.writeFrame(conn, f); err != nil {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) writeFrame(conn *websocket.Conn, f loop.Frame) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(f); err != nil {
		s.logger.Debug("websocket write failed", "error", err)
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
