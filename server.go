package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/dso/pkg/scope"
)

type Client struct {
	id   uuid.UUID
	conn *websocket.Conn
	send chan interface{}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	defer func() {
		c.conn.Close()
	}()
	for msg := range c.send {
		switch v := msg.(type) {
		case []byte:
			if err := c.conn.WriteMessage(websocket.BinaryMessage, v); err != nil {
				return
			}
		default:
			if err := c.conn.WriteJSON(v); err != nil {
				return
			}
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

func (c *Client) trySend(msg interface{}) {
	select {
	case c.send <- msg:
	default:
	}
}

// Hub fans traces and status messages out to the websocket clients. A nil
// Hub drops everything.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*Client]bool)}
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	if h.clients[c] {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	if h == nil {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues msg for every client. Slow clients miss messages rather
// than stalling the display.
func (h *Hub) Broadcast(msg interface{}) {
	if h == nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.send <- msg:
		default:
		}
	}
}

// Server is the HTTP front end of a session.
type Server struct {
	sess     *Session
	hub      *Hub
	exporter *Exporter
	recorder *FrameRecorder
	logger   *log.Logger
	upgrader websocket.Upgrader
}

func NewServer(sess *Session, hub *Hub, exp *Exporter, rec *FrameRecorder, logger *log.Logger) *Server {
	return &Server{
		sess:     sess,
		hub:      hub,
		exporter: exp,
		recorder: rec,
		logger:   logger,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 65536,
		},
	}
}

// Handler returns the routes: the page, the websocket stream and the API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	templatesContent, _ := fs.Sub(templatesFS, "templates")
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		tmpl, err := template.ParseFS(templatesContent, "*.html")
		if err != nil {
			http.Error(w, "Template error: "+err.Error(), 500)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		tmpl.ExecuteTemplate(w, "index.html", scope.Timebases)
	})

	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("GET /api/timebases", s.handleTimebases)
	mux.HandleFunc("GET /api/trace", s.handleTrace)
	mux.HandleFunc("GET /api/spectrum", s.handleSpectrum)
	mux.HandleFunc("POST /api/arm", s.handleArm)
	mux.HandleFunc("POST /api/mode", s.handleMode)
	mux.HandleFunc("POST /api/timebase", s.handleTimebase)
	mux.HandleFunc("POST /api/trigger", s.handleTrigger)
	mux.HandleFunc("POST /api/delay", s.handleDelay)
	mux.HandleFunc("POST /api/holdoff", s.handleHoldoff)
	mux.HandleFunc("POST /api/add", s.handleChannelAdd)
	mux.HandleFunc("POST /api/channel/{n}", s.handleChannel)
	mux.HandleFunc("POST /api/calibrate", s.handleCalibrate)
	mux.HandleFunc("POST /api/export", s.handleExport)
	mux.HandleFunc("POST /api/record/start", s.handleRecordStart)
	mux.HandleFunc("POST /api/record/stop", s.handleRecordStop)
	mux.HandleFunc("GET /api/record/status", s.handleRecordStatus)

	mux.HandleFunc("GET /ws", s.handleWS)
	return mux
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade", "err", err)
		return
	}

	client := &Client{id: uuid.New(), conn: conn, send: make(chan interface{}, 64)}
	s.hub.add(client)
	go client.writePump()
	s.logger.Info("client connected", "id", client.id, "remote", r.RemoteAddr)

	defer func() {
		s.hub.remove(client)
		s.logger.Info("client disconnected", "id", client.id)
	}()

	client.trySend(map[string]interface{}{"type": "hello", "id": client.id, "state": s.sess.State()})

	// control messages from the page (read pump)
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var ctl struct {
			Type     string `json:"type"`
			Mode     string `json:"mode"`
			Timebase *int   `json:"timebase"`
		}
		if err := json.Unmarshal(msg, &ctl); err != nil {
			continue
		}
		if err := s.control(ctl.Type, ctl.Mode, ctl.Timebase); err != nil {
			client.trySend(map[string]string{"type": "error", "error": err.Error()})
			continue
		}
		s.broadcastState()
	}
}

func (s *Server) control(kind, mode string, timebase *int) error {
	switch kind {
	case "arm":
		s.sess.Arm()
	case "mode":
		m, err := scope.ParseMode(mode)
		if err != nil {
			return err
		}
		return s.sess.SetMode(m)
	case "timebase":
		if timebase == nil {
			return errors.New("timebase missing")
		}
		return s.sess.SetTimebase(*timebase)
	default:
		return fmt.Errorf("unknown control %q", kind)
	}
	return nil
}

func (s *Server) broadcastState() {
	s.hub.Broadcast(map[string]interface{}{"type": "state", "state": s.sess.State()})
}

// runServer serves until ctx is cancelled.
func runServer(ctx context.Context, port int, srv *Server, logger *log.Logger) error {
	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("scope server listening", "url", fmt.Sprintf("http://localhost%s", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
