package web

import (
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
)

// StreamMessage is one websocket frame of the state stream.
type StreamMessage struct {
	Type   string         `json:"type"` // "status"
	Seq    uint64         `json:"seq"`
	Status StatusSnapshot `json:"status"`
}

// stateStream pushes a StatusSnapshot to each websocket client every
// interval. Clients only need to read; anything they send is discarded.
type stateStream struct {
	status   *Status
	ctl      Controller
	interval time.Duration

	upgrader websocket.Upgrader
	clients  atomic.Int64
}

func newStateStream(status *Status, ctl Controller, interval time.Duration) *stateStream {
	return &stateStream{
		status:   status,
		ctl:      ctl,
		interval: interval,
		upgrader: websocket.Upgrader{
			// LAN appliance; the API has no auth to protect.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (s *stateStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		log.Printf("web: websocket upgrade failed: %v", err)
		return
	}
	n := s.clients.Add(1)
	log.Printf("web: websocket client connected (%d active)", n)
	defer func() {
		_ = conn.Close()
		log.Printf("web: websocket client disconnected (%d active)", s.clients.Add(-1))
	}()

	done := make(chan struct{})
	go s.readPump(conn, done)

	ctx := r.Context()
	tick := time.NewTicker(s.interval)
	defer tick.Stop()
	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	var seq uint64
	send := func() bool {
		seq++
		msg := StreamMessage{Type: "status", Seq: seq, Status: s.status.Snapshot(time.Now().UTC(), s.ctl)}
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(msg); err != nil {
			log.Printf("web: websocket write failed: %v", err)
			return false
		}
		return true
	}

	// New clients get a sample immediately.
	if !send() {
		return
	}
	for {
		select {
		case <-ctx.Done():
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown"))
			return
		case <-done:
			return
		case <-tick.C:
			if !send() {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *stateStream) readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("web: websocket read error: %v", err)
			}
			return
		}
	}
}
