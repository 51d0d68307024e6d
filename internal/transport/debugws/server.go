// Package debugws streams plan telemetry to websocket clients on loopback.
package debugws

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"voxelmind.ai/internal/ai/telemetry"
)

const (
	sessionBuffer = 1024

	defaultPingEvery = 20 * time.Second
	defaultReadWait  = 60 * time.Second
)

type Hub struct {
	log *log.Logger

	// AllowRemote accepts non-loopback clients.
	AllowRemote bool

	upgrader websocket.Upgrader
	nextID   atomic.Uint64

	// A session is closed when nothing, pongs included, arrives within
	// readWait. Pings go out every pingEvery.
	pingEvery time.Duration
	readWait  time.Duration

	mu       sync.RWMutex
	sessions map[string]*session

	sent    atomic.Uint64
	dropped atomic.Uint64
}

type session struct {
	id     string
	out    chan []byte
	filter atomic.Pointer[filter]
}

type Stats struct {
	Sessions int    `json:"sessions"`
	Sent     uint64 `json:"sent"`
	Dropped  uint64 `json:"dropped"`
}

func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Hub{
		log:       logger,
		sessions:  map[string]*session{},
		pingEvery: defaultPingEvery,
		readWait:  defaultReadWait,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Emit fans e out to every session whose filter matches. Slow sessions lose
// events instead of stalling the tick.
func (h *Hub) Emit(e telemetry.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.sessions) == 0 {
		return
	}
	b, err := json.Marshal(EventMsg{Type: TypeEvent, Event: e})
	if err != nil {
		return
	}
	for _, s := range h.sessions {
		if !s.filter.Load().match(e) {
			continue
		}
		select {
		case s.out <- b:
			h.sent.Add(1)
		default:
			h.dropped.Add(1)
		}
	}
}

func (h *Hub) Stats() Stats {
	h.mu.RLock()
	n := len(h.sessions)
	h.mu.RUnlock()
	return Stats{Sessions: n, Sent: h.sent.Load(), Dropped: h.dropped.Load()}
}

func (h *Hub) StatsHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !h.allowed(r) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(h.Stats())
	}
}

func (h *Hub) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !h.allowed(r) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		conn, err := h.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		sub, err := readSubscribe(conn)
		if err != nil {
			closeWith(conn, websocket.ClosePolicyViolation, err.Error())
			return
		}

		s := &session{
			id:  fmt.Sprintf("D%d", h.nextID.Add(1)),
			out: make(chan []byte, sessionBuffer),
		}
		s.filter.Store(newFilter(sub))

		h.add(s)
		defer h.remove(s.id)
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(WelcomeMsg{Type: TypeWelcome, ProtocolVersion: Version, SessionID: s.id}); err != nil {
			return
		}
		h.log.Printf("debug session=%s remote=%s agents=%v", s.id, r.RemoteAddr, sub.Agents)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		writeErr := make(chan error, 1)
		go func() {
			ping := time.NewTicker(h.pingEvery)
			defer ping.Stop()
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case <-ping.C:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
						writeErr <- err
						return
					}
				case b := <-s.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(h.readWait))
		})
		for {
			_ = conn.SetReadDeadline(time.Now().Add(h.readWait))
			sub, err := readSubscribe(conn)
			if err != nil {
				if _, ok := err.(badSubscribe); ok {
					continue
				}
				break
			}
			s.filter.Store(newFilter(sub))
		}

		cancel()
		<-writeErr
		closeWith(conn, websocket.CloseNormalClosure, "bye")
	}
}

type badSubscribe string

func (e badSubscribe) Error() string { return string(e) }

func readSubscribe(conn *websocket.Conn) (SubscribeMsg, error) {
	var sub SubscribeMsg
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return sub, err
	}
	if err := json.Unmarshal(msg, &sub); err != nil {
		return sub, badSubscribe("bad subscribe")
	}
	if sub.Type != TypeSubscribe || sub.ProtocolVersion != Version {
		return sub, badSubscribe("expected SUBSCRIBE")
	}
	return sub, nil
}

func closeWith(conn *websocket.Conn, code int, text string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(time.Second))
}

func (h *Hub) add(s *session) {
	h.mu.Lock()
	h.sessions[s.id] = s
	h.mu.Unlock()
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	delete(h.sessions, id)
	h.mu.Unlock()
}

func (h *Hub) allowed(r *http.Request) bool {
	return h.AllowRemote || isLoopbackRemote(r.RemoteAddr)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
