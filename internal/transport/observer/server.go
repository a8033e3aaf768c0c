package observer

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"parkcraft.ai/internal/observerproto"
	"parkcraft.ai/internal/sim/dispatch"
	"parkcraft.ai/internal/sim/park"
)

// Server streams a park's executed actions to read-only watchers. It is a
// dispatch.Sink and dispatch.RejectObserver; attach it with AddSink and
// AddRejectObserver. Only loopback clients are served.
type Server struct {
	d      *dispatch.Dispatcher
	parkID string
	log    *logrus.Entry

	upgrader websocket.Upgrader

	mu       sync.Mutex
	watchers map[*watcher]struct{}
	dropped  atomic.Uint64
}

var (
	_ dispatch.Sink           = (*Server)(nil)
	_ dispatch.RejectObserver = (*Server)(nil)
)

type watcher struct {
	out chan []byte

	mu  sync.Mutex
	sub observerproto.SubscribeMsg
}

func (w *watcher) wants(player uint32, reject bool) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if reject && !w.sub.Rejects {
		return false
	}
	return w.sub.Player == 0 || w.sub.Player == player
}

func NewServer(d *dispatch.Dispatcher, parkID string) *Server {
	return &Server{
		d:      d,
		parkID: parkID,
		log:    logrus.WithField("component", "observer"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		watchers: map[*watcher]struct{}{},
	}
}

func (s *Server) Record(e dispatch.ReplayEntry) error {
	b, err := json.Marshal(observerproto.ActionMsg{
		Type:    observerproto.TypeAction,
		Seq:     e.Seq,
		Tick:    e.Tick,
		Kind:    e.KindName,
		Player:  e.Player,
		Status:  e.Status,
		Message: e.Message,
		Cost:    e.Cost,
		Digest:  e.Digest,
	})
	if err != nil {
		return err
	}
	s.fanout(b, e.Player, false)
	return nil
}

func (s *Server) Rejected(r dispatch.Rejection) error {
	b, err := json.Marshal(observerproto.RejectedMsg{
		Type:    observerproto.TypeRejected,
		Tick:    r.Tick,
		Kind:    r.Kind.String(),
		Player:  uint32(r.Player),
		Status:  r.Result.Status.String(),
		Message: string(r.Result.Message),
		Args:    r.Result.Args,
	})
	if err != nil {
		return err
	}
	s.fanout(b, uint32(r.Player), true)
	return nil
}

// fanout never blocks the dispatcher; a slow watcher misses events.
func (s *Server) fanout(b []byte, player uint32, reject bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for w := range s.watchers {
		if !w.wants(player, reject) {
			continue
		}
		select {
		case w.out <- b:
		default:
			s.dropped.Add(1)
		}
	}
}

func (s *Server) Watchers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.watchers)
}

func (s *Server) Dropped() uint64 { return s.dropped.Load() }

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		resp := observerproto.BootstrapResponse{
			ProtocolVersion: observerproto.Version,
			ParkID:          s.parkID,
			TickRateHz:      s.d.TickRateHz(),
			Tick:            s.d.Tick(),
			LastSeq:         s.d.LastSeq(),
		}
		s.d.ReadWorld(func(w park.World) {
			resp.Digest = w.Digest()
			resp.Rides = w.RideCount()
			resp.Elements = w.ElementCount()
			resp.Cash = int64(w.Cash())
		})
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		sub, ok := parseSubscribe(msg)
		if !ok {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}

		w := &watcher{out: make(chan []byte, 1024), sub: sub}
		s.mu.Lock()
		s.watchers[w] = struct{}{}
		s.mu.Unlock()
		defer func() {
			s.mu.Lock()
			delete(s.watchers, w)
			s.mu.Unlock()
		}()

		done := make(chan struct{})
		writeDone := make(chan struct{})
		go func() {
			defer close(writeDone)
			for {
				select {
				case <-done:
					return
				case b := <-w.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						_ = conn.Close()
						return
					}
				}
			}
		}()

		// Re-sent SUBSCRIBEs update the filter.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			if sub, ok := parseSubscribe(msg); ok {
				w.mu.Lock()
				w.sub = sub
				w.mu.Unlock()
			}
		}
		close(done)
		<-writeDone
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
	}
}

func parseSubscribe(msg []byte) (observerproto.SubscribeMsg, bool) {
	var sub observerproto.SubscribeMsg
	if err := json.Unmarshal(msg, &sub); err != nil {
		return sub, false
	}
	return sub, sub.Type == observerproto.TypeSubscribe && sub.ProtocolVersion == observerproto.Version
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
