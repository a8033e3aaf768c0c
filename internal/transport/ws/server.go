package ws

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"parkcraft.ai/internal/persistence/snapshot"
	"parkcraft.ai/internal/protocol"
	"parkcraft.ai/internal/sim/dispatch"
)

type ServerOptions struct {
	ParkID        string
	CatalogDigest string
	MaxPeers      int
	// MaxViolations closes a session after this many protocol violations.
	MaxViolations int
	OutQueue      int

	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
}

func (o *ServerOptions) defaults() {
	if o.MaxPeers <= 0 {
		o.MaxPeers = 64
	}
	if o.MaxViolations <= 0 {
		o.MaxViolations = 8
	}
	if o.OutQueue <= 0 {
		o.OutQueue = 1024
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 5 * time.Second
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 60 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
}

// Server is the authority's side of a session. It is the dispatcher's
// Transport and PeerReporter.
type Server struct {
	d      *dispatch.Dispatcher
	roster *Roster
	opt    ServerOptions
	log    *logrus.Entry

	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[dispatch.PeerID]*session
}

var (
	_ dispatch.Transport    = (*Server)(nil)
	_ dispatch.PeerReporter = (*Server)(nil)
)

func NewServer(d *dispatch.Dispatcher, roster *Roster, opt ServerOptions) *Server {
	opt.defaults()
	s := &Server{
		d:      d,
		roster: roster,
		opt:    opt,
		log:    logrus.WithField("component", "ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		sessions: map[dispatch.PeerID]*session{},
	}
	d.SetTransport(s)
	d.SetPeerReporter(s)
	return s
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sess := s.handshake(conn)
		if sess == nil {
			return
		}
		log := s.log.WithFields(logrus.Fields{"peer": sess.id, "player": sess.actor.ID})
		log.Info("participant joined")

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		go func() {
			sess.writeLoop(s.opt.WriteTimeout, s.opt.ReadTimeout/2)
			cancel()
		}()

		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(s.opt.ReadTimeout))
		})
		for ctx.Err() == nil {
			_ = conn.SetReadDeadline(time.Now().Add(s.opt.ReadTimeout))
			typ, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			if typ == websocket.BinaryMessage {
				s.d.Receive(ctx, sess.id, msg)
				continue
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil {
				s.FlagPeer(sess.id, "bad control message")
				continue
			}
			if base.Type == protocol.TypeBye {
				break
			}
		}

		s.remove(sess)
		s.d.RemovePeer(sess.id)
		sess.close(nil)
		log.Info("participant left")
	}
}

func (s *Server) handshake(conn *websocket.Conn) *session {
	_ = conn.SetReadDeadline(time.Now().Add(s.opt.HandshakeTimeout))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil
	}
	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		refuse(conn, protocol.ErrProtoBadRequest, "expected HELLO")
		return nil
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		refuse(conn, protocol.ErrProtoBadRequest, "bad HELLO")
		return nil
	}
	if hello.ProtocolVersion != protocol.Version {
		refuse(conn, protocol.ErrVersion, "bad protocol_version")
		return nil
	}
	if hello.CatalogDigest != s.opt.CatalogDigest {
		refuse(conn, protocol.ErrCatalog, "catalog digest mismatch")
		return nil
	}
	if s.Peers() >= s.opt.MaxPeers {
		refuse(conn, protocol.ErrSessionFull, "session full")
		return nil
	}
	if hello.PlayerName == "" {
		hello.PlayerName = "player"
	}

	actor := s.roster.Assign(hello.PlayerName)
	sess := &session{
		id:    dispatch.PeerID(uuid.NewString()),
		actor: actor,
		conn:  conn,
		done:  make(chan struct{}),
	}
	err = s.d.Attach(sess.id, actor, func(st dispatch.JoinState) error {
		var buf bytes.Buffer
		snap := snapshot.Build(s.opt.ParkID, st.AppliedSeq, st.Tick, st.Digest, st.Park)
		if err := snapshot.Encode(&buf, snap); err != nil {
			return err
		}
		welcome, err := json.Marshal(protocol.WelcomeMsg{
			Type:            protocol.TypeWelcome,
			ProtocolVersion: protocol.Version,
			SessionID:       string(sess.id),
			PlayerID:        uint32(actor.ID),
			Group:           actor.Group,
			CatalogDigest:   s.opt.CatalogDigest,
			TickRateHz:      s.d.TickRateHz(),
			Tick:            st.Tick,
			LastSeq:         st.AppliedSeq,
			StateDigest:     st.Digest,
		})
		if err != nil {
			return err
		}
		state, err := json.Marshal(protocol.SnapshotMsg{
			Type:   protocol.TypeSnapshot,
			Seq:    st.AppliedSeq,
			Tick:   st.Tick,
			Digest: st.Digest,
			Data:   buf.Bytes(),
		})
		if err != nil {
			return err
		}

		sess.out = make(chan outMsg, s.opt.OutQueue+len(st.Queued)+2)
		sess.out <- outMsg{kind: websocket.TextMessage, b: welcome}
		sess.out <- outMsg{kind: websocket.TextMessage, b: state}
		for _, f := range st.Queued {
			sess.out <- outMsg{kind: websocket.BinaryMessage, b: f}
		}
		s.mu.Lock()
		s.sessions[sess.id] = sess
		s.mu.Unlock()
		return nil
	})
	if err != nil {
		s.log.WithError(err).Error("attach failed")
		refuse(conn, protocol.ErrInternal, "attach failed")
		return nil
	}
	return sess
}

// refuse answers a failed handshake with BYE and a policy-violation close.
func refuse(conn *websocket.Conn, code, reason string) {
	_ = writeJSON(conn, protocol.ByeMsg{Type: protocol.TypeBye, Code: code, Reason: reason}, time.Second)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(time.Second))
}

// Broadcast queues a sealed frame for every session. A session that cannot
// keep up has lost a frame, so it is closed and must rejoin.
func (s *Server) Broadcast(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.sessions {
		if !sess.send(outMsg{kind: websocket.BinaryMessage, b: frame}) {
			s.log.WithField("peer", id).Warn("send queue full, dropping participant")
			delete(s.sessions, id)
			sess.close(&protocol.ByeMsg{Type: protocol.TypeBye, Code: protocol.ErrProtocol, Reason: "send queue overflow"})
		}
	}
	return nil
}

func (s *Server) SendRequest([]byte) error {
	return errors.New("ws: the authority does not send requests")
}

func (s *Server) SendReject(peer dispatch.PeerID, msg protocol.RejectMsg) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	s.mu.Lock()
	sess, ok := s.sessions[peer]
	s.mu.Unlock()
	if !ok {
		return errors.New("ws: unknown peer")
	}
	if !sess.send(outMsg{kind: websocket.TextMessage, b: b}) {
		return errors.New("ws: send queue full")
	}
	return nil
}

// FlagPeer counts a violation and closes the session past the limit.
func (s *Server) FlagPeer(peer dispatch.PeerID, reason string) {
	s.mu.Lock()
	sess, ok := s.sessions[peer]
	if !ok {
		s.mu.Unlock()
		return
	}
	sess.violations++
	over := sess.violations >= s.opt.MaxViolations
	if over {
		delete(s.sessions, peer)
	}
	s.mu.Unlock()
	if over {
		s.log.WithFields(logrus.Fields{"peer": peer, "reason": reason}).Warn("too many protocol violations, closing")
		sess.close(&protocol.ByeMsg{Type: protocol.TypeBye, Code: protocol.ErrProtocol, Reason: reason})
	}
}

func (s *Server) Peers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Close says BYE to every participant.
func (s *Server) Close() {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = map[dispatch.PeerID]*session{}
	s.mu.Unlock()
	for _, sess := range sessions {
		sess.close(&protocol.ByeMsg{Type: protocol.TypeBye, Reason: "shutdown"})
	}
}

func (s *Server) remove(sess *session) {
	s.mu.Lock()
	if cur, ok := s.sessions[sess.id]; ok && cur == sess {
		delete(s.sessions, sess.id)
	}
	s.mu.Unlock()
}
