package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"parkcraft.ai/internal/protocol"
	"parkcraft.ai/internal/sim/action"
	"parkcraft.ai/internal/sim/dispatch"
)

type outMsg struct {
	kind int
	b    []byte
}

// session is one participant connection on the authority. All writes go
// through writeLoop.
type session struct {
	id    dispatch.PeerID
	actor action.Actor
	conn  *websocket.Conn
	out   chan outMsg

	// violations is guarded by Server.mu.
	violations int

	closeOnce sync.Once
	done      chan struct{}
	bye       *protocol.ByeMsg
}

func (s *session) send(m outMsg) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.out <- m:
		return true
	default:
		return false
	}
}

// close stops the writer, which says bye (when given) and closes the socket.
func (s *session) close(bye *protocol.ByeMsg) {
	s.closeOnce.Do(func() {
		s.bye = bye
		close(s.done)
	})
}

func (s *session) writeLoop(writeTimeout, pingEvery time.Duration) {
	ping := time.NewTicker(pingEvery)
	defer ping.Stop()
	defer s.conn.Close()
	for {
		select {
		case <-s.done:
			if s.bye != nil {
				_ = writeJSON(s.conn, s.bye, writeTimeout)
			}
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeTimeout))
			return
		case m := <-s.out:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(m.kind, m.b); err != nil {
				s.close(nil)
				return
			}
		case <-ping.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				s.close(nil)
				return
			}
		}
	}
}

func writeJSON(conn *websocket.Conn, v any, timeout time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(timeout))
	return conn.WriteMessage(websocket.TextMessage, b)
}
