package ws

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"parkcraft.ai/internal/persistence/snapshot"
	"parkcraft.ai/internal/protocol"
	"parkcraft.ai/internal/sim/action"
	"parkcraft.ai/internal/sim/dispatch"
	"parkcraft.ai/internal/sim/park"
)

// AuthorityPeer is how a participant names its only peer.
const AuthorityPeer dispatch.PeerID = "authority"

var (
	ErrNotConnected = errors.New("ws: not connected to the authority")
	// ErrRefused wraps a handshake the authority refused; retrying cannot help.
	ErrRefused = errors.New("ws: refused by authority")
)

type ClientOptions struct {
	URL           string
	PlayerName    string
	CatalogDigest string
	OutQueue      int

	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	// MaxElapsed bounds one reconnect attempt series; zero retries forever.
	MaxElapsed time.Duration
}

// Client is a participant's link to the authority and the dispatcher's
// Transport. Every (re)connect restores the park from the authority's
// snapshot, so a participant never has to catch up from its own state.
type Client struct {
	d   *dispatch.Dispatcher
	opt ClientOptions
	log *logrus.Entry

	mu      sync.Mutex
	out     chan []byte
	welcome protocol.WelcomeMsg

	readyOnce sync.Once
	ready     chan struct{}
}

var _ dispatch.Transport = (*Client)(nil)

func NewClient(d *dispatch.Dispatcher, opt ClientOptions) *Client {
	if opt.OutQueue <= 0 {
		opt.OutQueue = 256
	}
	if opt.HandshakeTimeout <= 0 {
		opt.HandshakeTimeout = 10 * time.Second
	}
	if opt.WriteTimeout <= 0 {
		opt.WriteTimeout = 5 * time.Second
	}
	c := &Client{
		d:     d,
		opt:   opt,
		log:   logrus.WithFields(logrus.Fields{"component": "ws", "url": opt.URL}),
		ready: make(chan struct{}),
	}
	d.SetTransport(c)
	return c
}

func (c *Client) Broadcast([]byte) error {
	return errors.New("ws: participants do not broadcast")
}

func (c *Client) SendReject(dispatch.PeerID, protocol.RejectMsg) error {
	return errors.New("ws: participants do not reject")
}

func (c *Client) SendRequest(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.out == nil {
		return ErrNotConnected
	}
	select {
	case c.out <- frame:
		return nil
	default:
		return errors.New("ws: send queue full")
	}
}

// Welcome returns the last WELCOME received.
func (c *Client) Welcome() protocol.WelcomeMsg {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.welcome
}

// WaitReady blocks until the first session has restored the park.
func (c *Client) WaitReady(ctx context.Context) error {
	select {
	case <-c.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run keeps a session open until ctx ends or the authority refuses us.
func (c *Client) Run(ctx context.Context) error {
	for {
		conn, err := c.connect(ctx)
		if err != nil {
			return err
		}
		err = c.session(ctx, conn)
		_ = conn.Close()
		if n := c.d.FailPending(action.Fail(action.StatusInternalInvariantViolation, action.MsgActionRejected, action.MsgConnectionLost)); n > 0 {
			c.log.Warnf("%d pending requests failed on disconnect", n)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, ErrRefused) {
			return err
		}
		c.log.WithError(err).Warn("session ended, reconnecting")
	}
}

func (c *Client) connect(ctx context.Context) (*websocket.Conn, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxInterval = 10 * time.Second
	bo.MaxElapsedTime = c.opt.MaxElapsed

	var conn *websocket.Conn
	op := func() error {
		cn, err := c.dial(ctx)
		if errors.Is(err, ErrRefused) {
			return backoff.Permanent(err)
		}
		if err != nil {
			c.log.WithError(err).Debug("dial failed")
			return err
		}
		conn = cn
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	return conn, nil
}

// dial opens a socket and completes HELLO/WELCOME.
func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: c.opt.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.opt.URL, nil)
	if err != nil {
		return nil, err
	}
	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		PlayerName:      c.opt.PlayerName,
		CatalogDigest:   c.opt.CatalogDigest,
		LastSeq:         c.d.LastSeq(),
	}
	if err := writeJSON(conn, hello, c.opt.WriteTimeout); err != nil {
		_ = conn.Close()
		return nil, err
	}

	_ = conn.SetReadDeadline(time.Now().Add(c.opt.HandshakeTimeout))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	switch base.Type {
	case protocol.TypeWelcome:
	case protocol.TypeBye:
		var bye protocol.ByeMsg
		_ = json.Unmarshal(msg, &bye)
		_ = conn.Close()
		if bye.Code == protocol.ErrSessionFull {
			return nil, fmt.Errorf("session full: %s", bye.Reason)
		}
		return nil, fmt.Errorf("%w: %s %s", ErrRefused, bye.Code, bye.Reason)
	default:
		_ = conn.Close()
		return nil, fmt.Errorf("expected WELCOME, got %q", base.Type)
	}
	var w protocol.WelcomeMsg
	if err := json.Unmarshal(msg, &w); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if w.ProtocolVersion != protocol.Version || w.CatalogDigest != c.opt.CatalogDigest {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: authority runs %s with catalog %s", ErrRefused, w.ProtocolVersion, w.CatalogDigest)
	}
	c.mu.Lock()
	c.welcome = w
	c.mu.Unlock()
	return conn, nil
}

func (c *Client) session(ctx context.Context, conn *websocket.Conn) error {
	w := c.Welcome()
	if err := c.restore(conn, w); err != nil {
		return err
	}
	c.d.SetActor(action.Actor{ID: park.PlayerID(w.PlayerID), Kind: action.ActorHuman, Group: w.Group})

	out := make(chan []byte, c.opt.OutQueue)
	c.mu.Lock()
	c.out = out
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.out = nil
		c.mu.Unlock()
	}()
	c.readyOnce.Do(func() { close(c.ready) })
	c.log.WithFields(logrus.Fields{"player": w.PlayerID, "group": w.Group, "seq": w.LastSeq}).Info("joined park")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	writeErr := make(chan error, 1)
	go func() {
		writeErr <- c.writeLoop(ctx, conn, out)
		cancel()
		_ = conn.Close()
	}()
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	err := c.readLoop(ctx, conn)
	cancel()
	if werr := <-writeErr; err == nil {
		err = werr
	}
	return err
}

// restore reads SNAPSHOT and swaps the dispatcher onto the authority's park.
func (c *Client) restore(conn *websocket.Conn, w protocol.WelcomeMsg) error {
	_ = conn.SetReadDeadline(time.Now().Add(c.opt.HandshakeTimeout))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return err
	}
	var sm protocol.SnapshotMsg
	if err := json.Unmarshal(msg, &sm); err != nil || sm.Type != protocol.TypeSnapshot {
		return fmt.Errorf("expected SNAPSHOT: %v", err)
	}
	if sm.Seq != w.LastSeq || sm.Digest != w.StateDigest {
		return fmt.Errorf("snapshot at seq %d does not match WELCOME seq %d", sm.Seq, w.LastSeq)
	}
	snap, err := snapshot.Decode(bytes.NewReader(sm.Data))
	if err != nil {
		return err
	}
	st, err := snap.Restore()
	if err != nil {
		return err
	}
	_ = conn.SetReadDeadline(time.Time{})
	c.d.ReplaceWorld(st, sm.Seq, sm.Tick)
	return nil
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		typ, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if typ == websocket.BinaryMessage {
			r := c.d.Receive(ctx, AuthorityPeer, msg)
			if !r.OK() {
				// A gap means this node has diverged; resync from a fresh snapshot.
				return fmt.Errorf("sealed frame rejected: %s", r)
			}
			c.d.ProcessQueue()
			continue
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeReject:
			var rej protocol.RejectMsg
			if err := json.Unmarshal(msg, &rej); err == nil {
				c.d.ReceiveReject(rej)
			}
		case protocol.TypeBye:
			var bye protocol.ByeMsg
			_ = json.Unmarshal(msg, &bye)
			if bye.Reason == "shutdown" {
				return fmt.Errorf("authority shut down")
			}
			return fmt.Errorf("authority closed session: %s %s", bye.Code, bye.Reason)
		}
	}
}

func (c *Client) writeLoop(ctx context.Context, conn *websocket.Conn, out <-chan []byte) error {
	for {
		select {
		case <-ctx.Done():
			_ = writeJSON(conn, protocol.ByeMsg{Type: protocol.TypeBye, Reason: "leaving"}, c.opt.WriteTimeout)
			return nil
		case b := <-out:
			_ = conn.SetWriteDeadline(time.Now().Add(c.opt.WriteTimeout))
			if err := conn.WriteMessage(websocket.BinaryMessage, b); err != nil {
				return err
			}
		}
	}
}
