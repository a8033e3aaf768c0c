package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"

	"parkcraft.ai/internal/protocol"
	"parkcraft.ai/internal/sim/action"
	"parkcraft.ai/internal/sim/action/actions"
	"parkcraft.ai/internal/sim/catalogs"
	"parkcraft.ai/internal/sim/park"
	"parkcraft.ai/internal/sim/permission"
	"parkcraft.ai/internal/sim/tuning"
)

func loadCats(t *testing.T) *catalogs.Catalogs {
	t.Helper()
	cats, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	return cats
}

// newPark builds the same 16x16 fully owned park every time, so separately
// built nodes start from identical state.
func newPark(rules park.Rules) *park.State {
	lim := park.DefaultLimits()
	lim.Width, lim.Height = 16, 16
	s := park.NewState(lim, rules, 100_000)
	s.SetOwned(park.TileXY{}, park.TileXY{X: 15, Y: 15}, true)
	s.AddGuest(park.Guest{ID: 1})
	return s
}

func newNode(t *testing.T, cats *catalogs.Catalogs, cfg Config, s *park.State) *Dispatcher {
	t.Helper()
	reg, err := actions.NewRegistry(cats)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	checker, err := permission.FromTuning(tuning.Defaults())
	if err != nil {
		t.Fatalf("checker: %v", err)
	}
	cfg.RecordDigest = true
	d, err := New(cfg, s, reg, checker)
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	return d
}

func encode(t *testing.T, a action.Action) []byte {
	t.Helper()
	b, err := action.Encode(a)
	if err != nil {
		t.Fatalf("encode %s: %v", action.Describe(a), err)
	}
	return b
}

func player(id park.PlayerID) action.Actor {
	return action.Actor{ID: id, Kind: action.ActorHuman}
}

type memSink struct {
	mu      sync.Mutex
	entries []ReplayEntry
}

func (s *memSink) Record(e ReplayEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

func (s *memSink) all() []ReplayEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ReplayEntry(nil), s.entries...)
}

// resultRecorder collects callback results.
type resultRecorder struct {
	mu      sync.Mutex
	results []action.Result
}

func (r *resultRecorder) cb(res action.Result) {
	r.mu.Lock()
	r.results = append(r.results, res)
	r.mu.Unlock()
}

func (r *resultRecorder) all() []action.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]action.Result(nil), r.results...)
}

// spyFlags wraps a real action and counts pipeline calls.
type spyFlags struct {
	actions.GuestSetFlags
	query    *action.Result
	panics   bool
	queries  int
	executes int
}

func (s *spyFlags) Query(w park.View) action.Result {
	s.queries++
	if s.query != nil {
		return *s.query
	}
	return s.GuestSetFlags.Query(w)
}

func (s *spyFlags) Execute(w park.Mutator) action.Result {
	s.executes++
	if s.panics {
		panic("spy exploded")
	}
	return s.GuestSetFlags.Execute(w)
}

type spyTrack struct {
	*actions.TrackPlace
	queries  int
	executes int
}

func (s *spyTrack) Query(w park.View) action.Result {
	s.queries++
	return s.TrackPlace.Query(w)
}

func (s *spyTrack) Execute(w park.Mutator) action.Result {
	s.executes++
	return s.TrackPlace.Execute(w)
}

// memNet is an in-memory session. Frames are queued and delivered by flush,
// in send order, so nothing is delivered while a sender holds a lock.
type memNet struct {
	mu        sync.Mutex
	authority *Dispatcher
	nodes     map[PeerID]*Dispatcher
	queue     []delivery
	flagged   []PeerID
	failures  []action.Result
}

type delivery struct {
	to     *Dispatcher
	from   PeerID
	frame  []byte
	reject *protocol.RejectMsg
}

const authorityPeer PeerID = "authority"

func newMemNet(authority *Dispatcher) *memNet {
	n := &memNet{authority: authority, nodes: map[PeerID]*Dispatcher{}}
	authority.SetTransport(authorityLink{n})
	authority.SetPeerReporter(n)
	return n
}

func (n *memNet) join(id PeerID, actor action.Actor, d *Dispatcher) {
	n.mu.Lock()
	n.nodes[id] = d
	n.mu.Unlock()
	d.SetTransport(participantLink{n: n, id: id})
	d.SetPeerReporter(n)
	n.authority.AddPeer(id, actor)
}

func (n *memNet) post(d delivery) {
	n.mu.Lock()
	n.queue = append(n.queue, d)
	n.mu.Unlock()
}

func (n *memNet) inFlight() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.queue)
}

func (n *memNet) FlagPeer(peer PeerID, _ string) {
	n.mu.Lock()
	n.flagged = append(n.flagged, peer)
	n.mu.Unlock()
}

func (n *memNet) flush() {
	for {
		n.mu.Lock()
		if len(n.queue) == 0 {
			n.mu.Unlock()
			return
		}
		d := n.queue[0]
		n.queue = n.queue[1:]
		n.mu.Unlock()

		if d.reject != nil {
			d.to.ReceiveReject(*d.reject)
			continue
		}
		if r := d.to.Receive(context.Background(), d.from, d.frame); !r.OK() {
			n.mu.Lock()
			n.failures = append(n.failures, r)
			n.mu.Unlock()
		}
	}
}

// step delivers everything in flight, then drains every node.
func (n *memNet) step() {
	n.flush()
	n.authority.StepOnce()
	n.mu.Lock()
	nodes := make([]*Dispatcher, 0, len(n.nodes))
	for _, d := range n.nodes {
		nodes = append(nodes, d)
	}
	n.mu.Unlock()
	for _, d := range nodes {
		d.ProcessQueue()
	}
}

type authorityLink struct{ n *memNet }

func (l authorityLink) Broadcast(frame []byte) error {
	l.n.mu.Lock()
	defer l.n.mu.Unlock()
	for _, d := range l.n.nodes {
		l.n.queue = append(l.n.queue, delivery{to: d, from: authorityPeer, frame: frame})
	}
	return nil
}

func (l authorityLink) SendRequest([]byte) error {
	return errors.New("authority does not send requests")
}

func (l authorityLink) SendReject(peer PeerID, msg protocol.RejectMsg) error {
	l.n.mu.Lock()
	to, ok := l.n.nodes[peer]
	l.n.mu.Unlock()
	if !ok {
		return errors.New("unknown peer")
	}
	l.n.post(delivery{to: to, reject: &msg})
	return nil
}

type participantLink struct {
	n  *memNet
	id PeerID
}

func (l participantLink) Broadcast([]byte) error {
	return errors.New("participants do not broadcast")
}

func (l participantLink) SendRequest(frame []byte) error {
	l.n.post(delivery{to: l.n.authority, from: l.id, frame: frame})
	return nil
}

func (l participantLink) SendReject(PeerID, protocol.RejectMsg) error {
	return errors.New("participants do not reject")
}

func at(tx, ty int32, z int32, dir uint8) park.CoordsXYZD {
	return park.CoordsXYZD{X: tx * park.TileSize, Y: ty * park.TileSize, Z: z, Direction: dir}
}
