package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"parkcraft.ai/internal/protocol"
	"parkcraft.ai/internal/sim/action"
	"parkcraft.ai/internal/sim/park"
	"parkcraft.ai/internal/sim/permission"
	"parkcraft.ai/internal/sim/tuning"
)

type Mode uint8

const (
	// ModeLocal executes everything immediately on this node.
	ModeLocal Mode = iota
	// ModeAuthority sequences and broadcasts networked actions.
	ModeAuthority
	// ModeParticipant forwards networked actions to the authority and only
	// executes sealed copies.
	ModeParticipant
	// ModeReplay accepts only actions issued by the replay player.
	ModeReplay
)

func (m Mode) String() string {
	switch m {
	case ModeLocal:
		return "local"
	case ModeAuthority:
		return "authority"
	case ModeParticipant:
		return "participant"
	case ModeReplay:
		return "replay"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// PeerID names one connected participant on the authority, or the authority
// itself on a participant.
type PeerID string

// Callback receives the final Result of a submitted action exactly once, on
// the node the action was submitted on.
type Callback func(action.Result)

// Transport carries frames between nodes. Broadcast is called inside the
// sequencing critical section so frames leave in seq order; it must not call
// back into the dispatcher.
type Transport interface {
	Broadcast(frame []byte) error
	SendRequest(frame []byte) error
	SendReject(peer PeerID, msg protocol.RejectMsg) error
}

// PeerReporter is told about peers that sent something malformed.
type PeerReporter interface {
	FlagPeer(peer PeerID, reason string)
}

// peerCommands are the command flags a participant may set on a request.
const peerCommands = action.CmdGhost

type Config struct {
	Mode  Mode
	Realm string

	TickRateHz    int
	QueueCapacity int
	DedupeEntries int

	ActionsPerSecond float64
	Burst            int

	// RecordDigest adds the state digest to every replay entry.
	RecordDigest bool

	// Actor is who local submissions are attributed to.
	Actor action.Actor
}

func ConfigFromTuning(mode Mode, t tuning.Tuning) Config {
	return Config{
		Mode:             mode,
		Realm:            mode.String(),
		TickRateHz:       t.TickRateHz,
		QueueCapacity:    t.QueueCapacity,
		DedupeEntries:    t.DedupeEntries,
		ActionsPerSecond: t.RateLimits.ActionsPerSecond,
		Burst:            t.RateLimits.Burst,
	}
}

type pending struct {
	callback Callback
	stop     func() bool
}

// dedupeKey scopes request ids to one registration of a peer. Request ids
// restart at 1 with every participant process.
type dedupeKey struct {
	peer    PeerID
	session uint64
	request uint32
}

type Dispatcher struct {
	cfg      Config
	reg      *action.Registry
	checker  *permission.Checker
	dedupe   *lru.ARCCache
	tracer   trace.Tracer
	log      *logrus.Entry
	metrics  *Metrics
	sinks    []Sink
	rejects  []RejectObserver
	reporter PeerReporter

	worldMu sync.RWMutex
	world   park.World

	// procMu keeps execution in seq order across concurrent drains.
	procMu sync.Mutex
	// applied is the seq of the last executed action. Guarded by procMu.
	applied uint32

	mu         sync.Mutex
	transport  Transport
	tick       uint32
	seq        uint32
	sealedTick uint32
	queue      actionQueue
	requestID  uint32
	pending    map[uint32]*pending
	peers      map[PeerID]action.Actor
	limiters   map[PeerID]*rate.Limiter
	sessions   map[PeerID]uint64
	sessionSeq uint64
}

func New(cfg Config, world park.World, reg *action.Registry, checker *permission.Checker) (*Dispatcher, error) {
	if world == nil || reg == nil || checker == nil {
		return nil, errors.New("dispatch: world, registry and checker are required")
	}
	if cfg.Mode > ModeReplay {
		return nil, fmt.Errorf("dispatch: unknown mode %d", cfg.Mode)
	}
	if cfg.TickRateHz <= 0 {
		cfg.TickRateHz = 40
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 4096
	}
	if cfg.DedupeEntries <= 0 {
		cfg.DedupeEntries = 8192
	}
	if cfg.Realm == "" {
		cfg.Realm = cfg.Mode.String()
	}
	dedupe, err := lru.NewARC(cfg.DedupeEntries)
	if err != nil {
		return nil, fmt.Errorf("dispatch: dedupe cache: %w", err)
	}
	return &Dispatcher{
		cfg:      cfg,
		reg:      reg,
		checker:  checker,
		dedupe:   dedupe,
		tracer:   otel.Tracer("parkcraft.ai/internal/sim/dispatch"),
		log:      logrus.WithFields(logrus.Fields{"component": "dispatch", "realm": cfg.Realm}),
		metrics:  NewMetrics(nil),
		world:    world,
		pending:  map[uint32]*pending{},
		peers:    map[PeerID]action.Actor{},
		limiters: map[PeerID]*rate.Limiter{},
		sessions: map[PeerID]uint64{},
	}, nil
}

// Setters are meant to be called before Run and before any peer connects.

func (d *Dispatcher) SetLogger(l *logrus.Entry)      { d.log = l.WithField("realm", d.cfg.Realm) }
func (d *Dispatcher) SetMetrics(m *Metrics)          { d.metrics = m }
func (d *Dispatcher) SetPeerReporter(r PeerReporter) { d.reporter = r }
func (d *Dispatcher) AddSink(s Sink)                 { d.sinks = append(d.sinks, s) }
func (d *Dispatcher) Registry() *action.Registry     { return d.reg }
func (d *Dispatcher) Checker() *permission.Checker   { return d.checker }
func (d *Dispatcher) Mode() Mode                     { return d.cfg.Mode }
func (d *Dispatcher) TickRateHz() int                { return d.cfg.TickRateHz }

func (d *Dispatcher) AddRejectObserver(o RejectObserver) {
	d.rejects = append(d.rejects, o)
}

func (d *Dispatcher) SetTransport(t Transport) {
	d.mu.Lock()
	d.transport = t
	d.mu.Unlock()
}

// SetActor changes who local submissions are attributed to. A participant
// calls it once the authority assigned a player id.
func (d *Dispatcher) SetActor(a action.Actor) {
	d.mu.Lock()
	d.cfg.Actor = a
	d.mu.Unlock()
}

func (d *Dispatcher) Actor() action.Actor {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg.Actor
}

func (d *Dispatcher) Tick() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tick
}

// LastSeq is the last seq this node sealed or accepted.
func (d *Dispatcher) LastSeq() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seq
}

// Resume positions a participant after a WELCOME so the next sealed frame it
// accepts is seq+1.
func (d *Dispatcher) Resume(seq, tick uint32) {
	d.mu.Lock()
	d.seq = seq
	d.tick = tick
	d.sealedTick = tick
	d.mu.Unlock()
}

// ReplaceWorld swaps the park, for a participant that loaded a snapshot.
func (d *Dispatcher) ReplaceWorld(w park.World, seq, tick uint32) {
	d.procMu.Lock()
	defer d.procMu.Unlock()
	d.worldMu.Lock()
	d.world = w
	d.worldMu.Unlock()
	d.mu.Lock()
	d.queue = nil
	d.mu.Unlock()
	d.applied = seq
	d.Resume(seq, tick)
}

// ReadWorld runs fn under the shared world lock. fn must not keep w.
func (d *Dispatcher) ReadWorld(fn func(w park.World)) {
	d.worldMu.RLock()
	defer d.worldMu.RUnlock()
	fn(d.world)
}

func (d *Dispatcher) Digest() string {
	d.worldMu.RLock()
	defer d.worldMu.RUnlock()
	return d.world.Digest()
}

// AddPeer registers a connected participant. Requests from the peer are
// attributed to actor whatever the payload says.
func (d *Dispatcher) AddPeer(peer PeerID, actor action.Actor) {
	d.mu.Lock()
	d.addPeerLocked(peer, actor)
	d.mu.Unlock()
}

func (d *Dispatcher) addPeerLocked(peer PeerID, actor action.Actor) {
	limit := rate.Inf
	if d.cfg.ActionsPerSecond > 0 {
		limit = rate.Limit(d.cfg.ActionsPerSecond)
	}
	burst := d.cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	d.peers[peer] = actor
	d.limiters[peer] = rate.NewLimiter(limit, burst)
	d.sessionSeq++
	d.sessions[peer] = d.sessionSeq
}

func (d *Dispatcher) RemovePeer(peer PeerID) {
	d.mu.Lock()
	delete(d.peers, peer)
	delete(d.limiters, peer)
	delete(d.sessions, peer)
	d.mu.Unlock()
}

// Submit runs an action through the pipeline as the local actor. The
// returned Result is the outcome of the stages that ran synchronously: a
// rejection, the final result of a local execution, or the validated query
// result of an action that was sealed or forwarded. cb, when set, receives
// the final Result exactly once unless ctx ends while a participant request
// is still pending.
func (d *Dispatcher) Submit(ctx context.Context, a action.Action, cb Callback) action.Result {
	ctx, span := d.tracer.Start(ctx, "dispatch.Submit", trace.WithAttributes(
		attribute.String("action.kind", a.Kind().String()),
		attribute.String("dispatch.mode", d.cfg.Mode.String()),
	))
	defer span.End()

	r := d.submit(ctx, d.Actor(), a, cb)
	span.SetAttributes(attribute.String("action.status", r.Status.String()))
	if !r.OK() {
		span.SetStatus(codes.Error, string(r.Message))
	}
	return r
}

// Execute submits a and waits for its final Result. On the authority this
// waits for the queue to be drained by Run or ProcessQueue.
func (d *Dispatcher) Execute(ctx context.Context, a action.Action) (action.Result, error) {
	done := make(chan action.Result, 1)
	d.Submit(ctx, a, func(r action.Result) { done <- r })
	select {
	case r := <-done:
		return r, nil
	case <-ctx.Done():
		return action.Result{}, ctx.Err()
	}
}

// Query previews a as the local actor: permission, game mode, query and
// affordability, without side effects.
func (d *Dispatcher) Query(a action.Action) action.Result {
	actor := d.Actor()
	a.SetPlayer(actor.ID)
	return d.validate(actor, a)
}

func (d *Dispatcher) submit(ctx context.Context, actor action.Actor, a action.Action, cb Callback) action.Result {
	d.stage(StageReceived)
	if d.cfg.Mode == ModeReplay && !a.Command().Has(action.CmdReplay) {
		return d.reject(a, cb, action.Fail(action.StatusProtocolViolation, action.MsgActionRejected, action.MsgReplayOnly))
	}
	// Replayed actions keep the player they were recorded with.
	if d.cfg.Mode != ModeReplay {
		a.SetPlayer(actor.ID)
	}

	r := d.validate(actor, a)
	if !r.OK() {
		return d.reject(a, cb, r)
	}
	// Peers and the replay log only ever see the encoded copy.
	if _, err := action.Encode(a); err != nil {
		d.log.WithError(err).Warn("action cannot be encoded")
		return d.reject(a, cb, action.Fail(action.StatusProtocolViolation, action.MsgActionRejected, action.MsgMalformedAction))
	}

	if d.cfg.Mode == ModeLocal || d.cfg.Mode == ModeReplay || !a.Flags().Has(action.FlagNetworked) {
		d.stage(StageLocalOnly)
		return d.runNow(a, cb)
	}
	if d.cfg.Mode == ModeAuthority {
		return d.seal(a, r, 0, "", cb)
	}
	return d.request(ctx, a, r, cb)
}

// validate runs the permission and validation stages under the shared lock.
func (d *Dispatcher) validate(actor action.Actor, a action.Action) action.Result {
	d.worldMu.RLock()
	defer d.worldMu.RUnlock()
	if dec := d.checker.Check(actor, d.world, a); !dec.Allowed {
		return dec.Result()
	}
	d.stage(StagePermissionChecked)
	r := d.query(a)
	if r.OK() {
		d.stage(StageValidated)
	}
	return r
}

// query is the validation shared by submission and execution. Callers hold
// the world lock.
func (d *Dispatcher) query(a action.Action) action.Result {
	rules := d.world.Rules()
	if rules.Paused && !rules.BuildInPause &&
		!a.Flags().Has(action.FlagAllowWhilePaused) && !a.Command().Has(action.CmdAllowWhilePaused) {
		return action.Fail(action.StatusPreconditionFailed, action.MsgActionRejected, action.MsgNotAllowedWhilePaused)
	}
	r := a.Query(d.world)
	if !r.OK() {
		return r
	}
	if action.Spends(a) && !rules.NoMoney && r.Cost > 0 && r.Cost > d.world.Cash() {
		return action.Fail(action.StatusInsufficientResources, action.MsgActionRejected, action.MsgInsufficientFunds).With("cost", r.Cost)
	}
	return r
}

// runNow executes an unsequenced action immediately. Local and replay nodes
// still take a seq so replay entries keep submission order. In a session the
// seq space belongs to sealed frames, so node-local actions run with seq 0
// and are not recorded.
func (d *Dispatcher) runNow(a action.Action, cb Callback) action.Result {
	d.procMu.Lock()
	d.mu.Lock()
	it := queued{tick: d.tick, action: a}
	if d.cfg.Mode == ModeLocal || d.cfg.Mode == ModeReplay {
		d.seq++
		it.seq = d.seq
	}
	d.mu.Unlock()
	r := d.apply(it)
	d.procMu.Unlock()
	if cb != nil {
		cb(r)
	}
	return r
}

// seal sequences a validated action, broadcasts it and queues the decoded
// copy of the broadcast bytes locally.
func (d *Dispatcher) seal(a action.Action, validated action.Result, requestID uint32, peer PeerID, cb Callback) action.Result {
	a.SetCommand(a.Command() | action.CmdNetworked)
	params, err := action.Encode(a)
	var sealed action.Action
	if err == nil {
		sealed, err = d.reg.Decode(a.Kind(), params)
	}
	if err != nil {
		d.log.WithError(err).Errorf("sealing %s failed", action.Describe(a))
		return d.reject(a, cb, action.Fail(action.StatusInternalInvariantViolation, action.MsgActionRejected, action.MsgInternalError))
	}

	d.mu.Lock()
	if d.queue.Len() >= d.cfg.QueueCapacity {
		d.mu.Unlock()
		d.metrics.QueueOverflow.Inc()
		return d.reject(a, cb, action.Fail(action.StatusPreconditionFailed, action.MsgActionRejected, action.MsgQueueFull))
	}
	d.seq++
	frame := protocol.EncodeFrame(protocol.Frame{
		Type:      protocol.FrameSealed,
		Seq:       d.seq,
		Tick:      d.tick,
		RequestID: requestID,
		Kind:      uint16(a.Kind()),
		Params:    params,
	})
	if d.transport != nil {
		if err := d.transport.Broadcast(frame); err != nil {
			d.log.WithError(err).WithField("seq", d.seq).Warn("broadcast failed")
		}
	}
	d.queue.push(queued{tick: d.tick, seq: d.seq, action: sealed, callback: cb, peer: peer})
	d.metrics.QueueDepth.Set(float64(d.queue.Len()))
	d.mu.Unlock()

	d.stage(StageBroadcast)
	return validated
}

// request forwards a validated action to the authority and parks cb until
// the sealed copy or a REJECT comes back.
func (d *Dispatcher) request(ctx context.Context, a action.Action, validated action.Result, cb Callback) action.Result {
	params, err := action.Encode(a)
	if err != nil {
		d.log.WithError(err).Errorf("encoding %s failed", action.Describe(a))
		return d.reject(a, cb, action.Fail(action.StatusInternalInvariantViolation, action.MsgActionRejected, action.MsgInternalError))
	}
	d.mu.Lock()
	t := d.transport
	if t == nil {
		d.mu.Unlock()
		return d.reject(a, cb, action.Fail(action.StatusInternalInvariantViolation, action.MsgActionRejected, action.MsgInternalError))
	}
	if len(d.pending) >= d.cfg.QueueCapacity {
		d.mu.Unlock()
		d.metrics.QueueOverflow.Inc()
		return d.reject(a, cb, action.Fail(action.StatusPreconditionFailed, action.MsgActionRejected, action.MsgQueueFull))
	}
	d.requestID++
	rid := d.requestID
	p := &pending{callback: cb}
	if ctx.Done() != nil {
		p.stop = context.AfterFunc(ctx, func() { d.dropPending(rid) })
	}
	d.pending[rid] = p
	tick := d.tick
	d.mu.Unlock()

	frame := protocol.EncodeFrame(protocol.Frame{
		Type:      protocol.FrameRequest,
		Tick:      tick,
		RequestID: rid,
		Kind:      uint16(a.Kind()),
		Params:    params,
	})
	if err := t.SendRequest(frame); err != nil {
		d.log.WithError(err).WithField("request_id", rid).Warn("request send failed")
		if _, ok := d.takePending(rid); ok {
			return d.reject(a, cb, action.Fail(action.StatusInternalInvariantViolation, action.MsgActionRejected, action.MsgInternalError))
		}
		return validated
	}
	d.stage(StageBroadcast)
	return validated
}

func (d *Dispatcher) takePending(rid uint32) (*pending, bool) {
	d.mu.Lock()
	p, ok := d.pending[rid]
	delete(d.pending, rid)
	d.mu.Unlock()
	if ok && p.stop != nil {
		p.stop()
	}
	return p, ok
}

func (d *Dispatcher) dropPending(rid uint32) {
	d.mu.Lock()
	_, ok := d.pending[rid]
	delete(d.pending, rid)
	d.mu.Unlock()
	if ok {
		d.log.WithField("request_id", rid).Debug("pending request cancelled")
	}
}

// Pending reports how many forwarded requests await an answer.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

func (d *Dispatcher) reject(a action.Action, cb Callback, r action.Result) action.Result {
	d.stage(StageRejected)
	d.metrics.Actions.WithLabelValues(a.Kind().String(), r.Status.String()).Inc()
	tick := d.Tick()
	d.log.Infof("[%s] tick: %d, action: %s %s", d.cfg.Realm, tick, action.Describe(a), r)
	for _, o := range d.rejects {
		if err := o.Rejected(Rejection{Tick: tick, Player: a.Player(), Kind: a.Kind(), Result: r}); err != nil {
			d.log.WithError(err).Warn("reject observer failed")
		}
	}
	if cb != nil {
		cb(r)
	}
	return r
}

// ProcessQueue executes every sealed action due at the current tick in
// (tick, seq) order and returns how many ran.
func (d *Dispatcher) ProcessQueue() int {
	type call struct {
		cb Callback
		r  action.Result
	}

	d.procMu.Lock()
	d.mu.Lock()
	due := d.queue.popDue(d.tick)
	d.metrics.QueueDepth.Set(float64(d.queue.Len()))
	d.mu.Unlock()

	var calls []call
	for _, it := range due {
		r := d.apply(it)
		if it.callback != nil {
			calls = append(calls, call{cb: it.callback, r: r})
		}
	}
	d.procMu.Unlock()

	for _, c := range calls {
		c.cb(c.r)
	}
	return len(due)
}

// apply runs one action under the exclusive world lock and reports it
// everywhere except the caller's callback.
func (d *Dispatcher) apply(it queued) action.Result {
	start := time.Now()
	if it.seq != 0 {
		d.applied = it.seq
	}
	d.worldMu.Lock()
	r := d.execute(it)
	var digest string
	if d.cfg.RecordDigest {
		digest = d.world.Digest()
	}
	d.worldMu.Unlock()
	d.metrics.ExecuteTime.Observe(time.Since(start).Seconds())
	d.stage(StageApplied)

	d.record(it, r, digest)
	d.metrics.Actions.WithLabelValues(it.action.Kind().String(), r.Status.String()).Inc()
	if r.OK() {
		d.log.Debugf("[%s] tick: %d, action: %s %s", d.cfg.Realm, it.tick, action.Describe(it.action), r)
	} else {
		d.log.Infof("[%s] tick: %d, action: %s %s", d.cfg.Realm, it.tick, action.Describe(it.action), r)
	}
	d.stage(StageReported)
	return r
}

// execute re-runs the query against the state it is about to mutate, then
// executes and charges. A panic becomes an internal invariant violation.
func (d *Dispatcher) execute(it queued) (r action.Result) {
	a := it.action
	defer func() {
		if p := recover(); p != nil {
			d.log.WithFields(logrus.Fields{"kind": a.Kind().String(), "seq": it.seq}).Errorf("execute panicked: %v", p)
			r = action.Fail(action.StatusInternalInvariantViolation, action.MsgActionRejected, action.MsgInternalError)
		}
	}()
	if q := d.query(a); !q.OK() {
		return q
	}
	r = a.Execute(d.world)
	if r.OK() && action.Spends(a) {
		d.world.Spend(r.Cost, r.Expenditure)
		d.world.RecordPlayerAction(a.Player(), uint64(it.tick), r.Cost)
	}
	return r
}

func (d *Dispatcher) record(it queued, r action.Result, digest string) {
	a := it.action
	if it.seq == 0 || len(d.sinks) == 0 || !a.Flags().Has(action.FlagLogged) || !action.Spends(a) {
		return
	}
	params, err := action.Encode(a)
	if err != nil {
		d.metrics.SinkErrors.Inc()
		d.log.WithError(err).WithField("seq", it.seq).Error("cannot record action")
		return
	}
	e := newEntry(it, params, r, digest)
	for _, s := range d.sinks {
		if err := s.Record(e); err != nil {
			d.metrics.SinkErrors.Inc()
			d.log.WithError(err).WithField("seq", e.Seq).Warn("replay sink failed")
		}
	}
}

// Advance moves to the next tick. A participant's tick follows the
// authority's sealed frames instead.
func (d *Dispatcher) Advance() {
	if d.cfg.Mode == ModeParticipant {
		return
	}
	d.mu.Lock()
	d.tick++
	d.mu.Unlock()
}

// StepOnce drains the queue at the current tick and advances. It returns the
// tick that was processed and the state digest afterwards.
func (d *Dispatcher) StepOnce() (tick uint32, digest string) {
	tick = d.Tick()
	d.ProcessQueue()
	d.Advance()
	return tick, d.Digest()
}

// Run drains and advances at the configured tick rate until ctx ends.
func (d *Dispatcher) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(d.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.ProcessQueue()
			d.Advance()
		}
	}
}
