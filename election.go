package campaign

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/okanek/campaign/internal/idgen"
	"github.com/okanek/campaign/internal/logger"
	"github.com/okanek/campaign/internal/metrics"
	"github.com/okanek/campaign/natskv"
	"github.com/okanek/campaign/types"
)

// Election is one candidate in a leader election over a single contested
// slot.
//
// All candidates contend for one coordination-store key; whoever creates
// it holds leadership, everyone else follows and watches the slot.
// When the slot disappears (holder resigned, crashed, or its claim
// expired) every candidate re-enters the race immediately.
//
// An Election is driven by a single internal goroutine started by
// Start. The goroutine issues one coordination call at a time and feeds
// the classified outcome back into the state machine, so there is never
// more than one claim in flight per candidate. Start and Finish return
// without blocking on coordination I/O.
//
// The zero value is not usable; construct with New.
type Election struct {
	cfg       Config
	nc        *nats.Conn
	coord     types.Coordinator
	ownsCoord bool

	hooks   *types.Hooks
	logger  types.Logger
	metrics types.MetricsCollector

	id      string
	idBytes []byte

	// state is read by State() from any goroutine; written only by the
	// driver goroutine (and once by Start).
	state atomic.Int32

	shouldFinish atomic.Bool
	finishOnce   sync.Once
	finishCh     chan struct{}

	startMu sync.Mutex
	wg      sync.WaitGroup
}

// action is the next step of the election driver.
type action int

const (
	actionClaim action = iota
	actionResolve
	actionTrack
)

// eventKind classifies the outcome of a coordination call or watch
// notification fed into the state machine.
type eventKind int

const (
	// eventWon: the claim created the slot; this candidate is leader.
	eventWon eventKind = iota

	// eventLost: the slot already existed; another candidate leads.
	eventLost

	// eventAmbiguous: the claim failed in a way that does not reveal
	// whether it took effect; the authoritative content must be read.
	eventAmbiguous

	// eventHolder: the slot was read; payload carries holder identity.
	eventHolder

	// eventVacant: the slot does not exist; nobody is leader.
	eventVacant

	// eventDeleted: the tracked slot's deletion was observed.
	eventDeleted

	// eventRetryResolve / eventRetryTrack: a transient failure; the
	// same operation is reissued after the termination gate re-check.
	eventRetryResolve
	eventRetryTrack

	// eventWake: the idle wait was interrupted (finish requested or the
	// watch ended); the driver loops so the gate can decide.
	eventWake
)

// event carries an eventKind and, for eventHolder, the slot content.
type event struct {
	kind  eventKind
	value []byte
}

// New creates an Election.
//
// Defaults are applied to cfg and the candidate identity is resolved
// immediately: Config.ID if set, otherwise a generated token (see
// WithIDGenerator). Identity, key and permissions are immutable from
// here on.
//
// Parameters:
//   - nc: NATS connection for the built-in KV coordinator; may be nil
//     when WithCoordinator supplies a custom backend
//   - cfg: Election configuration
//   - opts: Optional dependencies
//
// Returns:
//   - *Election: Candidate in state StateCreated
//   - error: ErrInvalidConfig or ErrCoordinatorRequired
func New(nc *nats.Conn, cfg Config, opts ...Option) (*Election, error) {
	options := electionOptions{
		logger:      logger.NewNop(),
		metrics:     metrics.NewNop(),
		idGenerator: idgen.Random,
	}
	for _, opt := range opts {
		opt(&options)
	}

	SetDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if nc == nil && options.coordinator == nil {
		return nil, ErrCoordinatorRequired
	}

	id := cfg.ID
	if id == "" {
		id = options.idGenerator()
	}

	e := &Election{
		cfg:      cfg,
		nc:       nc,
		coord:    options.coordinator,
		hooks:    options.hooks,
		logger:   options.logger,
		metrics:  options.metrics,
		id:       id,
		idBytes:  []byte(id),
		finishCh: make(chan struct{}),
	}
	e.state.Store(int32(types.StateCreated))

	return e, nil
}

// ID returns the identity representing this candidate.
func (e *Election) ID() string {
	return e.id
}

// Key returns the contested slot key.
func (e *Election) Key() string {
	return e.cfg.Key
}

// State returns the current state. Never mutates anything; safe to call
// from any goroutine, including hooks.
func (e *Election) State() types.State {
	return types.State(e.state.Load())
}

// Start begins the leader election.
//
// Valid only in StateCreated; otherwise ErrInvalidState is returned
// with the current state in the message. On success the state is
// StateElecting when Start returns and the first claim has been issued
// by the driver goroutine. If Finish was already called, or the
// coordination session is already dead, the state is StateDone instead
// and the finish notification has fired.
//
// The driver keeps re-entering the election until Finish is called or
// the coordination session reports a permanently dead state; ctx only
// bounds the coordinator setup performed inside Start.
//
// Parameters:
//   - ctx: Context for binding the built-in coordinator's bucket
//
// Returns:
//   - error: ErrInvalidState, ErrCoordinatorRequired, or a coordinator
//     setup failure
func (e *Election) Start(ctx context.Context) error {
	e.startMu.Lock()
	defer e.startMu.Unlock()

	if st := e.State(); st != types.StateCreated {
		return fmt.Errorf("%w: Start can be called only in state Created, current state is %s", ErrInvalidState, st)
	}

	if e.coord == nil {
		if e.nc == nil {
			return ErrCoordinatorRequired
		}

		coord, err := natskv.New(ctx, e.nc, natskv.Config{
			Bucket: e.cfg.Bucket,
			TTL:    e.cfg.bucketTTL(),
		})
		if err != nil {
			return fmt.Errorf("failed to set up coordinator: %w", err)
		}
		e.coord = coord
		e.ownsCoord = true
	}

	// Termination may already be requested before the first claim.
	if e.finishIfNeeded() {
		e.closeCoordinator()

		return nil
	}

	e.transition(types.StateElecting)
	e.logger.Info("election started", "key", e.cfg.Key, "id", e.id)

	e.wg.Add(1)
	go e.run()

	return nil
}

// Finish marks the election as finished so the driver stops instead of
// issuing further coordination calls. Cooperative: a call already in
// flight completes and its outcome is discarded at the next gate check.
// Idempotent; safe to call from any goroutine, including hooks.
//
// When the election built its own coordinator, the driver releases any
// claim still held through it after stopping, so followers observe the
// vacancy immediately. With a custom coordinator the claim lapses on
// its own, through the TTL or the end of the coordination session.
func (e *Election) Finish() {
	e.shouldFinish.Store(true)
	e.finishOnce.Do(func() {
		close(e.finishCh)
	})
}

// run is the election driver: one goroutine owning all transitions.
//
// Each iteration checks the termination gate, executes the pending
// action, and feeds the classified outcome through handleEvent to pick
// the next action. The loop only ends through the gate.
func (e *Election) run() {
	defer e.wg.Done()

	act := actionClaim
	for {
		if e.finishIfNeeded() {
			e.closeCoordinator()

			return
		}

		var ev event
		switch act {
		case actionClaim:
			ev = e.claim()
		case actionResolve:
			ev = e.resolve()
		case actionTrack:
			ev = e.track()
		}

		act = e.handleEvent(ev)
	}
}

// handleEvent advances the state machine for one classified outcome and
// returns the next action. Called only from the driver goroutine (and
// never concurrently), so each transition/notification pair is
// delivered without interleaving.
func (e *Election) handleEvent(ev event) action {
	switch ev.kind {
	case eventWon:
		e.becomeLeader()
		return actionTrack

	case eventLost:
		e.becomeFollower()
		return actionTrack

	case eventAmbiguous:
		// The claim may or may not have taken effect; read the slot
		// back instead of blindly re-creating.
		return actionResolve

	case eventHolder:
		if bytes.Equal(ev.value, e.idBytes) {
			e.becomeLeader()
		} else {
			e.becomeFollower()
		}
		return actionTrack

	case eventVacant, eventDeleted:
		e.becomeVacant()
		return actionClaim

	case eventRetryResolve:
		return actionResolve

	case eventRetryTrack, eventWake:
		return actionTrack

	default:
		e.logger.Error("unhandled election event", "kind", ev.kind)
		return actionTrack
	}
}

// claim attempts to atomically create the contested slot holding this
// candidate's identity.
func (e *Election) claim() event {
	started := time.Now()

	ctx, cancel := e.opCtx()
	err := e.coord.Create(ctx, e.cfg.Key, e.idBytes, e.cfg.Permissions)
	cancel()

	e.metrics.ObserveClaimLatency(time.Since(started).Seconds())

	switch {
	case err == nil:
		e.metrics.IncrementClaim("won")
		return event{kind: eventWon}

	case errors.Is(err, ErrSlotTaken):
		e.metrics.IncrementClaim("lost")
		return event{kind: eventLost}

	default:
		e.metrics.IncrementClaim("ambiguous")
		e.logger.Debug("claim outcome ambiguous, resolving current holder",
			"key", e.cfg.Key, "error", err)

		return event{kind: eventAmbiguous}
	}
}

// resolve reads the slot to determine the actual holder after an
// ambiguous claim failure.
func (e *Election) resolve() event {
	ctx, cancel := e.opCtx()
	value, err := e.coord.Read(ctx, e.cfg.Key)
	cancel()

	switch {
	case err == nil:
		return event{kind: eventHolder, value: value}

	case errors.Is(err, ErrSlotMissing):
		return event{kind: eventVacant}

	default:
		e.metrics.IncrementRetry("resolve")
		e.logger.Warn("failed to resolve current holder, retrying",
			"key", e.cfg.Key, "error", err)
		e.pause()

		return event{kind: eventRetryResolve}
	}
}

// track installs a watch on the slot and, while it exists, waits for
// its deletion. A leader also renews its claim on RenewInterval.
func (e *Election) track() event {
	ctx, cancel := e.opCtx()
	exists, watch, err := e.coord.WatchExists(ctx, e.cfg.Key)
	cancel()

	if err != nil {
		e.metrics.IncrementRetry("track")
		e.logger.Warn("failed to install watch, retrying",
			"key", e.cfg.Key, "error", err)
		e.pause()

		return event{kind: eventRetryTrack}
	}

	if !exists {
		// Deleted between the last claim/resolve and the watch
		// installation.
		_ = watch.Stop()

		return event{kind: eventVacant}
	}

	return e.idle(watch)
}

// idle blocks until the watched slot is deleted, the watch ends, or
// Finish is called. This is the only place the driver rests; every
// other step issues a call and moves on.
func (e *Election) idle(watch types.Watch) event {
	defer func() {
		_ = watch.Stop()
	}()

	var renewCh, recheckCh <-chan time.Time
	if e.State() == types.StateLeader && e.cfg.RenewInterval > 0 {
		ticker := time.NewTicker(e.cfg.RenewInterval)
		defer ticker.Stop()
		renewCh = ticker.C
	}
	if e.cfg.BucketTTL > 0 {
		// A claim removed by TTL expiry is not delivered as a deletion
		// event, so existence is re-verified once per TTL period. This
		// covers followers tracking an expired holder and a leader whose
		// own claim lapsed after failed renewals.
		ticker := time.NewTicker(e.cfg.BucketTTL)
		defer ticker.Stop()
		recheckCh = ticker.C
	}

	for {
		select {
		case ev, ok := <-watch.Events():
			if !ok {
				// The watch ended underneath us (session interrupted
				// or server restart); reinstall it.
				e.metrics.IncrementRetry("track")
				e.pause()

				return event{kind: eventRetryTrack}
			}
			if ev.Kind == types.WatchDeleted {
				return event{kind: eventDeleted}
			}
			if (ev.Kind == types.WatchCreated || ev.Kind == types.WatchDataChanged) &&
				e.State() == types.StateLeader && !bytes.Equal(ev.Value, e.idBytes) {
				// The slot changed hands without an observed deletion,
				// which happens when an expired claim is replaced. Step
				// down to follow the new holder.
				return event{kind: eventHolder, value: ev.Value}
			}
			// Any other change leaves the tracker armed; the slot
			// still exists.

		case <-renewCh:
			e.renew()

		case <-recheckCh:
			// Reinstalling the watch re-reads existence from the
			// replay; an expired slot surfaces as vacant there.
			return event{kind: eventWake}

		case <-e.finishCh:
			return event{kind: eventWake}
		}
	}
}

// renew refreshes a leader's TTL-bound claim. Failure is non-fatal: if
// the claim was genuinely lost, the watch observes the slot change and
// the driver re-enters the race from there.
func (e *Election) renew() {
	// The gate outcome belongs to the main loop, but once termination is
	// requested no further coordination call may be issued from here.
	if e.shouldFinish.Load() || e.coord.SessionState().Fatal() {
		return
	}

	ctx, cancel := e.opCtx()
	err := e.coord.Renew(ctx, e.cfg.Key, e.idBytes)
	cancel()

	if err != nil {
		e.metrics.IncrementRetry("renew")
		e.logger.Warn("failed to renew leadership claim",
			"key", e.cfg.Key, "error", err)
	}
}

// finishIfNeeded is the termination gate, the single choke point
// through which every path to StateDone flows. It is evaluated before
// every coordination call; once it trips, no further call is issued.
func (e *Election) finishIfNeeded() bool {
	if !e.shouldFinish.Load() && !e.coord.SessionState().Fatal() {
		return false
	}

	e.transition(types.StateDone)
	e.metrics.SetLeadership(false)
	e.fire("onFinish", e.hookFinish())
	e.logger.Info("election finished", "key", e.cfg.Key, "id", e.id)

	return true
}

// becomeLeader enters StateLeader and notifies the win.
func (e *Election) becomeLeader() {
	e.transition(types.StateLeader)
	e.metrics.SetLeadership(true)
	e.fire("onWin", e.hookWin())
}

// becomeFollower enters StateFollower and notifies the loss.
func (e *Election) becomeFollower() {
	e.transition(types.StateFollower)
	e.metrics.SetLeadership(false)
	e.fire("onLose", e.hookLose())
}

// becomeVacant re-enters StateElecting after observing that no leader
// exists; the caller issues a new claim immediately.
func (e *Election) becomeVacant() {
	e.transition(types.StateElecting)
	e.metrics.SetLeadership(false)
	e.fire("onVacant", e.hookVacant())
}

// transition mutates the state and delivers the state-changed
// notification. The role-specific notification for the same event
// always follows it, from the same goroutine, so observers never see
// the pair out of order.
func (e *Election) transition(to types.State) {
	from := types.State(e.state.Load())
	e.state.Store(int32(to))

	e.metrics.IncrementTransition(from, to)
	e.logger.Debug("state changed", "from", from, "to", to)

	if e.hooks != nil && e.hooks.OnStateChanged != nil {
		fn := e.hooks.OnStateChanged
		e.fire("onStateChanged", func() error { return fn(from, to) })
	}
}

// fire invokes one hook with fault isolation: panics and returned
// errors are logged and discarded so user code can never abort the
// driver chain.
func (e *Election) fire(name string, fn func() error) {
	if fn == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("hook panicked", "hook", name, "panic", r)
		}
	}()

	if err := fn(); err != nil {
		e.logger.Warn("hook returned error", "hook", name, "error", err)
	}
}

func (e *Election) hookWin() func() error {
	if e.hooks == nil {
		return nil
	}
	return e.hooks.OnWin
}

func (e *Election) hookLose() func() error {
	if e.hooks == nil {
		return nil
	}
	return e.hooks.OnLose
}

func (e *Election) hookVacant() func() error {
	if e.hooks == nil {
		return nil
	}
	return e.hooks.OnVacant
}

func (e *Election) hookFinish() func() error {
	if e.hooks == nil {
		return nil
	}
	return e.hooks.OnFinish
}

// closeCoordinator releases the built-in coordinator once the driver
// has stopped. Custom coordinators belong to the caller and are left
// alone.
func (e *Election) closeCoordinator() {
	if !e.ownsCoord {
		return
	}

	if c, ok := e.coord.(*natskv.Coordinator); ok {
		c.Close()
	}
}

// pause sleeps for RetryInterval, waking early when Finish is called.
func (e *Election) pause() {
	if e.cfg.RetryInterval <= 0 {
		return
	}

	t := time.NewTimer(e.cfg.RetryInterval)
	defer t.Stop()

	select {
	case <-t.C:
	case <-e.finishCh:
	}
}

// opCtx returns a context bounding a single coordination call.
func (e *Election) opCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), e.cfg.OperationTimeout)
}
