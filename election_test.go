package campaign

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/okanek/campaign/types"
)

// fakeCoordinator is an in-memory Coordinator with a scriptable create
// path, used to drive the election through outcomes that are hard to
// produce on a real backend (ambiguous failures, fatal sessions).
type fakeCoordinator struct {
	mu      sync.Mutex
	store   map[string][]byte
	session types.SessionState

	// createSteps are consumed one per Create call; each step runs with
	// the fake locked and may mutate the store to simulate a claim that
	// landed despite the returned error. An exhausted queue falls back
	// to regular create semantics.
	createSteps []func(store map[string][]byte, key string, value []byte) error

	// renewErrs are consumed one per Renew call; a non-nil entry is
	// returned without touching the store. Set before Start.
	renewErrs []error

	watches map[string][]*fakeWatch

	createCalls int
	readCalls   int
	watchCalls  int
	renewCalls  int
}

func newFakeCoordinator() *fakeCoordinator {
	return &fakeCoordinator{
		store:   make(map[string][]byte),
		session: types.SessionHealthy,
		watches: make(map[string][]*fakeWatch),
	}
}

func (f *fakeCoordinator) Create(_ context.Context, key string, value []byte, _ types.Permissions) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.createCalls++

	if len(f.createSteps) > 0 {
		step := f.createSteps[0]
		f.createSteps = f.createSteps[1:]

		return step(f.store, key, value)
	}

	if _, ok := f.store[key]; ok {
		return types.ErrSlotTaken
	}
	f.store[key] = value
	f.notifyLocked(key, types.WatchEvent{Kind: types.WatchCreated, Value: value})

	return nil
}

func (f *fakeCoordinator) Read(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.readCalls++

	value, ok := f.store[key]
	if !ok {
		return nil, types.ErrSlotMissing
	}

	return value, nil
}

func (f *fakeCoordinator) WatchExists(_ context.Context, key string) (bool, types.Watch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.watchCalls++

	w := newFakeWatch()
	f.watches[key] = append(f.watches[key], w)
	_, exists := f.store[key]

	return exists, w, nil
}

func (f *fakeCoordinator) Renew(_ context.Context, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.renewCalls++

	if len(f.renewErrs) > 0 {
		err := f.renewErrs[0]
		f.renewErrs = f.renewErrs[1:]
		if err != nil {
			return err
		}
	}

	if _, ok := f.store[key]; !ok {
		return types.ErrSlotMissing
	}
	f.store[key] = value

	return nil
}

func (f *fakeCoordinator) SessionState() types.SessionState {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.session
}

func (f *fakeCoordinator) setSession(s types.SessionState) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.session = s
}

// put writes a key as if another process created or changed it.
func (f *fakeCoordinator) put(key string, value []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, existed := f.store[key]
	f.store[key] = value

	kind := types.WatchCreated
	if existed {
		kind = types.WatchDataChanged
	}
	f.notifyLocked(key, types.WatchEvent{Kind: kind, Value: value})
}

// expire removes a key the way a bucket TTL does: silently, with no
// deletion event delivered to watchers.
func (f *fakeCoordinator) expire(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.store, key)
}

// delete removes a key as if the holder resigned explicitly.
func (f *fakeCoordinator) delete(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.store, key)
	f.notifyLocked(key, types.WatchEvent{Kind: types.WatchDeleted})
}

func (f *fakeCoordinator) notifyLocked(key string, ev types.WatchEvent) {
	for _, w := range f.watches[key] {
		w.push(ev)
	}
}

func (f *fakeCoordinator) creates() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.createCalls
}

func (f *fakeCoordinator) reads() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.readCalls
}

func (f *fakeCoordinator) renews() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.renewCalls
}

func (f *fakeCoordinator) watchers() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.watchCalls
}

func (f *fakeCoordinator) value(key string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.store[key]
}

type fakeWatch struct {
	mu     sync.Mutex
	ch     chan types.WatchEvent
	closed bool
}

func newFakeWatch() *fakeWatch {
	return &fakeWatch{ch: make(chan types.WatchEvent, 16)}
}

func (w *fakeWatch) Events() <-chan types.WatchEvent {
	return w.ch
}

func (w *fakeWatch) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.closed {
		w.closed = true
		close(w.ch)
	}

	return nil
}

func (w *fakeWatch) push(ev types.WatchEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}

	select {
	case w.ch <- ev:
	default:
	}
}

// hookRecorder captures hook invocations in order and lets tests block
// until a particular one fires.
type hookRecorder struct {
	mu     sync.Mutex
	events []string
	ch     chan string
}

func newHookRecorder() *hookRecorder {
	return &hookRecorder{ch: make(chan string, 64)}
}

func (r *hookRecorder) record(ev string) error {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()

	r.ch <- ev

	return nil
}

func (r *hookRecorder) hooks() *Hooks {
	return &Hooks{
		OnStateChanged: func(from, to State) error {
			return r.record("state:" + from.String() + ">" + to.String())
		},
		OnWin:    func() error { return r.record("win") },
		OnLose:   func() error { return r.record("lose") },
		OnVacant: func() error { return r.record("vacant") },
		OnFinish: func() error { return r.record("finish") },
	}
}

func (r *hookRecorder) waitFor(t *testing.T, want string) {
	t.Helper()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case got := <-r.ch:
			if got == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q event, saw %v", want, r.snapshot())
		}
	}
}

func (r *hookRecorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, len(r.events))
	copy(out, r.events)

	return out
}

func (r *hookRecorder) indexOf(ev string) int {
	for i, got := range r.snapshot() {
		if got == ev {
			return i
		}
	}

	return -1
}

func newTestElection(t *testing.T, coord *fakeCoordinator, rec *hookRecorder, id string, mutate func(*Config)) *Election {
	t.Helper()

	cfg := TestConfig()
	cfg.RenewInterval = Disabled
	if mutate != nil {
		mutate(&cfg)
	}

	e, err := New(nil, cfg,
		WithCoordinator(coord),
		WithHooks(rec.hooks()),
		WithIDGenerator(func() string { return id }),
	)
	require.NoError(t, err)

	return e
}

func TestNew(t *testing.T) {
	t.Run("requires a connection or coordinator", func(t *testing.T) {
		_, err := New(nil, TestConfig())
		require.ErrorIs(t, err, ErrCoordinatorRequired)
	})

	t.Run("rejects invalid config", func(t *testing.T) {
		cfg := TestConfig()
		cfg.RenewInterval = cfg.BucketTTL

		_, err := New(nil, cfg, WithCoordinator(newFakeCoordinator()))
		require.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("uses configured identity", func(t *testing.T) {
		cfg := TestConfig()
		cfg.ID = "node-7"

		e, err := New(nil, cfg, WithCoordinator(newFakeCoordinator()))
		require.NoError(t, err)
		require.Equal(t, "node-7", e.ID())
		require.Equal(t, "leader", e.Key())
		require.Equal(t, StateCreated, e.State())
	})

	t.Run("generates identity when unset", func(t *testing.T) {
		e, err := New(nil, TestConfig(), WithCoordinator(newFakeCoordinator()))
		require.NoError(t, err)
		require.NotEmpty(t, e.ID())

		other, err := New(nil, TestConfig(), WithCoordinator(newFakeCoordinator()))
		require.NoError(t, err)
		require.NotEqual(t, e.ID(), other.ID())
	})
}

func TestElection_SoloCandidateWins(t *testing.T) {
	coord := newFakeCoordinator()
	rec := newHookRecorder()
	e := newTestElection(t, coord, rec, "candidate-1", nil)

	require.NoError(t, e.Start(context.Background()))
	rec.waitFor(t, "win")

	require.Equal(t, StateLeader, e.State())
	require.Equal(t, []byte("candidate-1"), coord.value("leader"))
	require.Equal(t, 1, coord.creates())

	// The state-changed notification precedes the role notification.
	events := rec.snapshot()
	require.Equal(t, "state:Created>Electing", events[0])
	require.Less(t, rec.indexOf("state:Electing>Leader"), rec.indexOf("win"))

	e.Finish()
	rec.waitFor(t, "finish")
	require.Equal(t, StateDone, e.State())
	require.Less(t, rec.indexOf("state:Leader>Done"), rec.indexOf("finish"))
}

func TestElection_ExistingHolderMakesFollower(t *testing.T) {
	coord := newFakeCoordinator()
	coord.put("leader", []byte("someone-else"))

	rec := newHookRecorder()
	e := newTestElection(t, coord, rec, "candidate-2", nil)

	require.NoError(t, e.Start(context.Background()))
	rec.waitFor(t, "lose")

	require.Equal(t, StateFollower, e.State())
	require.Equal(t, []byte("someone-else"), coord.value("leader"))

	// Wait for the tracker's watch, then vacate the slot.
	require.Eventually(t, func() bool { return coord.watchers() >= 1 },
		2*time.Second, 5*time.Millisecond)
	coord.delete("leader")

	rec.waitFor(t, "win")
	require.Equal(t, StateLeader, e.State())
	require.Less(t, rec.indexOf("vacant"), rec.indexOf("win"))
	require.Equal(t, []byte("candidate-2"), coord.value("leader"))

	e.Finish()
	rec.waitFor(t, "finish")
}

func TestElection_AmbiguousClaim(t *testing.T) {
	t.Run("own claim landed", func(t *testing.T) {
		coord := newFakeCoordinator()
		coord.createSteps = append(coord.createSteps,
			func(store map[string][]byte, key string, value []byte) error {
				// The write took effect but the response was lost.
				store[key] = value
				return errors.New("request timed out")
			})

		rec := newHookRecorder()
		e := newTestElection(t, coord, rec, "candidate-3", nil)

		require.NoError(t, e.Start(context.Background()))
		rec.waitFor(t, "win")

		// Resolved by reading back, never by a second create.
		require.Equal(t, StateLeader, e.State())
		require.Equal(t, 1, coord.creates())
		require.Equal(t, 1, coord.reads())

		e.Finish()
		rec.waitFor(t, "finish")
	})

	t.Run("someone else claimed", func(t *testing.T) {
		coord := newFakeCoordinator()
		coord.createSteps = append(coord.createSteps,
			func(store map[string][]byte, key string, _ []byte) error {
				store[key] = []byte("rival")
				return errors.New("request timed out")
			})

		rec := newHookRecorder()
		e := newTestElection(t, coord, rec, "candidate-4", nil)

		require.NoError(t, e.Start(context.Background()))
		rec.waitFor(t, "lose")

		require.Equal(t, StateFollower, e.State())
		require.Equal(t, 1, coord.creates())

		e.Finish()
		rec.waitFor(t, "finish")
	})

	t.Run("claim never landed", func(t *testing.T) {
		coord := newFakeCoordinator()
		coord.createSteps = append(coord.createSteps,
			func(map[string][]byte, string, []byte) error {
				return errors.New("connection reset")
			})

		rec := newHookRecorder()
		e := newTestElection(t, coord, rec, "candidate-5", nil)

		require.NoError(t, e.Start(context.Background()))
		rec.waitFor(t, "win")

		// The read found nothing, so a fresh claim was allowed.
		require.Less(t, rec.indexOf("vacant"), rec.indexOf("win"))
		require.Equal(t, 2, coord.creates())

		e.Finish()
		rec.waitFor(t, "finish")
	})
}

func TestElection_FinishBeforeStart(t *testing.T) {
	coord := newFakeCoordinator()
	rec := newHookRecorder()
	e := newTestElection(t, coord, rec, "candidate-6", nil)

	e.Finish()
	require.NoError(t, e.Start(context.Background()))

	require.Equal(t, StateDone, e.State())
	require.Equal(t, 0, coord.creates())
	require.Equal(t, []string{"state:Created>Done", "finish"}, rec.snapshot())

	// Finish is idempotent, before and after taking effect.
	e.Finish()
	require.Equal(t, StateDone, e.State())
}

func TestElection_StartTwice(t *testing.T) {
	coord := newFakeCoordinator()
	rec := newHookRecorder()
	e := newTestElection(t, coord, rec, "candidate-7", nil)

	require.NoError(t, e.Start(context.Background()))
	rec.waitFor(t, "win")

	err := e.Start(context.Background())
	require.ErrorIs(t, err, ErrInvalidState)
	require.Contains(t, err.Error(), "Leader")

	e.Finish()
	rec.waitFor(t, "finish")

	require.ErrorIs(t, e.Start(context.Background()), ErrInvalidState)
}

func TestElection_FatalSessionFinishes(t *testing.T) {
	coord := newFakeCoordinator()
	coord.put("leader", []byte("someone-else"))

	rec := newHookRecorder()
	e := newTestElection(t, coord, rec, "candidate-8", nil)

	require.NoError(t, e.Start(context.Background()))
	rec.waitFor(t, "lose")
	require.Eventually(t, func() bool { return coord.watchers() >= 1 },
		2*time.Second, 5*time.Millisecond)

	// Kill the session, then wake the tracker by vacating the slot. The
	// gate must stop the driver before it claims again.
	coord.setSession(types.SessionClosed)
	coord.delete("leader")

	rec.waitFor(t, "finish")
	require.Equal(t, StateDone, e.State())

	// Only the initial losing claim; nothing issued past the gate.
	require.Equal(t, 1, coord.creates())
}

func TestElection_LeaderRenewsClaim(t *testing.T) {
	coord := newFakeCoordinator()
	rec := newHookRecorder()
	e := newTestElection(t, coord, rec, "candidate-9", func(cfg *Config) {
		cfg.BucketTTL = time.Second
		cfg.RenewInterval = 20 * time.Millisecond
	})

	require.NoError(t, e.Start(context.Background()))
	rec.waitFor(t, "win")

	require.Eventually(t, func() bool { return coord.renews() >= 2 },
		2*time.Second, 5*time.Millisecond)
	require.Equal(t, []byte("candidate-9"), coord.value("leader"))

	e.Finish()
	rec.waitFor(t, "finish")
}

func TestElection_LeaderSurvivesTransientRenewFailure(t *testing.T) {
	coord := newFakeCoordinator()
	coord.renewErrs = []error{
		errors.New("request timed out"),
		errors.New("request timed out"),
	}

	rec := newHookRecorder()
	e := newTestElection(t, coord, rec, "candidate-13", func(cfg *Config) {
		cfg.BucketTTL = time.Second
		cfg.RenewInterval = 20 * time.Millisecond
	})

	require.NoError(t, e.Start(context.Background()))
	rec.waitFor(t, "win")

	// Failed renewals are retried on the next tick, never escalated.
	require.Eventually(t, func() bool { return coord.renews() >= 3 },
		2*time.Second, 5*time.Millisecond)
	require.Equal(t, StateLeader, e.State())
	require.Equal(t, []byte("candidate-13"), coord.value("leader"))

	e.Finish()
	rec.waitFor(t, "finish")
}

func TestElection_LeaderRechecksExpiredClaim(t *testing.T) {
	coord := newFakeCoordinator()
	rec := newHookRecorder()
	e := newTestElection(t, coord, rec, "candidate-14", func(cfg *Config) {
		cfg.BucketTTL = 50 * time.Millisecond
		cfg.RenewInterval = Disabled
	})

	require.NoError(t, e.Start(context.Background()))
	rec.waitFor(t, "win")
	require.Eventually(t, func() bool { return coord.watchers() >= 1 },
		2*time.Second, 5*time.Millisecond)

	// TTL expiry delivers no deletion event; the periodic recheck must
	// discover the vacancy so the leader does not idle on a dead claim.
	coord.expire("leader")

	rec.waitFor(t, "vacant")
	rec.waitFor(t, "win")
	require.Equal(t, StateLeader, e.State())
	require.Equal(t, []byte("candidate-14"), coord.value("leader"))
	require.Equal(t, 2, coord.creates())

	e.Finish()
	rec.waitFor(t, "finish")
}

func TestElection_NoRenewalPastTermination(t *testing.T) {
	coord := newFakeCoordinator()
	rec := newHookRecorder()
	e := newTestElection(t, coord, rec, "candidate-15", func(cfg *Config) {
		cfg.BucketTTL = Disabled
		cfg.RenewInterval = 20 * time.Millisecond
	})

	require.NoError(t, e.Start(context.Background()))
	rec.waitFor(t, "win")
	require.Eventually(t, func() bool { return coord.watchers() >= 1 },
		2*time.Second, 5*time.Millisecond)

	// Kill the session while the leader idles; the renewal ticker keeps
	// firing but no further coordination call may go out.
	coord.setSession(types.SessionClosed)
	time.Sleep(100 * time.Millisecond)
	renewsAfterKill := coord.renews()
	time.Sleep(150 * time.Millisecond)
	require.Equal(t, renewsAfterKill, coord.renews())

	coord.delete("leader")
	rec.waitFor(t, "finish")
	require.Equal(t, StateDone, e.State())
	require.Equal(t, renewsAfterKill, coord.renews())
}

func TestElection_HookFaultsAreIsolated(t *testing.T) {
	coord := newFakeCoordinator()
	rec := newHookRecorder()
	hooks := rec.hooks()
	hooks.OnWin = func() error {
		_ = rec.record("win")
		panic("listener bug")
	}
	hooks.OnStateChanged = func(from, to State) error {
		_ = rec.record("state:" + from.String() + ">" + to.String())
		return errors.New("listener error")
	}

	cfg := TestConfig()
	cfg.RenewInterval = Disabled
	e, err := New(nil, cfg,
		WithCoordinator(coord),
		WithHooks(hooks),
		WithIDGenerator(func() string { return "candidate-10" }),
	)
	require.NoError(t, err)

	require.NoError(t, e.Start(context.Background()))
	rec.waitFor(t, "win")
	require.Equal(t, StateLeader, e.State())

	// The panicking hook did not take the driver down.
	e.Finish()
	rec.waitFor(t, "finish")
	require.Equal(t, StateDone, e.State())
}

func TestElection_FinishFromHook(t *testing.T) {
	coord := newFakeCoordinator()
	rec := newHookRecorder()

	var e *Election
	stateInHook := make(chan State, 1)
	hooks := rec.hooks()
	hooks.OnWin = func() error {
		_ = rec.record("win")
		stateInHook <- e.State()
		e.Finish()
		return nil
	}

	cfg := TestConfig()
	cfg.RenewInterval = Disabled
	var err error
	e, err = New(nil, cfg,
		WithCoordinator(coord),
		WithHooks(hooks),
		WithIDGenerator(func() string { return "candidate-11" }),
	)
	require.NoError(t, err)

	require.NoError(t, e.Start(context.Background()))
	rec.waitFor(t, "finish")
	require.Equal(t, StateDone, e.State())
	require.Equal(t, StateLeader, <-stateInHook)
}

func TestElection_LeaderStepsDownOnTakeover(t *testing.T) {
	coord := newFakeCoordinator()
	rec := newHookRecorder()
	e := newTestElection(t, coord, rec, "candidate-12", nil)

	require.NoError(t, e.Start(context.Background()))
	rec.waitFor(t, "win")
	require.Eventually(t, func() bool { return coord.watchers() >= 1 },
		2*time.Second, 5*time.Millisecond)

	// An expired claim surfaces as a replacement put, not a deletion.
	coord.put("leader", []byte("usurper"))

	rec.waitFor(t, "lose")
	require.Equal(t, StateFollower, e.State())

	e.Finish()
	rec.waitFor(t, "finish")
}
