package natskv

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/okanek/campaign/types"
)

// Common errors for the NATS KV coordinator.
var (
	ErrNoClaim     = errors.New("no claim held for key")
	ErrWatchClosed = errors.New("watcher closed during setup")
)

// DefaultBucket is the KV bucket used when Config.Bucket is empty.
const DefaultBucket = "campaign-election"

// Config configures the NATS KV coordinator.
type Config struct {
	// Bucket is the KV bucket name holding contested slots.
	// Defaults to DefaultBucket.
	Bucket string `yaml:"bucket"`

	// TTL is the bucket TTL applied when the bucket is created by this
	// coordinator. A claim that is not renewed within the TTL expires,
	// which emulates a session-scoped entry: a crashed leader's slot
	// disappears and followers observe the deletion. 0 means entries
	// never expire.
	TTL time.Duration `yaml:"ttl"`
}

// Coordinator implements types.Coordinator on a NATS JetStream KV
// bucket.
//
// Uses atomic KV operations for slot coordination:
//   - Create (atomic): claim the slot if the key doesn't exist
//   - Get: read the current holder
//   - Watch: observe slot creation, replacement and deletion
//   - Update (with revision): renew a held claim before the TTL expires
//
// All fields are safe for concurrent use; live watches are tracked so
// Close can release them.
type Coordinator struct {
	nc *nats.Conn
	kv jetstream.KeyValue

	watchCtx    context.Context
	watchCancel context.CancelFunc

	// revision of the last successful Create/Renew per key, needed for
	// revision-checked renewal
	revisions *xsync.Map[string, uint64]

	watches *xsync.Map[uint64, *kvWatch]
	watchID atomic.Uint64
}

// Compile-time assertion that Coordinator implements types.Coordinator.
var _ types.Coordinator = (*Coordinator)(nil)

// New creates a coordinator bound to the configured KV bucket, creating
// the bucket with the configured TTL if it does not exist yet.
//
// Parameters:
//   - ctx: Context for the bucket lookup/creation
//   - nc: Connected NATS client; ownership stays with the caller
//   - cfg: Bucket configuration
//
// Returns:
//   - *Coordinator: Coordinator ready for use
//   - error: Bucket lookup or creation failure
func New(ctx context.Context, nc *nats.Conn, cfg Config) (*Coordinator, error) {
	if cfg.Bucket == "" {
		cfg.Bucket = DefaultBucket
	}

	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	kv, err := js.KeyValue(ctx, cfg.Bucket)
	if errors.Is(err, jetstream.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:  cfg.Bucket,
			TTL:     cfg.TTL,
			History: 1,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to bind KV bucket %q: %w", cfg.Bucket, err)
	}

	watchCtx, watchCancel := context.WithCancel(context.Background())

	return &Coordinator{
		nc:          nc,
		kv:          kv,
		watchCtx:    watchCtx,
		watchCancel: watchCancel,
		revisions:   xsync.NewMap[string, uint64](),
		watches:     xsync.NewMap[uint64, *kvWatch](),
	}, nil
}

// Create atomically creates the slot holding the given content.
//
// The perms descriptor is ignored: NATS KV has no per-key access
// control; restrict access at the bucket or account level instead.
//
// Returns:
//   - nil: the slot was created and its revision recorded for renewal
//   - types.ErrSlotTaken: another candidate holds the slot
//   - other error: outcome ambiguous (e.g. timeout after the server may
//     have applied the write); callers resolve by reading the slot back
func (c *Coordinator) Create(ctx context.Context, key string, value []byte, _ types.Permissions) error {
	revision, err := c.kv.Create(ctx, key, value)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return fmt.Errorf("create %q: %w", key, types.ErrSlotTaken)
		}

		return fmt.Errorf("failed to create slot %q: %w", key, err)
	}

	c.revisions.Store(key, revision)

	return nil
}

// Read returns the current content of the slot.
func (c *Coordinator) Read(ctx context.Context, key string) ([]byte, error) {
	entry, err := c.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, fmt.Errorf("read %q: %w", key, types.ErrSlotMissing)
		}

		return nil, fmt.Errorf("failed to read slot %q: %w", key, err)
	}

	return entry.Value(), nil
}

// Renew refreshes a claim created earlier through this coordinator.
//
// Uses Update with the recorded revision so a renewal can never clobber
// a slot another candidate took over in the meantime.
func (c *Coordinator) Renew(ctx context.Context, key string, value []byte) error {
	revision, ok := c.revisions.Load(key)
	if !ok {
		return fmt.Errorf("renew %q: %w", key, ErrNoClaim)
	}

	newRevision, err := c.kv.Update(ctx, key, value, revision)
	if err != nil {
		// A revision mismatch means the slot was taken over and the claim
		// is definitively gone. Anything else (timeout, disconnect) may
		// succeed on the next tick, so the revision is kept.
		if errors.Is(err, jetstream.ErrKeyExists) {
			c.revisions.Delete(key)
		}

		return fmt.Errorf("failed to renew slot %q: %w", key, err)
	}

	c.revisions.Store(key, newRevision)

	return nil
}

// WatchExists checks slot existence and installs a change subscription
// in one step.
//
// The underlying KV watcher replays the current entry (or nothing)
// before a marker, then streams live updates. Existence is taken from
// the replay, so every change after the reported check is delivered
// through the returned watch with no gap.
//
// The watch lives until Stop or Close; ctx only bounds the setup phase.
func (c *Coordinator) WatchExists(ctx context.Context, key string) (bool, types.Watch, error) {
	watcher, err := c.kv.Watch(c.watchCtx, key)
	if err != nil {
		return false, nil, fmt.Errorf("failed to watch slot %q: %w", key, err)
	}

	exists := false

replay:
	for {
		select {
		case <-ctx.Done():
			_ = watcher.Stop()

			return false, nil, fmt.Errorf("watch setup for %q: %w", key, ctx.Err())
		case entry, ok := <-watcher.Updates():
			if !ok {
				_ = watcher.Stop()

				return false, nil, fmt.Errorf("watch setup for %q: %w", key, ErrWatchClosed)
			}
			if entry == nil {
				// Nil entry marks the end of the initial replay.
				break replay
			}
			exists = entry.Operation() == jetstream.KeyValuePut
		}
	}

	w := &kvWatch{
		id:      c.watchID.Add(1),
		watcher: watcher,
		events:  make(chan types.WatchEvent, 8),
		stop:    make(chan struct{}),
		owner:   c,
	}
	c.watches.Store(w.id, w)

	go w.loop(exists)

	return exists, w, nil
}

// SessionState reports the liveness of the NATS connection.
//
// A closed connection whose last error was an authorization failure
// maps to SessionAuthFailed; any other closed connection maps to
// SessionClosed. Reconnecting and disconnected states are degraded but
// recoverable.
func (c *Coordinator) SessionState() types.SessionState {
	switch c.nc.Status() {
	case nats.CONNECTED, nats.DRAINING_SUBS, nats.DRAINING_PUBS:
		return types.SessionHealthy
	case nats.CLOSED:
		if errors.Is(c.nc.LastError(), nats.ErrAuthorization) {
			return types.SessionAuthFailed
		}

		return types.SessionClosed
	default:
		// CONNECTING, RECONNECTING, DISCONNECTED
		return types.SessionDegraded
	}
}

// Close stops every live watch installed through this coordinator and
// releases claims still held through it, so other candidates observe
// the vacancy immediately instead of waiting out the TTL. Releases are
// revision-checked and can never delete a slot another candidate took
// over in the meantime.
//
// The NATS connection itself is left open; it belongs to the caller.
func (c *Coordinator) Close() {
	c.watchCancel()
	c.watches.Range(func(_ uint64, w *kvWatch) bool {
		_ = w.Stop()

		return true
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c.revisions.Range(func(key string, revision uint64) bool {
		_ = c.kv.Delete(ctx, key, jetstream.LastRevision(revision))
		c.revisions.Delete(key)

		return true
	})
}

// kvWatch adapts a jetstream.KeyWatcher to types.Watch, classifying raw
// KV operations into WatchEvent kinds.
type kvWatch struct {
	id      uint64
	watcher jetstream.KeyWatcher
	events  chan types.WatchEvent
	stop    chan struct{}
	owner   *Coordinator
	stopped atomic.Bool
}

// Compile-time assertion that kvWatch implements types.Watch.
var _ types.Watch = (*kvWatch)(nil)

// loop forwards KV updates as classified events until the watcher ends.
func (w *kvWatch) loop(exists bool) {
	defer close(w.events)

	for entry := range w.watcher.Updates() {
		if entry == nil {
			continue
		}

		var ev types.WatchEvent
		switch entry.Operation() {
		case jetstream.KeyValuePut:
			if exists {
				ev = types.WatchEvent{Kind: types.WatchDataChanged, Value: entry.Value()}
			} else {
				ev = types.WatchEvent{Kind: types.WatchCreated, Value: entry.Value()}
			}
			exists = true
		case jetstream.KeyValueDelete, jetstream.KeyValuePurge:
			ev = types.WatchEvent{Kind: types.WatchDeleted}
			exists = false
		default:
			ev = types.WatchEvent{Kind: types.WatchOther}
		}

		// The consumer may have abandoned the watch with events still
		// buffered; Stop must release the loop even then.
		select {
		case w.events <- ev:
		case <-w.stop:
			return
		}
	}
}

// Events returns the channel delivering classified change events.
func (w *kvWatch) Events() <-chan types.WatchEvent {
	return w.events
}

// Stop cancels the subscription. Safe to call more than once.
func (w *kvWatch) Stop() error {
	if !w.stopped.CompareAndSwap(false, true) {
		return nil
	}

	close(w.stop)
	w.owner.watches.Delete(w.id)

	return w.watcher.Stop()
}
