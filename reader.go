package campaign

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/okanek/campaign/internal/logger"
	"github.com/okanek/campaign/internal/metrics"
	"github.com/okanek/campaign/natskv"
	"github.com/okanek/campaign/types"
)

// Reader waits for a coordination slot to come into existence and
// delivers its content exactly once.
//
// The typical use is discovering the current leader from a process that
// is not itself a candidate: point a Reader at the election key and it
// reports the winning identity as soon as one exists. It works for any
// slot, not only election keys.
//
// Like an Election, a Reader is driven by a single internal goroutine
// and terminates through the same gate: a cooperative Finish call or a
// permanently dead coordination session, either of which fires OnGaveUp
// instead of OnRead.
type Reader struct {
	cfg       Config
	nc        *nats.Conn
	coord     types.Coordinator
	ownsCoord bool

	hooks   *types.ReadHooks
	logger  types.Logger
	metrics types.MetricsCollector

	started atomic.Bool

	shouldFinish atomic.Bool
	finishOnce   sync.Once
	finishCh     chan struct{}

	wg sync.WaitGroup
}

// NewReader creates a Reader for the slot named by cfg.Key.
//
// The same Config type configures Elections and Readers; a Reader uses
// Key, Bucket, BucketTTL, RetryInterval and OperationTimeout and
// ignores the candidate-side fields.
//
// Parameters:
//   - nc: NATS connection for the built-in KV coordinator; may be nil
//     when WithCoordinator supplies a custom backend
//   - cfg: Reader configuration
//   - opts: Optional dependencies (WithReadHooks, WithLogger, ...)
//
// Returns:
//   - *Reader: Reader ready to Start
//   - error: ErrInvalidConfig or ErrCoordinatorRequired
func NewReader(nc *nats.Conn, cfg Config, opts ...Option) (*Reader, error) {
	options := electionOptions{
		logger:  logger.NewNop(),
		metrics: metrics.NewNop(),
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

	return &Reader{
		cfg:      cfg,
		nc:       nc,
		coord:    options.coordinator,
		hooks:    options.readHooks,
		logger:   options.logger,
		metrics:  options.metrics,
		finishCh: make(chan struct{}),
	}, nil
}

// Key returns the slot key this Reader waits on.
func (r *Reader) Key() string {
	return r.cfg.Key
}

// Start begins waiting for the slot. Valid exactly once; subsequent
// calls return ErrInvalidState.
//
// Parameters:
//   - ctx: Context for binding the built-in coordinator's bucket
//
// Returns:
//   - error: ErrInvalidState, ErrCoordinatorRequired, or a coordinator
//     setup failure
func (r *Reader) Start(ctx context.Context) error {
	if !r.started.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: Reader already started", ErrInvalidState)
	}

	if r.coord == nil {
		if r.nc == nil {
			return ErrCoordinatorRequired
		}

		coord, err := natskv.New(ctx, r.nc, natskv.Config{
			Bucket: r.cfg.Bucket,
			TTL:    r.cfg.bucketTTL(),
		})
		if err != nil {
			return fmt.Errorf("failed to set up coordinator: %w", err)
		}
		r.coord = coord
		r.ownsCoord = true
	}

	r.wg.Add(1)
	go r.run()

	return nil
}

// Finish stops the Reader if it has not delivered a value yet. The
// OnGaveUp hook fires once the driver observes the request. Idempotent.
func (r *Reader) Finish() {
	r.shouldFinish.Store(true)
	r.finishOnce.Do(func() {
		close(r.finishCh)
	})
}

// Wait blocks until the Reader delivered a value or gave up.
func (r *Reader) Wait() {
	r.wg.Wait()
}

// run alternates between reading the slot and waiting for it to be
// created, until one read succeeds or the gate trips.
func (r *Reader) run() {
	defer r.wg.Done()
	defer r.closeCoordinator()

	tracking := false
	for {
		if r.gaveUpIfNeeded() {
			return
		}

		if tracking {
			tracking = r.track()
			continue
		}

		value, done := r.read()
		if done {
			r.fire("onRead", func() error {
				if r.hooks == nil || r.hooks.OnRead == nil {
					return nil
				}
				return r.hooks.OnRead(value)
			})
			r.logger.Debug("slot read", "key", r.cfg.Key, "bytes", len(value))

			return
		}

		tracking = true
	}
}

// read attempts one read of the slot. done reports that value is the
// delivered content; otherwise the slot is missing or the read failed
// transiently and the caller moves on to tracking.
func (r *Reader) read() (value []byte, done bool) {
	ctx, cancel := r.opCtx()
	value, err := r.coord.Read(ctx, r.cfg.Key)
	cancel()

	switch {
	case err == nil:
		return value, true

	case errors.Is(err, ErrSlotMissing):
		return nil, false

	default:
		r.metrics.IncrementRetry("read")
		r.logger.Warn("failed to read slot, retrying",
			"key", r.cfg.Key, "error", err)
		r.pause()

		return nil, false
	}
}

// track waits for the slot to exist. It returns false once a read
// should be attempted again, true to keep tracking.
func (r *Reader) track() bool {
	ctx, cancel := r.opCtx()
	exists, watch, err := r.coord.WatchExists(ctx, r.cfg.Key)
	cancel()

	if err != nil {
		r.metrics.IncrementRetry("track")
		r.logger.Warn("failed to install watch, retrying",
			"key", r.cfg.Key, "error", err)
		r.pause()

		return true
	}

	defer func() {
		_ = watch.Stop()
	}()

	if exists {
		// Created between the failed read and the watch installation.
		return false
	}

	for {
		select {
		case ev, ok := <-watch.Events():
			if !ok {
				r.metrics.IncrementRetry("track")
				r.pause()

				return true
			}
			if ev.Kind == types.WatchCreated || ev.Kind == types.WatchDataChanged {
				return false
			}

		case <-r.finishCh:
			// The gate at the top of the loop decides.
			return false
		}
	}
}

// gaveUpIfNeeded is the Reader's termination gate, checked before every
// coordination call.
func (r *Reader) gaveUpIfNeeded() bool {
	if !r.shouldFinish.Load() && !r.coord.SessionState().Fatal() {
		return false
	}

	r.fire("onGaveUp", func() error {
		if r.hooks == nil || r.hooks.OnGaveUp == nil {
			return nil
		}
		return r.hooks.OnGaveUp()
	})
	r.logger.Info("reader gave up", "key", r.cfg.Key)

	return true
}

// fire invokes one hook with the same fault isolation the Election
// applies: panics and errors are logged, never propagated.
func (r *Reader) fire(name string, fn func() error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("hook panicked", "hook", name, "panic", rec)
		}
	}()

	if err := fn(); err != nil {
		r.logger.Warn("hook returned error", "hook", name, "error", err)
	}
}

// closeCoordinator releases the built-in coordinator once the driver
// has stopped; custom coordinators belong to the caller.
func (r *Reader) closeCoordinator() {
	if !r.ownsCoord {
		return
	}

	if c, ok := r.coord.(*natskv.Coordinator); ok {
		c.Close()
	}
}

// pause sleeps for RetryInterval, waking early when Finish is called.
func (r *Reader) pause() {
	if r.cfg.RetryInterval <= 0 {
		return
	}

	t := time.NewTimer(r.cfg.RetryInterval)
	defer t.Stop()

	select {
	case <-t.C:
	case <-r.finishCh:
	}
}

func (r *Reader) opCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), r.cfg.OperationTimeout)
}
