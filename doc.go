// Package campaign provides leader election for distributed Go services
// on top of NATS JetStream Key-Value storage.
//
// Candidates contend for a single coordination slot; the candidate that
// creates it becomes the leader, the others follow and watch the slot.
// When the leader resigns, crashes, or lets its claim expire, every
// follower re-enters the race immediately, so the group converges on a
// new leader without any external coordination service.
//
// # Quick Start
//
// Basic usage with default settings:
//
//	import "github.com/okanek/campaign"
//
//	hooks := &campaign.Hooks{
//	    OnWin:  func() error { return startServing() },
//	    OnLose: func() error { return stopServing() },
//	}
//
//	e, err := campaign.New(natsConn, campaign.DefaultConfig(),
//	    campaign.WithHooks(hooks),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := e.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer e.Finish()
//
// # Key Features
//
//   - Atomic Claims: Leadership is decided by a single atomic KV create,
//     never by comparing reads
//   - Ambiguity Resolution: A claim that fails without a clear verdict is
//     resolved by reading the slot back, so a candidate whose own claim
//     actually landed still becomes leader
//   - Session-Scoped Leadership: A leader renews its TTL-bound claim
//     periodically; an unrenewed claim expires and frees the slot
//   - Cooperative Shutdown: Finish stops the election at the next safe
//     point without interrupting calls already in flight
//   - Pluggable Backend: The Coordinator interface admits backends other
//     than NATS KV
//
// # State Machine
//
// A candidate progresses through five states:
//
//	Created → Electing → Leader/Follower → ... → Done
//
// Electing, Leader and Follower cycle as leadership changes hands; Done
// is terminal and is entered only through Finish or a permanently dead
// coordination session. Every transition is reported through the
// OnStateChanged hook before the role-specific hook for the same event.
//
// # Observing Elections
//
// A process that is not a candidate can discover the current leader
// with a Reader, which waits for the slot to exist and delivers its
// content once:
//
//	r, err := campaign.NewReader(natsConn, cfg,
//	    campaign.WithReadHooks(&campaign.ReadHooks{
//	        OnRead: func(value []byte) error {
//	            log.Printf("leader is %s", value)
//	            return nil
//	        },
//	    }),
//	)
//
// See the examples/ directory for complete working examples.
package campaign
