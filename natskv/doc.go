// Package natskv implements the campaign Coordinator interface on a
// NATS JetStream key-value bucket.
//
// # Coordination model
//
// The contested slot is a single KV key:
//   - Atomic Create claims the slot; jetstream.ErrKeyExists signals an
//     existing holder
//   - Get resolves the current holder after an ambiguous failure
//   - Watch observes slot creation, replacement and deletion
//   - Update with revision checking renews a held claim
//
// # Ephemerality
//
// ZooKeeper-style ephemeral entries are emulated with a bucket TTL: a
// claim that is not renewed within the TTL expires and frees the slot
// for the next Create. Pair the bucket TTL with the election's
// RenewInterval (recommended: TTL/3). A bucket without a TTL only fails
// over on explicit deletion.
//
// Expiry removes the entry without a delete marker, so it is invisible
// to an armed watch; consumers that need to notice it re-check
// existence by reinstalling the watch. Close deletes claims still held
// through this coordinator (revision-checked), which makes clean
// shutdown an explicit, immediately observed deletion.
//
// # Usage
//
//	coord, err := natskv.New(ctx, nc, natskv.Config{
//	    Bucket: "campaign-election",
//	    TTL:    30 * time.Second,
//	})
//	if err != nil {
//	    log.Fatalf("failed to create coordinator: %v", err)
//	}
//	defer coord.Close()
//
// # Failover behavior
//
// A new election is observed when:
//   - The leader's claim expires (TTL, ~seconds after a crash)
//   - The slot is deleted explicitly (immediate)
//
// # Concurrency safety
//
// The Coordinator is safe for concurrent use. Each Watch returned by
// WatchExists is independent and must be stopped by its consumer;
// Close stops any that remain.
package natskv
