// Package idgen generates default candidate identities.
//
// The election protocol only requires an identity to be unique among
// concurrent candidates; its content is otherwise opaque. The generator
// is injectable so tests can supply deterministic identities instead of
// depending on a process-global random source.
package idgen

import (
	"fmt"
	"math/rand/v2"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/zeebo/xxh3"
)

var seq atomic.Uint64

// Random returns a non-negative integer token rendered as a decimal
// string.
//
// The token mixes host name, process ID, wall clock and an in-process
// sequence number through xxh3, then folds in random bits, so two
// candidates started on the same host in the same nanosecond still get
// distinct identities.
//
// Returns:
//   - string: Decimal candidate identity, e.g. "7023941883746218713"
func Random() string {
	host, _ := os.Hostname()
	entropy := fmt.Sprintf("%s|%d|%d|%d",
		host, os.Getpid(), time.Now().UnixNano(), seq.Add(1))

	token := xxh3.HashString(entropy) ^ rand.Uint64()

	return strconv.FormatUint(token, 10)
}
