package harness

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync/atomic"
)

var idCounter atomic.Uint64

// generateID returns a prefixed, process-unique identifier: a monotonic
// counter plus a random suffix. Deliberately avoids wall-clock time so ids
// stay unique even when the clock doesn't advance between calls.
func generateID(prefix string) string {
	n := idCounter.Add(1)
	var buf [4]byte
	_, _ = rand.Read(buf[:])
	return fmt.Sprintf("%s_%d_%s", prefix, n, hex.EncodeToString(buf[:]))
}
