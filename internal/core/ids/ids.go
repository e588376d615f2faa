package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewEventID returns a time-sortable ULID encoded as a 26-character string.
// IDs minted by one process are strictly increasing.
func NewEventID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	id := ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
	return id.String()
}

// NewConsumerName derives a per-process consumer name from the service name.
// Two instances of the same service must never share a name or the broker
// would treat them as one member of the group.
func NewConsumerName(service string) string {
	return service + "-" + uuid.NewString()
}
