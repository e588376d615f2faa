// Package channel provides an in-process broker for tests and local
// development. It reproduces the stream-store semantics the messaging layer
// relies on, including consumer groups, pending entries and reclaim, without
// any external service. Share one Hub between the publishers and consumers
// that should see each other.
package channel

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/drblury/eventwire/broker"
	"github.com/drblury/eventwire/internal/core/logging"
)

// DriverName is the name used to register this driver.
const DriverName = "channel"

// ErrClosed is returned for any operation on a closed Hub.
var ErrClosed = errors.New("channel: broker is closed")

func init() {
	broker.RegisterWithCapabilities(DriverName, Build, broker.ChannelCapabilities)
}

// Build creates a new in-process broker. Every Build call returns an
// independent Hub; callers that want connected publishers and consumers must
// build once and share.
func Build(ctx context.Context, cfg broker.Config, logger logging.ServiceLogger) (broker.Broker, error) {
	return NewHub(), nil
}

// Capabilities returns the capabilities of this driver.
func Capabilities() broker.Capabilities {
	return broker.ChannelCapabilities
}

type entry struct {
	seq    uint64
	id     string
	fields map[string]any
}

type pendingEntry struct {
	seq         uint64
	consumer    string
	deliveredAt time.Time
	deliveries  int64
}

type group struct {
	cursor  uint64 // highest seq handed out as new
	pending map[string]*pendingEntry
}

type stream struct {
	seq     uint64
	entries []entry
	groups  map[string]*group
}

// Hub is the in-process broker. All methods are safe for concurrent use.
type Hub struct {
	mu      sync.Mutex
	streams map[string]*stream
	notify  chan struct{}
	closed  bool
	clock   func() time.Time
}

// NewHub creates an empty in-process broker.
func NewHub() *Hub {
	return &Hub{
		streams: make(map[string]*stream),
		notify:  make(chan struct{}),
		clock:   time.Now,
	}
}

var _ broker.Broker = (*Hub)(nil)
var _ broker.Reclaimer = (*Hub)(nil)
var _ broker.CapabilitiesProvider = (*Hub)(nil)

// Capabilities implements broker.CapabilitiesProvider.
func (h *Hub) Capabilities() broker.Capabilities {
	return broker.ChannelCapabilities
}

func (h *Hub) streamLocked(name string) *stream {
	s, ok := h.streams[name]
	if !ok {
		s = &stream{groups: make(map[string]*group)}
		h.streams[name] = s
	}
	return s
}

// Append implements broker.Broker. Entry ids follow the "<millis>-<seq>"
// shape of real stream stores. A positive maxLen trims the oldest entries
// once the stream grows past it; trimmed entries silently fall out of every
// group's pending list on reclaim.
func (h *Hub) Append(ctx context.Context, streamName string, fields map[string]any, maxLen int64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return "", ErrClosed
	}

	s := h.streamLocked(streamName)
	s.seq++
	e := entry{
		seq:    s.seq,
		id:     fmt.Sprintf("%d-%d", h.clock().UnixMilli(), s.seq),
		fields: cloneFields(fields),
	}
	s.entries = append(s.entries, e)

	if maxLen > 0 && int64(len(s.entries)) > maxLen {
		s.entries = s.entries[int64(len(s.entries))-maxLen:]
	}

	// Wake every blocked reader.
	close(h.notify)
	h.notify = make(chan struct{})

	return e.id, nil
}

// EnsureGroup implements broker.Broker. Groups always start at the stream
// beginning; the stream is created if it does not exist yet.
func (h *Hub) EnsureGroup(ctx context.Context, streamName, groupName string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}

	s := h.streamLocked(streamName)
	if _, ok := s.groups[groupName]; ok {
		return nil
	}
	s.groups[groupName] = &group{pending: make(map[string]*pendingEntry)}
	return nil
}

// ReadNew implements broker.Broker. Entries are delivered in append order
// per stream, become pending for the reading consumer, and stay invisible to
// every other group member until reclaimed.
func (h *Hub) ReadNew(ctx context.Context, groupName, consumer string, streams []string, count int64, block time.Duration) ([]broker.Delivery, error) {
	deadline := h.clock().Add(block)

	for {
		h.mu.Lock()
		if h.closed {
			h.mu.Unlock()
			return nil, ErrClosed
		}

		deliveries, err := h.collectLocked(groupName, consumer, streams, count)
		if err != nil {
			h.mu.Unlock()
			return nil, err
		}
		if len(deliveries) > 0 {
			h.mu.Unlock()
			return deliveries, nil
		}

		wait := h.notify
		h.mu.Unlock()

		if block <= 0 {
			return nil, nil
		}
		remaining := deadline.Sub(h.clock())
		if remaining <= 0 {
			return nil, nil
		}

		timer := time.NewTimer(remaining)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-wait:
			timer.Stop()
		case <-timer.C:
			return nil, nil
		}
	}
}

func (h *Hub) collectLocked(groupName, consumer string, streams []string, count int64) ([]broker.Delivery, error) {
	var out []broker.Delivery
	now := h.clock()

	for _, streamName := range streams {
		if count > 0 && int64(len(out)) >= count {
			break
		}

		s, ok := h.streams[streamName]
		if !ok {
			return nil, fmt.Errorf("channel: no such stream %q", streamName)
		}
		g, ok := s.groups[groupName]
		if !ok {
			return nil, fmt.Errorf("channel: no such group %q for stream %q", groupName, streamName)
		}

		for _, e := range s.entries {
			if e.seq <= g.cursor {
				continue
			}
			if count > 0 && int64(len(out)) >= count {
				break
			}
			g.cursor = e.seq
			g.pending[e.id] = &pendingEntry{
				seq:         e.seq,
				consumer:    consumer,
				deliveredAt: now,
				deliveries:  1,
			}
			out = append(out, broker.Delivery{
				Stream:     streamName,
				ID:         e.id,
				Fields:     cloneFields(e.fields),
				Deliveries: 1,
			})
		}
	}

	return out, nil
}

// Ack implements broker.Broker. Acknowledging an id that is not pending is
// a no-op, matching real stream stores.
func (h *Hub) Ack(ctx context.Context, streamName, groupName, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}

	s, ok := h.streams[streamName]
	if !ok {
		return nil
	}
	g, ok := s.groups[groupName]
	if !ok {
		return nil
	}
	delete(g.pending, id)
	return nil
}

// Reclaim implements broker.Reclaimer. Pending entries idle at least minIdle
// are transferred to the calling consumer in append order. Entries whose
// data was trimmed away are dropped from the pending list instead of being
// returned.
func (h *Hub) Reclaim(ctx context.Context, streamName, groupName, consumer string, minIdle time.Duration, count int64) ([]broker.Delivery, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}

	s, ok := h.streams[streamName]
	if !ok {
		return nil, fmt.Errorf("channel: no such stream %q", streamName)
	}
	g, ok := s.groups[groupName]
	if !ok {
		return nil, fmt.Errorf("channel: no such group %q for stream %q", groupName, streamName)
	}

	now := h.clock()

	ids := make([]string, 0, len(g.pending))
	for id := range g.pending {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return g.pending[ids[i]].seq < g.pending[ids[j]].seq
	})

	var out []broker.Delivery
	for _, id := range ids {
		if count > 0 && int64(len(out)) >= count {
			break
		}
		p := g.pending[id]
		if now.Sub(p.deliveredAt) < minIdle {
			continue
		}

		e, ok := findEntry(s.entries, p.seq)
		if !ok {
			// Trimmed away; nothing left to deliver.
			delete(g.pending, id)
			continue
		}

		p.consumer = consumer
		p.deliveredAt = now
		p.deliveries++
		out = append(out, broker.Delivery{
			Stream:     streamName,
			ID:         e.id,
			Fields:     cloneFields(e.fields),
			Deliveries: p.deliveries,
		})
	}

	return out, nil
}

// PendingCount reports how many deliveries the group has not acknowledged
// yet. Test helper.
func (h *Hub) PendingCount(streamName, groupName string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.streams[streamName]
	if !ok {
		return 0
	}
	g, ok := s.groups[groupName]
	if !ok {
		return 0
	}
	return len(g.pending)
}

// Len reports how many entries a stream currently retains. Test helper.
func (h *Hub) Len(streamName string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.streams[streamName]
	if !ok {
		return 0
	}
	return len(s.entries)
}

// Close implements broker.Broker. Blocked readers are woken and every later
// operation fails with ErrClosed. Closing twice is fine.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	close(h.notify)
	return nil
}

func findEntry(entries []entry, seq uint64) (entry, bool) {
	i := sort.Search(len(entries), func(i int) bool {
		return entries[i].seq >= seq
	})
	if i < len(entries) && entries[i].seq == seq {
		return entries[i], true
	}
	return entry{}, false
}

func cloneFields(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}
