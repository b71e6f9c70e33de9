package room

import (
	"context"
	"fmt"
	"sync"

	"chatserver/internal/v1/metrics"
	"chatserver/internal/v1/wire"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("chatserver/internal/v1/room")

// broadcastCapacity bounds the per-subscriber channel a forwarding task
// reads from. A subscriber that falls this far behind misses the events
// sent while its channel is full rather than stalling the room for
// everyone else; the events already buffered are kept.
const broadcastCapacity = 100

// Metadata is a room's immutable name and human description, as loaded
// from the catalog at startup.
type Metadata struct {
	Name        string
	Description string
}

// Handle is the move-only token returned by Room.Join. It binds one
// (SessionId, UserId) to one Room and is the only way to send a message or
// drive the matching leave. Losing a Handle without calling Room.Leave on
// it leaks the subscriber channel it holds; Leave is idempotent so callers
// that always route through it (as the session aggregator does) cannot
// double-release.
type Handle struct {
	room         *Room
	subscriberID uint64
	su           SessionAndUser

	mu   sync.Mutex
	left bool
}

// Room owns one broadcast topic: a metadata pair, the set of live
// subscriber channels standing in for the broadcast's receivers, and the
// UserRegistry used to decide when a participation event is due. All
// mutation goes through mu, matching the rule that registry bookkeeping
// must be visible before the corresponding event is emitted.
type Room struct {
	meta Metadata

	mu          sync.Mutex
	registry    *UserRegistry
	subscribers map[uint64]chan wire.Event
	nextSubID   uint64
}

// NewRoom constructs an empty room for meta. Rooms are created once at
// startup from the catalog and live for the process lifetime.
func NewRoom(meta Metadata) *Room {
	return &Room{
		meta:        meta,
		registry:    NewUserRegistry(),
		subscribers: make(map[uint64]chan wire.Event),
	}
}

// Metadata returns the room's immutable name and description.
func (r *Room) Metadata() Metadata {
	return r.meta
}

// Join atomically registers su as present in the room, handing back a new
// broadcast subscription, a Handle to drive future sends and leave, and a
// snapshot of the room's unique user ids taken under the same critical
// section (so the caller's synthetic reply can never race a concurrent
// join/leave). If su's user had no prior session in the room, a
// room_participation{joined} event is best-effort broadcast, including to
// the new subscriber itself.
func (r *Room) Join(ctx context.Context, su SessionAndUser) (<-chan wire.Event, *Handle, []string) {
	_, span := tracer.Start(ctx, "Room.Join", trace.WithAttributes(
		attribute.String("room", r.meta.Name),
		attribute.String("user_id", su.UserID),
	))
	defer span.End()

	r.mu.Lock()
	defer r.mu.Unlock()

	ch := make(chan wire.Event, broadcastCapacity)
	subID := r.nextSubID
	r.nextSubID++
	r.subscribers[subID] = ch

	isNewUser := r.registry.Insert(su)
	if isNewUser {
		r.broadcastLocked(wire.NewRoomParticipation(r.meta.Name, su.UserID, wire.StatusJoined))
	}
	metrics.RoomParticipants.WithLabelValues(r.meta.Name).Set(float64(r.registry.Len()))

	return ch, &Handle{room: r, subscriberID: subID, su: su}, r.registry.UniqueUserIDs()
}

// Leave atomically unregisters handle's session, closing its subscriber
// channel so the owning forwarding task observes closure and exits. If
// handle's user had no other session left in the room, a
// room_participation{left} event is best-effort broadcast to the remaining
// subscribers. Leave is idempotent: calling it twice on the same handle has
// no effect the second time.
func (r *Room) Leave(ctx context.Context, handle *Handle) {
	_, span := tracer.Start(ctx, "Room.Leave", trace.WithAttributes(
		attribute.String("room", r.meta.Name),
		attribute.String("user_id", handle.su.UserID),
	))
	defer span.End()

	handle.mu.Lock()
	if handle.left {
		handle.mu.Unlock()
		return
	}
	handle.left = true
	handle.mu.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	if ch, ok := r.subscribers[handle.subscriberID]; ok {
		delete(r.subscribers, handle.subscriberID)
		close(ch)
	}

	wasLastSession := r.registry.Remove(handle.su)
	if wasLastSession {
		r.broadcastLocked(wire.NewRoomParticipation(r.meta.Name, handle.su.UserID, wire.StatusLeft))
	}
	metrics.RoomParticipants.WithLabelValues(r.meta.Name).Set(float64(r.registry.Len()))
}

// SendMessage best-effort broadcasts a user_message event carrying
// handle's UserId and content. A handle already consumed by Leave sends
// nothing; the caller is expected not to reach this state since the
// session aggregator removes the joined entry before the handle can be
// reused, but the check keeps Room safe against misuse on its own.
func (r *Room) SendMessage(ctx context.Context, handle *Handle, content string) {
	_, span := tracer.Start(ctx, "Room.SendMessage", trace.WithAttributes(
		attribute.String("room", r.meta.Name),
		attribute.String("user_id", handle.su.UserID),
	))
	defer span.End()

	handle.mu.Lock()
	left := handle.left
	handle.mu.Unlock()
	if left {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcastLocked(wire.NewUserMessage(r.meta.Name, handle.su.UserID, content))
}

// UniqueUserIDs delegates to the registry under the room's lock.
func (r *Room) UniqueUserIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registry.UniqueUserIDs()
}

// broadcastLocked sends evt to every live subscriber without blocking. A
// subscriber whose channel is full drops the event (BroadcastOverflow) and
// the room continues with the next subscriber; a room with no subscribers
// drops the event entirely. Both outcomes are counted rather than
// propagated as errors, matching the best-effort contract. Callers must
// already hold mu.
func (r *Room) broadcastLocked(evt wire.Event) {
	if len(r.subscribers) == 0 {
		metrics.BroadcastEventsTotal.WithLabelValues(r.meta.Name, "dropped_no_subscribers").Inc()
		return
	}

	for _, ch := range r.subscribers {
		select {
		case ch <- evt:
			metrics.BroadcastEventsTotal.WithLabelValues(r.meta.Name, "delivered").Inc()
		default:
			metrics.BroadcastEventsTotal.WithLabelValues(r.meta.Name, "dropped_full").Inc()
			metrics.BroadcastLagTotal.WithLabelValues(r.meta.Name).Inc()
		}
	}
}

// String aids log lines and panics during development; it is not part of
// the wire protocol.
func (r *Room) String() string {
	return fmt.Sprintf("room(%s)", r.meta.Name)
}
