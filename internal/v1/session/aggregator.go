// Package session implements the per-connection aggregator and driver: the
// aggregator multiplexes a session's joined-room subscriptions onto one
// ordered outbound stream, and the driver pumps that stream to and from the
// wire.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"chatserver/internal/v1/metrics"
	"chatserver/internal/v1/room"
	"chatserver/internal/v1/wire"
)

// outboundCapacity bounds the per-session queue that forwarding tasks and
// the aggregator itself feed; the driver's write loop is its sole consumer.
const outboundCapacity = 100

// Sentinel errors for command dispositions the driver logs but never
// surfaces as a session-fatal failure.
var (
	ErrAlreadyJoined    = errors.New("session: room already joined")
	ErrUnknownRoom      = errors.New("session: unknown room")
	ErrAggregatorClosed = errors.New("session: aggregator closed")
)

// joinedRoomEntry is the Active state of the §4.6 state machine for one
// room: the handle used to send/leave, the room it belongs to (so cleanup
// never needs a second directory lookup), and the cancellation of its
// forwarding task.
type joinedRoomEntry struct {
	room   *room.Room
	handle *room.Handle
	cancel context.CancelFunc
}

// Aggregator owns one session's joined-room bookkeeping and the single
// outbound channel that the session driver drains to the socket. It has no
// knowledge of the transport; HandleCommand, LeaveAll and Close are its
// entire interface to the driver besides reading Outbound().
type Aggregator struct {
	su        room.SessionAndUser
	directory *room.Directory

	mu     sync.Mutex
	joined map[string]*joinedRoomEntry

	wg       sync.WaitGroup
	outbound chan wire.Event
}

// NewAggregator returns an aggregator for su, backed by directory for
// room lookups.
func NewAggregator(su room.SessionAndUser, directory *room.Directory) *Aggregator {
	return &Aggregator{
		su:        su,
		directory: directory,
		joined:    make(map[string]*joinedRoomEntry),
		outbound:  make(chan wire.Event, outboundCapacity),
	}
}

// Outbound returns the channel the driver's select reads from. It is never
// closed until after LeaveAll has fully drained every forwarding task, so a
// range or receive on it never races a send from one.
func (a *Aggregator) Outbound() <-chan wire.Event {
	return a.outbound
}

// NextOutboundEvent reads the next event, returning ErrAggregatorClosed
// once Close has been called and no events remain. The driver's select
// loop uses Outbound() directly; this exists for callers that just want
// one event at a time, such as tests.
func (a *Aggregator) NextOutboundEvent() (wire.Event, error) {
	evt, ok := <-a.outbound
	if !ok {
		return wire.Event{}, ErrAggregatorClosed
	}
	return evt, nil
}

// Close closes the outbound channel. Callers must call LeaveAll first so
// every forwarding task has already stopped feeding it; otherwise a send
// from a still-running task would panic.
func (a *Aggregator) Close() {
	close(a.outbound)
}

// HandleCommand dispatches one inbound command. quit is handled by the
// driver directly and never reaches here.
func (a *Aggregator) HandleCommand(ctx context.Context, cmd wire.Command) error {
	switch cmd.Ct {
	case wire.CmdJoinRoom:
		return a.joinRoom(ctx, cmd.R)
	case wire.CmdLeaveRoom:
		return a.leaveRoom(ctx, cmd.R)
	case wire.CmdSendMessage:
		return a.sendMessage(ctx, cmd.R, cmd.C)
	default:
		return nil
	}
}

func (a *Aggregator) joinRoom(ctx context.Context, roomName string) error {
	a.mu.Lock()
	if _, exists := a.joined[roomName]; exists {
		a.mu.Unlock()
		metrics.CommandsTotal.WithLabelValues(wire.CmdJoinRoom, "already_joined").Inc()
		return fmt.Errorf("%w: %s", ErrAlreadyJoined, roomName)
	}
	a.mu.Unlock()

	rm, ok := a.directory.Lookup(roomName)
	if !ok {
		metrics.CommandsTotal.WithLabelValues(wire.CmdJoinRoom, "unknown_room").Inc()
		return fmt.Errorf("%w: %s", ErrUnknownRoom, roomName)
	}

	receiver, handle, snapshot := rm.Join(ctx, a.su)

	// Joining->Active: the reply is enqueued before the forwarding task
	// starts, so it is always the first event this session observes for
	// roomName.
	a.outbound <- wire.NewUserJoinedRoom(roomName, snapshot)

	forwardCtx, cancel := context.WithCancel(context.Background())
	a.mu.Lock()
	a.joined[roomName] = &joinedRoomEntry{room: rm, handle: handle, cancel: cancel}
	a.mu.Unlock()

	a.wg.Add(1)
	go a.forward(forwardCtx, receiver)

	metrics.CommandsTotal.WithLabelValues(wire.CmdJoinRoom, "ok").Inc()
	return nil
}

func (a *Aggregator) leaveRoom(ctx context.Context, roomName string) error {
	a.mu.Lock()
	entry, ok := a.joined[roomName]
	if ok {
		delete(a.joined, roomName)
	}
	a.mu.Unlock()

	if !ok {
		return nil
	}
	a.cleanup(ctx, entry)
	metrics.CommandsTotal.WithLabelValues(wire.CmdLeaveRoom, "ok").Inc()
	return nil
}

func (a *Aggregator) sendMessage(ctx context.Context, roomName, content string) error {
	a.mu.Lock()
	entry, ok := a.joined[roomName]
	a.mu.Unlock()

	if !ok {
		metrics.CommandsTotal.WithLabelValues(wire.CmdSendMessage, "not_joined").Inc()
		return nil
	}
	entry.room.SendMessage(ctx, entry.handle, content)
	metrics.CommandsTotal.WithLabelValues(wire.CmdSendMessage, "ok").Inc()
	return nil
}

// LeaveAll cancels every joined room's forwarding task, calls room.Leave on
// its handle, then blocks until every forwarding task has actually exited.
// It is safe to call more than once: the second call observes an empty map
// and returns immediately.
func (a *Aggregator) LeaveAll(ctx context.Context) {
	a.mu.Lock()
	entries := a.joined
	a.joined = make(map[string]*joinedRoomEntry)
	a.mu.Unlock()

	for _, entry := range entries {
		a.cleanup(ctx, entry)
	}
	a.wg.Wait()
}

func (a *Aggregator) cleanup(ctx context.Context, entry *joinedRoomEntry) {
	entry.cancel()
	entry.room.Leave(ctx, entry.handle)
}

// forward pumps events from a room broadcast subscription onto the
// outbound channel until the subscription closes (Room.Leave) or ctx is
// cancelled (leave_room/leaveAll). A broadcast receive that lost events to
// overflow is indistinguishable here from a normal receive: the dropped
// events already happened inside Room.broadcastLocked, so this loop simply
// resumes with whatever arrives next.
func (a *Aggregator) forward(ctx context.Context, receiver <-chan wire.Event) {
	defer a.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-receiver:
			if !ok {
				return
			}
			select {
			case a.outbound <- evt:
			case <-ctx.Done():
				return
			}
		}
	}
}
