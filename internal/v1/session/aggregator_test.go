package session

import (
	"context"
	"testing"
	"time"

	"chatserver/internal/v1/room"
	"chatserver/internal/v1/wire"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestDirectory(t *testing.T) *room.Directory {
	dir, err := room.NewDirectory([]room.Metadata{
		{Name: "rust", Description: "Talk about Rust"},
		{Name: "go", Description: "Talk about Go"},
	})
	require.NoError(t, err)
	return dir
}

func recvWithin(t *testing.T, ch <-chan wire.Event, d time.Duration) wire.Event {
	select {
	case evt := <-ch:
		return evt
	case <-time.After(d):
		t.Fatal("timed out waiting for event")
		return wire.Event{}
	}
}

func TestAggregator_JoinRoomEnqueuesReplyFirst(t *testing.T) {
	ctx := context.Background()
	dir := newTestDirectory(t)
	agg := NewAggregator(room.SessionAndUser{SessionID: "S1", UserID: "U1"}, dir)

	err := agg.HandleCommand(ctx, wire.Command{Ct: wire.CmdJoinRoom, R: "rust"})
	require.NoError(t, err)

	evt := recvWithin(t, agg.Outbound(), time.Second)
	assert.Equal(t, wire.EvtUserJoinedRoom, evt.Et)
	assert.Equal(t, []string{"U1"}, evt.Us)

	evt = recvWithin(t, agg.Outbound(), time.Second)
	assert.Equal(t, wire.EvtRoomParticipation, evt.Et)
	assert.Equal(t, wire.StatusJoined, evt.S)

	agg.LeaveAll(ctx)
	agg.Close()
}

func TestAggregator_JoinRoomTwiceFails(t *testing.T) {
	ctx := context.Background()
	dir := newTestDirectory(t)
	agg := NewAggregator(room.SessionAndUser{SessionID: "S1", UserID: "U1"}, dir)

	require.NoError(t, agg.HandleCommand(ctx, wire.Command{Ct: wire.CmdJoinRoom, R: "rust"}))
	recvWithin(t, agg.Outbound(), time.Second)
	recvWithin(t, agg.Outbound(), time.Second)

	err := agg.HandleCommand(ctx, wire.Command{Ct: wire.CmdJoinRoom, R: "rust"})
	assert.ErrorIs(t, err, ErrAlreadyJoined)

	agg.LeaveAll(ctx)
	agg.Close()
}

func TestAggregator_JoinUnknownRoomFails(t *testing.T) {
	ctx := context.Background()
	dir := newTestDirectory(t)
	agg := NewAggregator(room.SessionAndUser{SessionID: "S1", UserID: "U1"}, dir)

	err := agg.HandleCommand(ctx, wire.Command{Ct: wire.CmdJoinRoom, R: "nope"})
	assert.ErrorIs(t, err, ErrUnknownRoom)

	agg.LeaveAll(ctx)
	agg.Close()
}

func TestAggregator_SendMessageWithoutJoinIsSilentlyIgnored(t *testing.T) {
	ctx := context.Background()
	dir := newTestDirectory(t)
	agg := NewAggregator(room.SessionAndUser{SessionID: "S1", UserID: "U1"}, dir)

	err := agg.HandleCommand(ctx, wire.Command{Ct: wire.CmdSendMessage, R: "rust", C: "hi"})
	assert.NoError(t, err)

	agg.LeaveAll(ctx)
	agg.Close()
}

func TestAggregator_LeaveRoomUnjoinedIsSilentlyIgnored(t *testing.T) {
	ctx := context.Background()
	dir := newTestDirectory(t)
	agg := NewAggregator(room.SessionAndUser{SessionID: "S1", UserID: "U1"}, dir)

	err := agg.HandleCommand(ctx, wire.Command{Ct: wire.CmdLeaveRoom, R: "rust"})
	assert.NoError(t, err)

	agg.LeaveAll(ctx)
	agg.Close()
}

func TestAggregator_FanOutBetweenTwoSessions(t *testing.T) {
	ctx := context.Background()
	dir := newTestDirectory(t)
	aggA := NewAggregator(room.SessionAndUser{SessionID: "SA", UserID: "UA"}, dir)
	aggB := NewAggregator(room.SessionAndUser{SessionID: "SB", UserID: "UB"}, dir)

	require.NoError(t, aggA.HandleCommand(ctx, wire.Command{Ct: wire.CmdJoinRoom, R: "rust"}))
	recvWithin(t, aggA.Outbound(), time.Second) // reply
	recvWithin(t, aggA.Outbound(), time.Second) // own joined

	require.NoError(t, aggB.HandleCommand(ctx, wire.Command{Ct: wire.CmdJoinRoom, R: "rust"}))
	recvWithin(t, aggB.Outbound(), time.Second) // reply
	recvWithin(t, aggB.Outbound(), time.Second) // own joined
	recvWithin(t, aggA.Outbound(), time.Second) // A observes B joined

	require.NoError(t, aggA.HandleCommand(ctx, wire.Command{Ct: wire.CmdSendMessage, R: "rust", C: "hi"}))

	evtA := recvWithin(t, aggA.Outbound(), time.Second)
	evtB := recvWithin(t, aggB.Outbound(), time.Second)
	assert.Equal(t, wire.NewUserMessage("rust", "UA", "hi"), evtA)
	assert.Equal(t, wire.NewUserMessage("rust", "UA", "hi"), evtB)

	aggA.LeaveAll(ctx)
	aggB.LeaveAll(ctx)
	aggA.Close()
	aggB.Close()
}

func TestAggregator_LeaveAllIsIdempotent(t *testing.T) {
	ctx := context.Background()
	dir := newTestDirectory(t)
	agg := NewAggregator(room.SessionAndUser{SessionID: "S1", UserID: "U1"}, dir)

	require.NoError(t, agg.HandleCommand(ctx, wire.Command{Ct: wire.CmdJoinRoom, R: "rust"}))
	recvWithin(t, agg.Outbound(), time.Second)
	recvWithin(t, agg.Outbound(), time.Second)

	agg.LeaveAll(ctx)
	agg.LeaveAll(ctx)

	agg.Close()
	_, err := agg.NextOutboundEvent()
	assert.ErrorIs(t, err, ErrAggregatorClosed)
}

func TestAggregator_QuitCommandIsNoopHere(t *testing.T) {
	ctx := context.Background()
	dir := newTestDirectory(t)
	agg := NewAggregator(room.SessionAndUser{SessionID: "S1", UserID: "U1"}, dir)

	err := agg.HandleCommand(ctx, wire.Command{Ct: wire.CmdQuit})
	assert.NoError(t, err)

	agg.LeaveAll(ctx)
	agg.Close()
}
