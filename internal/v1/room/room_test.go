package room

import (
	"context"
	"testing"

	"chatserver/internal/v1/wire"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestRoom_JoinEmitsSnapshotAndParticipationToFirstJoinerAlone(t *testing.T) {
	ctx := context.Background()
	r := NewRoom(Metadata{Name: "rust", Description: "Talk about Rust"})

	ch, handle, snapshot := r.Join(ctx, SessionAndUser{SessionID: "S1", UserID: "U1"})
	defer r.Leave(ctx, handle)

	assert.Equal(t, []string{"U1"}, snapshot)

	// The joining session observes its own joined event: best-effort
	// broadcast happens after the subscriber channel is registered.
	evt := <-ch
	assert.Equal(t, wire.EvtRoomParticipation, evt.Et)
	assert.Equal(t, "U1", evt.U)
	assert.Equal(t, wire.StatusJoined, evt.S)
}

func TestRoom_SecondSessionSameUserProducesNoSecondJoinedEvent(t *testing.T) {
	ctx := context.Background()
	r := NewRoom(Metadata{Name: "rust", Description: "Talk about Rust"})

	ch1, h1, _ := r.Join(ctx, SessionAndUser{SessionID: "S1", UserID: "U1"})
	<-ch1 // first joined event

	ch2, h2, snapshot := r.Join(ctx, SessionAndUser{SessionID: "S2", UserID: "U1"})
	assert.ElementsMatch(t, []string{"U1"}, snapshot)

	select {
	case evt := <-ch1:
		t.Fatalf("unexpected event on first subscriber: %+v", evt)
	case evt := <-ch2:
		t.Fatalf("unexpected event on second subscriber: %+v", evt)
	default:
	}

	r.Leave(ctx, h1)
	r.Leave(ctx, h2)
}

func TestRoom_LeaveEmitsLeftOnlyOnLastSession(t *testing.T) {
	ctx := context.Background()
	r := NewRoom(Metadata{Name: "rust", Description: "Talk about Rust"})

	ch1, h1, _ := r.Join(ctx, SessionAndUser{SessionID: "S1", UserID: "U1"})
	<-ch1

	chB, hB, _ := r.Join(ctx, SessionAndUser{SessionID: "SB", UserID: "UB"})
	<-chB // UB's own joined event
	<-ch1 // A observes UB joined

	ch2, h2, _ := r.Join(ctx, SessionAndUser{SessionID: "S2", UserID: "U1"})
	_ = ch2

	r.Leave(ctx, h1)
	select {
	case evt := <-chB:
		t.Fatalf("unexpected left event after first of two sessions left: %+v", evt)
	default:
	}

	r.Leave(ctx, h2)
	evt := <-chB
	assert.Equal(t, wire.StatusLeft, evt.S)
	assert.Equal(t, "U1", evt.U)

	r.Leave(ctx, hB)
}

func TestRoom_LeaveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	r := NewRoom(Metadata{Name: "rust", Description: "Talk about Rust"})
	ch, handle, _ := r.Join(ctx, SessionAndUser{SessionID: "S1", UserID: "U1"})
	<-ch

	r.Leave(ctx, handle)
	r.Leave(ctx, handle)

	require.Empty(t, r.UniqueUserIDs())

	_, stillOpen := <-ch
	assert.False(t, stillOpen)
}

func TestRoom_SendMessageFanOutIncludesSender(t *testing.T) {
	ctx := context.Background()
	r := NewRoom(Metadata{Name: "rust", Description: "Talk about Rust"})

	chA, hA, _ := r.Join(ctx, SessionAndUser{SessionID: "SA", UserID: "UA"})
	<-chA

	chB, hB, _ := r.Join(ctx, SessionAndUser{SessionID: "SB", UserID: "UB"})
	<-chB
	<-chA // A observes B joined

	r.SendMessage(ctx, hA, "hi")

	evtA := <-chA
	evtB := <-chB
	assert.Equal(t, wire.NewUserMessage("rust", "UA", "hi"), evtA)
	assert.Equal(t, wire.NewUserMessage("rust", "UA", "hi"), evtB)

	r.Leave(ctx, hA)
	r.Leave(ctx, hB)
}

func TestRoom_JoinUnknownThenLeaveBalancedRestoresState(t *testing.T) {
	ctx := context.Background()
	r := NewRoom(Metadata{Name: "rust", Description: "Talk about Rust"})
	before := r.UniqueUserIDs()

	ch, handle, _ := r.Join(ctx, SessionAndUser{SessionID: "S1", UserID: "U1"})
	<-ch
	r.Leave(ctx, handle)

	assert.Equal(t, before, r.UniqueUserIDs())
}

func TestRoom_SendMessageAfterLeaveIsNoop(t *testing.T) {
	ctx := context.Background()
	r := NewRoom(Metadata{Name: "rust", Description: "Talk about Rust"})
	ch, handle, _ := r.Join(ctx, SessionAndUser{SessionID: "S1", UserID: "U1"})
	<-ch
	r.Leave(ctx, handle)

	r.SendMessage(ctx, handle, "too late")
}
