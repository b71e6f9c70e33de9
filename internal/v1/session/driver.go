package session

import (
	"context"
	"errors"
	"io"

	"chatserver/internal/v1/logging"
	"chatserver/internal/v1/metrics"
	"chatserver/internal/v1/room"
	"chatserver/internal/v1/wire"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ExitReason records why a driver's Run returned, for logging and for the
// "skip leaveAll on shutdown" rule of §4.7 step 6.
type ExitReason string

const (
	ExitClientQuit      ExitReason = "client_quit"
	ExitTransportFailed ExitReason = "transport_failed"
	ExitServerShutdown  ExitReason = "server_shutdown"
)

// Conn is the connection surface a driver needs: wire.Conn's Read/Write
// plus Close, so the driver can unblock its own blocked reader goroutine on
// teardown by tearing down the socket underneath it.
type Conn interface {
	wire.Conn
	Close() error
}

// Driver owns one accepted connection for its lifetime: generating
// identifiers, sending the login reply, and running the inbound/outbound
// select loop of §4.7 until the connection closes, the client quits, a
// write fails, or the server shuts down.
type Driver struct {
	sessionID string
	userID    string
	conn      Conn
	transport *wire.Transport
	directory *room.Directory
}

// NewDriver wraps conn for one session against directory. Identifiers are
// generated immediately so they appear in every subsequent log line.
func NewDriver(conn Conn, directory *room.Directory) *Driver {
	return &Driver{
		sessionID: uuid.NewString(),
		userID:    uuid.NewString(),
		conn:      conn,
		transport: wire.NewTransport(conn),
		directory: directory,
	}
}

type inboundResult struct {
	cmd wire.Command
	err error
}

// Run sends the login reply and then services the connection until exit.
// shutdown is the server-wide signal checked at the top of §4.7 step 5;
// when it fires, Run drops the writer and returns ExitServerShutdown
// without calling leaveAll, per the deliberate shutdown-skip rationale.
func (d *Driver) Run(shutdown <-chan struct{}) ExitReason {
	ctx := context.Background()
	ctx = context.WithValue(ctx, logging.SessionIDKey, d.sessionID)
	ctx = context.WithValue(ctx, logging.UserIDKey, d.userID)

	metrics.IncConnection()
	defer metrics.DecConnection()
	defer d.conn.Close()

	su := room.SessionAndUser{SessionID: d.sessionID, UserID: d.userID}
	aggregator := NewAggregator(su, d.directory)

	if err := d.transport.WriteEvent(loginSuccessfulEvent(d.sessionID, d.userID, d.directory.Metadatas())); err != nil {
		logging.Error(ctx, "failed to write login_successful", zap.Error(err))
		return ExitTransportFailed
	}

	// runCtx unblocks the reader goroutine's pending send on teardown even
	// if nothing is left to receive it; it is unrelated to shutdown.
	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()

	inboundCh := make(chan inboundResult, 1)
	go d.readLoop(runCtx, inboundCh)

	reason := d.serve(ctx, shutdown, inboundCh, aggregator)

	if reason == ExitServerShutdown {
		return reason
	}
	aggregator.LeaveAll(ctx)
	aggregator.Close()
	return reason
}

func (d *Driver) readLoop(runCtx context.Context, inboundCh chan<- inboundResult) {
	for {
		cmd, err := d.transport.ReadCommand()
		select {
		case inboundCh <- inboundResult{cmd: cmd, err: err}:
		case <-runCtx.Done():
			return
		}
		if err != nil && !errors.Is(err, wire.ErrMalformedRecord) {
			return
		}
	}
}

// serve runs the priority select of §4.7 step 5: a shutdown check is made
// on every iteration before the fair three-way select, so a chatty room's
// outbound events can never delay the server noticing a shutdown signal;
// among inbound commands and outbound events the plain select is fair by
// construction, so a busy room cannot starve command processing.
func (d *Driver) serve(ctx context.Context, shutdown <-chan struct{}, inboundCh <-chan inboundResult, aggregator *Aggregator) ExitReason {
	for {
		select {
		case <-shutdown:
			return ExitServerShutdown
		default:
		}

		select {
		case <-shutdown:
			return ExitServerShutdown

		case res := <-inboundCh:
			if res.err != nil {
				if errors.Is(res.err, wire.ErrMalformedRecord) {
					logging.Warn(ctx, "malformed record", zap.Error(res.err))
					continue
				}
				if errors.Is(res.err, io.EOF) {
					return ExitClientQuit
				}
				logging.Warn(ctx, "read error", zap.Error(res.err))
				return ExitClientQuit
			}
			if res.cmd.Ct == wire.CmdQuit {
				return ExitClientQuit
			}
			if err := aggregator.HandleCommand(ctx, res.cmd); err != nil {
				logging.Warn(ctx, "command rejected", zap.String("command", res.cmd.Ct), zap.String("room", res.cmd.R), zap.Error(err))
			}

		case evt := <-aggregator.Outbound():
			if err := d.transport.WriteEvent(evt); err != nil {
				logging.Error(ctx, "failed to write event", zap.Error(err))
				return ExitTransportFailed
			}
		}
	}
}

func loginSuccessfulEvent(sessionID, userID string, metas []room.Metadata) wire.Event {
	rooms := make([]wire.RoomMeta, 0, len(metas))
	for _, m := range metas {
		rooms = append(rooms, wire.RoomMeta{Name: m.Name, Description: m.Description})
	}
	return wire.NewLoginSuccessful(sessionID, userID, rooms)
}
