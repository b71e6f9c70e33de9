// Package server implements the TCP acceptor: binding the chat listener,
// spawning a session driver per accepted connection, and coordinating
// graceful shutdown across every live driver.
package server

import (
	"context"
	"fmt"
	"net"
	"sync"

	"chatserver/internal/v1/logging"
	"chatserver/internal/v1/room"
	"chatserver/internal/v1/session"

	"go.uber.org/zap"
)

// Acceptor binds one TCP port and spawns a session.Driver per accepted
// connection. It satisfies health.ListenerChecker so the admin HTTP
// surface can report readiness without importing this package's internals.
type Acceptor struct {
	addr      string
	directory *room.Directory

	mu       sync.Mutex
	listener net.Listener
	ready    bool

	shutdown chan struct{}
	wg       sync.WaitGroup
}

// NewAcceptor returns an Acceptor bound to addr (e.g. ":8080") once Run is
// called, serving rooms from directory.
func NewAcceptor(addr string, directory *room.Directory) *Acceptor {
	return &Acceptor{
		addr:      addr,
		directory: directory,
		shutdown:  make(chan struct{}),
	}
}

// Ready reports whether the listener is currently bound and accepting.
func (a *Acceptor) Ready() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ready
}

// Run binds the listener and accepts connections until ctx is cancelled,
// spawning one session driver per connection and broadcasting shutdown to
// all of them on the way out. It returns once every spawned driver has
// exited.
func (a *Acceptor) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.addr)
	if err != nil {
		return fmt.Errorf("server: listen on %s: %w", a.addr, err)
	}

	a.mu.Lock()
	a.listener = ln
	a.ready = true
	a.mu.Unlock()

	logging.Info(ctx, "chat listener bound", zap.String("addr", a.addr))

	stopWatcher := make(chan struct{})
	defer close(stopWatcher)
	go func() {
		select {
		case <-ctx.Done():
			a.beginShutdown()
		case <-stopWatcher:
		}
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-a.shutdown:
				a.wg.Wait()
				return nil
			default:
				return fmt.Errorf("server: accept: %w", err)
			}
		}

		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			driver := session.NewDriver(conn, a.directory)
			reason := driver.Run(a.shutdown)
			logging.Info(ctx, "session ended", zap.String("reason", string(reason)))
		}()
	}
}

// beginShutdown stops accepting new connections and broadcasts the
// shutdown signal to every running driver. It is idempotent.
func (a *Acceptor) beginShutdown() {
	a.mu.Lock()
	if !a.ready {
		a.mu.Unlock()
		return
	}
	a.ready = false
	ln := a.listener
	a.mu.Unlock()

	close(a.shutdown)
	if ln != nil {
		ln.Close()
	}
}
