package services

import (
	"context"
	"time"
)

// Start serves HTTP and starts the realtime event forwarder. It returns once
// the listener is bound or has failed to bind; a failure after that is
// logged. Both run until bgCtx is cancelled or Shutdown is called.
func (m *Manager) Start(bgCtx context.Context) error {
	ctx, cancel := context.WithCancel(bgCtx)
	m.serveCancel = cancel

	errCh := make(chan error, 1)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		errCh <- m.server.Start(ctx)
	}()

	// Start reports a bind failure immediately; otherwise it blocks until
	// ctx is done. Give it a moment to fail before declaring success.
	select {
	case err := <-errCh:
		if err != nil {
			cancel()
			return err
		}
	case <-time.After(startupGrace):
		go func() {
			if err := <-errCh; err != nil {
				m.logger.Error("HTTP server stopped", "error", err)
			}
		}()
	}

	if err := m.rtServer.StartBackgroundTasks(ctx); err != nil {
		cancel()
		return err
	}
	m.logger.Info("Message store started", "addr", m.server.Addr())
	return nil
}

var startupGrace = 100 * time.Millisecond
