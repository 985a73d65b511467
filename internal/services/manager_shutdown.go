package services

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/syntrixbase/msgstore/internal/logging"
)

// flushLogs runs before a fatal exit, which skips the flush deferred in main.
var flushLogs = logging.Shutdown

// Shutdown stops the HTTP server, waits for in-flight work and closes the
// stores and event transports. It is safe to call more than once.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.shutdownOnce.Do(func() {
		m.shutdownErr = m.shutdown(ctx)
	})
	return m.shutdownErr
}

func (m *Manager) shutdown(ctx context.Context) error {
	var errs []error

	if m.server != nil {
		if err := m.server.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if m.serveCancel != nil {
		m.serveCancel()
	}

	m.logger.Info("Waiting for background tasks to finish...")
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("Timeout waiting for background tasks")
	}

	if err := m.closeResources(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// closeResources releases everything Init may have opened, in reverse order.
func (m *Manager) closeResources() error {
	var errs []error
	if m.publisher != nil {
		if err := m.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close publisher: %w", err))
		}
		m.publisher = nil
	}
	if m.broker != nil {
		if err := m.broker.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close broker: %w", err))
		}
	}
	if m.nats != nil {
		if err := m.nats.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close nats: %w", err))
		}
		m.nats = nil
	}
	if m.records != nil {
		if err := m.records.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close record store: %w", err))
		}
		m.records = nil
	}
	return errors.Join(errs...)
}

// halt runs when the engine reports that its stores have diverged. The
// process must not keep serving, so it shuts down and exits non-zero.
func (m *Manager) halt(cause error) {
	m.logger.Error("Store state diverged, shutting down", "error", cause)

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := m.Shutdown(ctx); err != nil {
		m.logger.Error("Shutdown after fatal error failed", "error", err)
	}
	if err := flushLogs(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to flush logs: %v\n", err)
	}
	m.opts.Exit(1)
}
