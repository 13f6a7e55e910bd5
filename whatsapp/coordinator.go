package whatsapp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"whatsapp-relay-bot/utils"

	"github.com/rs/zerolog"
)

// DefaultReadyTimeout bounds the wait for a rebuilt client to come up.
const DefaultReadyTimeout = 60 * time.Second

// clientManager is the slice of the lifecycle the coordinator drives.
type clientManager interface {
	Build(ctx context.Context) (Handle, error)
	Publish(h Handle)
	Clear()
	Current() (Handle, bool)
}

// watchdog is the keep-alive timer for the current client generation.
type watchdog interface {
	Start()
	Stop()
}

// Coordinator serializes restarts: at most one teardown and rebuild runs at
// a time, and every concurrent requester shares that one outcome.
type Coordinator struct {
	manager      clientManager
	keepalive    watchdog
	readyTimeout time.Duration
	log          zerolog.Logger

	mu       sync.Mutex
	inflight *restartOp
}

// restartOp is the in-flight coordination token. Late requesters wait on
// done and read the same handle/err the operation settled with.
type restartOp struct {
	reason    string
	startedAt time.Time
	done      chan struct{}
	handle    Handle
	err       error
}

func NewCoordinator(manager clientManager, keepalive watchdog, readyTimeout time.Duration, log zerolog.Logger) *Coordinator {
	if readyTimeout <= 0 {
		readyTimeout = DefaultReadyTimeout
	}
	return &Coordinator{
		manager:      manager,
		keepalive:    keepalive,
		readyTimeout: readyTimeout,
		log:          log.With().Str("component", "coordinator").Logger(),
	}
}

// Restart tears down the current client and builds a new one. If a restart
// is already in flight the call joins it: no second teardown starts and the
// caller receives the in-flight operation's outcome. Reasons of joiners are
// logged only.
func (c *Coordinator) Restart(ctx context.Context, reason string) (Handle, error) {
	c.mu.Lock()
	if op := c.inflight; op != nil {
		c.mu.Unlock()
		c.log.Info().Str("reason", reason).Str("inflight", op.reason).
			Msg("Restart already in flight, joining")
		select {
		case <-op.done:
			return op.handle, op.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	op := &restartOp{
		reason:    reason,
		startedAt: time.Now(),
		done:      make(chan struct{}),
	}
	c.inflight = op
	c.mu.Unlock()

	// The marker must clear on every path or no restart could ever run
	// again after a failure.
	defer func() {
		c.mu.Lock()
		c.inflight = nil
		c.mu.Unlock()
		close(op.done)
	}()

	op.handle, op.err = c.execute(reason)
	if op.err != nil {
		utils.RestartFailures.Inc()
		c.log.Error().Err(op.err).Str("reason", reason).Msg("Restart failed")
	} else {
		utils.RestartDuration.Observe(time.Since(op.startedAt).Seconds())
		c.log.Info().Str("reason", reason).
			Dur("took", time.Since(op.startedAt)).Msg("Restart complete")
	}
	return op.handle, op.err
}

// execute runs the teardown and rebuild sequence. It deliberately does not
// take the requester's context: the operation is shared by every waiter and
// must not die with the first one.
func (c *Coordinator) execute(reason string) (Handle, error) {
	c.log.Warn().Str("reason", reason).Msg("Restarting WhatsApp client")
	utils.RestartsTotal.WithLabelValues(reason).Inc()

	// The old generation's timer must be gone before its handle is.
	c.keepalive.Stop()

	if old, ok := c.manager.Current(); ok {
		if err := old.Destroy(context.Background()); err != nil {
			c.log.Warn().Err(err).Msg("Teardown of old client failed, continuing")
		}
	}
	c.manager.Clear()

	handle, err := c.manager.Build(context.Background())
	if err != nil {
		return nil, fmt.Errorf("client rebuild failed: %w", err)
	}

	select {
	case <-handle.Ready():
	case <-time.After(c.readyTimeout):
		if derr := handle.Destroy(context.Background()); derr != nil {
			c.log.Warn().Err(derr).Msg("Teardown of unready client failed")
		}
		c.manager.Clear()
		return nil, fmt.Errorf("client not ready within %s", c.readyTimeout)
	}

	c.manager.Publish(handle)
	c.keepalive.Start()
	return handle, nil
}

// RequestAsync is the fire-and-forget entry point for event callbacks and
// the health monitor. The outcome is logged by Restart itself.
func (c *Coordinator) RequestAsync(reason string) {
	go func() {
		_, _ = c.Restart(context.Background(), reason)
	}()
}
