package whatsapp

import (
	"context"
	"sync"
	"time"

	"whatsapp-relay-bot/utils"

	"github.com/rs/zerolog"
)

// KeepAlive periodically probes the active client's connection state and
// requests a restart when it looks unrecoverable. Each Start binds a fresh
// ticker to the current client generation; the previous ticker is always
// cancelled first so two can never overlap.
type KeepAlive struct {
	interval time.Duration
	current  func() (Handle, bool)
	restart  func(reason string)
	log      zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

func NewKeepAlive(interval time.Duration, current func() (Handle, bool), log zerolog.Logger) *KeepAlive {
	return &KeepAlive{
		interval: interval,
		current:  current,
		restart:  func(string) {},
		log:      log.With().Str("component", "keepalive").Logger(),
	}
}

// BindRestart wires the restart sink. Must be called before Start.
func (k *KeepAlive) BindRestart(fn func(reason string)) {
	k.restart = fn
}

// Start arms the keep-alive ticker, replacing any previous one.
func (k *KeepAlive) Start() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.cancel != nil {
		k.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	k.cancel = cancel
	go k.run(ctx)
}

// Stop cancels the ticker. Called before the current generation is
// destroyed so a stale tick can never act on a dead handle.
func (k *KeepAlive) Stop() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.cancel != nil {
		k.cancel()
		k.cancel = nil
	}
}

func (k *KeepAlive) run(ctx context.Context) {
	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			k.tick(ctx)
		}
	}
}

// tick never lets anything escape; the keep-alive loop outlives every
// individual probe failure.
func (k *KeepAlive) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			k.log.Error().Interface("panic", r).Msg("Keep-alive check panicked")
		}
	}()

	handle, ok := k.current()
	if !ok {
		return
	}

	state, err := handle.State(ctx)
	reason, unhealthy := Verdict(state, err)
	switch {
	case unhealthy:
		utils.HealthChecks.WithLabelValues("unhealthy").Inc()
		k.log.Warn().Str("state", string(state)).Str("reason", reason).
			Msg("Client unhealthy, requesting restart")
		k.restart(reason)
	case err != nil:
		// Unknown probe failures are deliberately not acted on; restarting
		// on every ambiguous signal causes restart storms.
		utils.HealthChecks.WithLabelValues("error").Inc()
		k.log.Warn().Err(err).Msg("State query failed, ignoring")
	default:
		utils.HealthChecks.WithLabelValues("healthy").Inc()
	}
}

// Verdict classifies one health-check observation. A bad state or a
// detached-frame query failure means restart; any other failure is left
// alone.
func Verdict(state ConnectionState, err error) (reason string, unhealthy bool) {
	if err != nil {
		if IsDetachedFrameError(err) {
			return "detached-frame", true
		}
		return "", false
	}
	if IsBadState(state) {
		return "bad-state:" + string(state), true
	}
	return "", false
}
