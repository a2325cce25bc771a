package engine

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/planexec/internal/gitops"
	"github.com/fyrsmithlabs/planexec/internal/logging"
)

// cleanupTimeout bounds the index cleanup performed on shutdown.
const cleanupTimeout = 5 * time.Second

// SignalHandler owns the process signal subscription. It has an explicit
// Start/Stop lifecycle so tests and embedders control exactly when the
// process-global handlers are installed.
type SignalHandler struct {
	git   *gitops.Client
	audit *AuditLog
	log   *logging.Logger

	// exit is swapped in tests.
	exit func(code int)

	mu      sync.Mutex
	started bool
	sigCh   chan os.Signal
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewSignalHandler creates a handler that unstages pending changes and exits
// with the signal's conventional code. git may be nil when the run never
// opened a repository.
func NewSignalHandler(git *gitops.Client, audit *AuditLog, log *logging.Logger) *SignalHandler {
	if log == nil {
		log = logging.NewNop()
	}
	if audit == nil {
		audit = NewAuditLog(false, log)
	}
	return &SignalHandler{
		git:   git,
		audit: audit,
		log:   log.Named("signals"),
		exit:  os.Exit,
	}
}

// Start subscribes to SIGINT and SIGTERM. Calling Start twice is a no-op.
func (h *SignalHandler) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.started {
		return
	}
	h.started = true
	h.sigCh = make(chan os.Signal, 1)
	h.stopCh = make(chan struct{})
	signal.Notify(h.sigCh, syscall.SIGINT, syscall.SIGTERM)

	h.wg.Add(1)
	go h.loop(h.sigCh, h.stopCh)
}

// Stop unsubscribes and waits for the handler goroutine to drain. Safe to
// call without Start and safe to call twice.
func (h *SignalHandler) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.started {
		return
	}
	h.started = false
	signal.Stop(h.sigCh)
	close(h.stopCh)
	h.wg.Wait()
}

func (h *SignalHandler) loop(sigCh <-chan os.Signal, stopCh <-chan struct{}) {
	defer h.wg.Done()
	select {
	case sig := <-sigCh:
		h.handle(sig)
	case <-stopCh:
	}
}

// handle performs best-effort cleanup and exits. The working tree is left as
// the interrupted step left it; only the index is reset so the next run does
// not inherit a half-staged state.
func (h *SignalHandler) handle(sig os.Signal) {
	code := ExitInterrupt
	if sig == syscall.SIGTERM {
		code = ExitTerminated
	}

	h.audit.Record("signal_shutdown", map[string]string{
		"signal": sig.String(),
	})
	h.log.Warn("received signal, shutting down", zap.String("signal", sig.String()))

	if h.git != nil {
		ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
		defer cancel()
		if err := h.git.Unstage(ctx); err != nil {
			h.log.Error("failed to unstage during shutdown", zap.Error(err))
		}
	}

	_ = h.log.Sync()
	h.exit(code)
}
