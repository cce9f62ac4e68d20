package keepself

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"vawter.tech/stopper"
)

// Supervisor runs one worker at a time and restarts it when it exits
type Supervisor struct {
	opts    *HostOptions
	base    LaunchSpec
	hostPID int
	rv      Rendezvous
	log     logSink

	shutdown     atomic.Bool
	shutdownOnce sync.Once
	shutdownCh   chan struct{}

	mu          sync.Mutex
	session     uint32
	current     Worker
	killPending bool
}

// NewSupervisor creates a Supervisor that launches workers from base
func NewSupervisor(base LaunchSpec, opts ...Option) (*Supervisor, error) {
	return newSupervisor(base, NewHostOptions(opts...))
}

func newSupervisor(base LaunchSpec, o *HostOptions) (*Supervisor, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}
	if base.Path == "" {
		return nil, fmt.Errorf("launch specification has no executable path")
	}

	return &Supervisor{
		opts:       o,
		base:       base.Clone(),
		hostPID:    os.Getpid(),
		rv:         o.rendezvous(),
		log:        o.log(),
		shutdownCh: make(chan struct{}),
	}, nil
}

// Run supervises workers until shutdown is requested or a worker exits with
// an excluded code. ok is false when no worker produced a final exit code.
// Cancelling ctx requests shutdown like a termination signal. Run must not be
// called more than once.
func (s *Supervisor) Run(ctx context.Context) (code int, ok bool, err error) {
	stopSignals := s.handleSignals(ctx)
	defer stopSignals()

	s.forceGC(FeatureForceGCBeforeRun)

	var (
		failures int
		lastErr  error
	)

	for !s.shutdown.Load() {
		sessionID := sessionIDs.Next()

		code, done, err := s.runSession(sessionID)
		if err != nil {
			if s.shutdown.Load() {
				s.log.Debug("Start and wait worker process fail. And shutdown has requested. {Error}", err)
				return 0, false, nil
			}

			failures++
			lastErr = err
			if s.opts.MaxStartRetries > 0 && failures >= s.opts.MaxStartRetries {
				s.log.Error("Start and wait worker process fail {Failures} times. Giving up. {Error}", failures, err)
				return 0, false, fmt.Errorf("%w: %w", ErrStartRetriesExhausted, lastErr)
			}

			delay := s.retryDelay(failures)
			s.log.Error("Start and wait worker process fail. Retry after {StartFailRetryDelay}. {Error}", delay, err)
			s.sleep(delay)
			continue
		}
		failures = 0

		if done {
			return code, true, nil
		}
		if s.shutdown.Load() {
			return code, true, nil
		}

		s.log.Warn("Worker process for session {SessionId} exited with code {ExitCode}. A new process is about to start after {RestartDelay}.",
			sessionID, code, s.opts.RestartDelay)

		s.forceGC(FeatureForceGCAfterWorkerExited)
		s.sleep(s.opts.RestartDelay)
	}

	return 0, false, nil
}

// runSession starts one worker and waits for it. done is true when code is
// the final result of the supervisor.
func (s *Supervisor) runSession(sessionID uint32) (code int, done bool, err error) {
	s.mu.Lock()
	s.session = sessionID
	s.current = nil
	s.killPending = false
	s.mu.Unlock()
	defer s.setWorker(nil)

	if !s.opts.Features.Has(FeatureDisableForceKillByHost) {
		name := TokenName(s.hostPID, sessionID)
		if err := s.rv.Remove(name); err != nil {
			s.log.Warn("Remove stale liveness token {Name} fail. {Error}", name, err)
		}
		watcher := watchKillRequest(s.rv, name, func(waitSuccess bool) {
			s.onKillSignal(sessionID, waitSuccess)
		})
		defer func() {
			if err := watcher.Close(); err != nil {
				s.log.Warn("Destroy liveness token {Name} fail. {Error}", name, err)
			}
		}()
	}

	w, err := s.start(s.launchSpec(sessionID))
	if err != nil {
		return 0, false, err
	}
	s.setWorker(w)

	if s.shutdown.Load() {
		if err := w.Kill(); err != nil {
			s.log.Warn("Shutdown has requested. Host force kill worker process {ProcessId} fail. {Error}", w.Pid(), err)
			return 0, false, &OpError{Op: OpKill, Target: fmt.Sprintf("pid %d", w.Pid()), Err: err}
		}
		if _, err := w.Wait(); err != nil {
			return 0, false, err
		}
		code, err := s.exited(w).Wait()
		return code, err == nil, err
	}

	s.log.Debug("Worker process {ProcessId} for session {SessionId} was started.", w.Pid(), sessionID)

	if _, err := w.Wait(); err != nil {
		return 0, false, err
	}

	exited := s.exited(w)
	code, err = exited.Wait()
	if err != nil {
		return 0, false, err
	}

	if s.opts.ExcludesExitCode(code) {
		s.log.Info("Worker process {ProcessId} for session {SessionId} exited with code {ExitCode}. This exit code will not restart.",
			exited.Pid(), sessionID, code)
		return code, true, nil
	}

	return code, false, nil
}

func (s *Supervisor) launchSpec(sessionID uint32) LaunchSpec {
	value := EncodeIdentity(Identity{
		SessionID: sessionID,
		ParentPID: int32(s.hostPID),
		Features:  s.opts.Features,
	})
	spec := s.base.withIdentity(s.opts.WorkerArgumentName(), s.opts.WorkerEnvName(), value, s.opts.OmitIdentityArgument)
	spec.ShareProcessGroup = spec.ShareProcessGroup || s.opts.ShareProcessGroup
	return spec
}

func (s *Supervisor) start(spec LaunchSpec) (Worker, error) {
	var (
		w   Worker
		err error
	)
	if s.opts.Lifecycle != nil {
		w, err = s.opts.Lifecycle.OnStarting(spec, s.opts.Start)
	} else {
		w, err = s.opts.Start(spec)
	}
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, &OpError{Op: OpStart, Target: spec.Path, Err: ErrNilWorker}
	}
	return w, nil
}

func (s *Supervisor) exited(w Worker) Worker {
	if s.opts.Lifecycle == nil {
		return w
	}
	if replaced := s.opts.Lifecycle.OnExited(w); replaced != nil {
		return replaced
	}
	return w
}

func (s *Supervisor) setWorker(w Worker) {
	s.mu.Lock()
	s.current = w
	pending := w != nil && s.killPending
	s.killPending = false
	s.mu.Unlock()

	if pending {
		s.forceKill(w)
	}
}

// onKillSignal handles the kill watcher callback for one session
func (s *Supervisor) onKillSignal(sessionID uint32, waitSuccess bool) {
	s.mu.Lock()
	if s.session != sessionID {
		s.mu.Unlock()
		return
	}
	w := s.current
	if w == nil {
		// The worker asked before Start returned; kill it once it is known.
		s.killPending = s.killPending || waitSuccess
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if w.Exited() {
		return
	}

	switch {
	case waitSuccess:
		s.log.Warn("Signal for force kill by host received. Force kill worker process {ProcessId}.", w.Pid())
	case s.shutdown.Load():
		return
	default:
		s.log.Warn("Process kill signal wait fail. The process may have exited. Try to force kill the worker process {ProcessId}.", w.Pid())
	}

	s.forceKill(w)
}

func (s *Supervisor) forceKill(w Worker) {
	if w.Exited() {
		return
	}
	if err := w.Kill(); err != nil {
		s.log.Warn("Host force kill worker process {ProcessId} fail. {Error}", w.Pid(), err)
	}
}

// Shutdown stops supervision after the current worker exits and forwards sig
// to it. A nil sig only marks shutdown.
func (s *Supervisor) Shutdown(sig os.Signal) {
	s.shutdown.Store(true)
	s.shutdownOnce.Do(func() { close(s.shutdownCh) })

	if sig == nil {
		return
	}

	s.mu.Lock()
	w := s.current
	s.mu.Unlock()
	if w == nil {
		return
	}

	if err := w.Signal(sig); err != nil && !errors.Is(err, os.ErrProcessDone) {
		s.log.Warn("Send signal {Signal} to process {ProcessId} error. {Error}", sig, w.Pid(), err)
	}
}

// ShutdownRequested reports whether Shutdown was called or a signal arrived
func (s *Supervisor) ShutdownRequested() bool {
	return s.shutdown.Load()
}

// handleSignals captures the configured signals until the returned func is called
func (s *Supervisor) handleSignals(ctx context.Context) func() {
	ch := make(chan os.Signal, 1)
	if len(s.opts.Signals) > 0 {
		signal.Notify(ch, s.opts.Signals...)
	}

	sctx := stopper.WithContext(context.Background())
	sctx.Go(func(sctx *stopper.Context) error {
		for {
			select {
			case sig := <-ch:
				s.log.Debug("Occurs signal {Signal}.", sig)
				s.Shutdown(sig)
			case <-ctx.Done():
				s.log.Debug("Context done. {Error}", ctx.Err())
				s.Shutdown(shutdownSignal)
				<-sctx.Stopping()
				return nil
			case <-sctx.Stopping():
				return nil
			}
		}
	})

	return func() {
		signal.Stop(ch)
		sctx.Stop(DefaultStopGrace)
		_ = sctx.Wait()
	}
}

func (s *Supervisor) retryDelay(failures int) time.Duration {
	delay := s.opts.StartFailRetryDelay
	if s.opts.StartFailRetryMaxDelay <= 0 {
		return delay
	}
	for i := 1; i < failures && delay < s.opts.StartFailRetryMaxDelay; i++ {
		delay *= 2
	}
	return min(delay, s.opts.StartFailRetryMaxDelay)
}

// sleep waits for d or until shutdown is requested
func (s *Supervisor) sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-s.shutdownCh:
	}
}

func (s *Supervisor) forceGC(flag Features) {
	if s.opts.Features.Has(flag) {
		debug.FreeOSMemory()
	}
}
