package keepself

import (
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// SkipIfShort skips the test if running in short mode
func SkipIfShort(t *testing.T, reason string) {
	t.Helper()
	if testing.Short() {
		t.Skipf("Skipping in short mode: %s", reason)
	}
}

// resetProcessGuards clears the once-per-process guards so one test binary
// can initialize many sessions
func resetProcessGuards(t *testing.T) {
	t.Helper()
	processInitialized.Store(0)
	killArmed.Store(false)
	t.Cleanup(func() {
		processInitialized.Store(0)
		killArmed.Store(false)
	})
}

// wait stops the kill-request holder goroutine and joins it
func (k *killRequest) wait() error {
	k.sctx.Stop(DefaultStopGrace)
	return k.sctx.Wait()
}

// MockWorker is an in-memory Worker. It stays running until Exit, Kill or a
// signal handled by OnSignal ends it.
type MockWorker struct {
	pid  int
	done chan struct{}
	once sync.Once
	code int

	// WaitErr is returned by Wait
	WaitErr error
	// OnSignal maps a delivered signal to an exit code; nil ignores signals
	OnSignal func(sig os.Signal) (code int, exit bool)

	killed  atomic.Int32
	mu      sync.Mutex
	signals []os.Signal
}

// NewMockWorker returns a running MockWorker
func NewMockWorker(pid int) *MockWorker {
	return &MockWorker{
		pid:  pid,
		done: make(chan struct{}),
	}
}

// NewExitedWorker returns a MockWorker that has already exited with code
func NewExitedWorker(pid, code int) *MockWorker {
	w := NewMockWorker(pid)
	w.Exit(code)
	return w
}

// Exit ends the worker with code; later calls are ignored
func (w *MockWorker) Exit(code int) {
	w.once.Do(func() {
		w.code = code
		close(w.done)
	})
}

// Kills returns how many times Kill was called on a running worker
func (w *MockWorker) Kills() int {
	return int(w.killed.Load())
}

// Signals returns the signals delivered so far
func (w *MockWorker) Signals() []os.Signal {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]os.Signal(nil), w.signals...)
}

func (w *MockWorker) Pid() int { return w.pid }

func (w *MockWorker) Signal(sig os.Signal) error {
	if w.Exited() {
		return os.ErrProcessDone
	}
	w.mu.Lock()
	w.signals = append(w.signals, sig)
	w.mu.Unlock()

	if w.OnSignal != nil {
		if code, exit := w.OnSignal(sig); exit {
			w.Exit(code)
		}
	}
	return nil
}

func (w *MockWorker) Kill() error {
	if w.Exited() {
		return nil
	}
	w.killed.Add(1)
	w.Exit(137)
	return nil
}

func (w *MockWorker) Wait() (int, error) {
	<-w.done
	return w.code, w.WaitErr
}

func (w *MockWorker) Exited() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}

// startSequence returns a StartFunc that hands out workers in order and
// records every launch specification it was given
type startSequence struct {
	mu      sync.Mutex
	workers []func(spec LaunchSpec) (Worker, error)
	specs   []LaunchSpec
}

func (s *startSequence) Start(spec LaunchSpec) (Worker, error) {
	s.mu.Lock()
	i := len(s.specs)
	s.specs = append(s.specs, spec)
	s.mu.Unlock()

	if i >= len(s.workers) {
		return NewExitedWorker(1000+i, 0), nil
	}
	return s.workers[i](spec)
}

func (s *startSequence) Specs() []LaunchSpec {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]LaunchSpec(nil), s.specs...)
}

func exitWith(code int) func(LaunchSpec) (Worker, error) {
	return func(LaunchSpec) (Worker, error) {
		return NewExitedWorker(4242, code), nil
	}
}

func failWith(err error) func(LaunchSpec) (Worker, error) {
	return func(LaunchSpec) (Worker, error) {
		return nil, err
	}
}

// quietOptions are test options without logging, signal handling or delays
func quietOptions(t *testing.T, extra ...Option) []Option {
	t.Helper()
	opts := []Option{
		WithLogger(nil),
		WithSignals(),
		WithRestartDelay(0),
		WithStartFailRetryDelay(0),
		WithKillPollInterval(10 * time.Millisecond),
		WithTokenDir(t.TempDir()),
		WithFeatures(FeatureNone),
	}
	return append(opts, extra...)
}
