package keepself

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"slices"
	"strings"

	"github.com/axondata/go-keepself/internal/unix"
)

// LaunchSpec describes how to start a worker
type LaunchSpec struct {
	// Path is the executable to run
	Path string
	// Dir is the working directory; empty means the host's
	Dir string
	// Args are the arguments after the program name
	Args []string
	// Env is the worker environment; nil inherits the host's
	Env []string
	// ShareProcessGroup keeps the worker in the host's process group. It can
	// then read from the terminal, but Kill reaches only the worker process.
	ShareProcessGroup bool
}

// Clone returns a copy of s that shares no slices with it
func (s LaunchSpec) Clone() LaunchSpec {
	s.Args = slices.Clone(s.Args)
	s.Env = slices.Clone(s.Env)
	return s
}

// CurrentLaunchSpec describes the current process: its executable, working
// directory and arguments.
func CurrentLaunchSpec() (LaunchSpec, error) {
	path, err := os.Executable()
	if err != nil {
		return LaunchSpec{}, fmt.Errorf("resolving executable: %w", err)
	}

	dir, err := os.Getwd()
	if err != nil {
		return LaunchSpec{}, fmt.Errorf("resolving working directory: %w", err)
	}

	var args []string
	if len(os.Args) > 1 {
		args = slices.Clone(os.Args[1:])
	}

	return LaunchSpec{
		Path: path,
		Dir:  dir,
		Args: args,
	}, nil
}

// withIdentity returns a copy of s carrying the encoded identity value in the
// environment and, unless omitArg is set, as the trailing argument pair.
func (s LaunchSpec) withIdentity(argName, envName, value string, omitArg bool) LaunchSpec {
	out := s.Clone()

	if !omitArg {
		out.Args = append(out.Args, argName, value)
	}

	env := out.Env
	if env == nil {
		env = os.Environ()
	}
	prefix := envName + "="
	env = slices.DeleteFunc(env, func(kv string) bool {
		return strings.HasPrefix(kv, prefix)
	})
	out.Env = append(env, prefix+value)

	return out
}

// Worker is a running worker process
type Worker interface {
	// Pid returns the operating system process id
	Pid() int
	// Signal delivers sig to the worker process
	Signal(sig os.Signal) error
	// Kill forcibly terminates the worker and its process tree
	Kill() error
	// Wait blocks until the worker exits and returns its exit code. It may be called repeatedly.
	Wait() (int, error)
	// Exited reports whether the worker has exited
	Exited() bool
}

// StartFunc starts a worker from a launch specification
type StartFunc func(spec LaunchSpec) (Worker, error)

// WorkerLifecycle intercepts worker starts and exits
type WorkerLifecycle interface {
	// OnStarting starts the worker, usually by calling start
	OnStarting(spec LaunchSpec, start StartFunc) (Worker, error)
	// OnExited runs after the worker exited and returns the worker whose exit code is used
	OnExited(w Worker) Worker
}

// BaseLifecycle is a WorkerLifecycle that changes nothing. Embed it to override one hook.
type BaseLifecycle struct{}

// OnStarting calls start
func (BaseLifecycle) OnStarting(spec LaunchSpec, start StartFunc) (Worker, error) {
	return start(spec)
}

// OnExited returns w
func (BaseLifecycle) OnExited(w Worker) Worker {
	return w
}

// ExecStart is the default StartFunc. The worker shares the host's standard
// streams and, unless spec.ShareProcessGroup is set, leads its own process
// group so Kill reaches its whole tree.
func ExecStart(spec LaunchSpec) (Worker, error) {
	cmd := exec.Command(spec.Path, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = spec.Env
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if !spec.ShareProcessGroup {
		cmd.SysProcAttr = unix.ProcessGroupAttr()
	}

	if err := cmd.Start(); err != nil {
		return nil, &OpError{Op: OpStart, Target: spec.Path, Err: err}
	}

	w := &execWorker{
		cmd:   cmd,
		group: !spec.ShareProcessGroup,
		done:  make(chan struct{}),
	}
	go w.reap()

	return w, nil
}

// execWorker is a Worker backed by exec.Cmd
type execWorker struct {
	cmd   *exec.Cmd
	group bool
	done  chan struct{}
	code  int
	err   error
}

func (w *execWorker) reap() {
	err := w.cmd.Wait()

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		err = nil
	}

	if ps := w.cmd.ProcessState; ps != nil {
		w.code = unix.ExitCode(ps)
	} else {
		w.code = -1
	}
	if err != nil {
		w.err = &OpError{Op: OpWait, Target: fmt.Sprintf("pid %d", w.Pid()), Err: err}
	}
	close(w.done)
}

func (w *execWorker) Pid() int {
	return w.cmd.Process.Pid
}

func (w *execWorker) Signal(sig os.Signal) error {
	if w.Exited() {
		return os.ErrProcessDone
	}
	return unix.Signal(w.Pid(), sig)
}

func (w *execWorker) Kill() error {
	if w.Exited() {
		return nil
	}
	if !w.group {
		// The group is the host's own
		return w.cmd.Process.Kill()
	}
	return unix.KillTree(w.Pid())
}

func (w *execWorker) Wait() (int, error) {
	<-w.done
	return w.code, w.err
}

func (w *execWorker) Exited() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}
