package keepself

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/axondata/go-keepself/internal/unix"
)

// Outcome is the result of TryHandle
type Outcome struct {
	// Session describes the current process
	Session *Session

	// Hosted is true when this process ran as a host and supervision has
	// finished. The caller should exit instead of running its own work.
	Hosted bool

	// ExitCode is the final exit code of the last worker, valid when HasExitCode is set
	ExitCode int

	// HasExitCode is false when no worker produced a final exit code
	HasExitCode bool
}

// Handle resolves the role of the current process. In a host it supervises
// workers and then exits the process with the final worker exit code, or 0
// when there is none. In a worker, or when supervision is switched off, it
// returns the session and the caller runs its normal work. Errors end the
// process with exit code 1.
func Handle(args []string, opts ...Option) *Session {
	o := NewHostOptions(opts...)

	out, err := tryHandle(context.Background(), args, o)
	if err != nil {
		o.log().Error("Keep self fail. {Error}", err)
		if o.Logger == nil {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}

	if out.Hosted {
		os.Exit(out.ExitCode)
	}

	return out.Session
}

// TryHandle resolves the role of the current process from args, which are
// the arguments after the program name. It may be called once per process.
//
// The process runs unsupervised when the opt-out argument or environment
// variable is on, or when a debugger is attached and
// FeatureSkipWhenDebuggerAttached is set. A process launched with an
// identity record becomes a worker. Any other process becomes the host: it
// supervises copies of itself until shutdown and returns with Hosted set.
func TryHandle(ctx context.Context, args []string, opts ...Option) (Outcome, error) {
	return tryHandle(ctx, args, NewHostOptions(opts...))
}

func tryHandle(ctx context.Context, args []string, o *HostOptions) (Outcome, error) {
	if err := markInitialized(); err != nil {
		return Outcome{}, err
	}
	if err := o.Validate(); err != nil {
		return Outcome{}, err
	}

	log := o.log()

	if o.Features.Has(FeatureSkipWhenDebuggerAttached) && unix.DebuggerAttached() {
		log.Debug("Debugger attached. Keep self is skipped.")
		return Outcome{Session: newHostSession(o.Features, false)}, nil
	}

	if optedOut(args, o) {
		log.Debug("Keep self is disabled by {Argument} or {Environment}.", o.NoKeepSelfArgumentName(), o.NoKeepSelfEnvName())
		return Outcome{Session: newHostSession(o.Features, false)}, nil
	}

	if value, ok := identityValue(args, o); ok {
		id, err := DecodeIdentity(value)
		if err != nil {
			return Outcome{}, &OpError{Op: OpResolve, Target: o.WorkerArgumentName(), Err: err}
		}
		session, err := startWorkerSession(id, o)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Session: session}, nil
	}

	base, err := o.LaunchSource()
	if err != nil {
		return Outcome{}, &OpError{Op: OpResolve, Target: "launch specification", Err: err}
	}

	sup, err := newSupervisor(base, o)
	if err != nil {
		return Outcome{}, err
	}

	code, ok, err := sup.Run(ctx)
	return Outcome{
		Session:     newHostSession(o.Features, true),
		Hosted:      true,
		ExitCode:    code,
		HasExitCode: ok,
	}, err
}

// startWorkerSession applies the features the host sent to this worker
func startWorkerSession(id Identity, o *HostOptions) (*Session, error) {
	session := newWorkerSession(id)
	log := o.log()

	if id.Features.Has(FeatureExitWhenHostExited) {
		newParentWatch(int(id.ParentPID), o.ParentPollInterval, log).start()
	}

	if !id.Features.Has(FeatureDisableForceKillByHost) {
		kill, err := armKillRequest(o.rendezvous(), TokenName(int(id.ParentPID), id.SessionID), log)
		switch {
		case errors.Is(err, ErrUnsupported):
			log.Debug("Kill request is not supported on this platform.")
		case err != nil:
			return nil, err
		default:
			session.kill = kill
		}
	}

	log.Debug("Worker process for session {SessionId} of host {ParentProcessId} started.", id.SessionID, id.ParentPID)

	return session, nil
}

// optedOut reports whether the opt-out argument is present or the opt-out
// environment variable is on
func optedOut(args []string, o *HostOptions) bool {
	if slices.Contains(args, o.NoKeepSelfArgumentName()) {
		return true
	}
	return SwitchOn(os.Getenv(o.NoKeepSelfEnvName()))
}

// SwitchOn interprets an environment switch: blank, "0" and "false" in any
// case are off, every other value is on.
func SwitchOn(value string) bool {
	value = strings.TrimSpace(value)
	return value != "" && value != "0" && !strings.EqualFold(value, "false")
}

// identityValue finds the identity record in args, then in the environment.
// The environment variable is cleared so this worker's own children are not
// mistaken for workers.
func identityValue(args []string, o *HostOptions) (string, bool) {
	envValue, envSet := os.LookupEnv(o.WorkerEnvName())
	if envSet {
		_ = os.Unsetenv(o.WorkerEnvName())
	}

	if i := slices.Index(args, o.WorkerArgumentName()); i >= 0 && i < len(args)-1 {
		return args[i+1], true
	}

	if envSet && envValue != "" {
		return envValue, true
	}
	return "", false
}
