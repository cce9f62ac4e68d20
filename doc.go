// Package keepself makes a program supervise itself without an external
// supervisor daemon.
//
// A program calls Handle (or TryHandle) first thing in main. The first
// invocation becomes the host: it launches a copy of the same executable as
// the worker, waits for it, and restarts it when it exits. The worker is
// recognized by an identity record the host appends to its arguments, and
// Handle returns to let it run the program's normal work:
//
//	func main() {
//	    session := keepself.Handle(os.Args[1:],
//	        keepself.WithExcludeRestartExitCodes(0),
//	    )
//
//	    run(session)
//	}
//
// Termination signals received by the host (SIGINT, SIGQUIT and SIGTERM on
// unix) stop supervision and are forwarded to the worker. The host then
// exits with the worker's exit code.
//
// # Kill Requests
//
// A worker can ask its host to force-kill it, together with every process it
// started, by calling Session.RequestKill. The request travels through a
// liveness token: the worker holds a file lock for as long as it runs and
// releases it on request. The host waits for that lock and kills the worker's
// process group once it is released.
//
//	if ok, err := session.RequestKill(); err == nil && ok {
//	    select {} // the host kills this process
//	}
//
// # Switching Supervision Off
//
// Supervision is skipped when the --No-Keep-Self argument is present, when
// the NoKeepSelf environment variable is set to a value other than "0" or
// "false", or when a debugger is attached and FeatureSkipWhenDebuggerAttached
// is enabled. Handle then returns a host session without starting a worker.
//
// # Supervising Other Programs
//
// NewSupervisor runs any executable as the worker. With
// WithOmitIdentityArgument the identity record is only passed in the
// KEEP_SELF_WORKER environment variable, so the worker's arguments stay
// unchanged. The keepself command in cmd/keepself wraps this.
package keepself
