package keepself

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Argument and environment variable names
const (
	// DefaultWorkerArgumentName is the argument that carries the worker identity record
	DefaultWorkerArgumentName = "--Keep-Self"

	// DefaultNoKeepSelfArgumentName disables supervision when present on the command line
	DefaultNoKeepSelfArgumentName = "--No-Keep-Self"

	// DefaultNoKeepSelfEnvName disables supervision when set to a truthy value
	DefaultNoKeepSelfEnvName = "NoKeepSelf"

	// DefaultWorkerEnvName is the environment variable that carries the worker identity record
	DefaultWorkerEnvName = "KEEP_SELF_WORKER"
)

// Timing defaults
const (
	// DefaultRestartDelay is the pause between a worker exit and the next start
	DefaultRestartDelay = 1 * time.Second

	// DefaultStartFailRetryDelay is the pause after a failed start or wait
	DefaultStartFailRetryDelay = 3 * time.Second

	// DefaultKillPollInterval is how often the host looks for a worker's liveness token
	DefaultKillPollInterval = 100 * time.Millisecond

	// DefaultParentPollInterval is how often a worker checks that its host is still alive
	DefaultParentPollInterval = 1 * time.Second

	// DefaultStopGrace is the grace period given to background goroutines on close
	DefaultStopGrace = 100 * time.Millisecond
)

// Identity record layout
const (
	// identitySentinel is the first byte of every encoded identity record.
	// It keeps arbitrary base64-looking user input from decoding as a record.
	identitySentinel byte = 0

	// IdentitySize is the size of the binary identity record in bytes
	IdentitySize = 13

	identitySessionStart  = 1
	identitySessionEnd    = 5
	identityParentStart   = 5
	identityParentEnd     = 9
	identityFeaturesStart = 9
	identityFeaturesEnd   = 13
)

// sessionWrapValue replaces 0 when the session counter overflows
const sessionWrapValue uint32 = 1 << 31

// Token files
const (
	// TokenLockSuffix is the suffix of the lock file held by a worker
	TokenLockSuffix = ".lock"

	// TokenStateSuffix is the suffix of the state file published by a worker
	TokenStateSuffix = ".state"

	tokenStateHeld     = "held"
	tokenStateReleased = "released"
)

// File modes
const (
	// DirMode is the mode for the token directory
	DirMode = 0o700

	// FileMode is the mode for token files
	FileMode = 0o600
)

// DefaultTokenDir returns the directory used for liveness tokens when none is configured.
// It is per user because the directory is created with DirMode.
func DefaultTokenDir() string {
	return filepath.Join(os.TempDir(), fmt.Sprintf("keepself-%d", os.Getuid()))
}

// TokenName derives the liveness token name for one worker session of a host
func TokenName(hostPID int, sessionID uint32) string {
	return fmt.Sprintf("keepself-%d-%d", hostPID, sessionID)
}

// Operation identifies the supervision step an error came from
type Operation int

const (
	// OpUnknown represents an unknown operation
	OpUnknown Operation = iota
	// OpResolve decides the role of the current process
	OpResolve
	// OpStart launches a worker
	OpStart
	// OpWait waits for a worker to exit
	OpWait
	// OpKill force-kills a worker process tree
	OpKill
	// OpSignal forwards a signal to a worker
	OpSignal
	// OpArm arms the worker side of the kill-request protocol
	OpArm
	// OpWatch waits for a worker's kill request
	OpWatch
	// OpRelease releases a liveness token
	OpRelease
)

// Operation string constants
const (
	opUnknownStr = "unknown"
	opResolveStr = "resolve"
	opStartStr   = "start"
	opWaitStr    = "wait"
	opKillStr    = "kill"
	opSignalStr  = "signal"
	opArmStr     = "arm"
	opWatchStr   = "watch"
	opReleaseStr = "release"
)

// String returns the string representation of an Operation
func (op Operation) String() string {
	switch op {
	case OpResolve:
		return opResolveStr
	case OpStart:
		return opStartStr
	case OpWait:
		return opWaitStr
	case OpKill:
		return opKillStr
	case OpSignal:
		return opSignalStr
	case OpArm:
		return opArmStr
	case OpWatch:
		return opWatchStr
	case OpRelease:
		return opReleaseStr
	default:
		return opUnknownStr
	}
}
