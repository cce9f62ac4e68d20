package keepself

import (
	"context"
	"os"
	"path/filepath"
	"time"
)

// Token is a held liveness token. While it is held the worker is alive and
// has not asked to be killed.
type Token interface {
	// Release lets the host observe an explicit kill request. It is safe to call more than once.
	Release() error
}

// Rendezvous is a named liveness token shared by a worker and its host.
// The worker creates and holds it; the host only waits for its release.
type Rendezvous interface {
	// CreateAndHold creates the named token and holds it until Release.
	// It fails with ErrTokenExists when a live holder already owns the name.
	CreateAndHold(name string) (Token, error)

	// WaitForRelease blocks until the named token exists and is then released.
	// requested is true when the holder released it explicitly and false when
	// the holder went away without releasing it. Cancelling ctx returns ctx.Err().
	WaitForRelease(ctx context.Context, name string) (requested bool, err error)

	// Remove deletes whatever is left of the named token
	Remove(name string) error
}

// FileRendezvous implements Rendezvous with a lock file and a state file per token
// inside Dir. The worker holds an exclusive file lock on <name>.lock and publishes
// <name>.state once the lock is taken; the state records whether the lock was
// released on purpose. A worker that dies drops its lock without updating the state.
type FileRendezvous struct {
	// Dir holds the token files
	Dir string
	// PollInterval bounds how long the host waits between checks for a token
	PollInterval time.Duration
}

// NewFileRendezvous returns a FileRendezvous rooted at dir
func NewFileRendezvous(dir string, pollInterval time.Duration) *FileRendezvous {
	if pollInterval <= 0 {
		pollInterval = DefaultKillPollInterval
	}
	return &FileRendezvous{
		Dir:          dir,
		PollInterval: pollInterval,
	}
}

func (r *FileRendezvous) poll() time.Duration {
	if r.PollInterval <= 0 {
		return DefaultKillPollInterval
	}
	return r.PollInterval
}

func (r *FileRendezvous) paths(name string) (lockPath, statePath string) {
	base := filepath.Join(r.Dir, name)
	return base + TokenLockSuffix, base + TokenStateSuffix
}

// Remove deletes the lock and state files of the named token
func (r *FileRendezvous) Remove(name string) error {
	lockPath, statePath := r.paths(name)

	merr := &MultiError{}
	for _, p := range []string{statePath, lockPath} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			merr.Add(err)
		}
	}
	return merr.Err()
}
