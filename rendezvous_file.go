//go:build unix

package keepself

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gofrs/flock"
	"github.com/google/renameio/v2"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// fileToken is the worker's hold on a FileRendezvous token
type fileToken struct {
	name      string
	statePath string
	lock      *flock.Flock

	once sync.Once
	err  error
}

// CreateAndHold takes the token's file lock and then publishes its state file
func (r *FileRendezvous) CreateAndHold(name string) (Token, error) {
	if err := os.MkdirAll(r.Dir, DirMode); err != nil {
		return nil, &OpError{Op: OpArm, Target: name, Err: err}
	}

	lockPath, statePath := r.paths(name)

	lock := flock.New(lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, &OpError{Op: OpArm, Target: name, Err: err}
	}
	if !locked {
		return nil, &OpError{Op: OpArm, Target: name, Err: ErrTokenExists}
	}

	// The state file appears only after the lock is held, so a host that
	// sees it can never win the lock before the worker does.
	if err := writeTokenState(statePath, tokenStateHeld); err != nil {
		_ = lock.Unlock()
		return nil, &OpError{Op: OpArm, Target: name, Err: err}
	}

	return &fileToken{
		name:      name,
		statePath: statePath,
		lock:      lock,
	}, nil
}

// Release marks the token released and drops the lock
func (t *fileToken) Release() error {
	t.once.Do(func() {
		merr := &MultiError{}
		merr.Add(writeTokenState(t.statePath, tokenStateReleased))
		merr.Add(t.lock.Unlock())
		if err := merr.Err(); err != nil {
			t.err = &OpError{Op: OpRelease, Target: t.name, Err: err}
		}
	})
	return t.err
}

// WaitForRelease waits for the state file, then for the lock
func (r *FileRendezvous) WaitForRelease(ctx context.Context, name string) (bool, error) {
	lockPath, statePath := r.paths(name)

	if err := r.waitForFile(ctx, statePath); err != nil {
		return false, err
	}

	lock := flock.New(lockPath)
	locked, err := lock.TryLockContext(ctx, r.poll())
	if err != nil {
		return false, err
	}
	if !locked {
		return false, &OpError{Op: OpWatch, Target: name, Err: ErrTokenExists}
	}
	defer func() {
		_ = r.Remove(name)
		_ = lock.Unlock()
	}()

	data, err := os.ReadFile(statePath)
	if err != nil {
		return false, nil
	}
	return gjson.GetBytes(data, "state").String() == tokenStateReleased, nil
}

// waitForFile returns once path exists. Directory events wake it early; the
// ticker covers platforms and filesystems where events are not delivered.
func (r *FileRendezvous) waitForFile(ctx context.Context, path string) error {
	var (
		events <-chan fsnotify.Event
		errs   <-chan error
	)
	if watcher, err := fsnotify.NewWatcher(); err == nil {
		defer func() { _ = watcher.Close() }()
		if err := os.MkdirAll(r.Dir, DirMode); err == nil && watcher.Add(r.Dir) == nil {
			events = watcher.Events
			errs = watcher.Errors
		}
	}

	ticker := time.NewTicker(r.poll())
	defer ticker.Stop()

	for {
		if _, err := os.Stat(path); err == nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-events:
			if !ok {
				events = nil
			}
		case _, ok := <-errs:
			if !ok {
				errs = nil
			}
		case <-ticker.C:
		}
	}
}

func writeTokenState(path, state string) error {
	data, err := sjson.SetBytes(nil, "pid", os.Getpid())
	if err != nil {
		return fmt.Errorf("encoding token state: %w", err)
	}
	data, err = sjson.SetBytes(data, "state", state)
	if err != nil {
		return fmt.Errorf("encoding token state: %w", err)
	}
	return renameio.WriteFile(path, data, FileMode)
}
