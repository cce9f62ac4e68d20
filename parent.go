package keepself

import (
	"context"
	"os"
	"time"

	"github.com/axondata/go-keepself/internal/unix"
	"vawter.tech/stopper"
)

// parentWatch ends a worker whose host has gone away
type parentWatch struct {
	parentPID int
	interval  time.Duration
	getppid   func() int
	alive     func(pid int) bool
	exit      func(code int)
	log       logSink
}

func newParentWatch(parentPID int, interval time.Duration, log logSink) *parentWatch {
	if interval <= 0 {
		interval = DefaultParentPollInterval
	}
	return &parentWatch{
		parentPID: parentPID,
		interval:  interval,
		getppid:   os.Getppid,
		alive:     unix.Alive,
		exit:      os.Exit,
		log:       log,
	}
}

// gone reports whether the host has exited. A worker started through a
// wrapper has a different parent, so the host pid must also be dead.
func (p *parentWatch) gone() bool {
	return p.getppid() != p.parentPID && !p.alive(p.parentPID)
}

// start checks the host every interval until it is gone, then exits with code 1
func (p *parentWatch) start() *stopper.Context {
	sctx := stopper.WithContext(context.Background())

	sctx.Go(func(sctx *stopper.Context) error {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			if p.gone() {
				p.log.Error("Parent process {ParentProcessId} exited. Current process will shutdown now.", p.parentPID)
				p.exit(1)
				return nil
			}

			select {
			case <-sctx.Stopping():
				return nil
			case <-ticker.C:
			}
		}
	})

	return sctx
}
