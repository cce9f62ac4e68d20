package keepself

import (
	"context"
	"errors"

	"vawter.tech/stopper"
)

// killWatcher is the host side of the kill-request protocol for one worker session
type killWatcher struct {
	rv     Rendezvous
	name   string
	cancel context.CancelFunc
	sctx   *stopper.Context
}

// watchKillRequest starts waiting for the worker's token to be released.
// cb runs at most once: with true when the worker asked to be killed, with
// false when the wait failed, for example because the worker died holding
// the token. Closing the watcher first suppresses cb and destroys the token.
func watchKillRequest(r Rendezvous, name string, cb func(waitSuccess bool)) *killWatcher {
	ctx, cancel := context.WithCancel(context.Background())

	w := &killWatcher{
		rv:     r,
		name:   name,
		cancel: cancel,
		sctx:   stopper.WithContext(ctx),
	}

	w.sctx.Go(func(sctx *stopper.Context) error {
		requested, err := r.WaitForRelease(ctx, name)
		switch {
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, ErrUnsupported):
			return nil
		case err != nil:
			cb(false)
		default:
			cb(requested)
		}
		return nil
	})

	return w
}

// Close stops the wait, joins the watcher goroutine and removes the token
// files the worker left behind
func (w *killWatcher) Close() error {
	w.cancel()
	w.sctx.Stop(DefaultStopGrace)

	merr := &MultiError{}
	merr.Add(w.sctx.Wait())
	merr.Add(w.rv.Remove(w.name))
	return merr.Err()
}
