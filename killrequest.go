package keepself

import (
	"context"
	"sync/atomic"

	"vawter.tech/stopper"
)

// killArmed allows a single kill-request arming per process
var killArmed atomic.Bool

// killRequest is the worker side of the kill-request protocol: a held token
// and a one-shot channel that tells the holder goroutine to release it.
type killRequest struct {
	name      string
	requested atomic.Bool
	signal    chan struct{}
	sctx      *stopper.Context
}

// armKillRequest creates and holds the token for this worker session.
// Arming is final: it cannot be repeated in the same process, even after release.
func armKillRequest(r Rendezvous, name string, log logSink) (*killRequest, error) {
	if !killArmed.CompareAndSwap(false, true) {
		return nil, ErrAlreadyArmed
	}

	token, err := r.CreateAndHold(name)
	if err != nil {
		return nil, err
	}

	k := &killRequest{
		name:   name,
		signal: make(chan struct{}),
		sctx:   stopper.WithContext(context.Background()),
	}

	k.sctx.Go(func(sctx *stopper.Context) error {
		select {
		case <-k.signal:
		case <-sctx.Stopping():
			if !k.requested.Load() {
				return nil
			}
		}
		if err := token.Release(); err != nil {
			log.Warn("Release liveness token {Name} fail. {Error}", name, err)
		}
		return nil
	})

	return k, nil
}

// request signals the holder goroutine. Only the first call returns true.
func (k *killRequest) request() bool {
	if !k.requested.CompareAndSwap(false, true) {
		return false
	}
	close(k.signal)
	return true
}
