package keepself

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionUninitialized(t *testing.T) {
	for name, s := range map[string]*Session{"nil": nil, "zero": {}} {
		t.Run(name, func(t *testing.T) {
			_, err := s.Role()
			assert.ErrorIs(t, err, ErrNotInitialized)

			_, err = s.IsWorker()
			assert.ErrorIs(t, err, ErrNotInitialized)

			_, ok, err := s.SessionID()
			assert.ErrorIs(t, err, ErrNotInitialized)
			assert.False(t, ok)

			_, ok, err = s.ParentPID()
			assert.ErrorIs(t, err, ErrNotInitialized)
			assert.False(t, ok)

			_, err = s.RequestKill()
			assert.ErrorIs(t, err, ErrNotInitialized)

			assert.False(t, s.Supervised())
			assert.Equal(t, FeatureNone, s.Features())
		})
	}
}

func TestHostSession(t *testing.T) {
	s := newHostSession(DefaultFeatures, true)

	role, err := s.Role()
	require.NoError(t, err)
	assert.Equal(t, RoleHost, role)

	worker, err := s.IsWorker()
	require.NoError(t, err)
	assert.False(t, worker)

	_, ok, err := s.SessionID()
	require.NoError(t, err)
	assert.False(t, ok, "hosts have no session id")

	_, ok, err = s.ParentPID()
	require.NoError(t, err)
	assert.False(t, ok, "hosts have no parent host")

	requested, err := s.RequestKill()
	require.NoError(t, err)
	assert.False(t, requested)

	assert.True(t, s.Supervised())
	assert.Equal(t, DefaultFeatures, s.Features())
}

func TestWorkerSession(t *testing.T) {
	s := newWorkerSession(Identity{SessionID: 42, ParentPID: 99, Features: FeatureForceGCBeforeRun})

	role, err := s.Role()
	require.NoError(t, err)
	assert.Equal(t, RoleWorker, role)
	assert.Equal(t, "worker", role.String())

	id, ok, err := s.SessionID()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint32(42), id)

	parent, ok, err := s.ParentPID()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 99, parent)

	// Not armed
	requested, err := s.RequestKill()
	require.NoError(t, err)
	assert.False(t, requested)
}

func TestMarkInitializedOnce(t *testing.T) {
	resetProcessGuards(t)

	require.NoError(t, markInitialized())
	assert.True(t, errors.Is(markInitialized(), ErrAlreadyInitialized))
	assert.True(t, errors.Is(markInitialized(), ErrAlreadyInitialized))
}

func TestSessionCounterWrap(t *testing.T) {
	var c sessionCounter
	c.v.Store(math.MaxUint32 - 1)

	assert.Equal(t, uint32(math.MaxUint32), c.Next())
	assert.Equal(t, sessionWrapValue, c.Next(), "overflow restarts at 2^31")
	assert.Equal(t, sessionWrapValue+1, c.Next())
}

func TestSessionCounterConcurrent(t *testing.T) {
	var (
		c    sessionCounter
		mu   sync.Mutex
		seen = make(map[uint32]struct{})
		wg   sync.WaitGroup
	)

	const goroutines, perGoroutine = 16, 200
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			prev := uint32(0)
			for i := 0; i < perGoroutine; i++ {
				id := c.Next()
				if id <= prev {
					t.Errorf("id %d not above previous %d", id, prev)
				}
				prev = id

				mu.Lock()
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, goroutines*perGoroutine, "ids must be unique")
	_, zero := seen[0]
	assert.False(t, zero, "0 is never handed out")
}

func TestRoleString(t *testing.T) {
	assert.Equal(t, "host", RoleHost.String())
	assert.Equal(t, "worker", RoleWorker.String())
	assert.Equal(t, "unknown", Role(9).String())
}
