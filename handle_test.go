package keepself

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryHandleOptOutArgument(t *testing.T) {
	resetProcessGuards(t)

	out, err := TryHandle(context.Background(), []string{"serve", DefaultNoKeepSelfArgumentName}, quietOptions(t)...)
	require.NoError(t, err)
	assert.False(t, out.Hosted)

	role, err := out.Session.Role()
	require.NoError(t, err)
	assert.Equal(t, RoleHost, role)
	assert.False(t, out.Session.Supervised())
}

func TestTryHandleOptOutEnv(t *testing.T) {
	tests := []struct {
		value  string
		optOut bool
	}{
		{value: "1", optOut: true},
		{value: "true", optOut: true},
		{value: "0", optOut: false},
		{value: "FALSE", optOut: false},
		{value: "", optOut: false},
	}

	for _, tt := range tests {
		t.Run("value "+tt.value, func(t *testing.T) {
			resetProcessGuards(t)
			t.Setenv("KEEPSELF_TEST_OFF", tt.value)

			seq := &startSequence{workers: []func(LaunchSpec) (Worker, error){exitWith(0)}}
			out, err := TryHandle(context.Background(), nil, quietOptions(t,
				WithNoKeepSelfEnvName("KEEPSELF_TEST_OFF"),
				WithStart(seq.Start),
				WithLaunchSource(func() (LaunchSpec, error) { return testBase, nil }),
				WithExcludeRestartExitCodes(0),
			)...)
			require.NoError(t, err)

			assert.Equal(t, !tt.optOut, out.Hosted)
			assert.Equal(t, !tt.optOut, out.Session.Supervised())
			if tt.optOut {
				assert.Empty(t, seq.Specs())
			} else {
				assert.Len(t, seq.Specs(), 1)
			}
		})
	}
}

func TestTryHandleTwice(t *testing.T) {
	resetProcessGuards(t)

	_, err := TryHandle(context.Background(), []string{DefaultNoKeepSelfArgumentName}, quietOptions(t)...)
	require.NoError(t, err)

	_, err = TryHandle(context.Background(), []string{DefaultNoKeepSelfArgumentName}, quietOptions(t)...)
	assert.ErrorIs(t, err, ErrAlreadyInitialized)
}

func TestTryHandleInvalidOptions(t *testing.T) {
	resetProcessGuards(t)

	_, err := TryHandle(context.Background(), nil, quietOptions(t, WithWorkerArgumentName(""))...)
	assert.ErrorIs(t, err, ErrBlankName)
}

func TestTryHandleHost(t *testing.T) {
	resetProcessGuards(t)

	seq := &startSequence{workers: []func(LaunchSpec) (Worker, error){exitWith(4), exitWith(6)}}
	out, err := TryHandle(context.Background(), []string{"serve"}, quietOptions(t,
		WithStart(seq.Start),
		WithLaunchSource(func() (LaunchSpec, error) { return testBase, nil }),
		WithExcludeRestartExitCodes(6),
	)...)
	require.NoError(t, err)

	assert.True(t, out.Hosted)
	assert.True(t, out.HasExitCode)
	assert.Equal(t, 6, out.ExitCode)
	assert.True(t, out.Session.Supervised())

	isWorker, err := out.Session.IsWorker()
	require.NoError(t, err)
	assert.False(t, isWorker)
}

func TestTryHandleLaunchSourceError(t *testing.T) {
	resetProcessGuards(t)

	_, err := TryHandle(context.Background(), nil, quietOptions(t,
		WithLaunchSource(func() (LaunchSpec, error) { return LaunchSpec{}, errors.New("no executable") }),
	)...)

	var opErr *OpError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, OpResolve, opErr.Op)
}

func TestTryHandleWorkerFromArgument(t *testing.T) {
	resetProcessGuards(t)

	value := EncodeIdentity(Identity{SessionID: 7, ParentPID: int32(os.Getpid()), Features: FeatureDisableForceKillByHost})
	out, err := TryHandle(context.Background(), []string{"serve", DefaultWorkerArgumentName, value}, quietOptions(t)...)
	require.NoError(t, err)
	assert.False(t, out.Hosted)

	id, ok, err := out.Session.SessionID()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint32(7), id)

	parent, ok, err := out.Session.ParentPID()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, os.Getpid(), parent)
	assert.Equal(t, FeatureDisableForceKillByHost, out.Session.Features())

	requested, err := out.Session.RequestKill()
	require.NoError(t, err)
	assert.False(t, requested, "kill requests are disabled by the host")
}

func TestTryHandleWorkerFromEnvironment(t *testing.T) {
	resetProcessGuards(t)

	value := EncodeIdentity(Identity{SessionID: 8, ParentPID: int32(os.Getpid()), Features: FeatureDisableForceKillByHost})
	t.Setenv(DefaultWorkerEnvName, value)

	out, err := TryHandle(context.Background(), []string{"serve"}, quietOptions(t)...)
	require.NoError(t, err)

	isWorker, err := out.Session.IsWorker()
	require.NoError(t, err)
	assert.True(t, isWorker)

	_, set := os.LookupEnv(DefaultWorkerEnvName)
	assert.False(t, set, "the identity variable is cleared for the worker's own children")
}

func TestTryHandleWorkerArgumentWithoutValue(t *testing.T) {
	resetProcessGuards(t)

	seq := &startSequence{workers: []func(LaunchSpec) (Worker, error){exitWith(0)}}
	out, err := TryHandle(context.Background(), []string{DefaultWorkerArgumentName}, quietOptions(t,
		WithStart(seq.Start),
		WithLaunchSource(func() (LaunchSpec, error) { return testBase, nil }),
		WithExcludeRestartExitCodes(0),
	)...)
	require.NoError(t, err)
	assert.True(t, out.Hosted, "a trailing argument name without a value is not an identity")
}

func TestTryHandleInvalidIdentity(t *testing.T) {
	resetProcessGuards(t)

	_, err := TryHandle(context.Background(), []string{DefaultWorkerArgumentName, "garbage"}, quietOptions(t)...)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidIdentity)

	var opErr *OpError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, OpResolve, opErr.Op)
	assert.Equal(t, DefaultWorkerArgumentName, opErr.Target)
}

func TestTryHandleWorkerArmsKillRequest(t *testing.T) {
	resetProcessGuards(t)

	dir := t.TempDir()
	hostPID := os.Getpid()
	value := EncodeIdentity(Identity{SessionID: 9, ParentPID: int32(hostPID), Features: FeatureNone})

	out, err := TryHandle(context.Background(), []string{DefaultWorkerArgumentName, value}, quietOptions(t, WithTokenDir(dir))...)
	require.NoError(t, err)
	if out.Session.kill == nil {
		t.Skip("liveness tokens are not supported on this platform")
	}

	rv := NewFileRendezvous(dir, 10*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result := make(chan bool, 1)
	go func() {
		requested, err := rv.WaitForRelease(ctx, TokenName(hostPID, 9))
		assert.NoError(t, err)
		result <- requested
	}()

	first, err := out.Session.RequestKill()
	require.NoError(t, err)
	assert.True(t, first)

	second, err := out.Session.RequestKill()
	require.NoError(t, err)
	assert.False(t, second)

	select {
	case requested := <-result:
		assert.True(t, requested)
	case <-time.After(5 * time.Second):
		t.Fatal("host did not observe the kill request")
	}
	assert.NoError(t, out.Session.kill.wait())
}
