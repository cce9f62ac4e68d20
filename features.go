package keepself

import (
	"fmt"
	"math/bits"
	"strings"
)

// Features is a bitset of independently togglable supervision behaviors
type Features uint32

const (
	// FeatureExitWhenHostExited makes a worker exit when its host process is gone
	FeatureExitWhenHostExited Features = 1 << iota
	// FeatureSkipWhenDebuggerAttached disables supervision while a debugger is attached
	FeatureSkipWhenDebuggerAttached
	// FeatureForceGCBeforeRun forces a garbage collection before the first worker starts
	FeatureForceGCBeforeRun
	// FeatureForceGCAfterWorkerExited forces a garbage collection after each worker exit
	FeatureForceGCAfterWorkerExited
	// FeatureDisableForceKillByHost turns off the kill-request protocol
	FeatureDisableForceKillByHost
)

// FeatureNone is the empty feature set
const FeatureNone Features = 0

// DefaultFeatures is the feature set of a fresh HostOptions
const DefaultFeatures = FeatureExitWhenHostExited | FeatureSkipWhenDebuggerAttached

// Feature name constants
const (
	featureExitWhenHostExitedStr       = "exit-when-host-exited"
	featureSkipWhenDebuggerAttachedStr = "skip-when-debugger-attached"
	featureForceGCBeforeRunStr         = "force-gc-before-run"
	featureForceGCAfterWorkerExitedStr = "force-gc-after-worker-exited"
	featureDisableForceKillByHostStr   = "disable-force-kill-by-host"
)

var featureNames = []struct {
	flag Features
	name string
}{
	{FeatureExitWhenHostExited, featureExitWhenHostExitedStr},
	{FeatureSkipWhenDebuggerAttached, featureSkipWhenDebuggerAttachedStr},
	{FeatureForceGCBeforeRun, featureForceGCBeforeRunStr},
	{FeatureForceGCAfterWorkerExited, featureForceGCAfterWorkerExitedStr},
	{FeatureDisableForceKillByHost, featureDisableForceKillByHostStr},
}

// Has reports whether every bit of target is set in f
func (f Features) Has(target Features) bool {
	return f&target == target
}

// With returns f with the bits of target set
func (f Features) With(target Features) Features {
	return f | target
}

// Without returns f with the bits of target cleared
func (f Features) Without(target Features) Features {
	return f &^ target
}

// String returns the feature names joined by "|"; unnamed bits are printed in hex
func (f Features) String() string {
	if f == FeatureNone {
		return "none"
	}

	var parts []string
	rest := f
	for _, fn := range featureNames {
		if f.Has(fn.flag) {
			parts = append(parts, fn.name)
			rest = rest.Without(fn.flag)
		}
	}
	if rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", uint32(rest)))
	}
	return strings.Join(parts, "|")
}

// Names returns the names of the known features set in f
func (f Features) Names() []string {
	names := make([]string, 0, bits.OnesCount32(uint32(f)))
	for _, fn := range featureNames {
		if f.Has(fn.flag) {
			names = append(names, fn.name)
		}
	}
	return names
}

// ParseFeature returns the feature with the given name
func ParseFeature(name string) (Features, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, fn := range featureNames {
		if fn.name == name {
			return fn.flag, nil
		}
	}
	return FeatureNone, fmt.Errorf("unknown feature: %q", name)
}

// ParseFeatures combines the named features into one set
func ParseFeatures(names []string) (Features, error) {
	var f Features
	for _, name := range names {
		flag, err := ParseFeature(name)
		if err != nil {
			return FeatureNone, err
		}
		f = f.With(flag)
	}
	return f, nil
}
