//go:build !linux && !darwin

package unix

// DebuggerAttached - not detectable on this platform
func DebuggerAttached() bool {
	return false
}
