//go:build !unix

package keepself

import (
	"context"
)

// CreateAndHold - not supported on this platform
func (r *FileRendezvous) CreateAndHold(name string) (Token, error) {
	return nil, &OpError{Op: OpArm, Target: name, Err: ErrUnsupported}
}

// WaitForRelease - not supported on this platform
func (r *FileRendezvous) WaitForRelease(_ context.Context, name string) (bool, error) {
	return false, &OpError{Op: OpWatch, Target: name, Err: ErrUnsupported}
}
