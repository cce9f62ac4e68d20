//go:build unix

package keepself

import (
	"os"
	"syscall"
)

// defaultSignals are the host signals that request shutdown and are forwarded to the worker
func defaultSignals() []os.Signal {
	return []os.Signal{syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM}
}

// shutdownSignal is forwarded when shutdown is requested without a signal
var shutdownSignal os.Signal = syscall.SIGTERM
