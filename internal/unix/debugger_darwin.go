//go:build darwin

package unix

import (
	"os"

	xunix "golang.org/x/sys/unix"
)

// pTraced is P_TRACED from sys/proc.h
const pTraced = 0x00000800

// DebuggerAttached reports whether a tracer such as a debugger is attached to this process
func DebuggerAttached() bool {
	kp, err := xunix.SysctlKinfoProc("kern.proc.pid", os.Getpid())
	if err != nil {
		return false
	}
	return kp.Proc.P_flag&pTraced != 0
}
