//go:build unix

package unix

import (
	"errors"
	"fmt"
	"os"
	"syscall"

	xunix "golang.org/x/sys/unix"
)

// ProcessGroupAttr starts the child as the leader of a new process group,
// so the whole tree can be signalled through the group id.
func ProcessGroupAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

// KillTree sends SIGKILL to the process group led by pid and to pid itself.
// A group or process that is already gone is not an error.
func KillTree(pid int) error {
	if pid <= 0 {
		return fmt.Errorf("invalid pid %d", pid)
	}

	groupErr := xunix.Kill(-pid, xunix.SIGKILL)
	procErr := xunix.Kill(pid, xunix.SIGKILL)

	switch {
	case groupErr == nil || procErr == nil:
		return nil
	case errors.Is(procErr, xunix.ESRCH) && errors.Is(groupErr, xunix.ESRCH):
		return nil
	default:
		return procErr
	}
}

// Signal delivers sig to pid
func Signal(pid int, sig os.Signal) error {
	s, ok := sig.(syscall.Signal)
	if !ok {
		return fmt.Errorf("unsupported signal %v", sig)
	}
	return xunix.Kill(pid, s)
}

// ExitCode maps a finished process to a shell-style exit code:
// 128 plus the signal number when the process was killed by a signal.
func ExitCode(state *os.ProcessState) int {
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return state.ExitCode()
}

// Alive reports whether a process with the given pid exists
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := xunix.Kill(pid, 0)
	return err == nil || errors.Is(err, xunix.EPERM)
}
