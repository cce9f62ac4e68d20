//go:build !unix

package unix

import (
	"errors"
	"os"
	"syscall"
)

// ProcessGroupAttr returns nil; process groups are not used on this platform
func ProcessGroupAttr() *syscall.SysProcAttr {
	return nil
}

// KillTree kills pid only
func KillTree(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}

// Signal - not supported on this platform
func Signal(_ int, _ os.Signal) error {
	return errors.New("signal delivery not supported on this platform")
}

// ExitCode returns the process exit code
func ExitCode(state *os.ProcessState) int {
	return state.ExitCode()
}

// Alive reports whether a process with the given pid can be opened
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	_ = p.Release()
	return true
}
