//go:build linux

package unix

import (
	"bufio"
	"os"
	"strconv"
	"strings"
)

// DebuggerAttached reports whether a tracer such as a debugger is attached to this process
func DebuggerAttached() bool {
	f, err := os.Open("/proc/self/status")
	if err != nil {
		return false
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		rest, ok := strings.CutPrefix(scanner.Text(), "TracerPid:")
		if !ok {
			continue
		}
		pid, err := strconv.Atoi(strings.TrimSpace(rest))
		return err == nil && pid != 0
	}
	return false
}
