// Package unix holds the platform-specific process primitives used by keepself:
// process groups, tree kill, signal delivery, exit status mapping and debugger detection.
package unix
