//go:build linux || darwin

package unix

import "syscall"

// ProcAttr places a child in its own process group so the whole group can be signalled.
func ProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}
