//go:build windows

package main

import (
	"os/exec"
	"syscall"
)

// detach puts the server in its own process group so Ctrl+C doesn't reach it
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}
