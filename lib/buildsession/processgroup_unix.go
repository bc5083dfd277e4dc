// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build unix

package buildsession

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// startInProcessGroup puts the command in its own process group so
// that a kill reaches the process and everything it spawned, and makes
// context cancellation kill the whole group.
func startInProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return killProcessGroup(cmd.Process.Pid)
	}
}

// killProcessGroup sends SIGKILL to the process group led by pid.
func killProcessGroup(pid int) error {
	return unix.Kill(-pid, unix.SIGKILL)
}
