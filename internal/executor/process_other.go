//go:build !unix

package executor

import (
	"os"
	"os/exec"
)

var sigTerm = os.Interrupt

func setProcessGroup(cmd *exec.Cmd) {}

// signalGroup на платформах без групп процессов сигналит только лидеру.
func signalGroup(cmd *exec.Cmd, sig os.Signal) {
	if cmd.Process == nil {
		return
	}
	_ = cmd.Process.Signal(sig)
}

func killGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = cmd.Process.Kill()
}
