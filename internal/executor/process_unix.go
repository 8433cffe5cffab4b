//go:build unix

package executor

import (
	"os/exec"
	"syscall"
)

const sigTerm = syscall.SIGTERM

// setProcessGroup запускает процесс лидером новой группы,
// чтобы сигналы доходили до всех его потомков.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// signalGroup посылает сигнал всей группе процессов.
func signalGroup(cmd *exec.Cmd, sig syscall.Signal) {
	if cmd.Process == nil {
		return
	}
	// Отрицательный pid — вся группа; ESRCH означает, что группы уже нет.
	_ = syscall.Kill(-cmd.Process.Pid, sig)
}

// killGroup посылает SIGKILL всей группе процессов.
func killGroup(cmd *exec.Cmd) {
	signalGroup(cmd, syscall.SIGKILL)
}
