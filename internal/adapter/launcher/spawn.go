package launcher

import (
	"errors"
	"fmt"
	"os/exec"
	"syscall"

	"procmux/internal/domain"
)

// PlainSpawner starts the backend as a regular child process. Used on
// platforms without a session primitive.
type PlainSpawner struct {
	logger domain.Logger
}

// NewPlainSpawner creates a spawner without process isolation.
func NewPlainSpawner(logger domain.Logger) *PlainSpawner {
	return &PlainSpawner{logger: logger}
}

// Spawn starts the backend process and returns its pid.
func (s *PlainSpawner) Spawn(argv []string, env []string) (int, error) {
	return startProcess(argv, env, nil)
}

func startProcess(argv []string, env []string, attr *syscall.SysProcAttr) (int, error) {
	if len(argv) == 0 {
		return 0, errors.New("empty backend command")
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = env
	cmd.SysProcAttr = attr
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start %s: %w", argv[0], err)
	}
	pid := cmd.Process.Pid
	// Reap the child when it exits so it cannot linger as a zombie.
	go func() { _ = cmd.Wait() }()
	return pid, nil
}
