//go:build unix

package launcher

import (
	"syscall"

	"procmux/internal/domain"
)

// DetachedSpawner starts the backend in its own session so that
// process-group cleanup in the caller (for example during a caller restart)
// cannot collaterally kill the backend.
type DetachedSpawner struct {
	logger domain.Logger
}

// NewDetachedSpawner creates a session-isolating spawner.
func NewDetachedSpawner(logger domain.Logger) *DetachedSpawner {
	return &DetachedSpawner{logger: logger}
}

// Spawn starts the backend process in a new session and returns its pid.
func (s *DetachedSpawner) Spawn(argv []string, env []string) (int, error) {
	return startProcess(argv, env, &syscall.SysProcAttr{Setsid: true})
}

// NewPlatformSpawner selects the spawner for the host platform, once at
// startup.
func NewPlatformSpawner(logger domain.Logger) domain.Spawner {
	return NewDetachedSpawner(logger)
}
