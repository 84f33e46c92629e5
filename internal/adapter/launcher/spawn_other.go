//go:build !unix

package launcher

import "procmux/internal/domain"

// NewPlatformSpawner selects the spawner for the host platform, once at
// startup. Platforms without a session primitive spawn plainly.
func NewPlatformSpawner(logger domain.Logger) domain.Spawner {
	return NewPlainSpawner(logger)
}
