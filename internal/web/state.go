package web

import (
	"sync"

	"procmux/internal/domain"
)

// State is the daemon's in-memory view of the persisted descriptors, keyed
// by group key. It is pre-loaded from the repository at boot and refreshed
// by the data-dir watcher.
type State struct {
	repo   domain.Repository
	logger domain.Logger

	mu      sync.RWMutex
	servers map[string]*domain.ServerProcess
}

func NewState(repo domain.Repository, logger domain.Logger) *State {
	return &State{
		repo:    repo,
		logger:  logger,
		servers: make(map[string]*domain.ServerProcess),
	}
}

// Reload replaces the cache with the repository's current contents.
func (s *State) Reload() error {
	all, err := s.repo.All()
	if err != nil {
		return err
	}
	servers := make(map[string]*domain.ServerProcess, len(all))
	for _, server := range all {
		servers[server.GroupKey] = server
	}

	s.mu.Lock()
	s.servers = servers
	s.mu.Unlock()
	s.logger.Debug("refreshed server state", "count", len(servers))
	return nil
}

// Lookup returns the descriptor cached under key.
func (s *State) Lookup(key string) (*domain.ServerProcess, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	server, ok := s.servers[key]
	return server, ok
}

// Put caches a descriptor under its group key.
func (s *State) Put(server *domain.ServerProcess) {
	s.mu.Lock()
	s.servers[server.GroupKey] = server
	s.mu.Unlock()
}
