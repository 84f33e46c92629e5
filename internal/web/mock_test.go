package web

import (
	"sync"

	"procmux/internal/domain"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// stubRepo serves a fixed record set; mutating calls are no-ops.
type stubRepo struct {
	mu      sync.Mutex
	records map[string]*domain.ServerProcess
}

func newStubRepo() *stubRepo {
	return &stubRepo{records: make(map[string]*domain.ServerProcess)}
}

func (r *stubRepo) FindByGroupKey(key string) (*domain.ServerProcess, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.records {
		if s.GroupKey == key {
			return s, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *stubRepo) Put(ctxID, callerID string, s *domain.ServerProcess) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[ctxID+"_"+callerID] = s
	return nil
}

func (r *stubRepo) Get(ctxID, callerID string) (string, *domain.ServerProcess, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.records[ctxID+"_"+callerID]
	if !ok {
		return "", nil, domain.ErrNotFound
	}
	return ctxID + "_" + callerID, s, nil
}

func (r *stubRepo) Delete(ctxID, callerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, ctxID+"_"+callerID)
	return nil
}

func (r *stubRepo) IsSoleReference(string) (bool, error) { return true, nil }

func (r *stubRepo) OrphanCandidates(string) ([]domain.Reference, error) { return nil, nil }

func (r *stubRepo) All() (map[string]*domain.ServerProcess, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]*domain.ServerProcess, len(r.records))
	for k, v := range r.records {
		out[k] = v
	}
	return out, nil
}

// stubProcs reports every pid alive unless marked dead.
type stubProcs struct {
	mu   sync.Mutex
	dead map[string]bool
}

func newStubProcs() *stubProcs {
	return &stubProcs{dead: make(map[string]bool)}
}

func (p *stubProcs) Exists(pid string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.dead[pid]
}

func (p *stubProcs) Terminate(int) error { return nil }

func (p *stubProcs) markDead(pid string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dead[pid] = true
}
