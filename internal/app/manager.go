package app

import (
	"context"
	"crypto/subtle"
	"errors"
	"strconv"
	"sync"

	"procmux/internal/domain"
)

// Manager orchestrates the backend lifecycle: it deduplicates starts per
// group key, reference-counts callers through the repository and tears a
// backend down only when its last reference disappears. One Manager is
// constructed at process start; it owns the global shutdown lock.
type Manager struct {
	repo   domain.Repository
	launch domain.Launcher
	prober domain.Prober
	tokens domain.TokenGenerator
	procs  domain.ProcessController
	logger domain.Logger

	// shutdownMu serializes shutdowns across all group keys.
	shutdownMu sync.Mutex

	// creating holds one lock per group key so concurrent first-time
	// starts cannot both miss the lookup and spawn duplicate backends.
	createMu sync.Mutex
	creating map[string]*sync.Mutex
}

// NewManager creates the lifecycle orchestrator with all dependencies
// injected.
func NewManager(
	repo domain.Repository,
	launch domain.Launcher,
	prober domain.Prober,
	tokens domain.TokenGenerator,
	procs domain.ProcessController,
	logger domain.Logger,
) *Manager {
	return &Manager{
		repo:     repo,
		launch:   launch,
		prober:   prober,
		tokens:   tokens,
		procs:    procs,
		logger:   logger,
		creating: make(map[string]*sync.Mutex),
	}
}

// StartForKernelSession starts (or aliases) a backend for a kernel session.
// The returned descriptor carries a non-empty error list on operational
// failure; the only error returned is an ArgumentError for malformed input.
func (m *Manager) StartForKernelSession(ctx context.Context, callerID, ctxID string, shared bool) (*domain.ServerProcess, error) {
	req, err := domain.NewKernelStartRequest(callerID, ctxID, shared)
	if err != nil {
		return nil, err
	}
	return m.start(ctx, req), nil
}

// StartForLauncherSession starts (or aliases) a backend for a launcher
// session. The caller id is fixed to the reserved launcher identity;
// authToken may be empty, in which case one is minted.
func (m *Manager) StartForLauncherSession(ctx context.Context, ctxID string, shared bool, authToken string) (*domain.ServerProcess, error) {
	req, err := domain.NewLauncherStartRequest(ctxID, shared, authToken)
	if err != nil {
		return nil, err
	}
	return m.start(ctx, req), nil
}

// start runs the protocol: cleanup orphans, look the group key up, alias an
// existing backend or create a new one, persist the caller's reference.
// Operational failures are folded into the returned descriptor.
func (m *Manager) start(ctx context.Context, req domain.StartRequest) *domain.ServerProcess {
	// Stale entries go first so a dead backend cannot be aliased.
	m.SweepOrphans(req.CtxID())

	identity := domain.Identity(req.CallerID(), req.Shared())
	key := domain.MakeGroupKey(req.CtxID(), identity)
	m.logger.Debug("starting backend", "ctx", req.CtxID(), "identity", identity, "shared", req.Shared())

	unlock := m.lockKey(key)
	defer unlock()

	existing, err := m.repo.FindByGroupKey(key)
	switch {
	case err == nil:
		m.logger.Debug("found existing server for aliasing", "group_key", key)
		if err := m.repo.Put(req.CtxID(), req.CallerID(), existing); err != nil {
			m.logger.Error("failed to persist reference record", "group_key", key, "err", err)
			return domain.FailedServer(domain.UnknownFailure(err))
		}
		return existing
	case !errors.Is(err, domain.ErrNotFound):
		m.logger.Error("group key lookup failed", "group_key", key, "err", err)
		return domain.FailedServer(domain.UnknownFailure(err))
	}

	authToken := req.Token()
	if authToken == "" {
		authToken, err = m.tokens.Generate()
		if err != nil {
			m.logger.Error("failed to mint auth token", "err", err)
			return domain.FailedServer(domain.UnknownFailure(err))
		}
	}

	server, failure := m.createServer(ctx, identity, key, req, authToken)
	if failure != nil {
		m.logger.Error("error starting backend server", "group_key", key, "err", failure)
		return domain.FailedServer(failure)
	}

	if err := m.repo.Put(req.CtxID(), req.CallerID(), server); err != nil {
		m.logger.Error("failed to persist first reference record", "group_key", key, "err", err)
		// The backend has no reference on disk; stop it rather than leak it.
		if termErr := m.procs.Terminate(server.PID); termErr != nil {
			m.logger.Error("terminate unreferenced backend failed", "pid", server.PID, "err", termErr)
		}
		return domain.FailedServer(domain.UnknownFailure(err))
	}
	return server
}

// createServer spawns a new backend, verifies readiness and assembles its
// descriptor. A backend that never reports ready is terminated before the
// failure is returned.
func (m *Manager) createServer(ctx context.Context, identity, key string, req domain.StartRequest, authToken string) (*domain.ServerProcess, *domain.StartFailure) {
	res, err := m.launch.Launch(identity, authToken)
	if err != nil {
		var failure *domain.StartFailure
		if errors.As(err, &failure) {
			return nil, failure
		}
		return nil, domain.UnknownFailure(err)
	}

	server := &domain.ServerProcess{
		ServerURL:   res.URL,
		BasePath:    res.BasePath,
		Headers:     res.Headers,
		PID:         res.PID,
		ParentCtx:   req.CtxID(),
		AbsoluteURL: res.URL + res.BasePath,
		GroupKey:    key,
		Kind:        domain.KindFor(req.Shared()),
		AuthToken:   authToken,
	}

	if !m.prober.WaitUntilReady(ctx, server.AbsoluteURL) {
		m.logger.Error("backend server never became ready, terminating", "pid", res.PID, "url", server.AbsoluteURL)
		if err := m.procs.Terminate(res.PID); err != nil {
			m.logger.Error("terminate backend failed", "pid", res.PID, "err", err)
		}
		return nil, domain.ReadinessFailure()
	}
	return server, nil
}

// Shutdown removes the caller's reference and terminates the backend when
// that reference was the last one. Missing arguments, a missing reference
// and a wrong token are quiet no-ops; unexpected failures propagate.
func (m *Manager) Shutdown(ctxID, callerID, authToken string) error {
	if ctxID == "" || callerID == "" || authToken == "" {
		m.logger.Debug("shutdown called with missing arguments, ignoring")
		return nil
	}

	location, server, err := m.repo.Get(ctxID, callerID)
	if errors.Is(err, domain.ErrNotFound) {
		m.logger.Debug("reference record not found", "ctx", ctxID, "caller", callerID)
		return nil
	}
	if err != nil {
		m.logger.Error("shutdown lookup failed", "ctx", ctxID, "caller", callerID, "err", err)
		return err
	}

	if subtle.ConstantTimeCompare([]byte(authToken), []byte(server.AuthToken)) != 1 {
		m.logger.Error("authentication failure during shutdown", "ctx", ctxID, "caller", callerID, "err", domain.ErrTokenMismatch)
		return nil
	}

	// One lock for all group keys: two concurrent shutdowns for the same
	// key must not both observe a sole reference before either deletes
	// its own record.
	m.shutdownMu.Lock()
	defer m.shutdownMu.Unlock()

	sole, err := m.repo.IsSoleReference(location)
	if err != nil {
		m.logger.Error("sole-reference test failed", "location", location, "err", err)
		return err
	}
	if sole {
		if err := m.procs.Terminate(server.PID); err != nil {
			m.logger.Error("terminate backend failed", "pid", server.PID, "err", err)
		}
	}
	if err := m.repo.Delete(ctxID, callerID); err != nil {
		m.logger.Error("delete reference failed", "ctx", ctxID, "caller", callerID, "err", err)
		return err
	}
	return nil
}

// SweepOrphans removes references whose owning context or backend process
// is gone, terminating still-running backends of dead contexts. ctxID
// narrows the sweep to one context; empty sweeps everything. Best-effort:
// failures are logged, never returned.
func (m *Manager) SweepOrphans(ctxID string) {
	refs, err := m.repo.OrphanCandidates(ctxID)
	if err != nil {
		m.logger.Debug("orphan scan failed", "err", err)
		return
	}
	for _, ref := range refs {
		if m.procs.Exists(strconv.Itoa(ref.Server.PID)) {
			if err := m.procs.Terminate(ref.Server.PID); err != nil {
				m.logger.Debug("terminate orphaned backend failed", "pid", ref.Server.PID, "err", err)
			}
		}
		if err := m.repo.Delete(ref.CtxID, ref.CallerID); err != nil {
			m.logger.Debug("delete orphaned reference failed", "location", ref.Location, "err", err)
		}
	}
	if len(refs) > 0 {
		m.logger.Debug("removed orphaned references", "count", len(refs))
	}
}

// ReferenceStatus pairs a persisted reference with backend liveness.
type ReferenceStatus struct {
	Location string
	Server   *domain.ServerProcess
	Alive    bool
}

// List returns every persisted reference with its backend's liveness.
func (m *Manager) List() ([]ReferenceStatus, error) {
	all, err := m.repo.All()
	if err != nil {
		return nil, err
	}
	out := make([]ReferenceStatus, 0, len(all))
	for location, server := range all {
		out = append(out, ReferenceStatus{
			Location: location,
			Server:   server,
			Alive:    m.procs.Exists(strconv.Itoa(server.PID)),
		})
	}
	return out, nil
}

func (m *Manager) lockKey(key string) func() {
	m.createMu.Lock()
	lk, ok := m.creating[key]
	if !ok {
		lk = &sync.Mutex{}
		m.creating[key] = lk
	}
	m.createMu.Unlock()
	lk.Lock()
	return lk.Unlock
}
