package domain

import "context"

// Repository is the persisted store of reference records. One record exists
// per (context, caller) pair; its body is a full copy of the descriptor it
// aliases.
type Repository interface {
	// FindByGroupKey returns the descriptor embedded in any record whose
	// group key equals key, or ErrNotFound.
	FindByGroupKey(key string) (*ServerProcess, error)
	// Put writes or overwrites the record at (ctxID, callerID).
	Put(ctxID, callerID string, s *ServerProcess) error
	// Get returns the record location and descriptor, or ErrNotFound.
	Get(ctxID, callerID string) (string, *ServerProcess, error)
	// Delete removes the record at (ctxID, callerID).
	Delete(ctxID, callerID string) error
	// IsSoleReference reports whether no other record embeds the same group
	// key as the record at location.
	IsSoleReference(location string) (bool, error)
	// OrphanCandidates returns all records whose owning context process is
	// gone or whose backend process is gone. A non-empty ctxID narrows the
	// scan to that context.
	OrphanCandidates(ctxID string) ([]Reference, error)
	// All returns every readable record keyed by location.
	All() (map[string]*ServerProcess, error)
}

// LaunchResult is the outcome of a successful spawn.
type LaunchResult struct {
	PID      int
	URL      string
	BasePath string
	Headers  map[string]string
}

// Launcher builds the backend command and environment, allocates a port and
// spawns the backend process.
type Launcher interface {
	Launch(identity, authToken string) (LaunchResult, error)
}

// Spawner starts the backend executable and returns its pid. The detached
// implementation places the child in its own session so that process-group
// cleanup in the caller cannot collaterally kill the backend.
type Spawner interface {
	Spawn(argv []string, env []string) (pid int, err error)
}

// Prober polls a backend's readiness endpoint with bounded retries. It
// never fails; the caller decides what exhaustion means.
type Prober interface {
	WaitUntilReady(ctx context.Context, url string) bool
}

// TokenGenerator creates cryptographically secure auth tokens.
type TokenGenerator interface {
	Generate() (string, error)
}

// ProcessController answers liveness questions about and terminates host
// processes.
type ProcessController interface {
	// Exists reports whether a process with the given id is alive. The id
	// is a string because context ids travel as strings.
	Exists(pid string) bool
	// Terminate signals the process (and its tree where the platform
	// allows) to stop. A process that is already gone is not an error.
	Terminate(pid int) error
}

// Logger provides structured logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}
