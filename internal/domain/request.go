package domain

import "strings"

// StartRequest is the validated input of the start protocol. Both variants
// carry the same fields; construction enforces the per-variant rules.
type StartRequest interface {
	CallerID() string
	CtxID() string
	Shared() bool
	// Token returns the caller-supplied auth token, empty when the
	// orchestrator should mint one.
	Token() string
}

// KernelStartRequest starts a backend on behalf of a kernel session. The
// manager always mints the auth token for kernel sessions.
type KernelStartRequest struct {
	callerID string
	ctxID    string
	shared   bool
}

// NewKernelStartRequest validates and builds a kernel start request.
func NewKernelStartRequest(callerID, ctxID string, shared bool) (KernelStartRequest, error) {
	if err := validateStartArgs(callerID, ctxID, shared); err != nil {
		return KernelStartRequest{}, err
	}
	return KernelStartRequest{callerID: callerID, ctxID: ctxID, shared: shared}, nil
}

func (r KernelStartRequest) CallerID() string { return r.callerID }
func (r KernelStartRequest) CtxID() string    { return r.ctxID }
func (r KernelStartRequest) Shared() bool     { return r.shared }
func (r KernelStartRequest) Token() string    { return "" }

// LauncherStartRequest starts a backend on behalf of a launcher session.
// The caller id is fixed to the reserved launcher identity and the caller
// may supply the auth token the daemon was booted with.
type LauncherStartRequest struct {
	ctxID  string
	shared bool
	token  string
}

// NewLauncherStartRequest validates and builds a launcher start request.
func NewLauncherStartRequest(ctxID string, shared bool, authToken string) (LauncherStartRequest, error) {
	if err := validateStartArgs(LauncherCallerID, ctxID, shared); err != nil {
		return LauncherStartRequest{}, err
	}
	return LauncherStartRequest{ctxID: ctxID, shared: shared, token: authToken}, nil
}

func (r LauncherStartRequest) CallerID() string { return LauncherCallerID }
func (r LauncherStartRequest) CtxID() string    { return r.ctxID }
func (r LauncherStartRequest) Shared() bool     { return r.shared }
func (r LauncherStartRequest) Token() string    { return r.token }

func validateStartArgs(callerID, ctxID string, shared bool) error {
	var missing []string
	if callerID == "" {
		missing = append(missing, "caller id")
	}
	if ctxID == "" {
		missing = append(missing, "context")
	}
	if len(missing) > 0 {
		return &ArgumentError{Reason: "missing required arguments: " + strings.Join(missing, ", ")}
	}
	// An isolated caller must not claim the shared identity.
	if !shared && callerID == SharedIdentity {
		return &ArgumentError{Reason: "caller id cannot be " + SharedIdentity + " when the backend is not shared"}
	}
	return nil
}
