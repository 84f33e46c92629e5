package domain

import (
	"encoding/json"
	"fmt"
)

// SharedIdentity is the reserved identity under which all shared callers
// of one context collapse onto a single backend.
const SharedIdentity = "default"

// LauncherCallerID is the fixed caller id used by launcher sessions.
const LauncherCallerID = "launcher"

// Kind describes how a backend is shared among callers.
type Kind string

const (
	KindShared   Kind = "shared"
	KindIsolated Kind = "isolated"
)

// ServerProcess describes one backend server instance. It is created once,
// at successful launch, and persisted verbatim as the body of every
// reference record that aliases it. A ServerProcess whose Errors field is
// populated describes a failed launch attempt and is never persisted.
type ServerProcess struct {
	ServerURL   string            `json:"server_url"`
	BasePath    string            `json:"base_path"`
	Headers     map[string]string `json:"headers"`
	Errors      []string          `json:"errors"`
	PID         int               `json:"pid"`
	ParentCtx   string            `json:"parent_ctx"`
	AbsoluteURL string            `json:"absolute_url"`
	GroupKey    string            `json:"group_key"`
	Kind        Kind              `json:"kind"`
	AuthToken   string            `json:"auth_token"`
}

// Failed reports whether this descriptor represents a failed launch.
func (s *ServerProcess) Failed() bool {
	return len(s.Errors) > 0
}

// Serialize encodes the descriptor as JSON.
func (s *ServerProcess) Serialize() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("serialize server descriptor: %w", err)
	}
	return data, nil
}

// Deserialize decodes a descriptor previously produced by Serialize.
func Deserialize(data []byte) (*ServerProcess, error) {
	var s ServerProcess
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("deserialize server descriptor: %w", err)
	}
	return &s, nil
}

// FailedServer returns a descriptor whose only populated field is Errors.
// It is handed back to the failing caller and never persisted.
func FailedServer(errs ...error) *ServerProcess {
	msgs := make([]string, 0, len(errs))
	for _, err := range errs {
		msgs = append(msgs, err.Error())
	}
	return &ServerProcess{Errors: msgs}
}

// Identity resolves the group identity for a caller: the shared marker when
// the backend is shared, the caller's own id otherwise.
func Identity(callerID string, shared bool) string {
	if shared {
		return SharedIdentity
	}
	return callerID
}

// MakeGroupKey derives the group key naming one logical backend.
func MakeGroupKey(ctxID, identity string) string {
	return ctxID + "_" + identity
}

// KindFor maps the shared flag to a descriptor kind.
func KindFor(shared bool) Kind {
	if shared {
		return KindShared
	}
	return KindIsolated
}

// Reference is one persisted record aliasing a ServerProcess. The number of
// references embedding a group key is that backend's reference count.
type Reference struct {
	Location string
	CtxID    string
	CallerID string
	Server   *ServerProcess
}
