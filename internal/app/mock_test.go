package app

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"procmux/internal/domain"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// mockLauncher hands out deterministic pids and ports per call.
type mockLauncher struct {
	mu     sync.Mutex
	calls  int
	err    error
	tokens []string
}

func (m *mockLauncher) Launch(identity, authToken string) (domain.LaunchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return domain.LaunchResult{}, m.err
	}
	m.calls++
	m.tokens = append(m.tokens, authToken)
	return domain.LaunchResult{
		PID:      5000 + m.calls,
		URL:      fmt.Sprintf("http://127.0.0.1:%d", 43000+m.calls),
		BasePath: "/backend/" + identity,
		Headers:  map[string]string{"PMX-AUTH-TOKEN": authToken},
	}, nil
}

func (m *mockLauncher) launchCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockProber struct{ ready bool }

func (m *mockProber) WaitUntilReady(context.Context, string) bool { return m.ready }

type mockTokens struct {
	next string
	err  error
}

func (m *mockTokens) Generate() (string, error) { return m.next, m.err }

// mockProcs treats every pid as alive until marked dead. Terminate records
// the pid and marks it dead.
type mockProcs struct {
	mu         sync.Mutex
	dead       map[string]bool
	terminated []int
}

func newMockProcs() *mockProcs {
	return &mockProcs{dead: make(map[string]bool)}
}

func (m *mockProcs) Exists(pid string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.dead[pid]
}

func (m *mockProcs) Terminate(pid int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.terminated = append(m.terminated, pid)
	m.dead[strconv.Itoa(pid)] = true
	return nil
}

func (m *mockProcs) markDead(pid string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dead[pid] = true
}

func (m *mockProcs) terminatedPIDs() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.terminated...)
}
