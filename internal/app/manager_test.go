package app

import (
	"context"
	"errors"
	"testing"

	"procmux/internal/adapter/store"
	"procmux/internal/domain"
)

type testEnv struct {
	manager  *Manager
	launcher *mockLauncher
	prober   *mockProber
	tokens   *mockTokens
	procs    *mockProcs
	repo     *store.FileRepository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	procs := newMockProcs()
	repo := store.NewFileRepository(t.TempDir(), procs.Exists, nopLogger{})
	launcher := &mockLauncher{}
	prober := &mockProber{ready: true}
	tokens := &mockTokens{next: "generated-token"}
	return &testEnv{
		manager:  NewManager(repo, launcher, prober, tokens, procs, nopLogger{}),
		launcher: launcher,
		prober:   prober,
		tokens:   tokens,
		procs:    procs,
		repo:     repo,
	}
}

func TestSharedStartAliasesExistingServer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.manager.StartForKernelSession(ctx, "kernel-a", "100", true)
	if err != nil {
		t.Fatalf("first start: %v", err)
	}
	if first.Failed() {
		t.Fatalf("first start failed: %v", first.Errors)
	}
	if first.GroupKey != "100_default" {
		t.Errorf("group key = %q, want %q", first.GroupKey, "100_default")
	}
	if first.Kind != domain.KindShared {
		t.Errorf("kind = %q, want %q", first.Kind, domain.KindShared)
	}
	if first.AbsoluteURL != first.ServerURL+first.BasePath {
		t.Errorf("absolute url = %q, want %q", first.AbsoluteURL, first.ServerURL+first.BasePath)
	}
	if first.AuthToken != "generated-token" {
		t.Errorf("auth token = %q, want minted token", first.AuthToken)
	}

	second, err := env.manager.StartForKernelSession(ctx, "kernel-b", "100", true)
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	if second.PID != first.PID || second.AuthToken != first.AuthToken {
		t.Errorf("second caller got pid %d token %q, want alias of pid %d token %q",
			second.PID, second.AuthToken, first.PID, first.AuthToken)
	}
	if got := env.launcher.launchCalls(); got != 1 {
		t.Errorf("launch calls = %d, want 1", got)
	}

	all, err := env.repo.All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("reference count = %d, want 2", len(all))
	}
}

func TestIsolatedStartPerCaller(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a, err := env.manager.StartForKernelSession(ctx, "kernel-a", "100", false)
	if err != nil {
		t.Fatalf("start a: %v", err)
	}
	b, err := env.manager.StartForKernelSession(ctx, "kernel-b", "100", false)
	if err != nil {
		t.Fatalf("start b: %v", err)
	}
	if a.PID == b.PID {
		t.Errorf("isolated callers share pid %d", a.PID)
	}
	if a.GroupKey != "100_kernel-a" || b.GroupKey != "100_kernel-b" {
		t.Errorf("group keys = %q, %q", a.GroupKey, b.GroupKey)
	}
	if a.Kind != domain.KindIsolated {
		t.Errorf("kind = %q, want %q", a.Kind, domain.KindIsolated)
	}
	if got := env.launcher.launchCalls(); got != 2 {
		t.Errorf("launch calls = %d, want 2", got)
	}
}

func TestStartArgumentValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cases := []struct {
		name     string
		callerID string
		ctxID    string
		shared   bool
	}{
		{"missing caller", "", "100", true},
		{"missing context", "kernel-a", "", true},
		{"reserved identity unshared", domain.SharedIdentity, "100", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.manager.StartForKernelSession(ctx, tc.callerID, tc.ctxID, tc.shared)
			var argErr *domain.ArgumentError
			if !errors.As(err, &argErr) {
				t.Fatalf("err = %v, want ArgumentError", err)
			}
		})
	}
	if got := env.launcher.launchCalls(); got != 0 {
		t.Errorf("launch calls = %d, want 0", got)
	}
}

func TestLauncherSessionUsesFixedIdentityAndToken(t *testing.T) {
	env := newTestEnv(t)

	server, err := env.manager.StartForLauncherSession(context.Background(), "200", true, "preset-token")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if server.Failed() {
		t.Fatalf("start failed: %v", server.Errors)
	}
	if server.AuthToken != "preset-token" {
		t.Errorf("auth token = %q, want the caller-provided one", server.AuthToken)
	}
	if _, _, err := env.repo.Get("200", domain.LauncherCallerID); err != nil {
		t.Errorf("no record for launcher caller: %v", err)
	}
}

func TestStartSpawnFailureReturnsFailedDescriptor(t *testing.T) {
	env := newTestEnv(t)
	env.launcher.err = domain.SpawnFailure(errors.New("exec: no such file"))

	server, err := env.manager.StartForKernelSession(context.Background(), "kernel-a", "100", true)
	if err != nil {
		t.Fatalf("start returned error: %v", err)
	}
	if !server.Failed() {
		t.Fatal("descriptor does not carry the failure")
	}
	all, err := env.repo.All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("failed start persisted %d records", len(all))
	}
}

func TestStartReadinessFailureTerminatesBackend(t *testing.T) {
	env := newTestEnv(t)
	env.prober.ready = false

	server, err := env.manager.StartForKernelSession(context.Background(), "kernel-a", "100", true)
	if err != nil {
		t.Fatalf("start returned error: %v", err)
	}
	if !server.Failed() {
		t.Fatal("descriptor does not carry the failure")
	}
	if got := env.procs.terminatedPIDs(); len(got) != 1 || got[0] != 5001 {
		t.Errorf("terminated pids = %v, want [5001]", got)
	}
	all, err := env.repo.All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("failed start persisted %d records", len(all))
	}
}

func TestShutdownReferenceCounting(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var token string
	var pid int
	for _, caller := range []string{"kernel-a", "kernel-b", "kernel-c"} {
		server, err := env.manager.StartForKernelSession(ctx, caller, "100", true)
		if err != nil || server.Failed() {
			t.Fatalf("start %s: err=%v errors=%v", caller, err, server.Errors)
		}
		token, pid = server.AuthToken, server.PID
	}

	for i, caller := range []string{"kernel-a", "kernel-b"} {
		if err := env.manager.Shutdown("100", caller, token); err != nil {
			t.Fatalf("shutdown %s: %v", caller, err)
		}
		if got := env.procs.terminatedPIDs(); len(got) != 0 {
			t.Fatalf("backend terminated after %d of 3 shutdowns", i+1)
		}
	}
	if _, err := env.repo.FindByGroupKey("100_default"); err != nil {
		t.Fatalf("group lost before last shutdown: %v", err)
	}

	if err := env.manager.Shutdown("100", "kernel-c", token); err != nil {
		t.Fatalf("last shutdown: %v", err)
	}
	if got := env.procs.terminatedPIDs(); len(got) != 1 || got[0] != pid {
		t.Errorf("terminated pids = %v, want [%d]", got, pid)
	}
	if _, err := env.repo.FindByGroupKey("100_default"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("group lookup after last shutdown = %v, want ErrNotFound", err)
	}
}

func TestShutdownTokenMismatchIsQuiet(t *testing.T) {
	env := newTestEnv(t)

	server, err := env.manager.StartForKernelSession(context.Background(), "kernel-a", "100", true)
	if err != nil || server.Failed() {
		t.Fatalf("start: err=%v errors=%v", err, server.Errors)
	}
	if err := env.manager.Shutdown("100", "kernel-a", "wrong-token"); err != nil {
		t.Fatalf("shutdown with bad token: %v", err)
	}
	if got := env.procs.terminatedPIDs(); len(got) != 0 {
		t.Errorf("bad token terminated pids %v", got)
	}
	if _, _, err := env.repo.Get("100", "kernel-a"); err != nil {
		t.Errorf("record removed despite bad token: %v", err)
	}
}

func TestShutdownQuietNoOps(t *testing.T) {
	env := newTestEnv(t)

	if err := env.manager.Shutdown("", "kernel-a", "token"); err != nil {
		t.Errorf("missing ctx: %v", err)
	}
	if err := env.manager.Shutdown("100", "", "token"); err != nil {
		t.Errorf("missing caller: %v", err)
	}
	if err := env.manager.Shutdown("100", "kernel-a", ""); err != nil {
		t.Errorf("missing token: %v", err)
	}
	if err := env.manager.Shutdown("100", "ghost", "token"); err != nil {
		t.Errorf("unknown record: %v", err)
	}
}

func TestSweepOrphansRemovesDeadContexts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	victim, err := env.manager.StartForKernelSession(ctx, "kernel-a", "300", true)
	if err != nil || victim.Failed() {
		t.Fatalf("start victim: err=%v errors=%v", err, victim.Errors)
	}
	other, err := env.manager.StartForKernelSession(ctx, "kernel-b", "301", true)
	if err != nil || other.Failed() {
		t.Fatalf("start other: err=%v errors=%v", err, other.Errors)
	}

	env.procs.markDead("300")
	env.manager.SweepOrphans("300")

	if got := env.procs.terminatedPIDs(); len(got) != 1 || got[0] != victim.PID {
		t.Errorf("terminated pids = %v, want [%d]", got, victim.PID)
	}
	if _, _, err := env.repo.Get("300", "kernel-a"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("orphaned record still present: %v", err)
	}
	if _, _, err := env.repo.Get("301", "kernel-b"); err != nil {
		t.Errorf("unrelated record swept: %v", err)
	}
}

func TestStartReplacesDeadBackend(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.manager.StartForKernelSession(ctx, "kernel-a", "400", true)
	if err != nil || first.Failed() {
		t.Fatalf("first start: err=%v errors=%v", err, first.Errors)
	}
	env.procs.markDead("5001")

	second, err := env.manager.StartForKernelSession(ctx, "kernel-a", "400", true)
	if err != nil || second.Failed() {
		t.Fatalf("second start: err=%v errors=%v", err, second.Errors)
	}
	if second.PID == first.PID {
		t.Errorf("dead backend pid %d aliased instead of replaced", first.PID)
	}
	if got := env.launcher.launchCalls(); got != 2 {
		t.Errorf("launch calls = %d, want 2", got)
	}
}

func TestListReportsLiveness(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a, err := env.manager.StartForKernelSession(ctx, "kernel-a", "500", true)
	if err != nil || a.Failed() {
		t.Fatalf("start a: err=%v errors=%v", err, a.Errors)
	}
	b, err := env.manager.StartForKernelSession(ctx, "kernel-b", "501", false)
	if err != nil || b.Failed() {
		t.Fatalf("start b: err=%v errors=%v", err, b.Errors)
	}
	env.procs.markDead("5002")

	refs, err := env.manager.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(refs) != 2 {
		t.Fatalf("len = %d, want 2", len(refs))
	}
	for _, ref := range refs {
		wantAlive := ref.Server.PID != 5002
		if ref.Alive != wantAlive {
			t.Errorf("pid %d alive = %v, want %v", ref.Server.PID, ref.Alive, wantAlive)
		}
	}
}
