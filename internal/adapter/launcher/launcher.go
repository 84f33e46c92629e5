package launcher

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"procmux/internal/domain"
)

// Environment contract with the backend executable.
const (
	EnvAuthToken = "PMX_AUTH_TOKEN"
	EnvBaseURL   = "PMX_BASE_URL"
	EnvAppPort   = "PMX_APP_PORT"

	// envHeaderPrefix selects which env vars are mirrored as outbound
	// headers for requests to the backend.
	envHeaderPrefix = "PMX_"
)

// Launcher prepares the backend command and environment and spawns the
// process through the injected platform spawner.
type Launcher struct {
	argv    []string
	prefix  string
	spawner domain.Spawner
	logger  domain.Logger
}

// New creates a launcher for the given backend invocation command. prefix
// is the base-url prefix the identity is appended to.
func New(argv []string, prefix string, spawner domain.Spawner, logger domain.Logger) *Launcher {
	return &Launcher{argv: argv, prefix: prefix, spawner: spawner, logger: logger}
}

// Launch allocates an ephemeral port, injects the auth token, base path and
// port into a copy of the ambient environment, and spawns the backend.
// All failures surface as spawn failures.
func (l *Launcher) Launch(identity, authToken string) (domain.LaunchResult, error) {
	port, err := freePort()
	if err != nil {
		return domain.LaunchResult{}, domain.SpawnFailure(err)
	}
	l.logger.Debug("allocated port", "port", port)

	basePath := l.prefix + identity
	env := append(os.Environ(),
		EnvAuthToken+"="+authToken,
		EnvBaseURL+"="+basePath,
		EnvAppPort+"="+strconv.Itoa(port),
	)

	pid, err := l.spawner.Spawn(l.argv, env)
	if err != nil {
		l.logger.Error("failed to spawn backend process", "err", err)
		return domain.LaunchResult{}, domain.SpawnFailure(err)
	}
	l.logger.Debug("backend process spawned", "pid", pid, "port", port)

	// The backend binds loopback only.
	return domain.LaunchResult{
		PID:      pid,
		URL:      fmt.Sprintf("http://127.0.0.1:%d", port),
		BasePath: basePath,
		Headers:  OutboundHeaders(env),
	}, nil
}

// freePort binds a transient socket and releases it immediately before the
// port number is handed to the backend. The port may be re-claimed by an
// unrelated process in the gap; that race is accepted, the backend would
// then fail its readiness probe.
func freePort() (int, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("allocate ephemeral port: %w", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port, nil
}

// OutboundHeaders converts the namespaced environment entries into header
// format: underscores become hyphens.
func OutboundHeaders(env []string) map[string]string {
	headers := make(map[string]string)
	for _, kv := range env {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, envHeaderPrefix) {
			continue
		}
		headers[strings.ReplaceAll(key, "_", "-")] = value
	}
	return headers
}
