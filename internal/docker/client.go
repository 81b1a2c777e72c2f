package docker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/docker/docker/client"
)

// ErrDaemonUnavailable is returned when no Docker daemon can be reached.
var ErrDaemonUnavailable = errors.New("docker: daemon unavailable")

// pingTimeout bounds Ping. Docker Desktop on macOS can take a few
// seconds to answer after waking up, while a stopped daemon on Linux
// fails at once, so a short bound is enough either way.
const pingTimeout = 5 * time.Second

// windowsPipe is the named pipe Docker Desktop listens on. Its location
// is fixed and cannot be changed through the filesystem.
const windowsPipe = `//./pipe/docker_engine`

// Client wraps the Docker Engine SDK client with platform socket
// detection and a bounded Ping.
//
// The installer only reads container state through it; containers are
// created and started by containers-up.sh. Install steps see the SDK
// client only as the narrow ContainerAPI interface, which tests fake.
//
// Usage:
//
//	c, err := docker.NewClient()
//	if err != nil { /* handle */ }
//	defer c.Close()
//	if err := c.Ping(ctx); err != nil { /* Docker not running */ }
type Client struct {
	inner *client.Client
}

// NewClient connects to DOCKER_HOST when it is set, otherwise to the
// first platform default that exists:
//   - Linux: /var/run/docker.sock
//   - macOS: /var/run/docker.sock, then ~/.docker/run/docker.sock
//   - Windows: the docker_engine named pipe
//
// Finding an endpoint does not mean a daemon is listening on it; a stale
// socket file survives a crashed daemon. Callers Ping before use.
//
// Returns an error wrapping ErrDaemonUnavailable if no endpoint is found
// or the client cannot be created.
func NewClient() (*Client, error) {
	host, err := resolveHost(os.Getenv("DOCKER_HOST"), runtime.GOOS, socketExists)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDaemonUnavailable, err)
	}

	// WithAPIVersionNegotiation makes the first request agree on the
	// highest API version both sides support, so an SDK newer than the
	// daemon still works. Without it every call against an older daemon
	// fails with "client version is too new".
	c, err := client.NewClientWithOpts(
		client.WithHost(host),
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Docker client for host %q: %v", ErrDaemonUnavailable, host, err)
	}
	return &Client{inner: c}, nil
}

// resolveHost picks the daemon address.
//
// Parameters:
//   - dockerHost: the DOCKER_HOST value; when set it wins unchanged, as
//     it does for the docker CLI (tcp://, ssh:// and unix:// all pass)
//   - goos: runtime.GOOS, a parameter so every platform can be tested
//   - exists: reports whether a Unix socket path is present
//
// Returns a host URL for client.WithHost, or an error naming the paths
// that were tried.
func resolveHost(dockerHost, goos string, exists func(string) bool) (string, error) {
	if dockerHost != "" {
		return dockerHost, nil
	}

	var candidates []string
	switch goos {
	case "linux":
		candidates = []string{"/var/run/docker.sock"}
	case "darwin":
		// Docker Desktop 4.13+ no longer creates /var/run/docker.sock
		// unless "Allow the default Docker socket" is enabled; the
		// per-user socket under ~/.docker is always there.
		candidates = []string{"/var/run/docker.sock"}
		if home, err := os.UserHomeDir(); err == nil {
			candidates = append(candidates, filepath.Join(home, ".docker", "run", "docker.sock"))
		}
	case "windows":
		// There is no cheap existence check for a named pipe (os.Stat
		// does not see it, and the net package cannot dial it), so the
		// pipe is always chosen and Ping reports a missing daemon.
		return "npipe://" + windowsPipe, nil
	default:
		return "", fmt.Errorf("unsupported platform: %s", goos)
	}

	// First existing candidate wins; the order above is the preference.
	for _, path := range candidates {
		if exists(path) {
			return "unix://" + path, nil
		}
	}
	return "", fmt.Errorf("docker socket not found at any of: %v", candidates)
}

// socketExists reports whether a Unix socket file is present. A
// successful Stat does not prove a daemon is accepting connections on it;
// Ping does that.
func socketExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Ping verifies that the daemon answers within pingTimeout.
//
// It is the installer's only liveness check: the readiness step calls it
// right after NewClient and falls back to a fixed wait when it fails.
func (c *Client) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if _, err := c.inner.Ping(pingCtx); err != nil {
		return fmt.Errorf("%w: Docker daemon is not responding, is Docker running?: %v", ErrDaemonUnavailable, err)
	}
	return nil
}

// Close releases the client. It is safe to call more than once.
func (c *Client) Close() error {
	if c.inner != nil {
		return c.inner.Close()
	}
	return nil
}

// API returns the container endpoints readiness probing needs. The SDK
// client satisfies ContainerAPI directly.
func (c *Client) API() ContainerAPI {
	return c.inner
}
