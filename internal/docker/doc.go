// Package docker provides Docker Engine API access for the installer.
//
// This package handles:
//   - Docker client initialization with automatic socket detection
//     (Linux, macOS, Windows)
//   - Readiness probing of the containers that containers-up.sh starts:
//     a container is ready when it is running and, if it defines a
//     healthcheck, reports healthy
//
// The package uses github.com/docker/docker/client as the underlying
// Docker SDK, with version negotiation enabled for broad compatibility.
package docker
