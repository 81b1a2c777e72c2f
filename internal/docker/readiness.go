package docker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/juju/clock"
	"github.com/juju/retry"

	"github.com/kamiwaza-ai/kamiwaza-install/internal/config"
)

// ErrNotReady is returned by WaitReady when the retry policy runs out
// before every service reports ready.
var ErrNotReady = errors.New("containers not ready")

// ContainerAPI is the subset of the Docker SDK client used for readiness
// probing. *client.Client satisfies it; tests substitute a fake.
type ContainerAPI interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)
	ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error)
}

// ServiceState is the readiness of one configured service.
type ServiceState struct {
	// Name is the configured service name (a container name fragment).
	Name string

	// ContainerName is the first matching container, without the leading
	// "/" Docker adds. Empty when no container matched.
	ContainerName string

	// State is the Docker container state ("running", "exited", ...).
	State string

	// Health is the healthcheck status, empty when the container
	// defines no healthcheck.
	Health string

	// Ready reports whether every matching container is running and,
	// where a healthcheck exists, healthy.
	Ready bool
}

// String renders the state for progress messages.
func (s ServiceState) String() string {
	switch {
	case s.ContainerName == "":
		return s.Name + ": missing"
	case s.Health != "":
		return fmt.Sprintf("%s: %s (%s)", s.Name, s.State, s.Health)
	default:
		return fmt.Sprintf("%s: %s", s.Name, s.State)
	}
}

// Probe reports the readiness of every service once.
func Probe(ctx context.Context, api ContainerAPI, services []string) ([]ServiceState, error) {
	states := make([]ServiceState, 0, len(services))
	for _, svc := range services {
		state, err := probeService(ctx, api, svc)
		if err != nil {
			return nil, err
		}
		states = append(states, state)
	}
	return states, nil
}

func probeService(ctx context.Context, api ContainerAPI, svc string) (ServiceState, error) {
	state := ServiceState{Name: svc}

	// All: true so stopped containers show up as not ready instead of
	// missing.
	summaries, err := api.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("name", svc)),
	})
	if err != nil {
		return state, fmt.Errorf("failed to list containers for %q: %w", svc, err)
	}
	if len(summaries) == 0 {
		return state, nil
	}

	// Stable order so the reported container does not flap between probes.
	sort.Slice(summaries, func(i, j int) bool {
		return containerName(summaries[i]) < containerName(summaries[j])
	})

	state.Ready = true
	for i, summary := range summaries {
		info, err := api.ContainerInspect(ctx, summary.ID)
		if err != nil {
			return state, fmt.Errorf("failed to inspect container %s: %w", summary.ID, err)
		}
		running, status, health := containerHealth(info)
		if status == "" {
			status = string(summary.State)
		}
		ready := running && (health == "" || health == string(container.NoHealthcheck) || health == string(container.Healthy))

		// Report the first container, or the first one holding the
		// service back.
		if i == 0 || (state.Ready && !ready) {
			state.ContainerName = containerName(summary)
			state.State = status
			state.Health = health
		}
		if !ready {
			state.Ready = false
		}
	}
	return state, nil
}

// containerHealth extracts running/status/health from an inspect
// response. Older daemons may omit State entirely.
func containerHealth(info container.InspectResponse) (running bool, status, health string) {
	if info.ContainerJSONBase == nil || info.State == nil {
		return false, "", ""
	}
	if info.State.Health != nil {
		health = string(info.State.Health.Status)
	}
	return info.State.Running, string(info.State.Status), health
}

// containerName returns the first name of the container with the leading
// "/" removed. Docker API returns names with a "/" prefix.
func containerName(s container.Summary) string {
	if len(s.Names) == 0 {
		return s.ID
	}
	return strings.TrimPrefix(s.Names[0], "/")
}

// allReady reports whether every state is ready, and lists the ones that
// are not.
func allReady(states []ServiceState) (bool, []string) {
	var pending []string
	for _, s := range states {
		if !s.Ready {
			pending = append(pending, s.String())
		}
	}
	return len(pending) == 0, pending
}

// WaitReady polls until every service is ready, the policy is exhausted,
// or ctx is cancelled. onProbe, if non-nil, receives each probe's states.
// An exhausted policy yields an error wrapping ErrNotReady that names the
// services still pending.
func WaitReady(
	ctx context.Context,
	api ContainerAPI,
	services []string,
	policy config.RetryPolicy,
	clk clock.Clock,
	onProbe func(attempt int, states []ServiceState),
) error {
	if len(services) == 0 {
		return nil
	}

	attempt := 0
	var pending []string
	args := policy.CallArgs(func() error {
		attempt++
		states, err := Probe(ctx, api, services)
		if err != nil {
			return err
		}
		if onProbe != nil {
			onProbe(attempt, states)
		}
		var ready bool
		ready, pending = allReady(states)
		if !ready {
			return fmt.Errorf("%w: %s", ErrNotReady, strings.Join(pending, ", "))
		}
		return nil
	}, clk, ctx.Done())

	err := retry.Call(args)
	if err == nil {
		return nil
	}
	if retry.IsRetryStopped(err) && ctx.Err() != nil {
		return ctx.Err()
	}
	if last := retry.LastError(err); last != nil {
		return last
	}
	return err
}
