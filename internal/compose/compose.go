// Package compose reads the Docker Compose files that containers-up.sh
// brings up, to learn which containers to wait for and which host ports
// they publish.
//
// Only the fields the installer needs are decoded: the project name, and
// for each service its container_name and published ports. Files are
// merged in order the way Docker Compose merges them: a later file's
// service replaces the container name and port list of an earlier one.
package compose

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Project is the merged view of one or more Compose files.
type Project struct {
	// Name is the top-level `name` of the last file that sets one.
	Name string

	// Services are sorted by name for deterministic output.
	Services []Service
}

// Service is one Compose service.
type Service struct {
	Name string

	// ContainerName is the explicit container_name, empty when Compose
	// generates one.
	ContainerName string

	// Ports are the published ports. Container-only entries ("5432") are
	// skipped because they bind nothing on the host.
	Ports []PortSpec
}

// PortSpec is a published port mapping.
type PortSpec struct {
	HostIP        string `json:"hostIP,omitempty"`
	HostPort      int    `json:"hostPort"`
	ContainerPort int    `json:"containerPort"`
	Protocol      string `json:"protocol"`
}

// MatchName returns the name to filter containers by: the explicit
// container_name, or the service name, which Compose embeds in every
// generated container name.
func (s Service) MatchName() string {
	if s.ContainerName != "" {
		return s.ContainerName
	}
	return s.Name
}

// composeFile is the subset of the Compose file format decoded here.
// Every other key (image, volumes, healthcheck, ...) is ignored by yaml.v3
// because the struct has no field for it, so files using newer Compose
// features still parse.
type composeFile struct {
	Name     string                    `yaml:"name"`
	Services map[string]composeService `yaml:"services"`
}

// composeService is one entry under `services:`.
type composeService struct {
	ContainerName string `yaml:"container_name"`

	// Ports is kept as raw nodes because a single list may mix the short
	// string syntax and the long mapping syntax, which decode into
	// different Go types.
	Ports []yaml.Node `yaml:"ports"`
}

// longPort is the long port syntax:
//
//	ports:
//	  - target: 80
//	    published: "8080"
//	    protocol: tcp
type longPort struct {
	Target    int    `yaml:"target"`
	Published string `yaml:"published"`
	HostIP    string `yaml:"host_ip"`
	Protocol  string `yaml:"protocol"`
}

// Load parses and merges the Compose files at paths.
//
// The files are processed in the order given, the same order
// containers-up.sh passes them to `docker compose -f`. A service that
// appears in several files is merged field by field: a later file that
// sets container_name or ports replaces the earlier value, and a later
// file that leaves them out inherits them. This matches how Compose
// treats single-value fields. Compose itself concatenates port lists;
// here a later list replaces the earlier one.
//
// Parameters:
//   - paths: Compose file paths, already resolved against the install root
//
// Returns the merged project with services sorted by name, or an error
// naming the first file that cannot be read or parsed.
func Load(paths []string) (*Project, error) {
	merged := make(map[string]Service)
	project := &Project{}

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read compose file %s: %w", path, err)
		}
		file, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse compose file %s: %w", path, err)
		}
		if file.Name != "" {
			project.Name = file.Name
		}
		for _, svc := range file.Services {
			// Inherit what the later file leaves unset. A nil Ports means
			// the key was absent; an explicit empty list clears the ports.
			prev, ok := merged[svc.Name]
			if ok {
				if svc.ContainerName == "" {
					svc.ContainerName = prev.ContainerName
				}
				if svc.Ports == nil {
					svc.Ports = prev.Ports
				}
			}
			merged[svc.Name] = svc
		}
	}

	// Map iteration order is random, so sort for stable readiness and
	// port report output.
	names := make([]string, 0, len(merged))
	for name := range merged {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		project.Services = append(project.Services, merged[name])
	}
	return project, nil
}

// Parse decodes a single Compose document.
//
// Only the first YAML document in data is read; Compose files never hold
// more than one. Port entries that publish nothing on the host are
// dropped, and a malformed port entry fails the whole file with the
// service name in the error so the user can find it.
func Parse(data []byte) (*Project, error) {
	var file composeFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}

	project := &Project{Name: file.Name}
	names := make([]string, 0, len(file.Services))
	for name := range file.Services {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		raw := file.Services[name]
		svc := Service{Name: name, ContainerName: raw.ContainerName}
		for i := range raw.Ports {
			spec, ok, err := parsePort(&raw.Ports[i])
			if err != nil {
				return nil, fmt.Errorf("service %s: %w", name, err)
			}
			if ok {
				svc.Ports = append(svc.Ports, spec)
			}
		}
		project.Services = append(project.Services, svc)
	}
	return project, nil
}

// parsePort handles both the short ("8080:80/tcp") and long port syntax.
// ok is false for entries that publish nothing on the host.
func parsePort(node *yaml.Node) (PortSpec, bool, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		// Unquoted numbers ("- 5432") are scalars too; node.Value holds
		// their text, so they take the same path as quoted strings.
		return ParseShortPort(node.Value)
	case yaml.MappingNode:
		var lp longPort
		if err := node.Decode(&lp); err != nil {
			return PortSpec{}, false, err
		}
		// Without `published` Docker picks an ephemeral host port, which
		// cannot collide with anything ahead of time.
		if lp.Published == "" {
			return PortSpec{}, false, nil
		}
		host, err := strconv.Atoi(lp.Published)
		if err != nil {
			return PortSpec{}, false, fmt.Errorf("invalid published port %q", lp.Published)
		}
		// Compose defaults to tcp when protocol is omitted.
		proto := lp.Protocol
		if proto == "" {
			proto = "tcp"
		}
		return PortSpec{HostIP: lp.HostIP, HostPort: host, ContainerPort: lp.Target, Protocol: proto}, true, nil
	default:
		// Sequences, aliases and the like are not valid port entries.
		return PortSpec{}, false, fmt.Errorf("unsupported port entry at line %d", node.Line)
	}
}

// ParseShortPort parses "[[host_ip:]host_port:]container_port[/protocol]".
// Port ranges are not supported.
//
// Example:
//
//	"26257:26257"          → host 26257, container 26257, tcp
//	"127.0.0.1:8080:80"    → host 127.0.0.1:8080, container 80, tcp
//	"9000/udp"             → not published
func ParseShortPort(s string) (PortSpec, bool, error) {
	spec := PortSpec{Protocol: "tcp"}
	if base, proto, ok := strings.Cut(s, "/"); ok {
		s = base
		spec.Protocol = proto
	}

	// The host IP may be an IPv6 literal in brackets.
	if strings.HasPrefix(s, "[") {
		end := strings.Index(s, "]")
		if end < 0 {
			return PortSpec{}, false, fmt.Errorf("invalid port %q", s)
		}
		spec.HostIP = s[1:end]
		s = strings.TrimPrefix(s[end+1:], ":")
	}

	// With the protocol and any bracketed IP removed, the colon count
	// tells the forms apart.
	parts := strings.Split(s, ":")
	switch len(parts) {
	case 1:
		// Container port only: nothing is published on the host.
		return PortSpec{}, false, nil
	case 2:
		// host:container
	case 3:
		// ip:host:container
		spec.HostIP = parts[0]
		parts = parts[1:]
	default:
		return PortSpec{}, false, fmt.Errorf("invalid port %q", s)
	}

	host, err := strconv.Atoi(parts[0])
	if err != nil {
		return PortSpec{}, false, fmt.Errorf("invalid host port in %q", s)
	}
	container, err := strconv.Atoi(parts[1])
	if err != nil {
		return PortSpec{}, false, fmt.Errorf("invalid container port in %q", s)
	}
	spec.HostPort = host
	spec.ContainerPort = container
	return spec, true, nil
}

// MatchNames returns the container name filter of every service, in the
// project's service order. The readiness step polls exactly these names
// when no services are configured explicitly.
func (p *Project) MatchNames() []string {
	names := make([]string, 0, len(p.Services))
	for _, svc := range p.Services {
		names = append(names, svc.MatchName())
	}
	return names
}
