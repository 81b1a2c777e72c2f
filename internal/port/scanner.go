package port

import (
	"fmt"
	"net"
	"strconv"

	"github.com/kamiwaza-ai/kamiwaza-install/internal/compose"
)

// Scanner checks whether specific ports are available on the host machine.
//
// It asks the operating system's network stack: a port is free when
// net.Listen (tcp) or net.ListenPacket (udp) can bind it. Parsing
// /proc/net or running lsof would need platform-specific code and, for
// ports owned by other users, elevated permissions.
//
// The struct is stateless; a value keeps call sites uniform and leaves
// room for options such as a bind timeout.
type Scanner struct{}

// NewScanner creates a new Scanner instance. No configuration is needed.
func NewScanner() *Scanner {
	return &Scanner{}
}

// IsPortAvailable checks whether a single port is free on hostIP.
//
// An empty hostIP means all interfaces, which is where Docker publishes a
// port unless the Compose file names a host_ip. Binding the same address
// Docker will bind gives the same answer Docker will get: a port taken on
// 127.0.0.1 only does not block a publish on 0.0.0.0 on Linux, and the
// check agrees.
//
// Parameters:
//   - hostIP: the address to bind, "" for all interfaces; IPv6 literals
//     are accepted without brackets
//   - port: the port number to check (1-65535)
//   - protocol: "tcp" or "udp"
//
// Returns true if the port is free, false if it is already in use, the
// protocol is unknown or the port is out of range.
func (s *Scanner) IsPortAvailable(hostIP string, port int, protocol string) bool {
	// Port 0 would ask the kernel for any free port and always succeed.
	if port < 1 || port > 65535 {
		return false
	}
	// JoinHostPort adds the brackets an IPv6 literal needs.
	addr := net.JoinHostPort(hostIP, strconv.Itoa(port))

	switch protocol {
	case "tcp":
		// Listen fails with "address already in use" when another
		// process holds the port. The listener is closed at once; only
		// the bind result matters.
		listener, err := net.Listen("tcp", addr)
		if err != nil {
			return false
		}
		_ = listener.Close()
		return true

	case "udp":
		// UDP is connectionless, so the bind goes through ListenPacket.
		conn, err := net.ListenPacket("udp", addr)
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true

	default:
		// Unknown protocol: report unavailable rather than guess.
		return false
	}
}

// Status is the availability of one published port.
type Status struct {
	Service string           `json:"service"`
	Port    compose.PortSpec `json:"port"`
	InUse   bool             `json:"inUse"`
}

// String renders the status for the check report, e.g.
// "cockroachdb 26257/tcp: in use".
func (s Status) String() string {
	state := "free"
	if s.InUse {
		state = "in use"
	}
	return fmt.Sprintf("%s %d/%s: %s", s.Service, s.Port.HostPort, s.Port.Protocol, state)
}

// CheckProject scans every published port of every service in p.
//
// The result follows the project's service order and each service's port
// order, so the check report lists conflicts the way the Compose files
// declare them. Run it before containers-up.sh: once the platform is up,
// its own containers hold these ports and every entry reads "in use".
func (s *Scanner) CheckProject(p *compose.Project) []Status {
	var statuses []Status
	for _, svc := range p.Services {
		for _, spec := range svc.Ports {
			statuses = append(statuses, Status{
				Service: svc.Name,
				Port:    spec,
				InUse:   !s.IsPortAvailable(spec.HostIP, spec.HostPort, spec.Protocol),
			})
		}
	}
	return statuses
}
