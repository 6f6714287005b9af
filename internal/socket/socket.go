// Package socket sets up the per-interface OS multicast sockets the bridge
// worker reads from and sends through: interface enumeration, multicast
// group join, SO_REUSEADDR/SO_REUSEPORT, per-interface binding, and
// non-blocking I/O (spec.md section 6).
package socket

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"syscall"

	"github.com/dogmatiq/dodeca/logging"
	ipv4x "golang.org/x/net/ipv4"
	ipv6x "golang.org/x/net/ipv6"
	"golang.org/x/sys/unix"
)

// Port is the mDNS port (spec.md section 6).
const Port = 5353

var (
	// GroupV4 is the IPv4 mDNS multicast group.
	GroupV4 = net.ParseIP("224.0.0.251")
	// GroupV6 is the IPv6 mDNS multicast group.
	GroupV6 = net.ParseIP("ff02::fb")
)

// reusePortWarned is set once a SO_REUSEPORT failure has been logged, so a
// daemon with many interfaces doesn't repeat the same kernel-capability
// warning once per socket.
var reusePortWarned int32

// control implements net.ListenConfig.Control: it sets SO_REUSEADDR
// unconditionally and SO_REUSEPORT where the kernel supports it, falling
// back to SO_REUSEADDR-only (with a one-time warning) on older kernels that
// report ENOPROTOOPT, the same fallback beacon's socket_linux.go performs.
func control(logger logging.Logger) func(string, string, syscall.RawConn) error {
	return func(_, _ string, c syscall.RawConn) error {
		var sockErr error
		err := c.Control(func(fd uintptr) {
			if e := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); e != nil {
				sockErr = fmt.Errorf("SO_REUSEADDR: %w", e)
				return
			}

			if e := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); e != nil {
				if e != unix.ENOPROTOOPT {
					sockErr = fmt.Errorf("SO_REUSEPORT: %w", e)
					return
				}
				if atomic.CompareAndSwapInt32(&reusePortWarned, 0, 1) {
					logging.Log(logger, "kernel does not support SO_REUSEPORT (ENOPROTOOPT); continuing with SO_REUSEADDR only")
				}
			}
		})
		if err != nil {
			return fmt.Errorf("socket: raw conn control failed: %w", err)
		}
		return sockErr
	}
}

// Conn wraps an interface-bound mDNS multicast socket for one address
// family, implementing internal/iface.PacketConn.
type Conn struct {
	family  int // unix.AF_INET or unix.AF_INET6
	v4      *ipv4x.PacketConn
	v6      *ipv6x.PacketConn
	udp     *net.UDPConn
	groupV4 *net.UDPAddr
	groupV6 *net.UDPAddr
}

// OpenV4 creates and joins an IPv4 mDNS socket bound for use on the given
// interface. Per spec.md section 6, the socket is bound to the group
// address' listen form (not the specific interface address), with the
// interface selected explicitly via multicast group membership and via the
// control message on each send.
func OpenV4(ctx context.Context, ifi *net.Interface, logger logging.Logger) (*Conn, error) {
	lc := net.ListenConfig{Control: control(logger)}

	pc, err := lc.ListenPacket(ctx, "udp4", fmt.Sprintf("0.0.0.0:%d", Port))
	if err != nil {
		return nil, fmt.Errorf("socket: listen udp4 on %s: %w", ifi.Name, err)
	}
	udp := pc.(*net.UDPConn)

	p := ipv4x.NewPacketConn(udp)
	if err := p.SetControlMessage(ipv4x.FlagInterface, true); err != nil {
		udp.Close()
		return nil, fmt.Errorf("socket: enable interface control messages on %s: %w", ifi.Name, err)
	}
	if err := p.JoinGroup(ifi, &net.UDPAddr{IP: GroupV4}); err != nil {
		udp.Close()
		return nil, fmt.Errorf("socket: join %s on %s: %w", GroupV4, ifi.Name, err)
	}
	if err := p.SetMulticastTTL(255); err != nil {
		udp.Close()
		return nil, fmt.Errorf("socket: set multicast ttl on %s: %w", ifi.Name, err)
	}
	if err := p.SetMulticastLoopback(false); err != nil {
		udp.Close()
		return nil, fmt.Errorf("socket: disable multicast loopback on %s: %w", ifi.Name, err)
	}
	if err := p.SetMulticastInterface(ifi); err != nil {
		udp.Close()
		return nil, fmt.Errorf("socket: set outbound interface on %s: %w", ifi.Name, err)
	}

	if scc, err := udp.SyscallConn(); err == nil {
		scc.Control(func(fd uintptr) {
			unix.SetNonblock(int(fd), true)
		})
	}

	return &Conn{
		family:  unix.AF_INET,
		v4:      p,
		udp:     udp,
		groupV4: &net.UDPAddr{IP: GroupV4, Port: Port},
	}, nil
}

// OpenV6 is the IPv6 analogue of OpenV4.
func OpenV6(ctx context.Context, ifi *net.Interface, logger logging.Logger) (*Conn, error) {
	lc := net.ListenConfig{Control: control(logger)}

	pc, err := lc.ListenPacket(ctx, "udp6", fmt.Sprintf("[::]:%d", Port))
	if err != nil {
		return nil, fmt.Errorf("socket: listen udp6 on %s: %w", ifi.Name, err)
	}
	udp := pc.(*net.UDPConn)

	p := ipv6x.NewPacketConn(udp)
	if err := p.SetControlMessage(ipv6x.FlagInterface, true); err != nil {
		udp.Close()
		return nil, fmt.Errorf("socket: enable interface control messages on %s: %w", ifi.Name, err)
	}
	if err := p.JoinGroup(ifi, &net.UDPAddr{IP: GroupV6}); err != nil {
		udp.Close()
		return nil, fmt.Errorf("socket: join %s on %s: %w", GroupV6, ifi.Name, err)
	}
	if err := p.SetHopLimit(255); err != nil {
		udp.Close()
		return nil, fmt.Errorf("socket: set hop limit on %s: %w", ifi.Name, err)
	}
	if err := p.SetMulticastHopLimit(255); err != nil {
		udp.Close()
		return nil, fmt.Errorf("socket: set multicast hop limit on %s: %w", ifi.Name, err)
	}
	if err := p.SetMulticastLoopback(false); err != nil {
		udp.Close()
		return nil, fmt.Errorf("socket: disable multicast loopback on %s: %w", ifi.Name, err)
	}
	if err := p.SetMulticastInterface(ifi); err != nil {
		udp.Close()
		return nil, fmt.Errorf("socket: set outbound interface on %s: %w", ifi.Name, err)
	}

	if scc, err := udp.SyscallConn(); err == nil {
		scc.Control(func(fd uintptr) {
			unix.SetNonblock(int(fd), true)
		})
	}

	return &Conn{
		family:  unix.AF_INET6,
		v6:      p,
		udp:     udp,
		groupV6: &net.UDPAddr{IP: GroupV6, Port: Port},
	}, nil
}

// ReadFrom reads one datagram into buf. The caller must only call this
// after the readiness notifier reports the socket's fd as readable.
func (c *Conn) ReadFrom(buf []byte) (int, error) {
	if c.family == unix.AF_INET6 {
		n, _, _, err := c.v6.ReadFrom(buf)
		return n, err
	}
	n, _, _, err := c.v4.ReadFrom(buf)
	return n, err
}

// WriteTo sends buf to the family's mDNS multicast group via the interface
// identified by ifIndex, setting the IPv6 scope id on that control message
// for IPv6 sends (spec.md sections 4.8 and 6).
func (c *Conn) WriteTo(buf []byte, ifIndex int) error {
	if c.family == unix.AF_INET6 {
		_, err := c.v6.WriteTo(buf, &ipv6x.ControlMessage{IfIndex: ifIndex}, c.groupV6)
		return err
	}
	_, err := c.v4.WriteTo(buf, &ipv4x.ControlMessage{IfIndex: ifIndex}, c.groupV4)
	return err
}

// Close releases the underlying file descriptor.
func (c *Conn) Close() error {
	return c.udp.Close()
}

// Fd returns the raw file descriptor for registration with the readiness
// notifier.
func (c *Conn) Fd() int {
	var fd int
	scc, err := c.udp.SyscallConn()
	if err != nil {
		return -1
	}
	scc.Control(func(f uintptr) {
		fd = int(f)
	})
	return fd
}

// Interfaces returns every network interface that is up and supports
// multicast, the candidate set configuration names are validated against
// (spec.md section 6).
func Interfaces() ([]net.Interface, error) {
	all, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("socket: enumerate interfaces: %w", err)
	}

	const flags = net.FlagUp | net.FlagMulticast
	var matches []net.Interface
	for _, i := range all {
		if i.Flags&flags == flags {
			matches = append(matches, i)
		}
	}
	return matches, nil
}
