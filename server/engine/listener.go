package engine

import (
	"fmt"
	"net"
	"strconv"

	"golang.org/x/sys/unix"
)

// Listener is the non-blocking listening socket, created once and never changed
type Listener struct {
	fd   int
	addr unix.SockaddrInet4
}

// create new socket, bind and start listening
// host is an ipv4 literal or a name resolving to one
func Listen(host string, port, backlog int) (*Listener, error) {
	ip, err := resolve4(host)
	if err != nil {
		return nil, err
	}

	// SOCK_STREAM = TCP
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("setsockopt SO_REUSEADDR: %w", err)
	}

	sa := &unix.SockaddrInet4{Port: port}
	copy(sa.Addr[:], ip)
	if err := unix.Bind(fd, sa); err != nil { // bind socket to addr:port
		unix.Close(fd)
		return nil, fmt.Errorf("bind %s: %w", net.JoinHostPort(host, strconv.Itoa(port)), err)
	}
	if err := unix.Listen(fd, backlog); err != nil { // start listening on addr:port
		unix.Close(fd)
		return nil, fmt.Errorf("listen: %w", err)
	}

	// port 0 means kernel picked one
	l := &Listener{fd: fd, addr: *sa}
	if bound, err := unix.Getsockname(fd); err == nil {
		if in4, ok := bound.(*unix.SockaddrInet4); ok {
			l.addr = *in4
		}
	}
	return l, nil
}

func resolve4(host string) (net.IP, error) {
	if host == "" {
		return net.IPv4zero.To4(), nil
	}
	if ip := net.ParseIP(host); ip != nil {
		if ip4 := ip.To4(); ip4 != nil {
			return ip4, nil
		}
		return nil, fmt.Errorf("%s is not an ipv4 address", host)
	}

	addr, err := net.ResolveIPAddr("ip4", host)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", host, err)
	}
	return addr.IP.To4(), nil
}

func (l *Listener) Fd() int {
	return l.fd
}

// bound address as host:port
func (l *Listener) Addr() string {
	return sockaddrString(&l.addr)
}

func (l *Listener) Close() error {
	return unix.Close(l.fd)
}

// accept one connection, it is already non-blocking
// EAGAIN means somebody else took it
func (l *Listener) accept() (int, string, error) {
	nfd, sa, err := unix.Accept4(l.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		return -1, "", err
	}
	return nfd, sockaddrString(sa), nil
}

func sockaddrString(sa unix.Sockaddr) string {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		return net.JoinHostPort(net.IP(v.Addr[:]).String(), strconv.Itoa(v.Port))
	case *unix.SockaddrInet6:
		return net.JoinHostPort(net.IP(v.Addr[:]).String(), strconv.Itoa(v.Port))
	default:
		return "?"
	}
}
